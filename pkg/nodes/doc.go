// Package nodes provides trivial reference node types so flows can be executed end to end.
// They collect input and manipulate shared state; none of them verifies credentials.
package nodes
