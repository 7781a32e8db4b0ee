// Package http serves authentication flows over a chi router.
package http
