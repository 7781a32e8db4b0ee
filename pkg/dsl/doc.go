/*
Package dsl provides a Go DSL for programmatically constructing authentication flows.

It lets developers define flows with a type-safe, fluent builder instead of YAML or JSON
documents. The builder accumulates nodes and connections and produces an immutable
domain.Flow; nothing can be changed after Build.

Example usage:

	b := dsl.New("Login", "/")

	user := b.Add("UsernameCollectorNode").Named("Username")
	pass := b.Add("PasswordCollectorNode").Named("Password")
	mfa := b.Embed("SecondFactor").Named("MFA")

	user.On("outcome", pass)
	pass.On("outcome", mfa)
	mfa.Success("true").Failure("false")

	flow, err := b.Build()
*/
package dsl
