// Package audit emits per-node and per-flow authentication audit events.
//
// Both emitters are best-effort: feature flags are re-read on every event, the
// publisher decides whether a topic is audited for a realm, and publish failures
// or panics are logged at warn level and never reach the flow.
package audit
