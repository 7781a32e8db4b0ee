/*
Package observability turns engine lifecycle hooks into metrics and logs.

Metrics exposes prometheus counters for node evaluations, suspensions and flow
completions. LoggingHooks writes the same events to a slog.Logger at debug level,
and Combine fans one event out to several hook sets.
*/
package observability
