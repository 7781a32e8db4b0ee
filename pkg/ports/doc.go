/*
Package ports defines the driven ports (interfaces) of the authtree engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to work with various node implementations, storage backends, flow registries
and audit pipelines.

# Key Interfaces

  - Node / NodeFactory: The opaque step contract and the factory that builds steps from definitions.
  - FlowRegistry: Resolves flows by (realm, name) (e.g. from files, Postgres, or memory).
  - StateStore: Persists and loads flow state between requests.
  - AuditPublisher: Receives audit events, gated per realm and topic.
  - DistributedLocker: Provides distributed locking for handling concurrent session access.
*/
package ports
