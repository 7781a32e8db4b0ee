/*
Package domain contains the core domain models of the authtree engine.

It defines the fundamental entities of an authentication flow, such as node definitions,
connections, flows and the persisted flow state. This package is kept pure and free of
external I/O, following Hexagonal Architecture principles.

# Key Entities

  - NodeDefinition: One step of a flow (id, type, display name, opaque config) plus its outcome connections.
  - Flow: An immutable, validated graph of nodes identified by (realm, name).
  - FlowState: The runtime snapshot of one login attempt (current node, shared and transient state, parent frames).
  - Action: What a node asks the engine to do after processing (outcome or suspension).
  - Step: The result of advancing a flow: either a PendingInteraction or a FlowResult.
*/
package domain
