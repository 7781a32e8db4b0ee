package dsl

import (
	"github.com/aretw0/authtree/pkg/domain"
	"github.com/google/uuid"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    domain.NodeDefinition
	builder *Builder
}

// ID returns the node id.
func (n *NodeBuilder) ID() uuid.UUID {
	return n.node.ID
}

// Named sets the display name.
func (n *NodeBuilder) Named(displayName string) *NodeBuilder {
	n.node.DisplayName = displayName
	return n
}

// Config sets one opaque configuration value.
func (n *NodeBuilder) Config(key string, value any) *NodeBuilder {
	if n.node.Config == nil {
		n.node.Config = make(map[string]any)
	}
	n.node.Config[key] = value
	return n
}

// On connects outcome to the target node.
func (n *NodeBuilder) On(outcome string, target *NodeBuilder) *NodeBuilder {
	n.node.Connections[outcome] = target.node.ID
	return n
}

// OnID connects outcome to a raw node id. Build rejects ids that are not part of the flow.
func (n *NodeBuilder) OnID(outcome string, target uuid.UUID) *NodeBuilder {
	n.node.Connections[outcome] = target
	return n
}

// Success connects outcome to the SUCCESS terminal.
func (n *NodeBuilder) Success(outcome string) *NodeBuilder {
	return n.OnID(outcome, domain.SuccessNodeID)
}

// Failure connects outcome to the FAILURE terminal.
func (n *NodeBuilder) Failure(outcome string) *NodeBuilder {
	return n.OnID(outcome, domain.FailureNodeID)
}

// Build returns a copy of the underlying node definition.
// This is primarily used by the Builder, but exposed for advanced usage.
func (n *NodeBuilder) Build() domain.NodeDefinition {
	return n.node
}
