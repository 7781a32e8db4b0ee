package ports

import (
	"context"

	"github.com/aretw0/authtree/pkg/domain"
)

// Node is one opaque authentication step.
type Node interface {
	// Process evaluates the step. Returning an error fails the whole flow.
	Process(ctx context.Context, tc *domain.TreeContext) (domain.Action, error)
}

// FlowEmbedder is implemented by nodes that evaluate another flow.
// The recursion guards use it to discover embeddings on materialized nodes.
type FlowEmbedder interface {
	EmbeddedFlow() string
}

// NodeRequest identifies the node to construct: (type, realm, flow-context).
type NodeRequest struct {
	Realm      string
	Flow       string
	Definition domain.NodeDefinition
}

// NodeFactory constructs node instances. Construction may perform lookups and may fail;
// a failure is a configuration error, not an engine bug.
type NodeFactory interface {
	Create(ctx context.Context, req NodeRequest) (Node, error)
}

// NodeFactoryFunc adapts a function to NodeFactory.
type NodeFactoryFunc func(ctx context.Context, req NodeRequest) (Node, error)

// Create calls f.
func (f NodeFactoryFunc) Create(ctx context.Context, req NodeRequest) (Node, error) {
	return f(ctx, req)
}

// OutcomeCatalog exposes the outcomes a node type declares, independently of the engine.
type OutcomeCatalog interface {
	// Outcomes returns the declared outcomes for a node definition, and false when the type is unknown.
	Outcomes(def domain.NodeDefinition) ([]string, bool)
}

// EmbedderCatalog reports which node types may evaluate another flow.
// The recursion guards and the step executor consult the same catalog.
type EmbedderCatalog interface {
	Embeds(nodeType string) bool
}
