package nodes

import (
	"context"
	"errors"

	"github.com/aretw0/authtree/pkg/domain"
)

// InnerTree marks an embedding of another flow. The engine evaluates the embedded
// flow itself; Process is never reached in a correctly wired engine.
type InnerTree struct {
	Tree string `config:"tree"`
}

// EmbeddedFlow implements ports.FlowEmbedder.
func (n *InnerTree) EmbeddedFlow() string {
	return n.Tree
}

func (n *InnerTree) Process(context.Context, *domain.TreeContext) (domain.Action, error) {
	return domain.Action{}, errors.New("inner tree nodes are evaluated by the engine")
}
