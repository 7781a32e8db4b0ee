package nodes

import (
	"context"

	"github.com/aretw0/authtree/pkg/domain"
)

const TypeSetState = "SetStateNode"

// SetState writes fixed values into shared state. A nil value removes the key.
type SetState struct {
	Values map[string]any `config:"values"`
}

func (n *SetState) Process(_ context.Context, _ *domain.TreeContext) (domain.Action, error) {
	delta := make(domain.Delta, len(n.Values))
	for k, v := range n.Values {
		delta[k] = v
	}
	return domain.Action{Outcome: OutcomeNext, SharedState: delta}, nil
}
