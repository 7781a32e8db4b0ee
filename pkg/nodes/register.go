package nodes

import (
	"context"
	"errors"

	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/ports"
	"github.com/aretw0/authtree/pkg/registry"
)

// Register adds every reference node type to r.
func Register(r *registry.Registry) {
	r.Register(registry.Type{
		Name:     TypeUsernameCollector,
		New:      construct(func() *UsernameCollector { return &UsernameCollector{} }, nil),
		Outcomes: registry.StaticOutcomes(OutcomeNext),
	})
	r.Register(registry.Type{
		Name:     TypePasswordCollector,
		New:      construct(func() *PasswordCollector { return &PasswordCollector{} }, nil),
		Outcomes: registry.StaticOutcomes(OutcomeNext),
	})
	r.Register(registry.Type{
		Name: TypeChoiceCollector,
		New: construct(func() *ChoiceCollector { return &ChoiceCollector{} },
			func(n *ChoiceCollector) error { return n.validate() }),
		Outcomes: func(def domain.NodeDefinition) []string {
			var n ChoiceCollector
			if err := decodeConfig(def, &n); err != nil {
				return nil
			}
			return n.Choices
		},
	})
	r.Register(registry.Type{
		Name:     TypeAuthLevelDecision,
		New:      construct(func() *AuthLevelDecision { return &AuthLevelDecision{} }, nil),
		Outcomes: registry.StaticOutcomes(domain.OutcomeTrue, domain.OutcomeFalse),
	})
	r.Register(registry.Type{
		Name:     TypeModifyAuthLevel,
		New:      construct(func() *ModifyAuthLevel { return &ModifyAuthLevel{} }, nil),
		Outcomes: registry.StaticOutcomes(OutcomeNext),
	})
	r.Register(registry.Type{
		Name:     TypeSetState,
		New:      construct(func() *SetState { return &SetState{} }, nil),
		Outcomes: registry.StaticOutcomes(OutcomeNext),
	})
	r.Register(registry.Type{
		Name: domain.NodeTypeInnerTree,
		New: construct(func() *InnerTree { return &InnerTree{} },
			func(n *InnerTree) error {
				if n.Tree == "" {
					return errors.New("tree must not be empty")
				}
				return nil
			}),
		Outcomes: registry.StaticOutcomes(domain.OutcomeTrue, domain.OutcomeFalse),
		Embeds:   true,
	})
}

// NewRegistry returns a registry preloaded with the reference node types.
func NewRegistry() *registry.Registry {
	r := registry.NewRegistry()
	Register(r)
	return r
}

func construct[N ports.Node](newNode func() N, validate func(N) error) registry.Constructor {
	return func(_ context.Context, req ports.NodeRequest) (ports.Node, error) {
		n := newNode()
		if err := decodeConfig(req.Definition, n); err != nil {
			return nil, err
		}
		if validate != nil {
			if err := validate(n); err != nil {
				return nil, err
			}
		}
		return n, nil
	}
}
