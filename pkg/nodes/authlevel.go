package nodes

import (
	"context"

	"github.com/aretw0/authtree/pkg/domain"
)

const (
	TypeAuthLevelDecision = "AuthLevelDecisionNode"
	TypeModifyAuthLevel   = "ModifyAuthLevelNode"
)

// AuthLevelDecision compares the accumulated auth level against a requirement.
type AuthLevelDecision struct {
	Requirement int `config:"authLevelRequirement"`
}

func (n *AuthLevelDecision) Process(_ context.Context, tc *domain.TreeContext) (domain.Action, error) {
	level, _ := domain.AuthLevel(tc.SharedState)
	if level >= n.Requirement {
		return domain.GoTo(domain.OutcomeTrue), nil
	}
	return domain.GoTo(domain.OutcomeFalse), nil
}

// ModifyAuthLevel adds Increment (possibly negative) to the auth level.
type ModifyAuthLevel struct {
	Increment int `config:"authLevelIncrement"`
}

func (n *ModifyAuthLevel) Process(_ context.Context, tc *domain.TreeContext) (domain.Action, error) {
	level, _ := domain.AuthLevel(tc.SharedState)
	level += n.Increment
	return domain.Action{
		Outcome:     OutcomeNext,
		SharedState: domain.Delta{domain.KeyAuthLevel: level},
		AuditEntry:  map[string]any{"authLevelIncrement": n.Increment},
	}, nil
}
