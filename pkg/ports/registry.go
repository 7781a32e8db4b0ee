package ports

import (
	"context"

	"github.com/aretw0/authtree/pkg/domain"
)

// FlowRegistry resolves immutable flows by identity.
type FlowRegistry interface {
	// GetFlow returns the flow (realm, name), or domain.ErrFlowNotFound.
	GetFlow(ctx context.Context, realm, name string) (*domain.Flow, error)
}

// FlowLister is implemented by registries that can enumerate their flows.
type FlowLister interface {
	ListFlows(ctx context.Context, realm string) ([]string, error)
}

// FlowWriter is implemented by registries that accept new flow versions.
// Saving builds a new Flow value; existing values are never mutated.
type FlowWriter interface {
	SaveFlow(ctx context.Context, flow *domain.Flow) error
}
