package ports

import (
	"context"

	"github.com/aretw0/authtree/pkg/domain"
)

// StateStore defines the interface for persisting flow state between requests.
// This is what makes suspension possible: the engine returns, the state is saved,
// and the next request rehydrates it (possibly on another instance).
type StateStore interface {
	// Save persists the state for a given session ID.
	Save(ctx context.Context, sessionID string, state *domain.FlowState) error

	// Load retrieves the state for a given session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist or expired.
	Load(ctx context.Context, sessionID string) (*domain.FlowState, error)

	// Delete removes the state for a given session ID.
	Delete(ctx context.Context, sessionID string) error

	// List returns the ids of active sessions.
	List(ctx context.Context) ([]string, error)
}
