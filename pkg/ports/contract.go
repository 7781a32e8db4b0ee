package ports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/authtree/pkg/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractState(sessionID string) *domain.FlowState {
	return &domain.FlowState{
		SessionID:     sessionID,
		Realm:         "/",
		Flow:          "Login",
		CurrentNodeID: uuid.New(),
		Status:        domain.StatusAwaitingInput,
		SharedState:   map[string]any{},
	}
}

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		// 1. Create a state
		state := contractState(sessionID)
		state.SharedState["username"] = "demo"
		state.SharedState["authLevel"] = 2
		state.TransientState = map[string]any{"password": "secret"}
		state.Frames = []domain.Frame{{Flow: "Outer", NodeID: uuid.New()}}

		// 2. Save
		err := store.Save(ctx, sessionID, state)
		require.NoError(t, err, "Save should not return error")

		// 3. Load
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.CurrentNodeID, loaded.CurrentNodeID)
		assert.Equal(t, state.Status, loaded.Status)
		assert.Equal(t, state.Frames, loaded.Frames)
		assert.Equal(t, "demo", loaded.SharedState["username"])
		// JSON persistence may convert ints to float64; only existence is part of the contract.
		assert.NotNil(t, loaded.SharedState["authLevel"])
		assert.NotContains(t, loaded.TransientState, "password", "transient state must never be persisted")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, contractState(sessionID))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, contractState(id1))
		_ = store.Save(ctx, id2, contractState(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

// RunFlowRegistryContract verifies a FlowRegistry that has been seeded with flow.
func RunFlowRegistryContract(t *testing.T, registry FlowRegistry, flow *domain.Flow) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetFlow_Success", func(t *testing.T) {
		got, err := registry.GetFlow(ctx, flow.Realm(), flow.Name())
		require.NoError(t, err)
		assert.Equal(t, flow.Entry(), got.Entry())
		assert.Equal(t, flow.NodeIDs(), got.NodeIDs())
		for _, id := range flow.NodeIDs() {
			assert.Equal(t, flow.OutcomesOf(id), got.OutcomesOf(id))
		}
	})

	t.Run("GetFlow_NotFound", func(t *testing.T) {
		_, err := registry.GetFlow(ctx, flow.Realm(), "does-not-exist")
		assert.True(t, errors.Is(err, domain.ErrFlowNotFound), "expected ErrFlowNotFound, got %v", err)
	})

	t.Run("GetFlow_OtherRealm", func(t *testing.T) {
		_, err := registry.GetFlow(ctx, flow.Realm()+"-other", flow.Name())
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	})
}
