package authtree_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/authtree"
	"github.com/aretw0/authtree/internal/audit"
	"github.com/aretw0/authtree/pkg/adapters/memory"
	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/dsl"
	"github.com/aretw0/authtree/pkg/nodes"
	"github.com/aretw0/authtree/pkg/ports"
	"github.com/aretw0/authtree/pkg/registry"
	"github.com/aretw0/authtree/pkg/session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sinks "github.com/aretw0/authtree/pkg/adapters/audit"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

// loginFlow collects a username and a password, then raises the auth level to 10.
func loginFlow(t *testing.T) *domain.Flow {
	t.Helper()
	b := dsl.New("Login", "/")
	user := b.Add(nodes.TypeUsernameCollector).Named("Username")
	pass := b.Add(nodes.TypePasswordCollector).Named("Password")
	level := b.Add(nodes.TypeModifyAuthLevel).Config("authLevelIncrement", 10)
	check := b.Add(nodes.TypeAuthLevelDecision).Config("authLevelRequirement", 10)

	user.On(nodes.OutcomeNext, pass)
	pass.On(nodes.OutcomeNext, level)
	level.On(nodes.OutcomeNext, check)
	check.Success(domain.OutcomeTrue).Failure(domain.OutcomeFalse)

	flow, err := b.Build()
	require.NoError(t, err)
	return flow
}

func newEngine(t *testing.T, flows ports.FlowRegistry, opts ...authtree.Option) *authtree.Engine {
	t.Helper()
	opts = append([]authtree.Option{authtree.WithSigningKey(testKey, time.Minute)}, opts...)
	eng, err := authtree.New(flows, nodes.NewRegistry(), opts...)
	require.NoError(t, err)
	return eng
}

func TestEngine_Advance_Login(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	publisher := sinks.NewChannelSink(16)
	eng := newEngine(t, memory.NewRegistry(loginFlow(t)),
		authtree.WithStateStore(store),
		authtree.WithAuditPublisher(sinks.NewPublisher(publisher), nil, nil),
	)

	// 1. Start: the username collector suspends
	step, err := eng.Advance(ctx, authtree.AdvanceRequest{Realm: "/", Flow: "Login", ClientIP: "10.0.0.1"})
	require.NoError(t, err)
	require.NotNil(t, step.Pending)
	assert.Equal(t, domain.CallbackName, step.Pending.Callbacks[0].Type)

	authID, err := eng.AuthID(step.State)
	require.NoError(t, err)

	stored, err := store.Load(ctx, step.State.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingInput, stored.Status)
	assert.Equal(t, "10.0.0.1", stored.ClientIP)

	// 2. Username: the password collector suspends
	step, err = eng.Advance(ctx, authtree.AdvanceRequest{
		Realm:   "/",
		AuthID:  authID,
		Answers: map[string]any{"username": "alice"},
	})
	require.NoError(t, err)
	require.NotNil(t, step.Pending)
	assert.Equal(t, domain.CallbackPassword, step.Pending.Callbacks[0].Type)

	// 3. Password: the rest runs without input
	step, err = eng.Advance(ctx, authtree.AdvanceRequest{
		Realm:   "/",
		AuthID:  authID,
		Answers: map[string]any{"password": "s3cret"},
	})
	require.NoError(t, err)
	require.NotNil(t, step.Result)
	assert.Equal(t, domain.OutcomeSuccess, step.Result.FinalOutcome)
	assert.Equal(t, "alice", step.State.SharedState["username"])

	// 4. The password never reaches the store
	stored, err = store.Load(ctx, step.State.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.NotContains(t, stored.SharedState, "password")

	// 5. Replaying a finished authentication is refused
	_, err = eng.Advance(ctx, authtree.AdvanceRequest{Realm: "/", AuthID: authID, Answers: map[string]any{"password": "again"}})
	var done *domain.FlowAlreadyCompletedError
	require.ErrorAs(t, err, &done)
	assert.Equal(t, domain.OutcomeSuccess, done.Outcome)

	// 6. The flow completion was audited with the client address
	var names []string
	var tree sinks.Record
	for len(publisher.Records()) > 0 {
		rec := <-publisher.Records()
		names = append(names, rec.EventName)
		if rec.EventName == audit.EventTreeLoginCompleted {
			tree = rec
		}
	}
	assert.Contains(t, names, audit.EventNodeLoginCompleted)
	assert.Equal(t, "10.0.0.1", tree.ClientIP)
	assert.Equal(t, step.State.SessionID, tree.SessionID)
}

func TestEngine_Advance_Rejects(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, memory.NewRegistry(loginFlow(t)))

	step, err := eng.Advance(ctx, authtree.AdvanceRequest{Realm: "/", Flow: "Login"})
	require.NoError(t, err)
	authID, err := eng.AuthID(step.State)
	require.NoError(t, err)

	t.Run("Other realm", func(t *testing.T) {
		_, err := eng.Advance(ctx, authtree.AdvanceRequest{Realm: "/other", AuthID: authID})
		assert.ErrorIs(t, err, domain.ErrInvalidAuthID)
	})

	t.Run("Garbage auth id", func(t *testing.T) {
		_, err := eng.Advance(ctx, authtree.AdvanceRequest{Realm: "/", AuthID: "nope"})
		assert.ErrorIs(t, err, domain.ErrInvalidAuthID)
	})

	t.Run("Unknown flow", func(t *testing.T) {
		_, err := eng.Advance(ctx, authtree.AdvanceRequest{Realm: "/", Flow: "Missing"})
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	})

	t.Run("Missing flow name", func(t *testing.T) {
		_, err := eng.Advance(ctx, authtree.AdvanceRequest{Realm: "/"})
		assert.Error(t, err)
	})

	t.Run("Oversized answer", func(t *testing.T) {
		_, err := eng.Advance(ctx, authtree.AdvanceRequest{
			Realm:   "/",
			AuthID:  authID,
			Answers: map[string]any{"username": strings.Repeat("a", 5000)},
		})
		assert.Error(t, err)

		// The session is still waiting for the username
		st, err := eng.Session(ctx, "/", authID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAwaitingInput, st.Status)
	})

	t.Run("Auth id from another engine", func(t *testing.T) {
		codec, err := session.NewAuthIDCodec([]byte("ffffffffffffffffffffffffffffffff"), time.Minute)
		require.NoError(t, err)
		forged, err := codec.Encode(step.State.SessionID, "/")
		require.NoError(t, err)

		_, err = eng.Advance(ctx, authtree.AdvanceRequest{Realm: "/", AuthID: forged})
		assert.ErrorIs(t, err, domain.ErrInvalidAuthID)
	})
}

func TestEngine_InnerTree(t *testing.T) {
	ctx := context.Background()

	// Inner: choose "ok" to succeed
	ib := dsl.New("Pick", "/")
	ib.Add(nodes.TypeChoiceCollector).
		Config("choices", []string{"ok", "ko"}).
		Success("ok").
		Failure("ko")
	inner, err := ib.Build()
	require.NoError(t, err)

	// Outer: username, then the inner tree
	ob := dsl.New("Outer", "/")
	user := ob.Add(nodes.TypeUsernameCollector)
	embed := ob.Embed("Pick")
	user.On(nodes.OutcomeNext, embed)
	embed.Success(domain.OutcomeTrue).Failure(domain.OutcomeFalse)
	outer, err := ob.Build()
	require.NoError(t, err)

	flows := memory.NewRegistry(inner, outer)
	eng := newEngine(t, flows)

	step, err := eng.Advance(ctx, authtree.AdvanceRequest{
		Realm:   "/",
		Flow:    "Outer",
		Answers: map[string]any{"username": "bob"},
	})
	require.NoError(t, err)
	require.NotNil(t, step.Pending)
	assert.Equal(t, domain.CallbackChoice, step.Pending.Callbacks[0].Type)
	assert.Len(t, step.State.Frames, 1)

	authID, err := eng.AuthID(step.State)
	require.NoError(t, err)

	step, err = eng.Advance(ctx, authtree.AdvanceRequest{Realm: "/", AuthID: authID, Answers: map[string]any{"choice": "ko"}})
	require.NoError(t, err)
	require.NotNil(t, step.Result)
	assert.Equal(t, domain.OutcomeFailure, step.Result.FinalOutcome)

	// Embedding Outer into Pick would close a cycle
	pickNode := inner.Entry()
	err = eng.ValidateEmbedding(ctx, "/", "Pick", pickNode, "Outer")
	var cfgErr *domain.ConfigurationValidationError
	require.ErrorAs(t, err, &cfgErr)

	// Embedding a flow into itself too
	err = eng.ValidateEmbedding(ctx, "/", "Outer", embed.ID(), "Outer")
	require.ErrorAs(t, err, &cfgErr)

	// Embedding Pick is fine
	require.NoError(t, eng.ValidateEmbedding(ctx, "/", "Outer", embed.ID(), "Pick"))
	require.NoError(t, eng.ValidateFlow(ctx, outer))

	// Unknown targets are rejected
	err = eng.ValidateEmbedding(ctx, "/", "Outer", uuid.New(), "Nope")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)

	// So is an outer flow that cannot be loaded
	err = eng.ValidateEmbedding(ctx, "/", "Missing", embed.ID(), "Pick")
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "Missing", cfgErr.Flow)
	assert.Equal(t, embed.ID(), cfgErr.NodeID)
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
}

func TestEngine_CustomEmbedderIsGuarded(t *testing.T) {
	ctx := context.Background()
	factory := nodes.NewRegistry()
	factory.Register(registry.Type{
		Name: "SubFlow",
		New: func(_ context.Context, req ports.NodeRequest) (ports.Node, error) {
			name, _ := req.Definition.Config["tree"].(string)
			return &nodes.InnerTree{Tree: name}, nil
		},
		Outcomes: registry.StaticOutcomes(domain.OutcomeTrue, domain.OutcomeFalse),
		Embeds:   true,
	})

	b := dsl.New("X", "/")
	b.Add("SubFlow").Config("tree", "X").Success(domain.OutcomeTrue).Failure(domain.OutcomeFalse)
	x, err := b.Build()
	require.NoError(t, err)

	flows := memory.NewRegistry()
	eng, err := authtree.New(flows, factory, authtree.WithSigningKey(testKey, time.Minute))
	require.NoError(t, err)

	// The registered type is inspected like an inner tree node
	var cfgErr *domain.ConfigurationValidationError
	require.ErrorAs(t, eng.SaveFlow(ctx, x), &cfgErr)
	assert.Equal(t, x.Entry(), cfgErr.NodeID)
	_, err = flows.GetFlow(ctx, "/", "X")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
}

func TestEngine_SaveFlow(t *testing.T) {
	ctx := context.Background()
	flows := memory.NewRegistry()
	eng := newEngine(t, flows)

	b := dsl.New("Loop", "/")
	b.Embed("Loop").Success(domain.OutcomeTrue).Failure(domain.OutcomeFalse)
	loop, err := b.Build()
	require.NoError(t, err)

	// 1. A self-embedding flow is not stored
	require.Error(t, eng.SaveFlow(ctx, loop))
	_, err = flows.GetFlow(ctx, "/", "Loop")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)

	// 2. A valid flow is stored and can be graphed
	require.NoError(t, eng.SaveFlow(ctx, loginFlow(t)))
	out, err := eng.Graph(ctx, "/", "Login")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "graph TD"))
}
