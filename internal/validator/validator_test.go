package validator_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/authtree/internal/validator"
	"github.com/aretw0/authtree/pkg/adapters/memory"
	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/dsl"
	"github.com/aretw0/authtree/pkg/nodes"
	"github.com/aretw0/authtree/pkg/ports"
	"github.com/aretw0/authtree/pkg/registry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embedding builds name = collector -> embed(targets[0]) -> embed(targets[1]) ... -> SUCCESS
// and returns the ids of the embedding nodes.
func embedding(t *testing.T, name string, targets ...string) (*domain.Flow, []uuid.UUID) {
	t.Helper()
	b := dsl.New(name, "/")
	user := b.Add(nodes.TypeUsernameCollector)
	if len(targets) == 0 {
		user.Success(nodes.OutcomeNext)
	}

	var ids []uuid.UUID
	var prev *dsl.NodeBuilder
	for i, target := range targets {
		embed := b.Embed(target).Failure(domain.OutcomeFalse)
		if i == 0 {
			user.On(nodes.OutcomeNext, embed)
		} else {
			prev.On(domain.OutcomeTrue, embed)
		}
		ids = append(ids, embed.ID())
		prev = embed
	}
	if prev != nil {
		prev.Success(domain.OutcomeTrue)
	}

	flow, err := b.Build()
	require.NoError(t, err)
	return flow, ids
}

// countingFactory wraps the reference node registry and counts constructions per type.
type countingFactory struct {
	mu      sync.Mutex
	next    ports.NodeFactory
	created map[string]int
	fail    map[string]error
}

func newCountingFactory() *countingFactory {
	return &countingFactory{next: nodes.NewRegistry(), created: map[string]int{}, fail: map[string]error{}}
}

func (f *countingFactory) Create(ctx context.Context, req ports.NodeRequest) (ports.Node, error) {
	f.mu.Lock()
	f.created[req.Definition.Type]++
	f.mu.Unlock()
	if err := f.fail[req.Flow]; err != nil {
		return nil, err
	}
	return f.next.Create(ctx, req)
}

func guard(factory ports.NodeFactory, flows ...*domain.Flow) *validator.Guard {
	return validator.NewGuard(memory.NewRegistry(flows...), factory)
}

func requireRejected(t *testing.T, err error) *domain.ConfigurationValidationError {
	t.Helper()
	var cfgErr *domain.ConfigurationValidationError
	require.ErrorAs(t, err, &cfgErr)
	return cfgErr
}

func TestValidateEmbedding_SelfEmbeddingIsRejected(t *testing.T) {
	x, ids := embedding(t, "X", "X")
	g := guard(newCountingFactory(), x)

	err := g.ValidateEmbedding(context.Background(), x, ids[0], "X")
	cfgErr := requireRejected(t, err)
	assert.Equal(t, "X", cfgErr.Flow)
	assert.Equal(t, ids[0], cfgErr.NodeID)
}

func TestValidateEmbedding_TwoHopCycleIsRejected(t *testing.T) {
	y, _ := embedding(t, "Y", "X")
	x, ids := embedding(t, "X", "Y")

	// X is not yet persisted: the guard must still see the cycle through the value being saved.
	g := guard(newCountingFactory(), y)
	requireRejected(t, g.ValidateEmbedding(context.Background(), x, ids[0], "Y"))
}

func TestValidateEmbedding_ChainWithoutCycleIsAccepted(t *testing.T) {
	z, _ := embedding(t, "Z")
	y, _ := embedding(t, "Y", "Z")
	x, ids := embedding(t, "X", "Y")
	g := guard(newCountingFactory(), x, y, z)

	assert.NoError(t, g.ValidateEmbedding(context.Background(), x, ids[0], "Y"))
	assert.NoError(t, g.ValidateFlow(context.Background(), x))
}

func TestValidateEmbedding_NodeIDCollisionIsRejected(t *testing.T) {
	x, ids := embedding(t, "X", "Y")

	// Y reuses the id of X's embedding node
	b := dsl.New("Y", "/")
	b.AddWithID(ids[0], nodes.TypeUsernameCollector).Success(nodes.OutcomeNext)
	y, err := b.Build()
	require.NoError(t, err)

	g := guard(newCountingFactory(), y)
	cfgErr := requireRejected(t, g.ValidateEmbedding(context.Background(), x, ids[0], "Y"))
	assert.Contains(t, cfgErr.Reason, ids[0].String())
}

func TestValidateEmbedding_TransitiveNodeCollisionIsRejected(t *testing.T) {
	x, ids := embedding(t, "X", "Y")
	y, _ := embedding(t, "Y", "Z")

	b := dsl.New("Z", "/")
	b.AddWithID(ids[0], nodes.TypeUsernameCollector).Success(nodes.OutcomeNext)
	z, err := b.Build()
	require.NoError(t, err)

	g := guard(newCountingFactory(), y, z)
	requireRejected(t, g.ValidateEmbedding(context.Background(), x, ids[0], "Y"))
}

func TestValidateEmbedding_UnrelatedCycleTerminates(t *testing.T) {
	// Y and Z embed each other; X only embeds Y.
	y, _ := embedding(t, "Y", "Z")
	z, _ := embedding(t, "Z", "Y")
	x, ids := embedding(t, "X", "Y")
	g := guard(newCountingFactory(), y, z)

	assert.NoError(t, g.ValidateEmbedding(context.Background(), x, ids[0], "Y"))
}

func TestValidateEmbedding_FailsClosed(t *testing.T) {
	t.Run("missing target", func(t *testing.T) {
		x, ids := embedding(t, "X", "Ghost")
		err := guard(newCountingFactory()).ValidateEmbedding(context.Background(), x, ids[0], "Ghost")
		requireRejected(t, err)
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	})

	t.Run("missing flow deeper in the chain", func(t *testing.T) {
		y, _ := embedding(t, "Y", "Ghost")
		x, ids := embedding(t, "X", "Y")
		err := guard(newCountingFactory(), y).ValidateEmbedding(context.Background(), x, ids[0], "Y")
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	})

	t.Run("node construction error", func(t *testing.T) {
		z, _ := embedding(t, "Z")
		y, _ := embedding(t, "Y", "Z")
		x, ids := embedding(t, "X", "Y")
		factory := newCountingFactory()
		factory.fail["Y"] = errors.New("service lookup failed")

		err := guard(factory, y, z).ValidateEmbedding(context.Background(), x, ids[0], "Y")
		requireRejected(t, err)
		assert.ErrorIs(t, err, domain.ErrNodeCreation)
	})

	t.Run("registry error", func(t *testing.T) {
		x, ids := embedding(t, "X", "Y")
		broken := registryFunc(func(context.Context, string, string) (*domain.Flow, error) {
			return nil, errors.New("connection refused")
		})
		err := validator.NewGuard(broken, newCountingFactory()).ValidateEmbedding(context.Background(), x, ids[0], "Y")
		requireRejected(t, err)
	})

	t.Run("depth exceeded", func(t *testing.T) {
		var flows []*domain.Flow
		for i := 1; i < 6; i++ {
			f, _ := embedding(t, fmt.Sprintf("F%d", i), fmt.Sprintf("F%d", i+1))
			flows = append(flows, f)
		}
		last, _ := embedding(t, "F6")
		flows = append(flows, last)
		x, ids := embedding(t, "X", "F1")

		g := validator.NewGuard(memory.NewRegistry(flows...), newCountingFactory(), validator.WithMaxDepth(3))
		err := g.ValidateEmbedding(context.Background(), x, ids[0], "F1")
		requireRejected(t, err)
		assert.ErrorIs(t, err, domain.ErrEmbeddingDepthExceeded)

		g = validator.NewGuard(memory.NewRegistry(flows...), newCountingFactory())
		assert.NoError(t, g.ValidateEmbedding(context.Background(), x, ids[0], "F1"))
	})
}

func TestValidateEmbedding_OnlyEmbeddingNodesAreConstructed(t *testing.T) {
	z, _ := embedding(t, "Z")
	y, _ := embedding(t, "Y", "Z")
	x, ids := embedding(t, "X", "Y")
	factory := newCountingFactory()

	require.NoError(t, guard(factory, y, z).ValidateEmbedding(context.Background(), x, ids[0], "Y"))
	assert.Zero(t, factory.created[nodes.TypeUsernameCollector])
	assert.NotZero(t, factory.created[domain.NodeTypeInnerTree])
}

func TestValidateFlow(t *testing.T) {
	z, _ := embedding(t, "Z")
	y, _ := embedding(t, "Y", "X")
	x, ids := embedding(t, "X", "Z", "Y")
	g := guard(newCountingFactory(), x, y, z)

	err := g.ValidateFlow(context.Background(), x)
	cfgErr := requireRejected(t, err)
	assert.Equal(t, ids[1], cfgErr.NodeID, "only the embedding of Y closes a cycle")
}

type registryFunc func(ctx context.Context, realm, name string) (*domain.Flow, error)

func (f registryFunc) GetFlow(ctx context.Context, realm, name string) (*domain.Flow, error) {
	return f(ctx, realm, name)
}

// diamonds builds name as a chain of k choices whose two branches rejoin at the next choice.
func diamonds(t *testing.T, name string, k int) *domain.Flow {
	t.Helper()
	b := dsl.New(name, "/")
	choice := func() *dsl.NodeBuilder {
		return b.Add(nodes.TypeChoiceCollector).Config("choices", []string{"a", "b"})
	}
	join := choice()
	for i := 0; i < k; i++ {
		left := b.Add(nodes.TypeUsernameCollector)
		right := b.Add(nodes.TypePasswordCollector)
		next := choice()
		join.On("a", left).On("b", right)
		left.On(nodes.OutcomeNext, next)
		right.On(nodes.OutcomeNext, next)
		join = next
	}
	join.Success("a").Failure("b")

	flow, err := b.Build()
	require.NoError(t, err)
	return flow
}

func TestValidateEmbedding_RejoiningBranchesStayLinear(t *testing.T) {
	x := diamonds(t, "X", 30)
	o, ids := embedding(t, "O", "X", "X")
	g := guard(newCountingFactory(), x)

	start := time.Now()
	require.NoError(t, g.ValidateEmbedding(context.Background(), o, ids[0], "X"))
	require.NoError(t, g.ValidateFlow(context.Background(), o))
	assert.Less(t, time.Since(start), time.Second)
}

func TestValidateFlow_RegisteredEmbedderType(t *testing.T) {
	factory := registry.NewRegistry()
	factory.Register(registry.Type{
		Name: "SubFlow",
		New: func(_ context.Context, req ports.NodeRequest) (ports.Node, error) {
			name, _ := req.Definition.Config["tree"].(string)
			return &nodes.InnerTree{Tree: name}, nil
		},
		Embeds: true,
	})

	b := dsl.New("X", "/")
	sub := b.Add("SubFlow").Config("tree", "X").Success(domain.OutcomeTrue).Failure(domain.OutcomeFalse)
	x, err := b.Build()
	require.NoError(t, err)

	// 1. The factory declares the type: the self-embedding is found.
	g := guard(factory, x)
	assert.True(t, g.Embeds("SubFlow"))
	cfgErr := requireRejected(t, g.ValidateFlow(context.Background(), x))
	assert.Equal(t, sub.ID(), cfgErr.NodeID)

	// 2. A factory that declares nothing still lets the guard opt in by type.
	plain := ports.NodeFactoryFunc(factory.Create)
	assert.False(t, guard(plain, x).Embeds("SubFlow"))
	g = validator.NewGuard(memory.NewRegistry(x), plain, validator.WithEmbedderTypes("SubFlow"))
	requireRejected(t, g.ValidateFlow(context.Background(), x))
}
