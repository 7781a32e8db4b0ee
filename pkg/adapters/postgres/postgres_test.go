package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/aretw0/authtree/pkg/adapters/postgres"
	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/dsl"
	"github.com/aretw0/authtree/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRegistry connects to AUTHTREE_TEST_DATABASE_URL and recreates the schema.
func newRegistry(t *testing.T) *postgres.Registry {
	t.Helper()
	url := os.Getenv("AUTHTREE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("AUTHTREE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	registry, err := postgres.Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(registry.Close)

	require.NoError(t, registry.DropSchema(ctx))
	require.NoError(t, registry.CreateSchema(ctx))
	return registry
}

func flow(t *testing.T, name, realm string) *domain.Flow {
	t.Helper()
	b := dsl.New(name, realm)
	b.Add("UsernameCollectorNode").Success("outcome")
	f, err := b.Build()
	require.NoError(t, err)
	return f
}

func TestRegistry_Contract(t *testing.T) {
	registry := newRegistry(t)
	login := flow(t, "Login", "/alpha")
	require.NoError(t, registry.SaveFlow(context.Background(), login))

	ports.RunFlowRegistryContract(t, registry, login)
}

func TestRegistry_SaveReplacesAndLists(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.SaveFlow(ctx, flow(t, "B", "/")))
	require.NoError(t, registry.SaveFlow(ctx, flow(t, "A", "/")))

	replacement := flow(t, "A", "/")
	require.NoError(t, registry.SaveFlow(ctx, replacement))

	got, err := registry.GetFlow(ctx, "/", "A")
	require.NoError(t, err)
	assert.Equal(t, replacement.Entry(), got.Entry())

	names, err := registry.ListFlows(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names)

	require.NoError(t, registry.DeleteFlow(ctx, "/", "A"))
	_, err = registry.GetFlow(ctx, "/", "A")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
}
