package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/authtree"
	"github.com/aretw0/authtree/internal/config"
	"github.com/aretw0/authtree/internal/logging"
	"github.com/aretw0/authtree/pkg/adapters/file"
	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/dsl"
	"github.com/aretw0/authtree/pkg/nodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seed writes a Login flow embedding a Pick flow, plus a self-embedding Loop flow.
func seed(t *testing.T, dir string) {
	t.Helper()
	reg := file.New(dir)
	ctx := context.Background()

	pb := dsl.New("Pick", "/")
	pb.Add(nodes.TypeChoiceCollector).Config("choices", []string{"ok", "ko"}).Success("ok").Failure("ko")
	pick, err := pb.Build()
	require.NoError(t, err)
	require.NoError(t, reg.SaveFlow(ctx, pick))

	lb := dsl.New("Login", "/")
	user := lb.Add(nodes.TypeUsernameCollector)
	embed := lb.Embed("Pick")
	user.On(nodes.OutcomeNext, embed)
	embed.Success(domain.OutcomeTrue).Failure(domain.OutcomeFalse)
	login, err := lb.Build()
	require.NoError(t, err)
	require.NoError(t, reg.SaveFlow(ctx, login))

	loop := dsl.New("Loop", "/")
	loop.Embed("Loop").Success(domain.OutcomeTrue).Failure(domain.OutcomeFalse)
	flow, err := loop.Build()
	require.NoError(t, err)
	require.NoError(t, reg.SaveFlow(ctx, flow))
}

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	seed(t, filepath.Join(dir, "flows"))

	cfg := config.Default()
	cfg.Registry.Path = filepath.Join(dir, "flows")
	cfg.Audit.Output = "none"
	cfg.Session.SigningKey = strings.Repeat("k", 32)
	cfg.Store.EncryptionKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
	return cfg, dir
}

func TestBuildApp(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Audit.Async = true

	a, err := buildApp(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer a.Close()

	// 1. The wired engine runs a flow end to end
	ctx := context.Background()
	step, err := a.engine.Advance(ctx, authtree.AdvanceRequest{
		Realm:   "/",
		Flow:    "Login",
		Answers: map[string]any{"username": "alice"},
	})
	require.NoError(t, err)
	require.NotNil(t, step.Pending)

	authID, err := a.engine.AuthID(step.State)
	require.NoError(t, err)
	step, err = a.engine.Advance(ctx, authtree.AdvanceRequest{Realm: "/", AuthID: authID, Answers: map[string]any{"choice": "ok"}})
	require.NoError(t, err)
	require.NotNil(t, step.Result)
	assert.Equal(t, domain.OutcomeSuccess, step.Result.FinalOutcome)

	// 2. Metrics saw the evaluations
	families, err := a.metrics.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "authtree_node_evaluations_total")
}

func TestBuildApp_BadEncryptionKey(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Store.EncryptionKey = "not a key"

	_, err := buildApp(context.Background(), cfg, logging.NewNop())
	assert.Error(t, err)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	cfg, dir := testConfig(t)
	path := filepath.Join(dir, "authtree.yaml")
	data := "registry:\n  path: " + cfg.Registry.Path + "\naudit:\n  output: none\nmetrics:\n  enabled: false\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestCommands(t *testing.T) {
	path := writeConfig(t)

	t.Run("version", func(t *testing.T) {
		out, err := execute(t, "version")
		require.NoError(t, err)
		assert.Contains(t, out, "authtree version")
	})

	t.Run("graph", func(t *testing.T) {
		out, err := execute(t, "graph", "--config", path, "Login")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "graph TD"))
		assert.Contains(t, out, "Pick")
	})

	t.Run("validate reports the cycle", func(t *testing.T) {
		out, err := execute(t, "validate", "--config", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 3")
		assert.Contains(t, out, "Loop")
	})

	t.Run("validate named flows", func(t *testing.T) {
		_, err := execute(t, "validate", "--config", path, "Login", "Pick")
		require.NoError(t, err)
	})

	t.Run("run", func(t *testing.T) {
		rootCmd.SetIn(strings.NewReader("alice\nok\n"))
		defer rootCmd.SetIn(nil)

		out, err := execute(t, "run", "--config", path, "--quiet", "Login")
		require.NoError(t, err)
		assert.Contains(t, out, "SUCCESS")
	})
}
