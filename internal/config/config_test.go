package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Engine.MaxEmbeddingDepth)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "file", cfg.Registry.Driver)
	assert.True(t, cfg.Audit.NodeEnabled)
	assert.Equal(t, 15*time.Minute, cfg.Store.TTL)
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authtree.yaml")
	content := `
log:
  level: debug
engine:
  max_embedding_depth: 4
store:
  driver: redis
  ttl: 30m
audit:
  topics: [authentication]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 4, cfg.Engine.MaxEmbeddingDepth)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Store.TTL)
	assert.Equal(t, []string{"authentication"}, cfg.Audit.Topics)
	// untouched sections keep defaults
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authtree.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":{"addr":":9999"}}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AUTHTREE_LOG_LEVEL", "warn")
	t.Setenv("AUTHTREE_MAX_EMBEDDING_DEPTH", "3")
	t.Setenv("AUTHTREE_AUDIT_FLOW_ENABLED", "false")
	t.Setenv("AUTHTREE_STORE_TTL", "1h")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Engine.MaxEmbeddingDepth)
	assert.False(t, cfg.Audit.FlowEnabled)
	assert.Equal(t, time.Hour, cfg.Store.TTL)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("AUTHTREE_MAX_EMBEDDING_DEPTH", "deep")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "etcd"
	cfg.Registry.Driver = "postgres"
	cfg.Engine.MaxEmbeddingDepth = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etcd")
	assert.Contains(t, err.Error(), "database_url")
	assert.Contains(t, err.Error(), "max_embedding_depth")
}
