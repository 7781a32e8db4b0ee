// Package config loads the authtree runtime configuration from YAML/JSON files and AUTHTREE_* variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Log      LogConfig      `yaml:"log" json:"log"`
	Engine   EngineConfig   `yaml:"engine" json:"engine"`
	Audit    AuditConfig    `yaml:"audit" json:"audit"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Registry RegistryConfig `yaml:"registry" json:"registry"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Session  SessionConfig  `yaml:"session" json:"session"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

type EngineConfig struct {
	// MaxEmbeddingDepth bounds live inner flow nesting.
	MaxEmbeddingDepth int `yaml:"max_embedding_depth" json:"max_embedding_depth"`
	// ValidationDepth bounds the recursion guards' walk over embedded flows.
	ValidationDepth int `yaml:"validation_depth" json:"validation_depth"`
}

type AuditConfig struct {
	NodeEnabled bool     `yaml:"node_enabled" json:"node_enabled"`
	FlowEnabled bool     `yaml:"flow_enabled" json:"flow_enabled"`
	Topics      []string `yaml:"topics" json:"topics"` // empty means every topic
	Output      string   `yaml:"output" json:"output"` // "stderr", "stdout" or a file path
	Async       bool     `yaml:"async" json:"async"`
	BufferSize  int      `yaml:"buffer_size" json:"buffer_size"`
}

type StoreConfig struct {
	Driver        string        `yaml:"driver" json:"driver"` // memory | redis
	RedisAddr     string        `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" json:"redis_password"`
	RedisPrefix   string        `yaml:"redis_prefix" json:"redis_prefix"`
	TTL           time.Duration `yaml:"ttl" json:"ttl"`
	EncryptionKey string        `yaml:"encryption_key" json:"encryption_key"` // base64, 32 bytes
}

type RegistryConfig struct {
	Driver      string        `yaml:"driver" json:"driver"` // file | postgres
	Path        string        `yaml:"path" json:"path"`
	DatabaseURL string        `yaml:"database_url" json:"database_url"`
	CacheTTL    time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

type SessionConfig struct {
	SigningKey string        `yaml:"signing_key" json:"signing_key"`
	LockTTL    time.Duration `yaml:"lock_ttl" json:"lock_ttl"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log:    LogConfig{Level: "info", Format: "text"},
		Engine: EngineConfig{MaxEmbeddingDepth: 10, ValidationDepth: 32},
		Audit: AuditConfig{
			NodeEnabled: true,
			FlowEnabled: true,
			Output:      "stderr",
			BufferSize:  256,
		},
		Store: StoreConfig{
			Driver:      "memory",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "authtree:session:",
			TTL:         15 * time.Minute,
		},
		Registry: RegistryConfig{
			Driver:   "file",
			Path:     "flows",
			CacheTTL: time.Minute,
		},
		Server:  ServerConfig{Addr: ":8080"},
		Metrics: MetricsConfig{Enabled: true},
		Session: SessionConfig{LockTTL: 10 * time.Second},
	}
}

// Load reads path (YAML unless it ends in .json) over the defaults and applies env overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if strings.ToLower(filepath.Ext(path)) == ".json" {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"AUTHTREE_LOG_LEVEL":            &cfg.Log.Level,
		"AUTHTREE_LOG_FORMAT":           &cfg.Log.Format,
		"AUTHTREE_SERVER_ADDR":          &cfg.Server.Addr,
		"AUTHTREE_STORE_DRIVER":         &cfg.Store.Driver,
		"AUTHTREE_REDIS_ADDR":           &cfg.Store.RedisAddr,
		"AUTHTREE_REDIS_PASSWORD":       &cfg.Store.RedisPassword,
		"AUTHTREE_STORE_ENCRYPTION_KEY": &cfg.Store.EncryptionKey,
		"AUTHTREE_REGISTRY_DRIVER":      &cfg.Registry.Driver,
		"AUTHTREE_REGISTRY_PATH":        &cfg.Registry.Path,
		"AUTHTREE_DATABASE_URL":         &cfg.Registry.DatabaseURL,
		"AUTHTREE_SESSION_SIGNING_KEY":  &cfg.Session.SigningKey,
		"AUTHTREE_AUDIT_OUTPUT":         &cfg.Audit.Output,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"AUTHTREE_MAX_EMBEDDING_DEPTH": &cfg.Engine.MaxEmbeddingDepth,
		"AUTHTREE_VALIDATION_DEPTH":    &cfg.Engine.ValidationDepth,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"AUTHTREE_AUDIT_NODE_ENABLED": &cfg.Audit.NodeEnabled,
		"AUTHTREE_AUDIT_FLOW_ENABLED": &cfg.Audit.FlowEnabled,
		"AUTHTREE_METRICS_ENABLED":    &cfg.Metrics.Enabled,
	}
	for key, dst := range bools {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = b
		}
	}

	if v, ok := lookup("AUTHTREE_STORE_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid AUTHTREE_STORE_TTL: %w", err)
		}
		cfg.Store.TTL = d
	}
	return nil
}

// Validate checks driver names and limits.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	switch c.Registry.Driver {
	case "file", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown registry driver %q", c.Registry.Driver))
	}
	if c.Registry.Driver == "postgres" && c.Registry.DatabaseURL == "" {
		errs = append(errs, errors.New("registry.database_url is required for the postgres driver"))
	}
	if c.Session.SigningKey != "" && len(c.Session.SigningKey) < 32 {
		errs = append(errs, errors.New("session.signing_key must be at least 32 bytes"))
	}
	if c.Engine.MaxEmbeddingDepth < 1 {
		errs = append(errs, errors.New("engine.max_embedding_depth must be positive"))
	}
	if c.Engine.ValidationDepth < 1 {
		errs = append(errs, errors.New("engine.validation_depth must be positive"))
	}
	return errors.Join(errs...)
}
