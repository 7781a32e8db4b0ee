package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/authtree"
	"github.com/aretw0/authtree/internal/config"
	"github.com/aretw0/authtree/pkg/adapters/cache"
	"github.com/aretw0/authtree/pkg/adapters/file"
	"github.com/aretw0/authtree/pkg/adapters/memory"
	"github.com/aretw0/authtree/pkg/adapters/postgres"
	redisstore "github.com/aretw0/authtree/pkg/adapters/redis"
	"github.com/aretw0/authtree/pkg/nodes"
	"github.com/aretw0/authtree/pkg/observability"
	"github.com/aretw0/authtree/pkg/persistence/middleware"
	"github.com/aretw0/authtree/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	sinks "github.com/aretw0/authtree/pkg/adapters/audit"
)

// app is a fully wired engine plus everything that must be closed with it.
type app struct {
	engine  *authtree.Engine
	flows   *cache.Registry
	metrics *prometheus.Registry
	closers []func() error
}

// Close releases resources in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// buildApp wires the engine described by cfg.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// 1. Flow registry, behind the cache
	var backend ports.FlowRegistry
	switch cfg.Registry.Driver {
	case "postgres":
		pg, err := postgres.Connect(ctx, cfg.Registry.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.CreateSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
		backend = pg
	default:
		backend = file.New(cfg.Registry.Path)
	}
	a.flows = cache.New(backend, cache.WithTTL(cfg.Registry.CacheTTL))

	// 2. Session store, optionally encrypted
	opts := []authtree.Option{
		authtree.WithLogger(logger),
		authtree.WithMaxEmbeddingDepth(cfg.Engine.MaxEmbeddingDepth),
		authtree.WithValidationDepth(cfg.Engine.ValidationDepth),
	}

	var store ports.StateStore
	switch cfg.Store.Driver {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
		})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Store.RedisAddr, err)
		}
		store = redisstore.NewFromClient(client,
			redisstore.WithPrefix(cfg.Store.RedisPrefix),
			redisstore.WithTTL(cfg.Store.TTL),
		)
		opts = append(opts, authtree.WithDistributedLocker(
			redisstore.NewLocker(client, cfg.Store.RedisPrefix),
			cfg.Session.LockTTL,
		))
	default:
		store = memory.NewStore()
	}
	if cfg.Store.EncryptionKey != "" {
		key, err := middleware.DecodeKey(cfg.Store.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid store.encryption_key: %w", err)
		}
		store = middleware.Chain(store, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	opts = append(opts, authtree.WithStateStore(store))

	if cfg.Session.SigningKey != "" {
		opts = append(opts, authtree.WithSigningKey([]byte(cfg.Session.SigningKey), cfg.Store.TTL))
	} else {
		logger.Warn("no session.signing_key configured: auth ids will not survive a restart")
	}

	// 3. Audit
	sink, closeSink, err := auditSink(cfg.Audit)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeSink)

	var dispatcher *sinks.Dispatcher
	if cfg.Audit.Async {
		dispatcher = sinks.NewDispatcher(sinks.DispatcherConfig{
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: true,
		}, sink, logger)
		a.closers = append(a.closers, func() error { dispatcher.Close(); return nil })
		sink = dispatcher
	}

	var pubOpts []sinks.PublisherOption
	if len(cfg.Audit.Topics) > 0 {
		pubOpts = append(pubOpts, sinks.WithTopics(cfg.Audit.Topics...))
	}
	audit := cfg.Audit
	opts = append(opts, authtree.WithAuditPublisher(
		sinks.NewPublisher(sink, pubOpts...),
		ports.FlagFunc(func() bool { return audit.NodeEnabled }),
		ports.FlagFunc(func() bool { return audit.FlowEnabled }),
	))

	// 4. Metrics and lifecycle hooks
	hooks := observability.LoggingHooks(logger)
	if cfg.Metrics.Enabled {
		a.metrics = prometheus.NewRegistry()
		a.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m, err := observability.NewMetrics(a.metrics)
		if err != nil {
			return nil, err
		}
		if dispatcher != nil {
			if err := m.RegisterAuditDrops(dispatcher.Dropped); err != nil {
				return nil, err
			}
		}
		hooks = observability.Combine(hooks, m.Hooks())
	}
	opts = append(opts, authtree.WithLifecycleHooks(hooks))

	a.engine, err = authtree.New(a.flows, nodes.NewRegistry(), opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// auditSink opens the JSON lines sink named by cfg.Output.
func auditSink(cfg config.AuditConfig) (sinks.Sink, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Output {
	case "", "stderr":
		return sinks.NewJSONWriterSink(os.Stderr), noop, nil
	case "stdout":
		return sinks.NewJSONWriterSink(os.Stdout), noop, nil
	case "none":
		return sinks.NoOpSink{}, noop, nil
	}
	f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return sinks.NewJSONWriterSink(f), f.Close, nil
}
