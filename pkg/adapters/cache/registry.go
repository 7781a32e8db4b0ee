// Package cache wraps a flow registry with an in-process, time-bounded cache.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/ports"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL bounds how stale a cached flow can be.
const DefaultTTL = time.Minute

type entry struct {
	flow    *domain.Flow
	expires time.Time
}

// Registry caches flows returned by an underlying registry.
// Concurrent misses for the same flow share one backend lookup.
// Flows are immutable, so cached values are handed out as-is.
type Registry struct {
	next  ports.FlowRegistry
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry
}

// Option configures the Registry.
type Option func(*Registry)

// WithTTL sets how long flows stay cached.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New wraps next.
func New(next ports.FlowRegistry, opts ...Option) *Registry {
	r := &Registry{
		next:    next,
		ttl:     DefaultTTL,
		now:     time.Now,
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func cacheKey(realm, name string) string {
	return realm + "\x00" + name
}

// GetFlow returns the cached flow or loads it from the underlying registry.
// Lookup errors, including domain.ErrFlowNotFound, are never cached.
func (r *Registry) GetFlow(ctx context.Context, realm, name string) (*domain.Flow, error) {
	key := cacheKey(realm, name)

	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if ok && r.now().Before(e.expires) {
		return e.flow, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		flow, err := r.next.GetFlow(ctx, realm, name)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.entries[key] = entry{flow: flow, expires: r.now().Add(r.ttl)}
		r.mu.Unlock()
		return flow, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Flow), nil
}

// SaveFlow writes through to the underlying registry and refreshes the cache.
func (r *Registry) SaveFlow(ctx context.Context, flow *domain.Flow) error {
	w, ok := r.next.(ports.FlowWriter)
	if !ok {
		return ErrReadOnly
	}
	if err := w.SaveFlow(ctx, flow); err != nil {
		return err
	}
	r.mu.Lock()
	r.entries[cacheKey(flow.Realm(), flow.Name())] = entry{flow: flow, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()
	return nil
}

// ListFlows delegates to the underlying registry, uncached.
func (r *Registry) ListFlows(ctx context.Context, realm string) ([]string, error) {
	l, ok := r.next.(ports.FlowLister)
	if !ok {
		return nil, ErrNotListable
	}
	return l.ListFlows(ctx, realm)
}

// Invalidate drops the cached flow (realm, name).
func (r *Registry) Invalidate(realm, name string) {
	r.mu.Lock()
	delete(r.entries, cacheKey(realm, name))
	r.mu.Unlock()
}

// Warm loads every flow of realm concurrently. The first failure is returned.
func (r *Registry) Warm(ctx context.Context, realm string) error {
	names, err := r.ListFlows(ctx, realm)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, name := range names {
		g.Go(func() error {
			_, err := r.GetFlow(gctx, realm, name)
			return err
		})
	}
	return g.Wait()
}
