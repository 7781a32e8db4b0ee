package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/authtree/pkg/domain"
)

type flowKey struct {
	realm string
	name  string
}

// Registry implements ports.FlowRegistry, FlowLister and FlowWriter over a map.
// Flows are immutable, so they are shared without copying.
type Registry struct {
	mu    sync.RWMutex
	flows map[flowKey]*domain.Flow
}

// NewRegistry creates a registry holding flows.
func NewRegistry(flows ...*domain.Flow) *Registry {
	r := &Registry{flows: make(map[flowKey]*domain.Flow, len(flows))}
	for _, f := range flows {
		r.flows[flowKey{f.Realm(), f.Name()}] = f
	}
	return r
}

// GetFlow returns the flow (realm, name) or domain.ErrFlowNotFound.
func (r *Registry) GetFlow(ctx context.Context, realm, name string) (*domain.Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.flows[flowKey{realm, name}]
	if !ok {
		return nil, domain.ErrFlowNotFound
	}
	return f, nil
}

// SaveFlow replaces the flow with the same identity.
func (r *Registry) SaveFlow(ctx context.Context, flow *domain.Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[flowKey{flow.Realm(), flow.Name()}] = flow
	return nil
}

// ListFlows returns the flow names of realm, sorted.
func (r *Registry) ListFlows(ctx context.Context, realm string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for k := range r.flows {
		if k.realm == realm {
			names = append(names, k.name)
		}
	}
	sort.Strings(names)
	return names, nil
}
