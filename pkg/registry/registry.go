// Package registry maps node type names to constructors and declared outcomes.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/ports"
)

// Constructor builds a node instance from its definition.
type Constructor func(ctx context.Context, req ports.NodeRequest) (ports.Node, error)

// Type describes one node type.
type Type struct {
	Name string
	New  Constructor

	// Outcomes lists the outcomes a definition of this type may produce.
	// It receives the definition because some types derive outcomes from configuration.
	Outcomes func(def domain.NodeDefinition) []string

	// Embeds marks types whose nodes evaluate another flow.
	Embeds bool
}

// StaticOutcomes returns an Outcomes func that ignores configuration.
func StaticOutcomes(outcomes ...string) func(domain.NodeDefinition) []string {
	return func(domain.NodeDefinition) []string {
		return append([]string(nil), outcomes...)
	}
}

// Registry manages the available node types.
// It implements ports.NodeFactory, ports.OutcomeCatalog and ports.EmbedderCatalog.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Type
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]Type),
	}
}

// Register adds a node type to the registry.
// If a type with the same name exists, it is overwritten.
func (r *Registry) Register(t Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t.Name] = t
}

// Create looks up the definition's type and constructs the node.
func (r *Registry) Create(ctx context.Context, req ports.NodeRequest) (ports.Node, error) {
	r.mu.RLock()
	t, ok := r.types[req.Definition.Type]
	r.mu.RUnlock()

	if !ok || t.New == nil {
		return nil, fmt.Errorf("node type not registered: %s", req.Definition.Type)
	}

	node, err := t.New(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s node %s: %w", req.Definition.Type, req.Definition.ID, err)
	}
	return node, nil
}

// Outcomes returns the declared outcomes for def, and false when its type is unknown
// or declares nothing.
func (r *Registry) Outcomes(def domain.NodeDefinition) ([]string, bool) {
	r.mu.RLock()
	t, ok := r.types[def.Type]
	r.mu.RUnlock()

	if !ok || t.Outcomes == nil {
		return nil, false
	}
	return t.Outcomes(def), true
}

// Embeds reports whether nodeType is registered as a flow embedder.
func (r *Registry) Embeds(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[nodeType].Embeds
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
