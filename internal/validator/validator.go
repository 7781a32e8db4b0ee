// Package validator implements the configuration-time recursion guards for flow embeddings.
package validator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/authtree/internal/logging"
	"github.com/aretw0/authtree/internal/visitor"
	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/ports"
	"github.com/google/uuid"
)

// DefaultMaxDepth bounds how many embedding levels a guard walks before failing closed.
const DefaultMaxDepth = 32

// Guard rejects embeddings that would let a flow evaluate itself.
type Guard struct {
	flows         ports.FlowRegistry
	factory       ports.NodeFactory
	catalog       ports.EmbedderCatalog
	maxDepth      int
	embedderTypes map[string]bool
	logger        *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithMaxDepth sets the embedding depth limit of a walk.
func WithMaxDepth(depth int) Option {
	return func(g *Guard) {
		if depth > 0 {
			g.maxDepth = depth
		}
	}
}

// WithEmbedderTypes adds node types, besides the inner tree type and the types the
// factory declares as embedders, that may embed flows.
func WithEmbedderTypes(types ...string) Option {
	return func(g *Guard) {
		for _, t := range types {
			g.embedderTypes[t] = true
		}
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGuard creates a guard resolving flows from flows and nodes from factory.
// When factory implements ports.EmbedderCatalog, its embedder types are inspected too.
func NewGuard(flows ports.FlowRegistry, factory ports.NodeFactory, opts ...Option) *Guard {
	catalog, _ := factory.(ports.EmbedderCatalog)
	g := &Guard{
		catalog:       catalog,
		flows:         flows,
		factory:       factory,
		maxDepth:      DefaultMaxDepth,
		embedderTypes: map[string]bool{domain.NodeTypeInnerTree: true},
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Embeds reports whether nodes of nodeType are inspected as flow embeddings.
// The step executor refuses to embed through any other type.
func (g *Guard) Embeds(nodeType string) bool {
	if g.embedderTypes[nodeType] {
		return true
	}
	return g.catalog != nil && g.catalog.Embeds(nodeType)
}

// ValidateEmbedding checks that node nodeID of outer may embed the flow named target.
// It rejects the embedding when a flow reachable from target already contains nodeID,
// or when target reaches outer through any chain of embeddings (including target == outer).
// Any failure to resolve a flow or construct a node rejects the embedding as well.
func (g *Guard) ValidateEmbedding(ctx context.Context, outer *domain.Flow, nodeID uuid.UUID, target string) error {
	reject := func(reason string, cause error) error {
		return &domain.ConfigurationValidationError{
			Flow:   outer.Name(),
			NodeID: nodeID,
			Reason: reason,
			Cause:  cause,
		}
	}

	// 1. Nothing reachable from target may embed the outer flow.
	found, err := g.newWalk(outer, query{flow: outer.Name()}).search(ctx, target, 0)
	if err != nil {
		return reject(fmt.Sprintf("cannot verify embedding of %q", target), err)
	}
	if found {
		return reject(fmt.Sprintf("flow %q embeds %q", target, outer.Name()), nil)
	}

	// 2. No flow reachable from target may contain the embedding node itself.
	found, err = g.newWalk(outer, query{nodeID: nodeID}).search(ctx, target, 0)
	if err != nil {
		return reject(fmt.Sprintf("cannot verify embedding of %q", target), err)
	}
	if found {
		return reject(fmt.Sprintf("flow %q already reaches node %s", target, nodeID), nil)
	}

	g.logger.Debug("embedding accepted", "realm", outer.Realm(), "flow", outer.Name(), "node_id", nodeID, "target", target)
	return nil
}

// ValidateFlow applies ValidateEmbedding to every embedding node of flow.
func (g *Guard) ValidateFlow(ctx context.Context, flow *domain.Flow) error {
	var errs []error
	for _, id := range flow.NodeIDs() {
		def, _ := flow.Node(id)
		if !g.Embeds(def.Type) {
			continue
		}
		target, err := g.embeddedFlow(ctx, flow, def)
		if err != nil {
			errs = append(errs, &domain.ConfigurationValidationError{
				Flow:   flow.Name(),
				NodeID: id,
				Reason: "cannot inspect embedding node",
				Cause:  err,
			})
			continue
		}
		if target == "" {
			continue
		}
		if err := g.ValidateEmbedding(ctx, flow, id, target); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// query is what a search looks for: a flow containing nodeID, or the flow named flow.
type query struct {
	nodeID uuid.UUID
	flow   string
}

// walk is one search for q through the embeddings reachable from a target.
// Every flow is expanded at most once: a flow already visited is either on the current
// path, which cuts a cycle, or was fully searched without a match.
type walk struct {
	guard   *Guard
	outer   *domain.Flow
	q       query
	visited map[string]bool
}

func (g *Guard) newWalk(outer *domain.Flow, q query) *walk {
	return &walk{guard: g, outer: outer, q: q, visited: make(map[string]bool)}
}

// search walks name and every flow it embeds.
// The outer flow is read from the value being validated rather than from the registry.
func (w *walk) search(ctx context.Context, name string, depth int) (bool, error) {
	g := w.guard
	if w.q.flow != "" && name == w.q.flow {
		return true, nil
	}
	if w.visited[name] {
		return false, nil
	}
	if depth >= g.maxDepth {
		return false, fmt.Errorf("%w: limit is %d", domain.ErrEmbeddingDepthExceeded, g.maxDepth)
	}
	w.visited[name] = true

	realm := w.outer.Realm()
	flow := w.outer
	if name != w.outer.Name() {
		var err error
		flow, err = g.flows.GetFlow(ctx, realm, name)
		if err != nil {
			return false, fmt.Errorf("failed to load flow %q: %w", name, err)
		}
	}
	if w.q.nodeID != uuid.Nil && flow.ContainsNode(w.q.nodeID) {
		return true, nil
	}

	var walkErr error
	found := visitor.AnyMatch(ctx, flow, g.factory, realm, func(v visitor.Visit[bool]) bool {
		if !g.Embeds(v.NodeType) {
			return false
		}
		target, err := embeddedFlow(v, flow)
		if err != nil {
			walkErr = err
			return true
		}
		if target == "" {
			return false
		}
		ok, err := w.search(ctx, target, depth+1)
		if err != nil {
			walkErr = err
			return true
		}
		return ok
	})
	if walkErr != nil {
		return false, walkErr
	}
	return found, nil
}

// embeddedFlow materializes the visited node and asks it which flow it embeds.
func embeddedFlow(v visitor.Visit[bool], flow *domain.Flow) (string, error) {
	node, err := v.Node()
	if err != nil {
		return "", fmt.Errorf("node %s of flow %q: %w", v.NodeID, flow.Name(), err)
	}
	if embedder, ok := node.(ports.FlowEmbedder); ok {
		return embedder.EmbeddedFlow(), nil
	}
	def, _ := flow.Node(v.NodeID)
	return def.EmbeddedFlow(), nil
}

func (g *Guard) embeddedFlow(ctx context.Context, flow *domain.Flow, def domain.NodeDefinition) (string, error) {
	node, err := g.factory.Create(ctx, ports.NodeRequest{Realm: flow.Realm(), Flow: flow.Name(), Definition: def})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrNodeCreation, err)
	}
	if embedder, ok := node.(ports.FlowEmbedder); ok {
		return embedder.EmbeddedFlow(), nil
	}
	return def.EmbeddedFlow(), nil
}
