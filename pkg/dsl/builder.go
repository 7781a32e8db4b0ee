package dsl

import (
	"fmt"
	"sort"

	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/ports"
	"github.com/google/uuid"
)

// Builder accumulates nodes and connections before producing an immutable domain.Flow.
type Builder struct {
	name        string
	realm       string
	description string
	entry       uuid.UUID
	nodes       []*NodeBuilder
	byID        map[uuid.UUID]*NodeBuilder

	catalog ports.OutcomeCatalog
	strict  bool
}

// New creates a new flow builder for (realm, name).
func New(name, realm string) *Builder {
	return &Builder{
		name:  name,
		realm: realm,
		byID:  make(map[uuid.UUID]*NodeBuilder),
	}
}

// Describe sets a free-form description.
func (b *Builder) Describe(description string) *Builder {
	b.description = description
	return b
}

// WithCatalog validates connections against the outcomes declared by each node type.
func (b *Builder) WithCatalog(catalog ports.OutcomeCatalog) *Builder {
	b.catalog = catalog
	return b
}

// Strict additionally requires every declared outcome to be connected.
func (b *Builder) Strict() *Builder {
	b.strict = true
	return b
}

// Add creates a node of nodeType with a random id.
// The first node added is the entry unless Entry is called.
func (b *Builder) Add(nodeType string) *NodeBuilder {
	return b.AddWithID(uuid.New(), nodeType)
}

// AddWithID creates a node with a fixed id.
// If the node already exists, it returns the existing builder.
func (b *Builder) AddWithID(id uuid.UUID, nodeType string) *NodeBuilder {
	if nb, ok := b.byID[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node: domain.NodeDefinition{
			ID:          id,
			Type:        nodeType,
			Connections: make(map[string]uuid.UUID),
		},
		builder: b,
	}
	if len(b.nodes) == 0 && b.entry == uuid.Nil {
		b.entry = id
	}
	b.nodes = append(b.nodes, nb)
	b.byID[id] = nb
	return nb
}

// Embed adds an inner tree node evaluating flowName.
func (b *Builder) Embed(flowName string) *NodeBuilder {
	return b.Add(domain.NodeTypeInnerTree).Config(domain.KeyInnerTree, flowName)
}

// Entry sets the entry node.
func (b *Builder) Entry(nb *NodeBuilder) *Builder {
	b.entry = nb.node.ID
	return b
}

// Build validates the accumulated graph and returns the immutable flow.
func (b *Builder) Build() (*domain.Flow, error) {
	def := domain.FlowDefinition{
		Name:        b.name,
		Realm:       b.realm,
		Description: b.description,
		EntryNodeID: b.entry,
		Nodes:       make([]domain.NodeDefinition, 0, len(b.nodes)),
	}
	for _, nb := range b.nodes {
		def.Nodes = append(def.Nodes, nb.node)
	}

	if b.catalog != nil {
		if err := CheckOutcomes(def, b.catalog, b.strict); err != nil {
			return nil, err
		}
	}

	flow, err := domain.NewFlow(def)
	if err != nil {
		return nil, fmt.Errorf("failed to build flow: %w", err)
	}
	return flow, nil
}

// CheckOutcomes validates configured connections against the outcomes each node type declares.
// Unknown node types are skipped; the node factory rejects them later.
func CheckOutcomes(def domain.FlowDefinition, catalog ports.OutcomeCatalog, strict bool) error {
	for _, n := range def.Nodes {
		declared, ok := catalog.Outcomes(n)
		if !ok {
			continue
		}
		set := make(map[string]bool, len(declared))
		for _, o := range declared {
			set[o] = true
		}

		configured := make([]string, 0, len(n.Connections))
		for o := range n.Connections {
			configured = append(configured, o)
		}
		sort.Strings(configured)

		for _, o := range configured {
			if !set[o] {
				return &domain.MalformedFlowError{
					Flow:   def.Name,
					NodeID: n.ID,
					Reason: fmt.Sprintf("outcome %q is not declared by node type %s", o, n.Type),
				}
			}
		}
		if !strict {
			continue
		}
		for _, o := range declared {
			if _, connected := n.Connections[o]; !connected {
				return &domain.MalformedFlowError{
					Flow:   def.Name,
					NodeID: n.ID,
					Reason: fmt.Sprintf("declared outcome %q is not connected", o),
				}
			}
		}
	}
	return nil
}
