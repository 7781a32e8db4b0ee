package domain

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// FlowDefinition is the serializable form of a flow, as stored by registries.
type FlowDefinition struct {
	Name        string           `json:"name" yaml:"name"`
	Realm       string           `json:"realm" yaml:"realm"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	EntryNodeID uuid.UUID        `json:"entryNodeId" yaml:"entryNodeId"`
	Nodes       []NodeDefinition `json:"nodes" yaml:"nodes"`
}

// Flow is a validated, immutable authentication graph.
// Its identity is (Realm, Name). A Flow is safe for concurrent reads.
type Flow struct {
	name        string
	realm       string
	description string
	entry       uuid.UUID
	nodes       map[uuid.UUID]NodeDefinition
	order       []uuid.UUID
}

// NewFlow validates def and returns the immutable flow.
// It fails with *MalformedFlowError when the entry node is absent, a node id is nil or
// terminal, an id is declared twice, or a connection targets an undefined node.
func NewFlow(def FlowDefinition) (*Flow, error) {
	if def.Name == "" {
		return nil, &MalformedFlowError{Flow: def.Name, Reason: "flow name is empty"}
	}

	f := &Flow{
		name:        def.Name,
		realm:       def.Realm,
		description: def.Description,
		entry:       def.EntryNodeID,
		nodes:       make(map[uuid.UUID]NodeDefinition, len(def.Nodes)),
		order:       make([]uuid.UUID, 0, len(def.Nodes)),
	}

	for _, n := range def.Nodes {
		switch {
		case n.ID == uuid.Nil:
			return nil, &MalformedFlowError{Flow: def.Name, Reason: "node with nil id"}
		case IsTerminal(n.ID):
			return nil, &MalformedFlowError{Flow: def.Name, NodeID: n.ID, Reason: "terminal id used as a node"}
		case n.Type == "":
			return nil, &MalformedFlowError{Flow: def.Name, NodeID: n.ID, Reason: "node type is empty"}
		}
		if _, dup := f.nodes[n.ID]; dup {
			return nil, &MalformedFlowError{Flow: def.Name, NodeID: n.ID, Reason: "duplicate node id"}
		}
		f.nodes[n.ID] = n.clone()
		f.order = append(f.order, n.ID)
	}

	if _, ok := f.nodes[f.entry]; !ok {
		return nil, &MalformedFlowError{Flow: def.Name, NodeID: f.entry, Reason: "entry node is not defined"}
	}

	for _, id := range f.order {
		n := f.nodes[id]
		for outcome, target := range n.Connections {
			if IsTerminal(target) {
				continue
			}
			if _, ok := f.nodes[target]; !ok {
				return nil, &MalformedFlowError{
					Flow:   def.Name,
					NodeID: id,
					Reason: fmt.Sprintf("outcome %q targets undefined node %s", outcome, target),
				}
			}
		}
		if n.Type == NodeTypeInnerTree && n.EmbeddedFlow() == "" {
			return nil, &MalformedFlowError{Flow: def.Name, NodeID: id, Reason: "inner tree node has no embedded flow"}
		}
	}

	return f, nil
}

// Name returns the flow name.
func (f *Flow) Name() string { return f.name }

// Realm returns the realm the flow belongs to.
func (f *Flow) Realm() string { return f.realm }

// Description returns the free-form flow description.
func (f *Flow) Description() string { return f.description }

// Entry returns the entry node id.
func (f *Flow) Entry() uuid.UUID { return f.entry }

// ContainsNode reports whether id is a node of this flow. Terminal ids are never contained.
func (f *Flow) ContainsNode(id uuid.UUID) bool {
	_, ok := f.nodes[id]
	return ok
}

// Node returns a copy of the node definition.
func (f *Flow) Node(id uuid.UUID) (NodeDefinition, bool) {
	n, ok := f.nodes[id]
	if !ok {
		return NodeDefinition{}, false
	}
	return n.clone(), true
}

// NodeIDs returns the node ids in declaration order.
func (f *Flow) NodeIDs() []uuid.UUID {
	out := make([]uuid.UUID, len(f.order))
	copy(out, f.order)
	return out
}

// OutcomesOf returns the connected outcomes of a node, sorted.
func (f *Flow) OutcomesOf(id uuid.UUID) []string {
	n, ok := f.nodes[id]
	if !ok {
		return nil
	}
	outcomes := make([]string, 0, len(n.Connections))
	for o := range n.Connections {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)
	return outcomes
}

// ConnectionTarget resolves the node (or terminal) reached from id via outcome.
func (f *Flow) ConnectionTarget(id uuid.UUID, outcome string) (uuid.UUID, bool) {
	n, ok := f.nodes[id]
	if !ok {
		return uuid.Nil, false
	}
	target, ok := n.Connections[outcome]
	return target, ok
}

// DisplayNameFor returns the node display name, falling back to its type.
func (f *Flow) DisplayNameFor(id uuid.UUID) string {
	n, ok := f.nodes[id]
	if !ok {
		return ""
	}
	if n.DisplayName == "" {
		return n.Type
	}
	return n.DisplayName
}

// NodeTypeOf returns the type of the node, or "" if unknown.
func (f *Flow) NodeTypeOf(id uuid.UUID) string {
	return f.nodes[id].Type
}

// Definition returns the serializable form of the flow.
func (f *Flow) Definition() FlowDefinition {
	def := FlowDefinition{
		Name:        f.name,
		Realm:       f.realm,
		Description: f.description,
		EntryNodeID: f.entry,
		Nodes:       make([]NodeDefinition, 0, len(f.order)),
	}
	for _, id := range f.order {
		def.Nodes = append(def.Nodes, f.nodes[id].clone())
	}
	return def
}
