// Package visitor folds over the reachable graph of a flow with lazily constructed nodes.
package visitor

import (
	"context"
	"iter"

	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/ports"
	"github.com/google/uuid"
)

// Visit is what a VisitFunc sees for one reachable node.
type Visit[T any] struct {
	NodeID      uuid.UUID
	NodeType    string
	DisplayName string

	// Node materializes the node instance. Construction happens at most once per
	// traversal and only if some visit calls it.
	Node func() (ports.Node, error)

	// Children yields one accessor per distinct non-terminal connection target,
	// ordered by outcome. Calling an accessor visits that child.
	// Accessors must be called before the VisitFunc returns.
	Children iter.Seq[func() T]
}

// VisitFunc computes the value of one node, usually by combining its children.
type VisitFunc[T any] func(v Visit[T]) T

// Fold visits flow from its entry node and returns fn's value for the entry.
// A child already on the current path yields the zero value of T, so folds
// terminate on cyclic graphs. Nodes reachable through several parents are visited
// once per path; fn decides whether to descend.
func Fold[T any](ctx context.Context, flow *domain.Flow, factory ports.NodeFactory, realm string, fn VisitFunc[T]) T {
	w := &walker[T]{
		flow:   flow,
		arena:  newArena(ctx, flow, factory, realm),
		fn:     fn,
		onPath: make(map[uuid.UUID]bool),
	}
	return w.visit(flow.Entry())
}

type walker[T any] struct {
	flow   *domain.Flow
	arena  *arena
	fn     VisitFunc[T]
	onPath map[uuid.UUID]bool
}

func (w *walker[T]) visit(id uuid.UUID) T {
	if w.onPath[id] {
		var zero T
		return zero
	}
	w.onPath[id] = true
	defer delete(w.onPath, id)

	return w.fn(Visit[T]{
		NodeID:      id,
		NodeType:    w.flow.NodeTypeOf(id),
		DisplayName: w.flow.DisplayNameFor(id),
		Node:        func() (ports.Node, error) { return w.arena.get(id) },
		Children:    w.children(id),
	})
}

func (w *walker[T]) children(id uuid.UUID) iter.Seq[func() T] {
	return func(yield func(func() T) bool) {
		seen := make(map[uuid.UUID]bool)
		for _, outcome := range w.flow.OutcomesOf(id) {
			target, ok := w.flow.ConnectionTarget(id, outcome)
			if !ok || domain.IsTerminal(target) || seen[target] {
				continue
			}
			seen[target] = true
			if !yield(func() T { return w.visit(target) }) {
				return
			}
		}
	}
}

// AnyMatch reports whether cond holds for any node reachable from the entry.
// It stops at the first match without visiting the remaining branches.
// cond is evaluated at most once per node: a node reached again through another
// parent has already been explored without a match and is skipped.
func AnyMatch(ctx context.Context, flow *domain.Flow, factory ports.NodeFactory, realm string, cond func(v Visit[bool]) bool) bool {
	explored := make(map[uuid.UUID]bool)
	return Fold(ctx, flow, factory, realm, func(v Visit[bool]) bool {
		if explored[v.NodeID] {
			return false
		}
		explored[v.NodeID] = true
		return cond(v) || Any(v.Children)
	})
}

// Any evaluates child accessors in order and stops at the first true.
func Any(children iter.Seq[func() bool]) bool {
	for child := range children {
		if child() {
			return true
		}
	}
	return false
}

// Reachable returns the ids of every node reachable from the entry, in visit order.
func Reachable(ctx context.Context, flow *domain.Flow) []uuid.UUID {
	var order []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	Fold(ctx, flow, nil, flow.Realm(), func(v Visit[struct{}]) struct{} {
		if seen[v.NodeID] {
			return struct{}{}
		}
		seen[v.NodeID] = true
		order = append(order, v.NodeID)
		for child := range v.Children {
			child()
		}
		return struct{}{}
	})
	return order
}
