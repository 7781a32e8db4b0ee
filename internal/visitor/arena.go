package visitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/ports"
	"github.com/google/uuid"
)

var errNoFactory = errors.New("visitor: no node factory configured")

// arena caches node construction results, errors included, by node id.
type arena struct {
	ctx     context.Context
	flow    *domain.Flow
	factory ports.NodeFactory
	realm   string
	slots   map[uuid.UUID]slot
}

type slot struct {
	node ports.Node
	err  error
}

func newArena(ctx context.Context, flow *domain.Flow, factory ports.NodeFactory, realm string) *arena {
	return &arena{
		ctx:     ctx,
		flow:    flow,
		factory: factory,
		realm:   realm,
		slots:   make(map[uuid.UUID]slot),
	}
}

func (a *arena) get(id uuid.UUID) (ports.Node, error) {
	if s, ok := a.slots[id]; ok {
		return s.node, s.err
	}
	s := a.create(id)
	a.slots[id] = s
	return s.node, s.err
}

func (a *arena) create(id uuid.UUID) slot {
	if err := a.ctx.Err(); err != nil {
		return slot{err: err}
	}
	if a.factory == nil {
		return slot{err: errNoFactory}
	}
	def, ok := a.flow.Node(id)
	if !ok {
		return slot{err: fmt.Errorf("node %s not in flow %q", id, a.flow.Name())}
	}
	node, err := a.factory.Create(a.ctx, ports.NodeRequest{
		Realm:      a.realm,
		Flow:       a.flow.Name(),
		Definition: def,
	})
	if err != nil {
		return slot{err: fmt.Errorf("%w: %w", domain.ErrNodeCreation, err)}
	}
	return slot{node: node}
}
