package runtime_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aretw0/authtree/internal/audit"
	"github.com/aretw0/authtree/internal/runtime"
	"github.com/aretw0/authtree/pkg/adapters/memory"
	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/ports"
	"github.com/stretchr/testify/require"
)

type processFunc func(tc *domain.TreeContext) (domain.Action, error)

func (f processFunc) Process(_ context.Context, tc *domain.TreeContext) (domain.Action, error) {
	return f(tc)
}

// scriptedFactory builds nodes by type from test-provided behaviour and counts evaluations.
type scriptedFactory struct {
	mu        sync.Mutex
	behaviour map[string]processFunc
	failTypes map[string]error
	evaluated []string
}

func newFactory() *scriptedFactory {
	return &scriptedFactory{
		behaviour: map[string]processFunc{},
		failTypes: map[string]error{},
	}
}

func (f *scriptedFactory) on(nodeType string, fn processFunc) *scriptedFactory {
	f.behaviour[nodeType] = fn
	return f
}

func (f *scriptedFactory) Create(_ context.Context, req ports.NodeRequest) (ports.Node, error) {
	nodeType := req.Definition.Type
	if err := f.failTypes[nodeType]; err != nil {
		return nil, err
	}
	if nodeType == domain.NodeTypeInnerTree {
		return processFunc(func(*domain.TreeContext) (domain.Action, error) {
			return domain.Action{}, fmt.Errorf("inner tree must not be processed")
		}), nil
	}
	fn, ok := f.behaviour[nodeType]
	if !ok {
		return nil, fmt.Errorf("unknown node type %s", nodeType)
	}
	return processFunc(func(tc *domain.TreeContext) (domain.Action, error) {
		f.mu.Lock()
		f.evaluated = append(f.evaluated, nodeType)
		f.mu.Unlock()
		return fn(tc)
	}), nil
}

func always(outcome string) processFunc {
	return func(*domain.TreeContext) (domain.Action, error) {
		return domain.GoTo(outcome), nil
	}
}

// collect suspends until answers carry key, then stores it in shared state.
func collect(key string) processFunc {
	return func(tc *domain.TreeContext) (domain.Action, error) {
		v, ok := tc.Answers[key]
		if !ok {
			return domain.Suspend(domain.Callback{Type: domain.CallbackName, Name: key}), nil
		}
		return domain.Action{Outcome: "outcome", SharedState: domain.Delta{key: v}}, nil
	}
}

type recordingPublisher struct {
	mu       sync.Mutex
	auditing bool
	events   []domain.AuditEvent
}

func (p *recordingPublisher) IsAuditing(string, string, string) bool { return p.auditing }

func (p *recordingPublisher) Publish(_ context.Context, _ string, ev domain.AuditEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) named(name string) []domain.AuditEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.AuditEvent
	for _, ev := range p.events {
		if ev.EventName == name {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	engine    *runtime.Engine
	factory   *scriptedFactory
	publisher *recordingPublisher
}

func newFixture(t *testing.T, factory *scriptedFactory, flows []*domain.Flow, opts ...runtime.EngineOption) *fixture {
	t.Helper()
	pub := &recordingPublisher{auditing: true}
	opts = append([]runtime.EngineOption{
		runtime.WithNodeAuditor(audit.NewNodeAuditor(pub, nil)),
		runtime.WithFlowAuditor(audit.NewFlowAuditor(pub, nil)),
	}, opts...)
	return &fixture{
		engine:    runtime.NewEngine(memory.NewRegistry(flows...), factory, opts...),
		factory:   factory,
		publisher: pub,
	}
}

func (f *fixture) start(t *testing.T, flow *domain.Flow) *domain.FlowState {
	t.Helper()
	state, err := f.engine.Start(context.Background(), "session-1", flow.Realm(), flow.Name(), nil)
	require.NoError(t, err)
	return state
}
