// Package runtime executes authentication flows one request at a time.
//
// The engine holds no per-session memory: every call receives a FlowState, works on
// a clone of it and returns the next state. Suspension is a return value; the caller
// persists the state and hands it back with the answers on the next request.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/authtree/internal/audit"
	"github.com/aretw0/authtree/internal/logging"
	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/ports"
	"github.com/google/uuid"
)

const (
	DefaultMaxEmbeddingDepth = 10
	DefaultMaxSteps          = 1000
)

// NodeAuditor receives every completed node evaluation.
type NodeAuditor interface {
	Audit(ctx context.Context, ev audit.NodeEvaluation)
}

// FlowAuditor receives the completion of the outermost flow.
type FlowAuditor interface {
	Audit(ctx context.Context, ev audit.FlowCompletion)
}

// Engine is the step executor.
type Engine struct {
	flows       ports.FlowRegistry
	factory     ports.NodeFactory
	embedders   ports.EmbedderCatalog
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	nodeAuditor NodeAuditor
	flowAuditor FlowAuditor
	maxDepth    int
	maxSteps    int
	now         func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithNodeAuditor sets the per-node audit emitter.
func WithNodeAuditor(a NodeAuditor) EngineOption {
	return func(e *Engine) {
		e.nodeAuditor = a
	}
}

// WithFlowAuditor sets the per-flow audit emitter.
func WithFlowAuditor(a FlowAuditor) EngineOption {
	return func(e *Engine) {
		e.flowAuditor = a
	}
}

// WithMaxEmbeddingDepth bounds live inner flow nesting.
func WithMaxEmbeddingDepth(depth int) EngineOption {
	return func(e *Engine) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// WithEmbedders sets the catalog of node types allowed to embed flows.
// It should be the one the recursion guard validates with. By default the factory is
// used when it implements ports.EmbedderCatalog, and only inner tree nodes otherwise.
func WithEmbedders(c ports.EmbedderCatalog) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.embedders = c
		}
	}
}

// WithMaxSteps bounds the nodes evaluated by a single Advance call.
func WithMaxSteps(steps int) EngineOption {
	return func(e *Engine) {
		if steps > 0 {
			e.maxSteps = steps
		}
	}
}

// NewEngine creates an engine resolving flows from flows and nodes from factory.
func NewEngine(flows ports.FlowRegistry, factory ports.NodeFactory, opts ...EngineOption) *Engine {
	embedders, _ := factory.(ports.EmbedderCatalog)
	e := &Engine{
		flows:     flows,
		factory:   factory,
		embedders: embedders,
		logger:    logging.NewNop(),
		maxDepth:  DefaultMaxEmbeddingDepth,
		maxSteps:  DefaultMaxSteps,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start creates the initial state of flow (realm, name), positioned on its entry node.
// Nothing is evaluated until Advance is called.
func (e *Engine) Start(ctx context.Context, sessionID, realm, name string, initial map[string]any) (*domain.FlowState, error) {
	flow, err := e.flows.GetFlow(ctx, realm, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow %q: %w", name, err)
	}

	state := domain.NewFlowState(sessionID, flow)
	state.SharedState = domain.Apply(state.SharedState, domain.Delta(initial))

	e.logger.Debug("flow started", "session_id", sessionID, "realm", realm, "flow", name)
	if e.hooks.OnFlowEnter != nil {
		e.hooks.OnFlowEnter(ctx, &domain.FlowEvent{
			EventBase: e.base(domain.EventFlowEnter, state),
		})
	}
	return state, nil
}

// Advance evaluates nodes from the current one until a node suspends or the outermost
// flow reaches a terminal. state is never modified.
//
// answers are visible only to the first node evaluated in this call. When the flow
// fails because of a node error, an undefined outcome or a node creation error, the
// returned Step carries the completed FAILURE state alongside the error.
func (e *Engine) Advance(ctx context.Context, state *domain.FlowState, answers map[string]any) (*domain.Step, error) {
	if state == nil {
		return nil, errors.New("advance: nil state")
	}
	if state.Status == domain.StatusCompleted {
		return nil, &domain.FlowAlreadyCompletedError{SessionID: state.SessionID, Outcome: state.Outcome}
	}

	st := state.Clone()
	st.Status = domain.StatusRunning
	st.TransientState = make(map[string]any)
	if st.SharedState == nil {
		st.SharedState = make(map[string]any)
	}

	first := true
	for steps := 0; ; steps++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if steps >= e.maxSteps {
			return e.fail(ctx, st, &domain.NodeProcessingFailure{
				NodeID: st.CurrentNodeID,
				Cause:  fmt.Errorf("%w (%d)", domain.ErrStepLimitExceeded, e.maxSteps),
			})
		}

		flow, err := e.flows.GetFlow(ctx, st.Realm, st.Flow)
		if err != nil {
			return nil, fmt.Errorf("failed to load flow %q: %w", st.Flow, err)
		}

		var input map[string]any
		if first {
			input, first = answers, false
		}

		step, err := e.evaluate(ctx, st, flow, input)
		if step != nil || err != nil {
			return step, err
		}
	}
}

// evaluate runs the current node. A nil step and nil error mean "keep going".
func (e *Engine) evaluate(ctx context.Context, st *domain.FlowState, flow *domain.Flow, answers map[string]any) (*domain.Step, error) {
	def, ok := flow.Node(st.CurrentNodeID)
	if !ok {
		return e.fail(ctx, st, &domain.NodeProcessingFailure{
			NodeID: st.CurrentNodeID,
			Cause:  fmt.Errorf("node is not part of flow %q", flow.Name()),
		})
	}

	logger := e.logger.With("session_id", st.SessionID, "flow", flow.Name(), "node_id", def.ID)
	e.nodeEvent(ctx, e.hooks.OnNodeEnter, domain.EventNodeEnter, st, def, "")

	node, err := e.factory.Create(ctx, ports.NodeRequest{Realm: st.Realm, Flow: flow.Name(), Definition: def})
	if err != nil {
		return e.fail(ctx, st, &domain.NodeProcessingFailure{
			NodeID: def.ID,
			Cause:  fmt.Errorf("%w: %w", domain.ErrNodeCreation, err),
		})
	}

	target, err := e.embeddedFlow(node, def)
	if err != nil {
		return e.fail(ctx, st, &domain.NodeProcessingFailure{NodeID: def.ID, Cause: err})
	}
	if target != "" {
		return e.enterInnerFlow(ctx, st, def, target)
	}

	tc := &domain.TreeContext{
		Realm:          st.Realm,
		Flow:           flow.Name(),
		NodeID:         def.ID,
		ClientIP:       st.ClientIP,
		SharedState:    domain.CloneMap(st.SharedState),
		TransientState: domain.CloneMap(st.TransientState),
		Answers:        answers,
	}
	action, err := node.Process(ctx, tc)
	if err != nil {
		return e.fail(ctx, st, &domain.NodeProcessingFailure{NodeID: def.ID, Cause: err})
	}

	st.SharedState = domain.Apply(st.SharedState, action.SharedState)
	st.TransientState = domain.Apply(st.TransientState, action.TransientState)

	if action.Suspends {
		st.Status = domain.StatusAwaitingInput
		logger.Debug("node suspended", "callbacks", len(action.Callbacks))
		e.nodeEvent(ctx, e.hooks.OnNodeSuspended, domain.EventNodeSuspended, st, def, "")
		return &domain.Step{
			State: st,
			Pending: &domain.PendingInteraction{
				NodeID:    def.ID,
				NodeType:  def.Type,
				Callbacks: action.Callbacks,
			},
		}, nil
	}

	logger.Debug("node completed", "outcome", action.Outcome)
	return e.transition(ctx, st, flow, def, action.Outcome, action.AuditEntry)
}

// fail completes the flow as FAILURE and returns the failed step together with cause.
func (e *Engine) fail(ctx context.Context, st *domain.FlowState, cause error) (*domain.Step, error) {
	e.logger.Error("flow failed",
		"err", cause,
		"session_id", st.SessionID,
		"realm", st.Realm,
		"flow", st.Flow,
		"node_id", st.CurrentNodeID,
	)
	for len(st.Frames) > 0 {
		popFrame(st)
	}
	return e.complete(ctx, st, domain.FailureNodeID), cause
}

// complete marks the outermost flow as finished on terminal and emits the flow audit event.
func (e *Engine) complete(ctx context.Context, st *domain.FlowState, terminal uuid.UUID) *domain.Step {
	outcome := domain.OutcomeFor(terminal)
	st.Status = domain.StatusCompleted
	st.Outcome = outcome
	st.CurrentNodeID = terminal

	e.flowComplete(ctx, st, outcome)
	if e.flowAuditor != nil {
		e.flowAuditor.Audit(ctx, audit.FlowCompletion{
			SessionID:   st.SessionID,
			Realm:       st.Realm,
			Flow:        st.Flow,
			Outcome:     outcome,
			SharedState: st.SharedState,
			ClientIP:    st.ClientIP,
		})
	}

	return &domain.Step{
		State:  st,
		Result: &domain.FlowResult{FinalOutcome: outcome, FinalState: st},
	}
}

func (e *Engine) base(t domain.EventType, st *domain.FlowState) domain.EventBase {
	return domain.EventBase{
		Timestamp: e.now(),
		Type:      t,
		SessionID: st.SessionID,
		Realm:     st.Realm,
		Flow:      st.Flow,
	}
}

func (e *Engine) nodeEvent(ctx context.Context, hook func(context.Context, *domain.NodeEvent), t domain.EventType, st *domain.FlowState, def domain.NodeDefinition, outcome string) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.NodeEvent{
		EventBase: e.base(t, st),
		NodeID:    def.ID,
		NodeType:  def.Type,
		Outcome:   outcome,
	})
}

func (e *Engine) flowComplete(ctx context.Context, st *domain.FlowState, outcome domain.Outcome) {
	if e.hooks.OnFlowComplete == nil {
		return
	}
	e.hooks.OnFlowComplete(ctx, &domain.FlowEvent{
		EventBase: e.base(domain.EventFlowComplete, st),
		Depth:     st.Depth(),
		Outcome:   outcome,
	})
}
