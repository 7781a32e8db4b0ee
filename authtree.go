package authtree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/authtree/internal/audit"
	"github.com/aretw0/authtree/internal/logging"
	"github.com/aretw0/authtree/internal/presentation/graph"
	"github.com/aretw0/authtree/internal/runtime"
	"github.com/aretw0/authtree/internal/validator"
	"github.com/aretw0/authtree/pkg/adapters/memory"
	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/ports"
	"github.com/aretw0/authtree/pkg/runner"
	"github.com/aretw0/authtree/pkg/session"
	"github.com/google/uuid"
)

// Engine is the high-level entry point of the library.
// It wraps the step executor, the recursion guards and session persistence behind
// a request/response API: one Advance call per client round-trip.
type Engine struct {
	runtime  *runtime.Engine
	guard    *validator.Guard
	sessions *session.Manager
	codec    *session.AuthIDCodec
	flows    ports.FlowRegistry
	logger   *slog.Logger

	store          ports.StateStore
	locker         ports.DistributedLocker
	lockTTL        time.Duration
	signingKey     []byte
	authIDTTL      time.Duration
	hooks          domain.LifecycleHooks
	publisher      ports.AuditPublisher
	nodeFlag       ports.FeatureFlag
	flowFlag       ports.FeatureFlag
	masker         *audit.Masker
	maxDepth       int
	validateDepth  int
	maxSteps       int
	embedderTypes  []string
	sanitizeAnswer bool
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStateStore sets where suspended flows are persisted (default: in memory).
func WithStateStore(store ports.StateStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithDistributedLocker serializes requests for the same session across replicas.
func WithDistributedLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = locker
		e.lockTTL = ttl
	}
}

// WithSigningKey sets the HS256 key auth ids are signed with (at least 32 bytes).
// Without it a random key is generated, so auth ids don't survive a restart.
func WithSigningKey(key []byte, ttl time.Duration) Option {
	return func(e *Engine) {
		e.signingKey = key
		e.authIDTTL = ttl
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithAuditPublisher enables audit events. The flags are read on every event;
// nil flags mean always enabled.
func WithAuditPublisher(publisher ports.AuditPublisher, nodeFlag, flowFlag ports.FeatureFlag) Option {
	return func(e *Engine) {
		e.publisher = publisher
		e.nodeFlag = nodeFlag
		e.flowFlag = flowFlag
	}
}

// WithAuditMasker replaces the masker applied to node audit payloads.
func WithAuditMasker(m *audit.Masker) Option {
	return func(e *Engine) {
		e.masker = m
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxEmbeddingDepth bounds inner flow nesting at run time.
func WithMaxEmbeddingDepth(depth int) Option {
	return func(e *Engine) {
		e.maxDepth = depth
	}
}

// WithValidationDepth bounds how deep the recursion guards follow embeddings.
func WithValidationDepth(depth int) Option {
	return func(e *Engine) {
		e.validateDepth = depth
	}
}

// WithMaxSteps bounds node evaluations per request.
func WithMaxSteps(steps int) Option {
	return func(e *Engine) {
		e.maxSteps = steps
	}
}

// WithEmbedderTypes declares extra node types that embed flows, besides inner tree nodes
// and the types the factory declares. Other node types are refused when they embed.
func WithEmbedderTypes(types ...string) Option {
	return func(e *Engine) {
		e.embedderTypes = append(e.embedderTypes, types...)
	}
}

// WithRawAnswers disables answer sanitization.
func WithRawAnswers() Option {
	return func(e *Engine) {
		e.sanitizeAnswer = false
	}
}

// New creates an engine resolving flows from flows and node implementations from factory.
func New(flows ports.FlowRegistry, factory ports.NodeFactory, opts ...Option) (*Engine, error) {
	e := &Engine{
		flows:          flows,
		logger:         logging.NewNop(),
		sanitizeAnswer: true,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = memory.NewStore()
	}
	if e.signingKey == nil {
		e.signingKey = []byte(uuid.NewString() + uuid.NewString())
	}
	codec, err := session.NewAuthIDCodec(e.signingKey, e.authIDTTL)
	if err != nil {
		return nil, err
	}
	e.codec = codec

	sessionOpts := []session.Option{session.WithLogger(e.logger)}
	if e.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(e.locker), session.WithLockTTL(e.lockTTL))
	}
	e.sessions = session.NewManager(e.store, sessionOpts...)

	guardOpts := []validator.Option{validator.WithLogger(e.logger)}
	if e.validateDepth > 0 {
		guardOpts = append(guardOpts, validator.WithMaxDepth(e.validateDepth))
	}
	if len(e.embedderTypes) > 0 {
		guardOpts = append(guardOpts, validator.WithEmbedderTypes(e.embedderTypes...))
	}
	e.guard = validator.NewGuard(flows, factory, guardOpts...)

	runtimeOpts := []runtime.EngineOption{
		runtime.WithLogger(e.logger),
		runtime.WithLifecycleHooks(e.hooks),
		runtime.WithEmbedders(e.guard),
	}
	if e.maxDepth > 0 {
		runtimeOpts = append(runtimeOpts, runtime.WithMaxEmbeddingDepth(e.maxDepth))
	}
	if e.maxSteps > 0 {
		runtimeOpts = append(runtimeOpts, runtime.WithMaxSteps(e.maxSteps))
	}
	if e.publisher != nil {
		auditOpts := []audit.Option{audit.WithLogger(e.logger)}
		if e.masker != nil {
			auditOpts = append(auditOpts, audit.WithMasker(e.masker))
		}
		runtimeOpts = append(runtimeOpts,
			runtime.WithNodeAuditor(audit.NewNodeAuditor(e.publisher, e.nodeFlag, auditOpts...)),
			runtime.WithFlowAuditor(audit.NewFlowAuditor(e.publisher, e.flowFlag, auditOpts...)),
		)
	}
	e.runtime = runtime.NewEngine(flows, factory, runtimeOpts...)

	return e, nil
}

// AdvanceRequest is one client round-trip of an authentication.
type AdvanceRequest struct {
	Realm string

	// Flow names the flow to start. Ignored when AuthID is set.
	Flow string

	// AuthID resumes a suspended authentication; empty starts a new one.
	AuthID string

	// Answers to the callbacks of the pending node.
	Answers map[string]any

	// InitialState seeds the shared state of a new authentication.
	InitialState map[string]any

	ClientIP string
}

// Advance starts or resumes an authentication and runs it until a node needs input
// or the flow completes. Pending steps are persisted; use AuthID to get the token
// the client must send back. Completed states are kept until they expire, so
// replaying a finished authentication yields *domain.FlowAlreadyCompletedError.
func (e *Engine) Advance(ctx context.Context, req AdvanceRequest) (*domain.Step, error) {
	answers := req.Answers
	if e.sanitizeAnswer {
		clean, err := runner.SanitizeAnswers(answers)
		if err != nil {
			return nil, err
		}
		answers = clean
	}

	if req.AuthID == "" {
		return e.start(ctx, req, answers)
	}

	sessionID, err := e.codec.Decode(req.AuthID, req.Realm)
	if err != nil {
		return nil, err
	}

	var step *domain.Step
	err = e.sessions.Update(ctx, sessionID, func(ctx context.Context, st *domain.FlowState) (*domain.FlowState, error) {
		if req.ClientIP != "" {
			st.ClientIP = req.ClientIP
		}
		var err error
		step, err = e.runtime.Advance(ctx, st, answers)
		if step == nil {
			// Nothing was evaluated; keep the stored state as it was.
			return st, err
		}
		return step.State, err
	})
	return step, err
}

func (e *Engine) start(ctx context.Context, req AdvanceRequest, answers map[string]any) (*domain.Step, error) {
	if req.Flow == "" {
		return nil, errors.New("a flow name is required to start an authentication")
	}

	st, err := e.runtime.Start(ctx, session.NewSessionID(), req.Realm, req.Flow, req.InitialState)
	if err != nil {
		return nil, err
	}
	st.ClientIP = req.ClientIP

	step, err := e.runtime.Advance(ctx, st, answers)
	if step == nil {
		return nil, err
	}
	if saveErr := e.sessions.Save(ctx, step.State); saveErr != nil {
		return nil, errors.Join(err, fmt.Errorf("failed to persist session: %w", saveErr))
	}
	return step, err
}

// AuthID returns the signed token referencing state's session.
func (e *Engine) AuthID(state *domain.FlowState) (string, error) {
	return e.codec.Encode(state.SessionID, state.Realm)
}

// Session returns the stored state behind an auth id.
func (e *Engine) Session(ctx context.Context, realm, authID string) (*domain.FlowState, error) {
	sessionID, err := e.codec.Decode(authID, realm)
	if err != nil {
		return nil, err
	}
	return e.sessions.Load(ctx, sessionID)
}

// ValidateEmbedding checks that node nodeID of flow (realm, outerFlow) may embed targetFlow.
func (e *Engine) ValidateEmbedding(ctx context.Context, realm, outerFlow string, nodeID uuid.UUID, targetFlow string) error {
	outer, err := e.flows.GetFlow(ctx, realm, outerFlow)
	if err != nil {
		return &domain.ConfigurationValidationError{
			Flow:   outerFlow,
			NodeID: nodeID,
			Reason: fmt.Sprintf("cannot load flow %q", outerFlow),
			Cause:  err,
		}
	}
	return e.guard.ValidateEmbedding(ctx, outer, nodeID, targetFlow)
}

// ValidateFlow runs the recursion guards on every embedding node of flow.
func (e *Engine) ValidateFlow(ctx context.Context, flow *domain.Flow) error {
	return e.guard.ValidateFlow(ctx, flow)
}

// SaveFlow validates flow and stores it. The registry must implement ports.FlowWriter.
func (e *Engine) SaveFlow(ctx context.Context, flow *domain.Flow) error {
	w, ok := e.flows.(ports.FlowWriter)
	if !ok {
		return errors.New("flow registry is read-only")
	}
	if err := e.guard.ValidateFlow(ctx, flow); err != nil {
		return err
	}
	return w.SaveFlow(ctx, flow)
}

// Graph renders flow (realm, name) and the flows it embeds as a Mermaid diagram.
func (e *Engine) Graph(ctx context.Context, realm, name string) (string, error) {
	flow, err := e.flows.GetFlow(ctx, realm, name)
	if err != nil {
		return "", err
	}
	depth := e.validateDepth
	if depth <= 0 {
		depth = validator.DefaultMaxDepth
	}
	return graph.GenerateMermaidTree(ctx, e.flows, flow, depth)
}

// Flow returns flow (realm, name) from the engine's registry.
func (e *Engine) Flow(ctx context.Context, realm, name string) (*domain.Flow, error) {
	return e.flows.GetFlow(ctx, realm, name)
}
