package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/authtree/internal/logging"
	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/ports"
	"github.com/google/uuid"
)

type settings struct {
	logger *slog.Logger
	masker *Masker
	now    func() time.Time
}

// Option configures an auditor.
type Option func(*settings)

// WithLogger sets the logger used for swallowed publish failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMasker replaces the default masker for node payloads.
func WithMasker(m *Masker) Option {
	return func(s *settings) {
		s.masker = m
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		logger: logging.NewNop(),
		masker: MustNewMasker(DefaultSensitivePatterns),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// NodeAuditor emits AM-NODE-LOGIN-COMPLETED for every completed node evaluation.
type NodeAuditor struct {
	publisher ports.AuditPublisher
	flag      ports.FeatureFlag
	settings
}

// NewNodeAuditor creates a node auditor. A nil flag means always enabled.
func NewNodeAuditor(publisher ports.AuditPublisher, flag ports.FeatureFlag, opts ...Option) *NodeAuditor {
	return &NodeAuditor{publisher: publisher, flag: flag, settings: newSettings(opts)}
}

// Audit publishes the node event if the flag is on and the realm audits it.
func (a *NodeAuditor) Audit(ctx context.Context, ev NodeEvaluation) {
	if ev.Suspended || a.publisher == nil || !enabled(a.flag) {
		return
	}
	defer a.recoverPanic(EventNodeLoginCompleted)

	username, realm := principal(ev.SharedState, ev.Realm)
	if !a.publisher.IsAuditing(realm, Topic, EventNodeLoginCompleted) {
		return
	}

	entries := map[string]any{
		EntryTreeName:    ev.Flow,
		EntryNodeType:    ev.NodeType,
		EntryNodeID:      ev.NodeID.String(),
		EntryDisplayName: ev.DisplayName,
		EntryNodeOutcome: ev.Outcome,
	}
	if level, ok := authLevel(ev.SharedState); ok {
		entries[EntryAuthLevel] = level
	}
	if len(ev.Extra) > 0 {
		entries[EntryNodeExtra] = a.masker.Mask(ev.Extra)
	}

	event := domain.AuditEvent{
		ID:        uuid.New(),
		Timestamp: a.now().UTC(),
		EventName: EventNodeLoginCompleted,
		Component: Component,
		Realm:     realm,
		Principal: username,
		SessionID: ev.SessionID,
		Entries:   entries,
	}
	if err := a.publisher.Publish(ctx, Topic, event); err != nil {
		a.logger.Warn("failed to publish node audit event",
			"err", err,
			"realm", realm,
			"flow", ev.Flow,
			"node_id", ev.NodeID,
		)
	}
}

// FlowAuditor emits AM-TREE-LOGIN-COMPLETED or AM-TREE-LOGIN-FAILED once per completed flow.
type FlowAuditor struct {
	publisher ports.AuditPublisher
	flag      ports.FeatureFlag
	settings
}

// NewFlowAuditor creates a flow auditor. A nil flag means always enabled.
func NewFlowAuditor(publisher ports.AuditPublisher, flag ports.FeatureFlag, opts ...Option) *FlowAuditor {
	return &FlowAuditor{publisher: publisher, flag: flag, settings: newSettings(opts)}
}

// Audit publishes the flow event if the flag is on and the realm audits it.
func (a *FlowAuditor) Audit(ctx context.Context, ev FlowCompletion) {
	if a.publisher == nil || !enabled(a.flag) {
		return
	}

	name := EventTreeLoginFailed
	if ev.Outcome == domain.OutcomeSuccess {
		name = EventTreeLoginCompleted
	}
	defer a.recoverPanic(name)

	username, realm := principal(ev.SharedState, ev.Realm)
	if !a.publisher.IsAuditing(realm, Topic, name) {
		return
	}

	entries := map[string]any{
		EntryTreeName: ev.Flow,
	}
	if level, ok := authLevel(ev.SharedState); ok {
		entries[EntryAuthLevel] = level
	}

	event := domain.AuditEvent{
		ID:        uuid.New(),
		Timestamp: a.now().UTC(),
		EventName: name,
		Component: Component,
		Realm:     realm,
		Principal: username,
		SessionID: ev.SessionID,
		Result:    string(ev.Outcome),
		ClientIP:  ev.ClientIP,
		Entries:   entries,
	}
	if err := a.publisher.Publish(ctx, Topic, event); err != nil {
		a.logger.Warn("failed to publish flow audit event",
			"err", err,
			"realm", realm,
			"flow", ev.Flow,
			"outcome", ev.Outcome,
		)
	}
}

func (s *settings) recoverPanic(eventName string) {
	if r := recover(); r != nil {
		s.logger.Warn("audit publisher panicked",
			"err", fmt.Errorf("panic: %v", r),
			"event", eventName,
		)
	}
}

func enabled(flag ports.FeatureFlag) bool {
	return flag == nil || flag.Enabled()
}
