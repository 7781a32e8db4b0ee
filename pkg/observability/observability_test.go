package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/aretw0/authtree/internal/logging"
	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/observability"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodeEvent(outcome string) *domain.NodeEvent {
	return &domain.NodeEvent{
		EventBase: domain.EventBase{Realm: "/", Flow: "Login", SessionID: "s1"},
		NodeID:    uuid.New(),
		NodeType:  "UsernameCollectorNode",
		Outcome:   outcome,
	}
}

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	hooks := m.Hooks()
	ctx := context.Background()

	// 1. Outer flow enters, a node suspends then leaves
	hooks.OnFlowEnter(ctx, &domain.FlowEvent{EventBase: domain.EventBase{Realm: "/", Flow: "Login"}})
	hooks.OnNodeSuspended(ctx, nodeEvent(""))
	hooks.OnNodeLeave(ctx, nodeEvent("outcome"))

	// 2. An inner flow runs and completes
	hooks.OnFlowEnter(ctx, &domain.FlowEvent{EventBase: domain.EventBase{Realm: "/", Flow: "MFA"}, Depth: 1})
	hooks.OnFlowComplete(ctx, &domain.FlowEvent{EventBase: domain.EventBase{Realm: "/", Flow: "MFA"}, Depth: 1, Outcome: domain.OutcomeSuccess})
	hooks.OnFlowComplete(ctx, &domain.FlowEvent{EventBase: domain.EventBase{Realm: "/", Flow: "Login"}, Outcome: domain.OutcomeSuccess})

	expected := `
# HELP authtree_flow_completions_total Flows that reached a terminal outcome, including inner flows.
# TYPE authtree_flow_completions_total counter
authtree_flow_completions_total{flow="Login",nested="false",outcome="SUCCESS",realm="/"} 1
authtree_flow_completions_total{flow="MFA",nested="true",outcome="SUCCESS",realm="/"} 1
# HELP authtree_node_evaluations_total Node evaluations that produced an outcome.
# TYPE authtree_node_evaluations_total counter
authtree_node_evaluations_total{flow="Login",node_type="UsernameCollectorNode",outcome="outcome",realm="/"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"authtree_flow_completions_total", "authtree_node_evaluations_total"))

	count, err := testutil.GatherAndCount(reg, "authtree_embedding_depth")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	_, err = observability.NewMetrics(reg)
	assert.Error(t, err)
}

func TestMetrics_AuditDrops(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	var dropped uint64 = 3
	require.NoError(t, m.RegisterAuditDrops(func() uint64 { return dropped }))

	expected := `
# HELP authtree_audit_events_dropped_total Audit events dropped because the buffer was full.
# TYPE authtree_audit_events_dropped_total counter
authtree_audit_events_dropped_total 3
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "authtree_audit_events_dropped_total"))
}

func TestCombine(t *testing.T) {
	var calls []string
	a := domain.LifecycleHooks{
		OnNodeEnter: func(context.Context, *domain.NodeEvent) { calls = append(calls, "a") },
	}
	b := domain.LifecycleHooks{
		OnNodeEnter:    func(context.Context, *domain.NodeEvent) { calls = append(calls, "b") },
		OnFlowComplete: func(context.Context, *domain.FlowEvent) { calls = append(calls, "b-flow") },
	}

	combined := observability.Combine(a, domain.LifecycleHooks{}, b)
	combined.OnNodeEnter(context.Background(), nodeEvent(""))
	combined.OnFlowComplete(context.Background(), &domain.FlowEvent{})

	assert.Equal(t, []string{"a", "b", "b-flow"}, calls)
	assert.Nil(t, combined.OnNodeLeave)
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(slog.LevelDebug, logging.FormatJSON, &buf)

	hooks := observability.LoggingHooks(logger)
	hooks.OnNodeLeave(context.Background(), nodeEvent("true"))

	out := buf.String()
	assert.Contains(t, out, `"msg":"node_leave"`)
	assert.Contains(t, out, `"node_type":"UsernameCollectorNode"`)
	assert.Contains(t, out, `"session_id":"s1"`)
}
