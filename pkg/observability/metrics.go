package observability

import (
	"context"
	"strconv"

	"github.com/aretw0/authtree/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "authtree"

// Metrics holds the prometheus collectors fed by lifecycle hooks.
type Metrics struct {
	nodeEvaluations *prometheus.CounterVec
	nodeSuspensions *prometheus.CounterVec
	flowsStarted    *prometheus.CounterVec
	flowCompletions *prometheus.CounterVec
	embeddingDepth  prometheus.Histogram
	registerer      prometheus.Registerer
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		nodeEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_evaluations_total",
				Help:      "Node evaluations that produced an outcome.",
			},
			[]string{"realm", "flow", "node_type", "outcome"},
		),
		nodeSuspensions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_suspensions_total",
				Help:      "Node evaluations that suspended for user input.",
			},
			[]string{"realm", "flow", "node_type"},
		),
		flowsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flows_started_total",
				Help:      "Flows entered, including inner flows.",
			},
			[]string{"realm", "flow", "nested"},
		),
		flowCompletions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flow_completions_total",
				Help:      "Flows that reached a terminal outcome, including inner flows.",
			},
			[]string{"realm", "flow", "outcome", "nested"},
		),
		embeddingDepth: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "embedding_depth",
				Help:      "Nesting depth of inner flows when entered.",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			},
		),
		registerer: reg,
	}

	for _, c := range []prometheus.Collector{m.nodeEvaluations, m.nodeSuspensions, m.flowsStarted, m.flowCompletions, m.embeddingDepth} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RegisterAuditDrops exposes a counter read from fn, such as a dispatcher's drop count.
func (m *Metrics) RegisterAuditDrops(fn func() uint64) error {
	return m.registerer.Register(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_dropped_total",
			Help:      "Audit events dropped because the buffer was full.",
		},
		func() float64 { return float64(fn()) },
	))
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeEvaluations.WithLabelValues(e.Realm, e.Flow, e.NodeType, e.Outcome).Inc()
		},
		OnNodeSuspended: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeSuspensions.WithLabelValues(e.Realm, e.Flow, e.NodeType).Inc()
		},
		OnFlowEnter: func(_ context.Context, e *domain.FlowEvent) {
			m.flowsStarted.WithLabelValues(e.Realm, e.Flow, nested(e.Depth)).Inc()
			if e.Depth > 0 {
				m.embeddingDepth.Observe(float64(e.Depth))
			}
		},
		OnFlowComplete: func(_ context.Context, e *domain.FlowEvent) {
			m.flowCompletions.WithLabelValues(e.Realm, e.Flow, string(e.Outcome), nested(e.Depth)).Inc()
		},
	}
}

func nested(depth int) string {
	return strconv.FormatBool(depth > 0)
}
