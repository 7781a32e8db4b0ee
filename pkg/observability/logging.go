package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/authtree/pkg/domain"
)

// LoggingHooks logs every lifecycle event at debug level.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	node := func(msg string) func(context.Context, *domain.NodeEvent) {
		return func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, msg,
				"session_id", e.SessionID,
				"realm", e.Realm,
				"flow", e.Flow,
				"node_id", e.NodeID,
				"node_type", e.NodeType,
				"outcome", e.Outcome,
			)
		}
	}
	flow := func(msg string) func(context.Context, *domain.FlowEvent) {
		return func(ctx context.Context, e *domain.FlowEvent) {
			logger.DebugContext(ctx, msg,
				"session_id", e.SessionID,
				"realm", e.Realm,
				"flow", e.Flow,
				"depth", e.Depth,
				"outcome", e.Outcome,
			)
		}
	}

	return domain.LifecycleHooks{
		OnNodeEnter:     node("node_enter"),
		OnNodeSuspended: node("node_suspended"),
		OnNodeLeave:     node("node_leave"),
		OnFlowEnter:     flow("flow_enter"),
		OnFlowComplete:  flow("flow_complete"),
	}
}
