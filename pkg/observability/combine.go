package observability

import (
	"context"

	"github.com/aretw0/authtree/pkg/domain"
)

// Combine returns hooks that call every non-nil hook of hooks, in order.
func Combine(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	var (
		nodeEnter, nodeSuspended, nodeLeave []func(context.Context, *domain.NodeEvent)
		flowEnter, flowComplete             []func(context.Context, *domain.FlowEvent)
	)
	for _, h := range hooks {
		nodeEnter = appendHook(nodeEnter, h.OnNodeEnter)
		nodeSuspended = appendHook(nodeSuspended, h.OnNodeSuspended)
		nodeLeave = appendHook(nodeLeave, h.OnNodeLeave)
		flowEnter = appendHook(flowEnter, h.OnFlowEnter)
		flowComplete = appendHook(flowComplete, h.OnFlowComplete)
	}

	return domain.LifecycleHooks{
		OnNodeEnter:     fanOut(nodeEnter),
		OnNodeSuspended: fanOut(nodeSuspended),
		OnNodeLeave:     fanOut(nodeLeave),
		OnFlowEnter:     fanOut(flowEnter),
		OnFlowComplete:  fanOut(flowComplete),
	}
}

func appendHook[E any](list []func(context.Context, *E), fn func(context.Context, *E)) []func(context.Context, *E) {
	if fn == nil {
		return list
	}
	return append(list, fn)
}

func fanOut[E any](fns []func(context.Context, *E)) func(context.Context, *E) {
	switch len(fns) {
	case 0:
		return nil
	case 1:
		return fns[0]
	}
	return func(ctx context.Context, e *E) {
		for _, fn := range fns {
			fn(ctx, e)
		}
	}
}
