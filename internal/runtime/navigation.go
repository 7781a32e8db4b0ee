package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/authtree/internal/audit"
	"github.com/aretw0/authtree/pkg/domain"
	"github.com/aretw0/authtree/pkg/ports"
)

// transition follows outcome from def. When an inner flow reaches a terminal, its frame
// is popped and the embedding node transitions with true/false, possibly unwinding
// several levels in one call. A nil step and nil error mean the flow keeps running.
func (e *Engine) transition(ctx context.Context, st *domain.FlowState, flow *domain.Flow, def domain.NodeDefinition, outcome string, entry map[string]any) (*domain.Step, error) {
	for {
		target, ok := flow.ConnectionTarget(def.ID, outcome)
		if !ok {
			return e.fail(ctx, st, &domain.UndefinedOutcomeError{
				Flow:     flow.Name(),
				NodeID:   def.ID,
				NodeType: def.Type,
				Outcome:  outcome,
			})
		}

		e.auditNode(ctx, st, flow, def, outcome, entry)
		e.nodeEvent(ctx, e.hooks.OnNodeLeave, domain.EventNodeLeave, st, def, outcome)

		if !domain.IsTerminal(target) {
			st.CurrentNodeID = target
			return nil, nil
		}
		if st.Depth() == 0 {
			return e.complete(ctx, st, target), nil
		}

		result := domain.OutcomeFor(target)
		st.CurrentNodeID = target
		e.flowComplete(ctx, st, result)

		frame := popFrame(st)
		parent, err := e.flows.GetFlow(ctx, st.Realm, frame.Flow)
		if err != nil {
			return nil, fmt.Errorf("failed to load parent flow %q: %w", frame.Flow, err)
		}
		parentDef, ok := parent.Node(frame.NodeID)
		if !ok {
			return e.fail(ctx, st, &domain.NodeProcessingFailure{
				NodeID: frame.NodeID,
				Cause:  fmt.Errorf("embedding node is not part of flow %q", parent.Name()),
			})
		}

		e.logger.Debug("inner flow completed",
			"session_id", st.SessionID,
			"flow", parent.Name(),
			"node_id", parentDef.ID,
			"outcome", result,
		)

		flow, def = parent, parentDef
		outcome = domain.OutcomeFalse
		if result == domain.OutcomeSuccess {
			outcome = domain.OutcomeTrue
		}
		entry = nil
	}
}

// enterInnerFlow pushes a frame for def and positions st on the entry of the embedded flow.
func (e *Engine) enterInnerFlow(ctx context.Context, st *domain.FlowState, def domain.NodeDefinition, name string) (*domain.Step, error) {
	if st.Depth() >= e.maxDepth {
		return e.fail(ctx, st, &domain.NodeProcessingFailure{
			NodeID: def.ID,
			Cause:  fmt.Errorf("%w: limit is %d", domain.ErrEmbeddingDepthExceeded, e.maxDepth),
		})
	}

	inner, err := e.flows.GetFlow(ctx, st.Realm, name)
	if err != nil {
		return e.fail(ctx, st, &domain.NodeProcessingFailure{
			NodeID: def.ID,
			Cause:  fmt.Errorf("failed to load inner flow %q: %w", name, err),
		})
	}

	st.Frames = append(st.Frames, domain.Frame{Flow: st.Flow, NodeID: def.ID})
	st.SharedState = map[string]any{domain.KeySharedState: st.SharedState}
	st.Flow = inner.Name()
	st.CurrentNodeID = inner.Entry()

	e.logger.Debug("entering inner flow", "session_id", st.SessionID, "flow", inner.Name(), "depth", st.Depth())
	if e.hooks.OnFlowEnter != nil {
		e.hooks.OnFlowEnter(ctx, &domain.FlowEvent{
			EventBase: e.base(domain.EventFlowEnter, st),
			Depth:     st.Depth(),
		})
	}
	return nil, nil
}

// popFrame leaves the current inner flow: the parent's shared state is unwrapped and
// the inner values are merged over it.
func popFrame(st *domain.FlowState) domain.Frame {
	n := len(st.Frames)
	frame := st.Frames[n-1]
	st.Frames = st.Frames[:n-1]
	if len(st.Frames) == 0 {
		st.Frames = nil
	}

	parent, _ := st.SharedState[domain.KeySharedState].(map[string]any)
	if parent == nil {
		parent = make(map[string]any)
	}
	for k, v := range st.SharedState {
		if k == domain.KeySharedState {
			continue
		}
		parent[k] = v
	}

	st.SharedState = parent
	st.Flow = frame.Flow
	st.CurrentNodeID = frame.NodeID
	return frame
}

// embeddedFlow returns the flow a node evaluates, or "" for ordinary nodes.
// Only declared embedder types may embed: the recursion guards never inspect the others.
func (e *Engine) embeddedFlow(node ports.Node, def domain.NodeDefinition) (string, error) {
	name := def.EmbeddedFlow()
	if embedder, ok := node.(ports.FlowEmbedder); ok && embedder.EmbeddedFlow() != "" {
		name = embedder.EmbeddedFlow()
	}
	if name == "" {
		return "", nil
	}
	if !e.embeds(def.Type) {
		return "", fmt.Errorf("%w: %s embeds %q", domain.ErrUndeclaredEmbedder, def.Type, name)
	}
	return name, nil
}

func (e *Engine) embeds(nodeType string) bool {
	if nodeType == domain.NodeTypeInnerTree {
		return true
	}
	return e.embedders != nil && e.embedders.Embeds(nodeType)
}

func (e *Engine) auditNode(ctx context.Context, st *domain.FlowState, flow *domain.Flow, def domain.NodeDefinition, outcome string, entry map[string]any) {
	if e.nodeAuditor == nil {
		return
	}
	e.nodeAuditor.Audit(ctx, audit.NodeEvaluation{
		SessionID:   st.SessionID,
		Realm:       st.Realm,
		Flow:        flow.Name(),
		NodeID:      def.ID,
		NodeType:    def.Type,
		DisplayName: flow.DisplayNameFor(def.ID),
		Outcome:     outcome,
		SharedState: st.SharedState,
		Extra:       entry,
	})
}
