package domain

import "github.com/google/uuid"

// ExecutionStatus defines the current mode of the step executor.
type ExecutionStatus string

const (
	StatusRunning       ExecutionStatus = "running"        // A node is being (or will be) evaluated
	StatusAwaitingInput ExecutionStatus = "awaiting_input" // Suspended, waiting for callback answers
	StatusCompleted     ExecutionStatus = "completed"      // Terminal sentinel reached
)

// Outcome is the final classification of a completed flow.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// OutcomeFor maps a terminal sentinel id to its Outcome.
func OutcomeFor(terminal uuid.UUID) Outcome {
	if terminal == SuccessNodeID {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// Frame records a parent flow while an inner flow is running.
type Frame struct {
	Flow   string    `json:"flow"`
	NodeID uuid.UUID `json:"nodeId"` // the embedding node in the parent flow
}

// FlowState is the persisted snapshot of one login attempt.
type FlowState struct {
	SessionID string `json:"sessionId"`
	Realm     string `json:"realm"`

	// Flow is the innermost flow currently executing.
	Flow string `json:"flow"`

	// CurrentNodeID is the node of Flow to evaluate next (or awaiting input).
	CurrentNodeID uuid.UUID `json:"currentNodeId"`

	Status  ExecutionStatus `json:"status"`
	Outcome Outcome         `json:"outcome,omitempty"`

	// SharedState persists across the whole flow. Inside an inner flow it embeds
	// the parent's shared state under KeySharedState.
	SharedState map[string]any `json:"sharedState"`

	// TransientState lives for a single request and is never persisted.
	TransientState map[string]any `json:"-"`

	// Frames holds the parent flows, outermost first.
	Frames []Frame `json:"frames,omitempty"`

	ClientIP string `json:"clientIp,omitempty"`
}

// NewFlowState creates a clean state positioned on the entry node of flow.
func NewFlowState(sessionID string, flow *Flow) *FlowState {
	return &FlowState{
		SessionID:      sessionID,
		Realm:          flow.Realm(),
		Flow:           flow.Name(),
		CurrentNodeID:  flow.Entry(),
		Status:         StatusRunning,
		SharedState:    make(map[string]any),
		TransientState: make(map[string]any),
	}
}

// RootFlow returns the name of the outermost flow.
func (s *FlowState) RootFlow() string {
	if len(s.Frames) > 0 {
		return s.Frames[0].Flow
	}
	return s.Flow
}

// Depth returns how many inner flows are currently nested.
func (s *FlowState) Depth() int {
	return len(s.Frames)
}

// Clone returns a deep copy that can be mutated without affecting s.
func (s *FlowState) Clone() *FlowState {
	if s == nil {
		return nil
	}
	next := *s
	next.SharedState = cloneMap(s.SharedState)
	next.TransientState = cloneMap(s.TransientState)
	if s.Frames != nil {
		next.Frames = make([]Frame, len(s.Frames))
		copy(next.Frames, s.Frames)
	}
	return &next
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// CloneMap deep copies nested maps and slices of a state map.
func CloneMap(m map[string]any) map[string]any {
	return cloneMap(m)
}
