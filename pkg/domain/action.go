package domain

import "github.com/google/uuid"

// CallbackType defines the kind of input a node requests.
type CallbackType string

const (
	CallbackName     CallbackType = "NameCallback"
	CallbackPassword CallbackType = "PasswordCallback"
	CallbackChoice   CallbackType = "ChoiceCallback"
	CallbackText     CallbackType = "TextOutputCallback"
)

// Callback describes one piece of input requested from the client.
type Callback struct {
	Type    CallbackType `json:"type"`
	Name    string       `json:"name"` // key under which the answer is expected
	Prompt  string       `json:"prompt,omitempty"`
	Options []string     `json:"options,omitempty"`
	Default string       `json:"default,omitempty"`
}

// Action is produced by a node after processing.
type Action struct {
	// Outcome selects the next connection. Ignored when Suspends is true.
	Outcome string

	// Suspends requests external input; the engine pauses on the same node.
	Suspends  bool
	Callbacks []Callback

	// SharedState and TransientState are merged into the flow state (nil values delete keys).
	SharedState    Delta
	TransientState Delta

	// AuditEntry is an optional node-specific payload for the per-node audit event.
	AuditEntry map[string]any
}

// Suspend builds an Action requesting the given callbacks.
func Suspend(callbacks ...Callback) Action {
	return Action{Suspends: true, Callbacks: callbacks}
}

// GoTo builds an Action moving along outcome.
func GoTo(outcome string) Action {
	return Action{Outcome: outcome}
}

// TreeContext is what a node sees while processing.
type TreeContext struct {
	Realm    string
	Flow     string
	NodeID   uuid.UUID
	ClientIP string

	// SharedState and TransientState are read-only snapshots; changes go through Action deltas.
	SharedState    map[string]any
	TransientState map[string]any

	// Answers holds the callback answers supplied with this request (nil when resuming nothing).
	Answers map[string]any
}

// HasAnswers reports whether the client supplied callback answers for this evaluation.
func (c *TreeContext) HasAnswers() bool {
	return len(c.Answers) > 0
}

// PendingInteraction is returned when a node suspends.
type PendingInteraction struct {
	NodeID    uuid.UUID  `json:"nodeId"`
	NodeType  string     `json:"nodeType"`
	Callbacks []Callback `json:"callbacks"`
}

// FlowResult is the terminal artifact of one complete flow execution.
type FlowResult struct {
	FinalOutcome Outcome    `json:"outcome"`
	FinalState   *FlowState `json:"-"`
}

// Step is the result of advancing a flow: exactly one of Pending or Result is set.
type Step struct {
	State   *FlowState
	Pending *PendingInteraction
	Result  *FlowResult
}

// Completed reports whether the step reached a terminal outcome.
func (s *Step) Completed() bool {
	return s != nil && s.Result != nil
}
