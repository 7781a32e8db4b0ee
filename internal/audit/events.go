package audit

import (
	"github.com/aretw0/authtree/pkg/domain"
	"github.com/google/uuid"
)

const (
	// Topic is the audit topic authentication events are published on.
	Topic = "authentication"

	// Component is the component name recorded on every event.
	Component = "Authentication"

	EventNodeLoginCompleted = "AM-NODE-LOGIN-COMPLETED"
	EventTreeLoginCompleted = "AM-TREE-LOGIN-COMPLETED"
	EventTreeLoginFailed    = "AM-TREE-LOGIN-FAILED"
)

// Entry keys of the node event payload.
const (
	EntryTreeName    = "treeName"
	EntryNodeType    = "nodeType"
	EntryNodeID      = "nodeId"
	EntryDisplayName = "displayName"
	EntryNodeOutcome = "nodeOutcome"
	EntryAuthLevel   = "authLevel"
	EntryNodeExtra   = "nodeExtraLogging"
)

// NodeEvaluation describes one node evaluation.
type NodeEvaluation struct {
	SessionID   string
	Realm       string
	Flow        string
	NodeID      uuid.UUID
	NodeType    string
	DisplayName string
	Outcome     string

	// Suspended evaluations produce no event.
	Suspended bool

	SharedState map[string]any

	// Extra is the optional node-specific payload.
	Extra map[string]any
}

// FlowCompletion describes the completion of an outermost flow.
type FlowCompletion struct {
	SessionID   string
	Realm       string
	Flow        string
	Outcome     domain.Outcome
	SharedState map[string]any
	ClientIP    string
}

// authLevel reads the auth level at the first level of the shared state nesting that defines it.
func authLevel(shared map[string]any) (int, bool) {
	for level := shared; level != nil; {
		if v, ok := domain.AuthLevel(level); ok {
			return v, true
		}
		next, ok := level[domain.KeySharedState].(map[string]any)
		if !ok {
			break
		}
		level = next
	}
	return 0, false
}

// principal resolves username and realm, preferring the evaluation realm when set.
func principal(shared map[string]any, realm string) (string, string) {
	username, sharedRealm := domain.UnwrapSharedState(shared)
	if realm == "" {
		realm = sharedRealm
	}
	return username, realm
}
