package domain

import "github.com/google/uuid"

// Terminal sentinels. They are valid connection targets but never keys of a flow's node map.
var (
	SuccessNodeID = uuid.MustParse("70e691a5-1e33-4ac3-a356-e7b6d60d92e0")
	FailureNodeID = uuid.MustParse("e301438c-0bd0-429c-ab0c-66126501069a")
)

// IsTerminal reports whether id is one of the SUCCESS/FAILURE sentinels.
func IsTerminal(id uuid.UUID) bool {
	return id == SuccessNodeID || id == FailureNodeID
}

// NodeTypeInnerTree is the type of nodes that evaluate another flow as a sub-step.
// The engine handles it natively; the embedded flow name is read from Config["tree"].
const NodeTypeInnerTree = "InnerTreeEvaluatorNode"

// KeyInnerTree is the config key holding the embedded flow name of an inner tree node.
const KeyInnerTree = "tree"

// Inner tree outcomes, derived from the embedded flow's final outcome.
const (
	OutcomeTrue  = "true"
	OutcomeFalse = "false"
)

// NodeDefinition identifies one step of a flow.
type NodeDefinition struct {
	ID          uuid.UUID      `json:"id" yaml:"id"`
	Type        string         `json:"type" yaml:"type"`
	DisplayName string         `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Config      map[string]any `json:"config,omitempty" yaml:"config,omitempty"`

	// Connections maps an outcome to the next node id or to a terminal sentinel.
	Connections map[string]uuid.UUID `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// EmbeddedFlow returns the flow name configured on an inner tree node, or "" for other types.
func (n NodeDefinition) EmbeddedFlow() string {
	if n.Type != NodeTypeInnerTree {
		return ""
	}
	name, _ := n.Config[KeyInnerTree].(string)
	return name
}

func (n NodeDefinition) clone() NodeDefinition {
	out := n
	if n.Config != nil {
		out.Config = cloneMap(n.Config)
	}
	if n.Connections != nil {
		out.Connections = make(map[string]uuid.UUID, len(n.Connections))
		for k, v := range n.Connections {
			out.Connections[k] = v
		}
	}
	return out
}
