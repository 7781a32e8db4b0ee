package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a lifecycle event.
type EventType string

const (
	EventNodeEnter     EventType = "node_enter"
	EventNodeLeave     EventType = "node_leave"
	EventFlowEnter     EventType = "flow_enter"
	EventFlowComplete  EventType = "flow_complete"
	EventNodeSuspended EventType = "node_suspended"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Realm     string    `json:"realm"`
	Flow      string    `json:"flow"`
}

// NodeEvent represents entry into, suspension on or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID   uuid.UUID `json:"node_id"`
	NodeType string    `json:"node_type"`
	Outcome  string    `json:"outcome,omitempty"` // set on leave
}

// FlowEvent represents entry into or completion of a (possibly inner) flow.
type FlowEvent struct {
	EventBase
	Depth   int     `json:"depth"`
	Outcome Outcome `json:"outcome,omitempty"` // set on completion
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeEnter     func(context.Context, *NodeEvent)
	OnNodeSuspended func(context.Context, *NodeEvent)
	OnNodeLeave     func(context.Context, *NodeEvent)
	OnFlowEnter     func(context.Context, *FlowEvent)
	OnFlowComplete  func(context.Context, *FlowEvent)
}

// AuditEvent is the structured record handed to audit publishers.
type AuditEvent struct {
	ID        uuid.UUID      `json:"_id"`
	Timestamp time.Time      `json:"timestamp"`
	EventName string         `json:"eventName"`
	Component string         `json:"component"`
	Realm     string         `json:"realm"`
	Principal string         `json:"principal,omitempty"`
	SessionID string         `json:"trackingId,omitempty"`
	Result    string         `json:"result,omitempty"`
	ClientIP  string         `json:"clientIp,omitempty"`
	Entries   map[string]any `json:"entries,omitempty"`
}
