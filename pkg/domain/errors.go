package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store (or has expired).
var ErrSessionNotFound = errors.New("session not found")

// ErrFlowNotFound is returned by registries when no flow exists for (realm, name).
var ErrFlowNotFound = errors.New("flow not found")

// ErrNodeCreation marks failures of the node factory; it is a configuration error.
var ErrNodeCreation = errors.New("node creation failed")

// ErrEmbeddingDepthExceeded is returned when inner flows nest deeper than the configured limit.
var ErrEmbeddingDepthExceeded = errors.New("maximum flow embedding depth exceeded")

// ErrUndeclaredEmbedder is returned when a node embeds a flow but its type is not a declared embedder.
var ErrUndeclaredEmbedder = errors.New("node type is not a declared flow embedder")

// ErrStepLimitExceeded is returned when a single request evaluates too many nodes without suspending.
var ErrStepLimitExceeded = errors.New("maximum evaluation steps per request exceeded")

// ErrInvalidAuthID is returned when a client-supplied auth id cannot be verified.
var ErrInvalidAuthID = errors.New("invalid auth id")

// MalformedFlowError rejects a flow definition at build time.
type MalformedFlowError struct {
	Flow   string
	NodeID uuid.UUID
	Reason string
}

func (e *MalformedFlowError) Error() string {
	if e.NodeID != uuid.Nil {
		return fmt.Sprintf("malformed flow %q: node %s: %s", e.Flow, e.NodeID, e.Reason)
	}
	return fmt.Sprintf("malformed flow %q: %s", e.Flow, e.Reason)
}

// UndefinedOutcomeError is returned when a node produces an outcome with no configured connection.
type UndefinedOutcomeError struct {
	Flow     string
	NodeID   uuid.UUID
	NodeType string
	Outcome  string
}

func (e *UndefinedOutcomeError) Error() string {
	return fmt.Sprintf("flow %q: node %s (%s) returned undefined outcome %q", e.Flow, e.NodeID, e.NodeType, e.Outcome)
}

// NodeProcessingFailure wraps an error raised by a node (or by its construction).
type NodeProcessingFailure struct {
	NodeID uuid.UUID
	Cause  error
}

func (e *NodeProcessingFailure) Error() string {
	return fmt.Sprintf("node %s processing failed: %v", e.NodeID, e.Cause)
}

func (e *NodeProcessingFailure) Unwrap() error {
	return e.Cause
}

// FlowAlreadyCompletedError is returned when advancing a flow that already reached a terminal outcome.
type FlowAlreadyCompletedError struct {
	SessionID string
	Outcome   Outcome
}

func (e *FlowAlreadyCompletedError) Error() string {
	return fmt.Sprintf("session %q already completed with %s", e.SessionID, e.Outcome)
}

// ConfigurationValidationError rejects a configuration save (recursion guards).
type ConfigurationValidationError struct {
	Flow   string
	NodeID uuid.UUID
	Reason string
	Cause  error
}

func (e *ConfigurationValidationError) Error() string {
	msg := fmt.Sprintf("invalid configuration for flow %q", e.Flow)
	if e.NodeID != uuid.Nil {
		msg += fmt.Sprintf(" node %s", e.NodeID)
	}
	msg += ": " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConfigurationValidationError) Unwrap() error {
	return e.Cause
}
