package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for execution.
var (
	// ErrNoGraph indicates the request carried no graph.
	ErrNoGraph = errors.New("a workflow graph must be provided for execution")

	// ErrNoEntryNode indicates the graph has no query node to start from.
	// The text is shown to users as is.
	ErrNoEntryNode = errors.New("Workflow configuration error: No 'User Query' node found.")

	// ErrVisitLimit indicates the walk exceeded the configured visit limit.
	ErrVisitLimit = errors.New("exceeded maximum node visits")
)

// NodeError wraps a failure with the node that produced it.
type NodeError struct {
	NodeID string
	Kind   string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.NodeID, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// VisitLimitError reports a walk that did not terminate.
type VisitLimitError struct {
	Max        int
	LastNodeID string
}

// Error implements the error interface.
func (e *VisitLimitError) Error() string {
	return fmt.Sprintf("exceeded maximum node visits (%d) at node %s", e.Max, e.LastNodeID)
}

// Unwrap returns ErrVisitLimit.
func (e *VisitLimitError) Unwrap() error {
	return ErrVisitLimit
}
