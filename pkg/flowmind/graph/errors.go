// Package graph holds the workflow graph: typed nodes, edges, the focused
// node and the snapshots taken for saving and execution.
package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for store mutations. They guard invariants a closed UI
// should never violate; the store rejects the mutation instead of
// corrupting state.
var (
	// ErrInvalidType indicates a node kind outside the closed set.
	ErrInvalidType = errors.New("invalid node type")

	// ErrNodeNotFound indicates a reference to a node that does not exist.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNode indicates a loaded graph repeats a node id.
	ErrDuplicateNode = errors.New("duplicate node id")
)

// EdgeError wraps an error with the offending edge's endpoints.
type EdgeError struct {
	Source string
	Target string
	Err    error
}

// Error implements the error interface.
func (e *EdgeError) Error() string {
	return fmt.Sprintf("edge %s -> %s: %v", e.Source, e.Target, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *EdgeError) Unwrap() error {
	return e.Err
}
