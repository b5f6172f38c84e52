package errors

import (
	"fmt"
	"strings"
)

// ValidationError indicates a local precondition failure: an empty name,
// an empty message, a missing entry node or a field value that breaks
// its rule. It never reaches the network.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// TransportError indicates the endpoint could not be reached or the
// exchange broke before a response was read.
type TransportError struct {
	Endpoint string
	Err      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport failure at %s", e.Endpoint)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServiceError indicates the endpoint responded with a failure status.
// Detail holds the service's own structured explanation when the body
// carried one.
type ServiceError struct {
	StatusCode int
	Endpoint   string
	Detail     string
	Status     string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = strings.TrimSpace(e.Status)
	}
	if msg == "" {
		msg = "request failed"
	}
	if e.Endpoint != "" {
		return fmt.Sprintf("HTTP %d at %s: %s", e.StatusCode, e.Endpoint, msg)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, msg)
}

// PanicError captures a panic recovered at a component boundary.
type PanicError struct {
	// Op names the operation that panicked.
	Op string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Op, e.Value)
}
