// Package errors provides the error taxonomy shared by the flowmind clients.
//
// Every failure a user can see is one of three kinds:
//   - Validation: a local precondition failed; nothing was sent
//   - Transport: the endpoint could not be reached
//   - Service: the endpoint answered with a failure status and maybe a detail
//
// Failures are converted to user-visible text at the component that issued
// the call (see UserMessage); none of them is retried automatically.
package errors

import (
	"errors"
	"strings"
)

// Kind classifies an error for rendering.
type Kind int

const (
	// KindUnknown is any error outside the taxonomy.
	KindUnknown Kind = iota

	// KindValidation is a local precondition failure.
	KindValidation

	// KindTransport is a network or connection failure.
	KindTransport

	// KindService is a failure status reported by a reachable endpoint.
	KindService
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindService:
		return "service"
	default:
		return "unknown"
	}
}

// Classify determines the kind of err.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return KindValidation
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return KindService
	}

	var tErr *TransportError
	if errors.As(err, &tErr) {
		return KindTransport
	}

	return KindUnknown
}

// Detail returns the service-provided detail carried by err, if any.
func Detail(err error) (string, bool) {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && strings.TrimSpace(svcErr.Detail) != "" {
		return svcErr.Detail, true
	}
	return "", false
}

// UserMessage renders err for a person, preferring the service's detail,
// then the error text, then fallback.
func UserMessage(err error, fallback string) string {
	if detail, ok := Detail(err); ok {
		return detail
	}
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			return msg
		}
	}
	return fallback
}

// Validation creates a validation error.
func Validation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
