package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// emptyError has an empty message, which happens with some wrapped
// transport failures.
type emptyError struct{}

func (emptyError) Error() string { return "" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"validation", Validation("name", "required"), KindValidation},
		{"transport", &TransportError{Endpoint: "/x", Err: errors.New("refused")}, KindTransport},
		{"service", &ServiceError{StatusCode: 500}, KindService},
		{"wrapped service", fmt.Errorf("save: %w", &ServiceError{StatusCode: 404}), KindService},
		{"wrapped validation", fmt.Errorf("edit: %w", Validation("", "bad")), KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "validation", KindValidation.String())
	assert.Equal(t, "transport", KindTransport.String())
	assert.Equal(t, "service", KindService.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}

func TestUserMessage_Priority(t *testing.T) {
	const fallback = "something went wrong"

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"detail wins", &ServiceError{StatusCode: 429, Detail: "rate limited", Status: "429 Too Many Requests"}, "rate limited"},
		{"wrapped detail", fmt.Errorf("execute: %w", &ServiceError{StatusCode: 500, Detail: "boom"}), "boom"},
		{"service without detail", &ServiceError{StatusCode: 502, Status: "502 Bad Gateway"}, "HTTP 502: 502 Bad Gateway"},
		{"transport text", &TransportError{Endpoint: "/chat/execute", Err: errors.New("connection refused")}, "connection refused"},
		{"plain text", errors.New("oops"), "oops"},
		{"empty text", emptyError{}, fallback},
		{"nil", nil, fallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err, fallback))
		})
	}
}

func TestServiceError_Error(t *testing.T) {
	err := &ServiceError{StatusCode: 404, Endpoint: "/api/v1/workflows/x", Detail: "Workflow not found"}
	assert.Equal(t, "HTTP 404 at /api/v1/workflows/x: Workflow not found", err.Error())

	bare := &ServiceError{StatusCode: 500}
	assert.Equal(t, "HTTP 500: request failed", bare.Error())
}

func TestTransportError_Unwrap(t *testing.T) {
	inner := errors.New("dial tcp: refused")
	err := &TransportError{Endpoint: "/x", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "dial tcp: refused", err.Error())
	assert.Equal(t, "transport failure at /x", (&TransportError{Endpoint: "/x"}).Error())
}

func TestValidationError_Error(t *testing.T) {
	assert.Equal(t, "validation error on name: must not be empty", Validation("name", "must not be empty").Error())
	assert.Equal(t, "validation error: bad", Validation("", "bad").Error())
}

func TestPanicError_Error(t *testing.T) {
	err := &PanicError{Op: "execute", Value: "nil map"}
	assert.Equal(t, "execute panicked: nil map", err.Error())
	assert.Equal(t, KindUnknown, Classify(err))
}
