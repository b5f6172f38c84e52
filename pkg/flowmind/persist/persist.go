// Package persist saves and loads workflow graphs through the flowmind
// service. It performs no retries and keeps no cache.
package persist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/flowmind/pkg/flowmind/api"
	fmerrors "github.com/randalmurphal/flowmind/pkg/flowmind/errors"
	"github.com/randalmurphal/flowmind/pkg/flowmind/graph"
	"github.com/randalmurphal/flowmind/pkg/flowmind/observability"
)

// Backend is the remote side of persistence. *transport.Client satisfies it.
type Backend interface {
	SaveWorkflow(ctx context.Context, name string, snap graph.Snapshot) (api.SaveResponse, error)
	LoadWorkflow(ctx context.Context, name string) (graph.Snapshot, error)
	ListWorkflows(ctx context.Context) ([]api.WorkflowSummary, error)
}

// Saved acknowledges a stored workflow.
type Saved struct {
	ID      string
	Message string
}

// PersistError reports a failed save or load. Reason is the service's
// detail when it sent one, otherwise the error text.
type PersistError struct {
	Op     string
	Name   string
	Reason string
	Err    error
}

func (e *PersistError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s failed: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s %q failed: %s", e.Op, e.Name, e.Reason)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

const fallbackReason = "request failed"

// Client saves, loads, and lists workflows.
type Client struct {
	backend Backend
	logger  *slog.Logger
	metrics observability.MetricsRecorder
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics sets the metrics recorder. Defaults to NoopMetrics.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a persistence client.
func New(backend Backend, opts ...Option) *Client {
	c := &Client{
		backend: backend,
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Save stores snap under name. A blank name is rejected locally with a
// *errors.ValidationError and nothing is sent.
func (c *Client) Save(ctx context.Context, name string, snap graph.Snapshot) (*Saved, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmerrors.Validation("name", "workflow name is required")
	}

	resp, err := c.backend.SaveWorkflow(ctx, name, snap)
	c.metrics.RecordSave(ctx, err == nil)
	if err != nil {
		observability.LogSaveError(c.logger, name, err)
		return nil, &PersistError{Op: "save", Name: name, Reason: fmerrors.UserMessage(err, fallbackReason), Err: err}
	}
	observability.LogSave(c.logger, name, resp.ID, resp.Message)
	return &Saved{ID: resp.ID, Message: resp.Message}, nil
}

// Load fetches the graph saved under name.
func (c *Client) Load(ctx context.Context, name string) (graph.Snapshot, error) {
	if strings.TrimSpace(name) == "" {
		return graph.Snapshot{}, fmerrors.Validation("name", "workflow name is required")
	}
	snap, err := c.backend.LoadWorkflow(ctx, name)
	if err != nil {
		return graph.Snapshot{}, &PersistError{Op: "load", Name: name, Reason: fmerrors.UserMessage(err, fallbackReason), Err: err}
	}
	return snap, nil
}

// List returns the saved workflows.
func (c *Client) List(ctx context.Context) ([]api.WorkflowSummary, error) {
	list, err := c.backend.ListWorkflows(ctx)
	if err != nil {
		return nil, &PersistError{Op: "list", Reason: fmerrors.UserMessage(err, fallbackReason), Err: err}
	}
	return list, nil
}
