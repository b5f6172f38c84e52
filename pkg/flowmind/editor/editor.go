// Package editor edits the data of the focused node against a closed,
// per-kind field schema.
//
// Every accepted edit results in exactly one graph.Store.UpdateNodeData
// call for exactly one field. Rejected edits leave the graph untouched.
package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/randalmurphal/flowmind/pkg/flowmind/api"
	fmerrors "github.com/randalmurphal/flowmind/pkg/flowmind/errors"
	"github.com/randalmurphal/flowmind/pkg/flowmind/graph"
	"github.com/randalmurphal/flowmind/pkg/flowmind/observability"
)

// Sentinel errors.
var (
	ErrNoFocus          = errors.New("no node is focused")
	ErrUnknownField     = errors.New("unknown field")
	ErrReadOnlyField    = errors.New("field is read-only")
	ErrNotKnowledgeNode = errors.New("attachments require a knowledge node")
	ErrNoUploader       = errors.New("no uploader configured")
)

// Uploader sends a document to a knowledge collection.
type Uploader interface {
	Upload(ctx context.Context, collection, filename string, r io.Reader) (api.UploadResponse, error)
}

// AttachError reports a failed attachment. Reason is ready for display.
type AttachError struct {
	Filename string
	Reason   string
	Err      error
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("attach %s: %s", e.Filename, e.Reason)
}

func (e *AttachError) Unwrap() error {
	return e.Err
}

// FieldValue is a field paired with its effective value: the stored value,
// or the field default when nothing is stored.
type FieldValue struct {
	Field
	Value any
}

// View is the focused node as the editor presents it.
type View struct {
	Node   graph.Node
	Fields []FieldValue
}

// Editor edits nodes of one store.
type Editor struct {
	store    *graph.Store
	uploader Uploader
	validate *validator.Validate
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
}

// Option configures an Editor.
type Option func(*Editor)

// WithUploader sets the uploader used by Attach.
func WithUploader(u Uploader) Option {
	return func(e *Editor) {
		e.uploader = u
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Editor) {
		e.logger = l
	}
}

// WithMetrics sets the metrics recorder. Defaults to NoopMetrics.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(e *Editor) {
		e.metrics = m
	}
}

// New creates an editor over store.
func New(store *graph.Store, opts ...Option) *Editor {
	e := &Editor{
		store:    store,
		validate: validator.New(),
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Focus selects the node to edit.
func (e *Editor) Focus(nodeID string) error {
	return e.store.Focus(nodeID)
}

// Clear drops the focus.
func (e *Editor) Clear() {
	e.store.ClearFocus()
}

// View returns the focused node and its fields with effective values.
func (e *Editor) View() (View, bool) {
	n, ok := e.store.Focused()
	if !ok {
		return View{}, false
	}
	node := n.Clone()
	fields := Fields(node.Type)
	v := View{Node: node, Fields: make([]FieldValue, len(fields))}
	for i, f := range fields {
		v.Fields[i] = FieldValue{Field: f, Value: effective(node.Data, f)}
	}
	return v, true
}

// Set writes one field of the focused node.
func (e *Editor) Set(field string, value any) error {
	n, ok := e.store.Focused()
	if !ok {
		return ErrNoFocus
	}
	f, ok := lookup(n.Type, field)
	if !ok {
		return fmt.Errorf("%s on %s: %w", field, n.Type, ErrUnknownField)
	}
	if f.ReadOnly {
		return fmt.Errorf("%s: %w", field, ErrReadOnlyField)
	}
	if err := e.check(f, value); err != nil {
		return err
	}
	e.store.UpdateNodeData(n.ID, field, value)
	return nil
}

func (e *Editor) check(f Field, value any) error {
	s, ok := value.(string)
	if !ok {
		return fmerrors.Validation(f.Name, "must be text")
	}
	if f.Rule == "" {
		return nil
	}
	if err := e.validate.Var(s, f.Rule); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmerrors.Validation(f.Name, describe(verrs[0]))
		}
		return fmerrors.Validation(f.Name, err.Error())
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed rule " + fe.Tag()
	}
}

// Attach uploads a document to the focused knowledge node's collection.
// On success the node's files counter grows by one and the service's
// message is returned. On failure the graph is unchanged and the error is
// an *AttachError.
func (e *Editor) Attach(ctx context.Context, filename string, r io.Reader) (string, error) {
	n, ok := e.store.Focused()
	if !ok {
		return "", ErrNoFocus
	}
	if n.Type != graph.KindKnowledge {
		return "", ErrNotKnowledgeNode
	}
	if e.uploader == nil {
		return "", ErrNoUploader
	}

	collection, _ := effective(n.Data, mustLookup(graph.KindKnowledge, "collection")).(string)
	resp, err := e.uploader.Upload(ctx, collection, filename, r)
	e.metrics.RecordUpload(ctx, collection, resp.ChunksAdded, err)
	if err != nil {
		observability.LogUploadError(e.logger, collection, filename, err)
		return "", &AttachError{
			Filename: filename,
			Reason:   fmerrors.UserMessage(err, "Upload failed."),
			Err:      err,
		}
	}
	observability.LogUpload(e.logger, collection, filename, resp.ChunksAdded)

	// Re-read: the node may have been edited while the upload was in flight.
	if cur, ok := e.store.Node(n.ID); ok {
		e.store.UpdateNodeData(n.ID, "files", cur.Data.Int("files")+1)
	}
	return resp.Message, nil
}

func effective(d graph.Data, f Field) any {
	if v, ok := d[f.Name]; ok && v != nil {
		return v
	}
	return f.Default
}

func mustLookup(kind graph.Kind, name string) Field {
	f, ok := lookup(kind, name)
	if !ok {
		panic("editor: missing schema field " + name)
	}
	return f
}
