// Package studio assembles a flowmind editing session: one graph, its
// node editor, the chat conversation, the execution client and the
// persistence client, all bound to a single backend.
//
// Saves are requested by message: a SaveRequest carries the workflow name
// and a reply channel, and Run takes the snapshot from the store at the
// moment it handles the request.
package studio

import (
	"context"
	"errors"
	"log/slog"

	"github.com/randalmurphal/flowmind/pkg/flowmind/conversation"
	"github.com/randalmurphal/flowmind/pkg/flowmind/editor"
	"github.com/randalmurphal/flowmind/pkg/flowmind/execution"
	"github.com/randalmurphal/flowmind/pkg/flowmind/graph"
	"github.com/randalmurphal/flowmind/pkg/flowmind/observability"
	"github.com/randalmurphal/flowmind/pkg/flowmind/persist"
)

// ErrClosed is returned by RequestSave once Run has stopped.
var ErrClosed = errors.New("workspace is not running")

// ErrBusy is returned by Open while an execution is in flight.
var ErrBusy = errors.New("an execution is in flight")

// Backend is everything a workspace talks to. *transport.Client satisfies it.
type Backend interface {
	execution.Executor
	persist.Backend
	editor.Uploader
}

// SaveRequest asks Run to persist the current graph under Name.
type SaveRequest struct {
	Name  string
	Reply chan<- SaveReply
}

// SaveReply answers a SaveRequest.
type SaveReply struct {
	Saved *persist.Saved
	Err   error
}

// Workspace is one editing session.
type Workspace struct {
	store   *graph.Store
	editor  *editor.Editor
	conv    *conversation.Conversation
	exec    *execution.Client
	persist *persist.Client

	saves  chan SaveRequest
	done   chan struct{}
	logger *slog.Logger
}

type settings struct {
	store   *graph.Store
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	hook    func(from, to execution.State)
}

// Option configures a Workspace.
type Option func(*settings)

// WithStore uses store instead of a fresh one seeded with the entry node.
func WithStore(store *graph.Store) Option {
	return func(s *settings) {
		s.store = store
	}
}

// WithLogger sets the logger for every component.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// WithMetrics sets the metrics recorder for every component.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// WithSpanManager sets the span manager used for executions.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(s *settings) {
		s.spans = sm
	}
}

// WithStateHook observes execution state transitions.
func WithStateHook(fn func(from, to execution.State)) Option {
	return func(s *settings) {
		s.hook = fn
	}
}

// New creates a workspace bound to backend.
func New(backend Backend, opts ...Option) *Workspace {
	cfg := settings{
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.store == nil {
		cfg.store = graph.NewStore(graph.WithEntryNode())
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	conv := conversation.NewWithGreeting()
	execOpts := []execution.Option{
		execution.WithLogger(cfg.logger),
		execution.WithMetrics(cfg.metrics),
		execution.WithSpanManager(cfg.spans),
	}
	if cfg.hook != nil {
		execOpts = append(execOpts, execution.WithStateHook(cfg.hook))
	}

	return &Workspace{
		store: cfg.store,
		editor: editor.New(cfg.store,
			editor.WithUploader(backend),
			editor.WithLogger(cfg.logger),
			editor.WithMetrics(cfg.metrics)),
		conv: conv,
		exec: execution.New(backend, cfg.store, conv, execOpts...),
		persist: persist.New(backend,
			persist.WithLogger(cfg.logger),
			persist.WithMetrics(cfg.metrics)),
		saves:  make(chan SaveRequest),
		done:   make(chan struct{}),
		logger: cfg.logger,
	}
}

// Store returns the live graph.
func (w *Workspace) Store() *graph.Store { return w.store }

// Editor returns the node editor.
func (w *Workspace) Editor() *editor.Editor { return w.editor }

// Conversation returns the chat history.
func (w *Workspace) Conversation() *conversation.Conversation { return w.conv }

// Execution returns the execution client.
func (w *Workspace) Execution() *execution.Client { return w.exec }

// Persistence returns the persistence client.
func (w *Workspace) Persistence() *persist.Client { return w.persist }

// Saves returns the channel Run consumes save requests from.
func (w *Workspace) Saves() chan<- SaveRequest { return w.saves }

// Run handles save requests until ctx is done.
func (w *Workspace) Run(ctx context.Context) error {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-w.saves:
			saved, err := w.persist.Save(ctx, req.Name, w.store.Snapshot())
			if req.Reply == nil {
				continue
			}
			select {
			case req.Reply <- SaveReply{Saved: saved, Err: err}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// RequestSave sends a save request to Run and waits for the reply.
func (w *Workspace) RequestSave(ctx context.Context, name string) (*persist.Saved, error) {
	reply := make(chan SaveReply, 1)
	select {
	case w.saves <- SaveRequest{Name: name, Reply: reply}:
	case <-w.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.Saved, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send submits a chat message and waits for it to settle.
func (w *Workspace) Send(ctx context.Context, message string) execution.Result {
	return w.exec.Submit(ctx, message)
}

// Open replaces the graph with the workflow saved under name and starts a
// fresh conversation. The current graph is kept if loading fails. Open
// returns ErrBusy while an execution is pending.
func (w *Workspace) Open(ctx context.Context, name string) error {
	if w.exec.Pending() {
		return ErrBusy
	}
	snap, err := w.persist.Load(ctx, name)
	if err != nil {
		return err
	}
	if err := w.store.Load(snap); err != nil {
		return err
	}
	w.conv.Reset(conversation.Assistant(conversation.Greeting))
	w.logger.Info("workflow opened", slog.String("name", name), slog.Int("nodes", len(snap.Nodes)))
	return nil
}
