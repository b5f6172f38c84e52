// Package execution runs the chat side of a workflow: it snapshots the
// graph, records the user's message, submits the execution request and
// turns the reply or failure into an assistant turn.
//
// At most one request is in flight per Client. A submission made while
// another is pending is dropped, not queued. Failures never escape as
// errors to the caller's UI; they become conversation turns.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/flowmind/pkg/flowmind/api"
	"github.com/randalmurphal/flowmind/pkg/flowmind/conversation"
	fmerrors "github.com/randalmurphal/flowmind/pkg/flowmind/errors"
	"github.com/randalmurphal/flowmind/pkg/flowmind/graph"
	"github.com/randalmurphal/flowmind/pkg/flowmind/observability"
)

// Assistant turn texts.
const (
	NoticePrefix       = "Execution Notice: "
	FallbackMessage    = "Something went wrong while executing the workflow."
	MissingEntryNotice = NoticePrefix + "Workflow must contain a 'User Query' node to begin execution."
)

// Executor submits an execution request. *transport.Client and
// *engine.Engine satisfy it.
type Executor interface {
	Execute(ctx context.Context, req api.ExecuteRequest) (api.ExecuteResponse, error)
}

// SnapshotSource provides the graph to execute. *graph.Store satisfies it.
type SnapshotSource interface {
	Snapshot() graph.Snapshot
}

// Submission is a prepared request that holds the pending slot until it
// is passed to Resolve.
type Submission struct {
	RunID   string
	Request api.ExecuteRequest

	started  time.Time
	resolved atomic.Bool
}

// Client drives the execution protocol for one conversation.
type Client struct {
	exec   Executor
	source SnapshotSource
	conv   *conversation.Conversation

	pending atomic.Bool
	state   atomic.Int32

	hook    func(from, to State)
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
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

// WithSpanManager sets the span manager. Defaults to NoopSpanManager.
func WithSpanManager(s observability.SpanManager) Option {
	return func(c *Client) {
		c.spans = s
	}
}

// WithStateHook registers fn to observe every state transition.
// fn runs synchronously on the goroutine making the transition.
func WithStateHook(fn func(from, to State)) Option {
	return func(c *Client) {
		c.hook = fn
	}
}

// New creates a client. conv receives every turn the client produces.
func New(exec Executor, source SnapshotSource, conv *conversation.Conversation, opts ...Option) *Client {
	c := &Client{
		exec:    exec,
		source:  source,
		conv:    conv,
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pending reports whether a request is being submitted or awaited.
func (c *Client) Pending() bool {
	return c.pending.Load()
}

// State returns the current protocol state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Conversation returns the conversation the client appends to.
func (c *Client) Conversation() *conversation.Conversation {
	return c.conv
}

// Prepare runs the synchronous phase. It returns either a Submission that
// must be passed to Resolve, or a Result when the request ended without
// a network call (dropped, or settled with the missing entry notice).
func (c *Client) Prepare(message string) (*Submission, *Result) {
	if strings.TrimSpace(message) == "" {
		observability.LogExecutionDropped(c.logger, "blank message")
		return nil, &Result{Outcome: OutcomeDropped}
	}
	if !c.pending.CompareAndSwap(false, true) {
		observability.LogExecutionDropped(c.logger, "request pending")
		return nil, &Result{Outcome: OutcomeDropped}
	}

	handedOff := false
	defer func() {
		if !handedOff {
			c.release()
		}
	}()

	c.transition(StateValidating)
	c.conv.Append(conversation.User(message))

	snap := c.source.Snapshot()
	if !snap.HasKind(graph.EntryKind) {
		c.conv.Append(conversation.Assistant(MissingEntryNotice))
		c.transition(StateSettled)
		err := fmerrors.Validation("graph", "no entry node")
		c.metrics.RecordExecution(context.Background(), OutcomeFailure.String(), 0)
		return nil, &Result{Outcome: OutcomeFailure, Reply: MissingEntryNotice, Err: err}
	}

	sub := &Submission{
		RunID: uuid.NewString(),
		Request: api.ExecuteRequest{
			Graph:   &snap,
			Message: message,
			History: c.conv.Turns(),
		},
		started: time.Now(),
	}
	handedOff = true
	return sub, nil
}

// Resolve runs the network phase of a prepared submission and appends
// exactly one assistant turn. The pending slot is released on every exit
// path, panics included.
func (c *Client) Resolve(ctx context.Context, sub *Submission) Result {
	if sub == nil || !sub.resolved.CompareAndSwap(false, true) {
		return Result{Outcome: OutcomeDropped}
	}
	defer c.release()

	logger := observability.EnrichLogger(c.logger, sub.RunID)
	ctx, span := c.spans.StartExecutionSpan(ctx, sub.RunID)

	c.transition(StateSubmitting)
	observability.LogExecutionStart(logger, sub.RunID, len(sub.Request.Graph.Nodes), len(sub.Request.History))

	c.transition(StateAwaitingResponse)
	resp, err := c.call(ctx, sub.Request)
	c.transition(StateSettled)

	elapsed := time.Since(sub.started)
	c.spans.EndSpanWithError(span, err)

	if err != nil {
		reply := NoticePrefix + fmerrors.UserMessage(err, FallbackMessage)
		c.conv.Append(conversation.Assistant(reply))
		observability.LogExecutionError(logger, sub.RunID, err, float64(elapsed.Milliseconds()))
		c.metrics.RecordExecution(ctx, OutcomeFailure.String(), elapsed)
		return Result{Outcome: OutcomeFailure, Reply: reply, Err: err}
	}

	c.conv.Append(conversation.Assistant(resp.Response))
	observability.LogExecutionSettled(logger, sub.RunID, OutcomeSuccess.String(), float64(elapsed.Milliseconds()))
	c.metrics.RecordExecution(ctx, OutcomeSuccess.String(), elapsed)
	return Result{Outcome: OutcomeSuccess, Reply: resp.Response, Sources: resp.Sources}
}

// Submit runs both phases on the calling goroutine.
func (c *Client) Submit(ctx context.Context, message string) Result {
	sub, res := c.Prepare(message)
	if res != nil {
		return *res
	}
	return c.Resolve(ctx, sub)
}

// SubmitAsync runs Prepare on the calling goroutine, so the user turn is
// visible when it returns, and Resolve on a new goroutine. The channel
// receives exactly one Result.
func (c *Client) SubmitAsync(ctx context.Context, message string) <-chan Result {
	out := make(chan Result, 1)
	sub, res := c.Prepare(message)
	if res != nil {
		out <- *res
		close(out)
		return out
	}
	go func() {
		defer close(out)
		out <- c.Resolve(ctx, sub)
	}()
	return out
}

// call invokes the executor, converting a panic into an error.
func (c *Client) call(ctx context.Context, req api.ExecuteRequest) (resp api.ExecuteResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &fmerrors.PanicError{
				Op:    "execute",
				Value: r,
				Stack: string(debug.Stack()),
			}
		}
	}()
	return c.exec.Execute(ctx, req)
}

func (c *Client) release() {
	c.transition(StateIdle)
	c.pending.Store(false)
}

func (c *Client) transition(to State) {
	from := State(c.state.Swap(int32(to)))
	if from == to {
		return
	}
	if c.logger != nil {
		c.logger.Debug("execution state", slog.String("from", from.String()), slog.String("to", to.String()))
	}
	if c.hook != nil {
		c.hook(from, to)
	}
}

// String renders the result for logs.
func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Outcome, r.Err)
	}
	return r.Outcome.String()
}
