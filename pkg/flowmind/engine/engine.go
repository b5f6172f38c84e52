// Package engine runs workflow graphs on the service side.
//
// A run starts at the first query node and follows the first outgoing
// edge of every node it visits. Nodes share a blackboard: knowledge and
// search nodes add context, llm nodes write the answer, and the output
// node ends the run with that answer. A graph without an output node
// ends when the walk reaches a node with no outgoing edge.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/flowmind/pkg/flowmind/api"
	"github.com/randalmurphal/flowmind/pkg/flowmind/conversation"
	fmerrors "github.com/randalmurphal/flowmind/pkg/flowmind/errors"
	"github.com/randalmurphal/flowmind/pkg/flowmind/graph"
	"github.com/randalmurphal/flowmind/pkg/flowmind/observability"
)

// Node field defaults applied when a field is absent.
const (
	DefaultProvider = "openai"
	DefaultModel    = "gpt-3.5-turbo"
)

// Blackboard is the state shared between the nodes of one run.
type Blackboard struct {
	Query     string
	History   []conversation.Turn
	Knowledge string
	Search    string
	Answer    string
	Sources   []string
}

// Executor runs graphs. It is safe for concurrent use once constructed.
type Executor struct {
	retriever Retriever
	searcher  Searcher
	generator Generator
	providers map[string]Generator
	maxVisits int
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager
}

// New creates an executor. Without options it uses an empty keyword
// index, the offline searcher and the echo generator.
func New(opts ...Option) *Executor {
	e := &Executor{
		retriever: NewKeywordIndex(),
		searcher:  MockSearcher{},
		generator: EchoGenerator{},
		providers: make(map[string]Generator),
		maxVisits: DefaultMaxVisits,
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Execute runs req.Graph against req.Message.
func (e *Executor) Execute(ctx context.Context, req api.ExecuteRequest) (resp api.ExecuteResponse, err error) {
	if req.Graph == nil {
		return api.ExecuteResponse{}, ErrNoGraph
	}

	runID := uuid.New().String()
	logger := observability.EnrichLogger(e.logger, runID)
	elapsed := observability.TimedOperation()
	observability.LogExecutionStart(logger, runID, len(req.Graph.Nodes), len(req.History))

	ctx, span := e.spans.StartExecutionSpan(ctx, runID)
	defer func() {
		e.spans.EndSpanWithError(span, err)
		if err != nil {
			observability.LogExecutionError(logger, runID, err, elapsed())
			return
		}
		observability.LogExecutionSettled(logger, runID, "success", elapsed())
	}()

	board := &Blackboard{Query: req.Message, History: req.History}
	if err := e.walk(ctx, logger, *req.Graph, board); err != nil {
		return api.ExecuteResponse{}, err
	}
	return api.ExecuteResponse{Response: board.Answer, Sources: board.Sources}, nil
}

// walk visits nodes from the entry until an output node, a node without
// outgoing edges, or an error.
func (e *Executor) walk(ctx context.Context, logger *slog.Logger, g graph.Snapshot, board *Blackboard) error {
	entry, ok := entryNode(g)
	if !ok {
		return ErrNoEntryNode
	}

	nodes := make(map[string]graph.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes[n.ID] = n
	}
	next := firstTargets(g)

	current := entry.ID
	for visits := 1; ; visits++ {
		if visits > e.maxVisits {
			return &VisitLimitError{Max: e.maxVisits, LastNodeID: current}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("execution cancelled at node %s: %w", current, err)
		}

		node, ok := nodes[current]
		if !ok {
			// Edges may point at nodes missing from a hand-written document.
			return &NodeError{NodeID: current, Kind: "unknown", Err: graph.ErrNodeNotFound}
		}
		done, err := e.visit(ctx, logger, node, board)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		target, ok := next[current]
		if !ok {
			return nil
		}
		current = target
	}
}

// visit runs one node with logging, metrics, tracing and panic recovery.
// done reports that the run has reached its output.
func (e *Executor) visit(ctx context.Context, logger *slog.Logger, node graph.Node, board *Blackboard) (done bool, err error) {
	kind := string(node.Type)
	observability.LogNodeStart(logger, node.ID, kind)

	nodeCtx, span := e.spans.StartNodeSpan(ctx, node.ID, kind)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &fmerrors.PanicError{
				Op:    "node " + node.ID,
				Value: r,
				Stack: string(debug.Stack()),
			}
		}
		if err != nil {
			err = &NodeError{NodeID: node.ID, Kind: kind, Err: err}
		}

		duration := time.Since(start)
		e.metrics.RecordNodeRun(nodeCtx, kind, duration, err)
		e.spans.EndSpanWithError(span, err)
		if err != nil {
			observability.LogNodeError(logger, node.ID, err)
			return
		}
		observability.LogNodeComplete(logger, node.ID, float64(duration.Milliseconds()))
	}()

	switch node.Type {
	case graph.KindQuery:
		// The query is already on the blackboard.
	case graph.KindKnowledge:
		err = e.retrieve(nodeCtx, node, board)
	case graph.KindSearch:
		err = e.search(nodeCtx, board)
	case graph.KindLLM:
		err = e.generate(nodeCtx, node, board)
	case graph.KindOutput:
		done = true
	default:
		logger.Warn("skipping node of unknown kind", slog.String("node_id", node.ID), slog.String("kind", kind))
	}
	return done, err
}

func (e *Executor) retrieve(ctx context.Context, node graph.Node, board *Blackboard) error {
	collection := node.Data.String("collection")
	if collection == "" {
		collection = api.DefaultCollection
	}
	chunks, err := e.retriever.Query(ctx, collection, board.Query, DefaultTopK)
	if err != nil {
		return fmt.Errorf("query collection %s: %w", collection, err)
	}

	passages := make([]string, 0, len(chunks))
	for _, c := range chunks {
		passages = append(passages, c.Render())
		board.addSource(c.Source)
	}
	board.Knowledge += strings.Join(passages, "\n\n")
	e.spans.AddSpanEvent(ctx, "retrieved",
		attribute.String("collection", collection),
		attribute.Int("passages", len(chunks)))
	return nil
}

func (e *Executor) search(ctx context.Context, board *Blackboard) error {
	results, err := e.searcher.Search(ctx, board.Query)
	if err != nil {
		return fmt.Errorf("web search: %w", err)
	}
	board.Search += "\n\nLatest Web Info:\n" + results
	return nil
}

func (e *Executor) generate(ctx context.Context, node graph.Node, board *Blackboard) error {
	provider := node.Data.String("provider")
	if provider == "" {
		provider = DefaultProvider
	}
	model := node.Data.String("model")
	if model == "" {
		model = DefaultModel
	}

	gen, ok := e.providers[strings.ToLower(provider)]
	if !ok {
		gen = e.generator
	}
	e.spans.AddSpanEvent(ctx, "generate",
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.Bool("fallback", !ok))
	answer, err := gen.Generate(ctx, GenerateRequest{
		Provider: provider,
		Model:    model,
		Query:    board.Query,
		Context:  strings.TrimSpace(board.Knowledge + "\n" + board.Search),
		History:  board.History,
	})
	if err != nil {
		return fmt.Errorf("generate with %s/%s: %w", provider, model, err)
	}
	board.Answer = answer
	return nil
}

func (b *Blackboard) addSource(source string) {
	if source == "" {
		return
	}
	for _, s := range b.Sources {
		if s == source {
			return
		}
	}
	b.Sources = append(b.Sources, source)
}

// entryNode returns the first query node in document order.
func entryNode(g graph.Snapshot) (graph.Node, bool) {
	for _, n := range g.Nodes {
		if n.Type == graph.EntryKind {
			return n, true
		}
	}
	return graph.Node{}, false
}

// firstTargets maps every source to the target of its first edge in
// document order.
func firstTargets(g graph.Snapshot) map[string]string {
	out := make(map[string]string, len(g.Edges))
	for _, edge := range g.Edges {
		if _, seen := out[edge.Source]; !seen {
			out[edge.Source] = edge.Target
		}
	}
	return out
}
