package engine

import (
	"log/slog"
	"strings"

	"github.com/randalmurphal/flowmind/pkg/flowmind/observability"
)

// DefaultMaxVisits bounds the walk so cyclic graphs terminate.
const DefaultMaxVisits = 1000

// Option configures an Executor.
type Option func(*Executor)

// WithRetriever sets the retriever used by knowledge nodes.
func WithRetriever(r Retriever) Option {
	return func(e *Executor) {
		e.retriever = r
	}
}

// WithSearcher sets the searcher used by search nodes.
func WithSearcher(s Searcher) Option {
	return func(e *Executor) {
		e.searcher = s
	}
}

// WithGenerator sets the generator used when no provider-specific
// generator is registered.
func WithGenerator(g Generator) Option {
	return func(e *Executor) {
		e.generator = g
	}
}

// WithProvider registers g for llm nodes whose provider field is name.
// Matching is case-insensitive.
func WithProvider(name string, g Generator) Option {
	return func(e *Executor) {
		e.providers[strings.ToLower(name)] = g
	}
}

// WithMaxVisits sets the visit limit. Values below 1 are ignored.
func WithMaxVisits(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxVisits = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics recorder for node runs.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithSpanManager sets the span manager for execution and node spans.
func WithSpanManager(s observability.SpanManager) Option {
	return func(e *Executor) {
		e.spans = s
	}
}
