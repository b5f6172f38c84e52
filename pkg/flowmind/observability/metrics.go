package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records flowmind metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordExecution records a settled execution and its outcome.
	RecordExecution(ctx context.Context, outcome string, duration time.Duration)

	// RecordSave records a workflow save attempt.
	RecordSave(ctx context.Context, success bool)

	// RecordUpload records a document upload and the chunks it produced.
	RecordUpload(ctx context.Context, collection string, chunks int, err error)

	// RecordNodeRun records one engine node run.
	RecordNodeRun(ctx context.Context, kind string, duration time.Duration, err error)
}

type otelMetrics struct {
	executions       metric.Int64Counter
	executionLatency metric.Float64Histogram
	saves            metric.Int64Counter
	uploads          metric.Int64Counter
	uploadChunks     metric.Int64Histogram
	nodeRuns         metric.Int64Counter
	nodeLatency      metric.Float64Histogram
	nodeErrors       metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("flowmind")
	m := &otelMetrics{}
	var err error

	if m.executions, err = meter.Int64Counter("flowmind.execution.count",
		metric.WithDescription("Number of settled executions"),
	); err != nil {
		return nil, err
	}
	if m.executionLatency, err = meter.Float64Histogram("flowmind.execution.latency_ms",
		metric.WithDescription("Execution round trip latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.saves, err = meter.Int64Counter("flowmind.workflow.saves",
		metric.WithDescription("Number of workflow save attempts"),
	); err != nil {
		return nil, err
	}
	if m.uploads, err = meter.Int64Counter("flowmind.upload.count",
		metric.WithDescription("Number of document uploads"),
	); err != nil {
		return nil, err
	}
	if m.uploadChunks, err = meter.Int64Histogram("flowmind.upload.chunks",
		metric.WithDescription("Chunks produced per upload"),
	); err != nil {
		return nil, err
	}
	if m.nodeRuns, err = meter.Int64Counter("flowmind.node.runs",
		metric.WithDescription("Number of engine node runs"),
	); err != nil {
		return nil, err
	}
	if m.nodeLatency, err = meter.Float64Histogram("flowmind.node.latency_ms",
		metric.WithDescription("Engine node latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.nodeErrors, err = meter.Int64Counter("flowmind.node.errors",
		metric.WithDescription("Number of engine node failures"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by the global OTel
// meter provider. If initialization fails, it returns a no-op recorder.
//
// Configure the provider before calling:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordExecution(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.executions.Add(ctx, 1, attrs)
	m.executionLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (m *otelMetrics) RecordSave(ctx context.Context, success bool) {
	m.saves.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

func (m *otelMetrics) RecordUpload(ctx context.Context, collection string, chunks int, err error) {
	attrs := metric.WithAttributes(
		attribute.String("collection", collection),
		attribute.Bool("success", err == nil),
	)
	m.uploads.Add(ctx, 1, attrs)
	if err == nil {
		m.uploadChunks.Record(ctx, int64(chunks), attrs)
	}
}

func (m *otelMetrics) RecordNodeRun(ctx context.Context, kind string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.nodeRuns.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}
