package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupMetricsTest(t *testing.T) *sdkmetric.ManualReader {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	t.Cleanup(func() {
		otel.SetMeterProvider(original)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("shutting down meter provider: %v", err)
		}
	})
	return reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the counter value for the datapoint whose attribute key
// equals value.
func sumFor(t *testing.T, m *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum type")
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.Emit() == value {
			total += dp.Value
		}
	}
	return total
}

func TestNewMetricsRecorder(t *testing.T) {
	setupMetricsTest(t)

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)
	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop)
}

func TestRecordExecution(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordExecution(ctx, "success", 40*time.Millisecond)
	m.RecordExecution(ctx, "success", 10*time.Millisecond)
	m.RecordExecution(ctx, "failure", 5*time.Millisecond)

	rm := collectMetrics(t, reader)
	count := findMetric(rm, "flowmind.execution.count")
	assert.Equal(t, int64(2), sumFor(t, count, "outcome", "success"))
	assert.Equal(t, int64(1), sumFor(t, count, "outcome", "failure"))

	latency := findMetric(rm, "flowmind.execution.latency_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.NotEmpty(t, hist.DataPoints)
}

func TestRecordSaveAndUpload(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordSave(ctx, true)
	m.RecordUpload(ctx, "docs", 4, nil)
	m.RecordUpload(ctx, "docs", 0, errors.New("rejected"))

	rm := collectMetrics(t, reader)
	assert.NotNil(t, findMetric(rm, "flowmind.workflow.saves"))
	assert.Equal(t, int64(2), sumFor(t, findMetric(rm, "flowmind.upload.count"), "collection", "docs"))

	chunks := findMetric(rm, "flowmind.upload.chunks")
	require.NotNil(t, chunks)
	hist, ok := chunks.Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
}

func TestRecordNodeRun(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordNodeRun(ctx, "llmNode", time.Millisecond, nil)
	m.RecordNodeRun(ctx, "searchNode", time.Millisecond, errors.New("quota"))

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), sumFor(t, findMetric(rm, "flowmind.node.runs"), "kind", "llmNode"))
	errs := findMetric(rm, "flowmind.node.errors")
	assert.Equal(t, int64(1), sumFor(t, errs, "kind", "searchNode"))
	assert.Equal(t, int64(0), sumFor(t, errs, "kind", "llmNode"))
}
