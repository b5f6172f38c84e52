// Package observability provides structured logging, metrics, and tracing
// for flowmind executions, saves, uploads, and engine node runs.
//
// Logging uses slog. Metrics and tracing use the global OpenTelemetry
// providers. Every recorder has a no-op implementation for when the
// feature is disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds run context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", slog.String("node_id", "dndnode_1"))
//	enriched.Info("submitting") // includes run_id and node_id
func EnrichLogger(logger *slog.Logger, runID string, attrs ...slog.Attr) *slog.Logger {
	if logger == nil {
		return nil
	}
	args := make([]any, 0, len(attrs)+1)
	args = append(args, slog.String("run_id", runID))
	for _, a := range attrs {
		args = append(args, a)
	}
	return logger.With(args...)
}

// LogExecutionStart logs a submitted execution.
func LogExecutionStart(logger *slog.Logger, runID string, nodes, historyLen int) {
	if logger == nil {
		return
	}
	logger.Info("execution submitted",
		slog.String("run_id", runID),
		slog.Int("nodes", nodes),
		slog.Int("history", historyLen),
	)
}

// LogExecutionSettled logs a settled execution.
func LogExecutionSettled(logger *slog.Logger, runID, outcome string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("execution settled",
		slog.String("run_id", runID),
		slog.String("outcome", outcome),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogExecutionError logs a failed execution.
func LogExecutionError(logger *slog.Logger, runID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("execution failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogExecutionDropped logs a message that never reached the service.
func LogExecutionDropped(logger *slog.Logger, reason string) {
	if logger == nil {
		return
	}
	logger.Debug("execution dropped",
		slog.String("reason", reason),
	)
}

// LogNodeStart logs an engine node starting.
func LogNodeStart(logger *slog.Logger, nodeID, kind string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
		slog.String("kind", kind),
	)
}

// LogNodeComplete logs an engine node finishing.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs an engine node failure.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogSave logs a persisted workflow.
func LogSave(logger *slog.Logger, name, id, message string) {
	if logger == nil {
		return
	}
	logger.Info("workflow saved",
		slog.String("name", name),
		slog.String("id", id),
		slog.String("message", message),
	)
}

// LogSaveError logs a failed save (non-fatal to the graph).
func LogSaveError(logger *slog.Logger, name string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("workflow save failed",
		slog.String("name", name),
		slog.String("error", err.Error()),
	)
}

// LogUpload logs an uploaded document.
func LogUpload(logger *slog.Logger, collection, filename string, chunks int) {
	if logger == nil {
		return
	}
	logger.Info("document uploaded",
		slog.String("collection", collection),
		slog.String("filename", filename),
		slog.Int("chunks", chunks),
	)
}

// LogUploadError logs a failed upload.
func LogUploadError(logger *slog.Logger, collection, filename string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("document upload failed",
		slog.String("collection", collection),
		slog.String("filename", filename),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// The returned function reports the elapsed time in milliseconds.
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
