// Package server is the flowmind HTTP service. It stores workflow
// documents, runs graphs and ingests knowledge documents.
//
// Every error response has the body {"detail": "..."}.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/randalmurphal/flowmind/pkg/flowmind/api"
	"github.com/randalmurphal/flowmind/pkg/flowmind/docstore"
	"github.com/randalmurphal/flowmind/pkg/flowmind/engine"
	"github.com/randalmurphal/flowmind/pkg/flowmind/observability"
)

// Fiber route patterns.
const (
	routeWorkflow = "/api/v1/workflows/:name"
)

// DefaultMaxUploadBytes bounds an uploaded document.
const DefaultMaxUploadBytes = 4 << 20

// Executor runs a graph against a message.
type Executor interface {
	Execute(ctx context.Context, req api.ExecuteRequest) (api.ExecuteResponse, error)
}

// KnowledgeBase receives ingested chunks. *engine.KeywordIndex satisfies it.
type KnowledgeBase interface {
	Add(collection string, chunks []engine.Chunk) int
	Collections() []string
}

// Server serves the flowmind API.
type Server struct {
	app       *fiber.App
	store     docstore.Store
	exec      Executor
	knowledge KnowledgeBase
	validate  *validator.Validate
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	maxUpload int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder for uploads.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithMaxUploadBytes bounds uploaded documents.
func WithMaxUploadBytes(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// New creates a server over store, exec and knowledge.
func New(store docstore.Store, exec Executor, knowledge KnowledgeBase, opts ...Option) *Server {
	s := &Server{
		store:     store,
		exec:      exec,
		knowledge: knowledge,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    slog.Default(),
		metrics:   observability.NoopMetrics{},
		maxUpload: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	s.app = fiber.New(fiber.Config{
		AppName:      api.ServiceName,
		ErrorHandler: s.handleError,
		BodyLimit:    s.maxUpload + 64<<10,
	})
	s.app.Use(recoverer.New())
	s.app.Use(cors.New())
	s.app.Use(s.logRequests)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get(api.PathHealth, s.health)
	s.app.Post(api.PathExecute, s.execute)

	s.app.Post(api.PathSave, s.saveWorkflow)
	s.app.Get(api.PathList, s.listWorkflows)
	s.app.Get(routeWorkflow, s.getWorkflow)
	s.app.Delete(routeWorkflow, s.deleteWorkflow)

	s.app.Get(api.PathCollections, s.collections)
	s.app.Get(api.PathUploadHistory, s.uploadHistory)
	s.app.Post(api.PathUpload, s.upload)
}

// App returns the underlying fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("flowmind service listening", slog.String("addr", addr))
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleError(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()))
	}
	return c.Status(code).JSON(api.ErrorBody{Detail: err.Error()})
}

func (s *Server) logRequests(c fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("request",
		slog.String("method", c.Method()),
		slog.String("path", c.Path()),
		slog.Int("status", c.Response().StatusCode()),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())))
	return err
}

// detail writes an error body with status.
func detail(c fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(api.ErrorBody{Detail: msg})
}
