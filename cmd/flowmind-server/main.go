// Command flowmind-server runs the flowmind HTTP service.
//
// Usage:
//
//	flowmind-server [-config flowmind.yaml] [-env .env] [-addr :8000]
//
// Without an OpenAI or Gemini key llm nodes answer with the echo generator;
// without a SerpAPI key search nodes return a canned result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/randalmurphal/flowmind/pkg/flowmind/config"
	"github.com/randalmurphal/flowmind/pkg/flowmind/docstore"
	"github.com/randalmurphal/flowmind/pkg/flowmind/engine"
	"github.com/randalmurphal/flowmind/pkg/flowmind/observability"
	"github.com/randalmurphal/flowmind/pkg/flowmind/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "flowmind-server:", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", "", "YAML or JSON config file")
	envFile := flag.String("env", ".env", "dotenv file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	settings, err := config.Load(config.LoadOptions{File: *configFile, EnvFile: *envFile})
	if err != nil {
		return err
	}
	if *addr != "" {
		settings.ServerAddr = *addr
	}
	logger := settings.Logger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := docstore.Open(ctx, settings.StoreDriver, settings.StoreDSN)
	if err != nil {
		return fmt.Errorf("open %s store: %w", settings.StoreDriver, err)
	}
	defer store.Close()

	index := engine.NewKeywordIndex()
	metrics := observability.NewMetricsRecorder()
	exec := engine.New(append(engineOptions(settings, logger),
		engine.WithRetriever(index),
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
		engine.WithSpanManager(observability.NewSpanManager()),
	)...)

	srv := server.New(store, exec, index,
		server.WithLogger(logger),
		server.WithMetrics(metrics))

	errc := make(chan error, 1)
	go func() { errc <- srv.Listen(settings.ServerAddr) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// engineOptions picks the searcher and generators the keys allow.
func engineOptions(s config.Settings, logger *slog.Logger) []engine.Option {
	var opts []engine.Option
	if s.SerpAPIKey != "" {
		opts = append(opts, engine.WithSearcher(
			engine.NewSerpAPISearcher(s.SerpAPIKey, engine.WithSearchTimeout(s.RequestTimeout))))
	} else {
		logger.Warn("SerpAPI key not set; search nodes return mock results")
	}

	if s.GeminiKey != "" {
		gen, err := engine.NewGeminiGenerator(context.Background(), s.GeminiKey, s.GeminiModel)
		if err != nil {
			logger.Warn("Gemini generator unavailable", "error", err)
		} else {
			opts = append(opts, engine.WithProvider("gemini", gen))
			if s.OpenAIKey == "" {
				opts = append(opts, engine.WithGenerator(gen))
			}
		}
	}

	if s.OpenAIKey != "" {
		gen := engine.NewOpenAIGenerator(s.OpenAIKey, s.OpenAIModel)
		opts = append(opts,
			engine.WithGenerator(gen),
			engine.WithProvider("openai", gen))
		// Canvas nodes default to the gemini provider; without a Gemini key
		// route them to the configured OpenAI model.
		if s.GeminiKey == "" {
			opts = append(opts, engine.WithProvider("gemini", gen))
		}
	}
	if s.OpenAIKey == "" && s.GeminiKey == "" {
		logger.Warn("no OpenAI or Gemini key set; llm nodes echo their input")
	}
	return opts
}
