package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultAPIBaseURL     = "http://localhost:8000"
	DefaultRequestTimeout = 60 * time.Second
	DefaultServerAddr     = ":8000"
	DefaultStoreDriver    = "memory"
	DefaultOpenAIModel    = "gpt-3.5-turbo"
	DefaultGeminiModel    = "gemini-1.5-flash"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// Settings is the resolved runtime configuration shared by the client and
// the server binaries.
type Settings struct {
	APIBaseURL     string        `validate:"required,url"`
	RequestTimeout time.Duration `validate:"gte=0"`
	ServerAddr     string        `validate:"required"`
	StoreDriver    string        `validate:"oneof=memory sqlite postgres"`
	StoreDSN       string        `validate:"required_unless=StoreDriver memory"`
	OpenAIKey      string
	OpenAIModel    string `validate:"required"`
	GeminiKey      string
	GeminiModel    string `validate:"required"`
	SerpAPIKey     string
	LogLevel       string `validate:"oneof=debug info warn error"`
	LogFormat      string `validate:"oneof=text json"`
}

// LoadOptions controls where Load looks for values.
type LoadOptions struct {
	// File is an optional YAML or JSON config file.
	File string
	// EnvFile is a dotenv file merged into the process environment.
	// Defaults to ".env"; a missing file is ignored.
	EnvFile string
	// Getenv overrides os.Getenv, mainly for tests.
	Getenv func(string) string
}

// Load resolves Settings. Precedence, highest first: environment
// variables, config file, defaults.
//
// File layout:
//
//	api:     {base_url, timeout}
//	server:  {addr}
//	store:   {driver, dsn}
//	openai:  {api_key, model}
//	gemini:  {api_key, model}
//	serpapi: {api_key}
//	log:     {level, format}
func Load(opts LoadOptions) (Settings, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("load env file: %w", err)
	}

	file := New(nil)
	if opts.File != "" {
		var err error
		if file, err = FromFile(opts.File); err != nil {
			return Settings{}, err
		}
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	api := file.Section("api")
	server := file.Section("server")
	store := file.Section("store")
	openai := file.Section("openai")
	gemini := file.Section("gemini")
	serp := file.Section("serpapi")
	logging := file.Section("log")

	s := Settings{
		APIBaseURL:     firstEnv(getenv, api.String("base_url", DefaultAPIBaseURL), "FLOWMIND_API_URL"),
		RequestTimeout: api.Duration("timeout", DefaultRequestTimeout),
		ServerAddr:     firstEnv(getenv, server.String("addr", DefaultServerAddr), "FLOWMIND_ADDR"),
		StoreDriver:    firstEnv(getenv, store.String("driver", DefaultStoreDriver), "FLOWMIND_STORE"),
		StoreDSN:       firstEnv(getenv, store.String("dsn", ""), "FLOWMIND_STORE_DSN", "DATABASE_URL"),
		OpenAIKey:      firstEnv(getenv, openai.String("api_key", ""), "FLOWMIND_OPENAI_KEY", "OPENAI_API_KEY"),
		OpenAIModel:    firstEnv(getenv, openai.String("model", DefaultOpenAIModel), "FLOWMIND_OPENAI_MODEL"),
		GeminiKey:      firstEnv(getenv, gemini.String("api_key", ""), "FLOWMIND_GEMINI_KEY", "GEMINI_API_KEY"),
		GeminiModel:    firstEnv(getenv, gemini.String("model", DefaultGeminiModel), "FLOWMIND_GEMINI_MODEL"),
		SerpAPIKey:     firstEnv(getenv, serp.String("api_key", ""), "FLOWMIND_SERPAPI_KEY", "SERPAPI_KEY"),
		LogLevel:       strings.ToLower(firstEnv(getenv, logging.String("level", DefaultLogLevel), "FLOWMIND_LOG_LEVEL")),
		LogFormat:      strings.ToLower(firstEnv(getenv, logging.String("format", DefaultLogFormat), "FLOWMIND_LOG_FORMAT")),
	}
	if v := getenv("FLOWMIND_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Settings{}, fmt.Errorf("FLOWMIND_TIMEOUT: %w", err)
		}
		s.RequestTimeout = d
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks the settings against their field rules.
func (s Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// Logger builds the slog logger described by LogLevel and LogFormat.
func (s Settings) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if s.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func firstEnv(getenv func(string) string, fallback string, keys ...string) string {
	for _, k := range keys {
		if v := getenv(k); v != "" {
			return v
		}
	}
	return fallback
}
