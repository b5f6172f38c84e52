package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/flowmind/pkg/flowmind/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessors(t *testing.T) {
	cfg := config.New(map[string]any{
		"name":     "flow",
		"timeout":  "2m",
		"seconds":  3,
		"fseconds": 1.5,
		"nested":   map[string]any{"addr": ":9000"},
	})

	assert.Equal(t, "flow", cfg.String("name", "x"))
	assert.Equal(t, "x", cfg.String("seconds", "x"))
	assert.Equal(t, 2*time.Minute, cfg.Duration("timeout", 0))
	assert.Equal(t, 3*time.Second, cfg.Duration("seconds", 0))
	assert.Equal(t, 1500*time.Millisecond, cfg.Duration("fseconds", 0))
	assert.Equal(t, time.Second, cfg.Duration("name", time.Second))
	assert.True(t, cfg.Has("nested"))
	assert.Equal(t, ":9000", cfg.Section("nested").String("addr", ""))
	assert.False(t, cfg.Section("missing").Has("addr"))
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "c.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("api:\n  timeout: 5s\n"), 0o644))
	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Section("api").Duration("timeout", 0))

	jsonPath := filepath.Join(dir, "c.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"log":{"level":"debug"}}`), 0o644))
	cfg, err = config.FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Section("log").String("level", ""))

	_, err = config.FromFile(filepath.Join(dir, "c.toml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("a: [\n"), 0o644))
	_, err = config.FromFile(bad)
	assert.Error(t, err)
}

func TestFromFile_ExpandsEnv(t *testing.T) {
	t.Setenv("FLOWMIND_TEST_SECRET", "sk-test")
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("openai:\n  api_key: ${FLOWMIND_TEST_SECRET}\n"), 0o644))

	cfg, err := config.FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Section("openai").String("api_key", ""))
}

func TestParse(t *testing.T) {
	cfg, err := config.Parse([]byte("server:\n  addr: ':9001'\n"), "yml")
	require.NoError(t, err)
	assert.Equal(t, ":9001", cfg.Section("server").String("addr", ""))

	cfg, err = config.Parse(nil, "yaml")
	require.NoError(t, err)
	assert.False(t, cfg.Has("server"))

	_, err = config.Parse([]byte("{}"), "ini")
	assert.ErrorContains(t, err, "unsupported config format")
}

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	s, err := config.Load(config.LoadOptions{
		EnvFile: filepath.Join(t.TempDir(), "absent.env"),
		Getenv:  envMap(nil),
	})
	require.NoError(t, err)

	assert.Equal(t, config.DefaultAPIBaseURL, s.APIBaseURL)
	assert.Equal(t, config.DefaultRequestTimeout, s.RequestTimeout)
	assert.Equal(t, "memory", s.StoreDriver)
	assert.Equal(t, "gpt-3.5-turbo", s.OpenAIModel)
	assert.Equal(t, config.DefaultGeminiModel, s.GeminiModel)
	assert.Empty(t, s.GeminiKey)
	assert.Equal(t, "info", s.LogLevel)
	assert.NotNil(t, s.Logger())
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "flowmind.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
api:
  base_url: http://file:8000
  timeout: 10s
store:
  driver: sqlite
  dsn: file.db
log:
  format: json
gemini:
  model: gemini-2.0-flash
`), 0o644))

	s, err := config.Load(config.LoadOptions{
		File:    file,
		EnvFile: filepath.Join(dir, "absent.env"),
		Getenv: envMap(map[string]string{
			"FLOWMIND_API_URL": "http://env:9000",
			"FLOWMIND_TIMEOUT": "3s",
			"SERPAPI_KEY":      "serp",
			"OPENAI_API_KEY":   "sk-fallback",
			"GEMINI_API_KEY":   "gm-fallback",
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, "http://env:9000", s.APIBaseURL)
	assert.Equal(t, 3*time.Second, s.RequestTimeout)
	assert.Equal(t, "sqlite", s.StoreDriver)
	assert.Equal(t, "file.db", s.StoreDSN)
	assert.Equal(t, "json", s.LogFormat)
	assert.Equal(t, "serp", s.SerpAPIKey)
	assert.Equal(t, "sk-fallback", s.OpenAIKey)
	assert.Equal(t, "gm-fallback", s.GeminiKey)
	assert.Equal(t, "gemini-2.0-flash", s.GeminiModel)
}

func TestLoad_Invalid(t *testing.T) {
	noEnv := filepath.Join(t.TempDir(), "absent.env")

	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad timeout", map[string]string{"FLOWMIND_TIMEOUT": "soon"}},
		{"bad driver", map[string]string{"FLOWMIND_STORE": "mongo"}},
		{"sqlite without dsn", map[string]string{"FLOWMIND_STORE": "sqlite"}},
		{"bad url", map[string]string{"FLOWMIND_API_URL": "not a url"}},
		{"bad level", map[string]string{"FLOWMIND_LOG_LEVEL": "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(config.LoadOptions{EnvFile: noEnv, Getenv: envMap(tt.env)})
			assert.Error(t, err)
		})
	}
}
