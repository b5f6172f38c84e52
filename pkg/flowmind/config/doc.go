/*
Package config resolves flowmind runtime settings.

Config wraps a map[string]any and offers typed accessors that fall back to
a default when a key is missing or has the wrong type:

	cfg, err := config.FromFile("flowmind.yaml")
	timeout := cfg.Section("api").Duration("timeout", 30*time.Second)

Load layers a config file, a dotenv file, and FLOWMIND_* environment
variables into a validated Settings value:

	s, err := config.Load(config.LoadOptions{File: "flowmind.yaml"})
	logger := s.Logger()

The original service variable names OPENAI_API_KEY, GEMINI_API_KEY,
SERPAPI_KEY and DATABASE_URL are honored as fallbacks.
*/
package config
