package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type decodeFunc func([]byte, any) error

var decoders = map[string]decodeFunc{
	"yaml": yaml.Unmarshal,
	"yml":  yaml.Unmarshal,
	"json": json.Unmarshal,
}

// FromFile reads a flowmind config file. The format follows the
// extension (.yaml, .yml or .json). ${VAR} references in the file are
// expanded from the process environment before parsing, so secrets can
// stay out of the file.
func FromFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	cfg, err := Parse([]byte(os.ExpandEnv(string(raw))), format)
	if err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data in the named format ("yaml", "yml" or "json").
// An empty document yields an empty Config.
func Parse(data []byte, format string) (Config, error) {
	decode, ok := decoders[format]
	if !ok {
		return Config{}, fmt.Errorf("unsupported config format %q", format)
	}
	var m map[string]any
	if err := decode(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", format, err)
	}
	return New(m), nil
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) { return Parse(data, "yaml") }

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) { return Parse(data, "json") }
