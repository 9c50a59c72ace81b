package rules

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// Format names a rule file encoding.
type Format string

// Supported rule file encodings.
const (
	FormatYAML  Format = "yaml"
	FormatJSON5 Format = "json5"
)

// FormatFromPath infers the encoding from a file extension. JSON is read as JSON5.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json", ".json5":
		return FormatJSON5, nil
	default:
		return "", fmt.Errorf("unsupported rule file extension %q", filepath.Ext(path))
	}
}

// Load reads, defaults and validates a rule file.
func Load(path string) (*Config, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data, applies defaults and validates the result.
func Parse(data []byte, format Format) (*Config, error) {
	var cfg Config
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatJSON5:
		if err := json5.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode json5: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported rule format %q", format)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
