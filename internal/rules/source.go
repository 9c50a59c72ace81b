package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// SourceKind tags where a field value is read from.
type SourceKind string

// Field sources.
const (
	SourceText        SourceKind = "text"
	SourceAttr        SourceKind = "attr"
	SourceHTML        SourceKind = "html"
	SourceCount       SourceKind = "count"
	SourceOpenGraph   SourceKind = "opengraph"
	SourceReadability SourceKind = "readability"
)

// Source is a field source, written in rule files as "text", "attr:href",
// "html", "count", "opengraph:title" or "readability".
type Source struct {
	Kind SourceKind
	Arg  string
}

// ParseSource parses the textual form of a source. Empty means text.
func ParseSource(raw string) (Source, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Source{Kind: SourceText}, nil
	}
	kind, arg, _ := strings.Cut(raw, ":")
	src := Source{Kind: SourceKind(strings.ToLower(strings.TrimSpace(kind))), Arg: strings.TrimSpace(arg)}
	switch src.Kind {
	case SourceText, SourceHTML, SourceCount, SourceReadability:
		if src.Arg != "" {
			return Source{}, fmt.Errorf("source %q takes no argument", src.Kind)
		}
	case SourceAttr, SourceOpenGraph:
		if src.Arg == "" {
			return Source{}, fmt.Errorf("source %q requires an argument", src.Kind)
		}
	default:
		return Source{}, fmt.Errorf("unknown source %q", raw)
	}
	return src, nil
}

// IsPageLevel reports whether the source reads page metadata instead of the item node.
func (s Source) IsPageLevel() bool {
	return s.Kind == SourceOpenGraph || s.Kind == SourceReadability
}

// String renders the textual form.
func (s Source) String() string {
	if s.Kind == "" {
		return string(SourceText)
	}
	if s.Arg == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ":" + s.Arg
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Source) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("decode source: %w", err)
	}
	parsed, err := ParseSource(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Source) MarshalYAML() (any, error) {
	return s.String(), nil
}

// UnmarshalJSON implements json.Unmarshaler. The JSON5 decoder hands over the
// raw token, which may be a single-quoted string.
func (s *Source) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json5.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode source: %w", err)
	}
	parsed, err := ParseSource(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s Source) MarshalJSON() ([]byte, error) {
	out, err := json.Marshal(s.String())
	if err != nil {
		return nil, fmt.Errorf("encode source: %w", err)
	}
	return out, nil
}
