// Package uuid mints and validates run identifiers.
package uuid

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewRunID returns a time-ordered UUID v7, so run rows sort by start.
func NewRunID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

// ParseRunID accepts an externally assigned run ID, e.g. from a scheduler.
// Any RFC 4122 UUID except the nil UUID is accepted.
func ParseRunID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse run id %q: %w", s, err)
	}
	if id == uuid.Nil {
		return uuid.Nil, errors.New("run id must not be the nil uuid")
	}
	return id, nil
}

// ResolveRunID parses s when set and mints a new ID otherwise.
func ResolveRunID(s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return NewRunID()
	}
	return ParseRunID(s)
}
