package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random UUID, optionally prefixed ("jti_…").
func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + strings.ReplaceAll(id, "-", "")
}

// ValidUUID reports whether value parses as a UUID.
func ValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
