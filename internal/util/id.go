package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a short random identifier suitable for sessions.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// StableID derives a deterministic identifier from parts within namespace.
// The same inputs always yield the same id.
func StableID(namespace uuid.UUID, parts ...string) string {
	return uuid.NewSHA1(namespace, []byte(strings.Join(parts, "\n"))).String()
}
