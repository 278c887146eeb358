// Package id generates identifiers for narration jobs and capture sessions.
package id

import (
	"fmt"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the identifiers this service hands out.
const (
	PrefixNarration = "nar"
	PrefixSession   = "cap"
	PrefixStream    = "sse"
)

// Generate creates a prefixed NanoID, e.g. "nar-V1StGXR8_Z5jdHi6B-myT".
//
// Returns an error if the system has insufficient entropy for secure random generation.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// ProfileDirPattern returns an os.MkdirTemp pattern for an isolated browser profile.
// The random uuid keeps concurrent sessions from ever sharing a user-data dir name prefix.
func ProfileDirPattern() string {
	return PrefixSession + "-" + uuid.NewString() + "-*"
}
