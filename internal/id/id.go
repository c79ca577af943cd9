// Package id generates short prefixed identifiers for sessions and stream clients.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the identifiers handed out by this process.
const (
	PrefixSession = "ws"
	PrefixClient  = "sse"
)

// alphabet avoids '-' and '_' so ids split cleanly on the prefix separator.
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Size is the length of the random part of an id.
const Size = 12

// Generate creates a prefixed id, e.g. "ws-3k9z0q1x7a2m".
func Generate(prefix string) (string, error) {
	id, err := gonanoid.Generate(alphabet, Size)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if the system is out of entropy.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}
