package core

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// PartyKey derives a stable matching key from a display name: leading and
// trailing whitespace stripped, internal runs collapsed, case folded.
// Aggregation keys on this instead of the raw string so "  alice " and
// "Alice" land in the same bucket.
func PartyKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// SameParty reports whether two display names refer to the same counterparty.
func SameParty(a, b string) bool {
	return PartyKey(a) == PartyKey(b)
}

// NewID returns a random 128-bit hex identifier for a new record.
func NewID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("core: read random id: " + err.Error())
	}
	return hex.EncodeToString(b)
}
