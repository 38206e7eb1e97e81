package common

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID mints a stable opaque identifier. All entity IDs (orders,
// trades, bonds, users, connections) share this format.
func NewID() string {
	return uuid.NewString()
}

// NewTxHash mints a placeholder settlement transaction hash. Settlement
// is handled by an external collaborator; the core only stores the hash
// as opaque text next to the order or trade it belongs to.
func NewTxHash() string {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		// rand.Read on supported platforms does not fail; fall back to
		// a uuid-derived hash rather than returning an empty string.
		sum := uuid.New()
		copy(b[:16], sum[:])
		copy(b[16:], sum[:])
	}
	return "0x" + hex.EncodeToString(b[:])
}
