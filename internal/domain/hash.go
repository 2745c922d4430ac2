package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
)

// HashContent computes the canonical content address of a plan: the
// hex-encoded SHA-256 digest of its full text. Two plans with equal content
// always hash identically; the hash doubles as the dedup key and the
// on-chain integrity reference.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// NewLedgerPlanID generates a fresh 16-byte plan identifier for on-chain
// storage, hex-encoded. The contract keys plans by BytesN<16>; a ULID fits
// exactly and keeps ids roughly time-ordered.
func NewLedgerPlanID() string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)
	return hex.EncodeToString(id[:])
}
