package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEntryNotFound is an exported constant or variable used by the token lifecycle engine.
	ErrEntryNotFound = errors.New("ledger entry not found")
	// ErrEntryRevoked is an exported constant or variable used by the token lifecycle engine.
	ErrEntryRevoked = errors.New("ledger entry revoked")
	// ErrLedgerUnavailable is an exported constant or variable used by the token lifecycle engine.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)

// Entry is one refresh token's durable record. TokenHash is the hex SHA-256
// of the compact token; the raw credential never reaches the ledger.
//
// A consumed or revoked entry is kept (marked, not deleted) until its
// ExpiresAt passes, so a later presentation of the same token is
// distinguishable as replay rather than as an unknown credential.
type Entry struct {
	TokenHash  string
	SubjectID  string
	DeviceID   string
	IP         string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
	RevokedAt  *time.Time
	ReplacedBy string
}

// Live reports whether the entry can still be rotated at the given instant.
func (e Entry) Live(now time.Time) bool {
	return !e.Revoked && e.ExpiresAt.After(now)
}

// Store is the authoritative record of outstanding refresh tokens.
//
// Swap is the single serialization point for rotation: it atomically marks
// the prior entry revoked (only if it is still live) and inserts the
// successor. Under concurrent rotation of the same token exactly one call
// succeeds; the rest fail with [ErrEntryRevoked] or [ErrEntryNotFound] and
// must not retry.
type Store interface {
	// Insert records a freshly issued entry.
	Insert(ctx context.Context, entry Entry) error

	// Find returns the entry whatever its state. Revoked and expired
	// entries come back with a nil error; callers classify.
	Find(ctx context.Context, tokenHash string) (Entry, error)

	// Swap atomically consumes the live entry at priorHash and inserts
	// next, linking the two. It returns the consumed prior entry.
	Swap(ctx context.Context, priorHash string, next Entry, now time.Time) (Entry, error)

	// Revoke marks one entry revoked. Unknown hashes are a no-op.
	Revoke(ctx context.Context, tokenHash string, now time.Time) error

	// RevokeAllForSubject marks every live entry of the subject revoked
	// and reports how many were hit.
	RevokeAllForSubject(ctx context.Context, subjectID string, now time.Time) (int64, error)

	// DeleteExpired removes entries whose ExpiresAt is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
