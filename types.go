package authkit

import (
	"context"
	"time"
)

// Identity is the resolved owner of a session, as reported by the caller's
// identity store. Role is opaque to authkit and travels to the middleware
// context untouched.
type Identity struct {
	SubjectID string
	Role      string
}

// IdentityProvider resolves subjects at rotation time. Implementations are
// expected to be cheap; the engine calls FindSubjectByID once per Rotate.
//
// Any error (including not-found) is reported to callers as [ErrSubjectGone];
// the engine does not distinguish a deleted subject from an unreachable
// identity store, both fail closed.
type IdentityProvider interface {
	FindSubjectByID(ctx context.Context, subjectID string) (Identity, error)
}

// TokenPair is the result of Issue and Rotate. TTLs are in seconds, ready to
// be used as cookie Max-Age values.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessTTL    int
	RefreshTTL   int
}

// IssueOptions carries optional per-session metadata.
//
// PriorRefreshToken, when set, makes Issue retire the prior ledger entry and
// create the new one atomically. Rotate sets it internally; callers doing a
// plain login leave it empty.
type IssueOptions struct {
	DeviceID          string
	IP                string
	PriorRefreshToken string
}

// AuthResult is what Validate attaches to a request: the verified claims of a
// live access token. It carries no identity-store data.
type AuthResult struct {
	SubjectID string
	TokenID   string
	DeviceID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
