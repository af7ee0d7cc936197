package authkit

import "errors"

var (
	// ErrUnauthorized is the generic outward-facing failure. Transports must not
	// answer with anything more specific.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMalformedCredential is an exported constant or variable used by the token lifecycle engine.
	ErrMalformedCredential = errors.New("malformed credential")
	// ErrTokenExpired is an exported constant or variable used by the token lifecycle engine.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenNotFound is an exported constant or variable used by the token lifecycle engine.
	ErrTokenNotFound = errors.New("token not found in ledger")
	// ErrTokenRevoked is an exported constant or variable used by the token lifecycle engine.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrReplayDetected is joined onto ErrTokenRevoked when a consumed refresh
	// token is presented again.
	ErrReplayDetected = errors.New("refresh token replay detected")
	// ErrSubjectGone is an exported constant or variable used by the token lifecycle engine.
	ErrSubjectGone = errors.New("subject no longer exists")
	// ErrPersistence is an exported constant or variable used by the token lifecycle engine.
	ErrPersistence = errors.New("persistence failure")
	// ErrConfig is an exported constant or variable used by the token lifecycle engine.
	ErrConfig = errors.New("invalid configuration")
	// ErrEngineNotReady is an exported constant or variable used by the token lifecycle engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
