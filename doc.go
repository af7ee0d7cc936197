// Package authkit provides the session token lifecycle core for a notes-sharing
// backend: short-lived JWT access tokens, long-lived rotating refresh tokens, a
// durable refresh-token ledger with a Redis fast cache in front of it, replay
// detection, and revocation.
//
// The package is designed for concurrent server workloads: Engine methods are safe
// to call from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authkit is the public surface. It exposes [Engine], [Builder], [Config], and value
// types (TokenPair, AuthResult, MetricsSnapshot, etc.). Token envelope handling lives
// in token/, the durable ledger in ledger/, the fast cache in cache/, and HTTP glue
// in middleware/. Identity lookup is delegated to the caller through
// [IdentityProvider]; authkit never stores passwords or profiles.
//
// # Trust model
//
// The ledger is authoritative. The cache is an accelerator that may lag or lose
// entries; whenever the two disagree the ledger's answer wins and the stale cache
// entry is repaired. A refresh token is single-use: the first rotation to consume
// its ledger entry wins, every other presentation of the same token fails closed.
//
// # Performance contract
//
// Validate is the hot path. It verifies the access token locally and must not touch
// the ledger or the cache. Issue and Rotate are allowed one ledger round-trip and
// one cache round-trip per call.
package authkit
