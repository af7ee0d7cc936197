// Package ledger persists the authoritative record of outstanding refresh
// tokens. The Postgres implementation is the production store; the memory
// implementation backs tests and single-process development setups.
//
// The ledger, not the cache, decides whether a refresh token is live. Its
// conditional-update consume is the only lock in the rotation path.
package ledger
