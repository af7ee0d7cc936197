// Package middleware exposes HTTP adapters over authkit.Engine: cookie and
// header credential transport, transparent session renewal, and a bearer-only
// gate for service routes.
//
// # Guards
//
//   - [Guard] — validates the access credential, falls back to rotating the
//     refresh cookie, rewrites cookies on success.
//   - [RequireAccess] — Authorization header only, no cookies, no rotation.
//
// Each guard injects the validated claims into the request context, where
// handlers read them via [AuthResultFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself. Every decision is delegated to
// Engine.Validate and Engine.Rotate.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Touch the ledger or Redis (Engine handles I/O).
//   - Leak failure detail to clients: every rejection is the same 401.
package middleware
