// Package cache implements the two-tier validation cache.
//
// The memory tier is a bounded map consulted first. The optional remote tier
// (Redis) is shared across processes; reads are bounded by a short timeout
// and writes are queued to a background runner so they never block or fail
// the caller.
//
// # Architecture boundaries
//
// The cache stores already-validated claims or an invalid marker under a
// digest of (token, type). It never decides whether a token is valid; the
// engine re-checks blacklists on every hit.
//
// # What this package must NOT do
//
//   - Store raw tokens as keys.
//   - Return an error to the caller. Every remote failure is a miss or a no-op.
//   - Serve an entry after its claims' own expiry.
package cache
