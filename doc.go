// Package tokenguard issues, validates and revokes platform JWTs.
//
// An [Engine] is assembled once with [Builder] and is safe for concurrent use
// afterwards. It mints access, refresh and service tokens, verifies them
// through a single pipeline backed by a two-tier validation cache, enforces
// the cross-service trust policy of the deployment environment, and consults
// a durable blacklist on every validation.
//
// # Validation paths
//
// [Engine.Validate] is an idempotent read: any number of concurrent calls with
// the same valid token succeed. [Engine.ValidateForConsumption] skips the
// cache and consumes the token id, so a refresh token is accepted at most
// once. [Engine.Refresh] is built on the consumption path.
//
// Every rejection returns [ErrUnauthorized]. The cause is only visible in
// logs, metrics and audit events.
//
// # Storage
//
// Revocations must outlive the process in staging and production. Build
// refuses the in-memory store there; use the Redis, PostgreSQL or SQLite
// backends under store/. When a store cannot be reached, validation fails
// closed.
package tokenguard
