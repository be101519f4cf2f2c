// Package middleware exposes net/http adapters over tokenguard.Engine
// validation.
//
// # Guards
//
//   - [Guard]: validates the bearer token as a given token type.
//   - [RequireAccess]: Guard for access tokens.
//   - [RequireService]: Guard for service tokens, optionally restricted to
//     named services.
//
// Each guard reads the Authorization header, calls Engine.Validate, and injects
// validated claims into the request context.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Strip a lowercase "bearer" prefix: only the exact "Bearer " prefix is
//     accepted.
//   - Tell the client why a token was rejected.
package middleware
