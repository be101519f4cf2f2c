// Package trust implements cross-service trust validation for platform tokens.
//
// A [Policy] is computed once per process from the deployment environment and
// is never re-derived at call sites. The [Validator] applies that policy to
// decoded claims: issuer, audience, environment binding, service-instance
// binding, clock skew and maximum token age.
//
// # Architecture boundaries
//
// The token codec has already verified the signature and expiry by the time
// claims reach this package. Blacklists, replay state and caching belong to
// the engine.
//
// # What this package must NOT do
//
//   - Read process environment variables.
//   - Relax any check in staging or production.
//   - Perform I/O.
package trust
