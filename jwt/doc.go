// Package jwt encodes and verifies platform tokens (HS256 over golang-jwt) and
// decodes externally issued identity tokens without signature verification.
//
// # Architecture boundaries
//
// The codec owns the wire format: header, payload claims, signature, the
// algorithm allow-list and the presence of exp/iat/sub. Issuer, audience,
// environment and age policy belong to package trust.
//
// # What this package must NOT do
//
//   - Consult blacklist, replay or cache state.
//   - Accept "none" or asymmetric algorithms.
//   - Read configuration from the environment.
package jwt
