// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunVerify, RunRefresh, RunBlacklistToken, etc.) accepts
// a typed dependency struct and returns results without side-effects beyond
// those dependencies. Validation and consumption share one pipeline,
// RunVerify, parameterized by a replayProtected flag.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the token codec, trust validator,
// validation cache, blacklist and replay stores. They do NOT own any of these
// resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import tokenguard (to avoid import cycles).
//   - Return rejection reasons to API callers. Failure kinds feed logs,
//     metrics and audit only.
package flows
