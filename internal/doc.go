// Package internal holds engine plumbing that is private to tokenguard.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function flow orchestrators for every Engine operation
//   - metrics: lock-free counters and latency histograms
//   - throttle: rate-limited warning logs for backend outages
//
// # What this package must NOT do
//
//   - Export types that appear in the public tokenguard API.
//   - Be imported by any package outside the tokenguard module.
package internal
