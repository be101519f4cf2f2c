// Package store defines the revocation and replay storage contracts used by
// the engine, plus the housekeeping loop shared by SQL backends.
//
// # Architecture boundaries
//
// Backends live in subpackages (redis, postgres, sqlite, memory). The engine
// depends only on the interfaces here and never on a concrete backend.
// Blacklist writes are synchronous: a nil error means the entry is durable in
// the backing store.
//
// # What this package must NOT do
//
//   - Store raw token strings. Callers pass [TokenKey] digests.
//   - Expire blacklist entries. Only explicit removal un-revokes.
//   - Retry internally. Unavailability surfaces as [ErrUnavailable].
package store
