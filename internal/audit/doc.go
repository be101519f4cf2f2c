// Package audit implements async event dispatching for token lifecycle
// operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, zap, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: structured audit record with timestamp, type, subject, token id, IP, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; the Engine does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import tokenguard or any sibling internal package.
//   - Carry raw token strings. Events reference tokens by id only.
package audit
