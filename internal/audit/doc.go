// Package audit implements async event dispatching for session lifecycle
// transitions: login, logout, refresh, forced logout and session expiry.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, zap, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: structured audit record with timestamp, type, user, role, request ID, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit; the refresh coordinator, request pipeline and BFF routes do.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goSession or any sibling package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
