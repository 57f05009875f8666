// Package store holds the access and refresh tokens of one execution context.
//
// # Backings
//
//   - [MemoryStore]: process-local, for a single client runtime or tests.
//   - [RedisStore]: persistent key-value storage scoped to an origin; survives
//     process restarts the way browser-origin storage survives page reloads.
//   - [CookieStore]: request-scoped server-side storage backed by the request's
//     cookies and the response's Set-Cookie headers.
//
// The caller picks the backing explicitly. Nothing in this package inspects the
// environment to decide.
//
// # Failure model
//
// Unauthenticated browsing is a valid state, so storage failures never surface:
// reads report the token as absent, writes are dropped, and the failure is logged.
//
// # What this package must NOT do
//
//   - Verify tokens or make refresh decisions.
//   - Perform network calls other than the configured Redis client.
package store
