// Package session runs the per-client session lifecycle loop.
//
// An [Orchestrator] checks token freshness immediately on start and then on a
// fixed interval, reacts to push signals (force refresh, force logout), and
// stops for good when the session ends: on an expired refresh token it tears
// down its timer and push subscription together and navigates to the login
// route. A new login must create a new Orchestrator.
//
// # Architecture boundaries
//
// This package owns scheduling and teardown ordering. Renewal decisions belong
// to package refresh; forced logout to package pipeline; the signal transport
// to package push.
//
// # What this package must NOT do
//
//   - Read or write tokens directly.
//   - Restart itself after a terminal transition.
package session
