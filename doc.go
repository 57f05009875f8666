// Package goSession keeps an authenticated session alive against a remote
// authority that issues short-lived access tokens and longer-lived refresh
// tokens.
//
// Two runtimes are assembled by [Builder]:
//
//   - [Client] is one long-lived client process (one browser tab in the
//     original front end). It owns a token store, the refresh coordinator, a
//     client-mode request pipeline and the session orchestrator.
//   - [Server] is the same-origin backend. It mirrors the pair into HTTP-only
//     cookies, guards page routes and fans push signals out to clients.
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Client], [Server], [Builder],
// [Config] and re-exported error and metric types. Token storage, renewal,
// the pipeline, guard decisions and the orchestrator live in their own
// packages and can be used directly; internal/ holds metrics, audit dispatch
// and the test authority.
//
// # What this package must NOT do
//
//   - Verify token signatures. Claims are decoded for expiry and role only;
//     the authority is the judge of validity.
//   - Perform I/O during Build other than connecting the configured store.
//   - Import the metrics exporters (they import this package).
package goSession
