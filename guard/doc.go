// Package guard decides, per navigation, whether a path may be rendered or
// must redirect. [Table.Decide] is a pure function of the path and the
// [State] built from the two session tokens; it performs no I/O.
//
// Rules are evaluated in order:
//
//  1. auth-required path, no refresh token: redirect to login and clear tokens.
//  2. login path, refresh token present: redirect home.
//  3. auth-required path, access token absent: redirect to the refresh
//     confirmation route, which renews and bounces back.
//  4. auth-required path, role outside the path's role set: redirect home.
//  5. otherwise allow.
//
// Exempt prefixes (login, logout, refresh confirmation) never require
// authentication, so the guard cannot redirect them into a loop.
//
// The HTTP adapter lives in package middleware.
package guard
