// Package pipeline wraps every outbound API call of a session.
//
// A [Pipeline] injects the bearer token, encodes JSON bodies, stamps an
// X-Request-ID, and maps responses onto typed errors: 422 becomes an
// [EntityError], 401 an error matching [ErrUnauthorized], and any other
// non-2xx an [HTTPError].
//
// In [ClientMode] the pipeline owns the caller's token store: a 401 runs the
// single-flight forced logout (one remote logout, one store clear, one
// navigation to the login route), a successful login call stores the returned
// pair and a successful logout call clears it. In [ServerMode] there is no
// ambient store; callers pass the access token per request and a 401 is
// answered with a [RedirectError] to the logout confirmation route.
//
// # What this package must NOT do
//
//   - Decide when tokens need renewal; that is package refresh.
//   - Retry failed requests.
package pipeline
