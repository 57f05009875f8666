// Package refresh keeps a client's access token fresh.
//
// # Renewal policy
//
// A renewal is due when the access token has less than a third of its total
// lifetime left, or when it is absent or undecodable. The refresh token
// decides whether a session exists at all: absent means nothing to do,
// expired means the session is over and the store is cleared.
//
// # Single flight
//
// A [Coordinator] owns one singleflight marker. Concurrent callers that find
// a renewal due share one exchange and its outcome. The marker is dropped when
// the exchange settles and before waiters are released, so the next due call
// starts a genuinely new exchange.
//
// # Architecture boundaries
//
// This package owns the renewal decision and its de-duplication. Talking to the
// remote authority is delegated to an [Exchanger]; persistence to a
// [store.Store].
//
// # What this package must NOT do
//
//   - Verify token signatures.
//   - Clear the store on a failed exchange.
//   - Redirect or navigate; callers react to [ErrSessionExpired].
package refresh
