// Package rate throttles failed logins with Redis fixed-window counters.
//
// # Window semantics
//
// INCR plus EXPIRE on the first hit of a window. Keys are
// "<prefix>:u:<email>" per account and "<prefix>:ip:<addr>" per client
// address. A successful login deletes both.
//
// # What this package must NOT do
//
//   - Decide how a throttled request is answered. The BFF maps
//     ErrRateLimited to 429.
//   - Count successful logins.
package rate
