// Package middleware exposes net/http adapters for the session core.
//
// # Middleware
//
//   - [Guard]: page navigation guard; reads the token cookies, applies the
//     route table and answers 307 redirects.
//   - [RequireAccessToken]: API guard; 401 unless a live access token is
//     presented as a bearer header or cookie.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into guard decisions. It does NOT
// implement routing policy itself; all decisions are delegated to
// guard.Table.Decide.
//
// # What this package must NOT do
//
//   - Verify token signatures.
//   - Call the remote authority.
//   - Make authorization decisions beyond the route table.
package middleware
