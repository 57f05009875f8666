// Package bff is the same-origin backend that mirrors the token pair into
// HTTP-only cookies.
//
// Routes:
//
//	POST /api/auth/login                login at the authority, set cookies
//	POST /api/auth/logout               revoke at the authority, delete cookies (always 200)
//	POST /api/guest/auth/logout         guest variant of logout
//	POST /api/auth/refresh-token        renew the pair held in the cookies
//	POST /api/auth/token                store a pair obtained elsewhere in cookies
//	PUT  /api/accounts/change-password-v2
//	GET  /logout                        logout confirmation
//	GET  /refresh-token                 renew-and-return confirmation
//
// Every other path is a page and passes through the route guard. A push hub
// can be mounted to deliver force-refresh and force-logout signals.
//
// The server never verifies signatures: tokens are decoded for their expiry
// and role, and the authority remains the only judge of validity.
package bff
