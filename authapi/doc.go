// Package authapi holds the typed calls of the authentication API.
//
// [Server] talks to the remote authority from the server runtime, passing the
// caller's access token explicitly. [Client] talks to the same-origin BFF
// routes from a client runtime, whose pipeline owns the token store. Both
// implement refresh.Exchanger.
package authapi
