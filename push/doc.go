// Package push carries server-initiated session signals over WebSocket.
//
// The wire format is one JSON text frame per signal:
//
//	{"type":"force-refresh"}
//	{"type":"force-logout","reason":"password changed"}
//
// "refresh-token" and "logout" are accepted as aliases on the client side.
//
// [Hub] is the server half: it authenticates subscribers by access token and
// fans signals out per user or to everyone. [Client] is the client half: it
// dials a hub and exposes received signals as a channel for the session
// orchestrator.
package push
