package store

import "context"

// Kind names a stored token. The value doubles as storage key and cookie name.
type Kind string

const (
	// AccessToken is the short-lived bearer credential.
	AccessToken Kind = "accessToken"
	// RefreshToken is the long-lived renewal credential.
	RefreshToken Kind = "refreshToken"
)

// Kinds lists every stored token kind.
var Kinds = []Kind{AccessToken, RefreshToken}

// Pair is the access/refresh token pair issued by the remote authority.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Empty reports whether neither token is set.
func (p Pair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// Store is the token storage contract shared by every backing.
//
// Get reports false for absent tokens. Set with an empty token removes it.
// SetPair replaces both tokens together. Clear removes both.
type Store interface {
	Get(ctx context.Context, kind Kind) (string, bool)
	Set(ctx context.Context, kind Kind, token string)
	SetPair(ctx context.Context, pair Pair)
	Clear(ctx context.Context)
}

// Snapshot reads both tokens from s.
func Snapshot(ctx context.Context, s Store) Pair {
	if s == nil {
		return Pair{}
	}
	access, _ := s.Get(ctx, AccessToken)
	refresh, _ := s.Get(ctx, RefreshToken)
	return Pair{AccessToken: access, RefreshToken: refresh}
}
