package authapi

import (
	"context"
	"errors"

	"github.com/MrEthical07/goSession/pipeline"
	"github.com/MrEthical07/goSession/store"
	"go.uber.org/zap"
)

// Same-origin BFF paths.
const (
	PathBFFLogin          = "api/auth/login"
	PathBFFLogout         = "api/auth/logout"
	PathBFFRefresh        = "api/auth/refresh-token"
	PathBFFToken          = "api/auth/token"
	PathBFFGuestLogout    = "api/guest/auth/logout"
	PathBFFChangePassword = "api/accounts/change-password-v2"
)

// Client calls the BFF from a client runtime. Its pipeline stores the pair on
// login and clears it on logout.
type Client struct {
	p   *pipeline.Pipeline
	log *zap.Logger
}

// NewClient wraps a client-mode pipeline.
func NewClient(p *pipeline.Pipeline, log *zap.Logger) (*Client, error) {
	if p == nil || p.Mode() != pipeline.ClientMode {
		return nil, errors.New("authapi: client calls need a client-mode pipeline")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{p: p, log: log}, nil
}

var sameOrigin = &pipeline.Options{SameOrigin: true}

// Login signs in through the BFF, which also sets the session cookies.
func (c *Client) Login(ctx context.Context, body LoginBody) (*Envelope[LoginData], error) {
	resp, err := c.p.Post(ctx, PathBFFLogin, body, sameOrigin)
	if err != nil {
		return nil, err
	}
	return decodePair(resp)
}

// Logout ends the session. The local store is cleared even when the remote
// call fails, and that failure is only logged.
func (c *Client) Logout(ctx context.Context) {
	c.logout(ctx, PathBFFLogout)
}

// GuestLogout ends a guest session.
func (c *Client) GuestLogout(ctx context.Context) {
	c.logout(ctx, PathBFFGuestLogout)
}

func (c *Client) logout(ctx context.Context, path string) {
	var body any
	if rt, ok := c.p.Store().Get(ctx, store.RefreshToken); ok {
		body = RefreshBody{RefreshToken: rt}
	}
	if _, err := c.p.Post(ctx, path, body, sameOrigin); err != nil {
		c.log.Warn("logout request failed, clearing local session", zap.String("path", path), zap.Error(err))
	}
	c.p.Store().Clear(ctx)
}

// Refresh implements refresh.Exchanger against the BFF refresh route. The
// refresh token travels in the body for runtimes without a cookie jar.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (store.Pair, error) {
	resp, err := c.p.Post(ctx, PathBFFRefresh, RefreshBody{RefreshToken: refreshToken}, sameOrigin)
	if err != nil {
		return store.Pair{}, err
	}
	env, err := decodePair(resp)
	if err != nil {
		return store.Pair{}, err
	}
	return env.Data.Pair(), nil
}

// SetTokenCookies hands a pair obtained elsewhere (for example a guest table
// login) to the BFF so it is mirrored into cookies.
func (c *Client) SetTokenCookies(ctx context.Context, pair store.Pair) error {
	_, err := c.p.Post(ctx, PathBFFToken, pair, sameOrigin)
	return err
}

// ChangePassword changes the password and stores the re-issued pair.
func (c *Client) ChangePassword(ctx context.Context, body ChangePasswordBody) (*Envelope[LoginData], error) {
	resp, err := c.p.Put(ctx, PathBFFChangePassword, body, sameOrigin)
	if err != nil {
		return nil, err
	}
	env, err := decodePair(resp)
	if err != nil {
		return nil, err
	}
	c.p.Store().SetPair(ctx, env.Data.Pair())
	return env, nil
}
