package authapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goSession/pipeline"
	"github.com/MrEthical07/goSession/store"
)

// Remote authority paths.
const (
	PathLogin          = "auth/login"
	PathLogout         = "auth/logout"
	PathRefresh        = "auth/refresh-token"
	PathGuestLogout    = "guest/auth/logout"
	PathChangePassword = "accounts/change-password-v2"
	PathMe             = "accounts/me"
)

// Server calls the remote authority from the server runtime.
type Server struct {
	p *pipeline.Pipeline
}

// NewServer wraps a server-mode pipeline whose BaseURL is the authority.
func NewServer(p *pipeline.Pipeline) (*Server, error) {
	if p == nil || p.Mode() != pipeline.ServerMode {
		return nil, errors.New("authapi: server calls need a server-mode pipeline")
	}
	return &Server{p: p}, nil
}

// Login exchanges credentials for a token pair.
func (s *Server) Login(ctx context.Context, body LoginBody) (*Envelope[LoginData], error) {
	resp, err := s.p.Post(ctx, PathLogin, body, nil)
	if err != nil {
		return nil, err
	}
	return decodePair(resp)
}

// RefreshToken exchanges refreshToken for a new pair and returns the full
// envelope.
func (s *Server) RefreshToken(ctx context.Context, refreshToken string) (*Envelope[LoginData], error) {
	resp, err := s.p.Post(ctx, PathRefresh, RefreshBody{RefreshToken: refreshToken}, nil)
	if err != nil {
		return nil, err
	}
	return decodePair(resp)
}

// Refresh implements refresh.Exchanger.
func (s *Server) Refresh(ctx context.Context, refreshToken string) (store.Pair, error) {
	env, err := s.RefreshToken(ctx, refreshToken)
	if err != nil {
		return store.Pair{}, err
	}
	return env.Data.Pair(), nil
}

// Logout revokes refreshToken at the authority.
func (s *Server) Logout(ctx context.Context, accessToken, refreshToken string) (*MessageResponse, error) {
	return s.logout(ctx, PathLogout, accessToken, refreshToken)
}

// GuestLogout ends a guest (table) session.
func (s *Server) GuestLogout(ctx context.Context, accessToken, refreshToken string) (*MessageResponse, error) {
	return s.logout(ctx, PathGuestLogout, accessToken, refreshToken)
}

func (s *Server) logout(ctx context.Context, path, accessToken, refreshToken string) (*MessageResponse, error) {
	resp, err := s.p.Post(ctx, path, RefreshBody{RefreshToken: refreshToken}, &pipeline.Options{AccessToken: accessToken})
	if err != nil {
		return nil, err
	}
	var out MessageResponse
	if len(resp.Payload) > 0 {
		if err := resp.Decode(&out); err != nil {
			return nil, fmt.Errorf("decode logout response: %w", err)
		}
	}
	return &out, nil
}

// ChangePassword changes the caller's password and returns the re-issued pair.
func (s *Server) ChangePassword(ctx context.Context, accessToken string, body ChangePasswordBody) (*Envelope[LoginData], error) {
	resp, err := s.p.Put(ctx, PathChangePassword, body, &pipeline.Options{AccessToken: accessToken})
	if err != nil {
		return nil, err
	}
	return decodePair(resp)
}

// Me returns the caller's account.
func (s *Server) Me(ctx context.Context, accessToken string) (*Envelope[Account], error) {
	resp, err := s.p.Get(ctx, PathMe, &pipeline.Options{AccessToken: accessToken})
	if err != nil {
		return nil, err
	}
	var out Envelope[Account]
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return &out, nil
}

// ErrIncompletePair is returned when a response lacks either token.
var ErrIncompletePair = errors.New("authapi: response carried an incomplete token pair")

func decodePair(resp *pipeline.Response) (*Envelope[LoginData], error) {
	var out Envelope[LoginData]
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode token pair: %w", err)
	}
	if out.Data.AccessToken == "" || out.Data.RefreshToken == "" {
		return nil, ErrIncompletePair
	}
	return &out, nil
}
