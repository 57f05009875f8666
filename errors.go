package goSession

import (
	"errors"

	"github.com/MrEthical07/goSession/pipeline"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/token"
)

var (
	// ErrSessionExpired is returned once the refresh token has expired. The
	// store has been cleared.
	ErrSessionExpired = refresh.ErrSessionExpired
	// ErrRefreshExchange matches every failed renewal; see [ExchangeError].
	ErrRefreshExchange = refresh.ErrRefreshExchange
	// ErrMalformedToken is returned for tokens without a usable claim shape.
	ErrMalformedToken = token.ErrMalformedToken
	// ErrUnauthorized matches every failure caused by a 401.
	ErrUnauthorized = pipeline.ErrUnauthorized
	// ErrLoggedOut ends the orchestrator after a force-logout signal.
	ErrLoggedOut = session.ErrLoggedOut

	ErrBuilderUsed    = errors.New("builder already used")
	ErrRedisRequired  = errors.New("redis backend selected but no redis client or address configured")
	ErrNoSession      = errors.New("no session")
	ErrAlreadyStarted = errors.New("session loop already running")
	ErrInvalidConfig  = errors.New("invalid config")
)

type (
	EntityError   = pipeline.EntityError
	FieldError    = pipeline.FieldError
	HTTPError     = pipeline.HTTPError
	RedirectError = pipeline.RedirectError
	ExchangeError = refresh.ExchangeError
)

// ErrorMessage returns the human-readable message carried by err.
func ErrorMessage(err error) string { return pipeline.ErrorMessage(err) }

// FieldErrors returns the per-field messages of a validation failure.
func FieldErrors(err error) map[string]string { return pipeline.FieldErrors(err) }
