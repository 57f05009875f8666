package refresh

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/store"
	"github.com/MrEthical07/goSession/token"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrSessionExpired is returned when the refresh token itself has expired.
	// The store has already been cleared; the session cannot be renewed.
	ErrSessionExpired = errors.New("session expired")
	// ErrRefreshExchange matches every failed exchange. The store is left
	// untouched so a later attempt can retry.
	ErrRefreshExchange = errors.New("refresh exchange failed")
)

// ExchangeError wraps the cause of a failed exchange.
type ExchangeError struct {
	Err error
}

func (e *ExchangeError) Error() string {
	if e.Err == nil {
		return ErrRefreshExchange.Error()
	}
	return ErrRefreshExchange.Error() + ": " + e.Err.Error()
}

// Unwrap exposes both ErrRefreshExchange and the cause to errors.Is/As.
func (e *ExchangeError) Unwrap() []error {
	return []error{ErrRefreshExchange, e.Err}
}

// Exchanger trades a refresh token for a new pair at the remote authority.
type Exchanger interface {
	Refresh(ctx context.Context, refreshToken string) (store.Pair, error)
}

// ExchangerFunc adapts a function to [Exchanger].
type ExchangerFunc func(ctx context.Context, refreshToken string) (store.Pair, error)

func (f ExchangerFunc) Refresh(ctx context.Context, refreshToken string) (store.Pair, error) {
	return f(ctx, refreshToken)
}

const flightKey = "refresh"

// Coordinator renews the token pair held in a store. It is safe for
// concurrent use; one Coordinator should serve one store.
type Coordinator struct {
	store     store.Store
	exchanger Exchanger
	clock     token.Clock
	log       *zap.Logger
	metrics   *metrics.Metrics
	audit     audit.Emitter

	flight    singleflight.Group
	exchanges atomic.Uint64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock used for every expiry comparison.
func WithClock(clock token.Clock) Option {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithAudit(e audit.Emitter) Option {
	return func(c *Coordinator) { c.audit = e }
}

// New creates a Coordinator renewing the pair in s through ex.
func New(s store.Store, ex Exchanger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     s,
		exchanger: ex,
		clock:     time.Now,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureFresh renews the pair when the access token is within the last third
// of its lifetime. It returns nil when there is no session or nothing is due,
// [ErrSessionExpired] when the refresh token has expired, and an error
// matching [ErrRefreshExchange] when the exchange fails.
//
// ctx bounds only this caller's wait; a shared exchange keeps running for the
// other waiters when one of them gives up.
func (c *Coordinator) EnsureFresh(ctx context.Context) error {
	return c.ensure(ctx, false)
}

// ForceRefresh renews the pair regardless of how much lifetime is left. It
// shares the single-flight marker with EnsureFresh.
func (c *Coordinator) ForceRefresh(ctx context.Context) error {
	return c.ensure(ctx, true)
}

// Exchanges returns how many exchanges this Coordinator has started.
func (c *Coordinator) Exchanges() uint64 {
	return c.exchanges.Load()
}

func (c *Coordinator) ensure(ctx context.Context, force bool) error {
	now := token.Now(c.clock)

	rt, ok := c.store.Get(ctx, store.RefreshToken)
	if !ok {
		return nil
	}
	claims, err := token.Decode(rt)
	if err != nil {
		c.log.Debug("refresh token undecodable, treating session as absent", zap.Error(err))
		return nil
	}
	if claims.Expired(now) {
		c.store.Clear(ctx)
		c.metrics.Inc(metrics.SessionExpired)
		audit.Emit(ctx, c.audit, audit.Event{
			EventType: audit.EventSessionExpired,
			UserID:    claims.UserID,
			Role:      claims.Role,
			Success:   true,
		})
		c.log.Info("refresh token expired, session cleared", zap.String("user_id", claims.UserID))
		return ErrSessionExpired
	}

	if !force && !c.due(ctx, now) {
		c.metrics.Inc(metrics.RefreshNotDue)
		return nil
	}
	return c.join(ctx, force)
}

// due reads the access token and applies [Due]. Absent and undecodable access
// tokens are due.
func (c *Coordinator) due(ctx context.Context, now int64) bool {
	at, ok := c.store.Get(ctx, store.AccessToken)
	if !ok {
		return true
	}
	claims, err := token.Decode(at)
	if err != nil {
		return true
	}
	return Due(claims, now)
}

// Due reports whether access has less than a third of its lifetime left at now.
func Due(access *token.Claims, now int64) bool {
	if access == nil {
		return true
	}
	return 3*access.Remaining(now) < access.Lifetime()
}

func (c *Coordinator) join(ctx context.Context, force bool) error {
	var led bool
	ch := c.flight.DoChan(flightKey, func() (any, error) {
		led = true
		return nil, c.exchange(context.WithoutCancel(ctx), force)
	})

	select {
	case res := <-ch:
		if !led {
			c.metrics.Inc(metrics.RefreshJoined)
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// exchange runs inside the flight. It re-reads the store so a caller that
// arrives just after a renewal settled does not replay the rotated token.
func (c *Coordinator) exchange(ctx context.Context, force bool) error {
	rt, ok := c.store.Get(ctx, store.RefreshToken)
	if !ok {
		return nil
	}
	if !force && !c.due(ctx, token.Now(c.clock)) {
		c.metrics.Inc(metrics.RefreshNotDue)
		return nil
	}

	start := time.Now()
	c.exchanges.Add(1)
	pair, err := c.exchanger.Refresh(ctx, rt)
	c.metrics.Since(metrics.RefreshLatency, start)
	if err == nil && (pair.AccessToken == "" || pair.RefreshToken == "") {
		err = errors.New("authority returned an incomplete token pair")
	}
	if err != nil {
		c.metrics.Inc(metrics.RefreshFailure)
		audit.Emit(ctx, c.audit, audit.Event{
			EventType: audit.EventRefresh,
			Error:     err.Error(),
			Metadata:  map[string]string{"forced": strconv.FormatBool(force)},
		})
		c.log.Warn("refresh exchange failed", zap.Bool("forced", force), zap.Error(err))
		return &ExchangeError{Err: err}
	}

	c.store.SetPair(ctx, pair)
	c.metrics.Inc(metrics.RefreshSuccess)

	ev := audit.Event{
		EventType: audit.EventRefresh,
		Success:   true,
		Metadata:  map[string]string{"forced": strconv.FormatBool(force)},
	}
	if claims, err := token.Decode(pair.RefreshToken); err == nil {
		ev.UserID, ev.Role = claims.UserID, claims.Role
	}
	audit.Emit(ctx, c.audit, ev)
	c.log.Debug("token pair renewed", zap.Bool("forced", force), zap.Duration("took", time.Since(start)))
	return nil
}
