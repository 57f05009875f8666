package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/pipeline"
	"github.com/MrEthical07/goSession/push"
	"github.com/MrEthical07/goSession/refresh"
	"go.uber.org/zap"
)

// ErrLoggedOut is reported by Err after a server-pushed force logout.
var ErrLoggedOut = errors.New("session logged out by server")

// Refresher is the renewal surface the orchestrator drives.
type Refresher interface {
	EnsureFresh(ctx context.Context) error
	ForceRefresh(ctx context.Context) error
}

// Logouter tears the session down on a force-logout signal.
type Logouter interface {
	ForceLogout(ctx context.Context)
}

// SignalSource delivers push signals. Close must be safe to call more than
// once.
type SignalSource interface {
	Signals() <-chan push.Signal
	Close() error
}

// Config tunes the loop.
type Config struct {
	// Interval between freshness checks. Default 1s; keep it well under a
	// tenth of the access-token lifetime.
	Interval time.Duration `mapstructure:"interval"`
	// MaxBackoff caps the delay after consecutive failed exchanges. Zero keeps
	// the fixed interval.
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
	// LoginRoute is navigated to when the session expires. Default "/login".
	LoginRoute string `mapstructure:"login_route"`
}

// DefaultConfig returns a 1s interval with backoff capped at 30s.
func DefaultConfig() Config {
	return Config{
		Interval:   time.Second,
		MaxBackoff: 30 * time.Second,
		LoginRoute: "/login",
	}
}

// Orchestrator is the long-running session loop of one client runtime.
type Orchestrator struct {
	cfg       Config
	refresher Refresher
	logout    Logouter
	source    SignalSource
	nav       pipeline.Navigator
	routes    *guard.Table
	log       *zap.Logger
	metrics   *metrics.Metrics
	audit     audit.Emitter

	mu       sync.Mutex
	started  bool
	stopping atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogouter sets the force-logout handler, usually the request pipeline.
func WithLogouter(l Logouter) Option {
	return func(o *Orchestrator) { o.logout = l }
}

// WithSignals subscribes the loop to push signals.
func WithSignals(s SignalSource) Option {
	return func(o *Orchestrator) { o.source = s }
}

func WithNavigator(n pipeline.Navigator) Option {
	return func(o *Orchestrator) { o.nav = n }
}

// WithRoutes sets the table used by ShouldRun.
func WithRoutes(t *guard.Table) Option {
	return func(o *Orchestrator) { o.routes = t }
}

func WithLogger(log *zap.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithAudit(e audit.Emitter) Option {
	return func(o *Orchestrator) { o.audit = e }
}

// New creates an Orchestrator around r.
func New(cfg Config, r Refresher, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxBackoff < 0 {
		cfg.MaxBackoff = 0
	}
	if cfg.LoginRoute == "" {
		cfg.LoginRoute = def.LoginRoute
	}
	o := &Orchestrator{
		cfg:       cfg,
		refresher: r,
		log:       zap.NewNop(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ShouldRun reports whether a page at path needs the loop. Login, logout and
// refresh confirmation pages do not.
func (o *Orchestrator) ShouldRun(path string) bool {
	if o.routes != nil {
		return !o.routes.IsExempt(path)
	}
	for _, p := range []string{"/login", "/logout", "/refresh-token"} {
		if path == p || len(path) > len(p) && path[:len(p)+1] == p+"/" {
			return false
		}
	}
	return true
}

// Start runs the loop in a new goroutine. Later calls are no-ops.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return
	}
	o.started = true
	ctx, o.cancel = context.WithCancel(ctx)
	go func() { o.finish(o.loop(ctx)) }()
}

// Run runs the loop on the calling goroutine and returns its terminal error:
// [refresh.ErrSessionExpired], [ErrLoggedOut], the context error, or nil after
// Stop. It returns an error immediately if the loop was already started.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return errors.New("session: orchestrator already started")
	}
	o.started = true
	ctx, o.cancel = context.WithCancel(ctx)
	o.mu.Unlock()

	err := o.loop(ctx)
	o.finish(err)
	return err
}

// Stop ends the loop and waits for teardown. Err reports nil afterwards unless
// the loop had already ended on its own.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel, started := o.cancel, o.started
	o.mu.Unlock()
	if !started {
		return
	}
	o.stopping.Store(true)
	cancel()
	<-o.done
}

// Done is closed when the loop has ended and torn down.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Err returns the terminal error once Done is closed.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

func (o *Orchestrator) finish(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
	close(o.done)
}

func (o *Orchestrator) loop(ctx context.Context) (err error) {
	var signals <-chan push.Signal
	if o.source != nil {
		signals = o.source.Signals()
	}
	timer := time.NewTimer(o.cfg.Interval)

	// Timer and subscription go down together before anything else happens.
	teardown := func() {
		timer.Stop()
		if o.source != nil {
			if cerr := o.source.Close(); cerr != nil {
				o.log.Debug("push close failed", zap.Error(cerr))
			}
		}
	}
	defer func() {
		if o.stopping.Load() && errors.Is(err, context.Canceled) {
			err = nil
		}
	}()

	failures := 0
	handle := func(res error) error {
		switch {
		case res == nil:
			failures = 0
		case errors.Is(res, refresh.ErrSessionExpired):
			return res
		case errors.Is(res, context.Canceled) || errors.Is(res, context.DeadlineExceeded):
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
		default:
			failures++
			o.log.Warn("session refresh failed", zap.Int("consecutive_failures", failures), zap.Error(res))
		}
		timer.Reset(nextDelay(o.cfg.Interval, o.cfg.MaxBackoff, failures))
		return nil
	}

	if terminal := handle(o.refresher.EnsureFresh(ctx)); terminal != nil {
		teardown()
		return o.expire(ctx, terminal)
	}

	for {
		select {
		case <-ctx.Done():
			teardown()
			return ctx.Err()

		case <-timer.C:
			if terminal := handle(o.refresher.EnsureFresh(ctx)); terminal != nil {
				teardown()
				return o.expire(ctx, terminal)
			}

		case sig, ok := <-signals:
			if !ok {
				signals = nil
				o.metrics.Inc(metrics.PushDisconnect)
				o.log.Info("push channel closed, continuing with timer only")
				continue
			}
			audit.Emit(ctx, o.audit, audit.Event{
				EventType: audit.EventPushSignal,
				Success:   true,
				Metadata:  map[string]string{"signal": string(sig)},
			})
			switch sig {
			case push.ForceRefresh:
				o.metrics.Inc(metrics.PushForceRefresh)
				if terminal := handle(o.refresher.ForceRefresh(ctx)); terminal != nil {
					teardown()
					return o.expire(ctx, terminal)
				}
			case push.ForceLogout:
				o.metrics.Inc(metrics.PushForceLogout)
				teardown()
				if o.logout != nil {
					o.logout.ForceLogout(ctx)
				}
				o.log.Info("session ended by server signal")
				return ErrLoggedOut
			}
		}
	}
}

func (o *Orchestrator) expire(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	o.log.Info("session expired, redirecting to login", zap.String("target", o.cfg.LoginRoute))
	if o.nav != nil {
		o.nav.Navigate(ctx, o.cfg.LoginRoute)
	}
	return err
}

// nextDelay doubles interval per consecutive failure, capped at max. A zero
// max disables backoff.
func nextDelay(interval, max time.Duration, failures int) time.Duration {
	if failures <= 0 || max <= 0 {
		return interval
	}
	d := interval
	for i := 0; i < failures && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	if d < interval {
		return interval
	}
	return d
}
