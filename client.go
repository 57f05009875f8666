package goSession

import (
	"context"
	"net/http"
	"sync"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/pipeline"
	"github.com/MrEthical07/goSession/push"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/store"
	"github.com/MrEthical07/goSession/token"
	"go.uber.org/zap"
)

// Client is one client runtime. All methods are safe for concurrent use.
type Client struct {
	cfg      Config
	log      *zap.Logger
	http     *http.Client
	store    store.Store
	pipeline *pipeline.Pipeline
	api      *authapi.Client
	refresh  *refresh.Coordinator
	nav      pipeline.Navigator
	routes   *guard.Table
	metrics  *metrics.Metrics
	audit    *audit.Dispatcher
	clock    token.Clock

	mu   sync.Mutex
	loop *session.Orchestrator
}

// Login signs in through the BFF and stores the returned pair.
func (c *Client) Login(ctx context.Context, email, password string) (*authapi.LoginData, error) {
	env, err := c.api.Login(ctx, authapi.LoginBody{Email: email, Password: password})
	if err != nil {
		c.metrics.Inc(metrics.LoginFailure)
		return nil, err
	}
	return &env.Data, nil
}

// Logout stops the session loop, revokes the session at the BFF and clears
// the store. A failed remote call is logged, never returned.
func (c *Client) Logout(ctx context.Context) {
	c.Stop()
	c.api.Logout(ctx)
}

// GuestLogout is Logout for guest (table) sessions.
func (c *Client) GuestLogout(ctx context.Context) {
	c.Stop()
	c.api.GuestLogout(ctx)
}

// SetTokens stores a pair obtained outside Login, such as a guest table
// login, and hands it to the BFF so its cookies match.
func (c *Client) SetTokens(ctx context.Context, pair store.Pair) error {
	c.store.SetPair(ctx, pair)
	return c.api.SetTokenCookies(ctx, pair)
}

// ChangePassword changes the password and stores the re-issued pair.
func (c *Client) ChangePassword(ctx context.Context, body authapi.ChangePasswordBody) error {
	_, err := c.api.ChangePassword(ctx, body)
	return err
}

// Do sends one request through the pipeline. A 401 tears the session down.
func (c *Client) Do(ctx context.Context, method, path string, body any, opts *pipeline.Options) (*pipeline.Response, error) {
	return c.pipeline.Execute(ctx, method, path, body, opts)
}

// EnsureFresh renews the pair when less than a third of the access token's
// lifetime is left.
func (c *Client) EnsureFresh(ctx context.Context) error {
	return c.refresh.EnsureFresh(ctx)
}

// ForceRefresh renews the pair now.
func (c *Client) ForceRefresh(ctx context.Context) error {
	return c.refresh.ForceRefresh(ctx)
}

// Tokens returns the stored pair.
func (c *Client) Tokens(ctx context.Context) store.Pair {
	return store.Snapshot(ctx, c.store)
}

// Session returns the claims of the stored refresh token, which carries the
// session's role. It returns [ErrNoSession] when no live refresh token is
// held.
func (c *Client) Session(ctx context.Context) (*token.Claims, error) {
	rt, ok := c.store.Get(ctx, store.RefreshToken)
	if !ok {
		return nil, ErrNoSession
	}
	claims, live := token.Live(rt, token.Now(c.clock))
	if !live {
		return nil, ErrNoSession
	}
	return claims, nil
}

// Start runs the session loop for a page at path. It returns false without
// starting anything for login, logout and refresh pages. When Config.Push.URL
// is set the loop also follows push signals and redials a dropped push
// connection; a failed first subscription is logged and the loop runs on its
// timer alone.
func (c *Client) Start(ctx context.Context, path string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loop != nil {
		select {
		case <-c.loop.Done():
		default:
			return true, ErrAlreadyStarted
		}
	}

	if c.routes.IsExempt(path) {
		return false, nil
	}

	opts := []session.Option{
		session.WithLogouter(c.pipeline),
		session.WithNavigator(c.nav),
		session.WithRoutes(c.routes),
		session.WithLogger(c.log.Named("session")),
		session.WithMetrics(c.metrics),
		session.WithAudit(c.audit),
	}
	if src := c.subscribe(ctx); src != nil {
		opts = append(opts, session.WithSignals(src))
	}
	c.loop = session.New(c.cfg.Session, c.refresh, opts...)
	c.loop.Start(ctx)
	return true, nil
}

func (c *Client) subscribe(ctx context.Context) session.SignalSource {
	if c.cfg.Push.URL == "" {
		return nil
	}
	if _, ok := c.store.Get(ctx, store.AccessToken); !ok {
		return nil
	}
	tokens := func(ctx context.Context) (string, bool) {
		return c.store.Get(ctx, store.AccessToken)
	}
	sub, err := push.Subscribe(ctx, c.cfg.Push.URL, tokens, push.SubscribeOptions{
		DialOptions: push.DialOptions{
			HTTPClient: c.http,
			Origin:     c.cfg.Pipeline.OriginURL,
			Logger:     c.log.Named("push"),
		},
		MinBackoff:   c.cfg.Push.ReconnectMin,
		MaxBackoff:   c.cfg.Push.ReconnectMax,
		OnDisconnect: func(error) { c.metrics.Inc(metrics.PushDisconnect) },
	})
	if err != nil {
		c.log.Warn("push subscription failed, running on the timer only", zap.Error(err))
		return nil
	}
	return sub
}

// Stop ends the session loop, if any, and waits for it.
func (c *Client) Stop() {
	c.mu.Lock()
	loop := c.loop
	c.mu.Unlock()
	if loop != nil {
		loop.Stop()
	}
}

// Done is closed when the current session loop ends. It is nil before Start.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loop == nil {
		return nil
	}
	return c.loop.Done()
}

// Err reports why the current session loop ended: [ErrSessionExpired],
// [ErrLoggedOut], or nil after Stop.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loop == nil {
		return nil
	}
	return c.loop.Err()
}

// Pipeline exposes the client-mode request pipeline.
func (c *Client) Pipeline() *pipeline.Pipeline { return c.pipeline }

// Store exposes the token store.
func (c *Client) Store() store.Store { return c.store }

// Config returns the effective configuration.
func (c *Client) Config() Config { return cloneConfig(c.cfg) }

func (c *Client) MetricsSnapshot() MetricsSnapshot { return c.metrics.Snapshot() }

func (c *Client) AuditDropped() uint64 { return c.audit.Dropped() }

// Close stops the session loop and drains the audit dispatcher.
func (c *Client) Close() {
	c.Stop()
	c.audit.Close()
}
