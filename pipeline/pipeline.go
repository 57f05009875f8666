package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/store"
	"github.com/MrEthical07/goSession/token"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Mode selects the execution context of a Pipeline.
type Mode int

const (
	// ClientMode reads the bearer token from the pipeline's store and owns
	// forced logout.
	ClientMode Mode = iota
	// ServerMode takes the bearer token from each request's Options.
	ServerMode
)

func (m Mode) String() string {
	if m == ServerMode {
		return "server"
	}
	return "client"
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText accepts "client" and "server".
func (m *Mode) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "client":
		*m = ClientMode
	case "server":
		*m = ServerMode
	default:
		return fmt.Errorf("pipeline: unknown mode %q", text)
	}
	return nil
}

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// Config describes where requests go and which paths carry side effects.
type Config struct {
	Mode Mode `mapstructure:"mode"`
	// BaseURL is the remote API every request targets by default.
	BaseURL string `mapstructure:"base_url"`
	// OriginURL is the same-origin BFF targeted by Options.SameOrigin. Empty
	// means relative URLs.
	OriginURL string `mapstructure:"origin_url"`
	// LoginPath and LogoutPath are the API paths whose success stores or
	// clears the token pair in client mode.
	LoginPath  string `mapstructure:"login_path"`
	LogoutPath string `mapstructure:"logout_path"`
	// LoginRoute is where a forced logout navigates.
	LoginRoute string `mapstructure:"login_route"`
	// LogoutConfirmRoute is the server-mode 401 redirect target.
	LogoutConfirmRoute string `mapstructure:"logout_confirm_route"`
}

// DefaultConfig returns the paths used by the BFF routes.
func DefaultConfig() Config {
	return Config{
		Mode:               ClientMode,
		LoginPath:          "api/auth/login",
		LogoutPath:         "api/auth/logout",
		LoginRoute:         "/login",
		LogoutConfirmRoute: "/logout",
	}
}

// Navigator performs client-side navigation.
type Navigator interface {
	Navigate(ctx context.Context, target string)
}

// NavigatorFunc adapts a function to [Navigator].
type NavigatorFunc func(ctx context.Context, target string)

func (f NavigatorFunc) Navigate(ctx context.Context, target string) { f(ctx, target) }

// Options tune one request.
type Options struct {
	// BaseURL overrides Config.BaseURL.
	BaseURL string
	// SameOrigin sends the request to Config.OriginURL instead.
	SameOrigin bool
	// AccessToken is the bearer token in server mode. It is ignored in client
	// mode, which reads the store.
	AccessToken string
	Header      http.Header
}

// RawBody is sent as-is, for multipart and other pre-encoded bodies.
type RawBody struct {
	ContentType string
	Data        []byte
}

// Response is a successful (2xx) response.
type Response struct {
	Status    int
	Header    http.Header
	Payload   json.RawMessage
	RequestID string
}

// Decode unmarshals the payload into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Payload) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(r.Payload, v)
}

// Pipeline executes API calls for one client runtime or one server context.
type Pipeline struct {
	cfg     Config
	http    *http.Client
	store   store.Store
	nav     Navigator
	log     *zap.Logger
	metrics *metrics.Metrics
	audit   audit.Emitter

	logoutFlight  singleflight.Group
	generation    atomic.Uint64
	remoteLogouts atomic.Uint64
	navigations   atomic.Uint64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.http = c
		}
	}
}

// WithStore sets the token store. Required in client mode.
func WithStore(s store.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

func WithNavigator(n Navigator) Option {
	return func(p *Pipeline) { p.nav = n }
}

func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithAudit(e audit.Emitter) Option {
	return func(p *Pipeline) { p.audit = e }
}

// New builds a Pipeline. Empty path fields of cfg take DefaultConfig values.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	def := DefaultConfig()
	if cfg.LoginPath == "" {
		cfg.LoginPath = def.LoginPath
	}
	if cfg.LogoutPath == "" {
		cfg.LogoutPath = def.LogoutPath
	}
	if cfg.LoginRoute == "" {
		cfg.LoginRoute = def.LoginRoute
	}
	if cfg.LogoutConfirmRoute == "" {
		cfg.LogoutConfirmRoute = def.LogoutConfirmRoute
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.OriginURL = strings.TrimRight(cfg.OriginURL, "/")

	p := &Pipeline{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if cfg.Mode == ClientMode && p.store == nil {
		return nil, errors.New("pipeline: client mode requires a token store")
	}
	return p, nil
}

// Mode returns the pipeline's execution context.
func (p *Pipeline) Mode() Mode { return p.cfg.Mode }

// Store returns the client-mode token store, or nil in server mode.
func (p *Pipeline) Store() store.Store { return p.store }

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// RemoteLogouts returns how many remote logout calls forced logout issued.
func (p *Pipeline) RemoteLogouts() uint64 { return p.remoteLogouts.Load() }

// Navigations returns how many forced-logout navigations were performed.
func (p *Pipeline) Navigations() uint64 { return p.navigations.Load() }

func (p *Pipeline) Get(ctx context.Context, path string, opts *Options) (*Response, error) {
	return p.Execute(ctx, http.MethodGet, path, nil, opts)
}

func (p *Pipeline) Post(ctx context.Context, path string, body any, opts *Options) (*Response, error) {
	return p.Execute(ctx, http.MethodPost, path, body, opts)
}

func (p *Pipeline) Put(ctx context.Context, path string, body any, opts *Options) (*Response, error) {
	return p.Execute(ctx, http.MethodPut, path, body, opts)
}

func (p *Pipeline) Delete(ctx context.Context, path string, body any, opts *Options) (*Response, error) {
	return p.Execute(ctx, http.MethodDelete, path, body, opts)
}

// Execute sends one request and maps its response.
func (p *Pipeline) Execute(ctx context.Context, method, path string, body any, opts *Options) (*Response, error) {
	if opts == nil {
		opts = &Options{}
	}

	reqBody, contentType, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, p.urlFor(path, opts), reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	sentToken := p.bearer(ctx, opts)
	gen := p.generation.Load()
	if sentToken != "" {
		req.Header.Set("Authorization", "Bearer "+sentToken)
	}

	start := time.Now()
	resp, err := p.http.Do(req)
	if err != nil {
		p.metrics.Inc(metrics.RequestFailure)
		p.log.Debug("request failed",
			zap.String("method", method),
			zap.String("url", req.URL.String()),
			zap.String("request_id", requestID),
			zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	p.metrics.Since(metrics.RequestLatency, start)
	if err != nil {
		p.metrics.Inc(metrics.RequestFailure)
		return nil, fmt.Errorf("read response: %w", err)
	}
	payload := normalizePayload(raw)

	p.log.Debug("request",
		zap.String("method", method),
		zap.String("url", req.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
		zap.Duration("took", time.Since(start)))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		p.metrics.Inc(metrics.RequestSuccess)
		out := &Response{Status: resp.StatusCode, Header: resp.Header, Payload: payload, RequestID: requestID}
		if p.cfg.Mode == ClientMode {
			p.applySideEffects(ctx, path, out, requestID)
		}
		return out, nil

	case resp.StatusCode == http.StatusUnprocessableEntity:
		p.metrics.Inc(metrics.RequestEntityError)
		return nil, entityFrom(resp.StatusCode, payload)

	case resp.StatusCode == http.StatusUnauthorized:
		p.metrics.Inc(metrics.RequestUnauthorized)
		if p.cfg.Mode == ServerMode {
			return nil, &RedirectError{Location: p.logoutConfirmLocation(sentToken)}
		}
		p.forceLogout(ctx, sentToken, gen, true)
		return nil, &HTTPError{Status: resp.StatusCode, Payload: payload}

	default:
		p.metrics.Inc(metrics.RequestFailure)
		return nil, &HTTPError{Status: resp.StatusCode, Payload: payload}
	}
}

// ForceLogout tears the client session down: one remote logout, a store
// clear, and one navigation to the login route, shared by concurrent callers.
// It is a no-op in server mode.
func (p *Pipeline) ForceLogout(ctx context.Context) {
	if p.cfg.Mode != ClientMode {
		return
	}
	p.forceLogout(ctx, "", p.generation.Load(), false)
}

// forceLogout runs the logout flight. When onlyIf is set, the teardown is
// skipped if the session the request was sent in is gone: the store no longer
// holds sent, or the session generation moved past gen.
func (p *Pipeline) forceLogout(ctx context.Context, sent string, gen uint64, onlyIf bool) {
	var led bool
	ch := p.logoutFlight.DoChan("logout", func() (any, error) {
		led = true
		p.teardown(context.WithoutCancel(ctx), sent, gen, onlyIf)
		return nil, nil
	})
	select {
	case <-ch:
		if !led {
			p.metrics.Inc(metrics.ForcedLogoutJoined)
		}
	case <-ctx.Done():
	}
}

func (p *Pipeline) teardown(ctx context.Context, sent string, gen uint64, onlyIf bool) {
	current, _ := p.store.Get(ctx, store.AccessToken)
	if onlyIf && (current != sent || p.generation.Load() != gen) {
		p.metrics.Inc(metrics.ForcedLogoutJoined)
		p.log.Debug("401 for a session that is already gone, skipping forced logout")
		return
	}
	refreshToken, _ := p.store.Get(ctx, store.RefreshToken)

	p.remoteLogouts.Add(1)
	if err := p.remoteLogout(ctx, current, refreshToken); err != nil {
		p.log.Warn("remote logout failed, clearing local session anyway", zap.Error(err))
	}
	p.store.Clear(ctx)
	p.generation.Add(1)
	p.metrics.Inc(metrics.ForcedLogout)

	ev := audit.Event{EventType: audit.EventForcedLogout, Success: true}
	if claims, err := token.Decode(refreshToken); err == nil {
		ev.UserID, ev.Role = claims.UserID, claims.Role
	}
	audit.Emit(ctx, p.audit, ev)
	p.log.Info("session force-logged out", zap.String("user_id", ev.UserID))

	p.navigations.Add(1)
	if p.nav != nil {
		p.nav.Navigate(ctx, p.cfg.LoginRoute)
	}
}

// remoteLogout posts to the BFF logout path outside Execute, so its own 401
// cannot re-enter forced logout.
func (p *Pipeline) remoteLogout(ctx context.Context, accessToken, refreshToken string) error {
	var body io.Reader = http.NoBody
	if refreshToken != "" {
		data, _ := json.Marshal(map[string]string{"refreshToken": refreshToken})
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.join(p.cfg.OriginURL, p.cfg.LogoutPath), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("remote logout answered %d", resp.StatusCode)
	}
	return nil
}

func (p *Pipeline) applySideEffects(ctx context.Context, path string, resp *Response, requestID string) {
	switch normalizePath(path) {
	case normalizePath(p.cfg.LoginPath):
		var body struct {
			Data store.Pair `json:"data"`
		}
		if err := resp.Decode(&body); err != nil || body.Data.AccessToken == "" || body.Data.RefreshToken == "" {
			p.log.Warn("login response carried no token pair", zap.String("request_id", requestID))
			return
		}
		p.store.SetPair(ctx, body.Data)
		p.generation.Add(1)
		p.metrics.Inc(metrics.LoginSuccess)

		ev := audit.Event{EventType: audit.EventLogin, Success: true, RequestID: requestID}
		if claims, err := token.Decode(body.Data.RefreshToken); err == nil {
			ev.UserID, ev.Role = claims.UserID, claims.Role
		}
		audit.Emit(ctx, p.audit, ev)

	case normalizePath(p.cfg.LogoutPath):
		p.store.Clear(ctx)
		p.generation.Add(1)
		p.metrics.Inc(metrics.Logout)
		audit.Emit(ctx, p.audit, audit.Event{EventType: audit.EventLogout, Success: true, RequestID: requestID})
	}
}

func (p *Pipeline) bearer(ctx context.Context, opts *Options) string {
	if p.cfg.Mode == ServerMode {
		return opts.AccessToken
	}
	tok, _ := p.store.Get(ctx, store.AccessToken)
	return tok
}

func (p *Pipeline) urlFor(path string, opts *Options) string {
	base := p.cfg.BaseURL
	switch {
	case opts.SameOrigin:
		base = p.cfg.OriginURL
	case opts.BaseURL != "":
		base = strings.TrimRight(opts.BaseURL, "/")
	}
	return p.join(base, path)
}

func (p *Pipeline) join(base, path string) string {
	return base + "/" + strings.TrimLeft(path, "/")
}

func (p *Pipeline) logoutConfirmLocation(accessToken string) string {
	return p.cfg.LogoutConfirmRoute + "?" + url.Values{"accessToken": {accessToken}}.Encode()
}

func normalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.Trim(path, "/")
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case RawBody:
		return bytes.NewReader(b.Data), b.ContentType, nil
	case *RawBody:
		return bytes.NewReader(b.Data), b.ContentType, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("encode body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// normalizePayload keeps JSON bodies as-is and wraps anything else as a JSON
// string so Payload is always valid JSON or empty.
func normalizePayload(raw []byte) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	quoted, _ := json.Marshal(string(raw))
	return json.RawMessage(quoted)
}
