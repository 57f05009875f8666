package bff

import (
	"encoding/json"
	"net/http"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/push"
	"github.com/MrEthical07/goSession/store"
	"github.com/MrEthical07/goSession/token"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Config holds the BFF settings loadable from configuration files.
type Config struct {
	// PushPath mounts the push hub. Ignored without a hub.
	PushPath string `mapstructure:"push_path"`
	// CookieDomain is written on every token cookie when set.
	CookieDomain string `mapstructure:"cookie_domain"`
	// InsecureCookies drops the Secure attribute for plain-HTTP development.
	InsecureCookies bool `mapstructure:"insecure_cookies"`
	// LoginThrottle limits failed logins per account and client address.
	// It needs Redis.
	LoginThrottle rate.Config `mapstructure:"login_throttle"`
}

// DefaultConfig mounts the hub at /ws with secure cookies and no login
// throttle.
func DefaultConfig() Config {
	return Config{PushPath: "/ws", LoginThrottle: rate.DefaultConfig()}
}

// CookieOptions returns the cookie attributes described by c.
func (c Config) CookieOptions() store.CookieOptions {
	opts := store.DefaultCookieOptions()
	opts.Domain = c.CookieDomain
	opts.Secure = !c.InsecureCookies
	return opts
}

// Server routes the BFF API, the confirmation pages and guarded pages.
type Server struct {
	cfg     Config
	auth    *authapi.Server
	table   *guard.Table
	hub     *push.Hub
	pages   http.Handler
	cookies store.CookieOptions
	clock   token.Clock
	log     *zap.Logger
	metrics *metrics.Metrics
	audit   audit.Emitter
	limiter *rate.Limiter

	router *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithHub mounts h at Config.PushPath.
func WithHub(h *push.Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithPages sets the handler serving guarded pages. The default answers with
// the matched path and the caller's role as JSON.
func WithPages(h http.Handler) Option {
	return func(s *Server) {
		if h != nil {
			s.pages = h
		}
	}
}

func WithClock(clock token.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithAudit(e audit.Emitter) Option {
	return func(s *Server) { s.audit = e }
}

// WithLoginLimiter throttles failed logins. A nil limiter disables it.
func WithLoginLimiter(l *rate.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// New builds the router. auth must wrap a server-mode pipeline to the
// authority; table classifies page routes.
func New(cfg Config, auth *authapi.Server, table *guard.Table, opts ...Option) *Server {
	if cfg.PushPath == "" {
		cfg.PushPath = DefaultConfig().PushPath
	}
	s := &Server{
		cfg:     cfg,
		auth:    auth,
		table:   table,
		cookies: cfg.CookieOptions(),
		log:     zap.NewNop(),
	}
	s.pages = http.HandlerFunc(s.defaultPage)
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Router exposes the underlying router so callers can mount extra routes
// before serving. Routes added afterwards lose to the page catch-all.
func (s *Server) Router() *mux.Router { return s.router }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(s.withRecovery, s.withRequestLogging)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.handleLogout(s.auth.Logout)).Methods(http.MethodPost)
	api.HandleFunc("/guest/auth/logout", s.handleLogout(s.auth.GuestLogout)).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh-token", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/token", s.handleSetToken).Methods(http.MethodPost)
	api.Handle("/accounts/change-password-v2",
		middleware.RequireAccessToken(s.clock)(http.HandlerFunc(s.handleChangePassword)),
	).Methods(http.MethodPut)

	if s.hub != nil {
		r.Handle(s.cfg.PushPath, s.hub)
	}

	r.HandleFunc(s.table.LogoutPath(), s.handleLogoutConfirm).Methods(http.MethodGet)
	r.HandleFunc(s.table.RefreshPath(), s.handleRefreshConfirm).Methods(http.MethodGet)

	r.PathPrefix("/").Handler(middleware.Guard(s.table, middleware.GuardOptions{
		Clock:   s.clock,
		Logger:  s.log,
		Metrics: s.metrics,
		Cookies: s.cookies,
	})(s.pages))

	s.router = r
}

func (s *Server) defaultPage(w http.ResponseWriter, r *http.Request) {
	state, _ := middleware.StateFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"path": r.URL.Path, "role": state.Role})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
