package goSession

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/bff"
	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/internal/security"
	"github.com/MrEthical07/goSession/pipeline"
	"github.com/MrEthical07/goSession/push"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/store"
	"github.com/MrEthical07/goSession/token"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles a [Client] or a [Server]. It is configured once during
// initialization and used for a single Build or BuildServer call.
type Builder struct {
	config Config

	redis      redis.UniversalClient
	httpClient *http.Client
	navigator  pipeline.Navigator
	logger     *zap.Logger
	auditSink  AuditSink
	clock      token.Clock
	verifier   push.Verifier

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used by the redis store backend and the
// BFF login throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithNavigator receives the client runtime's redirects. Without one,
// navigations are only logged.
func (b *Builder) WithNavigator(n pipeline.Navigator) *Builder {
	b.navigator = n
	return b
}

func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.logger = log
	return b
}

// WithAuditSink enables audit dispatch into sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces time.Now for every expiry comparison.
func (b *Builder) WithClock(clock token.Clock) *Builder {
	b.clock = clock
	return b
}

// WithPushVerifier authenticates push subscribers on a Server. The default
// only decodes the access token and checks its expiry.
func (b *Builder) WithPushVerifier(v push.Verifier) *Builder {
	b.verifier = v
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// shared holds what both runtimes build the same way.
type shared struct {
	cfg     Config
	log     *zap.Logger
	http    *http.Client
	metrics *metrics.Metrics
	audit   *audit.Dispatcher
	routes  *guard.Table
}

func (b *Builder) prepare() (*shared, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}
	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	routes, err := guard.NewTable(cfg.Guard)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	log := b.logger
	if log == nil {
		log = zap.NewNop()
	}
	hc := b.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.HTTP.Timeout}
	}

	var dispatcher *audit.Dispatcher
	if b.auditSink != nil {
		cfg.Audit.Enabled = true
		dispatcher = audit.NewDispatcher(cfg.Audit, b.auditSink)
	}

	b.built = true
	return &shared{
		cfg:     cfg,
		log:     log,
		http:    hc,
		metrics: metrics.New(cfg.Metrics),
		audit:   dispatcher,
		routes:  routes,
	}, nil
}

// Build assembles a client runtime. Its pipeline runs in client mode whatever
// Config.Pipeline.Mode says.
func (b *Builder) Build() (*Client, error) {
	sh, err := b.prepare()
	if err != nil {
		return nil, err
	}
	cfg := sh.cfg

	st, err := b.buildStore(cfg, sh.log)
	if err != nil {
		sh.audit.Close()
		return nil, err
	}

	nav := b.navigator
	if nav == nil {
		nav = pipeline.NavigatorFunc(func(_ context.Context, target string) {
			sh.log.Info("navigate", zap.String("target", target))
		})
	}

	pcfg := cfg.Pipeline
	pcfg.Mode = pipeline.ClientMode
	if pcfg.LoginRoute == "" {
		pcfg.LoginRoute = sh.routes.LoginPath()
	}
	p, err := pipeline.New(pcfg,
		pipeline.WithHTTPClient(sh.http),
		pipeline.WithStore(st),
		pipeline.WithNavigator(nav),
		pipeline.WithLogger(sh.log.Named("pipeline")),
		pipeline.WithMetrics(sh.metrics),
		pipeline.WithAudit(sh.audit),
	)
	if err != nil {
		sh.audit.Close()
		return nil, err
	}
	api, err := authapi.NewClient(p, sh.log.Named("authapi"))
	if err != nil {
		sh.audit.Close()
		return nil, err
	}

	coord := refresh.New(st, api,
		refresh.WithClock(b.clock),
		refresh.WithLogger(sh.log.Named("refresh")),
		refresh.WithMetrics(sh.metrics),
		refresh.WithAudit(sh.audit),
	)

	return &Client{
		cfg:      cfg,
		log:      sh.log,
		http:     sh.http,
		store:    st,
		pipeline: p,
		api:      api,
		refresh:  coord,
		nav:      nav,
		routes:   sh.routes,
		metrics:  sh.metrics,
		audit:    sh.audit,
		clock:    b.clock,
	}, nil
}

func (b *Builder) buildStore(cfg Config, log *zap.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case StoreRedis:
		client, err := b.redisClient(cfg)
		if err != nil {
			return nil, err
		}
		origin := cfg.Store.Origin
		if origin == "" {
			origin = cfg.Pipeline.OriginURL
		}
		return store.NewRedisStore(client, cfg.Store.RedisPrefix, origin).
			WithLogger(log.Named("store")).
			WithClock(b.clock), nil
	default:
		return store.NewMemoryStore(), nil
	}
}

// redisClient returns the client passed to WithRedis, or dials
// Store.RedisAddr.
func (b *Builder) redisClient(cfg Config) (redis.UniversalClient, error) {
	if b.redis != nil {
		return b.redis, nil
	}
	if cfg.Store.RedisAddr == "" {
		return nil, ErrRedisRequired
	}
	return redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr}), nil
}

// BuildServer assembles the same-origin backend. Its pipeline runs in server
// mode against Config.Pipeline.BaseURL.
func (b *Builder) BuildServer() (*Server, error) {
	sh, err := b.prepare()
	if err != nil {
		return nil, err
	}
	cfg := sh.cfg

	pcfg := cfg.Pipeline
	pcfg.Mode = pipeline.ServerMode
	if pcfg.LogoutConfirmRoute == "" {
		pcfg.LogoutConfirmRoute = sh.routes.LogoutPath()
	}
	p, err := pipeline.New(pcfg,
		pipeline.WithHTTPClient(sh.http),
		pipeline.WithLogger(sh.log.Named("pipeline")),
		pipeline.WithMetrics(sh.metrics),
	)
	if err != nil {
		sh.audit.Close()
		return nil, err
	}
	api, err := authapi.NewServer(p)
	if err != nil {
		sh.audit.Close()
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.BFF.LoginThrottle.Enabled {
		client, err := b.redisClient(cfg)
		if err != nil {
			sh.audit.Close()
			return nil, err
		}
		limiter = rate.New(client, cfg.BFF.LoginThrottle)
	}

	opts := []bff.Option{
		bff.WithLoginLimiter(limiter),
		bff.WithClock(b.clock),
		bff.WithLogger(sh.log.Named("bff")),
		bff.WithMetrics(sh.metrics),
		bff.WithAudit(sh.audit),
	}
	var hub *push.Hub
	if cfg.Push.Enabled {
		hub = push.NewHub(push.HubOptions{
			Verify:         b.verifier,
			OriginPatterns: cfg.Push.OriginPatterns,
			HeartbeatEvery: cfg.Push.HeartbeatEvery,
			Logger:         sh.log.Named("push"),
			Metrics:        sh.metrics,
		})
		opts = append(opts, bff.WithHub(hub))
	}

	authorityURL, _ := url.Parse(cfg.Pipeline.BaseURL)
	report := security.Report{
		SecureCookies:         !cfg.BFF.InsecureCookies,
		CookieDomain:          cfg.BFF.CookieDomain,
		AuthorityTLS:          authorityURL != nil && authorityURL.Scheme == "https",
		LoginThrottle:         limiter != nil,
		PushEnabled:           hub != nil,
		PushSignatureVerified: b.verifier != nil,
		AuditEnabled:          sh.audit != nil,
	}

	return &Server{
		report:   report,
		cfg:      cfg,
		log:      sh.log,
		pipeline: p,
		api:      api,
		routes:   sh.routes,
		hub:      hub,
		bff:      bff.New(cfg.BFF, api, sh.routes, opts...),
		metrics:  sh.metrics,
		audit:    sh.audit,
	}, nil
}
