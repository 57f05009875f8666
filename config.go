package goSession

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/MrEthical07/goSession/bff"
	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/pipeline"
	"github.com/MrEthical07/goSession/session"
)

// Config is the full configuration tree. Every field carries mapstructure
// tags so it can be loaded by viper.
type Config struct {
	Pipeline pipeline.Config `mapstructure:"pipeline"`
	HTTP     HTTPConfig      `mapstructure:"http"`
	Store    StoreConfig     `mapstructure:"store"`
	Session  session.Config  `mapstructure:"session"`
	Guard    guard.Config    `mapstructure:"guard"`
	Push     PushConfig      `mapstructure:"push"`
	BFF      bff.Config      `mapstructure:"bff"`
	Audit    audit.Config    `mapstructure:"audit"`
	Metrics  metrics.Config  `mapstructure:"metrics"`
}

/*
====================================
HTTP CONFIG
====================================
*/

// HTTPConfig tunes the outbound HTTP client.
type HTTPConfig struct {
	// Timeout bounds every outbound request. Zero means no timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreBackend selects the client token store.
type StoreBackend string

const (
	StoreMemory StoreBackend = "memory"
	StoreRedis  StoreBackend = "redis"
)

// StoreConfig selects and addresses the client token store.
type StoreConfig struct {
	Backend StoreBackend `mapstructure:"backend"`
	// RedisAddr is dialled when no client is passed to Builder.WithRedis.
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisPrefix string `mapstructure:"redis_prefix"`
	// Origin scopes redis keys. Defaults to Pipeline.OriginURL.
	Origin string `mapstructure:"origin"`
}

/*
====================================
PUSH CONFIG
====================================
*/

// PushConfig addresses the push channel on both runtimes.
type PushConfig struct {
	// URL is the hub a Client subscribes to. Empty disables push.
	URL string `mapstructure:"url"`
	// Enabled mounts the hub on a Server.
	Enabled        bool          `mapstructure:"enabled"`
	HeartbeatEvery time.Duration `mapstructure:"heartbeat_every"`
	OriginPatterns []string      `mapstructure:"origin_patterns"`
	// ReconnectMin and ReconnectMax bound the client's redial backoff after
	// the push connection drops.
	ReconnectMin time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax time.Duration `mapstructure:"reconnect_max"`
}

func defaultConfig() Config {
	return Config{
		Pipeline: pipeline.DefaultConfig(),
		HTTP:     HTTPConfig{Timeout: 30 * time.Second},
		Store: StoreConfig{
			Backend:     StoreMemory,
			RedisPrefix: "gs",
		},
		Session: session.DefaultConfig(),
		Guard:   guard.DefaultConfig(),
		Push: PushConfig{
			HeartbeatEvery: 30 * time.Second,
			ReconnectMin:   250 * time.Millisecond,
			ReconnectMax:   30 * time.Second,
		},
		BFF:     bff.DefaultConfig(),
		Audit:   audit.Config{BufferSize: 1024},
		Metrics: metrics.Config{Enabled: true},
	}
}

// DefaultConfig returns the configuration used when nothing is overridden:
// memory store, 1s freshness checks with backoff capped at 30s, and the
// restaurant route table.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Guard.Rules = make([]guard.Rule, len(cfg.Guard.Rules))
	for i, r := range cfg.Guard.Rules {
		r.Roles = append([]string(nil), r.Roles...)
		out.Guard.Rules[i] = r
	}
	out.Guard.Exempt = append([]string(nil), cfg.Guard.Exempt...)
	out.Guard.Locales = append([]string(nil), cfg.Guard.Locales...)
	out.Push.OriginPatterns = append([]string(nil), cfg.Push.OriginPatterns...)
	return out
}

// Validate checks c for settings no component can run with. The guard table
// is validated separately when it is compiled.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Timeout < 0 {
		errs = append(errs, errors.New("HTTP Timeout must be >= 0"))
	}
	if c.Session.Interval < 0 {
		errs = append(errs, errors.New("Session Interval must be >= 0"))
	}
	if c.Session.MaxBackoff < 0 {
		errs = append(errs, errors.New("Session MaxBackoff must be >= 0"))
	}
	if c.Session.MaxBackoff > 0 && c.Session.Interval > 0 && c.Session.MaxBackoff < c.Session.Interval {
		errs = append(errs, errors.New("Session MaxBackoff must be >= Interval"))
	}

	switch c.Store.Backend {
	case "", StoreMemory, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("Store Backend %q is not supported", c.Store.Backend))
	}

	for name, raw := range map[string]string{
		"Pipeline BaseURL":   c.Pipeline.BaseURL,
		"Pipeline OriginURL": c.Pipeline.OriginURL,
		"Push URL":           c.Push.URL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s %q must be an absolute URL", name, raw))
		}
	}
	if c.Push.URL != "" {
		if u, err := url.Parse(c.Push.URL); err == nil && u.Scheme != "ws" && u.Scheme != "wss" && u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, fmt.Errorf("Push URL scheme %q is not supported", u.Scheme))
		}
	}
	if c.Push.HeartbeatEvery < 0 {
		errs = append(errs, errors.New("Push HeartbeatEvery must be >= 0"))
	}
	if c.Push.ReconnectMin < 0 || c.Push.ReconnectMax < 0 {
		errs = append(errs, errors.New("Push ReconnectMin and ReconnectMax must be >= 0"))
	}
	if c.BFF.LoginThrottle.MaxAttempts < 0 || c.BFF.LoginThrottle.Window < 0 {
		errs = append(errs, errors.New("BFF LoginThrottle MaxAttempts and Window must be >= 0"))
	}
	if c.Audit.BufferSize < 0 {
		errs = append(errs, errors.New("Audit BufferSize must be >= 0"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
