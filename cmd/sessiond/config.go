package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "GOSESSION"

// serverConfig is the library configuration plus the settings only the
// binary cares about.
type serverConfig struct {
	goSession.Config `mapstructure:",squash"`

	Listen          string        `mapstructure:"listen"`
	MetricsPath     string        `mapstructure:"metrics_path"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Mock            bool          `mapstructure:"mock"`
}

func defaultServerConfig() serverConfig {
	cfg := goSession.DefaultConfig()
	cfg.Push.Enabled = true
	return serverConfig{
		Config:          cfg,
		Listen:          ":8080",
		MetricsPath:     "/metrics",
		ShutdownTimeout: 10 * time.Second,
	}
}

// bindServerFlags registers the commonly overridden keys as flags and binds
// them into v. Binding also makes the keys visible to AutomaticEnv.
func bindServerFlags(cmd *cobra.Command, v *viper.Viper) {
	def := defaultServerConfig()
	f := cmd.Flags()
	f.String("listen", def.Listen, "listen address")
	f.String("metrics-path", def.MetricsPath, "path of the Prometheus endpoint, empty to disable")
	f.Duration("shutdown-timeout", def.ShutdownTimeout, "graceful shutdown budget")
	f.Bool("mock", false, "serve an in-process authority and point the pipeline at it")
	f.String("authority-url", def.Pipeline.BaseURL, "base URL of the remote authority")
	f.Bool("push", def.Push.Enabled, "mount the push hub")
	f.Duration("push-heartbeat", def.Push.HeartbeatEvery, "push heartbeat interval")
	f.String("cookie-domain", def.BFF.CookieDomain, "domain attribute of token cookies")
	f.Bool("insecure-cookies", def.BFF.InsecureCookies, "drop the Secure attribute for plain HTTP development")
	f.Bool("latency-histograms", def.Metrics.EnableLatencyHistograms, "record refresh and request latency")
	f.Bool("audit", false, "log audit events")
	f.Bool("login-throttle", def.BFF.LoginThrottle.Enabled, "throttle failed logins in redis")
	f.String("redis-addr", def.Store.RedisAddr, "redis address for the login throttle; --mock starts miniredis when empty")

	for key, flag := range map[string]string{
		"listen":                            "listen",
		"metrics_path":                      "metrics-path",
		"shutdown_timeout":                  "shutdown-timeout",
		"mock":                              "mock",
		"pipeline.base_url":                 "authority-url",
		"push.enabled":                      "push",
		"push.heartbeat_every":              "push-heartbeat",
		"bff.cookie_domain":                 "cookie-domain",
		"bff.insecure_cookies":              "insecure-cookies",
		"metrics.enable_latency_histograms": "latency-histograms",
		"audit.enabled":                     "audit",
		"bff.login_throttle.enabled":        "login-throttle",
		"store.redis_addr":                  "redis-addr",
	} {
		_ = v.BindPFlag(key, f.Lookup(flag))
	}
}

// loadConfig layers defaults, the optional config file, GOSESSION_* env
// vars and flags, then validates the result.
func loadConfig(v *viper.Viper, path string) (serverConfig, error) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return serverConfig{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := defaultServerConfig()
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return serverConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		return serverConfig{}, fmt.Errorf("%w: listen address must not be empty", goSession.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return serverConfig{}, err
	}
	return cfg, nil
}
