package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessiond.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	v := viper.New()
	bindServerFlags(&cobra.Command{}, v)

	cfg, err := loadConfig(v, "")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "/metrics", cfg.MetricsPath)
	assert.True(t, cfg.Push.Enabled)
	assert.Equal(t, goSession.DefaultConfig().Guard, cfg.Guard)
}

func TestLoadConfigFileEnvAndFlags(t *testing.T) {
	path := writeConfig(t, `
listen: ":9090"
pipeline:
  mode: server
  base_url: "http://file.example.com"
session:
  interval: 2s
guard:
  login_path: /signin
  locales: [en, vi]
  rules:
    - prefix: /manage
      requires_auth: true
      roles: [Owner]
`)
	t.Setenv("GOSESSION_PIPELINE_BASE_URL", "http://env.example.com")

	v := viper.New()
	cmd := newServeCmd(v, &rootOptions{})
	require.NoError(t, cmd.Flags().Parse([]string{"--insecure-cookies", "--push-heartbeat=5s"}))

	cfg, err := loadConfig(v, path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, pipeline.ServerMode, cfg.Pipeline.Mode)
	assert.Equal(t, "http://env.example.com", cfg.Pipeline.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Session.Interval)
	assert.Equal(t, "/signin", cfg.Guard.LoginPath)
	assert.Equal(t, []string{"en", "vi"}, cfg.Guard.Locales)
	require.Len(t, cfg.Guard.Rules, 1)
	assert.Equal(t, guard.Rule{Prefix: "/manage", RequiresAuth: true, Roles: []string{"Owner"}}, cfg.Guard.Rules[0])
	assert.True(t, cfg.BFF.InsecureCookies)
	assert.Equal(t, 5*time.Second, cfg.Push.HeartbeatEvery)
}

func TestLoadConfigRejectsUnknownMode(t *testing.T) {
	path := writeConfig(t, "pipeline:\n  mode: browser\n")
	_, err := loadConfig(viper.New(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestLoadConfigValidates(t *testing.T) {
	path := writeConfig(t, "store:\n  backend: sqlite\n")
	_, err := loadConfig(viper.New(), path)
	assert.ErrorIs(t, err, goSession.ErrInvalidConfig)
}
