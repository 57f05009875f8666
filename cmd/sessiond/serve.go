package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/testauthority"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(v *viper.Viper, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the BFF routes, guarded pages and push hub",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, opts.configFile)
			if err != nil {
				return err
			}
			log, err := newLogger(opts.logLevel, opts.dev)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	bindServerFlags(cmd, v)
	return cmd
}

func serve(ctx context.Context, cfg serverConfig, log *zap.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	var servers []*http.Server

	if cfg.Mock {
		authority, err := testauthority.New(testauthority.Config{Logger: log.Named("authority")})
		if err != nil {
			return fmt.Errorf("mock authority: %w", err)
		}
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("mock authority listen: %w", err)
		}
		cfg.Pipeline.BaseURL = "http://" + ln.Addr().String()
		mock := &http.Server{Handler: authority.Handler(), ReadHeaderTimeout: 5 * time.Second}
		servers = append(servers, mock)
		g.Go(func() error { return serveOn(mock, ln) })
		if cfg.BFF.LoginThrottle.Enabled && cfg.Store.RedisAddr == "" {
			mr, err := miniredis.Run()
			if err != nil {
				closeAll(servers)
				return fmt.Errorf("mock redis: %w", err)
			}
			defer mr.Close()
			cfg.Store.RedisAddr = mr.Addr()
		}
		log.Info("mock authority listening",
			zap.String("url", cfg.Pipeline.BaseURL),
			zap.Strings("accounts", mockAccounts()))
	}

	b := goSession.New().
		WithConfig(cfg.Config).
		WithLogger(log).
		WithLatencyHistograms(cfg.Metrics.EnableLatencyHistograms)
	if cfg.Audit.Enabled {
		b = b.WithAuditSink(goSession.NewZapSink(log.Named("audit")))
	}
	srv, err := b.BuildServer()
	if err != nil {
		closeAll(servers)
		return err
	}
	defer srv.Close()
	for _, w := range srv.SecurityReport().Warnings() {
		log.Warn("insecure setting", zap.String("detail", w))
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		closeAll(servers)
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	front := &http.Server{Handler: newRouter(cfg, srv), ReadHeaderTimeout: 5 * time.Second}
	servers = append(servers, front)
	g.Go(func() error { return serveOn(front, ln) })
	log.Info("sessiond listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("authority", cfg.Pipeline.BaseURL),
		zap.Bool("push", srv.Hub() != nil))

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, s := range servers {
			errs = append(errs, s.Shutdown(shutdownCtx))
		}
		log.Info("sessiond stopped")
		return errors.Join(errs...)
	})
	return g.Wait()
}

// newRouter mounts the metrics endpoint next to the session server.
func newRouter(cfg serverConfig, srv *goSession.Server) http.Handler {
	r := mux.NewRouter()
	if cfg.MetricsPath != "" {
		r.Handle(cfg.MetricsPath, prometheus.NewPrometheusExporter(srv).Handler()).Methods(http.MethodGet)
	}
	r.PathPrefix("/").Handler(srv.Handler())
	return r
}

func serveOn(s *http.Server, ln net.Listener) error {
	if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func closeAll(servers []*http.Server) {
	for _, s := range servers {
		_ = s.Close()
	}
}

func mockAccounts() []string {
	var out []string
	for _, acc := range testauthority.DefaultAccounts() {
		out = append(out, acc.Email+" ("+acc.Role+")")
	}
	return out
}
