package goSession

import (
	"net/http"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/bff"
	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/internal/security"
	"github.com/MrEthical07/goSession/pipeline"
	"github.com/MrEthical07/goSession/push"
	"go.uber.org/zap"
)

// Server is the same-origin backend runtime.
type Server struct {
	cfg      Config
	log      *zap.Logger
	pipeline *pipeline.Pipeline
	api      *authapi.Server
	routes   *guard.Table
	hub      *push.Hub
	bff      *bff.Server
	metrics  *metrics.Metrics
	audit    *audit.Dispatcher
	report   security.Report
}

// SecurityReport describes the security-relevant settings of a [Server].
type SecurityReport = security.Report

// Handler serves the BFF routes, confirmation pages, guarded pages and, when
// enabled, the push hub.
func (s *Server) Handler() http.Handler { return s.bff }

// BFF exposes the router so callers can mount extra routes.
func (s *Server) BFF() *bff.Server { return s.bff }

// Authority exposes the typed calls to the remote authority.
func (s *Server) Authority() *authapi.Server { return s.api }

// Routes returns the compiled route table.
func (s *Server) Routes() *guard.Table { return s.routes }

// Hub returns the push hub, or nil when push is disabled.
func (s *Server) Hub() *push.Hub { return s.hub }

// SecurityReport returns the posture the server was built with. Its
// Warnings list what should not reach production.
func (s *Server) SecurityReport() SecurityReport { return s.report }

func (s *Server) MetricsSnapshot() MetricsSnapshot { return s.metrics.Snapshot() }

func (s *Server) AuditDropped() uint64 { return s.audit.Dropped() }

// Close disconnects push subscribers and drains the audit dispatcher.
func (s *Server) Close() {
	if s.hub != nil {
		s.hub.Close()
	}
	s.audit.Close()
}
