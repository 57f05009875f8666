package goSession

import (
	"io"

	"github.com/MrEthical07/goSession/internal/audit"
	"go.uber.org/zap"
)

type (
	AuditEvent  = audit.Event
	AuditSink   = audit.Sink
	AuditConfig = audit.Config
)

const (
	AuditEventLogin          = audit.EventLogin
	AuditEventLogout         = audit.EventLogout
	AuditEventRefresh        = audit.EventRefresh
	AuditEventForcedLogout   = audit.EventForcedLogout
	AuditEventSessionExpired = audit.EventSessionExpired
	AuditEventPasswordChange = audit.EventPasswordChange
	AuditEventPushSignal     = audit.EventPushSignal
)

// NewChannelSink returns a sink that exposes events on a buffered channel.
func NewChannelSink(buffer int) *audit.ChannelSink { return audit.NewChannelSink(buffer) }

// NewJSONWriterSink writes one JSON object per event to w.
func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink { return audit.NewJSONWriterSink(w) }

// NewZapSink logs events through log.
func NewZapSink(log *zap.Logger) *audit.ZapSink { return audit.NewZapSink(log) }
