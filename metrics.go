package goSession

import "github.com/MrEthical07/goSession/internal/metrics"

type (
	// MetricID identifies one counter or histogram.
	MetricID = metrics.ID
	// MetricsSnapshot is a point-in-time copy of every counter and histogram.
	MetricsSnapshot = metrics.Snapshot
	// MetricsConfig enables counters and latency histograms.
	MetricsConfig = metrics.Config
)

const (
	MetricLoginSuccess         = metrics.LoginSuccess
	MetricLoginFailure         = metrics.LoginFailure
	MetricLoginThrottled       = metrics.LoginThrottled
	MetricLogout               = metrics.Logout
	MetricRefreshSuccess       = metrics.RefreshSuccess
	MetricRefreshFailure       = metrics.RefreshFailure
	MetricRefreshJoined        = metrics.RefreshJoined
	MetricRefreshNotDue        = metrics.RefreshNotDue
	MetricSessionExpired       = metrics.SessionExpired
	MetricForcedLogout         = metrics.ForcedLogout
	MetricForcedLogoutJoined   = metrics.ForcedLogoutJoined
	MetricRequestSuccess       = metrics.RequestSuccess
	MetricRequestFailure       = metrics.RequestFailure
	MetricRequestUnauthorized  = metrics.RequestUnauthorized
	MetricRequestEntityError   = metrics.RequestEntityError
	MetricGuardAllow           = metrics.GuardAllow
	MetricGuardRedirectLogin   = metrics.GuardRedirectLogin
	MetricGuardRedirectHome    = metrics.GuardRedirectHome
	MetricGuardRedirectRefresh = metrics.GuardRedirectRefresh
	MetricPushForceRefresh     = metrics.PushForceRefresh
	MetricPushForceLogout      = metrics.PushForceLogout
	MetricPushDisconnect       = metrics.PushDisconnect
	MetricPasswordChange       = metrics.PasswordChange
	MetricRefreshLatency       = metrics.RefreshLatency
	MetricRequestLatency       = metrics.RequestLatency
)

// MetricCount is the number of defined metric IDs.
const MetricCount = metrics.Count

// MetricsSource is implemented by [Client] and [Server] and read by the
// exporters under metrics/export.
type MetricsSource interface {
	MetricsSnapshot() MetricsSnapshot
	AuditDropped() uint64
}
