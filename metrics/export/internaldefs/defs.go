package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Successful logins."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Failed logins."},
	{ID: goSession.MetricLoginThrottled, Name: "gosession_login_throttled_total", Help: "Logins refused after too many failures."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Sessions torn down locally."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Token pairs renewed by the authority."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Failed refresh exchanges."},
	{ID: goSession.MetricRefreshJoined, Name: "gosession_refresh_joined_total", Help: "Callers that shared an in-flight refresh."},
	{ID: goSession.MetricRefreshNotDue, Name: "gosession_refresh_not_due_total", Help: "Freshness checks that found the access token fresh."},
	{ID: goSession.MetricSessionExpired, Name: "gosession_session_expired_total", Help: "Sessions ended by an expired refresh token."},
	{ID: goSession.MetricForcedLogout, Name: "gosession_forced_logout_total", Help: "Forced logouts started."},
	{ID: goSession.MetricForcedLogoutJoined, Name: "gosession_forced_logout_joined_total", Help: "401 responses absorbed by an in-flight forced logout."},
	{ID: goSession.MetricRequestSuccess, Name: "gosession_request_success_total", Help: "Requests answered with a 2xx status."},
	{ID: goSession.MetricRequestFailure, Name: "gosession_request_failure_total", Help: "Requests that failed in transport or with a non-2xx status."},
	{ID: goSession.MetricRequestUnauthorized, Name: "gosession_request_unauthorized_total", Help: "Requests answered with 401."},
	{ID: goSession.MetricRequestEntityError, Name: "gosession_request_entity_error_total", Help: "Requests answered with 422."},
	{ID: goSession.MetricGuardAllow, Name: "gosession_guard_allow_total", Help: "Page requests let through by the route guard."},
	{ID: goSession.MetricGuardRedirectLogin, Name: "gosession_guard_redirect_login_total", Help: "Page requests redirected to login."},
	{ID: goSession.MetricGuardRedirectHome, Name: "gosession_guard_redirect_home_total", Help: "Page requests redirected home."},
	{ID: goSession.MetricGuardRedirectRefresh, Name: "gosession_guard_redirect_refresh_total", Help: "Page requests redirected to the refresh page."},
	{ID: goSession.MetricPushForceRefresh, Name: "gosession_push_force_refresh_total", Help: "Force-refresh signals handled."},
	{ID: goSession.MetricPushForceLogout, Name: "gosession_push_force_logout_total", Help: "Force-logout signals handled."},
	{ID: goSession.MetricPushDisconnect, Name: "gosession_push_disconnect_total", Help: "Push subscriptions lost."},
	{ID: goSession.MetricPasswordChange, Name: "gosession_password_change_total", Help: "Successful password changes."},
}

// HistogramDefs lists every latency histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricRefreshLatency, Name: "gosession_refresh_latency_seconds", Help: "Refresh exchange latency."},
	{ID: goSession.MetricRequestLatency, Name: "gosession_request_latency_seconds", Help: "Outbound request latency."},
}

// BucketCount is the number of histogram buckets, +Inf included.
const BucketCount = 8

// HistogramUpperBounds are the finite bucket bounds in seconds.
var HistogramUpperBounds = [BucketCount - 1]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBounds are the le labels of every bucket.
var HistogramBounds = [BucketCount]string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are the instrument name suffixes of every bucket.
var HistogramBoundSuffix = [BucketCount]string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
