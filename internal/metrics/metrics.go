package metrics

import (
	"sync/atomic"
	"time"
)

// ID identifies one counter slot.
type ID uint16

const (
	LoginSuccess ID = iota
	LoginFailure
	// LoginThrottled counts logins refused by the failed-login limiter.
	LoginThrottled
	Logout
	RefreshSuccess
	RefreshFailure
	// RefreshJoined counts callers that shared an exchange started by someone else.
	RefreshJoined
	RefreshNotDue
	SessionExpired
	ForcedLogout
	// ForcedLogoutJoined counts 401s absorbed by an in-flight forced logout.
	ForcedLogoutJoined
	RequestSuccess
	RequestFailure
	RequestUnauthorized
	RequestEntityError
	GuardAllow
	GuardRedirectLogin
	GuardRedirectHome
	GuardRedirectRefresh
	PushForceRefresh
	PushForceLogout
	PushDisconnect
	PasswordChange
	RefreshLatency
	RequestLatency
	idCount
)

var names = [idCount]string{
	LoginSuccess:         "login_success",
	LoginFailure:         "login_failure",
	LoginThrottled:       "login_throttled",
	Logout:               "logout",
	RefreshSuccess:       "refresh_success",
	RefreshFailure:       "refresh_failure",
	RefreshJoined:        "refresh_joined",
	RefreshNotDue:        "refresh_not_due",
	SessionExpired:       "session_expired",
	ForcedLogout:         "forced_logout",
	ForcedLogoutJoined:   "forced_logout_joined",
	RequestSuccess:       "request_success",
	RequestFailure:       "request_failure",
	RequestUnauthorized:  "request_unauthorized",
	RequestEntityError:   "request_entity_error",
	GuardAllow:           "guard_allow",
	GuardRedirectLogin:   "guard_redirect_login",
	GuardRedirectHome:    "guard_redirect_home",
	GuardRedirectRefresh: "guard_redirect_refresh",
	PushForceRefresh:     "push_force_refresh",
	PushForceLogout:      "push_force_logout",
	PushDisconnect:       "push_disconnect",
	PasswordChange:       "password_change",
	RefreshLatency:       "refresh_latency",
	RequestLatency:       "request_latency",
}

// Name returns the snake_case exporter name of id.
func (id ID) Name() string {
	if id >= idCount {
		return ""
	}
	return names[id]
}

// Count is the number of defined IDs.
const Count = int(idCount)

// IsHistogram reports whether id records latencies instead of counts.
func (id ID) IsHistogram() bool {
	return id == RefreshLatency || id == RequestLatency
}

// BucketBounds are the upper bounds, in milliseconds, of the first seven
// histogram buckets. The eighth bucket is +Inf.
var BucketBounds = [BucketCount - 1]float64{5, 10, 25, 50, 100, 250, 500}

const (
	BucketCount   = 8
	cacheLineSize = 64
)

type histogram struct {
	buckets [BucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config toggles collection.
type Config struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

// Metrics is a fixed array of atomic counters plus latency histograms.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [idCount]paddedCounter
	histograms    [idCount]histogram
}

// Snapshot is a point-in-time copy of every counter and histogram.
type Snapshot struct {
	Counters   map[ID]uint64
	Histograms map[ID][]uint64
}

// New creates a Metrics instance.
func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether histograms are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id ID) {
	if m == nil || !m.enabled || id >= idCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram id. Non-histogram ids are ignored.
func (m *Metrics) Observe(id ID, d time.Duration) {
	if m == nil || !m.enableLatency || !id.IsHistogram() {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Since observes the time elapsed from start.
func (m *Metrics) Since(id ID, start time.Time) {
	if m == nil || !m.enableLatency {
		return
	}
	m.Observe(id, time.Since(start))
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id ID) uint64 {
	if m == nil || id >= idCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters, and histograms when latency is enabled.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{
			Counters:   map[ID]uint64{},
			Histograms: map[ID][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[ID]uint64, int(idCount)),
		Histograms: make(map[ID][]uint64, 2),
	}
	for id := ID(0); id < idCount; id++ {
		if id.IsHistogram() {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range []ID{RefreshLatency, RequestLatency} {
			buckets := make([]uint64, BucketCount)
			for i := range buckets {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}
	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
