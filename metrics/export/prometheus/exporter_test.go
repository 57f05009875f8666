package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	goSession "github.com/MrEthical07/goSession"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshot goSession.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goSession.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                       { return f.dropped }

func scrape(t *testing.T, exp *PrometheusExporter) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return rec.Code, rec.Header().Get("Content-Type"), string(body)
}

func TestScrapeEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporter(fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters:   map[goSession.MetricID]uint64{},
			Histograms: map[goSession.MetricID][]uint64{},
		},
	})

	code, _, body := scrape(t, exp)
	assert.Equal(t, http.StatusOK, code)
	assert.NotContains(t, body, "gosession_")
}

func TestScrapeIncludesCountersAndHistograms(t *testing.T) {
	exp := NewPrometheusExporter(fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{
				goSession.MetricLoginSuccess:  7,
				goSession.MetricRefreshJoined: 3,
				goSession.MetricForcedLogout:  1,
			},
			Histograms: map[goSession.MetricID][]uint64{
				goSession.MetricRefreshLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	code, contentType, body := scrape(t, exp)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, contentType, "text/plain")
	assert.Contains(t, body, "gosession_login_success_total 7")
	assert.Contains(t, body, "gosession_refresh_joined_total 3")
	assert.Contains(t, body, "gosession_forced_logout_total 1")
	assert.Contains(t, body, `gosession_refresh_latency_seconds_bucket{le="0.005"} 1`)
	assert.Contains(t, body, `gosession_refresh_latency_seconds_bucket{le="0.5"} 28`)
	assert.Contains(t, body, `gosession_refresh_latency_seconds_bucket{le="+Inf"} 36`)
	assert.Contains(t, body, "gosession_refresh_latency_seconds_count 36")
	assert.NotContains(t, body, "gosession_request_latency_seconds")
	assert.Contains(t, body, "gosession_audit_dropped_total 2")
}

func TestCollectorRegistersWithCallerRegistry(t *testing.T) {
	exp := NewPrometheusExporter(fakeSource{})
	assert.Error(t, exp.Registry().Register(NewCollector(fakeSource{})))
}

func BenchmarkScrape(b *testing.B) {
	exp := NewPrometheusExporter(fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{
				goSession.MetricLoginSuccess:   1000,
				goSession.MetricLoginFailure:   40,
				goSession.MetricRefreshSuccess: 800,
				goSession.MetricRefreshFailure: 10,
			},
			Histograms: map[goSession.MetricID][]uint64{
				goSession.MetricRequestLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})
	handler := exp.Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}
