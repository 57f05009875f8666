// Package prometheus exposes goSession metrics through
// github.com/prometheus/client_golang.
//
// [Collector] reads a [goSession.MetricsSource] on every scrape and emits
// const counters named gosession_*_total plus the refresh and request
// latency histograms. [NewPrometheusExporter] wraps a Collector in its own
// registry and serves it with promhttp.
//
// # What this package must NOT do
//
//   - Register anything in the global Prometheus registry. Callers mount
//     the Handler or register the Collector themselves.
//   - Mutate session state.
package prometheus
