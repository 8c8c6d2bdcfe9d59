// Package prometheus provides Prometheus collectors for courseauth metrics.
//
// [NewPrometheusExporter] accepts a [courseauth.Controller] and exposes an
// [http.Handler] that renders all courseauth counters and histograms in
// Prometheus text exposition format. Counter names are prefixed
// courseauth_*_total; the single histogram is courseauth_request_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate controller state.
package prometheus
