package internaldefs

import (
	courseauth "github.com/learnquest/courseauth"
)

// CounterDef defines a public type used by courseauth APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   courseauth.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by courseauth APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   courseauth.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the session core.
var CounterDefs = []CounterDef{
	{ID: courseauth.MetricLoginSuccess, Name: "courseauth_login_success_total", Help: "Successful login attempts."},
	{ID: courseauth.MetricLoginFailure, Name: "courseauth_login_failure_total", Help: "Failed login attempts."},
	{ID: courseauth.MetricRegisterSuccess, Name: "courseauth_register_success_total", Help: "Successful account registrations."},
	{ID: courseauth.MetricRegisterFailure, Name: "courseauth_register_failure_total", Help: "Failed account registrations."},
	{ID: courseauth.MetricRefreshSuccess, Name: "courseauth_refresh_success_total", Help: "Successful credential refreshes."},
	{ID: courseauth.MetricRefreshFailure, Name: "courseauth_refresh_failure_total", Help: "Failed credential refreshes."},
	{ID: courseauth.MetricRetryReplayed, Name: "courseauth_retry_replayed_total", Help: "Requests replayed after a 401-driven refresh."},
	{ID: courseauth.MetricProactiveRefresh, Name: "courseauth_proactive_refresh_total", Help: "Refreshes triggered by expiry leeway before sending."},
	{ID: courseauth.MetricForcedLogout, Name: "courseauth_forced_logout_total", Help: "Sessions cleared after unrecoverable refresh failure."},
	{ID: courseauth.MetricLogout, Name: "courseauth_logout_total", Help: "Explicit logout operations."},
	{ID: courseauth.MetricRehydrateSuccess, Name: "courseauth_rehydrate_success_total", Help: "Sessions restored from the token store."},
	{ID: courseauth.MetricRehydrateMiss, Name: "courseauth_rehydrate_miss_total", Help: "Rehydration attempts with no usable stored state."},
	{ID: courseauth.MetricRouteAllowed, Name: "courseauth_route_allowed_total", Help: "Route authorization checks that allowed."},
	{ID: courseauth.MetricRouteDenied, Name: "courseauth_route_denied_total", Help: "Route authorization checks denied by role."},
	{ID: courseauth.MetricRouteNotFound, Name: "courseauth_route_not_found_total", Help: "Route authorization checks for unknown routes."},
}

// HistogramDefs is an exported constant or variable used by the session core.
var HistogramDefs = []HistogramDef{
	{ID: courseauth.MetricRequestLatency, Name: "courseauth_request_latency_seconds", Help: "Authenticated request latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the session core.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the session core.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
