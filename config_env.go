package courseauth

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type envSpec struct {
	BaseURL          string        `envconfig:"BASE_URL"`
	Timeout          time.Duration `envconfig:"TIMEOUT"`
	UserAgent        string        `envconfig:"USER_AGENT"`
	ProactiveLeeway  time.Duration `envconfig:"PROACTIVE_LEEWAY"`
	FetchOnRehydrate *bool         `envconfig:"FETCH_ON_REHYDRATE"`
	AuditEnabled     *bool         `envconfig:"AUDIT_ENABLED"`
	AuditBuffer      int           `envconfig:"AUDIT_BUFFER"`
	MetricsEnabled   *bool         `envconfig:"METRICS_ENABLED"`
	LatencyEnabled   *bool         `envconfig:"LATENCY_HISTOGRAMS"`
}

// ConfigFromEnv builds a [Config] from COURSEAUTH_* environment variables on
// top of the defaults. Unset variables leave the default in place.
func ConfigFromEnv() (Config, error) {
	cfg := defaultConfig()

	var spec envSpec
	if err := envconfig.Process("courseauth", &spec); err != nil {
		return Config{}, err
	}

	if spec.BaseURL != "" {
		cfg.API.BaseURL = spec.BaseURL
	}
	if spec.Timeout > 0 {
		cfg.API.Timeout = spec.Timeout
	}
	if spec.UserAgent != "" {
		cfg.API.UserAgent = spec.UserAgent
	}
	if spec.ProactiveLeeway > 0 {
		cfg.Refresh.ProactiveLeeway = spec.ProactiveLeeway
	}
	if spec.FetchOnRehydrate != nil {
		cfg.Derived.FetchOnRehydrate = *spec.FetchOnRehydrate
	}
	if spec.AuditEnabled != nil {
		cfg.Audit.Enabled = *spec.AuditEnabled
	}
	if spec.AuditBuffer > 0 {
		cfg.Audit.BufferSize = spec.AuditBuffer
	}
	if spec.MetricsEnabled != nil {
		cfg.Metrics.Enabled = *spec.MetricsEnabled
	}
	if spec.LatencyEnabled != nil {
		cfg.Metrics.EnableLatencyHistograms = *spec.LatencyEnabled
	}

	return cfg, nil
}
