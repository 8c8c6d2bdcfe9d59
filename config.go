package courseauth

import (
	"errors"
	"net/url"
	"time"
)

// Config defines a public type used by courseauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	API     APIConfig
	Refresh RefreshConfig
	Derived DerivedConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig defines a public type used by courseauth APIs.
type APIConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig defines a public type used by courseauth APIs.
//
// ProactiveLeeway controls expiry-aware refresh: when the access token's exp
// claim is within the leeway of now, the transport refreshes before sending
// instead of waiting for the 401. Zero disables the proactive path; the
// 401-driven path always remains active.
type RefreshConfig struct {
	ProactiveLeeway time.Duration
}

/*
====================================
DERIVED COLLECTIONS CONFIG
====================================
*/

// DerivedConfig defines a public type used by courseauth APIs.
//
// The derived enrollment/favorite id sets are only meaningful for students;
// FetchOnRehydrate controls whether rehydration triggers the best-effort
// /me fetch for them.
type DerivedConfig struct {
	FetchOnRehydrate bool
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines a public type used by courseauth APIs.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by courseauth APIs.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			Timeout:   15 * time.Second,
			UserAgent: "courseauth/1.0",
		},
		Refresh: RefreshConfig{
			ProactiveLeeway: 10 * time.Second,
		},
		Derived: DerivedConfig{
			FetchOnRehydrate: true,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// DefaultConfig returns the baseline preset. API.BaseURL must still be set
// by the caller; everything else validates as-is.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	// All sections are value types today; the clone exists so future
	// reference-typed fields keep builder immutability.
	return cfg
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("API BaseURL is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("API BaseURL must be an absolute URL")
	}
	if c.API.Timeout < 0 {
		return errors.New("API Timeout cannot be negative")
	}
	if c.Refresh.ProactiveLeeway < 0 || c.Refresh.ProactiveLeeway > time.Hour {
		return errors.New("invalid ProactiveLeeway configuration")
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.New("audit BufferSize cannot be negative")
	}
	return nil
}
