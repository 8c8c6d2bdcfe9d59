package courseauth

import (
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	valid := DefaultConfig()
	valid.API.BaseURL = "https://api.example.com"
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing base URL", func(c *Config) { c.API.BaseURL = "" }},
		{"relative base URL", func(c *Config) { c.API.BaseURL = "/api" }},
		{"negative timeout", func(c *Config) { c.API.Timeout = -time.Second }},
		{"negative leeway", func(c *Config) { c.Refresh.ProactiveLeeway = -time.Second }},
		{"excessive leeway", func(c *Config) { c.Refresh.ProactiveLeeway = 2 * time.Hour }},
		{"negative audit buffer", func(c *Config) { c.Audit.BufferSize = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.API.BaseURL = "https://api.example.com"
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestConfigFromEnvOverlaysDefaults(t *testing.T) {
	t.Setenv("COURSEAUTH_BASE_URL", "https://api.example.com")
	t.Setenv("COURSEAUTH_TIMEOUT", "30s")
	t.Setenv("COURSEAUTH_PROACTIVE_LEEWAY", "45s")
	t.Setenv("COURSEAUTH_FETCH_ON_REHYDRATE", "false")
	t.Setenv("COURSEAUTH_AUDIT_ENABLED", "false")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}

	if cfg.API.BaseURL != "https://api.example.com" {
		t.Fatalf("BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Fatalf("Timeout = %v", cfg.API.Timeout)
	}
	if cfg.Refresh.ProactiveLeeway != 45*time.Second {
		t.Fatalf("ProactiveLeeway = %v", cfg.Refresh.ProactiveLeeway)
	}
	if cfg.Derived.FetchOnRehydrate {
		t.Fatal("FetchOnRehydrate should be overridden to false")
	}
	if cfg.Audit.Enabled {
		t.Fatal("Audit.Enabled should be overridden to false")
	}

	// Untouched fields keep their defaults.
	if cfg.API.UserAgent != "courseauth/1.0" {
		t.Fatalf("UserAgent = %q", cfg.API.UserAgent)
	}
	if !cfg.Metrics.Enabled {
		t.Fatal("Metrics.Enabled default lost")
	}
}

func TestConfigFromEnvRejectsBadValue(t *testing.T) {
	t.Setenv("COURSEAUTH_TIMEOUT", "soon")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}
