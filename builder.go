package courseauth

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	internalaudit "github.com/learnquest/courseauth/internal/audit"
	"github.com/learnquest/courseauth/route"
	"github.com/learnquest/courseauth/store"
)

// Builder assembles a [Controller]. Options accumulate fluently and nothing
// touches the network until Build; a Builder is single-use.
type Builder struct {
	config     Config
	httpClient *http.Client
	tokenStore store.TokenStore
	table      *route.Table
	auditSink  AuditSink
	built      bool
}

// New creates a [Builder] preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBaseURL sets the backend base URL without replacing the rest of the
// configuration.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.API.BaseURL = baseURL
	return b
}

// WithHTTPClient sets the underlying HTTP client. Its transport becomes the
// base the bearer-decorating transport wraps; its timeout is preserved.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithTokenStore sets the persistence backend for the session state.
// A store is mandatory; see the store package for implementations.
func (b *Builder) WithTokenStore(ts store.TokenStore) *Builder {
	b.tokenStore = ts
	return b
}

// WithRoutes replaces the route permission table. When unset, Build
// installs [route.DefaultTable].
func (b *Builder) WithRoutes(t *route.Table) *Builder {
	b.table = t
	return b
}

// WithAuditSink sets the destination for audit events. Without a sink the
// dispatcher falls back to a no-op sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles metric collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles request latency histogram collection.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns an immutable [Controller].
func (b *Builder) Build() (*Controller, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.tokenStore == nil {
		return nil, errors.New("token store is required")
	}

	baseURL, err := url.Parse(cfg.API.BaseURL)
	if err != nil {
		return nil, err
	}

	table := b.table
	if table == nil {
		table = route.DefaultTable()
	} else {
		table.Freeze()
	}

	raw := b.httpClient
	if raw == nil {
		raw = &http.Client{Timeout: cfg.API.Timeout}
	}

	ctrl := &Controller{
		config:  cfg,
		baseURL: baseURL,
		store:   b.tokenStore,
		table:   table,
		raw:     raw,
		metrics: NewMetrics(cfg.Metrics),
	}

	ctrl.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	base := raw.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	ctrl.authed = &http.Client{
		Transport: &authTransport{
			base:      base,
			ctrl:      ctrl,
			leeway:    cfg.Refresh.ProactiveLeeway,
			userAgent: cfg.API.UserAgent,
			metrics:   ctrl.metrics,
		},
		Timeout: timeoutOf(raw),
	}

	return ctrl, nil
}

func timeoutOf(client *http.Client) time.Duration {
	if client == nil {
		return 0
	}
	return client.Timeout
}
