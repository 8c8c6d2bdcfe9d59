package courseauth

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	headerAuthorization = "Authorization"
	headerRequestID     = "X-Request-ID"
	headerUserAgent     = "User-Agent"

	bearerPrefix = "Bearer "
)

// authTransport decorates every outbound request with the current bearer
// token and replays exactly once after a refresh when the backend answers
// 401. It never retries its own replay: a second 401 surfaces unchanged so
// callers observe the forced logout the controller has already performed.
type authTransport struct {
	base      http.RoundTripper
	ctrl      *Controller
	leeway    time.Duration
	userAgent string
	metrics   *Metrics
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	defer func() {
		t.metrics.Observe(MetricRequestLatency, time.Since(start))
	}()

	access, authenticated := t.ctrl.currentAccessToken()

	// Proactive rotation: when the access token is about to lapse, refresh
	// before spending a round trip on a guaranteed 401.
	if authenticated && t.leeway > 0 && accessTokenExpiring(access, t.leeway) {
		t.metrics.Inc(MetricProactiveRefresh)
		rotated, err := t.ctrl.refreshFor(req.Context(), access)
		if err != nil {
			return nil, err
		}
		access = rotated
	}

	requestID := requestIDFromContext(req.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}

	attempt := t.decorate(req, access, requestID)
	resp, err := t.base.RoundTrip(attempt)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !authenticated {
		return resp, nil
	}
	if !replayable(req) {
		return resp, nil
	}

	// The refresh is keyed on the token we just presented: a concurrent
	// caller that already rotated it wins, and we reuse its result.
	rotated, refreshErr := t.ctrl.refreshFor(req.Context(), access)
	if refreshErr != nil {
		resp.Body.Close()
		return nil, refreshErr
	}
	resp.Body.Close()

	t.metrics.Inc(MetricRetryReplayed)
	retry := t.decorate(req, rotated, requestID)
	return t.base.RoundTrip(retry)
}

// decorate clones the request and applies the auth headers. The original
// request is never mutated; net/http forbids transports from touching it.
func (t *authTransport) decorate(req *http.Request, access, requestID string) *http.Request {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			clone.Body = body
		}
	}
	if access != "" {
		clone.Header.Set(headerAuthorization, bearerPrefix+access)
	}
	clone.Header.Set(headerRequestID, requestID)
	if t.userAgent != "" && clone.Header.Get(headerUserAgent) == "" {
		clone.Header.Set(headerUserAgent, t.userAgent)
	}
	return clone
}

// replayable reports whether the request body can be produced a second
// time. Bodiless requests always qualify; streamed one-shot bodies do not.
func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}
