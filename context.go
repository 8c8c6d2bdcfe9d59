package courseauth

import "context"

type requestIDContextKey struct{}
type intendedPathContextKey struct{}

// WithRequestID attaches a caller-chosen request identifier to ctx. Outbound
// requests carry it as X-Request-ID; without one the transport generates a
// UUID per logical request (a refresh replay reuses the original id).
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// WithIntendedPath attaches the path the visitor was trying to reach before
// being sent to the login page. Student logins redirect back to it,
// preserving deep-link intent.
func WithIntendedPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, intendedPathContextKey{}, path)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

func intendedPathFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	path, _ := ctx.Value(intendedPathContextKey{}).(string)
	return path
}
