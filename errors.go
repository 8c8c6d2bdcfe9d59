package courseauth

import "errors"

var (
	// ErrNoRefreshToken is an exported constant or variable used by the session core.
	ErrNoRefreshToken = errors.New("no refresh token")
	// ErrRefreshFailed is an exported constant or variable used by the session core.
	ErrRefreshFailed = errors.New("credential refresh failed")
	// ErrNotAuthenticated is an exported constant or variable used by the session core.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrAlreadyAuthenticated is an exported constant or variable used by the session core.
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	// ErrBackendUnavailable is an exported constant or variable used by the session core.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrControllerNotReady is an exported constant or variable used by the session core.
	ErrControllerNotReady = errors.New("controller not initialized")
)

// BackendError carries a backend validation message verbatim. Business
// failures (wrong password, duplicate email) are data, not transport
// errors: the Message is meant to be rendered directly to the user.
type BackendError struct {
	Status  int
	Message string
}

// Error describes the error operation and its observable behavior.
func (e *BackendError) Error() string {
	return e.Message
}

// AsBackendError unwraps err into a [BackendError] when one is present.
func AsBackendError(err error) (*BackendError, bool) {
	var be *BackendError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
