package courseauth

import (
	"context"
	"time"

	internalaudit "github.com/learnquest/courseauth/internal/audit"
)

const (
	auditEventLoginSuccess    = "login_success"
	auditEventLoginFailure    = "login_failure"
	auditEventRegisterSuccess = "register_success"
	auditEventRegisterFailure = "register_failure"
	auditEventRefreshSuccess  = "refresh_success"
	auditEventRefreshFailure  = "refresh_failure"
	auditEventForcedLogout    = "forced_logout"
	auditEventLogout          = "logout"
	auditEventRehydrate       = "rehydrate"
	auditEventRouteDenied     = "route_denied"
	auditEventRouteNotFound   = "route_not_found"
)

func (c *Controller) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	role Role,
	path string,
	errValue error,
	metadata func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	event := internalaudit.Event{
		Timestamp: time.Now(),
		EventType: eventType,
		UserID:    userID,
		Role:      string(role),
		Path:      path,
		RequestID: requestIDFromContext(ctx),
		Success:   success,
	}
	if errValue != nil {
		event.Error = errValue.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	c.audit.Emit(ctx, event)
}
