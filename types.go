package courseauth

import (
	"io"
	"time"

	internalaudit "github.com/learnquest/courseauth/internal/audit"
	"github.com/learnquest/courseauth/route"
)

// Role identifies a visitor class. Re-exported from the route package so
// embedders rarely need to import it directly.
type Role = route.Role

const (
	// RoleGuest is an exported constant or variable used by the session core.
	RoleGuest = route.RoleGuest
	// RoleStudent is an exported constant or variable used by the session core.
	RoleStudent = route.RoleStudent
	// RoleTeacher is an exported constant or variable used by the session core.
	RoleTeacher = route.RoleTeacher
	// RoleAdmin is an exported constant or variable used by the session core.
	RoleAdmin = route.RoleAdmin
)

// Decision is the tri-state route authorization outcome.
type Decision = route.Decision

const (
	// DecisionAllowed is an exported constant or variable used by the session core.
	DecisionAllowed = route.DecisionAllowed
	// DecisionNotAllowed is an exported constant or variable used by the session core.
	DecisionNotAllowed = route.DecisionNotAllowed
	// DecisionNotFound is an exported constant or variable used by the session core.
	DecisionNotFound = route.DecisionNotFound
)

// Credentials is the access/refresh token pair identifying an authenticated
// session. The pair is all-or-nothing: consumers must never observe one token
// without the other.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Valid reports whether both tokens are present.
func (c Credentials) Valid() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// User is the marketplace account record. Identity is immutable and the role
// is fixed after creation; there is no role-change flow.
type User struct {
	ID          int       `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Role        Role      `json:"role"`
	DateOfBirth string    `json:"date_of_birth,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Session is the derived aggregate owned by the [Controller]: credentials,
// user identity, and the per-user id sets that gate UI behavior. Snapshots
// returned by [Controller.Snapshot] are deep copies.
type Session struct {
	Credentials Credentials
	User        User

	EnrolledCourseIDs map[int]struct{}
	FavoriteCourseIDs map[int]struct{}
}

// LoginResult is returned by [Controller.Login]. Redirect carries the
// role-based post-login destination.
type LoginResult struct {
	User     User
	Redirect string
}

// RegisterRequest is the input for [Controller.Register].
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
}

// AuditEvent is a structured audit record emitted by the controller.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the controller's audit
// dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
