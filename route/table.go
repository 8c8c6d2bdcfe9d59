package route

import (
	"errors"
	"sync"
)

// Role identifies a visitor class in the permission table. Unauthenticated
// visitors resolve to [RoleGuest] before any authorization check.
type Role string

const (
	// RoleGuest is the role of every unauthenticated visitor.
	RoleGuest Role = "guest"
	// RoleStudent is an exported constant used by the permission table.
	RoleStudent Role = "student"
	// RoleTeacher is an exported constant used by the permission table.
	RoleTeacher Role = "teacher"
	// RoleAdmin is an exported constant used by the permission table.
	RoleAdmin Role = "admin"
)

// Table maps roles to their allowed path patterns. Built through
// [Table.Register] calls and then frozen; read-only and process-wide
// thereafter.
type Table struct {
	mu     sync.RWMutex
	roles  map[Role][]Pattern
	frozen bool
}

// NewTable creates an empty permission table.
func NewTable() *Table {
	return &Table{
		roles: make(map[Role][]Pattern),
	}
}

// Register appends patterns to the role's rule list. Raw patterns are
// parsed with [ParsePattern]. Must be called before [Table.Freeze].
func (t *Table) Register(role Role, rawPatterns ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return errors.New("table frozen")
	}
	if role == "" {
		return errors.New("role cannot be empty")
	}

	for _, raw := range rawPatterns {
		p, err := ParsePattern(raw)
		if err != nil {
			return err
		}
		t.roles[role] = append(t.roles[role], p)
	}

	return nil
}

// Freeze prevents further registrations. Must be called before the table
// is used for authorization.
func (t *Table) Freeze() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frozen = true
}

// Roles returns the registered role names.
func (t *Table) Roles() []Role {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Role, 0, len(t.roles))
	for role := range t.roles {
		out = append(out, role)
	}
	return out
}

// Patterns returns a copy of the role's rule list.
func (t *Table) Patterns(role Role) []Pattern {
	t.mu.RLock()
	defer t.mu.RUnlock()

	src := t.roles[role]
	out := make([]Pattern, len(src))
	copy(out, src)
	return out
}

// Authorize decides whether role may view path.
//
// The check is two-phase: the full table is scanned first, regardless of the
// caller's role, so a path unknown to the whole system yields
// [DecisionNotFound] rather than [DecisionNotAllowed]. Stateless,
// deterministic, and side-effect-free.
func (t *Table) Authorize(path string, role Role) Decision {
	t.mu.RLock()
	defer t.mu.RUnlock()

	known := false
	for _, patterns := range t.roles {
		if matchAny(patterns, path) {
			known = true
			break
		}
	}
	if !known {
		return DecisionNotFound
	}

	if matchAny(t.roles[role], path) {
		return DecisionAllowed
	}
	return DecisionNotAllowed
}

func matchAny(patterns []Pattern, path string) bool {
	for _, p := range patterns {
		if p.Match(path) {
			return true
		}
	}
	return false
}
