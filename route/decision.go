package route

// Decision is the tri-state outcome of a route authorization check.
//
// The three states are deliberately distinct: a path unknown to every role
// must render a not-found page, whereas a path that exists for some other
// role redirects to the caller's role home without leaking which role owns it.
type Decision uint8

const (
	// DecisionNotFound means the path matches no rule of any role.
	DecisionNotFound Decision = iota
	// DecisionNotAllowed means the path exists but not for the caller's role.
	DecisionNotAllowed
	// DecisionAllowed means the caller's role may view the path.
	DecisionAllowed
)

// String describes the string operation and its observable behavior.
func (d Decision) String() string {
	switch d {
	case DecisionAllowed:
		return "allowed"
	case DecisionNotAllowed:
		return "not-allowed"
	case DecisionNotFound:
		return "not-found"
	default:
		return "unknown"
	}
}
