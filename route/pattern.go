package route

import (
	"errors"
	"strings"
)

// Pattern is a parsed path matcher. Literal segments must match exactly;
// segments written as "{name}" match any single non-empty segment.
//
//	Pattern instances are immutable after parsing.
type Pattern struct {
	raw      string
	segments []segment
}

type segment struct {
	literal  string
	wildcard bool
}

// ParsePattern parses a path pattern such as "/courses/{id}". The pattern
// must start with "/"; a trailing slash is ignored. "/" parses to the
// zero-segment root pattern.
func ParsePattern(raw string) (Pattern, error) {
	if raw == "" || raw[0] != '/' {
		return Pattern{}, errors.New("pattern must start with /")
	}

	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return Pattern{raw: "/"}, nil
	}

	parts := strings.Split(trimmed, "/")
	segments := make([]segment, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return Pattern{}, errors.New("pattern contains empty segment")
		}
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			segments = append(segments, segment{wildcard: true})
			continue
		}
		if strings.ContainsAny(part, "{}") {
			return Pattern{}, errors.New("pattern contains malformed placeholder")
		}
		segments = append(segments, segment{literal: part})
	}

	return Pattern{raw: raw, segments: segments}, nil
}

// MustParsePattern is [ParsePattern] but panics on error. Intended for
// static route tables assembled at process start.
func MustParsePattern(raw string) Pattern {
	p, err := ParsePattern(raw)
	if err != nil {
		panic("route: " + err.Error())
	}
	return p
}

// Match reports whether path has the structural shape of the pattern.
// Matching is segment-by-segment; no prefix or suffix matching is performed.
func (p Pattern) Match(path string) bool {
	parts := splitPath(path)
	if len(parts) != len(p.segments) {
		return false
	}
	for i, seg := range p.segments {
		if seg.wildcard {
			continue
		}
		if parts[i] != seg.literal {
			return false
		}
	}
	return true
}

// String returns the pattern as originally written.
func (p Pattern) String() string {
	return p.raw
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
