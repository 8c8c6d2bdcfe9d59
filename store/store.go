package store

import (
	"context"
	"errors"
)

// ErrStoreUnavailable is an exported constant or variable used by the session core.
var ErrStoreUnavailable = errors.New("token store unavailable")

// Field names under which the three session strings are persisted. Shared
// by every backend so stored state stays portable between them.
const (
	FieldUser         = "user"
	FieldAccessToken  = "accessToken"
	FieldRefreshToken = "refreshToken"
)

// State is the persisted session aggregate: the user record as opaque JSON
// plus the credential pair. The store never inspects the user payload.
type State struct {
	User         []byte
	AccessToken  string
	RefreshToken string
}

// Complete reports whether all three fields are present. A State that is
// not complete must be treated as "no session" by every reader.
func (s *State) Complete() bool {
	return s != nil && len(s.User) > 0 && s.AccessToken != "" && s.RefreshToken != ""
}

// TokenStore is the durable persistence interface consumed by the session
// controller.
//
// Save persists the full state atomically. Load returns (nil, nil) when no
// complete session is stored; errors are reserved for backend failures.
// Clear removes everything and is idempotent.
type TokenStore interface {
	Save(ctx context.Context, state State) error
	Load(ctx context.Context) (*State, error)
	Clear(ctx context.Context) error
}

func cloneState(s State) *State {
	user := make([]byte, len(s.User))
	copy(user, s.User)
	return &State{
		User:         user,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	}
}
