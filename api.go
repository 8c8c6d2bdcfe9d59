package courseauth

import (
	"encoding/json"
	"strings"
)

// Backend endpoints consumed by the controller. The full CRUD surface of the
// marketplace is reached by callers through [Controller.Client]; only the
// session lifecycle endpoints are owned here.
const (
	endpointLogin    = "/token/login/"
	endpointRefresh  = "/auth/refresh-session/"
	endpointLogout   = "/token/logout/"
	endpointRegister = "/register/"
	endpointMe       = "/me"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse tolerates both the canonical access/refresh pair and the
// legacy single "token" field still emitted by older backend deployments.
// The legacy field normalizes into the access token; everything downstream
// sees one scheme.
type loginResponse struct {
	AccessToken   string `json:"access_token"`
	LegacyToken   string `json:"token"`
	RefreshToken  string `json:"refresh_token"`
	User          *User  `json:"user"`
	EnrollmentIDs []int  `json:"enrollment_ids"`
	FavoriteIDs   []int  `json:"favorite_ids"`
	ErrorMessage  string `json:"error"`
}

func (r *loginResponse) credentials() Credentials {
	access := r.AccessToken
	if access == "" {
		access = r.LegacyToken
	}
	return Credentials{
		AccessToken:  access,
		RefreshToken: r.RefreshToken,
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// meResponse is the authenticated profile endpoint payload: the fresh user
// record plus the id sets the controller derives session state from.
type meResponse struct {
	User          *User `json:"user"`
	EnrollmentIDs []int `json:"enrollment_ids"`
	FavoriteIDs   []int `json:"favorite_ids"`
}

// backendMessage extracts the human-readable validation message from an
// error payload. Backends are inconsistent about the field name; the first
// non-empty of error/detail/message wins, falling back to the raw body.
func backendMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, msg := range []string{payload.Error, payload.Detail, payload.Message} {
			if msg != "" {
				return msg
			}
		}
	}
	return strings.TrimSpace(string(body))
}

func idSet(ids []int) map[int]struct{} {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
