package courseauth

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/learnquest/courseauth/store"
)

var testSigningKey = []byte("test-signing-key")

// signedAccessToken mints an HS256 token carrying a role and expiry, the
// shape the backend issues in production.
func signedAccessToken(t *testing.T, role string, ttl time.Duration) string {
	t.Helper()

	claims := jwt.MapClaims{
		"role": role,
		"exp":  time.Now().Add(ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func testUser(role Role) User {
	return User{
		ID:        7,
		Email:     "visitor@example.com",
		FirstName: "Test",
		LastName:  "Visitor",
		Role:      role,
		IsActive:  true,
	}
}

func writeLoginResponse(w http.ResponseWriter, role Role, access, refresh string) {
	user := testUser(role)
	json.NewEncoder(w).Encode(map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"user":          user,
	})
}

func writeRefreshResponse(w http.ResponseWriter, access, refresh string) {
	json.NewEncoder(w).Encode(map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

// buildController assembles a controller against baseURL with audit off,
// proactive refresh off, and an in-memory store, unless mutate overrides.
func buildController(t *testing.T, baseURL string, mutate func(*Config)) (*Controller, *store.Memory) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.Audit.Enabled = false
	cfg.Refresh.ProactiveLeeway = 0
	if mutate != nil {
		mutate(&cfg)
	}

	mem := store.NewMemory()
	ctrl, err := New().WithConfig(cfg).WithTokenStore(mem).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(ctrl.Close)

	return ctrl, mem
}

func mustLogin(t *testing.T, ctrl *Controller) *LoginResult {
	t.Helper()
	result, err := ctrl.Login(t.Context(), "visitor@example.com", "password")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return result
}

func bearerOf(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > len("Bearer ") && auth[:len("Bearer ")] == "Bearer " {
		return auth[len("Bearer "):]
	}
	return ""
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	resp.Body.Close()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d", resp.StatusCode, want)
	}
}
