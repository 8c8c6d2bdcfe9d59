package courseauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/learnquest/courseauth/store"
)

func TestLoginRedirectPolicy(t *testing.T) {
	cases := []struct {
		name     string
		role     Role
		intended string
		want     string
	}{
		{"admin to dashboard", RoleAdmin, "/courses/9", "/admin"},
		{"teacher to dashboard", RoleTeacher, "", "/teacher"},
		{"student to intended path", RoleStudent, "/courses/9", "/courses/9"},
		{"student default home", RoleStudent, "", "/courses"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /token/login/", func(w http.ResponseWriter, r *http.Request) {
				writeLoginResponse(w, tc.role, "access-1", "refresh-1")
			})
			mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(meResponse{})
			})
			server := httptest.NewServer(mux)
			defer server.Close()

			ctrl, _ := buildController(t, server.URL, nil)

			ctx := t.Context()
			if tc.intended != "" {
				ctx = WithIntendedPath(ctx, tc.intended)
			}
			result, err := ctrl.Login(ctx, "visitor@example.com", "password")
			if err != nil {
				t.Fatalf("Login: %v", err)
			}
			if result.Redirect != tc.want {
				t.Fatalf("Redirect = %q, want %q", result.Redirect, tc.want)
			}
		})
	}
}

func TestLoginInstallsAndPersistsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token/login/", func(w http.ResponseWriter, r *http.Request) {
		user := testUser(RoleStudent)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":   "access-1",
			"refresh_token":  "refresh-1",
			"user":           user,
			"enrollment_ids": []int{101, 102},
			"favorite_ids":   []int{102},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctrl, mem := buildController(t, server.URL, nil)
	result := mustLogin(t, ctrl)

	if result.User.Email != "visitor@example.com" {
		t.Fatalf("User = %+v", result.User)
	}
	if !ctrl.IsAuthenticated() || ctrl.Role() != RoleStudent {
		t.Fatal("expected an authenticated student session")
	}
	if !ctrl.IsEnrolled(101) || !ctrl.IsEnrolled(102) || ctrl.IsEnrolled(103) {
		t.Fatal("enrollment set not derived from login response")
	}
	if !ctrl.IsFavorite(102) || ctrl.IsFavorite(101) {
		t.Fatal("favorite set not derived from login response")
	}

	state, err := mem.Load(t.Context())
	if err != nil || state == nil {
		t.Fatalf("Load = %+v, %v; want persisted session", state, err)
	}
	if state.AccessToken != "access-1" || state.RefreshToken != "refresh-1" {
		t.Fatalf("persisted tokens = %q/%q", state.AccessToken, state.RefreshToken)
	}
	var persisted User
	if err := json.Unmarshal(state.User, &persisted); err != nil || persisted.ID != 7 {
		t.Fatalf("persisted user = %+v, %v", persisted, err)
	}
}

func TestLoginBackendErrorIsVerbatim(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token/login/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Invalid email or password."})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctrl, _ := buildController(t, server.URL, nil)

	_, err := ctrl.Login(t.Context(), "visitor@example.com", "wrong")
	be, ok := AsBackendError(err)
	if !ok {
		t.Fatalf("error = %v, want BackendError", err)
	}
	if be.Status != http.StatusBadRequest || be.Message != "Invalid email or password." {
		t.Fatalf("BackendError = %+v", be)
	}
	if ctrl.IsAuthenticated() {
		t.Fatal("failed login must not install a session")
	}
}

func TestLoginNormalizesLegacyTokenField(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token/login/", func(w http.ResponseWriter, r *http.Request) {
		user := testUser(RoleTeacher)
		json.NewEncoder(w).Encode(map[string]any{
			"token":         "legacy-access",
			"refresh_token": "refresh-1",
			"user":          user,
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctrl, _ := buildController(t, server.URL, nil)
	mustLogin(t, ctrl)

	sess, ok := ctrl.Snapshot()
	if !ok || sess.Credentials.AccessToken != "legacy-access" {
		t.Fatalf("Snapshot credentials = %+v", sess.Credentials)
	}
}

func TestLoginRejectsIncompletePair(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token/login/", func(w http.ResponseWriter, r *http.Request) {
		user := testUser(RoleStudent)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-1",
			"user":         user,
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctrl, mem := buildController(t, server.URL, nil)

	_, err := ctrl.Login(t.Context(), "visitor@example.com", "password")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("error = %v, want ErrBackendUnavailable", err)
	}
	if ctrl.IsAuthenticated() {
		t.Fatal("half a token pair must not authenticate")
	}
	if state, _ := mem.Load(t.Context()); state != nil {
		t.Fatal("nothing should be persisted")
	}
}

func TestLoginFetchesDerivedSetsWhenAbsent(t *testing.T) {
	var meBearer atomic.Value

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token/login/", func(w http.ResponseWriter, r *http.Request) {
		writeLoginResponse(w, RoleStudent, "access-1", "refresh-1")
	})
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		meBearer.Store(bearerOf(r))
		json.NewEncoder(w).Encode(map[string]any{
			"enrollment_ids": []int{201},
			"favorite_ids":   []int{202},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctrl, _ := buildController(t, server.URL, nil)
	mustLogin(t, ctrl)

	if !ctrl.IsEnrolled(201) || !ctrl.IsFavorite(202) {
		t.Fatal("derived sets not fetched from /me")
	}
	if got, _ := meBearer.Load().(string); got != "access-1" {
		t.Fatalf("/me bearer = %q, want access-1", got)
	}
}

func TestLoginWhileAuthenticated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token/login/", func(w http.ResponseWriter, r *http.Request) {
		writeLoginResponse(w, RoleTeacher, "access-1", "refresh-1")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctrl, _ := buildController(t, server.URL, nil)
	mustLogin(t, ctrl)

	if _, err := ctrl.Login(t.Context(), "visitor@example.com", "password"); !errors.Is(err, ErrAlreadyAuthenticated) {
		t.Fatalf("error = %v, want ErrAlreadyAuthenticated", err)
	}
}

func TestLogoutIsIdempotentAndClearsEverything(t *testing.T) {
	var logoutCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token/login/", func(w http.ResponseWriter, r *http.Request) {
		writeLoginResponse(w, RoleTeacher, "access-1", "refresh-1")
	})
	mux.HandleFunc("DELETE /token/logout/", func(w http.ResponseWriter, r *http.Request) {
		logoutCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctrl, mem := buildController(t, server.URL, nil)
	mustLogin(t, ctrl)

	ctrl.Logout(t.Context())

	if ctrl.IsAuthenticated() {
		t.Fatal("still authenticated after Logout")
	}
	if ctrl.Role() != RoleGuest {
		t.Fatalf("Role = %q, want guest", ctrl.Role())
	}
	if state, _ := mem.Load(t.Context()); state != nil {
		t.Fatal("store not cleared by Logout")
	}
	if got := logoutCalls.Load(); got != 1 {
		t.Fatalf("backend logout calls = %d, want 1", got)
	}

	// Logging out twice is a no-op, not an error or a second backend call.
	ctrl.Logout(t.Context())
	if got := logoutCalls.Load(); got != 1 {
		t.Fatalf("backend logout calls after repeat = %d, want 1", got)
	}
}

func TestLogoutSurvivesBackendOutage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token/login/", func(w http.ResponseWriter, r *http.Request) {
		writeLoginResponse(w, RoleStudent, "access-1", "refresh-1")
	})
	server := httptest.NewServer(mux)

	ctrl, mem := buildController(t, server.URL, nil)
	mustLogin(t, ctrl)

	server.Close()
	ctrl.Logout(t.Context())

	if ctrl.IsAuthenticated() {
		t.Fatal("local logout must not depend on the backend")
	}
	if state, _ := mem.Load(t.Context()); state != nil {
		t.Fatal("store not cleared when backend is down")
	}
}

func TestRehydrateRestoresSession(t *testing.T) {
	ctrl, mem := buildController(t, "http://unused.invalid", func(cfg *Config) {
		cfg.Derived.FetchOnRehydrate = false
	})

	user, _ := json.Marshal(testUser(RoleStudent))
	if err := mem.Save(t.Context(), store.State{
		User:         user,
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	restored, err := ctrl.Rehydrate(t.Context())
	if err != nil || !restored {
		t.Fatalf("Rehydrate = %v, %v; want true, nil", restored, err)
	}
	if ctrl.Role() != RoleStudent {
		t.Fatalf("Role = %q, want student", ctrl.Role())
	}
	sess, _ := ctrl.Snapshot()
	if sess.Credentials.AccessToken != "access-1" {
		t.Fatalf("credentials = %+v", sess.Credentials)
	}
}

func TestRehydrateRefreshesUserFromBackend(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		fresh := testUser(RoleStudent)
		fresh.FirstName = "Renamed"
		json.NewEncoder(w).Encode(map[string]any{
			"user":           fresh,
			"enrollment_ids": []int{301},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctrl, mem := buildController(t, server.URL, nil)

	stale := testUser(RoleStudent)
	stale.FirstName = "Outdated"
	user, _ := json.Marshal(stale)
	if err := mem.Save(t.Context(), store.State{
		User:         user,
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	restored, err := ctrl.Rehydrate(t.Context())
	if err != nil || !restored {
		t.Fatalf("Rehydrate = %v, %v; want true, nil", restored, err)
	}

	sess, _ := ctrl.Snapshot()
	if sess.User.FirstName != "Renamed" {
		t.Fatalf("user FirstName = %q, want the /me record", sess.User.FirstName)
	}
	if !ctrl.IsEnrolled(301) {
		t.Fatal("derived sets not taken from /me")
	}

	// The refreshed record also replaced the stale one on disk.
	state, err := mem.Load(t.Context())
	if err != nil || state == nil {
		t.Fatalf("Load = %+v, %v", state, err)
	}
	var persisted User
	if err := json.Unmarshal(state.User, &persisted); err != nil || persisted.FirstName != "Renamed" {
		t.Fatalf("persisted user = %+v, %v", persisted, err)
	}
}

func TestRehydrateEmptyStoreIsCleanMiss(t *testing.T) {
	ctrl, _ := buildController(t, "http://unused.invalid", nil)

	restored, err := ctrl.Rehydrate(t.Context())
	if err != nil || restored {
		t.Fatalf("Rehydrate = %v, %v; want false, nil", restored, err)
	}
	if ctrl.IsAuthenticated() {
		t.Fatal("no session should be installed")
	}
}

func TestRehydrateCorruptUserClearsStore(t *testing.T) {
	ctrl, mem := buildController(t, "http://unused.invalid", nil)

	if err := mem.Save(t.Context(), store.State{
		User:         []byte("{not json"),
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	restored, err := ctrl.Rehydrate(t.Context())
	if err != nil || restored {
		t.Fatalf("Rehydrate = %v, %v; want false, nil", restored, err)
	}
	if state, _ := mem.Load(t.Context()); state != nil {
		t.Fatal("corrupt state should be cleared, not retried forever")
	}
}

func TestRehydrateRoleMismatchClearsStore(t *testing.T) {
	ctrl, mem := buildController(t, "http://unused.invalid", nil)

	// Stored user claims student, but the token was minted for an admin.
	user, _ := json.Marshal(testUser(RoleStudent))
	if err := mem.Save(t.Context(), store.State{
		User:         user,
		AccessToken:  signedAccessToken(t, "admin", time.Hour),
		RefreshToken: "refresh-1",
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	restored, err := ctrl.Rehydrate(t.Context())
	if err != nil || restored {
		t.Fatalf("Rehydrate = %v, %v; want false, nil", restored, err)
	}
	if state, _ := mem.Load(t.Context()); state != nil {
		t.Fatal("mismatched state should be cleared")
	}
}

// gatedStore blocks its first Save until released, holding the login
// persist mid-flight while a logout runs.
type gatedStore struct {
	*store.Memory
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) Save(ctx context.Context, state store.State) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.Memory.Save(ctx, state)
}

func TestLogoutClearNotOvertakenByInFlightSave(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token/login/", func(w http.ResponseWriter, r *http.Request) {
		user := testUser(RoleStudent)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":   "access-1",
			"refresh_token":  "refresh-1",
			"user":           user,
			"enrollment_ids": []int{},
			"favorite_ids":   []int{},
		})
	})
	mux.HandleFunc("DELETE /token/logout/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	gated := &gatedStore{
		Memory:  store.NewMemory(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}

	cfg := DefaultConfig()
	cfg.API.BaseURL = server.URL
	cfg.Audit.Enabled = false
	cfg.Refresh.ProactiveLeeway = 0

	ctrl, err := New().WithConfig(cfg).WithTokenStore(gated).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer ctrl.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := ctrl.Login(t.Context(), "visitor@example.com", "password"); err != nil {
			t.Errorf("Login: %v", err)
		}
	}()

	// The login persist is now inside Save. A logout arriving here must
	// not have its clear overwritten when that Save lands.
	<-gated.entered
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctrl.Logout(t.Context())
	}()

	close(gated.release)
	wg.Wait()

	if state, _ := gated.Load(t.Context()); state != nil {
		t.Fatalf("stored state = %+v, want cleared: logout lost to a stale save", state)
	}
}

func TestRegister(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register/", func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "Email is required."})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(User{ID: 11, Email: req.Email, Role: RoleStudent})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctrl, _ := buildController(t, server.URL, nil)

	user, err := ctrl.Register(t.Context(), RegisterRequest{
		Email:     "new@example.com",
		Password:  "password",
		FirstName: "New",
		LastName:  "Student",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ID != 11 || user.Email != "new@example.com" {
		t.Fatalf("user = %+v", user)
	}
	if ctrl.IsAuthenticated() {
		t.Fatal("Register must not log the account in")
	}

	_, err = ctrl.Register(t.Context(), RegisterRequest{})
	if be, ok := AsBackendError(err); !ok || be.Message != "Email is required." {
		t.Fatalf("error = %v, want verbatim BackendError", err)
	}
}

func TestAuthorizeFollowsCurrentRole(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token/login/", func(w http.ResponseWriter, r *http.Request) {
		writeLoginResponse(w, RoleStudent, "access-1", "refresh-1")
	})
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(meResponse{})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctrl, _ := buildController(t, server.URL, nil)

	if got := ctrl.Authorize(t.Context(), "/my-courses"); got != DecisionNotAllowed {
		t.Fatalf("guest /my-courses = %v, want not-allowed", got)
	}

	mustLogin(t, ctrl)

	if got := ctrl.Authorize(t.Context(), "/my-courses"); got != DecisionAllowed {
		t.Fatalf("student /my-courses = %v, want allowed", got)
	}
	if got := ctrl.Authorize(t.Context(), "/admin/users"); got != DecisionNotAllowed {
		t.Fatalf("student /admin/users = %v, want not-allowed", got)
	}
	if got := ctrl.Authorize(t.Context(), "/nonexistent"); got != DecisionNotFound {
		t.Fatalf("student /nonexistent = %v, want not-found", got)
	}

	counters := ctrl.MetricsSnapshot().Counters
	if counters[MetricRouteAllowed] != 1 || counters[MetricRouteDenied] != 2 || counters[MetricRouteNotFound] != 1 {
		t.Fatalf("route counters = %v", counters)
	}
}

func TestDerivedSetMutators(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token/login/", func(w http.ResponseWriter, r *http.Request) {
		user := testUser(RoleStudent)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":   "access-1",
			"refresh_token":  "refresh-1",
			"user":           user,
			"enrollment_ids": []int{},
			"favorite_ids":   []int{},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctrl, _ := buildController(t, server.URL, nil)

	// No-ops while logged out.
	ctrl.MarkEnrolled(1)
	ctrl.AddFavorite(2)
	if ctrl.IsEnrolled(1) || ctrl.IsFavorite(2) {
		t.Fatal("mutators must be inert without a session")
	}

	mustLogin(t, ctrl)

	ctrl.MarkEnrolled(1)
	ctrl.AddFavorite(2)
	if !ctrl.IsEnrolled(1) || !ctrl.IsFavorite(2) {
		t.Fatal("mutators did not update the session")
	}
	ctrl.RemoveFavorite(2)
	if ctrl.IsFavorite(2) {
		t.Fatal("RemoveFavorite did not remove")
	}

	// Snapshots are copies; mutating one never reaches the controller.
	sess, _ := ctrl.Snapshot()
	sess.EnrolledCourseIDs[99] = struct{}{}
	if ctrl.IsEnrolled(99) {
		t.Fatal("snapshot mutation leaked into the controller")
	}
}

func TestBuilderValidation(t *testing.T) {
	if _, err := New().WithTokenStore(store.NewMemory()).Build(); err == nil {
		t.Fatal("expected error without a base URL")
	}
	if _, err := New().WithBaseURL("http://localhost:8000").Build(); err == nil {
		t.Fatal("expected error without a token store")
	}

	b := New().WithBaseURL("http://localhost:8000").WithTokenStore(store.NewMemory())
	ctrl, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer ctrl.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("a builder is single-use")
	}
	if ctrl.Routes() == nil {
		t.Fatal("default route table not installed")
	}
}

func TestAuditEventsReachSink(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token/login/", func(w http.ResponseWriter, r *http.Request) {
		writeLoginResponse(w, RoleTeacher, "access-1", "refresh-1")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sink := NewChannelSink(16)
	cfg := DefaultConfig()
	cfg.API.BaseURL = server.URL
	cfg.Refresh.ProactiveLeeway = 0

	ctrl, err := New().
		WithConfig(cfg).
		WithTokenStore(store.NewMemory()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer ctrl.Close()

	mustLogin(t, ctrl)

	select {
	case event := <-sink.Events():
		if event.EventType != "login_success" || event.UserID != "7" || event.Role != "teacher" {
			t.Fatalf("event = %+v", event)
		}
		if !event.Success || event.Timestamp.IsZero() {
			t.Fatalf("event = %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event arrived")
	}
}
