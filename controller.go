package courseauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	internalaudit "github.com/learnquest/courseauth/internal/audit"
	"github.com/learnquest/courseauth/route"
	"github.com/learnquest/courseauth/store"
)

// Controller owns the authenticated session for one marketplace client: the
// credential pair, the user identity, the derived enrollment/favorite sets,
// and the route authorization table. It is safe for concurrent use.
//
// Construct a Controller through [Builder]; the zero value is not usable.
type Controller struct {
	config  Config
	baseURL *url.URL

	store store.TokenStore
	table *route.Table

	// raw talks to the backend without bearer decoration; the session
	// lifecycle endpoints (login, refresh, logout) must never recurse
	// through the retrying transport.
	raw    *http.Client
	authed *http.Client

	audit   *internalaudit.Dispatcher
	metrics *Metrics

	mu   sync.RWMutex
	sess *Session

	// refreshMu serializes credential rotation. A loser of the race
	// re-checks the current access token under the lock and reuses the
	// winner's rotation instead of burning the refresh token twice.
	refreshMu sync.Mutex

	// persistMu orders store writes. Without it a Save whose session
	// snapshot was taken before a concurrent Logout could land after that
	// Logout's Clear and resurrect dead credentials on disk.
	persistMu sync.Mutex
}

// Client returns the HTTP client that decorates every request with the
// current bearer token and transparently refreshes on 401. All marketplace
// CRUD traffic should go through it.
func (c *Controller) Client() *http.Client {
	return c.authed
}

// Routes returns the controller's route permission table.
func (c *Controller) Routes() *route.Table {
	return c.table
}

/*
====================================
SESSION STATE
====================================
*/

// IsAuthenticated reports whether a session is currently held.
func (c *Controller) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess != nil
}

// Role returns the current visitor class. Logged-out callers are guests;
// every authorization and redirect decision keys off this value.
func (c *Controller) Role() Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sess == nil {
		return RoleGuest
	}
	return c.sess.User.Role
}

// Snapshot returns a deep copy of the current session. The bool is false
// when logged out; mutating the copy never affects the controller.
func (c *Controller) Snapshot() (Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sess == nil {
		return Session{}, false
	}
	return copySession(c.sess), true
}

// IsEnrolled reports whether the current user is enrolled in the course.
// Always false for guests and non-students.
func (c *Controller) IsEnrolled(courseID int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sess == nil {
		return false
	}
	_, ok := c.sess.EnrolledCourseIDs[courseID]
	return ok
}

// IsFavorite reports whether the course is in the current user's favorites.
func (c *Controller) IsFavorite(courseID int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sess == nil {
		return false
	}
	_, ok := c.sess.FavoriteCourseIDs[courseID]
	return ok
}

// MarkEnrolled records a successful enrollment in the derived set. The
// caller performs the actual purchase through [Controller.Client]; this
// only keeps the local set coherent without a /me round trip.
func (c *Controller) MarkEnrolled(courseID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return
	}
	if c.sess.EnrolledCourseIDs == nil {
		c.sess.EnrolledCourseIDs = make(map[int]struct{})
	}
	c.sess.EnrolledCourseIDs[courseID] = struct{}{}
}

// AddFavorite records a favorited course in the derived set.
func (c *Controller) AddFavorite(courseID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return
	}
	if c.sess.FavoriteCourseIDs == nil {
		c.sess.FavoriteCourseIDs = make(map[int]struct{})
	}
	c.sess.FavoriteCourseIDs[courseID] = struct{}{}
}

// RemoveFavorite drops a course from the derived favorites set.
func (c *Controller) RemoveFavorite(courseID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return
	}
	delete(c.sess.FavoriteCourseIDs, courseID)
}

func (c *Controller) currentAccessToken() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sess == nil {
		return "", false
	}
	return c.sess.Credentials.AccessToken, true
}

func (c *Controller) currentRefreshToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.Credentials.RefreshToken
}

/*
====================================
AUTHORIZATION
====================================
*/

// Authorize evaluates the current visitor against the route table.
// The outcome is tri-state: not-allowed means the route exists but is
// outside the visitor's role (send to login or home), while not-found
// means no role knows the route at all (send to the not-found page).
func (c *Controller) Authorize(ctx context.Context, path string) Decision {
	role := c.Role()
	decision := c.table.Authorize(path, role)

	switch decision {
	case DecisionAllowed:
		c.metrics.Inc(MetricRouteAllowed)
	case DecisionNotAllowed:
		c.metrics.Inc(MetricRouteDenied)
		c.emitAudit(ctx, auditEventRouteDenied, false, c.currentUserID(), role, path, nil, nil)
	case DecisionNotFound:
		c.metrics.Inc(MetricRouteNotFound)
		c.emitAudit(ctx, auditEventRouteNotFound, false, c.currentUserID(), role, path, nil, nil)
	}

	return decision
}

/*
====================================
LOGIN / REGISTER
====================================
*/

// Login authenticates against the backend and installs the session. Backend
// validation failures come back as [BackendError] with the message verbatim;
// transport failures wrap [ErrBackendUnavailable]. The returned redirect is
// role-based: admins and teachers go to their dashboards, students return to
// the intended path from [WithIntendedPath] when one is set.
func (c *Controller) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if c.IsAuthenticated() {
		return nil, ErrAlreadyAuthenticated
	}

	status, body, err := c.postJSON(ctx, endpointLogin, loginRequest{Email: email, Password: password}, "")
	if err != nil {
		c.metrics.Inc(MetricLoginFailure)
		c.emitAudit(ctx, auditEventLoginFailure, false, "", RoleGuest, endpointLogin, err, nil)
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	var resp loginResponse
	if status < 200 || status >= 300 {
		be := &BackendError{Status: status, Message: backendMessage(body)}
		c.metrics.Inc(MetricLoginFailure)
		c.emitAudit(ctx, auditEventLoginFailure, false, "", RoleGuest, endpointLogin, be, nil)
		return nil, be
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		c.metrics.Inc(MetricLoginFailure)
		c.emitAudit(ctx, auditEventLoginFailure, false, "", RoleGuest, endpointLogin, err, nil)
		return nil, fmt.Errorf("%w: malformed login response", ErrBackendUnavailable)
	}
	if resp.ErrorMessage != "" {
		be := &BackendError{Status: status, Message: resp.ErrorMessage}
		c.metrics.Inc(MetricLoginFailure)
		c.emitAudit(ctx, auditEventLoginFailure, false, "", RoleGuest, endpointLogin, be, nil)
		return nil, be
	}

	creds := resp.credentials()
	if !creds.Valid() || resp.User == nil {
		c.metrics.Inc(MetricLoginFailure)
		return nil, fmt.Errorf("%w: login response missing token pair", ErrBackendUnavailable)
	}

	sess := &Session{
		Credentials:       creds,
		User:              *resp.User,
		EnrolledCourseIDs: idSet(resp.EnrollmentIDs),
		FavoriteCourseIDs: idSet(resp.FavoriteIDs),
	}

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	// Durability is best-effort at login: a failed save leaves an
	// in-memory session that simply will not survive a restart.
	persistErr := c.persist(ctx)

	if sess.User.Role == RoleStudent && resp.EnrollmentIDs == nil && resp.FavoriteIDs == nil {
		c.fetchDerived(ctx)
	}

	c.metrics.Inc(MetricLoginSuccess)
	c.emitAudit(ctx, auditEventLoginSuccess, true, userIDString(sess.User.ID), sess.User.Role, endpointLogin, persistErr, nil)

	return &LoginResult{
		User:     sess.User,
		Redirect: c.redirectFor(sess.User.Role, intendedPathFromContext(ctx)),
	}, nil
}

// Register creates a new account. It does not log the account in; callers
// follow up with [Controller.Login]. Validation failures (duplicate email,
// weak password) surface as [BackendError].
func (c *Controller) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	status, body, err := c.postJSON(ctx, endpointRegister, req, "")
	if err != nil {
		c.metrics.Inc(MetricRegisterFailure)
		c.emitAudit(ctx, auditEventRegisterFailure, false, "", RoleGuest, endpointRegister, err, nil)
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if status < 200 || status >= 300 {
		be := &BackendError{Status: status, Message: backendMessage(body)}
		c.metrics.Inc(MetricRegisterFailure)
		c.emitAudit(ctx, auditEventRegisterFailure, false, "", RoleGuest, endpointRegister, be, nil)
		return nil, be
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		c.metrics.Inc(MetricRegisterFailure)
		return nil, fmt.Errorf("%w: malformed register response", ErrBackendUnavailable)
	}

	c.metrics.Inc(MetricRegisterSuccess)
	c.emitAudit(ctx, auditEventRegisterSuccess, true, userIDString(user.ID), user.Role, endpointRegister, nil, nil)
	return &user, nil
}

func (c *Controller) redirectFor(role Role, intended string) string {
	switch role {
	case RoleAdmin, RoleTeacher:
		return route.RoleHome(role)
	case RoleStudent:
		if intended != "" {
			return intended
		}
		return route.RoleHome(role)
	default:
		return route.PathRoot
	}
}

/*
====================================
LOGOUT / REHYDRATE
====================================
*/

// Logout ends the session unconditionally. The backend revocation call is
// fire-and-forget; local credentials and the persisted state are cleared
// regardless of its outcome. Calling Logout while logged out is a no-op.
func (c *Controller) Logout(ctx context.Context) {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()

	if sess == nil {
		return
	}

	// Best-effort revocation with the token we just dropped.
	if req, err := c.newRequest(ctx, http.MethodDelete, endpointLogout, nil, sess.Credentials.AccessToken); err == nil {
		if resp, err := c.raw.Do(req); err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}

	_ = c.clearStore(ctx)

	c.metrics.Inc(MetricLogout)
	c.emitAudit(ctx, auditEventLogout, true, userIDString(sess.User.ID), sess.User.Role, endpointLogout, nil, nil)
}

// Rehydrate restores a session persisted by an earlier process. Missing,
// partial, or corrupt state is a clean no-session start, never an error;
// the error return is reserved for an unreachable store backend. For
// students the derived sets are refetched from /me on a best-effort basis.
func (c *Controller) Rehydrate(ctx context.Context) (bool, error) {
	state, err := c.store.Load(ctx)
	if err != nil {
		return false, err
	}
	if state == nil {
		c.metrics.Inc(MetricRehydrateMiss)
		return false, nil
	}

	var user User
	if err := json.Unmarshal(state.User, &user); err != nil || user.ID == 0 {
		// Corrupt state would fail identically on every start; drop it.
		_ = c.clearStore(ctx)
		c.metrics.Inc(MetricRehydrateMiss)
		return false, nil
	}

	// When the stored access token carries a role claim it must agree
	// with the stored user; a mismatch means the state was tampered with
	// or mixed between accounts.
	if claims, ok := parseAccessClaims(state.AccessToken); ok && claims.Role != "" && Role(claims.Role) != user.Role {
		_ = c.clearStore(ctx)
		c.metrics.Inc(MetricRehydrateMiss)
		return false, nil
	}

	sess := &Session{
		Credentials: Credentials{
			AccessToken:  state.AccessToken,
			RefreshToken: state.RefreshToken,
		},
		User: user,
	}

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	if user.Role == RoleStudent && c.config.Derived.FetchOnRehydrate {
		c.fetchDerived(ctx)
	}

	c.metrics.Inc(MetricRehydrateSuccess)
	c.emitAudit(ctx, auditEventRehydrate, true, userIDString(user.ID), user.Role, "", nil, nil)
	return true, nil
}

/*
====================================
REFRESH
====================================
*/

// refreshFor rotates the credential pair that produced staleAccess. Exactly
// one caller performs the backend exchange; concurrent losers observe the
// already-rotated token under the lock and reuse it. The rotated pair is
// persisted before the method returns so a replay (or a crash) never
// observes the old pair alongside the new one.
func (c *Controller) refreshFor(ctx context.Context, staleAccess string) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if current, ok := c.currentAccessToken(); ok && current != staleAccess {
		return current, nil
	}

	refresh := c.currentRefreshToken()
	if refresh == "" {
		c.metrics.Inc(MetricRefreshFailure)
		c.forceLogout(ctx, ErrNoRefreshToken)
		return "", ErrNoRefreshToken
	}

	status, body, err := c.postJSON(ctx, endpointRefresh, refreshRequest{RefreshToken: refresh}, "")
	if err != nil {
		failure := fmt.Errorf("%w: %v", ErrRefreshFailed, err)
		c.metrics.Inc(MetricRefreshFailure)
		c.forceLogout(ctx, failure)
		return "", failure
	}
	if status < 200 || status >= 300 {
		failure := fmt.Errorf("%w: backend returned %d", ErrRefreshFailed, status)
		c.metrics.Inc(MetricRefreshFailure)
		c.forceLogout(ctx, failure)
		return "", failure
	}

	var resp refreshResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		failure := fmt.Errorf("%w: malformed refresh response", ErrRefreshFailed)
		c.metrics.Inc(MetricRefreshFailure)
		c.forceLogout(ctx, failure)
		return "", failure
	}

	creds := Credentials{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
	if !creds.Valid() {
		failure := fmt.Errorf("%w: refresh response missing token pair", ErrRefreshFailed)
		c.metrics.Inc(MetricRefreshFailure)
		c.forceLogout(ctx, failure)
		return "", failure
	}

	c.mu.Lock()
	if c.sess == nil {
		// A concurrent logout raced the refresh; the new pair is dead.
		c.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	c.sess.Credentials = creds
	userID := c.sess.User.ID
	role := c.sess.User.Role
	c.mu.Unlock()

	if err := c.persist(ctx); err != nil {
		failure := fmt.Errorf("%w: %v", ErrRefreshFailed, err)
		c.metrics.Inc(MetricRefreshFailure)
		c.forceLogout(ctx, failure)
		return "", failure
	}

	c.metrics.Inc(MetricRefreshSuccess)
	c.emitAudit(ctx, auditEventRefreshSuccess, true, userIDString(userID), role, endpointRefresh, nil, nil)
	return creds.AccessToken, nil
}

// forceLogout clears the session locally after an unrecoverable refresh
// failure. No backend call is made: the credentials are already invalid.
func (c *Controller) forceLogout(ctx context.Context, cause error) {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()

	if sess == nil {
		return
	}

	_ = c.clearStore(ctx)

	c.metrics.Inc(MetricForcedLogout)
	c.emitAudit(ctx, auditEventForcedLogout, false, userIDString(sess.User.ID), sess.User.Role, "", cause, nil)
}

/*
====================================
PERSISTENCE / DERIVED STATE
====================================
*/

// persist writes the complete session to the token store. The three fields
// are saved atomically by every store implementation; a partial write is
// indistinguishable from no session on the next start. The session is read
// under persistMu, so a clear that observes no session cannot be overtaken
// by a Save carrying an older snapshot.
func (c *Controller) persist(ctx context.Context) error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.RLock()
	sess := c.sess
	var state store.State
	if sess != nil {
		userJSON, err := json.Marshal(sess.User)
		if err != nil {
			c.mu.RUnlock()
			return err
		}
		state = store.State{
			User:         userJSON,
			AccessToken:  sess.Credentials.AccessToken,
			RefreshToken: sess.Credentials.RefreshToken,
		}
	}
	c.mu.RUnlock()

	if sess == nil {
		return c.store.Clear(ctx)
	}
	return c.store.Save(ctx, state)
}

// clearStore removes persisted state under the same ordering lock as
// persist, so the clear of a logout is never undone by an in-flight Save.
func (c *Controller) clearStore(ctx context.Context) error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	return c.store.Clear(ctx)
}

// fetchDerived repopulates the enrollment/favorite sets from /me, and takes
// the fresh user record when the backend returns one, so a profile edited
// elsewhere catches up on the next login or rehydrate. Failures are
// swallowed: the sets degrade to empty and the UI shows the un-enrolled
// affordances until the next fetch.
func (c *Controller) fetchDerived(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(endpointMe), nil)
	if err != nil {
		return
	}
	resp, err := c.authed.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return
	}

	var me meResponse
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return
	}

	userRefreshed := false
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return
	}
	// Identity is immutable: a /me record for a different account means
	// crossed sessions, and the stale local copy is the safer one.
	if me.User != nil && me.User.ID == c.sess.User.ID {
		c.sess.User = *me.User
		userRefreshed = true
	}
	c.sess.EnrolledCourseIDs = idSet(me.EnrollmentIDs)
	c.sess.FavoriteCourseIDs = idSet(me.FavoriteIDs)
	c.mu.Unlock()

	if userRefreshed {
		_ = c.persist(ctx)
	}
}

/*
====================================
HTTP PLUMBING
====================================
*/

func (c *Controller) resolve(endpoint string) string {
	ref := &url.URL{Path: endpoint}
	return c.baseURL.ResolveReference(ref).String()
}

func (c *Controller) newRequest(ctx context.Context, method, endpoint string, payload []byte, bearer string) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(endpoint), body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set(headerAuthorization, bearerPrefix+bearer)
	}
	if c.config.API.UserAgent != "" {
		req.Header.Set(headerUserAgent, c.config.API.UserAgent)
	}
	if id := requestIDFromContext(ctx); id != "" {
		req.Header.Set(headerRequestID, id)
	}
	return req, nil
}

// postJSON sends a JSON payload through the undecorated client and returns
// the status and the fully-read body. Only session lifecycle endpoints use
// it; everything else goes through the authed client.
func (c *Controller) postJSON(ctx context.Context, endpoint string, payload any, bearer string) (int, []byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, encoded, bearer)
	if err != nil {
		return 0, nil, err
	}
	resp, err := c.raw.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

/*
====================================
OBSERVABILITY / LIFECYCLE
====================================
*/

// MetricsSnapshot returns a point-in-time copy of all counters and
// histograms, suitable for the metrics/export packages.
func (c *Controller) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped reports how many audit events the dispatcher discarded
// because its buffer was full.
func (c *Controller) AuditDropped() uint64 {
	if c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

// Close flushes and stops the audit dispatcher. The controller must not be
// used after Close.
func (c *Controller) Close() {
	if c.audit != nil {
		c.audit.Close()
	}
}

func (c *Controller) currentUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sess == nil {
		return ""
	}
	return userIDString(c.sess.User.ID)
}

func userIDString(id int) string {
	if id == 0 {
		return ""
	}
	return strconv.Itoa(id)
}

func copySession(s *Session) Session {
	out := Session{
		Credentials: s.Credentials,
		User:        s.User,
	}
	if s.EnrolledCourseIDs != nil {
		out.EnrolledCourseIDs = make(map[int]struct{}, len(s.EnrolledCourseIDs))
		for id := range s.EnrolledCourseIDs {
			out.EnrolledCourseIDs[id] = struct{}{}
		}
	}
	if s.FavoriteCourseIDs != nil {
		out.FavoriteCourseIDs = make(map[int]struct{}, len(s.FavoriteCourseIDs))
		for id := range s.FavoriteCourseIDs {
			out.FavoriteCourseIDs[id] = struct{}{}
		}
	}
	return out
}
