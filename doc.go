// Package courseauth is the client-side session and authorization core of the
// LearnQuest course marketplace. It owns the access/refresh credential pair and
// the current user identity, makes authenticated HTTP calls against the
// marketplace REST backend with transparent one-shot refresh-and-retry, and
// decides per route and per role whether a navigation target may be shown.
//
// The package is designed for embedding in UI shells and server-rendered
// frontends: Controller methods are safe to call from multiple goroutines
// after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// courseauth is the public surface. It exposes [Controller], [Builder],
// [Config], and value types (Session, Credentials, LoginResult, etc.). Route
// matching lives in the route subpackage, durable token persistence in the
// store subpackage, and audit dispatch under internal/ where it is never
// exported.
//
// # What this package must NOT do
//
//   - Interpret backend business errors: validation messages pass through
//     verbatim as display strings.
//   - Retry a request more than once after a refresh, regardless of outcome.
//   - Expose partially written credentials: the pair is swapped atomically in
//     memory and in the token store, or not at all.
//
// # Failure contract
//
// A failed refresh ([ErrRefreshFailed]) or a missing refresh token
// ([ErrNoRefreshToken]) forces a logout: the controller drops to the
// logged-out state and clears the token store before the error reaches the
// caller. Logout itself never fails.
package courseauth
