// Package audit provides the asynchronous audit event model and dispatcher
// used by the courseauth session controller.
//
// Events are emitted on every session transition (login, refresh, forced
// logout, logout, rehydrate) and on route authorization denials. Dispatch is
// asynchronous: the controller never blocks on a slow sink, and backpressure
// is surfaced through a dropped-event counter rather than stalled logins.
package audit
