// Package store provides durable all-or-nothing persistence for the
// courseauth credential pair and user record.
//
// # Persistence contract
//
// A stored session is exactly three string fields: the user record as JSON,
// the access token, and the refresh token. Save replaces all three in one
// atomic step; a reader can never observe a partial write. Load treats any
// missing, empty, or unparseable field as "no session" and returns (nil, nil)
// rather than an error — corrupt state must never block the caller.
//
// # Backends
//
// [Memory] for tests and ephemeral clients, [File] for single-user desktop
// deployments (with optional at-rest sealing), [SQLite] for embedded
// durable storage without a server process, and [Redis] for server-rendered
// deployments sharing a session cache.
//
// # What this package must NOT do
//
//   - Call the network beyond its own backend (no auth endpoints).
//   - Validate or interpret tokens: it persists opaque strings.
//   - Import courseauth or route (no upward imports).
package store
