// Package route provides segment-based path patterns, a role-keyed permission
// table, and the tri-state authorization decision used by courseauth
// navigation checks.
//
// # Matching model
//
// Patterns are matched by structural path shape, not string equality:
// "/courses/{id}" matches any path with the literal first segment and exactly
// one more segment. Within a role's rule list any match suffices; rule order
// is irrelevant, and a path may be legal for several roles independently.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. Patterns are
// registered through [Table.Register] and are stable for the lifetime of the
// process once [Table.Freeze] is called.
//
// # What this package must NOT do
//
//   - Access the network, the token store, or any courseauth state.
//   - Return errors from [Table.Authorize]: authorization is a decision
//     value, never a failure.
//   - Import courseauth or store (no upward imports).
package route
