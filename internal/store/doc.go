// Package store provides persistent storage for identities, profiles, role grants
// and the provisioning audit log.
//
// # Architecture
//
// The store package uses an interface-driven architecture with small
// per-entity interfaces composed into Store:
//
//   - IdentityStore: Authentication records (email, password hash, metadata)
//   - ProfileStore: One-to-one descriptive records keyed by identity ID
//   - RoleStore: Role grants; (user, role) pairs are not unique
//   - AuditStore: Append-only log of admin create/revoke actions
//
// # Backends
//
// Open selects a backend by driver name:
//
//   - "sqlite": modernc.org/sqlite, pure Go, the default
//   - "sqlite3": github.com/mattn/go-sqlite3, requires cgo
//   - "postgres": github.com/jackc/pgx/v5 connection pool
//   - "mongo": go.mongodb.org/mongo-driver
//
// MockStore is an in-memory implementation for tests. FailOn injects an error
// for a named operation and Calls returns the journal of invoked operations.
//
// # Invariants
//
// Emails are normalized (trimmed, lower-cased) on write and lookup, and are
// unique across identities. Deleting an identity removes its profile and
// grants. Delete operations on missing rows succeed.
//
// # Timestamps
//
// The SQLite backend stores timestamps as RFC3339 strings in UTC. The other
// backends use native time types. All returned times are UTC.
package store
