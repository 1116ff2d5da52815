// ABOUTME: Store interfaces and data types for identities, profiles, role grants, and audit
// ABOUTME: Backends (SQLite, PostgreSQL, MongoDB, in-memory) implement the Store interface

package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an identity with the same email already exists.
// The message is surfaced to API callers verbatim.
var ErrEmailExists = errors.New("A user with this email address has already been registered")

// Identity is the authentication record governing login credentials for a user.
type Identity struct {
	ID             string
	Email          string // stored lower-cased; unique
	PasswordHash   string // bcrypt hash
	EmailConfirmed bool
	Metadata       map[string]any // e.g. {"full_name": "..."}
	CreatedAt      time.Time
}

// Profile is the one-to-one descriptive record keyed to an Identity.
type Profile struct {
	ID        string // equal to Identity.ID
	Email     string
	FullName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoleName represents a role that can be granted
type RoleName string

const (
	RoleAdmin RoleName = "admin"
)

// RoleGrant records that a user holds a role. (UserID, Role) is not unique.
type RoleGrant struct {
	ID        string
	UserID    string
	Role      RoleName
	CreatedAt time.Time
}

// RoleHolder is a distinct user holding a role, joined with their profile.
// Email and FullName are empty when the user has no profile.
type RoleHolder struct {
	UserID    string
	Role      RoleName
	Email     string
	FullName  string
	GrantedAt time.Time // earliest grant
}

// AuditAction represents an auditable action.
type AuditAction string

const (
	AuditCreateAdmin    AuditAction = "create_admin"
	AuditRevokeAdmin    AuditAction = "revoke_admin"
	AuditBootstrapAdmin AuditAction = "bootstrap_admin"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID        string
	ActorID   string // identity that performed the action; empty for bootstrap
	Action    AuditAction
	TargetID  string
	Timestamp time.Time
	Detail    map[string]any
}

// IdentityStore persists authentication records.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, identity *Identity) error
	GetIdentity(ctx context.Context, id string) (*Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*Identity, error)
	DeleteIdentity(ctx context.Context, id string) error
}

// ProfileStore persists profiles.
type ProfileStore interface {
	UpsertProfile(ctx context.Context, profile *Profile) error
	GetProfile(ctx context.Context, id string) (*Profile, error)
	DeleteProfile(ctx context.Context, id string) error
}

// RoleStore persists role grants.
type RoleStore interface {
	HasRole(ctx context.Context, userID string, role RoleName) (bool, error)
	InsertRoleGrant(ctx context.Context, grant *RoleGrant) error
	DeleteRoleGrants(ctx context.Context, userID string, role RoleName) (int64, error)
	ListRoleHolders(ctx context.Context, role RoleName) ([]RoleHolder, error)
}

// AuditStore persists the audit log.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, entry *AuditEntry) error
	ListAuditLog(ctx context.Context, limit int) ([]AuditEntry, error)
}

// Store is the full persistence contract implemented by every backend.
type Store interface {
	IdentityStore
	ProfileStore
	RoleStore
	AuditStore

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
