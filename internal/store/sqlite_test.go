// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers identity uniqueness, profile upsert, role grants, cascades and audit

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a new SQLite store in a temp directory for testing.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newIdentity(email string) *Identity {
	return &Identity{
		ID:             uuid.New().String(),
		Email:          email,
		PasswordHash:   "$2a$10$hash",
		EmailConfirmed: true,
		Metadata:       map[string]any{"full_name": "Test User"},
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.CreateIdentity(ctx, newIdentity("mem@example.com")))
	_, err = s.GetIdentityByEmail(ctx, "mem@example.com")
	require.NoError(t, err)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown database driver")
}

func TestCreateAndGetIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	identity := newIdentity("  Alice@Example.COM ")
	require.NoError(t, s.CreateIdentity(ctx, identity))
	assert.Equal(t, "alice@example.com", identity.Email)

	got, err := s.GetIdentity(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.ID, got.ID)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, identity.PasswordHash, got.PasswordHash)
	assert.True(t, got.EmailConfirmed)
	assert.Equal(t, "Test User", got.Metadata["full_name"])
	assert.True(t, identity.CreatedAt.Equal(got.CreatedAt))

	byEmail, err := s.GetIdentityByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, identity.ID, byEmail.ID)
}

func TestCreateIdentity_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateIdentity(ctx, newIdentity("dup@example.com")))

	err := s.CreateIdentity(ctx, newIdentity("DUP@example.com"))
	assert.True(t, errors.Is(err, ErrEmailExists), "expected ErrEmailExists, got %v", err)
}

func TestGetIdentity_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetIdentity(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetIdentityByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	identity := newIdentity("bob@example.com")
	require.NoError(t, s.CreateIdentity(ctx, identity))

	p := &Profile{ID: identity.ID, Email: identity.Email, FullName: "Bob"}
	require.NoError(t, s.UpsertProfile(ctx, p))

	got, err := s.GetProfile(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.FullName)

	// Second upsert overwrites instead of failing
	p2 := &Profile{ID: identity.ID, Email: identity.Email, FullName: "Robert"}
	require.NoError(t, s.UpsertProfile(ctx, p2))

	got, err = s.GetProfile(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "Robert", got.FullName)
}

func TestUpsertProfile_RequiresIdentity(t *testing.T) {
	s := newTestStore(t)
	err := s.UpsertProfile(context.Background(), &Profile{ID: "ghost", Email: "g@example.com", FullName: "Ghost"})
	require.Error(t, err)
}

func TestRoleGrants(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	identity := newIdentity("carol@example.com")
	require.NoError(t, s.CreateIdentity(ctx, identity))

	has, err := s.HasRole(ctx, identity.ID, RoleAdmin)
	require.NoError(t, err)
	assert.False(t, has)

	grant := &RoleGrant{ID: uuid.New().String(), UserID: identity.ID, Role: RoleAdmin, CreatedAt: time.Now()}
	require.NoError(t, s.InsertRoleGrant(ctx, grant))

	has, err = s.HasRole(ctx, identity.ID, RoleAdmin)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasRole(ctx, identity.ID, RoleName("viewer"))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRoleGrants_DuplicatesAllowed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	identity := newIdentity("dave@example.com")
	require.NoError(t, s.CreateIdentity(ctx, identity))
	require.NoError(t, s.UpsertProfile(ctx, &Profile{ID: identity.ID, Email: identity.Email, FullName: "Dave"}))

	for i := 0; i < 2; i++ {
		require.NoError(t, s.InsertRoleGrant(ctx, &RoleGrant{
			ID: uuid.New().String(), UserID: identity.ID, Role: RoleAdmin, CreatedAt: time.Now(),
		}))
	}

	holders, err := s.ListRoleHolders(ctx, RoleAdmin)
	require.NoError(t, err)
	require.Len(t, holders, 1, "holders are distinct per user")
	assert.Equal(t, "Dave", holders[0].FullName)

	n, err := s.DeleteRoleGrants(ctx, identity.ID, RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.DeleteRoleGrants(ctx, identity.ID, RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestListRoleHolders_OrderAndMissingProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	zed := newIdentity("zed@example.com")
	amy := newIdentity("amy@example.com")
	noProfile := newIdentity("np@example.com")
	for _, id := range []*Identity{zed, amy, noProfile} {
		require.NoError(t, s.CreateIdentity(ctx, id))
		require.NoError(t, s.InsertRoleGrant(ctx, &RoleGrant{
			ID: uuid.New().String(), UserID: id.ID, Role: RoleAdmin, CreatedAt: time.Now(),
		}))
	}
	require.NoError(t, s.UpsertProfile(ctx, &Profile{ID: zed.ID, Email: zed.Email, FullName: "Zed"}))
	require.NoError(t, s.UpsertProfile(ctx, &Profile{ID: amy.ID, Email: amy.Email, FullName: "Amy"}))

	holders, err := s.ListRoleHolders(ctx, RoleAdmin)
	require.NoError(t, err)
	require.Len(t, holders, 3)

	// Empty email sorts first
	assert.Equal(t, noProfile.ID, holders[0].UserID)
	assert.Empty(t, holders[0].FullName)
	assert.Equal(t, "amy@example.com", holders[1].Email)
	assert.Equal(t, "zed@example.com", holders[2].Email)
}

func TestDeleteIdentity_Cascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	identity := newIdentity("erin@example.com")
	require.NoError(t, s.CreateIdentity(ctx, identity))
	require.NoError(t, s.UpsertProfile(ctx, &Profile{ID: identity.ID, Email: identity.Email, FullName: "Erin"}))
	require.NoError(t, s.InsertRoleGrant(ctx, &RoleGrant{
		ID: uuid.New().String(), UserID: identity.ID, Role: RoleAdmin, CreatedAt: time.Now(),
	}))

	require.NoError(t, s.DeleteIdentity(ctx, identity.ID))

	_, err := s.GetProfile(ctx, identity.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	has, err := s.HasRole(ctx, identity.ID, RoleAdmin)
	require.NoError(t, err)
	assert.False(t, has)

	// Idempotent
	require.NoError(t, s.DeleteIdentity(ctx, identity.ID))
	require.NoError(t, s.DeleteProfile(ctx, identity.ID))

	// Email is free again
	require.NoError(t, s.CreateIdentity(ctx, newIdentity("erin@example.com")))
}

func TestAuditLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &AuditEntry{ActorID: "actor-1", Action: AuditCreateAdmin, TargetID: "user-1",
		Timestamp: time.Now().Add(-time.Minute), Detail: map[string]any{"email": "a@example.com"}}
	second := &AuditEntry{ActorID: "actor-1", Action: AuditRevokeAdmin, TargetID: "user-1"}
	require.NoError(t, s.AppendAuditLog(ctx, first))
	require.NoError(t, s.AppendAuditLog(ctx, second))
	assert.NotEmpty(t, first.ID)
	assert.False(t, second.Timestamp.IsZero())

	entries, err := s.ListAuditLog(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, AuditRevokeAdmin, entries[0].Action)
	assert.Equal(t, AuditCreateAdmin, entries[1].Action)
	assert.Equal(t, "a@example.com", entries[1].Detail["email"])

	entries, err = s.ListAuditLog(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAuditLog_RejectsUnknownAction(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendAuditLog(context.Background(), &AuditEntry{Action: "delete_everything", TargetID: "x"})
	require.Error(t, err)
}

func TestNormalizeAuditLimit(t *testing.T) {
	assert.Equal(t, 100, normalizeAuditLimit(0))
	assert.Equal(t, 100, normalizeAuditLimit(-5))
	assert.Equal(t, 50, normalizeAuditLimit(50))
	assert.Equal(t, 1000, normalizeAuditLimit(5000))
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
