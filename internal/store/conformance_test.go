// ABOUTME: Backend-agnostic behaviour checks run against every Store implementation
// ABOUTME: Postgres and Mongo runs are skipped unless a test server is configured

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runConformance(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("identity email is unique and case-insensitive", func(t *testing.T) {
		email := uuid.New().String() + "@Example.com"
		first := newIdentity(email)
		require.NoError(t, s.CreateIdentity(ctx, first))

		err := s.CreateIdentity(ctx, newIdentity(email))
		assert.ErrorIs(t, err, ErrEmailExists)

		got, err := s.GetIdentityByEmail(ctx, NormalizeEmail(email))
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("missing rows", func(t *testing.T) {
		_, err := s.GetIdentity(ctx, uuid.New().String())
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetProfile(ctx, uuid.New().String())
		assert.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, s.DeleteIdentity(ctx, uuid.New().String()))
		require.NoError(t, s.DeleteProfile(ctx, uuid.New().String()))
	})

	t.Run("grant lifecycle", func(t *testing.T) {
		identity := newIdentity(uuid.New().String() + "@example.com")
		require.NoError(t, s.CreateIdentity(ctx, identity))
		require.NoError(t, s.UpsertProfile(ctx, &Profile{ID: identity.ID, Email: identity.Email, FullName: "First"}))
		require.NoError(t, s.UpsertProfile(ctx, &Profile{ID: identity.ID, Email: identity.Email, FullName: "Second"}))

		p, err := s.GetProfile(ctx, identity.ID)
		require.NoError(t, err)
		assert.Equal(t, "Second", p.FullName)

		for i := 0; i < 2; i++ {
			require.NoError(t, s.InsertRoleGrant(ctx, &RoleGrant{
				ID: uuid.New().String(), UserID: identity.ID, Role: RoleAdmin, CreatedAt: time.Now(),
			}))
		}
		has, err := s.HasRole(ctx, identity.ID, RoleAdmin)
		require.NoError(t, err)
		assert.True(t, has)

		holders, err := s.ListRoleHolders(ctx, RoleAdmin)
		require.NoError(t, err)
		count := 0
		for _, h := range holders {
			if h.UserID == identity.ID {
				count++
				assert.Equal(t, "Second", h.FullName)
			}
		}
		assert.Equal(t, 1, count)

		n, err := s.DeleteRoleGrants(ctx, identity.ID, RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		require.NoError(t, s.DeleteIdentity(ctx, identity.ID))
		_, err = s.GetProfile(ctx, identity.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("audit", func(t *testing.T) {
		target := uuid.New().String()
		require.NoError(t, s.AppendAuditLog(ctx, &AuditEntry{ActorID: "a", Action: AuditCreateAdmin, TargetID: target}))
		entries, err := s.ListAuditLog(ctx, 1000)
		require.NoError(t, err)
		found := false
		for _, e := range entries {
			if e.TargetID == target {
				found = true
				assert.Equal(t, AuditCreateAdmin, e.Action)
			}
		}
		assert.True(t, found)
	})

	require.NoError(t, s.Ping(ctx))
}

func TestConformance_SQLite(t *testing.T) {
	runConformance(t, newTestStore(t))
}

func TestConformance_Mock(t *testing.T) {
	runConformance(t, NewMockStore())
}

func TestConformance_Postgres(t *testing.T) {
	dsn := os.Getenv("CAP360_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CAP360_TEST_POSTGRES_DSN not set")
	}
	s, err := Open(context.Background(), Options{Driver: DriverPostgres, DSN: dsn})
	require.NoError(t, err)
	defer s.Close()
	runConformance(t, s)
}

func TestConformance_Mongo(t *testing.T) {
	uri := os.Getenv("CAP360_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("CAP360_TEST_MONGO_URI not set")
	}
	s, err := Open(context.Background(), Options{Driver: DriverMongo, DSN: uri, MongoDatabase: "cap360_test"})
	require.NoError(t, err)
	defer s.Close()
	runConformance(t, s)
}
