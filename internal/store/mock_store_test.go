// ABOUTME: Tests for the MockStore failure injection and call journal
// ABOUTME: Other behaviour is covered by the shared conformance checks

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_FailOn(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	boom := errors.New("boom")

	m.FailOn(OpUpsertProfile, boom)
	err := m.UpsertProfile(ctx, &Profile{ID: "u1"})
	assert.ErrorIs(t, err, boom)

	_, err = m.GetProfile(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound, "failed upsert must not persist")

	m.FailOn(OpUpsertProfile, nil)
	require.NoError(t, m.UpsertProfile(ctx, &Profile{ID: "u1"}))
}

func TestMockStore_Calls(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	_, _ = m.HasRole(ctx, "u1", RoleAdmin)
	_ = m.CreateIdentity(ctx, newIdentity("x@example.com"))
	_ = m.Ping(ctx)

	assert.Equal(t, []string{OpHasRole, OpCreateIdentity, OpPing}, m.Calls())

	m.ResetCalls()
	assert.Empty(t, m.Calls())
}

func TestMockStore_UpsertKeepsCreatedAt(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	require.NoError(t, m.UpsertProfile(ctx, &Profile{ID: "u1", FullName: "A"}))
	first, err := m.GetProfile(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, m.UpsertProfile(ctx, &Profile{ID: "u1", FullName: "B"}))
	second, err := m.GetProfile(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, "B", second.FullName)
}
