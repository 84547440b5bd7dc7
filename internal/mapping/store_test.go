package mapping

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateIssueMapping_GlobalUniqueness(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	projectA, err := store.UpsertProject(ctx, 1, "ACME")
	require.NoError(t, err)
	projectB, err := store.UpsertProject(ctx, 2, "WIDGETS")
	require.NoError(t, err)

	_, err = store.CreateIssueMapping(ctx, projectA.ID, 10, 20)
	require.NoError(t, err)

	// Same A-issue id claimed by a different project: rejected even though
	// project_id differs, because an issue belongs to exactly one mapping
	// at any time (spec §3), not one mapping per project.
	_, err = store.CreateIssueMapping(ctx, projectB.ID, 10, 99)
	require.ErrorIs(t, err, ErrConflict)

	_, err = store.CreateIssueMapping(ctx, projectB.ID, 99, 20)
	require.ErrorIs(t, err, ErrConflict)
}

func TestCreateIssueMapping_NonConflictErrorPropagatesUnwrapped(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// A foreign-key violation (nonexistent project) is not a UNIQUE
	// violation, so it must not be classified as ErrConflict — a transient
	// or referential failure must be retried, not silently swallowed as a
	// pair already claimed (spec §7).
	_, err := store.CreateIssueMapping(ctx, 9999, 10, 20)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrConflict))
}

func TestUpsertUser_InsertOnly_DoesNotMutateExistingRow(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := store.UpsertUser(ctx, "alice", ptr(int64(1)), ptr(int64(100)))
	require.NoError(t, err)
	require.EqualValues(t, 1, *first.ExternalAUserID)
	require.EqualValues(t, 100, *first.ExternalBUserID)

	// A second A-member matching the same B-handle must not overwrite the
	// first correlation (spec §4.4 "existing rows are not mutated").
	second, err := store.UpsertUser(ctx, "alice", ptr(int64(2)), ptr(int64(100)))
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.EqualValues(t, 1, *second.ExternalAUserID)

	still, err := store.FindByExternalA(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, first.ID, still.ID)

	_, err = store.FindByExternalA(ctx, 2)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertUser_RequiresAtLeastOnePlatformID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.UpsertUser(ctx, "nobody", nil, nil)
	require.ErrorIs(t, err, ErrInvalidID)
}

func ptr[T any](v T) *T { return &v }
