package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/sfgate/internal/gate/domain"
	"github.com/aussiebroadwan/sfgate/internal/gate/store"
	"github.com/aussiebroadwan/sfgate/internal/gate/store/drivers/sqlite"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func record(userID, sessionID string, lastUsed time.Time) domain.ConnectionRecord {
	return domain.ConnectionRecord{
		UserID:                userID,
		SessionID:             sessionID,
		AccessTokenEncrypted:  "enc-access-" + userID,
		RefreshTokenEncrypted: "enc-refresh-" + userID,
		InstanceURL:           "https://org.my.salesforce.example",
		CreatedAt:             lastUsed,
		LastUsed:              lastUsed,
	}
}

func TestUpsertAndLookupPaths(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	repo := st.Connections()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Upsert(ctx, record("user-1", "sess-1", now)))

	byUser, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	bySession, err := repo.GetBySessionID(ctx, "sess-1")
	require.NoError(t, err)

	require.Equal(t, byUser.AccessTokenEncrypted, bySession.AccessTokenEncrypted)
	require.Equal(t, byUser.SessionID, bySession.SessionID)
}

func TestUpsertReplacesExistingUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	repo := st.Connections()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Upsert(ctx, record("user-1", "sess-1", now)))

	second := record("user-1", "sess-2", now.Add(time.Minute))
	second.AccessTokenEncrypted = "enc-access-replaced"
	require.NoError(t, repo.Upsert(ctx, second))

	rec, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "enc-access-replaced", rec.AccessTokenEncrypted)
	require.Equal(t, "sess-2", rec.SessionID)

	// Only one row for the user; the old session binding is gone.
	_, err = repo.GetBySessionID(ctx, "sess-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpsertDisplacesSessionBoundToOtherUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	repo := st.Connections()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Upsert(ctx, record("user-1", "shared-sess", now)))
	require.NoError(t, repo.Upsert(ctx, record("user-2", "shared-sess", now)))

	rec, err := repo.GetBySessionID(ctx, "shared-sess")
	require.NoError(t, err)
	require.Equal(t, "user-2", rec.UserID)

	_, err = repo.GetByUserID(ctx, "user-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateTokensMergesOnlySuppliedFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	repo := st.Connections()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Upsert(ctx, record("user-1", "sess-1", now)))

	newAccess := "enc-access-rotated"
	bumped := now.Add(time.Minute)
	require.NoError(t, repo.UpdateTokens(ctx, "user-1", store.RecordUpdate{
		AccessTokenEncrypted: &newAccess,
		LastUsed:             bumped,
	}))

	rec, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "enc-access-rotated", rec.AccessTokenEncrypted)
	require.Equal(t, "enc-refresh-user-1", rec.RefreshTokenEncrypted)
	require.Equal(t, "https://org.my.salesforce.example", rec.InstanceURL)
	require.Equal(t, bumped, rec.LastUsed.UTC())
}

func TestUpdateTokensUnknownUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)

	access := "enc"
	err := st.Connections().UpdateTokens(ctx, "missing", store.RecordUpdate{
		AccessTokenEncrypted: &access,
		LastUsed:             time.Now(),
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	repo := st.Connections()

	now := time.Now().UTC()
	require.NoError(t, repo.Upsert(ctx, record("user-1", "sess-1", now)))

	removed, err := repo.Delete(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = repo.Delete(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestDeleteStaleRemovesOnlyOldRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	repo := st.Connections()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Upsert(ctx, record("old", "sess-old", now.Add(-25*time.Hour))))
	require.NoError(t, repo.Upsert(ctx, record("fresh", "sess-fresh", now.Add(-time.Hour))))

	removed, err := repo.DeleteStale(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	_, err = repo.GetByUserID(ctx, "old")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = repo.GetByUserID(ctx, "fresh")
	require.NoError(t, err)
}

func TestListOrdersByLastUsed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	repo := st.Connections()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.Upsert(ctx, record("a", "sess-a", now.Add(-2*time.Hour))))
	require.NoError(t, repo.Upsert(ctx, record("b", "sess-b", now)))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "b", list[0].UserID)
	require.Equal(t, "a", list[1].UserID)
}

func TestExpiresAtRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	repo := st.Connections()

	now := time.Now().UTC().Truncate(time.Second)
	expires := now.Add(2 * time.Hour)
	rec := record("user-1", "sess-1", now)
	rec.ExpiresAt = &expires
	require.NoError(t, repo.Upsert(ctx, rec))

	got, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got.ExpiresAt)
	require.Equal(t, expires, got.ExpiresAt.UTC())

	nilRec := record("user-2", "sess-2", now)
	require.NoError(t, repo.Upsert(ctx, nilRec))
	got, err = repo.GetByUserID(ctx, "user-2")
	require.NoError(t, err)
	require.Nil(t, got.ExpiresAt)
}
