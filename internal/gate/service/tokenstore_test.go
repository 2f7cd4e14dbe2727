package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sfgate/internal/gate/domain"
	"github.com/aussiebroadwan/sfgate/internal/gate/store"
	"github.com/aussiebroadwan/sfgate/internal/gate/store/drivers/memory"
	"github.com/aussiebroadwan/sfgate/pkg/cryptox"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTokenStore(t *testing.T, durable store.Store) *TokenStore {
	t.Helper()
	cipher, err := cryptox.NewCipher([]byte("test-master-secret"))
	require.NoError(t, err)
	return NewTokenStore(durable, cipher, testLogger())
}

func TestTokenStore_StoreAndLookup(t *testing.T) {
	ctx := context.Background()
	ts := newTestTokenStore(t, nil)

	tok := domain.TokenResponse{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		InstanceURL:  "https://na1.example.com",
		ExpiresIn:    3600,
	}

	connID, err := ts.StoreConnection(ctx, "user-1", "sess-1", tok)
	require.NoError(t, err)
	require.NotEmpty(t, connID)

	t.Run("by session", func(t *testing.T) {
		cred, err := ts.GetConnectionBySession(ctx, "sess-1")
		require.NoError(t, err)
		require.Equal(t, "user-1", cred.UserID)
		require.Equal(t, "access-1", cred.AccessToken)
		require.Equal(t, "refresh-1", cred.RefreshToken)
		require.Equal(t, "https://na1.example.com", cred.InstanceURL)
		require.NotNil(t, cred.ExpiresAt)
	})

	t.Run("by user", func(t *testing.T) {
		cred, err := ts.GetConnectionByUserID(ctx, "user-1")
		require.NoError(t, err)
		require.Equal(t, "sess-1", cred.SessionID)
		require.Equal(t, "access-1", cred.AccessToken)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := ts.GetConnectionBySession(ctx, "sess-nope")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestTokenStore_ReauthorizationReplaces(t *testing.T) {
	ctx := context.Background()
	ts := newTestTokenStore(t, nil)

	_, err := ts.StoreConnection(ctx, "user-1", "sess-old", domain.TokenResponse{AccessToken: "old"})
	require.NoError(t, err)
	_, err = ts.StoreConnection(ctx, "user-1", "sess-new", domain.TokenResponse{AccessToken: "new"})
	require.NoError(t, err)

	cred, err := ts.GetConnectionByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "new", cred.AccessToken)
	require.Equal(t, "sess-new", cred.SessionID)

	_, err = ts.GetConnectionBySession(ctx, "sess-old")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestTokenStore_UpdateTokensPartial(t *testing.T) {
	ctx := context.Background()
	ts := newTestTokenStore(t, nil)

	_, err := ts.StoreConnection(ctx, "user-1", "sess-1", domain.TokenResponse{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		InstanceURL:  "https://na1.example.com",
	})
	require.NoError(t, err)

	access := "access-2"
	exp := time.Now().Add(time.Hour).UTC()
	found, err := ts.UpdateTokens(ctx, "user-1", domain.TokenUpdate{
		AccessToken: &access,
		ExpiresAt:   &exp,
	})
	require.NoError(t, err)
	require.True(t, found)

	cred, err := ts.GetConnectionByUserID(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "access-2", cred.AccessToken)
	require.Equal(t, "refresh-1", cred.RefreshToken, "untouched field must survive")
	require.Equal(t, "https://na1.example.com", cred.InstanceURL)
	require.NotNil(t, cred.ExpiresAt)

	t.Run("unknown user", func(t *testing.T) {
		found, err := ts.UpdateTokens(ctx, "user-nope", domain.TokenUpdate{AccessToken: &access})
		require.NoError(t, err)
		require.False(t, found)
	})
}

func TestTokenStore_RemoveConnection(t *testing.T) {
	ctx := context.Background()
	ts := newTestTokenStore(t, nil)

	_, err := ts.StoreConnection(ctx, "user-1", "sess-1", domain.TokenResponse{AccessToken: "a"})
	require.NoError(t, err)
	require.True(t, ts.HasActiveConnection(ctx, "user-1"))

	removed, err := ts.RemoveConnection(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, removed)
	require.False(t, ts.HasActiveConnection(ctx, "user-1"))

	removed, err = ts.RemoveConnection(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestTokenStore_ListWithoutSecrets(t *testing.T) {
	ctx := context.Background()
	ts := newTestTokenStore(t, nil)

	_, err := ts.StoreConnection(ctx, "user-1", "sess-1", domain.TokenResponse{
		AccessToken: "secret-token",
		InstanceURL: "https://na1.example.com",
	})
	require.NoError(t, err)

	infos, err := ts.GetActiveConnections(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, "user-1", infos[0].UserID)
	require.Equal(t, "https://na1.example.com", infos[0].InstanceURL)
}

// failingStore simulates an unreachable durable backend. Every operation
// returns a connectivity error.
type failingStore struct{ err error }

func (f *failingStore) Connections() store.Connections { return failingConnections{err: f.err} }
func (f *failingStore) ApplyMigrations() error         { return f.err }
func (f *failingStore) Close() error                   { return nil }
func (f *failingStore) Ping(ctx context.Context) error { return f.err }

type failingConnections struct{ err error }

func (f failingConnections) Upsert(ctx context.Context, rec domain.ConnectionRecord) error {
	return f.err
}
func (f failingConnections) GetByUserID(ctx context.Context, userID string) (domain.ConnectionRecord, error) {
	return domain.ConnectionRecord{}, f.err
}
func (f failingConnections) GetBySessionID(ctx context.Context, sessionID string) (domain.ConnectionRecord, error) {
	return domain.ConnectionRecord{}, f.err
}
func (f failingConnections) UpdateTokens(ctx context.Context, userID string, upd store.RecordUpdate) error {
	return f.err
}
func (f failingConnections) TouchLastUsed(ctx context.Context, userID string, at time.Time) error {
	return f.err
}
func (f failingConnections) Delete(ctx context.Context, userID string) (bool, error) {
	return false, f.err
}
func (f failingConnections) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, f.err
}
func (f failingConnections) List(ctx context.Context) ([]domain.ConnectionRecord, error) {
	return nil, f.err
}

func TestTokenStore_DegradesToMemory(t *testing.T) {
	ctx := context.Background()
	down := &failingStore{err: errors.New("database is locked")}
	ts := newTestTokenStore(t, down)

	_, err := ts.StoreConnection(ctx, "user-1", "sess-1", domain.TokenResponse{AccessToken: "a"})
	require.NoError(t, err, "write must fall back to memory")

	cred, err := ts.GetConnectionBySession(ctx, "sess-1")
	require.NoError(t, err, "read must fall back to memory")
	require.Equal(t, "user-1", cred.UserID)

	removed, err := ts.RemoveConnection(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, removed)
}

func TestTokenStore_DecryptFailureSurfaces(t *testing.T) {
	ctx := context.Background()

	// Two stores over the same memory backend but different master secrets:
	// what one wrote, the other cannot decrypt.
	backend := memory.NewStore()

	writerCipher, err := cryptox.NewCipher([]byte("secret-a"))
	require.NoError(t, err)
	writer := NewTokenStore(backend, writerCipher, testLogger())
	_, err = writer.StoreConnection(ctx, "user-1", "sess-1", domain.TokenResponse{AccessToken: "a"})
	require.NoError(t, err)

	readerCipher, err := cryptox.NewCipher([]byte("secret-b"))
	require.NoError(t, err)
	reader := NewTokenStore(backend, readerCipher, testLogger())

	_, err = reader.GetConnectionBySession(ctx, "sess-1")
	require.ErrorIs(t, err, cryptox.ErrCipher)

	// The unusable record is discarded, not left to fail every lookup.
	_, err = reader.GetConnectionBySession(ctx, "sess-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestTokenStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()
	cipher, err := cryptox.NewCipher([]byte("test-master-secret"))
	require.NoError(t, err)
	ts := NewTokenStore(backend, cipher, testLogger())

	_, err = ts.StoreConnection(ctx, "user-fresh", "sess-fresh", domain.TokenResponse{AccessToken: "a"})
	require.NoError(t, err)

	// Plant a connection idle for longer than the stale threshold directly
	// in the backend.
	stale := time.Now().UTC().Add(-StaleConnectionAge - time.Hour)
	enc, err := cipher.Encrypt("b")
	require.NoError(t, err)
	require.NoError(t, backend.Connections().Upsert(ctx, domain.ConnectionRecord{
		UserID:               "user-stale",
		SessionID:            "sess-stale",
		AccessTokenEncrypted: enc,
		CreatedAt:            stale,
		LastUsed:             stale,
	}))

	removed, err := ts.Cleanup(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
	require.True(t, ts.HasActiveConnection(ctx, "user-fresh"))
	require.False(t, ts.HasActiveConnection(ctx, "user-stale"))
}
