package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sfgate/internal/gate/domain"
	"github.com/aussiebroadwan/sfgate/internal/gate/store/drivers/memory"
	"github.com/aussiebroadwan/sfgate/pkg/cryptox"
)

// stubRefresher records refresh calls and returns a canned outcome.
type stubRefresher struct {
	resp  domain.TokenResponse
	err   error
	calls int
}

func (r *stubRefresher) RefreshToken(ctx context.Context, refreshToken, instanceURL string) (domain.TokenResponse, error) {
	r.calls++
	if r.err != nil {
		return domain.TokenResponse{}, r.err
	}
	return r.resp, nil
}

func newTestCoordinator(t *testing.T, refresher *stubRefresher) (*RefreshCoordinator, *TokenStore) {
	t.Helper()
	ts := newTestTokenStore(t, nil)
	return NewRefreshCoordinator(ts, refresher, testLogger()), ts
}

func TestRefreshCoordinator_Due(t *testing.T) {
	r := &RefreshCoordinator{Threshold: DefaultRefreshThreshold}
	now := time.Now()

	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	cases := []struct {
		name string
		cred domain.Credential
		due  bool
	}{
		{"expiry 40 minutes out", domain.Credential{ExpiresAt: at(40 * time.Minute)}, false},
		{"expiry 10 minutes out", domain.Credential{ExpiresAt: at(10 * time.Minute)}, true},
		{"already expired", domain.Credential{ExpiresAt: at(-time.Minute)}, true},
		{"no expiry, young", domain.Credential{CreatedAt: now.Add(-30 * time.Minute)}, false},
		{"no expiry, old", domain.Credential{CreatedAt: now.Add(-2 * time.Hour)}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.due, r.Due(tc.cred, now))
		})
	}
}

func TestRefreshCoordinator_EnsureFresh(t *testing.T) {
	ctx := context.Background()

	t.Run("missing session", func(t *testing.T) {
		coord, _ := newTestCoordinator(t, &stubRefresher{})
		_, err := coord.EnsureFresh(ctx, "sess-nope")
		require.ErrorIs(t, err, ErrNotAuthenticated)
	})

	t.Run("fresh credential passes through untouched", func(t *testing.T) {
		refresher := &stubRefresher{}
		coord, ts := newTestCoordinator(t, refresher)

		_, err := ts.StoreConnection(ctx, "user-1", "sess-1", domain.TokenResponse{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresIn:    int64((2 * time.Hour).Seconds()),
		})
		require.NoError(t, err)

		cred, err := coord.EnsureFresh(ctx, "sess-1")
		require.NoError(t, err)
		require.Equal(t, "access-1", cred.AccessToken)
		require.Zero(t, refresher.calls)
	})

	t.Run("due credential is refreshed and persisted", func(t *testing.T) {
		refresher := &stubRefresher{resp: domain.TokenResponse{
			AccessToken: "access-2",
			ExpiresIn:   7200,
		}}
		coord, ts := newTestCoordinator(t, refresher)

		// Expires inside the refresh threshold.
		_, err := ts.StoreConnection(ctx, "user-1", "sess-1", domain.TokenResponse{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresIn:    int64((10 * time.Minute).Seconds()),
		})
		require.NoError(t, err)

		cred, err := coord.EnsureFresh(ctx, "sess-1")
		require.NoError(t, err)
		require.Equal(t, 1, refresher.calls)
		require.Equal(t, "access-2", cred.AccessToken)
		require.Equal(t, "refresh-1", cred.RefreshToken, "unrotated refresh token survives")

		stored, err := ts.GetConnectionByUserID(ctx, "user-1")
		require.NoError(t, err)
		require.Equal(t, "access-2", stored.AccessToken)
	})

	t.Run("failed refresh removes the connection", func(t *testing.T) {
		refresher := &stubRefresher{err: errors.New("invalid_grant")}
		coord, ts := newTestCoordinator(t, refresher)

		_, err := ts.StoreConnection(ctx, "user-1", "sess-1", domain.TokenResponse{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresIn:    60,
		})
		require.NoError(t, err)

		_, err = coord.EnsureFresh(ctx, "sess-1")
		require.ErrorIs(t, err, ErrAuthenticationExpired)
		require.False(t, ts.HasActiveConnection(ctx, "user-1"),
			"unrecoverable credential must be torn down")

		_, err = coord.EnsureFresh(ctx, "sess-1")
		require.ErrorIs(t, err, ErrNotAuthenticated, "subsequent calls see no connection")
	})

	t.Run("due without refresh token expires immediately", func(t *testing.T) {
		refresher := &stubRefresher{}
		coord, ts := newTestCoordinator(t, refresher)

		_, err := ts.StoreConnection(ctx, "user-1", "sess-1", domain.TokenResponse{
			AccessToken: "access-1",
			ExpiresIn:   60,
		})
		require.NoError(t, err)

		_, err = coord.EnsureFresh(ctx, "sess-1")
		require.ErrorIs(t, err, ErrAuthenticationExpired)
		require.Zero(t, refresher.calls)
	})

	t.Run("undecryptable credential forces re-authorization", func(t *testing.T) {
		// A credential written under a previous master secret: the lookup
		// fails decryption and must behave like an expired authentication,
		// not an internal error.
		backend := memory.NewStore()

		oldCipher, err := cryptox.NewCipher([]byte("rotated-out-secret"))
		require.NoError(t, err)
		writer := NewTokenStore(backend, oldCipher, testLogger())
		_, err = writer.StoreConnection(ctx, "user-1", "sess-1", domain.TokenResponse{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresIn:    int64((2 * time.Hour).Seconds()),
		})
		require.NoError(t, err)

		newCipher, err := cryptox.NewCipher([]byte("current-secret"))
		require.NoError(t, err)
		refresher := &stubRefresher{}
		coord := NewRefreshCoordinator(NewTokenStore(backend, newCipher, testLogger()), refresher, testLogger())

		_, err = coord.EnsureFresh(ctx, "sess-1")
		require.ErrorIs(t, err, ErrAuthenticationExpired)
		require.Zero(t, refresher.calls)

		_, err = coord.EnsureFresh(ctx, "sess-1")
		require.ErrorIs(t, err, ErrNotAuthenticated, "broken record is gone, not stuck")
	})

	t.Run("rotated refresh token replaces the stored one", func(t *testing.T) {
		refresher := &stubRefresher{resp: domain.TokenResponse{
			AccessToken:  "access-2",
			RefreshToken: "refresh-2",
			ExpiresIn:    7200,
		}}
		coord, ts := newTestCoordinator(t, refresher)

		_, err := ts.StoreConnection(ctx, "user-1", "sess-1", domain.TokenResponse{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresIn:    60,
		})
		require.NoError(t, err)

		cred, err := coord.EnsureFresh(ctx, "sess-1")
		require.NoError(t, err)
		require.Equal(t, "refresh-2", cred.RefreshToken)

		stored, err := ts.GetConnectionByUserID(ctx, "user-1")
		require.NoError(t, err)
		require.Equal(t, "refresh-2", stored.RefreshToken)
	})
}

func TestRefreshCoordinator_EnsureFreshForUser(t *testing.T) {
	ctx := context.Background()
	refresher := &stubRefresher{}
	coord, ts := newTestCoordinator(t, refresher)

	_, err := ts.StoreConnection(ctx, "user-1", "sess-1", domain.TokenResponse{
		AccessToken: "access-1",
		ExpiresIn:   int64((2 * time.Hour).Seconds()),
	})
	require.NoError(t, err)

	cred, err := coord.EnsureFreshForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "sess-1", cred.SessionID)

	_, err = coord.EnsureFreshForUser(ctx, "user-nope")
	require.ErrorIs(t, err, ErrNotAuthenticated)
}
