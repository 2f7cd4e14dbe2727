package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/sfgate/internal/gate/domain"
	"github.com/aussiebroadwan/sfgate/internal/gate/store"
	"github.com/aussiebroadwan/sfgate/pkg/cryptox"
)

const (
	// DefaultRefreshThreshold: a credential is refreshed once the current
	// time passes expiresAt minus this margin.
	DefaultRefreshThreshold = 30 * time.Minute

	// MaxAgeWithoutExpiry: when the platform reported no expiry, refresh
	// once the credential is older than this.
	MaxAgeWithoutExpiry = 1 * time.Hour
)

// TokenRefresher is the slice of the OAuth flow the coordinator needs.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken, instanceURL string) (domain.TokenResponse, error)
}

// RefreshCoordinator gates every session-bound call: it inspects the stored
// credential, refreshes it when due, and removes it when refresh fails so
// the caller is forced back through authorization.
type RefreshCoordinator struct {
	Store     *TokenStore
	Flow      TokenRefresher
	Threshold time.Duration // defaults to DefaultRefreshThreshold
	Logger    *slog.Logger

	now func() time.Time
}

func NewRefreshCoordinator(store *TokenStore, flow TokenRefresher, logger *slog.Logger) *RefreshCoordinator {
	return &RefreshCoordinator{
		Store:     store,
		Flow:      flow,
		Threshold: DefaultRefreshThreshold,
		Logger:    logger,
		now:       time.Now,
	}
}

// Due reports whether the credential needs a refresh at the given instant.
func (r *RefreshCoordinator) Due(cred domain.Credential, now time.Time) bool {
	if cred.ExpiresAt == nil {
		return cred.Age(now) > MaxAgeWithoutExpiry
	}

	threshold := r.Threshold
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}
	return now.After(cred.ExpiresAt.Add(-threshold))
}

// EnsureFresh resolves the session's credential and refreshes it if due.
// Returns ErrNotAuthenticated when the session has no stored connection, and
// ErrAuthenticationExpired when a due refresh fails; in the latter case the
// stored connection is removed and the caller must not proceed downstream.
func (r *RefreshCoordinator) EnsureFresh(ctx context.Context, sessionID string) (domain.Credential, error) {
	cred, err := r.Store.GetConnectionBySession(ctx, sessionID)
	if err != nil {
		return domain.Credential{}, lookupErr(err)
	}

	if !r.Due(cred, r.now()) {
		return cred, nil
	}
	return r.refresh(ctx, cred)
}

// EnsureFreshForUser is the user-keyed variant of EnsureFresh.
func (r *RefreshCoordinator) EnsureFreshForUser(ctx context.Context, userID string) (domain.Credential, error) {
	cred, err := r.Store.GetConnectionByUserID(ctx, userID)
	if err != nil {
		return domain.Credential{}, lookupErr(err)
	}

	if !r.Due(cred, r.now()) {
		return cred, nil
	}
	return r.refresh(ctx, cred)
}

func (r *RefreshCoordinator) refresh(ctx context.Context, cred domain.Credential) (domain.Credential, error) {
	if cred.RefreshToken == "" {
		r.expire(ctx, cred, errors.New("no refresh token on record"))
		return domain.Credential{}, ErrAuthenticationExpired
	}

	tok, err := r.Flow.RefreshToken(ctx, cred.RefreshToken, cred.InstanceURL)
	if err != nil {
		r.expire(ctx, cred, err)
		return domain.Credential{}, fmt.Errorf("%w: %v", ErrAuthenticationExpired, err)
	}

	now := r.now().UTC()
	upd := domain.TokenUpdate{
		AccessToken: &tok.AccessToken,
		ExpiresAt:   tok.ExpiresAt(now),
	}
	if tok.RefreshToken != "" {
		upd.RefreshToken = &tok.RefreshToken
	}
	if tok.InstanceURL != "" {
		upd.InstanceURL = &tok.InstanceURL
	}

	// Concurrent refreshes for the same user are tolerated, not serialized;
	// a losing write is superseded immediately. Last-write-wins.
	if _, err := r.Store.UpdateTokens(ctx, cred.UserID, upd); err != nil {
		return domain.Credential{}, err
	}

	r.Logger.Info("token refreshed", "user_id", cred.UserID)

	cred.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		cred.RefreshToken = tok.RefreshToken
	}
	if tok.InstanceURL != "" {
		cred.InstanceURL = tok.InstanceURL
	}
	cred.ExpiresAt = tok.ExpiresAt(now)
	return cred, nil
}

// expire records the failed refresh and tears the connection down so the
// user re-authorizes. Both outcomes are audited regardless.
func (r *RefreshCoordinator) expire(ctx context.Context, cred domain.Credential, cause error) {
	r.Logger.Warn("token refresh failed, removing connection",
		"user_id", cred.UserID, "err", cause)

	if _, err := r.Store.RemoveConnection(ctx, cred.UserID); err != nil {
		r.Logger.Error("failed to remove expired connection",
			"user_id", cred.UserID, "err", err)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// lookupErr maps credential lookup failures onto the authentication taxonomy.
// A cipher failure means the store has already discarded the record; the
// session must go back through authorization.
func lookupErr(err error) error {
	switch {
	case isNotFound(err):
		return ErrNotAuthenticated
	case errors.Is(err, cryptox.ErrCipher):
		return fmt.Errorf("%w: %v", ErrAuthenticationExpired, err)
	default:
		return err
	}
}
