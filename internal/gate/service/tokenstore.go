package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/sfgate/internal/gate/domain"
	"github.com/aussiebroadwan/sfgate/internal/gate/store"
	"github.com/aussiebroadwan/sfgate/internal/gate/store/drivers/memory"
	"github.com/aussiebroadwan/sfgate/pkg/cryptox"
	"github.com/aussiebroadwan/sfgate/pkg/idx"
)

// StaleConnectionAge is how long a connection may go unused before the
// periodic cleanup removes it.
const StaleConnectionAge = 24 * time.Hour

// ConnectionInfo is the secret-free view of a stored connection, for
// listing and auditing. Token material is deliberately absent.
type ConnectionInfo struct {
	UserID      string     `json:"user_id"`
	InstanceURL string     `json:"instance_url"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsed    time.Time  `json:"last_used"`
}

// TokenStore owns credential persistence and the session-to-user binding.
// The durable backend, when configured, is the source of truth; every call
// that finds it unreachable degrades to the in-memory store and logs, rather
// than failing the caller. Token values are encrypted before they reach
// either backend.
type TokenStore struct {
	durable store.Store // nil when no durable backend was configured
	mem     *memory.Store
	cipher  *cryptox.Cipher
	logger  *slog.Logger

	now func() time.Time
}

// NewTokenStore builds a TokenStore over an optional durable backend.
// Pass durable=nil to run purely in memory.
func NewTokenStore(durable store.Store, cipher *cryptox.Cipher, logger *slog.Logger) *TokenStore {
	return &TokenStore{
		durable: durable,
		mem:     memory.NewStore(),
		cipher:  cipher,
		logger:  logger,
		now:     time.Now,
	}
}

// StoreConnection persists the credential from a completed authorization,
// upserting by user id: a second OAuth completion for the same user replaces
// the stored credential rather than duplicating it. Returns a correlation id
// for auditing.
func (s *TokenStore) StoreConnection(ctx context.Context, userID, sessionID string, tok domain.TokenResponse) (string, error) {
	accessEnc, err := s.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return "", err
	}

	refreshEnc := ""
	if tok.RefreshToken != "" {
		refreshEnc, err = s.cipher.Encrypt(tok.RefreshToken)
		if err != nil {
			return "", err
		}
	}

	now := s.now().UTC()
	rec := domain.ConnectionRecord{
		UserID:                userID,
		SessionID:             sessionID,
		AccessTokenEncrypted:  accessEnc,
		RefreshTokenEncrypted: refreshEnc,
		InstanceURL:           tok.InstanceURL,
		CreatedAt:             now,
		ExpiresAt:             tok.ExpiresAt(now),
		LastUsed:              now,
	}

	if err := s.write(ctx, "store_connection", func(c store.Connections) error {
		return c.Upsert(ctx, rec)
	}); err != nil {
		return "", err
	}

	connID := idx.New().String()
	s.logger.Info("connection stored", "conn_id", connID, "user_id", userID)
	return connID, nil
}

// GetConnectionBySession returns the credential bound to a session.
func (s *TokenStore) GetConnectionBySession(ctx context.Context, sessionID string) (domain.Credential, error) {
	rec, err := s.read(ctx, "get_by_session", func(c store.Connections) (domain.ConnectionRecord, error) {
		return c.GetBySessionID(ctx, sessionID)
	})
	if err != nil {
		return domain.Credential{}, err
	}
	return s.decryptAndTouch(ctx, rec)
}

// GetConnectionByUserID returns the credential stored for a user.
func (s *TokenStore) GetConnectionByUserID(ctx context.Context, userID string) (domain.Credential, error) {
	rec, err := s.read(ctx, "get_by_user", func(c store.Connections) (domain.ConnectionRecord, error) {
		return c.GetByUserID(ctx, userID)
	})
	if err != nil {
		return domain.Credential{}, err
	}
	return s.decryptAndTouch(ctx, rec)
}

// UpdateTokens merges only the supplied fields into the stored credential
// and bumps last_used. Returns false when the user has no stored connection.
func (s *TokenStore) UpdateTokens(ctx context.Context, userID string, upd domain.TokenUpdate) (bool, error) {
	recUpd := store.RecordUpdate{
		InstanceURL: upd.InstanceURL,
		ExpiresAt:   upd.ExpiresAt,
		LastUsed:    s.now().UTC(),
	}

	if upd.AccessToken != nil {
		enc, err := s.cipher.Encrypt(*upd.AccessToken)
		if err != nil {
			return false, err
		}
		recUpd.AccessTokenEncrypted = &enc
	}
	if upd.RefreshToken != nil {
		enc, err := s.cipher.Encrypt(*upd.RefreshToken)
		if err != nil {
			return false, err
		}
		recUpd.RefreshTokenEncrypted = &enc
	}

	err := s.write(ctx, "update_tokens", func(c store.Connections) error {
		return c.UpdateTokens(ctx, userID, recUpd)
	})
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RemoveConnection deletes the stored credential and session binding for a
// user. The delete runs against both backends so a fallback copy cannot
// resurrect a logged-out credential.
func (s *TokenStore) RemoveConnection(ctx context.Context, userID string) (bool, error) {
	memRemoved, _ := s.mem.Connections().Delete(ctx, userID)

	if s.durable == nil {
		return memRemoved, nil
	}

	removed, err := s.durable.Connections().Delete(ctx, userID)
	if err != nil {
		s.degraded("remove_connection", err)
		return memRemoved, nil
	}
	return removed || memRemoved, nil
}

// HasActiveConnection reports whether a user currently has a stored
// credential, without touching last_used.
func (s *TokenStore) HasActiveConnection(ctx context.Context, userID string) bool {
	_, err := s.read(ctx, "has_active", func(c store.Connections) (domain.ConnectionRecord, error) {
		return c.GetByUserID(ctx, userID)
	})
	return err == nil
}

// Cleanup removes connections unused for more than StaleConnectionAge from
// both backends. The returned count is per record, not per user: a user whose
// stale record sits in both the memory fallback and a healed durable backend
// is counted twice. The count feeds audit logs only.
func (s *TokenStore) Cleanup(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-StaleConnectionAge)

	removed, _ := s.mem.Connections().DeleteStale(ctx, cutoff)

	if s.durable != nil {
		n, err := s.durable.Connections().DeleteStale(ctx, cutoff)
		if err != nil {
			s.degraded("cleanup", err)
			return removed, nil
		}
		removed += n
	}

	return removed, nil
}

// GetActiveConnections lists stored connections without token material.
func (s *TokenStore) GetActiveConnections(ctx context.Context) ([]ConnectionInfo, error) {
	var recs []domain.ConnectionRecord
	var err error

	if s.durable != nil {
		recs, err = s.durable.Connections().List(ctx)
		if err != nil {
			s.degraded("list", err)
			recs, err = s.mem.Connections().List(ctx)
		}
	} else {
		recs, err = s.mem.Connections().List(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := make([]ConnectionInfo, 0, len(recs))
	for _, rec := range recs {
		out = append(out, ConnectionInfo{
			UserID:      rec.UserID,
			InstanceURL: rec.InstanceURL,
			CreatedAt:   rec.CreatedAt,
			ExpiresAt:   rec.ExpiresAt,
			LastUsed:    rec.LastUsed,
		})
	}
	return out, nil
}

// Ping reports durable backend health. Always healthy in memory-only mode.
func (s *TokenStore) Ping(ctx context.Context) error {
	if s.durable == nil {
		return nil
	}
	return s.durable.Ping(ctx)
}

// Close releases the durable backend handle. Safe to call when no durable
// backend was ever configured.
func (s *TokenStore) Close() error {
	if s.durable == nil {
		return nil
	}
	return s.durable.Close()
}

// write runs a mutation against the durable backend, degrading to memory
// when it is unreachable. store.ErrNotFound is a result, not a degradation.
func (s *TokenStore) write(ctx context.Context, op string, fn func(store.Connections) error) error {
	if s.durable != nil {
		err := fn(s.durable.Connections())
		if err == nil || errors.Is(err, store.ErrNotFound) {
			return err
		}
		s.degraded(op, err)
	}
	return fn(s.mem.Connections())
}

// read runs a lookup durable-first. A NotFound from the durable backend
// still consults memory, since an earlier degraded write may live there.
func (s *TokenStore) read(ctx context.Context, op string, fn func(store.Connections) (domain.ConnectionRecord, error)) (domain.ConnectionRecord, error) {
	if s.durable != nil {
		rec, err := fn(s.durable.Connections())
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			s.degraded(op, err)
		}
	}
	return fn(s.mem.Connections())
}

// decryptAndTouch decrypts a record into a credential and bumps last_used.
// Decryption failure removes the record and surfaces the cipher error: the
// credential is unusable, every later lookup would fail the same way, and the
// caller must force re-authorization, never guess.
func (s *TokenStore) decryptAndTouch(ctx context.Context, rec domain.ConnectionRecord) (domain.Credential, error) {
	access, err := s.cipher.Decrypt(rec.AccessTokenEncrypted)
	if err != nil {
		s.discardUndecryptable(ctx, rec.UserID, err)
		return domain.Credential{}, err
	}

	refresh := ""
	if rec.RefreshTokenEncrypted != "" {
		refresh, err = s.cipher.Decrypt(rec.RefreshTokenEncrypted)
		if err != nil {
			s.discardUndecryptable(ctx, rec.UserID, err)
			return domain.Credential{}, err
		}
	}

	now := s.now().UTC()
	if err := s.write(ctx, "touch_last_used", func(c store.Connections) error {
		return c.TouchLastUsed(ctx, rec.UserID, now)
	}); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("failed to bump last_used", "user_id", rec.UserID, "err", err)
	}

	return domain.Credential{
		UserID:       rec.UserID,
		SessionID:    rec.SessionID,
		AccessToken:  access,
		RefreshToken: refresh,
		InstanceURL:  rec.InstanceURL,
		CreatedAt:    rec.CreatedAt,
		ExpiresAt:    rec.ExpiresAt,
		LastUsed:     rec.LastUsed,
	}, nil
}

// discardUndecryptable tears down a record whose token material no longer
// decrypts, typically after a master secret rotation.
func (s *TokenStore) discardUndecryptable(ctx context.Context, userID string, cause error) {
	s.logger.Error("stored credential failed decryption, removing",
		"user_id", userID, "err", cause)

	if _, err := s.RemoveConnection(ctx, userID); err != nil {
		s.logger.Error("failed to remove undecryptable credential",
			"user_id", userID, "err", err)
	}
}

func (s *TokenStore) degraded(op string, err error) {
	s.logger.Warn("durable store unreachable, serving from memory",
		"op", op, "err", err)
}
