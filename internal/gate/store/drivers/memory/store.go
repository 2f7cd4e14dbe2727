package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aussiebroadwan/sfgate/internal/gate/domain"
	"github.com/aussiebroadwan/sfgate/internal/gate/store"
)

// Store is the in-memory fallback backend. It keeps the user-keyed records
// plus a session index so both lookup paths observe the same writes. State
// does not survive a restart; that is the accepted cost of degraded mode.
type Store struct {
	mu        sync.RWMutex
	byUser    map[string]domain.ConnectionRecord
	bySession map[string]string // session id -> user id
}

func NewStore() *Store {
	return &Store{
		byUser:    make(map[string]domain.ConnectionRecord),
		bySession: make(map[string]string),
	}
}

func (s *Store) Connections() store.Connections { return (*connectionsRepo)(s) }

func (s *Store) ApplyMigrations() error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) Ping(ctx context.Context) error { return nil }

type connectionsRepo Store

func (r *connectionsRepo) Upsert(ctx context.Context, rec domain.ConnectionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Displace a stale binding of the same session to another user, and the
	// user's previous session binding.
	if prevUser, ok := r.bySession[rec.SessionID]; ok && prevUser != rec.UserID {
		delete(r.byUser, prevUser)
	}
	if prev, ok := r.byUser[rec.UserID]; ok && prev.SessionID != rec.SessionID {
		delete(r.bySession, prev.SessionID)
	}

	r.byUser[rec.UserID] = rec
	r.bySession[rec.SessionID] = rec.UserID
	return nil
}

func (r *connectionsRepo) GetByUserID(ctx context.Context, userID string) (domain.ConnectionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byUser[userID]
	if !ok {
		return domain.ConnectionRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (r *connectionsRepo) GetBySessionID(ctx context.Context, sessionID string) (domain.ConnectionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.bySession[sessionID]
	if !ok {
		return domain.ConnectionRecord{}, store.ErrNotFound
	}

	rec, ok := r.byUser[userID]
	if !ok {
		return domain.ConnectionRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (r *connectionsRepo) UpdateTokens(ctx context.Context, userID string, upd store.RecordUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byUser[userID]
	if !ok {
		return store.ErrNotFound
	}

	if upd.AccessTokenEncrypted != nil {
		rec.AccessTokenEncrypted = *upd.AccessTokenEncrypted
	}
	if upd.RefreshTokenEncrypted != nil {
		rec.RefreshTokenEncrypted = *upd.RefreshTokenEncrypted
	}
	if upd.InstanceURL != nil {
		rec.InstanceURL = *upd.InstanceURL
	}
	if upd.ExpiresAt != nil {
		expiresAt := *upd.ExpiresAt
		rec.ExpiresAt = &expiresAt
	}
	rec.LastUsed = upd.LastUsed

	r.byUser[userID] = rec
	return nil
}

func (r *connectionsRepo) TouchLastUsed(ctx context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	rec.LastUsed = at
	r.byUser[userID] = rec
	return nil
}

func (r *connectionsRepo) Delete(ctx context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byUser[userID]
	if !ok {
		return false, nil
	}

	delete(r.byUser, userID)
	delete(r.bySession, rec.SessionID)
	return true, nil
}

func (r *connectionsRepo) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for userID, rec := range r.byUser {
		if rec.LastUsed.Before(cutoff) {
			delete(r.byUser, userID)
			delete(r.bySession, rec.SessionID)
			removed++
		}
	}
	return removed, nil
}

func (r *connectionsRepo) List(ctx context.Context) ([]domain.ConnectionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ConnectionRecord, 0, len(r.byUser))
	for _, rec := range r.byUser {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUsed.After(out[j].LastUsed)
	})
	return out, nil
}
