package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/sfgate/internal/gate/domain"
)

var ErrNotFound = errors.New("store: not found")

// Store is the root data access interface. Concrete drivers (sqlite for the
// durable backend, memory for the degraded path) implement this. The broker
// holds exactly one table worth of state, so unlike a richer service there is
// no transaction surface here: the only multi-step write is the per-user
// upsert, which the backend serializes on its own.
type Store interface {
	Connections() Connections

	ApplyMigrations() error

	// Close releases any underlying resources (no-op for memory).
	Close() error

	// Ping verifies the backend is still reachable.
	Ping(ctx context.Context) error
}

// RecordUpdate is a partial mutation of a stored connection. Nil fields are
// left untouched. LastUsed is always written.
type RecordUpdate struct {
	AccessTokenEncrypted  *string
	RefreshTokenEncrypted *string
	InstanceURL           *string
	ExpiresAt             *time.Time
	LastUsed              time.Time
}

type Connections interface {
	// Upsert inserts or replaces the record keyed by user id, rebinding the
	// session to the user. A stale row holding the same session id for a
	// different user is displaced.
	Upsert(ctx context.Context, rec domain.ConnectionRecord) error

	// GetByUserID returns the record for a user.
	GetByUserID(ctx context.Context, userID string) (domain.ConnectionRecord, error)

	// GetBySessionID returns the record bound to a session.
	GetBySessionID(ctx context.Context, sessionID string) (domain.ConnectionRecord, error)

	// UpdateTokens merges only the supplied fields into the user's record.
	UpdateTokens(ctx context.Context, userID string, upd RecordUpdate) error

	// TouchLastUsed bumps last_used for a user.
	TouchLastUsed(ctx context.Context, userID string, at time.Time) error

	// Delete removes the record for a user. Returns false when absent.
	Delete(ctx context.Context, userID string) (bool, error)

	// DeleteStale removes records whose last_used is before the cutoff and
	// returns how many were removed.
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)

	// List returns all records ordered by last_used (most recent first).
	List(ctx context.Context) ([]domain.ConnectionRecord, error)
}
