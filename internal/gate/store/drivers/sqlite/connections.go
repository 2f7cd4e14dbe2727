package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/sfgate/internal/gate/domain"
	"github.com/aussiebroadwan/sfgate/internal/gate/store"
)

type connectionsRepo struct {
	db *sql.DB
}

const connectionColumns = `user_id, session_id, access_token_enc, refresh_token_enc,
	instance_url, created_at, expires_at, last_used`

func (r *connectionsRepo) Upsert(ctx context.Context, rec domain.ConnectionRecord) error {
	// A browser session that re-authorizes as a different user would trip the
	// session_id uniqueness constraint; displace the stale binding first.
	// Last-write-wins is acceptable here, no transaction needed.
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM connections WHERE session_id = ? AND user_id <> ?`,
		rec.SessionID, rec.UserID,
	); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO connections (`+connectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			session_id        = excluded.session_id,
			access_token_enc  = excluded.access_token_enc,
			refresh_token_enc = excluded.refresh_token_enc,
			instance_url      = excluded.instance_url,
			created_at        = excluded.created_at,
			expires_at        = excluded.expires_at,
			last_used         = excluded.last_used`,
		rec.UserID, rec.SessionID, rec.AccessTokenEncrypted, rec.RefreshTokenEncrypted,
		rec.InstanceURL, rec.CreatedAt, mapOptionalTime(rec.ExpiresAt), rec.LastUsed,
	)
	return err
}

func (r *connectionsRepo) GetByUserID(ctx context.Context, userID string) (domain.ConnectionRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE user_id = ?`, userID)
	return scanConnection(row)
}

func (r *connectionsRepo) GetBySessionID(ctx context.Context, sessionID string) (domain.ConnectionRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE session_id = ?`, sessionID)
	return scanConnection(row)
}

func (r *connectionsRepo) UpdateTokens(ctx context.Context, userID string, upd store.RecordUpdate) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE connections SET
			access_token_enc  = COALESCE(?, access_token_enc),
			refresh_token_enc = COALESCE(?, refresh_token_enc),
			instance_url      = COALESCE(?, instance_url),
			expires_at        = COALESCE(?, expires_at),
			last_used         = ?
		WHERE user_id = ?`,
		mapOptionalString(upd.AccessTokenEncrypted),
		mapOptionalString(upd.RefreshTokenEncrypted),
		mapOptionalString(upd.InstanceURL),
		mapOptionalTime(upd.ExpiresAt),
		upd.LastUsed, userID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *connectionsRepo) TouchLastUsed(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE connections SET last_used = ? WHERE user_id = ?`, at, userID)
	return err
}

func (r *connectionsRepo) Delete(ctx context.Context, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM connections WHERE user_id = ?`, userID)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *connectionsRepo) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM connections WHERE last_used < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *connectionsRepo) List(ctx context.Context) ([]domain.ConnectionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM connections ORDER BY last_used DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ConnectionRecord
	for rows.Next() {
		rec, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (domain.ConnectionRecord, error) {
	var rec domain.ConnectionRecord
	var expiresAt sql.NullTime

	err := row.Scan(
		&rec.UserID, &rec.SessionID, &rec.AccessTokenEncrypted, &rec.RefreshTokenEncrypted,
		&rec.InstanceURL, &rec.CreatedAt, &expiresAt, &rec.LastUsed,
	)
	if err != nil {
		return domain.ConnectionRecord{}, mapNotFound(err)
	}

	if expiresAt.Valid {
		t := expiresAt.Time
		rec.ExpiresAt = &t
	}
	return rec, nil
}

func mapOptionalString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}

func mapOptionalTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
