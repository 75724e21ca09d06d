package storage

import (
	"context"
	"fmt"
	"time"

	"expensetracker/internal/core"
)

func (r *SQLiteRepository) CreateSession(ctx context.Context, s core.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)`,
		s.ID, s.UserID, formatTimestamp(s.ExpiresAt), formatTimestamp(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession returns the session unless it is missing or expired.
func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (core.Session, error) {
	var (
		s                    core.Session
		expiresAt, createdAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, expires_at, created_at FROM sessions
		WHERE id = ? AND expires_at > ?`, id, r.timestamp()).
		Scan(&s.ID, &s.UserID, &expiresAt, &createdAt)
	if err != nil {
		return core.Session{}, notFound(err, "session")
	}
	s.ExpiresAt = parseTimestamp(expiresAt)
	s.CreatedAt = parseTimestamp(createdAt)
	return s, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions prunes sessions that expired before now and returns
// how many were removed.
func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, formatTimestamp(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
