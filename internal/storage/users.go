package storage

import (
	"context"
	"fmt"
	"log/slog"

	"expensetracker/internal/core"

	"github.com/google/uuid"
)

const userColumns = `id, username, name, password_hash, profile_picture, gender, created_at, updated_at`

// CreateUser inserts a new user. A taken username yields core.ErrConflict.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := r.now()
	u.CreatedAt, u.UpdatedAt = now, now

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		u.ID, u.Username, u.Name, u.PasswordHash, u.ProfilePicture, u.Gender,
		formatTimestamp(now), formatTimestamp(now))
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	if n == 0 {
		return core.User{}, fmt.Errorf("username %q already exists: %w", u.Username, core.ErrConflict)
	}

	slog.InfoContext(ctx, "User saved to SQLite", "id", u.ID, "username", u.Username)
	return u, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return core.User{}, notFound(err, "user")
	}
	return u, nil
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		return core.User{}, notFound(err, "user")
	}
	return u, nil
}

func scanUser(s scanner) (core.User, error) {
	var (
		u                    core.User
		createdAt, updatedAt string
	)
	if err := s.Scan(&u.ID, &u.Username, &u.Name, &u.PasswordHash, &u.ProfilePicture, &u.Gender, &createdAt, &updatedAt); err != nil {
		return core.User{}, err
	}
	u.CreatedAt = parseTimestamp(createdAt)
	u.UpdatedAt = parseTimestamp(updatedAt)
	return u, nil
}
