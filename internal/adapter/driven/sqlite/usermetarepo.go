package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/pagescheduler/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.UserAttributeStore = (*UserMetaRepo)(nil)

// UserMetaRepo is the SQLite implementation of the UserAttributeStore port.
type UserMetaRepo struct {
	db *DB
}

// NewUserMetaRepo creates a new UserMetaRepo backed by the given DB.
func NewUserMetaRepo(db *DB) *UserMetaRepo {
	return &UserMetaRepo{db: db}
}

// GetAttribute returns the attribute value, or ("", nil) if it is not set.
func (r *UserMetaRepo) GetAttribute(ctx context.Context, userID int64, key string) (string, error) {
	const query = `SELECT meta_value FROM user_meta WHERE user_id = ? AND meta_key = ?`

	var value string
	err := r.db.Reader.QueryRowContext(ctx, query, userID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get user %d meta %q: %w", userID, key, err)
	}
	return value, nil
}

// SetAttribute stores or replaces the attribute value.
func (r *UserMetaRepo) SetAttribute(ctx context.Context, userID int64, key, value string) error {
	const query = `
		INSERT INTO user_meta (user_id, meta_key, meta_value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, meta_key) DO UPDATE SET
			meta_value = excluded.meta_value,
			updated_at = excluded.updated_at
	`

	if _, err := r.db.Writer.ExecContext(ctx, query, userID, key, value, formatTime(time.Now())); err != nil {
		return fmt.Errorf("set user %d meta %q: %w", userID, key, err)
	}
	return nil
}

// DeleteAttribute removes the attribute. Deleting a missing attribute is not an error.
func (r *UserMetaRepo) DeleteAttribute(ctx context.Context, userID int64, key string) error {
	const query = `DELETE FROM user_meta WHERE user_id = ? AND meta_key = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query, userID, key); err != nil {
		return fmt.Errorf("delete user %d meta %q: %w", userID, key, err)
	}
	return nil
}
