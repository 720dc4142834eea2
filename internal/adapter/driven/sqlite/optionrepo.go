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
var _ driven.OptionStore = (*OptionRepo)(nil)

// OptionRepo is the SQLite implementation of the OptionStore port interface.
type OptionRepo struct {
	db *DB
}

// NewOptionRepo creates a new OptionRepo backed by the given DB.
func NewOptionRepo(db *DB) *OptionRepo {
	return &OptionRepo{db: db}
}

// GetOption returns the option value, or ("", nil) if it is not set.
func (r *OptionRepo) GetOption(ctx context.Context, name string) (string, error) {
	const query = `SELECT value FROM options WHERE name = ?`

	var value string
	err := r.db.Reader.QueryRowContext(ctx, query, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get option %q: %w", name, err)
	}
	return value, nil
}

// SetOption stores or replaces the option value.
func (r *OptionRepo) SetOption(ctx context.Context, name, value string) error {
	const query = `
		INSERT INTO options (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	if _, err := r.db.Writer.ExecContext(ctx, query, name, value, formatTime(time.Now())); err != nil {
		return fmt.Errorf("set option %q: %w", name, err)
	}
	return nil
}

// AddOption writes the option only when it does not exist yet. It reports
// whether this call created it.
func (r *OptionRepo) AddOption(ctx context.Context, name, value string) (bool, error) {
	const query = `INSERT INTO options (name, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(name) DO NOTHING`

	result, err := r.db.Writer.ExecContext(ctx, query, name, value, formatTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("add option %q: %w", name, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return rows > 0, nil
}

// DeleteOption removes the option. Deleting a missing option is not an error.
func (r *OptionRepo) DeleteOption(ctx context.Context, name string) error {
	const query = `DELETE FROM options WHERE name = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("delete option %q: %w", name, err)
	}
	return nil
}
