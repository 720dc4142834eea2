package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
	"github.com/ericfisherdev/pagescheduler/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ListableCredentialBackend = (*PageTokenRepo)(nil)

// PageTokenRepo is the SQLite implementation of the CredentialBackend port
// for page credentials. Rows hold the already-encrypted payload; this repo
// never sees plaintext tokens.
type PageTokenRepo struct {
	db *DB
}

// NewPageTokenRepo creates a new PageTokenRepo backed by the given DB.
func NewPageTokenRepo(db *DB) *PageTokenRepo {
	return &PageTokenRepo{db: db}
}

// Put stores or replaces the token blob for pageID. The row is replaced by
// key, so a page never has more than one row; created_at survives updates.
func (r *PageTokenRepo) Put(ctx context.Context, pageID, blob string) error {
	const query = `
		INSERT INTO page_tokens (page_id, token_data, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(page_id) DO UPDATE SET
			token_data = excluded.token_data,
			updated_at = excluded.updated_at
	`

	now := formatTime(time.Now())
	if _, err := r.db.Writer.ExecContext(ctx, query, pageID, blob, now, now); err != nil {
		return fmt.Errorf("put page token %q: %w", pageID, err)
	}
	return nil
}

// Get returns the token blob for pageID, or ("", nil) if none is stored.
func (r *PageTokenRepo) Get(ctx context.Context, pageID string) (string, error) {
	const query = `SELECT token_data FROM page_tokens WHERE page_id = ?`

	var blob string
	err := r.db.Reader.QueryRowContext(ctx, query, pageID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get page token %q: %w", pageID, err)
	}
	return blob, nil
}

// Delete removes the row for pageID.
func (r *PageTokenRepo) Delete(ctx context.Context, pageID string) error {
	const query = `DELETE FROM page_tokens WHERE page_id = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query, pageID); err != nil {
		return fmt.Errorf("delete page token %q: %w", pageID, err)
	}
	return nil
}

// List returns every stored page token row ordered by page id.
func (r *PageTokenRepo) List(ctx context.Context) ([]model.StoredCredential, error) {
	const query = `SELECT page_id, token_data, created_at, updated_at FROM page_tokens ORDER BY page_id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list page tokens: %w", err)
	}
	defer rows.Close()

	var stored []model.StoredCredential
	for rows.Next() {
		var sc model.StoredCredential
		var createdAt, updatedAt string
		if err := rows.Scan(&sc.SubjectID, &sc.Blob, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan page token: %w", err)
		}

		sc.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for page %q: %w", sc.SubjectID, err)
		}
		sc.UpdatedAt, err = parseTime(updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse updated_at for page %q: %w", sc.SubjectID, err)
		}

		stored = append(stored, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page tokens: %w", err)
	}

	return stored, nil
}
