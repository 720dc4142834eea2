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

// postColumns must match the Scan order in scanPost.
const postColumns = `id, page_id, message, link, image_path, image_url, video_path, scheduled_at, facebook_post_id, status, created_at, updated_at`

// Compile-time interface satisfaction check.
var _ driven.PostStore = (*PostRepo)(nil)

// PostRepo is the SQLite implementation of the PostStore port interface.
type PostRepo struct {
	db *DB
}

// NewPostRepo creates a new PostRepo backed by the given DB.
func NewPostRepo(db *DB) *PostRepo {
	return &PostRepo{db: db}
}

// Create inserts a post and returns it with ID and timestamps populated.
func (r *PostRepo) Create(ctx context.Context, post model.ScheduledPost) (model.ScheduledPost, error) {
	const query = `
		INSERT INTO scheduled_posts (page_id, message, link, image_path, image_url, video_path,
			scheduled_at, facebook_post_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC().Truncate(time.Second)
	if post.Status == "" {
		post.Status = model.PostStatusScheduled
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		post.PageID, post.Message, post.Link, post.ImagePath, post.ImageURL, post.VideoPath,
		formatTime(post.ScheduledAt), post.FacebookPostID, string(post.Status),
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return model.ScheduledPost{}, fmt.Errorf("create post for page %q: %w", post.PageID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return model.ScheduledPost{}, fmt.Errorf("read inserted post id: %w", err)
	}

	post.ID = id
	post.ScheduledAt = post.ScheduledAt.UTC().Truncate(time.Second)
	post.CreatedAt = now
	post.UpdatedAt = now
	return post, nil
}

// Update overwrites the mutable fields of an existing post.
func (r *PostRepo) Update(ctx context.Context, post model.ScheduledPost) error {
	const query = `
		UPDATE scheduled_posts SET
			message = ?, link = ?, image_path = ?, image_url = ?, video_path = ?,
			scheduled_at = ?, facebook_post_id = ?, status = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Writer.ExecContext(ctx, query,
		post.Message, post.Link, post.ImagePath, post.ImageURL, post.VideoPath,
		formatTime(post.ScheduledAt), post.FacebookPostID, string(post.Status),
		formatTime(time.Now()), post.ID,
	)
	if err != nil {
		return fmt.Errorf("update post %d: %w", post.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update post %d: %w", post.ID, model.ErrNotFound)
	}

	return nil
}

// GetByID returns the post with the given id, or model.ErrNotFound.
func (r *PostRepo) GetByID(ctx context.Context, id int64) (*model.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts WHERE id = ?`

	post, err := scanPost(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get post %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get post %d: %w", id, err)
	}
	return post, nil
}

// PageIDForFacebookPost returns the page id stored for a Facebook post id,
// or ("", nil) when no stored post maps to it.
func (r *PostRepo) PageIDForFacebookPost(ctx context.Context, facebookPostID string) (string, error) {
	const query = `SELECT page_id FROM scheduled_posts WHERE facebook_post_id = ? LIMIT 1`

	var pageID string
	err := r.db.Reader.QueryRowContext(ctx, query, facebookPostID).Scan(&pageID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup page for facebook post %q: %w", facebookPostID, err)
	}
	return pageID, nil
}

// ListAll returns all posts ordered by scheduled time, soonest first.
func (r *PostRepo) ListAll(ctx context.Context) ([]model.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts ORDER BY scheduled_at, id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []model.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}

	return posts, nil
}

// Delete removes the post with the given id, or returns model.ErrNotFound.
func (r *PostRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM scheduled_posts WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete post %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("delete post %d: %w", id, model.ErrNotFound)
	}

	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*model.ScheduledPost, error) {
	var post model.ScheduledPost
	var status, scheduledAt, createdAt, updatedAt string

	err := row.Scan(
		&post.ID, &post.PageID, &post.Message, &post.Link, &post.ImagePath, &post.ImageURL,
		&post.VideoPath, &scheduledAt, &post.FacebookPostID, &status, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	post.Status = model.PostStatus(status)

	if post.ScheduledAt, err = parseTime(scheduledAt); err != nil {
		return nil, fmt.Errorf("parse scheduled_at: %w", err)
	}
	if post.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if post.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &post, nil
}
