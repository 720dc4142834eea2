package driven

import (
	"context"

	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
)

// PostStore defines the driven port for scheduled post persistence.
type PostStore interface {
	// Create inserts a post and returns it with ID and timestamps set.
	Create(ctx context.Context, post model.ScheduledPost) (model.ScheduledPost, error)
	Update(ctx context.Context, post model.ScheduledPost) error

	// GetByID returns model.ErrNotFound if the post does not exist.
	GetByID(ctx context.Context, id int64) (*model.ScheduledPost, error)

	// PageIDForFacebookPost returns the page a Facebook post was scheduled
	// on, or ("", nil) if no stored post maps to it.
	PageIDForFacebookPost(ctx context.Context, facebookPostID string) (string, error)
	ListAll(ctx context.Context) ([]model.ScheduledPost, error)
	Delete(ctx context.Context, id int64) error
}
