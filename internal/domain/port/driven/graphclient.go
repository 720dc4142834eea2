package driven

import (
	"context"

	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
)

// TokenExchanger is the driven port for the OAuth token endpoint and the
// identity endpoint. Implementations make exactly one outbound call per
// method invocation and never retry.
type TokenExchanger interface {
	// ExchangeToken trades a short-lived token for a long-lived one.
	ExchangeToken(ctx context.Context, app model.AppCredentials, shortLivedToken string) (*model.TokenGrant, error)

	// ExchangeCode trades an OAuth authorization code for a user token.
	ExchangeCode(ctx context.Context, app model.AppCredentials, code, redirectURI string) (*model.TokenGrant, error)

	// Me returns the identity behind accessToken with the requested fields.
	Me(ctx context.Context, accessToken string, fields ...string) (*model.Identity, error)
}

// GraphClient is the driven port for page and post operations.
type GraphClient interface {
	FetchPages(ctx context.Context, userToken string) ([]model.Page, error)
	CreatePost(ctx context.Context, pageID, pageToken string, content model.PostContent) (string, error)
	UpdatePost(ctx context.Context, postID, pageToken string, update model.PostUpdate) error
	DeletePost(ctx context.Context, postID, pageToken string) error
	GetPost(ctx context.Context, postID, pageToken string) (*model.GraphPost, error)
	PageInsights(ctx context.Context, pageID, pageToken string, metrics []string, period string) ([]model.InsightMetric, error)
}
