package facebook

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (r tokenResponse) grant(op string) (*model.TokenGrant, error) {
	if r.AccessToken == "" {
		return nil, fmt.Errorf("%s: %w: no access_token in response", op, model.ErrMalformedResponse)
	}
	return &model.TokenGrant{AccessToken: r.AccessToken, TokenType: r.TokenType, ExpiresIn: r.ExpiresIn}, nil
}

// ExchangeToken trades a short-lived token for a long-lived one via
// GET oauth/access_token with grant_type=fb_exchange_token.
func (c *Client) ExchangeToken(ctx context.Context, app model.AppCredentials, shortLivedToken string) (*model.TokenGrant, error) {
	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", app.AppID)
	params.Set("client_secret", app.AppSecret)
	params.Set("fb_exchange_token", shortLivedToken)

	var resp tokenResponse
	if err := c.get(ctx, "exchange_token", "oauth/access_token", params, requestTimeout, &resp); err != nil {
		return nil, err
	}
	return resp.grant("exchange_token")
}

// ExchangeCode trades an OAuth authorization code for a short-lived user token.
func (c *Client) ExchangeCode(ctx context.Context, app model.AppCredentials, code, redirectURI string) (*model.TokenGrant, error) {
	params := url.Values{}
	params.Set("client_id", app.AppID)
	params.Set("client_secret", app.AppSecret)
	params.Set("redirect_uri", redirectURI)
	params.Set("code", code)

	var resp tokenResponse
	if err := c.postForm(ctx, "exchange_code", "oauth/access_token", params, requestTimeout, &resp); err != nil {
		return nil, err
	}
	return resp.grant("exchange_code")
}

// Me returns the identity behind accessToken. Fields default to id,name.
func (c *Client) Me(ctx context.Context, accessToken string, fields ...string) (*model.Identity, error) {
	if len(fields) == 0 {
		fields = []string{"id", "name"}
	}

	params := url.Values{}
	params.Set("access_token", accessToken)
	params.Set("fields", strings.Join(fields, ","))

	var identity model.Identity
	if err := c.get(ctx, "me", "me", params, identityTimeout, &identity); err != nil {
		return nil, err
	}
	if identity.ID == "" {
		return nil, fmt.Errorf("me: %w: no id in response", model.ErrMalformedResponse)
	}
	return &identity, nil
}
