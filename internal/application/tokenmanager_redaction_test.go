package application_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/pagescheduler/internal/adapter/driven/facebook"
	"github.com/ericfisherdev/pagescheduler/internal/adapter/driven/tokencodec"
	"github.com/ericfisherdev/pagescheduler/internal/application"
	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
)

// TestTokenFailures_KeepSecretsOutOfLogs drives the token manager against an
// unreachable Graph API and checks that neither the app secret nor any
// token reaches the log output or the returned errors.
func TestTokenFailures_KeepSecretsOutOfLogs(t *testing.T) {
	const (
		appSecret  = "APP-SECRET-4711"
		shortToken = "SHORT-TOKEN-0815"
		pageToken  = "PAGE-TOKEN-1234"
		userToken  = "USER-TOKEN-5678"
	)

	server := httptest.NewServer(http.NotFoundHandler())
	graph, err := facebook.NewClientWithHTTPClient(server.Client(), server.URL+"/", "")
	require.NoError(t, err)
	server.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	f := newFixture(t)
	codec, err := tokencodec.New(testKey)
	require.NoError(t, err)
	store := application.NewCredentialStore(codec, f.attrs, f.pages, f.clock, logger)
	app := application.NewAppCredentialSource(f.options, model.AppCredentials{AppID: "app-123", AppSecret: appSecret}, logger)
	tm := application.NewTokenManager(store, graph, app, f.clock, logger)
	ctx := context.Background()

	require.NoError(t, store.StorePageToken(ctx, "p1", model.Credential{AccessToken: pageToken, ExpiresAt: f.now() + 3600}))
	require.NoError(t, store.StoreUserToken(ctx, 7, model.Credential{AccessToken: userToken, ExpiresAt: f.now() + 3600}))

	var errs []error

	_, err = tm.ExchangeForLongLivedToken(ctx, shortToken)
	require.ErrorIs(t, err, model.ErrTransport)
	errs = append(errs, err)

	summary, err := tm.RefreshAllTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, summary.Failed)

	_, err = tm.ValidateUserToken(ctx, 7)
	require.ErrorIs(t, err, model.ErrTransport)
	errs = append(errs, err)

	output := logs.String()
	require.Contains(t, output, "page token refresh failed")
	require.Contains(t, output, "token exchange failed")

	for _, secret := range []string{appSecret, shortToken, pageToken, userToken} {
		assert.NotContains(t, output, secret)
		for _, err := range errs {
			assert.NotContains(t, err.Error(), secret)
		}
	}
}
