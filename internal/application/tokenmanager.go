// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
	"github.com/ericfisherdev/pagescheduler/internal/domain/port/driven"
	"github.com/ericfisherdev/pagescheduler/internal/logutil"
	"github.com/ericfisherdev/pagescheduler/internal/metrics"
)

const (
	// DefaultLongLivedExpiresIn is assumed when the token endpoint omits
	// expires_in (60 days).
	DefaultLongLivedExpiresIn int64 = 5184000

	// RefreshWindow is how close to expiry a page token must be before a
	// refresh sweep exchanges it.
	RefreshWindow = 7 * 24 * time.Hour
)

// RefreshSummary reports the outcome of one RefreshAllTokens sweep.
type RefreshSummary struct {
	Total      int      `json:"total"`
	Refreshed  []string `json:"refreshed"`
	Failed     []string `json:"failed"`
	Unreadable []string `json:"unreadable"`
	Skipped    int      `json:"skipped"`
}

// TokenManager exchanges, refreshes and validates Facebook tokens. It has no
// timer of its own; sweeps are triggered by RefreshScheduler or on demand.
type TokenManager struct {
	store     *CredentialStore
	exchanger driven.TokenExchanger
	app       *AppCredentialSource
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewTokenManager creates a TokenManager with all required dependencies.
func NewTokenManager(
	store *CredentialStore,
	exchanger driven.TokenExchanger,
	app *AppCredentialSource,
	clock clockwork.Clock,
	logger *slog.Logger,
) *TokenManager {
	return &TokenManager{
		store:     store,
		exchanger: exchanger,
		app:       app,
		clock:     clock,
		logger:    logutil.NoopIfNil(logger),
	}
}

// ExchangeForLongLivedToken trades a short-lived token for a long-lived
// credential. No request is made when the app credentials are unconfigured.
func (m *TokenManager) ExchangeForLongLivedToken(ctx context.Context, shortLivedToken string) (*model.Credential, error) {
	app, err := m.app.Resolve(ctx)
	if err != nil {
		metrics.TokenExchangesTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		m.logger.Error("cannot exchange token", "error", err)
		return nil, fmt.Errorf("exchange token: %w", err)
	}

	grant, err := m.exchanger.ExchangeToken(ctx, app, shortLivedToken)
	if err != nil {
		metrics.TokenExchangesTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		m.logger.Error("token exchange failed", "error", err)
		return nil, fmt.Errorf("exchange token: %w", err)
	}
	metrics.TokenExchangesTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()

	return m.credentialFromGrant(grant), nil
}

// credentialFromGrant stamps creation and expiry times on a token grant.
func (m *TokenManager) credentialFromGrant(grant *model.TokenGrant) *model.Credential {
	now := m.clock.Now().Unix()

	expiresIn := grant.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = DefaultLongLivedExpiresIn
	}
	tokenType := grant.TokenType
	if tokenType == "" {
		tokenType = model.DefaultTokenType
	}

	return &model.Credential{
		AccessToken: grant.AccessToken,
		TokenType:   tokenType,
		ExpiresIn:   expiresIn,
		ExpiresAt:   now + expiresIn,
		CreatedAt:   now,
	}
}

// RefreshAllTokens exchanges every stored page token that expires within
// RefreshWindow and overwrites it on success. Tokens that never expire and
// unreadable rows are skipped. Individual failures are logged and reported
// in the summary; an error is returned only when the tokens cannot be listed.
func (m *TokenManager) RefreshAllTokens(ctx context.Context) (RefreshSummary, error) {
	start := m.clock.Now()

	creds, unreadable, err := m.store.ListPageCredentials(ctx)
	if err != nil {
		return RefreshSummary{}, err
	}

	summary := RefreshSummary{
		Total:      len(creds) + len(unreadable),
		Unreadable: unreadable,
	}
	metrics.TokenRefreshesTotal.WithLabelValues(metrics.OutcomeSkipped).Add(float64(len(unreadable)))

	for _, cred := range creds {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		if !cred.ExpiresWithin(start, RefreshWindow) {
			summary.Skipped++
			continue
		}

		if err := m.refreshPage(ctx, cred); err != nil {
			metrics.TokenRefreshesTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
			m.logger.Error("page token refresh failed", "page_id", cred.SubjectID, "error", err)
			summary.Failed = append(summary.Failed, cred.SubjectID)
			continue
		}

		metrics.TokenRefreshesTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
		summary.Refreshed = append(summary.Refreshed, cred.SubjectID)
	}

	metrics.RefreshSweepsTotal.Inc()
	m.logger.Info("token refresh sweep complete",
		"total", summary.Total,
		"refreshed", len(summary.Refreshed),
		"failed", len(summary.Failed),
		"unreadable", len(summary.Unreadable),
		"duration", m.clock.Since(start).Round(time.Millisecond),
	)

	return summary, nil
}

func (m *TokenManager) refreshPage(ctx context.Context, old model.Credential) error {
	fresh, err := m.ExchangeForLongLivedToken(ctx, old.AccessToken)
	if err != nil {
		return err
	}

	fresh.PageID = old.PageID
	fresh.PageName = old.PageName
	if err := m.store.StorePageToken(ctx, old.SubjectID, *fresh); err != nil {
		return err
	}

	m.logger.Info("refreshed page token", "page_id", old.SubjectID, "expires_at", fresh.ExpiresAt)
	return nil
}

// ValidateToken looks up the identity behind accessToken. It does not read
// or write stored credentials.
func (m *TokenManager) ValidateToken(ctx context.Context, accessToken string) (*model.Identity, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("validate token: %w", model.ErrCredentialAbsent)
	}

	identity, err := m.exchanger.Me(ctx, accessToken, "id", "name", "email")
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			m.logger.Warn("token validation rejected", "error", apiErr.Message)
		} else {
			m.logger.Error("token validation failed", "error", err)
		}
		return nil, fmt.Errorf("validate token: %w", err)
	}

	return identity, nil
}

// ValidateUserToken validates the stored token of userID.
func (m *TokenManager) ValidateUserToken(ctx context.Context, userID int64) (*model.Identity, error) {
	cred, err := m.store.GetUserToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.ValidateToken(ctx, cred.AccessToken)
}
