package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
	"github.com/ericfisherdev/pagescheduler/internal/domain/port/driven"
	"github.com/ericfisherdev/pagescheduler/internal/logutil"
)

const (
	// LoginDialogURL is the Facebook OAuth dialog users are sent to.
	LoginDialogURL = "https://www.facebook.com/v18.0/dialog/oauth"

	// PagesAttribute caches the connected user's page list.
	PagesAttribute = "fps_facebook_pages"

	// SelectedPagesOption holds the pages chosen for posting.
	SelectedPagesOption = "fps_selected_pages"

	loginStateTTL = 10 * time.Minute
)

// DefaultScopes are always requested by LoginURL.
var DefaultScopes = []string{"pages_manage_posts", "pages_read_engagement", "pages_show_list"}

// ErrInvalidState is returned when an OAuth callback carries an unknown or
// expired state value.
var ErrInvalidState = errors.New("invalid or expired oauth state")

// ConnectResult is the outcome of a completed Facebook login.
type ConnectResult struct {
	Identity *model.Identity `json:"identity"`
	Pages    []model.Page    `json:"pages"`
}

// ConnectionService connects a user's Facebook account and keeps the page
// tokens derived from it.
type ConnectionService struct {
	exchanger driven.TokenExchanger
	graph     driven.GraphClient
	tokens    *TokenManager
	store     *CredentialStore
	app       *AppCredentialSource
	attrs     driven.UserAttributeStore
	options   driven.OptionStore
	clock     clockwork.Clock
	logger    *slog.Logger

	mu     sync.Mutex
	states map[string]time.Time
}

// NewConnectionService creates a ConnectionService with all required dependencies.
func NewConnectionService(
	exchanger driven.TokenExchanger,
	graph driven.GraphClient,
	tokens *TokenManager,
	store *CredentialStore,
	app *AppCredentialSource,
	attrs driven.UserAttributeStore,
	options driven.OptionStore,
	clock clockwork.Clock,
	logger *slog.Logger,
) *ConnectionService {
	return &ConnectionService{
		exchanger: exchanger,
		graph:     graph,
		tokens:    tokens,
		store:     store,
		app:       app,
		attrs:     attrs,
		options:   options,
		clock:     clock,
		logger:    logutil.NoopIfNil(logger),
		states:    make(map[string]time.Time),
	}
}

// LoginURL builds the OAuth dialog URL and remembers a fresh state value
// for CompleteLogin. Requires a configured app.
func (s *ConnectionService) LoginURL(ctx context.Context, redirectURI string, extraScopes []string) (string, error) {
	if redirectURI == "" {
		return "", fmt.Errorf("%w: redirect_uri is required", model.ErrInvalidInput)
	}

	app, err := s.app.Resolve(ctx)
	if err != nil {
		return "", err
	}

	scopes := append(append([]string{}, DefaultScopes...), extraScopes...)
	state := s.newState()

	params := url.Values{}
	params.Set("client_id", app.AppID)
	params.Set("redirect_uri", redirectURI)
	params.Set("scope", strings.Join(scopes, ","))
	params.Set("response_type", "code")
	params.Set("state", state)

	return LoginDialogURL + "?" + params.Encode(), nil
}

// CompleteLogin finishes the OAuth flow for userID: it checks state, trades
// the code for a long-lived user token, stores it and loads the user's pages.
func (s *ConnectionService) CompleteLogin(ctx context.Context, userID int64, code, state, redirectURI string) (*ConnectResult, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", model.ErrInvalidInput)
	}
	if !s.consumeState(state) {
		return nil, ErrInvalidState
	}

	app, err := s.app.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	short, err := s.exchanger.ExchangeCode(ctx, app, code, redirectURI)
	if err != nil {
		s.logger.Error("authorization code exchange failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	cred, err := s.tokens.ExchangeForLongLivedToken(ctx, short.AccessToken)
	if err != nil {
		return nil, err
	}

	if err := s.store.StoreUserToken(ctx, userID, *cred); err != nil {
		return nil, err
	}

	identity, err := s.tokens.ValidateToken(ctx, cred.AccessToken)
	if err != nil {
		s.logger.Warn("connected token failed validation", "user_id", userID, "error", err)
	}

	pages, err := s.RefreshPages(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("facebook account connected", "user_id", userID, "pages", len(pages))
	return &ConnectResult{Identity: identity, Pages: pages}, nil
}

// RefreshPages fetches the user's pages, stores a non-expiring token for
// each page that carries one and caches the page list.
func (s *ConnectionService) RefreshPages(ctx context.Context, userID int64) ([]model.Page, error) {
	cred, err := s.store.GetUserToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	pages, err := s.graph.FetchPages(ctx, cred.AccessToken)
	if err != nil {
		s.logger.Error("failed to get user pages", "user_id", userID, "error", err)
		return nil, fmt.Errorf("fetch pages: %w", err)
	}

	now := s.clock.Now().Unix()
	for _, page := range pages {
		if page.AccessToken == "" {
			continue
		}
		pageCred := model.Credential{
			AccessToken: page.AccessToken,
			PageID:      page.ID,
			PageName:    page.Name,
			CreatedAt:   now,
			ExpiresAt:   0,
		}
		if err := s.store.StorePageToken(ctx, page.ID, pageCred); err != nil {
			return nil, err
		}
	}

	if err := s.cachePages(ctx, userID, pages); err != nil {
		return nil, err
	}

	s.logger.Info("retrieved pages", "user_id", userID, "count", len(pages))
	return pages, nil
}

// Pages returns the cached page list, empty if none has been loaded.
func (s *ConnectionService) Pages(ctx context.Context, userID int64) ([]model.Page, error) {
	raw, err := s.attrs.GetAttribute(ctx, userID, PagesAttribute)
	if err != nil {
		return nil, fmt.Errorf("load cached pages: %w", err)
	}
	if raw == "" {
		return []model.Page{}, nil
	}

	var pages []model.Page
	if err := json.Unmarshal([]byte(raw), &pages); err != nil {
		s.logger.Warn("cached page list is unreadable", "user_id", userID, "error", err)
		return []model.Page{}, nil
	}
	return pages, nil
}

// RemovePage drops a page from the cached list and deletes its token.
func (s *ConnectionService) RemovePage(ctx context.Context, userID int64, pageID string) error {
	pages, err := s.Pages(ctx, userID)
	if err != nil {
		return err
	}

	kept := pages[:0]
	for _, p := range pages {
		if p.ID != pageID {
			kept = append(kept, p)
		}
	}

	if err := s.cachePages(ctx, userID, kept); err != nil {
		return err
	}
	return s.store.RemovePageToken(ctx, pageID)
}

// TestConnection checks the stored user token against the Graph API.
func (s *ConnectionService) TestConnection(ctx context.Context, userID int64) (*model.Identity, error) {
	cred, err := s.store.GetUserToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	identity, err := s.exchanger.Me(ctx, cred.AccessToken, "id", "name")
	if err != nil {
		s.logger.Warn("connection test failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("test connection: %w", err)
	}
	return identity, nil
}

// Disconnect removes the user's token, the tokens of the user's cached pages,
// the cached page list and the page selection.
func (s *ConnectionService) Disconnect(ctx context.Context, userID int64) error {
	pages, err := s.Pages(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.store.RemoveUserToken(ctx, userID); err != nil {
		return err
	}
	for _, p := range pages {
		if err := s.store.RemovePageToken(ctx, p.ID); err != nil {
			return err
		}
	}
	if err := s.attrs.DeleteAttribute(ctx, userID, PagesAttribute); err != nil {
		return fmt.Errorf("delete cached pages: %w", err)
	}
	if err := s.options.DeleteOption(ctx, SelectedPagesOption); err != nil {
		return fmt.Errorf("delete selected pages: %w", err)
	}

	s.logger.Info("facebook account disconnected", "user_id", userID)
	return nil
}

func (s *ConnectionService) cachePages(ctx context.Context, userID int64, pages []model.Page) error {
	raw, err := json.Marshal(pages)
	if err != nil {
		return fmt.Errorf("marshal pages: %w", err)
	}
	if err := s.attrs.SetAttribute(ctx, userID, PagesAttribute, string(raw)); err != nil {
		return fmt.Errorf("cache pages: %w", err)
	}
	return nil
}

func (s *ConnectionService) newState() string {
	state := uuid.NewString()
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, exp := range s.states {
		if !now.Before(exp) {
			delete(s.states, k)
		}
	}
	s.states[state] = now.Add(loginStateTTL)
	return state
}

// consumeState reports whether state is known and unexpired. A state can be
// used once.
func (s *ConnectionService) consumeState(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return s.clock.Now().Before(exp)
}
