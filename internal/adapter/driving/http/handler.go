package httphandler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/pagescheduler/internal/application"
	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
	"github.com/ericfisherdev/pagescheduler/internal/logutil"
)

// UserIDHeader selects the acting user. Requests without it act as the
// configured default user.
const UserIDHeader = "X-FPS-User-ID"

// maxUploadBytes bounds multipart post bodies.
const maxUploadBytes = 256 << 20

// Deps groups the services the Handler dispatches to.
type Deps struct {
	Tokens      *application.TokenManager
	Connections *application.ConnectionService
	Posts       *application.PostService
	App         *application.AppCredentialSource
	Credentials *application.CredentialStore

	// Refresh runs a token refresh sweep. Defaults to Tokens.RefreshAllTokens.
	Refresh func(ctx context.Context) (application.RefreshSummary, error)

	CipherMode    string
	UploadDir     string
	DefaultUserID int64
	Logger        *slog.Logger
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	tokens      *application.TokenManager
	connections *application.ConnectionService
	posts       *application.PostService
	app         *application.AppCredentialSource
	credentials *application.CredentialStore
	refresh     func(ctx context.Context) (application.RefreshSummary, error)

	cipherMode    string
	uploadDir     string
	defaultUserID int64
	logger        *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(d Deps) *Handler {
	refresh := d.Refresh
	if refresh == nil {
		refresh = d.Tokens.RefreshAllTokens
	}

	return &Handler{
		tokens:        d.Tokens,
		connections:   d.Connections,
		posts:         d.Posts,
		app:           d.App,
		credentials:   d.Credentials,
		refresh:       refresh,
		cipherMode:    d.CipherMode,
		uploadDir:     d.UploadDir,
		defaultUserID: d.DefaultUserID,
		logger:        logutil.NoopIfNil(d.Logger),
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("PUT /api/v1/settings/app", h.SaveAppSettings)

	mux.HandleFunc("GET /api/v1/facebook/login-url", h.LoginURL)
	mux.HandleFunc("GET /oauth/callback", h.OAuthCallback)
	mux.HandleFunc("POST /api/v1/facebook/test-connection", h.TestConnection)
	mux.HandleFunc("POST /api/v1/facebook/disconnect", h.Disconnect)

	mux.HandleFunc("GET /api/v1/pages", h.ListPages)
	mux.HandleFunc("POST /api/v1/pages/refresh", h.RefreshPages)
	mux.HandleFunc("DELETE /api/v1/pages/{id}", h.RemovePage)
	mux.HandleFunc("GET /api/v1/pages/{id}/insights", h.PageInsights)

	mux.HandleFunc("GET /api/v1/posts", h.ListPosts)
	mux.HandleFunc("POST /api/v1/posts", h.SchedulePost)
	mux.HandleFunc("POST /api/v1/posts/preview", h.PreviewPost)
	mux.HandleFunc("PATCH /api/v1/posts/{id}", h.UpdatePost)
	mux.HandleFunc("DELETE /api/v1/posts/{id}", h.DeletePost)
	mux.HandleFunc("GET /api/v1/facebook/posts/{id}", h.GetFacebookPost)

	mux.HandleFunc("POST /api/v1/tokens/refresh", h.RefreshTokens)
	mux.HandleFunc("GET /api/v1/tokens/validate", h.ValidateToken)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health returns a simple health check response including whether stored
// tokens are encrypted.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		Time:         time.Now().UTC().Format(time.RFC3339),
		CipherMode:   h.cipherMode,
		Confidential: h.credentials.Confidential(),
	})
}

// SaveAppSettings stores the Facebook app id and secret.
func (h *Handler) SaveAppSettings(w http.ResponseWriter, r *http.Request) {
	var req AppSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := h.app.Save(r.Context(), model.AppCredentials{AppID: req.AppID, AppSecret: req.AppSecret})
	if err != nil {
		writeServiceError(w, h.logger, "save app settings", err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "settings saved"})
}

// LoginURL returns the Facebook OAuth dialog URL. The redirect URI defaults
// to this server's /oauth/callback.
func (h *Handler) LoginURL(w http.ResponseWriter, r *http.Request) {
	redirectURI := r.URL.Query().Get("redirect_uri")
	if redirectURI == "" {
		redirectURI = callbackURL(r)
	}

	var scopes []string
	for _, s := range strings.Split(r.URL.Query().Get("scope"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}

	loginURL, err := h.connections.LoginURL(r.Context(), redirectURI, scopes)
	if err != nil {
		writeServiceError(w, h.logger, "build login url", err)
		return
	}

	writeJSON(w, http.StatusOK, LoginURLResponse{URL: loginURL})
}

// OAuthCallback completes a Facebook login started through LoginURL.
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if reason := q.Get("error"); reason != "" {
		msg := q.Get("error_description")
		if msg == "" {
			msg = reason
		}
		writeError(w, http.StatusBadRequest, "facebook login failed: "+msg)
		return
	}

	code := q.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	result, err := h.connections.CompleteLogin(r.Context(), userID, code, q.Get("state"), callbackURL(r))
	if err != nil {
		writeServiceError(w, h.logger, "complete facebook login", err)
		return
	}

	if result.Pages == nil {
		result.Pages = []model.Page{}
	}
	writeJSON(w, http.StatusOK, result)
}

// TestConnection checks the stored user token against Facebook.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	identity, err := h.connections.TestConnection(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "test connection", err)
		return
	}

	writeJSON(w, http.StatusOK, identity)
}

// Disconnect forgets the user's Facebook token and pages.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.connections.Disconnect(r.Context(), userID); err != nil {
		writeServiceError(w, h.logger, "disconnect", err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "disconnected from facebook"})
}

// ListPages returns the cached pages of the acting user.
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	pages, err := h.connections.Pages(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "list pages", err)
		return
	}

	writeJSON(w, http.StatusOK, toPagesResponse(pages))
}

// RefreshPages re-fetches the acting user's pages from Facebook.
func (h *Handler) RefreshPages(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	pages, err := h.connections.RefreshPages(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "refresh pages", err)
		return
	}

	writeJSON(w, http.StatusOK, toPagesResponse(pages))
}

// RemovePage drops a page from the acting user's cache and deletes its token.
func (h *Handler) RemovePage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.connections.RemovePage(r.Context(), userID, r.PathValue("id")); err != nil {
		writeServiceError(w, h.logger, "remove page", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PageInsights returns insight metrics for a page. The metric query
// parameter is a comma-separated list.
func (h *Handler) PageInsights(w http.ResponseWriter, r *http.Request) {
	var metricNames []string
	for _, m := range strings.Split(r.URL.Query().Get("metric"), ",") {
		if m = strings.TrimSpace(m); m != "" {
			metricNames = append(metricNames, m)
		}
	}

	insights, err := h.posts.Insights(r.Context(), r.PathValue("id"), metricNames, r.URL.Query().Get("period"))
	if err != nil {
		writeServiceError(w, h.logger, "fetch page insights", err)
		return
	}

	if insights == nil {
		insights = []model.InsightMetric{}
	}
	writeJSON(w, http.StatusOK, insights)
}

// RefreshTokens runs a page token refresh sweep and returns its summary.
func (h *Handler) RefreshTokens(w http.ResponseWriter, r *http.Request) {
	summary, err := h.refresh(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "refresh tokens", err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// ValidateToken checks the acting user's stored token against Facebook.
func (h *Handler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	identity, err := h.tokens.ValidateUserToken(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "validate token", err)
		return
	}

	writeJSON(w, http.StatusOK, identity)
}

// userID resolves the acting user from UserIDHeader. It writes a 400
// response and returns false when the header is malformed.
func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get(UserIDHeader)
	if raw == "" {
		return h.defaultUserID, true
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+UserIDHeader+" header")
		return 0, false
	}
	return id, true
}

// callbackURL derives this server's OAuth callback URL from the request,
// honoring X-Forwarded-Proto.
func callbackURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	u := url.URL{Scheme: scheme, Host: r.Host, Path: "/oauth/callback"}
	return u.String()
}
