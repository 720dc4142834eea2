package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/pagescheduler/internal/application"
	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps an application error onto a status code. Remote
// API messages are passed through; internal errors are logged and hidden.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, action string, err error) {
	var apiErr *model.APIError

	switch {
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, application.ErrInvalidState):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrCredentialExpired):
		writeError(w, http.StatusConflict, "facebook token expired, reconnect the account")
	case errors.Is(err, model.ErrCredentialAbsent):
		writeError(w, http.StatusConflict, "no facebook token found, connect the account first")
	case errors.Is(err, model.ErrConfigurationMissing):
		writeError(w, http.StatusPreconditionFailed, "facebook app id and app secret are not configured")
	case errors.As(err, &apiErr):
		logger.Warn(action+" rejected by facebook", "error", apiErr.Message, "code", apiErr.Code)
		writeError(w, http.StatusBadGateway, apiErr.Message)
	case errors.Is(err, model.ErrTransport), errors.Is(err, model.ErrMalformedResponse):
		logger.Error(action+" failed talking to facebook", "error", err)
		writeError(w, http.StatusBadGateway, "facebook request failed")
	default:
		logger.Error(action+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// messageResponse is returned by actions without a result body.
type messageResponse struct {
	Message string `json:"message"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status       string `json:"status"`
	Time         string `json:"time"`
	CipherMode   string `json:"cipher_mode"`
	Confidential bool   `json:"confidential"`
}

// AppSettingsRequest is the JSON body for the app settings endpoint.
type AppSettingsRequest struct {
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
}

// LoginURLResponse carries the Facebook OAuth dialog URL.
type LoginURLResponse struct {
	URL string `json:"url"`
}

// PostResponse is the JSON representation of a scheduled post.
type PostResponse struct {
	ID             int64  `json:"id"`
	PageID         string `json:"page_id"`
	Message        string `json:"message"`
	Link           string `json:"link,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	HasImageFile   bool   `json:"has_image_file"`
	HasVideoFile   bool   `json:"has_video_file"`
	ScheduledAt    string `json:"scheduled_at"`
	FacebookPostID string `json:"facebook_post_id,omitempty"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// SchedulePostRequest is the JSON body for creating a post. Multipart forms
// use the same field names plus "image" and "video" file parts.
type SchedulePostRequest struct {
	PageID        string `json:"page_id"`
	Message       string `json:"message"`
	Link          string `json:"link"`
	ImageURL      string `json:"image_url"`
	ScheduledTime string `json:"scheduled_time"`
}

// UpdatePostRequest is the JSON body for editing a post. Absent fields are
// left unchanged.
type UpdatePostRequest struct {
	Message       *string `json:"message"`
	Link          *string `json:"link"`
	ScheduledTime *string `json:"scheduled_time"`
}

// PreviewRequest is the JSON body for the preview endpoint.
type PreviewRequest struct {
	Message string `json:"message"`
	Link    string `json:"link"`
}

// PreviewResponse carries rendered preview HTML.
type PreviewResponse struct {
	Preview string `json:"preview"`
}

// PagesResponse wraps a page list with its count.
type PagesResponse struct {
	Count int          `json:"count"`
	Pages []model.Page `json:"pages"`
}

// toPostResponse converts a domain ScheduledPost to its JSON representation.
// Local media paths are not exposed.
func toPostResponse(p model.ScheduledPost) PostResponse {
	return PostResponse{
		ID:             p.ID,
		PageID:         p.PageID,
		Message:        p.Message,
		Link:           p.Link,
		ImageURL:       p.ImageURL,
		HasImageFile:   p.ImagePath != "",
		HasVideoFile:   p.VideoPath != "",
		ScheduledAt:    p.ScheduledAt.UTC().Format(time.RFC3339),
		FacebookPostID: p.FacebookPostID,
		Status:         string(p.Status),
		CreatedAt:      p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toPagesResponse(pages []model.Page) PagesResponse {
	if pages == nil {
		pages = []model.Page{}
	}
	return PagesResponse{Count: len(pages), Pages: pages}
}
