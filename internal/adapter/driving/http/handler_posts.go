package httphandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/pagescheduler/internal/application"
)

// scheduledTimeLayouts are accepted for scheduled_time, in order. The
// layout without a zone is what an HTML datetime-local input submits and is
// read as UTC.
var scheduledTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04"}

var errBadScheduledTime = errors.New("scheduled_time must be RFC 3339 or YYYY-MM-DDTHH:MM")

// ListPosts returns every recorded post ordered by scheduled time.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "list posts", err)
		return
	}

	resp := make([]PostResponse, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, toPostResponse(p))
	}

	writeJSON(w, http.StatusOK, resp)
}

// SchedulePost creates a scheduled post. It accepts a JSON body or a
// multipart form carrying optional "image" and "video" files.
func (h *Handler) SchedulePost(w http.ResponseWriter, r *http.Request) {
	req, cleanup, err := h.decodeScheduleRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	post, err := h.posts.Schedule(r.Context(), req)
	if err != nil {
		cleanup()
		writeServiceError(w, h.logger, "schedule post", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPostResponse(*post))
}

// UpdatePost edits a scheduled post.
func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}

	var body UpdatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req := application.UpdateRequest{Message: body.Message, Link: body.Link}
	if body.ScheduledTime != nil {
		at, err := parseScheduledTime(*body.ScheduledTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.ScheduledAt = &at
	}

	post, err := h.posts.Update(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, h.logger, "update post", err)
		return
	}

	writeJSON(w, http.StatusOK, toPostResponse(*post))
}

// DeletePost removes a post from Facebook and from the local record.
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}

	if err := h.posts.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, "delete post", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetFacebookPost returns a post as Facebook reports it.
func (h *Handler) GetFacebookPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.posts.FacebookPost(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "fetch facebook post", err)
		return
	}

	writeJSON(w, http.StatusOK, post)
}

// PreviewPost renders a post as HTML without contacting Facebook.
func (h *Handler) PreviewPost(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	preview, err := h.posts.Preview(req.Message, req.Link)
	if err != nil {
		writeServiceError(w, h.logger, "preview post", err)
		return
	}

	writeJSON(w, http.StatusOK, PreviewResponse{Preview: preview})
}

// decodeScheduleRequest reads a schedule request from JSON or multipart
// form data. Uploaded files are saved under the upload directory; cleanup
// removes them.
func (h *Handler) decodeScheduleRequest(w http.ResponseWriter, r *http.Request) (application.ScheduleRequest, func(), error) {
	var (
		req   application.ScheduleRequest
		body  SchedulePostRequest
		saved []string
	)
	cleanup := func() {
		for _, p := range saved {
			_ = os.Remove(p)
		}
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return req, cleanup, fmt.Errorf("invalid multipart form: %w", err)
		}

		body = SchedulePostRequest{
			PageID:        r.FormValue("page_id"),
			Message:       r.FormValue("message"),
			Link:          r.FormValue("link"),
			ImageURL:      r.FormValue("image_url"),
			ScheduledTime: r.FormValue("scheduled_time"),
		}

		for _, field := range []string{"image", "video"} {
			path, err := h.saveUpload(r, field)
			if err != nil {
				cleanup()
				return req, cleanup, err
			}
			if path == "" {
				continue
			}
			saved = append(saved, path)
			if field == "image" {
				req.ImagePath = path
			} else {
				req.VideoPath = path
			}
		}
	} else if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return req, cleanup, errors.New("invalid JSON body")
	}

	req.PageID = body.PageID
	req.Message = body.Message
	req.Link = body.Link
	req.ImageURL = body.ImageURL

	if strings.TrimSpace(body.ScheduledTime) != "" {
		at, err := parseScheduledTime(body.ScheduledTime)
		if err != nil {
			cleanup()
			return req, cleanup, err
		}
		req.ScheduledAt = at
	}

	return req, cleanup, nil
}

// saveUpload copies the multipart file in field to the upload directory
// under a random name. It returns "" when the field is absent.
func (h *Handler) saveUpload(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s upload: %w", field, err)
	}
	defer file.Close()

	if err := os.MkdirAll(h.uploadDir, 0o750); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	path := filepath.Join(h.uploadDir, uuid.NewString()+uploadExt(header))
	if err := writeUpload(path, file); err != nil {
		return "", fmt.Errorf("save %s upload: %w", field, err)
	}
	return path, nil
}

func writeUpload(path string, src multipart.File) error {
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return err
	}
	return dst.Close()
}

// uploadExt keeps a short alphanumeric extension from the client file name.
func uploadExt(header *multipart.FileHeader) string {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}

func parseScheduledTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range scheduledTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errBadScheduledTime
}

// postID parses the {id} path parameter. It writes a 400 response and
// returns false when the id is not a positive integer.
func postID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return 0, false
	}
	return id, true
}
