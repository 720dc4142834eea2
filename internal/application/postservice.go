package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"html/template"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
	"github.com/ericfisherdev/pagescheduler/internal/domain/port/driven"
	"github.com/ericfisherdev/pagescheduler/internal/logutil"
	"github.com/ericfisherdev/pagescheduler/internal/metrics"
)

// DefaultInsightMetrics are requested when Insights is called without metrics.
var DefaultInsightMetrics = []string{
	"page_impressions",
	"page_reach",
	"page_engaged_users",
	"page_post_engagements",
}

// DefaultInsightPeriod is used when Insights is called without a period.
const DefaultInsightPeriod = "day"

// ScheduleRequest describes a post to schedule on a page.
type ScheduleRequest struct {
	PageID      string
	Message     string
	Link        string
	ImagePath   string
	ImageURL    string
	VideoPath   string
	ScheduledAt time.Time
}

// UpdateRequest carries the optional changes to a scheduled post.
type UpdateRequest struct {
	Message     *string
	Link        *string
	ScheduledAt *time.Time
}

// PostService schedules, edits and removes page posts on Facebook and keeps
// a local record of them.
type PostService struct {
	graph  driven.GraphClient
	store  *CredentialStore
	posts  driven.PostStore
	clock  clockwork.Clock
	logger *slog.Logger

	strict   *bluemonday.Policy
	ugc      *bluemonday.Policy
	markdown goldmark.Markdown
}

// NewPostService creates a PostService with all required dependencies.
func NewPostService(
	graph driven.GraphClient,
	store *CredentialStore,
	posts driven.PostStore,
	clock clockwork.Clock,
	logger *slog.Logger,
) *PostService {
	return &PostService{
		graph:  graph,
		store:  store,
		posts:  posts,
		clock:  clock,
		logger: logutil.NoopIfNil(logger),
		strict: bluemonday.StrictPolicy(),
		ugc:    bluemonday.UGCPolicy(),
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.Linkify),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
	}
}

// Schedule creates the post on Facebook, unpublished, for publication at
// req.ScheduledAt and records it. A post Facebook rejects is recorded with
// status failed and the error is returned.
func (s *PostService) Schedule(ctx context.Context, req ScheduleRequest) (*model.ScheduledPost, error) {
	req.PageID = strings.TrimSpace(req.PageID)
	req.Message = s.sanitizeMessage(req.Message)

	switch {
	case req.PageID == "":
		return nil, fmt.Errorf("%w: page_id is required", model.ErrInvalidInput)
	case req.Message == "":
		return nil, fmt.Errorf("%w: message is required", model.ErrInvalidInput)
	case req.ScheduledAt.IsZero():
		return nil, fmt.Errorf("%w: scheduled_time is required", model.ErrInvalidInput)
	case !req.ScheduledAt.After(s.clock.Now()):
		return nil, fmt.Errorf("%w: scheduled time must be in the future", model.ErrInvalidInput)
	}

	link, err := sanitizeLink(req.Link)
	if err != nil {
		return nil, err
	}
	for _, path := range []string{req.ImagePath, req.VideoPath} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: media file %s: %v", model.ErrInvalidInput, path, err)
		}
	}

	cred, err := s.store.GetPageToken(ctx, req.PageID)
	if err != nil {
		return nil, err
	}

	post := model.ScheduledPost{
		PageID:      req.PageID,
		Message:     req.Message,
		Link:        link,
		ImagePath:   req.ImagePath,
		ImageURL:    req.ImageURL,
		VideoPath:   req.VideoPath,
		ScheduledAt: req.ScheduledAt.UTC().Truncate(time.Second),
		Status:      model.PostStatusScheduled,
	}
	content := post.Content()

	fbID, createErr := s.graph.CreatePost(ctx, req.PageID, cred.AccessToken, content)
	metrics.PostsScheduledTotal.WithLabelValues(string(content.Endpoint()), metrics.Outcome(createErr)).Inc()
	if createErr != nil {
		// Uploaded media is not kept for posts Facebook rejected.
		post.Status = model.PostStatusFailed
		post.ImagePath = ""
		post.VideoPath = ""
		if _, err := s.posts.Create(ctx, post); err != nil {
			s.logger.Error("failed to record failed post", "page_id", req.PageID, "error", err)
		}
		s.logger.Error("failed to schedule post", "page_id", req.PageID, "error", createErr)
		return nil, fmt.Errorf("schedule post: %w", createErr)
	}

	post.FacebookPostID = fbID
	created, err := s.posts.Create(ctx, post)
	if err != nil {
		return nil, err
	}

	s.logger.Info("post scheduled",
		"id", created.ID,
		"page_id", created.PageID,
		"facebook_post_id", fbID,
		"scheduled_at", created.ScheduledAt,
	)
	return &created, nil
}

// Update applies req to a scheduled post. Message and time changes are
// pushed to Facebook; links cannot be edited there and are only stored.
func (s *PostService) Update(ctx context.Context, id int64, req UpdateRequest) (*model.ScheduledPost, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var remote model.PostUpdate
	if req.Message != nil {
		msg := s.sanitizeMessage(*req.Message)
		post.Message = msg
		remote.Message = &msg
	}
	if req.Link != nil {
		link, err := sanitizeLink(*req.Link)
		if err != nil {
			return nil, err
		}
		post.Link = link
	}
	if req.ScheduledAt != nil {
		if !req.ScheduledAt.After(s.clock.Now()) {
			return nil, fmt.Errorf("%w: scheduled time must be in the future", model.ErrInvalidInput)
		}
		at := req.ScheduledAt.UTC().Truncate(time.Second)
		post.ScheduledAt = at
		remote.ScheduledAt = &at
	}

	if post.FacebookPostID != "" && (remote.Message != nil || remote.ScheduledAt != nil) {
		cred, err := s.postToken(ctx, post.FacebookPostID)
		if err != nil {
			return nil, err
		}
		if err := s.graph.UpdatePost(ctx, post.FacebookPostID, cred.AccessToken, remote); err != nil {
			s.logger.Error("failed to update post", "id", id, "facebook_post_id", post.FacebookPostID, "error", err)
			return nil, fmt.Errorf("update post %d: %w", id, err)
		}
	}

	if err := s.posts.Update(ctx, *post); err != nil {
		return nil, err
	}

	s.logger.Info("post updated", "id", id)
	return s.posts.GetByID(ctx, id)
}

// Delete removes the post from Facebook, when it was created there, and
// then deletes the local record.
func (s *PostService) Delete(ctx context.Context, id int64) error {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if post.FacebookPostID != "" {
		cred, err := s.postToken(ctx, post.FacebookPostID)
		if err != nil {
			return err
		}
		if err := s.graph.DeletePost(ctx, post.FacebookPostID, cred.AccessToken); err != nil {
			s.logger.Error("failed to delete post", "id", id, "facebook_post_id", post.FacebookPostID, "error", err)
			return fmt.Errorf("delete post %d: %w", id, err)
		}
	}

	if err := s.posts.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("post deleted", "id", id)
	return nil
}

// List returns all recorded posts, soonest first.
func (s *PostService) List(ctx context.Context) ([]model.ScheduledPost, error) {
	return s.posts.ListAll(ctx)
}

// FacebookPost fetches a post from the Graph API using its page's token.
func (s *PostService) FacebookPost(ctx context.Context, facebookPostID string) (*model.GraphPost, error) {
	cred, err := s.postToken(ctx, facebookPostID)
	if err != nil {
		return nil, err
	}
	return s.graph.GetPost(ctx, facebookPostID, cred.AccessToken)
}

// Insights returns page insights. Empty metrics and period select the defaults.
func (s *PostService) Insights(ctx context.Context, pageID string, metricNames []string, period string) ([]model.InsightMetric, error) {
	if pageID == "" {
		return nil, fmt.Errorf("%w: page_id is required", model.ErrInvalidInput)
	}
	if len(metricNames) == 0 {
		metricNames = DefaultInsightMetrics
	}
	if period == "" {
		period = DefaultInsightPeriod
	}

	cred, err := s.store.GetPageToken(ctx, pageID)
	if err != nil {
		return nil, err
	}

	insights, err := s.graph.PageInsights(ctx, pageID, cred.AccessToken, metricNames, period)
	if err != nil {
		return nil, fmt.Errorf("page insights: %w", err)
	}
	return insights, nil
}

var previewTemplate = template.Must(template.New("preview").Parse(`<div class="fps-post-preview">
<div class="fps-post-header"><div class="fps-page-name">Your Facebook Page</div><div class="fps-post-time">Scheduled post</div></div>
{{- if .Body}}
<div class="fps-post-content">{{.Body}}</div>
{{- end}}
{{- if .Link}}
<div class="fps-post-link"><div class="fps-link-title">{{.Host}}</div><div class="fps-link-url">{{.Link}}</div></div>
{{- end}}
<div class="fps-post-actions"><span>Like</span><span>Comment</span><span>Share</span></div>
</div>`))

// Preview renders an HTML approximation of how the post will look.
func (s *PostService) Preview(message, link string) (string, error) {
	message = s.sanitizeMessage(message)
	link, err := sanitizeLink(link)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	if message != "" {
		if err := s.markdown.Convert([]byte(message), &body); err != nil {
			return "", fmt.Errorf("render preview: %w", err)
		}
	}

	data := struct {
		Body template.HTML
		Link string
		Host string
	}{
		Body: template.HTML(s.ugc.Sanitize(body.String())), //nolint:gosec // sanitized by bluemonday
		Link: link,
	}
	if link != "" {
		if u, err := url.Parse(link); err == nil {
			data.Host = u.Host
		}
	}

	var out bytes.Buffer
	if err := previewTemplate.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render preview: %w", err)
	}
	return out.String(), nil
}

// postToken finds the page token for a Facebook post id. The stored post
// record is consulted first; otherwise the page id is taken to be the part
// of the post id before the first underscore.
func (s *PostService) postToken(ctx context.Context, facebookPostID string) (*model.Credential, error) {
	pageID, err := s.posts.PageIDForFacebookPost(ctx, facebookPostID)
	if err != nil {
		return nil, err
	}
	if pageID == "" {
		pageID = PageIDFromPostID(facebookPostID)
	}
	if pageID == "" {
		return nil, fmt.Errorf("facebook post %s: %w: page unknown", facebookPostID, model.ErrCredentialAbsent)
	}
	return s.store.GetPageToken(ctx, pageID)
}

// PageIDFromPostID returns the page part of a "pageid_postid" composite
// Facebook post id, or "" when the id has no underscore.
func PageIDFromPostID(facebookPostID string) string {
	pageID, _, ok := strings.Cut(facebookPostID, "_")
	if !ok {
		return ""
	}
	return pageID
}

// sanitizeMessage strips markup from a post message, keeping its text.
func (s *PostService) sanitizeMessage(message string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(message)))
}

func sanitizeLink(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", nil
	}

	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: link must be an absolute http(s) url", model.ErrInvalidInput)
	}
	return u.String(), nil
}

// IsRemoteError reports whether err came from the Graph API or the network.
func IsRemoteError(err error) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) || errors.Is(err, model.ErrTransport) || errors.Is(err, model.ErrMalformedResponse)
}
