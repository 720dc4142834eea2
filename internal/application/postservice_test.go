package application_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/pagescheduler/internal/application"
	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
)

type postFixture struct {
	*fixture
	graph *stubGraph
	posts *memPosts
	svc   *application.PostService
}

func newPostFixture(t *testing.T) *postFixture {
	t.Helper()
	f := newFixture(t)
	require.NoError(t, f.store.StorePageToken(context.Background(), "111", model.Credential{AccessToken: "page-token"}))

	pf := &postFixture{fixture: f, graph: &stubGraph{}, posts: newMemPosts()}
	pf.svc = application.NewPostService(pf.graph, f.store, pf.posts, f.clock, nil)
	return pf
}

func TestSchedule_FeedPost(t *testing.T) {
	pf := newPostFixture(t)
	at := pf.clock.Now().Add(2 * time.Hour)

	var got model.PostContent
	pf.graph.createPost = func(pageID, pageToken string, content model.PostContent) (string, error) {
		assert.Equal(t, "111", pageID)
		assert.Equal(t, "page-token", pageToken)
		got = content
		return "111_999", nil
	}

	post, err := pf.svc.Schedule(context.Background(), application.ScheduleRequest{
		PageID:      "111",
		Message:     "Hello <b>world</b> & friends",
		Link:        "https://example.com/a",
		ScheduledAt: at,
	})
	require.NoError(t, err)
	assert.Equal(t, "111_999", post.FacebookPostID)
	assert.Equal(t, model.PostStatusScheduled, post.Status)
	assert.Equal(t, "Hello world & friends", got.Message)
	assert.Equal(t, model.PostEndpointFeed, got.Endpoint())
	assert.True(t, at.Truncate(time.Second).Equal(got.ScheduledAt))
}

func TestSchedule_Validation(t *testing.T) {
	pf := newPostFixture(t)
	future := pf.clock.Now().Add(time.Hour)

	tests := []struct {
		name string
		req  application.ScheduleRequest
	}{
		{name: "missing page", req: application.ScheduleRequest{Message: "m", ScheduledAt: future}},
		{name: "missing message", req: application.ScheduleRequest{PageID: "111", Message: "<p></p>", ScheduledAt: future}},
		{name: "missing time", req: application.ScheduleRequest{PageID: "111", Message: "m"}},
		{name: "time in past", req: application.ScheduleRequest{PageID: "111", Message: "m", ScheduledAt: pf.clock.Now().Add(-time.Minute)}},
		{name: "time is now", req: application.ScheduleRequest{PageID: "111", Message: "m", ScheduledAt: pf.clock.Now()}},
		{name: "bad link", req: application.ScheduleRequest{PageID: "111", Message: "m", Link: "javascript:alert(1)", ScheduledAt: future}},
		{name: "missing media file", req: application.ScheduleRequest{PageID: "111", Message: "m", ImagePath: "/does/not/exist.png", ScheduledAt: future}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pf.svc.Schedule(context.Background(), tt.req)
			assert.ErrorIs(t, err, model.ErrInvalidInput)
		})
	}
}

func TestSchedule_UnknownPage(t *testing.T) {
	pf := newPostFixture(t)

	_, err := pf.svc.Schedule(context.Background(), application.ScheduleRequest{
		PageID: "222", Message: "m", ScheduledAt: pf.clock.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, model.ErrCredentialAbsent)
}

func TestSchedule_ImageFile(t *testing.T) {
	pf := newPostFixture(t)
	img := filepath.Join(t.TempDir(), "pic.png")
	require.NoError(t, os.WriteFile(img, []byte("png"), 0o600))

	pf.graph.createPost = func(_, _ string, content model.PostContent) (string, error) {
		assert.Equal(t, model.PostEndpointPhotos, content.Endpoint())
		assert.Equal(t, img, content.ImagePath)
		return "photo-id", nil
	}

	post, err := pf.svc.Schedule(context.Background(), application.ScheduleRequest{
		PageID: "111", Message: "caption", ImagePath: img, ScheduledAt: pf.clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "photo-id", post.FacebookPostID)
}

func TestSchedule_RemoteFailureIsRecorded(t *testing.T) {
	pf := newPostFixture(t)
	pf.graph.createPost = func(string, string, model.PostContent) (string, error) {
		return "", &model.APIError{Message: "(#100) scheduled_publish_time out of range"}
	}

	_, err := pf.svc.Schedule(context.Background(), application.ScheduleRequest{
		PageID: "111", Message: "m", ScheduledAt: pf.clock.Now().Add(time.Hour),
	})
	require.Error(t, err)
	assert.True(t, application.IsRemoteError(err))

	posts, err := pf.svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, model.PostStatusFailed, posts[0].Status)
}

func TestSchedule_RemoteFailureDropsMediaPaths(t *testing.T) {
	pf := newPostFixture(t)
	img := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(img, []byte("jpeg"), 0o600))

	var sent model.PostContent
	pf.graph.createPost = func(_ string, _ string, content model.PostContent) (string, error) {
		sent = content
		return "", &model.APIError{Message: "(#324) Requires upload file"}
	}

	_, err := pf.svc.Schedule(context.Background(), application.ScheduleRequest{
		PageID: "111", Message: "m", ImagePath: img, ImageURL: "https://cdn.example.com/a.jpg", ScheduledAt: pf.clock.Now().Add(time.Hour),
	})
	require.Error(t, err)
	assert.Equal(t, img, sent.ImagePath)

	posts, err := pf.svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, model.PostStatusFailed, posts[0].Status)
	assert.Empty(t, posts[0].ImagePath)
	assert.Empty(t, posts[0].VideoPath)
	assert.Equal(t, "https://cdn.example.com/a.jpg", posts[0].ImageURL)
}

func scheduleOne(t *testing.T, pf *postFixture, fbID string) *model.ScheduledPost {
	t.Helper()
	pf.graph.createPost = func(string, string, model.PostContent) (string, error) { return fbID, nil }
	post, err := pf.svc.Schedule(context.Background(), application.ScheduleRequest{
		PageID: "111", Message: "original", ScheduledAt: pf.clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return post
}

func TestUpdate(t *testing.T) {
	pf := newPostFixture(t)
	post := scheduleOne(t, pf, "111_1")
	newAt := pf.clock.Now().Add(3 * time.Hour)
	msg := "edited"
	link := "https://example.com/new"

	var pushed model.PostUpdate
	pf.graph.updatePost = func(postID, pageToken string, update model.PostUpdate) error {
		assert.Equal(t, "111_1", postID)
		assert.Equal(t, "page-token", pageToken)
		pushed = update
		return nil
	}

	updated, err := pf.svc.Update(context.Background(), post.ID, application.UpdateRequest{
		Message: &msg, Link: &link, ScheduledAt: &newAt,
	})
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Message)
	assert.Equal(t, link, updated.Link)
	require.NotNil(t, pushed.Message)
	assert.Equal(t, "edited", *pushed.Message)
	require.NotNil(t, pushed.ScheduledAt)
	assert.True(t, newAt.Truncate(time.Second).Equal(*pushed.ScheduledAt))
}

func TestUpdate_LinkOnlyStaysLocal(t *testing.T) {
	pf := newPostFixture(t)
	post := scheduleOne(t, pf, "111_1")
	link := "https://example.com/other"
	pf.graph.updatePost = func(string, string, model.PostUpdate) error {
		t.Fatal("link changes are not pushed to facebook")
		return nil
	}

	updated, err := pf.svc.Update(context.Background(), post.ID, application.UpdateRequest{Link: &link})
	require.NoError(t, err)
	assert.Equal(t, link, updated.Link)
}

func TestUpdate_PastTimeRejected(t *testing.T) {
	pf := newPostFixture(t)
	post := scheduleOne(t, pf, "111_1")
	past := pf.clock.Now().Add(-time.Hour)

	_, err := pf.svc.Update(context.Background(), post.ID, application.UpdateRequest{ScheduledAt: &past})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestUpdate_NotFound(t *testing.T) {
	pf := newPostFixture(t)
	_, err := pf.svc.Update(context.Background(), 404, application.UpdateRequest{})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDelete(t *testing.T) {
	pf := newPostFixture(t)
	post := scheduleOne(t, pf, "111_1")

	var deleted string
	pf.graph.deletePost = func(postID, _ string) error {
		deleted = postID
		return nil
	}

	require.NoError(t, pf.svc.Delete(context.Background(), post.ID))
	assert.Equal(t, "111_1", deleted)

	_, err := pf.posts.GetByID(context.Background(), post.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDelete_RemoteFailureKeepsRecord(t *testing.T) {
	pf := newPostFixture(t)
	post := scheduleOne(t, pf, "111_1")
	pf.graph.deletePost = func(string, string) error {
		return &model.APIError{Message: "Unsupported delete request."}
	}

	err := pf.svc.Delete(context.Background(), post.ID)
	require.Error(t, err)

	_, err = pf.posts.GetByID(context.Background(), post.ID)
	assert.NoError(t, err)
}

func TestFacebookPost_PageLookup(t *testing.T) {
	pf := newPostFixture(t)
	ctx := context.Background()
	require.NoError(t, pf.store.StorePageToken(ctx, "555", model.Credential{AccessToken: "other-token"}))

	var usedToken string
	pf.graph.getPost = func(postID, pageToken string) (*model.GraphPost, error) {
		usedToken = pageToken
		return &model.GraphPost{ID: postID}, nil
	}

	// Stored mapping wins over the id prefix.
	scheduleOne(t, pf, "555_42")
	_, err := pf.svc.FacebookPost(ctx, "555_42")
	require.NoError(t, err)
	assert.Equal(t, "page-token", usedToken)

	// Without a mapping the prefix before the first underscore is used.
	_, err = pf.svc.FacebookPost(ctx, "555_77")
	require.NoError(t, err)
	assert.Equal(t, "other-token", usedToken)

	_, err = pf.svc.FacebookPost(ctx, "nounderscore")
	assert.ErrorIs(t, err, model.ErrCredentialAbsent)
}

func TestPageIDFromPostID(t *testing.T) {
	assert.Equal(t, "123", application.PageIDFromPostID("123_456"))
	assert.Equal(t, "123", application.PageIDFromPostID("123_456_789"))
	assert.Equal(t, "", application.PageIDFromPostID("123456"))
	assert.Equal(t, "", application.PageIDFromPostID("_456"))
}

func TestInsights_Defaults(t *testing.T) {
	pf := newPostFixture(t)
	pf.graph.pageInsights = func(pageID, pageToken string, metrics []string, period string) ([]model.InsightMetric, error) {
		assert.Equal(t, "111", pageID)
		assert.Equal(t, "page-token", pageToken)
		assert.Equal(t, application.DefaultInsightMetrics, metrics)
		assert.Equal(t, "day", period)
		return []model.InsightMetric{{Name: "page_reach", Period: "day"}}, nil
	}

	got, err := pf.svc.Insights(context.Background(), "111", nil, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "page_reach", got[0].Name)
}

func TestPreview(t *testing.T) {
	pf := newPostFixture(t)

	out, err := pf.svc.Preview("Line one\nLine two <script>alert(1)</script> https://example.com", "https://example.org/path")
	require.NoError(t, err)
	assert.Contains(t, out, "Line one<br")
	assert.Contains(t, out, `href="https://example.com"`)
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "example.org")
	assert.Contains(t, out, "https://example.org/path")

	_, err = pf.svc.Preview("x", "ftp://nope")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}
