package facebook

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
)

const postFields = "id,message,created_time,scheduled_publish_time,is_published,from,permalink_url"

// CreatePost creates a page post through the edge content selects. A
// non-zero ScheduledAt creates it unpublished, scheduled for that time.
// File-bearing posts are uploaded as multipart with a longer deadline.
// Returns the new post id.
func (c *Client) CreatePost(ctx context.Context, pageID, pageToken string, content model.PostContent) (string, error) {
	endpoint := content.Endpoint()
	params := createParams(pageToken, content)
	path := url.PathEscape(pageID) + "/" + string(endpoint)
	op := "create_post_" + string(endpoint)

	var resp struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}

	var err error
	if file := mediaFile(content); file != "" {
		err = c.upload(ctx, op, path, params, file, &resp)
	} else {
		err = c.postForm(ctx, op, path, params, requestTimeout, &resp)
	}
	if err != nil {
		return "", err
	}

	// Photo uploads return both the photo id and the feed post id.
	if resp.PostID != "" {
		return resp.PostID, nil
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%s: %w: no id in response", op, model.ErrMalformedResponse)
	}
	return resp.ID, nil
}

func createParams(pageToken string, content model.PostContent) url.Values {
	params := url.Values{}
	params.Set("access_token", pageToken)

	if content.Link != "" {
		params.Set("link", content.Link)
	}
	if !content.ScheduledAt.IsZero() {
		params.Set("published", "false")
		params.Set("scheduled_publish_time", strconv.FormatInt(content.ScheduledAt.Unix(), 10))
	}

	messageKey := "message"
	switch content.Endpoint() {
	case model.PostEndpointPhotos:
		messageKey = "caption"
		if content.ImagePath == "" {
			params.Set("url", content.ImageURL)
		}
	case model.PostEndpointVideos:
		messageKey = "description"
	}
	if content.Message != "" {
		params.Set(messageKey, content.Message)
	}

	return params
}

func mediaFile(content model.PostContent) string {
	switch content.Endpoint() {
	case model.PostEndpointVideos:
		return content.VideoPath
	case model.PostEndpointPhotos:
		return content.ImagePath
	default:
		return ""
	}
}

// upload streams params plus the file as the multipart "source" field.
func (c *Client) upload(ctx context.Context, op, path string, params url.Values, file string, out any) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("%s: opening media: %w", op, err)
	}
	defer func() { _ = f.Close() }()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeMultipart(mw, params, file, f))
	}()

	err = c.do(ctx, op, http.MethodPost, c.baseURL+path, pr, mw.FormDataContentType(), uploadTimeout, out)
	_ = pr.Close()
	return err
}

func writeMultipart(mw *multipart.Writer, params url.Values, file string, r io.Reader) error {
	for key, values := range params {
		for _, v := range values {
			if err := mw.WriteField(key, v); err != nil {
				return err
			}
		}
	}

	part, err := mw.CreateFormFile("source", filepath.Base(file))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	return mw.Close()
}

// UpdatePost changes the message and/or scheduled time of a post.
func (c *Client) UpdatePost(ctx context.Context, postID, pageToken string, update model.PostUpdate) error {
	params := url.Values{}
	params.Set("access_token", pageToken)
	if update.Message != nil {
		params.Set("message", *update.Message)
	}
	if update.ScheduledAt != nil {
		params.Set("scheduled_publish_time", strconv.FormatInt(update.ScheduledAt.Unix(), 10))
	}

	return c.postForm(ctx, "update_post", url.PathEscape(postID), params, requestTimeout, nil)
}

// DeletePost deletes a post. Facebook must answer {"success": true}.
func (c *Client) DeletePost(ctx context.Context, postID, pageToken string) error {
	params := url.Values{}
	params.Set("access_token", pageToken)

	var resp struct {
		Success bool `json:"success"`
	}
	endpoint := c.baseURL + url.PathEscape(postID) + "?" + params.Encode()
	if err := c.do(ctx, "delete_post", http.MethodDelete, endpoint, nil, "", requestTimeout, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("delete_post: %w: success was not true", model.ErrMalformedResponse)
	}
	return nil
}

// GetPost fetches a post's current state.
func (c *Client) GetPost(ctx context.Context, postID, pageToken string) (*model.GraphPost, error) {
	params := url.Values{}
	params.Set("access_token", pageToken)
	params.Set("fields", postFields)

	var post model.GraphPost
	if err := c.get(ctx, "get_post", url.PathEscape(postID), params, identityTimeout, &post); err != nil {
		return nil, err
	}
	return &post, nil
}
