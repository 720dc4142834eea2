package model

import "time"

// PostStatus tracks a scheduled post through its lifecycle.
type PostStatus string

const (
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusFailed    PostStatus = "failed"
)

// PostEndpoint is the page edge a post is published through.
type PostEndpoint string

const (
	PostEndpointFeed   PostEndpoint = "feed"
	PostEndpointPhotos PostEndpoint = "photos"
	PostEndpointVideos PostEndpoint = "videos"
)

// PostContent is everything Facebook needs to create a page post.
// At most one media source is used: a video file wins over an image, and an
// image file wins over an image URL.
type PostContent struct {
	Message     string
	Link        string
	ImagePath   string
	ImageURL    string
	VideoPath   string
	ScheduledAt time.Time // Zero publishes immediately.
}

// Endpoint returns the page edge this content is posted to.
func (c PostContent) Endpoint() PostEndpoint {
	switch {
	case c.VideoPath != "":
		return PostEndpointVideos
	case c.ImagePath != "" || c.ImageURL != "":
		return PostEndpointPhotos
	default:
		return PostEndpointFeed
	}
}

// ScheduledPost is a post this service created on Facebook for future
// publication.
type ScheduledPost struct {
	ID             int64
	PageID         string
	Message        string
	Link           string
	ImagePath      string
	ImageURL       string
	VideoPath      string
	ScheduledAt    time.Time
	FacebookPostID string
	Status         PostStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Content returns the publishable content of the post.
func (p ScheduledPost) Content() PostContent {
	return PostContent{
		Message:     p.Message,
		Link:        p.Link,
		ImagePath:   p.ImagePath,
		ImageURL:    p.ImageURL,
		VideoPath:   p.VideoPath,
		ScheduledAt: p.ScheduledAt,
	}
}

// GraphPost is a post as reported by the Graph API.
type GraphPost struct {
	ID                   string `json:"id"`
	Message              string `json:"message,omitempty"`
	CreatedTime          string `json:"created_time,omitempty"`
	ScheduledPublishTime int64  `json:"scheduled_publish_time,omitempty"`
	IsPublished          bool   `json:"is_published"`
	PermalinkURL         string `json:"permalink_url,omitempty"`
	From                 struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"from"`
}

// PostUpdate carries the fields that may change on an already scheduled
// Facebook post. Nil fields are left untouched.
type PostUpdate struct {
	Message     *string
	ScheduledAt *time.Time
}
