// Package facebook implements the TokenExchanger and GraphClient ports
// against the Facebook Graph API.
package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
	"github.com/ericfisherdev/pagescheduler/internal/domain/port/driven"
	"github.com/ericfisherdev/pagescheduler/internal/metrics"
)

const (
	// DefaultBaseURL is the versioned Graph API root.
	DefaultBaseURL = "https://graph.facebook.com/v18.0/"

	// DefaultUserAgent identifies this service on every outbound request.
	DefaultUserAgent = "Facebook Post Scheduler v1.0.0"

	identityTimeout = 15 * time.Second
	requestTimeout  = 30 * time.Second
	uploadTimeout   = 60 * time.Second

	maxResponseBytes = 10 << 20
)

// Compile-time interface satisfaction checks.
var (
	_ driven.TokenExchanger = (*Client)(nil)
	_ driven.GraphClient    = (*Client)(nil)
)

// redactedParams are query parameters whose values never appear in errors.
var redactedParams = []string{"access_token", "client_secret", "fb_exchange_token", "code"}

// uncachedOps carry app secrets or hand out tokens and bypass the response
// cache.
var uncachedOps = map[string]bool{
	"exchange_token": true,
	"exchange_code":  true,
	"me":             true,
	"fetch_pages":    true,
}

// Client talks to the Graph API. Every method makes exactly one request,
// bounded by a per-call deadline, and never retries.
type Client struct {
	http      *http.Client
	auth      *http.Client
	baseURL   string
	userAgent string
}

// NewClient creates a Graph API client whose transport caches cacheable GET
// responses in memory (httpcache honors ETag and Cache-Control). Token
// exchange, identity and page listing calls use a separate uncached client.
func NewClient(baseURL, userAgent string) (*Client, error) {
	c, err := NewClientWithHTTPClient(&http.Client{}, baseURL, userAgent)
	if err != nil {
		return nil, err
	}
	c.http = &http.Client{Transport: httpcache.NewMemoryCacheTransport()}
	return c, nil
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base
// URL. Empty values select the defaults. Tests use it to target an httptest
// server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, userAgent string) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parsing base URL %q: invalid absolute url", baseURL)
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &Client{http: httpClient, auth: httpClient, baseURL: baseURL, userAgent: userAgent}, nil
}

// graphError is the error object of a failed Graph API response.
type graphError struct {
	Error *struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

// get issues a GET for path with params and decodes the response into out.
func (c *Client) get(ctx context.Context, op, path string, params url.Values, timeout time.Duration, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	return c.do(ctx, op, http.MethodGet, endpoint, nil, "", timeout, out)
}

// postForm issues a form-encoded POST.
func (c *Client) postForm(ctx context.Context, op, path string, params url.Values, timeout time.Duration, out any) error {
	return c.do(ctx, op, http.MethodPost, c.baseURL+path,
		strings.NewReader(params.Encode()), "application/x-www-form-urlencoded", timeout, out)
}

func (c *Client) do(
	ctx context.Context,
	op, method, endpoint string,
	body io.Reader,
	contentType string,
	timeout time.Duration,
	out any,
) (err error) {
	start := time.Now()
	defer func() {
		metrics.GraphRequestsTotal.WithLabelValues(op, metrics.Outcome(err)).Inc()
		metrics.GraphRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, redactURLError(err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpFor(op).Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, model.ErrTransport, redactURLError(err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: reading response: %w: %w", op, model.ErrTransport, err)
	}

	return decodeResponse(op, resp.StatusCode, raw, out)
}

func (c *Client) httpFor(op string) *http.Client {
	if uncachedOps[op] {
		return c.auth
	}
	return c.http
}

// redactURLError masks credential query parameters in the URL carried by a
// *url.Error. Other errors are returned unchanged.
func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = redactURL(urlErr.URL)
	}
	return err
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[unparseable url]"
	}

	q := u.Query()
	for _, name := range redactedParams {
		if q.Has(name) {
			q.Set(name, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	u.User = nil
	return u.String()
}

// decodeResponse turns a Graph API response into out or an error. A JSON
// error object always wins over the status code.
func decodeResponse(op string, status int, raw []byte, out any) error {
	var ge graphError
	if err := json.Unmarshal(raw, &ge); err != nil {
		if status >= http.StatusBadRequest {
			return fmt.Errorf("%s: %w: unexpected status %d", op, model.ErrTransport, status)
		}
		return fmt.Errorf("%s: %w: %w", op, model.ErrMalformedResponse, err)
	}

	if ge.Error != nil {
		return &model.APIError{
			Message:    ge.Error.Message,
			Type:       ge.Error.Type,
			Code:       ge.Error.Code,
			FBTraceID:  ge.Error.FBTraceID,
			StatusCode: status,
		}
	}

	if status >= http.StatusBadRequest {
		return fmt.Errorf("%s: %w: unexpected status %d", op, model.ErrTransport, status)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: %w: %w", op, model.ErrMalformedResponse, err)
	}
	return nil
}
