package facebook

import (
	"context"
	"net/url"
	"strings"

	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
)

const pageFields = "id,name,access_token,category,picture,fan_count,tasks"

type pageJSON struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	AccessToken string   `json:"access_token"`
	Category    string   `json:"category"`
	FanCount    int64    `json:"fan_count"`
	Tasks       []string `json:"tasks"`
	Picture     struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

// FetchPages lists the pages the user manages, each with its page token.
// Only the first result page is read.
func (c *Client) FetchPages(ctx context.Context, userToken string) ([]model.Page, error) {
	params := url.Values{}
	params.Set("access_token", userToken)
	params.Set("fields", pageFields)

	var resp struct {
		Data []pageJSON `json:"data"`
	}
	if err := c.get(ctx, "fetch_pages", "me/accounts", params, requestTimeout, &resp); err != nil {
		return nil, err
	}

	pages := make([]model.Page, 0, len(resp.Data))
	for _, p := range resp.Data {
		pages = append(pages, model.Page{
			ID:          p.ID,
			Name:        p.Name,
			Category:    p.Category,
			PictureURL:  p.Picture.Data.URL,
			FanCount:    p.FanCount,
			Tasks:       p.Tasks,
			AccessToken: p.AccessToken,
		})
	}
	return pages, nil
}

// PageInsights returns the requested metrics for the page.
func (c *Client) PageInsights(ctx context.Context, pageID, pageToken string, metricNames []string, period string) ([]model.InsightMetric, error) {
	params := url.Values{}
	params.Set("access_token", pageToken)
	params.Set("metric", strings.Join(metricNames, ","))
	params.Set("period", period)

	var resp struct {
		Data []model.InsightMetric `json:"data"`
	}
	if err := c.get(ctx, "page_insights", url.PathEscape(pageID)+"/insights", params, requestTimeout, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return []model.InsightMetric{}, nil
	}
	return resp.Data, nil
}
