package model

// AppCredentials identify the Facebook app used for OAuth exchanges.
type AppCredentials struct {
	AppID     string
	AppSecret string
}

// Configured returns true when both the app id and secret are set.
func (a AppCredentials) Configured() bool {
	return a.AppID != "" && a.AppSecret != ""
}

// TokenGrant is a successful response from the OAuth token endpoint.
// ExpiresIn is zero when the endpoint omitted it.
type TokenGrant struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
}

// Identity is the result of a `me` lookup. Email is only present when the
// token carries the email permission.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Page is a Facebook Page the connected user manages.
type Page struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category,omitempty"`
	PictureURL  string   `json:"picture_url,omitempty"`
	FanCount    int64    `json:"fan_count,omitempty"`
	Tasks       []string `json:"tasks,omitempty"`
	AccessToken string   `json:"-"`
}

// InsightMetric is one metric series returned by the page insights endpoint.
type InsightMetric struct {
	Name        string         `json:"name"`
	Period      string         `json:"period"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Values      []InsightValue `json:"values"`
}

// InsightValue is a single data point of an insight metric.
type InsightValue struct {
	Value   any    `json:"value"`
	EndTime string `json:"end_time,omitempty"`
}
