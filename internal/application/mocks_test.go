package application_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/pagescheduler/internal/adapter/driven/tokencodec"
	"github.com/ericfisherdev/pagescheduler/internal/application"
	"github.com/ericfisherdev/pagescheduler/internal/domain/model"
)

var testKey = []byte("0123456789abcdefghijABCDEFGHIJkl")

// --- In-memory port implementations ---

type memAttrs struct {
	mu     sync.Mutex
	values map[int64]map[string]string
}

func newMemAttrs() *memAttrs {
	return &memAttrs{values: make(map[int64]map[string]string)}
}

func (m *memAttrs) GetAttribute(_ context.Context, userID int64, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[userID][key], nil
}

func (m *memAttrs) SetAttribute(_ context.Context, userID int64, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[userID] == nil {
		m.values[userID] = make(map[string]string)
	}
	m.values[userID][key] = value
	return nil
}

func (m *memAttrs) DeleteAttribute(_ context.Context, userID int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values[userID], key)
	return nil
}

type memOptions struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemOptions() *memOptions {
	return &memOptions{values: make(map[string]string)}
}

func (m *memOptions) GetOption(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[name], nil
}

func (m *memOptions) SetOption(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
	return nil
}

func (m *memOptions) AddOption(_ context.Context, name, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[name]; ok {
		return false, nil
	}
	m.values[name] = value
	return true, nil
}

func (m *memOptions) DeleteOption(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, name)
	return nil
}

// memBackend stands in for the page token table.
type memBackend struct {
	mu   sync.Mutex
	rows map[string]string
	puts int
}

func newMemBackend() *memBackend {
	return &memBackend{rows: make(map[string]string)}
}

func (m *memBackend) Put(_ context.Context, subjectID, blob string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[subjectID] = blob
	m.puts++
	return nil
}

func (m *memBackend) Get(_ context.Context, subjectID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[subjectID], nil
}

func (m *memBackend) Delete(_ context.Context, subjectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, subjectID)
	return nil
}

func (m *memBackend) List(_ context.Context) ([]model.StoredCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]model.StoredCredential, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.StoredCredential{SubjectID: id, Blob: m.rows[id]})
	}
	return out, nil
}

func (m *memBackend) blob(subjectID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[subjectID]
}

type stubExchanger struct {
	mu            sync.Mutex
	exchangeCalls []string
	exchangeToken func(shortLivedToken string) (*model.TokenGrant, error)
	exchangeCode  func(code, redirectURI string) (*model.TokenGrant, error)
	me            func(accessToken string, fields []string) (*model.Identity, error)
	lastMeFields  []string
	lastAppCreds  model.AppCredentials
	codeExchanges int
}

func (s *stubExchanger) ExchangeToken(_ context.Context, app model.AppCredentials, shortLivedToken string) (*model.TokenGrant, error) {
	s.mu.Lock()
	s.exchangeCalls = append(s.exchangeCalls, shortLivedToken)
	s.lastAppCreds = app
	s.mu.Unlock()
	return s.exchangeToken(shortLivedToken)
}

func (s *stubExchanger) ExchangeCode(_ context.Context, _ model.AppCredentials, code, redirectURI string) (*model.TokenGrant, error) {
	s.mu.Lock()
	s.codeExchanges++
	s.mu.Unlock()
	return s.exchangeCode(code, redirectURI)
}

func (s *stubExchanger) Me(_ context.Context, accessToken string, fields ...string) (*model.Identity, error) {
	s.mu.Lock()
	s.lastMeFields = fields
	s.mu.Unlock()
	if s.me == nil {
		return &model.Identity{ID: "u1", Name: "Test User"}, nil
	}
	return s.me(accessToken, fields)
}

func (s *stubExchanger) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.exchangeCalls...)
}

type stubGraph struct {
	fetchPages   func(userToken string) ([]model.Page, error)
	createPost   func(pageID, pageToken string, content model.PostContent) (string, error)
	updatePost   func(postID, pageToken string, update model.PostUpdate) error
	deletePost   func(postID, pageToken string) error
	getPost      func(postID, pageToken string) (*model.GraphPost, error)
	pageInsights func(pageID, pageToken string, metrics []string, period string) ([]model.InsightMetric, error)
}

func (s *stubGraph) FetchPages(_ context.Context, userToken string) ([]model.Page, error) {
	return s.fetchPages(userToken)
}

func (s *stubGraph) CreatePost(_ context.Context, pageID, pageToken string, content model.PostContent) (string, error) {
	return s.createPost(pageID, pageToken, content)
}

func (s *stubGraph) UpdatePost(_ context.Context, postID, pageToken string, update model.PostUpdate) error {
	return s.updatePost(postID, pageToken, update)
}

func (s *stubGraph) DeletePost(_ context.Context, postID, pageToken string) error {
	return s.deletePost(postID, pageToken)
}

func (s *stubGraph) GetPost(_ context.Context, postID, pageToken string) (*model.GraphPost, error) {
	return s.getPost(postID, pageToken)
}

func (s *stubGraph) PageInsights(_ context.Context, pageID, pageToken string, metrics []string, period string) ([]model.InsightMetric, error) {
	return s.pageInsights(pageID, pageToken, metrics, period)
}

type memPosts struct {
	mu     sync.Mutex
	nextID int64
	posts  map[int64]model.ScheduledPost
}

func newMemPosts() *memPosts {
	return &memPosts{posts: make(map[int64]model.ScheduledPost)}
}

func (m *memPosts) Create(_ context.Context, post model.ScheduledPost) (model.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	post.ID = m.nextID
	post.CreatedAt = time.Now()
	post.UpdatedAt = post.CreatedAt
	m.posts[post.ID] = post
	return post, nil
}

func (m *memPosts) Update(_ context.Context, post model.ScheduledPost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[post.ID]; !ok {
		return model.ErrNotFound
	}
	m.posts[post.ID] = post
	return nil
}

func (m *memPosts) GetByID(_ context.Context, id int64) (*model.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &post, nil
}

func (m *memPosts) PageIDForFacebookPost(_ context.Context, facebookPostID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.posts {
		if p.FacebookPostID == facebookPostID {
			return p.PageID, nil
		}
	}
	return "", nil
}

func (m *memPosts) ListAll(_ context.Context) ([]model.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ScheduledPost, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (m *memPosts) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return model.ErrNotFound
	}
	delete(m.posts, id)
	return nil
}

// --- Fixtures ---

type fixture struct {
	clock   *clockwork.FakeClock
	attrs   *memAttrs
	options *memOptions
	pages   *memBackend
	store   *application.CredentialStore
	app     *application.AppCredentialSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	codec, err := tokencodec.New(testKey)
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC))
	f := &fixture{
		clock:   clock,
		attrs:   newMemAttrs(),
		options: newMemOptions(),
		pages:   newMemBackend(),
	}
	f.store = application.NewCredentialStore(codec, f.attrs, f.pages, clock, nil)
	f.app = application.NewAppCredentialSource(f.options, model.AppCredentials{AppID: "app-123", AppSecret: "secret-456"}, nil)
	return f
}

func (f *fixture) now() int64 {
	return f.clock.Now().Unix()
}
