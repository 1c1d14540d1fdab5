package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hfgate/hfgate/pkg/hub"
	"github.com/hfgate/hfgate/pkg/registry"
	"github.com/hfgate/hfgate/pkg/session"
	"github.com/hfgate/hfgate/pkg/spaces"
)

const (
	testAPIKey   = "static-api-key"
	testPassword = "hunter2"
)

// restartCall records one upstream restart invocation.
type restartCall struct {
	RepoID  string
	Token   string
	Factory bool
}

// mockUpstream is an in-memory Upstream for handler tests.
type mockUpstream struct {
	mu sync.Mutex

	listings map[string][]hub.SpaceRef
	details  map[string]*hub.SpaceDetail
	identity *hub.Identity

	listErr    error
	infoErr    map[string]error
	restartErr error
	whoamiErr  error
	streamErr  error

	streamBody string

	restarts    []restartCall
	calls       atomic.Int64 // all upstream contacts
	streamCount atomic.Int64
}

func (m *mockUpstream) ListSpaces(_ context.Context, author, _ string) ([]hub.SpaceRef, error) {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.listings[author], nil
}

func (m *mockUpstream) SpaceInfo(_ context.Context, repoID, _ string) (*hub.SpaceDetail, error) {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.infoErr[repoID]; err != nil {
		return nil, err
	}
	detail, ok := m.details[repoID]
	if !ok {
		return nil, &hub.APIError{StatusCode: http.StatusNotFound, Message: "not found"}
	}
	return detail, nil
}

func (m *mockUpstream) Restart(_ context.Context, repoID, token string, factory bool) error {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts = append(m.restarts, restartCall{RepoID: repoID, Token: token, Factory: factory})
	return m.restartErr
}

func (m *mockUpstream) WhoAmI(_ context.Context, _ string) (*hub.Identity, error) {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.whoamiErr != nil {
		return nil, m.whoamiErr
	}
	return m.identity, nil
}

func (m *mockUpstream) LiveMetrics(_ context.Context, _, _, _ string) (io.ReadCloser, error) {
	m.calls.Add(1)
	m.streamCount.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streamErr != nil {
		return nil, m.streamErr
	}
	return io.NopCloser(strings.NewReader(m.streamBody)), nil
}

func (m *mockUpstream) restartCalls() []restartCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]restartCall(nil), m.restarts...)
}

// fixture bundles a handler under test with its collaborators.
type fixture struct {
	handler  *Handler
	upstream *mockUpstream
	sessions *session.Store
	cache    *spaces.Cache
	registry *registry.Registry
}

func newFixture(t *testing.T, users string) *fixture {
	t.Helper()

	up := &mockUpstream{
		listings: make(map[string][]hub.SpaceRef),
		details:  make(map[string]*hub.SpaceDetail),
		infoErr:  make(map[string]error),
	}
	reg := registry.Parse(users)
	cache := spaces.NewCache(spaces.DefaultTTL)
	store := session.NewStore(session.DefaultTTL)
	t.Cleanup(func() { _ = store.Close() })

	h := NewHandler(Config{
		AdminUsername: "admin",
		AdminPassword: testPassword,
		APIKey:        testAPIKey,
	}, Deps{
		Sessions:   store,
		Registry:   reg,
		Cache:      cache,
		Aggregator: spaces.NewAggregator(reg, up, cache, nil),
		Upstream:   up,
	})

	return &fixture{handler: h, upstream: up, sessions: store, cache: cache, registry: reg}
}

// do runs a request against the handler and returns the recorder.
func (f *fixture) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// login issues a valid session token through the real login endpoint.
func (f *fixture) login(t *testing.T) string {
	t.Helper()
	rec := f.do(http.MethodPost, "/api/login",
		map[string]string{"username": "admin", "password": testPassword}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func runningDetail(id string) *hub.SpaceDetail {
	d := &hub.SpaceDetail{ID: id}
	d.Author, _, _ = strings.Cut(id, "/")
	d.Runtime.Stage = "RUNNING"
	return d
}
