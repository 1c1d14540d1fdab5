// Package hub is the client for the HuggingFace REST API. It wraps the
// handful of endpoints the gateway proxies (space listing, space detail,
// restart, identity lookup, live-metrics streaming) and normalizes
// upstream failures into *APIError values.
//
// Every call takes an optional bearer token; an empty token means an
// unauthenticated request, which only works for public data. Calls are
// not retried: the aggregation layer already tolerates per-call
// failures, and the cache absorbs transient outages.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// defaultTimeout bounds non-streaming API calls.
	defaultTimeout = 30 * time.Second

	// streamHeaderTimeout bounds how long the live-metrics handshake
	// may block before the first response headers arrive.
	streamHeaderTimeout = 10 * time.Second
)

// Client performs authenticated calls against the HuggingFace API.
type Client struct {
	apiBase     string
	metricsBase string

	httpClient *http.Client
	// streamClient has no overall timeout so long-lived SSE bodies are
	// not cut off; only the response-header wait is bounded.
	streamClient *http.Client
}

// NewClient creates a Client for the given API and metrics base URLs.
func NewClient(apiBase, metricsBase string) *Client {
	return &Client{
		apiBase:     apiBase,
		metricsBase: metricsBase,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		streamClient: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: streamHeaderTimeout},
		},
	}
}

// SpaceRef is one entry of a space listing.
type SpaceRef struct {
	ID string `json:"id"`
}

// SpaceDetail is the full metadata for a single space.
type SpaceDetail struct {
	ID           string   `json:"id"`
	Author       string   `json:"author"`
	Private      bool     `json:"private"`
	SDK          string   `json:"sdk"`
	Tags         []string `json:"tags"`
	LastModified string   `json:"lastModified"`
	CreatedAt    string   `json:"createdAt"`
	Runtime      struct {
		Stage string `json:"stage"`
	} `json:"runtime"`
	CardData struct {
		Title string `json:"title"`
		// AppPort arrives as either a number or a string in card data.
		AppPort any `json:"app_port"`
	} `json:"cardData"`
}

// Identity is the response of the whoami endpoint.
type Identity struct {
	Name string `json:"name"`
}

// APIError is a normalized upstream failure.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream %d", e.StatusCode)
}

// ListSpaces lists the spaces owned by author.
func (c *Client) ListSpaces(ctx context.Context, author, token string) ([]SpaceRef, error) {
	var refs []SpaceRef
	u := c.apiBase + "/api/spaces?author=" + url.QueryEscape(author)
	if err := c.getJSON(ctx, u, token, &refs); err != nil {
		return nil, fmt.Errorf("listing spaces for %s: %w", author, err)
	}
	return refs, nil
}

// SpaceInfo fetches the detail for one space ("owner/name" id).
func (c *Client) SpaceInfo(ctx context.Context, repoID, token string) (*SpaceDetail, error) {
	var detail SpaceDetail
	u := c.apiBase + "/api/spaces/" + escapeRepoID(repoID)
	if err := c.getJSON(ctx, u, token, &detail); err != nil {
		return nil, fmt.Errorf("fetching space %s: %w", repoID, err)
	}
	return &detail, nil
}

// Restart restarts a space. When factory is true the runtime is rebuilt
// from scratch (a factory reboot); the upstream endpoint is the same,
// selected by the factory query flag.
func (c *Client) Restart(ctx context.Context, repoID, token string, factory bool) error {
	u := c.apiBase + "/api/spaces/" + escapeRepoID(repoID) + "/restart"
	if factory {
		u += "?factory=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("building restart request: %w", err)
	}
	setAuth(req, token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("restarting space %s: %w", repoID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	return nil
}

// WhoAmI resolves the identity that owns token.
func (c *Client) WhoAmI(ctx context.Context, token string) (*Identity, error) {
	var ident Identity
	if err := c.getJSON(ctx, c.apiBase+"/api/whoami-v2", token, &ident); err != nil {
		return nil, fmt.Errorf("resolving identity: %w", err)
	}
	return &ident, nil
}

// LiveMetrics opens the server-sent-events metrics stream for one space
// instance. The returned body stays open until the caller closes it or
// ctx is cancelled; the initial handshake is bounded by a 10s
// response-header timeout.
func (c *Client) LiveMetrics(ctx context.Context, username, instanceID, token string) (io.ReadCloser, error) {
	u := fmt.Sprintf("%s/v1/%s/%s/live-metrics/sse",
		c.metricsBase, url.PathEscape(username), url.PathEscape(instanceID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building metrics request: %w", err)
	}
	setAuth(req, token)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening metrics stream for %s/%s: %w", username, instanceID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := apiError(resp)
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, url, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	setAuth(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func setAuth(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// apiError reads the response body and builds an *APIError, pulling a
// human message out of the usual JSON error envelopes when present.
func apiError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}

	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error != "" {
			apiErr.Message = envelope.Error
		} else if envelope.Message != "" {
			apiErr.Message = envelope.Message
		}
	}
	return apiErr
}

// escapeRepoID escapes a repo id for use in a URL path. Repo ids are
// "owner/name"; each half is escaped separately so the slash survives.
func escapeRepoID(repoID string) string {
	owner, name, found := strings.Cut(repoID, "/")
	if !found {
		return url.PathEscape(repoID)
	}
	return url.PathEscape(owner) + "/" + url.PathEscape(name)
}
