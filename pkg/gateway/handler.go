// Package gateway is the HTTP surface of the proxy: the two auth
// boundaries (admin session tokens and the external static API key) and
// the handlers that consult the cache, the credential registry and the
// upstream client.
package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/hfgate/hfgate/pkg/hub"
	"github.com/hfgate/hfgate/pkg/metrics"
	"github.com/hfgate/hfgate/pkg/registry"
	"github.com/hfgate/hfgate/pkg/session"
	"github.com/hfgate/hfgate/pkg/spaces"
)

// Upstream is the slice of the hub client the handlers use.
type Upstream interface {
	SpaceInfo(ctx context.Context, repoID, token string) (*hub.SpaceDetail, error)
	ListSpaces(ctx context.Context, author, token string) ([]hub.SpaceRef, error)
	Restart(ctx context.Context, repoID, token string, factory bool) error
	WhoAmI(ctx context.Context, token string) (*hub.Identity, error)
	LiveMetrics(ctx context.Context, username, instanceID, token string) (io.ReadCloser, error)
}

// Refresher triggers an inventory rebuild; implemented by
// spaces.Aggregator.
type Refresher interface {
	Refresh(ctx context.Context) ([]spaces.Space, error)
}

// Config carries the gateway's own settings.
type Config struct {
	AdminUsername string
	// AdminPassword is either plaintext or a bcrypt hash.
	AdminPassword string
	// APIKey is the shared static secret for the /api/v1 family.
	APIKey string
	// StaticDir, when set, is served for unmatched GET requests.
	StaticDir string
}

// Handler is the gateway HTTP handler.
type Handler struct {
	mux *http.ServeMux
	cfg Config

	sessions   *session.Store
	registry   *registry.Registry
	cache      *spaces.Cache
	aggregator Refresher
	upstream   Upstream
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Deps bundles the collaborators a Handler needs.
type Deps struct {
	Sessions   *session.Store
	Registry   *registry.Registry
	Cache      *spaces.Cache
	Aggregator Refresher
	Upstream   Upstream
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// NewHandler creates the gateway handler and registers all routes.
func NewHandler(cfg Config, deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		mux:        http.NewServeMux(),
		cfg:        cfg,
		sessions:   deps.Sessions,
		registry:   deps.Registry,
		cache:      deps.Cache,
		aggregator: deps.Aggregator,
		upstream:   deps.Upstream,
		metrics:    deps.Metrics,
		logger:     logger.With("component", "gateway"),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logRequests(h.mux).ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	// Admin UI auth endpoints.
	h.mux.HandleFunc("GET /api/config", h.handleConfig)
	h.mux.HandleFunc("POST /api/login", h.handleLogin)
	h.mux.HandleFunc("POST /api/verify-token", h.handleVerifyToken)
	h.mux.HandleFunc("POST /api/logout", h.handleLogout)

	// Aggregated inventory and session-guarded control actions.
	h.mux.HandleFunc("GET /api/proxy/spaces", h.handleListSpaces)
	h.mux.Handle("POST /api/proxy/restart/{repoId...}",
		h.requireSession(http.HandlerFunc(h.handleRestart)))
	h.mux.Handle("POST /api/proxy/rebuild/{repoId...}",
		h.requireSession(http.HandlerFunc(h.handleRebuild)))

	// Live-metrics SSE passthrough, gated on cached state.
	h.mux.HandleFunc("GET /api/proxy/live-metrics/{username}/{instanceId}", h.handleLiveMetrics)

	// External per-token API, guarded by the static key.
	h.mux.Handle("GET /api/v1/info/{token}",
		h.requireAPIKey(http.HandlerFunc(h.handleExternalList)))
	h.mux.Handle("GET /api/v1/info/{token}/{spaceId...}",
		h.requireAPIKey(http.HandlerFunc(h.handleExternalInfo)))
	h.mux.Handle("POST /api/v1/action/{token}/{rest...}",
		h.requireAPIKey(http.HandlerFunc(h.handleExternalAction)))

	if h.cfg.StaticDir != "" {
		h.mux.Handle("GET /", http.FileServer(http.Dir(h.cfg.StaticDir)))
	}
}
