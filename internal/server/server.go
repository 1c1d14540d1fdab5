// Package server assembles the gateway from its parts and runs the
// HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hfgate/hfgate/pkg/config"
	"github.com/hfgate/hfgate/pkg/gateway"
	"github.com/hfgate/hfgate/pkg/health"
	"github.com/hfgate/hfgate/pkg/hub"
	"github.com/hfgate/hfgate/pkg/metrics"
	"github.com/hfgate/hfgate/pkg/registry"
	"github.com/hfgate/hfgate/pkg/session"
	"github.com/hfgate/hfgate/pkg/spaces"
)

// Version is set at build time.
var Version = "dev"

const shutdownTimeout = 10 * time.Second

// Server is the assembled gateway: the API handler plus the operational
// endpoints, ready to listen.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	sessions *session.Store
	checker  *health.Checker
	handler  http.Handler
}

// New wires the gateway from configuration.
func New(cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	reg := registry.Parse(cfg.Upstream.Users)
	logger.Info("credential registry loaded", "usernames", reg.Len())

	sessions := session.NewStore(cfg.Sessions.TTL)
	sessions.StartSweeper(cfg.Sessions.SweepInterval)

	client := hub.NewClient(cfg.Upstream.APIBase, cfg.Upstream.MetricsBase)
	cache := spaces.NewCache(cfg.Cache.TTL)
	aggregator := spaces.NewAggregator(reg, client, cache, logger)

	m := metrics.New()

	checker := health.NewChecker()
	checker.Register("credentials", func() error {
		if reg.Len() == 0 {
			return errors.New("no upstream credentials configured")
		}
		return nil
	})
	checker.Register("inventory", func() error {
		if cache.IsStale() {
			return fmt.Errorf("inventory stale or never refreshed (%d records)", cache.Len())
		}
		return nil
	})

	api := gateway.NewHandler(gateway.Config{
		AdminUsername: cfg.Admin.Username,
		AdminPassword: cfg.Admin.Password,
		APIKey:        cfg.Admin.APIKey,
		StaticDir:     cfg.Server.StaticDir,
	}, gateway.Deps{
		Sessions:   sessions,
		Registry:   reg,
		Cache:      cache,
		Aggregator: aggregator,
		Upstream:   client,
		Metrics:    m,
		Logger:     logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/", api)
	mux.Handle("GET /metrics", m.Handler())
	mux.Handle("GET /healthz", checker.LivenessHandler())
	mux.Handle("GET /readyz", checker.ReadinessHandler())

	return &Server{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
		checker:  checker,
		handler:  mux,
	}
}

// Handler exposes the full route tree, including the operational
// endpoints. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then drains gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", srv.Addr, "version", Version)
		errCh <- srv.ListenAndServe()
	}()
	s.checker.SetReady()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.checker.SetDraining()
	s.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return s.sessions.Close()
}
