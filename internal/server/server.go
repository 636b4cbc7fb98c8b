package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/haskel/quorum/internal/config"
	"github.com/haskel/quorum/internal/engine"
	"github.com/haskel/quorum/internal/server/middleware"
)

type Server struct {
	httpServer *http.Server
	engine     *engine.Engine
	config     *config.Config
	logger     *slog.Logger
	version    string
	authConfig *middleware.AuthConfig
	ready      atomic.Bool

	// optional host components
	components *Components
}

func New(cfg *config.Config, eng *engine.Engine, logger *slog.Logger, version string) *Server {
	authConfig := &middleware.AuthConfig{
		Enabled:  cfg.Auth.Enabled,
		User:     cfg.Auth.User,
		Password: cfg.Auth.Password,
	}

	s := &Server{
		engine:     eng,
		config:     cfg,
		logger:     logger,
		version:    version,
		authConfig: authConfig,
		components: &Components{},
	}

	mux := s.setupRoutes()

	handler := middleware.Chain(
		mux,
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.Recovery(logger),
		middleware.SecurityHeaders(),
		middleware.PerIPRateLimit(&middleware.PerIPRateLimitConfig{
			Enabled:           cfg.Server.RateLimit.Enabled,
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
		}),
		middleware.MaxBody(cfg.Server.MaxBodyBytes),
		middleware.Auth(authConfig, "/health", "/ready", "/debug/*"), // debug routes carry their own auth
	)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// MarkReady flips /ready to 200. The host calls it once persisted state is loaded.
func (s *Server) MarkReady() {
	s.ready.Store(true)
}

// ReloadConfig reloads configuration that can be changed at runtime.
// Note: host/port, storage and predictor changes require restart.
func (s *Server) ReloadConfig(cfg *config.Config) {
	s.logger.Info("reloading configuration")

	// Update auth config (pointer is shared with middleware)
	s.authConfig.Update(cfg.Auth.Enabled, cfg.Auth.User, cfg.Auth.Password)

	// Update stored config
	s.config = cfg

	s.logger.Info("configuration reloaded",
		"auth_enabled", cfg.Auth.Enabled,
	)
}

func (s *Server) Start() error {
	s.logger.Info("server starting",
		"addr", s.httpServer.Addr,
	)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
