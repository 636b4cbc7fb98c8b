package server

import (
	"net/http"
	"net/http/pprof"

	"github.com/haskel/quorum/internal/metrics"
	"github.com/haskel/quorum/internal/server/middleware"
)

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", s.handleInfo)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("POST /v1/predict", s.handlePredict)
	mux.HandleFunc("POST /v1/outcomes", s.handleOutcome)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("GET /v1/calibration", s.handleCalibration)
	mux.HandleFunc("POST /v1/tick", s.handleTick)

	mux.HandleFunc("POST /v1/tests", s.handleCreateTest)
	mux.HandleFunc("GET /v1/tests", s.handleListTests)
	mux.HandleFunc("GET /v1/tests/{id}", s.handleGetTest)
	mux.HandleFunc("POST /v1/tests/{id}/predict", s.handleTestPredict)
	mux.HandleFunc("POST /v1/tests/{id}/outcomes", s.handleTestOutcome)
	mux.HandleFunc("GET /v1/tests/{id}/results", s.handleTestResults)
	mux.HandleFunc("GET /v1/tests/{id}/analysis", s.handleAnalyzeTest)
	mux.HandleFunc("POST /v1/tests/{id}/stop", s.handleStopTest)

	if s.config.Metrics.Enabled {
		path := s.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, metrics.Handler())
	}

	// Setup debug routes with separate authentication
	s.setupDebugRoutes(mux)

	return mux
}

// setupDebugRoutes configures debug and profiling endpoints with authentication.
func (s *Server) setupDebugRoutes(mux *http.ServeMux) {
	profilingEnabled := s.config.Server.Profiling.Enabled
	debugEnabled := s.config.Debug.Enabled

	if !profilingEnabled && !debugEnabled {
		return
	}

	// Create debug auth middleware config
	debugAuthConfig := &middleware.DebugAuthConfig{
		Token:              s.config.Debug.Auth.Token,
		FallbackAuthConfig: s.authConfig,
	}
	debugAuth := middleware.DebugAuth(debugAuthConfig)

	// Profiling routes (if enabled)
	if profilingEnabled {
		s.logger.Info("profiling endpoints enabled at /debug/pprof/ (auth required)")
		mux.Handle("GET /debug/pprof/{$}", debugAuth(http.HandlerFunc(pprof.Index)))
		mux.Handle("GET /debug/pprof/cmdline", debugAuth(http.HandlerFunc(pprof.Cmdline)))
		mux.Handle("GET /debug/pprof/profile", debugAuth(http.HandlerFunc(pprof.Profile)))
		mux.Handle("GET /debug/pprof/symbol", debugAuth(http.HandlerFunc(pprof.Symbol)))
		mux.Handle("POST /debug/pprof/symbol", debugAuth(http.HandlerFunc(pprof.Symbol)))
		mux.Handle("GET /debug/pprof/trace", debugAuth(http.HandlerFunc(pprof.Trace)))
		mux.Handle("GET /debug/pprof/{name...}", debugAuth(http.HandlerFunc(pprof.Index)))
	}

	// Debug routes (if enabled)
	if debugEnabled {
		s.logger.Warn("debug mode enabled - debug endpoints require authentication")
		mux.Handle("GET /debug/status", debugAuth(http.HandlerFunc(s.handleDebugStatus)))
		mux.Handle("GET /debug/ledger", debugAuth(http.HandlerFunc(s.handleDebugLedger)))
	}
}
