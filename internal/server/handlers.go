package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/haskel/quorum/internal/engine/scheduler"
	"github.com/haskel/quorum/internal/monitor"
	"github.com/haskel/quorum/internal/server/middleware"
)

type InfoResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ReadyResponse struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message,omitempty"`
}

// StatusResponse is the response for GET /status.
type StatusResponse struct {
	Version     string           `json:"version"`
	Pending     int              `json:"pending_predictions"`
	Models      int              `json:"models"`
	ActiveTests int              `json:"active_tests"`
	Resources   *monitor.State   `json:"resources,omitempty"`
	Scheduler   *scheduler.Stats `json:"scheduler,omitempty"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	resp := InfoResponse{
		Name:    "quorum",
		Version: s.version,
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		s.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Ready:   false,
			Message: "state not loaded yet",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, ReadyResponse{Ready: true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Version:     s.version,
		Pending:     s.engine.Pending(),
		Models:      len(s.engine.Models()),
		ActiveTests: len(s.engine.Experiments().GetActiveTests()),
	}

	if s.components.Sampler != nil {
		resp.Resources = s.components.Sampler.State()
	}
	if s.components.Scheduler != nil {
		stats := s.components.Scheduler.Stats()
		resp.Scheduler = &stats
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// decodeJSON reads the request body into v. On failure it writes the
// response and returns false.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		s.badRequest(w, r, "invalid request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status,
		)
	}
}
