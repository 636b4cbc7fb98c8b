package server

import (
	"net/http"
	"time"

	"github.com/haskel/quorum/internal/experiment"
	"github.com/haskel/quorum/internal/prediction"
)

// TestPredictRequest is the request body for POST /v1/tests/{id}/predict.
type TestPredictRequest struct {
	UserID  string             `json:"user_id"`
	Input   any                `json:"input"`
	Context prediction.Context `json:"context"`
}

// TestOutcomeRequest is the request body for POST /v1/tests/{id}/outcomes.
type TestOutcomeRequest struct {
	UserID    string    `json:"user_id"`
	Actual    any       `json:"actual"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// handleCreateTest handles POST /v1/tests.
func (s *Server) handleCreateTest(w http.ResponseWriter, r *http.Request) {
	var cfg experiment.TestConfig
	if !s.decodeJSON(w, r, &cfg) {
		return
	}

	created, err := s.engine.Experiments().CreateTest(r.Context(), cfg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, created)
}

// handleListTests handles GET /v1/tests. ?active=true keeps running tests only.
func (s *Server) handleListTests(w http.ResponseWriter, r *http.Request) {
	fw := s.engine.Experiments()

	var tests []experiment.TestConfig
	if r.URL.Query().Get("active") == "true" {
		tests = fw.GetActiveTests()
	} else {
		tests = fw.ListTests()
	}
	if tests == nil {
		tests = []experiment.TestConfig{}
	}

	s.writeJSON(w, http.StatusOK, tests)
}

// handleGetTest handles GET /v1/tests/{id}.
func (s *Server) handleGetTest(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.Experiments().GetTest(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, cfg)
}

// handleTestPredict handles POST /v1/tests/{id}/predict.
func (s *Server) handleTestPredict(w http.ResponseWriter, r *http.Request) {
	var req TestPredictRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.UserID == "" {
		req.UserID = req.Context.UserID
	}
	if req.UserID == "" {
		s.badRequest(w, r, "user_id field is required")
		return
	}

	res, err := s.engine.Experiments().GetPrediction(r.Context(), r.PathValue("id"), req.UserID, req.Input, req.Context)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, res)
}

// handleTestOutcome handles POST /v1/tests/{id}/outcomes.
func (s *Server) handleTestOutcome(w http.ResponseWriter, r *http.Request) {
	var req TestOutcomeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.UserID == "" {
		s.badRequest(w, r, "user_id field is required")
		return
	}

	if err := s.engine.Experiments().RecordOutcome(r.Context(), r.PathValue("id"), req.UserID, req.Actual, req.Timestamp); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"recorded": true})
}

// handleTestResults handles GET /v1/tests/{id}/results.
func (s *Server) handleTestResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.engine.Experiments().Results(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, results)
}

// handleAnalyzeTest handles GET /v1/tests/{id}/analysis.
func (s *Server) handleAnalyzeTest(w http.ResponseWriter, r *http.Request) {
	analysis, err := s.engine.Experiments().AnalyzeTest(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, analysis)
}

// handleStopTest handles POST /v1/tests/{id}/stop.
func (s *Server) handleStopTest(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.Experiments().StopTest(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, cfg)
}
