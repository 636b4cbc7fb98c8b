package server

import (
	"net/http"

	"github.com/haskel/quorum/internal/confidence"
	"github.com/haskel/quorum/internal/engine"
	"github.com/haskel/quorum/internal/prediction"
)

// OutcomeRequest is the request body for POST /v1/outcomes.
type OutcomeRequest struct {
	PredictionID string `json:"prediction_id"`
	Actual       any    `json:"actual"`
}

// CalibrationResponse is the response for GET /v1/calibration.
type CalibrationResponse struct {
	Calibration prediction.Calibration          `json:"calibration"`
	Bins        [confidence.NumBins]confidence.Bin `json:"bins"`
	LedgerSize  int                                `json:"ledger_size"`
}

// handlePredict handles POST /v1/predict.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if !s.decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.engine.Predict(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleOutcome handles POST /v1/outcomes.
func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var req OutcomeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.PredictionID == "" {
		s.badRequest(w, r, "prediction_id field is required")
		return
	}

	report, err := s.engine.RecordOutcome(r.Context(), req.PredictionID, req.Actual)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

// handleModels handles GET /v1/models.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Models())
}

// handleCalibration handles GET /v1/calibration.
func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	scorer := s.engine.Scorer()

	s.writeJSON(w, http.StatusOK, CalibrationResponse{
		Calibration: scorer.Calibration(),
		Bins:        scorer.Bins(),
		LedgerSize:  scorer.LedgerLen(),
	})
}

// handleTick handles POST /v1/tick. It goes through the scheduler when one
// runs so the tick shows up in its stats.
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	var err error
	if sched := s.components.Scheduler; sched != nil {
		err = sched.ForceTick(r.Context())
	} else {
		err = s.engine.Tick(r.Context())
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
