package server

import (
	"net/http"
	"runtime"
	"strconv"
)

// handleDebugStatus handles GET /debug/status.
// Returns runtime figures next to the sampled resource state.
func (s *Server) handleDebugStatus(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := map[string]any{
		"debug_enabled": s.config.Debug.Enabled,
		"goroutines":    runtime.NumGoroutine(),
		"heap_alloc":    mem.HeapAlloc,
		"pending":       s.engine.Pending(),
		"backend":       s.config.Persistence.Backend,
	}
	if s.components.Sampler != nil {
		resp["resources"] = s.components.Sampler.State()
	}
	if s.components.Scheduler != nil {
		resp["scheduler"] = s.components.Scheduler.Stats()
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleDebugLedger handles GET /debug/ledger?limit=N.
// Returns the newest calibration ledger entries.
func (s *Server) handleDebugLedger(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.badRequest(w, r, "limit must be a positive integer")
			return
		}
		limit = n
	}

	ledger := s.engine.Scorer().Ledger()
	if len(ledger) > limit {
		ledger = ledger[len(ledger)-limit:]
	}

	s.writeJSON(w, http.StatusOK, ledger)
}
