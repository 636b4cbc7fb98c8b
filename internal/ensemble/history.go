package ensemble

import (
	"sync"
	"time"

	"github.com/haskel/quorum/internal/prediction"
)

// MaxHistory bounds the outcome history kept per predictor.
const MaxHistory = 100

// OutcomeRecord is one scored prediction of a predictor.
type OutcomeRecord struct {
	Accuracy   float64               `json:"accuracy"`
	ContextKey prediction.ContextKey `json:"context_key"`
	Timestamp  time.Time             `json:"timestamp"`
}

// history keeps the last MaxHistory outcomes per predictor.
type history struct {
	mu      sync.RWMutex
	records map[string][]OutcomeRecord
}

func newHistory() *history {
	return &history{
		records: make(map[string][]OutcomeRecord),
	}
}

func (h *history) append(predictorID string, rec OutcomeRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	recs := append(h.records[predictorID], rec)
	if len(recs) > MaxHistory {
		recs = append([]OutcomeRecord(nil), recs[len(recs)-MaxHistory:]...)
	}
	h.records[predictorID] = recs
}

// contextAccuracy returns the mean accuracy of a predictor in a context key.
func (h *history) contextAccuracy(predictorID string, key prediction.ContextKey) (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var sum float64
	var n int
	for _, r := range h.records[predictorID] {
		if r.ContextKey == key {
			sum += r.Accuracy
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func (h *history) snapshot(predictorID string) []OutcomeRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]OutcomeRecord(nil), h.records[predictorID]...)
}
