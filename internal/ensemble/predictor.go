package ensemble

import (
	"context"
	"sort"
	"sync"

	"github.com/haskel/quorum/internal/prediction"
)

// Output is the raw result of a single predictor invocation.
type Output struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Predictor is an opaque prediction source.
// Implementations must be safe for concurrent use.
type Predictor interface {
	Predict(ctx context.Context, input any, pctx prediction.Context) (Output, error)
}

// PredictorFunc adapts a function to the Predictor interface.
type PredictorFunc func(ctx context.Context, input any, pctx prediction.Context) (Output, error)

// Predict calls f.
func (f PredictorFunc) Predict(ctx context.Context, input any, pctx prediction.Context) (Output, error) {
	return f(ctx, input, pctx)
}

// Registry resolves predictor ids to predictors.
type Registry interface {
	Get(id string) (Predictor, bool)
}

// MemoryRegistry is a thread-safe in-memory Registry.
type MemoryRegistry struct {
	mu         sync.RWMutex
	predictors map[string]Predictor
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		predictors: make(map[string]Predictor),
	}
}

// Register adds or replaces a predictor.
func (r *MemoryRegistry) Register(id string, p Predictor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predictors[id] = p
}

// Get returns the predictor registered under id.
func (r *MemoryRegistry) Get(id string) (Predictor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.predictors[id]
	return p, ok
}

// IDs returns registered ids in sorted order.
func (r *MemoryRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.predictors))
	for id := range r.predictors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
