package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/haskel/quorum/internal/ensemble"
	"github.com/haskel/quorum/internal/prediction"
)

const DefaultFeature = "x"

// Linear fits outcome = a * feature + b per task type with online least squares.
// The feature is the numeric input, or a named field of a structured input.
type Linear struct {
	minObservations int
	feature         string
	mu              sync.RWMutex

	// Per-task regression data
	tasks map[string]*linearTaskData
}

// linearTaskData holds running means and co-moments (Welford).
type linearTaskData struct {
	Count int64   `json:"count"`
	MeanX float64 `json:"mean_x"`
	MeanY float64 `json:"mean_y"`
	Cov   float64 `json:"cov"`   // sum of (x-mean_x)(y-mean_y)
	VarX  float64 `json:"var_x"` // sum of (x-mean_x)²
}

type linearState struct {
	MinObservations int                        `json:"min_observations"`
	Feature         string                     `json:"feature"`
	Tasks           map[string]*linearTaskData `json:"tasks"`
}

// NewLinear creates a new linear regression predictor.
func NewLinear(minObs int, feature string) *Linear {
	if minObs < 2 {
		minObs = 2
	}
	if feature == "" {
		feature = DefaultFeature
	}
	return &Linear{
		minObservations: minObs,
		feature:         feature,
		tasks:           make(map[string]*linearTaskData),
	}
}

func (m *Linear) Type() Type {
	return TypeLinear
}

// Predict evaluates the regression line of the context's task type at the input feature.
func (m *Linear) Predict(ctx context.Context, input any, pctx prediction.Context) (ensemble.Output, error) {
	if err := ctx.Err(); err != nil {
		return ensemble.Output{}, err
	}

	x, ok := Feature(input, m.feature)
	if !ok {
		return ensemble.Output{}, ErrNoFeature
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.tasks[pctx.TaskType]
	if !exists || data.Count < int64(m.minObservations) {
		return ensemble.Output{}, fmt.Errorf("task %q: %w", pctx.TaskType, ErrInsufficientData)
	}

	a, b := coefficients(data)
	return ensemble.Output{
		Value:      a*x + b,
		Confidence: countConfidence(data.Count - int64(m.minObservations) + 1),
	}, nil
}

// coefficients returns slope and intercept: a = Cov(x,y) / Var(x), b = mean_y - a * mean_x.
func coefficients(data *linearTaskData) (float64, float64) {
	// No variance in X, use mean as prediction
	if data.VarX < 1e-10 {
		return 0, data.MeanY
	}
	a := data.Cov / data.VarX
	return a, data.MeanY - a*data.MeanX
}

// Observe updates the running statistics of the context's task type.
func (m *Linear) Observe(pctx prediction.Context, input, actual any) {
	x, ok := Feature(input, m.feature)
	if !ok {
		return
	}
	y, ok := Outcome(actual)
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, exists := m.tasks[pctx.TaskType]
	if !exists {
		data = &linearTaskData{}
		m.tasks[pctx.TaskType] = data
	}

	data.Count++
	n := float64(data.Count)

	dx := x - data.MeanX
	data.MeanX += dx / n
	data.MeanY += (y - data.MeanY) / n

	data.Cov += dx * (y - data.MeanY)
	data.VarX += dx * (x - data.MeanX)
}

func (m *Linear) Confidence(pctx prediction.Context) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.tasks[pctx.TaskType]
	if !exists || data.Count < int64(m.minObservations) {
		return 0
	}
	return countConfidence(data.Count - int64(m.minObservations) + 1)
}

func (m *Linear) Stats() *Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var totalObs int64
	taskStats := make(map[string]*TaskStats, len(m.tasks))

	for name, data := range m.tasks {
		totalObs += data.Count
		a, b := coefficients(data)
		taskStats[name] = &TaskStats{
			Task:      name,
			Count:     data.Count,
			Mean:      data.MeanY,
			Slope:     a,
			Intercept: b,
		}
	}

	return &Stats{
		Type:              m.Type().String(),
		TotalObservations: totalObs,
		Tasks:             taskStats,
	}
}

// Save serializes the model state to a writer.
func (m *Linear) Save(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return json.NewEncoder(w).Encode(linearState{
		MinObservations: m.minObservations,
		Feature:         m.feature,
		Tasks:           m.tasks,
	})
}

// Load deserializes the model state from a reader.
func (m *Linear) Load(r io.Reader) error {
	var state linearState
	if err := json.NewDecoder(r).Decode(&state); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if state.MinObservations >= 2 {
		m.minObservations = state.MinObservations
	}
	if state.Feature != "" {
		m.feature = state.Feature
	}
	m.tasks = state.Tasks
	if m.tasks == nil {
		m.tasks = make(map[string]*linearTaskData)
	}

	return nil
}
