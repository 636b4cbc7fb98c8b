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

// MovingAverage predicts the exponential moving average of the outcomes seen for a task type.
// It ignores the input.
type MovingAverage struct {
	alpha float64
	mu    sync.RWMutex

	// Per-task averages
	tasks map[string]*movingAverageTaskData
}

type movingAverageTaskData struct {
	Count int64   `json:"count"`
	Avg   float64 `json:"avg"`
}

type movingAverageState struct {
	Alpha float64                           `json:"alpha"`
	Tasks map[string]*movingAverageTaskData `json:"tasks"`
}

// NewMovingAverage creates a new moving average predictor.
// Alpha is the smoothing factor (0 < alpha <= 1). Higher values give more weight to recent outcomes.
func NewMovingAverage(alpha float64) *MovingAverage {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	return &MovingAverage{
		alpha: alpha,
		tasks: make(map[string]*movingAverageTaskData),
	}
}

func (m *MovingAverage) Type() Type {
	return TypeMovingAverage
}

// Predict returns the average outcome of the context's task type.
func (m *MovingAverage) Predict(ctx context.Context, input any, pctx prediction.Context) (ensemble.Output, error) {
	if err := ctx.Err(); err != nil {
		return ensemble.Output{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.tasks[pctx.TaskType]
	if !exists || data.Count == 0 {
		return ensemble.Output{}, fmt.Errorf("task %q: %w", pctx.TaskType, ErrInsufficientData)
	}

	return ensemble.Output{
		Value:      data.Avg,
		Confidence: countConfidence(data.Count),
	}, nil
}

// Observe updates the moving average of the context's task type.
func (m *MovingAverage) Observe(pctx prediction.Context, input, actual any) {
	y, ok := Outcome(actual)
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, exists := m.tasks[pctx.TaskType]
	if !exists {
		// First observation - use the value directly
		m.tasks[pctx.TaskType] = &movingAverageTaskData{Count: 1, Avg: y}
		return
	}

	// new_avg = alpha * new_value + (1 - alpha) * old_avg
	data.Count++
	data.Avg = m.alpha*y + (1-m.alpha)*data.Avg
}

func (m *MovingAverage) Confidence(pctx prediction.Context) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.tasks[pctx.TaskType]
	if !exists {
		return 0
	}
	return countConfidence(data.Count)
}

func (m *MovingAverage) Stats() *Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var totalObs int64
	taskStats := make(map[string]*TaskStats, len(m.tasks))

	for name, data := range m.tasks {
		totalObs += data.Count
		taskStats[name] = &TaskStats{
			Task:  name,
			Count: data.Count,
			Mean:  data.Avg,
		}
	}

	return &Stats{
		Type:              m.Type().String(),
		TotalObservations: totalObs,
		Tasks:             taskStats,
	}
}

// Save serializes the model state to a writer.
func (m *MovingAverage) Save(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return json.NewEncoder(w).Encode(movingAverageState{
		Alpha: m.alpha,
		Tasks: m.tasks,
	})
}

// Load deserializes the model state from a reader.
func (m *MovingAverage) Load(r io.Reader) error {
	var state movingAverageState
	if err := json.NewDecoder(r).Decode(&state); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if state.Alpha > 0 && state.Alpha <= 1 {
		m.alpha = state.Alpha
	}
	m.tasks = state.Tasks
	if m.tasks == nil {
		m.tasks = make(map[string]*movingAverageTaskData)
	}

	return nil
}
