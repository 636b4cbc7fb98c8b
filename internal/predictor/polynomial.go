package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/haskel/quorum/internal/ensemble"
	"github.com/haskel/quorum/internal/prediction"
)

const (
	DefaultDegree = 2
	maxDegree     = 5 // numerical stability

	maxPolynomialObservations = 1000
)

// Polynomial fits outcome = c0 + c1*x + ... + cn*x^n per task type by least
// squares over a bounded window of recent observations.
type Polynomial struct {
	degree          int
	minObservations int
	feature         string
	mu              sync.RWMutex

	tasks map[string]*polynomialTaskData
}

type polynomialTaskData struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`

	// Most recent observations, oldest first
	Observations []point `json:"observations"`

	// Refitted on every Observe once there are enough observations
	Coefs []float64 `json:"coefs"`
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type polynomialState struct {
	Degree          int                            `json:"degree"`
	MinObservations int                            `json:"min_observations"`
	Feature         string                         `json:"feature"`
	Tasks           map[string]*polynomialTaskData `json:"tasks"`
}

// NewPolynomial creates a polynomial regression predictor. The degree is
// clamped to [1, 5] and at least degree+1 observations are required.
func NewPolynomial(degree, minObs int, feature string) *Polynomial {
	degree = clampDegree(degree)
	if minObs < degree+1 {
		minObs = degree + 1
	}
	if feature == "" {
		feature = DefaultFeature
	}
	return &Polynomial{
		degree:          degree,
		minObservations: minObs,
		feature:         feature,
		tasks:           make(map[string]*polynomialTaskData),
	}
}

func clampDegree(d int) int {
	if d < 1 {
		return DefaultDegree
	}
	if d > maxDegree {
		return maxDegree
	}
	return d
}

func (m *Polynomial) Type() Type {
	return TypePolynomial
}

// Predict evaluates the fitted polynomial of the context's task type at the input feature.
func (m *Polynomial) Predict(ctx context.Context, input any, pctx prediction.Context) (ensemble.Output, error) {
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
	if !exists || data.Count < int64(m.minObservations) || len(data.Coefs) == 0 {
		return ensemble.Output{}, fmt.Errorf("task %q: %w", pctx.TaskType, ErrInsufficientData)
	}

	return ensemble.Output{
		Value:      evaluatePolynomial(data.Coefs, x),
		Confidence: m.confidence(data),
	}, nil
}

// evaluatePolynomial returns coefs[0] + coefs[1]*x + coefs[2]*x² + ...
func evaluatePolynomial(coefs []float64, x float64) float64 {
	result := 0.0
	xPow := 1.0
	for _, c := range coefs {
		result += c * xPow
		xPow *= x
	}
	return result
}

// Observe buffers the observation and refits the task's coefficients.
func (m *Polynomial) Observe(pctx prediction.Context, input, actual any) {
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
		data = &polynomialTaskData{Observations: make([]point, 0, 64)}
		m.tasks[pctx.TaskType] = data
	}

	data.Observations = append(data.Observations, point{X: x, Y: y})
	data.Count++
	data.Sum += y

	if len(data.Observations) > maxPolynomialObservations {
		data.Observations = data.Observations[len(data.Observations)-maxPolynomialObservations:]
	}

	if data.Count >= int64(m.minObservations) {
		data.Coefs = fitPolynomial(data.Observations, m.degree)
	}
}

// fitPolynomial solves the ridge-regularized normal equations X'X c = X'y.
func fitPolynomial(points []point, degree int) []float64 {
	xtx := make([][]float64, degree+1)
	for i := range xtx {
		xtx[i] = make([]float64, degree+1)
	}
	xty := make([]float64, degree+1)

	xPows := make([]float64, 2*degree+1)
	for _, p := range points {
		xPows[0] = 1
		for k := 1; k <= 2*degree; k++ {
			xPows[k] = xPows[k-1] * p.X
		}

		for i := 0; i <= degree; i++ {
			for j := 0; j <= degree; j++ {
				xtx[i][j] += xPows[i+j]
			}
			xty[i] += xPows[i] * p.Y
		}
	}

	lambda := 1e-6 * float64(len(points))
	for i := 0; i <= degree; i++ {
		xtx[i][i] += lambda
	}

	return solveLinearSystem(xtx, xty)
}

// solveLinearSystem solves Ax = b in place using Gaussian elimination with
// partial pivoting. A singular system yields zero coefficients.
func solveLinearSystem(A [][]float64, b []float64) []float64 {
	n := len(b)
	if n == 0 || len(A) != n {
		return nil
	}

	for k := 0; k < n; k++ {
		maxIdx := k
		maxVal := math.Abs(A[k][k])
		for i := k + 1; i < n; i++ {
			if v := math.Abs(A[i][k]); v > maxVal {
				maxIdx, maxVal = i, v
			}
		}

		if maxIdx != k {
			A[k], A[maxIdx] = A[maxIdx], A[k]
			b[k], b[maxIdx] = b[maxIdx], b[k]
		}

		if math.Abs(A[k][k]) < 1e-12 {
			return make([]float64, n)
		}

		for i := k + 1; i < n; i++ {
			factor := A[i][k] / A[k][k]
			for j := k; j < n; j++ {
				A[i][j] -= factor * A[k][j]
			}
			b[i] -= factor * b[k]
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		x[i] = b[i]
		for j := i + 1; j < n; j++ {
			x[i] -= A[i][j] * x[j]
		}
		x[i] /= A[i][i]
	}
	return x
}

// confidence grows with observations and is lowered for higher degrees,
// which overfit more easily.
func (m *Polynomial) confidence(data *polynomialTaskData) float64 {
	if data.Count < int64(m.minObservations) {
		return 0
	}
	penalty := math.Max(1.0-0.1*float64(m.degree-1), 0.5)
	return countConfidence(data.Count-int64(m.minObservations)+1) * penalty
}

func (m *Polynomial) Confidence(pctx prediction.Context) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.tasks[pctx.TaskType]
	if !exists {
		return 0
	}
	return m.confidence(data)
}

func (m *Polynomial) Stats() *Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var totalObs int64
	taskStats := make(map[string]*TaskStats, len(m.tasks))

	for name, data := range m.tasks {
		totalObs += data.Count
		ts := &TaskStats{Task: name, Count: data.Count}
		if data.Count > 0 {
			ts.Mean = data.Sum / float64(data.Count)
		}
		ts.Coefficients = append([]float64(nil), data.Coefs...)
		taskStats[name] = ts
	}

	return &Stats{
		Type:              m.Type().String(),
		TotalObservations: totalObs,
		Tasks:             taskStats,
	}
}

// Save serializes the model state to a writer.
func (m *Polynomial) Save(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return json.NewEncoder(w).Encode(polynomialState{
		Degree:          m.degree,
		MinObservations: m.minObservations,
		Feature:         m.feature,
		Tasks:           m.tasks,
	})
}

// Load deserializes the model state from a reader.
func (m *Polynomial) Load(r io.Reader) error {
	var state polynomialState
	if err := json.NewDecoder(r).Decode(&state); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if state.Degree > 0 {
		m.degree = clampDegree(state.Degree)
	}
	if state.MinObservations > m.degree {
		m.minObservations = state.MinObservations
	}
	if state.Feature != "" {
		m.feature = state.Feature
	}
	m.tasks = state.Tasks
	if m.tasks == nil {
		m.tasks = make(map[string]*polynomialTaskData)
	}

	return nil
}
