// Package predictor provides the reference predictors that learn online from
// recorded outcomes.
package predictor

import (
	"errors"
	"io"
	"math"

	"github.com/haskel/quorum/internal/ensemble"
	"github.com/haskel/quorum/internal/prediction"
)

// ErrInsufficientData is returned by Predict before a model has seen enough outcomes.
var ErrInsufficientData = errors.New("insufficient observations")

// ErrNoFeature is returned when the input carries no usable numeric feature.
var ErrNoFeature = errors.New("input has no numeric feature")

// Type represents the type of reference predictor.
type Type string

const (
	TypeConstant      Type = "constant"
	TypeMovingAverage Type = "moving_average"
	TypeLinear        Type = "linear"
	TypePolynomial    Type = "polynomial"
)

// IsValid checks if the predictor type is valid.
func (t Type) IsValid() bool {
	switch t {
	case TypeConstant, TypeMovingAverage, TypeLinear, TypePolynomial:
		return true
	}
	return false
}

// String returns string representation.
func (t Type) String() string {
	return string(t)
}

// Model is a predictor that learns from observed outcomes.
type Model interface {
	ensemble.Predictor

	// Type returns the predictor type.
	Type() Type

	// Observe records the actual outcome for an input in a context.
	// Outcomes the model cannot learn from are ignored.
	Observe(pctx prediction.Context, input, actual any)

	// Confidence returns the model's confidence for a context (0-1).
	Confidence(pctx prediction.Context) float64

	// Stats returns model statistics.
	Stats() *Stats

	// Persistence
	Save(w io.Writer) error
	Load(r io.Reader) error
}

// Stats contains overall model statistics.
type Stats struct {
	Type              string                `json:"type"`
	TotalObservations int64                 `json:"total_observations"`
	Tasks             map[string]*TaskStats `json:"tasks"`
}

// TaskStats contains statistics for a specific task type.
type TaskStats struct {
	Task  string  `json:"task"`
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`

	// For linear model: outcome = Slope * feature + Intercept
	Slope     float64 `json:"slope,omitempty"`
	Intercept float64 `json:"intercept,omitempty"`

	// For polynomial model, lowest order first
	Coefficients []float64 `json:"coefficients,omitempty"`
}

// countConfidence grows with observations and saturates after about ten.
func countConfidence(count int64) float64 {
	if count <= 0 {
		return 0
	}
	return 1 - math.Exp(-float64(count)/5)
}

// Outcome converts an actual outcome to a number. Booleans count as 1 and 0.
func Outcome(v any) (float64, bool) {
	if b, ok := v.(bool); ok {
		if b {
			return 1, true
		}
		return 0, true
	}
	return prediction.AsNumber(v)
}

// Feature extracts the numeric feature from an input: the input itself when it
// is a number, otherwise the named field of a structured input.
func Feature(input any, name string) (float64, bool) {
	if x, ok := prediction.AsNumber(input); ok {
		return x, true
	}
	fields, ok := prediction.AsStructure(input)
	if !ok {
		return 0, false
	}
	return prediction.AsNumber(fields[name])
}
