package predictor

import (
	"context"
	"io"

	"github.com/haskel/quorum/internal/ensemble"
	"github.com/haskel/quorum/internal/prediction"
)

// Constant always predicts the same value. It does not learn.
type Constant struct {
	value      any
	confidence float64
}

// NewConstant creates a constant predictor. Confidence is clamped to [0,1].
func NewConstant(value any, confidence float64) *Constant {
	return &Constant{
		value:      value,
		confidence: prediction.Clamp01(confidence),
	}
}

func (m *Constant) Type() Type {
	return TypeConstant
}

func (m *Constant) Predict(ctx context.Context, input any, pctx prediction.Context) (ensemble.Output, error) {
	if err := ctx.Err(); err != nil {
		return ensemble.Output{}, err
	}
	return ensemble.Output{Value: m.value, Confidence: m.confidence}, nil
}

// Observe is a no-op for this model.
func (m *Constant) Observe(pctx prediction.Context, input, actual any) {
	// noop
}

func (m *Constant) Confidence(pctx prediction.Context) float64 {
	return m.confidence
}

// Stats returns empty stats.
func (m *Constant) Stats() *Stats {
	return &Stats{
		Type:  m.Type().String(),
		Tasks: make(map[string]*TaskStats),
	}
}

// Save is a no-op.
func (m *Constant) Save(w io.Writer) error {
	return nil
}

// Load is a no-op.
func (m *Constant) Load(r io.Reader) error {
	return nil
}
