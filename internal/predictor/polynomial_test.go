package predictor

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
)

func TestPolynomial_FitsQuadratic(t *testing.T) {
	m := NewPolynomial(2, 3, "")
	pctx := ctxFor("load")

	// y = x² - 2x + 3
	for x := 1.0; x <= 6; x++ {
		m.Observe(pctx, x, x*x-2*x+3)
	}

	out, err := m.Predict(context.Background(), 10.0, pctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if y := out.Value.(float64); math.Abs(y-83) > 0.01 {
		t.Errorf("expected 83, got %f", y)
	}
	if out.Confidence <= 0 || out.Confidence > 1 {
		t.Errorf("confidence out of range: %f", out.Confidence)
	}

	coefs := m.Stats().Tasks["load"].Coefficients
	if len(coefs) != 3 || math.Abs(coefs[2]-1) > 0.01 {
		t.Errorf("unexpected coefficients: %v", coefs)
	}
}

func TestPolynomial_DegreeBounds(t *testing.T) {
	if m := NewPolynomial(0, 0, ""); m.degree != DefaultDegree || m.minObservations != DefaultDegree+1 {
		t.Errorf("expected default degree, got %d (min %d)", m.degree, m.minObservations)
	}
	if m := NewPolynomial(9, 0, ""); m.degree != maxDegree {
		t.Errorf("expected degree %d, got %d", maxDegree, m.degree)
	}
}

func TestPolynomial_InsufficientData(t *testing.T) {
	m := NewPolynomial(2, 4, "")
	pctx := ctxFor("load")

	for x := 1.0; x <= 3; x++ {
		m.Observe(pctx, x, x)
	}

	_, err := m.Predict(context.Background(), 1.0, pctx)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
	if m.Confidence(pctx) != 0 {
		t.Errorf("expected zero confidence, got %f", m.Confidence(pctx))
	}

	if _, err := m.Predict(context.Background(), "text", pctx); !errors.Is(err, ErrNoFeature) {
		t.Errorf("expected ErrNoFeature, got %v", err)
	}
}

func TestPolynomial_WindowIsBounded(t *testing.T) {
	m := NewPolynomial(1, 2, "")
	pctx := ctxFor("load")

	for i := 0; i < maxPolynomialObservations+50; i++ {
		m.Observe(pctx, float64(i%10), 1.0)
	}

	data := m.tasks["load"]
	if len(data.Observations) != maxPolynomialObservations {
		t.Errorf("expected %d buffered observations, got %d", maxPolynomialObservations, len(data.Observations))
	}
	if data.Count != int64(maxPolynomialObservations+50) {
		t.Errorf("count should include evicted observations, got %d", data.Count)
	}
}

func TestPolynomial_SaveLoad(t *testing.T) {
	m := NewPolynomial(2, 3, "size")
	pctx := ctxFor("load")
	for x := 1.0; x <= 5; x++ {
		m.Observe(pctx, map[string]any{"size": x}, 3*x)
	}

	var buf bytes.Buffer
	if err := m.Save(&buf); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded := NewPolynomial(4, 10, "")
	if err := loaded.Load(&buf); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	want, _ := m.Predict(context.Background(), map[string]any{"size": 7.0}, pctx)
	got, err := loaded.Predict(context.Background(), map[string]any{"size": 7.0}, pctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got.Value.(float64)-want.Value.(float64)) > 1e-9 {
		t.Errorf("expected %v, got %v", want.Value, got.Value)
	}
}

func TestSolveLinearSystem_Singular(t *testing.T) {
	A := [][]float64{{1, 2}, {2, 4}}
	b := []float64{1, 2}

	x := solveLinearSystem(A, b)
	if len(x) != 2 || x[0] != 0 || x[1] != 0 {
		t.Errorf("expected zero coefficients, got %v", x)
	}
}
