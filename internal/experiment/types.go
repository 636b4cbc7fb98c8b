package experiment

import (
	"time"

	"github.com/haskel/quorum/internal/ensemble"
	"github.com/haskel/quorum/internal/prediction"
)

const (
	DefaultConfidenceLevel   = 0.95
	DefaultMinimumSampleSize = 100
)

// Variant wraps one ensemble configuration under test.
type Variant struct {
	ID        string          `json:"id" yaml:"id" validate:"required"`
	Name      string          `json:"name" yaml:"name"`
	Config    ensemble.Config `json:"config" yaml:"config"`
	IsControl bool            `json:"is_control" yaml:"is_control"`
}

// TestConfig describes an experiment.
type TestConfig struct {
	ID                string             `json:"id" yaml:"id" validate:"required,max=128"`
	Name              string             `json:"name" yaml:"name" validate:"required"`
	Description       string             `json:"description,omitempty" yaml:"description"`
	StartDate         time.Time          `json:"start_date" yaml:"start_date" validate:"required"`
	EndDate           time.Time          `json:"end_date" yaml:"end_date" validate:"required"`
	Variants          []Variant          `json:"variants" yaml:"variants" validate:"required,min=1,dive"`
	TrafficSplit      map[string]float64 `json:"traffic_split" yaml:"traffic_split" validate:"required,dive,gte=0,lte=100"`
	SuccessMetrics    []string           `json:"success_metrics,omitempty" yaml:"success_metrics"`
	MinimumSampleSize int                `json:"minimum_sample_size" yaml:"minimum_sample_size" validate:"gte=0"`
	ConfidenceLevel   float64            `json:"confidence_level" yaml:"confidence_level" validate:"gte=0,lt=1"`
}

// Active reports whether now is inside [StartDate, EndDate).
func (c *TestConfig) Active(now time.Time) bool {
	return !now.Before(c.StartDate) && now.Before(c.EndDate)
}

// Control returns the first control variant.
func (c *TestConfig) Control() (Variant, bool) {
	for _, v := range c.Variants {
		if v.IsControl {
			return v, true
		}
	}
	return Variant{}, false
}

func (c TestConfig) withDefaults() TestConfig {
	if c.ConfidenceLevel == 0 {
		c.ConfidenceLevel = DefaultConfidenceLevel
	}
	if c.MinimumSampleSize == 0 {
		c.MinimumSampleSize = DefaultMinimumSampleSize
	}
	c.Variants = append([]Variant(nil), c.Variants...)
	split := make(map[string]float64, len(c.TrafficSplit))
	for k, v := range c.TrafficSplit {
		split[k] = v
	}
	c.TrafficSplit = split
	c.SuccessMetrics = append([]string(nil), c.SuccessMetrics...)
	return c
}

// ResultMetrics are derived per result.
type ResultMetrics struct {
	Confidence float64 `json:"confidence"`
	ModelCount int     `json:"model_count"`
	LatencyMs  float64 `json:"latency_ms"`
	Accuracy   float64 `json:"accuracy"`
}

// Result is one prediction served inside a test.
type Result struct {
	ID            string                           `json:"id"`
	Seq           uint64                           `json:"seq"`
	TestID        string                           `json:"test_id"`
	UserID        string                           `json:"user_id"`
	VariantID     string                           `json:"variant_id"`
	Prediction    *prediction.AggregatedPrediction `json:"prediction"`
	ActualOutcome any                              `json:"actual_outcome,omitempty"`
	HasOutcome    bool                             `json:"has_outcome"`
	Metrics       ResultMetrics                    `json:"metrics"`
	Timestamp     time.Time                        `json:"timestamp"`
	OutcomeAt     time.Time                        `json:"outcome_at,omitzero"`
}

// Converted reports whether the recorded outcome is a boolean true.
func (r *Result) Converted() bool {
	b, ok := r.ActualOutcome.(bool)
	return r.HasOutcome && ok && b
}

// Interval is a two-sided confidence interval.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Summary describes the distribution of one metric.
type Summary struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// VariantAnalysis is recomputed on demand from a variant's results.
type VariantAnalysis struct {
	VariantID          string             `json:"variant_id"`
	IsControl          bool               `json:"is_control"`
	Predictions        int                `json:"predictions"`
	SampleSize         int                `json:"sample_size"`
	Conversions        int                `json:"conversions"`
	ConversionRate     float64            `json:"conversion_rate"`
	AverageAccuracy    float64            `json:"average_accuracy"`
	ConfidenceInterval Interval           `json:"confidence_interval"`
	Metrics            map[string]Summary `json:"metrics"`
}

// Comparison is the z-test of one variant against the control.
type Comparison struct {
	VariantID   string  `json:"variant_id"`
	ZScore      float64 `json:"z_score"`
	PValue      float64 `json:"p_value"`
	Lift        float64 `json:"lift"`
	Significant bool    `json:"significant"`
}

// Analysis is the statistical summary of a test.
type Analysis struct {
	TestID          string            `json:"test_id"`
	Active          bool              `json:"active"`
	ControlID       string            `json:"control_id"`
	Variants        []VariantAnalysis `json:"variants"`
	Comparisons     []Comparison      `json:"comparisons"`
	Winner          string            `json:"winner,omitempty"`
	Confidence      float64           `json:"confidence"`
	ConfidenceLevel float64           `json:"confidence_level"`
	Recommendations []string          `json:"recommendations"`
	AnalyzedAt      time.Time         `json:"analyzed_at"`
}
