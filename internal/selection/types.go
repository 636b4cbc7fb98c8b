package selection

import (
	"time"

	"github.com/haskel/quorum/internal/prediction"
)

// ContextClass is the coarse situation a selection is made for.
type ContextClass string

const (
	ClassHighAccuracy        ContextClass = "high_accuracy_required"
	ClassRealTime            ContextClass = "real_time"
	ClassResourceConstrained ContextClass = "resource_constrained"
	ClassComplexTask         ContextClass = "complex_task"
	ClassDefault             ContextClass = "default"
)

// IsValid checks if the context class is valid.
func (c ContextClass) IsValid() bool {
	switch c {
	case ClassHighAccuracy, ClassRealTime, ClassResourceConstrained,
		ClassComplexTask, ClassDefault:
		return true
	}
	return false
}

// String returns string representation.
func (c ContextClass) String() string {
	return string(c)
}

// StrategyType represents the type of selection strategy.
type StrategyType string

const (
	StrategyAccuracyFirst StrategyType = "accuracy_first"
	StrategySpeedFirst    StrategyType = "speed_first"
	StrategyBalanced      StrategyType = "balanced"
	StrategyContextAware  StrategyType = "context_aware"
	StrategyEnsemble      StrategyType = "ensemble"
)

// IsValid checks if the strategy type is valid.
func (s StrategyType) IsValid() bool {
	switch s {
	case StrategyAccuracyFirst, StrategySpeedFirst, StrategyBalanced,
		StrategyContextAware, StrategyEnsemble:
		return true
	}
	return false
}

// String returns string representation.
func (s StrategyType) String() string {
	return string(s)
}

// Candidate is a predictor that may be selected.
type Candidate struct {
	PredictorID   string `json:"predictor_id"`
	PredictorType string `json:"predictor_type"`
}

// Criteria holds the caller's weights for the unified score.
// Weights are relative; they are normalized by their sum.
type Criteria struct {
	Accuracy         float64 `json:"accuracy" yaml:"accuracy"`
	Latency          float64 `json:"latency" yaml:"latency"`
	ResourceUsage    float64 `json:"resource_usage" yaml:"resource_usage"`
	ContextRelevance float64 `json:"context_relevance" yaml:"context_relevance"`
}

// DefaultCriteria favours accuracy and splits the rest evenly.
func DefaultCriteria() Criteria {
	return Criteria{
		Accuracy:         0.4,
		Latency:          0.2,
		ResourceUsage:    0.2,
		ContextRelevance: 0.2,
	}
}

// nonNegative replaces negative weights with zero.
func (c Criteria) nonNegative() Criteria {
	return Criteria{
		Accuracy:         max(c.Accuracy, 0),
		Latency:          max(c.Latency, 0),
		ResourceUsage:    max(c.ResourceUsage, 0),
		ContextRelevance: max(c.ContextRelevance, 0),
	}
}

func (c Criteria) sum() float64 {
	return c.Accuracy + c.Latency + c.ResourceUsage + c.ContextRelevance
}

// Scored is a selected candidate with its unified score.
type Scored struct {
	Candidate
	Score    float64      `json:"score"`
	Class    ContextClass `json:"class"`
	Strategy StrategyType `json:"strategy"`
}

// Observation is one measurement fed into the performance ledger.
// Accuracy is only applied when AccuracyKnown is set.
type Observation struct {
	PredictorType string
	Latency       time.Duration
	MemoryUsage   float64 // percent
	CPUUsage      float64 // percent
	Success       bool
	Accuracy      float64
	AccuracyKnown bool
}

// ContextPerformance tracks a predictor in one context key.
type ContextPerformance struct {
	Accuracy        float64 `json:"accuracy"`
	LatencyMs       float64 `json:"latency_ms"`
	SampleCount     float64 `json:"sample_count"`
	AccuracySamples int64   `json:"accuracy_samples"`
	Confidence      float64 `json:"confidence"`
}

// Metrics is the smoothed performance record of one predictor.
type Metrics struct {
	PredictorID     string                                       `json:"predictor_id"`
	PredictorType   string                                       `json:"predictor_type,omitempty"`
	Accuracy        float64                                      `json:"accuracy"`
	LatencyMs       float64                                      `json:"latency_ms"`
	MemoryUsage     float64                                      `json:"memory_usage"`
	CPUUsage        float64                                      `json:"cpu_usage"`
	SuccessRate     float64                                      `json:"success_rate"`
	SampleCount     int64                                        `json:"sample_count"`
	AccuracySamples int64                                        `json:"accuracy_samples"`
	LastUpdated     time.Time                                    `json:"last_updated"`
	Contexts        map[prediction.ContextKey]*ContextPerformance `json:"contexts"`
}

// EffectiveAccuracy is the smoothed accuracy, or 0.5 before any outcome is known.
func (m *Metrics) EffectiveAccuracy() float64 {
	if m.AccuracySamples == 0 {
		return neutralScore
	}
	return m.Accuracy
}

// ContextRelevance is accuracy in the given context scaled by the confidence in that estimate.
func (m *Metrics) ContextRelevance(key prediction.ContextKey) float64 {
	cp, ok := m.Contexts[key]
	if !ok || cp.AccuracySamples == 0 {
		return 0
	}
	return cp.Confidence * cp.Accuracy
}

func (m *Metrics) clone() *Metrics {
	c := *m
	c.Contexts = make(map[prediction.ContextKey]*ContextPerformance, len(m.Contexts))
	for k, v := range m.Contexts {
		cp := *v
		c.Contexts[k] = &cp
	}
	return &c
}

// History is a read-only view of performance metrics by predictor id.
type History map[string]*Metrics
