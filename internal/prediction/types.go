package prediction

import (
	"time"
)

// ModelPrediction is one predictor's output for a single invocation.
type ModelPrediction struct {
	PredictorID   string        `json:"predictor_id"`
	PredictorType string        `json:"predictor_type"`
	Value         any           `json:"value"`
	Confidence    float64       `json:"confidence"`
	RawConfidence float64       `json:"raw_confidence"`
	Latency       time.Duration `json:"latency"`
	Timestamp     time.Time     `json:"timestamp"`
	Context       Context       `json:"context"`
}

// Method names an aggregation algorithm.
type Method string

const (
	MethodWeightedAverage Method = "weighted_average"
	MethodVoting          Method = "voting"
	MethodStacking        Method = "stacking"
	MethodDynamic         Method = "dynamic"
)

// IsValid checks if the aggregation method is valid.
func (m Method) IsValid() bool {
	switch m {
	case MethodWeightedAverage, MethodVoting, MethodStacking, MethodDynamic:
		return true
	}
	return false
}

// String returns string representation.
func (m Method) String() string {
	return string(m)
}

// AggregatedMetadata describes how an aggregated prediction was produced.
type AggregatedMetadata struct {
	PredictorScores map[string]float64 `json:"predictor_scores"`
	ContextMatch    float64            `json:"context_match"`
	Timestamp       time.Time          `json:"timestamp"`
}

// AggregatedPrediction is the combined output of an ensemble.
type AggregatedPrediction struct {
	ID           string             `json:"id"`
	Value        any                `json:"value"`
	Confidence   float64            `json:"confidence"`
	Contributors []string           `json:"contributors"`
	Method       Method             `json:"method"`
	Predictions  []ModelPrediction  `json:"predictions"`
	Metadata     AggregatedMetadata `json:"metadata"`
}

// Components is the per-dimension breakdown of a confidence score.
type Components struct {
	ModelAgreement      float64 `json:"model_agreement"`
	HistoricalAccuracy  float64 `json:"historical_accuracy"`
	DataQuality         float64 `json:"data_quality"`
	ContextMatch        float64 `json:"context_match"`
	PredictionStability float64 `json:"prediction_stability"`
}

// Factor is a human readable annotation explaining part of a confidence score.
type Factor struct {
	Name        string  `json:"name"`
	Impact      float64 `json:"impact"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
}

// Reliability summarizes how dependable a confidence score is.
type Reliability struct {
	Consistency float64 `json:"consistency"`
	Robustness  float64 `json:"robustness"`
	Coverage    float64 `json:"coverage"`
}

// Calibration is derived from the confidence-decile bins.
type Calibration struct {
	Error               float64 `json:"error"`
	OverconfidenceRate  float64 `json:"overconfidence_rate"`
	UnderconfidenceRate float64 `json:"underconfidence_rate"`
	Sharpness           float64 `json:"sharpness"`
}

// ConfidenceScore is the trust assessment of a set of predictions.
type ConfidenceScore struct {
	Overall     float64     `json:"overall"`
	Components  Components  `json:"components"`
	Factors     []Factor    `json:"factors"`
	Reliability Reliability `json:"reliability"`
	Calibration Calibration `json:"calibration"`
}
