package ensemble

import (
	"errors"
	"time"

	"github.com/haskel/quorum/internal/prediction"
)

const (
	DefaultConfidenceThreshold = 0.1
	DefaultPredictorTimeout    = 2 * time.Second
)

// Entry registers one predictor in an ensemble.
type Entry struct {
	PredictorID    string   `json:"predictor_id" yaml:"predictor_id" validate:"required"`
	PredictorType  string   `json:"predictor_type" yaml:"predictor_type"`
	Weight         float64  `json:"weight" yaml:"weight" validate:"gte=0"`
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	ContextFilters []string `json:"context_filters,omitempty" yaml:"context_filters"`
}

// Type returns the predictor type, falling back to the id.
func (e Entry) Type() string {
	if e.PredictorType != "" {
		return e.PredictorType
	}
	return e.PredictorID
}

// Config is one complete ensemble configuration.
type Config struct {
	Entries             []Entry            `json:"predictors" yaml:"predictors" validate:"required,min=1,dive"`
	Strategy            prediction.Method  `json:"strategy" yaml:"strategy"`
	ConfidenceThreshold float64            `json:"confidence_threshold" yaml:"confidence_threshold" validate:"gte=0,lte=1"`
	ContextWeights      map[string]float64 `json:"context_weights,omitempty" yaml:"context_weights"`
	PredictorTimeout    time.Duration      `json:"predictor_timeout" yaml:"predictor_timeout"`
	MaxConcurrency      int                `json:"max_concurrency" yaml:"max_concurrency" validate:"gte=0"`
}

// DefaultConfig returns a configuration with no predictors.
func DefaultConfig() Config {
	return Config{
		Strategy:            prediction.MethodWeightedAverage,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		PredictorTimeout:    DefaultPredictorTimeout,
	}
}

// withDefaults fills zero values.
func (c Config) withDefaults() Config {
	if c.Strategy == "" {
		c.Strategy = prediction.MethodWeightedAverage
	}
	if c.PredictorTimeout <= 0 {
		c.PredictorTimeout = DefaultPredictorTimeout
	}
	c.Entries = append([]Entry(nil), c.Entries...)
	if c.ContextWeights != nil {
		weights := make(map[string]float64, len(c.ContextWeights))
		for k, v := range c.ContextWeights {
			weights[k] = v
		}
		c.ContextWeights = weights
	}
	return c
}

// Validate checks the configuration and returns all problems joined.
func (c Config) Validate() error {
	var errs []error

	if len(c.Entries) == 0 {
		errs = append(errs, prediction.NewValidationError(prediction.RuleInvalidField,
			"ensemble requires at least one predictor"))
	}

	seen := make(map[string]bool, len(c.Entries))
	for i, e := range c.Entries {
		if e.PredictorID == "" {
			errs = append(errs, prediction.NewValidationError(prediction.RuleInvalidField,
				"predictors[%d].predictor_id is required", i))
			continue
		}
		if seen[e.PredictorID] {
			errs = append(errs, prediction.NewValidationError(prediction.RuleDuplicateID,
				"predictor %q listed more than once", e.PredictorID))
		}
		seen[e.PredictorID] = true
		if e.Weight < 0 {
			errs = append(errs, prediction.NewValidationError(prediction.RuleInvalidField,
				"predictor %q weight must be non-negative", e.PredictorID))
		}
	}

	if c.Strategy != "" && !c.Strategy.IsValid() {
		errs = append(errs, prediction.NewValidationError(prediction.RuleInvalidAggregation,
			"unknown aggregation strategy %q", c.Strategy))
	}

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, prediction.NewValidationError(prediction.RuleInvalidField,
			"confidence_threshold must be between 0 and 1"))
	}

	for k, w := range c.ContextWeights {
		if w < 0 {
			errs = append(errs, prediction.NewValidationError(prediction.RuleInvalidField,
				"context weight %q must be non-negative", k))
		}
	}

	if c.PredictorTimeout < 0 {
		errs = append(errs, prediction.NewValidationError(prediction.RuleInvalidField,
			"predictor_timeout must be non-negative"))
	}
	if c.MaxConcurrency < 0 {
		errs = append(errs, prediction.NewValidationError(prediction.RuleInvalidField,
			"max_concurrency must be non-negative"))
	}

	return errors.Join(errs...)
}
