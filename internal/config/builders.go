package config

import (
	"fmt"

	"github.com/haskel/quorum/internal/confidence"
	"github.com/haskel/quorum/internal/engine"
	"github.com/haskel/quorum/internal/ensemble"
	"github.com/haskel/quorum/internal/experiment"
	"github.com/haskel/quorum/internal/prediction"
	"github.com/haskel/quorum/internal/predictor"
	"github.com/haskel/quorum/internal/selection"
	"github.com/haskel/quorum/internal/storage/backend"
)

// EngineConfig converts the ensemble and selection sections.
func (c *Config) EngineConfig() engine.Config {
	entries := make([]ensemble.Entry, 0, len(c.Ensemble.Predictors))
	for _, p := range c.Ensemble.Predictors {
		entries = append(entries, ensemble.Entry{
			PredictorID:    p.ID,
			PredictorType:  p.Type,
			Weight:         p.Weight,
			Enabled:        p.IsEnabled(),
			ContextFilters: p.ContextFilters,
		})
	}

	var weights map[string]float64
	if len(c.Ensemble.ContextWeights) > 0 {
		weights = make(map[string]float64, len(c.Ensemble.ContextWeights))
		for k, v := range c.Ensemble.ContextWeights {
			weights[k] = v
		}
	}

	return engine.Config{
		Ensemble: ensemble.Config{
			Entries:             entries,
			Strategy:            prediction.Method(c.Ensemble.Strategy),
			ConfidenceThreshold: c.Ensemble.ConfidenceThreshold,
			ContextWeights:      weights,
			PredictorTimeout:    c.PredictorTimeout(),
			MaxConcurrency:      c.Ensemble.MaxConcurrency,
		},
		Criteria:    c.Selection.Criteria,
		MaxModels:   c.Selection.MaxModels,
		DecayFactor: c.Selection.DecayFactor,
	}
}

// Predictors builds the configured reference predictors.
func (c *Config) Predictors() ([]engine.Predictor, error) {
	cfg := c.EngineConfig()
	out := make([]engine.Predictor, 0, len(c.Ensemble.Predictors))

	for i, p := range c.Ensemble.Predictors {
		pc := predictor.DefaultConfig()
		pc.Type = predictor.Type(p.Type)
		if p.Alpha > 0 {
			pc.Alpha = p.Alpha
		}
		if p.MinObservations > 0 {
			pc.MinObservations = p.MinObservations
		}
		if p.Feature != "" {
			pc.Feature = p.Feature
		}
		if p.Degree > 0 {
			pc.Degree = p.Degree
		}
		pc.Value = p.Value
		if p.Confidence > 0 {
			pc.Confidence = p.Confidence
		}

		model, err := predictor.NewFactory(pc).Create()
		if err != nil {
			return nil, fmt.Errorf("predictor %s: %w", p.ID, err)
		}
		out = append(out, engine.Predictor{Entry: cfg.Ensemble.Entries[i], Model: model})
	}

	return out, nil
}

// EngineOptions returns the tuning options of the engine's components.
func (c *Config) EngineOptions() []engine.Option {
	return []engine.Option{
		engine.WithSelectorOptions(
			selection.WithAlpha(c.Selection.Alpha),
			selection.WithStrategies(c.Selection.strategies()),
		),
		engine.WithScorerOptions(
			confidence.WithMaxLedger(c.Scoring.MaxLedger),
			confidence.WithMaxContexts(c.Scoring.MaxContexts),
		),
		engine.WithExperimentOptions(
			experiment.WithDefaults(c.Experiments.DefaultConfidenceLevel, c.Experiments.DefaultMinSampleSize),
		),
	}
}

// StorageConfig converts the persistence section.
func (c *Config) StorageConfig() backend.Config {
	return backend.Config{
		Kind:          backend.Kind(c.Persistence.Backend),
		DataDir:       c.Persistence.DataDir,
		FlushInterval: c.FlushInterval(),
	}
}

func (s *SelectionConfig) strategies() selection.Config {
	return selection.Config{ClassStrategies: s.Strategies}
}
