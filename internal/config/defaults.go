package config

import (
	"github.com/haskel/quorum/internal/confidence"
	"github.com/haskel/quorum/internal/engine"
	"github.com/haskel/quorum/internal/ensemble"
	"github.com/haskel/quorum/internal/experiment"
	"github.com/haskel/quorum/internal/prediction"
	"github.com/haskel/quorum/internal/selection"
)

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			PIDFile:      "/var/run/quorum.pid",
			MaxBodyBytes: 1 << 20,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerSecond: 100,
				Burst:             200,
			},
		},
		Auth: AuthConfig{
			Enabled:  false,
			User:     "",
			Password: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Persistence: PersistenceConfig{
			Backend:          "file",
			DataDir:          "/var/lib/quorum",
			FlushIntervalSec: 600,
		},
		Monitoring: MonitoringConfig{
			Enabled:    true,
			IntervalMS: 5000,
		},
		Ensemble: EnsembleConfig{
			Strategy:            string(prediction.MethodWeightedAverage),
			ConfidenceThreshold: ensemble.DefaultConfidenceThreshold,
			PredictorTimeoutMS:  int(ensemble.DefaultPredictorTimeout.Milliseconds()),
			MaxConcurrency:      0,
			Predictors:          DefaultPredictors(),
		},
		Selection: SelectionConfig{
			Alpha:           selection.DefaultAlpha,
			MaxModels:       selection.DefaultMaxModels,
			DecayFactor:     engine.DefaultDecayFactor,
			TickIntervalSec: 60,
			Criteria:        selection.DefaultCriteria(),
		},
		Scoring: ScoringConfig{
			MaxLedger:   confidence.DefaultMaxLedger,
			MaxContexts: confidence.DefaultMaxContexts,
		},
		Experiments: ExperimentsConfig{
			DefaultConfidenceLevel: experiment.DefaultConfidenceLevel,
			DefaultMinSampleSize:   experiment.DefaultMinimumSampleSize,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// DefaultPredictors is a constant baseline, so a fresh service answers
// before anything was learned, plus the two learning predictors.
func DefaultPredictors() []PredictorConfig {
	return []PredictorConfig{
		{ID: "baseline", Type: "constant", Weight: 1, Value: 0.0, Confidence: 0.3},
		{ID: "moving_average", Type: "moving_average", Weight: 1, Alpha: 0.2},
		{ID: "linear", Type: "linear", Weight: 1, MinObservations: 5, Feature: "x"},
	}
}
