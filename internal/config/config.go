package config

import (
	"time"

	"github.com/haskel/quorum/internal/selection"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
	Ensemble    EnsembleConfig    `yaml:"ensemble"`
	Selection   SelectionConfig   `yaml:"selection"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Experiments ExperimentsConfig `yaml:"experiments"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Debug       DebugConfig       `yaml:"debug"`
}

// DebugConfig holds debug mode configuration.
type DebugConfig struct {
	// Enabled exposes /debug/status.
	Enabled bool `yaml:"enabled"`
	// Auth holds debug-specific authentication.
	// If not set but main auth is enabled, main auth is used.
	Auth DebugAuthConfig `yaml:"auth"`
}

// DebugAuthConfig holds debug endpoint authentication.
type DebugAuthConfig struct {
	// Token for Bearer authentication on debug endpoints.
	Token string `yaml:"token" env:"QUORUM_DEBUG_TOKEN"`
}

type ServerConfig struct {
	Host         string          `yaml:"host" env:"QUORUM_HOST"`
	Port         int             `yaml:"port" env:"QUORUM_PORT"`
	PIDFile      string          `yaml:"pid_file" env:"QUORUM_PID_FILE"`
	MaxBodyBytes int64           `yaml:"max_body_bytes"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
	Profiling    ProfilingConfig `yaml:"profiling"`
}

type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type ProfilingConfig struct {
	Enabled bool `yaml:"enabled"`
}

type AuthConfig struct {
	Enabled  bool   `yaml:"enabled" env:"QUORUM_AUTH_ENABLED"`
	User     string `yaml:"user" env:"QUORUM_AUTH_USER"`
	Password string `yaml:"password" env:"QUORUM_AUTH_PASSWORD"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"QUORUM_LOG_LEVEL"`
	Format string `yaml:"format" env:"QUORUM_LOG_FORMAT"`
}

type PersistenceConfig struct {
	// Backend is one of memory, file, badger, sqlite.
	Backend          string `yaml:"backend" env:"QUORUM_STORAGE_BACKEND"`
	DataDir          string `yaml:"data_dir" env:"QUORUM_DATA_DIR"`
	FlushIntervalSec int    `yaml:"flush_interval_sec"`
}

type MonitoringConfig struct {
	Enabled    bool `yaml:"enabled"`
	IntervalMS int  `yaml:"interval_ms"`
}

type EnsembleConfig struct {
	Strategy            string             `yaml:"strategy"`
	ConfidenceThreshold float64            `yaml:"confidence_threshold"`
	PredictorTimeoutMS  int                `yaml:"predictor_timeout_ms"`
	MaxConcurrency      int                `yaml:"max_concurrency"`
	ContextWeights      map[string]float64 `yaml:"context_weights"`
	Predictors          []PredictorConfig  `yaml:"predictors"`
}

// PredictorConfig declares one reference predictor and its ensemble entry.
type PredictorConfig struct {
	ID             string   `yaml:"id"`
	Type           string   `yaml:"type"`
	Weight         float64  `yaml:"weight"`
	Enabled        *bool    `yaml:"enabled"`
	ContextFilters []string `yaml:"context_filters"`

	// moving_average
	Alpha float64 `yaml:"alpha"`

	// linear, polynomial
	MinObservations int    `yaml:"min_observations"`
	Feature         string `yaml:"feature"`
	Degree          int    `yaml:"degree"`

	// constant
	Value      any     `yaml:"value"`
	Confidence float64 `yaml:"confidence"`
}

// IsEnabled reports whether the predictor takes part in predictions. Unset means enabled.
func (p PredictorConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

type SelectionConfig struct {
	Alpha           float64                                           `yaml:"alpha"`
	MaxModels       int                                               `yaml:"max_models"`
	DecayFactor     float64                                           `yaml:"decay_factor"`
	TickIntervalSec int                                               `yaml:"tick_interval_sec"`
	Criteria        selection.Criteria                                `yaml:"criteria"`
	Strategies      map[selection.ContextClass]selection.StrategyType `yaml:"strategies"`
}

type ScoringConfig struct {
	MaxLedger   int `yaml:"max_ledger"`
	MaxContexts int `yaml:"max_contexts"`
}

type ExperimentsConfig struct {
	DefaultConfidenceLevel float64 `yaml:"default_confidence_level"`
	DefaultMinSampleSize   int     `yaml:"default_min_sample_size"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"QUORUM_METRICS_ENABLED"`
	Path    string `yaml:"path"`
}

func (c *Config) MonitoringInterval() time.Duration {
	return time.Duration(c.Monitoring.IntervalMS) * time.Millisecond
}

func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Persistence.FlushIntervalSec) * time.Second
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Selection.TickIntervalSec) * time.Second
}

func (c *Config) PredictorTimeout() time.Duration {
	return time.Duration(c.Ensemble.PredictorTimeoutMS) * time.Millisecond
}
