package config

import (
	"errors"
	"fmt"

	"github.com/haskel/quorum/internal/prediction"
	"github.com/haskel/quorum/internal/predictor"
	"github.com/haskel/quorum/internal/storage/backend"
)

func (c *Config) Validate() error {
	var errs []error

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}

	if err := c.Auth.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("auth: %w", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if err := c.Persistence.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("persistence: %w", err))
	}

	if err := c.Monitoring.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("monitoring: %w", err))
	}

	if err := c.Ensemble.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ensemble: %w", err))
	}

	if err := c.Selection.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("selection: %w", err))
	}

	if err := c.Scoring.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scoring: %w", err))
	}

	if err := c.Experiments.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("experiments: %w", err))
	}

	if err := c.validateDebugSecurity(); err != nil {
		errs = append(errs, fmt.Errorf("debug: %w", err))
	}

	return errors.Join(errs...)
}

// validateDebugSecurity refuses debug or profiling endpoints that nobody authenticates.
func (c *Config) validateDebugSecurity() error {
	if !c.Debug.Enabled && !c.Server.Profiling.Enabled {
		return nil
	}
	if c.Debug.Auth.Token != "" || c.Auth.Enabled {
		return nil
	}
	return fmt.Errorf("debug and profiling endpoints require debug.auth.token or auth.enabled")
}

func (s *ServerConfig) Validate() error {
	var errs []error

	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", s.Port))
	}
	if s.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("max_body_bytes must be non-negative"))
	}
	if s.RateLimit.Enabled {
		if s.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.requests_per_second must be positive"))
		}
		if s.RateLimit.Burst < 1 {
			errs = append(errs, fmt.Errorf("rate_limit.burst must be at least 1"))
		}
	}

	return errors.Join(errs...)
}

func (a *AuthConfig) Validate() error {
	if a.Enabled {
		if a.User == "" {
			return fmt.Errorf("user cannot be empty when auth is enabled")
		}
		if a.Password == "" {
			return fmt.Errorf("password cannot be empty when auth is enabled")
		}
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", l.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[l.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", l.Format)
	}

	return nil
}

func (p *PersistenceConfig) Validate() error {
	kind := backend.Kind(p.Backend)
	if !kind.IsValid() {
		return fmt.Errorf("invalid backend: %s (valid: memory, file, badger, sqlite)", p.Backend)
	}
	if kind == backend.KindMemory {
		return nil
	}
	if p.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	if kind == backend.KindFile && p.FlushIntervalSec < 1 {
		return fmt.Errorf("flush_interval_sec must be at least 1")
	}
	return nil
}

func (m *MonitoringConfig) Validate() error {
	if m.Enabled && m.IntervalMS < 100 {
		return fmt.Errorf("interval_ms must be at least 100, got %d", m.IntervalMS)
	}
	return nil
}

func (e *EnsembleConfig) Validate() error {
	var errs []error

	if !prediction.Method(e.Strategy).IsValid() {
		errs = append(errs, fmt.Errorf("invalid strategy: %s (valid: weighted_average, voting, stacking, dynamic)", e.Strategy))
	}
	if e.ConfidenceThreshold < 0 || e.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("confidence_threshold must be between 0 and 1"))
	}
	if e.PredictorTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("predictor_timeout_ms must be non-negative"))
	}
	if e.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("max_concurrency must be non-negative"))
	}
	if len(e.Predictors) == 0 {
		errs = append(errs, fmt.Errorf("at least one predictor is required"))
	}

	seen := make(map[string]bool, len(e.Predictors))
	for i, p := range e.Predictors {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("predictors[%d]: %w", i, err))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("predictors[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true
	}

	return errors.Join(errs...)
}

func (p *PredictorConfig) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id cannot be empty")
	}
	t := predictor.Type(p.Type)
	if !t.IsValid() {
		return fmt.Errorf("invalid type: %s (valid: constant, moving_average, linear, polynomial)", p.Type)
	}
	if p.Weight < 0 {
		return fmt.Errorf("weight must be non-negative")
	}
	if t == predictor.TypeConstant && p.Value == nil {
		return fmt.Errorf("constant predictor requires a value")
	}
	if p.Alpha < 0 || p.Alpha > 1 {
		return fmt.Errorf("alpha must be between 0 and 1")
	}
	if p.Degree < 0 || p.Degree > 5 {
		return fmt.Errorf("degree must be between 1 and 5")
	}
	return nil
}

func (s *SelectionConfig) Validate() error {
	var errs []error

	if s.Alpha <= 0 || s.Alpha > 1 {
		errs = append(errs, fmt.Errorf("alpha must be in (0, 1], got %v", s.Alpha))
	}
	if s.MaxModels < 1 {
		errs = append(errs, fmt.Errorf("max_models must be at least 1"))
	}
	if s.DecayFactor <= 0 || s.DecayFactor > 1 {
		errs = append(errs, fmt.Errorf("decay_factor must be in (0, 1], got %v", s.DecayFactor))
	}
	if s.TickIntervalSec < 1 {
		errs = append(errs, fmt.Errorf("tick_interval_sec must be at least 1"))
	}
	if err := s.strategies().Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (s *ScoringConfig) Validate() error {
	if s.MaxLedger < 1 {
		return fmt.Errorf("max_ledger must be at least 1")
	}
	if s.MaxContexts < 1 {
		return fmt.Errorf("max_contexts must be at least 1")
	}
	return nil
}

func (e *ExperimentsConfig) Validate() error {
	if e.DefaultConfidenceLevel <= 0 || e.DefaultConfidenceLevel >= 1 {
		return fmt.Errorf("default_confidence_level must be in (0, 1)")
	}
	if e.DefaultMinSampleSize < 1 {
		return fmt.Errorf("default_min_sample_size must be at least 1")
	}
	return nil
}
