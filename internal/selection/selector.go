// Package selection picks which predictors to run for a context from their
// smoothed performance history.
package selection

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haskel/quorum/internal/ensemble"
	"github.com/haskel/quorum/internal/logger"
	"github.com/haskel/quorum/internal/metrics"
	"github.com/haskel/quorum/internal/prediction"
	"github.com/haskel/quorum/internal/storage"
)

const (
	DefaultAlpha     = 0.1
	DefaultMaxModels = 3

	fullConfidenceSamples = 10
	keyPerformancePrefix  = "performance/"
)

// ResourceSampler reports the current memory and CPU usage of the process in percent.
type ResourceSampler interface {
	ResourceUsage() (memoryPercent, cpuPercent float64, ok bool)
}

// Option configures a Selector.
type Option func(*Selector)

// WithStore persists performance metrics. Nil keeps them in memory only.
func WithStore(s storage.Store) Option {
	return func(sel *Selector) {
		sel.store = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(sel *Selector) {
		sel.logger = logger.Component(l, "selection")
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(sel *Selector) {
		if now != nil {
			sel.now = now
		}
	}
}

// WithAlpha overrides the smoothing factor (0 < alpha <= 1).
func WithAlpha(alpha float64) Option {
	return func(sel *Selector) {
		if alpha > 0 && alpha <= 1 {
			sel.alpha = alpha
		}
	}
}

// WithStrategies overrides the class to strategy mapping.
func WithStrategies(cfg Config) Option {
	return func(sel *Selector) {
		sel.factory = NewFactory(cfg)
	}
}

// WithResourceSampler fills memory and CPU usage of invocation reports.
func WithResourceSampler(s ResourceSampler) Option {
	return func(sel *Selector) {
		sel.sampler = s
	}
}

// Selector owns the performance ledger and chooses predictors per context.
type Selector struct {
	mu      sync.RWMutex
	history map[string]*Metrics

	version uint64

	persistMu sync.Mutex
	written   map[string]uint64
	store     storage.Store
	factory   *Factory
	sampler   ResourceSampler
	alpha     float64
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a selector with an empty performance ledger.
func New(opts ...Option) *Selector {
	s := &Selector{
		history: make(map[string]*Metrics),
		written: make(map[string]uint64),
		factory: NewFactory(Config{}),
		alpha:   DefaultAlpha,
		logger:  logger.Discard(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelectOptimalModels classifies the context, ranks candidates with the class
// strategy, keeps the first maxModels and orders them by unified score.
// maxModels <= 0 means DefaultMaxModels.
func (s *Selector) SelectOptimalModels(candidates []Candidate, pctx prediction.Context, criteria Criteria, maxModels int) []Scored {
	if maxModels <= 0 {
		maxModels = DefaultMaxModels
	}

	class := Classify(pctx)
	strategyType, strategy := s.factory.ForClass(class)

	history := s.snapshot()
	ranked := strategy.Rank(candidates, pctx, criteria, history)
	if len(ranked) > maxModels {
		ranked = ranked[:maxModels]
	}

	key := pctx.Key()
	out := make([]Scored, len(ranked))
	for i, c := range ranked {
		out[i] = Scored{
			Candidate: c,
			Score:     UnifiedScore(history[c.PredictorID], key, criteria),
			Class:     class,
			Strategy:  strategyType,
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	metrics.Selections.WithLabelValues(class.String(), strategyType.String()).Inc()
	s.logger.Debug("models selected",
		"class", class,
		"strategy", strategyType,
		"candidates", len(candidates),
		"selected", len(out),
	)
	return out
}

// UpdateModelPerformance folds one observation into the predictor's metrics
// and the entry for the context key.
func (s *Selector) UpdateModelPerformance(ctx context.Context, predictorID string, pctx prediction.Context, obs Observation) {
	now := s.now()
	key := pctx.Key()
	latencyMs := float64(obs.Latency) / float64(time.Millisecond)
	success := 0.0
	if obs.Success {
		success = 1
	}
	acc := prediction.Clamp01(obs.Accuracy)

	s.mu.Lock()
	m, ok := s.history[predictorID]
	if !ok {
		m = &Metrics{
			PredictorID: predictorID,
			Contexts:    make(map[prediction.ContextKey]*ContextPerformance),
		}
		s.history[predictorID] = m
	}
	if obs.PredictorType != "" {
		m.PredictorType = obs.PredictorType
	}

	if m.SampleCount == 0 {
		// First observation - use the values directly
		m.LatencyMs = latencyMs
		m.MemoryUsage = obs.MemoryUsage
		m.CPUUsage = obs.CPUUsage
		m.SuccessRate = success
	} else {
		m.LatencyMs = s.ema(m.LatencyMs, latencyMs)
		m.MemoryUsage = s.ema(m.MemoryUsage, obs.MemoryUsage)
		m.CPUUsage = s.ema(m.CPUUsage, obs.CPUUsage)
		m.SuccessRate = s.ema(m.SuccessRate, success)
	}
	m.SampleCount++

	if obs.AccuracyKnown {
		if m.AccuracySamples == 0 {
			m.Accuracy = acc
		} else {
			m.Accuracy = s.ema(m.Accuracy, acc)
		}
		m.AccuracySamples++
	}

	cp, ok := m.Contexts[key]
	if !ok {
		cp = &ContextPerformance{LatencyMs: latencyMs}
		m.Contexts[key] = cp
	} else {
		cp.LatencyMs = s.ema(cp.LatencyMs, latencyMs)
	}
	if obs.AccuracyKnown {
		if cp.AccuracySamples == 0 {
			cp.Accuracy = acc
		} else {
			cp.Accuracy = s.ema(cp.Accuracy, acc)
		}
		cp.AccuracySamples++
	}
	cp.SampleCount++
	cp.Confidence = min(cp.SampleCount/fullConfidenceSamples, 1)

	m.LastUpdated = now
	snapshot := s.versioned(m)
	s.mu.Unlock()

	s.persist(ctx, snapshot)

	kind := "usage"
	if obs.AccuracyKnown {
		kind = "outcome"
	}
	metrics.PerformanceUpdates.WithLabelValues(kind).Inc()
}

func (s *Selector) ema(prev, next float64) float64 {
	return s.alpha*next + (1-s.alpha)*prev
}

// RecordUsage folds a successful aggregator invocation into the ledger.
// Accuracy is not known at this point.
func (s *Selector) RecordUsage(ctx context.Context, u ensemble.Usage) {
	obs := Observation{
		PredictorType: u.PredictorType,
		Latency:       u.Latency,
		Success:       true,
	}
	if s.sampler != nil {
		if mem, cpu, ok := s.sampler.ResourceUsage(); ok {
			obs.MemoryUsage = mem
			obs.CPUUsage = cpu
		}
	}
	s.UpdateModelPerformance(ctx, u.PredictorID, u.Context, obs)
}

// Decay scales the per-context evidence of every predictor by factor (0 < factor < 1),
// lowering the confidence of contexts that stop receiving samples.
func (s *Selector) Decay(ctx context.Context, factor float64) {
	if factor <= 0 || factor >= 1 {
		return
	}

	s.mu.Lock()
	changed := make([]versionedMetrics, 0, len(s.history))
	for _, m := range s.history {
		for _, cp := range m.Contexts {
			cp.SampleCount *= factor
			cp.Confidence = min(cp.SampleCount/fullConfidenceSamples, 1)
		}
		changed = append(changed, s.versioned(m))
	}
	s.mu.Unlock()

	for _, m := range changed {
		s.persist(ctx, m)
	}
	s.logger.Debug("performance decayed", "factor", factor, "predictors", len(changed))
}

// Performance returns a copy of a predictor's metrics.
func (s *Selector) Performance(predictorID string) (*Metrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.history[predictorID]
	if !ok {
		return nil, false
	}
	return m.clone(), true
}

// All returns copies of every predictor's metrics ordered by id.
func (s *Selector) All() []*Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Metrics, 0, len(s.history))
	for _, m := range s.history {
		out = append(out, m.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PredictorID < out[j].PredictorID
	})
	return out
}

func (s *Selector) snapshot() History {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := make(History, len(s.history))
	for id, m := range s.history {
		h[id] = m.clone()
	}
	return h
}

type versionedMetrics struct {
	*Metrics
	version uint64
}

// versioned copies m and stamps it with the next write version. Callers hold mu.
func (s *Selector) versioned(m *Metrics) versionedMetrics {
	s.version++
	return versionedMetrics{Metrics: m.clone(), version: s.version}
}

// persist writes one record unless a newer copy of it was already written.
// It runs without mu so readers never wait on the store.
func (s *Selector) persist(ctx context.Context, vm versionedMetrics) {
	if s.store == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	m := vm.Metrics
	if s.written[m.PredictorID] >= vm.version {
		return
	}
	s.written[m.PredictorID] = vm.version
	ctx = context.WithoutCancel(ctx)
	key := keyPerformancePrefix + m.PredictorID

	if err := storage.PutJSON(ctx, s.store, key, m); err != nil {
		metrics.StorageFailures.WithLabelValues("selection", "put").Inc()
		sf := &prediction.StorageFailure{Op: "put", Key: key, Err: err}
		s.logger.Warn("performance persistence failed", "error", sf)
	}
}

// Load restores performance metrics from the store.
func (s *Selector) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	items, err := s.store.List(ctx, keyPerformancePrefix)
	if err != nil {
		return &prediction.StorageFailure{Op: "list", Key: keyPerformancePrefix, Err: err}
	}

	loaded := make(map[string]*Metrics, len(items))
	for _, it := range items {
		var m Metrics
		if err := json.Unmarshal(it.Value, &m); err != nil {
			s.logger.Warn("skipping corrupt performance record", "key", it.Key, "error", err)
			continue
		}
		if m.PredictorID == "" {
			m.PredictorID = strings.TrimPrefix(it.Key, keyPerformancePrefix)
		}
		if m.Contexts == nil {
			m.Contexts = make(map[prediction.ContextKey]*ContextPerformance)
		}
		loaded[m.PredictorID] = &m
	}
	s.mu.Lock()
	s.history = loaded
	s.mu.Unlock()

	s.logger.Info("performance state loaded", "predictors", len(loaded))
	return nil
}
