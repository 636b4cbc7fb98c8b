// Package engine wires model selection, ensemble aggregation, confidence
// scoring and experiments into a single prediction service.
package engine

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/haskel/quorum/internal/confidence"
	"github.com/haskel/quorum/internal/ensemble"
	"github.com/haskel/quorum/internal/experiment"
	"github.com/haskel/quorum/internal/logger"
	"github.com/haskel/quorum/internal/metrics"
	"github.com/haskel/quorum/internal/prediction"
	"github.com/haskel/quorum/internal/selection"
	"github.com/haskel/quorum/internal/storage"
)

var tracer = otel.Tracer("quorum.engine")

const (
	DefaultMaxPending  = 10000
	DefaultDecayFactor = 0.95
)

// Config holds engine configuration.
type Config struct {
	Ensemble    ensemble.Config
	Criteria    selection.Criteria
	MaxModels   int
	DecayFactor float64
	MaxPending  int
}

// Predictor is a predictor together with its ensemble entry.
type Predictor struct {
	Entry ensemble.Entry
	Model ensemble.Predictor
}

// observer is implemented by predictors that learn from outcomes.
type observer interface {
	Observe(pctx prediction.Context, input, actual any)
}

// persistent is implemented by predictors with saveable state.
type persistent interface {
	storage.Saveable
	storage.Loadable
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	store       storage.Store
	logger      *slog.Logger
	now         func() time.Time
	sampler     selection.ResourceSampler
	selector    []selection.Option
	scorer      []confidence.Option
	experiments []experiment.Option
}

// WithStore persists every component's state. Nil keeps state in memory only.
func WithStore(s storage.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock sets the time source of every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithResourceSampler feeds process resource usage into the selector.
func WithResourceSampler(s selection.ResourceSampler) Option {
	return func(o *options) {
		o.sampler = s
	}
}

// WithSelectorOptions appends selector options.
func WithSelectorOptions(opts ...selection.Option) Option {
	return func(o *options) {
		o.selector = append(o.selector, opts...)
	}
}

// WithScorerOptions appends scorer options.
func WithScorerOptions(opts ...confidence.Option) Option {
	return func(o *options) {
		o.scorer = append(o.scorer, opts...)
	}
}

// WithExperimentOptions appends experiment framework options.
func WithExperimentOptions(opts ...experiment.Option) Option {
	return func(o *options) {
		o.experiments = append(o.experiments, opts...)
	}
}

// Request is a prediction request.
type Request struct {
	Input      any                 `json:"input"`
	Context    prediction.Context  `json:"context"`
	MaxModels  int                 `json:"max_models,omitempty"`
	Criteria   *selection.Criteria `json:"criteria,omitempty"`
	Historical []confidence.Record `json:"historical,omitempty"`
}

// Response is the result of a prediction request.
type Response struct {
	Prediction *prediction.AggregatedPrediction `json:"prediction"`
	Confidence *prediction.ConfidenceScore      `json:"confidence"`
	Selected   []selection.Scored               `json:"selected"`
}

// OutcomeReport summarizes how a prediction compared to its outcome.
type OutcomeReport struct {
	PredictionID string             `json:"prediction_id"`
	Accuracy     float64            `json:"accuracy"`
	Predictors   map[string]float64 `json:"predictors"`
}

// ModelInfo describes a registered predictor.
type ModelInfo struct {
	Entry       ensemble.Entry     `json:"entry"`
	Performance *selection.Metrics `json:"performance,omitempty"`
}

// pending is a prediction awaiting its outcome.
type pending struct {
	id         string
	input      any
	context    prediction.Context
	prediction *prediction.AggregatedPrediction
	elem       *list.Element
}

// Engine answers prediction requests and learns from their outcomes.
type Engine struct {
	cfg         Config
	entries     []ensemble.Entry
	models      map[string]ensemble.Predictor
	aggregator  *ensemble.Aggregator
	selector    *selection.Selector
	scorer      *confidence.Scorer
	experiments *experiment.Framework
	modelStore  *storage.ModelStorage
	store       storage.Store
	logger      *slog.Logger

	mu      sync.Mutex
	pending map[string]*pending
	order   *list.List
}

// New creates an engine over the given predictors. Every predictor must have an entry
// in cfg.Ensemble; predictors without one are added enabled with weight 1.
func New(cfg Config, predictors []Predictor, opts ...Option) (*Engine, error) {
	o := options{
		logger: logger.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Discard()
	}

	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	if cfg.MaxModels <= 0 {
		cfg.MaxModels = selection.DefaultMaxModels
	}

	registry := ensemble.NewMemoryRegistry()
	models := make(map[string]ensemble.Predictor, len(predictors))
	known := make(map[string]bool, len(cfg.Ensemble.Entries))
	for _, e := range cfg.Ensemble.Entries {
		known[e.PredictorID] = true
	}
	for _, p := range predictors {
		if p.Model == nil {
			return nil, prediction.NewValidationError(prediction.RuleInvalidField,
				"predictor %s has no model", p.Entry.PredictorID)
		}
		registry.Register(p.Entry.PredictorID, p.Model)
		models[p.Entry.PredictorID] = p.Model
		if !known[p.Entry.PredictorID] {
			e := p.Entry
			e.Enabled = true
			if e.Weight == 0 {
				e.Weight = 1
			}
			cfg.Ensemble.Entries = append(cfg.Ensemble.Entries, e)
			known[e.PredictorID] = true
		}
	}

	selectorOpts := []selection.Option{
		selection.WithStore(o.store),
		selection.WithLogger(o.logger),
		selection.WithClock(o.now),
	}
	if o.sampler != nil {
		selectorOpts = append(selectorOpts, selection.WithResourceSampler(o.sampler))
	}
	selector := selection.New(append(selectorOpts, o.selector...)...)

	aggregator, err := ensemble.New(cfg.Ensemble, registry,
		ensemble.WithLogger(o.logger),
		ensemble.WithClock(o.now),
		ensemble.WithUsageRecorder(selector),
	)
	if err != nil {
		return nil, err
	}

	scorer := confidence.New(append([]confidence.Option{
		confidence.WithStore(o.store),
		confidence.WithLogger(o.logger),
		confidence.WithClock(o.now),
	}, o.scorer...)...)

	e := &Engine{
		cfg:        cfg,
		entries:    aggregator.Config().Entries,
		models:     models,
		aggregator: aggregator,
		selector:   selector,
		scorer:     scorer,
		store:      o.store,
		logger:     logger.Component(o.logger, "engine"),
		pending:    make(map[string]*pending),
		order:      list.New(),
	}
	e.experiments = experiment.New(registry, append([]experiment.Option{
		experiment.WithStore(o.store),
		experiment.WithLogger(o.logger),
		experiment.WithClock(o.now),
		experiment.WithOutcomeRecorder(e.learn),
	}, o.experiments...)...)
	if o.store != nil {
		e.modelStore = storage.NewModelStorage(o.store, e.logger)
	}
	return e, nil
}

// Selector returns the model selector.
func (e *Engine) Selector() *selection.Selector { return e.selector }

// Scorer returns the confidence scorer.
func (e *Engine) Scorer() *confidence.Scorer { return e.scorer }

// Experiments returns the experiment framework.
func (e *Engine) Experiments() *experiment.Framework { return e.experiments }

// Aggregator returns the ensemble aggregator.
func (e *Engine) Aggregator() *ensemble.Aggregator { return e.aggregator }

// Predict selects predictors for the context, aggregates their outputs and scores the result.
// Before any predictor has a performance history every matching predictor runs.
func (e *Engine) Predict(ctx context.Context, req Request) (*Response, error) {
	pctx := req.Context.Normalize()
	if pctx.TaskType == "" {
		return nil, prediction.NewValidationError(prediction.RuleInvalidField, "context.task_type is required")
	}

	ctx, span := tracer.Start(ctx, "Engine.Predict",
		trace.WithAttributes(attribute.String("engine.context_key", string(pctx.Key()))),
	)
	defer span.End()

	criteria := selection.DefaultCriteria()
	if req.Criteria != nil {
		criteria = *req.Criteria
	}
	maxModels := req.MaxModels
	if maxModels <= 0 {
		maxModels = e.cfg.MaxModels
	}

	candidates := e.candidates(pctx)
	selected := e.selector.SelectOptimalModels(candidates, pctx, criteria, maxModels)

	ids := make([]string, 0, len(selected))
	for _, s := range selected {
		ids = append(ids, s.PredictorID)
	}
	if len(ids) == 0 {
		e.logger.Debug("no performance history, running all predictors", "context", pctx.Key())
		for _, c := range candidates {
			ids = append(ids, c.PredictorID)
		}
	} else {
		ids = e.explore(ids, candidates, maxModels)
	}
	span.SetAttributes(attribute.StringSlice("engine.selected", ids))

	agg, err := e.aggregator.Predict(ctx, req.Input, pctx, ensemble.WithPredictors(ids...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregation failed")
		return nil, err
	}

	score := e.scorer.CalculateConfidence(agg.Predictions, pctx, req.Historical)
	e.remember(&pending{
		id:         agg.ID,
		input:      req.Input,
		context:    pctx,
		prediction: agg,
	})

	return &Response{
		Prediction: agg,
		Confidence: score,
		Selected:   selected,
	}, nil
}

// explore adds candidates the selector has never seen, up to maxModels in total.
// A predictor only enters the ledger after a successful run, so one that failed
// during cold start would otherwise never be selected again.
func (e *Engine) explore(ids []string, candidates []selection.Candidate, maxModels int) []string {
	chosen := make(map[string]bool, len(ids))
	for _, id := range ids {
		chosen[id] = true
	}
	for _, c := range candidates {
		if len(ids) >= maxModels {
			break
		}
		if chosen[c.PredictorID] {
			continue
		}
		if _, seen := e.selector.Performance(c.PredictorID); seen {
			continue
		}
		ids = append(ids, c.PredictorID)
	}
	return ids
}

// candidates returns the enabled predictors whose filters match the context.
func (e *Engine) candidates(pctx prediction.Context) []selection.Candidate {
	out := make([]selection.Candidate, 0, len(e.entries))
	for _, entry := range e.entries {
		if !entry.Enabled || !pctx.MatchesFilters(entry.ContextFilters) {
			continue
		}
		out = append(out, selection.Candidate{
			PredictorID:   entry.PredictorID,
			PredictorType: entry.Type(),
		})
	}
	return out
}

// remember stores a prediction for RecordOutcome, evicting the oldest beyond MaxPending.
func (e *Engine) remember(p *pending) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p.elem = e.order.PushBack(p.id)
	e.pending[p.id] = p
	for len(e.pending) > e.cfg.MaxPending {
		oldest := e.order.Front()
		e.order.Remove(oldest)
		delete(e.pending, oldest.Value.(string))
	}
	metrics.PendingPredictions.Set(float64(len(e.pending)))
}

// Pending returns the number of predictions awaiting an outcome.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// RecordOutcome scores a remembered prediction against the actual outcome and
// feeds the result to every component.
func (e *Engine) RecordOutcome(ctx context.Context, predictionID string, actual any) (*OutcomeReport, error) {
	if actual == nil {
		return nil, prediction.NewValidationError(prediction.RuleInvalidField, "actual outcome is required")
	}

	e.mu.Lock()
	p, ok := e.pending[predictionID]
	if ok {
		e.order.Remove(p.elem)
		delete(e.pending, predictionID)
		metrics.PendingPredictions.Set(float64(len(e.pending)))
	}
	e.mu.Unlock()
	if !ok {
		return nil, prediction.NotFoundError("prediction", predictionID)
	}

	ctx, span := tracer.Start(ctx, "Engine.RecordOutcome",
		trace.WithAttributes(attribute.String("engine.prediction_id", predictionID)),
	)
	defer span.End()

	report := &OutcomeReport{
		PredictionID: predictionID,
		Accuracy:     prediction.Accuracy(p.prediction.Value, actual),
		Predictors:   make(map[string]float64, len(p.prediction.Predictions)),
	}

	for _, mp := range p.prediction.Predictions {
		acc := e.aggregator.RecordPredictionOutcome(mp.PredictorID, mp.Value, actual, p.context)
		report.Predictors[mp.PredictorID] = acc
		mp.Context = p.context
		e.learn(ctx, mp, acc)
	}

	for _, id := range e.modelIDs() {
		if o, ok := e.models[id].(observer); ok {
			o.Observe(p.context, p.input, actual)
		}
	}

	metrics.OutcomeAccuracy.Observe(report.Accuracy)
	span.SetAttributes(attribute.Float64("engine.accuracy", report.Accuracy))
	e.logger.Debug("outcome recorded",
		"prediction", predictionID,
		"accuracy", report.Accuracy,
		"predictors", len(report.Predictors),
	)
	return report, nil
}

// learn feeds one scored model prediction to the scorer and the selector.
func (e *Engine) learn(ctx context.Context, mp prediction.ModelPrediction, acc float64) {
	e.scorer.UpdateCalibration(ctx, mp.PredictorID, mp.Confidence, acc, mp.Context)
	e.selector.UpdateModelPerformance(ctx, mp.PredictorID, mp.Context, selection.Observation{
		PredictorType: mp.PredictorType,
		Latency:       mp.Latency,
		Success:       true,
		Accuracy:      acc,
		AccuracyKnown: true,
	})
}

func (e *Engine) modelIDs() []string {
	ids := make([]string, 0, len(e.models))
	for id := range e.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Models returns every registered predictor with its performance, ordered by id.
func (e *Engine) Models() []ModelInfo {
	out := make([]ModelInfo, 0, len(e.entries))
	for _, entry := range e.entries {
		info := ModelInfo{Entry: entry}
		if m, ok := e.selector.Performance(entry.PredictorID); ok {
			info.Performance = m
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Entry.PredictorID < out[j].Entry.PredictorID
	})
	return out
}

// Tick runs periodic maintenance: performance decay, predictor state saves and a store flush.
func (e *Engine) Tick(ctx context.Context) error {
	e.aggregator.Wait()
	e.selector.Decay(ctx, e.cfg.DecayFactor)

	var errs []error
	if err := e.saveModels(ctx); err != nil {
		errs = append(errs, err)
	}
	if f, ok := e.store.(storage.Flusher); ok {
		if err := f.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush store: %w", err))
		}
	}

	err := errors.Join(errs...)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.Ticks.WithLabelValues(result).Inc()
	return err
}

func (e *Engine) saveModels(ctx context.Context) error {
	if e.modelStore == nil {
		return nil
	}
	var errs []error
	for _, id := range e.modelIDs() {
		if p, ok := e.models[id].(persistent); ok {
			if err := e.modelStore.SaveModel(ctx, id, p); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Load restores every component's state from the store.
func (e *Engine) Load(ctx context.Context) error {
	if e.store == nil {
		return nil
	}

	var errs []error
	if err := e.selector.Load(ctx); err != nil {
		errs = append(errs, fmt.Errorf("load performance: %w", err))
	}
	if err := e.scorer.Load(ctx); err != nil {
		errs = append(errs, fmt.Errorf("load calibration: %w", err))
	}
	if err := e.experiments.Load(ctx); err != nil {
		errs = append(errs, fmt.Errorf("load experiments: %w", err))
	}
	for _, id := range e.modelIDs() {
		if p, ok := e.models[id].(persistent); ok {
			if err := e.modelStore.LoadModel(ctx, id, p); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close waits for pending usage reports and saves predictor state.
// The store is owned by the caller.
func (e *Engine) Close(ctx context.Context) error {
	e.aggregator.Wait()
	return e.saveModels(ctx)
}
