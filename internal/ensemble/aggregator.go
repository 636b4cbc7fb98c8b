package ensemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/haskel/quorum/internal/logger"
	"github.com/haskel/quorum/internal/metrics"
	"github.com/haskel/quorum/internal/prediction"
)

var tracer = otel.Tracer("quorum.ensemble")

var errPredictorPanic = errors.New("predictor panicked")

// Usage describes one successful predictor invocation. Accuracy is not known yet.
type Usage struct {
	PredictorID   string
	PredictorType string
	Context       prediction.Context
	Latency       time.Duration
}

// UsageRecorder receives invocation reports after each aggregation.
// Failed or timed-out invocations are not reported.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, u Usage)
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger.Component(l, "ensemble")
	}
}

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithUsageRecorder sets the recorder notified of every invocation.
func WithUsageRecorder(r UsageRecorder) Option {
	return func(a *Aggregator) {
		a.recorder = r
	}
}

// PredictOption tunes a single Predict call.
type PredictOption func(*predictOptions)

type predictOptions struct {
	only map[string]bool
}

// WithPredictors restricts the call to the given predictor ids.
func WithPredictors(ids ...string) PredictOption {
	return func(o *predictOptions) {
		if o.only == nil {
			o.only = make(map[string]bool, len(ids))
		}
		for _, id := range ids {
			o.only[id] = true
		}
	}
}

// Aggregator runs an ensemble of predictors and combines their outputs.
type Aggregator struct {
	cfg        Config
	predictors Registry
	history    *history
	recorder   UsageRecorder
	logger     *slog.Logger
	now        func() time.Time

	wg sync.WaitGroup
}

// New creates an aggregator. Every enabled entry must resolve in the registry.
func New(cfg Config, predictors Registry, opts ...Option) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ensemble config: %w", err)
	}
	if predictors == nil {
		return nil, prediction.NewValidationError(prediction.RuleInvalidField, "predictor registry is required")
	}
	for _, e := range cfg.Entries {
		if _, ok := predictors.Get(e.PredictorID); !ok {
			return nil, prediction.NotFoundError("predictor", e.PredictorID)
		}
	}

	a := &Aggregator{
		cfg:        cfg.withDefaults(),
		predictors: predictors,
		history:    newHistory(),
		logger:     logger.Discard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Config returns a copy of the aggregator configuration.
func (a *Aggregator) Config() Config {
	return a.cfg.withDefaults()
}

// candidate is an entry selected for one call.
type candidate struct {
	entry     Entry
	predictor Predictor
}

// Predict runs all matching predictors and aggregates their outputs.
func (a *Aggregator) Predict(ctx context.Context, input any, pctx prediction.Context, opts ...PredictOption) (*prediction.AggregatedPrediction, error) {
	var po predictOptions
	for _, opt := range opts {
		opt(&po)
	}

	ctx, span := tracer.Start(ctx, "Aggregator.Predict",
		trace.WithAttributes(
			attribute.String("ensemble.strategy", string(a.cfg.Strategy)),
			attribute.String("ensemble.context_key", string(pctx.Key())),
		),
	)
	defer span.End()

	candidates := a.candidates(pctx, po)
	preds, usages, failed := a.invokeAll(ctx, candidates, input, pctx)
	a.reportUsage(ctx, usages)

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregation cancelled")
		return nil, fmt.Errorf("aggregation cancelled: %w", err)
	}

	survivors := make([]prediction.ModelPrediction, 0, len(preds))
	for _, p := range preds {
		if p.Confidence >= a.cfg.ConfidenceThreshold {
			survivors = append(survivors, p)
		}
	}

	if len(survivors) == 0 {
		metrics.NoViableModels.Inc()
		err := &prediction.NoViableModelsError{
			Considered: len(candidates),
			Failed:     failed,
			Threshold:  a.cfg.ConfidenceThreshold,
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "no viable models")
		return nil, err
	}

	method := resolveMethod(a.cfg.Strategy, survivors)
	value, confidence := a.aggregate(method, survivors, pctx.Key())
	if len(survivors) == 1 {
		value = survivors[0].Value
	}
	confidence = prediction.Clamp01(confidence)

	result := &prediction.AggregatedPrediction{
		ID:           uuid.NewString(),
		Value:        value,
		Confidence:   confidence,
		Contributors: make([]string, len(survivors)),
		Method:       method,
		Predictions:  survivors,
		Metadata: prediction.AggregatedMetadata{
			PredictorScores: make(map[string]float64, len(survivors)),
			ContextMatch:    a.contextFactor(pctx),
			Timestamp:       a.now(),
		},
	}
	for i, p := range survivors {
		result.Contributors[i] = p.PredictorID
		result.Metadata.PredictorScores[p.PredictorID] = p.Confidence
	}

	metrics.Aggregations.WithLabelValues(string(method)).Inc()
	metrics.AggregatedConfidence.Observe(confidence)
	span.SetAttributes(
		attribute.String("ensemble.method", string(method)),
		attribute.Int("ensemble.survivors", len(survivors)),
		attribute.Float64("ensemble.confidence", confidence),
	)

	a.logger.Debug("prediction aggregated",
		"id", result.ID,
		"method", method,
		"survivors", len(survivors),
		"failed", failed,
		"confidence", confidence,
	)

	return result, nil
}

func (a *Aggregator) aggregate(method prediction.Method, preds []prediction.ModelPrediction, key prediction.ContextKey) (any, float64) {
	switch method {
	case prediction.MethodVoting:
		return vote(preds)
	case prediction.MethodStacking:
		return stack(preds, func(id string) (float64, bool) {
			return a.history.contextAccuracy(id, key)
		})
	default:
		return weightedAverage(preds)
	}
}

func (a *Aggregator) candidates(pctx prediction.Context, po predictOptions) []candidate {
	var out []candidate
	for _, e := range a.cfg.Entries {
		if !e.Enabled {
			continue
		}
		if po.only != nil && !po.only[e.PredictorID] {
			continue
		}
		if !pctx.MatchesFilters(e.ContextFilters) {
			continue
		}
		p, ok := a.predictors.Get(e.PredictorID)
		if !ok {
			a.logger.Warn("predictor not registered", "predictor", e.PredictorID)
			continue
		}
		out = append(out, candidate{entry: e, predictor: p})
	}
	return out
}

// invokeAll calls every candidate concurrently. Results keep config order.
func (a *Aggregator) invokeAll(ctx context.Context, candidates []candidate, input any, pctx prediction.Context) ([]prediction.ModelPrediction, []Usage, int) {
	type slot struct {
		pred prediction.ModelPrediction
		ok   bool
	}
	slots := make([]slot, len(candidates))
	usages := make([]Usage, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	limit := a.cfg.MaxConcurrency
	if limit <= 0 {
		limit = len(candidates)
	}
	if limit > 0 {
		g.SetLimit(limit)
	}

	factor := a.contextFactor(pctx)
	for i, c := range candidates {
		g.Go(func() error {
			start := time.Now()
			out, err := a.invoke(gctx, c, input, pctx)
			latency := time.Since(start)
			metrics.PredictorLatency.WithLabelValues(c.entry.PredictorID).Observe(latency.Seconds())

			if err != nil {
				a.recordFailure(c.entry.PredictorID, err)
				return nil
			}
			metrics.PredictorCalls.WithLabelValues(c.entry.PredictorID, "ok").Inc()
			usages[i] = Usage{
				PredictorID:   c.entry.PredictorID,
				PredictorType: c.entry.Type(),
				Context:       pctx,
				Latency:       latency,
			}

			slots[i] = slot{
				pred: prediction.ModelPrediction{
					PredictorID:   c.entry.PredictorID,
					PredictorType: c.entry.Type(),
					Value:         out.Value,
					RawConfidence: out.Confidence,
					Confidence:    a.scoreConfidence(c.entry, out.Confidence, pctx, factor),
					Latency:       latency,
					Timestamp:     a.now(),
					Context:       pctx,
				},
				ok: true,
			}
			return nil
		})
	}
	_ = g.Wait()

	preds := make([]prediction.ModelPrediction, 0, len(candidates))
	failed := 0
	for _, s := range slots {
		if s.ok {
			preds = append(preds, s.pred)
		} else {
			failed++
		}
	}
	return preds, usages, failed
}

// invoke runs one predictor under the configured timeout and recovers panics.
func (a *Aggregator) invoke(ctx context.Context, c candidate, input any, pctx prediction.Context) (Output, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.PredictorTimeout)
	defer cancel()

	type result struct {
		out Output
		err error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: %v", errPredictorPanic, r)}
			}
		}()
		out, err := c.predictor.Predict(callCtx, input, pctx)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return Output{}, &prediction.PredictorFailure{PredictorID: c.entry.PredictorID, Err: r.err}
		}
		if r.out.Value == nil {
			return Output{}, &prediction.PredictorFailure{
				PredictorID: c.entry.PredictorID,
				Err:         errors.New("empty prediction value"),
			}
		}
		return r.out, nil
	case <-callCtx.Done():
		return Output{}, &prediction.PredictorFailure{
			PredictorID: c.entry.PredictorID,
			Timeout:     errors.Is(callCtx.Err(), context.DeadlineExceeded),
			Err:         callCtx.Err(),
		}
	}
}

func (a *Aggregator) recordFailure(predictorID string, err error) {
	result := "error"
	var pf *prediction.PredictorFailure
	switch {
	case errors.As(err, &pf) && pf.Timeout:
		result = "timeout"
	case errors.Is(err, errPredictorPanic):
		result = "panic"
	}
	metrics.PredictorCalls.WithLabelValues(predictorID, result).Inc()
	a.logger.Warn("predictor skipped", "predictor", predictorID, "result", result, "error", err)
}

// scoreConfidence computes raw x weight x recent accuracy x context factor.
func (a *Aggregator) scoreConfidence(e Entry, raw float64, pctx prediction.Context, factor float64) float64 {
	recent := 1.0
	if acc, ok := a.history.contextAccuracy(e.PredictorID, pctx.Key()); ok {
		recent = acc
	}
	return prediction.Clamp01(prediction.Clamp01(raw) * e.Weight * recent * factor)
}

// contextFactor multiplies the context weights matching the task type,
// workload ("workload_<level>") and time bucket ("bucket_<n>").
func (a *Aggregator) contextFactor(pctx prediction.Context) float64 {
	factor := 1.0
	if len(a.cfg.ContextWeights) == 0 {
		return factor
	}
	keys := []string{
		pctx.TaskType,
		"workload_" + string(pctx.Workload),
		fmt.Sprintf("bucket_%d", pctx.TimeBucket()),
	}
	for _, k := range keys {
		if w, ok := a.cfg.ContextWeights[k]; ok {
			factor *= w
		}
	}
	return factor
}

func (a *Aggregator) reportUsage(ctx context.Context, usages []Usage) {
	if a.recorder == nil || len(usages) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for _, u := range usages {
			// failed slot
			if u.PredictorID == "" {
				continue
			}
			a.recorder.RecordUsage(ctx, u)
		}
	}()
}

// Wait blocks until pending usage reports are delivered.
func (a *Aggregator) Wait() {
	a.wg.Wait()
}

// RecordPredictionOutcome scores a predictor's earlier prediction against the
// actual outcome and appends it to the predictor's history.
func (a *Aggregator) RecordPredictionOutcome(predictorID string, predicted, actual any, pctx prediction.Context) float64 {
	acc := prediction.Accuracy(predicted, actual)
	a.history.append(predictorID, OutcomeRecord{
		Accuracy:   acc,
		ContextKey: pctx.Key(),
		Timestamp:  a.now(),
	})
	return acc
}

// History returns the recorded outcomes of a predictor, oldest first.
func (a *Aggregator) History(predictorID string) []OutcomeRecord {
	return a.history.snapshot(predictorID)
}
