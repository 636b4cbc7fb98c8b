// Package experiment runs A/B tests between ensemble configurations with
// sticky user assignment and two-proportion significance testing.
package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/haskel/quorum/internal/ensemble"
	"github.com/haskel/quorum/internal/logger"
	"github.com/haskel/quorum/internal/metrics"
	"github.com/haskel/quorum/internal/prediction"
	"github.com/haskel/quorum/internal/storage"
)

var tracer = otel.Tracer("quorum.experiment")

const (
	keyTestPrefix   = "experiment/test/"
	keyResultPrefix = "experiment/result/"
	keyAssignPrefix = "experiment/assign/"

	hashBuckets = 100
)

// Option configures a Framework.
type Option func(*Framework)

// OutcomeRecorder receives every scored model prediction of a result once its
// outcome is known.
type OutcomeRecorder func(ctx context.Context, mp prediction.ModelPrediction, accuracy float64)

// WithOutcomeRecorder forwards scored outcomes to r after the variant aggregator learns them.
func WithOutcomeRecorder(r OutcomeRecorder) Option {
	return func(f *Framework) {
		f.recorder = r
	}
}

// WithStore persists tests, assignments and results. Nil keeps them in memory only.
func WithStore(s storage.Store) Option {
	return func(f *Framework) {
		f.store = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Framework) {
		f.logger = logger.Component(l, "experiment")
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(f *Framework) {
		if now != nil {
			f.now = now
		}
	}
}

// WithAggregatorOptions are passed to every variant aggregator.
func WithAggregatorOptions(opts ...ensemble.Option) Option {
	return func(f *Framework) {
		f.aggOpts = append(f.aggOpts, opts...)
	}
}

// WithDefaults sets the confidence level and minimum sample size of tests that leave them unset.
func WithDefaults(confidenceLevel float64, minimumSampleSize int) Option {
	return func(f *Framework) {
		if confidenceLevel > 0 && confidenceLevel < 1 {
			f.defaultLevel = confidenceLevel
		}
		if minimumSampleSize > 0 {
			f.defaultMinSamples = minimumSampleSize
		}
	}
}

type testState struct {
	config      TestConfig
	aggregators map[string]*ensemble.Aggregator
	assignments map[string]string
	results     []*Result
	latest      map[string]int
}

// Framework owns experiments and their results.
type Framework struct {
	mu    sync.RWMutex
	tests map[string]*testState
	seq   uint64

	predictors ensemble.Registry
	validate   *validator.Validate
	aggOpts    []ensemble.Option
	recorder   OutcomeRecorder
	store      storage.Store
	logger     *slog.Logger
	now        func() time.Time

	defaultLevel      float64
	defaultMinSamples int
}

// New creates a framework whose variants resolve predictors from the registry.
func New(predictors ensemble.Registry, opts ...Option) *Framework {
	f := &Framework{
		tests:      make(map[string]*testState),
		predictors: predictors,
		validate:   newValidator(),
		logger:     logger.Discard(),
		now:        time.Now,

		defaultLevel:      DefaultConfidenceLevel,
		defaultMinSamples: DefaultMinimumSampleSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateTest validates the configuration and builds one aggregator per variant.
func (f *Framework) CreateTest(ctx context.Context, cfg TestConfig) (*TestConfig, error) {
	if cfg.ConfidenceLevel == 0 {
		cfg.ConfidenceLevel = f.defaultLevel
	}
	if cfg.MinimumSampleSize == 0 {
		cfg.MinimumSampleSize = f.defaultMinSamples
	}
	cfg = cfg.withDefaults()
	if err := validateConfig(f.validate, &cfg); err != nil {
		return nil, err
	}

	aggregators, err := f.buildAggregators(cfg)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	if _, exists := f.tests[cfg.ID]; exists {
		f.mu.Unlock()
		return nil, prediction.NewValidationError(prediction.RuleDuplicateID, "test %q already exists", cfg.ID)
	}
	f.tests[cfg.ID] = &testState{
		config:      cfg,
		aggregators: aggregators,
		assignments: make(map[string]string),
		latest:      make(map[string]int),
	}
	f.mu.Unlock()

	f.put(ctx, keyTestPrefix+cfg.ID, cfg)
	f.logger.Info("test created",
		"test", cfg.ID,
		"variants", len(cfg.Variants),
		"start", cfg.StartDate,
		"end", cfg.EndDate,
	)

	out := cfg.withDefaults()
	return &out, nil
}

func (f *Framework) buildAggregators(cfg TestConfig) (map[string]*ensemble.Aggregator, error) {
	aggregators := make(map[string]*ensemble.Aggregator, len(cfg.Variants))
	for _, v := range cfg.Variants {
		agg, err := ensemble.New(v.Config, f.predictors, f.aggOpts...)
		if err != nil {
			return nil, &prediction.ValidationError{
				Rule:    prediction.RuleInvalidAggregation,
				Message: fmt.Sprintf("variant %q: %v", v.ID, err),
				Err:     err,
			}
		}
		aggregators[v.ID] = agg
	}
	return aggregators, nil
}

// GetPrediction assigns the user to a variant, runs that variant's ensemble
// and records the result.
func (f *Framework) GetPrediction(ctx context.Context, testID, userID string, input any, pctx prediction.Context) (*Result, error) {
	ctx, span := tracer.Start(ctx, "experiment.GetPrediction",
		trace.WithAttributes(
			attribute.String("test.id", testID),
		),
	)
	defer span.End()

	res, err := f.getPrediction(ctx, testID, userID, input, pctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prediction failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("variant.id", res.VariantID))
	return res, nil
}

func (f *Framework) getPrediction(ctx context.Context, testID, userID string, input any, pctx prediction.Context) (*Result, error) {
	if userID == "" {
		return nil, prediction.NewValidationError(prediction.RuleInvalidField, "user id is required")
	}
	pctx = pctx.Normalize()
	now := f.now()

	f.mu.Lock()
	st, ok := f.tests[testID]
	if !ok {
		f.mu.Unlock()
		return nil, prediction.NotFoundError("test", testID)
	}
	if !st.config.Active(now) {
		cfg := st.config
		f.mu.Unlock()
		return nil, &prediction.InactiveTestError{TestID: testID, Now: now, Start: cfg.StartDate, End: cfg.EndDate}
	}
	variantID, fresh := st.assign(userID)
	agg := st.aggregators[variantID]
	f.mu.Unlock()

	if fresh {
		f.put(ctx, assignKey(testID, userID), variantID)
	}

	started := time.Now()
	pred, err := agg.Predict(ctx, input, pctx)
	if err != nil {
		return nil, fmt.Errorf("variant %s: %w", variantID, err)
	}
	latency := time.Since(started)

	res := &Result{
		ID:         uuid.NewString(),
		TestID:     testID,
		UserID:     userID,
		VariantID:  variantID,
		Prediction: pred,
		Metrics: ResultMetrics{
			Confidence: pred.Confidence,
			ModelCount: len(pred.Contributors),
			LatencyMs:  float64(latency) / float64(time.Millisecond),
		},
		Timestamp: now,
	}

	f.mu.Lock()
	res.Seq = f.seq
	f.seq++
	st.results = append(st.results, res)
	st.latest[userID] = len(st.results) - 1
	stored := *res
	f.mu.Unlock()

	f.put(ctx, resultKey(testID, stored.Seq), stored)
	metrics.ExperimentAssignments.WithLabelValues(testID, variantID).Inc()

	out := stored
	return &out, nil
}

// assign returns the user's variant, computing and memoizing it on first use.
// Callers hold the framework lock.
func (st *testState) assign(userID string) (string, bool) {
	if v, ok := st.assignments[userID]; ok {
		return v, false
	}
	v := st.config.variantForBucket(bucket(userID, st.config.ID))
	st.assignments[userID] = v
	return v, true
}

// bucket hashes userID+testID with FNV-1a into [0,100).
func bucket(userID, testID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID + testID))
	return int(h.Sum32() % hashBuckets)
}

// variantForBucket walks cumulative split ranges in variant order.
func (c *TestConfig) variantForBucket(b int) string {
	var cumulative float64
	for _, v := range c.Variants {
		cumulative += c.TrafficSplit[v.ID]
		if float64(b) < cumulative {
			return v.ID
		}
	}
	return c.Variants[len(c.Variants)-1].ID
}

// RecordOutcome fills the outcome of the user's most recent result in the test.
// A zero timestamp means now. The first outcome of a result is also scored per
// model and fed to the variant aggregator and the outcome recorder.
func (f *Framework) RecordOutcome(ctx context.Context, testID, userID string, actual any, ts time.Time) error {
	if ts.IsZero() {
		ts = f.now()
	}

	f.mu.Lock()
	st, ok := f.tests[testID]
	if !ok {
		f.mu.Unlock()
		return prediction.NotFoundError("test", testID)
	}
	idx, ok := st.latest[userID]
	if !ok {
		f.mu.Unlock()
		return prediction.NotFoundError("result for user", userID)
	}
	res := st.results[idx]
	first := !res.HasOutcome && res.Prediction != nil
	agg := st.aggregators[res.VariantID]
	res.ActualOutcome = actual
	res.HasOutcome = true
	res.OutcomeAt = ts
	if res.Prediction != nil {
		res.Metrics.Accuracy = prediction.Accuracy(res.Prediction.Value, actual)
	}
	stored := *res
	f.mu.Unlock()

	if first && agg != nil {
		f.learn(ctx, agg, stored.Prediction.Predictions, actual)
	}

	f.put(ctx, resultKey(testID, stored.Seq), stored)
	metrics.ExperimentOutcomes.WithLabelValues(testID, stored.VariantID).Inc()
	f.logger.Debug("outcome recorded", "test", testID, "variant", stored.VariantID, "accuracy", stored.Metrics.Accuracy)
	return nil
}

func (f *Framework) learn(ctx context.Context, agg *ensemble.Aggregator, preds []prediction.ModelPrediction, actual any) {
	for _, mp := range preds {
		acc := agg.RecordPredictionOutcome(mp.PredictorID, mp.Value, actual, mp.Context)
		if f.recorder != nil {
			f.recorder(ctx, mp, acc)
		}
	}
}

// AnalyzeTest computes per-variant statistics and the significance of every
// variant against the control.
func (f *Framework) AnalyzeTest(ctx context.Context, testID string) (*Analysis, error) {
	_, span := tracer.Start(ctx, "experiment.AnalyzeTest",
		trace.WithAttributes(attribute.String("test.id", testID)),
	)
	defer span.End()

	f.mu.RLock()
	st, ok := f.tests[testID]
	if !ok {
		f.mu.RUnlock()
		err := prediction.NotFoundError("test", testID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown test")
		return nil, err
	}
	cfg := st.config
	results := make([]Result, len(st.results))
	for i, r := range st.results {
		results[i] = *r
	}
	f.mu.RUnlock()

	analysis := analyze(cfg, results, f.now())
	span.SetAttributes(
		attribute.Int("results", len(results)),
		attribute.String("winner", analysis.Winner),
	)
	return analysis, nil
}

func analyze(cfg TestConfig, results []Result, now time.Time) *Analysis {
	byVariant := make(map[string][]Result, len(cfg.Variants))
	for _, r := range results {
		byVariant[r.VariantID] = append(byVariant[r.VariantID], r)
	}

	z := criticalZ(cfg.ConfidenceLevel)
	control, _ := cfg.Control()

	a := &Analysis{
		TestID:          cfg.ID,
		Active:          cfg.Active(now),
		ControlID:       control.ID,
		ConfidenceLevel: cfg.ConfidenceLevel,
		AnalyzedAt:      now,
	}

	var weightedAcc float64
	var totalSamples int
	stats := make(map[string]VariantAnalysis, len(cfg.Variants))
	for _, v := range cfg.Variants {
		va := analyzeVariant(v, byVariant[v.ID], z)
		stats[v.ID] = va
		a.Variants = append(a.Variants, va)
		weightedAcc += va.AverageAccuracy * float64(va.SampleSize)
		totalSamples += va.SampleSize
	}
	if totalSamples > 0 {
		a.Confidence = weightedAcc / float64(totalSamples)
	}

	ctrl := stats[control.ID]
	bestZ := 0.0
	for _, v := range cfg.Variants {
		if v.ID == control.ID {
			continue
		}
		va := stats[v.ID]
		zs := twoProportionZ(ctrl.ConversionRate, ctrl.SampleSize, va.ConversionRate, va.SampleSize)
		cmp := Comparison{
			VariantID:   v.ID,
			ZScore:      zs,
			PValue:      twoSidedP(zs),
			Lift:        va.ConversionRate - ctrl.ConversionRate,
			Significant: abs(zs) > z && va.ConversionRate > ctrl.ConversionRate,
		}
		a.Comparisons = append(a.Comparisons, cmp)
		if cmp.Significant && zs > bestZ {
			bestZ = zs
			a.Winner = v.ID
		}
	}

	a.Recommendations = recommendations(cfg, a)
	return a
}

func analyzeVariant(v Variant, results []Result, z float64) VariantAnalysis {
	va := VariantAnalysis{
		VariantID:   v.ID,
		IsControl:   v.IsControl,
		Predictions: len(results),
		Metrics:     make(map[string]Summary),
	}

	var confidence, models, latency, accuracy []float64
	for _, r := range results {
		confidence = append(confidence, r.Metrics.Confidence)
		models = append(models, float64(r.Metrics.ModelCount))
		latency = append(latency, r.Metrics.LatencyMs)
		if !r.HasOutcome {
			continue
		}
		va.SampleSize++
		accuracy = append(accuracy, r.Metrics.Accuracy)
		if r.Converted() {
			va.Conversions++
		}
	}

	if va.SampleSize > 0 {
		va.ConversionRate = float64(va.Conversions) / float64(va.SampleSize)
		acc := summarize(accuracy)
		va.AverageAccuracy = acc.Mean
		va.Metrics["accuracy"] = acc
	}
	va.ConfidenceInterval = proportionInterval(va.ConversionRate, va.SampleSize, z)

	if len(results) > 0 {
		va.Metrics["confidence"] = summarize(confidence)
		va.Metrics["model_count"] = summarize(models)
		va.Metrics["latency_ms"] = summarize(latency)
	}
	return va
}

func recommendations(cfg TestConfig, a *Analysis) []string {
	var out []string
	for _, va := range a.Variants {
		if va.SampleSize < cfg.MinimumSampleSize {
			out = append(out, fmt.Sprintf("Variant %s has %d outcomes; collect at least %d before drawing conclusions",
				va.VariantID, va.SampleSize, cfg.MinimumSampleSize))
		}
	}
	for _, va := range a.Variants {
		names := make([]string, 0, len(va.Metrics))
		for name := range va.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			s := va.Metrics[name]
			if s.Mean > 0 && s.StdDev > 0.5*s.Mean {
				out = append(out, fmt.Sprintf("Variant %s shows high variance in %s (std dev %.3f, mean %.3f)",
					va.VariantID, name, s.StdDev, s.Mean))
			}
		}
	}
	if a.Winner == "" {
		out = append(out, fmt.Sprintf("No variant beats the control at %.0f%% confidence", cfg.ConfidenceLevel*100))
	} else {
		out = append(out, fmt.Sprintf("Variant %s outperforms the control; consider rolling it out", a.Winner))
	}
	return out
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// StopTest closes the test window now. Results are kept.
func (f *Framework) StopTest(ctx context.Context, testID string) (*TestConfig, error) {
	now := f.now()

	f.mu.Lock()
	st, ok := f.tests[testID]
	if !ok {
		f.mu.Unlock()
		return nil, prediction.NotFoundError("test", testID)
	}
	if now.Before(st.config.EndDate) {
		st.config.EndDate = now
	}
	cfg := st.config.withDefaults()
	f.mu.Unlock()

	f.put(ctx, keyTestPrefix+testID, cfg)
	f.logger.Info("test stopped", "test", testID, "end", cfg.EndDate)
	return &cfg, nil
}

// GetTest returns a test configuration.
func (f *Framework) GetTest(testID string) (*TestConfig, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	st, ok := f.tests[testID]
	if !ok {
		return nil, prediction.NotFoundError("test", testID)
	}
	cfg := st.config.withDefaults()
	return &cfg, nil
}

// GetActiveTests returns the tests whose window contains now, ordered by start date.
func (f *Framework) GetActiveTests() []TestConfig {
	now := f.now()
	return f.filterTests(func(c *TestConfig) bool { return c.Active(now) })
}

// ListTests returns every test ordered by start date.
func (f *Framework) ListTests() []TestConfig {
	return f.filterTests(func(*TestConfig) bool { return true })
}

func (f *Framework) filterTests(keep func(*TestConfig) bool) []TestConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []TestConfig
	for _, st := range f.tests {
		if keep(&st.config) {
			out = append(out, st.config.withDefaults())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Results returns copies of a test's results in arrival order.
func (f *Framework) Results(testID string) ([]Result, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	st, ok := f.tests[testID]
	if !ok {
		return nil, prediction.NotFoundError("test", testID)
	}
	out := make([]Result, len(st.results))
	for i, r := range st.results {
		out[i] = *r
	}
	return out, nil
}

// Assignment returns the variant a user was assigned to, if any.
func (f *Framework) Assignment(testID, userID string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	st, ok := f.tests[testID]
	if !ok {
		return "", false
	}
	v, ok := st.assignments[userID]
	return v, ok
}

func assignKey(testID, userID string) string {
	return keyAssignPrefix + testID + "/" + userID
}

func resultKey(testID string, seq uint64) string {
	return fmt.Sprintf("%s%s/%020d", keyResultPrefix, testID, seq)
}

func (f *Framework) put(ctx context.Context, key string, v any) {
	if f.store == nil {
		return
	}
	if err := storage.PutJSON(context.WithoutCancel(ctx), f.store, key, v); err != nil {
		metrics.StorageFailures.WithLabelValues("experiment", "put").Inc()
		sf := &prediction.StorageFailure{Op: "put", Key: key, Err: err}
		f.logger.Warn("experiment persistence failed", "error", sf)
	}
}

// Load restores tests, assignments and results from the store. Tests whose
// variants reference predictors that are no longer registered are skipped.
func (f *Framework) Load(ctx context.Context) error {
	if f.store == nil {
		return nil
	}

	testItems, err := f.store.List(ctx, keyTestPrefix)
	if err != nil {
		return &prediction.StorageFailure{Op: "list", Key: keyTestPrefix, Err: err}
	}

	tests := make(map[string]*testState, len(testItems))
	for _, it := range testItems {
		var cfg TestConfig
		if err := json.Unmarshal(it.Value, &cfg); err != nil {
			f.logger.Warn("skipping corrupt test", "key", it.Key, "error", err)
			continue
		}
		aggregators, err := f.buildAggregators(cfg)
		if err != nil {
			f.logger.Warn("skipping test that cannot be rebuilt", "test", cfg.ID, "error", err)
			continue
		}
		tests[cfg.ID] = &testState{
			config:      cfg,
			aggregators: aggregators,
			assignments: make(map[string]string),
			latest:      make(map[string]int),
		}
	}

	assignItems, err := f.store.List(ctx, keyAssignPrefix)
	if err != nil {
		return &prediction.StorageFailure{Op: "list", Key: keyAssignPrefix, Err: err}
	}
	for _, it := range assignItems {
		testID, userID, ok := strings.Cut(strings.TrimPrefix(it.Key, keyAssignPrefix), "/")
		st := tests[testID]
		if !ok || st == nil {
			continue
		}
		var variant string
		if err := json.Unmarshal(it.Value, &variant); err != nil {
			continue
		}
		st.assignments[userID] = variant
	}

	resultItems, err := f.store.List(ctx, keyResultPrefix)
	if err != nil {
		return &prediction.StorageFailure{Op: "list", Key: keyResultPrefix, Err: err}
	}
	var seq uint64
	var loaded []*Result
	for _, it := range resultItems {
		var r Result
		if err := json.Unmarshal(it.Value, &r); err != nil {
			f.logger.Warn("skipping corrupt result", "key", it.Key, "error", err)
			continue
		}
		loaded = append(loaded, &r)
		if r.Seq >= seq {
			seq = r.Seq + 1
		}
	}
	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Seq < loaded[j].Seq })
	for _, r := range loaded {
		st := tests[r.TestID]
		if st == nil {
			continue
		}
		st.results = append(st.results, r)
		st.latest[r.UserID] = len(st.results) - 1
	}

	f.mu.Lock()
	f.tests = tests
	f.seq = seq
	f.mu.Unlock()

	f.logger.Info("experiments loaded", "tests", len(tests), "results", len(loaded))
	return nil
}
