// Package confidence scores how much an aggregated prediction should be trusted
// and keeps the calibration ledger of predicted confidence against observed accuracy.
package confidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haskel/quorum/internal/logger"
	"github.com/haskel/quorum/internal/metrics"
	"github.com/haskel/quorum/internal/prediction"
	"github.com/haskel/quorum/internal/storage"
)

const (
	DefaultMaxLedger   = 1000
	DefaultMaxContexts = 500

	defaultAgreement          = 0.5
	defaultHistoricalAccuracy = 0.5
	defaultDataQuality        = 0.5
	defaultContextMatch       = 0.3

	similarContextThreshold = 0.5
	consistencyWindow       = 50
	fullWeightSamples       = 10

	keyBins         = "calibration/bins"
	keyLedgerPrefix = "calibration/ledger/"
)

// Component weights of the overall score.
const (
	weightAgreement  = 0.25
	weightHistorical = 0.30
	weightQuality    = 0.20
	weightContext    = 0.15
	weightStability  = 0.10
)

// Option configures a Scorer.
type Option func(*Scorer)

// WithStore persists the ledger and bins. Nil keeps state in memory only.
func WithStore(s storage.Store) Option {
	return func(sc *Scorer) {
		sc.store = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(sc *Scorer) {
		sc.logger = logger.Component(l, "confidence")
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(sc *Scorer) {
		if now != nil {
			sc.now = now
		}
	}
}

// WithMaxLedger overrides the ledger capacity.
func WithMaxLedger(n int) Option {
	return func(sc *Scorer) {
		if n > 0 {
			sc.maxLedger = n
		}
	}
}

// WithMaxContexts overrides how many seen contexts are remembered.
func WithMaxContexts(n int) Option {
	return func(sc *Scorer) {
		if n > 0 {
			sc.maxContexts = n
		}
	}
}

// Scorer computes confidence scores and owns the calibration ledger.
type Scorer struct {
	mu       sync.RWMutex
	ledger   []LedgerEntry
	bins     [NumBins]Bin
	contexts []prediction.Context
	seen     map[string]struct{}
	seq      uint64

	persistMu   sync.Mutex
	store       storage.Store
	maxLedger   int
	maxContexts int
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a scorer with an empty ledger.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		bins:        newBins(),
		seen:        make(map[string]struct{}),
		maxLedger:   DefaultMaxLedger,
		maxContexts: DefaultMaxContexts,
		logger:      logger.Discard(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CalculateConfidence scores a set of predictions made in pctx.
// historical is optional supporting data used for the data quality component.
func (s *Scorer) CalculateConfidence(preds []prediction.ModelPrediction, pctx prediction.Context, historical []Record) *prediction.ConfidenceScore {
	confs := prediction.Confidences(preds)
	variance := prediction.Variance(confs)

	s.mu.RLock()
	historicalAcc := s.historicalAccuracy(preds, pctx.Key())
	contextMatch, similar := s.contextMatch(pctx)
	consistency := s.consistency(pctx.Key())
	calibration := calibrationFromBins(s.bins)
	s.mu.RUnlock()

	components := prediction.Components{
		ModelAgreement:      agreement(preds),
		HistoricalAccuracy:  historicalAcc,
		DataQuality:         DataQuality(historical, s.now()),
		ContextMatch:        contextMatch,
		PredictionStability: 1 / (1 + variance),
	}

	overall := weightAgreement*components.ModelAgreement +
		weightHistorical*components.HistoricalAccuracy +
		weightQuality*components.DataQuality +
		weightContext*components.ContextMatch +
		weightStability*components.PredictionStability

	return &prediction.ConfidenceScore{
		Overall:    prediction.Clamp01(overall),
		Components: components,
		Factors:    buildFactors(components, len(preds), pctx, len(historical) > 0),
		Reliability: prediction.Reliability{
			Consistency: consistency,
			Robustness:  prediction.Clamp01(1 - variance),
			Coverage:    min(float64(similar)/fullWeightSamples, 1),
		},
		Calibration: calibration,
	}
}

// agreement is the mean pairwise similarity of prediction values.
func agreement(preds []prediction.ModelPrediction) float64 {
	if len(preds) < 2 {
		return defaultAgreement
	}
	var sum float64
	var pairs int
	for i := 0; i < len(preds); i++ {
		for j := i + 1; j < len(preds); j++ {
			sum += prediction.Similarity(preds[i].Value, preds[j].Value)
			pairs++
		}
	}
	return prediction.Clamp01(sum / float64(pairs))
}

// historicalAccuracy weights each predictor's ledger accuracy in this context
// by min(samples/10, 1). Callers hold at least a read lock.
func (s *Scorer) historicalAccuracy(preds []prediction.ModelPrediction, key prediction.ContextKey) float64 {
	var weighted, weights float64
	for _, p := range preds {
		var sum float64
		var n int
		for _, e := range s.ledger {
			if e.PredictorID == p.PredictorID && e.ContextKey == key {
				sum += e.ActualAccuracy
				n++
			}
		}
		if n == 0 {
			continue
		}
		w := min(float64(n)/fullWeightSamples, 1)
		weighted += w * (sum / float64(n))
		weights += w
	}
	if weights == 0 {
		return defaultHistoricalAccuracy
	}
	return prediction.Clamp01(weighted / weights)
}

// contextMatch averages similarity to remembered contexts that are similar enough.
// Callers hold at least a read lock.
func (s *Scorer) contextMatch(pctx prediction.Context) (float64, int) {
	var sum float64
	var n int
	for _, c := range s.contexts {
		sim := ContextSimilarity(pctx, c)
		if sim >= similarContextThreshold {
			sum += sim
			n++
		}
	}
	if n == 0 {
		return defaultContextMatch, 0
	}
	return sum / float64(n), n
}

// consistency is the mean pairwise accuracy agreement among the most recent
// ledger entries of the same context key. Callers hold at least a read lock.
func (s *Scorer) consistency(key prediction.ContextKey) float64 {
	var accs []float64
	for i := len(s.ledger) - 1; i >= 0 && len(accs) < consistencyWindow; i-- {
		if s.ledger[i].ContextKey == key {
			accs = append(accs, s.ledger[i].ActualAccuracy)
		}
	}
	if len(accs) < 2 {
		return 0.5
	}
	var sum float64
	var pairs int
	for i := 0; i < len(accs); i++ {
		for j := i + 1; j < len(accs); j++ {
			d := accs[i] - accs[j]
			if d < 0 {
				d = -d
			}
			sum += 1 - d
			pairs++
		}
	}
	return sum / float64(pairs)
}

func buildFactors(c prediction.Components, count int, pctx prediction.Context, hasHistorical bool) []prediction.Factor {
	var out []prediction.Factor
	add := func(name string, impact, weight float64, desc string) {
		out = append(out, prediction.Factor{Name: name, Impact: impact, Weight: weight, Description: desc})
	}

	switch {
	case count >= 2 && c.ModelAgreement > 0.8:
		add("model_agreement", 0.3, weightAgreement, "Predictors strongly agree")
	case count >= 2 && c.ModelAgreement < 0.3:
		add("model_disagreement", -0.4, weightAgreement, "Predictors disagree")
	}

	switch {
	case c.HistoricalAccuracy > 0.9:
		add("strong_track_record", 0.4, weightHistorical, "Predictors have been highly accurate in this context")
	case c.HistoricalAccuracy < 0.5:
		add("weak_track_record", -0.3, weightHistorical, "Predictors have been inaccurate in this context")
	}

	if count == 1 {
		add("single_predictor", -0.2, weightAgreement, "Only one predictor contributed")
	}

	if pctx.Workload == prediction.WorkloadHigh {
		add("high_workload", -0.1, weightContext, "High workload contexts are less predictable")
	}

	if c.ContextMatch < similarContextThreshold {
		add("unfamiliar_context", -0.15, weightContext, "Few similar contexts have been seen")
	}

	if hasHistorical {
		switch {
		case c.DataQuality > 0.8:
			add("high_data_quality", 0.2, weightQuality, "Supporting data is complete and recent")
		case c.DataQuality < 0.4:
			add("low_data_quality", -0.2, weightQuality, "Supporting data is sparse, stale or inconsistent")
		}
	}

	if c.PredictionStability < 0.9 {
		add("unstable_confidence", -0.25, weightStability, "Predictor confidences vary widely")
	}

	sort.SliceStable(out, func(i, j int) bool {
		return abs(out[i].Impact) > abs(out[j].Impact)
	})
	return out
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// UpdateCalibration records the accuracy observed for a prediction made with
// predictedConfidence. Ledger and bin are updated under one critical section.
// Persistence failures are logged and counted, never returned.
func (s *Scorer) UpdateCalibration(ctx context.Context, predictorID string, predictedConfidence, actualAccuracy float64, pctx prediction.Context) {
	conf := prediction.Clamp01(predictedConfidence)
	acc := prediction.Clamp01(actualAccuracy)

	s.mu.Lock()
	entry := LedgerEntry{
		Seq:                 s.seq,
		PredictorID:         predictorID,
		PredictedConfidence: conf,
		ActualAccuracy:      acc,
		ContextKey:          pctx.Key(),
		Context:             pctx,
		Timestamp:           s.now(),
	}
	s.seq++
	s.ledger = append(s.ledger, entry)

	var evicted []LedgerEntry
	if over := len(s.ledger) - s.maxLedger; over > 0 {
		evicted = append(evicted, s.ledger[:over]...)
		s.ledger = append([]LedgerEntry(nil), s.ledger[over:]...)
	}

	s.bins[binIndex(conf)].add(conf, acc)
	s.rememberContext(pctx)
	calibration := calibrationFromBins(s.bins)
	s.mu.Unlock()

	metrics.CalibrationUpdates.Inc()
	metrics.CalibrationError.Set(calibration.Error)

	s.persist(ctx, entry, evicted)
}

// rememberContext keeps a bounded FIFO of distinct contexts. Callers hold the lock.
func (s *Scorer) rememberContext(pctx prediction.Context) {
	fp := fingerprint(pctx)
	if _, ok := s.seen[fp]; ok {
		return
	}
	s.seen[fp] = struct{}{}
	s.contexts = append(s.contexts, pctx)
	if len(s.contexts) > s.maxContexts {
		delete(s.seen, fingerprint(s.contexts[0]))
		s.contexts = append([]prediction.Context(nil), s.contexts[1:]...)
	}
}

func fingerprint(c prediction.Context) string {
	return fmt.Sprintf("%s|%s|%d|%s|%s", c.TaskType, c.Workload, c.HourOfDay, c.UserID, strings.Join(c.RecentActivities, ","))
}

func ledgerKey(seq uint64) string {
	return fmt.Sprintf("%s%020d", keyLedgerPrefix, seq)
}

func (s *Scorer) persist(ctx context.Context, entry LedgerEntry, evicted []LedgerEntry) {
	if s.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if err := storage.PutJSON(ctx, s.store, ledgerKey(entry.Seq), entry); err != nil {
		s.storageFailure("put", ledgerKey(entry.Seq), err)
	}
	for _, e := range evicted {
		if err := s.store.Delete(ctx, ledgerKey(e.Seq)); err != nil {
			s.storageFailure("delete", ledgerKey(e.Seq), err)
		}
	}

	s.mu.RLock()
	bins := s.bins
	s.mu.RUnlock()
	if err := storage.PutJSON(ctx, s.store, keyBins, bins); err != nil {
		s.storageFailure("put", keyBins, err)
	}
}

func (s *Scorer) storageFailure(op, key string, err error) {
	metrics.StorageFailures.WithLabelValues("confidence", op).Inc()
	sf := &prediction.StorageFailure{Op: op, Key: key, Err: err}
	s.logger.Warn("calibration persistence failed", "error", sf)
}

// Load restores the ledger and bins from the store.
func (s *Scorer) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	var bins [NumBins]Bin
	binsErr := storage.GetJSON(ctx, s.store, keyBins, &bins)
	if binsErr != nil && !errors.Is(binsErr, storage.ErrNotFound) {
		return &prediction.StorageFailure{Op: "get", Key: keyBins, Err: binsErr}
	}

	items, err := s.store.List(ctx, keyLedgerPrefix)
	if err != nil {
		return &prediction.StorageFailure{Op: "list", Key: keyLedgerPrefix, Err: err}
	}

	ledger := make([]LedgerEntry, 0, len(items))
	for _, it := range items {
		var e LedgerEntry
		if err := json.Unmarshal(it.Value, &e); err != nil {
			s.logger.Warn("skipping corrupt ledger entry", "key", it.Key, "error", err)
			continue
		}
		ledger = append(ledger, e)
	}
	if len(ledger) > s.maxLedger {
		ledger = ledger[len(ledger)-s.maxLedger:]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if binsErr == nil {
		s.bins = bins
	}
	s.ledger = ledger
	s.contexts = nil
	s.seen = make(map[string]struct{})
	for _, e := range ledger {
		s.rememberContext(e.Context)
		if e.Seq >= s.seq {
			s.seq = e.Seq + 1
		}
	}

	s.logger.Info("calibration state loaded", "ledger", len(ledger))
	return nil
}

// LedgerLen returns the number of ledger entries.
func (s *Scorer) LedgerLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ledger)
}

// Ledger returns a copy of the ledger, oldest first.
func (s *Scorer) Ledger() []LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]LedgerEntry(nil), s.ledger...)
}

// Bins returns a copy of the calibration bins.
func (s *Scorer) Bins() [NumBins]Bin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bins
}

// Calibration returns diagnostics derived from the bins.
func (s *Scorer) Calibration() prediction.Calibration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return calibrationFromBins(s.bins)
}
