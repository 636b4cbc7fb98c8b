package confidence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haskel/quorum/internal/prediction"
	"github.com/haskel/quorum/internal/storage"
)

var (
	fixedNow = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	ctxA     = prediction.NewContext("u1", "coding", 10, prediction.WorkloadMedium, "commit", "review")
)

func clock() time.Time { return fixedNow }

func preds(pairs ...float64) []prediction.ModelPrediction {
	var out []prediction.ModelPrediction
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, prediction.ModelPrediction{
			PredictorID: fmt.Sprintf("p%d", i/2),
			Value:       pairs[i],
			Confidence:  pairs[i+1],
		})
	}
	return out
}

func TestCalculateConfidence_AgreeingPredictorsOnFreshScorer(t *testing.T) {
	s := New(WithClock(clock))

	score := s.CalculateConfidence(preds(5, 0.9, 5, 0.8), ctxA, nil)

	assert.InDelta(t, 1.0, score.Components.ModelAgreement, 1e-9)
	assert.InDelta(t, 0.5, score.Components.HistoricalAccuracy, 1e-9)
	assert.InDelta(t, 0.5, score.Components.DataQuality, 1e-9)
	assert.InDelta(t, 0.3, score.Components.ContextMatch, 1e-9)
	assert.InDelta(t, 1/1.0025, score.Components.PredictionStability, 1e-9)

	want := 0.25*1 + 0.30*0.5 + 0.20*0.5 + 0.15*0.3 + 0.10*(1/1.0025)
	assert.InDelta(t, want, score.Overall, 1e-9)
	assert.Greater(t, score.Overall, 0.0)
	assert.Less(t, score.Overall, 1.0)

	// Without history the weights cap the score below 0.8, even with perfect data quality.
	ceiling := score.Overall + weightQuality*(1-score.Components.DataQuality)
	assert.InDelta(t, 0.7448, ceiling, 1e-3)
	assert.Less(t, ceiling, 0.8)

	require.Len(t, score.Factors, 2)
	assert.Equal(t, "model_agreement", score.Factors[0].Name)
	assert.Equal(t, "unfamiliar_context", score.Factors[1].Name)
}

func TestCalculateConfidence_Defaults(t *testing.T) {
	s := New()

	score := s.CalculateConfidence(preds(3, 0.7), ctxA, nil)
	assert.InDelta(t, 0.5, score.Components.ModelAgreement, 1e-9)
	assert.InDelta(t, 0.5, score.Reliability.Consistency, 1e-9)
	assert.InDelta(t, 1.0, score.Reliability.Robustness, 1e-9)
	assert.Equal(t, 0.0, score.Reliability.Coverage)
	assert.Equal(t, prediction.Calibration{}, score.Calibration)

	names := make([]string, len(score.Factors))
	for i, f := range score.Factors {
		names[i] = f.Name
	}
	assert.Contains(t, names, "single_predictor")
}

func TestCalculateConfidence_FactorsSortedByImpact(t *testing.T) {
	s := New()
	high := prediction.NewContext("u1", "coding", 10, prediction.WorkloadHigh)

	score := s.CalculateConfidence(preds(1, 0.0, 100, 1.0, 50, 0.0), high, nil)
	require.NotEmpty(t, score.Factors)
	for i := 1; i < len(score.Factors); i++ {
		assert.GreaterOrEqual(t, abs(score.Factors[i-1].Impact), abs(score.Factors[i].Impact))
	}
	for _, f := range score.Factors {
		assert.GreaterOrEqual(t, f.Impact, -1.0)
		assert.LessOrEqual(t, f.Impact, 1.0)
	}
	assert.Equal(t, "model_disagreement", score.Factors[0].Name)
}

func TestUpdateCalibration_LedgerIsBoundedFIFO(t *testing.T) {
	s := New(WithClock(clock))

	for i := 0; i < DefaultMaxLedger+5; i++ {
		s.UpdateCalibration(context.Background(), fmt.Sprintf("p%d", i), 0.5, 0.5, ctxA)
		assert.LessOrEqual(t, s.LedgerLen(), DefaultMaxLedger)
	}

	ledger := s.Ledger()
	require.Len(t, ledger, DefaultMaxLedger)
	assert.Equal(t, "p5", ledger[0].PredictorID)
	assert.Equal(t, fmt.Sprintf("p%d", DefaultMaxLedger+4), ledger[len(ledger)-1].PredictorID)
}

func TestUpdateCalibration_Bins(t *testing.T) {
	s := New()

	s.UpdateCalibration(context.Background(), "a", 0.95, 0.5, ctxA)
	s.UpdateCalibration(context.Background(), "a", 1.0, 1.0, ctxA)
	s.UpdateCalibration(context.Background(), "a", 0.15, 0.35, ctxA)
	s.UpdateCalibration(context.Background(), "a", 1.7, -2, ctxA)

	bins := s.Bins()
	assert.Equal(t, int64(3), bins[9].Count)
	assert.Equal(t, int64(1), bins[1].Count)
	assert.InDelta(t, (0.95+1.0+1.0)/3, bins[9].AvgConfidence, 1e-9)
	assert.InDelta(t, 0.5, bins[9].AvgAccuracy, 1e-9)

	cal := s.Calibration()
	// bin 9: |0.9833-0.5| * 3, bin 1: |0.15-0.35| * 1
	assert.InDelta(t, ((0.95+2.0)/3-0.5)*3/4+0.2/4, cal.Error, 1e-9)
	assert.InDelta(t, 0.75, cal.OverconfidenceRate, 1e-9)
	assert.InDelta(t, 0.25, cal.UnderconfidenceRate, 1e-9)
	assert.InDelta(t, (0.95+1.0+1.0+0.15)/4, cal.Sharpness, 1e-9)
}

func TestHistoricalAccuracyAndContextMatch(t *testing.T) {
	s := New()
	ps := preds(5, 0.9)

	before := s.CalculateConfidence(ps, ctxA, nil)
	assert.InDelta(t, 0.3, before.Components.ContextMatch, 1e-9)

	for i := 0; i < 10; i++ {
		s.UpdateCalibration(context.Background(), "p0", 0.9, 0.9, ctxA)
	}

	after := s.CalculateConfidence(ps, ctxA, nil)
	assert.InDelta(t, 0.9, after.Components.HistoricalAccuracy, 1e-9)
	assert.InDelta(t, 1.0, after.Components.ContextMatch, 1e-9)
	assert.InDelta(t, 0.1, after.Reliability.Coverage, 1e-9)
	assert.InDelta(t, 1.0, after.Reliability.Consistency, 1e-9)

	other := prediction.NewContext("u1", "email", 22, prediction.WorkloadMedium)
	assert.InDelta(t, 0.5, s.CalculateConfidence(ps, other, nil).Components.HistoricalAccuracy, 1e-9)
}

func TestHistoricalAccuracy_SampleWeighting(t *testing.T) {
	s := New()

	for i := 0; i < 10; i++ {
		s.UpdateCalibration(context.Background(), "p0", 0.8, 1.0, ctxA)
	}
	s.UpdateCalibration(context.Background(), "p1", 0.8, 0.0, ctxA)

	score := s.CalculateConfidence(preds(1, 0.8, 1, 0.8), ctxA, nil)
	// p0 weight 1 acc 1, p1 weight 0.1 acc 0
	assert.InDelta(t, 1/1.1, score.Components.HistoricalAccuracy, 1e-9)
}

func TestScorer_PersistAndLoad(t *testing.T) {
	store := storage.NewMemoryStore()
	s := New(WithStore(store), WithMaxLedger(3), WithClock(clock))

	for i := 0; i < 5; i++ {
		s.UpdateCalibration(context.Background(), fmt.Sprintf("p%d", i), 0.6, 0.4, ctxA)
	}

	items, err := store.List(context.Background(), keyLedgerPrefix)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	restored := New(WithStore(store), WithMaxLedger(3))
	require.NoError(t, restored.Load(context.Background()))

	assert.Equal(t, s.Ledger(), restored.Ledger())
	assert.Equal(t, s.Bins(), restored.Bins())

	restored.UpdateCalibration(context.Background(), "next", 0.6, 0.4, ctxA)
	ledger := restored.Ledger()
	assert.Equal(t, uint64(5), ledger[len(ledger)-1].Seq)
	assert.Equal(t, "p3", ledger[0].PredictorID)
}

type failingStore struct {
	storage.MemoryStore
}

var errDiskFull = errors.New("disk full")

func (f *failingStore) Put(ctx context.Context, key string, value []byte) error {
	return errDiskFull
}

func (f *failingStore) List(ctx context.Context, prefix string) ([]storage.Item, error) {
	return nil, errDiskFull
}

func TestScorer_StorageFailureDegradesGracefully(t *testing.T) {
	s := New(WithStore(&failingStore{}))

	assert.NotPanics(t, func() {
		s.UpdateCalibration(context.Background(), "a", 0.7, 0.6, ctxA)
	})
	assert.Equal(t, 1, s.LedgerLen())

	err := s.Load(context.Background())
	var sf *prediction.StorageFailure
	require.ErrorAs(t, err, &sf)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, 1, s.LedgerLen())
}

func TestUpdateCalibration_Concurrent(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for g := 0; g < 50; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 30; i++ {
				s.UpdateCalibration(context.Background(), fmt.Sprintf("p%d", g), float64(i%10)/10, 0.5, ctxA)
				_ = s.CalculateConfidence(preds(1, 0.5, 2, 0.5), ctxA, nil)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, DefaultMaxLedger, s.LedgerLen())

	var total int64
	for _, b := range s.Bins() {
		total += b.Count
	}
	assert.Equal(t, int64(1500), total)
}
