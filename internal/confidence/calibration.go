package confidence

import (
	"time"

	"github.com/haskel/quorum/internal/prediction"
)

// NumBins is the number of fixed-width confidence bins.
const NumBins = 10

// LedgerEntry pairs a predicted confidence with the accuracy later observed.
type LedgerEntry struct {
	Seq                 uint64                `json:"seq"`
	PredictorID         string                `json:"predictor_id"`
	PredictedConfidence float64               `json:"predicted_confidence"`
	ActualAccuracy      float64               `json:"actual_accuracy"`
	ContextKey          prediction.ContextKey `json:"context_key"`
	Context             prediction.Context    `json:"context"`
	Timestamp           time.Time             `json:"timestamp"`
}

// Bin tracks running averages for one confidence decile.
type Bin struct {
	Lower         float64 `json:"lower"`
	Upper         float64 `json:"upper"`
	Count         int64   `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgAccuracy   float64 `json:"avg_accuracy"`
}

func newBins() [NumBins]Bin {
	var bins [NumBins]Bin
	for i := range bins {
		bins[i].Lower = float64(i) / NumBins
		bins[i].Upper = float64(i+1) / NumBins
	}
	return bins
}

// binIndex maps a confidence to its decile. 1.0 falls into the last bin.
func binIndex(conf float64) int {
	i := int(conf * NumBins)
	if i >= NumBins {
		return NumBins - 1
	}
	if i < 0 {
		return 0
	}
	return i
}

func (b *Bin) add(conf, acc float64) {
	b.Count++
	n := float64(b.Count)
	b.AvgConfidence += (conf - b.AvgConfidence) / n
	b.AvgAccuracy += (acc - b.AvgAccuracy) / n
}

// calibrationFromBins derives calibration diagnostics weighted by bin count.
func calibrationFromBins(bins [NumBins]Bin) prediction.Calibration {
	var total, errSum, over, under, sharp float64
	for _, b := range bins {
		if b.Count == 0 {
			continue
		}
		n := float64(b.Count)
		total += n
		diff := b.AvgConfidence - b.AvgAccuracy
		if diff < 0 {
			errSum += -diff * n
			under += n
		} else {
			errSum += diff * n
			if diff > 0 {
				over += n
			}
		}
		sharp += b.AvgConfidence * n
	}

	if total == 0 {
		return prediction.Calibration{}
	}
	return prediction.Calibration{
		Error:               errSum / total,
		OverconfidenceRate:  over / total,
		UnderconfidenceRate: under / total,
		Sharpness:           sharp / total,
	}
}
