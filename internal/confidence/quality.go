package confidence

import (
	"math"
	"sort"
	"time"

	"github.com/haskel/quorum/internal/prediction"
)

const (
	recencyHorizon = 30 * 24 * time.Hour
	volumeTarget   = 1000
)

// Record is one row of supporting historical data.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields"`
}

// DataQuality is the mean of completeness, consistency, recency and volume.
// Without records it returns the neutral default.
func DataQuality(records []Record, now time.Time) float64 {
	if len(records) == 0 {
		return defaultDataQuality
	}
	score := (completeness(records) + consistency(records) + recency(records, now) + volume(records)) / 4
	return prediction.Clamp01(score)
}

func fieldNames(records []Record) []string {
	set := make(map[string]struct{})
	for _, r := range records {
		for k := range r.Fields {
			set[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for k := range set {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// completeness is the ratio of non-null fields over all record/field pairs.
func completeness(records []Record) float64 {
	fields := fieldNames(records)
	if len(fields) == 0 {
		return 0
	}
	present := 0
	for _, r := range records {
		for _, f := range fields {
			if v, ok := r.Fields[f]; ok && v != nil {
				present++
			}
		}
	}
	return float64(present) / float64(len(records)*len(fields))
}

func consistency(records []Record) float64 {
	return (typeConsistency(records) + rangeConsistency(records)) / 2
}

func valueType(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	}
	return prediction.KindOf(v).String()
}

// typeConsistency averages, per field, the share of values with the dominant type.
func typeConsistency(records []Record) float64 {
	var sum float64
	var n int
	for _, f := range fieldNames(records) {
		counts := make(map[string]int)
		total := 0
		for _, r := range records {
			if v, ok := r.Fields[f]; ok && v != nil {
				counts[valueType(v)]++
				total++
			}
		}
		if total == 0 {
			continue
		}
		dominant := 0
		for _, c := range counts {
			dominant = max(dominant, c)
		}
		sum += float64(dominant) / float64(total)
		n++
	}
	if n == 0 {
		return 1
	}
	return sum / float64(n)
}

// rangeConsistency averages, per numeric field, the share of values inside
// the 1.5*IQR fences.
func rangeConsistency(records []Record) float64 {
	var sum float64
	var n int
	for _, f := range fieldNames(records) {
		var values []float64
		for _, r := range records {
			if x, ok := prediction.AsNumber(r.Fields[f]); ok {
				values = append(values, x)
			}
		}
		if len(values) < 4 {
			continue
		}
		sort.Float64s(values)
		q1, q3 := percentile(values, 0.25), percentile(values, 0.75)
		iqr := q3 - q1
		lo, hi := q1-1.5*iqr, q3+1.5*iqr

		inside := 0
		for _, x := range values {
			if x >= lo && x <= hi {
				inside++
			}
		}
		sum += float64(inside) / float64(len(values))
		n++
	}
	if n == 0 {
		return 1
	}
	return sum / float64(n)
}

// percentile uses linear interpolation on sorted values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// recency decays each record against a 30-day horizon.
func recency(records []Record, now time.Time) float64 {
	var sum float64
	var n int
	for _, r := range records {
		if r.Timestamp.IsZero() {
			continue
		}
		age := now.Sub(r.Timestamp)
		if age < 0 {
			age = 0
		}
		sum += math.Exp(-float64(age) / float64(recencyHorizon))
		n++
	}
	if n == 0 {
		return 0.5
	}
	return sum / float64(n)
}

func volume(records []Record) float64 {
	return math.Min(float64(len(records))/volumeTarget, 1)
}
