package confidence

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/haskel/quorum/internal/prediction"
)

func TestDataQuality_EmptyIsNeutral(t *testing.T) {
	assert.Equal(t, 0.5, DataQuality(nil, fixedNow))
}

func TestCompleteness(t *testing.T) {
	records := []Record{
		{Fields: map[string]any{"duration": 30, "task": "coding"}},
		{Fields: map[string]any{"duration": nil, "task": "email"}},
		{Fields: map[string]any{"task": "coding"}},
	}
	assert.InDelta(t, 4.0/6.0, completeness(records), 1e-9)
}

func TestTypeConsistency(t *testing.T) {
	records := []Record{
		{Fields: map[string]any{"duration": 30}},
		{Fields: map[string]any{"duration": 45.5}},
		{Fields: map[string]any{"duration": "long"}},
		{Fields: map[string]any{"duration": 20}},
	}
	assert.InDelta(t, 0.75, typeConsistency(records), 1e-9)
}

func TestRangeConsistency_FlagsOutliers(t *testing.T) {
	var records []Record
	for _, v := range []float64{10, 11, 12, 13, 14, 15, 16, 500} {
		records = append(records, Record{Fields: map[string]any{"duration": v}})
	}
	assert.InDelta(t, 7.0/8.0, rangeConsistency(records), 1e-9)

	assert.Equal(t, 1.0, rangeConsistency([]Record{{Fields: map[string]any{"x": 1}}}))
}

func TestRecency(t *testing.T) {
	records := []Record{
		{Timestamp: fixedNow},
		{Timestamp: fixedNow.Add(-30 * 24 * time.Hour)},
	}
	assert.InDelta(t, (1+math.Exp(-1))/2, recency(records, fixedNow), 1e-9)
	assert.Equal(t, 0.5, recency([]Record{{}}, fixedNow))
}

func TestDataQuality_Combined(t *testing.T) {
	var records []Record
	for i := 0; i < 10; i++ {
		records = append(records, Record{
			Timestamp: fixedNow,
			Fields:    map[string]any{"duration": float64(20 + i)},
		})
	}
	// completeness 1, consistency 1, recency 1, volume 0.01
	assert.InDelta(t, (3+0.01)/4, DataQuality(records, fixedNow), 1e-9)
}

func TestContextSimilarity(t *testing.T) {
	a := prediction.NewContext("u", "coding", 10, prediction.WorkloadLow, "x")

	assert.InDelta(t, 1.0, ContextSimilarity(a, a), 1e-9)

	b := prediction.NewContext("u", "review", 22, prediction.WorkloadHigh, "y")
	// related task 0.7, workload 0, hour 0, activity 0
	assert.InDelta(t, 0.7/4, ContextSimilarity(a, b), 1e-9)

	c := prediction.NewContext("u", "coding", 23, prediction.WorkloadLow, "x")
	d := prediction.NewContext("u", "coding", 1, prediction.WorkloadLow, "x")
	// hours wrap around midnight
	assert.InDelta(t, (3+1-2.0/12)/4, ContextSimilarity(c, d), 1e-9)
}

func TestTaskRelatedness(t *testing.T) {
	assert.Equal(t, 1.0, TaskRelatedness("Coding", "coding"))
	assert.Equal(t, relatedTaskScore, TaskRelatedness("email", "meeting"))
	assert.Equal(t, 0.0, TaskRelatedness("email", "coding"))
	assert.Equal(t, 0.0, TaskRelatedness("unknown", "other"))
}
