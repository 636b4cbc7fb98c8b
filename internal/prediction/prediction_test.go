package prediction

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContext_Normalizes(t *testing.T) {
	activities := make([]string, 25)
	for i := range activities {
		activities[i] = fmt.Sprintf("a%d", i)
	}

	c := NewContext("u1", "review", 26, "bogus", activities...)

	assert.Equal(t, 2, c.HourOfDay)
	assert.Equal(t, WorkloadMedium, c.Workload)
	require.Len(t, c.RecentActivities, MaxRecentActivities)
	assert.Equal(t, "a5", c.RecentActivities[0])
	assert.Equal(t, "a24", c.RecentActivities[19])

	activities[24] = "changed"
	assert.Equal(t, "a24", c.RecentActivities[19], "context must not alias caller slice")
}

func TestContext_Key(t *testing.T) {
	tests := []struct {
		hour int
		want ContextKey
	}{
		{0, "coding_high_0"},
		{3, "coding_high_0"},
		{4, "coding_high_1"},
		{13, "coding_high_3"},
		{23, "coding_high_5"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("hour_%d", tt.hour), func(t *testing.T) {
			c := NewContext("u", "coding", tt.hour, WorkloadHigh)
			assert.Equal(t, tt.want, c.Key())
		})
	}
}

func TestContext_MatchesFilters(t *testing.T) {
	c := NewContext("u", "email", 9, WorkloadLow)

	assert.Equal(t, "email_low_9", c.FilterString())
	assert.True(t, c.MatchesFilters(nil))
	assert.True(t, c.MatchesFilters([]string{"email"}))
	assert.True(t, c.MatchesFilters([]string{"meeting", "_low_"}))
	assert.False(t, c.MatchesFilters([]string{"meeting", "high"}))
}

func TestWorkload_Level(t *testing.T) {
	assert.Equal(t, 0, WorkloadLow.Level())
	assert.Equal(t, 1, WorkloadMedium.Level())
	assert.Equal(t, 2, WorkloadHigh.Level())
	assert.Equal(t, 1, Workload("unknown").Level())
}

func TestAsNumber(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{1.5, 1.5, true},
		{float32(2), 2, true},
		{3, 3, true},
		{int64(-4), -4, true},
		{uint8(5), 5, true},
		{json.Number("6.25"), 6.25, true},
		{"7", 0, false},
		{nil, 0, false},
	}

	for _, tt := range tests {
		got, ok := AsNumber(tt.in)
		assert.Equal(t, tt.ok, ok, "input %v", tt.in)
		assert.Equal(t, tt.want, got, "input %v", tt.in)
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(5, 5.0))
	assert.True(t, Equal([]any{1, 2}, []float64{1, 2}))
	assert.True(t, Equal(map[string]any{"a": 1, "b": "x"}, map[string]any{"b": "x", "a": 1}))
	assert.False(t, Equal(map[string]any{"a": 1}, map[string]any{"a": 2}))
	assert.False(t, Equal("5", 5))
	assert.True(t, Equal("yes", "yes"))
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity(5, 5), 1e-9)
	assert.InDelta(t, 1.0, Similarity(0, 0), 1e-9)
	assert.InDelta(t, 0.5, Similarity(10, 5), 1e-9)
	assert.InDelta(t, 0.0, Similarity(10, -10), 1e-9)

	assert.InDelta(t, 2.0/3.0, Similarity([]any{1, 2, 3}, []any{1, 2, 4}), 1e-9)
	assert.InDelta(t, 0.5, Similarity([]any{1, 2}, []any{1, 2, 3, 4}), 1e-9)

	assert.InDelta(t, 1.0, Similarity("abc", "cba"), 1e-9)
	s := Similarity(map[string]any{"a": 1}, map[string]any{"b": 2})
	assert.Greater(t, s, 0.0)
	assert.Less(t, s, 1.0)
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name      string
		predicted any
		actual    any
		want      float64
	}{
		{"exact number", 10, 10, 1},
		{"relative error", 8, 10, 0.8},
		{"error beyond 100 percent", 30, 10, 0},
		{"zero actual", 0.25, 0, 0.75},
		{"sequence half", []any{1, 2, 3, 4}, []any{1, 2, 0, 0}, 0.5},
		{"sequence shorter prediction", []any{1}, []any{1, 2}, 0.5},
		{"structure exact", map[string]any{"a": 1}, map[string]any{"a": 1}, 1},
		{"structure mismatch", map[string]any{"a": 1}, map[string]any{"a": 2}, 0},
		{"bool", true, true, 1},
		{"type mismatch", "10", 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Accuracy(tt.predicted, tt.actual), 1e-9)
		})
	}
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-1))
	assert.Equal(t, 1.0, Clamp01(2))
	assert.Equal(t, 0.3, Clamp01(0.3))
}

func TestMeanVariance(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-9)
	assert.Equal(t, 0.0, Variance([]float64{4}))
	assert.InDelta(t, 2.0/3.0, Variance([]float64{1, 2, 3}), 1e-9)
}

func TestErrors_Unwrap(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NotFoundError("test", "t1"))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, RuleUnknownID, verr.Rule)
	assert.True(t, errors.Is(err, ErrNotFound))

	cause := errors.New("disk full")
	sf := &StorageFailure{Op: "put", Key: "k", Err: cause}
	assert.True(t, errors.Is(sf, cause))

	pf := &PredictorFailure{PredictorID: "p", Timeout: true, Err: cause}
	assert.Contains(t, pf.Error(), "timed out")

	ie := &InactiveTestError{TestID: "t", Now: time.Unix(0, 0)}
	assert.Contains(t, ie.Error(), "not active")
}
