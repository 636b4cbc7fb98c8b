package experiment

import (
	"math"
	"sort"
)

// zTable maps supported confidence levels to two-sided critical values.
var zTable = map[float64]float64{
	0.90: 1.645,
	0.95: 1.96,
	0.99: 2.576,
}

// criticalZ returns the critical value for a confidence level; unknown levels use 0.95.
func criticalZ(level float64) float64 {
	for l, z := range zTable {
		if math.Abs(l-level) < 1e-9 {
			return z
		}
	}
	return zTable[DefaultConfidenceLevel]
}

// proportionInterval is the normal-approximation interval p ± z·√(p(1−p)/n), clamped to [0,1].
func proportionInterval(p float64, n int, z float64) Interval {
	if n == 0 {
		return Interval{}
	}
	margin := z * math.Sqrt(p*(1-p)/float64(n))
	return Interval{
		Lower: math.Max(0, p-margin),
		Upper: math.Min(1, p+margin),
	}
}

// twoProportionZ is the pooled two-proportion z statistic of p2 against p1.
// A zero standard error yields zero.
func twoProportionZ(p1 float64, n1 int, p2 float64, n2 int) float64 {
	if n1 == 0 || n2 == 0 {
		return 0
	}
	pooled := (p1*float64(n1) + p2*float64(n2)) / float64(n1+n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 0
	}
	return (p2 - p1) / se
}

// twoSidedP is the two-sided p-value of a standard normal z.
func twoSidedP(z float64) float64 {
	return math.Erfc(math.Abs(z) / math.Sqrt2)
}

func summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	n := len(sorted)
	mean := sum / float64(n)

	var sq float64
	for _, v := range sorted {
		sq += (v - mean) * (v - mean)
	}

	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return Summary{
		Mean:   mean,
		Median: median,
		StdDev: math.Sqrt(sq / float64(n)),
		Min:    sorted[0],
		Max:    sorted[n-1],
		Count:  n,
	}
}
