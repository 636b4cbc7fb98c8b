package ensemble

import (
	"sort"

	"github.com/haskel/quorum/internal/prediction"
)

// dynamicVarianceThreshold selects weighted_average when survivor confidences are this close.
const dynamicVarianceThreshold = 0.1

// weighted pairs a value with its combination weight.
type weighted struct {
	value  any
	weight float64
}

// resolveMethod picks the concrete aggregation method for a set of survivors.
func resolveMethod(m prediction.Method, preds []prediction.ModelPrediction) prediction.Method {
	if m != prediction.MethodDynamic {
		return m
	}
	if prediction.Variance(prediction.Confidences(preds)) < dynamicVarianceThreshold {
		return prediction.MethodWeightedAverage
	}
	if len(preds) >= 3 {
		return prediction.MethodVoting
	}
	return prediction.MethodStacking
}

// weightedAverage combines values weighted by confidence.
// Confidence is the mean survivor confidence.
func weightedAverage(preds []prediction.ModelPrediction) (any, float64) {
	items := make([]weighted, len(preds))
	var total float64
	for i, p := range preds {
		items[i] = weighted{value: p.Value, weight: p.Confidence}
		total += p.Confidence
	}
	return combine(items), total / float64(len(preds))
}

// vote groups structurally equal values and picks the group with the highest
// summed confidence. Ties go to the group seen first.
func vote(preds []prediction.ModelPrediction) (any, float64) {
	type group struct {
		value any
		total float64
	}
	var groups []*group
	index := make(map[string]*group)

	for _, p := range preds {
		key := prediction.Canonical(p.Value)
		g, ok := index[key]
		if !ok {
			g = &group{value: p.Value}
			index[key] = g
			groups = append(groups, g)
		}
		g.total += p.Confidence
	}

	best := groups[0]
	for _, g := range groups[1:] {
		if g.total > best.total {
			best = g
		}
	}
	return best.value, best.total / float64(len(preds))
}

// stack combines values using normalized weights derived from historical
// accuracy in the current context. Predictors without history fall back to
// their own confidence.
func stack(preds []prediction.ModelPrediction, accuracy func(predictorID string) (float64, bool)) (any, float64) {
	weights := make([]float64, len(preds))
	var sum float64
	for i, p := range preds {
		w, ok := accuracy(p.PredictorID)
		if !ok {
			w = p.Confidence
		}
		weights[i] = w
		sum += w
	}

	items := make([]weighted, len(preds))
	var conf float64
	for i, p := range preds {
		w := 1 / float64(len(preds))
		if sum > 0 {
			w = weights[i] / sum
		}
		items[i] = weighted{value: p.Value, weight: w}
		conf += w * p.Confidence
	}
	return combine(items), conf
}

// combine merges values by kind:
//   - numbers: weighted mean (plain mean when all weights are zero)
//   - sequences: element-wise, short sequences padded with numeric zero
//   - structures: key by key over the values that have the key
//   - anything else or mixed kinds: the value with the highest weight
func combine(items []weighted) any {
	if len(items) == 0 {
		return nil
	}
	if len(items) == 1 {
		return items[0].value
	}

	switch commonKind(items) {
	case prediction.KindNumber:
		return combineNumbers(items)
	case prediction.KindSequence:
		return combineSequences(items)
	case prediction.KindStructure:
		return combineStructures(items)
	default:
		return heaviest(items)
	}
}

func commonKind(items []weighted) prediction.ValueKind {
	kind := prediction.KindOf(items[0].value)
	for _, it := range items[1:] {
		if prediction.KindOf(it.value) != kind {
			return prediction.KindOther
		}
	}
	return kind
}

func combineNumbers(items []weighted) float64 {
	var sum, weights, plain float64
	for _, it := range items {
		v, _ := prediction.AsNumber(it.value)
		sum += v * it.weight
		weights += it.weight
		plain += v
	}
	if weights == 0 {
		return plain / float64(len(items))
	}
	return sum / weights
}

func combineSequences(items []weighted) []any {
	seqs := make([][]any, len(items))
	maxLen := 0
	for i, it := range items {
		seqs[i], _ = prediction.AsSequence(it.value)
		maxLen = max(maxLen, len(seqs[i]))
	}

	out := make([]any, maxLen)
	for idx := 0; idx < maxLen; idx++ {
		present := make([]weighted, 0, len(items))
		numeric := true
		for i, s := range seqs {
			if idx < len(s) {
				present = append(present, weighted{value: s[idx], weight: items[i].weight})
				if _, ok := prediction.AsNumber(s[idx]); !ok {
					numeric = false
				}
			}
		}
		if numeric {
			present = present[:0]
			for i, s := range seqs {
				var v any = 0.0
				if idx < len(s) {
					v = s[idx]
				}
				present = append(present, weighted{value: v, weight: items[i].weight})
			}
		}
		out[idx] = combine(present)
	}
	return out
}

func combineStructures(items []weighted) map[string]any {
	structs := make([]map[string]any, len(items))
	keySet := make(map[string]struct{})
	for i, it := range items {
		structs[i], _ = prediction.AsStructure(it.value)
		for k := range structs[i] {
			keySet[k] = struct{}{}
		}
	}

	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(keys))
	for _, k := range keys {
		var present []weighted
		for i, s := range structs {
			if v, ok := s[k]; ok {
				present = append(present, weighted{value: v, weight: items[i].weight})
			}
		}
		out[k] = combine(present)
	}
	return out
}

func heaviest(items []weighted) any {
	best := items[0]
	for _, it := range items[1:] {
		if it.weight > best.weight {
			best = it
		}
	}
	return best.value
}
