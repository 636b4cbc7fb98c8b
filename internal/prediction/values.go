package prediction

import (
	"encoding/json"
	"fmt"
	"math"
)

// ValueKind classifies a prediction value.
type ValueKind int

const (
	KindOther ValueKind = iota
	KindNumber
	KindSequence
	KindStructure
)

// String returns string representation of the kind.
func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindSequence:
		return "sequence"
	case KindStructure:
		return "structure"
	default:
		return "other"
	}
}

// KindOf returns the kind of a prediction value.
func KindOf(v any) ValueKind {
	if _, ok := AsNumber(v); ok {
		return KindNumber
	}
	if _, ok := AsSequence(v); ok {
		return KindSequence
	}
	if _, ok := AsStructure(v); ok {
		return KindStructure
	}
	return KindOther
}

// AsNumber converts numeric values (any Go number or json.Number) to float64.
func AsNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// AsSequence converts slice values to []any.
func AsSequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []float64:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	case []int:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	}
	return nil, false
}

// AsStructure converts map values keyed by string to map[string]any.
func AsStructure(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]float64:
		out := make(map[string]any, len(m))
		for k, x := range m {
			out[k] = x
		}
		return out, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, x := range m {
			out[k] = x
		}
		return out, true
	}
	return nil, false
}

// Canonical returns a deterministic serialization of v.
// Map keys are sorted by encoding/json, so structurally equal values serialize identically.
func Canonical(v any) string {
	if n, ok := AsNumber(v); ok {
		return fmt.Sprintf("n:%v", n)
	}
	if s, ok := AsSequence(v); ok {
		parts := make([]any, len(s))
		for i, x := range s {
			if n, ok := AsNumber(x); ok {
				parts[i] = n
			} else {
				parts[i] = x
			}
		}
		v = parts
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(data)
}

// Equal reports structural equality of two prediction values.
func Equal(a, b any) bool {
	if x, ok := AsNumber(a); ok {
		y, ok := AsNumber(b)
		return ok && x == y
	}
	return Canonical(a) == Canonical(b)
}

// Similarity returns how alike two values are in [0,1].
//   - numbers: 1 - |a-b| / max(|a|,|b|)
//   - sequences: positional match ratio over the longer sequence
//   - anything else: Jaccard similarity of the serialized character sets
func Similarity(a, b any) float64 {
	if x, ok := AsNumber(a); ok {
		if y, ok := AsNumber(b); ok {
			return numberSimilarity(x, y)
		}
	}
	if sa, ok := AsSequence(a); ok {
		if sb, ok := AsSequence(b); ok {
			return positionalMatch(sa, sb, max(len(sa), len(sb)))
		}
	}
	return jaccard(Canonical(a), Canonical(b))
}

func numberSimilarity(x, y float64) float64 {
	scale := math.Max(math.Abs(x), math.Abs(y))
	if scale == 0 {
		return 1
	}
	return Clamp01(1 - math.Abs(x-y)/scale)
}

func positionalMatch(a, b []any, denom int) float64 {
	if denom == 0 {
		return 1
	}
	matches := 0
	for i := 0; i < min(len(a), len(b)); i++ {
		if Equal(a[i], b[i]) {
			matches++
		}
	}
	return float64(matches) / float64(denom)
}

func jaccard(a, b string) float64 {
	setA := make(map[rune]struct{})
	for _, r := range a {
		setA[r] = struct{}{}
	}
	setB := make(map[rune]struct{})
	for _, r := range b {
		setB[r] = struct{}{}
	}
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	inter := 0
	for r := range setA {
		if _, ok := setB[r]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// Accuracy scores a predicted value against the actual outcome in [0,1].
//   - numbers: 1 - relative error, floored at 0
//   - sequences: ratio of actual elements matched position by position
//   - structures and other values: exact match 1, otherwise 0
func Accuracy(predicted, actual any) float64 {
	if a, ok := AsNumber(actual); ok {
		p, ok := AsNumber(predicted)
		if !ok {
			return 0
		}
		if a == 0 {
			return Clamp01(1 - math.Abs(p))
		}
		return Clamp01(1 - math.Abs(p-a)/math.Abs(a))
	}
	if sa, ok := AsSequence(actual); ok {
		sp, ok := AsSequence(predicted)
		if !ok {
			return 0
		}
		if len(sa) == 0 {
			if len(sp) == 0 {
				return 1
			}
			return 0
		}
		return positionalMatch(sp, sa, len(sa))
	}
	if Equal(predicted, actual) {
		return 1
	}
	return 0
}

// Clamp01 bounds v to [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
