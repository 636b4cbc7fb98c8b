package selection

import (
	"errors"
	"fmt"
	"sort"

	"github.com/haskel/quorum/internal/prediction"
)

const (
	neutralScore   = 0.5
	latencyCeiling = 1000.0 // ms
	resourceBudget = 100.0  // percent
)

// Strategy orders candidates for a context. Implementations are pure:
// they read the history and never mutate it.
type Strategy interface {
	// Name returns the strategy name.
	Name() string

	// Rank returns the candidates in preference order, possibly fewer than given.
	Rank(candidates []Candidate, pctx prediction.Context, criteria Criteria, history History) []Candidate
}

type rankFunc func(candidates []Candidate, pctx prediction.Context, criteria Criteria, history History) []Candidate

type funcStrategy struct {
	name StrategyType
	rank rankFunc
}

func (s funcStrategy) Name() string { return string(s.name) }

func (s funcStrategy) Rank(candidates []Candidate, pctx prediction.Context, criteria Criteria, history History) []Candidate {
	return s.rank(candidates, pctx, criteria, history)
}

// Config maps context classes to strategies. Classes left out use DefaultStrategies.
type Config struct {
	ClassStrategies map[ContextClass]StrategyType
}

// Validate checks that every mapped class and strategy is known.
func (c Config) Validate() error {
	var errs []error
	for class, st := range c.ClassStrategies {
		if !class.IsValid() {
			errs = append(errs, fmt.Errorf("unknown context class: %s", class))
		}
		if !st.IsValid() {
			errs = append(errs, fmt.Errorf("unknown strategy for %s: %s", class, st))
		}
	}
	return errors.Join(errs...)
}

// Factory creates selection strategies.
type Factory struct {
	config Config
}

// NewFactory creates a new strategy factory.
func NewFactory(cfg Config) *Factory {
	return &Factory{config: cfg}
}

// CreateByType creates a strategy of the specified type.
func (f *Factory) CreateByType(strategyType StrategyType) (Strategy, error) {
	switch strategyType {
	case StrategyAccuracyFirst:
		return funcStrategy{strategyType, accuracyFirst}, nil
	case StrategySpeedFirst:
		return funcStrategy{strategyType, speedFirst}, nil
	case StrategyBalanced:
		return funcStrategy{strategyType, balanced}, nil
	case StrategyContextAware:
		return funcStrategy{strategyType, contextAware}, nil
	case StrategyEnsemble:
		return funcStrategy{strategyType, diverse}, nil
	default:
		return nil, fmt.Errorf("unknown strategy type: %s", strategyType)
	}
}

// ForClass returns the strategy configured for a class, falling back to the default mapping.
func (f *Factory) ForClass(class ContextClass) (StrategyType, Strategy) {
	st, ok := f.config.ClassStrategies[class]
	if !ok || !st.IsValid() {
		st, ok = DefaultStrategies()[class]
		if !ok {
			st = StrategyContextAware
		}
	}
	s, _ := f.CreateByType(st)
	return st, s
}

// withHistory keeps candidates that have performance metrics, in input order.
func withHistory(candidates []Candidate, history History) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := history[c.PredictorID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// rankBy sorts candidates with history by score, highest first. Ties keep input order.
func rankBy(candidates []Candidate, history History, score func(*Metrics) float64) []Candidate {
	out := withHistory(candidates, history)
	sort.SliceStable(out, func(i, j int) bool {
		return score(history[out[i].PredictorID]) > score(history[out[j].PredictorID])
	})
	return out
}

func accuracyFirst(candidates []Candidate, _ prediction.Context, _ Criteria, history History) []Candidate {
	return rankBy(candidates, history, func(m *Metrics) float64 {
		return m.EffectiveAccuracy()
	})
}

func speedFirst(candidates []Candidate, _ prediction.Context, _ Criteria, history History) []Candidate {
	return rankBy(candidates, history, func(m *Metrics) float64 {
		return -m.LatencyMs
	})
}

func balanced(candidates []Candidate, _ prediction.Context, _ Criteria, history History) []Candidate {
	return rankBy(candidates, history, func(m *Metrics) float64 {
		return (m.EffectiveAccuracy() + latencyScore(m.LatencyMs) + resourceScore(m.MemoryUsage, m.CPUUsage)) / 3
	})
}

// contextAware blends context accuracy with overall accuracy by the confidence in the context estimate.
func contextAware(candidates []Candidate, pctx prediction.Context, _ Criteria, history History) []Candidate {
	key := pctx.Key()
	return rankBy(candidates, history, func(m *Metrics) float64 {
		cp, ok := m.Contexts[key]
		if !ok || cp.AccuracySamples == 0 {
			return m.EffectiveAccuracy() * neutralScore
		}
		return cp.Confidence*cp.Accuracy + (1-cp.Confidence)*m.EffectiveAccuracy()
	})
}

// diverse takes the first candidate of every predictor type, history or not,
// then fills with the remaining candidates that have history, by accuracy.
func diverse(candidates []Candidate, pctx prediction.Context, criteria Criteria, history History) []Candidate {
	var out []Candidate
	picked := make(map[string]bool)
	types := make(map[string]bool)

	for _, c := range candidates {
		t := candidateType(c, history)
		if types[t] {
			continue
		}
		types[t] = true
		picked[c.PredictorID] = true
		out = append(out, c)
	}

	for _, c := range accuracyFirst(candidates, pctx, criteria, history) {
		if !picked[c.PredictorID] {
			picked[c.PredictorID] = true
			out = append(out, c)
		}
	}
	return out
}

func candidateType(c Candidate, history History) string {
	if c.PredictorType != "" {
		return c.PredictorType
	}
	if m, ok := history[c.PredictorID]; ok && m.PredictorType != "" {
		return m.PredictorType
	}
	return c.PredictorID
}

func latencyScore(ms float64) float64 {
	return 1 - min(max(ms, 0)/latencyCeiling, 1)
}

func resourceScore(memory, cpu float64) float64 {
	return 1 - min(max((memory+cpu)/2, 0)/resourceBudget, 1)
}

// UnifiedScore is the criteria-weighted mean of accuracy, latency, resource
// usage and context relevance, each in [0,1]. Unknown predictors score 0.5 everywhere.
func UnifiedScore(m *Metrics, key prediction.ContextKey, criteria Criteria) float64 {
	criteria = criteria.nonNegative()
	if criteria.sum() <= 0 {
		criteria = DefaultCriteria()
	}
	if m == nil {
		return neutralScore
	}
	score := criteria.Accuracy*m.EffectiveAccuracy() +
		criteria.Latency*latencyScore(m.LatencyMs) +
		criteria.ResourceUsage*resourceScore(m.MemoryUsage, m.CPUUsage) +
		criteria.ContextRelevance*m.ContextRelevance(key)
	return prediction.Clamp01(score / criteria.sum())
}
