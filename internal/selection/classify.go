package selection

import (
	"strings"

	"github.com/haskel/quorum/internal/prediction"
)

const (
	realTimeActivities = 5
	complexActivities  = 3
)

var (
	highAccuracyMarkers = []string{"critical", "important", "deadline", "review"}
	complexTaskMarkers  = []string{"project", "planning", "research", "complex"}
)

// Classify maps a context to its class. Rules are checked in order and the first match wins.
func Classify(pctx prediction.Context) ContextClass {
	task := strings.ToLower(pctx.TaskType)
	activities := len(pctx.RecentActivities)

	switch {
	case containsAny(task, highAccuracyMarkers):
		return ClassHighAccuracy
	case activities >= realTimeActivities:
		return ClassRealTime
	case pctx.Workload == prediction.WorkloadHigh:
		return ClassResourceConstrained
	case containsAny(task, complexTaskMarkers),
		activities >= complexActivities && pctx.Workload == prediction.WorkloadMedium:
		return ClassComplexTask
	default:
		return ClassDefault
	}
}

// DefaultStrategies is the class to strategy mapping used when nothing overrides it.
func DefaultStrategies() map[ContextClass]StrategyType {
	return map[ContextClass]StrategyType{
		ClassHighAccuracy:        StrategyAccuracyFirst,
		ClassRealTime:            StrategySpeedFirst,
		ClassResourceConstrained: StrategyBalanced,
		ClassComplexTask:         StrategyEnsemble,
		ClassDefault:             StrategyContextAware,
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
