package confidence

import (
	"math"
	"strings"

	"github.com/haskel/quorum/internal/prediction"
)

// taskFamilies groups task types considered related.
var taskFamilies = map[string]string{
	"coding":        "engineering",
	"debugging":     "engineering",
	"review":        "engineering",
	"code_review":   "engineering",
	"testing":       "engineering",
	"deployment":    "engineering",
	"email":         "communication",
	"meeting":       "communication",
	"call":          "communication",
	"chat":          "communication",
	"planning":      "planning",
	"research":      "planning",
	"writing":       "planning",
	"project":       "planning",
	"documentation": "planning",
	"break":         "rest",
	"exercise":      "rest",
	"lunch":         "rest",
}

const relatedTaskScore = 0.7

// TaskRelatedness returns 1 for the same task, 0.7 for tasks in the same family, 0 otherwise.
func TaskRelatedness(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1
	}
	fa, okA := taskFamilies[a]
	fb, okB := taskFamilies[b]
	if okA && okB && fa == fb {
		return relatedTaskScore
	}
	return 0
}

// ContextSimilarity is the mean of task relatedness, workload distance,
// hour-of-day proximity and recent-activity Jaccard similarity.
func ContextSimilarity(a, b prediction.Context) float64 {
	task := TaskRelatedness(a.TaskType, b.TaskType)
	workload := 1 - math.Abs(float64(a.Workload.Level()-b.Workload.Level()))/2

	d := math.Abs(float64(a.HourOfDay - b.HourOfDay))
	d = math.Min(d, 24-d)
	hour := 1 - d/12

	activity := jaccardStrings(a.RecentActivities, b.RecentActivities)

	return prediction.Clamp01((task + workload + hour + activity) / 4)
}

func jaccardStrings(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	setA := make(map[string]struct{}, len(a))
	for _, s := range a {
		setA[s] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, s := range b {
		setB[s] = struct{}{}
	}
	inter := 0
	for s := range setA {
		if _, ok := setB[s]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}
