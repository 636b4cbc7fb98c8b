package prediction

import (
	"fmt"
	"strings"
)

// Workload is a coarse description of how busy the caller currently is.
type Workload string

const (
	WorkloadLow    Workload = "low"
	WorkloadMedium Workload = "medium"
	WorkloadHigh   Workload = "high"
)

// IsValid checks if the workload level is valid.
func (w Workload) IsValid() bool {
	switch w {
	case WorkloadLow, WorkloadMedium, WorkloadHigh:
		return true
	}
	return false
}

// Level returns the ordinal position of the workload (low=0, medium=1, high=2).
// Unknown values are treated as medium.
func (w Workload) Level() int {
	switch w {
	case WorkloadLow:
		return 0
	case WorkloadHigh:
		return 2
	default:
		return 1
	}
}

// String returns string representation.
func (w Workload) String() string {
	return string(w)
}

// MaxRecentActivities bounds the activity tags carried by a Context.
const MaxRecentActivities = 20

// hoursPerBucket is the width of the time bucket used in context keys.
const hoursPerBucket = 4

// ContextKey is the coarse lookup key derived from a Context.
type ContextKey string

// Context is an immutable snapshot of the situation a prediction is made in.
type Context struct {
	UserID           string   `json:"user_id"`
	TaskType         string   `json:"task_type"`
	HourOfDay        int      `json:"hour_of_day"`
	Workload         Workload `json:"workload"`
	RecentActivities []string `json:"recent_activities,omitempty"`
}

// NewContext creates a normalized context.
// Hour is wrapped into [0,23], unknown workload becomes medium and the activity
// list keeps only the most recent MaxRecentActivities entries.
func NewContext(userID, taskType string, hour int, workload Workload, activities ...string) Context {
	c := Context{
		UserID:           userID,
		TaskType:         taskType,
		HourOfDay:        hour,
		Workload:         workload,
		RecentActivities: activities,
	}
	return c.Normalize()
}

// Normalize returns a copy with bounded, well-formed fields.
func (c Context) Normalize() Context {
	c.HourOfDay = ((c.HourOfDay % 24) + 24) % 24
	if !c.Workload.IsValid() {
		c.Workload = WorkloadMedium
	}
	if len(c.RecentActivities) > MaxRecentActivities {
		c.RecentActivities = c.RecentActivities[len(c.RecentActivities)-MaxRecentActivities:]
	}
	if c.RecentActivities != nil {
		c.RecentActivities = append([]string(nil), c.RecentActivities...)
	}
	return c
}

// TimeBucket returns the 4-hour bucket index of the context (0-5).
func (c Context) TimeBucket() int {
	return (((c.HourOfDay % 24) + 24) % 24) / hoursPerBucket
}

// Key reduces the context to task type, workload and time bucket.
func (c Context) Key() ContextKey {
	workload := c.Workload
	if !workload.IsValid() {
		workload = WorkloadMedium
	}
	return ContextKey(fmt.Sprintf("%s_%s_%d", c.TaskType, workload, c.TimeBucket()))
}

// FilterString is the "taskType_workload_hour" string that predictor context filters match against.
func (c Context) FilterString() string {
	return fmt.Sprintf("%s_%s_%d", c.TaskType, c.Workload, c.HourOfDay)
}

// MatchesFilters reports whether any filter is a substring of the filter string.
// An empty filter list matches every context.
func (c Context) MatchesFilters(filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	s := c.FilterString()
	for _, f := range filters {
		if f != "" && strings.Contains(s, f) {
			return true
		}
	}
	return false
}
