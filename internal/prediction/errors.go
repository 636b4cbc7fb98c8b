package prediction

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound marks lookups of unknown test, variant or predictor ids.
var ErrNotFound = errors.New("not found")

// Validation rule names reported by ValidationError.
const (
	RuleTrafficSplitSum    = "traffic_split_sum_100"
	RuleVariantsInSplit    = "variants_in_traffic_split"
	RuleTimeWindow         = "start_before_end"
	RuleControlVariant     = "control_variant_required"
	RuleUnknownID          = "unknown_id"
	RuleDuplicateID        = "duplicate_id"
	RuleInvalidField       = "invalid_field"
	RuleInvalidAggregation = "invalid_aggregation"
)

// ValidationError reports a malformed request or configuration.
// It is surfaced to the caller and never retried.
type ValidationError struct {
	Rule    string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Rule, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation error for the given rule.
func NewValidationError(rule, format string, args ...any) *ValidationError {
	return &ValidationError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError creates a validation error for an unknown id that also matches ErrNotFound.
func NotFoundError(kind, id string) *ValidationError {
	return &ValidationError{
		Rule:    RuleUnknownID,
		Message: fmt.Sprintf("unknown %s %q", kind, id),
		Err:     ErrNotFound,
	}
}

// NoViableModelsError is returned when no predictor survives the confidence threshold.
type NoViableModelsError struct {
	Considered int
	Failed     int
	Threshold  float64
}

func (e *NoViableModelsError) Error() string {
	return fmt.Sprintf("no viable models: %d considered, %d failed, threshold %.2f",
		e.Considered, e.Failed, e.Threshold)
}

// PredictorFailure records one predictor that errored, panicked or timed out.
// It is handled inside the aggregator and only surfaces through logs and metrics.
type PredictorFailure struct {
	PredictorID string
	Timeout     bool
	Err         error
}

func (e *PredictorFailure) Error() string {
	if e.Timeout {
		return fmt.Sprintf("predictor %s timed out: %v", e.PredictorID, e.Err)
	}
	return fmt.Sprintf("predictor %s failed: %v", e.PredictorID, e.Err)
}

func (e *PredictorFailure) Unwrap() error {
	return e.Err
}

// InactiveTestError is returned when a prediction is requested outside a test's window.
type InactiveTestError struct {
	TestID string
	Now    time.Time
	Start  time.Time
	End    time.Time
}

func (e *InactiveTestError) Error() string {
	return fmt.Sprintf("test %s is not active at %s (window %s - %s)",
		e.TestID, e.Now.Format(time.RFC3339), e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// StorageFailure wraps a ledger read/write error.
// Update paths log it and keep serving from memory.
type StorageFailure struct {
	Op  string
	Key string
	Err error
}

func (e *StorageFailure) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageFailure) Unwrap() error {
	return e.Err
}
