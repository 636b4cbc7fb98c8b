package experiment

import (
	"errors"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/haskel/quorum/internal/prediction"
)

const splitTolerance = 0.01

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateConfig checks the experiment rules first, then the field tags.
// All problems are returned joined; each is a *prediction.ValidationError.
func validateConfig(v *validator.Validate, cfg *TestConfig) error {
	var errs []error

	var sum float64
	for _, pct := range cfg.TrafficSplit {
		sum += pct
	}
	if math.Abs(sum-100) > splitTolerance {
		errs = append(errs, prediction.NewValidationError(prediction.RuleTrafficSplitSum,
			"traffic split sums to %.2f, expected 100", sum))
	}

	variants := make(map[string]bool, len(cfg.Variants))
	for _, variant := range cfg.Variants {
		if variants[variant.ID] {
			errs = append(errs, prediction.NewValidationError(prediction.RuleDuplicateID,
				"duplicate variant %q", variant.ID))
		}
		variants[variant.ID] = true
		if _, ok := cfg.TrafficSplit[variant.ID]; !ok {
			errs = append(errs, prediction.NewValidationError(prediction.RuleVariantsInSplit,
				"variant %q has no traffic split entry", variant.ID))
		}
	}
	var unknown []string
	for id := range cfg.TrafficSplit {
		if !variants[id] {
			unknown = append(unknown, id)
		}
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		errs = append(errs, prediction.NewValidationError(prediction.RuleVariantsInSplit,
			"traffic split names unknown variant %q", id))
	}

	if !cfg.StartDate.Before(cfg.EndDate) {
		errs = append(errs, prediction.NewValidationError(prediction.RuleTimeWindow,
			"start date %s is not before end date %s", cfg.StartDate, cfg.EndDate))
	}

	if _, ok := cfg.Control(); !ok {
		errs = append(errs, prediction.NewValidationError(prediction.RuleControlVariant,
			"at least one variant must be the control"))
	}

	if err := v.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return errors.Join(append(errs, err)...)
		}
		for _, fe := range fieldErrs {
			errs = append(errs, &prediction.ValidationError{
				Rule:    prediction.RuleInvalidField,
				Message: fieldMessage(fe),
				Err:     fe,
			})
		}
	}

	return errors.Join(errs...)
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "TestConfig.")
	if fe.Param() != "" {
		return field + " failed " + fe.Tag() + "=" + fe.Param()
	}
	return field + " failed " + fe.Tag()
}
