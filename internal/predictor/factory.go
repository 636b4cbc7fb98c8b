package predictor

import (
	"fmt"
)

// Config holds predictor parameters.
type Config struct {
	Type            Type
	MinObservations int

	// MovingAverage params
	Alpha float64

	// Linear and polynomial params
	Feature string
	Degree  int

	// Constant params
	Value      any
	Confidence float64
}

// DefaultConfig returns default predictor configuration.
func DefaultConfig() Config {
	return Config{
		Type:            TypeMovingAverage,
		MinObservations: 5,
		Alpha:           0.2,
		Feature:         DefaultFeature,
		Degree:          DefaultDegree,
		Confidence:      0.5,
	}
}

// Factory creates predictors.
type Factory struct {
	config Config
}

// NewFactory creates a new predictor factory.
func NewFactory(cfg Config) *Factory {
	return &Factory{config: cfg}
}

// Create creates a predictor based on configuration.
func (f *Factory) Create() (Model, error) {
	return f.CreateByType(f.config.Type)
}

// CreateByType creates a predictor of the specified type.
func (f *Factory) CreateByType(t Type) (Model, error) {
	switch t {
	case TypeConstant:
		if f.config.Value == nil {
			return nil, fmt.Errorf("constant predictor requires a value")
		}
		return NewConstant(f.config.Value, f.config.Confidence), nil

	case TypeMovingAverage:
		return NewMovingAverage(f.config.Alpha), nil

	case TypeLinear:
		return NewLinear(f.config.MinObservations, f.config.Feature), nil

	case TypePolynomial:
		return NewPolynomial(f.config.Degree, f.config.MinObservations, f.config.Feature), nil

	default:
		return nil, fmt.Errorf("unknown predictor type: %s", t)
	}
}
