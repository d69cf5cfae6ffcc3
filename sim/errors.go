package sim

import (
	"errors"
	"fmt"
)

// ErrNaNProbability is wrapped by NumericDomainError when a transition
// probability evaluates to NaN. A NaN is never treated as zero.
var ErrNaNProbability = errors.New("probability is NaN")

// ErrNonFinite is wrapped by NumericDomainError when a step-wide quantity,
// such as the temperature or the infectious rate, is NaN or infinite.
var ErrNonFinite = errors.New("value is not finite")

// stepWide is the NumericDomainError ID for quantities shared by every
// individual.
const stepWide IndividualID = -1

// ConfigurationError reports an invalid configuration value. It is always
// returned before the first step runs.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NumericDomainError reports a quantity outside its mathematical domain: a
// non-positive kernel radius at creation, a NaN or out-of-range probability,
// or a non-finite temperature or infectious rate. ID is -1 when the quantity
// is not tied to one individual. It is fatal for the run.
type NumericDomainError struct {
	ID       IndividualID
	Quantity string
	Value    float64
	Err      error
}

func (e *NumericDomainError) Error() string {
	subject := fmt.Sprintf("individual %d", e.ID)
	if e.ID == stepWide {
		subject = "step"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s = %v: %v", subject, e.Quantity, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: %s = %v out of domain", subject, e.Quantity, e.Value)
}

func (e *NumericDomainError) Unwrap() error { return e.Err }
