package glicko

import "errors"

var (
	// ErrInvalidConfig is returned by NewEngine for unusable settings.
	ErrInvalidConfig = errors.New("glicko: invalid engine configuration")
	// ErrInvalidInput is returned for scores outside [0,1] or non-finite values.
	ErrInvalidInput = errors.New("glicko: invalid input")
	// ErrNumericDivergence is returned when the volatility solve cannot converge.
	ErrNumericDivergence = errors.New("glicko: volatility solve diverged")
)
