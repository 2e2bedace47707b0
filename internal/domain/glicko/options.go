package glicko

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithTau sets the system constant constraining volatility change.
// Sensible values lie between 0.3 and 1.2.
func WithTau(tau float64) Option {
	return func(e *Engine) {
		e.tau = tau
	}
}

// WithTolerance sets the convergence tolerance of the volatility solve.
func WithTolerance(eps float64) Option {
	return func(e *Engine) {
		e.tolerance = eps
	}
}

// WithMaxIterations caps the volatility solve and the bracket search.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		e.maxIterations = n
	}
}

// WithIterationObserver registers a callback receiving the iteration count of
// every volatility solve.
func WithIterationObserver(fn func(iterations int)) Option {
	return func(e *Engine) {
		if fn != nil {
			e.observe = fn
		}
	}
}
