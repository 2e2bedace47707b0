package period

import "github.com/okian/periodrank/pkg/logger"

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithDefaults sets the starting values of players seen for the first time.
func WithDefaults(rating, deviation, volatility float64) Option {
	return func(c *Coordinator) {
		if deviation >= 0 && volatility > 0 {
			c.rating, c.deviation, c.volatility = rating, deviation, volatility
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}
