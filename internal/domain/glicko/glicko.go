// Package glicko implements the Glicko-2 rating update for one player over
// one rating period.
package glicko

import (
	"fmt"
	"math"

	"github.com/okian/periodrank/pkg/metrics"
)

// Scale constants of the Glicko-2 system.
const (
	Scale      = 173.7178
	BaseRating = 1500.0
)

// Default engine configuration constants.
const (
	DefaultTau           = 0.75
	DefaultTolerance     = 1e-6
	DefaultMaxIterations = 100
)

// Rating is a player's state on the display scale.
type Rating struct {
	Rating     float64
	Deviation  float64
	Volatility float64
}

// Opponent is one game of the subject: the opponent's pre-period rating and
// deviation and the score the subject obtained against them.
type Opponent struct {
	Rating    float64
	Deviation float64
	Score     float64
}

// Engine computes Glicko-2 updates. It holds configuration only and is safe
// for concurrent use.
type Engine struct {
	tau           float64
	tolerance     float64
	maxIterations int
	observe       func(int)
}

// NewEngine creates an engine, validating the configured constants.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		tau:           DefaultTau,
		tolerance:     DefaultTolerance,
		maxIterations: DefaultMaxIterations,
		observe:       metrics.RecordSolverIterations,
	}
	for _, opt := range opts {
		opt(e)
	}

	if !(e.tau > 0) || math.IsInf(e.tau, 0) {
		return nil, fmt.Errorf("%w: tau must be positive, got %v", ErrInvalidConfig, e.tau)
	}
	if !(e.tolerance > 0) || math.IsInf(e.tolerance, 0) {
		return nil, fmt.Errorf("%w: tolerance must be positive, got %v", ErrInvalidConfig, e.tolerance)
	}
	if e.maxIterations < 1 {
		return nil, fmt.Errorf("%w: max iterations must be at least 1, got %d", ErrInvalidConfig, e.maxIterations)
	}
	return e, nil
}

// Tau returns the configured system constant.
func (e *Engine) Tau() float64 { return e.tau }

// ToInternal converts display-scale values to (μ, φ, σ).
func ToInternal(rating, deviation, volatility float64) (mu, phi, sigma float64) {
	return (rating - BaseRating) / Scale, deviation / Scale, volatility
}

// FromInternal converts (μ, φ, σ) back to display-scale values.
func FromInternal(mu, phi, sigma float64) (rating, deviation, volatility float64) {
	return Scale*mu + BaseRating, Scale * phi, sigma
}

// Rate returns the player's post-period rating given every game they played
// in the period. Opponent values must be pre-period snapshots.
func (e *Engine) Rate(player Rating, opponents []Opponent) (Rating, error) {
	if err := validRating(player); err != nil {
		return Rating{}, err
	}
	mu, phi, sigma := ToInternal(player.Rating, player.Deviation, player.Volatility)

	if len(opponents) == 0 {
		r, d, s := FromInternal(mu, math.Sqrt(phi*phi+sigma*sigma), sigma)
		return Rating{Rating: r, Deviation: d, Volatility: s}, nil
	}

	var vInv, sum float64
	for i, o := range opponents {
		if !finite(o.Rating) || !finite(o.Deviation) || o.Deviation < 0 {
			return Rating{}, fmt.Errorf("%w: opponent %d rating %v deviation %v", ErrInvalidInput, i, o.Rating, o.Deviation)
		}
		if !(o.Score >= 0 && o.Score <= 1) {
			return Rating{}, fmt.Errorf("%w: opponent %d score %v", ErrInvalidInput, i, o.Score)
		}
		muJ, phiJ, _ := ToInternal(o.Rating, o.Deviation, 0)
		g := gFactor(phiJ)
		ex := expected(mu, muJ, g)
		vInv += g * g * ex * (1 - ex)
		sum += g * (o.Score - ex)
	}
	if !(vInv > 0) || !finite(vInv) {
		return Rating{}, fmt.Errorf("%w: estimated variance is not finite", ErrNumericDivergence)
	}
	v := 1 / vInv
	delta := v * sum

	sigmaNew, iterations, err := e.volatility(phi, sigma, v, delta)
	if err != nil {
		return Rating{}, err
	}
	e.observe(iterations)

	phiStar := math.Sqrt(phi*phi + sigmaNew*sigmaNew)
	phiNew := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
	muNew := mu + phiNew*phiNew*sum

	r, d, s := FromInternal(muNew, phiNew, sigmaNew)
	out := Rating{Rating: r, Deviation: d, Volatility: s}
	if err := validRating(out); err != nil {
		return Rating{}, fmt.Errorf("%w: %v", ErrNumericDivergence, err)
	}
	return out, nil
}

// volatility solves for σ' with the Illinois variant of regula falsi on the
// log-volatility axis. It returns σ' and the number of iterations used.
func (e *Engine) volatility(phi, sigma, v, delta float64) (float64, int, error) {
	a := math.Log(sigma * sigma)
	phi2 := phi * phi
	tau2 := e.tau * e.tau
	f := func(x float64) float64 {
		ex := math.Exp(x)
		d := phi2 + v + ex
		return ex*(delta*delta-phi2-v-ex)/(2*d*d) - (x-a)/tau2
	}

	lo := a
	var hi float64
	if delta*delta > phi2+v {
		hi = math.Log(delta*delta - phi2 - v)
	} else {
		k := 1
		for ; k <= e.maxIterations; k++ {
			if f(a-float64(k)*e.tau) >= 0 {
				break
			}
		}
		if k > e.maxIterations {
			return 0, 0, fmt.Errorf("%w: no sign change within %d steps", ErrNumericDivergence, e.maxIterations)
		}
		hi = a - float64(k)*e.tau
	}

	fLo, fHi := f(lo), f(hi)
	if !finite(fLo) || !finite(fHi) {
		return 0, 0, fmt.Errorf("%w: bracket values are not finite", ErrNumericDivergence)
	}

	iterations := 0
	for math.Abs(hi-lo) > e.tolerance {
		if iterations >= e.maxIterations {
			return 0, iterations, fmt.Errorf("%w: no convergence after %d iterations", ErrNumericDivergence, iterations)
		}
		iterations++

		c := lo + (lo-hi)*fLo/(fHi-fLo)
		fC := f(c)
		if !finite(c) || !finite(fC) {
			return 0, iterations, fmt.Errorf("%w: iterate is not finite", ErrNumericDivergence)
		}
		if fC*fHi <= 0 {
			lo, fLo = hi, fHi
		} else {
			fLo /= 2
		}
		hi, fHi = c, fC
	}
	return math.Exp(lo / 2), iterations, nil
}

func gFactor(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

func expected(mu, muJ, g float64) float64 {
	return 1 / (1 + math.Exp(-g*(mu-muJ)))
}

func validRating(r Rating) error {
	if !finite(r.Rating) || !finite(r.Deviation) || !finite(r.Volatility) {
		return fmt.Errorf("%w: non-finite rating %+v", ErrInvalidInput, r)
	}
	if r.Deviation < 0 || r.Volatility <= 0 {
		return fmt.Errorf("%w: deviation %v volatility %v", ErrInvalidInput, r.Deviation, r.Volatility)
	}
	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
