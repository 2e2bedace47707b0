package testevents

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/okian/periodrank/pkg/logger"
)

// PlayerNames returns n zero-padded player names under prefix, strongest first.
func PlayerNames(prefix string, n int) []string {
	width := len(fmt.Sprint(n))
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s-p%0*d", prefix, width, i+1)
	}
	return names
}

// Strengths assigns evenly spaced hidden Elo strengths, highest first.
func Strengths(n int) []float64 {
	s := make([]float64, n)
	if n == 1 {
		s[0] = BaseStrength
		return s
	}
	for i := range s {
		s[i] = BaseStrength + StrengthSpread*(1-2*float64(i)/float64(n-1))
	}
	return s
}

// RoundRobin writes one PGN log in which every pair of players meets once.
// Results are drawn from the Elo expectation of the hidden strengths. Colors
// alternate with round so no player is always white.
func RoundRobin(rng *rand.Rand, round int, players []string, strengths []float64) (string, int) {
	var (
		b     strings.Builder
		games int
	)
	for i := 0; i < len(players); i++ {
		for j := i + 1; j < len(players); j++ {
			white, black := i, j
			if (i+j+round)%2 == 1 {
				white, black = j, i
			}
			result := drawResult(rng, strengths[white], strengths[black])
			fmt.Fprintf(&b, "[Event \"Synthetic round robin\"]\n[Round \"%d\"]\n", round)
			fmt.Fprintf(&b, "[White \"%s\"]\n[Black \"%s\"]\n[Result \"%s\"]\n\n%s\n\n",
				players[white], players[black], result, result)
			games++
		}
	}
	return b.String(), games
}

func drawResult(rng *rand.Rand, white, black float64) string {
	e := 1 / (1 + math.Pow(10, (black-white)/EloScale))
	u := rng.Float64()
	switch {
	case u < e*(1-DrawShare):
		return "1-0"
	case u > 1-(1-e)*(1-DrawShare):
		return "0-1"
	default:
		return "1/2-1/2"
	}
}

// generatePeriods builds config.Periods round robins under one run id.
func generatePeriods(ctx context.Context, config *Config, stats *Stats) ([]Period, error) {
	if config.Players < 2 {
		return nil, fmt.Errorf("need at least 2 players, got %d", config.Players)
	}
	if config.Periods < 1 {
		return nil, fmt.Errorf("need at least 1 period, got %d", config.Periods)
	}
	if config.RunID == "" {
		config.RunID = uuid.NewString()[:8]
	}

	logger.Get().Info(ctx, "generating round robin periods",
		logger.String("runID", config.RunID),
		logger.Int("periods", config.Periods),
		logger.Int("players", config.Players))

	rng := rand.New(rand.NewSource(config.Seed)) //nolint:gosec // reproducible load, not security
	players := PlayerNames(config.RunID, config.Players)
	strengths := Strengths(config.Players)

	periods := make([]Period, config.Periods)
	for i := range periods {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during generation: %w", err)
		}
		src, games := RoundRobin(rng, i+1, players, strengths)
		periods[i] = Period{
			ID:     fmt.Sprintf("%s-%04d", config.RunID, i+1),
			Source: src,
			Games:  games,
		}
		stats.GamesGenerated += games
	}
	stats.PeriodsGenerated = len(periods)
	return periods, nil
}
