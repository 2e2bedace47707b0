package testevents

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/okian/periodrank/pkg/logger"
)

// ErrVerification is returned when the server state contradicts the submitted periods.
var ErrVerification = errors.New("verification failed")

// verifyResults checks the run players and the leaderboard against what was submitted.
func verifyResults(ctx context.Context, config *Config, players, leaderboard []Entry) error {
	logger.Get().Info(ctx, "verifying results")

	if len(players) == 0 {
		return fmt.Errorf("%w: no players to verify", ErrVerification)
	}
	if err := verifyGames(config, players); err != nil {
		return err
	}
	if err := verifyLeaderboardOrder(leaderboard); err != nil {
		return err
	}
	if err := verifyLeaderboardConsistency(players, leaderboard); err != nil {
		return err
	}

	sorted := make([]Entry, len(players))
	copy(sorted, players)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Rating > sorted[j].Rating })

	// Results are random, so a strong player finishing low is worth a warning only.
	strongest, weakest := players[0], players[len(players)-1]
	if strongest.Rating <= weakest.Rating {
		logger.Get().Warn(ctx, "strongest hidden player is not rated above the weakest",
			logger.String("strongest", strongest.Name),
			logger.Float64("strongestRating", strongest.Rating),
			logger.String("weakest", weakest.Name),
			logger.Float64("weakestRating", weakest.Rating))
	}

	displayTopPerformers(ctx, sorted, config.Verbose)
	logger.Get().Info(ctx, "result verification completed")
	return nil
}

// verifyGames checks per-player game counts and that every game handed out
// exactly one point.
func verifyGames(config *Config, players []Entry) error {
	want := config.Periods * (config.Players - 1)
	var points float64
	for _, p := range players {
		if p.Games != want {
			return fmt.Errorf("%w: %s played %d games, want %d", ErrVerification, p.Name, p.Games, want)
		}
		points += p.Points
	}
	total := float64(config.Periods * config.Players * (config.Players - 1) / 2)
	if math.Abs(points-total) > PointsTolerance {
		return fmt.Errorf("%w: points sum to %.3f, want %.0f", ErrVerification, points, total)
	}
	return nil
}

// verifyLeaderboardOrder checks that ratings never increase down the table.
func verifyLeaderboardOrder(leaderboard []Entry) error {
	for i := 1; i < len(leaderboard); i++ {
		if leaderboard[i].Rating > leaderboard[i-1].Rating {
			return fmt.Errorf("%w: leaderboard row %d (%s) is rated above row %d (%s)",
				ErrVerification, i+1, leaderboard[i].Name, i, leaderboard[i-1].Name)
		}
		if leaderboard[i].Rank < leaderboard[i-1].Rank {
			return fmt.Errorf("%w: leaderboard rank decreases at row %d", ErrVerification, i+1)
		}
	}
	return nil
}

// verifyLeaderboardConsistency checks that run players on the leaderboard
// carry the same rating as their player lookup.
func verifyLeaderboardConsistency(players, leaderboard []Entry) error {
	byName := make(map[string]Entry, len(players))
	for _, p := range players {
		byName[p.Name] = p
	}
	for _, row := range leaderboard {
		p, ok := byName[row.Name]
		if !ok {
			continue
		}
		if p.Rating != row.Rating || p.Games != row.Games {
			return fmt.Errorf("%w: leaderboard row for %s (%.4f, %d games) differs from lookup (%.4f, %d games)",
				ErrVerification, row.Name, row.Rating, row.Games, p.Rating, p.Games)
		}
	}
	return nil
}

// displayTopPerformers logs the best rated run players.
func displayTopPerformers(ctx context.Context, sorted []Entry, verbose bool) {
	topN := 10
	if len(sorted) < topN {
		topN = len(sorted)
	}
	for i := 0; i < topN; i++ {
		e := sorted[i]
		logger.Get().Info(ctx, "top performer",
			logger.Int("place", i+1),
			logger.String("name", e.Name),
			logger.Float64("rating", e.Rating),
			logger.Float64("rd", e.Deviation),
			logger.Float64("pts", e.Points))
	}

	if verbose && len(sorted) > 0 {
		logger.Get().Info(ctx, "rating statistics",
			logger.Float64("average", averageRating(sorted)),
			logger.Float64("maximum", sorted[0].Rating),
			logger.Float64("minimum", sorted[len(sorted)-1].Rating))
	}
}

func averageRating(entries []Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range entries {
		sum += e.Rating
	}
	return sum / float64(len(entries))
}
