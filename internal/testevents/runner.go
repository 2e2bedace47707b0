package testevents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/periodrank/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Run executes the complete round robin test.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting periodrank load test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("periods", config.Periods),
		logger.Int("players", config.Players),
		logger.Any("seed", config.Seed),
		logger.String("timeout", config.Timeout.String()),
		logger.Int("topN", config.TopN),
		logger.Any("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate periods
	periods, err := generatePeriods(ctx, config, stats)
	if err != nil {
		return stats, fmt.Errorf("period generation failed: %w", err)
	}

	// Step 3: Save the logs before submitting so a failed run can be replayed
	if config.OutputDir != "" {
		if err := savePeriods(ctx, config.OutputDir, periods); err != nil {
			logger.Get().Warn(ctx, "failed to save periods", logger.Error(err))
		}
	}

	// Step 4: Submit periods in order
	if err := submitPeriods(ctx, config, periods, stats); err != nil {
		return stats, fmt.Errorf("period submission failed: %w", err)
	}

	// Step 5: Wait for the ledger
	if err := waitForPeriods(ctx, config, periods, stats); err != nil {
		return stats, fmt.Errorf("waiting for periods failed: %w", err)
	}

	// Step 6: Retrieve players and leaderboard
	players, err := retrievePlayers(ctx, config, stats)
	if err != nil {
		return stats, fmt.Errorf("player retrieval failed: %w", err)
	}
	leaderboard, err := getLeaderboard(ctx, config, stats)
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}

	// Step 7: Verify results
	if err := verifyResults(ctx, config, players, leaderboard); err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	logger.Get().Info(ctx, "test completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.Timeout)
	resp, err := client.Get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if _, err := readResponseBody(resp); err != nil {
		return fmt.Errorf("failed to read health response: %w", err)
	}

	// /healthz serves the Prometheus exposition, any 200 is healthy
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// savePeriods writes each period to dir as <id>.pgn.
func savePeriods(ctx context.Context, dir string, periods []Period) error {
	if err := os.MkdirAll(dir, directoryPermission); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	for _, p := range periods {
		path := filepath.Join(dir, p.ID+".pgn")
		if err := os.WriteFile(path, []byte(p.Source), filePermission); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	logger.Get().Info(ctx, "periods saved", logger.String("dir", dir), logger.Int("count", len(periods)))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var gamesPerSecond float64
	if stats.Duration > 0 {
		gamesPerSecond = float64(stats.GamesGenerated) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("periodsGenerated", stats.PeriodsGenerated),
		logger.Int("gamesGenerated", stats.GamesGenerated),
		logger.Int("periodsAccepted", stats.PeriodsAccepted),
		logger.Int("periodsDuplicate", stats.PeriodsDuplicate),
		logger.Int("periodsRetried", stats.PeriodsRetried),
		logger.Int("periodsFailed", stats.PeriodsFailed),
		logger.Int("periodsApplied", stats.PeriodsApplied),
		logger.Int("playersRetrieved", stats.PlayersRetrieved),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("gamesPerSecond", gamesPerSecond))
}
