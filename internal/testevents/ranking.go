package testevents

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/okian/periodrank/pkg/logger"
)

// waitForPeriods polls the ledger until every period is applied or the wait
// timeout passes.
func waitForPeriods(ctx context.Context, config *Config, periods []Period, stats *Stats) error {
	logger.Get().Info(ctx, "waiting for periods to be applied", logger.Int("count", len(periods)))

	waitCtx := ctx
	if config.WaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, config.WaitTimeout)
		defer cancel()
	}

	client := newHTTPClient(config.Timeout)
	for _, p := range periods {
		target := config.BaseURL + "/periods/" + url.PathEscape(p.ID)
		for {
			var st PeriodState
			if err := client.getJSON(waitCtx, target, &st); err != nil {
				return fmt.Errorf("period %s: %w", p.ID, err)
			}
			if st.Applied {
				stats.PeriodsApplied++
				break
			}
			select {
			case <-waitCtx.Done():
				return fmt.Errorf("period %s not applied: %w", p.ID, waitCtx.Err())
			case <-time.After(PollInterval):
			}
		}
	}

	logger.Get().Info(ctx, "all periods applied", logger.Int("applied", stats.PeriodsApplied))
	return nil
}

// getLeaderboard fetches the top config.TopN rows.
func getLeaderboard(ctx context.Context, config *Config, stats *Stats) ([]Entry, error) {
	limit := config.TopN
	if limit <= 0 {
		limit = config.Players
	}
	logger.Get().Info(ctx, "retrieving leaderboard", logger.Int("limit", limit))

	client := newHTTPClient(config.Timeout)
	var entries []Entry
	if err := client.getJSON(ctx, config.BaseURL+"/leaderboard?limit="+strconv.Itoa(limit), &entries); err != nil {
		return nil, err
	}
	stats.LeaderboardEntries = len(entries)
	return entries, nil
}

// retrievePlayers fetches every run player from /players/{name} concurrently.
func retrievePlayers(ctx context.Context, config *Config, stats *Stats) ([]Entry, error) {
	names := PlayerNames(config.RunID, config.Players)
	workers := config.Workers
	if workers < 1 {
		workers = 1
	}
	logger.Get().Info(ctx, "retrieving players",
		logger.Int("players", len(names)),
		logger.Int("workers", workers))

	client := newHTTPClient(config.Timeout)
	entries := make([]Entry, len(names))
	errs := make([]error, len(names))

	indexes := make(chan int, workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				errs[i] = client.getJSON(ctx, config.BaseURL+"/players/"+url.PathEscape(names[i]), &entries[i])
			}
		}()
	}
	for i := range names {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("player %s: %w", names[i], err)
		}
	}
	stats.PlayersRetrieved = len(entries)
	return entries, nil
}
