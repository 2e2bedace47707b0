package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/periodrank/internal/testevents"
	"github.com/okian/periodrank/pkg/logger"
)

// Default configuration constants.
const (
	defaultPeriods     = 12
	defaultPlayers     = 16
	defaultTopN        = 10
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultWait        = 2 * time.Minute
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:9080", "Base URL of the service")
		periods = flag.Int("periods", defaultPeriods, "Number of rating periods to submit")
		players = flag.Int("players", defaultPlayers, "Players in each round robin")
		topN    = flag.Int("top", defaultTopN, "Number of leaderboard rows to fetch")
		workers = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent player lookups")
		seed    = flag.Int64("seed", 1, "Seed for hidden strengths and results")
		runID   = flag.String("run", "", "Run id used to prefix period and player names (default: random)")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		wait    = flag.Duration("wait", defaultWait, "How long to wait for all periods to be applied")
		output  = flag.String("output", "", "Directory for the generated PGN logs")
		logFile = flag.String("log", "", "Log file for test output (default: test_log_TIMESTAMP.log)")
		verbose = flag.Bool("verbose", false, "Enable verbose logging")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testevents.ShowHelp()
		return
	}

	closer, err := testevents.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	config := &testevents.Config{
		BaseURL:     *baseURL,
		RunID:       *runID,
		Periods:     *periods,
		Players:     *players,
		TopN:        *topN,
		Workers:     *workers,
		Seed:        *seed,
		Timeout:     *timeout,
		WaitTimeout: *wait,
		OutputDir:   *output,
		LogFile:     *logFile,
		Verbose:     *verbose,
	}

	if _, err := testevents.Run(ctx, config); err != nil {
		logger.Get().Error(ctx, "test failed", logger.Error(err))
		_ = logger.Sync()
		cancel()
		closer.Close()
		os.Exit(1)
	}
	_ = logger.Sync()
}
