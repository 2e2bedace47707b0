package testevents

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/periodrank/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends log output to both stdout and a file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "test_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.Init(logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		if err := logger.SetLevelString("debug"); err != nil {
			_ = file.Close()
			return nil, err
		}
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file, nil
}

// ShowHelp prints usage information for the load test tool.
func ShowHelp() {
	os.Stdout.WriteString(`periodrank load test
====================

Generates seeded round robin rating periods, submits them to a running
periodrank server and checks the resulting ratings.

Usage:
  go run ./cmd/test-events [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -periods int
        Number of rating periods to submit (default 12)
  -players int
        Players in each round robin (default 16)
  -top int
        Number of leaderboard rows to fetch (default 10)
  -workers int
        Concurrent player lookups (default CPU cores * 2)
  -seed int
        Seed for hidden strengths and results (default 1)
  -run string
        Run id used to prefix period and player names (default: random)
  -timeout duration
        HTTP request timeout (default 30s)
  -wait duration
        How long to wait for all periods to be applied (default 2m)
  -output string
        Directory for the generated PGN logs (default: not saved)
  -log string
        Log file for test output (default: test_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Test with default settings
  go run ./cmd/test-events

  # A bigger field against another port, keeping the logs
  go run ./cmd/test-events -players 64 -periods 24 -url http://localhost:8080 -output ./periods
`)
}
