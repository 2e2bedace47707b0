// Command periodrank rates players from PGN game logs with Glicko-2.
//
// With file arguments every file is applied in order as its own rating
// period and the resulting table is printed. Without arguments the HTTP API
// is served until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/periodrank/internal/adapters/http/api"
	"github.com/okian/periodrank/internal/adapters/http/swagger"
	"github.com/okian/periodrank/internal/adapters/repository"
	service "github.com/okian/periodrank/internal/app"
	"github.com/okian/periodrank/internal/config"
	"github.com/okian/periodrank/internal/domain/glicko"
	"github.com/okian/periodrank/internal/domain/model"
	"github.com/okian/periodrank/internal/domain/report"
	"github.com/okian/periodrank/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 30 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run is main without the process exit. It returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "failed to load config:", err)
		return 2
	}

	if err := logger.Init(logger.WithBackend(cfg.LogFormat), logger.WithOutput(stderr)); err != nil {
		fmt.Fprintln(stderr, "failed to initialize logging:", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := repository.Open(ctx, repository.Config{
		Driver:        cfg.StoreDriver,
		DSN:           cfg.StoreDSN,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		KeyPrefix:     cfg.RedisPrefix,
	})
	if err != nil {
		log.Error(ctx, "failed to open rating store", logger.String("driver", cfg.StoreDriver), logger.Error(err))
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "failed to close rating store", logger.Error(err))
		}
	}()

	engine, err := glicko.NewEngine(
		glicko.WithTau(cfg.Tau),
		glicko.WithTolerance(cfg.Tolerance),
		glicko.WithMaxIterations(cfg.MaxIterations),
	)
	if err != nil {
		log.Error(ctx, "invalid rating engine settings", logger.Error(err))
		return 2
	}

	svc := service.New(store, engine,
		service.WithLogger(log),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		service.WithDefaults(cfg.InitialRating, cfg.InitialDeviation, cfg.InitialVolatility),
	)

	if len(args) > 0 {
		if cfg.StoreDriver == repository.BackendMemory {
			log.Warn(ctx, "ratings are kept in memory and lost on exit; periods will not be remembered across runs")
		}
		return applyFiles(ctx, svc, args, stdout, log)
	}
	if err := serve(ctx, cfg, svc, log); err != nil {
		log.Error(ctx, "server failed", logger.Error(err))
		return 1
	}
	return 0
}

// applyFiles applies each log as one period, in argument order, then prints
// the rating table.
func applyFiles(ctx context.Context, svc *service.Service, paths []string, stdout io.Writer, log logger.Logger) int {
	for _, path := range paths {
		summary, err := svc.ApplyFile(ctx, path)
		if err != nil {
			log.Error(ctx, "failed to apply period", logger.String("path", path), logger.Error(err))
			return 1
		}
		if summary.Status == model.AlreadyApplied {
			fmt.Fprintf(stdout, "%s: already applied\n", summary.PeriodID)
			continue
		}
		fmt.Fprintf(stdout, "%s: %d games, %d players (%d new), %d skipped\n",
			summary.PeriodID, summary.Games, summary.Players, len(summary.Created), summary.Skipped)
	}

	rows, err := svc.Report(ctx)
	if err != nil {
		log.Error(ctx, "failed to read ratings", logger.Error(err))
		return 1
	}
	fmt.Fprintln(stdout)
	if err := report.WriteTable(stdout, rows); err != nil {
		log.Error(ctx, "failed to write report", logger.Error(err))
		return 1
	}
	return 0
}

// newMux registers the API and docs routes.
func newMux(ctx context.Context, cfg *config.Config, svc *service.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, cfg.MaxLeaderboardLimit).Register(ctx, mux)
	return mux
}

func serve(ctx context.Context, cfg *config.Config, svc *service.Service, log logger.Logger) error {
	// The worker outlives the signal context so queued periods drain on Stop.
	if err := svc.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go updateServiceMetrics(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Addr, err)
		}
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info(ctx, "server stopped")
	return nil
}

// updateServiceMetrics refreshes the service gauges until ctx is done.
func updateServiceMetrics(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.RefreshMetrics(ctx)
		}
	}
}
