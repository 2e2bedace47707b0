// Package service wires the rating period pipeline together and implements
// the dependencies required by the HTTP API and the CLI.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	eventqueue "github.com/okian/periodrank/internal/adapters/mq/queue"
	"github.com/okian/periodrank/internal/adapters/mq/worker"
	"github.com/okian/periodrank/internal/adapters/pgn"
	"github.com/okian/periodrank/internal/adapters/repository"
	"github.com/okian/periodrank/internal/domain/dedupe"
	"github.com/okian/periodrank/internal/domain/extract"
	"github.com/okian/periodrank/internal/domain/glicko"
	"github.com/okian/periodrank/internal/domain/model"
	"github.com/okian/periodrank/internal/domain/period"
	"github.com/okian/periodrank/internal/domain/report"
	"github.com/okian/periodrank/pkg/logger"
	"github.com/okian/periodrank/pkg/metrics"
)

// Shutdown bounds: how long Stop lets queued periods drain, then how long it
// waits for a cancelled commit to unwind.
const (
	drainTimeout = 30 * time.Second
	abortTimeout = 5 * time.Second
)

// SubmitStatus reports what Submit did with a period.
type SubmitStatus int

const (
	// SubmitAccepted means the period was queued.
	SubmitAccepted SubmitStatus = iota + 1
	// SubmitInFlight means the same id is already queued or being applied.
	SubmitInFlight
	// SubmitAlreadyApplied means the ledger already holds the id.
	SubmitAlreadyApplied
)

func (s SubmitStatus) String() string {
	switch s {
	case SubmitAccepted:
		return "accepted"
	case SubmitInFlight:
		return "in_flight"
	case SubmitAlreadyApplied:
		return "already_applied"
	default:
		return "unknown"
	}
}

// PeriodState is the ledger view of one period id.
type PeriodState struct {
	ID      string `json:"id"`
	Applied bool   `json:"applied"`
}

// Service owns the rating pipeline. Periods submitted over HTTP are applied by
// a single worker, so at most one period is ever being applied.
type Service struct {
	mu sync.RWMutex

	store       repository.Store
	engine      *glicko.Engine
	coordinator *period.Coordinator
	deduper     dedupe.Deduper
	queue       *eventqueue.InMemoryQueue
	worker      *worker.InMemoryWorker
	stopWorker  context.CancelFunc

	queueSize      int
	dedupeSize     int
	drainTimeout   time.Duration
	maxLeaderboard int
	rating         float64
	deviation      float64
	volatility     float64

	started bool
	logger  logger.Logger
}

// New constructs a Service over store. The caller keeps ownership of store.
func New(store repository.Store, engine *glicko.Engine, opts ...Option) *Service {
	s := &Service{
		store:          store,
		engine:         engine,
		queueSize:      1_000,
		dedupeSize:     10_000,
		drainTimeout:   drainTimeout,
		maxLeaderboard: 100,
		rating:         model.DefaultRating,
		deviation:      model.DefaultDeviation,
		volatility:     model.DefaultVolatility,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.coordinator = period.NewCoordinator(store, engine,
		period.WithDefaults(s.rating, s.deviation, s.volatility),
		period.WithLogger(s.logger.Named("coordinator")),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// Start creates the period queue and starts the worker.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.worker = worker.NewInMemoryWorker(s.queue, worker.ApplierFunc(s.applyJob),
		worker.WithName("periods"),
		worker.WithLogger(s.logger.Named("worker")),
		worker.WithOnDone(func(ctx context.Context, j worker.Job, _ error) {
			s.deduper.Unrecord(ctx, j.ID)
		}),
	)
	workerCtx, stopWorker := context.WithCancel(ctx)
	s.stopWorker = stopWorker
	go s.worker.Run(workerCtx)

	s.started = true
	s.logger.Info(ctx, "rating service started",
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Float64("tau", s.engine.Tau()),
	)
	return nil
}

// Stop closes the queue and waits for the worker to apply what was queued.
// When draining takes longer than the drain timeout the worker context is
// cancelled, so an in-flight commit rolls back before Stop returns.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping rating service", logger.Int("queued", s.queue.Len(ctx)))
	_ = s.queue.Close()
	if err := s.worker.Wait(ctx); err != nil {
		s.logger.Error(ctx, "worker did not drain, cancelling in-flight period", logger.Error(err))
		s.stopWorker()
		abortCtx, abortCancel := context.WithTimeout(context.Background(), abortTimeout)
		if err := s.worker.Wait(abortCtx); err != nil {
			s.logger.Error(abortCtx, "worker did not stop after cancel", logger.Error(err))
		}
		abortCancel()
	}
	s.stopWorker()

	s.started = false
	s.logger.Info(ctx, "rating service stopped")
}

// ApplyFile applies the log at path as one period named after the file.
func (s *Service) ApplyFile(ctx context.Context, path string) (model.Summary, error) {
	id, tags, err := pgn.ReadFile(path)
	if err != nil {
		return model.Summary{PeriodID: pgn.PeriodID(path)}, fmt.Errorf("%w: %w", ErrInvalidPeriod, err)
	}
	return s.applyTags(ctx, id, tags)
}

// ApplyReader applies the log read from r as period id.
func (s *Service) ApplyReader(ctx context.Context, id string, r io.Reader) (model.Summary, error) {
	tags, err := pgn.Scan(r)
	if err != nil {
		return model.Summary{PeriodID: id}, fmt.Errorf("%w: %w", ErrInvalidPeriod, err)
	}
	return s.applyTags(ctx, id, tags)
}

func (s *Service) applyJob(ctx context.Context, j worker.Job) error { //nolint:gocritic // hugeParam
	_, err := s.ApplyReader(ctx, j.ID, bytes.NewReader(j.Source))
	return err
}

func (s *Service) applyTags(ctx context.Context, id string, tags []extract.Tag) (model.Summary, error) {
	x := extract.Extract(tags)
	for _, w := range x.Warnings {
		metrics.RecordGameMalformed(malformedReason(w))
		s.logger.Warn(ctx, "skipping game",
			logger.String("period", id),
			logger.Int("line", w.Line),
			logger.String("white", w.White),
			logger.String("black", w.Black),
			logger.String("result", w.Code),
			logger.Error(w.Err),
		)
	}

	summary, err := s.coordinator.Apply(ctx, x.Period(id))
	summary.Skipped = len(x.Warnings)
	if err != nil {
		return summary, err
	}
	if n, err := s.store.CountPlayers(ctx); err == nil {
		metrics.UpdatePlayersTotal(n)
	}
	return summary, nil
}

func hasGameTags(tags []extract.Tag) bool {
	for _, t := range tags {
		switch t.Key {
		case extract.TagWhite, extract.TagBlack, extract.TagResult:
			return true
		}
	}
	return false
}

func malformedReason(w extract.Warning) string {
	switch {
	case errors.Is(w.Err, extract.ErrMissingPlayer):
		return "missing_player"
	case errors.Is(w.Err, extract.ErrUnknownResult):
		return "unknown_result"
	case errors.Is(w.Err, extract.ErrMalformedTag):
		return "malformed_tag"
	default:
		return "malformed"
	}
}

// Submit queues a period for the worker. The log is scanned up front so an
// upload without any game tags is rejected before it is queued.
func (s *Service) Submit(ctx context.Context, id string, source []byte) (SubmitStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return 0, ErrNotStarted
	}
	if id == "" {
		return 0, fmt.Errorf("%w: empty period id", ErrInvalidPeriod)
	}
	tags, err := pgn.Scan(bytes.NewReader(source))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidPeriod, err)
	}
	if !hasGameTags(tags) {
		return 0, fmt.Errorf("%w: no White, Black or Result tags", ErrInvalidPeriod)
	}

	if s.deduper.SeenAndRecord(ctx, id) {
		metrics.RecordPeriodDuplicate()
		s.logger.Debug(ctx, "period already in flight", logger.String("period", id))
		return SubmitInFlight, nil
	}

	applied, err := s.store.IsPeriodApplied(ctx, id)
	if err != nil {
		s.deduper.Unrecord(ctx, id)
		return 0, fmt.Errorf("%w: %w", period.ErrStoreUnavailable, err)
	}
	if applied {
		s.deduper.Unrecord(ctx, id)
		metrics.RecordPeriodDuplicate()
		return SubmitAlreadyApplied, nil
	}

	job := model.PeriodJob{ID: id, Source: source, Received: time.Now()}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.deduper.Unrecord(ctx, id)
		if errors.Is(err, eventqueue.ErrQueueFull) {
			return 0, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return 0, err
	}
	s.logger.Debug(ctx, "period queued", logger.String("period", id), logger.Int("bytes", len(source)))
	return SubmitAccepted, nil
}

// Report returns every player as a ranked report row.
func (s *Service) Report(ctx context.Context) ([]report.Row, error) {
	players, err := s.store.ListPlayers(ctx)
	if err != nil {
		return nil, err
	}
	return report.Build(players), nil
}

// Leaderboard returns the top n report rows, 1 <= n <= the configured maximum.
func (s *Service) Leaderboard(ctx context.Context, n int) ([]report.Row, error) {
	if n < 1 || n > s.maxLeaderboard {
		return nil, fmt.Errorf("%w: %d (1..%d)", ErrInvalidLimit, n, s.maxLeaderboard)
	}
	rows, err := s.Report(ctx)
	if err != nil {
		return nil, err
	}
	return report.Top(rows, n), nil
}

// Player returns the report row for name, including its rank.
func (s *Service) Player(ctx context.Context, name string) (report.Row, error) {
	rows, err := s.Report(ctx)
	if err != nil {
		return report.Row{}, err
	}
	row, ok := report.Find(rows, name)
	if !ok {
		return report.Row{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, name)
	}
	return row, nil
}

// PeriodStatus reports whether id is in the ledger.
func (s *Service) PeriodStatus(ctx context.Context, id string) (PeriodState, error) {
	applied, err := s.store.IsPeriodApplied(ctx, id)
	if err != nil {
		return PeriodState{ID: id}, err
	}
	return PeriodState{ID: id, Applied: applied}, nil
}

// MaxLeaderboardLimit returns the largest n accepted by Leaderboard.
func (s *Service) MaxLeaderboardLimit() int {
	return s.maxLeaderboard
}

// GetStats returns service statistics for monitoring. It only reads.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":    s.started,
		"queueSize":  s.queueSize,
		"dedupeSize": s.dedupeSize,
		"inFlight":   s.deduper.Size(),
		"tau":        s.engine.Tau(),
	}
	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
	}
	if n, err := s.store.CountPlayers(ctx); err == nil {
		stats["players"] = n
	}
	if ids, err := s.store.AppliedPeriods(ctx); err == nil {
		stats["appliedPeriods"] = len(ids)
		if len(ids) > 0 {
			stats["lastPeriod"] = ids[len(ids)-1]
		}
	}
	return stats
}

// RefreshMetrics pushes the queue length and player count to the gauges.
func (s *Service) RefreshMetrics(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.started {
		metrics.UpdateQueueSize(s.queue.Len(ctx))
	}
	n, err := s.store.CountPlayers(ctx)
	if err != nil {
		s.logger.Warn(ctx, "failed to count players for metrics", logger.Error(err))
		return
	}
	metrics.UpdatePlayersTotal(n)
}
