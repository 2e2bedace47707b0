// Package repository defines the rating store interface and its backends.
package repository

import (
	"context"
	"sort"
	"time"

	"github.com/okian/periodrank/internal/domain/model"
	"github.com/okian/periodrank/pkg/metrics"
)

// Writer holds the write operations of a rating period commit.
type Writer interface {
	// CreatePlayer inserts a player with zero games and points.
	// Returns ErrPlayerExists if the name is taken.
	CreatePlayer(ctx context.Context, name string, rating, deviation, volatility float64) error
	// UpdatePlayer replaces rating, deviation and volatility and adds the
	// games and points deltas. Returns ErrPlayerNotFound for unknown names.
	UpdatePlayer(ctx context.Context, u model.RatingUpdate) error
	// MarkPeriodApplied records id in the ledger.
	// Returns ErrPeriodApplied if it is already there.
	MarkPeriodApplied(ctx context.Context, id string) error
}

// Store provides access to persisted player ratings and the period ledger.
// Writer methods called on the Store directly each run as their own unit.
type Store interface {
	Writer

	// GetPlayer returns ErrPlayerNotFound if the name is unknown.
	GetPlayer(ctx context.Context, name string) (model.PlayerRating, error)
	// ListPlayers returns all players by rating desc, deviation asc, name asc.
	ListPlayers(ctx context.Context) ([]model.PlayerRating, error)
	// CountPlayers returns the number of known players.
	CountPlayers(ctx context.Context) (int, error)

	IsPeriodApplied(ctx context.Context, id string) (bool, error)
	// AppliedPeriods lists the ledger in application order.
	AppliedPeriods(ctx context.Context) ([]string, error)

	// Atomically runs fn and commits all of its writes together, or none of
	// them if fn or the commit fails.
	Atomically(ctx context.Context, fn func(ctx context.Context, w Writer) error) error

	Close() error
}

// Backend names.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendPgx      = "pgx"
	BackendRedis    = "redis"
)

// ranksBefore reports whether a is listed before b.
func ranksBefore(a, b model.PlayerRating) bool {
	if a.Rating != b.Rating {
		return a.Rating > b.Rating
	}
	if a.Deviation != b.Deviation {
		return a.Deviation < b.Deviation
	}
	return a.Name < b.Name
}

func sortPlayers(players []model.PlayerRating) {
	sort.Slice(players, func(i, j int) bool {
		return ranksBefore(players[i], players[j])
	})
}

// observe records latency and failures of one store operation. Sentinel
// outcomes like ErrPlayerNotFound are not counted as failures.
func observe(backend, op string, start time.Time, err error) {
	metrics.RecordStoreLatency(backend, op, float64(time.Since(start).Microseconds())/1000)
	if err != nil && !isSentinel(err) {
		metrics.RecordStoreError(backend, op)
	}
}
