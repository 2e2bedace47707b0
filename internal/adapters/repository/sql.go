package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/lib/pq"              // registers "postgres"
	_ "modernc.org/sqlite"             // registers "sqlite"

	"github.com/okian/periodrank/internal/domain/model"
)

// DefaultSQLiteDSN is the database file used when the sqlite backend has no DSN.
const DefaultSQLiteDSN = "periodrank.db"

// schema mirrors the rating and ledger tables. Statements run one at a time
// because not every driver accepts several per Exec.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS rating (
    name  TEXT PRIMARY KEY,
    rating DOUBLE PRECISION NOT NULL,
    rd    DOUBLE PRECISION NOT NULL,
    vola  DOUBLE PRECISION NOT NULL,
    games INTEGER NOT NULL DEFAULT 0,
    pts   DOUBLE PRECISION NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS period (
    name       TEXT PRIMARY KEY,
    applied_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_rating_rank ON rating(rating DESC, rd ASC, name ASC)`,
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLStore persists ratings through database/sql. It works with the sqlite,
// postgres and pgx drivers; all of them accept $N placeholders.
type SQLStore struct {
	db           *sql.DB
	driver       string
	maxOpenConns int
}

// OpenSQL opens a database with the named driver and creates the schema.
func OpenSQL(ctx context.Context, driver, dsn string, opts ...SQLOption) (*SQLStore, error) {
	switch driver {
	case BackendSQLite:
		if dsn == "" {
			dsn = DefaultSQLiteDSN
		}
	case BackendPostgres, BackendPgx:
		if dsn == "" {
			return nil, fmt.Errorf("sql store: %s requires a dsn", driver)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql store: open %s: %w", driver, err)
	}

	s := &SQLStore{db: db, driver: driver}
	if driver == BackendSQLite {
		// A single connection serialises writers and keeps :memory: databases alive.
		s.maxOpenConns = 1
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxOpenConns > 0 {
		db.SetMaxOpenConns(s.maxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sql store: ping %s: %w", driver, err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sql store: create schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// GetPlayer returns the stored rating of name.
func (s *SQLStore) GetPlayer(ctx context.Context, name string) (p model.PlayerRating, err error) {
	defer func(start time.Time) { observe(s.driver, "get_player", start, err) }(time.Now())

	row := s.db.QueryRowContext(ctx,
		`SELECT name, rating, rd, vola, games, pts FROM rating WHERE name = $1`, name)
	p, err = scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlayerRating{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, name)
	}
	if err != nil {
		return model.PlayerRating{}, fmt.Errorf("sql store: get player: %w", err)
	}
	return p, nil
}

// ListPlayers returns all players in rank order.
func (s *SQLStore) ListPlayers(ctx context.Context) (out []model.PlayerRating, err error) {
	defer func(start time.Time) { observe(s.driver, "list_players", start, err) }(time.Now())

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, rating, rd, vola, games, pts FROM rating ORDER BY rating DESC, rd ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("sql store: list players: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("sql store: list players: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sql store: list players: %w", err)
	}
	return out, nil
}

// CountPlayers returns the number of players.
func (s *SQLStore) CountPlayers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rating`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sql store: count players: %w", err)
	}
	return n, nil
}

// IsPeriodApplied reports whether id is in the ledger.
func (s *SQLStore) IsPeriodApplied(ctx context.Context, id string) (applied bool, err error) {
	defer func(start time.Time) { observe(s.driver, "is_period_applied", start, err) }(time.Now())

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM period WHERE name = $1`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("sql store: ledger lookup: %w", err)
	}
	return n > 0, nil
}

// AppliedPeriods returns the ledger in application order.
func (s *SQLStore) AppliedPeriods(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM period ORDER BY applied_at ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("sql store: list ledger: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sql store: list ledger: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sql store: list ledger: %w", err)
	}
	return out, nil
}

// CreatePlayer implements Writer outside a transaction.
func (s *SQLStore) CreatePlayer(ctx context.Context, name string, rating, deviation, volatility float64) error {
	return sqlWriter{q: s.db}.CreatePlayer(ctx, name, rating, deviation, volatility)
}

// UpdatePlayer implements Writer outside a transaction.
func (s *SQLStore) UpdatePlayer(ctx context.Context, u model.RatingUpdate) error {
	return sqlWriter{q: s.db}.UpdatePlayer(ctx, u)
}

// MarkPeriodApplied implements Writer outside a transaction.
func (s *SQLStore) MarkPeriodApplied(ctx context.Context, id string) error {
	return sqlWriter{q: s.db}.MarkPeriodApplied(ctx, id)
}

// Atomically runs fn inside a database transaction.
func (s *SQLStore) Atomically(ctx context.Context, fn func(ctx context.Context, w Writer) error) (err error) {
	defer func(start time.Time) { observe(s.driver, "commit", start, err) }(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sql store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, sqlWriter{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sql store: commit: %w", err)
	}
	return nil
}

type sqlWriter struct {
	q execer
}

func (w sqlWriter) CreatePlayer(ctx context.Context, name string, rating, deviation, volatility float64) error {
	if name == "" {
		return ErrInvalidName
	}
	res, err := w.q.ExecContext(ctx,
		`INSERT INTO rating (name, rating, rd, vola, games, pts) VALUES ($1, $2, $3, $4, 0, 0)
		 ON CONFLICT (name) DO NOTHING`,
		name, rating, deviation, volatility)
	if err != nil {
		return fmt.Errorf("sql store: create player: %w", err)
	}
	return expectOne(res, fmt.Errorf("%w: %s", ErrPlayerExists, name))
}

func (w sqlWriter) UpdatePlayer(ctx context.Context, u model.RatingUpdate) error {
	res, err := w.q.ExecContext(ctx,
		`UPDATE rating SET rating = $1, rd = $2, vola = $3, games = games + $4, pts = pts + $5 WHERE name = $6`,
		u.Rating, u.Deviation, u.Volatility, u.GamesDelta, u.PointsDelta, u.Name)
	if err != nil {
		return fmt.Errorf("sql store: update player: %w", err)
	}
	return expectOne(res, fmt.Errorf("%w: %s", ErrPlayerNotFound, u.Name))
}

func (w sqlWriter) MarkPeriodApplied(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidName
	}
	res, err := w.q.ExecContext(ctx,
		`INSERT INTO period (name, applied_at) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		id, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("sql store: mark period: %w", err)
	}
	return expectOne(res, fmt.Errorf("%w: %s", ErrPeriodApplied, id))
}

// expectOne returns miss when the statement touched no row.
func expectOne(res sql.Result, miss error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sql store: rows affected: %w", err)
	}
	if n == 0 {
		return miss
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlayer(r rowScanner) (model.PlayerRating, error) {
	var p model.PlayerRating
	err := r.Scan(&p.Name, &p.Rating, &p.Deviation, &p.Volatility, &p.GamesPlayed, &p.PointsScored)
	return p, err
}
