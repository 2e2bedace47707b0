package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/periodrank/internal/domain/model"
)

const defaultKeyPrefix = "periodrank"

// Hash fields of a player record.
const (
	fieldRating = "rating"
	fieldRD     = "rd"
	fieldVola   = "vola"
	fieldGames  = "games"
	fieldPts    = "pts"
)

// RedisStore keeps one hash per player, a set of player names and a sorted
// set of applied periods scored by application time.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) keyPlayer(name string) string { return s.prefix + ":player:" + name }
func (s *RedisStore) keyPlayers() string           { return s.prefix + ":players" }
func (s *RedisStore) keyPeriods() string           { return s.prefix + ":periods" }

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// GetPlayer returns the stored rating of name.
func (s *RedisStore) GetPlayer(ctx context.Context, name string) (p model.PlayerRating, err error) {
	defer func(start time.Time) { observe(BackendRedis, "get_player", start, err) }(time.Now())

	fields, err := s.rdb.HGetAll(ctx, s.keyPlayer(name)).Result()
	if err != nil {
		return model.PlayerRating{}, fmt.Errorf("redis store: get player: %w", err)
	}
	if len(fields) == 0 {
		return model.PlayerRating{}, fmt.Errorf("%w: %s", ErrPlayerNotFound, name)
	}
	return decodePlayer(name, fields)
}

// ListPlayers returns all players in rank order.
func (s *RedisStore) ListPlayers(ctx context.Context) (out []model.PlayerRating, err error) {
	defer func(start time.Time) { observe(BackendRedis, "list_players", start, err) }(time.Now())

	names, err := s.rdb.SMembers(ctx, s.keyPlayers()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: list players: %w", err)
	}
	if len(names) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(names))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, name := range names {
			cmds[i] = pipe.HGetAll(ctx, s.keyPlayer(name))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis store: list players: %w", err)
	}

	out = make([]model.PlayerRating, 0, len(names))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		p, err := decodePlayer(names[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sortPlayers(out)
	return out, nil
}

// CountPlayers returns the number of players.
func (s *RedisStore) CountPlayers(ctx context.Context) (int, error) {
	n, err := s.rdb.SCard(ctx, s.keyPlayers()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis store: count players: %w", err)
	}
	return int(n), nil
}

// IsPeriodApplied reports whether id is in the ledger.
func (s *RedisStore) IsPeriodApplied(ctx context.Context, id string) (applied bool, err error) {
	defer func(start time.Time) { observe(BackendRedis, "is_period_applied", start, err) }(time.Now())
	return periodApplied(ctx, s.rdb, s.keyPeriods(), id)
}

// AppliedPeriods returns the ledger in application order.
func (s *RedisStore) AppliedPeriods(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.ZRange(ctx, s.keyPeriods(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: list ledger: %w", err)
	}
	return ids, nil
}

// CreatePlayer implements Writer as a single-operation unit.
func (s *RedisStore) CreatePlayer(ctx context.Context, name string, rating, deviation, volatility float64) error {
	return s.Atomically(ctx, func(ctx context.Context, w Writer) error {
		return w.CreatePlayer(ctx, name, rating, deviation, volatility)
	})
}

// UpdatePlayer implements Writer as a single-operation unit.
func (s *RedisStore) UpdatePlayer(ctx context.Context, u model.RatingUpdate) error {
	return s.Atomically(ctx, func(ctx context.Context, w Writer) error {
		return w.UpdatePlayer(ctx, u)
	})
}

// MarkPeriodApplied implements Writer as a single-operation unit.
func (s *RedisStore) MarkPeriodApplied(ctx context.Context, id string) error {
	return s.Atomically(ctx, func(ctx context.Context, w Writer) error {
		return w.MarkPeriodApplied(ctx, id)
	})
}

// Atomically watches the ledger, lets fn validate and queue its writes, then
// executes them in one MULTI/EXEC. A ledger change by another client between
// WATCH and EXEC aborts the commit with ErrConflict.
func (s *RedisStore) Atomically(ctx context.Context, fn func(ctx context.Context, w Writer) error) (err error) {
	defer func(start time.Time) { observe(BackendRedis, "commit", start, err) }(time.Now())

	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		w := &redisWriter{
			store:   s,
			tx:      tx,
			known:   make(map[string]bool),
			periods: make(map[string]struct{}),
		}
		if err := fn(ctx, w); err != nil {
			return err
		}
		if len(w.ops) == 0 {
			return nil
		}

		pipe := tx.TxPipeline()
		for _, op := range w.ops {
			op(pipe)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		return nil
	}, s.keyPeriods())

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: ledger changed during commit", ErrConflict)
	}
	if err != nil && !isSentinel(err) {
		return fmt.Errorf("redis store: commit: %w", err)
	}
	return err
}

// redisWriter validates against the watched connection and queues commands.
type redisWriter struct {
	store   *RedisStore
	tx      *redis.Tx
	known   map[string]bool
	periods map[string]struct{}
	ops     []func(redis.Pipeliner)
}

func (w *redisWriter) exists(ctx context.Context, name string) (bool, error) {
	if ok, seen := w.known[name]; seen {
		return ok, nil
	}
	n, err := w.tx.Exists(ctx, w.store.keyPlayer(name)).Result()
	if err != nil {
		return false, fmt.Errorf("redis store: player lookup: %w", err)
	}
	w.known[name] = n > 0
	return n > 0, nil
}

func (w *redisWriter) CreatePlayer(ctx context.Context, name string, rating, deviation, volatility float64) error {
	if name == "" {
		return ErrInvalidName
	}
	ok, err := w.exists(ctx, name)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", ErrPlayerExists, name)
	}
	w.known[name] = true

	key := w.store.keyPlayer(name)
	playersKey := w.store.keyPlayers()
	w.ops = append(w.ops, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, key,
			fieldRating, formatFloat(rating),
			fieldRD, formatFloat(deviation),
			fieldVola, formatFloat(volatility),
			fieldGames, 0,
			fieldPts, formatFloat(0),
		)
		pipe.SAdd(ctx, playersKey, name)
	})
	return nil
}

func (w *redisWriter) UpdatePlayer(ctx context.Context, u model.RatingUpdate) error {
	ok, err := w.exists(ctx, u.Name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, u.Name)
	}

	key := w.store.keyPlayer(u.Name)
	w.ops = append(w.ops, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, key,
			fieldRating, formatFloat(u.Rating),
			fieldRD, formatFloat(u.Deviation),
			fieldVola, formatFloat(u.Volatility),
		)
		if u.GamesDelta != 0 {
			pipe.HIncrBy(ctx, key, fieldGames, int64(u.GamesDelta))
		}
		if u.PointsDelta != 0 {
			pipe.HIncrByFloat(ctx, key, fieldPts, u.PointsDelta)
		}
	})
	return nil
}

func (w *redisWriter) MarkPeriodApplied(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidName
	}
	if _, ok := w.periods[id]; ok {
		return fmt.Errorf("%w: %s", ErrPeriodApplied, id)
	}
	applied, err := periodApplied(ctx, w.tx, w.store.keyPeriods(), id)
	if err != nil {
		return err
	}
	if applied {
		return fmt.Errorf("%w: %s", ErrPeriodApplied, id)
	}
	w.periods[id] = struct{}{}

	key := w.store.keyPeriods()
	score := float64(time.Now().UnixNano())
	w.ops = append(w.ops, func(pipe redis.Pipeliner) {
		pipe.ZAddNX(ctx, key, redis.Z{Score: score, Member: id})
	})
	return nil
}

func periodApplied(ctx context.Context, c redis.Cmdable, key, id string) (bool, error) {
	_, err := c.ZScore(ctx, key, id).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis store: ledger lookup: %w", err)
	}
	return true, nil
}

func decodePlayer(name string, fields map[string]string) (model.PlayerRating, error) {
	p := model.PlayerRating{Name: name}
	var err error
	parse := func(field string, dst *float64) {
		if err != nil {
			return
		}
		*dst, err = strconv.ParseFloat(fields[field], 64)
		if err != nil {
			err = fmt.Errorf("redis store: player %s field %s: %w", name, field, err)
		}
	}
	parse(fieldRating, &p.Rating)
	parse(fieldRD, &p.Deviation)
	parse(fieldVola, &p.Volatility)
	parse(fieldPts, &p.PointsScored)
	if err != nil {
		return model.PlayerRating{}, err
	}
	games, err := strconv.Atoi(fields[fieldGames])
	if err != nil {
		return model.PlayerRating{}, fmt.Errorf("redis store: player %s field %s: %w", name, fieldGames, err)
	}
	p.GamesPlayed = games
	return p, nil
}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}
