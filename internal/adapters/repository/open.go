package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Config selects and configures a store backend.
type Config struct {
	Driver        string
	DSN           string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// Open returns the store named by cfg.Driver. The caller owns the store and
// must Close it.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", BackendMemory:
		return NewMemoryStore(ctx), nil
	case BackendSQLite, BackendPostgres, BackendPgx:
		return OpenSQL(ctx, cfg.Driver, cfg.DSN)
	case BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis store: ping %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisStore(rdb, WithKeyPrefix(cfg.KeyPrefix)), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Driver)
	}
}
