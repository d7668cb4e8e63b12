package journal

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"denticheck-server/internal/platform/config"
	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
	"denticheck-server/internal/platform/storage"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// New builds the store selected by cfg.Driver. The redis driver pings the
// server before returning.
func New(ctx context.Context, cfg config.JournalConfig, logger *logging.Logger) (Store, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemoryStore(cfg.Capacity), nil
	case DriverSQLite:
		db, err := storage.Open(cfg.SQLite.DSN, logger)
		if err != nil {
			return nil, err
		}
		s := NewSQLStore(db, cfg.Capacity)
		s.owned = true
		return s, nil
	case DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, apperrors.Wrap(apperrors.KindStorage, "journal.redis.ping", "redis unreachable", err)
		}
		logger.InfoTag("JOURNAL", "redis journal at %s", cfg.Redis.Addr)
		return NewRedisStore(client, cfg.Redis.Prefix, cfg.Capacity, cfg.TTL), nil
	default:
		return nil, apperrors.New(apperrors.KindConfig, "journal.new", fmt.Sprintf("unknown journal driver %q", cfg.Driver))
	}
}
