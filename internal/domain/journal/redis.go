package journal

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	apperrors "denticheck-server/internal/platform/errors"
)

// RedisStore keeps records in a capped list, newest at the head.
type RedisStore struct {
	client   *redis.Client
	key      string
	capacity int
	ttl      time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, capacity int, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "denticheck:journal"
	}
	if capacity <= 0 {
		capacity = 500
	}
	return &RedisStore{client: client, key: prefix + ":runs", capacity: capacity, ttl: ttl}
}

func (s *RedisStore) Append(ctx context.Context, rec Record) error {
	const op = "journal.redis.append"
	payload, err := sonic.Marshal(rec)
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorage, op, "encode record", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, payload)
	pipe.LTrim(ctx, s.key, 0, int64(s.capacity-1))
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.Wrap(apperrors.KindStorage, op, "write record", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, limit int) ([]Record, error) {
	const op = "journal.redis.list"
	limit = clampLimit(limit, s.capacity)
	items, err := s.client.LRange(ctx, s.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, op, "read records", err)
	}
	out := make([]Record, 0, len(items))
	for _, item := range items {
		var rec Record
		if err := sonic.UnmarshalString(item, &rec); err != nil {
			return nil, apperrors.Wrap(apperrors.KindStorage, op, "decode record", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
