package errlog

import (
	"context"
	"fmt"
	"time"

	"gallerybot/internal/domain"

	"github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"
)

const DefaultRedisKey = "gallerybot:errors"

type RedisLog struct {
	client *redis.Client
	key    string
	limit  int
}

func NewRedisLog(client *redis.Client, key string, limit int) *RedisLog {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisLog{client: client, key: key, limit: limitOrDefault(limit)}
}

func (l *RedisLog) Append(ctx context.Context, e domain.ErrorEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	e.Message = clean(e.Message)
	b, err := jsoniter.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode error entry: %w", err)
	}

	_, err = l.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, l.key, b)
		pipe.LTrim(ctx, l.key, int64(-l.limit), -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append error entry: %w", err)
	}
	return nil
}

func (l *RedisLog) Recent(ctx context.Context, n int) ([]domain.ErrorEntry, error) {
	if n <= 0 || n > l.limit {
		n = l.limit
	}
	raw, err := l.client.LRange(ctx, l.key, int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read error log: %w", err)
	}
	out := make([]domain.ErrorEntry, 0, len(raw))
	for _, s := range raw {
		var e domain.ErrorEntry
		if err := jsoniter.UnmarshalFromString(s, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *RedisLog) Clear(ctx context.Context) error {
	if err := l.client.Del(ctx, l.key).Err(); err != nil {
		return fmt.Errorf("clear error log: %w", err)
	}
	return nil
}

func (l *RedisLog) Close() error {
	return l.client.Close()
}
