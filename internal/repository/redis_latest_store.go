package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"income-screener/internal/domain"
)

// RedisLatestStore keeps the last RunSnapshot as one JSON value so every API
// replica serves the same picks without touching Postgres.
type RedisLatestStore struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

func NewRedisLatestStore(client redis.Cmdable, key string, ttl time.Duration) *RedisLatestStore {
	return &RedisLatestStore{client: client, key: key, ttl: ttl}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisLatestStore) SaveSnapshot(ctx context.Context, snap domain.RunSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

func (s *RedisLatestStore) LatestSnapshot(ctx context.Context) (domain.RunSnapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RunSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RunSnapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	var snap domain.RunSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.RunSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
