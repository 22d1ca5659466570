package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rustyeddy/tradedesk/risk"
)

const (
	redisSettingsKey = "tradedesk:risk:settings"
	redisDailyKey    = "tradedesk:risk:daily"
)

// Redis stores settings and daily state as JSON strings.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// NewRedisURL parses a redis:// URL and pings the server.
func NewRedisURL(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client), nil
}

func (s *Redis) Close() error { return s.client.Close() }

func (s *Redis) get(ctx context.Context, key string, out any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return risk.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Redis) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Redis) LoadSettings(ctx context.Context) (risk.Settings, error) {
	var out risk.Settings
	err := s.get(ctx, redisSettingsKey, &out)
	return out, err
}

func (s *Redis) SaveSettings(ctx context.Context, v risk.Settings) error {
	return s.put(ctx, redisSettingsKey, v)
}

func (s *Redis) LoadDaily(ctx context.Context) (risk.DailyState, error) {
	var out risk.DailyState
	err := s.get(ctx, redisDailyKey, &out)
	return out, err
}

func (s *Redis) SaveDaily(ctx context.Context, d risk.DailyState) error {
	return s.put(ctx, redisDailyKey, d)
}
