package softlock

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type RedisStore struct {
	client *redis.Client
	script *redis.Script
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		script: redis.NewScript(releaseScript),
	}
}

func (s *RedisStore) Acquire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if key == "" || value == "" {
		return false, errors.New("softlock key and value are required")
	}
	if ttl <= 0 {
		return false, errors.New("softlock ttl must be positive")
	}
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *RedisStore) Release(ctx context.Context, key, value string) (bool, error) {
	if key == "" || value == "" {
		return false, nil
	}
	deleted, err := s.script.Run(ctx, s.client, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return deleted > 0, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, time.Duration, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return "", 0, err
	}
	return value, ttl, nil
}
