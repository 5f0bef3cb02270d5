package ratelimit

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
)

const releaseIfHeldScript = `
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("DEL", KEYS[1])
`

// jobLock is a redis lease guarding one background job run across replicas.
type jobLock struct {
	client  *redis.Client
	release *redis.Script
}

func newJobLock(client *redis.Client) *jobLock {
	if client == nil {
		return nil
	}
	return &jobLock{client: client, release: redis.NewScript(releaseIfHeldScript)}
}

// Acquire returns the lease token and whether the lease was taken.
func (l *jobLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *jobLock) Release(ctx context.Context, key, token string) error {
	if token == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{key}, token).Err()
}
