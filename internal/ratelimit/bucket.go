package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// takeTokenScript refills the bucket at KEYS[1] and takes one token when one
// is available. The remaining count is replied in thousandths of a token
// because redis truncates Lua numbers to integers.
const takeTokenScript = `
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local ttl_ms = tonumber(ARGV[3])

local t = redis.call("TIME")
local now_ms = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = capacity
if state[1] and state[2] then
  local elapsed = math.max(0, now_ms - tonumber(state[2]))
  tokens = math.min(capacity, tonumber(state[1]) + elapsed * rate / 1000)
end

local taken = 0
if tokens >= 1 then
  tokens = tokens - 1
  taken = 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now_ms)
redis.call("PEXPIRE", KEYS[1], ttl_ms)
return {taken, math.floor(tokens * 1000), now_ms}
`

var errBucketMisconfigured = errors.New("write bucket misconfigured")

// Decision is the outcome of taking one write token.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type bucket struct {
	client *redis.Client
	take   *redis.Script
}

func newBucket(client *redis.Client) *bucket {
	if client == nil {
		return nil
	}
	return &bucket{client: client, take: redis.NewScript(takeTokenScript)}
}

// Take consumes one token from key. ratePerSecond refills the bucket up to
// capacity.
func (b *bucket) Take(ctx context.Context, key string, ratePerSecond float64, capacity int) (Decision, error) {
	if key == "" || ratePerSecond <= 0 || capacity <= 0 {
		return Decision{}, fmt.Errorf("%w: key=%q rate=%v capacity=%d", errBucketMisconfigured, key, ratePerSecond, capacity)
	}

	reply, err := b.take.Run(ctx, b.client, []string{key},
		ratePerSecond, capacity, idleTTL(ratePerSecond, capacity).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("take write token: %w", err)
	}
	if len(reply) != 3 {
		return Decision{}, fmt.Errorf("take write token: unexpected reply %v", reply)
	}

	remaining := float64(reply[1]) / 1000
	decision := Decision{
		Allowed:   reply[0] == 1,
		Limit:     capacity,
		Remaining: int(remaining),
		ResetAt:   time.UnixMilli(reply[2]),
	}
	if !decision.Allowed {
		decision.RetryAfter = time.Duration((1 - remaining) / ratePerSecond * float64(time.Second))
		decision.ResetAt = decision.ResetAt.Add(decision.RetryAfter)
	}
	return decision, nil
}

// idleTTL keeps a bucket around for twice the time it needs to refill.
func idleTTL(ratePerSecond float64, capacity int) time.Duration {
	seconds := math.Max(1, math.Ceil(2*float64(capacity)/ratePerSecond))
	return time.Duration(seconds) * time.Second
}
