package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/open-builders/giveaway-tickets/internal/cache"
	rplatform "github.com/open-builders/giveaway-tickets/internal/platform/redis"
)

// incrScript sets the ttl only when the counter is created.
var incrScript = goredis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// windowScript keeps one sorted set per key scored by event time in ms.
// Returns {allowed, count, oldest_ms or -1}.
var windowScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local span = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - span)
local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < limit then
  redis.call('ZADD', KEYS[1], now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', KEYS[1], span)
local oldest = -1
local first = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if first[2] then
  oldest = tonumber(first[2])
end
return {allowed, count, oldest}
`)

// Store is a cache.ExpiringStore shared by every instance through Redis.
// Expiry is left to Redis, so it does not implement cache.Sweeper.
type Store struct {
	client *rplatform.Client
}

var _ cache.ExpiringStore = (*Store)(nil)

func NewStore(client *rplatform.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	return val, err
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	return n > 0, err
}

func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return incrScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Int64()
}

func (s *Store) IncrementCounterWindow(ctx context.Context, key string, now time.Time, span time.Duration, limit int) (cache.WindowResult, error) {
	vals, err := windowScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(), span.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return cache.WindowResult{}, err
	}
	if len(vals) != 3 {
		return cache.WindowResult{}, errors.New("window script: unexpected reply")
	}
	res := cache.WindowResult{Allowed: vals[0] == 1, Count: int(vals[1])}
	if vals[2] >= 0 {
		res.Oldest = time.UnixMilli(vals[2])
	}
	return res, nil
}
