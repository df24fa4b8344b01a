// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisStore keeps one sorted set per user, scored by request time in
// milliseconds.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "ratelimit"}
}

// DialRedis parses redisURL (redis://host:port/db), connects and pings.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) userKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", s.prefix, userID)
}

func millis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

// Counts implements Store.
func (s *RedisStore) Counts(ctx context.Context, userID string, now time.Time, windows []time.Duration) ([]WindowCount, error) {
	key := s.userKey(userID)

	countCmds := make([]*redis.IntCmd, len(windows))
	oldestCmds := make([]*redis.ZSliceCmd, len(windows))

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, d := range windows {
			min := "(" + strconv.FormatInt(millis(now.Add(-d)), 10)
			countCmds[i] = pipe.ZCount(ctx, key, min, "+inf")
			oldestCmds[i] = pipe.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
				Min:   min,
				Max:   "+inf",
				Count: 1,
			})
		}
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis rate limit count failed: %w", err)
	}

	out := make([]WindowCount, len(windows))
	for i := range windows {
		out[i].Count = int(countCmds[i].Val())
		if zs := oldestCmds[i].Val(); len(zs) > 0 {
			out[i].Oldest = time.UnixMilli(int64(zs[0].Score))
		}
	}
	return out, nil
}

// admitScript prunes expired entries, counts each window and adds the new
// member only when every window is under its limit. It returns
// count, oldest score pairs per window.
//
// KEYS[1] user key
// ARGV[1] now (ms), ARGV[2] prune cutoff (ms), ARGV[3] member, ARGV[4] ttl (ms)
// ARGV[5..] exclusive window start, limit; one pair per window
var admitScript = redis.NewScript(`
local key = KEYS[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local out = {}
local allowed = true
for i = 5, #ARGV, 2 do
  local min = ARGV[i]
  local count = redis.call('ZCOUNT', key, min, '+inf')
  local oldest = redis.call('ZRANGEBYSCORE', key, min, '+inf', 'WITHSCORES', 'LIMIT', 0, 1)
  local score = 0
  if #oldest > 0 then
    score = tonumber(oldest[2])
  end
  if count >= tonumber(ARGV[i + 1]) then
    allowed = false
  end
  out[#out + 1] = count
  out[#out + 1] = score
end
if allowed then
  redis.call('ZADD', key, ARGV[1], ARGV[3])
  redis.call('PEXPIRE', key, ARGV[4])
end
return out
`)

// Admit implements Store with a single Lua script, so concurrent requests
// from any number of processes are serialized by Redis.
func (s *RedisStore) Admit(ctx context.Context, userID string, now time.Time, windows []Window) ([]WindowCount, error) {
	var retention time.Duration
	for _, w := range windows {
		if w.Duration > retention {
			retention = w.Duration
		}
	}

	args := []interface{}{
		strconv.FormatInt(millis(now), 10),
		strconv.FormatInt(millis(now.Add(-retention)), 10),
		uuid.NewString(),
		strconv.FormatInt((retention + time.Minute).Milliseconds(), 10),
	}
	for _, w := range windows {
		args = append(args, "("+strconv.FormatInt(millis(now.Add(-w.Duration)), 10), w.Limit)
	}

	vals, err := admitScript.Run(ctx, s.client, []string{s.userKey(userID)}, args...).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit admit failed: %w", err)
	}
	if len(vals) != 2*len(windows) {
		return nil, fmt.Errorf("redis rate limit admit returned %d values for %d windows", len(vals), len(windows))
	}

	out := make([]WindowCount, len(windows))
	for i := range windows {
		out[i].Count = int(vals[2*i])
		if score := vals[2*i+1]; score > 0 {
			out[i].Oldest = time.UnixMilli(score)
		}
	}
	return out, nil
}

// Record implements Store.
func (s *RedisStore) Record(ctx context.Context, userID string, now time.Time, retention time.Duration) error {
	key := s.userKey(userID)
	cutoff := strconv.FormatInt(millis(now.Add(-retention)), 10)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "0", cutoff)
		pipe.ZAdd(ctx, key, &redis.Z{Score: float64(millis(now)), Member: uuid.NewString()})
		pipe.Expire(ctx, key, retention+time.Minute)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis rate limit record failed: %w", err)
	}
	return nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.userKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to flush rate limit data: %w", err)
	}
	return nil
}
