// Copyright 2025 InjectGuard
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

package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Distributed rate limiting for scan traffic. Each client gets a Redis
// sorted set of request timestamps; the sliding window is the set pruned
// to the last minute. When Redis is not configured the per-instance
// in-memory limiter in auth.go takes over, which is correct for a single
// agent and merely generous for a fleet.

const (
	// rateLimitWindow is the span the per-client request count covers.
	rateLimitWindow = time.Minute

	// rateLimitKeyTTL retires idle client windows. Twice the window so a
	// set never expires while it still holds countable entries.
	rateLimitKeyTTL = 2 * rateLimitWindow
)

var redisClient *redis.Client

func rateLimitKey(clientID string) string {
	return "ratelimit:" + clientID
}

// initRedis dials Redis from a redis:// URL and verifies the connection
// before the agent starts admitting scans.
func initRedis(redisURL string) error {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	redisClient = client
	fmt.Printf("✅ Redis connected: %s\n", redisURL)
	return nil
}

// checkRateLimitRedis admits or rejects one scan request for clientID
// under a sliding one-minute window. The window is counted before the
// current request is recorded, so a client at exactly its limit gets one
// more request through; the next one is rejected.
//
// A Redis outage fails open. Rejecting every scan because the rate
// limiter is down would turn an availability problem into a
// security-product outage, which is the wrong trade for a limiter whose
// job is abuse control, not enforcement.
func checkRateLimitRedis(ctx context.Context, clientID string, limitPerMinute int) error {
	if redisClient == nil {
		return checkRateLimit(clientID, limitPerMinute)
	}

	now := time.Now()
	key := rateLimitKey(clientID)
	windowFloor := now.Add(-rateLimitWindow).Unix()

	// One round trip: prune the expired tail, count what remains, record
	// this request, refresh the key TTL.
	pipe := redisClient.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowFloor))
	inWindow := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.Unix()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, rateLimitKeyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		fmt.Printf("Warning: Redis rate limit check failed for %s: %v (failing open)\n", clientID, err)
		return nil
	}

	if count := inWindow.Val(); count > int64(limitPerMinute) {
		return fmt.Errorf("rate limit exceeded: %d requests/minute (limit: %d)", count, limitPerMinute)
	}
	return nil
}

// getRateLimitStatusRedis reports how many requests clientID has made in
// the current window and when the advertised window resets. The reset
// time follows the response-header convention (next minute boundary)
// rather than the true sliding-window decay.
func getRateLimitStatusRedis(ctx context.Context, clientID string) (int, time.Time, error) {
	if redisClient == nil {
		count, _, resetTime := getRateLimitStatus(clientID)
		return count, resetTime, nil
	}

	now := time.Now()
	windowFloor := now.Add(-rateLimitWindow).Unix()
	count, err := redisClient.ZCount(ctx, rateLimitKey(clientID), fmt.Sprintf("%d", windowFloor), "+inf").Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to get rate limit status: %w", err)
	}

	return int(count), now.Truncate(time.Minute).Add(time.Minute), nil
}

// RateLimitStats is a monitoring snapshot of one client's request volume
// over an arbitrary trailing window.
type RateLimitStats struct {
	ClientID     string
	RequestCount int
	WindowStart  time.Time
	WindowEnd    time.Time
	Duration     time.Duration
}

// getRateLimitStatsRedis counts clientID's requests over the trailing
// duration, which may be longer than the enforcement window (entries
// survive for rateLimitKeyTTL).
func getRateLimitStatsRedis(ctx context.Context, clientID string, duration time.Duration) (*RateLimitStats, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis not initialized")
	}

	now := time.Now()
	start := now.Add(-duration)

	timestamps, err := redisClient.ZRangeByScore(ctx, rateLimitKey(clientID), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", start.Unix()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limit stats: %w", err)
	}

	return &RateLimitStats{
		ClientID:     clientID,
		RequestCount: len(timestamps),
		WindowStart:  start,
		WindowEnd:    now,
		Duration:     duration,
	}, nil
}

// flushRateLimitRedis discards a client's window. Admin operation, used
// after a limit change so the client is not held to the old budget.
func flushRateLimitRedis(ctx context.Context, clientID string) error {
	if redisClient == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := redisClient.Del(ctx, rateLimitKey(clientID)).Err(); err != nil {
		return fmt.Errorf("failed to flush rate limit data: %w", err)
	}
	return nil
}

// closeRedis releases the connection pool on shutdown. Safe to call when
// Redis was never configured.
func closeRedis() error {
	if redisClient == nil {
		return nil
	}
	return redisClient.Close()
}
