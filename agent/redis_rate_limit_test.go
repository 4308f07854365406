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
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

// TestInitRedis tests Redis initialization error paths
func TestInitRedis(t *testing.T) {
	tests := []struct {
		name        string
		redisURL    string
		wantErr     bool
		errContains string
	}{
		{
			name:        "invalid URL format",
			redisURL:    "invalid-url",
			wantErr:     true,
			errContains: "failed to parse",
		},
		{
			name:        "invalid protocol",
			redisURL:    "http://localhost:6379",
			wantErr:     true,
			errContains: "failed to parse",
		},
		{
			name:        "unreachable Redis server",
			redisURL:    "redis://unreachable-host:6379",
			wantErr:     true,
			errContains: "failed to connect",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset redisClient
			redisClient = nil

			err := initRedis(tt.redisURL)

			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error containing '%s', got nil", tt.errContains)
				} else if !contains(err.Error(), tt.errContains) {
					t.Errorf("expected error containing '%s', got '%s'", tt.errContains, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if redisClient == nil {
					t.Error("expected redisClient to be initialized")
				}
			}

			// Cleanup
			if redisClient != nil {
				_ = redisClient.Close()
				redisClient = nil
			}
		})
	}
}

// TestInitRedis_WithMiniredis tests successful initialization
func TestInitRedis_WithMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	oldRedisClient := redisClient
	defer func() { redisClient = oldRedisClient }()

	err := initRedis(fmt.Sprintf("redis://%s", mr.Addr()))
	if err != nil {
		t.Fatalf("initRedis failed: %v", err)
	}

	if redisClient == nil {
		t.Error("expected redisClient to be initialized")
	}

	if redisClient != nil {
		_ = redisClient.Close()
		redisClient = nil
	}
}

// TestCheckRateLimitRedis_Fallback tests the in-memory fallback when
// Redis is not configured
func TestCheckRateLimitRedis_Fallback(t *testing.T) {
	oldRedisClient := redisClient
	redisClient = nil
	defer func() { redisClient = oldRedisClient }()

	rateLimitMu.Lock()
	rateLimitMap = make(map[string]*RateLimitEntry)
	rateLimitMu.Unlock()

	ctx := context.Background()

	// Should fall back to in-memory rate limiting
	err := checkRateLimitRedis(ctx, "fallback-client", 100)
	if err != nil {
		t.Errorf("fallback should not error: %v", err)
	}

	// The fallback counts in the in-memory map
	count, _, _ := getRateLimitStatus("fallback-client")
	if count != 1 {
		t.Errorf("expected in-memory count 1, got %d", count)
	}
}

// TestGetRateLimitStatusRedis_Fallback tests status retrieval via the
// in-memory fallback
func TestGetRateLimitStatusRedis_Fallback(t *testing.T) {
	oldRedisClient := redisClient
	redisClient = nil
	defer func() { redisClient = oldRedisClient }()

	rateLimitMu.Lock()
	rateLimitMap = make(map[string]*RateLimitEntry)
	rateLimitMu.Unlock()

	// Seed one request so an entry exists
	if err := checkRateLimit("status-client", 100); err != nil {
		t.Fatalf("checkRateLimit failed: %v", err)
	}

	ctx := context.Background()
	count, resetTime, err := getRateLimitStatusRedis(ctx, "status-client")
	if err != nil {
		t.Fatalf("getRateLimitStatusRedis failed: %v", err)
	}

	if count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}
	if resetTime.IsZero() {
		t.Error("expected non-zero reset time for tracked client")
	}

	// Unknown clients have no window yet
	count, resetTime, err = getRateLimitStatusRedis(ctx, "never-seen")
	if err != nil {
		t.Fatalf("getRateLimitStatusRedis failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected count 0 for unknown client, got %d", count)
	}
	if !resetTime.IsZero() {
		t.Errorf("expected zero reset time for unknown client, got %v", resetTime)
	}
}

// TestGetRateLimitStatsRedis tests stats retrieval without Redis
func TestGetRateLimitStatsRedis(t *testing.T) {
	oldRedisClient := redisClient
	redisClient = nil
	defer func() { redisClient = oldRedisClient }()

	ctx := context.Background()

	stats, err := getRateLimitStatsRedis(ctx, "test-client", time.Minute)
	if err == nil {
		t.Error("expected error when Redis is not initialized")
	} else if !contains(err.Error(), "redis not initialized") {
		t.Errorf("expected 'redis not initialized' error, got '%s'", err.Error())
	}
	if stats != nil {
		t.Error("expected nil stats on error")
	}
}

// TestFlushRateLimitRedis tests flushing without Redis
func TestFlushRateLimitRedis(t *testing.T) {
	oldRedisClient := redisClient
	redisClient = nil
	defer func() { redisClient = oldRedisClient }()

	ctx := context.Background()

	err := flushRateLimitRedis(ctx, "test-client")
	if err == nil {
		t.Error("expected error when Redis is not initialized")
	} else if !contains(err.Error(), "redis not initialized") {
		t.Errorf("expected 'redis not initialized' error, got '%s'", err.Error())
	}
}

// TestCloseRedis tests connection cleanup with no client
func TestCloseRedis(t *testing.T) {
	oldRedisClient := redisClient
	redisClient = nil
	defer func() { redisClient = oldRedisClient }()

	if err := closeRedis(); err != nil {
		t.Errorf("closeRedis with nil client should not error: %v", err)
	}
}

// TestCheckRateLimitRedis_WithinLimit tests requests within the limit
func TestCheckRateLimitRedis_WithinLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	oldRedisClient := redisClient
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		redisClient = oldRedisClient
	}()

	err := initRedis(fmt.Sprintf("redis://%s", mr.Addr()))
	if err != nil {
		t.Fatalf("initRedis failed: %v", err)
	}

	ctx := context.Background()
	clientID := "test-client-001"
	limit := 10

	// Make 5 requests (well within limit of 10)
	for i := 0; i < 5; i++ {
		err := checkRateLimitRedis(ctx, clientID, limit)
		if err != nil {
			t.Errorf("request %d failed: %v", i+1, err)
		}
	}

	// Verify we can still make requests
	err = checkRateLimitRedis(ctx, clientID, limit)
	if err != nil {
		t.Errorf("request within limit failed: %v", err)
	}
}

// TestCheckRateLimitRedis_ExceedLimit tests rate limit enforcement
func TestCheckRateLimitRedis_ExceedLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	oldRedisClient := redisClient
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		redisClient = oldRedisClient
	}()

	err := initRedis(fmt.Sprintf("redis://%s", mr.Addr()))
	if err != nil {
		t.Fatalf("initRedis failed: %v", err)
	}

	ctx := context.Background()
	clientID := "test-client-002"
	limit := 5

	// The window is counted before the current request is added, so
	// limit+1 requests all pass; the one after that sees count > limit
	for i := 0; i <= limit; i++ {
		if err := checkRateLimitRedis(ctx, clientID, limit); err != nil {
			t.Errorf("request %d failed early: %v", i+1, err)
		}
	}

	err = checkRateLimitRedis(ctx, clientID, limit)
	if err == nil {
		t.Error("expected rate limit exceeded error, got nil")
	} else if !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Errorf("expected 'rate limit exceeded' error, got: %s", err.Error())
	}
}

// TestCheckRateLimitRedis_FailOpen tests that a Redis outage admits
// requests instead of blocking every scan
func TestCheckRateLimitRedis_FailOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	oldRedisClient := redisClient
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		redisClient = oldRedisClient
	}()

	err := initRedis(fmt.Sprintf("redis://%s", mr.Addr()))
	if err != nil {
		t.Fatalf("initRedis failed: %v", err)
	}

	// Kill the server; the pipeline now errors on every call
	mr.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := checkRateLimitRedis(ctx, "outage-client", 1); err != nil {
			t.Errorf("expected fail-open (nil error) during outage, got: %v", err)
		}
	}
}

// TestGetRateLimitStatusRedis_WithMiniredis tests status retrieval
func TestGetRateLimitStatusRedis_WithMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	oldRedisClient := redisClient
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		redisClient = oldRedisClient
	}()

	err := initRedis(fmt.Sprintf("redis://%s", mr.Addr()))
	if err != nil {
		t.Fatalf("initRedis failed: %v", err)
	}

	ctx := context.Background()
	clientID := "test-client-004"

	// Make 3 requests
	for i := 0; i < 3; i++ {
		_ = checkRateLimitRedis(ctx, clientID, 10)
	}

	count, resetTime, err := getRateLimitStatusRedis(ctx, clientID)
	if err != nil {
		t.Fatalf("getRateLimitStatusRedis failed: %v", err)
	}

	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
	if resetTime.IsZero() {
		t.Error("expected non-zero reset time")
	}
	if !resetTime.After(time.Now()) {
		t.Error("reset time should be in the future")
	}
}

// TestGetRateLimitStatsRedis_WithMiniredis tests detailed statistics
func TestGetRateLimitStatsRedis_WithMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	oldRedisClient := redisClient
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		redisClient = oldRedisClient
	}()

	err := initRedis(fmt.Sprintf("redis://%s", mr.Addr()))
	if err != nil {
		t.Fatalf("initRedis failed: %v", err)
	}

	ctx := context.Background()
	clientID := "test-client-005"

	// Make 5 requests
	for i := 0; i < 5; i++ {
		_ = checkRateLimitRedis(ctx, clientID, 100)
	}

	stats, err := getRateLimitStatsRedis(ctx, clientID, time.Minute)
	if err != nil {
		t.Fatalf("getRateLimitStatsRedis failed: %v", err)
	}
	if stats == nil {
		t.Fatal("expected stats, got nil")
	}

	if stats.ClientID != clientID {
		t.Errorf("expected clientID %s, got %s", clientID, stats.ClientID)
	}
	if stats.RequestCount != 5 {
		t.Errorf("expected request count 5, got %d", stats.RequestCount)
	}
	if stats.Duration != time.Minute {
		t.Errorf("expected duration 1m, got %v", stats.Duration)
	}
	if stats.WindowEnd.Before(stats.WindowStart) {
		t.Error("window end should be after window start")
	}
}

// TestFlushRateLimitRedis_WithMiniredis tests flushing rate limit data
func TestFlushRateLimitRedis_WithMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	oldRedisClient := redisClient
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		redisClient = oldRedisClient
	}()

	err := initRedis(fmt.Sprintf("redis://%s", mr.Addr()))
	if err != nil {
		t.Fatalf("initRedis failed: %v", err)
	}

	ctx := context.Background()
	clientID := "test-client-006"

	// Make some requests to create data
	for i := 0; i < 3; i++ {
		_ = checkRateLimitRedis(ctx, clientID, 100)
	}

	count, _, err := getRateLimitStatusRedis(ctx, clientID)
	if err != nil {
		t.Fatalf("getRateLimitStatusRedis failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count 3 before flush, got %d", count)
	}

	if err := flushRateLimitRedis(ctx, clientID); err != nil {
		t.Fatalf("flushRateLimitRedis failed: %v", err)
	}

	count, _, err = getRateLimitStatusRedis(ctx, clientID)
	if err != nil {
		t.Fatalf("getRateLimitStatusRedis after flush failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected count 0 after flush, got %d", count)
	}
}

// TestCloseRedis_WithMiniredis tests cleanup of a live connection
func TestCloseRedis_WithMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	oldRedisClient := redisClient
	defer func() { redisClient = oldRedisClient }()

	err := initRedis(fmt.Sprintf("redis://%s", mr.Addr()))
	if err != nil {
		t.Fatalf("initRedis failed: %v", err)
	}
	if redisClient == nil {
		t.Fatal("expected redisClient to be initialized")
	}

	if err := closeRedis(); err != nil {
		t.Errorf("closeRedis failed: %v", err)
	}
	redisClient = nil
}

// TestRateLimitKeyIsolation tests that clients do not share windows
func TestRateLimitKeyIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	oldRedisClient := redisClient
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		redisClient = oldRedisClient
	}()

	err := initRedis(fmt.Sprintf("redis://%s", mr.Addr()))
	if err != nil {
		t.Fatalf("initRedis failed: %v", err)
	}

	ctx := context.Background()
	client1 := "client-a"
	client2 := "client-b"
	limit := 3

	// Drive client-a over the limit
	for i := 0; i <= limit; i++ {
		_ = checkRateLimitRedis(ctx, client1, limit)
	}
	err = checkRateLimitRedis(ctx, client1, limit)
	if err == nil {
		t.Error("expected client-a to be rate limited")
	}

	// client-b is unaffected
	err = checkRateLimitRedis(ctx, client2, limit)
	if err != nil {
		t.Errorf("client-b should not be rate limited, got: %v", err)
	}
}

// TestMultipleConcurrentRequests tests concurrent rate limiting
func TestMultipleConcurrentRequests(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	oldRedisClient := redisClient
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		redisClient = oldRedisClient
	}()

	err := initRedis(fmt.Sprintf("redis://%s", mr.Addr()))
	if err != nil {
		t.Fatalf("initRedis failed: %v", err)
	}

	ctx := context.Background()
	clientID := "test-client-007"
	limit := 50

	// Make 40 concurrent requests (within limit)
	done := make(chan error, 40)

	for i := 0; i < 40; i++ {
		go func(idx int) {
			err := checkRateLimitRedis(ctx, clientID, limit)
			done <- err
		}(i)
	}

	errors := 0
	for i := 0; i < 40; i++ {
		if err := <-done; err != nil {
			errors++
		}
	}

	if errors > 0 {
		t.Errorf("expected 0 errors for requests within limit, got %d", errors)
	}
}

// TestResetTimeCalculation tests the minute-boundary reset convention
func TestResetTimeCalculation(t *testing.T) {
	now := time.Now()

	resetTime := now.Truncate(time.Minute).Add(time.Minute)

	if !resetTime.After(now) {
		t.Error("reset time should be in the future")
	}
	if resetTime.Sub(now) > time.Minute {
		t.Error("reset time should be within the next minute")
	}
	if resetTime.Second() != 0 || resetTime.Nanosecond() != 0 {
		t.Error("reset time should be at an exact minute boundary")
	}
}

// Benchmark for the in-memory fallback path
func BenchmarkCheckRateLimitRedis(b *testing.B) {
	oldRedisClient := redisClient
	redisClient = nil
	defer func() { redisClient = oldRedisClient }()

	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = checkRateLimitRedis(ctx, "bench-client", 1000000)
	}
}

func BenchmarkGetRateLimitStatusRedis(b *testing.B) {
	oldRedisClient := redisClient
	redisClient = nil
	defer func() { redisClient = oldRedisClient }()

	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = getRateLimitStatusRedis(ctx, "bench-client")
	}
}
