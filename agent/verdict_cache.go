// Copyright 2025 InjectGuard
// SPDX-License-Identifier: BUSL-1.1
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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"injectguard/platform/agent/detect"
	"injectguard/platform/injection"
)

// ============================================================
// Redis-Backed Verdict Cache
// ============================================================
//
// Analyzer verdicts are deterministic for a given input and engine, so
// repeated payloads (retry storms, crawler traffic, copy-pasted attacks)
// can skip the tokenizers entirely. Only verdict facts are cached;
// whether a detection BLOCKS is recomputed from the live mode so a
// monitor→enforce switch takes effect without a cache flush.

// defaultVerdictCacheTTL bounds how long a cached verdict is served.
const defaultVerdictCacheTTL = 5 * time.Minute

// cachedVerdict is the compact cache entry stored in Redis.
type cachedVerdict struct {
	Verdict     int    `json:"v"`
	Detected    bool   `json:"d"`
	Fingerprint string `json:"f,omitempty"`
	Pattern     string `json:"p,omitempty"`
	Category    string `json:"c,omitempty"`
	Truncated   bool   `json:"t,omitempty"`
}

// Cache hit/miss counters (exposed via /metrics)
var (
	verdictCacheHits   int64
	verdictCacheMisses int64
)

// verdictCacheTTL returns the configured cache TTL.
func verdictCacheTTL() time.Duration {
	if v := os.Getenv("VERDICT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		log.Printf("⚠️  Invalid VERDICT_CACHE_TTL %q, using default %s", v, defaultVerdictCacheTTL)
	}
	return defaultVerdictCacheTTL
}

// verdictCacheKey builds the cache key. The input is hashed so attacker
// payloads never appear verbatim in Redis, and the tenant is part of the
// key so one tenant can never read another's scan history.
func verdictCacheKey(tenantID string, engine detect.Engine, scanType detect.ScanType, input string) string {
	return fmt.Sprintf("verdict:%s:%s:%s:%s", tenantID, engine, scanType, hashString(input))
}

// hashString creates a SHA256 hash of a string (for privacy)
func hashString(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}

// lookupVerdictCache checks Redis for a previous verdict on this input.
// Returns (nil, false) on miss, Redis outage, or when Redis is not
// configured. Cache errors never fail a scan.
func lookupVerdictCache(ctx context.Context, tenantID string, engine detect.Engine, scanType detect.ScanType, input string) (*cachedVerdict, bool) {
	if redisClient == nil {
		return nil, false
	}

	key := verdictCacheKey(tenantID, engine, scanType, input)
	data, err := redisClient.Get(ctx, key).Bytes()
	if err != nil {
		// redis.Nil (miss) and transport errors both count as a miss
		atomic.AddInt64(&verdictCacheMisses, 1)
		return nil, false
	}

	var entry cachedVerdict
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupt entry: drop it and rescan
		redisClient.Del(ctx, key)
		atomic.AddInt64(&verdictCacheMisses, 1)
		return nil, false
	}

	atomic.AddInt64(&verdictCacheHits, 1)
	return &entry, true
}

// storeVerdictCache writes a scan result to the cache. Analyzer errors are
// never cached: ERROR marks input the analyzers refused to parse, and the
// fail-closed decision for it belongs to the live configuration, not to a
// five-minute-old snapshot.
func storeVerdictCache(ctx context.Context, tenantID string, input string, result *detect.ScanResult) {
	if redisClient == nil || result == nil {
		return
	}
	if result.Verdict == injection.ResultError {
		return
	}

	entry := cachedVerdict{
		Verdict:     int(result.Verdict),
		Detected:    result.Detected,
		Fingerprint: result.Fingerprint,
		Pattern:     result.Pattern,
		Category:    string(result.Category),
		Truncated:   result.Truncated,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	key := verdictCacheKey(tenantID, result.Engine, result.ScanType, input)
	if err := redisClient.Set(ctx, key, data, verdictCacheTTL()).Err(); err != nil {
		log.Printf("⚠️  Verdict cache write failed: %v", err)
	}
}

// toScanResult rebuilds a ScanResult from a cache entry. Blocking is
// recomputed against the mode the scanner runs under right now.
func (c *cachedVerdict) toScanResult(scanType detect.ScanType, engine detect.Engine, mode detect.Mode) *detect.ScanResult {
	return &detect.ScanResult{
		Detected:    c.Detected,
		Blocked:     c.Detected && mode == detect.ModeEnforce,
		Verdict:     injection.Result(c.Verdict),
		Fingerprint: c.Fingerprint,
		Pattern:     c.Pattern,
		Category:    detect.Category(c.Category),
		Truncated:   c.Truncated,
		ScanType:    scanType,
		Engine:      engine,
		Mode:        mode,
	}
}

// verdictCacheStats returns hit/miss counters for the metrics endpoint.
func verdictCacheStats() (hits, misses int64) {
	return atomic.LoadInt64(&verdictCacheHits), atomic.LoadInt64(&verdictCacheMisses)
}
