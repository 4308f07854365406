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

/*
Package agent provides the InjectGuard Agent service - the authentication,
rate limiting, and payload scanning gateway for applications that need
injection detection as a network service.

# Overview

The Agent wraps the detection engines in an HTTP API. It sits between
client applications and their data stores, handling:

  - Client authentication via license keys
  - User authentication via JWT tokens
  - Multi-tenant isolation and verification
  - SQL injection and markup payload scanning (fingerprint or heuristic engine)
  - Rate limiting (in-memory or Redis-backed sliding window)
  - Verdict caching keyed by tenant, engine, and scan type
  - Detection-event delivery to configured sinks with a local fallback
  - Scan metering for hosted billing (Enterprise builds)

# Request Flow

Every scan request passes through the same pipeline:

	Client → Agent (auth + rate limit) → Detection middleware → Verdict
	                                          ↓
	                              Audit queue → Sinks (SQL, Cassandra,
	                                            MongoDB, S3, file, ...)

In monitor mode detections are recorded but requests are never blocked.
In enforce mode a detection produces an HTTP 403 with the verdict
attached, and the event rides the synchronous audit lane so a blocked
request always leaves a durable trail.

# Endpoints

	GET  /health                    - Readiness-aware health check
	GET  /metrics                   - JSON runtime metrics
	GET  /prometheus                - Prometheus exposition format
	POST /api/scan                  - Scan a payload, returns the verdict
	POST /api/fingerprint           - Tokenize a payload, returns the fingerprint
	POST /api/patterns/test         - Vet a custom pattern, optionally against samples
	GET  /api/clients               - List registered clients
	GET  /api/ratelimit/{client_id} - Rate limit window status

# Authentication

The Agent supports multiple authentication strategies:

  - License key validation (X-License-Key header)
  - JWT token validation for user identity
  - Database-backed client registration with a whitelist fallback
  - Self-hosted mode for Community deployments (no license required)

# Usage

	// Start the Agent service
	agent.Run()

	// The Agent reads configuration from environment variables:
	// PORT                    - HTTP server port (default: 8080)
	// SELF_HOSTED_MODE        - "true" skips license validation
	// INJECTGUARD_LICENSE_KEY - License key for hosted deployments
	// JWT_SECRET              - Secret for JWT token validation
	// DATABASE_URL            - PostgreSQL connection string for client auth
	// REDIS_URL               - Redis URL for rate limiting and verdict cache
	// DETECT_MODE             - off, monitor, enforce (default: monitor)
	// DETECT_ENGINE           - fingerprint, heuristic, noop (default: fingerprint)
	// DETECT_FAIL_CLOSED      - treat analyzer errors as detections (default: true)
	// SINK_CONFIG_FILE        - YAML sink configuration (default: local file sink)
	// AUDIT_MODE              - compliance or performance (default: performance)
	// AUDIT_FALLBACK_PATH     - JSONL fallback for undeliverable events
	// INSTANCE_ID             - Agent instance label on usage events

# Thread Safety

All exported functions and types in this package are safe for concurrent
use. The Agent handles multiple simultaneous requests using goroutines
with synchronization via sync.RWMutex for metrics and state management.

# Metrics

The Agent exposes Prometheus metrics at /prometheus and JSON metrics at /metrics:

  - injectguard_agent_requests_total - Total requests by status
  - injectguard_agent_scan_duration_milliseconds - Scan latency histogram
  - injectguard_agent_scans_total - Total payloads scanned
  - injectguard_agent_blocked_total - Blocked request count
  - injectguard_agent_errors_total - Request error count
*/
package agent
