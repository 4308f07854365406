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
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"injectguard/platform/agent/detect"
	"injectguard/platform/agent/license"
	"injectguard/platform/injection"
	"injectguard/platform/injection/sqli"
	"injectguard/platform/shared/types"
	"injectguard/platform/shared/usage"
	"injectguard/platform/sinks"
)

// Scan API Prometheus metrics
var (
	scanAPIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "injectguard_scan_api_requests_total",
			Help: "Total number of scan API requests",
		},
		[]string{"status", "verdict"},
	)
	scanAPIDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "injectguard_scan_api_duration_milliseconds",
			Help:    "Scan API request duration in milliseconds",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
		},
	)
	fingerprintAPIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "injectguard_fingerprint_api_requests_total",
			Help: "Total number of fingerprint API requests",
		},
		[]string{"status"},
	)
	verdictCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "injectguard_verdict_cache_lookups_total",
			Help: "Total verdict cache lookups by result",
		},
		[]string{"result"},
	)
	auditEventsQueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "injectguard_audit_events_queued_total",
			Help: "Total detection events queued via AuditQueue",
		},
		[]string{"lane", "status"},
	)
)

// scanMetricsOnce ensures metrics are registered only once
var scanMetricsOnce sync.Once

func init() {
	registerScanMetrics()
}

// registerScanMetrics registers all scan API metrics once (safe for multiple calls)
func registerScanMetrics() {
	scanMetricsOnce.Do(func() {
		// Register scan Prometheus metrics (ignore errors - duplicate registration is OK)
		_ = prometheus.Register(scanAPIRequests)
		_ = prometheus.Register(scanAPIDuration)
		_ = prometheus.Register(fingerprintAPIRequests)
		_ = prometheus.Register(verdictCacheLookups)
		_ = prometheus.Register(auditEventsQueued)
	})
}

// Scan API Types

// ScanRequest is sent by SDK clients to analyze one value for injection payloads
type ScanRequest struct {
	UserToken string                 `json:"user_token"`
	ClientID  string                 `json:"client_id"`
	Input     string                 `json:"input"`
	ScanType  string                 `json:"scan_type,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// ScanResponse returns the verdict for one scanned value
type ScanResponse struct {
	RequestID   string         `json:"request_id"`
	Detected    bool           `json:"detected"`
	Blocked     bool           `json:"blocked"`
	Verdict     int            `json:"verdict"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	Pattern     string         `json:"pattern,omitempty"`
	Category    string         `json:"category,omitempty"`
	Severity    string         `json:"severity,omitempty"`
	Engine      string         `json:"engine"`
	Mode        string         `json:"mode"`
	Truncated   bool           `json:"truncated,omitempty"`
	Cached      bool           `json:"cached"`
	DurationMs  int64          `json:"duration_ms"`
	RateLimit   *RateLimitInfo `json:"rate_limit,omitempty"`
	BlockReason string         `json:"block_reason,omitempty"`
}

// RateLimitInfo provides rate limiting status to SDK
type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// FingerprintRequest asks for the raw SQL token fingerprint of an input.
// This is a diagnostic surface for tuning, not a traffic-scanning path.
type FingerprintRequest struct {
	ClientID string `json:"client_id"`
	Input    string `json:"input"`
}

// FingerprintToken is one classified token from the analyzer window
type FingerprintToken struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
	Pos   int    `json:"pos"`
}

// FingerprintResponse returns the analyzer verdict and fingerprint for an input
type FingerprintResponse struct {
	RequestID   string             `json:"request_id"`
	Verdict     int                `json:"verdict"`
	Matched     bool               `json:"matched"`
	Fingerprint string             `json:"fingerprint,omitempty"`
	Tokens      []FingerprintToken `json:"tokens,omitempty"`
	DurationMs  int64              `json:"duration_ms"`
}

// clientHasPermission reports whether the client may call an operation
func clientHasPermission(client *Client, permission string) bool {
	for _, p := range client.Permissions {
		if p == permission || p == "*" {
			return true
		}
	}
	return false
}

// authenticateScanClient resolves the caller for the scan endpoints.
// Self-hosted mode synthesizes a Community client; otherwise the database
// is preferred and the whitelist is the fallback.
func authenticateScanClient(r *http.Request, clientID string) (*Client, error) {
	if types.ModeFromEnv().IsSelfHosted() {
		return &Client{
			ID:          clientID,
			Name:        "Self-Hosted",
			OrgID:       "self-hosted",
			TenantID:    clientID,
			Permissions: []string{"*"},
			Enabled:     true,
			LicenseTier: string(license.TierCommunity),
		}, nil
	}

	licenseKey := r.Header.Get("X-License-Key")
	if licenseKey == "" {
		return nil, errors.New("X-License-Key header required")
	}
	log.Printf("🔐 Validating license for client '%s' with key '%s...'", clientID, maskString(licenseKey))

	ctx := r.Context()
	// Database-backed registration is preferred; whitelist is the fallback
	if authDB != nil {
		return validateClientLicenseDB(ctx, authDB, clientID, licenseKey)
	}
	return validateClientLicense(ctx, clientID, licenseKey)
}

// handleScan handles POST /api/scan
// This is the primary detection surface - clients submit one value and
// receive the analyzer verdict plus the enforcement decision.
func handleScan(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	// Parse request
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ [Scan] Invalid request body: %v", err)
		scanAPIRequests.WithLabelValues("error", "none").Inc()
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	atomic.AddInt64(&agentMetrics.totalRequests, 1)

	// Validate required fields
	if req.ClientID == "" {
		log.Printf("❌ [Scan] Missing required field: client_id")
		scanAPIRequests.WithLabelValues("error", "none").Inc()
		sendErrorResponse(w, "client_id field is required", http.StatusBadRequest)
		return
	}

	// Resolve the scan type (query is the default surface)
	scanType := detect.ScanTypeQuery
	if req.ScanType != "" {
		switch st := detect.ScanType(req.ScanType); st {
		case detect.ScanTypeQuery, detect.ScanTypeBody, detect.ScanTypeHeader, detect.ScanTypeParam:
			scanType = st
		default:
			log.Printf("❌ [Scan] Invalid scan_type: %q", req.ScanType)
			scanAPIRequests.WithLabelValues("error", "none").Inc()
			sendErrorResponse(w, "invalid scan_type: must be query, body, header, or param", http.StatusBadRequest)
			return
		}
	}

	// Request ID for tracing (client-provided or generated)
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}

	// Authenticate the client
	authStart := time.Now()
	client, err := authenticateScanClient(r, req.ClientID)
	if err != nil {
		log.Printf("❌ [Scan] Client validation failed: %v", err)
		atomic.AddInt64(&agentMetrics.failedRequests, 1)
		scanAPIRequests.WithLabelValues("auth_failed", "none").Inc()
		sendErrorResponse(w, "Authentication failed: "+err.Error(), http.StatusUnauthorized)
		return
	}

	if !client.Enabled {
		scanAPIRequests.WithLabelValues("auth_failed", "none").Inc()
		sendErrorResponse(w, "Client disabled", http.StatusForbidden)
		return
	}

	if !clientHasPermission(client, "scan") {
		log.Printf("❌ [Scan] Client %s lacks 'scan' permission", client.ID)
		scanAPIRequests.WithLabelValues("auth_failed", "none").Inc()
		sendErrorResponse(w, "Client lacks 'scan' permission", http.StatusForbidden)
		return
	}

	// Validate user token
	user, err := validateUserToken(req.UserToken, client.TenantID)
	if err != nil {
		log.Printf("❌ [Scan] User token validation failed: %v", err)
		atomic.AddInt64(&agentMetrics.failedRequests, 1)
		scanAPIRequests.WithLabelValues("auth_failed", "none").Inc()
		sendErrorResponse(w, "Invalid user token", http.StatusUnauthorized)
		return
	}

	// Verify tenant isolation
	if user.TenantID != client.TenantID {
		log.Printf("❌ [Scan] Tenant mismatch: user=%s, client=%s", user.TenantID, client.TenantID)
		scanAPIRequests.WithLabelValues("auth_failed", "none").Inc()
		sendErrorResponse(w, "Tenant mismatch", http.StatusForbidden)
		return
	}
	authMs := time.Since(authStart).Milliseconds()

	ctx := r.Context()
	middleware := detect.GetGlobalMiddleware()
	cfg := middleware.Config()
	mode := cfg.GetModeForScanType(scanType)

	// Run the analyzer, consulting the verdict cache first. Identical
	// payloads from the same tenant are common (retry storms, templated
	// traffic), and cached verdicts skip the tokenizer entirely.
	scanStart := time.Now()
	var result *detect.ScanResult
	cached := false

	if entry, ok := lookupVerdictCache(ctx, client.TenantID, cfg.Engine, scanType, req.Input); ok {
		result = entry.toScanResult(scanType, cfg.Engine, mode)
		cached = true
		verdictCacheLookups.WithLabelValues("hit").Inc()
	} else {
		verdictCacheLookups.WithLabelValues("miss").Inc()

		result, err = middleware.ScanValue(ctx, req.Input, scanType)
		if err != nil {
			log.Printf("❌ [Scan] Analyzer failure: %v", err)
			if agentMetrics != nil {
				atomic.AddInt64(&agentMetrics.failedRequests, 1)
				agentMetrics.recordError()
			}
			scanAPIRequests.WithLabelValues("error", "none").Inc()
			promErrorsTotal.Inc()
			sendErrorResponse(w, "Scan failed: "+err.Error(), http.StatusInternalServerError)
			return
		}

		storeVerdictCache(ctx, client.TenantID, req.Input, result)
	}
	scanMs := time.Since(scanStart).Milliseconds()

	// Emit the enriched detection event (nil for clean results)
	if event := detect.NewDetectionEvent(result, "api"); event != nil {
		event.WithUserContext(strconv.Itoa(user.ID), client.ID, client.TenantID).
			WithRequestID(requestID)
		detect.EmitDetectionEvent(event)
	}

	// Record metrics
	latencyMs := time.Since(startTime).Milliseconds()
	errored := result.Verdict == injection.ResultError

	promScansTotal.Inc()
	promScanDuration.WithLabelValues(string(scanType)).Observe(float64(scanMs))
	scanAPIDuration.Observe(float64(latencyMs))
	if result.Blocked {
		promBlockedTotal.Inc()
	}
	if errored {
		promErrorsTotal.Inc()
	}

	if agentMetrics != nil {
		atomic.AddInt64(&agentMetrics.successRequests, 1)
		if result.Detected {
			atomic.AddInt64(&agentMetrics.detectedRequests, 1)
		}
		if result.Blocked {
			atomic.AddInt64(&agentMetrics.blockedRequests, 1)
		}
		agentMetrics.recordSuccess()
		agentMetrics.recordLatency(latencyMs)
		agentMetrics.recordStageTimings(authMs, scanMs)
		agentMetrics.recordScanTypeMetrics(string(scanType), scanMs, result.Detected, result.Blocked, errored)
		agentMetrics.recordCategory(string(result.Category))
	}

	// Build response
	response := ScanResponse{
		RequestID:   requestID,
		Detected:    result.Detected,
		Blocked:     result.Blocked,
		Verdict:     int(result.Verdict),
		Fingerprint: result.Fingerprint,
		Pattern:     result.Pattern,
		Category:    string(result.Category),
		Engine:      string(result.Engine),
		Mode:        string(result.Mode),
		Truncated:   result.Truncated,
		Cached:      cached,
		DurationMs:  latencyMs,
	}
	if result.Detected {
		response.Severity = detect.CategorySeverity(result.Category)
	}
	if result.Blocked {
		response.BlockReason = "injection payload detected: " + string(result.Category)
	}

	// Rate limit status for SDK backoff logic
	if client.RateLimit > 0 {
		if count, resetAt, rlErr := getRateLimitStatusRedis(ctx, req.ClientID); rlErr == nil {
			remaining := client.RateLimit - count
			if remaining < 0 {
				remaining = 0
			}
			response.RateLimit = &RateLimitInfo{
				Limit:     client.RateLimit,
				Remaining: remaining,
				ResetAt:   resetAt,
			}
		}
	}

	status := "success"
	statusCode := http.StatusOK
	if result.Blocked {
		status = "blocked"
		statusCode = http.StatusForbidden
	}
	scanAPIRequests.WithLabelValues(status, result.Verdict.String()).Inc()
	promRequestsTotal.WithLabelValues(status).Inc()

	// Meter the scan for hosted billing. The recorder logs its own failures,
	// and Community builds record nothing.
	if usageRecorder != nil {
		event := usage.ScanEvent{
			TenantID:       client.TenantID,
			ClientID:       client.ID,
			InstanceID:     instanceID,
			LicenseTier:    client.LicenseTier,
			ScanType:       string(scanType),
			Engine:         string(result.Engine),
			Verdict:        result.Verdict.String(),
			Blocked:        result.Blocked,
			InputBytes:     len(req.Input),
			LatencyMs:      latencyMs,
			HTTPStatusCode: statusCode,
		}
		go func() { _ = usageRecorder.RecordScan(event) }()
	}

	log.Printf("✅ [Scan] Completed in %dms - requestID=%s, verdict=%s, blocked=%v, cached=%v",
		latencyMs, requestID, result.Verdict, result.Blocked, cached)

	// Send response. Blocked scans return 403 with the full verdict body
	// so the SDK can surface the category without a second call.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("❌ [Scan] Failed to encode response: %v", err)
	}
}

// handleFingerprint handles POST /api/fingerprint
// Returns the SQL token fingerprint and folded token window for an input.
// Used for tuning and for explaining why a payload matched.
func handleFingerprint(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	// Parse request
	var req FingerprintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ [Fingerprint] Invalid request body: %v", err)
		fingerprintAPIRequests.WithLabelValues("error").Inc()
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ClientID == "" {
		log.Printf("❌ [Fingerprint] Missing required field: client_id")
		fingerprintAPIRequests.WithLabelValues("error").Inc()
		sendErrorResponse(w, "client_id field is required", http.StatusBadRequest)
		return
	}

	// Authenticate the client
	client, err := authenticateScanClient(r, req.ClientID)
	if err != nil {
		log.Printf("❌ [Fingerprint] Client validation failed: %v", err)
		fingerprintAPIRequests.WithLabelValues("auth_failed").Inc()
		sendErrorResponse(w, "Authentication failed: "+err.Error(), http.StatusUnauthorized)
		return
	}

	if !clientHasPermission(client, "fingerprint") {
		log.Printf("❌ [Fingerprint] Client %s lacks 'fingerprint' permission", client.ID)
		fingerprintAPIRequests.WithLabelValues("auth_failed").Inc()
		sendErrorResponse(w, "Client lacks 'fingerprint' permission", http.StatusForbidden)
		return
	}

	// Run the SQL analyzer directly. The diagnostic surface exposes the
	// raw fingerprint regardless of the configured engine or mode.
	state, err := sqli.NewState(req.Input, sqli.FlagNone)
	if err != nil {
		if errors.Is(err, sqli.ErrInputTooLarge) {
			fingerprintAPIRequests.WithLabelValues("error").Inc()
			sendErrorResponse(w, "Input exceeds maximum scan length", http.StatusRequestEntityTooLarge)
			return
		}
		fingerprintAPIRequests.WithLabelValues("error").Inc()
		sendErrorResponse(w, "Analyzer failure: "+err.Error(), http.StatusInternalServerError)
		return
	}

	verdict := state.Run()

	response := FingerprintResponse{
		RequestID:   uuid.New().String(),
		Verdict:     int(verdict),
		Matched:     verdict == injection.ResultMatch,
		Fingerprint: state.Fingerprint(),
		DurationMs:  time.Since(startTime).Milliseconds(),
	}
	for _, tok := range state.Tokens() {
		response.Tokens = append(response.Tokens, FingerprintToken{
			Kind:  string(rune(tok.Kind)),
			Value: tok.Val,
			Pos:   tok.Pos,
		})
	}

	fingerprintAPIRequests.WithLabelValues("success").Inc()
	log.Printf("✅ [Fingerprint] Completed in %dms - verdict=%s, fingerprint=%q",
		response.DurationMs, verdict, response.Fingerprint)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("❌ [Fingerprint] Failed to encode response: %v", err)
	}
}

// sinkEventFromDetection converts a detection event to the sink wire form
func sinkEventFromDetection(event *detect.DetectionEvent) sinks.Event {
	return sinks.Event{
		ID:          event.EventID,
		Timestamp:   event.Timestamp,
		TenantID:    event.TenantID,
		ClientID:    event.ClientID,
		Verdict:     event.Verdict.String(),
		Fingerprint: event.Fingerprint,
		Category:    string(event.Category),
		Severity:    event.Severity,
		Excerpt:     event.InputSnippet,
		Metadata: map[string]interface{}{
			"type":          event.Type,
			"source":        event.Source,
			"scan_type":     string(event.ScanType),
			"pattern":       event.Pattern,
			"engine":        string(event.Engine),
			"mode":          string(event.Mode),
			"blocked":       event.Blocked,
			"scan_duration": event.ScanDuration.String(),
			"request_id":    event.RequestID,
			"user_id":       event.UserID,
		},
	}
}

// queueDetectionEvent routes one detection event into the audit queue.
// Blocked events take the compliance lane, monitored detections batch.
// Wired as the detect package's audit callback during initialization.
func queueDetectionEvent(event *detect.DetectionEvent) {
	if event == nil {
		return
	}
	if auditQueue == nil {
		log.Printf("⚠️ [Audit] No audit queue - detection event %s dropped", event.EventID)
		return
	}

	sinkEvent := sinkEventFromDetection(event)

	lane := "detection"
	var err error
	if event.Blocked {
		lane = "blocked"
		err = auditQueue.LogBlocked(sinkEvent)
	} else {
		err = auditQueue.LogDetection(sinkEvent)
	}

	if err != nil {
		log.Printf("⚠️ [Audit] Failed to queue %s event: %v", lane, err)
		auditEventsQueued.WithLabelValues(lane, "error").Inc()
		return
	}
	auditEventsQueued.WithLabelValues(lane, "success").Inc()
}
