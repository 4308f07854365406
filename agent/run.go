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
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"injectguard/platform/agent/detect"
	"injectguard/platform/agent/license"
	"injectguard/platform/shared/types"
	"injectguard/platform/shared/usage"
	"injectguard/platform/sinks"
)

// InjectGuard Agent - Authentication, Rate Limiting & Injection Scanning Service
// This service fronts the detection engines for clients that cannot embed them

// Configuration
var (
	jwtSecret     = []byte(os.Getenv("JWT_SECRET"))
	authDB        *sql.DB         // Database for registered-client authentication
	sinkRegistry  *sinks.Registry // Detection-event delivery backends
	auditQueue    *AuditQueue     // Async audit pipeline draining into sinkRegistry
	usageRecorder *usage.Recorder // Scan metering for hosted billing (nil when unmetered)
	instanceID    string          // INSTANCE_ID stamped on usage events
)

// Prometheus metrics
var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "injectguard_agent_requests_total",
			Help: "Total number of requests processed by the agent",
		},
		[]string{"status"},
	)
	promScanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "injectguard_agent_scan_duration_milliseconds",
			Help:    "Scan duration in milliseconds",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
		},
		[]string{"type"},
	)
	promScansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "injectguard_agent_scans_total",
			Help: "Total number of payload scans executed",
		},
	)
	promBlockedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "injectguard_agent_blocked_total",
			Help: "Total number of blocked requests",
		},
	)
	promErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "injectguard_agent_errors_total",
			Help: "Total number of analyzer errors",
		},
	)
)

func init() {
	// Register Prometheus metrics
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promScanDuration)
	prometheus.MustRegister(promScansTotal)
	prometheus.MustRegister(promBlockedTotal)
	prometheus.MustRegister(promErrorsTotal)
}

// AgentMetrics tracks real performance metrics
type AgentMetrics struct {
	mu sync.RWMutex

	// Request counters
	totalRequests    int64
	successRequests  int64
	failedRequests   int64
	blockedRequests  int64
	detectedRequests int64

	// Latency tracking (in milliseconds)
	lastLatencies []int64 // Keep last 1000 for percentile calculation

	// Throughput
	startTime     time.Time
	lastResetTime time.Time

	// Per-stage timing metrics (in milliseconds)
	authTimings []int64 // Client + user validation + tenant check
	scanTimings []int64 // Analyzer evaluation only

	// Scan type breakdown (query, body, header, param)
	scanTypeCounters map[string]*ScanTypeMetrics

	// Payload category counters (union_based, script_markup, ...)
	categoryCounters map[string]int64

	// Error tracking for error rate calculation
	errorTimestamps []time.Time // Track recent error timestamps for rate calculation

	// Health status tracking
	healthCheckPassed bool
	consecutiveErrors int64
}

// ScanTypeMetrics tracks metrics per scan type (query, body, header, param)
type ScanTypeMetrics struct {
	TotalScans    int64
	CleanScans    int64
	DetectedScans int64
	BlockedScans  int64
	ErrorScans    int64
	Latencies     []int64 // Last 1000 latencies in ms
}

// Global metrics instance
var agentMetrics *AgentMetrics

// Client represents a registered client application
type Client struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	OrgID         string    `json:"org_id"` // Organization ID from the signed license
	TenantID      string    `json:"tenant_id"`
	Permissions   []string  `json:"permissions"`
	RateLimit     int       `json:"rate_limit"`
	Enabled       bool      `json:"enabled"`
	LicenseTier   string    `json:"license_tier,omitempty"`
	LicenseExpiry time.Time `json:"license_expiry,omitempty"`
	ServiceName   string    `json:"service_name,omitempty"` // For V2 service licenses
}

// User represents authenticated user information
type User struct {
	ID          int      `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	TenantID    string   `json:"tenant_id"`
}

// recordLatency adds a latency measurement to the rolling window
func (m *AgentMetrics) recordLatency(latencyMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Keep only last 1000 entries for percentile calculation
	if len(m.lastLatencies) >= 1000 {
		m.lastLatencies = m.lastLatencies[1:]
	}
	m.lastLatencies = append(m.lastLatencies, latencyMs)
}

// recordStageTimings records per-stage timings for a completed request
func (m *AgentMetrics) recordStageTimings(authMs, scanMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.authTimings) >= 1000 {
		m.authTimings = m.authTimings[1:]
	}
	m.authTimings = append(m.authTimings, authMs)

	if len(m.scanTimings) >= 1000 {
		m.scanTimings = m.scanTimings[1:]
	}
	m.scanTimings = append(m.scanTimings, scanMs)
}

// recordError records an error timestamp for error rate calculation
func (m *AgentMetrics) recordError() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errorTimestamps = append(m.errorTimestamps, time.Now())

	// Keep only last 1000 error timestamps
	if len(m.errorTimestamps) > 1000 {
		m.errorTimestamps = m.errorTimestamps[len(m.errorTimestamps)-1000:]
	}

	// Update consecutive error tracking
	m.consecutiveErrors++
}

// recordSuccess resets consecutive error counter
func (m *AgentMetrics) recordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consecutiveErrors = 0
}

// recordScanTypeMetrics records metrics for a specific scan type
func (m *AgentMetrics) recordScanTypeMetrics(scanType string, latencyMs int64, detected, blocked, errored bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scanTypeCounters == nil {
		m.scanTypeCounters = make(map[string]*ScanTypeMetrics)
	}

	if _, exists := m.scanTypeCounters[scanType]; !exists {
		m.scanTypeCounters[scanType] = &ScanTypeMetrics{
			Latencies: make([]int64, 0, 1000),
		}
	}

	stm := m.scanTypeCounters[scanType]
	stm.TotalScans++

	switch {
	case errored:
		stm.ErrorScans++
	case blocked:
		stm.BlockedScans++
	case detected:
		stm.DetectedScans++
	default:
		stm.CleanScans++
	}

	// Record latency
	stm.Latencies = append(stm.Latencies, latencyMs)
	if len(stm.Latencies) > 1000 {
		stm.Latencies = stm.Latencies[1:]
	}
}

// recordCategory counts a detected payload category
func (m *AgentMetrics) recordCategory(category string) {
	if category == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.categoryCounters == nil {
		m.categoryCounters = make(map[string]int64)
	}
	m.categoryCounters[category]++
}

// getScanTypeMetrics returns a map of scan type metrics for export
func (m *AgentMetrics) getScanTypeMetrics() map[string]map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]map[string]interface{})

	for name, stm := range m.scanTypeCounters {
		detectionRate := float64(0)
		if stm.TotalScans > 0 {
			detectionRate = float64(stm.DetectedScans+stm.BlockedScans) * 100.0 / float64(stm.TotalScans)
		}

		result[name] = map[string]interface{}{
			"total_scans":    stm.TotalScans,
			"clean_scans":    stm.CleanScans,
			"detected_scans": stm.DetectedScans,
			"blocked_scans":  stm.BlockedScans,
			"error_scans":    stm.ErrorScans,
			"detection_rate": detectionRate,
			"p50_ms":         calculateP50(stm.Latencies),
			"p95_ms":         calculateP95(stm.Latencies),
			"p99_ms":         calculateP99(stm.Latencies),
			"avg_ms":         calculateAverage(stm.Latencies),
		}
	}

	return result
}

// getCategoryCounts returns a copy of the payload category counters
func (m *AgentMetrics) getCategoryCounts() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]int64, len(m.categoryCounters))
	for name, count := range m.categoryCounters {
		result[name] = count
	}
	return result
}

// Application readiness state for health checks
// This allows the health endpoint to respond immediately while initialization happens
var appReady atomic.Bool

// Global router and server - allows health checks to pass immediately while initialization happens
var (
	globalRouter *mux.Router
	globalCORS   *cors.Cors
)

// initServerImmediately starts the HTTP server immediately with just /health endpoint.
// This allows ECS/ALB health checks to pass during the potentially slow initialization
// phase (database connections, Redis, sink backends). Other routes are added
// after initialization completes. The server NEVER shuts down - eliminating any
// transition gaps that could cause health check failures.
func initServerImmediately(port string) {
	globalRouter = mux.NewRouter()

	// CORS middleware - configured once, used for all requests
	globalCORS = cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	// Register health check immediately - responds even during initialization
	globalRouter.HandleFunc("/health", readinessAwareHealthHandler).Methods("GET")

	// Start server immediately in goroutine - health checks will pass right away
	go func() {
		handler := globalCORS.Handler(globalRouter)
		log.Printf("🚀 InjectGuard Agent starting on port %s (status: starting)", port)
		if err := http.ListenAndServe(":"+port, handler); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Small delay to ensure server is ready to accept connections
	time.Sleep(50 * time.Millisecond)
	log.Println("✅ Health endpoint ready - initialization can proceed safely")
}

// readinessAwareHealthHandler returns health status based on initialization state
func readinessAwareHealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status := "starting"
	if appReady.Load() {
		status = "healthy"
	}
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"service":   "injectguard-agent",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}); err != nil {
		log.Printf("Error encoding health response: %v", err)
	}
}

// Run is the exported entry point for the agent service.
//
// Initialization order matters: the health server starts first, then the
// slow dependencies (database, Redis, sink backends), then the detection
// middleware, and only after routes are registered does /health flip to
// "healthy".
func Run() {
	// Start server IMMEDIATELY with /health endpoint so ECS/ALB health checks pass
	// during initialization. Other routes are added after initialization completes.
	// The server NEVER shuts down - eliminating transition gaps.
	port := getEnv("PORT", "8080")
	initServerImmediately(port)

	// License validation (optional for central agent deployments and self-hosted mode)
	// Central agents validate CLIENT license keys during request processing
	// Self-hosted mode skips license validation entirely (for OSS/local development)
	deployment := types.ModeFromEnv()
	licenseKey := os.Getenv("INJECTGUARD_LICENSE_KEY")

	if err := license.ValidateHMACSecretAtStartup(); err != nil {
		log.Printf("⚠️  %v", err)
	}

	if deployment.IsSelfHosted() {
		log.Println("🏠 SELF_HOSTED_MODE enabled - skipping license validation")
		log.Println("   Perfect for OSS contributors and local development")
	} else if licenseKey == "" {
		log.Println("⚠️  INJECTGUARD_LICENSE_KEY not set - running in central agent mode")
		log.Println("   Central agents validate client license keys during request processing")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		result, err := license.ValidateWithRetry(ctx, licenseKey, 3)
		if err != nil {
			log.Fatalf("License validation failed: %v", err)
		}

		if !result.Valid {
			log.Fatalf("Invalid license: %s (error: %s)", result.Message, result.Error)
		}

		log.Printf("✅ License validated successfully")
		log.Printf("   Tier: %s", result.Tier)
		log.Printf("   Expires: %s", result.ExpiresAt.Format("2006-01-02"))

		if result.DaysUntilExpiry <= 30 {
			log.Printf("   ⚠️  License expires in %d days - contact sales for renewal", result.DaysUntilExpiry)
		}
	}

	// Initialize metrics with all tracking structures
	agentMetrics = &AgentMetrics{
		lastLatencies:     make([]int64, 0, 1000),
		authTimings:       make([]int64, 0, 1000),
		scanTimings:       make([]int64, 0, 1000),
		scanTypeCounters:  make(map[string]*ScanTypeMetrics),
		categoryCounters:  make(map[string]int64),
		errorTimestamps:   make([]time.Time, 0, 1000),
		startTime:         time.Now(),
		lastResetTime:     time.Now(),
		healthCheckPassed: true,
	}
	// Note: mu (sync.RWMutex) is automatically initialized to zero value (unlocked state)

	// Build connection string from separate env vars (12-Factor App methodology)
	// URI format requires URL encoding for password with special characters
	dbHost := os.Getenv("DATABASE_HOST")
	dbPort := os.Getenv("DATABASE_PORT")
	dbName := os.Getenv("DATABASE_NAME")
	dbUser := os.Getenv("DATABASE_USER")
	dbPassword := os.Getenv("DATABASE_PASSWORD")
	dbSSLMode := os.Getenv("DATABASE_SSLMODE")

	// Fallback: Support legacy DATABASE_URL for backward compatibility
	dbURL := os.Getenv("DATABASE_URL")
	if dbHost != "" && dbPassword != "" {
		if dbPort == "" {
			dbPort = "5432"
		}
		if dbName == "" {
			dbName = "injectguard"
		}
		if dbUser == "" {
			dbUser = "injectguard_app"
		}
		if dbSSLMode == "" {
			dbSSLMode = "require"
		}
		// URL-encode password to handle special characters in URI format
		dbURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			url.QueryEscape(dbUser), url.QueryEscape(dbPassword), dbHost, dbPort, dbName, dbSSLMode)
		log.Println("✅ Built database connection string from separate env vars (12-Factor App)")
	}

	// Registered-client authentication database (whitelist fallback without it)
	if dbURL != "" {
		// Retry is needed because Docker DNS takes a few seconds to initialize
		// after container startup. Without retry, hostname resolution fails immediately.
		maxRetries := 5
		var err error

		for attempt := 1; attempt <= maxRetries; attempt++ {
			authDB, err = sql.Open("postgres", dbURL)
			if err == nil {
				err = authDB.Ping()
				if err == nil {
					log.Printf("✅ Authentication database connected (attempt %d/%d)", attempt, maxRetries)
					break
				}
			}

			if attempt < maxRetries {
				backoff := time.Duration(attempt*2) * time.Second
				log.Printf("⚠️  Database connection failed (attempt %d/%d): %v", attempt, maxRetries, err)
				log.Printf("   Retrying in %v... (Docker DNS may still be initializing)", backoff)
				time.Sleep(backoff)
			}
		}

		if err != nil {
			log.Printf("❌ Failed to connect to database after %d attempts: %v", maxRetries, err)
			log.Println("   Falling back to whitelist authentication")
			authDB = nil
		} else {
			defer func() { _ = authDB.Close() }()
		}
	} else {
		log.Println("ℹ️  DATABASE_URL not set - using whitelist authentication")
	}

	// Hosted deployments meter scans for billing. Community builds compile
	// the recorder methods to no-ops, so recording is always safe to call.
	if deployment.IsHosted() && authDB != nil {
		usageRecorder = usage.NewRecorder(authDB)
		instanceID = os.Getenv("INSTANCE_ID")
		log.Println("✅ Usage metering enabled")
	}

	// Initialize Redis for distributed rate limiting and the verdict cache
	redisURL := os.Getenv("REDIS_URL")
	if redisURL != "" {
		if err := initRedis(redisURL); err != nil {
			log.Printf("Warning: Failed to initialize Redis: %v", err)
			log.Println("Falling back to in-memory rate limiting (verdict cache disabled)")
		} else {
			log.Println("✅ Redis rate limiting and verdict cache enabled")
			defer func() {
				if err := closeRedis(); err != nil {
					log.Printf("Error closing Redis: %v", err)
				}
			}()
		}
	} else {
		log.Println("ℹ️  REDIS_URL not set - using in-memory rate limiting")
	}

	// Open detection-event sinks
	sinkRegistry = sinks.NewRegistry()
	if err := openConfiguredSinks(context.Background()); err != nil {
		log.Printf("⚠️  Sink initialization failed: %v", err)
		log.Println("   Detections will be written to the audit fallback file only")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sinkRegistry.CloseAll(ctx); err != nil {
			log.Printf("Error closing sinks: %v", err)
		}
	}()

	// Audit queue drains detection events into the sinks
	auditMode := AuditMode(getEnv("AUDIT_MODE", string(AuditModePerformance)))
	var err error
	auditQueue, err = NewAuditQueue(
		auditMode,
		getEnvInt("AUDIT_QUEUE_SIZE", 1000),
		getEnvInt("AUDIT_WORKERS", 2),
		sinkRegistry,
		getEnv("AUDIT_FALLBACK_PATH", "/var/log/injectguard/audit_fallback.jsonl"),
	)
	if err != nil {
		log.Fatalf("❌ Failed to initialize audit queue: %v", err)
	}
	log.Printf("✅ Audit queue started (mode=%s)", auditMode)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := auditQueue.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down audit queue: %v", err)
		}
	}()

	// Initialize the detection middleware from environment configuration.
	// Middleware-level audit emission is off: the scan handlers emit
	// enriched events (client, tenant, user, request ID) themselves.
	detectCfg := detect.ConfigFromEnv()
	detectCfg.AuditTrailEnabled = false
	if err := detect.InitGlobalMiddleware(detectCfg); err != nil {
		log.Fatalf("❌ Failed to initialize detection middleware: %v", err)
	}
	log.Printf("✅ Detection middleware ready (engine=%s, mode=%s)", detectCfg.Engine, detectCfg.Mode)

	// Route detection events into the audit queue
	detect.SetAuditCallback(queueDetectionEvent)

	// Register all routes on the global router (server is already running with /health)
	// /health was registered in initServerImmediately() - now add all other routes

	// Metrics endpoint for real performance data (JSON format)
	globalRouter.HandleFunc("/metrics", metricsHandler).Methods("GET")

	// Prometheus metrics endpoint (Prometheus exposition format)
	globalRouter.Handle("/prometheus", promhttp.Handler()).Methods("GET")

	// Scan endpoints - all payload inspection flows through here
	globalRouter.HandleFunc("/api/scan", handleScan).Methods("POST")
	globalRouter.HandleFunc("/api/fingerprint", handleFingerprint).Methods("POST")
	globalRouter.HandleFunc("/api/patterns/test", handlePatternTest).Methods("POST")

	// Client management endpoints
	globalRouter.HandleFunc("/api/clients", listClientsHandler).Methods("GET")
	globalRouter.HandleFunc("/api/ratelimit/{client_id}", rateLimitStatusHandler).Methods("GET")

	// Mark application as ready - /health will now return "healthy"
	appReady.Store(true)
	log.Println("✅ All initialization complete - application ready")
	log.Printf("🚀 InjectGuard Agent fully operational on port %s", port)

	// Block forever - server is running in goroutine, nothing else to do
	select {}
}

// openConfiguredSinks connects the detection-event backends. Without a
// config file a local JSONL file sink is opened so detections are never
// dropped on the floor.
func openConfiguredSinks(ctx context.Context) error {
	configPath := os.Getenv("SINK_CONFIG_FILE")
	if configPath == "" {
		filePath := getEnv("SINK_FILE_PATH", "/var/log/injectguard/detections.jsonl")
		cfg := &sinks.Config{
			Name: "local-file",
			Type: "file",
			URL:  "file://" + filePath,
		}
		if _, err := sinkRegistry.Open(ctx, cfg); err != nil {
			return fmt.Errorf("failed to open default file sink: %w", err)
		}
		log.Printf("ℹ️  SINK_CONFIG_FILE not set - detections written to %s", filePath)
		return nil
	}

	secrets, err := buildSecretsManager(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize secrets manager: %w", err)
	}

	loader, err := sinks.NewConfigLoader(configPath, secrets)
	if err != nil {
		return fmt.Errorf("failed to load sink config: %w", err)
	}

	configs, err := loader.Sinks(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve sink configs: %w", err)
	}

	opened := 0
	for _, cfg := range configs {
		if _, err := sinkRegistry.Open(ctx, cfg); err != nil {
			log.Printf("⚠️  Failed to open sink '%s' (%s): %v", cfg.Name, cfg.Type, err)
			continue
		}
		log.Printf("✅ Sink '%s' (%s) connected", cfg.Name, cfg.Type)
		opened++
	}

	if opened == 0 {
		return fmt.Errorf("no sinks could be opened from %s", configPath)
	}
	return nil
}

// buildSecretsManager picks the credential source for sink configs.
// AWS Secrets Manager for hosted deployments, env vars otherwise.
func buildSecretsManager(ctx context.Context) (sinks.SecretsManager, error) {
	switch strings.ToLower(getEnv("SINK_SECRETS_PROVIDER", "env")) {
	case "aws":
		return sinks.NewAWSSecretsManager(ctx, sinks.AWSSecretsManagerOptions{
			Region: os.Getenv("AWS_REGION"),
		})
	case "local":
		return sinks.NewLocalSecretsManager(), nil
	default:
		return sinks.NewEnvSecretsManager(nil), nil
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"service":   "injectguard-agent",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}); err != nil {
		log.Printf("Error encoding health response: %v", err)
	}
}

// listClientsHandler lists registered clients. Database-backed when
// available, whitelist otherwise. License keys are never included.
func listClientsHandler(w http.ResponseWriter, r *http.Request) {
	if authDB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		clients, err := listClientsDB(ctx, authDB)
		if err != nil {
			sendErrorResponse(w, "Failed to list clients: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(clients); err != nil {
			log.Printf("Error encoding clients response: %v", err)
		}
		return
	}

	clients := make([]Client, 0, len(knownClients))
	for _, auth := range knownClients {
		clients = append(clients, Client{
			ID:          auth.ClientID,
			Name:        auth.Name,
			TenantID:    auth.TenantID,
			Permissions: auth.Permissions,
			RateLimit:   auth.RateLimit,
			Enabled:     auth.Enabled,
		})
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(clients); err != nil {
		log.Printf("Error encoding clients response: %v", err)
	}
}

// rateLimitStatusHandler reports the current rate-limit window for a client
func rateLimitStatusHandler(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["client_id"]
	if clientID == "" {
		sendErrorResponse(w, "client_id required", http.StatusBadRequest)
		return
	}

	limit := 0
	if auth, ok := knownClients[clientID]; ok {
		limit = auth.RateLimit
	}

	backend := "memory"
	if redisClient != nil {
		backend = "redis"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	count, resetTime, err := getRateLimitStatusRedis(ctx, clientID)
	if err != nil {
		sendErrorResponse(w, "Rate limit status unavailable: "+err.Error(), http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"client_id": clientID,
		"count":     count,
		"limit":     limit,
		"backend":   backend,
		"timestamp": time.Now().UTC(),
	}
	if !resetTime.IsZero() {
		response["reset_at"] = resetTime
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error encoding rate limit response: %v", err)
	}
}

// metricsHandler returns real-time performance metrics
func metricsHandler(w http.ResponseWriter, r *http.Request) {
	// Safety check for nil metrics
	if agentMetrics == nil {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"error":     "Metrics not initialized",
			"timestamp": time.Now().UTC(),
		}); err != nil {
			log.Printf("Error encoding metrics error response: %v", err)
		}
		return
	}

	agentMetrics.mu.RLock()

	// Calculate metrics
	uptime := time.Since(agentMetrics.startTime).Seconds()
	totalReqs := atomic.LoadInt64(&agentMetrics.totalRequests)
	successReqs := atomic.LoadInt64(&agentMetrics.successRequests)
	failedReqs := atomic.LoadInt64(&agentMetrics.failedRequests)
	blockedReqs := atomic.LoadInt64(&agentMetrics.blockedRequests)
	detectedReqs := atomic.LoadInt64(&agentMetrics.detectedRequests)

	// Calculate RPS
	rps := float64(0)
	if uptime > 0 {
		rps = float64(totalReqs) / uptime
	}

	// Overall latency percentiles
	overallP50 := calculateP50(agentMetrics.lastLatencies)
	overallP95 := calculateP95(agentMetrics.lastLatencies)
	overallP99 := calculateP99(agentMetrics.lastLatencies)
	avgLatency := calculateAverage(agentMetrics.lastLatencies)

	// Per-stage authentication metrics
	authP50 := calculateP50(agentMetrics.authTimings)
	authP95 := calculateP95(agentMetrics.authTimings)
	authP99 := calculateP99(agentMetrics.authTimings)
	authAvg := calculateAverage(agentMetrics.authTimings)

	// Per-stage analyzer metrics
	scanP50 := calculateP50(agentMetrics.scanTimings)
	scanP95 := calculateP95(agentMetrics.scanTimings)
	scanP99 := calculateP99(agentMetrics.scanTimings)
	scanAvg := calculateAverage(agentMetrics.scanTimings)

	// Calculate error rate (errors per second over last 60 seconds)
	errorRate := calculateErrorRate(agentMetrics.errorTimestamps)

	// Success rate
	successRate := float64(100.0)
	if totalReqs > 0 {
		successRate = float64(successReqs) * 100.0 / float64(totalReqs)
	}

	// Health status determination
	isHealthy := true
	healthStatus := "healthy"
	if agentMetrics.consecutiveErrors > 5 {
		isHealthy = false
		healthStatus = "degraded"
	}
	if agentMetrics.consecutiveErrors > 10 {
		healthStatus = "unhealthy"
	}
	consecutiveErrors := agentMetrics.consecutiveErrors

	// Release read lock before calling methods that acquire their own locks
	agentMetrics.mu.RUnlock()

	// These methods acquire their own locks
	scanTypeMetrics := agentMetrics.getScanTypeMetrics()
	categoryCounts := agentMetrics.getCategoryCounts()

	cacheHits, cacheMisses := verdictCacheStats()

	var auditStats map[string]interface{}
	if auditQueue != nil {
		auditStats = auditQueue.GetStats()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"agent_metrics": map[string]interface{}{
			// Core counters
			"uptime_seconds":    uptime,
			"total_requests":    totalReqs,
			"success_requests":  successReqs,
			"failed_requests":   failedReqs,
			"blocked_requests":  blockedReqs,
			"detected_requests": detectedReqs,
			"success_rate":      successRate,
			"rps":               rps,

			// Error rate (for dashboard error rate panel)
			"error_rate_per_sec": errorRate,

			// Overall latency percentiles
			"p50_ms":         overallP50,
			"p95_ms":         overallP95,
			"p99_ms":         overallP99,
			"avg_latency_ms": avgLatency,

			// Per-stage authentication metrics
			"auth_p50_ms": authP50,
			"auth_p95_ms": authP95,
			"auth_p99_ms": authP99,
			"auth_avg_ms": authAvg,

			// Per-stage analyzer metrics
			"scan_p50_ms": scanP50,
			"scan_p95_ms": scanP95,
			"scan_p99_ms": scanP99,
			"scan_avg_ms": scanAvg,
		},

		// Health status (for dashboard health panel)
		"health": map[string]interface{}{
			"status":             healthStatus,
			"healthy":            isHealthy,
			"consecutive_errors": consecutiveErrors,
			"up":                 1, // Always 1 if responding (for Prometheus up metric)
		},

		// Scan type breakdown (query, body, header, param)
		"scan_types": scanTypeMetrics,

		// Payload category counters
		"categories": categoryCounts,

		// Redis verdict cache effectiveness
		"verdict_cache": map[string]interface{}{
			"hits":   cacheHits,
			"misses": cacheMisses,
		},

		// Audit pipeline state
		"audit_queue": auditStats,

		"timestamp": time.Now().UTC(),
	}); err != nil {
		log.Printf("Error encoding metrics response: %v", err)
	}
}

// Utility functions
func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	}); err != nil {
		log.Printf("Error encoding error response: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("⚠️  Invalid %s=%q - using default %d", key, value, defaultValue)
	}
	return defaultValue
}

// Helper function to calculate P99
func calculateP99(latencies []int64) float64 {
	return calculatePercentile(latencies, 0.99)
}

// Helper function to calculate average
func calculateAverage(latencies []int64) float64 {
	if len(latencies) == 0 {
		return 0
	}

	var sum int64
	for _, lat := range latencies {
		sum += lat
	}

	// Return average in milliseconds
	return float64(sum) / float64(len(latencies))
}

// calculatePercentile calculates any percentile from latencies
func calculatePercentile(latencies []int64, percentile float64) float64 {
	if len(latencies) == 0 {
		return 0
	}

	// Make a copy to avoid modifying original
	sorted := make([]int64, len(latencies))
	copy(sorted, latencies)

	// Simple sort (use sort package for larger arrays in future)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[i] > sorted[j] {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	// Calculate index for given percentile
	idx := int(float64(len(sorted)) * percentile)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return float64(sorted[idx])
}

// calculateP50 calculates the 50th percentile (median)
func calculateP50(latencies []int64) float64 {
	return calculatePercentile(latencies, 0.50)
}

// calculateP95 calculates the 95th percentile
func calculateP95(latencies []int64) float64 {
	return calculatePercentile(latencies, 0.95)
}

// calculateErrorRate calculates errors per second over the last minute
func calculateErrorRate(errorTimestamps []time.Time) float64 {
	if len(errorTimestamps) == 0 {
		return 0
	}

	// Count errors in last 60 seconds
	cutoff := time.Now().Add(-60 * time.Second)
	count := 0
	for _, ts := range errorTimestamps {
		if ts.After(cutoff) {
			count++
		}
	}

	// Return errors per second
	return float64(count) / 60.0
}

// maskString masks a string for logging (shows first 8 chars and last 4)
func maskString(s string) string {
	if s == "" {
		return "<empty>"
	}
	if len(s) <= 12 {
		return s[:4] + "***"
	}
	return s[:8] + "..." + s[len(s)-4:]
}

// truncateString truncates a string for logging
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
