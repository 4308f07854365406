package detect

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"injectguard/platform/injection"
)

// ScanningMiddleware provides injection scanning for gateway traffic.
// It sits in the request pipeline, applies per-scan-type policy on top
// of the configured scanner and keeps the counters the metrics
// endpoint reports.
type ScanningMiddleware struct {
	config  Config
	scanner Scanner
	mu      sync.RWMutex

	// Metrics
	scansTotal      int64
	detectionsTotal int64
	blockedTotal    int64
	errorsTotal     int64
}

// MiddlewareOption configures the ScanningMiddleware.
type MiddlewareOption func(*ScanningMiddleware)

// WithMiddlewareConfig sets the configuration.
func WithMiddlewareConfig(cfg Config) MiddlewareOption {
	return func(m *ScanningMiddleware) {
		m.config = cfg
	}
}

// WithMiddlewareScanner sets a custom scanner (useful for testing).
func WithMiddlewareScanner(s Scanner) MiddlewareOption {
	return func(m *ScanningMiddleware) {
		m.scanner = s
	}
}

// NewScanningMiddleware creates a new scanning middleware.
func NewScanningMiddleware(opts ...MiddlewareOption) (*ScanningMiddleware, error) {
	m := &ScanningMiddleware{
		config: DefaultConfig(),
	}

	for _, opt := range opts {
		opt(m)
	}

	// Validate configuration
	if err := m.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if m.scanner == nil {
		scanner, err := scannerFromConfig(m.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create scanner: %w", err)
		}
		m.scanner = scanner
	}

	return m, nil
}

// scannerFromConfig builds the scanner the config asks for, carrying
// the content limit and failure policy into the engine.
func scannerFromConfig(cfg Config) (Scanner, error) {
	if cfg.Mode == ModeOff {
		return NewNoopScanner(cfg.Mode), nil
	}

	switch cfg.Engine {
	case EngineFingerprint:
		return NewFingerprintScanner(cfg.Mode,
			WithMaxInputLength(cfg.MaxContentLength),
			WithFailClosed(cfg.FailClosed),
		), nil
	case EngineHeuristic:
		opts := []Option{WithMaxInputLength(cfg.MaxContentLength)}
		if len(cfg.CustomPatterns) > 0 {
			ps := NewPatternSet()
			for _, spec := range cfg.CustomPatterns {
				if _, err := ps.AddCustom(spec); err != nil {
					return nil, err
				}
			}
			opts = append(opts, WithPatternSet(ps))
		}
		return NewHeuristicScanner(cfg.Mode, opts...), nil
	default:
		return NewScanner(cfg.Engine, cfg.Mode)
	}
}

// ScanValue scans a single value. This is the path HTTP handlers use
// for individual fields.
func (m *ScanningMiddleware) ScanValue(ctx context.Context, value string, scanType ScanType) (*ScanResult, error) {
	m.mu.Lock()
	m.scansTotal++
	m.mu.Unlock()

	mode := m.config.GetModeForScanType(scanType)
	if mode == ModeOff || !m.config.IsScanTypeEnabled(scanType) {
		return &ScanResult{
			Detected: false,
			Verdict:  injection.ResultNoMatch,
			ScanType: scanType,
			Mode:     ModeOff,
		}, nil
	}

	result, err := m.scanner.Scan(ctx, value, scanType)
	if err != nil {
		return nil, err
	}

	// Per-scan-type mode overrides the scanner's blocking decision
	result.Blocked = result.Detected && mode == ModeEnforce
	m.recordResult(result, "value")

	return result, nil
}

// ScanRequestParams scans each decoded parameter value individually.
// First detection wins; remaining parameters are not scanned.
func (m *ScanningMiddleware) ScanRequestParams(ctx context.Context, source string, params map[string][]string) (*RequestScanResult, error) {
	start := time.Now()

	m.mu.Lock()
	m.scansTotal++
	m.mu.Unlock()

	mode := m.config.GetModeForScanType(ScanTypeParam)
	if mode == ModeOff || !m.config.IsScanTypeEnabled(ScanTypeParam) {
		return &RequestScanResult{
			Blocked:  false,
			Source:   source,
			Duration: time.Since(start),
		}, nil
	}

	for name, values := range params {
		for _, value := range values {
			result, err := m.scanner.Scan(ctx, value, ScanTypeParam)
			if err != nil {
				return nil, err
			}
			if !result.Detected && result.Verdict != injection.ResultError {
				continue
			}

			result.Blocked = result.Detected && mode == ModeEnforce
			m.recordResult(result, source)

			return &RequestScanResult{
				Detected:    result.Detected,
				Blocked:     result.Blocked,
				Fingerprint: result.Fingerprint,
				Pattern:     result.Pattern,
				Category:    result.Category,
				Param:       name,
				Source:      source,
				Duration:    time.Since(start),
				ScanResult:  result,
			}, nil
		}
	}

	return &RequestScanResult{
		Detected: false,
		Blocked:  false,
		Source:   source,
		Duration: time.Since(start),
	}, nil
}

// ScanBody scans a request body as one unit.
func (m *ScanningMiddleware) ScanBody(ctx context.Context, source string, body []byte) (*RequestScanResult, error) {
	start := time.Now()

	m.mu.Lock()
	m.scansTotal++
	m.mu.Unlock()

	mode := m.config.GetModeForScanType(ScanTypeBody)
	if mode == ModeOff || !m.config.IsScanTypeEnabled(ScanTypeBody) {
		return &RequestScanResult{
			Blocked:  false,
			Source:   source,
			Duration: time.Since(start),
		}, nil
	}

	result, err := m.scanner.Scan(ctx, string(body), ScanTypeBody)
	if err != nil {
		return nil, err
	}

	result.Blocked = result.Detected && mode == ModeEnforce
	m.recordResult(result, source)

	return &RequestScanResult{
		Detected:    result.Detected,
		Blocked:     result.Blocked,
		Fingerprint: result.Fingerprint,
		Pattern:     result.Pattern,
		Category:    result.Category,
		Source:      source,
		Duration:    time.Since(start),
		ScanResult:  result,
	}, nil
}

// recordResult updates counters, logs and emits the audit event for
// one scan outcome.
func (m *ScanningMiddleware) recordResult(result *ScanResult, source string) {
	if result.Verdict == injection.ResultError {
		m.mu.Lock()
		m.errorsTotal++
		m.mu.Unlock()
	}

	if !result.Detected {
		return
	}

	m.mu.Lock()
	m.detectionsTotal++
	if result.Blocked {
		m.blockedTotal++
	}
	m.mu.Unlock()

	if m.config.LogDetections {
		log.Printf("[detect] Detection in %s %s: category=%s fingerprint=%q pattern=%s blocked=%v",
			source, result.ScanType, result.Category, result.Fingerprint, result.Pattern, result.Blocked)
	}

	// Emit audit event for compliance
	if m.config.AuditTrailEnabled {
		EmitDetectionEvent(NewDetectionEvent(result, source))
	}
}

// GetMetrics returns current scanning metrics.
func (m *ScanningMiddleware) GetMetrics() MiddlewareMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MiddlewareMetrics{
		ScansTotal:      m.scansTotal,
		DetectionsTotal: m.detectionsTotal,
		BlockedTotal:    m.blockedTotal,
		ErrorsTotal:     m.errorsTotal,
	}
}

// ResetMetrics resets the metrics counters.
func (m *ScanningMiddleware) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scansTotal = 0
	m.detectionsTotal = 0
	m.blockedTotal = 0
	m.errorsTotal = 0
}

// Config returns a copy of the active configuration.
func (m *ScanningMiddleware) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// UpdateConfig updates the middleware configuration and rebuilds the
// scanner to match.
func (m *ScanningMiddleware) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	scanner, err := scannerFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.scanner = scanner
	m.mu.Unlock()

	return nil
}

// RequestScanResult contains the result of scanning one request surface.
type RequestScanResult struct {
	// Detected indicates whether an injection payload was detected.
	Detected bool

	// Blocked indicates whether the request should be blocked.
	// True only if Detected is true AND the effective mode is enforce.
	Blocked bool

	// Fingerprint is the SQL token fingerprint (if any).
	Fingerprint string

	// Pattern is the name of the heuristic pattern that matched (if any).
	Pattern string

	// Category is the category of the detected payload.
	Category Category

	// Param names the parameter that triggered the detection (param scans).
	Param string

	// Source names the surface the input arrived on.
	Source string

	// Duration is the time taken to scan.
	Duration time.Duration

	// ScanResult is the underlying scan result (for detailed access).
	ScanResult *ScanResult
}

// MiddlewareMetrics contains scanning metrics.
type MiddlewareMetrics struct {
	// ScansTotal is the total number of scan calls.
	ScansTotal int64

	// DetectionsTotal is the total number of detections.
	DetectionsTotal int64

	// BlockedTotal is the total number of blocked scans.
	BlockedTotal int64

	// ErrorsTotal is the total number of analyzer errors.
	ErrorsTotal int64
}

// Global middleware instance (lazy initialized)
var (
	globalMiddleware   *ScanningMiddleware
	globalMiddlewareMu sync.RWMutex
)

// GetGlobalMiddleware returns the global scanning middleware instance.
// If not initialized, it creates one with default configuration.
func GetGlobalMiddleware() *ScanningMiddleware {
	globalMiddlewareMu.RLock()
	if globalMiddleware != nil {
		globalMiddlewareMu.RUnlock()
		return globalMiddleware
	}
	globalMiddlewareMu.RUnlock()

	globalMiddlewareMu.Lock()
	defer globalMiddlewareMu.Unlock()

	// Double-check after acquiring write lock
	if globalMiddleware != nil {
		return globalMiddleware
	}

	// Initialize with default configuration
	m, err := NewScanningMiddleware()
	if err != nil {
		log.Printf("[detect] Warning: Failed to initialize global middleware: %v", err)
		// Return a no-op middleware
		m = &ScanningMiddleware{
			config:  DefaultConfig().WithMode(ModeOff),
			scanner: NewNoopScanner(ModeOff),
		}
	}
	globalMiddleware = m

	return globalMiddleware
}

// SetGlobalMiddleware sets the global scanning middleware instance.
// This is useful for initialization with custom configuration.
func SetGlobalMiddleware(m *ScanningMiddleware) {
	globalMiddlewareMu.Lock()
	defer globalMiddlewareMu.Unlock()
	globalMiddleware = m
}

// InitGlobalMiddleware initializes the global middleware with the given configuration.
func InitGlobalMiddleware(cfg Config) error {
	m, err := NewScanningMiddleware(WithMiddlewareConfig(cfg))
	if err != nil {
		return err
	}

	SetGlobalMiddleware(m)
	log.Printf("[detect] Global middleware initialized: mode=%s engine=%s fail_closed=%v",
		cfg.Mode, cfg.Engine, cfg.FailClosed)
	return nil
}
