package detect

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"injectguard/platform/injection"
)

// DetectionEvent represents one injection detection for audit logging.
// It integrates with the agent's audit queue so blocked requests leave
// a compliance-grade trail.
type DetectionEvent struct {
	// EventID uniquely identifies this event.
	EventID string `json:"event_id"`

	// Type identifies this as an injection detection event
	Type string `json:"type"`

	// Timestamp when the detection occurred (UTC)
	Timestamp time.Time `json:"timestamp"`

	// Severity of the detection (critical, high, medium, low)
	Severity string `json:"severity"`

	// UserID from the request context (if available)
	UserID string `json:"user_id,omitempty"`

	// ClientID from the request context
	ClientID string `json:"client_id,omitempty"`

	// TenantID for multi-tenant isolation
	TenantID string `json:"tenant_id,omitempty"`

	// Source names the surface the input arrived on (gateway, api)
	Source string `json:"source"`

	// ScanType indicates which part of the request was scanned
	ScanType ScanType `json:"scan_type"`

	// Verdict is the raw analyzer verdict (-1 error, 0 no match, 1 match)
	Verdict injection.Result `json:"verdict"`

	// Fingerprint is the SQL token fingerprint (fingerprint engine only)
	Fingerprint string `json:"fingerprint,omitempty"`

	// Pattern that matched (heuristic engine only)
	Pattern string `json:"pattern,omitempty"`

	// Category of the detected payload
	Category Category `json:"category"`

	// Engine that produced the detection
	Engine Engine `json:"engine"`

	// Mode used for scanning
	Mode Mode `json:"mode"`

	// Blocked indicates whether the content was blocked
	Blocked bool `json:"blocked"`

	// ScanDuration in nanoseconds
	ScanDuration time.Duration `json:"scan_duration_ns"`

	// RequestID for tracing (if available)
	RequestID string `json:"request_id,omitempty"`

	// InputSnippet is a sanitized snippet of the input (for forensics)
	InputSnippet string `json:"input_snippet,omitempty"`
}

// DetectionEventType is the type string for injection audit events.
const DetectionEventType = "injection_detection"

// Severity levels for injection detections
const (
	SeverityCritical = "critical" // Payload with destructive reach
	SeverityHigh     = "high"     // Definite injection attempt
	SeverityMedium   = "medium"   // Suspected injection
	SeverityLow      = "low"      // Minor pattern match
)

// CategorySeverity maps payload categories to severity levels.
func CategorySeverity(category Category) string {
	switch category {
	case CategoryStackedQueries:
		return SeverityCritical // Can modify/delete data
	case CategorySQLFingerprint:
		return SeverityHigh // Tokenizer-confirmed SQL payload
	case CategoryMarkup:
		return SeverityHigh // Tokenizer-confirmed executable markup
	case CategoryUnionBased:
		return SeverityHigh // Can extract data
	case CategoryTimeBased:
		return SeverityHigh // Confirms vulnerability
	case CategoryScriptMarkup:
		return SeverityHigh
	case CategoryDangerousURL:
		return SeverityHigh
	case CategoryAnalyzerError:
		return SeverityHigh // Deliberately malformed input
	case CategoryEventHandler:
		return SeverityMedium
	case CategoryBooleanBlind:
		return SeverityMedium // May be false positive
	case CategoryCommentInjection:
		return SeverityMedium
	case CategoryCustom:
		return SeverityMedium // Operator-supplied, numeric severity in metadata
	default:
		return SeverityLow
	}
}

// NewDetectionEvent creates an audit event from a scan result.
// Returns nil for clean results: only detections are audited.
func NewDetectionEvent(result *ScanResult, source string) *DetectionEvent {
	if result == nil || !result.Detected {
		return nil
	}

	return &DetectionEvent{
		EventID:      uuid.New().String(),
		Type:         DetectionEventType,
		Timestamp:    time.Now().UTC(),
		Severity:     CategorySeverity(result.Category),
		Source:       source,
		ScanType:     result.ScanType,
		Verdict:      result.Verdict,
		Fingerprint:  result.Fingerprint,
		Pattern:      result.Pattern,
		Category:     result.Category,
		Engine:       result.Engine,
		Mode:         result.Mode,
		Blocked:      result.Blocked,
		ScanDuration: result.Duration,
		InputSnippet: result.Input,
	}
}

// WithUserContext adds user context to the audit event.
func (e *DetectionEvent) WithUserContext(userID, clientID, tenantID string) *DetectionEvent {
	e.UserID = userID
	e.ClientID = clientID
	e.TenantID = tenantID
	return e
}

// WithRequestID adds a request ID for tracing.
func (e *DetectionEvent) WithRequestID(requestID string) *DetectionEvent {
	e.RequestID = requestID
	return e
}

// ToAuditDetails converts the event to a map suitable for the audit queue.
func (e *DetectionEvent) ToAuditDetails() map[string]interface{} {
	return map[string]interface{}{
		"event_id":      e.EventID,
		"source":        e.Source,
		"scan_type":     string(e.ScanType),
		"verdict":       int(e.Verdict),
		"fingerprint":   e.Fingerprint,
		"pattern":       e.Pattern,
		"category":      string(e.Category),
		"engine":        string(e.Engine),
		"mode":          string(e.Mode),
		"blocked":       e.Blocked,
		"scan_duration": e.ScanDuration.String(),
		"request_id":    e.RequestID,
		"input_snippet": e.InputSnippet,
	}
}

// AuditCallback is a function type for audit event callbacks.
// This allows the middleware to emit audit events to the audit queue
// without creating a circular dependency.
type AuditCallback func(event *DetectionEvent)

// DefaultAuditCallback is a no-op callback used when no audit system is configured.
var DefaultAuditCallback AuditCallback = func(event *DetectionEvent) {}

// globalAuditCallback holds the configured audit callback.
// Protected by auditCallbackMu for thread safety.
var (
	globalAuditCallback AuditCallback = DefaultAuditCallback
	auditCallbackMu     sync.RWMutex
)

// SetAuditCallback configures the global audit callback.
// This should be called during agent initialization to connect
// detection to the audit queue.
// Thread-safe: can be called from any goroutine.
func SetAuditCallback(callback AuditCallback) {
	auditCallbackMu.Lock()
	defer auditCallbackMu.Unlock()
	if callback == nil {
		globalAuditCallback = DefaultAuditCallback
		return
	}
	globalAuditCallback = callback
}

// EmitDetectionEvent sends a detection event to the configured audit system.
// Thread-safe: can be called from any goroutine.
func EmitDetectionEvent(event *DetectionEvent) {
	if event == nil {
		return
	}
	auditCallbackMu.RLock()
	cb := globalAuditCallback
	auditCallbackMu.RUnlock()
	cb(event)
}
