package detect

import (
	"context"
	"fmt"
	"time"

	"injectguard/platform/injection"
)

// Mode represents the enforcement posture of the detection layer.
type Mode string

const (
	// ModeOff disables scanning entirely.
	ModeOff Mode = "off"

	// ModeMonitor scans and records detections but never blocks.
	// Intended for rollout: run monitor until the detection rate is
	// understood, then switch to enforce.
	ModeMonitor Mode = "monitor"

	// ModeEnforce scans and blocks on detection. Analyzer errors are
	// blocked too when the scanner is fail-closed.
	ModeEnforce Mode = "enforce"
)

// DefaultMode is the default enforcement posture.
const DefaultMode = ModeMonitor

// ValidModes returns all valid enforcement modes.
func ValidModes() []Mode {
	return []Mode{ModeOff, ModeMonitor, ModeEnforce}
}

// IsValid checks if the mode is a valid enforcement mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeOff, ModeMonitor, ModeEnforce:
		return true
	default:
		return false
	}
}

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// ParseMode parses a string into a Mode, returning an error if invalid.
func ParseMode(s string) (Mode, error) {
	mode := Mode(s)
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid detection mode: %q, valid modes are: off, monitor, enforce", s)
	}
	return mode, nil
}

// Engine selects the detection mechanism behind a scanner.
type Engine string

const (
	// EngineFingerprint runs the tokenizing analyzers: SQL
	// fingerprinting first, markup scanning second. Highest accuracy.
	EngineFingerprint Engine = "fingerprint"

	// EngineHeuristic runs the regex pattern set. Cheaper and fully
	// explainable, at the cost of coverage.
	EngineHeuristic Engine = "heuristic"

	// EngineNoop performs no analysis. Backs mode "off" and overhead
	// measurement.
	EngineNoop Engine = "noop"
)

// DefaultEngine is the engine used when none is configured.
const DefaultEngine = EngineFingerprint

// ValidEngines returns all valid engine names.
func ValidEngines() []Engine {
	return []Engine{EngineFingerprint, EngineHeuristic, EngineNoop}
}

// IsValid checks if the engine name is known.
func (e Engine) IsValid() bool {
	switch e {
	case EngineFingerprint, EngineHeuristic, EngineNoop:
		return true
	default:
		return false
	}
}

// String returns the string representation of the engine name.
func (e Engine) String() string {
	return string(e)
}

// ParseEngine parses a string into an Engine, returning an error if invalid.
func ParseEngine(s string) (Engine, error) {
	engine := Engine(s)
	if !engine.IsValid() {
		return "", fmt.Errorf("invalid detection engine: %q, valid engines are: fingerprint, heuristic, noop", s)
	}
	return engine, nil
}

// ScanType indicates which part of a request is being scanned.
type ScanType string

const (
	// ScanTypeQuery indicates scanning of a query string.
	ScanTypeQuery ScanType = "query"

	// ScanTypeBody indicates scanning of a request body.
	ScanTypeBody ScanType = "body"

	// ScanTypeHeader indicates scanning of a header value.
	ScanTypeHeader ScanType = "header"

	// ScanTypeParam indicates scanning of a single decoded parameter.
	ScanTypeParam ScanType = "param"
)

// ScanResult represents the outcome of one detection scan.
type ScanResult struct {
	// Detected indicates whether an injection payload was detected.
	Detected bool `json:"detected"`

	// Blocked indicates whether the content was blocked (vs just logged).
	Blocked bool `json:"blocked"`

	// Verdict is the raw analyzer verdict. Its numeric encoding is
	// stable: -1 error, 0 no match, 1 match.
	Verdict injection.Result `json:"verdict"`

	// Fingerprint is the SQL token fingerprint that matched, if the
	// fingerprint engine produced one.
	Fingerprint string `json:"fingerprint,omitempty"`

	// Pattern is the heuristic pattern name that matched (if any).
	Pattern string `json:"pattern,omitempty"`

	// Category classifies the detected payload.
	Category Category `json:"category,omitempty"`

	// Input is a sanitized snippet of the scanned content (for logging).
	Input string `json:"input,omitempty"`

	// Truncated indicates the content exceeded the scanner's input
	// limit and only the leading portion was analyzed.
	Truncated bool `json:"truncated,omitempty"`

	// ScanType indicates which part of the request was scanned.
	ScanType ScanType `json:"scan_type"`

	// Engine is the detection engine that produced this result.
	Engine Engine `json:"engine"`

	// Mode is the enforcement mode the scanner ran under.
	Mode Mode `json:"mode"`

	// Duration is how long the scan took.
	Duration time.Duration `json:"duration_ns"`

	// Metadata contains additional engine-specific information.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Category classifies the type of payload detected.
type Category string

const (
	// CategorySQLFingerprint is a SQL payload caught by token
	// fingerprinting.
	CategorySQLFingerprint Category = "sql_fingerprint"

	// CategoryMarkup is executable markup caught by the markup analyzer.
	CategoryMarkup Category = "markup"

	// CategoryUnionBased represents UNION-based SQL injection.
	CategoryUnionBased Category = "union_based"

	// CategoryBooleanBlind represents boolean-based blind SQL injection.
	CategoryBooleanBlind Category = "boolean_blind"

	// CategoryTimeBased represents time-based blind SQL injection.
	CategoryTimeBased Category = "time_based"

	// CategoryStackedQueries represents stacked queries SQL injection.
	CategoryStackedQueries Category = "stacked_queries"

	// CategoryCommentInjection represents comment-based SQL injection.
	CategoryCommentInjection Category = "comment_injection"

	// CategoryScriptMarkup represents script-capable tags and islands.
	CategoryScriptMarkup Category = "script_markup"

	// CategoryEventHandler represents inline event-handler attributes.
	CategoryEventHandler Category = "event_handler"

	// CategoryDangerousURL represents executable URL schemes in
	// attribute values.
	CategoryDangerousURL Category = "dangerous_url"

	// CategoryCustom marks operator-supplied patterns that do not
	// declare a category of their own.
	CategoryCustom Category = "custom"

	// CategoryAnalyzerError marks inputs the analyzers refused to
	// parse. Under fail-closed policy these are treated as detections.
	CategoryAnalyzerError Category = "analyzer_error"
)

// Scanner is the interface for injection detection.
type Scanner interface {
	// Scan checks the input for injection payloads. The returned error
	// is operational (context cancelled, scanner misconfigured); an
	// analyzer verdict of ResultError is reported through the result,
	// not the error.
	Scan(ctx context.Context, input string, scanType ScanType) (*ScanResult, error)

	// Mode returns the enforcement mode of this scanner.
	Mode() Mode

	// Name returns the engine name of this scanner.
	Name() Engine
}

// NoopScanner is a scanner that does nothing (used for ModeOff).
type NoopScanner struct {
	mode Mode
}

// NewNoopScanner creates a scanner that never detects anything.
func NewNoopScanner(mode Mode) *NoopScanner {
	return &NoopScanner{mode: mode}
}

// Scan always returns a clean result.
func (s *NoopScanner) Scan(_ context.Context, _ string, scanType ScanType) (*ScanResult, error) {
	return &ScanResult{
		Detected: false,
		Blocked:  false,
		Verdict:  injection.ResultNoMatch,
		ScanType: scanType,
		Engine:   EngineNoop,
		Mode:     s.mode,
		Duration: 0,
	}, nil
}

// Mode returns the configured enforcement mode.
func (s *NoopScanner) Mode() Mode {
	return s.mode
}

// Name returns EngineNoop.
func (s *NoopScanner) Name() Engine {
	return EngineNoop
}

// engineRegistry holds registered engine factories.
var engineRegistry = make(map[Engine]func(Mode) (Scanner, error))

// RegisterEngine registers a scanner factory for a given engine name.
// Out-of-tree engines may register themselves before first use.
func RegisterEngine(engine Engine, factory func(Mode) (Scanner, error)) {
	engineRegistry[engine] = factory
}

// NewScanner creates a scanner for the given engine and mode. Mode off
// always yields a noop scanner regardless of engine.
func NewScanner(engine Engine, mode Mode) (Scanner, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("invalid detection mode: %q", mode)
	}
	if !engine.IsValid() {
		if _, ok := engineRegistry[engine]; !ok {
			return nil, fmt.Errorf("invalid detection engine: %q", engine)
		}
	}

	if mode == ModeOff {
		return NewNoopScanner(mode), nil
	}

	factory, ok := engineRegistry[engine]
	if !ok {
		return nil, fmt.Errorf("engine not registered: %q", engine)
	}

	return factory(mode)
}

// MustNewScanner creates a new scanner, panicking on error.
// Use only in initialization code where errors are programming mistakes.
func MustNewScanner(engine Engine, mode Mode) Scanner {
	scanner, err := NewScanner(engine, mode)
	if err != nil {
		panic(fmt.Sprintf("failed to create scanner: %v", err))
	}
	return scanner
}

func init() {
	// Noop engine is always available
	RegisterEngine(EngineNoop, func(mode Mode) (Scanner, error) {
		return NewNoopScanner(mode), nil
	})
}
