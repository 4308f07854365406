package detect

import (
	"context"
	"regexp"
	"strings"
	"time"

	"injectguard/platform/injection"
	"injectguard/platform/injection/sqli"
	"injectguard/platform/injection/xss"
	"injectguard/platform/shared/logger"
)

// Option is a functional option shared by the scanner constructors.
type Option func(*scannerConfig)

// scannerConfig holds the tunables common to the in-tree engines.
type scannerConfig struct {
	maxInputLen int
	snippetLen  int
	failClosed  bool
	patterns    *PatternSet
	log         *logger.Logger
}

func defaultScannerConfig() scannerConfig {
	return scannerConfig{
		maxInputLen: sqli.MaxInputLen,
		snippetLen:  100, // 100 chars for logging
		failClosed:  true,
	}
}

// WithMaxInputLength sets the maximum input length to scan. Longer
// inputs are truncated and the result flagged.
func WithMaxInputLength(maxLen int) Option {
	return func(c *scannerConfig) {
		c.maxInputLen = maxLen
	}
}

// WithSnippetLength sets the length of the input snippet in results.
func WithSnippetLength(length int) Option {
	return func(c *scannerConfig) {
		c.snippetLen = length
	}
}

// WithFailClosed controls how analyzer errors are treated: true counts
// them as detections, false waves them through. Default true.
func WithFailClosed(failClosed bool) Option {
	return func(c *scannerConfig) {
		c.failClosed = failClosed
	}
}

// WithPatternSet sets a custom pattern set. Only the heuristic engine
// consults patterns; other engines ignore this option.
func WithPatternSet(ps *PatternSet) Option {
	return func(c *scannerConfig) {
		c.patterns = ps
	}
}

// WithLogger sets the structured logger used for analyzer-error
// reporting. Without one, errors are reported only through results.
func WithLogger(log *logger.Logger) Option {
	return func(c *scannerConfig) {
		c.log = log
	}
}

// FingerprintScanner runs the tokenizing analyzers: SQL fingerprinting
// first, markup scanning on SQL no-match. It is the default engine.
type FingerprintScanner struct {
	mode Mode
	cfg  scannerConfig
}

// NewFingerprintScanner creates a fingerprint scanner with the given
// enforcement mode and options.
func NewFingerprintScanner(mode Mode, opts ...Option) *FingerprintScanner {
	cfg := defaultScannerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &FingerprintScanner{mode: mode, cfg: cfg}
}

// Scan checks the input for SQL and markup injection payloads.
func (s *FingerprintScanner) Scan(ctx context.Context, input string, scanType ScanType) (*ScanResult, error) {
	start := time.Now()

	// Check context cancellation before doing any work
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	truncated := false
	if len(input) > s.cfg.maxInputLen {
		input = input[:s.cfg.maxInputLen]
		truncated = true
	}

	verdict, fingerprint := sqli.Scan(input)
	switch verdict {
	case injection.ResultMatch:
		return &ScanResult{
			Detected:    true,
			Blocked:     s.mode == ModeEnforce,
			Verdict:     verdict,
			Fingerprint: fingerprint,
			Category:    CategorySQLFingerprint,
			Input:       sanitizeSnippet(input, s.cfg.snippetLen),
			Truncated:   truncated,
			ScanType:    scanType,
			Engine:      EngineFingerprint,
			Mode:        s.mode,
			Duration:    time.Since(start),
		}, nil
	case injection.ResultError:
		return s.errorResult(verdict, "sql", scanType, input, truncated, start), nil
	}

	verdict = xss.Scan(input)
	switch verdict {
	case injection.ResultMatch:
		return &ScanResult{
			Detected:  true,
			Blocked:   s.mode == ModeEnforce,
			Verdict:   verdict,
			Category:  CategoryMarkup,
			Input:     sanitizeSnippet(input, s.cfg.snippetLen),
			Truncated: truncated,
			ScanType:  scanType,
			Engine:    EngineFingerprint,
			Mode:      s.mode,
			Duration:  time.Since(start),
		}, nil
	case injection.ResultError:
		return s.errorResult(verdict, "markup", scanType, input, truncated, start), nil
	}

	return &ScanResult{
		Detected:  false,
		Blocked:   false,
		Verdict:   injection.ResultNoMatch,
		Truncated: truncated,
		ScanType:  scanType,
		Engine:    EngineFingerprint,
		Mode:      s.mode,
		Duration:  time.Since(start),
	}, nil
}

// errorResult maps an analyzer error to a result under the configured
// failure policy. Fail-closed treats the input as a detection.
func (s *FingerprintScanner) errorResult(verdict injection.Result, analyzer string, scanType ScanType, input string, truncated bool, start time.Time) *ScanResult {
	if s.cfg.log != nil {
		s.cfg.log.Warn("", "", "analyzer rejected input", map[string]any{
			"analyzer":    analyzer,
			"scan_type":   string(scanType),
			"fail_closed": s.cfg.failClosed,
			"input":       sanitizeSnippet(input, s.cfg.snippetLen),
		})
	}

	return &ScanResult{
		Detected:  s.cfg.failClosed,
		Blocked:   s.cfg.failClosed && s.mode == ModeEnforce,
		Verdict:   verdict,
		Category:  CategoryAnalyzerError,
		Input:     sanitizeSnippet(input, s.cfg.snippetLen),
		Truncated: truncated,
		ScanType:  scanType,
		Engine:    EngineFingerprint,
		Mode:      s.mode,
		Duration:  time.Since(start),
		Metadata:  map[string]any{"analyzer": analyzer},
	}
}

// Mode returns the configured enforcement mode.
func (s *FingerprintScanner) Mode() Mode {
	return s.mode
}

// Name returns EngineFingerprint.
func (s *FingerprintScanner) Name() Engine {
	return EngineFingerprint
}

// sanitizeSnippet creates a safe snippet of the input for logging.
// It truncates the input and masks potentially sensitive data.
func sanitizeSnippet(input string, snippetLen int) string {
	if len(input) <= snippetLen {
		return sanitizeForLog(input)
	}
	return sanitizeForLog(input[:snippetLen]) + "..."
}

// Precompiled masking regexes for performance
var (
	passwordMaskRegex = regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*['"]?[^'"\s]+['"]?`)
	apiKeyMaskRegex   = regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key)\s*[=:]\s*['"]?[^'"\s]+['"]?`)
	tokenMaskRegex    = regexp.MustCompile(`(?i)(token|bearer)\s*[=:]\s*['"]?[^'"\s]+['"]?`)
)

// sanitizeForLog removes or masks sensitive patterns in the input.
func sanitizeForLog(input string) string {
	// Replace newlines with spaces first
	input = strings.ReplaceAll(input, "\n", " ")

	// Replace potential password fields
	input = passwordMaskRegex.ReplaceAllString(input, "[REDACTED_PASSWORD]")
	// Replace potential API keys
	input = apiKeyMaskRegex.ReplaceAllString(input, "[REDACTED_KEY]")
	// Replace potential tokens
	input = tokenMaskRegex.ReplaceAllString(input, "[REDACTED_TOKEN]")

	return input
}

func init() {
	// Fingerprint engine is the default and always available
	RegisterEngine(EngineFingerprint, func(mode Mode) (Scanner, error) {
		return NewFingerprintScanner(mode), nil
	})
}
