package detect

import (
	"context"
	"time"

	"injectguard/platform/injection"
)

// HeuristicScanner implements regex pattern detection. It never
// produces an analyzer error: a regex either matches or it does not,
// so the fail-closed policy has nothing to do here.
type HeuristicScanner struct {
	mode Mode
	cfg  scannerConfig
}

// NewHeuristicScanner creates a heuristic scanner with the given
// enforcement mode and options.
func NewHeuristicScanner(mode Mode, opts ...Option) *HeuristicScanner {
	cfg := defaultScannerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.patterns == nil {
		cfg.patterns = NewPatternSet()
	}
	return &HeuristicScanner{mode: mode, cfg: cfg}
}

// Scan checks the input against the pattern set, first match wins.
func (s *HeuristicScanner) Scan(ctx context.Context, input string, scanType ScanType) (*ScanResult, error) {
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

	for _, pattern := range s.cfg.patterns.Patterns() {
		if pattern.Regex.MatchString(input) {
			return &ScanResult{
				Detected:  true,
				Blocked:   s.mode == ModeEnforce,
				Verdict:   injection.ResultMatch,
				Pattern:   pattern.Name,
				Category:  pattern.Category,
				Input:     sanitizeSnippet(input, s.cfg.snippetLen),
				Truncated: truncated,
				ScanType:  scanType,
				Engine:    EngineHeuristic,
				Mode:      s.mode,
				Duration:  time.Since(start),
				Metadata: map[string]any{
					"pattern_description": pattern.Description,
					"severity":            pattern.Severity,
				},
			}, nil
		}
	}

	return &ScanResult{
		Detected:  false,
		Blocked:   false,
		Verdict:   injection.ResultNoMatch,
		Truncated: truncated,
		ScanType:  scanType,
		Engine:    EngineHeuristic,
		Mode:      s.mode,
		Duration:  time.Since(start),
	}, nil
}

// Mode returns the configured enforcement mode.
func (s *HeuristicScanner) Mode() Mode {
	return s.mode
}

// Name returns EngineHeuristic.
func (s *HeuristicScanner) Name() Engine {
	return EngineHeuristic
}

func init() {
	RegisterEngine(EngineHeuristic, func(mode Mode) (Scanner, error) {
		return NewHeuristicScanner(mode), nil
	})
}
