package detect

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Limits applied to operator-supplied pattern expressions before they
// join a pattern set. The built-in defaults are compiled at startup
// and bypass these checks.
const (
	// MaxPatternLength is the maximum allowed length for a pattern
	// expression.
	MaxPatternLength = 1000

	// MaxCaptureGroups is the maximum number of capture groups allowed.
	MaxCaptureGroups = 10

	// PatternProbeTimeout bounds the probe run a candidate pattern must
	// complete before it is accepted.
	PatternProbeTimeout = 100 * time.Millisecond
)

// Pattern validation errors.
var (
	ErrPatternEmpty            = errors.New("pattern cannot be empty")
	ErrPatternTooLong          = errors.New("pattern exceeds maximum length")
	ErrPatternTooManyGroups    = errors.New("pattern has too many capture groups")
	ErrPatternInvalidSyntax    = errors.New("pattern has invalid RE2 syntax")
	ErrPatternNestedQuantifier = errors.New("pattern contains nested quantifiers")
	ErrPatternProbeTimeout     = errors.New("pattern probe timed out")
)

// PatternValidation reports whether an expression is safe to run on
// the request path, with the measurements the limits were checked
// against.
type PatternValidation struct {
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`

	Length        int `json:"length"`
	CaptureGroups int `json:"capture_groups"`
}

// PatternTrial reports how an expression behaves against caller-chosen
// sample inputs. Used for tuning custom signatures before they ship in
// a config file.
type PatternTrial struct {
	Valid   bool         `json:"valid"`
	Error   string       `json:"error,omitempty"`
	Expr    string       `json:"pattern"`
	Samples []string     `json:"inputs"`
	Matches []TrialMatch `json:"matches,omitempty"`
}

// TrialMatch is the outcome for one sample input.
type TrialMatch struct {
	Input   string   `json:"input"`
	Matched bool     `json:"matched"`
	Groups  []string `json:"groups,omitempty"`
}

// RE2 has no catastrophic backtracking, but a quantified group over an
// unbounded atom still walks long inputs slowly enough to matter on
// the request path.
var nestedQuantifierRe = regexp.MustCompile(`\(\.[*+]\)[*+]`)

// Inputs every candidate pattern is probed against. Shaped like the
// traffic the scanners see.
var probeSamples = []string{
	"",
	"hello world",
	strings.Repeat("a", 100),
	strings.Repeat("ab", 50),
	"1' OR '1'='1' --",
	"SELECT * FROM users WHERE id = 1",
	"<script>alert(document.cookie)</script>",
	"id=42&name=widget&sort=price",
}

// validateExpr runs the full safety gate: empty and length checks, RE2
// compilation, the capture-group cap, nested-quantifier rejection and
// a probe run under PatternProbeTimeout.
func validateExpr(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return ErrPatternEmpty
	}

	if len(expr) > MaxPatternLength {
		return ErrPatternTooLong
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPatternInvalidSyntax, err)
	}

	if re.NumSubexp() > MaxCaptureGroups {
		return ErrPatternTooManyGroups
	}

	if hasNestedQuantifier(expr) {
		return ErrPatternNestedQuantifier
	}

	return probeExpr(re)
}

// ValidatePattern checks an expression and returns a detailed result.
// Unlike validateExpr, a nested quantifier is reported as a warning
// rather than a rejection, so the pattern API can show the caller what
// the gate will flag without refusing to measure the expression.
func ValidatePattern(expr string) *PatternValidation {
	result := &PatternValidation{
		Valid:  true,
		Length: len(expr),
	}

	if strings.TrimSpace(expr) == "" {
		result.Valid = false
		result.Error = "pattern cannot be empty"
		return result
	}

	if len(expr) > MaxPatternLength {
		result.Valid = false
		result.Error = fmt.Sprintf("pattern exceeds maximum length of %d characters", MaxPatternLength)
		return result
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		result.Valid = false
		result.Error = fmt.Sprintf("invalid RE2 syntax: %v", err)
		return result
	}

	result.CaptureGroups = re.NumSubexp()
	if result.CaptureGroups > MaxCaptureGroups {
		result.Valid = false
		result.Error = fmt.Sprintf("pattern has %d capture groups, maximum is %d", result.CaptureGroups, MaxCaptureGroups)
		return result
	}

	if hasNestedQuantifier(expr) {
		result.Warning = "pattern contains nested quantifiers and will be rejected as a custom pattern"
	}

	if err := probeExpr(re); err != nil {
		result.Valid = false
		result.Error = "pattern probe timed out"
		return result
	}

	return result
}

// TryPattern runs an expression against the given sample inputs and
// reports per-input match results including capture groups.
func TryPattern(ctx context.Context, expr string, samples []string) *PatternTrial {
	trial := &PatternTrial{
		Expr:    expr,
		Samples: samples,
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		trial.Error = fmt.Sprintf("invalid pattern: %v", err)
		return trial
	}

	trial.Valid = true
	trial.Matches = make([]TrialMatch, 0, len(samples))

	for _, sample := range samples {
		select {
		case <-ctx.Done():
			trial.Error = "trial cancelled"
			return trial
		default:
		}

		match := TrialMatch{
			Input:   sample,
			Matched: re.MatchString(sample),
		}
		if match.Matched {
			if groups := re.FindStringSubmatch(sample); len(groups) > 1 {
				match.Groups = groups[1:]
			}
		}

		trial.Matches = append(trial.Matches, match)
	}

	return trial
}

// hasNestedQuantifier reports whether the expression quantifies a
// group that is itself an unbounded wildcard, such as (.*)+ or (.+)*.
func hasNestedQuantifier(expr string) bool {
	return nestedQuantifierRe.MatchString(expr)
}

// probeExpr runs the compiled expression against the probe inputs and
// fails if the run does not finish within PatternProbeTimeout.
func probeExpr(re *regexp.Regexp) error {
	done := make(chan struct{}, 1)
	go func() {
		for _, sample := range probeSamples {
			re.MatchString(sample)
		}
		done <- struct{}{}
	}()

	select {
	case <-done:
		return nil
	case <-time.After(PatternProbeTimeout):
		return ErrPatternProbeTimeout
	}
}

// compileChecked compiles an expression after it passes the safety
// gate. This is the only path by which custom expressions reach a
// pattern set.
func compileChecked(expr string) (*regexp.Regexp, error) {
	if err := validateExpr(expr); err != nil {
		return nil, err
	}
	return regexp.Compile(expr)
}
