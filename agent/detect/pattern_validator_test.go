package detect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateExpr(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr error
	}{
		{"valid simple pattern", `\btest\b`, nil},
		{"valid sql pattern", `(?i)select\s+.*\s+from`, nil},
		{"valid pattern with groups", `(\w+)=(\w+)`, nil},
		{"valid markup pattern", `(?i)<\s*script\b`, nil},
		{"empty pattern", "", ErrPatternEmpty},
		{"whitespace only pattern", "   \t\n  ", ErrPatternEmpty},
		{"pattern too long", strings.Repeat("a", MaxPatternLength+1), ErrPatternTooLong},
		{"unclosed bracket", `[invalid`, ErrPatternInvalidSyntax},
		{"unclosed paren", `(test`, ErrPatternInvalidSyntax},
		{"trailing backslash", `\`, ErrPatternInvalidSyntax},
		{"nested quantifier", `(.*)+`, ErrPatternNestedQuantifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateExpr(tt.expr)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateExpr_TooManyGroups(t *testing.T) {
	expr := strings.Repeat(`(a)`, MaxCaptureGroups+1)

	err := validateExpr(expr)
	assert.ErrorIs(t, err, ErrPatternTooManyGroups)
}

func TestValidatePattern(t *testing.T) {
	tests := []struct {
		name        string
		expr        string
		wantValid   bool
		wantGroups  int
		wantError   string
		wantWarning string
	}{
		{
			name:      "valid simple",
			expr:      `\btest\b`,
			wantValid: true,
		},
		{
			name:       "valid with groups",
			expr:       `(\w+)=(\w+)`,
			wantValid:  true,
			wantGroups: 2,
		},
		{
			name:      "empty",
			expr:      "",
			wantValid: false,
			wantError: "pattern cannot be empty",
		},
		{
			name:      "too long",
			expr:      strings.Repeat("a", MaxPatternLength+1),
			wantValid: false,
			wantError: "maximum length",
		},
		{
			name:      "invalid syntax",
			expr:      `[invalid`,
			wantValid: false,
			wantError: "invalid RE2 syntax",
		},
		{
			name:      "too many groups",
			expr:      strings.Repeat(`(a)`, MaxCaptureGroups+1),
			wantValid: false,
			wantError: "capture groups",
		},
		{
			name:        "nested quantifier warns",
			expr:        `(.*)+`,
			wantValid:   true,
			wantGroups:  1,
			wantWarning: "nested quantifiers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidatePattern(tt.expr)
			assert.Equal(t, tt.wantValid, result.Valid)
			assert.Equal(t, len(tt.expr), result.Length)
			if tt.wantValid {
				assert.Equal(t, tt.wantGroups, result.CaptureGroups)
			}
			if tt.wantError != "" {
				assert.Contains(t, result.Error, tt.wantError)
			}
			if tt.wantWarning != "" {
				assert.Contains(t, result.Warning, tt.wantWarning)
			}
		})
	}
}

// The API only warns about nested quantifiers so callers can measure
// the expression, but the gate rejects them outright.
func TestValidatePattern_WarningVersusGate(t *testing.T) {
	expr := `(.+)*`

	result := ValidatePattern(expr)
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warning)

	assert.ErrorIs(t, validateExpr(expr), ErrPatternNestedQuantifier)
}

func TestTryPattern(t *testing.T) {
	ctx := context.Background()

	t.Run("matches and misses", func(t *testing.T) {
		trial := TryPattern(ctx, `(?i)\bunion\s+select\b`, []string{
			"1 UNION SELECT username FROM users",
			"select a paint color",
			"2' union select null--",
		})

		assert.True(t, trial.Valid)
		assert.Len(t, trial.Matches, 3)
		assert.True(t, trial.Matches[0].Matched)
		assert.False(t, trial.Matches[1].Matched)
		assert.True(t, trial.Matches[2].Matched)
	})

	t.Run("capture groups", func(t *testing.T) {
		trial := TryPattern(ctx, `(\w+)=(\w+)`, []string{"user=admin"})

		assert.True(t, trial.Valid)
		assert.Len(t, trial.Matches, 1)
		assert.True(t, trial.Matches[0].Matched)
		assert.Equal(t, []string{"user", "admin"}, trial.Matches[0].Groups)
	})

	t.Run("invalid pattern", func(t *testing.T) {
		trial := TryPattern(ctx, `[invalid`, []string{"test"})

		assert.False(t, trial.Valid)
		assert.Contains(t, trial.Error, "invalid pattern")
	})

	t.Run("no samples", func(t *testing.T) {
		trial := TryPattern(ctx, `\btest\b`, nil)

		assert.True(t, trial.Valid)
		assert.Len(t, trial.Matches, 0)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		trial := TryPattern(cancelled, `\btest\b`, []string{"test one", "test two"})

		assert.Equal(t, "trial cancelled", trial.Error)
		assert.Len(t, trial.Matches, 0)
	})
}

func TestHasNestedQuantifier(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"simple word boundary", `\btest\b`, false},
		{"complex but safe", `(?i)select\s+.*\s+from\s+\w+`, false},
		{"plain wildcard group", `(.*)`, false},
		{"dot-star plus", `(.*)+`, true},
		{"dot-plus plus", `(.+)+`, true},
		{"dot-star star", `(.*)*`, true},
		{"dot-plus star", `(.+)*`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasNestedQuantifier(tt.expr))
		})
	}
}

func TestCompileChecked(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"valid pattern", `\btest\b`, false},
		{"invalid pattern", `[invalid`, true},
		{"empty pattern", "", true},
		{"nested quantifier", `(.*)+`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re, err := compileChecked(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, re)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, re)
			}
		})
	}
}

func TestPatternGateConstants(t *testing.T) {
	assert.Equal(t, 1000, MaxPatternLength)
	assert.Equal(t, 10, MaxCaptureGroups)
	assert.Equal(t, 100*time.Millisecond, PatternProbeTimeout)
}

func TestPatternSet_AddCustom(t *testing.T) {
	ps := NewPatternSet()
	before := len(ps.Patterns())

	p, err := ps.AddCustom(CustomPatternSpec{
		Name:        "  legacy_debug_header  ",
		Category:    string(CategoryDangerousURL),
		Expr:        `(?i)\bx-debug-override\b`,
		Description: "Legacy debug header honored by the old gateway",
		Severity:    4,
	})
	assert.NoError(t, err)

	assert.Equal(t, "legacy_debug_header", p.Name)
	assert.Equal(t, CategoryDangerousURL, p.Category)
	assert.Equal(t, 4, p.Severity)
	assert.True(t, p.Regex.MatchString("X-Debug-Override: 1"))
	assert.Len(t, ps.Patterns(), before+1)
}

func TestPatternSet_AddCustomDefaults(t *testing.T) {
	ps := NewPatternSet()

	p, err := ps.AddCustom(CustomPatternSpec{
		Name: "bare_spec",
		Expr: `\bbare\b`,
	})
	assert.NoError(t, err)

	assert.Equal(t, CategoryCustom, p.Category)
	assert.Equal(t, defaultCustomSeverity, p.Severity)
}

func TestPatternSet_AddCustomRejections(t *testing.T) {
	tests := []struct {
		name    string
		spec    CustomPatternSpec
		wantErr error
	}{
		{
			name: "empty name",
			spec: CustomPatternSpec{Name: "   ", Expr: `\btest\b`},
		},
		{
			name:    "invalid syntax",
			spec:    CustomPatternSpec{Name: "broken", Expr: `[invalid`},
			wantErr: ErrPatternInvalidSyntax,
		},
		{
			name:    "nested quantifier",
			spec:    CustomPatternSpec{Name: "slow", Expr: `(.*)+`},
			wantErr: ErrPatternNestedQuantifier,
		},
		{
			name:    "severity out of range keeps gate",
			spec:    CustomPatternSpec{Name: "empty_expr", Expr: "", Severity: 99},
			wantErr: ErrPatternEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := NewPatternSet()
			before := len(ps.Patterns())

			_, err := ps.AddCustom(tt.spec)
			assert.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Len(t, ps.Patterns(), before)
		})
	}
}

func TestHeuristicScanner_CustomPattern(t *testing.T) {
	ps := NewPatternSet()
	_, err := ps.AddCustom(CustomPatternSpec{
		Name:     "legacy_debug_header",
		Expr:     `(?i)\bx-debug-override\b`,
		Severity: 4,
	})
	assert.NoError(t, err)

	scanner := NewHeuristicScanner(ModeEnforce, WithPatternSet(ps))
	ctx := context.Background()

	result, err := scanner.Scan(ctx, "X-Debug-Override: enable", ScanTypeHeader)
	assert.NoError(t, err)
	assert.True(t, result.Detected)
	assert.True(t, result.Blocked)
	assert.Equal(t, "legacy_debug_header", result.Pattern)
	assert.Equal(t, CategoryCustom, result.Category)
	assert.Equal(t, 4, result.Metadata["severity"])

	clean, err := scanner.Scan(ctx, "ordinary header value", ScanTypeHeader)
	assert.NoError(t, err)
	assert.False(t, clean.Detected)
}

func TestConfigValidate_CustomPatterns(t *testing.T) {
	valid := DefaultConfig().WithCustomPattern(CustomPatternSpec{
		Name: "internal_token_leak",
		Expr: `(?i)\bigrd-internal-[a-z0-9]+\b`,
	})
	assert.NoError(t, valid.Validate())

	badExpr := DefaultConfig().WithCustomPattern(CustomPatternSpec{
		Name: "broken",
		Expr: `[invalid`,
	})
	err := badExpr.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `custom pattern "broken"`)

	noName := DefaultConfig().WithCustomPattern(CustomPatternSpec{
		Expr: `\btest\b`,
	})
	assert.Error(t, noName.Validate())
}

func TestLoadConfigFile_CustomPatterns(t *testing.T) {
	content := `
engine: heuristic
mode: enforce
custom_patterns:
  - name: internal_token_leak
    pattern: '(?i)\bigrd-internal-[a-z0-9]+\b'
    description: Internal service token appearing in request values
    severity: 7
`
	path := filepath.Join(os.TempDir(), fmt.Sprintf("detect-config-%d.yaml", time.Now().UnixNano()))
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	defer os.Remove(path)

	cfg, err := LoadConfigFile(path)
	assert.NoError(t, err)

	assert.Equal(t, EngineHeuristic, cfg.Engine)
	assert.Len(t, cfg.CustomPatterns, 1)
	spec := cfg.CustomPatterns[0]
	assert.Equal(t, "internal_token_leak", spec.Name)
	assert.Equal(t, 7, spec.Severity)
}

func TestLoadConfigFile_RejectsUnsafeCustomPattern(t *testing.T) {
	content := `
engine: heuristic
custom_patterns:
  - name: runaway
    pattern: '(.*)+'
`
	path := filepath.Join(os.TempDir(), fmt.Sprintf("detect-config-%d.yaml", time.Now().UnixNano()))
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	defer os.Remove(path)

	_, err := LoadConfigFile(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `custom pattern "runaway"`)
}

func TestScanningMiddleware_CustomPatterns(t *testing.T) {
	cfg := DefaultConfig().
		WithEngine(EngineHeuristic).
		WithMode(ModeEnforce).
		WithCustomPattern(CustomPatternSpec{
			Name: "legacy_debug_header",
			Expr: `(?i)\bx-debug-override\b`,
		})
	cfg.LogDetections = false
	cfg.AuditTrailEnabled = false

	m, err := NewScanningMiddleware(WithMiddlewareConfig(cfg))
	assert.NoError(t, err)

	result, err := m.ScanValue(context.Background(), "X-Debug-Override: 1", ScanTypeHeader)
	assert.NoError(t, err)
	assert.True(t, result.Detected)
	assert.True(t, result.Blocked)
	assert.Equal(t, "legacy_debug_header", result.Pattern)
}

func TestScanningMiddleware_RejectsUnsafeCustomPattern(t *testing.T) {
	cfg := DefaultConfig().
		WithEngine(EngineHeuristic).
		WithCustomPattern(CustomPatternSpec{Name: "runaway", Expr: `(.+)+`})

	_, err := NewScanningMiddleware(WithMiddlewareConfig(cfg))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "custom pattern")
}

// Benchmarks
func BenchmarkValidatePattern(b *testing.B) {
	expr := `(?i)select\s+.*\s+from\s+\w+\s+where\s+.*`

	for i := 0; i < b.N; i++ {
		_ = ValidatePattern(expr)
	}
}

func BenchmarkTryPattern(b *testing.B) {
	ctx := context.Background()
	expr := `(?i)\bunion\s+(all\s+)?select\b`
	samples := []string{
		"1 UNION SELECT username FROM users",
		"select a paint color",
		"2' union all select null--",
	}

	for i := 0; i < b.N; i++ {
		_ = TryPattern(ctx, expr, samples)
	}
}
