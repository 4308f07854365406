package detect

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern represents one heuristic detection pattern.
type Pattern struct {
	// Name is a human-readable identifier for the pattern.
	Name string

	// Category classifies the payload family this pattern detects.
	Category Category

	// Regex is the compiled regular expression.
	Regex *regexp.Regexp

	// Description explains what this pattern detects.
	Description string

	// Severity indicates the risk level (1-10).
	Severity int
}

// PatternSet holds a collection of heuristic detection patterns.
type PatternSet struct {
	patterns []*Pattern
}

// NewPatternSet creates a pattern set with the default patterns.
func NewPatternSet() *PatternSet {
	return &PatternSet{
		patterns: defaultPatterns(),
	}
}

// Patterns returns all patterns in the set.
func (ps *PatternSet) Patterns() []*Pattern {
	return ps.patterns
}

// PatternsByCategory returns patterns filtered by category.
func (ps *PatternSet) PatternsByCategory(category Category) []*Pattern {
	var result []*Pattern
	for _, p := range ps.patterns {
		if p.Category == category {
			result = append(result, p)
		}
	}
	return result
}

// Add appends a pattern to the set. Useful for deployment-specific
// signatures on top of the defaults.
func (ps *PatternSet) Add(p *Pattern) {
	ps.patterns = append(ps.patterns, p)
}

// CustomPatternSpec describes an operator-supplied pattern before
// compilation. Specs arrive from the detection config file.
type CustomPatternSpec struct {
	Name        string `json:"name" yaml:"name"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"`
	Expr        string `json:"pattern" yaml:"pattern"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Severity    int    `json:"severity,omitempty" yaml:"severity,omitempty"`
}

// defaultCustomSeverity is assigned when a spec leaves severity unset
// or out of range.
const defaultCustomSeverity = 5

// AddCustom validates, compiles and appends an operator-supplied
// pattern. The expression passes the same safety gate the pattern API
// applies: RE2 syntax, length and capture-group limits, nested
// quantifier rejection and a probe run.
func (ps *PatternSet) AddCustom(spec CustomPatternSpec) (*Pattern, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, fmt.Errorf("custom pattern has no name")
	}

	re, err := compileChecked(spec.Expr)
	if err != nil {
		return nil, fmt.Errorf("custom pattern %q: %w", name, err)
	}

	category := Category(spec.Category)
	if category == "" {
		category = CategoryCustom
	}

	severity := spec.Severity
	if severity < 1 || severity > 10 {
		severity = defaultCustomSeverity
	}

	p := &Pattern{
		Name:        name,
		Category:    category,
		Regex:       re,
		Description: spec.Description,
		Severity:    severity,
	}
	ps.Add(p)
	return p, nil
}

// defaultPatterns returns the built-in detection patterns. The set
// trades coverage for explainability: every match names the technique
// it caught. The fingerprint engine is the accurate option.
func defaultPatterns() []*Pattern {
	return []*Pattern{
		// UNION-based SQL injection
		{
			Name:        "union_select",
			Category:    CategoryUnionBased,
			Regex:       regexp.MustCompile(`(?i)\bUNION\s+(ALL\s+)?SELECT\b`),
			Description: "Detects UNION SELECT statements used to extract data",
			Severity:    9,
		},
		{
			Name:        "union_after_quote",
			Category:    CategoryUnionBased,
			Regex:       regexp.MustCompile(`(?i)['"\)]\s*UNION\s+(ALL\s+)?SELECT`),
			Description: "Detects UNION injection after string termination",
			Severity:    10,
		},

		// Boolean-based blind SQL injection
		{
			Name:        "or_equality",
			Category:    CategoryBooleanBlind,
			Regex:       regexp.MustCompile(`(?i)['"]\s*OR\s+['"]?\w+['"]?\s*=\s*['"]?\w+`),
			Description: "Detects OR-based tautology after string termination",
			Severity:    9,
		},
		{
			Name:        "or_numeric_tautology",
			Category:    CategoryBooleanBlind,
			Regex:       regexp.MustCompile(`(?i)\bOR\s+\d+\s*=\s*\d+`),
			Description: "Detects numeric OR tautology such as OR 1=1",
			Severity:    8,
		},

		// Time-based blind SQL injection
		{
			Name:        "sleep_function",
			Category:    CategoryTimeBased,
			Regex:       regexp.MustCompile(`(?i)\b(SLEEP|PG_SLEEP)\s*\(`),
			Description: "Detects SLEEP/PG_SLEEP calls for time-based probing",
			Severity:    9,
		},
		{
			Name:        "waitfor_delay",
			Category:    CategoryTimeBased,
			Regex:       regexp.MustCompile(`(?i)\bWAITFOR\s+DELAY\b`),
			Description: "Detects SQL Server WAITFOR DELAY for time-based probing",
			Severity:    9,
		},
		{
			Name:        "benchmark_function",
			Category:    CategoryTimeBased,
			Regex:       regexp.MustCompile(`(?i)\bBENCHMARK\s*\(\s*\d+\s*,`),
			Description: "Detects MySQL BENCHMARK calls for time-based probing",
			Severity:    9,
		},

		// Stacked queries
		{
			Name:        "stacked_statement",
			Category:    CategoryStackedQueries,
			Regex:       regexp.MustCompile(`(?i);\s*(DROP|DELETE|UPDATE|INSERT|TRUNCATE|ALTER|EXEC|EXECUTE|GRANT)\b`),
			Description: "Detects a second statement stacked after a semicolon",
			Severity:    10,
		},

		// Comment-based injection
		{
			Name:        "comment_then_keyword",
			Category:    CategoryCommentInjection,
			Regex:       regexp.MustCompile(`(?i)(/\*.*\*/|--|#)\s*(UNION|SELECT|INSERT|UPDATE|DELETE|DROP)\b`),
			Description: "Detects SQL keywords smuggled behind a comment",
			Severity:    8,
		},
		{
			Name:        "quote_comment_tail",
			Category:    CategoryCommentInjection,
			Regex:       regexp.MustCompile(`['"]\s*(--|#)\s*$`),
			Description: "Detects string termination followed by a trailing comment",
			Severity:    9,
		},

		// Enumeration and file access
		{
			Name:        "catalog_access",
			Category:    CategoryUnionBased,
			Regex:       regexp.MustCompile(`(?i)\b(INFORMATION_SCHEMA|PG_CATALOG|sysobjects|sys\.tables)\b`),
			Description: "Detects access to schema catalogs for enumeration",
			Severity:    8,
		},
		{
			Name:        "file_access",
			Category:    CategoryStackedQueries,
			Regex:       regexp.MustCompile(`(?i)(\bLOAD_FILE\s*\(|\bINTO\s+(OUT|DUMP)FILE\b)`),
			Description: "Detects database file read/write primitives",
			Severity:    10,
		},

		// Script-capable markup
		{
			Name:        "script_tag",
			Category:    CategoryScriptMarkup,
			Regex:       regexp.MustCompile(`(?i)<\s*/?\s*script\b`),
			Description: "Detects opening or closing script tags",
			Severity:    10,
		},
		{
			Name:        "dangerous_tag",
			Category:    CategoryScriptMarkup,
			Regex:       regexp.MustCompile(`(?i)<\s*(iframe|object|embed|applet|base|meta|svg|frameset|link|style)\b`),
			Description: "Detects tags that can load or execute active content",
			Severity:    9,
		},

		// Event handlers
		{
			Name:        "event_handler_attr",
			Category:    CategoryEventHandler,
			Regex:       regexp.MustCompile(`(?i)\bon(abort|blur|change|click|dblclick|error|focus|input|load|mouse[a-z]+|key[a-z]+|pointer[a-z]+|animation[a-z]+|submit|toggle|unload|wheel)\s*=`),
			Description: "Detects inline event-handler attribute assignment",
			Severity:    9,
		},

		// Executable URL schemes
		{
			Name:        "javascript_url",
			Category:    CategoryDangerousURL,
			Regex:       regexp.MustCompile(`(?i)\bjavascript\s*:`),
			Description: "Detects javascript: URLs",
			Severity:    10,
		},
		{
			Name:        "vbscript_url",
			Category:    CategoryDangerousURL,
			Regex:       regexp.MustCompile(`(?i)\bvbscript\s*:`),
			Description: "Detects vbscript: URLs",
			Severity:    9,
		},
		{
			Name:        "data_url_html",
			Category:    CategoryDangerousURL,
			Regex:       regexp.MustCompile(`(?i)\bdata\s*:\s*text/html`),
			Description: "Detects data: URLs carrying HTML documents",
			Severity:    9,
		},
	}
}

// TestOnlyPattern creates a pattern for testing purposes.
// This function should only be used in tests.
func TestOnlyPattern(name string, regex string, category Category) *Pattern {
	return &Pattern{
		Name:        name,
		Category:    category,
		Regex:       regexp.MustCompile(regex),
		Description: "Test pattern",
		Severity:    5,
	}
}
