package sqli

import (
	"errors"
	"strings"
	"testing"

	"injectguard/platform/injection"
)

func TestScanDetectsPayloads(t *testing.T) {
	tests := []struct {
		name            string
		input           string
		wantFingerprint string
	}{
		{"classic tautology", "1' OR '1'='1", "s&sos"},
		{"empty string tautology", "' or ''='", "s&sos"},
		{"comment cutoff", "admin' OR 1=1--", "s&1c"},
		{"comment only", "admin'--", "sc"},
		{"union probe", "1 UNION SELECT", "1UE"},
		{"union all merges", "1 UNION ALL SELECT", "1UE"},
		{"stacked query", "1; DROP TABLE users", "1;En"},
		{"mysql conditional comment", "1 /*!30000 OR 1=1*/", "X"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, fp := Scan(tt.input)
			if res != injection.ResultMatch {
				t.Fatalf("Scan(%q) = %v, want ResultMatch", tt.input, res)
			}
			if fp != tt.wantFingerprint {
				t.Errorf("Scan(%q) fingerprint = %q, want %q", tt.input, fp, tt.wantFingerprint)
			}
		})
	}
}

func TestScanMatchesViaMySQLReparse(t *testing.T) {
	// under ANSI rules the '#' is an operator and the shape stays
	// benign; the hash comment forces the MySQL pass, which sees the
	// trailing comment
	res, fp := Scan("1 OR 1=1 #")
	if res != injection.ResultMatch {
		t.Fatalf("Scan = %v, want ResultMatch", res)
	}
	if fp != "1&1c" {
		t.Errorf("fingerprint = %q, want %q", fp, "1&1c")
	}
}

func TestScanMatchesViaDoubleQuoteContext(t *testing.T) {
	res, fp := Scan(`" OR ""="`)
	if res != injection.ResultMatch {
		t.Fatalf("Scan = %v, want ResultMatch", res)
	}
	if fp != "s&sos" {
		t.Errorf("fingerprint = %q, want %q", fp, "s&sos")
	}
}

func TestScanBenign(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"plain words", "hello world 123"},
		{"two words", "Hello World"},
		{"apostrophe name", "O'Brien"},
		{"prose with and", "sexy and 17"},
		{"mysql hash comment", "1 #comment"},
		{"html not sql", "<script>alert(1)</script>"},
		{"empty", ""},
		{"spaces only", "   "},
		{"nul bytes", "\x00\x00\x00\x00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, fp := Scan(tt.input)
			if res != injection.ResultNoMatch {
				t.Errorf("Scan(%q) = %v (fingerprint %q), want ResultNoMatch", tt.input, res, fp)
			}
		})
	}
}

func TestScanRepeatedPunctuation(t *testing.T) {
	// hostile inputs built from one repeated byte must terminate with a
	// defined verdict, never an error
	patterns := []string{
		strings.Repeat("'", 11),
		strings.Repeat("\\", 8),
		strings.Repeat("/", 8),
		strings.Repeat("{", 8),
		strings.Repeat("}", 8),
		strings.Repeat("[", 8),
		strings.Repeat("]", 8),
		strings.Repeat("<", 8),
		strings.Repeat(">", 8),
		strings.Repeat(";", 8),
		strings.Repeat(",", 8),
	}
	for _, p := range patterns {
		res, _ := Scan(p)
		if res != injection.ResultMatch && res != injection.ResultNoMatch {
			t.Errorf("Scan(%q) = %v, want a defined verdict", p, res)
		}
	}
}

func TestScanLongInput(t *testing.T) {
	res, fp := Scan(strings.Repeat("A", 100000))
	if res != injection.ResultNoMatch {
		t.Fatalf("Scan(long bareword) = %v, want ResultNoMatch", res)
	}
	if fp != "n" {
		t.Errorf("fingerprint = %q, want %q", fp, "n")
	}
}

func TestNewStateValidation(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		flags   Flags
		wantErr error
	}{
		{"defaults", "x", FlagNone, nil},
		{"explicit single quote", "x", FlagQuoteSingle, nil},
		{"explicit mysql", "x", FlagQuoteNone | FlagSQLMysql, nil},
		{"unknown bit", "x", Flags(1 << 7), ErrInvalidFlags},
		{"two quote contexts", "x", FlagQuoteSingle | FlagQuoteDouble, ErrInvalidFlags},
		{"two dialects", "x", FlagSQLAnsi | FlagSQLMysql, ErrInvalidFlags},
		{"oversized input", strings.Repeat("A", MaxInputLen+1), FlagNone, ErrInputTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewState(tt.input, tt.flags)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewState(..., %v) error = %v, want %v", tt.flags, err, tt.wantErr)
			}
		})
	}
}

func TestMaxInputBoundary(t *testing.T) {
	st, err := NewState(strings.Repeat("A", MaxInputLen), FlagNone)
	if err != nil {
		t.Fatalf("NewState at limit: %v", err)
	}
	if res := st.Run(); res != injection.ResultNoMatch {
		t.Errorf("Run at limit = %v, want ResultNoMatch", res)
	}
}

func TestRunOnCorruptedCursorReportsError(t *testing.T) {
	st, err := NewState("1' OR '1'='1", FlagNone)
	if err != nil {
		t.Fatal(err)
	}
	// drive the cursor out of bounds before running
	st.cur.Seek(st.cur.Len() + 10)

	if res := st.Run(); res != injection.ResultError {
		t.Fatalf("Run on corrupted state = %v, want ResultError", res)
	}
	// the error must be sticky and the fingerprint withheld
	if res := st.Run(); res != injection.ResultError {
		t.Errorf("second Run = %v, want ResultError", res)
	}
	if fp := st.Fingerprint(); fp != "" {
		t.Errorf("Fingerprint on corrupted state = %q, want empty", fp)
	}
	if toks := st.Tokens(); toks != nil {
		t.Errorf("Tokens on corrupted state = %v, want nil", toks)
	}
}

func TestCommitToRequiresProgress(t *testing.T) {
	st, err := NewState("abc", FlagNone)
	if err != nil {
		t.Fatal(err)
	}
	if st.commitTo(2, 2) {
		t.Error("commitTo with no progress succeeded")
	}
	if !st.failed() {
		t.Error("state not failed after zero-progress commit")
	}
	if res := st.Run(); res != injection.ResultError {
		t.Errorf("Run after failed commit = %v, want ResultError", res)
	}
}

func TestFingerprintAfterRun(t *testing.T) {
	st, err := NewState("hello", FlagNone)
	if err != nil {
		t.Fatal(err)
	}
	if res := st.Run(); res != injection.ResultNoMatch {
		t.Fatalf("Run = %v, want ResultNoMatch", res)
	}
	if fp := st.Fingerprint(); fp != "n" {
		t.Errorf("Fingerprint = %q, want %q", fp, "n")
	}
	if toks := st.Tokens(); len(toks) != 1 || toks[0].Kind != KindBareword {
		t.Errorf("Tokens = %v, want single bareword", toks)
	}
}

func TestNotWhitelistedProseShapes(t *testing.T) {
	// these shapes are blacklisted but the allowlist pass recognizes
	// the unfolded three-token phrasing as prose
	tests := []string{
		"sexy and 17",
		"1 and 1",
	}
	for _, input := range tests {
		res, fp := Scan(input)
		if res != injection.ResultNoMatch {
			t.Errorf("Scan(%q) = %v (fingerprint %q), want ResultNoMatch", input, res, fp)
		}
	}
}
