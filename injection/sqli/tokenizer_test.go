package sqli

import "testing"

// tokenStream scans input to exhaustion and returns the raw token
// sequence before folding.
func tokenStream(t *testing.T, input string, flags Flags) []Token {
	t.Helper()
	st, err := NewState(input, flags)
	if err != nil {
		t.Fatalf("NewState(%q): %v", input, err)
	}
	var out []Token
	for st.nextToken() {
		out = append(out, st.tokens[st.current])
		if len(out) > 64 {
			t.Fatalf("tokenizer did not terminate on %q", input)
		}
	}
	if st.failed() {
		t.Fatalf("tokenizer tripped a guard on %q", input)
	}
	return out
}

func kindString(toks []Token) string {
	b := make([]byte, len(toks))
	for i, tk := range toks {
		b[i] = byte(tk.Kind)
	}
	return string(b)
}

func TestTokenKindSequences(t *testing.T) {
	tests := []struct {
		input string
		flags Flags
		want  string
	}{
		{"SELECT * FROM users", FlagNone, "Eokn"},
		{"123 456", FlagNone, "11"},
		{"0x1F", FlagNone, "1"},
		{"0b101", FlagNone, "1"},
		{"0xZZ", FlagNone, "nn"},
		{"1.5e3", FlagNone, "1"},
		{"1.5e", FlagNone, "n"},
		{".", FlagNone, "."},
		{"--1", FlagNone, "c"},
		{"-- 1", FlagNone, "c"},
		{"- 1", FlagNone, "o1"},
		{"#x", FlagNone, "on"},
		{"#x", FlagQuoteNone | FlagSQLMysql, "c"},
		{"/*c*/", FlagNone, "c"},
		{"/*c", FlagNone, "c"},
		{"/*!50000x*/", FlagNone, "X"},
		{"/*/*/", FlagNone, "X"},
		{"@a @@b", FlagNone, "vv"},
		{"[col] x", FlagNone, "nn"},
		{"N'x'", FlagNone, "s"},
		{"b'01'", FlagNone, "1"},
		{"x'AF'", FlagNone, "1"},
		{"q'(abc)'", FlagNone, "s"},
		{"$$hi$$", FlagNone, "s"},
		{"$tag$x$tag$", FlagNone, "s"},
		{"$5.00", FlagNone, "1"},
		{`\N`, FlagNone, "1"},
		{`\x`, FlagNone, "\\n"},
		{"<=>", FlagNone, "o"},
		{"<>", FlagNone, "o"},
		{"||", FlagNone, "&"},
		{"&&", FlagNone, "&"},
		{": x", FlagNone, ":n"},
		{":=1", FlagNone, "o1"},
		{"'a''b'", FlagNone, "s"},
		{`"dq"`, FlagNone, "s"},
		{"`id`", FlagNone, "n"},
		{"`concat`", FlagNone, "f"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := kindString(tokenStream(t, tt.input, tt.flags))
			if got != tt.want {
				t.Errorf("kinds(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTokenValues(t *testing.T) {
	tests := []struct {
		input   string
		index   int
		wantVal string
	}{
		{"0x1F", 0, "0x1F"},
		{"q'(abc)'", 0, "abc"},
		{"$tag$x$tag$", 0, "x"},
		{"'a''b'", 0, "a''b"},
		{`'a\'b'`, 0, `a\'b`},
		{"1.2f", 0, "1.2f"},
		{"SELECT.1", 0, "SELECT"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			toks := tokenStream(t, tt.input, FlagNone)
			if tt.index >= len(toks) {
				t.Fatalf("tokens(%q) = %v, no index %d", tt.input, toks, tt.index)
			}
			if got := toks[tt.index].Val; got != tt.wantVal {
				t.Errorf("tokens(%q)[%d].Val = %q, want %q", tt.input, tt.index, got, tt.wantVal)
			}
		})
	}
}

func TestTokenQuoteMetadata(t *testing.T) {
	t.Run("closed string", func(t *testing.T) {
		toks := tokenStream(t, "'abc'", FlagNone)
		if len(toks) != 1 {
			t.Fatalf("tokens = %v, want 1", toks)
		}
		if toks[0].StrOpen != '\'' || toks[0].StrClose != '\'' {
			t.Errorf("quotes = %q %q, want ' '", toks[0].StrOpen, toks[0].StrClose)
		}
	})
	t.Run("unterminated string", func(t *testing.T) {
		toks := tokenStream(t, "'abc", FlagNone)
		if len(toks) != 1 {
			t.Fatalf("tokens = %v, want 1", toks)
		}
		if toks[0].StrOpen != '\'' || toks[0].StrClose != 0 {
			t.Errorf("quotes = %q %q, want ' and zero", toks[0].StrOpen, toks[0].StrClose)
		}
	})
	t.Run("context quote is simulated", func(t *testing.T) {
		toks := tokenStream(t, "abc' OR x", FlagQuoteSingle)
		if len(toks) == 0 {
			t.Fatal("no tokens")
		}
		if toks[0].Kind != KindString || toks[0].Val != "abc" {
			t.Fatalf("first token = %+v, want string abc", toks[0])
		}
		if toks[0].StrOpen != 0 || toks[0].StrClose != '\'' {
			t.Errorf("quotes = %q %q, want zero and '", toks[0].StrOpen, toks[0].StrClose)
		}
	})
	t.Run("variable at count", func(t *testing.T) {
		toks := tokenStream(t, "@a @@b", FlagNone)
		if len(toks) != 2 {
			t.Fatalf("tokens = %v, want 2", toks)
		}
		if toks[0].AtCount != 1 || toks[1].AtCount != 2 {
			t.Errorf("at counts = %d %d, want 1 2", toks[0].AtCount, toks[1].AtCount)
		}
	})
}

func TestTokenTruncation(t *testing.T) {
	long := "A"
	for len(long) < 100 {
		long += "A"
	}
	toks := tokenStream(t, long, FlagNone)
	if len(toks) != 1 {
		t.Fatalf("tokens = %d, want 1", len(toks))
	}
	if len(toks[0].Val) != maxTokenLen-1 {
		t.Errorf("Val length = %d, want %d", len(toks[0].Val), maxTokenLen-1)
	}
}
