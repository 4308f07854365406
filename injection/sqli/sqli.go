package sqli

import (
	"strings"

	"injectguard/platform/injection"
)

// Run analyzes the input under every quoting context it could plausibly
// be embedded in: as-is first, then re-parsed under MySQL comment rules
// if the first pass saw dialect-specific comments, then inside single
// quotes when the input carries one, then inside double quotes. The
// first context whose fingerprint is a known injection shape decides.
//
// Run reports ResultError once any pass trips a guard, and a failed
// State keeps answering ResultError; it never falls back to a verdict
// computed from a corrupted pass.
func (s *State) Run() injection.Result {
	if s.failed() {
		return injection.ResultError
	}
	input := s.cur.Input()
	if len(input) == 0 {
		s.fingerprint = ""
		return injection.ResultNoMatch
	}

	base := s.flags

	if s.scanWith(base) {
		return injection.ResultMatch
	}
	if s.failed() {
		return injection.ResultError
	}
	if base&FlagSQLAnsi != 0 && s.reparseAsMySQL() {
		if s.scanWith((base &^ FlagSQLAnsi) | FlagSQLMysql) {
			return injection.ResultMatch
		}
		if s.failed() {
			return injection.ResultError
		}
	}

	if base&FlagQuoteSingle == 0 && strings.IndexByte(input, '\'') >= 0 {
		if s.scanWith(FlagQuoteSingle | FlagSQLAnsi) {
			return injection.ResultMatch
		}
		if s.failed() {
			return injection.ResultError
		}
		if s.reparseAsMySQL() {
			if s.scanWith(FlagQuoteSingle | FlagSQLMysql) {
				return injection.ResultMatch
			}
			if s.failed() {
				return injection.ResultError
			}
		}
	}

	if base&FlagQuoteDouble == 0 && strings.IndexByte(input, '"') >= 0 {
		if s.scanWith(FlagQuoteDouble | FlagSQLMysql) {
			return injection.ResultMatch
		}
		if s.failed() {
			return injection.ResultError
		}
	}

	return injection.ResultNoMatch
}

// scanWith runs one fingerprint pass and reports whether it matched.
// The caller is responsible for checking failed afterwards.
func (s *State) scanWith(flags Flags) bool {
	s.fingerprintWith(flags)
	if s.failed() {
		return false
	}
	return isBlacklistFingerprint(s.fingerprint) && s.notWhitelisted()
}

// reparseAsMySQL reports whether the previous pass saw comment syntax
// that only MySQL honors, meaning the verdict could change under MySQL
// rules.
func (s *State) reparseAsMySQL() bool {
	return s.statsCommentDDX > 0 || s.statsCommentHash > 0
}

// fingerprintWith runs one tokenize-and-fold pass under flags and
// records the resulting fingerprint.
func (s *State) fingerprintWith(flags Flags) string {
	s.reset(flags)
	n := s.fold()
	if s.failed() {
		s.fingerprint = ""
		return ""
	}

	// a trailing unterminated empty backquote is PHP/MySQL comment
	// abuse, not an identifier
	if n > 2 {
		last := &s.tokens[n-1]
		if last.Kind == KindBareword && last.StrOpen == '`' &&
			len(last.Val) == 0 && last.StrClose == 0 {
			last.Kind = KindComment
		}
	}

	fp := make([]byte, n)
	for i := range fp {
		fp[i] = byte(s.tokens[i].Kind)
	}
	s.fingerprint = string(fp)

	// an evil token means the parse could not be trusted at all;
	// collapse to the single-code shape
	if strings.IndexByte(s.fingerprint, byte(KindEvil)) >= 0 {
		s.fingerprint = string([]byte{byte(KindEvil)})
		s.tokens[0] = Token{Kind: KindEvil, Val: s.fingerprint}
		s.tokens[1] = Token{}
	}
	return s.fingerprint
}

// notWhitelisted assumes the fingerprint is blacklisted and prunes the
// shapes that common benign text also produces. True confirms the
// match.
func (s *State) notWhitelisted() bool {
	fp := s.fingerprint
	tlen := len(fp)

	if tlen > 1 && TokenKind(fp[tlen-1]) == KindComment &&
		strings.Contains(s.cur.Input(), "sp_password") {
		return true
	}

	switch tlen {
	case 2:
		// two-token shapes sit closest to normal input
		if TokenKind(fp[1]) == KindUnion {
			// a bare value-UNION pair needs evidence of folding or
			// comments before it counts
			return s.statsTokens != 2
		}
		if b, ok := firstByte(s.tokens[1].Val); ok && b == '#' {
			return false
		}
		if s.tokens[0].Kind == KindBareword && s.tokens[1].Kind == KindComment {
			b, ok := firstByte(s.tokens[1].Val)
			return ok && b == '/'
		}
		if s.tokens[0].Kind == KindNumber && s.tokens[1].Kind == KindComment {
			if b, ok := firstByte(s.tokens[1].Val); ok && b == '/' {
				return true
			}
			if s.statsTokens > 2 {
				// folding happened, so the "number" hides structure
				return true
			}
			// base64-ish query values like 1234-AbCdEf-- produce this
			// shape; require whitespace or a comment opener right
			// after the number
			after := s.tokens[0].Pos + len(s.tokens[0].Val)
			ch, ok := s.cur.At(after)
			if !ok || ch <= 32 {
				return true
			}
			if nx, nok := s.cur.At(after + 1); nok {
				if ch == '/' && nx == '*' {
					return true
				}
				if ch == '-' && nx == '-' {
					return true
				}
			}
			return false
		}
		if len(s.tokens[1].Val) > 2 {
			if b, ok := firstByte(s.tokens[1].Val); ok && b == '-' {
				// '--' in running text; only a trailing double dash
				// counts, and that case has a shorter comment value
				return false
			}
		}
	case 3:
		if fp == "sos" || fp == "s&s" {
			t0, t2 := &s.tokens[0], &s.tokens[2]
			if t0.StrOpen == 0 && t2.StrClose == 0 && t0.StrClose == t2.StrOpen {
				// the strings bridge the surrounding quotes: 'foo' OR 'x
				return true
			}
			return false
		}
		if fp == "s&n" || fp == "n&1" || fp == "1&1" || fp == "1&v" || fp == "1&s" {
			// "sexy and 17" is prose; three raw tokens means nothing
			// folded away
			if s.statsTokens == 3 {
				return false
			}
		} else if s.tokens[1].Kind == KindKeyword {
			v := s.tokens[1].Val
			if len(v) < 5 || !strings.EqualFold(v[:4], "INTO") {
				// only INTO OUTFILE / INTO DUMPFILE matter mid-shape
				return false
			}
		}
	}

	return true
}

func firstByte(s string) (byte, bool) {
	if len(s) == 0 {
		return 0, false
	}
	return s[0], true
}

// Scan analyzes input in the default context and returns the verdict
// along with the fingerprint of the last pass run.
func Scan(input string) (injection.Result, string) {
	st, err := NewState(input, FlagNone)
	if err != nil {
		return injection.ResultError, ""
	}
	res := st.Run()
	return res, st.Fingerprint()
}
