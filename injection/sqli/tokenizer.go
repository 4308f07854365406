package sqli

import "strings"

// charParsers maps a leading byte to the parse function for the token
// that can start with it. Every entry consumes at least one byte; a
// parser that reports no progress corrupts the state rather than
// spinning.
var charParsers [256]func(*State, int) int

func init() {
	for i := range charParsers {
		charParsers[i] = (*State).parseWord
	}
	for i := 0; i <= 0x20; i++ {
		charParsers[i] = (*State).parseWhite
	}
	charParsers[0x7f] = (*State).parseWhite
	charParsers[0xa0] = (*State).parseWhite

	charParsers['!'] = (*State).parseOperator2
	charParsers['"'] = (*State).parseString
	charParsers['#'] = (*State).parseHash
	charParsers['$'] = (*State).parseMoney
	charParsers['%'] = (*State).parseOperator1
	charParsers['&'] = (*State).parseOperator2
	charParsers['\''] = (*State).parseString
	charParsers['('] = (*State).parseChar
	charParsers[')'] = (*State).parseChar
	charParsers['*'] = (*State).parseOperator2
	charParsers['+'] = (*State).parseOperator1
	charParsers[','] = (*State).parseChar
	charParsers['-'] = (*State).parseDash
	charParsers['.'] = (*State).parseNumber
	charParsers['/'] = (*State).parseSlash
	for c := byte('0'); c <= '9'; c++ {
		charParsers[c] = (*State).parseNumber
	}
	charParsers[':'] = (*State).parseOperator2
	charParsers[';'] = (*State).parseChar
	charParsers['<'] = (*State).parseOperator2
	charParsers['='] = (*State).parseOperator2
	charParsers['>'] = (*State).parseOperator2
	charParsers['?'] = (*State).parseOther
	charParsers['@'] = (*State).parseVar
	charParsers['['] = (*State).parseBword
	charParsers['\\'] = (*State).parseBackslash
	charParsers[']'] = (*State).parseOther
	charParsers['^'] = (*State).parseOperator1
	charParsers['`'] = (*State).parseTick
	charParsers['{'] = (*State).parseChar
	charParsers['|'] = (*State).parseOperator2
	charParsers['}'] = (*State).parseChar
	charParsers['~'] = (*State).parseOperator1

	// literal prefixes, upper and lower
	for _, p := range []struct {
		c  byte
		fn func(*State, int) int
	}{
		{'b', (*State).parseBstring},
		{'e', (*State).parseEstring},
		{'n', (*State).parseNqstring},
		{'q', (*State).parseQstring},
		{'u', (*State).parseUstring},
		{'x', (*State).parseXstring},
	} {
		charParsers[p.c] = p.fn
		charParsers[p.c-'a'+'A'] = p.fn
	}
}

// wordReject is the set of bytes that terminate a bareword.
const wordReject = " []{}<>:\\?=@!#~+-*/&|^%(),';\t\n\v\f\r\"\xa0\x00"

// varReject is the set of bytes that terminate a variable name.
const varReject = " <>:\\?=@!#~+-*/&|^%(),';\t\n\v\f\r'`\""

func isWhite(ch byte) bool {
	switch ch {
	case ' ', '\t', '\n', '\v', '\f', '\r', 0x00, 0xa0:
		return true
	}
	return false
}

// spanIn returns the length of the longest prefix of s consisting only
// of bytes in accept.
func spanIn(s, accept string) int {
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(accept, s[i]) < 0 {
			return i
		}
	}
	return len(s)
}

// spanNotIn returns the length of the longest prefix of s containing no
// byte from reject.
func spanNotIn(s, reject string) int {
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(reject, s[i]) >= 0 {
			return i
		}
	}
	return len(s)
}

// nextToken scans the next token into the current slot. It returns false
// at end of input or once the state has tripped a guard; callers must
// not distinguish the two without consulting failed.
func (s *State) nextToken() bool {
	if s.failed() {
		return false
	}
	if s.cur.Len() == 0 {
		return false
	}
	s.tokens[s.current] = Token{}

	// At offset zero a quoting context pretends the input was preceded
	// by its quote character.
	if s.cur.Pos() == 0 && s.flags&(FlagQuoteSingle|FlagQuoteDouble) != 0 {
		end := s.parseStringCore(0, s.flags.delim(), 0)
		if !s.commitTo(0, end) {
			return false
		}
		s.statsTokens++
		return true
	}

	for !s.cur.Done() {
		pos := s.cur.Pos()
		ch, ok := s.cur.Peek()
		if !ok {
			break
		}
		end := charParsers[ch](s, pos)
		if s.failed() || !s.commitTo(pos, end) {
			return false
		}
		if s.tokens[s.current].Kind != KindNone {
			s.statsTokens++
			return true
		}
	}
	return false
}

// commitTo moves the cursor from a known position to the position a
// parse function reports. No forward progress, or a position outside the
// input, is a guard trip.
func (s *State) commitTo(from, to int) bool {
	if to <= from {
		s.fail()
		return false
	}
	if !s.cur.Seek(to) {
		s.fail()
		return false
	}
	return true
}

// emit records a token of kind spanning n bytes from pos. The span is
// revalidated against the input; one that does not fit corrupts the
// state instead of being stored.
func (s *State) emit(kind TokenKind, pos, n int) {
	val, ok := s.cur.Slice(pos, pos+n)
	if !ok {
		s.fail()
		return
	}
	if len(val) >= maxTokenLen {
		val = val[:maxTokenLen-1]
	}
	s.tokens[s.current] = Token{Kind: kind, Pos: pos, Val: val}
}

func (s *State) emitByte(kind TokenKind, pos int, ch byte) {
	s.tokens[s.current] = Token{Kind: kind, Pos: pos, Val: string(ch)}
}

func (s *State) parseWhite(pos int) int {
	return pos + 1
}

func (s *State) parseOperator1(pos int) int {
	ch, _ := s.cur.At(pos)
	s.emitByte(KindOperator, pos, ch)
	return pos + 1
}

func (s *State) parseOther(pos int) int {
	ch, _ := s.cur.At(pos)
	s.emitByte(KindUnknown, pos, ch)
	return pos + 1
}

func (s *State) parseChar(pos int) int {
	ch, _ := s.cur.At(pos)
	s.emitByte(TokenKind(ch), pos, ch)
	return pos + 1
}

func (s *State) parseEOLComment(pos int) int {
	nl := s.cur.Find('\n', pos)
	if nl < 0 {
		s.emit(KindComment, pos, s.cur.Len()-pos)
		return s.cur.Len()
	}
	s.emit(KindComment, pos, nl-pos)
	return nl + 1
}

// parseDash distinguishes SQL comments from subtraction. A double dash
// followed by whitespace, or ending the input, always comments; under
// ANSI rules any double dash comments; otherwise the dash is an
// operator.
func (s *State) parseDash(pos int) int {
	slen := s.cur.Len()
	nx, ok := s.cur.At(pos + 1)
	switch {
	case pos+2 < slen && ok && nx == '-' && s.whiteAt(pos+2):
		s.statsCommentDDW++
		return s.parseEOLComment(pos)
	case pos+2 == slen && ok && nx == '-':
		s.statsCommentDDW++
		return s.parseEOLComment(pos)
	case pos+1 < slen && ok && nx == '-' && s.flags&FlagSQLAnsi != 0:
		s.statsCommentDDX++
		return s.parseEOLComment(pos)
	default:
		s.emitByte(KindOperator, pos, '-')
		return pos + 1
	}
}

func (s *State) whiteAt(pos int) bool {
	ch, ok := s.cur.At(pos)
	return ok && isWhite(ch)
}

// parseHash treats '#' as a to-end-of-line comment under MySQL rules and
// as an operator otherwise.
func (s *State) parseHash(pos int) int {
	s.statsCommentHash++
	if s.flags&FlagSQLMysql != 0 {
		s.statsCommentHash++
		return s.parseEOLComment(pos)
	}
	s.emitByte(KindOperator, pos, '#')
	return pos + 1
}

// parseSlash handles C-style comments. A comment that nests another
// opener, or a MySQL conditional comment, is marked evil outright since
// both are strong injection signals.
func (s *State) parseSlash(pos int) int {
	nx, ok := s.cur.At(pos + 1)
	if !ok || nx != '*' {
		return s.parseOperator1(pos)
	}
	slen := s.cur.Len()
	body, ok := s.cur.Slice(pos+2, slen)
	if !ok {
		s.fail()
		return pos
	}
	kind := KindComment
	end := slen
	if i := strings.Index(body, "*/"); i >= 0 {
		end = pos + 2 + i + 2
		if strings.Contains(body[:i+1], "/*") {
			kind = KindEvil
		}
	}
	if bang, ok := s.cur.At(pos + 2); ok && bang == '!' {
		kind = KindEvil
	}
	s.statsCommentC++
	s.emit(kind, pos, end-pos)
	return end
}

func (s *State) parseBackslash(pos int) int {
	// "\N" is a MySQL alias for NULL
	if nx, ok := s.cur.At(pos + 1); ok && nx == 'N' {
		s.emit(KindNumber, pos, 2)
		return pos + 2
	}
	s.emitByte(KindBackslash, pos, '\\')
	return pos + 1
}

func (s *State) parseOperator2(pos int) int {
	slen := s.cur.Len()
	if pos+1 >= slen {
		return s.parseOperator1(pos)
	}
	if pos+2 < slen {
		if op, ok := s.cur.Slice(pos, pos+3); ok && op == "<=>" {
			s.emit(KindOperator, pos, 3)
			return pos + 3
		}
	}
	pair, ok := s.cur.Slice(pos, pos+2)
	if !ok {
		s.fail()
		return pos
	}
	if kind := lookupKeyword(pair); kind != KindNone {
		s.emit(kind, pos, 2)
		return pos + 2
	}
	if pair[0] == ':' {
		s.emitByte(KindColon, pos, ':')
		return pos + 1
	}
	return s.parseOperator1(pos)
}

// parseStringCore scans a quoted literal. With offset 1 the byte at pos
// is a real opening quote; with offset 0 the quote is simulated by the
// surrounding context and content starts at pos itself. Escaped and
// doubled delimiters stay inside the literal. An unterminated literal
// runs to end of input with a zero close quote.
func (s *State) parseStringCore(pos int, delim byte, offset int) int {
	start := pos + offset
	slen := s.cur.Len()
	var open byte
	if offset > 0 {
		open = delim
	}
	qpos := s.cur.Find(delim, start)
	for {
		if qpos < 0 {
			s.emit(KindString, start, slen-start)
			tok := &s.tokens[s.current]
			tok.StrOpen, tok.StrClose = open, 0
			return slen
		}
		if s.backslashEscaped(qpos-1, start) {
			qpos = s.cur.Find(delim, qpos+1)
			continue
		}
		if nx, ok := s.cur.At(qpos + 1); ok && nx == delim {
			qpos = s.cur.Find(delim, qpos+2)
			continue
		}
		s.emit(KindString, start, qpos-start)
		tok := &s.tokens[s.current]
		tok.StrOpen, tok.StrClose = open, delim
		return qpos + 1
	}
}

// backslashEscaped reports whether the byte after position end is
// escaped, counting the run of backslashes ending at end but never
// looking before start.
func (s *State) backslashEscaped(end, start int) bool {
	n := 0
	for i := end; i >= start; i-- {
		ch, ok := s.cur.At(i)
		if !ok || ch != '\\' {
			break
		}
		n++
	}
	return n&1 == 1
}

func (s *State) parseString(pos int) int {
	delim, _ := s.cur.At(pos)
	return s.parseStringCore(pos, delim, 1)
}

// parseEstring handles the PostgreSQL escaped string form E'...'.
func (s *State) parseEstring(pos int) int {
	nx, ok := s.cur.At(pos + 1)
	if pos+2 >= s.cur.Len() || !ok || nx != '\'' {
		return s.parseWord(pos)
	}
	return s.parseStringCore(pos, '\'', 2)
}

// parseUstring handles the Unicode string form U&'...'.
func (s *State) parseUstring(pos int) int {
	amp, ok1 := s.cur.At(pos + 1)
	q, ok2 := s.cur.At(pos + 2)
	if pos+2 >= s.cur.Len() || !ok1 || amp != '&' || !ok2 || q != '\'' {
		return s.parseWord(pos)
	}
	end := s.parseString(pos + 2)
	tok := &s.tokens[s.current]
	tok.StrOpen = 'u'
	if tok.StrClose == '\'' {
		tok.StrClose = 'u'
	}
	return end
}

// parseQstringCore handles Oracle's q'X...X' quoting, where X is an
// arbitrary printable delimiter and the bracket pairs ( [ { < close with
// their counterparts.
func (s *State) parseQstringCore(pos, offset int) int {
	p := pos + offset
	slen := s.cur.Len()
	lead, ok := s.cur.At(p)
	if !ok || (lead != 'q' && lead != 'Q') || p+2 >= slen {
		return s.parseWord(pos)
	}
	if q, ok := s.cur.At(p + 1); !ok || q != '\'' {
		return s.parseWord(pos)
	}
	delim, ok := s.cur.At(p + 2)
	if !ok || delim < 33 || delim > 127 {
		return s.parseWord(pos)
	}
	switch delim {
	case '(':
		delim = ')'
	case '[':
		delim = ']'
	case '{':
		delim = '}'
	case '<':
		delim = '>'
	}
	end := s.findSeq2(p+3, delim, '\'')
	if end < 0 {
		s.emit(KindString, p+3, slen-(p+3))
		tok := &s.tokens[s.current]
		tok.StrOpen, tok.StrClose = 'q', 0
		return slen
	}
	s.emit(KindString, p+3, end-(p+3))
	tok := &s.tokens[s.current]
	tok.StrOpen, tok.StrClose = 'q', 'q'
	return end + 2
}

func (s *State) parseQstring(pos int) int {
	return s.parseQstringCore(pos, 0)
}

// parseNqstring handles N'...' national strings and Oracle's nq'...'.
func (s *State) parseNqstring(pos int) int {
	if q, ok := s.cur.At(pos + 1); ok && pos+2 < s.cur.Len() && q == '\'' {
		return s.parseEstring(pos)
	}
	return s.parseQstringCore(pos, 1)
}

// parseBstring handles binary literals b'0101'.
func (s *State) parseBstring(pos int) int {
	return s.parseRadixString(pos, "01")
}

// parseXstring handles hex literals x'1f'.
func (s *State) parseXstring(pos int) int {
	return s.parseRadixString(pos, "0123456789ABCDEFabcdef")
}

func (s *State) parseRadixString(pos int, digits string) int {
	slen := s.cur.Len()
	q, ok := s.cur.At(pos + 1)
	if pos+2 >= slen || !ok || q != '\'' {
		return s.parseWord(pos)
	}
	body, ok := s.cur.Slice(pos+2, slen)
	if !ok {
		s.fail()
		return pos
	}
	n := spanIn(body, digits)
	closeQ, ok := s.cur.At(pos + 2 + n)
	if !ok || closeQ != '\'' {
		return s.parseWord(pos)
	}
	s.emit(KindNumber, pos, n+3)
	return pos + 3 + n
}

// parseBword handles SQL Server bracketed identifiers, [name].
func (s *State) parseBword(pos int) int {
	end := s.cur.Find(']', pos)
	if end < 0 {
		s.emit(KindBareword, pos, s.cur.Len()-pos)
		return s.cur.Len()
	}
	s.emit(KindBareword, pos, end-pos+1)
	return end + 1
}

func (s *State) parseWord(pos int) int {
	rest, ok := s.cur.Slice(pos, s.cur.Len())
	if !ok {
		s.fail()
		return pos
	}
	wlen := spanNotIn(rest, wordReject)
	s.emit(KindBareword, pos, wlen)
	tok := &s.tokens[s.current]

	// an embedded '.' or '`' splits off a leading keyword, as in
	// SELECT.1 or SELECT`x`
	for i := 0; i < len(tok.Val); i++ {
		d := tok.Val[i]
		if d != '.' && d != '`' {
			continue
		}
		if k := lookupKeyword(tok.Val[:i]); k != KindNone && k != KindBareword {
			s.emit(k, pos, i)
			return pos + i
		}
	}

	if wlen < maxTokenLen {
		if k := lookupKeyword(tok.Val); k != KindNone {
			tok.Kind = k
		}
	}
	return pos + wlen
}

// parseTick handles backquoted identifiers. MySQL resolves most of them
// to plain names, so anything that is not a known function is a
// bareword, keeping its tick quoting for later inspection.
func (s *State) parseTick(pos int) int {
	end := s.parseStringCore(pos, '`', 1)
	tok := &s.tokens[s.current]
	if lookupKeyword(tok.Val) == KindFunction {
		tok.Kind = KindFunction
	} else {
		tok.Kind = KindBareword
	}
	return end
}

func (s *State) parseVar(pos int) int {
	p := pos + 1
	atCount := 1
	if ch, ok := s.cur.At(p); ok && ch == '@' {
		p++
		atCount = 2
	}

	// MySQL allows @@`version` and @'version'
	if ch, ok := s.cur.At(p); ok {
		switch ch {
		case '`':
			end := s.parseTick(p)
			tok := &s.tokens[s.current]
			tok.Kind = KindVariable
			tok.AtCount = atCount
			return end
		case '\'', '"':
			end := s.parseString(p)
			tok := &s.tokens[s.current]
			tok.Kind = KindVariable
			tok.AtCount = atCount
			return end
		}
	}

	rest, ok := s.cur.Slice(p, s.cur.Len())
	if !ok {
		s.fail()
		return pos
	}
	n := spanNotIn(rest, varReject)
	s.emit(KindVariable, p, n)
	s.tokens[s.current].AtCount = atCount
	return p + n
}

// parseMoney handles '$' amounts, $$dollar quoted$$ strings, and
// PostgreSQL $tag$ ... $tag$ strings.
func (s *State) parseMoney(pos int) int {
	slen := s.cur.Len()
	if pos+1 == slen {
		s.emitByte(KindBareword, pos, '$')
		return slen
	}
	rest, ok := s.cur.Slice(pos+1, slen)
	if !ok {
		s.fail()
		return pos
	}

	amount := spanIn(rest, "0123456789.,")
	if amount == 0 {
		if rest[0] == '$' {
			// $$ quoted string
			end := s.findSeq2(pos+2, '$', '$')
			if end < 0 {
				s.emit(KindString, pos+2, slen-(pos+2))
				tok := &s.tokens[s.current]
				tok.StrOpen, tok.StrClose = '$', 0
				return slen
			}
			s.emit(KindString, pos+2, end-(pos+2))
			tok := &s.tokens[s.current]
			tok.StrOpen, tok.StrClose = '$', '$'
			return end + 2
		}
		tag := spanIn(rest, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
		if tag == 0 {
			s.emitByte(KindBareword, pos, '$')
			return pos + 1
		}
		if closing, ok := s.cur.At(pos + tag + 1); !ok || closing != '$' {
			s.emitByte(KindBareword, pos, '$')
			return pos + 1
		}
		// $tag$ string: find the matching closer
		delim, ok := s.cur.Slice(pos, pos+tag+2)
		if !ok {
			s.fail()
			return pos
		}
		body, ok := s.cur.Slice(pos+tag+2, slen)
		if !ok {
			s.fail()
			return pos
		}
		i := strings.Index(body, delim)
		if i < 0 {
			s.emit(KindString, pos+tag+2, len(body))
			tok := &s.tokens[s.current]
			tok.StrOpen, tok.StrClose = '$', 0
			return slen
		}
		s.emit(KindString, pos+tag+2, i)
		tok := &s.tokens[s.current]
		tok.StrOpen, tok.StrClose = '$', '$'
		return pos + tag + 2 + i + tag + 2
	}
	if amount == 1 && rest[0] == '.' {
		return s.parseWord(pos)
	}
	s.emit(KindNumber, pos, 1+amount)
	return pos + 1 + amount
}

func (s *State) parseNumber(pos int) int {
	slen := s.cur.Len()
	start := pos

	if ch, _ := s.cur.At(pos); ch == '0' && pos+1 < slen {
		var digits string
		switch nx, _ := s.cur.At(pos + 1); nx {
		case 'x', 'X':
			digits = "0123456789ABCDEFabcdef"
		case 'b', 'B':
			digits = "01"
		}
		if digits != "" {
			body, ok := s.cur.Slice(pos+2, slen)
			if !ok {
				s.fail()
				return pos
			}
			n := spanIn(body, digits)
			if n == 0 {
				s.emit(KindBareword, pos, 2)
			} else {
				s.emit(KindNumber, pos, 2+n)
			}
			return pos + 2 + n
		}
	}

	p := pos
	p += s.digitRun(p)
	if ch, ok := s.cur.At(p); ok && ch == '.' {
		p++
		p += s.digitRun(p)
		if p-start == 1 {
			// a lone dot is punctuation, not a number
			s.emitByte(KindDot, start, '.')
			return p
		}
	}

	haveE, haveExp := false, false
	if ch, ok := s.cur.At(p); ok && (ch == 'E' || ch == 'e') {
		haveE = true
		p++
		if sign, ok := s.cur.At(p); ok && (sign == '+' || sign == '-') {
			p++
		}
		if n := s.digitRun(p); n > 0 {
			haveExp = true
			p += n
		}
	}

	// Oracle float suffix: 1.2f stands alone, and 1fUNION splits
	if ch, ok := s.cur.At(p); ok && (ch == 'd' || ch == 'D' || ch == 'f' || ch == 'F') {
		nx, nok := s.cur.At(p + 1)
		switch {
		case !nok:
			p++
		case isWhite(nx) || nx == ';':
			p++
		case nx == 'u' || nx == 'U':
			p++
		}
	}

	if haveE && !haveExp {
		// "1234.e" style: a word, not a number
		s.emit(KindBareword, start, p-start)
	} else {
		s.emit(KindNumber, start, p-start)
	}
	return p
}

func (s *State) digitRun(pos int) int {
	n := 0
	for {
		ch, ok := s.cur.At(pos + n)
		if !ok || ch < '0' || ch > '9' {
			return n
		}
		n++
	}
}

// findSeq2 returns the first position at or after from where the byte
// pair c1 c2 occurs, or -1.
func (s *State) findSeq2(from int, c1, c2 byte) int {
	for i := from; ; i++ {
		i = s.cur.Find(c1, i)
		if i < 0 {
			return -1
		}
		nx, ok := s.cur.At(i + 1)
		if !ok {
			return -1
		}
		if nx == c2 {
			return i
		}
	}
}
