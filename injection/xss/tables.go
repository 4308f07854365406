package xss

import "strings"

// attrKind classifies an attribute name by how its value can carry a
// payload.
type attrKind int

const (
	attrNone attrKind = iota
	// attrBlack attributes run script no matter the value
	attrBlack
	// attrURL attributes load whatever scheme the value names
	attrURL
	// attrStyle attributes reach CSS expression evaluation
	attrStyle
	// attrIndirect attributes name another attribute to set
	attrIndirect
)

// blackTags are element names that execute or import content on their
// own. Comparison ignores NUL bytes and case.
var blackTags = []string{
	"APPLET",
	"BASE",
	"COMMENT", // IE parses <comment> as markup
	"EMBED",
	"FRAME",
	"FRAMESET",
	"HANDLER", // Opera SVG event handler
	"IFRAME",
	"IMPORT",
	"ISINDEX",
	"LINK",
	"LISTING", // IE renders its content as text, after parsing it
	"META",
	"NOEMBED",
	"OBJECT",
	"PLAINTEXT",
	"SCRIPT",
	"STYLE",
	"VMLFRAME",
	"XML",
	"XSS",
}

var blackAttrs = []struct {
	name string
	kind attrKind
}{
	{"ACTION", attrURL},
	{"ATTRIBUTENAME", attrIndirect}, // SVG <set attributename=...>
	{"BY", attrURL},
	{"BACKGROUND", attrURL},
	{"DATAFORMATAS", attrBlack},
	{"DATASRC", attrBlack},
	{"DYNSRC", attrURL},
	{"FILTER", attrStyle},
	{"FORMACTION", attrURL},
	{"FOLDER", attrURL},
	{"FROM", attrURL},
	{"HANDLER", attrURL},
	{"HREF", attrURL},
	{"LOWSRC", attrURL},
	{"POSTER", attrURL},
	{"SRC", attrURL},
	{"STYLE", attrStyle},
	{"TO", attrURL},
	{"VALUES", attrURL},
	{"XLINK:HREF", attrURL},
}

// blackSchemes are URL scheme prefixes that execute. JAVA covers both
// java: and javascript:.
var blackSchemes = []string{
	"DATA",
	"VIEW-SOURCE",
	"JAVA",
	"VBSCRIPT",
}

// nulTolerantPrefix compares the first n bytes of s against pattern,
// upper-casing s and skipping NUL bytes, which browsers drop. It
// reports whether those bytes cover the whole pattern exactly.
func nulTolerantPrefix(pattern, s string, n int) bool {
	if n > len(s) {
		n = len(s)
	}
	pi := 0
	for i := 0; i < n; i++ {
		cb := s[i]
		if cb == 0 {
			continue
		}
		if pi >= len(pattern) {
			return false
		}
		if cb >= 'a' && cb <= 'z' {
			cb -= 0x20
		}
		if pattern[pi] != cb {
			return false
		}
		pi++
	}
	return pi == len(pattern)
}

func nulTolerantEqual(pattern, s string) bool {
	return nulTolerantPrefix(pattern, s, len(s))
}

func isBlackTag(name string) bool {
	if len(name) < 3 {
		return false
	}
	for _, tag := range blackTags {
		if nulTolerantEqual(tag, name) {
			return true
		}
	}
	// anything SVG flavored
	if (name[0] == 's' || name[0] == 'S') &&
		(name[1] == 'v' || name[1] == 'V') &&
		(name[2] == 'g' || name[2] == 'G') {
		return true
	}
	// anything XSLT flavored
	if (name[0] == 'x' || name[0] == 'X') &&
		(name[1] == 's' || name[1] == 'S') &&
		(name[2] == 'l' || name[2] == 'L') {
		return true
	}
	return false
}

func classifyAttr(name string) attrKind {
	if len(name) < 2 {
		return attrNone
	}
	if len(name) >= 5 {
		// every on* attribute is an event handler
		if (name[0] == 'o' || name[0] == 'O') && (name[1] == 'n' || name[1] == 'N') {
			return attrBlack
		}
		// XMLNS and XLINK conjure arbitrary elements
		if nulTolerantPrefix("XMLNS", name, 5) || nulTolerantPrefix("XLINK", name, 5) {
			return attrBlack
		}
	}
	for _, e := range blackAttrs {
		if nulTolerantEqual(e.name, name) {
			return e.kind
		}
	}
	return attrNone
}

// dangerousComment flags comment bodies browsers re-interpret: IE's
// backtick terminator, conditional comments, inline XML islands, the
// <?import pseudo-tag, and XML entity definitions.
func dangerousComment(v string) bool {
	if strings.IndexByte(v, '`') >= 0 {
		return true
	}
	if len(v) > 3 {
		if v[0] == '[' && (v[1] == 'i' || v[1] == 'I') && (v[2] == 'f' || v[2] == 'F') {
			return true
		}
		if (v[0] == 'x' || v[0] == 'X') &&
			(v[1] == 'm' || v[1] == 'M') &&
			(v[2] == 'l' || v[2] == 'L') {
			return true
		}
	}
	if len(v) > 5 {
		if nulTolerantPrefix("IMPORT", v, 6) || nulTolerantPrefix("ENTITY", v, 6) {
			return true
		}
	}
	return false
}

// hexVal decodes one hex digit.
func hexVal(b byte) (int, bool) {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0'), true
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10, true
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10, true
	}
	return 0, false
}

// htmlDecodeCharAt decodes the leading character of s the way IE does:
// numeric entities with an optional terminating semicolon. Named
// entities stay literal. It returns the code point and the number of
// bytes consumed, at least 1 for non-empty s.
func htmlDecodeCharAt(s string) (int, int) {
	if len(s) == 0 {
		return -1, 0
	}
	if s[0] != '&' || len(s) < 2 {
		return int(s[0]), 1
	}
	if s[1] != '#' {
		return '&', 1
	}
	if len(s) >= 3 && (s[2] == 'x' || s[2] == 'X') {
		if len(s) < 4 {
			return '&', 1
		}
		val, ok := hexVal(s[3])
		if !ok {
			// degenerate &#x? form
			return '&', 1
		}
		for i := 4; i < len(s); i++ {
			if s[i] == ';' {
				return val, i + 1
			}
			v, ok := hexVal(s[i])
			if !ok {
				return val, i
			}
			val = val*16 + v
			if val > 0x1000FF {
				return '&', 1
			}
		}
		return val, len(s)
	}
	if len(s) < 3 || s[2] < '0' || s[2] > '9' {
		return '&', 1
	}
	val := int(s[2] - '0')
	for i := 3; i < len(s); i++ {
		ch := s[i]
		if ch == ';' {
			return val, i + 1
		}
		if ch < '0' || ch > '9' {
			return val, i
		}
		val = val*10 + int(ch-'0')
		if val > 0x1000FF {
			return '&', 1
		}
	}
	return val, len(s)
}

// entityPrefixMatch reports whether s, decoded one character at a time,
// begins with pattern. Leading whitespace and control characters are
// skipped; NUL and newline vanish anywhere, as browsers drop them.
func entityPrefixMatch(pattern, s string) bool {
	first := true
	pi := 0
	for i := 0; i < len(s); {
		if pi >= len(pattern) {
			return true
		}
		cb, consumed := htmlDecodeCharAt(s[i:])
		i += consumed
		if first && cb <= 32 {
			continue
		}
		first = false
		if cb == 0 || cb == 10 {
			continue
		}
		if cb >= 'a' && cb <= 'z' {
			cb -= 0x20
		}
		if int(pattern[pi]) != cb {
			return false
		}
		pi++
	}
	return pi >= len(pattern)
}

// isBlackURL reports whether an URL-valued attribute names an
// executable scheme. Leading whitespace, control bytes and high-bit
// bytes are skipped first; several encodings treat them as padding.
func isBlackURL(v string) bool {
	i := 0
	for i < len(v) && (v[i] <= 32 || v[i] >= 127) {
		i++
	}
	v = v[i:]
	for _, scheme := range blackSchemes {
		if entityPrefixMatch(scheme, v) {
			return true
		}
	}
	return false
}
