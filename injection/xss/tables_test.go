package xss

import "testing"

func TestIsBlackTag(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"script", true},
		{"SCRIPT", true},
		{"ScRiPt", true},
		{"scr\x00ipt", true},
		{"iframe", true},
		{"svg", true},
		{"svganything", true},
		{"xsl:template", true},
		{"xml", true},
		{"div", false},
		{"p", false},
		{"em", false},
		{"scriptx", false},
		{"scrip", false},
	}
	for _, tt := range tests {
		if got := isBlackTag(tt.name); got != tt.want {
			t.Errorf("isBlackTag(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestClassifyAttr(t *testing.T) {
	tests := []struct {
		name string
		want attrKind
	}{
		{"href", attrURL},
		{"HREF", attrURL},
		{"src", attrURL},
		{"formaction", attrURL},
		{"background", attrURL},
		{"onclick", attrBlack},
		{"ONLOAD", attrBlack},
		{"onx", attrNone}, // the on* rule needs five bytes
		{"xmlns:svg", attrBlack},
		// the xlink prefix rule shadows the exact xlink:href entry
		{"xlink:href", attrBlack},
		{"style", attrStyle},
		{"filter", attrStyle},
		{"attributename", attrIndirect},
		{"datasrc", attrBlack},
		{"class", attrNone},
		{"title", attrNone},
		{"x", attrNone},
		{"", attrNone},
	}
	for _, tt := range tests {
		if got := classifyAttr(tt.name); got != tt.want {
			t.Errorf("classifyAttr(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDangerousComment(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{"[if IE]", true},
		{"[IF gte IE 4]", true},
		{"[i", false},
		{"xml:namespace", true},
		{"XML x", true},
		{"xm", false},
		{"import namespace", true},
		{"IMPORTx", true},
		{"impor", false},
		{"entity x SYSTEM", true},
		{"`", true},
		{"note with ` backtick", true},
		{"release notes", false},
		{"", false},
		{"--", false},
	}
	for _, tt := range tests {
		if got := dangerousComment(tt.body); got != tt.want {
			t.Errorf("dangerousComment(%q) = %v, want %v", tt.body, got, tt.want)
		}
	}
}

func TestNulTolerantPrefix(t *testing.T) {
	tests := []struct {
		pattern string
		s       string
		n       int
		want    bool
	}{
		{"SCRIPT", "script", 6, true},
		{"SCRIPT", "scr\x00ipt", 7, true},
		{"SCRIPT", "scrip", 5, false},
		{"SCRIPT", "scriptx", 7, false},
		{"XMLNS", "xmlns:href", 5, true},
		{"IMPORT", "import namespace", 6, true},
		{"IMPORT", "impo\x00rt x", 6, false}, // the nul eats a compared byte
	}
	for _, tt := range tests {
		if got := nulTolerantPrefix(tt.pattern, tt.s, tt.n); got != tt.want {
			t.Errorf("nulTolerantPrefix(%q, %q, %d) = %v, want %v",
				tt.pattern, tt.s, tt.n, got, tt.want)
		}
	}
}

func TestHTMLDecodeCharAt(t *testing.T) {
	tests := []struct {
		in       string
		val      int
		consumed int
	}{
		{"a", 'a', 1},
		{"&", '&', 1},
		{"&amp;", '&', 1},
		{"&#106;x", 106, 6},
		{"&#106", 106, 5},
		{"&#x6A;", 106, 6},
		{"&#X6a", 106, 5},
		{"&#x", '&', 1},
		{"&#xZ", '&', 1},
		{"&#;", '&', 1},
		{"&#z9", '&', 1},
		{"&#1;", 1, 4},
		{"&#106abc", 106, 5},
		{"&#999999999;", '&', 1}, // overflow re-scans from the next byte
	}
	for _, tt := range tests {
		val, consumed := htmlDecodeCharAt(tt.in)
		if val != tt.val || consumed != tt.consumed {
			t.Errorf("htmlDecodeCharAt(%q) = (%d, %d), want (%d, %d)",
				tt.in, val, consumed, tt.val, tt.consumed)
		}
	}
}

func TestIsBlackURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"javascript:alert(1)", true},
		{"JAVASCRIPT:x", true},
		{"java:x", true},
		{" \t\njavascript:x", true},
		{"\x85javascript:x", true},
		{"j\x00ava\nscript:x", true},
		{"&#106;avascript:x", true},
		{"&#x6A;avascript:x", true},
		{"vbscript:msgbox(1)", true},
		{"data:text/html,x", true},
		{"data:image/png;base64,AAAA", true},
		{"view-source:index.html", true},
		{"https://example.com/", false},
		{"mailto:x@example.com", false},
		{"j a v a script:x", false}, // embedded spaces break the scheme
		{"x", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isBlackURL(tt.url); got != tt.want {
			t.Errorf("isBlackURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
