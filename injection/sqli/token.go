package sqli

import "strings"

// TokenKind classifies a SQL token. The underlying byte is the character
// that represents the class in a fingerprint, so the values double as the
// fingerprint alphabet and must stay stable.
type TokenKind byte

const (
	KindNone          TokenKind = 0
	KindKeyword       TokenKind = 'k'
	KindUnion         TokenKind = 'U'
	KindGroup         TokenKind = 'B'
	KindExpression    TokenKind = 'E'
	KindSQLType       TokenKind = 't'
	KindFunction      TokenKind = 'f'
	KindBareword      TokenKind = 'n'
	KindNumber        TokenKind = '1'
	KindVariable      TokenKind = 'v'
	KindString        TokenKind = 's'
	KindOperator      TokenKind = 'o'
	KindLogicOperator TokenKind = '&'
	KindComment       TokenKind = 'c'
	KindCollate       TokenKind = 'A'
	KindLeftParens    TokenKind = '('
	KindRightParens   TokenKind = ')'
	KindLeftBrace     TokenKind = '{'
	KindRightBrace    TokenKind = '}'
	KindDot           TokenKind = '.'
	KindComma         TokenKind = ','
	KindColon         TokenKind = ':'
	KindSemicolon     TokenKind = ';'
	KindTSQL          TokenKind = 'T'
	KindUnknown       TokenKind = '?'
	KindEvil          TokenKind = 'X'
	KindBackslash     TokenKind = '\\'
)

// maxTokenLen bounds the text retained per token. Longer lexemes keep
// their position and kind but the stored value is truncated, which keeps
// per-token memory constant no matter how long the input runs.
const maxTokenLen = 32

// Token is one classified span of the input.
type Token struct {
	// Kind is the token class; its byte value is the fingerprint code.
	Kind TokenKind

	// Pos is the byte offset of the token in the input.
	Pos int

	// Val is the token text, truncated to maxTokenLen-1 bytes.
	Val string

	// AtCount is the number of leading '@' on a variable (1 or 2).
	AtCount int

	// StrOpen and StrClose record the quote characters that opened and
	// closed a string literal. Zero means no quote on that side: an open
	// of zero is a context-simulated quote, a close of zero is an
	// unterminated literal.
	StrOpen  byte
	StrClose byte
}

// isUnaryOp reports whether the token is an operator that can act as a
// unary prefix (+ - ! ~ !! NOT).
func (t *Token) isUnaryOp() bool {
	if t.Kind != KindOperator {
		return false
	}
	switch len(t.Val) {
	case 1:
		c := t.Val[0]
		return c == '+' || c == '-' || c == '!' || c == '~'
	case 2:
		return t.Val == "!!"
	case 3:
		return strings.EqualFold(t.Val, "NOT")
	default:
		return false
	}
}

// isArithmeticOp reports whether the token is a one-character arithmetic
// operator.
func (t *Token) isArithmeticOp() bool {
	if t.Kind != KindOperator || len(t.Val) != 1 {
		return false
	}
	switch t.Val[0] {
	case '*', '/', '-', '+', '%':
		return true
	}
	return false
}
