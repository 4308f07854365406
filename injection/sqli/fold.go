package sqli

import "strings"

// maxFoldTokens is the window the fingerprint is built from. Folding
// keeps at most this many tokens plus a trailing comment.
const maxFoldTokens = 5

// syntaxMerge joins two adjacent word-like tokens when the pair is a
// known phrase, such as UNION ALL or NOT IN. The merged classification
// replaces a; b is left for the caller to drop.
func syntaxMerge(a, b *Token) bool {
	switch a.Kind {
	case KindKeyword, KindBareword, KindOperator, KindUnion,
		KindFunction, KindExpression, KindTSQL, KindSQLType:
	default:
		return false
	}
	switch b.Kind {
	case KindKeyword, KindBareword, KindOperator, KindUnion,
		KindFunction, KindExpression, KindTSQL, KindSQLType,
		KindLogicOperator:
	default:
		return false
	}
	if len(a.Val)+len(b.Val)+1 >= maxTokenLen {
		return false
	}
	merged := a.Val + " " + b.Val
	kind := lookupKeyword(merged)
	if kind == KindNone {
		return false
	}
	*a = Token{Kind: kind, Pos: a.Pos, Val: merged}
	return true
}

// fold tokenizes the whole input and reduces the stream to at most
// maxFoldTokens semantically load-bearing tokens, returning how many
// were kept. SQL syntax that cannot change whether input escapes its
// context (arithmetic on constants, unary operators, qualified names,
// list continuations) collapses away so that equivalent probes produce
// the same shape. A guard trip during folding returns 0 with the state
// failed.
func (s *State) fold() int {
	var lastComment Token

	// leading comments, left parens, type names and unary operators
	// never begin the part of a statement that matters; skip them
	s.current = 0
	more := s.nextToken()
	for more {
		t := &s.tokens[s.current]
		if !(t.Kind == KindComment || t.Kind == KindLeftParens ||
			t.Kind == KindSQLType || t.isUnaryOp()) {
			break
		}
		more = s.nextToken()
	}
	if !more {
		return 0
	}

	left := 0
	pos := 1

	refill := func(want int) {
		for more && pos <= maxFoldTokens && pos-left < want {
			s.current = pos
			more = s.nextToken()
			if !more {
				break
			}
			if s.tokens[pos].Kind == KindComment {
				lastComment = s.tokens[pos]
			} else {
				lastComment.Kind = KindNone
				pos++
			}
		}
	}

	for {
		if s.failed() {
			return 0
		}

		// a full window shaped like a parenthesized list or function
		// call restarts folding past the noise
		if pos >= maxFoldTokens {
			t := &s.tokens
			if (t[0].Kind == KindNumber &&
				(t[1].Kind == KindOperator || t[1].Kind == KindComma) &&
				t[2].Kind == KindLeftParens &&
				t[3].Kind == KindNumber &&
				t[4].Kind == KindRightParens) ||
				(t[0].Kind == KindBareword &&
					t[1].Kind == KindOperator &&
					t[2].Kind == KindLeftParens &&
					(t[3].Kind == KindNumber || t[3].Kind == KindBareword) &&
					t[4].Kind == KindRightParens) ||
				(t[0].Kind == KindNumber &&
					t[1].Kind == KindRightParens &&
					t[2].Kind == KindComma &&
					t[3].Kind == KindLeftParens &&
					t[4].Kind == KindNumber) ||
				(t[0].Kind == KindBareword &&
					t[1].Kind == KindRightParens &&
					t[2].Kind == KindOperator &&
					t[3].Kind == KindLeftParens &&
					t[4].Kind == KindBareword) {
				if pos > maxFoldTokens {
					t[1] = t[maxFoldTokens]
					pos = 2
				} else {
					pos = 1
				}
				left = 0
			}
		}

		if !more || left >= maxFoldTokens {
			left = pos
			break
		}

		refill(2)
		if pos-left < 2 {
			left = pos
			continue
		}

		t0, t1 := &s.tokens[left], &s.tokens[left+1]
		if t0.Kind == KindString && t1.Kind == KindString {
			// adjacent strings concatenate
			pos--
			s.statsFolds++
			continue
		} else if t0.Kind == KindSemicolon && t1.Kind == KindSemicolon {
			pos--
			s.statsFolds++
			continue
		} else if t0.Kind == KindSemicolon && t1.Kind == KindFunction &&
			strings.EqualFold(t1.Val, "IF") {
			// after a semicolon IF is Transact-SQL control flow, not a
			// function
			t1.Kind = KindTSQL
			left += 2
			continue
		} else if (t0.Kind == KindOperator || t0.Kind == KindLogicOperator) &&
			(t1.isUnaryOp() || t1.Kind == KindSQLType) {
			pos--
			s.statsFolds++
			left = 0
			continue
		} else if t0.Kind == KindLeftParens && t1.isUnaryOp() {
			pos--
			s.statsFolds++
			if left > 0 {
				left--
			}
			continue
		} else if syntaxMerge(t0, t1) {
			pos--
			s.statsFolds++
			if left > 0 {
				left--
			}
			continue
		} else if (t0.Kind == KindBareword || t0.Kind == KindVariable) &&
			t1.Kind == KindLeftParens && isParenFunction(t0.Val) {
			// words like USER or DATABASE act as functions once
			// followed by an argument list
			t0.Kind = KindFunction
			continue
		} else if t0.Kind == KindKeyword &&
			(strings.EqualFold(t0.Val, "IN") || strings.EqualFold(t0.Val, "NOT IN")) {
			if t1.Kind == KindLeftParens {
				// IN ( ... acts as an equality operator
				t0.Kind = KindOperator
			} else {
				t0.Kind = KindBareword
			}
			continue
		} else if t0.Kind == KindOperator &&
			(strings.EqualFold(t0.Val, "LIKE") || strings.EqualFold(t0.Val, "NOT LIKE")) {
			if t1.Kind == KindLeftParens {
				// LIKE( ... is the function form
				t0.Kind = KindFunction
			}
		} else if t0.Kind == KindSQLType &&
			(t1.Kind == KindBareword || t1.Kind == KindNumber ||
				t1.Kind == KindSQLType || t1.Kind == KindLeftParens ||
				t1.Kind == KindFunction || t1.Kind == KindVariable ||
				t1.Kind == KindString) {
			*t0 = *t1
			pos--
			s.statsFolds++
			left = 0
			continue
		} else if t0.Kind == KindCollate && t1.Kind == KindBareword {
			// collation names carry an underscore; the word after
			// COLLATE is a type name, not data
			if strings.Contains(t1.Val, "_") {
				t1.Kind = KindSQLType
				left = 0
			}
		} else if t0.Kind == KindBackslash {
			if t1.isArithmeticOp() {
				// T-SQL reads '\%1' as '0 % 1'
				t0.Kind = KindNumber
			} else {
				// and '\1' as '1'
				*t0 = *t1
				pos--
				s.statsFolds++
			}
			left = 0
			continue
		} else if t0.Kind == KindLeftParens && t1.Kind == KindLeftParens {
			pos--
			left = 0
			s.statsFolds++
			continue
		} else if t0.Kind == KindRightParens && t1.Kind == KindRightParens {
			pos--
			left = 0
			s.statsFolds++
			continue
		} else if t0.Kind == KindLeftBrace && t1.Kind == KindBareword {
			if len(t1.Val) == 0 {
				// MySQL's {``.``.id} corner; flag it rather than model it
				t1.Kind = KindEvil
				return left + 2
			}
			// ODBC escape {word expr} reduces to expr
			left = 0
			pos -= 2
			s.statsFolds += 2
			continue
		} else if t1.Kind == KindRightBrace {
			pos--
			left = 0
			s.statsFolds++
			continue
		}

		refill(3)
		if pos-left < 3 {
			left = pos
			continue
		}

		t0, t1 = &s.tokens[left], &s.tokens[left+1]
		t2 := &s.tokens[left+2]
		if t0.Kind == KindNumber && t1.Kind == KindOperator && t2.Kind == KindNumber {
			pos -= 2
			left = 0
			continue
		} else if t0.Kind == KindOperator && t1.Kind != KindLeftParens &&
			t2.Kind == KindOperator {
			left = 0
			pos -= 2
			continue
		} else if t0.Kind == KindLogicOperator && t2.Kind == KindLogicOperator {
			pos -= 2
			left = 0
			continue
		} else if t0.Kind == KindVariable && t1.Kind == KindOperator &&
			(t2.Kind == KindVariable || t2.Kind == KindNumber || t2.Kind == KindBareword) {
			pos -= 2
			left = 0
			continue
		} else if (t0.Kind == KindBareword || t0.Kind == KindNumber) &&
			t1.Kind == KindOperator &&
			(t2.Kind == KindNumber || t2.Kind == KindBareword) {
			pos -= 2
			left = 0
			continue
		} else if (t0.Kind == KindBareword || t0.Kind == KindNumber ||
			t0.Kind == KindVariable || t0.Kind == KindString) &&
			t1.Kind == KindOperator && t1.Val == "::" &&
			t2.Kind == KindSQLType {
			pos -= 2
			left = 0
			s.statsFolds += 2
			continue
		} else if (t0.Kind == KindBareword || t0.Kind == KindNumber ||
			t0.Kind == KindString || t0.Kind == KindVariable) &&
			t1.Kind == KindComma &&
			(t2.Kind == KindNumber || t2.Kind == KindBareword ||
				t2.Kind == KindString || t2.Kind == KindVariable) {
			pos -= 2
			left = 0
			continue
		} else if (t0.Kind == KindExpression || t0.Kind == KindGroup || t0.Kind == KindComma) &&
			t1.isUnaryOp() && t2.Kind == KindLeftParens {
			// SELECT + ( drops the unary
			*t1 = *t2
			pos--
			left = 0
			continue
		} else if (t0.Kind == KindKeyword || t0.Kind == KindExpression || t0.Kind == KindGroup) &&
			t1.isUnaryOp() &&
			(t2.Kind == KindNumber || t2.Kind == KindBareword ||
				t2.Kind == KindVariable || t2.Kind == KindString ||
				t2.Kind == KindFunction) {
			// SELECT - 1 drops the unary
			*t1 = *t2
			pos--
			left = 0
			continue
		} else if t0.Kind == KindComma && t1.isUnaryOp() &&
			(t2.Kind == KindNumber || t2.Kind == KindBareword ||
				t2.Kind == KindVariable || t2.Kind == KindString) {
			// ", -1" rewinds a token so the list can keep folding
			*t1 = *t2
			left = 0
			if pos < 3 {
				s.fail()
				return 0
			}
			pos -= 3
			continue
		} else if t0.Kind == KindComma && t1.isUnaryOp() && t2.Kind == KindFunction {
			*t1 = *t2
			pos--
			left = 0
			continue
		} else if t0.Kind == KindBareword && t1.Kind == KindDot && t2.Kind == KindBareword {
			// database.table keeps only the qualifier
			if pos < 3 {
				s.fail()
				return 0
			}
			pos -= 2
			left = 0
			continue
		} else if t0.Kind == KindExpression && t1.Kind == KindDot && t2.Kind == KindBareword {
			// SELECT . `foo` becomes SELECT `foo`
			*t1 = *t2
			pos--
			left = 0
			continue
		} else if t0.Kind == KindFunction && t1.Kind == KindLeftParens &&
			t2.Kind != KindRightParens {
			// USER() takes no arguments, so USER(foo) is a column name
			if strings.EqualFold(t0.Val, "USER") {
				t0.Kind = KindBareword
			}
		}

		left++
	}

	// a trailing comment is kept; it often carries the payload's tail
	if left < maxFoldTokens && lastComment.Kind == KindComment {
		s.tokens[left] = lastComment
		left++
	}
	if left > maxFoldTokens {
		left = maxFoldTokens
	}
	return left
}

// parenFunctionNames are words that read as plain identifiers until an
// argument list follows them.
var parenFunctionNames = []string{
	"USER_ID", "USER_NAME", "DATABASE", "PASSWORD", "USER",
	"CURRENT_USER", "CURRENT_DATE", "CURRENT_TIME", "CURRENT_TIMESTAMP",
	"LOCALTIME", "LOCALTIMESTAMP",
}

func isParenFunction(val string) bool {
	for _, name := range parenFunctionNames {
		if strings.EqualFold(val, name) {
			return true
		}
	}
	return false
}
