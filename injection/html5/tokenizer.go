// Package html5 is a pull-style HTML5 tokenizer over untrusted input.
//
// The machine follows the WHATWG tokenization states loosely, with the
// quirks legacy browsers add (NULs inside tag names, backquoted
// attribute values, percent comments). Every byte access and every
// cursor movement goes through a guarded cursor: a transition that
// computes an out-of-range position poisons the tokenizer and surfaces
// [injection.ResultError] instead of reading wild.
package html5

import (
	"errors"
	"fmt"
	"strings"

	"injectguard/platform/injection"
)

// ErrInvalidStartState is returned by NewTokenizer for a start state
// outside the published enumeration.
var ErrInvalidStartState = errors.New("html5: invalid start state")

type stateFn func(*Tokenizer) injection.Result

// Tokenizer steps through input producing a lazy, finite,
// non-restartable token sequence. It is not safe for concurrent use;
// independent tokenizers over the same input are.
type Tokenizer struct {
	cur     injection.Cursor
	state   stateFn
	token   Token
	isClose bool
	stall   int
	corrupt bool
}

// maxStall bounds consecutive steps that produce a token without
// consuming input. The machine legitimately emits at most two such
// steps in a row (a stray '<' retreating to data, then the trailing
// remainder); more cannot terminate and is treated as corruption.
const maxStall = 3

// NewTokenizer returns a tokenizer over input beginning in start.
func NewTokenizer(input string, start StartState) (*Tokenizer, error) {
	t := &Tokenizer{cur: injection.NewCursor(input)}
	switch start {
	case StateData:
		t.state = (*Tokenizer).stateData
	case StateValueNoQuote:
		t.state = (*Tokenizer).stateBeforeAttrName
	case StateValueSingleQuote:
		t.state = (*Tokenizer).stateAttrValueSingleQuote
	case StateValueDoubleQuote:
		t.state = (*Tokenizer).stateAttrValueDoubleQuote
	case StateValueBackQuote:
		t.state = (*Tokenizer).stateAttrValueBackQuote
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidStartState, int(start))
	}
	return t, nil
}

// Next advances to the next token. Match means Token holds a fresh
// descriptor; NoMatch means clean end of input and the sequence is
// over; Error means the cursor was corrupted and the tokenizer is
// poisoned. After NoMatch or Error every further call repeats the same
// answer; restarting requires a new Tokenizer.
func (t *Tokenizer) Next() injection.Result {
	if t.corrupt {
		return injection.ResultError
	}
	before := t.cur.Pos()
	res := t.state(t)
	if res == injection.ResultError || t.corrupt || t.cur.Violated() {
		t.corrupt = true
		return injection.ResultError
	}
	if res == injection.ResultMatch {
		if t.cur.Pos() == before {
			t.stall++
			if t.stall >= maxStall {
				return t.fail()
			}
		} else {
			t.stall = 0
		}
	}
	return res
}

// Token returns the descriptor produced by the most recent Match.
func (t *Tokenizer) Token() Token {
	return t.token
}

// Pos returns the first unconsumed position. A delegating caller uses
// it to resume its own scan past everything the tokenizer covered.
func (t *Tokenizer) Pos() int {
	return t.cur.Pos()
}

func (t *Tokenizer) fail() injection.Result {
	t.corrupt = true
	return injection.ResultError
}

// emit records a token for the span [start, end) and commits the cursor
// to position to.
func (t *Tokenizer) emit(kind TokenKind, start, end, to int) injection.Result {
	val, ok := t.cur.Slice(start, end)
	if !ok {
		return t.fail()
	}
	if !t.cur.Seek(to) {
		return t.fail()
	}
	t.token = Token{Kind: kind, Pos: start, Val: val}
	return injection.ResultMatch
}

// isWhite reports HTML whitespace. NUL counts; old IE parses it that
// way and attack payloads exploit it.
func isWhite(ch byte) bool {
	switch ch {
	case 0x00, ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

func isAlpha(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

// skipWhite advances over whitespace and returns the byte it stopped
// on, or ok=false at end of input.
func (t *Tokenizer) skipWhite() (byte, bool) {
	for {
		ch, ok := t.cur.Peek()
		if !ok {
			return 0, false
		}
		if !isWhite(ch) {
			return ch, true
		}
		if !t.cur.Advance(1) {
			return 0, false
		}
	}
}

func (t *Tokenizer) stateEOF() injection.Result {
	return injection.ResultNoMatch
}

func (t *Tokenizer) stateData() injection.Result {
	pos := t.cur.Pos()
	idx := t.cur.Find('<', pos)
	if idx < 0 {
		t.state = (*Tokenizer).stateEOF
		if pos >= t.cur.Len() {
			return injection.ResultNoMatch
		}
		return t.emit(DataText, pos, t.cur.Len(), t.cur.Len())
	}
	res := t.emit(DataText, pos, idx, idx+1)
	if res != injection.ResultMatch {
		return res
	}
	t.state = (*Tokenizer).stateTagOpen
	if idx == pos {
		// nothing before the '<'; go straight into the tag
		return t.stateTagOpen()
	}
	return res
}

func (t *Tokenizer) stateTagOpen() injection.Result {
	ch, ok := t.cur.Peek()
	if !ok {
		return injection.ResultNoMatch
	}
	switch {
	case ch == '!':
		if !t.cur.Advance(1) {
			return t.fail()
		}
		return t.stateMarkupDeclarationOpen()
	case ch == '/':
		if !t.cur.Advance(1) {
			return t.fail()
		}
		t.isClose = true
		return t.stateEndTagOpen()
	case ch == '?':
		if !t.cur.Advance(1) {
			return t.fail()
		}
		return t.stateBogusComment()
	case ch == '%':
		// IE<=9 and old Safari read <% ... %> as a comment
		if !t.cur.Advance(1) {
			return t.fail()
		}
		return t.stateBogusCommentPercent()
	case isAlpha(ch) || ch == 0:
		return t.stateTagName()
	default:
		pos := t.cur.Pos()
		if pos == 0 {
			// a mid-tag start state pointed at junk; treat as data
			t.state = (*Tokenizer).stateData
			return t.stateData()
		}
		// the '<' was literal text after all
		t.state = (*Tokenizer).stateData
		return t.emit(DataText, pos-1, pos, pos)
	}
}

func (t *Tokenizer) stateEndTagOpen() injection.Result {
	ch, ok := t.cur.Peek()
	if !ok {
		return injection.ResultNoMatch
	}
	switch {
	case ch == '>':
		if !t.cur.Advance(1) {
			return t.fail()
		}
		t.state = (*Tokenizer).stateData
		return t.stateData()
	case isAlpha(ch):
		return t.stateTagName()
	}
	t.isClose = false
	return t.stateBogusComment()
}

func (t *Tokenizer) stateTagName() injection.Result {
	start := t.cur.Pos()
	pos := start
	for {
		ch, ok := t.cur.At(pos)
		if !ok {
			break
		}
		switch {
		case ch == 0:
			// old browsers drop NULs inside tag names
			pos++
		case isWhite(ch):
			t.state = (*Tokenizer).stateBeforeAttrName
			return t.emit(TagNameOpen, start, pos, pos+1)
		case ch == '/':
			t.state = (*Tokenizer).stateSelfClosing
			return t.emit(TagNameOpen, start, pos, pos+1)
		case ch == '>':
			if t.isClose {
				t.isClose = false
				t.state = (*Tokenizer).stateData
				return t.emit(TagClose, start, pos, pos+1)
			}
			t.state = (*Tokenizer).stateTagNameClose
			return t.emit(TagNameOpen, start, pos, pos)
		default:
			pos++
		}
	}
	t.state = (*Tokenizer).stateEOF
	return t.emit(TagNameOpen, start, t.cur.Len(), t.cur.Len())
}

func (t *Tokenizer) stateTagNameClose() injection.Result {
	t.isClose = false
	pos := t.cur.Pos()
	res := t.emit(TagNameClose, pos, pos+1, pos+1)
	if res != injection.ResultMatch {
		return res
	}
	if t.cur.Done() {
		t.state = (*Tokenizer).stateEOF
	} else {
		t.state = (*Tokenizer).stateData
	}
	return res
}

func (t *Tokenizer) stateSelfClosing() injection.Result {
	ch, ok := t.cur.Peek()
	if !ok {
		return injection.ResultNoMatch
	}
	if ch != '>' {
		return t.stateBeforeAttrName()
	}
	pos := t.cur.Pos()
	if pos == 0 {
		// there is no '/' before position zero; the state is impossible
		return t.fail()
	}
	t.state = (*Tokenizer).stateData
	return t.emit(TagNameSelfClose, pos-1, pos+1, pos+1)
}

func (t *Tokenizer) stateBeforeAttrName() injection.Result {
	ch, ok := t.skipWhite()
	if !ok {
		return injection.ResultNoMatch
	}
	switch ch {
	case '/':
		if !t.cur.Advance(1) {
			return t.fail()
		}
		return t.stateSelfClosing()
	case '>':
		pos := t.cur.Pos()
		t.state = (*Tokenizer).stateData
		return t.emit(TagNameClose, pos, pos+1, pos+1)
	}
	return t.stateAttrName()
}

func (t *Tokenizer) stateAttrName() injection.Result {
	start := t.cur.Pos()
	// the first byte is always part of the name
	pos := start + 1
	for {
		ch, ok := t.cur.At(pos)
		if !ok {
			break
		}
		switch {
		case isWhite(ch):
			t.state = (*Tokenizer).stateAfterAttrName
			return t.emit(AttrName, start, pos, pos+1)
		case ch == '/':
			t.state = (*Tokenizer).stateSelfClosing
			return t.emit(AttrName, start, pos, pos+1)
		case ch == '=':
			t.state = (*Tokenizer).stateBeforeAttrValue
			return t.emit(AttrName, start, pos, pos+1)
		case ch == '>':
			t.state = (*Tokenizer).stateTagNameClose
			return t.emit(AttrName, start, pos, pos)
		default:
			pos++
		}
	}
	t.state = (*Tokenizer).stateEOF
	return t.emit(AttrName, start, t.cur.Len(), t.cur.Len())
}

func (t *Tokenizer) stateAfterAttrName() injection.Result {
	ch, ok := t.skipWhite()
	if !ok {
		return injection.ResultNoMatch
	}
	switch ch {
	case '/':
		if !t.cur.Advance(1) {
			return t.fail()
		}
		return t.stateSelfClosing()
	case '=':
		if !t.cur.Advance(1) {
			return t.fail()
		}
		return t.stateBeforeAttrValue()
	case '>':
		return t.stateTagNameClose()
	}
	return t.stateAttrName()
}

func (t *Tokenizer) stateBeforeAttrValue() injection.Result {
	ch, ok := t.skipWhite()
	if !ok {
		t.state = (*Tokenizer).stateEOF
		return injection.ResultNoMatch
	}
	switch ch {
	case '"':
		return t.stateAttrValueDoubleQuote()
	case '\'':
		return t.stateAttrValueSingleQuote()
	case '`':
		// IE-only quoting
		return t.stateAttrValueBackQuote()
	}
	return t.stateAttrValueNoQuote()
}

// attrValueQuoted handles all three quote characters. When the machine
// starts at position zero it is resuming inside a value, so there is no
// opening quote to skip.
func (t *Tokenizer) attrValueQuoted(q byte) injection.Result {
	pos := t.cur.Pos()
	if pos > 0 {
		pos++
	}
	idx := t.cur.Find(q, pos)
	if idx < 0 {
		t.state = (*Tokenizer).stateEOF
		return t.emit(AttrValue, pos, t.cur.Len(), t.cur.Len())
	}
	t.state = (*Tokenizer).stateAfterAttrValueQuoted
	return t.emit(AttrValue, pos, idx, idx+1)
}

func (t *Tokenizer) stateAttrValueDoubleQuote() injection.Result {
	return t.attrValueQuoted('"')
}

func (t *Tokenizer) stateAttrValueSingleQuote() injection.Result {
	return t.attrValueQuoted('\'')
}

func (t *Tokenizer) stateAttrValueBackQuote() injection.Result {
	return t.attrValueQuoted('`')
}

func (t *Tokenizer) stateAttrValueNoQuote() injection.Result {
	start := t.cur.Pos()
	pos := start
	for {
		ch, ok := t.cur.At(pos)
		if !ok {
			break
		}
		if isWhite(ch) {
			t.state = (*Tokenizer).stateBeforeAttrName
			return t.emit(AttrValue, start, pos, pos+1)
		}
		if ch == '>' {
			t.state = (*Tokenizer).stateTagNameClose
			return t.emit(AttrValue, start, pos, pos)
		}
		pos++
	}
	t.state = (*Tokenizer).stateEOF
	return t.emit(AttrValue, start, t.cur.Len(), t.cur.Len())
}

func (t *Tokenizer) stateAfterAttrValueQuoted() injection.Result {
	ch, ok := t.cur.Peek()
	if !ok {
		return injection.ResultNoMatch
	}
	switch {
	case isWhite(ch):
		if !t.cur.Advance(1) {
			return t.fail()
		}
		return t.stateBeforeAttrName()
	case ch == '/':
		if !t.cur.Advance(1) {
			return t.fail()
		}
		return t.stateSelfClosing()
	case ch == '>':
		pos := t.cur.Pos()
		t.state = (*Tokenizer).stateData
		return t.emit(TagNameClose, pos, pos+1, pos+1)
	}
	return t.stateBeforeAttrName()
}

func (t *Tokenizer) stateMarkupDeclarationOpen() injection.Result {
	if head, ok := t.cur.Span(7); ok {
		if strings.EqualFold(head, "doctype") {
			return t.stateDoctype()
		}
		// case sensitive, per spec
		if head == "[CDATA[" {
			if !t.cur.Advance(7) {
				return t.fail()
			}
			return t.stateCDATA()
		}
	}
	if head, ok := t.cur.Span(2); ok && head == "--" {
		if !t.cur.Advance(2) {
			return t.fail()
		}
		return t.stateComment()
	}
	return t.stateBogusComment()
}

func (t *Tokenizer) stateDoctype() injection.Result {
	pos := t.cur.Pos()
	idx := t.cur.Find('>', pos)
	if idx < 0 {
		t.state = (*Tokenizer).stateEOF
		return t.emit(Doctype, pos, t.cur.Len(), t.cur.Len())
	}
	t.state = (*Tokenizer).stateData
	return t.emit(Doctype, pos, idx, idx+1)
}

// stateComment scans for a "-->" or "-!>" terminator. NULs between the
// first dash and the rest are skipped, matching IE.
func (t *Tokenizer) stateComment() injection.Result {
	start := t.cur.Pos()
	pos := start
	for {
		idx := t.cur.Find('-', pos)
		if idx < 0 || idx > t.cur.Len()-3 {
			t.state = (*Tokenizer).stateEOF
			return t.emit(TagComment, start, t.cur.Len(), t.cur.Len())
		}
		off := idx + 1
		for {
			ch, ok := t.cur.At(off)
			if !ok || ch != 0 {
				break
			}
			off++
		}
		ch, ok := t.cur.At(off)
		if !ok {
			t.state = (*Tokenizer).stateEOF
			return t.emit(TagComment, start, t.cur.Len(), t.cur.Len())
		}
		if ch != '-' && ch != '!' {
			pos = idx + 1
			continue
		}
		off++
		ch, ok = t.cur.At(off)
		if !ok {
			t.state = (*Tokenizer).stateEOF
			return t.emit(TagComment, start, t.cur.Len(), t.cur.Len())
		}
		if ch != '>' {
			pos = idx + 1
			continue
		}
		t.state = (*Tokenizer).stateData
		return t.emit(TagComment, start, idx, off+1)
	}
}

func (t *Tokenizer) stateCDATA() injection.Result {
	start := t.cur.Pos()
	pos := start
	for {
		idx := t.cur.Find(']', pos)
		if idx < 0 || idx > t.cur.Len()-3 {
			t.state = (*Tokenizer).stateEOF
			return t.emit(DataText, start, t.cur.Len(), t.cur.Len())
		}
		b1, ok1 := t.cur.At(idx + 1)
		b2, ok2 := t.cur.At(idx + 2)
		if ok1 && ok2 && b1 == ']' && b2 == '>' {
			t.state = (*Tokenizer).stateData
			return t.emit(DataText, start, idx, idx+3)
		}
		pos = idx + 1
	}
}

func (t *Tokenizer) stateBogusComment() injection.Result {
	pos := t.cur.Pos()
	idx := t.cur.Find('>', pos)
	if idx < 0 {
		t.state = (*Tokenizer).stateEOF
		return t.emit(TagComment, pos, t.cur.Len(), t.cur.Len())
	}
	t.state = (*Tokenizer).stateData
	return t.emit(TagComment, pos, idx, idx+1)
}

func (t *Tokenizer) stateBogusCommentPercent() injection.Result {
	start := t.cur.Pos()
	pos := start
	for {
		idx := t.cur.Find('%', pos)
		if idx < 0 {
			t.state = (*Tokenizer).stateEOF
			return t.emit(TagComment, start, t.cur.Len(), t.cur.Len())
		}
		ch, ok := t.cur.At(idx + 1)
		if !ok {
			t.state = (*Tokenizer).stateEOF
			return t.emit(TagComment, start, t.cur.Len(), t.cur.Len())
		}
		if ch != '>' {
			pos = idx + 1
			continue
		}
		t.state = (*Tokenizer).stateData
		return t.emit(TagComment, start, idx, idx+2)
	}
}
