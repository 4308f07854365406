package injection

import "strings"

// Cursor is a guarded read cursor over an immutable byte buffer.
//
// Query methods (At, Peek, Span, Slice, Find) bounds-check the requested
// access and answer ok=false instead of reading when it does not fit;
// probing past end-of-input is a normal answer, not a fault. Commit
// methods (Seek, Advance) move the cursor and treat any target outside
// [0, Len] as corruption: the cursor latches into a violated state and
// every subsequent operation fails. The invariant 0 <= Pos <= Len holds
// at every point a caller can observe.
//
// A Cursor borrows its input; the string must stay unmodified for the
// cursor's lifetime. Cursors are not safe for concurrent use.
type Cursor struct {
	buf      string
	pos      int
	violated bool
}

// NewCursor returns a cursor positioned at the start of input.
func NewCursor(input string) Cursor {
	return Cursor{buf: input}
}

// Len returns the input length in bytes.
func (c *Cursor) Len() int {
	return len(c.buf)
}

// Input returns the complete underlying buffer, independent of position.
func (c *Cursor) Input() string {
	return c.buf
}

// Pos returns the current position.
func (c *Cursor) Pos() int {
	return c.pos
}

// Done reports whether the cursor has consumed all input or is violated.
func (c *Cursor) Done() bool {
	return c.violated || c.pos >= len(c.buf)
}

// Violated reports whether a commit ever tried to move the cursor outside
// the buffer. Once set it never clears; the owning context must be
// discarded.
func (c *Cursor) Violated() bool {
	return c.violated
}

// Peek returns the byte at the current position without advancing.
func (c *Cursor) Peek() (byte, bool) {
	return c.At(c.pos)
}

// At returns the byte at absolute index i.
func (c *Cursor) At(i int) (byte, bool) {
	if c.violated || i < 0 || i >= len(c.buf) {
		return 0, false
	}
	return c.buf[i], true
}

// Span returns the next n bytes starting at the current position without
// advancing. It fails if the span does not fit in the remaining input.
func (c *Cursor) Span(n int) (string, bool) {
	return c.Slice(c.pos, c.pos+n)
}

// Slice returns buf[i:j]. Lengths derived from input content must pass
// through here (or Span) so they are re-validated against the real buffer
// before use.
func (c *Cursor) Slice(i, j int) (string, bool) {
	if c.violated || i < 0 || j < i || j > len(c.buf) {
		return "", false
	}
	return c.buf[i:j], true
}

// Find returns the absolute index of the first occurrence of b at or
// after index from, or -1 if absent or from is out of range. The scan
// itself never leaves the buffer.
func (c *Cursor) Find(b byte, from int) int {
	if c.violated || from < 0 || from > len(c.buf) {
		return -1
	}
	if i := strings.IndexByte(c.buf[from:], b); i >= 0 {
		return from + i
	}
	return -1
}

// Rest returns the unconsumed remainder of the input, or "" if the cursor
// is violated.
func (c *Cursor) Rest() string {
	if c.violated {
		return ""
	}
	return c.buf[c.pos:]
}

// Seek commits the cursor to absolute position i. Position Len (one past
// the final byte) is the legal end-of-input resting point; anything
// negative or beyond Len latches the violation and reports failure.
func (c *Cursor) Seek(i int) bool {
	if c.violated {
		return false
	}
	if i < 0 || i > len(c.buf) {
		c.violated = true
		return false
	}
	c.pos = i
	return true
}

// Advance commits a forward move of n bytes. Negative distances are a
// violation; rewinding is only possible through Seek, which re-checks the
// target against zero.
func (c *Cursor) Advance(n int) bool {
	if c.violated {
		return false
	}
	if n < 0 {
		c.violated = true
		return false
	}
	return c.Seek(c.pos + n)
}
