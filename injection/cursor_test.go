package injection

import "testing"

func TestCursorQueries(t *testing.T) {
	c := NewCursor("abcdef")

	if c.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", c.Len())
	}
	if c.Pos() != 0 {
		t.Fatalf("Pos() = %d, want 0", c.Pos())
	}

	b, ok := c.Peek()
	if !ok || b != 'a' {
		t.Errorf("Peek() = %q, %v, want 'a', true", b, ok)
	}

	b, ok = c.At(5)
	if !ok || b != 'f' {
		t.Errorf("At(5) = %q, %v, want 'f', true", b, ok)
	}

	// Out-of-range queries answer !ok without latching a violation.
	if _, ok := c.At(6); ok {
		t.Error("At(6) succeeded past end of input")
	}
	if _, ok := c.At(-1); ok {
		t.Error("At(-1) succeeded")
	}
	if c.Violated() {
		t.Error("query past end latched a violation")
	}

	s, ok := c.Span(3)
	if !ok || s != "abc" {
		t.Errorf("Span(3) = %q, %v, want \"abc\", true", s, ok)
	}
	if _, ok := c.Span(7); ok {
		t.Error("Span(7) succeeded on 6-byte input")
	}

	s, ok = c.Slice(2, 4)
	if !ok || s != "cd" {
		t.Errorf("Slice(2,4) = %q, %v, want \"cd\", true", s, ok)
	}
	if _, ok := c.Slice(4, 2); ok {
		t.Error("Slice(4,2) succeeded with j < i")
	}
	if _, ok := c.Slice(0, 7); ok {
		t.Error("Slice(0,7) succeeded past end of input")
	}
}

func TestCursorFind(t *testing.T) {
	c := NewCursor("a'b'c")

	if got := c.Find('\'', 0); got != 1 {
		t.Errorf("Find(', 0) = %d, want 1", got)
	}
	if got := c.Find('\'', 2); got != 3 {
		t.Errorf("Find(', 2) = %d, want 3", got)
	}
	if got := c.Find('x', 0); got != -1 {
		t.Errorf("Find(x, 0) = %d, want -1", got)
	}
	if got := c.Find('a', 9); got != -1 {
		t.Errorf("Find(a, 9) = %d, want -1", got)
	}
	// Searching from exactly len is an empty search, not a fault.
	if got := c.Find('a', 5); got != -1 {
		t.Errorf("Find(a, 5) = %d, want -1", got)
	}
	if c.Violated() {
		t.Error("Find latched a violation")
	}
}

func TestCursorCommits(t *testing.T) {
	c := NewCursor("hello")

	if !c.Advance(2) {
		t.Fatal("Advance(2) failed")
	}
	if c.Pos() != 2 {
		t.Errorf("Pos() = %d, want 2", c.Pos())
	}
	if c.Rest() != "llo" {
		t.Errorf("Rest() = %q, want \"llo\"", c.Rest())
	}

	// Seeking to len is the legal end-of-input resting point.
	if !c.Seek(5) {
		t.Error("Seek(len) failed")
	}
	if !c.Done() {
		t.Error("Done() = false at end of input")
	}

	// Rewinding through Seek is allowed as long as the target is in range.
	if !c.Seek(0) {
		t.Error("Seek(0) rewind failed")
	}
	if c.Violated() {
		t.Error("legal commits latched a violation")
	}
}

func TestCursorViolationLatches(t *testing.T) {
	tests := []struct {
		name string
		trip func(c *Cursor)
	}{
		{"seek past end", func(c *Cursor) { c.Seek(99) }},
		{"seek negative", func(c *Cursor) { c.Seek(-1) }},
		{"advance past end", func(c *Cursor) { c.Advance(99) }},
		{"advance negative", func(c *Cursor) { c.Advance(-1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCursor("abc")
			tt.trip(&c)
			if !c.Violated() {
				t.Fatal("violation not latched")
			}

			// Every subsequent operation fails: the state is poisoned.
			if _, ok := c.Peek(); ok {
				t.Error("Peek succeeded on violated cursor")
			}
			if _, ok := c.Slice(0, 1); ok {
				t.Error("Slice succeeded on violated cursor")
			}
			if c.Find('a', 0) != -1 {
				t.Error("Find succeeded on violated cursor")
			}
			if c.Seek(0) {
				t.Error("Seek succeeded on violated cursor")
			}
			if c.Advance(0) {
				t.Error("Advance succeeded on violated cursor")
			}
			if c.Rest() != "" {
				t.Error("Rest returned data from violated cursor")
			}
			if !c.Done() {
				t.Error("violated cursor is not Done")
			}
		})
	}
}

func TestCursorEmptyInput(t *testing.T) {
	c := NewCursor("")

	if !c.Done() {
		t.Error("empty cursor not Done")
	}
	if _, ok := c.Peek(); ok {
		t.Error("Peek succeeded on empty input")
	}
	if s, ok := c.Slice(0, 0); !ok || s != "" {
		t.Error("zero-width slice of empty input failed")
	}
	if !c.Seek(0) {
		t.Error("Seek(0) failed on empty input")
	}
	if c.Violated() {
		t.Error("empty input latched a violation")
	}
}
