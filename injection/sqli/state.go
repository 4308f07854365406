package sqli

import (
	"errors"
	"math/bits"

	"injectguard/platform/injection"
)

// Flags select the quoting context and SQL dialect for a parse pass.
type Flags int

const (
	FlagNone Flags = 0

	// Quoting context: how the input is assumed to be embedded in a
	// surrounding statement. Exactly one applies per pass.
	FlagQuoteNone   Flags = 1 << 0
	FlagQuoteSingle Flags = 1 << 1
	FlagQuoteDouble Flags = 1 << 2

	// Dialect: ANSI comment rules or MySQL extensions.
	FlagSQLAnsi  Flags = 1 << 3
	FlagSQLMysql Flags = 1 << 4
)

const (
	quoteMask   = FlagQuoteNone | FlagQuoteSingle | FlagQuoteDouble
	dialectMask = FlagSQLAnsi | FlagSQLMysql
)

// MaxInputLen is the largest input a State accepts. Longer payloads are
// rejected at construction rather than scanned.
const MaxInputLen = 1 << 20

var (
	// ErrInputTooLarge is returned by NewState when the input exceeds
	// MaxInputLen.
	ErrInputTooLarge = errors.New("sqli: input exceeds maximum scan length")

	// ErrInvalidFlags is returned by NewState when the flag combination
	// is unknown or self-contradictory.
	ErrInvalidFlags = errors.New("sqli: invalid flag combination")
)

// validate rejects unknown bits and contradictory selections. FlagNone is
// valid and means "use defaults".
func (f Flags) validate() error {
	if f&^(quoteMask|dialectMask) != 0 {
		return ErrInvalidFlags
	}
	if bits.OnesCount(uint(f&quoteMask)) > 1 {
		return ErrInvalidFlags
	}
	if bits.OnesCount(uint(f&dialectMask)) > 1 {
		return ErrInvalidFlags
	}
	return nil
}

// normalize fills in the default quoting context and dialect for any
// selection the caller left open.
func (f Flags) normalize() Flags {
	if f&quoteMask == 0 {
		f |= FlagQuoteNone
	}
	if f&dialectMask == 0 {
		f |= FlagSQLAnsi
	}
	return f
}

// delim returns the quote character the context simulates, or zero for
// an unquoted context.
func (f Flags) delim() byte {
	switch {
	case f&FlagQuoteSingle != 0:
		return '\''
	case f&FlagQuoteDouble != 0:
		return '"'
	default:
		return 0
	}
}

// State holds one analysis of one input. A State is single-use per input
// but may be rescanned under different flags internally; once any pass
// reports an error the State is poisoned and every later call returns
// ResultError.
type State struct {
	cur   injection.Cursor
	flags Flags

	// tokens is the folding window. Folding looks at most three tokens
	// ahead of the five it keeps, so the window is sized with slack.
	tokens  [8]Token
	current int

	fingerprint string

	// Comment statistics drive the MySQL reparse decision.
	statsCommentDDW  int
	statsCommentDDX  int
	statsCommentC    int
	statsCommentHash int
	statsFolds       int
	statsTokens      int

	corrupt bool
}

// NewState prepares an analysis of input under the given flags. FlagNone
// selects the unquoted ANSI context. The input is not copied.
func NewState(input string, flags Flags) (*State, error) {
	if err := flags.validate(); err != nil {
		return nil, err
	}
	if len(input) > MaxInputLen {
		return nil, ErrInputTooLarge
	}
	return &State{
		cur:   injection.NewCursor(input),
		flags: flags.normalize(),
	}, nil
}

// reset rewinds the state for a fresh pass under the given flags. The
// corruption latch survives resets: a poisoned state stays poisoned.
func (s *State) reset(flags Flags) {
	input := s.cur.Input()
	s.cur = injection.NewCursor(input)
	s.flags = flags.normalize()
	s.tokens = [8]Token{}
	s.current = 0
	s.fingerprint = ""
	s.statsCommentDDW = 0
	s.statsCommentDDX = 0
	s.statsCommentC = 0
	s.statsCommentHash = 0
	s.statsFolds = 0
	s.statsTokens = 0
}

// fail latches the state into the error condition.
func (s *State) fail() { s.corrupt = true }

// failed reports whether this state, or its cursor, has tripped a guard.
func (s *State) failed() bool { return s.corrupt || s.cur.Violated() }

// Fingerprint returns the fingerprint of the most recent pass. It is
// empty before Run, after an empty input, or once the state is poisoned.
func (s *State) Fingerprint() string {
	if s.failed() {
		return ""
	}
	return s.fingerprint
}

// Tokens returns the folded token window of the most recent pass. The
// slice aliases internal state and is valid until the next Run.
func (s *State) Tokens() []Token {
	if s.failed() {
		return nil
	}
	n := len(s.fingerprint)
	if n > len(s.tokens) {
		n = len(s.tokens)
	}
	return s.tokens[:n]
}
