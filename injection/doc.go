// Package injection provides the shared execution contract for the
// InjectGuard payload analyzers.
//
// Three analyzers build on this package: a SQL tokenizer/fingerprinter
// (injection/sqli), a markup heuristic scanner (injection/xss), and an
// HTML5 tokenizer (injection/html5). All of them walk attacker-controlled
// bytes, so every read goes through a bounds-checked Cursor and every
// public entry point reports a tri-state Result instead of trusting the
// input enough to index into it directly.
//
// # Results
//
// Result keeps the numeric encoding of the original C-era API:
//
//	ResultNoMatch = 0
//	ResultMatch   = 1
//	ResultError   = -1
//
// A plain truthiness check (result != 0) treats ResultError like a match,
// which is the fail-closed reading and the reason the error sentinel is
// negative rather than a second zero. New code should branch on the named
// constants; Result.Truthy exists for callers porting the legacy boolean
// contract.
//
// # Cursors
//
// Cursor wraps an immutable input string plus a position. Reads and
// lookaheads are queries: out-of-range access answers with ok=false and
// performs no read. Commits (Seek, Advance) are checked moves: an attempt
// to place the cursor outside [0, len] latches the cursor as violated,
// after which every operation fails. Analyzers translate a latched cursor
// into ResultError and never reuse the state.
package injection
