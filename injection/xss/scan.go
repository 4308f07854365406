// Package xss detects markup capable of script execution inside text
// that may land in an HTML context. A guarded outer scan walks the
// input for tag-open bytes and hands each candidate region to a fresh
// html5 tokenizer; tokens are classified against blacklists of tag
// names, attribute classes and URL schemes known to reach script
// execution. The input is tried once per plausible HTML context:
// plain data plus the four attribute-value quoting styles.
//
// Scan never panics on hostile input. A cursor violation anywhere,
// outer or inner, surfaces as injection.ResultError.
package xss

import (
	"injectguard/platform/injection"
	"injectguard/platform/injection/html5"
)

// passStates are the HTML contexts a fragment is evaluated in.
var passStates = [...]html5.StartState{
	html5.StateData,
	html5.StateValueNoQuote,
	html5.StateValueSingleQuote,
	html5.StateValueDoubleQuote,
	html5.StateValueBackQuote,
}

// tokenSource is the sub-machine surface the scanner drives. The real
// implementation is an html5.Tokenizer; tests substitute failing
// sources to verify error handling.
type tokenSource interface {
	Next() injection.Result
	Token() html5.Token
	Pos() int
}

type sourceFactory func(input string, start html5.StartState) (tokenSource, error)

func html5Source(input string, start html5.StartState) (tokenSource, error) {
	tk, err := html5.NewTokenizer(input, start)
	if err != nil {
		return nil, err
	}
	return tk, nil
}

// Scan reports whether input contains markup that would execute when
// rendered in any of the candidate HTML contexts.
func Scan(input string) injection.Result {
	return scanPasses(input, html5Source)
}

func scanPasses(input string, newSource sourceFactory) injection.Result {
	for _, start := range passStates {
		if res := scanFrom(input, start, newSource); res != injection.ResultNoMatch {
			return res
		}
	}
	return injection.ResultNoMatch
}

// scanFrom evaluates input in one HTML context. The outer cursor only
// looks for tag-open bytes; everything from there on is delegated to a
// tokenizer constructed at the ambiguous offset and thrown away once
// the region it was opened for is classified.
func scanFrom(input string, start html5.StartState, newSource sourceFactory) injection.Result {
	cur := injection.NewCursor(input)

	// a value context is ambiguous from byte zero; plain data only
	// becomes interesting at a tag-open byte
	delegate := start != html5.StateData

	for {
		offset := cur.Pos()
		state := start
		if !delegate {
			idx := cur.Find('<', offset)
			if idx < 0 {
				return injection.ResultNoMatch
			}
			offset = idx
			state = html5.StateData
		}
		delegate = false

		rest, ok := cur.Slice(offset, cur.Len())
		if !ok {
			return injection.ResultError
		}
		sub, err := newSource(rest, state)
		if err != nil {
			return injection.ResultError
		}

		res, resume := drive(sub)
		if res != injection.ResultNoMatch {
			return res
		}
		if resume < 0 {
			// token stream exhausted without a verdict
			return injection.ResultNoMatch
		}
		// the outer cursor moves to the sub-machine's final position,
		// never back into a consumed region
		if resume == 0 || !cur.Seek(offset+resume) {
			return injection.ResultError
		}
	}
}

// drive steps one tokenizer until it produces a verdict, runs out of
// input, or closes the region it was opened for. A negative resume
// offset means the stream ended; otherwise it is the sub-machine's
// final cursor, relative to its own input, where the outer scan takes
// over again. Errors from the source are returned as-is.
func drive(src tokenSource) (injection.Result, int) {
	pending := attrNone
	for {
		switch res := src.Next(); res {
		case injection.ResultError:
			return injection.ResultError, -1
		case injection.ResultNoMatch:
			return injection.ResultNoMatch, -1
		}

		tk := src.Token()
		if tk.Kind != html5.AttrValue {
			pending = attrNone
		}
		switch tk.Kind {
		case html5.Doctype:
			// user input has no business declaring a doctype
			return injection.ResultMatch, -1
		case html5.TagNameOpen:
			if isBlackTag(tk.Val) {
				return injection.ResultMatch, -1
			}
		case html5.AttrName:
			pending = classifyAttr(tk.Val)
		case html5.AttrValue:
			switch pending {
			case attrBlack, attrStyle:
				return injection.ResultMatch, -1
			case attrURL:
				if isBlackURL(tk.Val) {
					return injection.ResultMatch, -1
				}
			case attrIndirect:
				if classifyAttr(tk.Val) != attrNone {
					return injection.ResultMatch, -1
				}
			}
			pending = attrNone
		case html5.TagComment:
			if dangerousComment(tk.Val) {
				return injection.ResultMatch, -1
			}
			return injection.ResultNoMatch, src.Pos()
		case html5.TagNameClose, html5.TagNameSelfClose, html5.TagClose, html5.DataText:
			// these tokens end a markup region; everything before the
			// sub-machine's cursor is classified
			return injection.ResultNoMatch, src.Pos()
		}
	}
}
