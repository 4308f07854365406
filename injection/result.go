package injection

// Result is the outcome of an analyzer run or step.
//
// The numeric values are a stable part of the API. NO_MATCH and MATCH keep
// their historical 0/1 encoding, and the error sentinel is negative so that
// legacy truthy checks fail closed: an internal parse failure looks like a
// match, never like clean input.
type Result int8

const (
	// ResultNoMatch means the input was walked to completion and nothing
	// malicious was found.
	ResultNoMatch Result = 0

	// ResultMatch means a known-malicious shape (or, for the HTML5
	// tokenizer, a produced token) was found.
	ResultMatch Result = 1

	// ResultError means a cursor or state invariant was violated while
	// parsing. The analyzer context is poisoned; re-running it returns
	// ResultError again and a fresh context is required to retry.
	ResultError Result = -1
)

// String returns the lowercase name of the result.
func (r Result) String() string {
	switch r {
	case ResultNoMatch:
		return "no_match"
	case ResultMatch:
		return "match"
	case ResultError:
		return "error"
	default:
		return "invalid"
	}
}

// Truthy reports the legacy boolean interpretation: anything other than
// ResultNoMatch is "true". Under this reading ResultError is
// indistinguishable from ResultMatch, which is deliberate (fail closed)
// but also why callers that must distinguish a broken parse from a
// detection have to compare against the constants instead.
func (r Result) Truthy() bool {
	return r != ResultNoMatch
}

// IsError reports whether the result is ResultError.
func (r Result) IsError() bool {
	return r == ResultError
}
