// Package sqli detects SQL injection payloads by structural
// fingerprinting.
//
// Input is tokenized behind a guarded cursor, folded down to at most
// five load-bearing tokens, and the sequence of token class codes (the
// fingerprint) is looked up in a set of known attack shapes. Because a
// payload's meaning depends on where in a statement it lands, the same
// input is retried under several quoting contexts: as-is, under MySQL
// comment rules, inside single quotes, and inside double quotes.
//
// # Usage
//
//	result, fingerprint := sqli.Scan(userInput)
//	if result == injection.ResultMatch {
//	    log.Printf("sql injection, shape %s", fingerprint)
//	}
//
// For control over the context, construct a State:
//
//	st, err := sqli.NewState(userInput, sqli.FlagQuoteSingle|sqli.FlagSQLMysql)
//	if err != nil {
//	    // oversized input or an invalid flag combination
//	}
//	result := st.Run()
//
// Analysis never panics on malformed input. A parser that stops making
// progress, or any index derived from content that fails revalidation,
// latches the State and Run reports ResultError; the State will not
// produce a verdict from a corrupted pass.
package sqli
