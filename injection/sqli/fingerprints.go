package sqli

// fingerprintBlacklist is the set of folded token shapes treated as SQL
// injection. The shapes are written in the fingerprint alphabet of
// TokenKind codes. This is the high-signal core of the shapes observed
// in live probe traffic; lookups are exact, so a shape not listed here
// never matches no matter how similar it looks.
var fingerprintBlacklist = map[string]struct{}{
	// evil token: conditional or nested comments poison the whole parse
	"X": {},

	// union-based probes
	"UE":    {},
	"UE1":   {},
	"UEn":   {},
	"UEk":   {},
	"UEnk":  {},
	"1U":    {},
	"nU":    {},
	"sU":    {},
	"vU":    {},
	"1UE":   {},
	"nUE":   {},
	"sUE":   {},
	"vUE":   {},
	"1UE1":  {},
	"sUE1":  {},
	"1UEn":  {},
	"nUEn":  {},
	"sUEn":  {},
	"1UEk":  {},
	"nUEk":  {},
	"sUEk":  {},
	"1UEnn": {},

	// stacked queries
	";E":    {},
	";En":   {},
	"1;E":   {},
	"n;E":   {},
	"s;E":   {},
	"v;E":   {},
	"1;En":  {},
	"s;En":  {},
	"1;En1": {},
	"1;Enn": {},
	"1;T":   {},
	"n;T":   {},
	"s;T":   {},
	"1;Tn":  {},

	// boolean logic against values; the allowlist pass rescues the
	// three-token phrasings that occur in prose
	"s&s": {},
	"sos": {},
	"s&1": {},
	"1&s": {},
	"s&n": {},
	"n&1": {},
	"1&1": {},
	"1&v": {},

	// string breakout bridging a quoted context
	"s&sos": {},
	"s&so1": {},
	"s&sov": {},
	"s&1os": {},
	"1&sos": {},
	"1&so1": {},
	"n&sos": {},
	"1os":   {},
	"so1":   {},

	// subquery and function calls behind logic
	"s&(E":  {},
	"1&(E":  {},
	"n&(E":  {},
	"s&f(1": {},
	"s&f(s": {},
	"s&f(n": {},
	"1&f(1": {},
	"1&f(s": {},
	"n&f(1": {},

	// trailing comment cuts
	"1c":    {},
	"nc":    {},
	"sc":    {},
	"s&1c":  {},
	"s&sc":  {},
	"1&1c":  {},
	"s&nc":  {},
	"novc":  {},
	"1ovc":  {},
	"sonc":  {},
	"s&soc": {},

	// parenthesis breakouts
	")&1":   {},
	")&s":   {},
	")o1":   {},
	")&(1":  {},
	")&(s":  {},
	"1)&(1": {},
	"s)&(s": {},
	"1)o(1": {},
	"1)&1":  {},
	"s)&1":  {},
}

// isBlacklistFingerprint reports whether fp is a known injection shape.
func isBlacklistFingerprint(fp string) bool {
	_, ok := fingerprintBlacklist[fp]
	return ok
}
