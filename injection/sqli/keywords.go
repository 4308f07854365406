package sqli

import "strings"

// sqlKeywords classifies words, word pairs, and multi-character operator
// spellings. Lookups are case-insensitive; pair entries are consulted
// when folding merges two adjacent word tokens. Words absent from the
// table tokenize as barewords.
var sqlKeywords = map[string]TokenKind{
	// statement and expression starters
	"ALTER":       KindExpression,
	"CALL":        KindExpression,
	"CASE":        KindExpression,
	"CREATE":      KindExpression,
	"DECLARE":     KindExpression,
	"DELETE":      KindExpression,
	"DELETE FROM": KindExpression,
	"DROP":        KindExpression,
	"DROP TABLE":  KindExpression,
	"EXEC":        KindExpression,
	"EXECUTE":     KindExpression,
	"GRANT":       KindExpression,
	"INSERT":      KindExpression,
	"INSERT INTO": KindExpression,
	"MERGE":       KindExpression,
	"REVOKE":      KindExpression,
	"SELECT":      KindExpression,
	"SET":         KindExpression,
	"TRUNCATE":    KindExpression,
	"UPDATE":      KindExpression,

	// set operations
	"EXCEPT":    KindUnion,
	"INTERSECT": KindUnion,
	"MINUS":     KindUnion,
	"UNION":     KindUnion,
	"UNION ALL": KindUnion,

	// logic
	"AND": KindLogicOperator,
	"OR":  KindLogicOperator,
	"XOR": KindLogicOperator,
	"&&":  KindLogicOperator,
	"||":  KindLogicOperator,

	// word operators
	"BETWEEN":     KindOperator,
	"DIV":         KindOperator,
	"IS":          KindOperator,
	"IS NOT":      KindOperator,
	"LIKE":        KindOperator,
	"NOT":         KindOperator,
	"NOT BETWEEN": KindOperator,
	"NOT LIKE":    KindOperator,
	"REGEXP":      KindOperator,
	"RLIKE":       KindOperator,
	"SOUNDS LIKE": KindOperator,

	// plain keywords
	"AS":              KindKeyword,
	"DISTINCT":        KindKeyword,
	"ELSE":            KindKeyword,
	"END":             KindKeyword,
	"EXISTS":          KindKeyword,
	"FROM":            KindKeyword,
	"IN":              KindKeyword,
	"IN BOOLEAN":      KindKeyword,
	"IN BOOLEAN MODE": KindKeyword,
	"INNER":           KindKeyword,
	"INTO":            KindKeyword,
	"INTO DUMPFILE":   KindKeyword,
	"INTO OUTFILE":    KindKeyword,
	"JOIN":            KindKeyword,
	"NOT IN":          KindKeyword,
	"ON":              KindKeyword,
	"THEN":            KindKeyword,
	"TOP":             KindKeyword,
	"USING":           KindKeyword,
	"VALUES":          KindKeyword,
	"WHEN":            KindKeyword,
	"WHERE":           KindKeyword,

	// grouping and limits
	"GROUP BY": KindGroup,
	"HAVING":   KindGroup,
	"LIMIT":    KindGroup,
	"OFFSET":   KindGroup,
	"ORDER BY": KindGroup,

	// collation
	"COLLATE": KindCollate,

	// Transact-SQL control flow
	"GOTO":    KindTSQL,
	"WAITFOR": KindTSQL,

	// literals that read as values
	"FALSE":   KindNumber,
	"NULL":    KindNumber,
	"TRUE":    KindNumber,
	"UNKNOWN": KindNumber,

	// column types; a leading type token is skipped as declaration noise
	"BIGINT":    KindSQLType,
	"BINARY":    KindSQLType,
	"BOOLEAN":   KindSQLType,
	"DECIMAL":   KindSQLType,
	"INT":       KindSQLType,
	"INTEGER":   KindSQLType,
	"MEDIUMINT": KindSQLType,
	"NCHAR":     KindSQLType,
	"NUMERIC":   KindSQLType,
	"NVARCHAR":  KindSQLType,
	"REAL":      KindSQLType,
	"SMALLINT":  KindSQLType,
	"TINYINT":   KindSQLType,
	"VARBINARY": KindSQLType,
	"VARCHAR":   KindSQLType,

	// functions seen in probe traffic; niladic pseudo-functions such as
	// CURRENT_USER are classified during folding instead
	"ABS":          KindFunction,
	"ASCII":        KindFunction,
	"AVG":          KindFunction,
	"BENCHMARK":    KindFunction,
	"BIN":          KindFunction,
	"CAST":         KindFunction,
	"CEIL":         KindFunction,
	"CEILING":      KindFunction,
	"CHAR":         KindFunction,
	"CHAR_LENGTH":  KindFunction,
	"CHR":          KindFunction,
	"COALESCE":     KindFunction,
	"CONCAT":       KindFunction,
	"CONCAT_WS":    KindFunction,
	"CONV":         KindFunction,
	"CONVERT":      KindFunction,
	"COUNT":        KindFunction,
	"CURDATE":      KindFunction,
	"EXP":          KindFunction,
	"EXTRACT":      KindFunction,
	"EXTRACTVALUE": KindFunction,
	"FLOOR":        KindFunction,
	"FORMAT":       KindFunction,
	"GREATEST":     KindFunction,
	"GROUP_CONCAT": KindFunction,
	"HEX":          KindFunction,
	"IF":           KindFunction,
	"IFNULL":       KindFunction,
	"INSTR":        KindFunction,
	"ISNULL":       KindFunction,
	"LCASE":        KindFunction,
	"LEAST":        KindFunction,
	"LEFT":         KindFunction,
	"LENGTH":       KindFunction,
	"LOAD_FILE":    KindFunction,
	"LOCATE":       KindFunction,
	"LOWER":        KindFunction,
	"LPAD":         KindFunction,
	"LTRIM":        KindFunction,
	"MAX":          KindFunction,
	"MD5":          KindFunction,
	"MID":          KindFunction,
	"MIN":          KindFunction,
	"MOD":          KindFunction,
	"NOW":          KindFunction,
	"NULLIF":       KindFunction,
	"OCT":          KindFunction,
	"ORD":          KindFunction,
	"PG_SLEEP":     KindFunction,
	"PI":           KindFunction,
	"POSITION":     KindFunction,
	"POW":          KindFunction,
	"POWER":        KindFunction,
	"QUOTE":        KindFunction,
	"RAND":         KindFunction,
	"REPEAT":       KindFunction,
	"REPLACE":      KindFunction,
	"RIGHT":        KindFunction,
	"ROUND":        KindFunction,
	"RPAD":         KindFunction,
	"RTRIM":        KindFunction,
	"SHA1":         KindFunction,
	"SHA2":         KindFunction,
	"SIGN":         KindFunction,
	"SIN":          KindFunction,
	"SLEEP":        KindFunction,
	"SOUNDEX":      KindFunction,
	"SPACE":        KindFunction,
	"SQRT":         KindFunction,
	"STRCMP":       KindFunction,
	"SUBSTR":       KindFunction,
	"SUBSTRING":    KindFunction,
	"SUM":          KindFunction,
	"SYSDATE":      KindFunction,
	"TAN":          KindFunction,
	"TRIM":         KindFunction,
	"UCASE":        KindFunction,
	"UNHEX":        KindFunction,
	"UPDATEXML":    KindFunction,
	"UPPER":        KindFunction,
	"VERSION":      KindFunction,

	// multi-character operator spellings
	"!!": KindOperator,
	"!<": KindOperator,
	"!=": KindOperator,
	"!>": KindOperator,
	"!~": KindOperator,
	"%=": KindOperator,
	"&=": KindOperator,
	"*=": KindOperator,
	"+=": KindOperator,
	"-=": KindOperator,
	"/=": KindOperator,
	"::": KindOperator,
	":=": KindOperator,
	"<<": KindOperator,
	"<=": KindOperator,
	"<>": KindOperator,
	"<@": KindOperator,
	">=": KindOperator,
	">>": KindOperator,
	"@>": KindOperator,
	"^=": KindOperator,
	"|/": KindOperator,
	"|=": KindOperator,
	"~*": KindOperator,
}

// lookupKeyword classifies a word or operator spelling. KindNone means
// the spelling is not in the table.
func lookupKeyword(s string) TokenKind {
	return sqlKeywords[strings.ToUpper(s)]
}
