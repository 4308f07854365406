package html5

// TokenKind classifies a token produced by the Tokenizer.
type TokenKind int

const (
	DataText TokenKind = iota
	TagNameOpen
	TagNameClose
	TagNameSelfClose
	TagData
	TagClose
	AttrName
	AttrValue
	TagComment
	Doctype
)

func (k TokenKind) String() string {
	switch k {
	case DataText:
		return "data_text"
	case TagNameOpen:
		return "tag_name_open"
	case TagNameClose:
		return "tag_name_close"
	case TagNameSelfClose:
		return "tag_name_selfclose"
	case TagData:
		return "tag_data"
	case TagClose:
		return "tag_close"
	case AttrName:
		return "attr_name"
	case AttrValue:
		return "attr_value"
	case TagComment:
		return "tag_comment"
	case Doctype:
		return "doctype"
	}
	return "unknown"
}

// Token is a tokenizer output: a classification plus the span of input
// it covers. Val aliases the input buffer.
type Token struct {
	Kind TokenKind
	Pos  int
	Val  string
}

// StartState selects where in a document the Tokenizer begins, allowing
// resumption mid-markup, such as inside a quoted attribute value.
type StartState int

const (
	StateData StartState = iota
	StateValueNoQuote
	StateValueSingleQuote
	StateValueDoubleQuote
	StateValueBackQuote
)

func (s StartState) String() string {
	switch s {
	case StateData:
		return "data"
	case StateValueNoQuote:
		return "value_no_quote"
	case StateValueSingleQuote:
		return "value_single_quote"
	case StateValueDoubleQuote:
		return "value_double_quote"
	case StateValueBackQuote:
		return "value_back_quote"
	}
	return "unknown"
}
