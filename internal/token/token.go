package token

type TokenType string

type Token struct {
	Type    TokenType
	Lexeme  string
	Literal any
	Line    int
	Column  int
}

const (
	ILLEGAL TokenType = "ILLEGAL"
	EOF     TokenType = "EOF"

	IDENT_LOWER TokenType = "IDENT"
	NUMBER      TokenType = "NUMBER"
	STRING      TokenType = "STRING"

	ASSIGN   TokenType = "="
	PLUS     TokenType = "+"
	MINUS    TokenType = "-"
	ASTERISK TokenType = "*"
	SLASH    TokenType = "/"
	PERCENT  TokenType = "%"
	BANG     TokenType = "!"

	EQ     TokenType = "=="
	NOT_EQ TokenType = "!="
	LT     TokenType = "<"
	LTE    TokenType = "<="
	GT     TokenType = ">"
	GTE    TokenType = ">="
	AND    TokenType = "&&"
	OR     TokenType = "||"
	ARROW  TokenType = "->"

	PLUS_ASSIGN     TokenType = "+="
	MINUS_ASSIGN    TokenType = "-="
	ASTERISK_ASSIGN TokenType = "*="
	SLASH_ASSIGN    TokenType = "/="
	PERCENT_ASSIGN  TokenType = "%="
	INCREMENT       TokenType = "++"
	DECREMENT       TokenType = "--"

	COMMA     TokenType = ","
	SEMICOLON TokenType = ";"
	LPAREN    TokenType = "("
	RPAREN    TokenType = ")"
	LBRACE    TokenType = "{"
	RBRACE    TokenType = "}"
	LBRACKET  TokenType = "["
	RBRACKET  TokenType = "]"

	FN       TokenType = "FN"
	LET      TokenType = "LET"
	VAR      TokenType = "VAR"
	IF       TokenType = "IF"
	ELSE     TokenType = "ELSE"
	WHILE    TokenType = "WHILE"
	BREAK    TokenType = "BREAK"
	CONTINUE TokenType = "CONTINUE"
	RETURN   TokenType = "RETURN"
	TRUE     TokenType = "TRUE"
	FALSE    TokenType = "FALSE"
	NULL     TokenType = "NULL"
	OWN      TokenType = "OWN"
	BORROW   TokenType = "BORROW"
	SHARED   TokenType = "SHARED"
)

var keywords = map[string]TokenType{
	"fn":       FN,
	"let":      LET,
	"var":      VAR,
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"break":    BREAK,
	"continue": CONTINUE,
	"return":   RETURN,
	"true":     TRUE,
	"false":    FALSE,
	"null":     NULL,
	"own":      OWN,
	"borrow":   BORROW,
	"shared":   SHARED,
}

// compoundOperators maps each compound assignment token to the binary
// operator it applies.
var compoundOperators = map[TokenType]string{
	PLUS_ASSIGN:     "+",
	MINUS_ASSIGN:    "-",
	ASTERISK_ASSIGN: "*",
	SLASH_ASSIGN:    "/",
	PERCENT_ASSIGN:  "%",
	INCREMENT:       "+",
	DECREMENT:       "-",
}

// CompoundOperator returns the binary operator behind a compound
// assignment or increment token.
func CompoundOperator(t TokenType) (string, bool) {
	op, ok := compoundOperators[t]
	return op, ok
}

// LookupIdent returns the keyword type for ident, or IDENT_LOWER.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT_LOWER
}
