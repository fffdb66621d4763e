// Package token defines the tokens produced when lexing template source.
package token

// Type describes the type of a token as a string.
type Type string

// Position points to a particular location in a template source string.
type Position struct {
	Offset int // byte offset within the source
	Line   int // 0-indexed line number
	Column int // 0-indexed column number
}

// LineNumber returns the 1-indexed line number for this position.
func (p Position) LineNumber() int {
	return p.Line + 1
}

// ColumnNumber returns the 1-indexed column number for this position.
func (p Position) ColumnNumber() int {
	return p.Column + 1
}

// Token represents one token lexed from template source.
type Token struct {
	Type          Type
	Literal       string
	StartPosition Position
	EndPosition   Position
}

// Is returns true if the token has the given type.
func (t Token) Is(typ Type) bool {
	return t.Type == typ
}

// IsKeyword returns true if the token is an identifier whose literal matches
// the given keyword. Template keywords are soft: they are only significant
// in statement positions, so the lexer emits them as IDENT tokens.
func (t Token) IsKeyword(keyword string) bool {
	return t.Type == IDENT && t.Literal == keyword
}

// Token types
const (
	// Region tokens
	TEXT           Type = "TEXT"
	VARIABLE_BEGIN Type = "VARIABLE_BEGIN"
	VARIABLE_END   Type = "VARIABLE_END"
	BLOCK_BEGIN    Type = "BLOCK_BEGIN"
	BLOCK_END      Type = "BLOCK_END"

	// Literals and identifiers
	IDENT  Type = "IDENT"
	INT    Type = "INT"
	FLOAT  Type = "FLOAT"
	STRING Type = "STRING"

	// Operators
	PLUS     Type = "+"
	MINUS    Type = "-"
	ASTERISK Type = "*"
	SLASH    Type = "/"
	FLOORDIV Type = "//"
	MOD      Type = "%"
	POW      Type = "**"
	TILDE    Type = "~"
	PIPE     Type = "|"
	EQ       Type = "=="
	NOT_EQ   Type = "!="
	LT       Type = "<"
	LT_EQ    Type = "<="
	GT       Type = ">"
	GT_EQ    Type = ">="
	ASSIGN   Type = "="

	// Delimiters
	COMMA    Type = ","
	COLON    Type = ":"
	PERIOD   Type = "."
	LPAREN   Type = "("
	RPAREN   Type = ")"
	LBRACKET Type = "["
	RBRACKET Type = "]"
	LBRACE   Type = "{"
	RBRACE   Type = "}"

	EOF     Type = "EOF"
	ILLEGAL Type = "ILLEGAL"
)

// Keywords that are significant in expression positions. Statement keywords
// (if, for, block, macro, ...) are ordinary identifiers to the lexer; the
// parser gives them meaning based on position.
const (
	KeywordAnd    = "and"
	KeywordOr     = "or"
	KeywordNot    = "not"
	KeywordIn     = "in"
	KeywordIs     = "is"
	KeywordIf     = "if"
	KeywordElse   = "else"
	KeywordTrue   = "true"
	KeywordFalse  = "false"
	KeywordNone   = "none"
)

// statementKeywords are the identifiers that open or continue statements.
var statementKeywords = map[string]bool{
	"if": true, "elif": true, "else": true, "endif": true,
	"for": true, "endfor": true, "recursive": true,
	"set": true, "endset": true,
	"block": true, "endblock": true,
	"extends": true, "include": true, "import": true, "from": true,
	"macro": true, "endmacro": true,
	"call": true, "endcall": true,
	"filter": true, "endfilter": true,
	"with": true, "endwith": true,
	"autoescape": true, "endautoescape": true,
	"do": true, "raw": true, "endraw": true,
	"ignore": true, "missing": true, "as": true, "in": true,
}

// IsStatementKeyword returns true if the given identifier can open or
// continue a template statement.
func IsStatementKeyword(ident string) bool {
	return statementKeywords[ident]
}
