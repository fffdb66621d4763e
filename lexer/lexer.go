// Package lexer turns template source into a stream of tokens.
//
// Template source alternates between literal text and tagged regions:
// expressions ({{ ... }}), statements ({% ... %}), and comments
// ({# ... #}). The lexer emits text chunks as TEXT tokens, brackets tagged
// regions with begin/end tokens, and drops comments entirely. Whitespace
// control markers (- and +) on tag delimiters are resolved here, so the
// parser never sees them.
package lexer

import (
	"strings"

	"github.com/cloudcmds/vellum/errors"
	"github.com/cloudcmds/vellum/token"
)

// Syntax holds the delimiter configuration for a template dialect. The line
// prefixes are optional: when set, a line whose first non-blank content is
// the statement prefix is lexed as a block tag running to the end of the
// line, and a line comment prefix swallows the rest of its line.
type Syntax struct {
	BlockStart          string
	BlockEnd            string
	VariableStart       string
	VariableEnd         string
	CommentStart        string
	CommentEnd          string
	LineStatementPrefix string
	LineCommentPrefix   string
}

// DefaultSyntax returns the standard delimiter set.
func DefaultSyntax() Syntax {
	return Syntax{
		BlockStart:    "{%",
		BlockEnd:      "%}",
		VariableStart: "{{",
		VariableEnd:   "}}",
		CommentStart:  "{#",
		CommentEnd:    "#}",
	}
}

// Option is a configuration function for a Lexer.
type Option func(*Lexer)

// WithSyntax sets a custom delimiter configuration.
func WithSyntax(s Syntax) Option {
	return func(l *Lexer) { l.syntax = s }
}

// WithTrimBlocks removes the first newline after a block tag.
func WithTrimBlocks() Option {
	return func(l *Lexer) { l.trimBlocks = true }
}

// WithLstripBlocks strips whitespace from the start of a line to a block tag.
func WithLstripBlocks() Option {
	return func(l *Lexer) { l.lstripBlocks = true }
}

// WithKeepTrailingNewline preserves the trailing newline of the source,
// which is otherwise removed.
func WithKeepTrailingNewline() Option {
	return func(l *Lexer) { l.keepTrailingNewline = true }
}

// Lexer tokenizes one template source string. Tokens are produced lazily
// via Next.
type Lexer struct {
	source string
	pos    int
	line   int
	col    int

	syntax              Syntax
	trimBlocks          bool
	lstripBlocks        bool
	keepTrailingNewline bool

	inTag      bool
	lineTag    bool
	tagEnd     string
	tagEndType token.Type
	depth      int

	// strip leading whitespace from the next text chunk
	pendingTrim bool

	queue []token.Token
}

// New returns a Lexer for the given template source.
func New(source string, opts ...Option) *Lexer {
	l := &Lexer{source: source, syntax: DefaultSyntax()}
	for _, opt := range opts {
		opt(l)
	}
	if !l.keepTrailingNewline {
		if strings.HasSuffix(l.source, "\r\n") {
			l.source = l.source[:len(l.source)-2]
		} else if strings.HasSuffix(l.source, "\n") {
			l.source = l.source[:len(l.source)-1]
		}
	}
	return l
}

// Next returns the next token. After the end of the source it returns EOF
// tokens indefinitely.
func (l *Lexer) Next() (token.Token, error) {
	for len(l.queue) == 0 {
		if err := l.step(); err != nil {
			return token.Token{}, err
		}
	}
	tok := l.queue[0]
	l.queue = l.queue[1:]
	return tok, nil
}

// Tokenize consumes the entire source and returns all tokens up to and
// including EOF.
func (l *Lexer) Tokenize() ([]token.Token, error) {
	var toks []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks, nil
		}
	}
}

func (l *Lexer) position() token.Position {
	return token.Position{Offset: l.pos, Line: l.line, Column: l.col}
}

func (l *Lexer) emit(typ token.Type, literal string, start token.Position) {
	l.queue = append(l.queue, token.Token{
		Type:          typ,
		Literal:       literal,
		StartPosition: start,
		EndPosition:   l.position(),
	})
}

// advanceTo moves the cursor to the given byte offset, updating the line
// and column counters.
func (l *Lexer) advanceTo(newPos int) {
	for _, r := range l.source[l.pos:newPos] {
		if r == '\n' {
			l.line++
			l.col = 0
		} else {
			l.col++
		}
	}
	l.pos = newPos
}

func (l *Lexer) syntaxError(format string, args ...any) error {
	return errors.Errorf(errors.SyntaxError, format, args...).
		WithLocation(l.line+1, l.pos)
}

func (l *Lexer) step() error {
	if l.inTag {
		return l.stepTag()
	}
	if l.pos >= len(l.source) {
		l.emit(token.EOF, "", l.position())
		return nil
	}
	return l.stepText()
}

const (
	tagNone = iota
	tagComment
	tagVariable
	tagBlock
	tagLineStatement
	tagLineComment
)

// nextTag finds the earliest tag start at or after the cursor. Ties go to
// the longest delimiter so custom overlapping delimiters resolve sensibly.
func (l *Lexer) nextTag() (idx int, kind int, delim string) {
	rest := l.source[l.pos:]
	idx, kind = -1, tagNone
	consider := func(d string, k int) {
		if d == "" {
			return
		}
		i := strings.Index(rest, d)
		if i < 0 {
			return
		}
		if idx < 0 || i < idx || (i == idx && len(d) > len(delim)) {
			idx, kind, delim = i, k, d
		}
	}
	consider(l.syntax.CommentStart, tagComment)
	consider(l.syntax.VariableStart, tagVariable)
	consider(l.syntax.BlockStart, tagBlock)
	considerLine := func(prefix string, k int) {
		if prefix == "" {
			return
		}
		i, width := findLinePrefix(rest, prefix, l.col == 0)
		if i < 0 {
			return
		}
		if idx < 0 || i < idx || (i == idx && width > len(delim)) {
			idx, kind, delim = i, k, rest[i:i+width]
		}
	}
	considerLine(l.syntax.LineCommentPrefix, tagLineComment)
	considerLine(l.syntax.LineStatementPrefix, tagLineStatement)
	return idx, kind, delim
}

// findLinePrefix locates the first line whose content starts with prefix
// after optional blanks. It returns the index of the line start and the
// width of the blanks plus the prefix, or -1 when no line matches.
func findLinePrefix(rest, prefix string, atLineStart bool) (int, int) {
	searchFrom := 0
	if !atLineStart {
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			return -1, 0
		}
		searchFrom = nl + 1
	}
	for {
		j := searchFrom
		for j < len(rest) && (rest[j] == ' ' || rest[j] == '\t') {
			j++
		}
		if strings.HasPrefix(rest[j:], prefix) {
			return searchFrom, j - searchFrom + len(prefix)
		}
		nl := strings.IndexByte(rest[searchFrom:], '\n')
		if nl < 0 {
			return -1, 0
		}
		searchFrom += nl + 1
	}
}

func (l *Lexer) stepText() error {
	start := l.position()
	idx, kind, delim := l.nextTag()
	if idx < 0 {
		chunk := l.source[l.pos:]
		l.advanceTo(len(l.source))
		l.emitText(chunk, start, false, false)
		return nil
	}
	chunkEnd := l.pos + idx
	chunk := l.source[l.pos:chunkEnd]
	tagStart := chunkEnd + len(delim)

	trimBefore := false
	keepBefore := false
	if kind != tagLineStatement && kind != tagLineComment && tagStart < len(l.source) {
		switch l.source[tagStart] {
		case '-':
			trimBefore = true
		case '+':
			keepBefore = true
		}
	}
	lstrip := l.lstripBlocks && !keepBefore && !trimBefore &&
		(kind == tagBlock || kind == tagComment)

	l.advanceTo(chunkEnd)
	l.emitText(chunk, start, trimBefore, lstrip)

	switch kind {
	case tagLineComment:
		l.advanceTo(tagStart)
		l.skipLineComment()
		return nil
	case tagLineStatement:
		tokStart := l.position()
		l.advanceTo(tagStart)
		l.emit(token.BLOCK_BEGIN, l.source[tokStart.Offset:l.pos], tokStart)
		l.inTag = true
		l.lineTag = true
		l.tagEndType = token.BLOCK_END
		l.depth = 0
		return nil
	case tagComment:
		l.advanceTo(tagStart)
		if trimBefore || keepBefore {
			l.advanceTo(l.pos + 1)
		}
		return l.skipComment()
	case tagVariable:
		tokStart := l.position()
		l.advanceTo(tagStart)
		if trimBefore || keepBefore {
			l.advanceTo(l.pos + 1)
		}
		l.emit(token.VARIABLE_BEGIN, l.source[tokStart.Offset:l.pos], tokStart)
		l.inTag = true
		l.tagEnd = l.syntax.VariableEnd
		l.tagEndType = token.VARIABLE_END
		l.depth = 0
		return nil
	default:
		tokStart := l.position()
		l.advanceTo(tagStart)
		if trimBefore || keepBefore {
			l.advanceTo(l.pos + 1)
		}
		if body, ok := l.peekRawTag(); ok {
			return l.lexRawBlock(body)
		}
		l.emit(token.BLOCK_BEGIN, l.source[tokStart.Offset:l.pos], tokStart)
		l.inTag = true
		l.tagEnd = l.syntax.BlockEnd
		l.tagEndType = token.BLOCK_END
		l.depth = 0
		return nil
	}
}

// emitText queues a TEXT token for the chunk after applying whitespace
// control. Positions cover the untrimmed region.
func (l *Lexer) emitText(chunk string, start token.Position, trimAfter, lstrip bool) {
	if l.pendingTrim {
		chunk = strings.TrimLeft(chunk, " \t\r\n")
		l.pendingTrim = false
	}
	if trimAfter {
		chunk = strings.TrimRight(chunk, " \t\r\n")
	} else if lstrip {
		trimmed := strings.TrimRight(chunk, " \t")
		if trimmed == "" || strings.HasSuffix(trimmed, "\n") {
			chunk = trimmed
		}
	}
	if chunk == "" {
		return
	}
	l.emit(token.TEXT, chunk, start)
}

// skipLineComment drops the remainder of the current line, including its
// newline.
func (l *Lexer) skipLineComment() {
	if nl := strings.IndexByte(l.source[l.pos:], '\n'); nl >= 0 {
		l.advanceTo(l.pos + nl + 1)
	} else {
		l.advanceTo(len(l.source))
	}
}

func (l *Lexer) skipComment() error {
	end := strings.Index(l.source[l.pos:], l.syntax.CommentEnd)
	if end < 0 {
		return l.syntaxError("unclosed comment")
	}
	endPos := l.pos + end
	if endPos > l.pos && l.source[endPos-1] == '-' {
		l.pendingTrim = true
	}
	l.advanceTo(endPos + len(l.syntax.CommentEnd))
	if l.trimBlocks && !l.pendingTrim {
		l.eatNewline()
	}
	return nil
}

// eatNewline consumes a single newline following a block or comment tag.
func (l *Lexer) eatNewline() {
	if strings.HasPrefix(l.source[l.pos:], "\r\n") {
		l.advanceTo(l.pos + 2)
	} else if strings.HasPrefix(l.source[l.pos:], "\n") {
		l.advanceTo(l.pos + 1)
	}
}

// peekRawTag checks whether the cursor (just past a block start delimiter)
// sits on a raw tag. If so it returns the raw body start handling and true
// without moving the cursor.
func (l *Lexer) peekRawTag() (rawTag, bool) {
	rest := l.source[l.pos:]
	i := 0
	for i < len(rest) && (rest[i] == ' ' || rest[i] == '\t' || rest[i] == '\n' || rest[i] == '\r') {
		i++
	}
	if !strings.HasPrefix(rest[i:], "raw") {
		return rawTag{}, false
	}
	i += len("raw")
	if i < len(rest) && isIdentPart(rest[i]) {
		return rawTag{}, false
	}
	for i < len(rest) && (rest[i] == ' ' || rest[i] == '\t' || rest[i] == '\n' || rest[i] == '\r') {
		i++
	}
	trimInner := false
	if i < len(rest) && (rest[i] == '-' || rest[i] == '+') {
		trimInner = rest[i] == '-'
		i++
	}
	if !strings.HasPrefix(rest[i:], l.syntax.BlockEnd) {
		return rawTag{}, false
	}
	return rawTag{bodyStart: l.pos + i + len(l.syntax.BlockEnd), trimLeading: trimInner}, true
}

type rawTag struct {
	bodyStart   int
	trimLeading bool
}

// lexRawBlock emits everything between a raw tag and its matching endraw
// tag as literal text.
func (l *Lexer) lexRawBlock(tag rawTag) error {
	l.advanceTo(tag.bodyStart)
	bodyStart := l.position()
	search := tag.bodyStart
	for {
		i := strings.Index(l.source[search:], l.syntax.BlockStart)
		if i < 0 {
			return l.syntaxError("unclosed raw block")
		}
		tagIdx := search + i
		j := tagIdx + len(l.syntax.BlockStart)
		trimBody := false
		if j < len(l.source) && (l.source[j] == '-' || l.source[j] == '+') {
			trimBody = l.source[j] == '-'
			j++
		}
		for j < len(l.source) && (l.source[j] == ' ' || l.source[j] == '\t' || l.source[j] == '\n' || l.source[j] == '\r') {
			j++
		}
		if !strings.HasPrefix(l.source[j:], "endraw") {
			search = tagIdx + len(l.syntax.BlockStart)
			continue
		}
		j += len("endraw")
		for j < len(l.source) && (l.source[j] == ' ' || l.source[j] == '\t' || l.source[j] == '\n' || l.source[j] == '\r') {
			j++
		}
		if j < len(l.source) && (l.source[j] == '-' || l.source[j] == '+') {
			if l.source[j] == '-' {
				l.pendingTrim = true
			}
			j++
		}
		if !strings.HasPrefix(l.source[j:], l.syntax.BlockEnd) {
			search = tagIdx + len(l.syntax.BlockStart)
			continue
		}
		body := l.source[tag.bodyStart:tagIdx]
		if tag.trimLeading {
			body = strings.TrimLeft(body, " \t\r\n")
		}
		if trimBody {
			body = strings.TrimRight(body, " \t\r\n")
		}
		l.advanceTo(tagIdx)
		if body != "" {
			l.emit(token.TEXT, body, bodyStart)
		}
		l.advanceTo(j + len(l.syntax.BlockEnd))
		if l.trimBlocks && !l.pendingTrim {
			l.eatNewline()
		}
		return nil
	}
}

func (l *Lexer) stepTag() error {
	// Skip whitespace inside the tag. A line statement at depth zero ends
	// at its newline, so newlines only count as whitespace inside brackets.
	for l.pos < len(l.source) {
		c := l.source[l.pos]
		if c == ' ' || c == '\t' {
			l.advanceTo(l.pos + 1)
			continue
		}
		if (c == '\n' || c == '\r') && (!l.lineTag || l.depth > 0) {
			l.advanceTo(l.pos + 1)
			continue
		}
		break
	}
	if l.lineTag && l.depth == 0 {
		if l.pos >= len(l.source) || l.source[l.pos] == '\n' ||
			strings.HasPrefix(l.source[l.pos:], "\r\n") {
			return l.endLineTag()
		}
	}
	if l.pos >= len(l.source) {
		return l.syntaxError("unexpected end of template inside tag")
	}

	rest := l.source[l.pos:]

	// Tag end, with an optional whitespace-control marker
	if !l.lineTag && l.depth == 0 {
		if strings.HasPrefix(rest, l.tagEnd) {
			return l.endTag(false, false)
		}
		if len(rest) > 1 && (rest[0] == '-' || rest[0] == '+') &&
			strings.HasPrefix(rest[1:], l.tagEnd) {
			return l.endTag(true, rest[0] == '-')
		}
	}

	start := l.position()
	c := rest[0]

	switch {
	case isIdentStart(c):
		end := 1
		for end < len(rest) && isIdentPart(rest[end]) {
			end++
		}
		l.advanceTo(l.pos + end)
		l.emit(token.IDENT, rest[:end], start)
		return nil
	case c >= '0' && c <= '9':
		return l.lexNumber(start, rest)
	case c == '"' || c == '\'':
		return l.lexString(start, rest)
	}

	// Multi-character operators first
	twoChar := map[string]token.Type{
		"==": token.EQ, "!=": token.NOT_EQ,
		"<=": token.LT_EQ, ">=": token.GT_EQ,
		"//": token.FLOORDIV, "**": token.POW,
	}
	if len(rest) >= 2 {
		if typ, ok := twoChar[rest[:2]]; ok {
			l.advanceTo(l.pos + 2)
			l.emit(typ, rest[:2], start)
			return nil
		}
	}

	oneChar := map[byte]token.Type{
		'+': token.PLUS, '-': token.MINUS, '*': token.ASTERISK,
		'/': token.SLASH, '%': token.MOD, '~': token.TILDE,
		'|': token.PIPE, '<': token.LT, '>': token.GT, '=': token.ASSIGN,
		',': token.COMMA, ':': token.COLON, '.': token.PERIOD,
		'(': token.LPAREN, ')': token.RPAREN,
		'[': token.LBRACKET, ']': token.RBRACKET,
		'{': token.LBRACE, '}': token.RBRACE,
	}
	if typ, ok := oneChar[c]; ok {
		switch c {
		case '(', '[', '{':
			l.depth++
		case ')', ']', '}':
			l.depth--
		}
		l.advanceTo(l.pos + 1)
		l.emit(typ, string(c), start)
		return nil
	}
	return l.syntaxError("unexpected character %q", string(c))
}

// endLineTag closes a line statement at its newline, consuming the newline.
func (l *Lexer) endLineTag() error {
	start := l.position()
	if strings.HasPrefix(l.source[l.pos:], "\r\n") {
		l.advanceTo(l.pos + 2)
	} else if l.pos < len(l.source) && l.source[l.pos] == '\n' {
		l.advanceTo(l.pos + 1)
	}
	l.emit(token.BLOCK_END, l.source[start.Offset:l.pos], start)
	l.inTag = false
	l.lineTag = false
	return nil
}

func (l *Lexer) endTag(hasMarker, trim bool) error {
	start := l.position()
	end := l.pos + len(l.tagEnd)
	if hasMarker {
		end++
	}
	l.advanceTo(end)
	l.emit(l.tagEndType, l.source[start.Offset:l.pos], start)
	l.inTag = false
	if trim {
		l.pendingTrim = true
	}
	if l.tagEndType == token.BLOCK_END && l.trimBlocks && !trim {
		l.eatNewline()
	}
	return nil
}

func (l *Lexer) lexNumber(start token.Position, rest string) error {
	end := 0
	for end < len(rest) && (isDigit(rest[end]) || rest[end] == '_') {
		end++
	}
	isFloat := false
	if end < len(rest) && rest[end] == '.' && end+1 < len(rest) && isDigit(rest[end+1]) {
		isFloat = true
		end++
		for end < len(rest) && isDigit(rest[end]) {
			end++
		}
	}
	if end < len(rest) && (rest[end] == 'e' || rest[end] == 'E') {
		mark := end
		end++
		if end < len(rest) && (rest[end] == '+' || rest[end] == '-') {
			end++
		}
		if end < len(rest) && isDigit(rest[end]) {
			isFloat = true
			for end < len(rest) && isDigit(rest[end]) {
				end++
			}
		} else {
			end = mark
		}
	}
	literal := strings.ReplaceAll(rest[:end], "_", "")
	l.advanceTo(l.pos + end)
	if isFloat {
		l.emit(token.FLOAT, literal, start)
	} else {
		l.emit(token.INT, literal, start)
	}
	return nil
}

func (l *Lexer) lexString(start token.Position, rest string) error {
	quote := rest[0]
	var b strings.Builder
	i := 1
	for i < len(rest) {
		c := rest[i]
		switch c {
		case quote:
			l.advanceTo(l.pos + i + 1)
			l.emit(token.STRING, b.String(), start)
			return nil
		case '\\':
			if i+1 >= len(rest) {
				return l.syntaxError("unterminated string")
			}
			i++
			switch rest[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\':
				b.WriteByte('\\')
			case '\'':
				b.WriteByte('\'')
			case '"':
				b.WriteByte('"')
			default:
				return l.syntaxError("unknown escape sequence \\%s", string(rest[i]))
			}
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return l.syntaxError("unterminated string")
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
