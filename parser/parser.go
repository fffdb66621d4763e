// Package parser builds an abstract syntax tree from template source.
//
// Expressions parse by precedence climbing with registered prefix and infix
// functions. Statements parse by matching opening tags to their required
// closing tags, so an unclosed construct is reported with the location
// where it was opened. The parser attempts to resynchronize after a
// statement-level error and reports everything it found in one pass.
package parser

import (
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/cloudcmds/vellum/ast"
	"github.com/cloudcmds/vellum/errors"
	"github.com/cloudcmds/vellum/lexer"
	"github.com/cloudcmds/vellum/token"
)

// Operator precedence levels, ascending.
const (
	lowest = iota
	ternary
	logicalOr
	logicalAnd
	logicalNot
	comparison
	additive
	product
	power
	unary
	filterPipe
	postfix
)

// Parser turns a token stream into a template AST.
type Parser struct {
	lex *lexer.Lexer

	cur  token.Token
	peek token.Token

	// sawExtends guards the one-extends-first rule
	sawExtends   bool
	sawStatement bool

	errs *multierror.Error
}

// New returns a Parser reading from the given lexer.
func New(lex *lexer.Lexer) (*Parser, error) {
	p := &Parser{lex: lex}
	// Prime cur and peek
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	return p, nil
}

// Parse tokenizes and parses template source in one step.
func Parse(source string, opts ...lexer.Option) (*ast.Template, error) {
	p, err := New(lexer.New(source, opts...))
	if err != nil {
		return nil, err
	}
	return p.ParseTemplate()
}

func (p *Parser) next() error {
	tok, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.cur = p.peek
	p.peek = tok
	return nil
}

func (p *Parser) curIs(typ token.Type) bool  { return p.cur.Type == typ }
func (p *Parser) peekIs(typ token.Type) bool { return p.peek.Type == typ }

func (p *Parser) syntaxError(format string, args ...any) error {
	return errors.Errorf(errors.SyntaxError, format, args...).
		WithLocation(p.cur.StartPosition.LineNumber(), p.cur.StartPosition.Offset)
}

func (p *Parser) expect(typ token.Type) error {
	if !p.curIs(typ) {
		return p.syntaxError("expected %s, got %s", typ, describe(p.cur))
	}
	return p.next()
}

func describe(tok token.Token) string {
	switch tok.Type {
	case token.IDENT, token.INT, token.FLOAT:
		return strconv.Quote(tok.Literal)
	case token.STRING:
		return "string literal"
	case token.EOF:
		return "end of template"
	default:
		return strconv.Quote(string(tok.Type))
	}
}

// ParseTemplate parses the whole source, returning the root node. All
// syntax errors found are aggregated into the returned error.
func (p *Parser) ParseTemplate() (*ast.Template, error) {
	start := p.cur.StartPosition
	var body []ast.Stmt
	for !p.curIs(token.EOF) {
		stmt, err := p.parseTopLevel()
		if err != nil {
			p.errs = multierror.Append(p.errs, err)
			if err := p.resync(); err != nil {
				p.errs = multierror.Append(p.errs, err)
				break
			}
			continue
		}
		if stmt != nil {
			body = append(body, stmt)
		}
	}
	if err := p.errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	root := &ast.Template{Body: body}
	setSpan(root, start, p.cur.EndPosition)
	return root, nil
}

// resync skips ahead to the end of the current tag so parsing can continue
// after an error.
func (p *Parser) resync() error {
	for {
		switch p.cur.Type {
		case token.EOF:
			return nil
		case token.BLOCK_END, token.VARIABLE_END:
			return p.next()
		case token.TEXT, token.BLOCK_BEGIN, token.VARIABLE_BEGIN:
			return nil
		default:
			if err := p.next(); err != nil {
				return err
			}
		}
	}
}

func (p *Parser) parseTopLevel() (ast.Stmt, error) {
	stmt, err := p.parseNode()
	if err != nil {
		return nil, err
	}
	switch stmt.(type) {
	case *ast.Text:
	case *ast.Extends:
		if p.sawExtends {
			return nil, errors.New(errors.SyntaxError, "duplicate extends statement").
				WithLocation(stmt.Pos().LineNumber(), stmt.Pos().Offset)
		}
		if p.sawStatement {
			return nil, errors.New(errors.SyntaxError,
				"extends must be the first statement in a template").
				WithLocation(stmt.Pos().LineNumber(), stmt.Pos().Offset)
		}
		p.sawExtends = true
	default:
		p.sawStatement = true
	}
	return stmt, nil
}

// parseNode parses one top-level or body node: a text chunk, an output
// expression, or a statement.
func (p *Parser) parseNode() (ast.Stmt, error) {
	switch p.cur.Type {
	case token.TEXT:
		node := &ast.Text{Value: p.cur.Literal}
		setSpan(node, p.cur.StartPosition, p.cur.EndPosition)
		return node, p.next()
	case token.VARIABLE_BEGIN:
		start := p.cur.StartPosition
		if err := p.next(); err != nil {
			return nil, err
		}
		expr, err := p.parseExpression(lowest)
		if err != nil {
			return nil, err
		}
		end := p.cur.EndPosition
		if err := p.expect(token.VARIABLE_END); err != nil {
			return nil, err
		}
		node := &ast.Output{Expr: expr}
		setSpan(node, start, end)
		return node, nil
	case token.BLOCK_BEGIN:
		return p.parseStatement()
	default:
		return nil, p.syntaxError("unexpected %s", describe(p.cur))
	}
}

func (p *Parser) parseStatement() (ast.Stmt, error) {
	start := p.cur.StartPosition
	if err := p.next(); err != nil { // consume block begin
		return nil, err
	}
	if !p.curIs(token.IDENT) {
		return nil, p.syntaxError("expected a statement keyword, got %s", describe(p.cur))
	}
	keyword := p.cur.Literal
	if err := p.next(); err != nil {
		return nil, err
	}
	switch keyword {
	case "if":
		return p.parseIf(start)
	case "for":
		return p.parseFor(start)
	case "set":
		return p.parseSet(start)
	case "block":
		return p.parseBlock(start)
	case "extends":
		return p.parseExtends(start)
	case "include":
		return p.parseInclude(start)
	case "import":
		return p.parseImport(start)
	case "from":
		return p.parseFromImport(start)
	case "macro":
		return p.parseMacro(start)
	case "call":
		return p.parseCallBlock(start)
	case "filter":
		return p.parseFilterBlock(start)
	case "with":
		return p.parseWith(start)
	case "autoescape":
		return p.parseAutoEscape(start)
	case "do":
		return p.parseDo(start)
	default:
		if token.IsStatementKeyword(keyword) {
			return nil, errors.Errorf(errors.SyntaxError, "unexpected %q", keyword).
				WithLocation(start.LineNumber(), start.Offset)
		}
		return nil, errors.Errorf(errors.SyntaxError, "unknown statement %q", keyword).
			WithLocation(start.LineNumber(), start.Offset)
	}
}

// parseBody parses statements until one of the given closing keywords opens
// a tag. It consumes the block begin token and the keyword, returning which
// keyword was found; the caller finishes parsing the closing tag.
func (p *Parser) parseBody(construct string, openedAt token.Position, closers ...string) ([]ast.Stmt, string, error) {
	var body []ast.Stmt
	for {
		if p.curIs(token.EOF) {
			return nil, "", errors.Errorf(errors.SyntaxError,
				"unclosed %s (expected %s)", construct, strings.Join(closers, " or ")).
				WithLocation(openedAt.LineNumber(), openedAt.Offset)
		}
		if p.curIs(token.BLOCK_BEGIN) && p.peekIs(token.IDENT) {
			for _, c := range closers {
				if p.peek.Literal == c {
					if err := p.next(); err != nil {
						return nil, "", err
					}
					if err := p.next(); err != nil {
						return nil, "", err
					}
					return body, c, nil
				}
			}
		}
		stmt, err := p.parseNode()
		if err != nil {
			return nil, "", err
		}
		body = append(body, stmt)
	}
}

func (p *Parser) endTag() error {
	return p.expect(token.BLOCK_END)
}

func (p *Parser) parseIf(start token.Position) (ast.Stmt, error) {
	cond, err := p.parseExpression(lowest)
	if err != nil {
		return nil, err
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	then, closer, err := p.parseBody("if", start, "elif", "else", "endif")
	if err != nil {
		return nil, err
	}
	node := &ast.If{Cond: cond, Then: then}
	switch closer {
	case "elif":
		nested, err := p.parseIf(start)
		if err != nil {
			return nil, err
		}
		node.Else = []ast.Stmt{nested}
	case "else":
		if err := p.endTag(); err != nil {
			return nil, err
		}
		elseBody, _, err := p.parseBody("if", start, "endif")
		if err != nil {
			return nil, err
		}
		node.Else = elseBody
		if err := p.endTag(); err != nil {
			return nil, err
		}
	case "endif":
		if err := p.endTag(); err != nil {
			return nil, err
		}
	}
	setSpan(node, start, p.cur.StartPosition)
	return node, nil
}

func (p *Parser) parseFor(start token.Position) (ast.Stmt, error) {
	target, err := p.parseAssignTarget(true)
	if err != nil {
		return nil, err
	}
	if !p.cur.IsKeyword(token.KeywordIn) {
		return nil, p.syntaxError("expected \"in\", got %s", describe(p.cur))
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	iter, err := p.parseExpression(lowest)
	if err != nil {
		return nil, err
	}
	node := &ast.For{Target: target, Iter: iter}
	if p.cur.IsKeyword(token.KeywordIf) {
		if err := p.next(); err != nil {
			return nil, err
		}
		node.Filter, err = p.parseExpression(lowest)
		if err != nil {
			return nil, err
		}
	}
	if p.cur.IsKeyword("recursive") {
		node.Recursive = true
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	body, closer, err := p.parseBody("for", start, "else", "endfor")
	if err != nil {
		return nil, err
	}
	node.Body = body
	if closer == "else" {
		if err := p.endTag(); err != nil {
			return nil, err
		}
		node.Else, _, err = p.parseBody("for", start, "endfor")
		if err != nil {
			return nil, err
		}
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	setSpan(node, start, p.cur.StartPosition)
	return node, nil
}

func (p *Parser) parseSet(start token.Position) (ast.Stmt, error) {
	target, err := p.parseAssignTarget(false)
	if err != nil {
		return nil, err
	}
	if p.curIs(token.ASSIGN) {
		if err := p.next(); err != nil {
			return nil, err
		}
		value, err := p.parseExpression(lowest)
		if err != nil {
			return nil, err
		}
		if err := p.endTag(); err != nil {
			return nil, err
		}
		node := &ast.Set{Target: target, Value: value}
		setSpan(node, start, p.cur.StartPosition)
		return node, nil
	}
	// Block form: {% set name %}...{% endset %}, with an optional filter
	node := &ast.SetBlock{Target: target}
	if p.curIs(token.PIPE) {
		if err := p.next(); err != nil {
			return nil, err
		}
		node.Filter, err = p.parseFilterChain(nil)
		if err != nil {
			return nil, err
		}
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	node.Body, _, err = p.parseBody("set block", start, "endset")
	if err != nil {
		return nil, err
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	setSpan(node, start, p.cur.StartPosition)
	return node, nil
}

func (p *Parser) parseBlock(start token.Position) (ast.Stmt, error) {
	if !p.curIs(token.IDENT) {
		return nil, p.syntaxError("expected a block name, got %s", describe(p.cur))
	}
	name := p.cur.Literal
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	body, _, err := p.parseBody("block "+strconv.Quote(name), start, "endblock")
	if err != nil {
		return nil, err
	}
	// Allow the block name to be repeated on the closing tag
	if p.curIs(token.IDENT) {
		if p.cur.Literal != name {
			return nil, p.syntaxError("mismatched block name: started %q, ended %q",
				name, p.cur.Literal)
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	node := &ast.Block{Name: name, Body: body}
	setSpan(node, start, p.cur.StartPosition)
	return node, nil
}

func (p *Parser) parseExtends(start token.Position) (ast.Stmt, error) {
	name, err := p.parseExpression(lowest)
	if err != nil {
		return nil, err
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	node := &ast.Extends{Name: name}
	setSpan(node, start, p.cur.StartPosition)
	return node, nil
}

func (p *Parser) parseInclude(start token.Position) (ast.Stmt, error) {
	name, err := p.parseExpression(lowest)
	if err != nil {
		return nil, err
	}
	node := &ast.Include{Name: name}
	if p.cur.IsKeyword("ignore") {
		if err := p.next(); err != nil {
			return nil, err
		}
		if !p.cur.IsKeyword("missing") {
			return nil, p.syntaxError("expected \"missing\" after \"ignore\"")
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		node.IgnoreMissing = true
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	setSpan(node, start, p.cur.StartPosition)
	return node, nil
}

func (p *Parser) parseImport(start token.Position) (ast.Stmt, error) {
	name, err := p.parseExpression(lowest)
	if err != nil {
		return nil, err
	}
	if !p.cur.IsKeyword("as") {
		return nil, p.syntaxError("expected \"as\", got %s", describe(p.cur))
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	if !p.curIs(token.IDENT) {
		return nil, p.syntaxError("expected a name, got %s", describe(p.cur))
	}
	alias := p.cur.Literal
	if err := p.next(); err != nil {
		return nil, err
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	node := &ast.Import{Name: name, As: alias}
	setSpan(node, start, p.cur.StartPosition)
	return node, nil
}

func (p *Parser) parseFromImport(start token.Position) (ast.Stmt, error) {
	name, err := p.parseExpression(lowest)
	if err != nil {
		return nil, err
	}
	if !p.cur.IsKeyword("import") {
		return nil, p.syntaxError("expected \"import\", got %s", describe(p.cur))
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	node := &ast.FromImport{Name: name}
	for {
		if !p.curIs(token.IDENT) {
			return nil, p.syntaxError("expected a name, got %s", describe(p.cur))
		}
		imp := ast.ImportName{Name: p.cur.Literal}
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.cur.IsKeyword("as") {
			if err := p.next(); err != nil {
				return nil, err
			}
			if !p.curIs(token.IDENT) {
				return nil, p.syntaxError("expected a name, got %s", describe(p.cur))
			}
			imp.As = p.cur.Literal
			if err := p.next(); err != nil {
				return nil, err
			}
		}
		node.Names = append(node.Names, imp)
		if !p.curIs(token.COMMA) {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	setSpan(node, start, p.cur.StartPosition)
	return node, nil
}

// parseSignature parses a parenthesized parameter list with optional
// trailing defaults. Defaults must be contiguous at the end.
func (p *Parser) parseSignature() ([]*ast.Ident, []ast.Expr, error) {
	if err := p.expect(token.LPAREN); err != nil {
		return nil, nil, err
	}
	var args []*ast.Ident
	var defaults []ast.Expr
	for !p.curIs(token.RPAREN) {
		if !p.curIs(token.IDENT) {
			return nil, nil, p.syntaxError("expected a parameter name, got %s", describe(p.cur))
		}
		arg := &ast.Ident{Name: p.cur.Literal}
		setSpan(arg, p.cur.StartPosition, p.cur.EndPosition)
		args = append(args, arg)
		if err := p.next(); err != nil {
			return nil, nil, err
		}
		if p.curIs(token.ASSIGN) {
			if err := p.next(); err != nil {
				return nil, nil, err
			}
			def, err := p.parseExpression(lowest)
			if err != nil {
				return nil, nil, err
			}
			defaults = append(defaults, def)
		} else if len(defaults) > 0 {
			return nil, nil, p.syntaxError(
				"parameter %q without a default follows parameters with defaults", arg.Name)
		}
		if !p.curIs(token.COMMA) {
			break
		}
		if err := p.next(); err != nil {
			return nil, nil, err
		}
	}
	if err := p.expect(token.RPAREN); err != nil {
		return nil, nil, err
	}
	return args, defaults, nil
}

func (p *Parser) parseMacro(start token.Position) (ast.Stmt, error) {
	if !p.curIs(token.IDENT) {
		return nil, p.syntaxError("expected a macro name, got %s", describe(p.cur))
	}
	name := p.cur.Literal
	if err := p.next(); err != nil {
		return nil, err
	}
	args, defaults, err := p.parseSignature()
	if err != nil {
		return nil, err
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	body, _, err := p.parseBody("macro "+strconv.Quote(name), start, "endmacro")
	if err != nil {
		return nil, err
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	node := &ast.Macro{Name: name, Args: args, Defaults: defaults, Body: body}
	setSpan(node, start, p.cur.StartPosition)
	return node, nil
}

func (p *Parser) parseCallBlock(start token.Position) (ast.Stmt, error) {
	caller := &ast.MacroLiteral{}
	// Optional caller parameter list: {% call(x) grid(items) %}
	if p.curIs(token.LPAREN) {
		args, defaults, err := p.parseSignature()
		if err != nil {
			return nil, err
		}
		caller.Args = args
		caller.Defaults = defaults
	}
	expr, err := p.parseExpression(lowest)
	if err != nil {
		return nil, err
	}
	call, ok := expr.(*ast.Call)
	if !ok {
		return nil, errors.New(errors.SyntaxError, "expected a call after \"call\"").
			WithLocation(expr.Pos().LineNumber(), expr.Pos().Offset)
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	body, _, err := p.parseBody("call block", start, "endcall")
	if err != nil {
		return nil, err
	}
	caller.Body = body
	if err := p.endTag(); err != nil {
		return nil, err
	}
	setSpan(caller, start, p.cur.StartPosition)
	node := &ast.CallBlock{Call: call, Caller: caller}
	setSpan(node, start, p.cur.StartPosition)
	return node, nil
}

func (p *Parser) parseFilterBlock(start token.Position) (ast.Stmt, error) {
	filter, err := p.parseFilterChain(nil)
	if err != nil {
		return nil, err
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	body, _, err := p.parseBody("filter block", start, "endfilter")
	if err != nil {
		return nil, err
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	node := &ast.FilterBlock{Filter: filter, Body: body}
	setSpan(node, start, p.cur.StartPosition)
	return node, nil
}

// parseFilterChain parses name(args) | name2(args)... applied to the given
// base expression, which may be nil for filter blocks and set blocks where
// the input is the rendered body.
func (p *Parser) parseFilterChain(base ast.Expr) (ast.Expr, error) {
	for {
		if !p.curIs(token.IDENT) {
			return nil, p.syntaxError("expected a filter name, got %s", describe(p.cur))
		}
		node := &ast.Filter{Left: base, Name: p.cur.Literal}
		start := p.cur.StartPosition
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.curIs(token.LPAREN) {
			args, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			node.Args = args
		}
		setSpan(node, start, p.cur.StartPosition)
		base = node
		if !p.curIs(token.PIPE) {
			return base, nil
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
}

func (p *Parser) parseWith(start token.Position) (ast.Stmt, error) {
	node := &ast.With{}
	for !p.curIs(token.BLOCK_END) {
		target, err := p.parseAssignTarget(false)
		if err != nil {
			return nil, err
		}
		if err := p.expect(token.ASSIGN); err != nil {
			return nil, err
		}
		value, err := p.parseExpression(lowest)
		if err != nil {
			return nil, err
		}
		node.Bindings = append(node.Bindings, ast.WithBinding{Target: target, Value: value})
		if !p.curIs(token.COMMA) {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	body, _, err := p.parseBody("with", start, "endwith")
	if err != nil {
		return nil, err
	}
	node.Body = body
	if err := p.endTag(); err != nil {
		return nil, err
	}
	setSpan(node, start, p.cur.StartPosition)
	return node, nil
}

func (p *Parser) parseAutoEscape(start token.Position) (ast.Stmt, error) {
	mode, err := p.parseExpression(lowest)
	if err != nil {
		return nil, err
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	body, _, err := p.parseBody("autoescape", start, "endautoescape")
	if err != nil {
		return nil, err
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	node := &ast.AutoEscape{Mode: mode, Body: body}
	setSpan(node, start, p.cur.StartPosition)
	return node, nil
}

func (p *Parser) parseDo(start token.Position) (ast.Stmt, error) {
	expr, err := p.parseExpression(lowest)
	if err != nil {
		return nil, err
	}
	if err := p.endTag(); err != nil {
		return nil, err
	}
	node := &ast.Do{Expr: expr}
	setSpan(node, start, p.cur.StartPosition)
	return node, nil
}

// parseAssignTarget parses the target of a for loop, set, or with binding:
// a name, a tuple of names for unpacking, or (when attributes are allowed)
// a dotted path for namespace assignment.
func (p *Parser) parseAssignTarget(allowTuple bool) (ast.Expr, error) {
	parseOne := func() (ast.Expr, error) {
		if p.curIs(token.LPAREN) && allowTuple {
			if err := p.next(); err != nil {
				return nil, err
			}
			inner, err := p.parseAssignTarget(true)
			if err != nil {
				return nil, err
			}
			return inner, p.expect(token.RPAREN)
		}
		if !p.curIs(token.IDENT) {
			return nil, p.syntaxError("expected an assignment target, got %s", describe(p.cur))
		}
		var target ast.Expr
		ident := &ast.Ident{Name: p.cur.Literal}
		setSpan(ident, p.cur.StartPosition, p.cur.EndPosition)
		target = ident
		if err := p.next(); err != nil {
			return nil, err
		}
		for p.curIs(token.PERIOD) {
			if err := p.next(); err != nil {
				return nil, err
			}
			if !p.curIs(token.IDENT) {
				return nil, p.syntaxError("expected an attribute name, got %s", describe(p.cur))
			}
			attr := &ast.GetAttr{Object: target, Name: p.cur.Literal}
			setSpan(attr, target.Pos(), p.cur.EndPosition)
			target = attr
			if err := p.next(); err != nil {
				return nil, err
			}
		}
		return target, nil
	}
	first, err := parseOne()
	if err != nil {
		return nil, err
	}
	if !allowTuple || !p.curIs(token.COMMA) {
		return first, nil
	}
	tuple := &ast.TupleLiteral{Items: []ast.Expr{first}}
	for p.curIs(token.COMMA) {
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.cur.IsKeyword(token.KeywordIn) || p.curIs(token.ASSIGN) {
			break
		}
		item, err := parseOne()
		if err != nil {
			return nil, err
		}
		tuple.Items = append(tuple.Items, item)
	}
	setSpan(tuple, first.Pos(), p.cur.StartPosition)
	return tuple, nil
}

func setSpan(node interface {
	SetSpan(start, end token.Position)
}, start, end token.Position) {
	node.SetSpan(start, end)
}
