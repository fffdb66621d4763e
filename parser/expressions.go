package parser

import (
	"strconv"

	"github.com/cloudcmds/vellum/ast"
	"github.com/cloudcmds/vellum/token"
)

// infixPrecedence returns the binding power of the current token in infix
// position, or lowest if it cannot continue an expression.
func (p *Parser) infixPrecedence() int {
	switch p.cur.Type {
	case token.PERIOD, token.LBRACKET, token.LPAREN:
		return postfix
	case token.PIPE:
		return filterPipe
	case token.POW:
		return power
	case token.ASTERISK, token.SLASH, token.FLOORDIV, token.MOD:
		return product
	case token.PLUS, token.MINUS, token.TILDE:
		return additive
	case token.EQ, token.NOT_EQ, token.LT, token.LT_EQ, token.GT, token.GT_EQ:
		return comparison
	case token.IDENT:
		switch p.cur.Literal {
		case token.KeywordIn, token.KeywordIs:
			return comparison
		case token.KeywordNot:
			// Only "not in" continues an expression
			if p.peek.IsKeyword(token.KeywordIn) {
				return comparison
			}
			return lowest
		case token.KeywordAnd:
			return logicalAnd
		case token.KeywordOr:
			return logicalOr
		case token.KeywordIf:
			return ternary
		default:
			return lowest
		}
	default:
		return lowest
	}
}

func (p *Parser) parseExpression(minPrec int) (ast.Expr, error) {
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}
	for {
		prec := p.infixPrecedence()
		if prec <= minPrec {
			return left, nil
		}
		left, err = p.parseInfix(left, prec)
		if err != nil {
			return nil, err
		}
	}
}

func (p *Parser) parsePrefix() (ast.Expr, error) {
	start := p.cur.StartPosition
	switch p.cur.Type {
	case token.IDENT:
		switch p.cur.Literal {
		case token.KeywordTrue, "True":
			node := &ast.BoolLiteral{Value: true}
			setSpan(node, start, p.cur.EndPosition)
			return node, p.next()
		case token.KeywordFalse, "False":
			node := &ast.BoolLiteral{Value: false}
			setSpan(node, start, p.cur.EndPosition)
			return node, p.next()
		case token.KeywordNone, "None":
			node := &ast.NoneLiteral{}
			setSpan(node, start, p.cur.EndPosition)
			return node, p.next()
		case token.KeywordNot:
			if err := p.next(); err != nil {
				return nil, err
			}
			right, err := p.parseExpression(logicalNot)
			if err != nil {
				return nil, err
			}
			node := &ast.Prefix{Operator: "not", Right: right}
			setSpan(node, start, right.End())
			return node, nil
		}
		node := &ast.Ident{Name: p.cur.Literal}
		setSpan(node, start, p.cur.EndPosition)
		return node, p.next()
	case token.INT:
		n, err := strconv.ParseInt(p.cur.Literal, 10, 64)
		if err != nil {
			return nil, p.syntaxError("invalid integer literal %q", p.cur.Literal)
		}
		node := &ast.IntLiteral{Value: n}
		setSpan(node, start, p.cur.EndPosition)
		return node, p.next()
	case token.FLOAT:
		f, err := strconv.ParseFloat(p.cur.Literal, 64)
		if err != nil {
			return nil, p.syntaxError("invalid float literal %q", p.cur.Literal)
		}
		node := &ast.FloatLiteral{Value: f, Literal: p.cur.Literal}
		setSpan(node, start, p.cur.EndPosition)
		return node, p.next()
	case token.STRING:
		node := &ast.StringLiteral{Value: p.cur.Literal}
		setSpan(node, start, p.cur.EndPosition)
		return node, p.next()
	case token.MINUS, token.PLUS:
		op := string(p.cur.Type)
		if err := p.next(); err != nil {
			return nil, err
		}
		// Power binds tighter than unary minus: -2 ** 2 is -(2 ** 2)
		right, err := p.parseExpression(power - 1)
		if err != nil {
			return nil, err
		}
		node := &ast.Prefix{Operator: op, Right: right}
		setSpan(node, start, right.End())
		return node, nil
	case token.LPAREN:
		return p.parseGroup()
	case token.LBRACKET:
		return p.parseSeqLiteral()
	case token.LBRACE:
		return p.parseMapLiteral()
	default:
		return nil, p.syntaxError("unexpected %s in expression", describe(p.cur))
	}
}

func (p *Parser) parseGroup() (ast.Expr, error) {
	start := p.cur.StartPosition
	if err := p.next(); err != nil {
		return nil, err
	}
	if p.curIs(token.RPAREN) {
		node := &ast.TupleLiteral{}
		setSpan(node, start, p.cur.EndPosition)
		return node, p.next()
	}
	first, err := p.parseExpression(lowest)
	if err != nil {
		return nil, err
	}
	if !p.curIs(token.COMMA) {
		return first, p.expect(token.RPAREN)
	}
	tuple := &ast.TupleLiteral{Items: []ast.Expr{first}}
	for p.curIs(token.COMMA) {
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.curIs(token.RPAREN) {
			break
		}
		item, err := p.parseExpression(lowest)
		if err != nil {
			return nil, err
		}
		tuple.Items = append(tuple.Items, item)
	}
	setSpan(tuple, start, p.cur.EndPosition)
	return tuple, p.expect(token.RPAREN)
}

func (p *Parser) parseSeqLiteral() (ast.Expr, error) {
	start := p.cur.StartPosition
	if err := p.next(); err != nil {
		return nil, err
	}
	node := &ast.SeqLiteral{}
	for !p.curIs(token.RBRACKET) {
		item, err := p.parseExpression(lowest)
		if err != nil {
			return nil, err
		}
		node.Items = append(node.Items, item)
		if !p.curIs(token.COMMA) {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	setSpan(node, start, p.cur.EndPosition)
	return node, p.expect(token.RBRACKET)
}

func (p *Parser) parseMapLiteral() (ast.Expr, error) {
	start := p.cur.StartPosition
	if err := p.next(); err != nil {
		return nil, err
	}
	node := &ast.MapLiteral{}
	for !p.curIs(token.RBRACE) {
		key, err := p.parseExpression(lowest)
		if err != nil {
			return nil, err
		}
		if err := p.expect(token.COLON); err != nil {
			return nil, err
		}
		val, err := p.parseExpression(lowest)
		if err != nil {
			return nil, err
		}
		node.Keys = append(node.Keys, key)
		node.Values = append(node.Values, val)
		if !p.curIs(token.COMMA) {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	setSpan(node, start, p.cur.EndPosition)
	return node, p.expect(token.RBRACE)
}

func (p *Parser) parseInfix(left ast.Expr, prec int) (ast.Expr, error) {
	switch p.cur.Type {
	case token.PERIOD:
		return p.parseGetAttr(left)
	case token.LBRACKET:
		return p.parseGetItem(left)
	case token.LPAREN:
		return p.parseCall(left)
	case token.PIPE:
		if err := p.next(); err != nil {
			return nil, err
		}
		return p.parseFilterChain(left)
	case token.POW:
		// Right associative
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseExpression(prec - 1)
		if err != nil {
			return nil, err
		}
		return p.newInfix("**", left, right), nil
	case token.IDENT:
		switch p.cur.Literal {
		case token.KeywordAnd, token.KeywordOr, token.KeywordIn:
			op := p.cur.Literal
			if err := p.next(); err != nil {
				return nil, err
			}
			right, err := p.parseExpression(prec)
			if err != nil {
				return nil, err
			}
			return p.newInfix(op, left, right), nil
		case token.KeywordNot:
			// "not in"
			if err := p.next(); err != nil {
				return nil, err
			}
			if err := p.next(); err != nil {
				return nil, err
			}
			right, err := p.parseExpression(prec)
			if err != nil {
				return nil, err
			}
			return p.newInfix("not in", left, right), nil
		case token.KeywordIs:
			return p.parseTest(left)
		case token.KeywordIf:
			return p.parseTernary(left)
		}
	}
	op := string(p.cur.Type)
	if err := p.next(); err != nil {
		return nil, err
	}
	right, err := p.parseExpression(prec)
	if err != nil {
		return nil, err
	}
	return p.newInfix(op, left, right), nil
}

func (p *Parser) newInfix(op string, left, right ast.Expr) ast.Expr {
	node := &ast.Infix{Operator: op, Left: left, Right: right}
	setSpan(node, left.Pos(), right.End())
	return node
}

func (p *Parser) parseGetAttr(left ast.Expr) (ast.Expr, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	if !p.curIs(token.IDENT) {
		return nil, p.syntaxError("expected an attribute name, got %s", describe(p.cur))
	}
	node := &ast.GetAttr{Object: left, Name: p.cur.Literal}
	setSpan(node, left.Pos(), p.cur.EndPosition)
	return node, p.next()
}

// parseGetItem parses bracket access: an index expression or a slice with
// up to two colons.
func (p *Parser) parseGetItem(left ast.Expr) (ast.Expr, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	var start, stop, step ast.Expr
	var err error
	isSlice := false

	if !p.curIs(token.COLON) {
		start, err = p.parseExpression(lowest)
		if err != nil {
			return nil, err
		}
	}
	if p.curIs(token.COLON) {
		isSlice = true
		if err := p.next(); err != nil {
			return nil, err
		}
		if !p.curIs(token.COLON) && !p.curIs(token.RBRACKET) {
			stop, err = p.parseExpression(lowest)
			if err != nil {
				return nil, err
			}
		}
		if p.curIs(token.COLON) {
			if err := p.next(); err != nil {
				return nil, err
			}
			if !p.curIs(token.RBRACKET) {
				step, err = p.parseExpression(lowest)
				if err != nil {
					return nil, err
				}
			}
		}
	}
	end := p.cur.EndPosition
	if err := p.expect(token.RBRACKET); err != nil {
		return nil, err
	}
	if isSlice {
		node := &ast.SliceExpr{Object: left, Start: start, Stop: stop, Step: step}
		setSpan(node, left.Pos(), end)
		return node, nil
	}
	if start == nil {
		return nil, p.syntaxError("empty index")
	}
	node := &ast.GetItem{Object: left, Index: start}
	setSpan(node, left.Pos(), end)
	return node, nil
}

func (p *Parser) parseCall(left ast.Expr) (ast.Expr, error) {
	args, err := p.parseCallArgs()
	if err != nil {
		return nil, err
	}
	node := &ast.Call{Func: left, Args: args}
	setSpan(node, left.Pos(), p.cur.StartPosition)
	return node, nil
}

// parseCallArgs parses a parenthesized argument list. Keyword arguments
// (name=value) may be mixed in and must follow the positional arguments.
func (p *Parser) parseCallArgs() ([]ast.Expr, error) {
	if err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	var args []ast.Expr
	sawKwarg := false
	for !p.curIs(token.RPAREN) {
		if p.curIs(token.IDENT) && p.peekIs(token.ASSIGN) && !token.IsStatementKeyword(p.cur.Literal) {
			kw := &ast.Kwarg{Name: p.cur.Literal}
			start := p.cur.StartPosition
			if err := p.next(); err != nil {
				return nil, err
			}
			if err := p.next(); err != nil {
				return nil, err
			}
			val, err := p.parseExpression(lowest)
			if err != nil {
				return nil, err
			}
			kw.Value = val
			setSpan(kw, start, val.End())
			args = append(args, kw)
			sawKwarg = true
		} else {
			if sawKwarg {
				return nil, p.syntaxError("positional argument follows keyword argument")
			}
			arg, err := p.parseExpression(lowest)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
		if !p.curIs(token.COMMA) {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	return args, p.expect(token.RPAREN)
}

// parseTest parses "left is name", "left is not name", with optional
// arguments either parenthesized or as a single bare operand.
func (p *Parser) parseTest(left ast.Expr) (ast.Expr, error) {
	if err := p.next(); err != nil { // consume "is"
		return nil, err
	}
	node := &ast.Test{Left: left}
	if p.cur.IsKeyword(token.KeywordNot) {
		node.Negated = true
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if !p.curIs(token.IDENT) {
		return nil, p.syntaxError("expected a test name, got %s", describe(p.cur))
	}
	node.Name = p.cur.Literal
	end := p.cur.EndPosition
	if err := p.next(); err != nil {
		return nil, err
	}
	switch {
	case p.curIs(token.LPAREN):
		args, err := p.parseCallArgs()
		if err != nil {
			return nil, err
		}
		node.Args = args
		end = p.cur.StartPosition
	case p.bareTestArgFollows():
		arg, err := p.parseExpression(comparison)
		if err != nil {
			return nil, err
		}
		node.Args = []ast.Expr{arg}
		end = arg.End()
	}
	setSpan(node, left.Pos(), end)
	return node, nil
}

// bareTestArgFollows reports whether the current token can begin the single
// unparenthesized argument of a test, as in "x is divisibleby 3".
func (p *Parser) bareTestArgFollows() bool {
	switch p.cur.Type {
	case token.INT, token.FLOAT, token.STRING, token.LBRACKET, token.LBRACE:
		return true
	case token.IDENT:
		switch p.cur.Literal {
		case token.KeywordAnd, token.KeywordOr, token.KeywordNot, token.KeywordIn,
			token.KeywordIs, token.KeywordIf, token.KeywordElse:
			return false
		}
		return !token.IsStatementKeyword(p.cur.Literal)
	default:
		return false
	}
}

func (p *Parser) parseTernary(then ast.Expr) (ast.Expr, error) {
	if err := p.next(); err != nil { // consume "if"
		return nil, err
	}
	cond, err := p.parseExpression(ternary)
	if err != nil {
		return nil, err
	}
	node := &ast.Ternary{Then: then, Cond: cond}
	end := cond.End()
	if p.cur.IsKeyword(token.KeywordElse) {
		if err := p.next(); err != nil {
			return nil, err
		}
		node.Else, err = p.parseExpression(ternary - 1)
		if err != nil {
			return nil, err
		}
		end = node.Else.End()
	}
	setSpan(node, then.Pos(), end)
	return node, nil
}
