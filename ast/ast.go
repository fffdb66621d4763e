// Package ast defines the abstract syntax tree produced by the parser and
// consumed by the compiler.
package ast

import (
	"strconv"
	"strings"

	"github.com/cloudcmds/vellum/token"
)

// Node is implemented by all AST nodes.
type Node interface {
	// Pos returns the position of the first token belonging to the node.
	Pos() token.Position

	// End returns the position of the first token after the node.
	End() token.Position

	// String returns an approximate source representation of the node.
	String() string
}

// Expr is implemented by all expression nodes.
type Expr interface {
	Node
	exprNode()
}

// Stmt is implemented by all statement nodes.
type Stmt interface {
	Node
	stmtNode()
}

// span is embedded by nodes to carry their source extent.
type span struct {
	start token.Position
	end   token.Position
}

func (s span) Pos() token.Position { return s.start }
func (s span) End() token.Position { return s.end }

// SetSpan records the node's source extent. The parser calls this once per
// node during construction.
func (s *span) SetSpan(start, end token.Position) {
	s.start = start
	s.end = end
}

// ----------------------------------------------------------------------------
// Expressions

// Ident is a variable reference.
type Ident struct {
	span
	Name string
}

func (i *Ident) exprNode()      {}
func (i *Ident) String() string { return i.Name }

// IntLiteral is an integer literal.
type IntLiteral struct {
	span
	Value int64
}

func (l *IntLiteral) exprNode()      {}
func (l *IntLiteral) String() string { return strconv.FormatInt(l.Value, 10) }

// FloatLiteral is a floating point literal.
type FloatLiteral struct {
	span
	Value   float64
	Literal string
}

func (l *FloatLiteral) exprNode()      {}
func (l *FloatLiteral) String() string { return l.Literal }

// StringLiteral is a quoted string literal.
type StringLiteral struct {
	span
	Value string
}

func (l *StringLiteral) exprNode()      {}
func (l *StringLiteral) String() string { return "\"" + l.Value + "\"" }

// BoolLiteral is true or false.
type BoolLiteral struct {
	span
	Value bool
}

func (l *BoolLiteral) exprNode() {}
func (l *BoolLiteral) String() string {
	if l.Value {
		return "true"
	}
	return "false"
}

// NoneLiteral is the none literal.
type NoneLiteral struct {
	span
}

func (l *NoneLiteral) exprNode()      {}
func (l *NoneLiteral) String() string { return "none" }

// SeqLiteral is a list literal such as [1, 2, 3].
type SeqLiteral struct {
	span
	Items []Expr
}

func (l *SeqLiteral) exprNode() {}
func (l *SeqLiteral) String() string {
	return "[" + joinExprs(l.Items, ", ") + "]"
}

// MapLiteral is a map literal such as {"a": 1}.
type MapLiteral struct {
	span
	Keys   []Expr
	Values []Expr
}

func (l *MapLiteral) exprNode() {}
func (l *MapLiteral) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i := range l.Keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(l.Keys[i].String())
		b.WriteString(": ")
		b.WriteString(l.Values[i].String())
	}
	b.WriteString("}")
	return b.String()
}

// TupleLiteral is a parenthesized or bare tuple, used both as an expression
// and as an unpacking target in for loops and set statements.
type TupleLiteral struct {
	span
	Items []Expr
}

func (l *TupleLiteral) exprNode() {}
func (l *TupleLiteral) String() string {
	return "(" + joinExprs(l.Items, ", ") + ")"
}

// Prefix is a unary operation: not x, -x.
type Prefix struct {
	span
	Operator string
	Right    Expr
}

func (p *Prefix) exprNode() {}
func (p *Prefix) String() string {
	if p.Operator == "not" {
		return "(not " + p.Right.String() + ")"
	}
	return "(" + p.Operator + p.Right.String() + ")"
}

// Infix is a binary operation: arithmetic, comparison, logic, containment,
// or string concatenation.
type Infix struct {
	span
	Operator string
	Left     Expr
	Right    Expr
}

func (i *Infix) exprNode() {}
func (i *Infix) String() string {
	return "(" + i.Left.String() + " " + i.Operator + " " + i.Right.String() + ")"
}

// Test applies a test to a value: x is odd, x is not divisibleby(3).
type Test struct {
	span
	Left    Expr
	Name    string
	Args    []Expr
	Negated bool
}

func (t *Test) exprNode() {}
func (t *Test) String() string {
	var b strings.Builder
	b.WriteString(t.Left.String())
	if t.Negated {
		b.WriteString(" is not ")
	} else {
		b.WriteString(" is ")
	}
	b.WriteString(t.Name)
	if len(t.Args) > 0 {
		b.WriteString("(" + joinExprs(t.Args, ", ") + ")")
	}
	return b.String()
}

// Filter applies a filter to a value: x | upper, x | join(", ").
type Filter struct {
	span
	Left Expr
	Name string
	Args []Expr
}

func (f *Filter) exprNode() {}
func (f *Filter) String() string {
	var b strings.Builder
	if f.Left != nil {
		b.WriteString(f.Left.String())
	}
	b.WriteString("|")
	b.WriteString(f.Name)
	if len(f.Args) > 0 {
		b.WriteString("(" + joinExprs(f.Args, ", ") + ")")
	}
	return b.String()
}

// Kwarg is a name=value pair in a call argument list.
type Kwarg struct {
	span
	Name  string
	Value Expr
}

func (k *Kwarg) exprNode()      {}
func (k *Kwarg) String() string { return k.Name + "=" + k.Value.String() }

// Call invokes a callable: fn(a, b, key=value).
type Call struct {
	span
	Func Expr
	Args []Expr
}

func (c *Call) exprNode() {}
func (c *Call) String() string {
	return c.Func.String() + "(" + joinExprs(c.Args, ", ") + ")"
}

// GetAttr is dot attribute access: user.name.
type GetAttr struct {
	span
	Object Expr
	Name   string
}

func (g *GetAttr) exprNode()      {}
func (g *GetAttr) String() string { return g.Object.String() + "." + g.Name }

// GetItem is bracket item access: items[0], map["key"].
type GetItem struct {
	span
	Object Expr
	Index  Expr
}

func (g *GetItem) exprNode() {}
func (g *GetItem) String() string {
	return g.Object.String() + "[" + g.Index.String() + "]"
}

// SliceExpr is bracket slice access: items[1:3], name[::-1]. Nil bounds
// default per the step direction.
type SliceExpr struct {
	span
	Object Expr
	Start  Expr
	Stop   Expr
	Step   Expr
}

func (s *SliceExpr) exprNode() {}
func (s *SliceExpr) String() string {
	var b strings.Builder
	b.WriteString(s.Object.String())
	b.WriteString("[")
	if s.Start != nil {
		b.WriteString(s.Start.String())
	}
	b.WriteString(":")
	if s.Stop != nil {
		b.WriteString(s.Stop.String())
	}
	if s.Step != nil {
		b.WriteString(":")
		b.WriteString(s.Step.String())
	}
	b.WriteString("]")
	return b.String()
}

// Ternary is an inline conditional: a if cond else b. Else may be nil, in
// which case the expression yields undefined when the condition is false.
type Ternary struct {
	span
	Then Expr
	Cond Expr
	Else Expr
}

func (t *Ternary) exprNode() {}
func (t *Ternary) String() string {
	s := t.Then.String() + " if " + t.Cond.String()
	if t.Else != nil {
		s += " else " + t.Else.String()
	}
	return s
}

// MacroLiteral is an inline macro value, used to pass the body of a call
// block to a macro as its caller.
type MacroLiteral struct {
	span
	Args     []*Ident
	Defaults []Expr
	Body     []Stmt
}

func (m *MacroLiteral) exprNode()      {}
func (m *MacroLiteral) String() string { return "<caller>" }

// ----------------------------------------------------------------------------
// Statements

// Template is the root node of a parsed template.
type Template struct {
	span
	Body []Stmt
}

func (t *Template) stmtNode() {}
func (t *Template) String() string {
	var b strings.Builder
	for _, s := range t.Body {
		b.WriteString(s.String())
	}
	return b.String()
}

// Text is a literal text chunk emitted verbatim.
type Text struct {
	span
	Value string
}

func (t *Text) stmtNode()      {}
func (t *Text) String() string { return t.Value }

// Output renders an expression: {{ expr }}.
type Output struct {
	span
	Expr Expr
}

func (o *Output) stmtNode()      {}
func (o *Output) String() string { return "{{ " + o.Expr.String() + " }}" }

// If is a conditional statement with optional elif and else branches. An
// elif chain parses into a nested If in the Else slot.
type If struct {
	span
	Cond Expr
	Then []Stmt
	Else []Stmt
}

func (i *If) stmtNode() {}
func (i *If) String() string {
	var b strings.Builder
	b.WriteString("{% if " + i.Cond.String() + " %}")
	writeStmts(&b, i.Then)
	if len(i.Else) > 0 {
		b.WriteString("{% else %}")
		writeStmts(&b, i.Else)
	}
	b.WriteString("{% endif %}")
	return b.String()
}

// For is a loop statement. Target is an Ident or TupleLiteral. Filter, when
// present, drops items for which it is falsy before iteration begins. Else
// runs when the iterable produced no items. Recursive loops may re-enter
// themselves through the loop object.
type For struct {
	span
	Target    Expr
	Iter      Expr
	Filter    Expr
	Body      []Stmt
	Else      []Stmt
	Recursive bool
}

func (f *For) stmtNode() {}
func (f *For) String() string {
	var b strings.Builder
	b.WriteString("{% for " + f.Target.String() + " in " + f.Iter.String())
	if f.Filter != nil {
		b.WriteString(" if " + f.Filter.String())
	}
	if f.Recursive {
		b.WriteString(" recursive")
	}
	b.WriteString(" %}")
	writeStmts(&b, f.Body)
	if len(f.Else) > 0 {
		b.WriteString("{% else %}")
		writeStmts(&b, f.Else)
	}
	b.WriteString("{% endfor %}")
	return b.String()
}

// Set assigns an expression to a target: an Ident, a TupleLiteral for
// unpacking, or a GetAttr on a namespace.
type Set struct {
	span
	Target Expr
	Value  Expr
}

func (s *Set) stmtNode() {}
func (s *Set) String() string {
	return "{% set " + s.Target.String() + " = " + s.Value.String() + " %}"
}

// SetBlock captures rendered body content into a variable, optionally
// passing it through a filter first.
type SetBlock struct {
	span
	Target Expr
	Filter Expr
	Body   []Stmt
}

func (s *SetBlock) stmtNode() {}
func (s *SetBlock) String() string {
	var b strings.Builder
	b.WriteString("{% set " + s.Target.String())
	if s.Filter != nil {
		b.WriteString(" | " + s.Filter.String())
	}
	b.WriteString(" %}")
	writeStmts(&b, s.Body)
	b.WriteString("{% endset %}")
	return b.String()
}

// Block declares a named block that child templates may override.
type Block struct {
	span
	Name string
	Body []Stmt
}

func (bl *Block) stmtNode() {}
func (bl *Block) String() string {
	var b strings.Builder
	b.WriteString("{% block " + bl.Name + " %}")
	writeStmts(&b, bl.Body)
	b.WriteString("{% endblock %}")
	return b.String()
}

// Extends declares the parent template. It must be the first statement.
type Extends struct {
	span
	Name Expr
}

func (e *Extends) stmtNode()      {}
func (e *Extends) String() string { return "{% extends " + e.Name.String() + " %}" }

// Include renders another template in place. Name may evaluate to a string
// or to a list of fallback names tried in order.
type Include struct {
	span
	Name          Expr
	IgnoreMissing bool
}

func (i *Include) stmtNode() {}
func (i *Include) String() string {
	s := "{% include " + i.Name.String()
	if i.IgnoreMissing {
		s += " ignore missing"
	}
	return s + " %}"
}

// Import binds another template's exported macros and variables to a name:
// {% import "helpers.html" as helpers %}.
type Import struct {
	span
	Name Expr
	As   string
}

func (i *Import) stmtNode() {}
func (i *Import) String() string {
	return "{% import " + i.Name.String() + " as " + i.As + " %}"
}

// ImportName is one name imported by a from-import, with an optional alias.
type ImportName struct {
	Name string
	As   string
}

// FromImport binds selected exports of another template:
// {% from "helpers.html" import input, label as lbl %}.
type FromImport struct {
	span
	Name  Expr
	Names []ImportName
}

func (f *FromImport) stmtNode() {}
func (f *FromImport) String() string {
	var b strings.Builder
	b.WriteString("{% from " + f.Name.String() + " import ")
	for i, n := range f.Names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(n.Name)
		if n.As != "" {
			b.WriteString(" as " + n.As)
		}
	}
	b.WriteString(" %}")
	return b.String()
}

// Macro declares a reusable template fragment with parameters. Defaults
// align right against Args: the last len(Defaults) parameters have them.
type Macro struct {
	span
	Name     string
	Args     []*Ident
	Defaults []Expr
	Body     []Stmt
}

func (m *Macro) stmtNode() {}
func (m *Macro) String() string {
	var b strings.Builder
	b.WriteString("{% macro " + m.Name + "(")
	n := len(m.Args) - len(m.Defaults)
	for i, a := range m.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.Name)
		if i >= n {
			b.WriteString("=" + m.Defaults[i-n].String())
		}
	}
	b.WriteString(") %}")
	writeStmts(&b, m.Body)
	b.WriteString("{% endmacro %}")
	return b.String()
}

// CallBlock invokes a macro with its body exposed as caller():
// {% call fn(a) %}body{% endcall %}.
type CallBlock struct {
	span
	Call   *Call
	Caller *MacroLiteral
}

func (c *CallBlock) stmtNode() {}
func (c *CallBlock) String() string {
	var b strings.Builder
	b.WriteString("{% call " + c.Call.String() + " %}")
	writeStmts(&b, c.Caller.Body)
	b.WriteString("{% endcall %}")
	return b.String()
}

// FilterBlock renders its body and passes the result through a filter:
// {% filter upper %}body{% endfilter %}.
type FilterBlock struct {
	span
	Filter Expr
	Body   []Stmt
}

func (f *FilterBlock) stmtNode() {}
func (f *FilterBlock) String() string {
	var b strings.Builder
	b.WriteString("{% filter " + f.Filter.String() + " %}")
	writeStmts(&b, f.Body)
	b.WriteString("{% endfilter %}")
	return b.String()
}

// WithBinding is one name = expr pair in a with statement.
type WithBinding struct {
	Target Expr
	Value  Expr
}

// With introduces scoped bindings for the duration of its body.
type With struct {
	span
	Bindings []WithBinding
	Body     []Stmt
}

func (w *With) stmtNode() {}
func (w *With) String() string {
	var b strings.Builder
	b.WriteString("{% with ")
	for i, bind := range w.Bindings {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(bind.Target.String() + " = " + bind.Value.String())
	}
	b.WriteString(" %}")
	writeStmts(&b, w.Body)
	b.WriteString("{% endwith %}")
	return b.String()
}

// AutoEscape overrides the escaping behavior for its body.
type AutoEscape struct {
	span
	Mode Expr
	Body []Stmt
}

func (a *AutoEscape) stmtNode() {}
func (a *AutoEscape) String() string {
	var b strings.Builder
	b.WriteString("{% autoescape " + a.Mode.String() + " %}")
	writeStmts(&b, a.Body)
	b.WriteString("{% endautoescape %}")
	return b.String()
}

// Do evaluates an expression and discards the result.
type Do struct {
	span
	Expr Expr
}

func (d *Do) stmtNode()      {}
func (d *Do) String() string { return "{% do " + d.Expr.String() + " %}" }

// ----------------------------------------------------------------------------

func joinExprs(exprs []Expr, sep string) string {
	parts := make([]string, 0, len(exprs))
	for _, e := range exprs {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, sep)
}

func writeStmts(b *strings.Builder, stmts []Stmt) {
	for _, s := range stmts {
		b.WriteString(s.String())
	}
}
