// Package compiler lowers a template AST into flat bytecode.
//
// Compilation is single pass: forward jump operands are emitted as
// placeholders and backpatched once the target instruction index is known.
// Literals are deduplicated into a constant pool and names are interned
// into a name table; instructions reference both by index. Block bodies
// and macro bodies compile into their own Programs.
package compiler

import (
	"github.com/cloudcmds/vellum/ast"
	"github.com/cloudcmds/vellum/errors"
	"github.com/cloudcmds/vellum/op"
	"github.com/cloudcmds/vellum/value"
)

// Compiler lowers one template AST into a Program.
type Compiler struct {
	templateName string
	root         *scope
	stack        []*scope
	// recursiveLoops tracks enclosing for-loops with the recursive
	// modifier, enabling the fast emit-position loop() lowering
	recursiveLoops int
}

// scope is the mutable build state for one Program.
type scope struct {
	prog     *Program
	constIdx map[string]int
	nameIdx  map[string]int
	line     int
}

// Compile lowers the given template AST into a Program. The template name
// is recorded for error enrichment.
func Compile(tmpl *ast.Template, templateName string) (*Program, error) {
	c := &Compiler{templateName: templateName}
	root := c.pushScope(templateName)
	root.prog.Blocks = map[string]*Program{}
	c.root = root
	if err := c.compileStmts(tmpl.Body); err != nil {
		return nil, err
	}
	c.emit(op.ExportLocals)
	c.emit(op.Return)
	return root.prog, nil
}

func (c *Compiler) pushScope(name string) *scope {
	s := &scope{
		prog: &Program{
			Name:         name,
			TemplateName: c.templateName,
		},
		constIdx: map[string]int{},
		nameIdx:  map[string]int{},
	}
	c.stack = append(c.stack, s)
	return s
}

func (c *Compiler) popScope() *scope {
	s := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	return s
}

func (c *Compiler) scope() *scope {
	return c.stack[len(c.stack)-1]
}

func (c *Compiler) compileError(node ast.Node, format string, args ...any) error {
	return errors.Errorf(errors.CompileError, format, args...).
		WithTemplate(c.templateName).
		WithLocation(node.Pos().LineNumber(), node.Pos().Offset)
}

// emit appends an instruction, returning its index for backpatching.
func (c *Compiler) emit(code op.Code, operands ...op.Code) int {
	s := c.scope()
	pos := len(s.prog.Instructions)
	s.prog.Instructions = append(s.prog.Instructions, code)
	s.prog.Instructions = append(s.prog.Instructions, operands...)
	for i := 0; i <= len(operands); i++ {
		s.prog.Lines = append(s.prog.Lines, s.line)
	}
	return pos
}

// patch rewrites the first operand of the instruction at pos to target.
func (c *Compiler) patch(pos, target int) {
	c.scope().prog.Instructions[pos+1] = op.Code(target)
}

// pc returns the index the next emitted instruction will have.
func (c *Compiler) pc() int {
	return len(c.scope().prog.Instructions)
}

func (c *Compiler) setLine(node ast.Node) {
	if line := node.Pos().LineNumber(); line > 0 {
		c.scope().line = line
	}
}

// constant interns a value in the constant pool, deduplicating literals.
func (c *Compiler) constant(v value.Value) op.Code {
	s := c.scope()
	key := string(v.Type()) + ":" + v.Inspect()
	if idx, ok := s.constIdx[key]; ok {
		return op.Code(idx)
	}
	idx := len(s.prog.Constants)
	s.prog.Constants = append(s.prog.Constants, v)
	s.constIdx[key] = idx
	return op.Code(idx)
}

// name interns a name in the name table.
func (c *Compiler) name(n string) op.Code {
	s := c.scope()
	if idx, ok := s.nameIdx[n]; ok {
		return op.Code(idx)
	}
	idx := len(s.prog.Names)
	s.prog.Names = append(s.prog.Names, n)
	s.nameIdx[n] = idx
	return op.Code(idx)
}

func (c *Compiler) compileStmts(stmts []ast.Stmt) error {
	for _, s := range stmts {
		if err := c.compileStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileStmt(stmt ast.Stmt) error {
	c.setLine(stmt)
	switch stmt := stmt.(type) {
	case *ast.Text:
		c.emit(op.EmitRaw, c.constant(value.NewString(stmt.Value)))
		return nil
	case *ast.Output:
		if c.compileFastRecurse(stmt) {
			return nil
		}
		if err := c.compileExpr(stmt.Expr); err != nil {
			return err
		}
		c.emit(op.Emit)
		return nil
	case *ast.If:
		return c.compileIf(stmt)
	case *ast.For:
		return c.compileFor(stmt)
	case *ast.Set:
		if err := c.compileExpr(stmt.Value); err != nil {
			return err
		}
		return c.compileStore(stmt.Target)
	case *ast.SetBlock:
		return c.compileSetBlock(stmt)
	case *ast.Block:
		return c.compileBlock(stmt)
	case *ast.Extends:
		return c.compileExtends(stmt)
	case *ast.Include:
		if err := c.compileExpr(stmt.Name); err != nil {
			return err
		}
		flag := op.Code(0)
		if stmt.IgnoreMissing {
			flag = 1
		}
		c.emit(op.Include, flag)
		return nil
	case *ast.Import:
		if err := c.compileExpr(stmt.Name); err != nil {
			return err
		}
		c.emit(op.ImportTemplate)
		c.emit(op.StoreLocal, c.name(stmt.As))
		return nil
	case *ast.FromImport:
		return c.compileFromImport(stmt)
	case *ast.Macro:
		return c.compileMacro(stmt)
	case *ast.CallBlock:
		return c.compileCallBlock(stmt)
	case *ast.FilterBlock:
		c.emit(op.BeginCapture, op.Code(op.CaptureModeCapture))
		if err := c.compileStmts(stmt.Body); err != nil {
			return err
		}
		c.emit(op.EndCapture)
		if err := c.compileExpr(stmt.Filter); err != nil {
			return err
		}
		c.emit(op.Emit)
		return nil
	case *ast.With:
		c.emit(op.PushWith)
		for _, bind := range stmt.Bindings {
			if err := c.compileExpr(bind.Value); err != nil {
				return err
			}
			if err := c.compileStore(bind.Target); err != nil {
				return err
			}
		}
		if err := c.compileStmts(stmt.Body); err != nil {
			return err
		}
		c.emit(op.PopFrame)
		return nil
	case *ast.AutoEscape:
		if err := c.compileExpr(stmt.Mode); err != nil {
			return err
		}
		c.emit(op.PushAutoEscape)
		if err := c.compileStmts(stmt.Body); err != nil {
			return err
		}
		c.emit(op.PopAutoEscape)
		return nil
	case *ast.Do:
		if err := c.compileExpr(stmt.Expr); err != nil {
			return err
		}
		c.emit(op.DiscardTop)
		return nil
	default:
		return c.compileError(stmt, "cannot compile statement %T", stmt)
	}
}

// compileFastRecurse lowers {{ loop(expr) }} inside a recursive for loop
// to a direct loop re-entry that appends to the current output.
func (c *Compiler) compileFastRecurse(out *ast.Output) bool {
	if c.recursiveLoops == 0 {
		return false
	}
	call, ok := out.Expr.(*ast.Call)
	if !ok || len(call.Args) != 1 {
		return false
	}
	if _, isKwarg := call.Args[0].(*ast.Kwarg); isKwarg {
		return false
	}
	fn, ok := call.Func.(*ast.Ident)
	if !ok || fn.Name != "loop" {
		return false
	}
	if err := c.compileExpr(call.Args[0]); err != nil {
		return false
	}
	c.emit(op.FastRecurse)
	return true
}

func (c *Compiler) compileIf(stmt *ast.If) error {
	if err := c.compileExpr(stmt.Cond); err != nil {
		return err
	}
	jumpElse := c.emit(op.JumpIfFalse, op.Placeholder)
	if err := c.compileStmts(stmt.Then); err != nil {
		return err
	}
	if len(stmt.Else) == 0 {
		c.patch(jumpElse, c.pc())
		return nil
	}
	jumpEnd := c.emit(op.Jump, op.Placeholder)
	c.patch(jumpElse, c.pc())
	if err := c.compileStmts(stmt.Else); err != nil {
		return err
	}
	c.patch(jumpEnd, c.pc())
	return nil
}

func (c *Compiler) compileFor(stmt *ast.For) error {
	if stmt.Filter != nil {
		if err := c.compileLoopFilter(stmt); err != nil {
			return err
		}
	} else {
		if err := c.compileExpr(stmt.Iter); err != nil {
			return err
		}
	}
	flags := op.Code(0)
	if stmt.Recursive {
		flags |= op.Code(op.LoopRecursive)
		c.recursiveLoops++
		defer func() { c.recursiveLoops-- }()
	}
	c.emit(op.PushLoop, flags)
	head := c.pc()
	iterate := c.emit(op.Iterate, op.Placeholder)
	if err := c.compileStore(stmt.Target); err != nil {
		return err
	}
	if err := c.compileStmts(stmt.Body); err != nil {
		return err
	}
	c.emit(op.Jump, op.Code(head))
	c.patch(iterate, c.pc())
	if len(stmt.Else) == 0 {
		c.emit(op.PopFrame)
		return nil
	}
	c.emit(op.PushDidNotIterate)
	c.emit(op.PopFrame)
	jumpDone := c.emit(op.JumpIfFalse, op.Placeholder)
	if err := c.compileStmts(stmt.Else); err != nil {
		return err
	}
	c.patch(jumpDone, c.pc())
	return nil
}

// compileLoopFilter materializes the filtered iterable into a list before
// the loop proper begins, so loop.length and loop.last see the filtered
// item count.
func (c *Compiler) compileLoopFilter(stmt *ast.For) error {
	c.emit(op.BuildList, 0)
	if err := c.compileExpr(stmt.Iter); err != nil {
		return err
	}
	c.emit(op.PushLoop, 0)
	head := c.pc()
	iterate := c.emit(op.Iterate, op.Placeholder)
	c.emit(op.DupTop)
	if err := c.compileStore(stmt.Target); err != nil {
		return err
	}
	if err := c.compileExpr(stmt.Filter); err != nil {
		return err
	}
	skip := c.emit(op.JumpIfFalse, op.Placeholder)
	c.emit(op.ListAppend)
	c.emit(op.Jump, op.Code(head))
	c.patch(skip, c.pc())
	c.emit(op.DiscardTop)
	c.emit(op.Jump, op.Code(head))
	c.patch(iterate, c.pc())
	c.emit(op.PopFrame)
	return nil
}

func (c *Compiler) compileSetBlock(stmt *ast.SetBlock) error {
	c.emit(op.BeginCapture, op.Code(op.CaptureModeCapture))
	if err := c.compileStmts(stmt.Body); err != nil {
		return err
	}
	c.emit(op.EndCapture)
	if stmt.Filter != nil {
		if err := c.compileExpr(stmt.Filter); err != nil {
			return err
		}
	}
	return c.compileStore(stmt.Target)
}

func (c *Compiler) compileBlock(stmt *ast.Block) error {
	if _, exists := c.root.prog.Blocks[stmt.Name]; exists {
		return c.compileError(stmt, "block %q defined twice", stmt.Name)
	}
	c.pushScope("block " + stmt.Name)
	c.scope().line = stmt.Pos().LineNumber()
	if err := c.compileStmts(stmt.Body); err != nil {
		return err
	}
	c.emit(op.Return)
	block := c.popScope()
	c.root.prog.Blocks[stmt.Name] = block.prog
	c.emit(op.CallBlock, c.name(stmt.Name))
	return nil
}

func (c *Compiler) compileExtends(stmt *ast.Extends) error {
	if err := c.compileExpr(stmt.Name); err != nil {
		return err
	}
	c.emit(op.LoadBlocks)
	c.root.prog.HasParent = true
	if lit, ok := stmt.Name.(*ast.StringLiteral); ok {
		c.root.prog.ParentName = lit.Value
	}
	return nil
}

func (c *Compiler) compileFromImport(stmt *ast.FromImport) error {
	if err := c.compileExpr(stmt.Name); err != nil {
		return err
	}
	c.emit(op.ImportTemplate)
	for _, imp := range stmt.Names {
		alias := imp.As
		if alias == "" {
			alias = imp.Name
		}
		c.emit(op.DupTop)
		c.emit(op.GetAttr, c.name(imp.Name))
		c.emit(op.StoreLocal, c.name(alias))
	}
	c.emit(op.DiscardTop)
	return nil
}

// compileMacroBody compiles a macro's parameter defaults and body into a
// child program and returns its index. Defaults evaluate at call time: the
// prologue assigns each defaulted parameter only if the caller left it
// undefined.
func (c *Compiler) compileMacroBody(name string, args []*ast.Ident, defaults []ast.Expr, body []ast.Stmt, line int) (op.Code, error) {
	c.pushScope(name)
	c.scope().line = line
	prog := c.scope().prog
	for _, a := range args {
		prog.Params = append(prog.Params, a.Name)
	}
	prog.DefaultCount = len(defaults)
	required := len(args) - len(defaults)
	for i, def := range defaults {
		param := args[required+i]
		c.emit(op.Lookup, c.name(param.Name))
		c.emit(op.IsUndefined)
		skip := c.emit(op.JumpIfFalse, op.Placeholder)
		if err := c.compileExpr(def); err != nil {
			return 0, err
		}
		c.emit(op.StoreLocal, c.name(param.Name))
		c.patch(skip, c.pc())
	}
	if err := c.compileStmts(body); err != nil {
		return 0, err
	}
	c.emit(op.Return)
	child := c.popScope()
	parent := c.scope().prog
	idx := len(parent.Children)
	parent.Children = append(parent.Children, child.prog)
	return op.Code(idx), nil
}

func (c *Compiler) compileMacro(stmt *ast.Macro) error {
	idx, err := c.compileMacroBody(stmt.Name, stmt.Args, stmt.Defaults, stmt.Body, stmt.Pos().LineNumber())
	if err != nil {
		return err
	}
	c.emit(op.BuildMacro, idx, c.name(stmt.Name))
	c.emit(op.StoreLocal, c.name(stmt.Name))
	return nil
}

func (c *Compiler) compileCallBlock(stmt *ast.CallBlock) error {
	c.emit(op.PushWith)
	idx, err := c.compileMacroBody("caller", stmt.Caller.Args, stmt.Caller.Defaults,
		stmt.Caller.Body, stmt.Pos().LineNumber())
	if err != nil {
		return err
	}
	c.emit(op.BuildMacro, idx, c.name("caller"))
	c.emit(op.StoreLocal, c.name("caller"))
	if err := c.compileExpr(stmt.Call); err != nil {
		return err
	}
	c.emit(op.Emit)
	c.emit(op.PopFrame)
	return nil
}

// compileStore assigns the value on top of the stack to the given target:
// a name, an unpacking tuple, or a namespace attribute.
func (c *Compiler) compileStore(target ast.Expr) error {
	switch target := target.(type) {
	case *ast.Ident:
		c.emit(op.StoreLocal, c.name(target.Name))
		return nil
	case *ast.TupleLiteral:
		c.emit(op.UnpackList, op.Code(len(target.Items)))
		for _, item := range target.Items {
			if err := c.compileStore(item); err != nil {
				return err
			}
		}
		return nil
	case *ast.GetAttr:
		if err := c.compileExpr(target.Object); err != nil {
			return err
		}
		c.emit(op.SetAttr, c.name(target.Name))
		return nil
	default:
		return c.compileError(target, "cannot assign to %s", target.String())
	}
}

func (c *Compiler) compileExpr(expr ast.Expr) error {
	c.setLine(expr)
	switch expr := expr.(type) {
	case *ast.Ident:
		c.emit(op.Lookup, c.name(expr.Name))
		return nil
	case *ast.IntLiteral:
		c.emit(op.LoadConst, c.constant(value.NewInt(expr.Value)))
		return nil
	case *ast.FloatLiteral:
		c.emit(op.LoadConst, c.constant(value.NewFloat(expr.Value)))
		return nil
	case *ast.StringLiteral:
		c.emit(op.LoadConst, c.constant(value.NewString(expr.Value)))
		return nil
	case *ast.BoolLiteral:
		c.emit(op.LoadConst, c.constant(value.NewBool(expr.Value)))
		return nil
	case *ast.NoneLiteral:
		c.emit(op.LoadConst, c.constant(value.None))
		return nil
	case *ast.SeqLiteral:
		for _, item := range expr.Items {
			if err := c.compileExpr(item); err != nil {
				return err
			}
		}
		c.emit(op.BuildList, op.Code(len(expr.Items)))
		return nil
	case *ast.TupleLiteral:
		for _, item := range expr.Items {
			if err := c.compileExpr(item); err != nil {
				return err
			}
		}
		c.emit(op.BuildList, op.Code(len(expr.Items)))
		return nil
	case *ast.MapLiteral:
		for i := range expr.Keys {
			if err := c.compileExpr(expr.Keys[i]); err != nil {
				return err
			}
			if err := c.compileExpr(expr.Values[i]); err != nil {
				return err
			}
		}
		c.emit(op.BuildMap, op.Code(len(expr.Keys)))
		return nil
	case *ast.Prefix:
		return c.compilePrefix(expr)
	case *ast.Infix:
		return c.compileInfix(expr)
	case *ast.Ternary:
		return c.compileTernary(expr)
	case *ast.GetAttr:
		if err := c.compileExpr(expr.Object); err != nil {
			return err
		}
		c.emit(op.GetAttr, c.name(expr.Name))
		return nil
	case *ast.GetItem:
		if err := c.compileExpr(expr.Object); err != nil {
			return err
		}
		if err := c.compileExpr(expr.Index); err != nil {
			return err
		}
		c.emit(op.GetItem)
		return nil
	case *ast.SliceExpr:
		return c.compileSlice(expr)
	case *ast.Filter:
		if expr.Left != nil {
			if err := c.compileExpr(expr.Left); err != nil {
				return err
			}
		}
		argc, err := c.compileCallArgs(expr.Args)
		if err != nil {
			return err
		}
		c.emit(op.ApplyFilter, c.name(expr.Name), op.Code(argc))
		return nil
	case *ast.Test:
		if err := c.compileExpr(expr.Left); err != nil {
			return err
		}
		argc, err := c.compileCallArgs(expr.Args)
		if err != nil {
			return err
		}
		c.emit(op.PerformTest, c.name(expr.Name), op.Code(argc))
		if expr.Negated {
			c.emit(op.Not)
		}
		return nil
	case *ast.Call:
		return c.compileCall(expr)
	case *ast.Kwarg:
		return c.compileError(expr, "keyword argument %q outside a call", expr.Name)
	default:
		return c.compileError(expr, "cannot compile expression %T", expr)
	}
}

func (c *Compiler) compilePrefix(expr *ast.Prefix) error {
	if err := c.compileExpr(expr.Right); err != nil {
		return err
	}
	switch expr.Operator {
	case "not":
		c.emit(op.Not)
	case "-":
		c.emit(op.Neg)
	case "+":
		// Unary plus is the identity on numbers
	default:
		return c.compileError(expr, "unknown prefix operator %q", expr.Operator)
	}
	return nil
}

var binaryOps = map[string]value.BinaryOpType{
	"+":  value.OpAdd,
	"-":  value.OpSub,
	"*":  value.OpMul,
	"/":  value.OpDiv,
	"//": value.OpIntDiv,
	"%":  value.OpRem,
	"**": value.OpPow,
}

var compareOps = map[string]value.CompareOpType{
	"==": value.OpEqual,
	"!=": value.OpNotEqual,
	"<":  value.OpLessThan,
	"<=": value.OpLessThanEqual,
	">":  value.OpGreaterThan,
	">=": value.OpGreaterThanEq,
}

func (c *Compiler) compileInfix(expr *ast.Infix) error {
	switch expr.Operator {
	case "and":
		if err := c.compileExpr(expr.Left); err != nil {
			return err
		}
		end := c.emit(op.JumpIfFalseOrPop, op.Placeholder)
		if err := c.compileExpr(expr.Right); err != nil {
			return err
		}
		c.patch(end, c.pc())
		return nil
	case "or":
		if err := c.compileExpr(expr.Left); err != nil {
			return err
		}
		end := c.emit(op.JumpIfTrueOrPop, op.Placeholder)
		if err := c.compileExpr(expr.Right); err != nil {
			return err
		}
		c.patch(end, c.pc())
		return nil
	}
	if err := c.compileExpr(expr.Left); err != nil {
		return err
	}
	if err := c.compileExpr(expr.Right); err != nil {
		return err
	}
	switch expr.Operator {
	case "~":
		c.emit(op.StringConcat)
	case "in":
		c.emit(op.Contains)
	case "not in":
		c.emit(op.Contains)
		c.emit(op.Not)
	default:
		if bin, ok := binaryOps[expr.Operator]; ok {
			c.emit(op.BinaryOp, op.Code(bin))
			return nil
		}
		if cmp, ok := compareOps[expr.Operator]; ok {
			c.emit(op.CompareOp, op.Code(cmp))
			return nil
		}
		return c.compileError(expr, "unknown operator %q", expr.Operator)
	}
	return nil
}

func (c *Compiler) compileTernary(expr *ast.Ternary) error {
	if err := c.compileExpr(expr.Cond); err != nil {
		return err
	}
	jumpElse := c.emit(op.JumpIfFalse, op.Placeholder)
	if err := c.compileExpr(expr.Then); err != nil {
		return err
	}
	jumpEnd := c.emit(op.Jump, op.Placeholder)
	c.patch(jumpElse, c.pc())
	if expr.Else != nil {
		if err := c.compileExpr(expr.Else); err != nil {
			return err
		}
	} else {
		c.emit(op.LoadConst, c.constant(value.Undef))
	}
	c.patch(jumpEnd, c.pc())
	return nil
}

func (c *Compiler) compileSlice(expr *ast.SliceExpr) error {
	if err := c.compileExpr(expr.Object); err != nil {
		return err
	}
	for _, bound := range []ast.Expr{expr.Start, expr.Stop, expr.Step} {
		if bound == nil {
			c.emit(op.LoadConst, c.constant(value.None))
			continue
		}
		if err := c.compileExpr(bound); err != nil {
			return err
		}
	}
	c.emit(op.Slice)
	return nil
}

func (c *Compiler) compileCall(expr *ast.Call) error {
	switch fn := expr.Func.(type) {
	case *ast.Ident:
		argc, err := c.compileCallArgs(expr.Args)
		if err != nil {
			return err
		}
		c.emit(op.CallFunction, c.name(fn.Name), op.Code(argc))
		return nil
	case *ast.GetAttr:
		if err := c.compileExpr(fn.Object); err != nil {
			return err
		}
		argc, err := c.compileCallArgs(expr.Args)
		if err != nil {
			return err
		}
		c.emit(op.CallMethod, c.name(fn.Name), op.Code(argc))
		return nil
	default:
		if err := c.compileExpr(expr.Func); err != nil {
			return err
		}
		argc, err := c.compileCallArgs(expr.Args)
		if err != nil {
			return err
		}
		c.emit(op.CallObject, op.Code(argc))
		return nil
	}
}

// compileCallArgs compiles positional arguments followed by a keyword
// bundle when any keyword arguments are present. The returned count
// includes the bundle.
func (c *Compiler) compileCallArgs(args []ast.Expr) (int, error) {
	argc := 0
	var kwargs []*ast.Kwarg
	for _, arg := range args {
		if kw, ok := arg.(*ast.Kwarg); ok {
			kwargs = append(kwargs, kw)
			continue
		}
		if err := c.compileExpr(arg); err != nil {
			return 0, err
		}
		argc++
	}
	if len(kwargs) > 0 {
		for _, kw := range kwargs {
			c.emit(op.LoadConst, c.constant(value.NewString(kw.Name)))
			if err := c.compileExpr(kw.Value); err != nil {
				return 0, err
			}
		}
		c.emit(op.BuildKwargs, op.Code(len(kwargs)))
		argc++
	}
	return argc, nil
}
