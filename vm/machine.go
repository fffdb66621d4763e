package vm

import (
	"strings"

	"github.com/cloudcmds/vellum/compiler"
	"github.com/cloudcmds/vellum/errors"
	"github.com/cloudcmds/vellum/op"
	"github.com/cloudcmds/vellum/value"
)

// Depth costs charged against the recursion limit. Heavier operations
// consume more depth so a hostile template cannot stack cheap frames to
// reach an expensive recursion.
const (
	frameCost   = 1
	macroCost   = 4
	includeCost = 10
)

// limits tracks the step and depth budgets for one render call. Included
// and imported templates share the budgets of the render that triggered
// them.
type limits struct {
	steps    uint64
	maxSteps uint64
	depth    int
	maxDepth int
}

func (l *limits) tick() error {
	l.steps++
	if l.maxSteps > 0 && l.steps > l.maxSteps {
		return errors.Errorf(errors.TooComplex,
			"template exceeded the step limit of %d", l.maxSteps)
	}
	return nil
}

func (l *limits) enter(cost int) error {
	l.depth += cost
	if l.maxDepth > 0 && l.depth > l.maxDepth {
		return errors.New(errors.TooComplex, "recursion limit exceeded")
	}
	return nil
}

func (l *limits) leave(cost int) {
	l.depth -= cost
}

// blockRef identifies the block override chain entry currently rendering,
// so super() knows which ancestor body to render next.
type blockRef struct {
	name string
	idx  int
}

// Machine executes compiled programs against an environment. A machine is
// single use: one render call creates one machine, plus a sub-machine per
// include or import.
type Machine struct {
	env        Env
	out        *Output
	stack      []value.Value
	frames     []*frame
	autoEscape []AutoEscapeMode

	// blocks maps block names to their override chains, child-most first.
	blocks     map[string][]*compiler.Program
	blockStack []blockRef

	// pendingParent is set by LoadBlocks; when the current root program
	// returns, execution restarts at the parent's instructions.
	pendingParent *compiler.Program

	// lineage records templates in the active extends chain for cycle
	// detection.
	lineage map[string]bool

	exports *value.Map
	limits  *limits
}

// Run executes a compiled root program with the given context, writing the
// rendered text to out.
func Run(env Env, prog *compiler.Program, ctx *value.Map, out *Output) error {
	m := newMachine(env, out, &limits{
		maxSteps: env.Fuel(),
		maxDepth: env.RecursionLimit(),
	})
	return m.renderRoot(prog, ctx, nil)
}

func newMachine(env Env, out *Output, lim *limits) *Machine {
	return &Machine{
		env:     env,
		out:     out,
		blocks:  map[string][]*compiler.Program{},
		lineage: map[string]bool{},
		limits:  lim,
	}
}

func (m *Machine) subMachine() *Machine {
	return newMachine(m.env, m.out, m.limits)
}

// renderRoot sets up the root frame and runs a root program. An optional
// parent frame gives included templates visibility into the including
// template's scope.
func (m *Machine) renderRoot(prog *compiler.Program, ctx *value.Map, parent *frame) error {
	root := newFrame(parent)
	if ctx != nil {
		for _, p := range ctx.Pairs() {
			root.locals.Set(p.Key, p.Val)
		}
	}
	m.frames = []*frame{root}
	m.autoEscape = []AutoEscapeMode{m.env.InitialAutoEscape(prog.TemplateName)}
	m.lineage[prog.TemplateName] = true
	m.registerBlocks(prog)
	return m.exec(prog, true)
}

func (m *Machine) registerBlocks(prog *compiler.Program) {
	for name, body := range prog.Blocks {
		m.blocks[name] = append(m.blocks[name], body)
	}
}

// Stack helpers

func (m *Machine) push(v value.Value) {
	m.stack = append(m.stack, v)
}

func (m *Machine) pop() value.Value {
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v
}

func (m *Machine) peek() value.Value {
	return m.stack[len(m.stack)-1]
}

// popN removes the top n values and returns them in push order.
func (m *Machine) popN(n int) []value.Value {
	if n == 0 {
		return nil
	}
	vals := make([]value.Value, n)
	copy(vals, m.stack[len(m.stack)-n:])
	m.stack = m.stack[:len(m.stack)-n]
	return vals
}

// popArgs pops argc call arguments, separating a trailing keyword bundle.
func (m *Machine) popArgs(argc int) ([]value.Value, *value.Kwargs) {
	vals := m.popN(argc)
	if len(vals) > 0 {
		if kw, ok := vals[len(vals)-1].(*value.Kwargs); ok {
			return vals[:len(vals)-1], kw
		}
	}
	return vals, nil
}

// Frame helpers

func (m *Machine) frame() *frame {
	return m.frames[len(m.frames)-1]
}

func (m *Machine) pushFrame(f *frame) error {
	if err := m.limits.enter(frameCost); err != nil {
		return err
	}
	m.frames = append(m.frames, f)
	return nil
}

func (m *Machine) popFrame() {
	m.frames = m.frames[:len(m.frames)-1]
	m.limits.leave(frameCost)
}

func (m *Machine) currentLoop() *loopState {
	for i := len(m.frames) - 1; i >= 0; i-- {
		if m.frames[i].loop != nil {
			return m.frames[i].loop
		}
	}
	return nil
}

func (m *Machine) recursiveLoop() *loopState {
	for i := len(m.frames) - 1; i >= 0; i-- {
		if st := m.frames[i].loop; st != nil && st.recursive {
			return st
		}
	}
	return nil
}

// resolve looks a name up through the frame chain and then the globals.
func (m *Machine) resolve(name string) (value.Value, bool) {
	if v, ok := m.frame().lookup(name); ok {
		return v, true
	}
	return m.env.LookupGlobal(name)
}

func (m *Machine) strict() bool {
	return m.env.UndefinedBehavior() == Strict
}

func (m *Machine) escaping() AutoEscapeMode {
	return m.autoEscape[len(m.autoEscape)-1]
}

func undefinedUseError(u *value.Undefined) error {
	if hint := u.Hint(); hint != "" {
		return errors.Errorf(errors.UndefinedError, "%s is undefined", hint)
	}
	return errors.New(errors.UndefinedError, "value is undefined")
}

// checkDefined fails in strict mode if any operand is undefined.
func (m *Machine) checkDefined(vs ...value.Value) error {
	if !m.strict() {
		return nil
	}
	for _, v := range vs {
		if u, ok := v.(*value.Undefined); ok {
			return undefinedUseError(u)
		}
	}
	return nil
}

func anyUndefined(vs ...value.Value) bool {
	for _, v := range vs {
		if value.IsUndefined(v) {
			return true
		}
	}
	return false
}

// locate attaches the current template and line to an error, keeping the
// innermost location when one is already set.
func (m *Machine) locate(err error, prog *compiler.Program, pc int) error {
	e, ok := err.(*errors.Error)
	if !ok {
		e = errors.New(errors.InvalidOperation, err.Error())
	}
	return e.WithTemplate(prog.TemplateName).
		WithLocation(prog.LineForInstruction(pc), 0)
}

// exec is the dispatch loop. Root programs additionally handle the switch
// to a parent template activated by an extends statement.
func (m *Machine) exec(prog *compiler.Program, isRoot bool) error {
	code := prog.Instructions
	pc := 0
	for pc < len(code) {
		if err := m.limits.tick(); err != nil {
			return m.locate(err, prog, pc)
		}
		instr := code[pc]
		width := 1 + op.GetInfo(instr).OperandCount

		switch instr {
		case op.Nop:

		case op.Emit:
			if err := m.emitValue(m.pop()); err != nil {
				return m.locate(err, prog, pc)
			}

		case op.EmitRaw:
			m.out.WriteString(value.ToString(prog.Constants[code[pc+1]]))

		case op.LoadConst:
			m.push(prog.Constants[code[pc+1]])

		case op.Lookup:
			name := prog.Names[code[pc+1]]
			v, ok := m.resolve(name)
			if !ok {
				v = value.NewUndefined(name)
			}
			m.push(v)

		case op.StoreLocal:
			m.frame().locals.SetString(prog.Names[code[pc+1]], m.pop())

		case op.GetAttr:
			v, err := m.getAttr(m.pop(), prog.Names[code[pc+1]])
			if err != nil {
				return m.locate(err, prog, pc)
			}
			m.push(v)

		case op.SetAttr:
			obj := m.pop()
			val := m.pop()
			if err := m.setAttr(obj, prog.Names[code[pc+1]], val); err != nil {
				return m.locate(err, prog, pc)
			}

		case op.GetItem:
			key := m.pop()
			obj := m.pop()
			v, err := m.getItem(obj, key)
			if err != nil {
				return m.locate(err, prog, pc)
			}
			m.push(v)

		case op.Slice:
			step := m.pop()
			stop := m.pop()
			start := m.pop()
			obj := m.pop()
			if err := m.checkDefined(obj); err != nil {
				return m.locate(err, prog, pc)
			}
			v, err := value.Slice(obj, start, stop, step)
			if err != nil {
				return m.locate(err, prog, pc)
			}
			m.push(v)

		case op.BuildList:
			m.push(value.NewSeq(m.popN(int(code[pc+1]))...))

		case op.BuildMap:
			vals := m.popN(int(code[pc+1]) * 2)
			mp := value.NewMapWithCapacity(len(vals) / 2)
			for i := 0; i < len(vals); i += 2 {
				mp.Set(vals[i], vals[i+1])
			}
			m.push(mp)

		case op.BuildKwargs:
			vals := m.popN(int(code[pc+1]) * 2)
			mp := value.NewMapWithCapacity(len(vals) / 2)
			for i := 0; i < len(vals); i += 2 {
				mp.Set(vals[i], vals[i+1])
			}
			m.push(value.NewKwargs(mp))

		case op.ListAppend:
			item := m.pop()
			seq, ok := m.peek().(*value.Seq)
			if !ok {
				return m.locate(errors.New(errors.InvalidOperation,
					"cannot append to a non-sequence"), prog, pc)
			}
			seq.Append(item)

		case op.UnpackList:
			if err := m.unpack(int(code[pc+1])); err != nil {
				return m.locate(err, prog, pc)
			}

		case op.BinaryOp:
			b := m.pop()
			a := m.pop()
			if anyUndefined(a, b) {
				if err := m.checkDefined(a, b); err != nil {
					return m.locate(err, prog, pc)
				}
				m.push(value.Undef)
				break
			}
			v, err := value.BinaryOp(value.BinaryOpType(code[pc+1]), a, b)
			if err != nil {
				return m.locate(err, prog, pc)
			}
			m.push(v)

		case op.CompareOp:
			b := m.pop()
			a := m.pop()
			cmp := value.CompareOpType(code[pc+1])
			// Equality may inspect undefined; ordering may not.
			if cmp != value.OpEqual && cmp != value.OpNotEqual {
				if err := m.checkDefined(a, b); err != nil {
					return m.locate(err, prog, pc)
				}
			}
			v, err := value.CompareOp(cmp, a, b)
			if err != nil {
				return m.locate(err, prog, pc)
			}
			m.push(v)

		case op.Contains:
			container := m.pop()
			item := m.pop()
			if err := m.checkDefined(container); err != nil {
				return m.locate(err, prog, pc)
			}
			v, err := value.Contains(container, item)
			if err != nil {
				return m.locate(err, prog, pc)
			}
			m.push(v)

		case op.Not:
			m.push(value.NewBool(!m.pop().IsTruthy()))

		case op.Neg:
			a := m.pop()
			if err := m.checkDefined(a); err != nil {
				return m.locate(err, prog, pc)
			}
			v, err := value.Neg(a)
			if err != nil {
				return m.locate(err, prog, pc)
			}
			m.push(v)

		case op.StringConcat:
			b := m.pop()
			a := m.pop()
			if err := m.checkDefined(a, b); err != nil {
				return m.locate(err, prog, pc)
			}
			m.push(value.StringConcat(a, b))

		case op.IsUndefined:
			m.push(value.NewBool(value.IsUndefined(m.pop())))

		case op.DupTop:
			m.push(m.peek())

		case op.DiscardTop:
			m.pop()

		case op.Jump:
			pc = int(code[pc+1])
			continue

		case op.JumpIfFalse:
			cond := m.pop()
			if err := m.checkDefined(cond); err != nil {
				return m.locate(err, prog, pc)
			}
			if !cond.IsTruthy() {
				pc = int(code[pc+1])
				continue
			}

		case op.JumpIfFalseOrPop:
			if err := m.checkDefined(m.peek()); err != nil {
				return m.locate(err, prog, pc)
			}
			if !m.peek().IsTruthy() {
				pc = int(code[pc+1])
				continue
			}
			m.pop()

		case op.JumpIfTrueOrPop:
			if err := m.checkDefined(m.peek()); err != nil {
				return m.locate(err, prog, pc)
			}
			if m.peek().IsTruthy() {
				pc = int(code[pc+1])
				continue
			}
			m.pop()

		case op.PushWith:
			if err := m.pushFrame(newFrame(m.frame())); err != nil {
				return m.locate(err, prog, pc)
			}

		case op.PopFrame:
			m.popFrame()

		case op.PushLoop:
			if err := m.pushLoop(code[pc+1], pc+width); err != nil {
				return m.locate(err, prog, pc)
			}

		case op.Iterate:
			st := m.currentLoop()
			item, ok := st.iter.Next()
			if ok {
				st.idx++
				st.didIterate = true
				m.push(item)
				break
			}
			if st.returnPC >= 0 {
				resume, capture := st.returnPC, st.captureOnReturn
				m.popFrame()
				if capture {
					m.push(value.NewSafeString(m.out.endCapture()))
				}
				pc = resume
				continue
			}
			pc = int(code[pc+1])
			continue

		case op.PushDidNotIterate:
			m.push(value.NewBool(!m.currentLoop().didIterate))

		case op.FastRecurse:
			st, err := m.recurseLoop(pc+width, false)
			if err != nil {
				return m.locate(err, prog, pc)
			}
			pc = st.iterPC
			continue

		case op.PushAutoEscape:
			mode, err := parseAutoEscape(m.pop())
			if err != nil {
				return m.locate(err, prog, pc)
			}
			m.autoEscape = append(m.autoEscape, mode)

		case op.PopAutoEscape:
			m.autoEscape = m.autoEscape[:len(m.autoEscape)-1]

		case op.BeginCapture:
			m.out.beginCapture(uint16(code[pc+1]) == op.CaptureModeDiscard)

		case op.EndCapture:
			m.push(value.NewSafeString(m.out.endCapture()))

		case op.ApplyFilter:
			name := prog.Names[code[pc+1]]
			args, kwargs := m.popArgs(int(code[pc+2]))
			v := m.pop()
			fn, ok := m.env.LookupFilter(name)
			if !ok {
				return m.locate(errors.Errorf(errors.UnknownFilter,
					"filter %q is unknown", name), prog, pc)
			}
			result, err := fn(v, args, kwargs)
			if err != nil {
				return m.locate(err, prog, pc)
			}
			m.push(result)

		case op.PerformTest:
			name := prog.Names[code[pc+1]]
			args, kwargs := m.popArgs(int(code[pc+2]))
			v := m.pop()
			fn, ok := m.env.LookupTest(name)
			if !ok {
				return m.locate(errors.Errorf(errors.UnknownTest,
					"test %q is unknown", name), prog, pc)
			}
			ok, err := fn(v, args, kwargs)
			if err != nil {
				return m.locate(err, prog, pc)
			}
			m.push(value.NewBool(ok))

		case op.CallFunction:
			name := prog.Names[code[pc+1]]
			argc := int(code[pc+2])
			switch name {
			case "super":
				if argc != 0 {
					return m.locate(errors.New(errors.InvalidOperation,
						"super() takes no arguments"), prog, pc)
				}
				v, err := m.renderSuper()
				if err != nil {
					return m.locate(err, prog, pc)
				}
				m.push(v)
			case "loop":
				// Value-position recursion: render the nested iteration
				// into a capture and resume with the result on the stack.
				if m.recursiveLoop() == nil {
					return m.locate(errors.New(errors.InvalidOperation,
						"loop() can only be called inside a recursive loop"), prog, pc)
				}
				if argc != 1 {
					return m.locate(errors.New(errors.InvalidOperation,
						"loop() takes exactly one argument"), prog, pc)
				}
				st, err := m.recurseLoop(pc+width, true)
				if err != nil {
					return m.locate(err, prog, pc)
				}
				pc = st.iterPC
				continue
			default:
				args, kwargs := m.popArgs(argc)
				v, err := m.callNamed(prog, name, args, kwargs)
				if err != nil {
					return m.locate(err, prog, pc)
				}
				m.push(v)
			}

		case op.CallMethod:
			name := prog.Names[code[pc+1]]
			args, kwargs := m.popArgs(int(code[pc+2]))
			obj := m.pop()
			v, err := m.callMethod(prog, obj, name, args, kwargs)
			if err != nil {
				return m.locate(err, prog, pc)
			}
			m.push(v)

		case op.CallObject:
			args, kwargs := m.popArgs(int(code[pc+1]))
			callee := m.pop()
			v, err := m.callValue(prog, callee, args, kwargs)
			if err != nil {
				return m.locate(err, prog, pc)
			}
			m.push(v)

		case op.BuildMacro:
			child := prog.Children[code[pc+1]]
			m.push(&macroObject{
				prog:    child,
				name:    prog.Names[code[pc+2]],
				closure: m.frame(),
			})

		case op.Return:
			if isRoot && m.pendingParent != nil {
				m.out.endCapture()
				prog = m.pendingParent
				m.pendingParent = nil
				code = prog.Instructions
				pc = 0
				continue
			}
			return nil

		case op.CallBlock:
			name := prog.Names[code[pc+1]]
			chain := m.blocks[name]
			if len(chain) == 0 {
				return m.locate(errors.Errorf(errors.UnknownBlock,
					"block %q is not defined", name), prog, pc)
			}
			if err := m.execBlock(chain[0], name, 0); err != nil {
				return m.locate(err, prog, pc)
			}

		case op.LoadBlocks:
			if err := m.loadBlocks(m.pop()); err != nil {
				return m.locate(err, prog, pc)
			}

		case op.Include:
			if err := m.include(m.pop(), code[pc+1] == 1); err != nil {
				return m.locate(err, prog, pc)
			}

		case op.ImportTemplate:
			mod, err := m.importTemplate(m.pop())
			if err != nil {
				return m.locate(err, prog, pc)
			}
			m.push(mod)

		case op.ExportLocals:
			m.exports = m.frames[0].locals

		default:
			return m.locate(errors.Errorf(errors.InvalidOperation,
				"invalid instruction %d", instr), prog, pc)
		}

		pc += width
	}
	return nil
}

// emitValue writes one value to the output, applying the active escaping
// mode unless the value is a safe string.
func (m *Machine) emitValue(v value.Value) error {
	if u, ok := v.(*value.Undefined); ok {
		if m.strict() {
			return undefinedUseError(u)
		}
		return nil
	}
	s := value.ToString(v)
	if m.escaping() == EscapeHTML && !value.IsSafe(v) {
		s = escapeHTML(s)
	}
	m.out.WriteString(s)
	return nil
}

func chainHint(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}

func (m *Machine) getAttr(obj value.Value, name string) (value.Value, error) {
	switch obj := obj.(type) {
	case *value.Undefined:
		if m.strict() {
			return nil, undefinedUseError(obj)
		}
		return value.NewUndefined(chainHint(obj.Hint(), name)), nil
	case *value.Map:
		if v, ok := obj.GetString(name); ok {
			return v, nil
		}
	case value.AttrGetter:
		if v, ok := obj.GetAttr(name); ok {
			return v, nil
		}
	}
	if m.strict() {
		return nil, errors.Errorf(errors.UndefinedError,
			"%s has no attribute %q", obj.Type(), name)
	}
	return value.NewUndefined(name), nil
}

func (m *Machine) setAttr(obj value.Value, name string, val value.Value) error {
	type attrSetter interface {
		SetAttr(name string, val value.Value) error
	}
	if setter, ok := obj.(attrSetter); ok {
		return setter.SetAttr(name, val)
	}
	if d, ok := obj.(*value.Dynamic); ok {
		if setter, ok := d.Object().(value.AttrSetter); ok {
			return setter.SetAttr(name, val)
		}
	}
	return errors.Errorf(errors.InvalidOperation,
		"cannot assign attribute %q to %s", name, obj.Type())
}

func (m *Machine) getItem(obj, key value.Value) (value.Value, error) {
	if u, ok := obj.(*value.Undefined); ok {
		if m.strict() {
			return nil, undefinedUseError(u)
		}
		return value.Undef, nil
	}
	v, found, err := value.GetItem(obj, key)
	if err != nil {
		return nil, err
	}
	if !found {
		if m.strict() {
			return nil, errors.Errorf(errors.UndefinedError,
				"%s has no item %s", obj.Type(), key.Inspect())
		}
		return value.Undef, nil
	}
	return v, nil
}

func (m *Machine) unpack(want int) error {
	v := m.pop()
	if err := m.checkDefined(v); err != nil {
		return err
	}
	it, err := value.Iter(v)
	if err != nil {
		return err
	}
	items := value.Collect(it).Items()
	if len(items) != want {
		return errors.Errorf(errors.CannotUnpack,
			"expected a sequence of %d, got %d", want, len(items))
	}
	// Reverse push order so the first target sees the first element.
	for i := len(items) - 1; i >= 0; i-- {
		m.push(items[i])
	}
	return nil
}

// pushLoop pops the iterable and pushes a loop frame whose Iterate head is
// at iterPC.
func (m *Machine) pushLoop(flags op.Code, iterPC int) error {
	iterable := m.pop()
	if err := m.checkDefined(iterable); err != nil {
		return err
	}
	it, err := value.Iter(iterable)
	if err != nil {
		return err
	}
	st := &loopState{
		iter:      value.NewPeekIterator(it),
		length:    it.Len(),
		recursive: uint16(flags)&op.LoopRecursive != 0,
		iterPC:    iterPC,
		returnPC:  -1,
	}
	return m.pushLoopFrame(st)
}

// recurseLoop re-enters the innermost recursive loop with a fresh iterable
// popped from the stack. In value position (capture set) the nested
// rendering is captured and pushed as a safe string on return.
func (m *Machine) recurseLoop(returnPC int, capture bool) (*loopState, error) {
	cur := m.recursiveLoop()
	if cur == nil {
		return nil, errors.New(errors.InvalidOperation,
			"cannot recurse outside of a recursive loop")
	}
	iterable := m.pop()
	if err := m.checkDefined(iterable); err != nil {
		return nil, err
	}
	it, err := value.Iter(iterable)
	if err != nil {
		return nil, err
	}
	st := &loopState{
		iter:            value.NewPeekIterator(it),
		length:          it.Len(),
		recursive:       true,
		depth:           cur.depth + 1,
		iterPC:          cur.iterPC,
		returnPC:        returnPC,
		captureOnReturn: capture,
	}
	if capture {
		m.out.beginCapture(false)
	}
	if err := m.pushLoopFrame(st); err != nil {
		if capture {
			m.out.endCapture()
		}
		return nil, err
	}
	return st, nil
}

func (m *Machine) pushLoopFrame(st *loopState) error {
	f := newFrame(m.frame())
	f.loop = st
	f.locals.SetString("loop", &loopObject{state: st})
	return m.pushFrame(f)
}

func parseAutoEscape(v value.Value) (AutoEscapeMode, error) {
	switch v := v.(type) {
	case *value.String:
		switch v.Value() {
		case "html":
			return EscapeHTML, nil
		case "none":
			return EscapeNone, nil
		}
		return EscapeNone, errors.Errorf(errors.InvalidOperation,
			"invalid autoescape mode %q", v.Value())
	case *value.Bool:
		if v.Value() {
			return EscapeHTML, nil
		}
		return EscapeNone, nil
	}
	return EscapeNone, errors.Errorf(errors.InvalidOperation,
		"invalid autoescape mode of type %s", v.Type())
}

// macroCaller returns the call block bound to the innermost macro
// invocation, or nil when there is none.
func (m *Machine) macroCaller() value.Value {
	for i := len(m.frames) - 1; i >= 0; i-- {
		if m.frames[i].isMacro {
			return m.frames[i].caller
		}
	}
	return nil
}

// callNamed resolves a function call: frame locals and globals first (for
// macros and callable values), then the function registry. The name caller
// is reserved for the enclosing macro invocation's call block.
func (m *Machine) callNamed(prog *compiler.Program, name string, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if name == "caller" {
		cv := m.macroCaller()
		if cv == nil {
			return nil, errors.New(errors.UndefinedError, "caller is undefined")
		}
		return m.callValue(prog, cv, args, kwargs)
	}
	if v, ok := m.resolve(name); ok {
		return m.callValue(prog, v, args, kwargs)
	}
	if fn, ok := m.env.LookupFunction(name); ok {
		return fn(args, kwargs)
	}
	return nil, errors.Errorf(errors.UnknownFunction, "%q is unknown", name)
}

func (m *Machine) callValue(prog *compiler.Program, v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	switch v := v.(type) {
	case *macroObject:
		return m.callMacro(prog, v, args, kwargs)
	case *value.Undefined:
		return nil, undefinedUseError(v)
	}
	if c, ok := value.AsCallable(v); ok {
		return c.Call(args, kwargs)
	}
	return nil, errors.Errorf(errors.InvalidOperation,
		"value of type %s is not callable", v.Type())
}

func (m *Machine) callMethod(prog *compiler.Program, obj value.Value, name string, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	switch obj := obj.(type) {
	case *value.Undefined:
		return nil, undefinedUseError(obj)
	case *value.Map:
		// Imported template modules are maps whose entries may be macros.
		if v, ok := obj.GetString(name); ok {
			return m.callValue(prog, v, args, kwargs)
		}
	case *macroObject:
		return nil, errors.Errorf(errors.InvalidOperation,
			"macro %q has no method %q", obj.name, name)
	}
	return value.CallMethod(obj, name, args, kwargs)
}

// callMacro binds arguments into a fresh frame chained to the macro's
// closure and renders the body into a capture. All declared parameters are
// bound, missing ones to undefined, so the default-value prologue and the
// body never fall through to an outer scope by accident.
func (m *Machine) callMacro(prog *compiler.Program, mac *macroObject, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	params := mac.prog.Params
	if len(args) > len(params) {
		return nil, errors.Errorf(errors.InvalidOperation,
			"macro %q takes at most %d arguments, got %d",
			mac.name, len(params), len(args))
	}
	f := newFrame(mac.closure)
	for i, p := range params {
		var v value.Value = value.Undef
		if i < len(args) {
			v = args[i]
		} else if kwargs != nil {
			if kv, ok := kwargs.Get(p); ok {
				v = kv
			}
		}
		f.locals.SetString(p, v)
	}
	if kwargs != nil {
		for _, n := range kwargs.Names() {
			idx := -1
			for i, p := range params {
				if p == n {
					idx = i
					break
				}
			}
			if idx < 0 {
				return nil, errors.Errorf(errors.InvalidOperation,
					"macro %q received unknown keyword argument %q", mac.name, n)
			}
			if idx < len(args) {
				return nil, errors.Errorf(errors.InvalidOperation,
					"macro %q got multiple values for argument %q", mac.name, n)
			}
		}
	}
	// A call block stores "caller" in its with-frame right at the call
	// site. Bind it to this invocation only; macros invoked from inside
	// the body must not inherit it.
	f.isMacro = true
	if cur := m.frame(); cur != nil {
		if cv, ok := cur.locals.GetString("caller"); ok {
			f.caller = cv
		}
	}

	if err := m.limits.enter(macroCost); err != nil {
		return nil, err
	}
	defer m.limits.leave(macroCost)
	if err := m.pushFrame(f); err != nil {
		return nil, err
	}
	defer m.popFrame()

	m.out.beginCapture(false)
	err := m.exec(mac.prog, false)
	rendered := m.out.endCapture()
	if err != nil {
		if e, ok := err.(*errors.Error); ok && e.Template() != prog.TemplateName {
			return nil, errors.Errorf(e.Kind(),
				"error calling macro %q", mac.name).WithCause(e)
		}
		return nil, err
	}
	return value.NewSafeString(rendered), nil
}

// execBlock renders one entry of a block override chain in place.
func (m *Machine) execBlock(body *compiler.Program, name string, idx int) error {
	if err := m.pushFrame(newFrame(m.frame())); err != nil {
		return err
	}
	defer m.popFrame()
	m.blockStack = append(m.blockStack, blockRef{name: name, idx: idx})
	defer func() {
		m.blockStack = m.blockStack[:len(m.blockStack)-1]
	}()
	return m.exec(body, false)
}

// renderSuper renders the next ancestor's body for the block currently
// rendering and returns it as a safe string.
func (m *Machine) renderSuper() (value.Value, error) {
	if len(m.blockStack) == 0 {
		return nil, errors.New(errors.InvalidOperation,
			"super() can only be used inside a block")
	}
	ref := m.blockStack[len(m.blockStack)-1]
	chain := m.blocks[ref.name]
	if ref.idx+1 >= len(chain) {
		return nil, errors.Errorf(errors.UnknownBlock,
			"no parent block named %q exists", ref.name)
	}
	m.out.beginCapture(false)
	err := m.execBlock(chain[ref.idx+1], ref.name, ref.idx+1)
	rendered := m.out.endCapture()
	if err != nil {
		return nil, err
	}
	return value.NewSafeString(rendered), nil
}

// loadBlocks activates template inheritance: the parent's blocks join the
// override chains and the rest of the child's own output is discarded.
func (m *Machine) loadBlocks(nameVal value.Value) error {
	if u, ok := nameVal.(*value.Undefined); ok {
		return undefinedUseError(u)
	}
	name := value.ToString(nameVal)
	if m.lineage[name] {
		return errors.Errorf(errors.BadExtends, "circular extends of %q", name)
	}
	parent, err := m.env.GetProgram(name)
	if err != nil {
		return errors.Errorf(errors.BadExtends,
			"cannot extend %q", name).WithCause(err)
	}
	if err := m.limits.enter(includeCost); err != nil {
		return err
	}
	m.lineage[name] = true
	m.registerBlocks(parent)
	m.pendingParent = parent
	m.out.beginCapture(true)
	return nil
}

func (m *Machine) include(nameVal value.Value, ignoreMissing bool) error {
	if u, ok := nameVal.(*value.Undefined); ok {
		return undefinedUseError(u)
	}
	var candidates []string
	if seq, ok := nameVal.(*value.Seq); ok {
		for _, item := range seq.Items() {
			candidates = append(candidates, value.ToString(item))
		}
	} else {
		candidates = append(candidates, value.ToString(nameVal))
	}

	var target *compiler.Program
	for _, name := range candidates {
		p, err := m.env.GetProgram(name)
		if err == nil {
			target = p
			break
		}
		if !errors.IsKind(err, errors.TemplateNotFound) {
			return errors.Errorf(errors.BadInclude,
				"cannot include %q", name).WithCause(err)
		}
	}
	if target == nil {
		if ignoreMissing {
			return nil
		}
		if len(candidates) == 1 {
			return errors.Errorf(errors.TemplateNotFound,
				"template %q not found", candidates[0])
		}
		return errors.Errorf(errors.TemplateNotFound,
			"none of these templates exist: %s", strings.Join(candidates, ", "))
	}

	if err := m.limits.enter(includeCost); err != nil {
		return err
	}
	defer m.limits.leave(includeCost)
	// Included templates share the current output and see the including
	// template's scope, but render with their own inheritance state.
	sub := m.subMachine()
	if err := sub.renderRoot(target, nil, m.frame()); err != nil {
		e, ok := err.(*errors.Error)
		if !ok {
			e = errors.New(errors.InvalidOperation, err.Error())
		}
		return errors.Errorf(errors.BadInclude,
			"error in include of %q", target.TemplateName).WithCause(e)
	}
	return nil
}

// importTemplate renders a template for its side effects only and returns
// its exported locals as a module value.
func (m *Machine) importTemplate(nameVal value.Value) (value.Value, error) {
	if u, ok := nameVal.(*value.Undefined); ok {
		return nil, undefinedUseError(u)
	}
	name := value.ToString(nameVal)
	target, err := m.env.GetProgram(name)
	if err != nil {
		return nil, err
	}
	if err := m.limits.enter(includeCost); err != nil {
		return nil, err
	}
	defer m.limits.leave(includeCost)
	// Imports do not see the importing template's context, and their
	// output is discarded.
	sub := newMachine(m.env, NewOutput(), m.limits)
	if err := sub.renderRoot(target, nil, nil); err != nil {
		e, ok := err.(*errors.Error)
		if !ok {
			e = errors.New(errors.InvalidOperation, err.Error())
		}
		return nil, errors.Errorf(errors.BadInclude,
			"error in import of %q", name).WithCause(e)
	}
	if sub.exports == nil {
		return value.NewMap(), nil
	}
	return sub.exports, nil
}
