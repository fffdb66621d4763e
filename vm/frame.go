package vm

import (
	"github.com/cloudcmds/vellum/errors"
	"github.com/cloudcmds/vellum/value"
)

// frame is one scope on the frame stack. Name lookup walks the parent
// chain, so with blocks, loops, and macro closures all nest lexically.
type frame struct {
	locals *value.Map
	parent *frame
	loop   *loopState

	// isMacro marks a macro invocation frame. caller holds the call block
	// body passed to this invocation; it is scoped to the frame rather
	// than stored as a local so macros called from the body cannot see it.
	isMacro bool
	caller  value.Value
}

func newFrame(parent *frame) *frame {
	return &frame{locals: value.NewMap(), parent: parent}
}

func (f *frame) lookup(name string) (value.Value, bool) {
	for cur := f; cur != nil; cur = cur.parent {
		if v, ok := cur.locals.GetString(name); ok {
			return v, true
		}
	}
	return nil, false
}

// loopState tracks one active for loop. For recursive loops it also records
// where to resume when a nested iteration finishes.
type loopState struct {
	iter       *value.PeekIterator
	idx        int64 // items yielded so far; the current item is idx-1 (0-based)
	length     int   // -1 when the iterator length is unknown
	depth      int64 // recursion depth, 0 for the outermost iteration
	recursive  bool
	didIterate bool

	// iterPC is the instruction index of the loop's Iterate head.
	iterPC int

	// returnPC is where execution resumes once a recursive re-entry
	// exhausts, or -1 for the outermost loop. When captureOnReturn is set
	// the captured output is pushed as a safe string on return.
	returnPC        int
	captureOnReturn bool

	// lastChanged holds the arguments of the previous loop.changed call.
	lastChanged *value.Seq
}

// loopObject is the "loop" variable visible inside a for body.
type loopObject struct {
	state *loopState
}

func (l *loopObject) Type() value.Type   { return value.DYNAMIC }
func (l *loopObject) Inspect() string    { return "<loop>" }
func (l *loopObject) Interface() any     { return nil }
func (l *loopObject) IsTruthy() bool     { return true }
func (l *loopObject) Equals(o value.Value) bool {
	other, ok := o.(*loopObject)
	return ok && l == other
}

func (l *loopObject) GetAttr(name string) (value.Value, bool) {
	st := l.state
	index0 := st.idx - 1
	switch name {
	case "index":
		return value.NewInt(index0 + 1), true
	case "index0":
		return value.NewInt(index0), true
	case "first":
		return value.NewBool(index0 == 0), true
	case "last":
		_, more := st.iter.Peek()
		return value.NewBool(!more), true
	case "length":
		if st.length < 0 {
			return value.Undef, true
		}
		return value.NewInt(int64(st.length)), true
	case "revindex":
		if st.length < 0 {
			return value.Undef, true
		}
		return value.NewInt(int64(st.length) - index0), true
	case "revindex0":
		if st.length < 0 {
			return value.Undef, true
		}
		return value.NewInt(int64(st.length) - index0 - 1), true
	case "depth":
		return value.NewInt(st.depth + 1), true
	case "depth0":
		return value.NewInt(st.depth), true
	}
	return nil, false
}

func (l *loopObject) CallMethod(name string, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	switch name {
	case "cycle":
		if len(args) == 0 {
			return value.Undef, nil
		}
		return args[(l.state.idx-1)%int64(len(args))], nil
	case "changed":
		cur := value.NewSeq(args...)
		if l.state.lastChanged != nil && l.state.lastChanged.Equals(cur) {
			return value.False, nil
		}
		l.state.lastChanged = cur
		return value.True, nil
	}
	return nil, errors.Errorf(errors.InvalidOperation, "loop has no method %q", name)
}
