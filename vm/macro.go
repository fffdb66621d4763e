package vm

import (
	"fmt"

	"github.com/cloudcmds/vellum/compiler"
	"github.com/cloudcmds/vellum/value"
)

// macroObject is a first-class macro value. It closes over the frame it was
// defined in, so macros see their defining template's locals rather than the
// caller's. Invocation runs on the machine, which binds parameters and
// captures the body's output as a safe string.
type macroObject struct {
	prog    *compiler.Program
	name    string
	closure *frame
}

func (m *macroObject) Type() value.Type { return value.DYNAMIC }
func (m *macroObject) Interface() any   { return nil }
func (m *macroObject) IsTruthy() bool   { return true }

func (m *macroObject) Inspect() string {
	return fmt.Sprintf("<macro %s>", m.name)
}

func (m *macroObject) Equals(o value.Value) bool {
	other, ok := o.(*macroObject)
	return ok && m == other
}

func (m *macroObject) GetAttr(name string) (value.Value, bool) {
	switch name {
	case "name":
		return value.NewString(m.name), true
	case "arguments":
		args := make([]value.Value, 0, len(m.prog.Params))
		for _, p := range m.prog.Params {
			args = append(args, value.NewString(p))
		}
		return value.NewSeq(args...), true
	}
	return nil, false
}
