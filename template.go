package vellum

import (
	"io"

	"github.com/cloudcmds/vellum/compiler"
	"github.com/cloudcmds/vellum/errors"
	"github.com/cloudcmds/vellum/value"
	"github.com/cloudcmds/vellum/vm"
)

// Template is a compiled template bound to its environment. A Template is
// immutable after compilation and safe for concurrent rendering.
type Template struct {
	env    *Environment
	name   string
	source string
	prog   *compiler.Program
}

// Name returns the name the template was registered under.
func (t *Template) Name() string { return t.name }

// Source returns the original template source.
func (t *Template) Source() string { return t.source }

// Program returns the compiled bytecode, for inspection and disassembly.
func (t *Template) Program() *compiler.Program { return t.prog }

// Render evaluates the template with the given context and returns the
// result. The context may be nil, a map[string]any, a map[string]value.Value,
// or a *value.Map.
func (t *Template) Render(ctx any) (string, error) {
	out := vm.NewOutput()
	if err := t.render(ctx, out); err != nil {
		return "", err
	}
	return out.String(), nil
}

// RenderTo streams the rendered output to w instead of buffering it. Output
// written before an error is reported stays written.
func (t *Template) RenderTo(w io.Writer, ctx any) error {
	return t.render(ctx, vm.NewStreamingOutput(w))
}

func (t *Template) render(ctx any, out *vm.Output) error {
	ctxMap, err := buildContext(ctx)
	if err != nil {
		return err
	}
	if err := vm.Run(t.env, t.prog, ctxMap, out); err != nil {
		return err
	}
	return out.Err()
}

// buildContext normalizes the caller's context into the map of root-scope
// variables the machine expects.
func buildContext(ctx any) (*value.Map, error) {
	switch c := ctx.(type) {
	case nil:
		return value.NewMap(), nil
	case *value.Map:
		return c, nil
	case map[string]value.Value:
		out := value.NewMapWithCapacity(len(c))
		for k, v := range c {
			out.SetString(k, v)
		}
		return out, nil
	}
	v := value.FromGoValue(ctx)
	if m, ok := v.(*value.Map); ok {
		return m, nil
	}
	return nil, errors.Errorf(errors.InvalidOperation,
		"render context must be a map, got %T", ctx)
}
