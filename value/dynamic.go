package value

import (
	"fmt"
	"reflect"

	"github.com/cloudcmds/vellum/errors"
)

// Capability interfaces that host objects may implement to participate in
// template evaluation. A host object wrapped with NewDynamic exposes only
// the capabilities it implements; everything else resolves to undefined or
// an invalid-operation error.

// AttrGetter resolves attribute lookup by name (dot access).
type AttrGetter interface {
	GetAttr(name string) (Value, bool)
}

// AttrSetter assigns an attribute by name. Only namespace-like objects
// support assignment.
type AttrSetter interface {
	SetAttr(name string, val Value) error
}

// ItemGetter resolves item lookup by key (bracket access).
type ItemGetter interface {
	GetItem(key Value) (Value, bool)
}

// Iterable produces an iterator over the object's items.
type Iterable interface {
	Iter() Iterator
}

// Callable is implemented by objects that can be invoked as functions.
type Callable interface {
	Call(args []Value, kwargs *Kwargs) (Value, error)
}

// MethodCaller is implemented by objects exposing named methods.
type MethodCaller interface {
	CallMethod(name string, args []Value, kwargs *Kwargs) (Value, error)
}

// Dynamic wraps an opaque host object. Attribute access, item access,
// iteration, and calls are delegated to the object's capability interfaces,
// with a reflection fallback for plain structs.
type Dynamic struct {
	obj any
}

// NewDynamic wraps the given host object as a template value.
func NewDynamic(obj any) *Dynamic {
	return &Dynamic{obj: obj}
}

// Object returns the wrapped host object.
func (d *Dynamic) Object() any {
	return d.obj
}

func (d *Dynamic) Type() Type     { return DYNAMIC }
func (d *Dynamic) Interface() any { return d.obj }

func (d *Dynamic) Inspect() string {
	if s, ok := d.obj.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("<%T>", d.obj)
}

func (d *Dynamic) IsTruthy() bool {
	type lengther interface{ Len() int }
	if l, ok := d.obj.(lengther); ok {
		return l.Len() > 0
	}
	return true
}

func (d *Dynamic) Equals(other Value) bool {
	o, ok := other.(*Dynamic)
	return ok && d.obj == o.obj
}

// GetAttr resolves an attribute on the wrapped object, using the AttrGetter
// capability if implemented and reflection over exported struct fields and
// methods otherwise.
func (d *Dynamic) GetAttr(name string) (Value, bool) {
	if g, ok := d.obj.(AttrGetter); ok {
		return g.GetAttr(name)
	}
	return reflectGetAttr(d.obj, name)
}

// GetItem resolves an item on the wrapped object via the ItemGetter
// capability.
func (d *Dynamic) GetItem(key Value) (Value, bool) {
	if g, ok := d.obj.(ItemGetter); ok {
		return g.GetItem(key)
	}
	return nil, false
}

func reflectGetAttr(obj any, name string) (Value, bool) {
	rv := reflect.ValueOf(obj)
	if !rv.IsValid() {
		return nil, false
	}
	if m := rv.MethodByName(name); m.IsValid() {
		return newReflectMethod(m, name), true
	}
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	field := rv.FieldByName(name)
	if !field.IsValid() || !field.CanInterface() {
		return nil, false
	}
	return FromGoValue(field.Interface()), true
}

// reflectMethod adapts an exported Go method to the Callable capability.
type reflectMethod struct {
	fn   reflect.Value
	name string
}

func newReflectMethod(fn reflect.Value, name string) *Dynamic {
	return NewDynamic(&reflectMethod{fn: fn, name: name})
}

func (r *reflectMethod) String() string {
	return fmt.Sprintf("<method %s>", r.name)
}

func (r *reflectMethod) Call(args []Value, kwargs *Kwargs) (result Value, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = errors.Errorf(errors.InvalidOperation, "method %s failed: %v", r.name, rec)
		}
	}()
	if kwargs != nil && kwargs.Len() > 0 {
		return nil, errors.Errorf(errors.InvalidOperation,
			"method %s does not accept keyword arguments", r.name)
	}
	t := r.fn.Type()
	if t.NumIn() != len(args) && !t.IsVariadic() {
		return nil, errors.Errorf(errors.InvalidOperation,
			"method %s expects %d arguments, got %d", r.name, t.NumIn(), len(args))
	}
	in := make([]reflect.Value, 0, len(args))
	for i, arg := range args {
		goVal := arg.Interface()
		rv := reflect.ValueOf(goVal)
		var want reflect.Type
		if t.IsVariadic() && i >= t.NumIn()-1 {
			want = t.In(t.NumIn() - 1).Elem()
		} else {
			want = t.In(i)
		}
		if !rv.IsValid() {
			rv = reflect.Zero(want)
		} else if rv.Type() != want && rv.Type().ConvertibleTo(want) {
			rv = rv.Convert(want)
		}
		in = append(in, rv)
	}
	out := r.fn.Call(in)
	switch len(out) {
	case 0:
		return None, nil
	case 1:
		return FromGoValue(out[0].Interface()), nil
	default:
		// Treat a trailing error return like a Go API call
		if err, ok := out[len(out)-1].Interface().(error); ok && err != nil {
			return nil, errors.Errorf(errors.InvalidOperation,
				"method %s failed: %v", r.name, err)
		}
		return FromGoValue(out[0].Interface()), nil
	}
}

// Namespace is a mutable attribute holder created by the namespace()
// function. It is the only value that supports attribute assignment in
// set statements.
type Namespace struct {
	attrs *Map
}

// NewNamespace returns an empty namespace, optionally seeded with the given
// keyword arguments.
func NewNamespace(kwargs *Kwargs) *Namespace {
	ns := &Namespace{attrs: NewMap()}
	if kwargs != nil {
		for _, p := range kwargs.Map().Pairs() {
			ns.attrs.Set(p.Key, p.Val)
		}
	}
	return ns
}

func (n *Namespace) GetAttr(name string) (Value, bool) {
	return n.attrs.GetString(name)
}

func (n *Namespace) SetAttr(name string, val Value) error {
	n.attrs.SetString(name, val)
	return nil
}

func (n *Namespace) Type() Type      { return DYNAMIC }
func (n *Namespace) Inspect() string { return "namespace" + n.attrs.Inspect() }
func (n *Namespace) Interface() any  { return n.attrs.Interface() }
func (n *Namespace) IsTruthy() bool  { return true }

func (n *Namespace) Equals(other Value) bool {
	o, ok := other.(*Namespace)
	return ok && n == o
}
