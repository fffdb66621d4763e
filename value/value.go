// Package value provides the dynamic value representation shared by the
// compiler and the virtual machine.
//
// Values form a closed set of variants: undefined, none, bool, int, float,
// string (with a "safe" flag for pre-escaped markup), bytes, sequence,
// insertion-ordered map, and a dynamic variant that wraps host-provided Go
// objects behind capability interfaces.
package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Type of a value as a string.
type Type string

// Type constants
const (
	UNDEFINED Type = "undefined"
	NONE      Type = "none"
	BOOL      Type = "bool"
	INT       Type = "int"
	FLOAT     Type = "float"
	STRING    Type = "string"
	BYTES     Type = "bytes"
	SEQ       Type = "sequence"
	MAP       Type = "map"
	KWARGS    Type = "kwargs"
	DYNAMIC   Type = "dynamic"
)

// Value is the interface implemented by all template values.
type Value interface {
	// Type of the value.
	Type() Type

	// Inspect returns a developer-facing representation of the value,
	// quoting strings and rendering containers in literal syntax.
	Inspect() string

	// Interface converts the value to a native Go value.
	Interface() any

	// IsTruthy returns true if the value is considered "truthy": empty
	// containers, empty strings, zero, none, and undefined are false.
	IsTruthy() bool

	// Equals returns true if the given value is equal to this value.
	Equals(other Value) bool
}

var (
	None  = &NoneType{}
	True  = &Bool{value: true}
	False = &Bool{value: false}
	Undef = &Undefined{}
)

// Undefined represents a name that is not bound. It is distinct from none.
// An undefined value may carry a best-effort hint naming the variable or
// attribute chain that produced it, used in strict-mode error messages.
type Undefined struct {
	hint string
}

// NewUndefined returns an undefined value carrying the given name hint.
func NewUndefined(hint string) *Undefined {
	return &Undefined{hint: hint}
}

func (u *Undefined) Type() Type         { return UNDEFINED }
func (u *Undefined) Inspect() string    { return "undefined" }
func (u *Undefined) Interface() any     { return nil }
func (u *Undefined) IsTruthy() bool     { return false }
func (u *Undefined) Equals(o Value) bool {
	_, ok := o.(*Undefined)
	return ok
}

// Hint returns the variable or attribute chain that produced this undefined
// value, or an empty string if unknown.
func (u *Undefined) Hint() string { return u.hint }

// NoneType represents the none (null) value.
type NoneType struct{}

func (n *NoneType) Type() Type      { return NONE }
func (n *NoneType) Inspect() string { return "none" }
func (n *NoneType) Interface() any  { return nil }
func (n *NoneType) IsTruthy() bool  { return false }
func (n *NoneType) Equals(o Value) bool {
	_, ok := o.(*NoneType)
	return ok
}

// Bool wraps bool and implements Value.
type Bool struct {
	value bool
}

// NewBool returns the shared True or False value.
func NewBool(b bool) *Bool {
	if b {
		return True
	}
	return False
}

func (b *Bool) Value() bool     { return b.value }
func (b *Bool) Type() Type      { return BOOL }
func (b *Bool) Interface() any  { return b.value }
func (b *Bool) IsTruthy() bool  { return b.value }
func (b *Bool) Inspect() string {
	if b.value {
		return "true"
	}
	return "false"
}

func (b *Bool) Equals(other Value) bool {
	switch other := other.(type) {
	case *Bool:
		return b.value == other.value
	default:
		return false
	}
}

// Int wraps int64 and implements Value.
type Int struct {
	value int64
}

// NewInt returns an Int wrapping the given value.
func NewInt(v int64) *Int {
	return &Int{value: v}
}

func (i *Int) Value() int64    { return i.value }
func (i *Int) Type() Type      { return INT }
func (i *Int) Interface() any  { return i.value }
func (i *Int) IsTruthy() bool  { return i.value != 0 }
func (i *Int) Inspect() string { return strconv.FormatInt(i.value, 10) }

func (i *Int) Equals(other Value) bool {
	switch other := other.(type) {
	case *Int:
		return i.value == other.value
	case *Float:
		return float64(i.value) == other.value
	default:
		return false
	}
}

// Float wraps float64 and implements Value.
type Float struct {
	value float64
}

// NewFloat returns a Float wrapping the given value.
func NewFloat(v float64) *Float {
	return &Float{value: v}
}

func (f *Float) Value() float64 { return f.value }
func (f *Float) Type() Type     { return FLOAT }
func (f *Float) Interface() any { return f.value }
func (f *Float) IsTruthy() bool { return f.value != 0 }

func (f *Float) Inspect() string {
	s := strconv.FormatFloat(f.value, 'g', -1, 64)
	// Keep float representations visually distinct from ints
	if !strings.ContainsAny(s, ".eE") && !strings.Contains(s, "Inf") && !strings.Contains(s, "NaN") {
		s += ".0"
	}
	return s
}

func (f *Float) Equals(other Value) bool {
	switch other := other.(type) {
	case *Float:
		return f.value == other.value
	case *Int:
		return f.value == float64(other.value)
	default:
		return false
	}
}

// String wraps string and implements Value. A string may be flagged "safe",
// meaning it is already escaped for the active output context and must not
// be escaped again.
type String struct {
	value string
	safe  bool
}

// NewString returns a String wrapping the given value.
func NewString(s string) *String {
	return &String{value: s}
}

// NewSafeString returns a String flagged as already escaped.
func NewSafeString(s string) *String {
	return &String{value: s, safe: true}
}

func (s *String) Value() string   { return s.value }
func (s *String) Safe() bool      { return s.safe }
func (s *String) Type() Type      { return STRING }
func (s *String) Interface() any  { return s.value }
func (s *String) IsTruthy() bool  { return len(s.value) > 0 }
func (s *String) Inspect() string { return strconv.Quote(s.value) }

func (s *String) Equals(other Value) bool {
	switch other := other.(type) {
	case *String:
		return s.value == other.value
	default:
		return false
	}
}

// Bytes wraps a byte slice and implements Value.
type Bytes struct {
	value []byte
}

// NewBytes returns a Bytes wrapping the given slice.
func NewBytes(b []byte) *Bytes {
	return &Bytes{value: b}
}

func (b *Bytes) Value() []byte   { return b.value }
func (b *Bytes) Type() Type      { return BYTES }
func (b *Bytes) Interface() any  { return b.value }
func (b *Bytes) IsTruthy() bool  { return len(b.value) > 0 }
func (b *Bytes) Inspect() string { return fmt.Sprintf("b%q", b.value) }

func (b *Bytes) Equals(other Value) bool {
	switch other := other.(type) {
	case *Bytes:
		return string(b.value) == string(other.value)
	default:
		return false
	}
}

// ToString returns the render-time string form of a value: strings render
// raw, undefined renders empty, everything else uses its Inspect form.
func ToString(v Value) string {
	switch v := v.(type) {
	case *String:
		return v.Value()
	case *Undefined:
		return ""
	case *Bytes:
		return string(v.Value())
	default:
		return v.Inspect()
	}
}

// IsUndefined returns true if the value is undefined.
func IsUndefined(v Value) bool {
	_, ok := v.(*Undefined)
	return ok
}

// IsNone returns true if the value is none.
func IsNone(v Value) bool {
	_, ok := v.(*NoneType)
	return ok
}

// IsSafe returns true if the value is a string flagged as safe.
func IsSafe(v Value) bool {
	s, ok := v.(*String)
	return ok && s.Safe()
}
