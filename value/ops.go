package value

import (
	"math"
	"strings"

	"github.com/cloudcmds/vellum/errors"
)

// BinaryOpType describes a type of binary operation.
type BinaryOpType uint16

const (
	OpAdd    BinaryOpType = 1
	OpSub    BinaryOpType = 2
	OpMul    BinaryOpType = 3
	OpDiv    BinaryOpType = 4
	OpIntDiv BinaryOpType = 5
	OpRem    BinaryOpType = 6
	OpPow    BinaryOpType = 7
)

// String returns the operator symbol, for example "+" for addition.
func (b BinaryOpType) String() string {
	switch b {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpIntDiv:
		return "//"
	case OpRem:
		return "%"
	case OpPow:
		return "**"
	default:
		return ""
	}
}

// CompareOpType describes a type of comparison operation.
type CompareOpType uint16

const (
	OpEqual          CompareOpType = 1
	OpNotEqual       CompareOpType = 2
	OpLessThan       CompareOpType = 3
	OpLessThanEqual  CompareOpType = 4
	OpGreaterThan    CompareOpType = 5
	OpGreaterThanEq  CompareOpType = 6
)

// String returns the operator symbol, for example "<" for less than.
func (c CompareOpType) String() string {
	switch c {
	case OpEqual:
		return "=="
	case OpNotEqual:
		return "!="
	case OpLessThan:
		return "<"
	case OpLessThanEqual:
		return "<="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanEq:
		return ">="
	default:
		return ""
	}
}

func invalidBinaryOp(op BinaryOpType, a, b Value) error {
	return errors.Errorf(errors.InvalidOperation,
		"unsupported operation: %s %s %s", a.Type(), op, b.Type())
}

// asNumericPair coerces two values to a common numeric representation.
// It returns either two int64s or two float64s, promoting to float when the
// kinds are mixed. Bools do not participate in arithmetic.
func asNumericPair(a, b Value) (int64, int64, float64, float64, bool, bool) {
	switch a := a.(type) {
	case *Int:
		switch b := b.(type) {
		case *Int:
			return a.Value(), b.Value(), 0, 0, true, true
		case *Float:
			return 0, 0, float64(a.Value()), b.Value(), false, true
		}
	case *Float:
		switch b := b.(type) {
		case *Int:
			return 0, 0, a.Value(), float64(b.Value()), false, true
		case *Float:
			return 0, 0, a.Value(), b.Value(), false, true
		}
	}
	return 0, 0, 0, 0, false, false
}

// intPow raises base to a non-negative exponent by squaring, reporting
// failure instead of wrapping on overflow.
func intPow(base, exp int64) (int64, bool) {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			r, ok := mulCheck(result, base)
			if !ok {
				return 0, false
			}
			result = r
		}
		exp >>= 1
		if exp == 0 {
			break
		}
		b, ok := mulCheck(base, base)
		if !ok {
			return 0, false
		}
		base = b
	}
	return result, true
}

func mulCheck(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	r := a * b
	if r/b != a {
		return 0, false
	}
	return r, true
}

// BinaryOp applies an arithmetic operation with numeric type promotion.
// String and sequence addition is rejected; use the ~ concatenation
// operator instead.
func BinaryOp(op BinaryOpType, a, b Value) (Value, error) {
	ai, bi, af, bf, isInt, ok := asNumericPair(a, b)
	if !ok {
		return nil, invalidBinaryOp(op, a, b)
	}
	if isInt {
		switch op {
		case OpAdd:
			return NewInt(ai + bi), nil
		case OpSub:
			return NewInt(ai - bi), nil
		case OpMul:
			return NewInt(ai * bi), nil
		case OpDiv:
			// True division always yields a float
			if bi == 0 {
				return nil, errors.New(errors.InvalidOperation, "division by zero")
			}
			return NewFloat(float64(ai) / float64(bi)), nil
		case OpIntDiv:
			if bi == 0 {
				return nil, errors.New(errors.InvalidOperation, "division by zero")
			}
			// Floor division truncates toward negative infinity
			q := ai / bi
			if (ai%bi != 0) && ((ai < 0) != (bi < 0)) {
				q--
			}
			return NewInt(q), nil
		case OpRem:
			if bi == 0 {
				return nil, errors.New(errors.InvalidOperation, "division by zero")
			}
			r := ai % bi
			if r != 0 && ((ai < 0) != (bi < 0)) {
				r += bi
			}
			return NewInt(r), nil
		case OpPow:
			if bi < 0 {
				return NewFloat(math.Pow(float64(ai), float64(bi))), nil
			}
			result, ok := intPow(ai, bi)
			if !ok {
				return nil, errors.New(errors.InvalidOperation,
					"integer overflow in exponentiation")
			}
			return NewInt(result), nil
		}
		return nil, invalidBinaryOp(op, a, b)
	}
	switch op {
	case OpAdd:
		return NewFloat(af + bf), nil
	case OpSub:
		return NewFloat(af - bf), nil
	case OpMul:
		return NewFloat(af * bf), nil
	case OpDiv:
		if bf == 0 {
			return nil, errors.New(errors.InvalidOperation, "division by zero")
		}
		return NewFloat(af / bf), nil
	case OpIntDiv:
		if bf == 0 {
			return nil, errors.New(errors.InvalidOperation, "division by zero")
		}
		return NewFloat(math.Floor(af / bf)), nil
	case OpRem:
		if bf == 0 {
			return nil, errors.New(errors.InvalidOperation, "division by zero")
		}
		r := math.Mod(af, bf)
		if r != 0 && ((r < 0) != (bf < 0)) {
			r += bf
		}
		return NewFloat(r), nil
	case OpPow:
		return NewFloat(math.Pow(af, bf)), nil
	}
	return nil, invalidBinaryOp(op, a, b)
}

// Neg negates a numeric value.
func Neg(v Value) (Value, error) {
	switch v := v.(type) {
	case *Int:
		return NewInt(-v.Value()), nil
	case *Float:
		return NewFloat(-v.Value()), nil
	default:
		return nil, errors.Errorf(errors.InvalidOperation,
			"unsupported operation: -%s", v.Type())
	}
}

// StringConcat stringifies both operands and concatenates them. The result
// is safe only if both operands were safe strings.
func StringConcat(a, b Value) Value {
	s := ToString(a) + ToString(b)
	if IsSafe(a) && IsSafe(b) {
		return NewSafeString(s)
	}
	return NewString(s)
}

// typeRank orders values of different kinds for comparison purposes.
// Undefined and none sort before everything else.
func typeRank(v Value) int {
	switch v.(type) {
	case *Undefined:
		return 0
	case *NoneType:
		return 1
	case *Bool:
		return 2
	case *Int, *Float:
		return 3
	case *String:
		return 4
	case *Bytes:
		return 5
	case *Seq:
		return 6
	case *Map, *Kwargs:
		return 7
	default:
		return 8
	}
}

// Compare orders two values: numeric values compare across int/float,
// strings compare lexicographically, sequences compare elementwise, and
// values of different kinds order by kind with undefined/none first.
func Compare(a, b Value) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch a := a.(type) {
	case *Undefined, *NoneType:
		return 0
	case *Bool:
		bb := b.(*Bool)
		switch {
		case a.Value() == bb.Value():
			return 0
		case !a.Value():
			return -1
		default:
			return 1
		}
	case *Int, *Float:
		af := toFloat(a)
		bf := toFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case *String:
		return strings.Compare(a.Value(), b.(*String).Value())
	case *Bytes:
		return strings.Compare(string(a.Value()), string(b.(*Bytes).Value()))
	case *Seq:
		return compareSeqs(a, b.(*Seq))
	default:
		// Maps and dynamic values have no meaningful order
		return 0
	}
}

func toFloat(v Value) float64 {
	switch v := v.(type) {
	case *Int:
		return float64(v.Value())
	case *Float:
		return v.Value()
	default:
		return 0
	}
}

func compareSeqs(a, b *Seq) int {
	n := a.Len()
	if b.Len() < n {
		n = b.Len()
	}
	for i := 0; i < n; i++ {
		if c := Compare(a.Items()[i], b.Items()[i]); c != 0 {
			return c
		}
	}
	switch {
	case a.Len() < b.Len():
		return -1
	case a.Len() > b.Len():
		return 1
	default:
		return 0
	}
}

// CompareOp applies a comparison operation using Compare ordering. Equality
// uses value equality, which succeeds across numeric kinds.
func CompareOp(op CompareOpType, a, b Value) (Value, error) {
	switch op {
	case OpEqual:
		return NewBool(a.Equals(b)), nil
	case OpNotEqual:
		return NewBool(!a.Equals(b)), nil
	}
	c := Compare(a, b)
	switch op {
	case OpLessThan:
		return NewBool(c < 0), nil
	case OpLessThanEqual:
		return NewBool(c <= 0), nil
	case OpGreaterThan:
		return NewBool(c > 0), nil
	case OpGreaterThanEq:
		return NewBool(c >= 0), nil
	default:
		return nil, errors.Errorf(errors.InvalidOperation, "unknown comparison")
	}
}

// Contains implements the "in" operator: substring check for strings,
// membership for sequences, and key membership for maps.
func Contains(container, item Value) (Value, error) {
	switch container := container.(type) {
	case *String:
		return NewBool(strings.Contains(container.Value(), ToString(item))), nil
	case *Seq:
		for _, it := range container.Items() {
			if it.Equals(item) {
				return True, nil
			}
		}
		return False, nil
	case *Map:
		_, found := container.Get(item)
		return NewBool(found), nil
	case *Kwargs:
		_, found := container.Map().Get(item)
		return NewBool(found), nil
	case *Dynamic:
		if it, ok := container.obj.(Iterable); ok {
			iter := it.Iter()
			for {
				v, ok := iter.Next()
				if !ok {
					break
				}
				if v.Equals(item) {
					return True, nil
				}
			}
			return False, nil
		}
	}
	return nil, errors.Errorf(errors.InvalidOperation,
		"%s is not a container", container.Type())
}

// GetItem resolves bracket access on a value. The second return indicates
// whether the item was found; an error is only returned for values that do
// not support item access at all.
func GetItem(container, key Value) (Value, bool, error) {
	switch container := container.(type) {
	case *Seq:
		if idx, ok := key.(*Int); ok {
			v, found := container.Get(idx.Value())
			return v, found, nil
		}
		return nil, false, nil
	case *Map:
		v, found := container.Get(key)
		return v, found, nil
	case *Kwargs:
		v, found := container.Map().Get(key)
		return v, found, nil
	case *String:
		if idx, ok := key.(*Int); ok {
			runes := []rune(container.Value())
			i := idx.Value()
			if i < 0 {
				i += int64(len(runes))
			}
			if i < 0 || i >= int64(len(runes)) {
				return nil, false, nil
			}
			return NewString(string(runes[i])), true, nil
		}
		return nil, false, nil
	case *Bytes:
		if idx, ok := key.(*Int); ok {
			data := container.Value()
			i := idx.Value()
			if i < 0 {
				i += int64(len(data))
			}
			if i < 0 || i >= int64(len(data)) {
				return nil, false, nil
			}
			return NewInt(int64(data[i])), true, nil
		}
		return nil, false, nil
	case *Undefined:
		return nil, false, nil
	default:
		if g, ok := container.(ItemGetter); ok {
			v, found := g.GetItem(key)
			return v, found, nil
		}
		// Map-style lookup with a string key falls back to attributes
		if s, ok := key.(*String); ok {
			if g, ok := container.(AttrGetter); ok {
				v, found := g.GetAttr(s.Value())
				return v, found, nil
			}
		}
		return nil, false, errors.Errorf(errors.InvalidOperation,
			"%s is not indexable", container.Type())
	}
}

// Slice implements start:stop:step slicing for sequences and strings.
// Out-of-range bounds clamp; a negative step reverses direction.
func Slice(v, start, stop, step Value) (Value, error) {
	stepN := int64(1)
	if !IsNone(step) && !IsUndefined(step) {
		i, ok := step.(*Int)
		if !ok {
			return nil, errors.New(errors.InvalidOperation, "slice step must be an integer")
		}
		stepN = i.Value()
		if stepN == 0 {
			return nil, errors.New(errors.InvalidOperation, "slice step cannot be zero")
		}
	}
	resolve := func(bound Value, def int64, length int64) (int64, error) {
		if IsNone(bound) || IsUndefined(bound) {
			return def, nil
		}
		i, ok := bound.(*Int)
		if !ok {
			return 0, errors.New(errors.InvalidOperation, "slice bounds must be integers")
		}
		n := i.Value()
		if n < 0 {
			n += length
		}
		if n < 0 {
			n = 0
		}
		if n > length {
			n = length
		}
		return n, nil
	}
	sliceIndices := func(length int64) (int64, int64, error) {
		var defStart, defStop int64
		if stepN > 0 {
			defStart, defStop = 0, length
		} else {
			defStart, defStop = length-1, -1
			// Negative-step defaults cannot be expressed via clamping, so
			// resolve them only when bounds are provided.
			if !IsNone(start) && !IsUndefined(start) {
				s, err := resolve(start, 0, length)
				if err != nil {
					return 0, 0, err
				}
				defStart = s
				if defStart >= length {
					defStart = length - 1
				}
			}
			if !IsNone(stop) && !IsUndefined(stop) {
				s, err := resolve(stop, 0, length)
				if err != nil {
					return 0, 0, err
				}
				defStop = s
			}
			return defStart, defStop, nil
		}
		s, err := resolve(start, defStart, length)
		if err != nil {
			return 0, 0, err
		}
		e, err := resolve(stop, defStop, length)
		if err != nil {
			return 0, 0, err
		}
		return s, e, nil
	}
	switch v := v.(type) {
	case *Seq:
		length := int64(v.Len())
		s, e, err := sliceIndices(length)
		if err != nil {
			return nil, err
		}
		out := NewSeq()
		if stepN > 0 {
			for i := s; i < e; i += stepN {
				out.Append(v.Items()[i])
			}
		} else {
			for i := s; i > e; i += stepN {
				out.Append(v.Items()[i])
			}
		}
		return out, nil
	case *String:
		runes := []rune(v.Value())
		length := int64(len(runes))
		s, e, err := sliceIndices(length)
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		if stepN > 0 {
			for i := s; i < e; i += stepN {
				b.WriteRune(runes[i])
			}
		} else {
			for i := s; i > e; i += stepN {
				b.WriteRune(runes[i])
			}
		}
		return NewString(b.String()), nil
	default:
		return nil, errors.Errorf(errors.InvalidOperation,
			"%s is not sliceable", v.Type())
	}
}

// AsCallable returns the Callable capability of a value, unwrapping
// dynamic host objects.
func AsCallable(v Value) (Callable, bool) {
	if d, ok := v.(*Dynamic); ok {
		c, ok := d.obj.(Callable)
		return c, ok
	}
	c, ok := v.(Callable)
	return c, ok
}

// AsMethodCaller returns the MethodCaller capability of a value, unwrapping
// dynamic host objects.
func AsMethodCaller(v Value) (MethodCaller, bool) {
	if d, ok := v.(*Dynamic); ok {
		c, ok := d.obj.(MethodCaller)
		return c, ok
	}
	c, ok := v.(MethodCaller)
	return c, ok
}
