package value

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudcmds/vellum/errors"
)

func TestTruthiness(t *testing.T) {
	tests := []struct {
		input Value
		want  bool
	}{
		{Undef, false},
		{None, false},
		{False, false},
		{True, true},
		{NewInt(0), false},
		{NewInt(3), true},
		{NewFloat(0), false},
		{NewFloat(0.5), true},
		{NewString(""), false},
		{NewString("x"), true},
		{NewSeq(), false},
		{NewSeq(NewInt(1)), true},
		{NewMap(), false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tt.input.IsTruthy(), tt.input.Inspect())
	}
}

func TestNumericEquality(t *testing.T) {
	require.True(t, NewInt(42).Equals(NewFloat(42)))
	require.True(t, NewFloat(42).Equals(NewInt(42)))
	require.False(t, NewInt(42).Equals(NewFloat(42.5)))
	require.False(t, NewInt(1).Equals(True))
}

func TestInspect(t *testing.T) {
	require.Equal(t, "42", NewInt(42).Inspect())
	require.Equal(t, "42.0", NewFloat(42).Inspect())
	require.Equal(t, "1.5", NewFloat(1.5).Inspect())
	require.Equal(t, `"hi"`, NewString("hi").Inspect())
	require.Equal(t, "[1, 2]", NewSeq(NewInt(1), NewInt(2)).Inspect())
	m := NewMap()
	m.SetString("a", NewInt(1))
	require.Equal(t, `{"a": 1}`, m.Inspect())
}

func TestBinaryOpIntPromotion(t *testing.T) {
	v, err := BinaryOp(OpAdd, NewInt(1), NewInt(2))
	require.Nil(t, err)
	require.Equal(t, NewInt(3), v)

	v, err = BinaryOp(OpAdd, NewInt(1), NewFloat(2.5))
	require.Nil(t, err)
	require.Equal(t, NewFloat(3.5), v)
}

func TestTrueDivisionAlwaysFloat(t *testing.T) {
	v, err := BinaryOp(OpDiv, NewInt(7), NewInt(2))
	require.Nil(t, err)
	require.Equal(t, NewFloat(3.5), v)

	v, err = BinaryOp(OpDiv, NewInt(6), NewInt(2))
	require.Nil(t, err)
	require.Equal(t, NewFloat(3), v)
}

func TestFloorDivision(t *testing.T) {
	tests := []struct {
		a, b, want int64
	}{
		{7, 2, 3},
		{-7, 2, -4},
		{7, -2, -4},
		{-7, -2, 3},
		{6, 3, 2},
	}
	for _, tt := range tests {
		v, err := BinaryOp(OpIntDiv, NewInt(tt.a), NewInt(tt.b))
		require.Nil(t, err)
		require.Equal(t, NewInt(tt.want), v)
	}
}

func TestIntegerPower(t *testing.T) {
	v, err := BinaryOp(OpPow, NewInt(2), NewInt(10))
	require.Nil(t, err)
	require.Equal(t, NewInt(1024), v)

	v, err = BinaryOp(OpPow, NewInt(-3), NewInt(3))
	require.Nil(t, err)
	require.Equal(t, NewInt(-27), v)

	v, err = BinaryOp(OpPow, NewInt(2), NewInt(62))
	require.Nil(t, err)
	require.Equal(t, NewInt(1<<62), v)

	// Negative exponents promote to float
	v, err = BinaryOp(OpPow, NewInt(2), NewInt(-1))
	require.Nil(t, err)
	require.Equal(t, NewFloat(0.5), v)
}

func TestIntegerPowerOverflow(t *testing.T) {
	_, err := BinaryOp(OpPow, NewInt(2), NewInt(64))
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.InvalidOperation))
	require.Contains(t, err.Error(), "overflow")

	_, err = BinaryOp(OpPow, NewInt(10), NewInt(19))
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.InvalidOperation))
}

func TestIntegerPowerHugeExponentTerminates(t *testing.T) {
	// Exponentiation is logarithmic in the exponent, so a huge exponent
	// with a trivial base returns immediately instead of spinning.
	v, err := BinaryOp(OpPow, NewInt(1), NewInt(2_000_000_000))
	require.Nil(t, err)
	require.Equal(t, NewInt(1), v)

	_, err = BinaryOp(OpPow, NewInt(2), NewInt(2_000_000_000))
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.InvalidOperation))
}

func TestModuloFollowsDivisorSign(t *testing.T) {
	v, err := BinaryOp(OpRem, NewInt(-7), NewInt(3))
	require.Nil(t, err)
	require.Equal(t, NewInt(2), v)

	v, err = BinaryOp(OpRem, NewInt(7), NewInt(-3))
	require.Nil(t, err)
	require.Equal(t, NewInt(-2), v)
}

func TestDivisionByZero(t *testing.T) {
	_, err := BinaryOp(OpDiv, NewInt(1), NewInt(0))
	require.NotNil(t, err)
	_, err = BinaryOp(OpIntDiv, NewInt(1), NewInt(0))
	require.NotNil(t, err)
	_, err = BinaryOp(OpRem, NewInt(1), NewInt(0))
	require.NotNil(t, err)
}

func TestAddRejectsStrings(t *testing.T) {
	_, err := BinaryOp(OpAdd, NewString("a"), NewString("b"))
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "unsupported operation")
}

func TestStringConcatSafety(t *testing.T) {
	v := StringConcat(NewString("a"), NewInt(1))
	require.Equal(t, "a1", ToString(v))
	require.False(t, IsSafe(v))

	v = StringConcat(NewSafeString("<b>"), NewSafeString("</b>"))
	require.True(t, IsSafe(v))

	v = StringConcat(NewSafeString("<b>"), NewString("x"))
	require.False(t, IsSafe(v))
}

func TestCompareOrdering(t *testing.T) {
	require.Equal(t, -1, Compare(NewInt(1), NewInt(2)))
	require.Equal(t, 0, Compare(NewInt(2), NewFloat(2)))
	require.Equal(t, 1, Compare(NewString("b"), NewString("a")))
	// Values of different kinds order by kind
	require.Equal(t, -1, Compare(None, NewInt(0)))
	require.Equal(t, -1, Compare(Undef, None))
	require.Equal(t, -1, Compare(
		NewSeq(NewInt(1), NewInt(2)),
		NewSeq(NewInt(1), NewInt(3))))
	require.Equal(t, -1, Compare(
		NewSeq(NewInt(1)),
		NewSeq(NewInt(1), NewInt(0))))
}

func TestContains(t *testing.T) {
	v, err := Contains(NewString("hello"), NewString("ell"))
	require.Nil(t, err)
	require.Equal(t, True, v)

	v, err = Contains(NewSeq(NewInt(1), NewInt(2)), NewInt(2))
	require.Nil(t, err)
	require.Equal(t, True, v)

	m := NewMap()
	m.SetString("a", NewInt(1))
	v, err = Contains(m, NewString("a"))
	require.Nil(t, err)
	require.Equal(t, True, v)
	v, err = Contains(m, NewString("b"))
	require.Nil(t, err)
	require.Equal(t, False, v)

	_, err = Contains(NewInt(1), NewInt(1))
	require.NotNil(t, err)
}

func TestGetItem(t *testing.T) {
	seq := NewSeq(NewString("a"), NewString("b"), NewString("c"))
	v, found, err := GetItem(seq, NewInt(-1))
	require.Nil(t, err)
	require.True(t, found)
	require.Equal(t, NewString("c"), v)

	_, found, err = GetItem(seq, NewInt(3))
	require.Nil(t, err)
	require.False(t, found)

	v, found, err = GetItem(NewString("héllo"), NewInt(1))
	require.Nil(t, err)
	require.True(t, found)
	require.Equal(t, NewString("é"), v)
}

func TestSlice(t *testing.T) {
	seq := NewSeq(NewInt(0), NewInt(1), NewInt(2), NewInt(3), NewInt(4))

	v, err := Slice(seq, NewInt(1), NewInt(4), None)
	require.Nil(t, err)
	require.Equal(t, "[1, 2, 3]", v.Inspect())

	v, err = Slice(seq, None, None, NewInt(2))
	require.Nil(t, err)
	require.Equal(t, "[0, 2, 4]", v.Inspect())

	v, err = Slice(seq, None, None, NewInt(-1))
	require.Nil(t, err)
	require.Equal(t, "[4, 3, 2, 1, 0]", v.Inspect())

	v, err = Slice(seq, NewInt(-2), None, None)
	require.Nil(t, err)
	require.Equal(t, "[3, 4]", v.Inspect())

	// Out-of-range bounds clamp rather than error
	v, err = Slice(seq, NewInt(3), NewInt(100), None)
	require.Nil(t, err)
	require.Equal(t, "[3, 4]", v.Inspect())

	v, err = Slice(NewString("hello"), NewInt(1), NewInt(3), None)
	require.Nil(t, err)
	require.Equal(t, NewString("el"), v)

	_, err = Slice(seq, None, None, NewInt(0))
	require.NotNil(t, err)
}

func TestMapInsertionOrder(t *testing.T) {
	m := NewMap()
	m.SetString("b", NewInt(1))
	m.SetString("a", NewInt(2))
	m.SetString("c", NewInt(3))
	m.SetString("a", NewInt(9))
	require.Equal(t, []Value{
		NewString("b"), NewString("a"), NewString("c"),
	}, m.Keys())
	v, found := m.GetString("a")
	require.True(t, found)
	require.Equal(t, NewInt(9), v)
}

func TestIter(t *testing.T) {
	it, err := Iter(NewSeq(NewInt(1), NewInt(2)))
	require.Nil(t, err)
	require.Equal(t, 2, it.Len())
	v, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, NewInt(1), v)

	m := NewMap()
	m.SetString("x", NewInt(1))
	m.SetString("y", NewInt(2))
	it, err = Iter(m)
	require.Nil(t, err)
	require.Equal(t, "[\"x\", \"y\"]", Collect(it).Inspect())

	it, err = Iter(NewString("ab"))
	require.Nil(t, err)
	require.Equal(t, 2, it.Len())

	it, err = Iter(Undef)
	require.Nil(t, err)
	_, ok = it.Next()
	require.False(t, ok)

	_, err = Iter(NewInt(1))
	require.NotNil(t, err)
}

func TestPeekIterator(t *testing.T) {
	it := NewPeekIterator(NewSliceIterator([]Value{NewInt(1), NewInt(2)}))
	v, ok := it.Peek()
	require.True(t, ok)
	require.Equal(t, NewInt(1), v)
	require.Equal(t, 2, it.Len())

	v, ok = it.Next()
	require.True(t, ok)
	require.Equal(t, NewInt(1), v)

	v, ok = it.Next()
	require.True(t, ok)
	require.Equal(t, NewInt(2), v)

	_, ok = it.Peek()
	require.False(t, ok)
	_, ok = it.Next()
	require.False(t, ok)
}

func TestStringMethods(t *testing.T) {
	v, err := CallMethod(NewString("hello world"), "upper", nil, nil)
	require.Nil(t, err)
	require.Equal(t, NewString("HELLO WORLD"), v)

	v, err = CallMethod(NewString("hello world"), "title", nil, nil)
	require.Nil(t, err)
	require.Equal(t, NewString("Hello World"), v)

	v, err = CallMethod(NewString("a,b,c"), "split", []Value{NewString(",")}, nil)
	require.Nil(t, err)
	require.Equal(t, `["a", "b", "c"]`, v.Inspect())

	v, err = CallMethod(NewString(", "), "join",
		[]Value{NewSeq(NewInt(1), NewInt(2))}, nil)
	require.Nil(t, err)
	require.Equal(t, NewString("1, 2"), v)

	v, err = CallMethod(NewString("hello"), "startswith",
		[]Value{NewString("he")}, nil)
	require.Nil(t, err)
	require.Equal(t, True, v)

	_, err = CallMethod(NewString("x"), "frobnicate", nil, nil)
	require.NotNil(t, err)
}

func TestMapMethods(t *testing.T) {
	m := NewMap()
	m.SetString("a", NewInt(1))
	m.SetString("b", NewInt(2))

	v, err := CallMethod(m, "items", nil, nil)
	require.Nil(t, err)
	require.Equal(t, `[["a", 1], ["b", 2]]`, v.Inspect())

	v, err = CallMethod(m, "get", []Value{NewString("missing"), NewInt(7)}, nil)
	require.Nil(t, err)
	require.Equal(t, NewInt(7), v)
}

func TestFromGoValue(t *testing.T) {
	v := FromGoValue(map[string]any{
		"name":  "Bob",
		"age":   42,
		"langs": []string{"go", "rust"},
	})
	m, ok := v.(*Map)
	require.True(t, ok)
	require.Equal(t, 3, m.Len())
	// Keys from Go maps arrive sorted
	require.Equal(t, []Value{
		NewString("age"), NewString("langs"), NewString("name"),
	}, m.Keys())

	require.Equal(t, None, FromGoValue(nil))
	require.Equal(t, NewInt(3), FromGoValue(3))
	require.Equal(t, NewFloat(1.5), FromGoValue(1.5))
}

type testUser struct {
	Name string
	Age  int
}

func (u *testUser) Greet(greeting string) string {
	return greeting + ", " + u.Name
}

func TestDynamicReflection(t *testing.T) {
	d := NewDynamic(&testUser{Name: "Ada", Age: 36})

	v, found := d.GetAttr("Name")
	require.True(t, found)
	require.Equal(t, NewString("Ada"), v)

	_, found = d.GetAttr("Missing")
	require.False(t, found)

	method, found := d.GetAttr("Greet")
	require.True(t, found)
	c, ok := AsCallable(method)
	require.True(t, ok)
	out, err := c.Call([]Value{NewString("Hi")}, nil)
	require.Nil(t, err)
	require.Equal(t, NewString("Hi, Ada"), out)
}

func TestNamespace(t *testing.T) {
	ns := NewNamespace(nil)
	require.Nil(t, ns.SetAttr("count", NewInt(1)))
	v, found := ns.GetAttr("count")
	require.True(t, found)
	require.Equal(t, NewInt(1), v)
}

func TestAsInt(t *testing.T) {
	n, err := AsInt(NewInt(5))
	require.Nil(t, err)
	require.Equal(t, int64(5), n)

	n, err = AsInt(NewFloat(5))
	require.Nil(t, err)
	require.Equal(t, int64(5), n)

	_, err = AsInt(NewFloat(5.5))
	require.NotNil(t, err)

	_, err = AsInt(NewString("5"))
	require.NotNil(t, err)
}
