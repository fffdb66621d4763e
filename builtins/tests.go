package builtins

import (
	"strings"

	"github.com/cloudcmds/vellum/errors"
	"github.com/cloudcmds/vellum/value"
)

func testDefined(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	return !value.IsUndefined(v), nil
}

func testUndefined(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	return value.IsUndefined(v), nil
}

func testNone(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	return value.IsNone(v), nil
}

func testTrue(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	b, ok := v.(*value.Bool)
	return ok && b.Value(), nil
}

func testFalse(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	b, ok := v.(*value.Bool)
	return ok && !b.Value(), nil
}

func testBoolean(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	return v.Type() == value.BOOL, nil
}

func testOdd(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	n, err := value.AsInt(v)
	if err != nil {
		return false, nil
	}
	return n%2 != 0, nil
}

func testEven(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	n, err := value.AsInt(v)
	if err != nil {
		return false, nil
	}
	return n%2 == 0, nil
}

func testDivisibleBy(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	if err := wantArgs("divisibleby", args, 1, 1); err != nil {
		return false, err
	}
	n, err := value.AsInt(v)
	if err != nil {
		return false, nil
	}
	d, err := argInt("divisibleby", args, 0)
	if err != nil {
		return false, err
	}
	if d == 0 {
		return false, errors.New(errors.InvalidOperation,
			"divisibleby: divisor must not be zero")
	}
	return n%d == 0, nil
}

func testNumber(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	t := v.Type()
	return t == value.INT || t == value.FLOAT, nil
}

func testInteger(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	return v.Type() == value.INT, nil
}

func testFloat(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	return v.Type() == value.FLOAT, nil
}

func testString(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	return v.Type() == value.STRING, nil
}

func testMapping(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	t := v.Type()
	return t == value.MAP || t == value.KWARGS, nil
}

func testSequence(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	return v.Type() == value.SEQ, nil
}

func testIterable(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	_, err := value.Iter(v)
	return err == nil, nil
}

func testSafe(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	return value.IsSafe(v), nil
}

func testStartingWith(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	if err := wantArgs("startingwith", args, 1, 1); err != nil {
		return false, err
	}
	prefix, err := argString("startingwith", args, 0)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(value.ToString(v), prefix), nil
}

func testEndingWith(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	if err := wantArgs("endingwith", args, 1, 1); err != nil {
		return false, err
	}
	suffix, err := argString("endingwith", args, 0)
	if err != nil {
		return false, err
	}
	return strings.HasSuffix(value.ToString(v), suffix), nil
}

func testIn(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	if err := wantArgs("in", args, 1, 1); err != nil {
		return false, err
	}
	found, err := value.Contains(args[0], v)
	if err != nil {
		return false, err
	}
	return found.IsTruthy(), nil
}

func testEq(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	if err := wantArgs("eq", args, 1, 1); err != nil {
		return false, err
	}
	return v.Equals(args[0]), nil
}

func testNe(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	if err := wantArgs("ne", args, 1, 1); err != nil {
		return false, err
	}
	return !v.Equals(args[0]), nil
}

func testLt(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	if err := wantArgs("lt", args, 1, 1); err != nil {
		return false, err
	}
	return value.Compare(v, args[0]) < 0, nil
}

func testLe(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	if err := wantArgs("le", args, 1, 1); err != nil {
		return false, err
	}
	return value.Compare(v, args[0]) <= 0, nil
}

func testGt(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	if err := wantArgs("gt", args, 1, 1); err != nil {
		return false, err
	}
	return value.Compare(v, args[0]) > 0, nil
}

func testGe(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
	if err := wantArgs("ge", args, 1, 1); err != nil {
		return false, err
	}
	return value.Compare(v, args[0]) >= 0, nil
}
