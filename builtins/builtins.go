// Package builtins provides the default filters, tests, and functions that
// every environment starts with.
package builtins

import (
	"github.com/cloudcmds/vellum/errors"
	"github.com/cloudcmds/vellum/value"
	"github.com/cloudcmds/vellum/vm"
)

// Filters returns the default filter registry. Aliases (e, d, count) map to
// the same implementations as their long names.
func Filters() map[string]vm.FilterFunc {
	filters := map[string]vm.FilterFunc{
		"upper":      filterUpper,
		"lower":      filterLower,
		"capitalize": filterCapitalize,
		"title":      filterTitle,
		"trim":       filterTrim,
		"replace":    filterReplace,
		"escape":     filterEscape,
		"safe":       filterSafe,
		"length":     filterLength,
		"first":      filterFirst,
		"last":       filterLast,
		"reverse":    filterReverse,
		"sort":       filterSort,
		"join":       filterJoin,
		"default":    filterDefault,
		"abs":        filterAbs,
		"round":      filterRound,
		"int":        filterInt,
		"float":      filterFloat,
		"string":     filterString,
		"list":       filterList,
		"min":        filterMin,
		"max":        filterMax,
		"sum":        filterSum,
		"unique":     filterUnique,
		"batch":      filterBatch,
		"slice":      filterSlice,
		"items":      filterItems,
		"tojson":     filterToJSON,
		"indent":     filterIndent,
		"truncate":   filterTruncate,
		"urlencode":  filterURLEncode,
		"jmespath":   filterJMESPath,
	}
	filters["e"] = filters["escape"]
	filters["d"] = filters["default"]
	filters["count"] = filters["length"]
	return filters
}

// Tests returns the default test registry.
func Tests() map[string]vm.TestFunc {
	return map[string]vm.TestFunc{
		"defined":      testDefined,
		"undefined":    testUndefined,
		"none":         testNone,
		"true":         testTrue,
		"false":        testFalse,
		"boolean":      testBoolean,
		"odd":          testOdd,
		"even":         testEven,
		"divisibleby":  testDivisibleBy,
		"number":       testNumber,
		"integer":      testInteger,
		"float":        testFloat,
		"string":       testString,
		"mapping":      testMapping,
		"sequence":     testSequence,
		"iterable":     testIterable,
		"safe":         testSafe,
		"startingwith": testStartingWith,
		"endingwith":   testEndingWith,
		"in":           testIn,
		"eq":           testEq,
		"ne":           testNe,
		"lt":           testLt,
		"le":           testLe,
		"gt":           testGt,
		"ge":           testGe,
	}
}

// Functions returns the default function registry.
func Functions() map[string]vm.FunctionFunc {
	return map[string]vm.FunctionFunc{
		"range":     funcRange,
		"dict":      funcDict,
		"namespace": funcNamespace,
		"uuid":      funcUUID,
	}
}

// Argument helpers shared by the filter and test implementations.

func wantArgs(name string, args []value.Value, min, max int) error {
	if len(args) < min || len(args) > max {
		if min == max {
			return errors.Errorf(errors.InvalidOperation,
				"%s expects %d arguments, got %d", name, min, len(args))
		}
		return errors.Errorf(errors.InvalidOperation,
			"%s expects %d to %d arguments, got %d", name, min, max, len(args))
	}
	return nil
}

func argString(name string, args []value.Value, i int) (string, error) {
	s, ok := args[i].(*value.String)
	if !ok {
		return "", errors.Errorf(errors.InvalidOperation,
			"%s: argument %d must be a string, got %s", name, i+1, args[i].Type())
	}
	return s.Value(), nil
}

func argInt(name string, args []value.Value, i int) (int64, error) {
	n, err := value.AsInt(args[i])
	if err != nil {
		return 0, errors.Errorf(errors.InvalidOperation,
			"%s: argument %d must be an integer, got %s", name, i+1, args[i].Type())
	}
	return n, nil
}

// collect drains an iterable value into a slice.
func collect(name string, v value.Value) ([]value.Value, error) {
	it, err := value.Iter(v)
	if err != nil {
		return nil, errors.Errorf(errors.InvalidOperation,
			"%s: %s is not iterable", name, v.Type())
	}
	return value.Collect(it).Items(), nil
}

func kwargBool(kwargs *value.Kwargs, name string, fallback bool) bool {
	if kwargs == nil {
		return fallback
	}
	if v, ok := kwargs.Get(name); ok {
		return v.IsTruthy()
	}
	return fallback
}

func kwargString(kwargs *value.Kwargs, name, fallback string) string {
	if kwargs == nil {
		return fallback
	}
	if v, ok := kwargs.Get(name); ok {
		return value.ToString(v)
	}
	return fallback
}
