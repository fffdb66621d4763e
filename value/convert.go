package value

import (
	"reflect"
	"sort"

	"github.com/cloudcmds/vellum/errors"
)

// FromGoValue converts a native Go value into a template value. Maps and
// slices convert recursively; string-keyed Go maps are sorted by key so the
// resulting map has a deterministic order. Types that already implement
// Value pass through unchanged, and anything without a direct representation
// is wrapped as a dynamic host object.
func FromGoValue(obj any) Value {
	switch obj := obj.(type) {
	case nil:
		return None
	case Value:
		return obj
	case bool:
		return NewBool(obj)
	case int:
		return NewInt(int64(obj))
	case int8:
		return NewInt(int64(obj))
	case int16:
		return NewInt(int64(obj))
	case int32:
		return NewInt(int64(obj))
	case int64:
		return NewInt(obj)
	case uint:
		return NewInt(int64(obj))
	case uint8:
		return NewInt(int64(obj))
	case uint16:
		return NewInt(int64(obj))
	case uint32:
		return NewInt(int64(obj))
	case uint64:
		return NewInt(int64(obj))
	case float32:
		return NewFloat(float64(obj))
	case float64:
		return NewFloat(obj)
	case string:
		return NewString(obj)
	case []byte:
		return NewBytes(obj)
	case []any:
		seq := NewSeqWithCapacity(len(obj))
		for _, item := range obj {
			seq.Append(FromGoValue(item))
		}
		return seq
	case []string:
		seq := NewSeqWithCapacity(len(obj))
		for _, item := range obj {
			seq.Append(NewString(item))
		}
		return seq
	case []int:
		seq := NewSeqWithCapacity(len(obj))
		for _, item := range obj {
			seq.Append(NewInt(int64(item)))
		}
		return seq
	case []float64:
		seq := NewSeqWithCapacity(len(obj))
		for _, item := range obj {
			seq.Append(NewFloat(item))
		}
		return seq
	case map[string]any:
		m := NewMapWithCapacity(len(obj))
		for _, k := range sortedKeys(obj) {
			m.SetString(k, FromGoValue(obj[k]))
		}
		return m
	case map[string]string:
		m := NewMapWithCapacity(len(obj))
		for _, k := range sortedStrKeys(obj) {
			m.SetString(k, NewString(obj[k]))
		}
		return m
	case error:
		return NewString(obj.Error())
	default:
		return fromReflectValue(obj)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStrKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fromReflectValue(obj any) Value {
	rv := reflect.ValueOf(obj)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		seq := NewSeqWithCapacity(rv.Len())
		for i := 0; i < rv.Len(); i++ {
			seq.Append(FromGoValue(rv.Index(i).Interface()))
		}
		return seq
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			keys := make([]string, 0, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				keys = append(keys, iter.Key().String())
			}
			sort.Strings(keys)
			m := NewMapWithCapacity(len(keys))
			for _, k := range keys {
				m.SetString(k, FromGoValue(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface()))
			}
			return m
		}
		return NewDynamic(obj)
	case reflect.Pointer:
		if rv.IsNil() {
			return None
		}
		if rv.Elem().Kind() == reflect.Struct {
			return NewDynamic(obj)
		}
		return FromGoValue(rv.Elem().Interface())
	case reflect.Func:
		return NewDynamic(&reflectMethod{fn: rv, name: "function"})
	default:
		return NewDynamic(obj)
	}
}

// AsInt coerces a value to an int64: ints pass through, integral floats
// convert, and bools convert to 0 or 1.
func AsInt(v Value) (int64, error) {
	switch v := v.(type) {
	case *Int:
		return v.Value(), nil
	case *Float:
		if v.Value() == float64(int64(v.Value())) {
			return int64(v.Value()), nil
		}
		return 0, errors.Errorf(errors.InvalidOperation,
			"cannot convert float %s to integer without loss", v.Inspect())
	case *Bool:
		if v.Value() {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, errors.Errorf(errors.InvalidOperation,
			"cannot convert %s to integer", v.Type())
	}
}

// AsFloat coerces a numeric value to a float64.
func AsFloat(v Value) (float64, error) {
	switch v := v.(type) {
	case *Int:
		return float64(v.Value()), nil
	case *Float:
		return v.Value(), nil
	case *Bool:
		if v.Value() {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, errors.Errorf(errors.InvalidOperation,
			"cannot convert %s to float", v.Type())
	}
}

// Len returns the length of a value, or false if the value has no length.
func Len(v Value) (int64, bool) {
	switch v := v.(type) {
	case *String:
		return int64(len([]rune(v.Value()))), true
	case *Bytes:
		return int64(len(v.Value())), true
	case *Seq:
		return int64(v.Len()), true
	case *Map:
		return int64(v.Len()), true
	case *Kwargs:
		return int64(v.Len()), true
	case *Dynamic:
		type lengther interface{ Len() int }
		if l, ok := v.obj.(lengther); ok {
			return int64(l.Len()), true
		}
		return 0, false
	default:
		return 0, false
	}
}
