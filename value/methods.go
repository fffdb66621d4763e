package value

import (
	"strings"

	"github.com/cloudcmds/vellum/errors"
)

// CallMethod invokes a named method on a value. Strings, maps, and
// sequences expose a small set of built-in methods; dynamic host objects
// dispatch through their MethodCaller capability or an attribute that
// resolves to something callable.
func CallMethod(recv Value, name string, args []Value, kwargs *Kwargs) (Value, error) {
	switch recv := recv.(type) {
	case *String:
		return callStringMethod(recv, name, args)
	case *Map:
		return callMapMethod(recv, name, args)
	case *Kwargs:
		return callMapMethod(recv.Map(), name, args)
	case *Dynamic:
		if mc, ok := recv.obj.(MethodCaller); ok {
			return mc.CallMethod(name, args, kwargs)
		}
		if attr, found := recv.GetAttr(name); found {
			if c, ok := AsCallable(attr); ok {
				return c.Call(args, kwargs)
			}
		}
	default:
		if mc, ok := recv.(MethodCaller); ok {
			return mc.CallMethod(name, args, kwargs)
		}
	}
	return nil, errors.Errorf(errors.InvalidOperation,
		"%s has no method %q", recv.Type(), name)
}

func wantArgs(name string, args []Value, min, max int) error {
	if len(args) < min || len(args) > max {
		if min == max {
			return errors.Errorf(errors.InvalidOperation,
				"method %s expects %d arguments, got %d", name, min, len(args))
		}
		return errors.Errorf(errors.InvalidOperation,
			"method %s expects %d to %d arguments, got %d", name, min, max, len(args))
	}
	return nil
}

func argString(name string, args []Value, i int) (string, error) {
	s, ok := args[i].(*String)
	if !ok {
		return "", errors.Errorf(errors.InvalidOperation,
			"method %s expects a string argument, got %s", name, args[i].Type())
	}
	return s.Value(), nil
}

func callStringMethod(recv *String, name string, args []Value) (Value, error) {
	s := recv.Value()
	switch name {
	case "upper":
		if err := wantArgs(name, args, 0, 0); err != nil {
			return nil, err
		}
		return NewString(strings.ToUpper(s)), nil
	case "lower":
		if err := wantArgs(name, args, 0, 0); err != nil {
			return nil, err
		}
		return NewString(strings.ToLower(s)), nil
	case "title":
		if err := wantArgs(name, args, 0, 0); err != nil {
			return nil, err
		}
		return NewString(titleCase(s)), nil
	case "capitalize":
		if err := wantArgs(name, args, 0, 0); err != nil {
			return nil, err
		}
		return NewString(capitalize(s)), nil
	case "strip", "trim":
		if err := wantArgs(name, args, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 1 {
			cut, err := argString(name, args, 0)
			if err != nil {
				return nil, err
			}
			return NewString(strings.Trim(s, cut)), nil
		}
		return NewString(strings.TrimSpace(s)), nil
	case "lstrip":
		if err := wantArgs(name, args, 0, 0); err != nil {
			return nil, err
		}
		return NewString(strings.TrimLeft(s, " \t\r\n")), nil
	case "rstrip":
		if err := wantArgs(name, args, 0, 0); err != nil {
			return nil, err
		}
		return NewString(strings.TrimRight(s, " \t\r\n")), nil
	case "replace":
		if err := wantArgs(name, args, 2, 2); err != nil {
			return nil, err
		}
		old, err := argString(name, args, 0)
		if err != nil {
			return nil, err
		}
		new_, err := argString(name, args, 1)
		if err != nil {
			return nil, err
		}
		return NewString(strings.ReplaceAll(s, old, new_)), nil
	case "split":
		if err := wantArgs(name, args, 0, 1); err != nil {
			return nil, err
		}
		var parts []string
		if len(args) == 1 {
			sep, err := argString(name, args, 0)
			if err != nil {
				return nil, err
			}
			parts = strings.Split(s, sep)
		} else {
			parts = strings.Fields(s)
		}
		out := NewSeqWithCapacity(len(parts))
		for _, p := range parts {
			out.Append(NewString(p))
		}
		return out, nil
	case "splitlines":
		if err := wantArgs(name, args, 0, 0); err != nil {
			return nil, err
		}
		lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
		if s == "" {
			lines = nil
		}
		out := NewSeqWithCapacity(len(lines))
		for _, l := range lines {
			out.Append(NewString(strings.TrimSuffix(l, "\r")))
		}
		return out, nil
	case "join":
		if err := wantArgs(name, args, 1, 1); err != nil {
			return nil, err
		}
		it, err := Iter(args[0])
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		first := true
		for {
			item, ok := it.Next()
			if !ok {
				break
			}
			if !first {
				b.WriteString(s)
			}
			first = false
			b.WriteString(ToString(item))
		}
		return NewString(b.String()), nil
	case "startswith":
		if err := wantArgs(name, args, 1, 1); err != nil {
			return nil, err
		}
		prefix, err := argString(name, args, 0)
		if err != nil {
			return nil, err
		}
		return NewBool(strings.HasPrefix(s, prefix)), nil
	case "endswith":
		if err := wantArgs(name, args, 1, 1); err != nil {
			return nil, err
		}
		suffix, err := argString(name, args, 0)
		if err != nil {
			return nil, err
		}
		return NewBool(strings.HasSuffix(s, suffix)), nil
	case "find":
		if err := wantArgs(name, args, 1, 1); err != nil {
			return nil, err
		}
		sub, err := argString(name, args, 0)
		if err != nil {
			return nil, err
		}
		idx := strings.Index(s, sub)
		if idx >= 0 {
			idx = len([]rune(s[:idx]))
		}
		return NewInt(int64(idx)), nil
	case "count":
		if err := wantArgs(name, args, 1, 1); err != nil {
			return nil, err
		}
		sub, err := argString(name, args, 0)
		if err != nil {
			return nil, err
		}
		return NewInt(int64(strings.Count(s, sub))), nil
	}
	return nil, errors.Errorf(errors.InvalidOperation, "string has no method %q", name)
}

func callMapMethod(recv *Map, name string, args []Value) (Value, error) {
	switch name {
	case "keys":
		if err := wantArgs(name, args, 0, 0); err != nil {
			return nil, err
		}
		return NewSeq(recv.Keys()...), nil
	case "values":
		if err := wantArgs(name, args, 0, 0); err != nil {
			return nil, err
		}
		out := NewSeqWithCapacity(recv.Len())
		for _, p := range recv.Pairs() {
			out.Append(p.Val)
		}
		return out, nil
	case "items":
		if err := wantArgs(name, args, 0, 0); err != nil {
			return nil, err
		}
		out := NewSeqWithCapacity(recv.Len())
		for _, p := range recv.Pairs() {
			out.Append(NewSeq(p.Key, p.Val))
		}
		return out, nil
	case "get":
		if err := wantArgs(name, args, 1, 2); err != nil {
			return nil, err
		}
		if v, found := recv.Get(args[0]); found {
			return v, nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return None, nil
	}
	return nil, errors.Errorf(errors.InvalidOperation, "map has no method %q", name)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	head := strings.ToUpper(string(runes[0]))
	return head + strings.ToLower(string(runes[1:]))
}

func titleCase(s string) string {
	var b strings.Builder
	startOfWord := true
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '-' || r == '_' {
			startOfWord = true
			b.WriteRune(r)
			continue
		}
		if startOfWord {
			b.WriteString(strings.ToUpper(string(r)))
		} else {
			b.WriteString(strings.ToLower(string(r)))
		}
		startOfWord = false
	}
	return b.String()
}
