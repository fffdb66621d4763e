package builtins

import (
	"encoding/json"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/jmespath/go-jmespath"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cloudcmds/vellum/errors"
	"github.com/cloudcmds/vellum/value"
)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

func filterUpper(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	return value.NewString(strings.ToUpper(value.ToString(v))), nil
}

func filterLower(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	return value.NewString(strings.ToLower(value.ToString(v))), nil
}

func filterCapitalize(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	s := value.ToString(v)
	if s == "" {
		return value.NewString(""), nil
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
	return value.NewString(string(runes)), nil
}

var titleCaser = cases.Title(language.Und)

func filterTitle(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	return value.NewString(titleCaser.String(strings.ToLower(value.ToString(v)))), nil
}

func filterTrim(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if err := wantArgs("trim", args, 0, 1); err != nil {
		return nil, err
	}
	s := value.ToString(v)
	if len(args) == 1 {
		cutset, err := argString("trim", args, 0)
		if err != nil {
			return nil, err
		}
		return value.NewString(strings.Trim(s, cutset)), nil
	}
	return value.NewString(strings.TrimSpace(s)), nil
}

func filterReplace(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if err := wantArgs("replace", args, 2, 3); err != nil {
		return nil, err
	}
	old, err := argString("replace", args, 0)
	if err != nil {
		return nil, err
	}
	repl, err := argString("replace", args, 1)
	if err != nil {
		return nil, err
	}
	count := -1
	if len(args) == 3 {
		n, err := argInt("replace", args, 2)
		if err != nil {
			return nil, err
		}
		count = int(n)
	}
	return value.NewString(strings.Replace(value.ToString(v), old, repl, count)), nil
}

func filterEscape(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if value.IsSafe(v) {
		return v, nil
	}
	return value.NewSafeString(htmlEscaper.Replace(value.ToString(v))), nil
}

func filterSafe(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	return value.NewSafeString(value.ToString(v)), nil
}

func filterLength(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if n, ok := value.Len(v); ok {
		return value.NewInt(n), nil
	}
	return nil, errors.Errorf(errors.InvalidOperation,
		"value of type %s has no length", v.Type())
}

func filterFirst(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	items, err := collect("first", v)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return value.Undef, nil
	}
	return items[0], nil
}

func filterLast(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	items, err := collect("last", v)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return value.Undef, nil
	}
	return items[len(items)-1], nil
}

func filterReverse(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if s, ok := v.(*value.String); ok {
		runes := []rune(s.Value())
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return value.NewString(string(runes)), nil
	}
	items, err := collect("reverse", v)
	if err != nil {
		return nil, err
	}
	out := make([]value.Value, len(items))
	for i, item := range items {
		out[len(items)-1-i] = item
	}
	return value.NewSeq(out...), nil
}

// sortKey extracts the comparison key for one item: an attribute when
// requested, lowercased strings unless case_sensitive is set.
func sortKey(item value.Value, attr string, caseSensitive bool) value.Value {
	if attr != "" {
		if kv, found, err := value.GetItem(item, value.NewString(attr)); err == nil && found {
			item = kv
		} else {
			item = value.Undef
		}
	}
	if s, ok := item.(*value.String); ok && !caseSensitive {
		return value.NewString(strings.ToLower(s.Value()))
	}
	return item
}

func filterSort(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	items, err := collect("sort", v)
	if err != nil {
		return nil, err
	}
	out := make([]value.Value, len(items))
	copy(out, items)
	reverse := kwargBool(kwargs, "reverse", false)
	attr := kwargString(kwargs, "attribute", "")
	caseSensitive := kwargBool(kwargs, "case_sensitive", false)
	sort.SliceStable(out, func(i, j int) bool {
		cmp := value.Compare(sortKey(out[i], attr, caseSensitive), sortKey(out[j], attr, caseSensitive))
		if reverse {
			return cmp > 0
		}
		return cmp < 0
	})
	return value.NewSeq(out...), nil
}

func filterJoin(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if err := wantArgs("join", args, 0, 1); err != nil {
		return nil, err
	}
	sep := ""
	if len(args) == 1 {
		sep = value.ToString(args[0])
	}
	items, err := collect("join", v)
	if err != nil {
		return nil, err
	}
	attr := kwargString(kwargs, "attribute", "")
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if attr != "" {
			if kv, found, err := value.GetItem(item, value.NewString(attr)); err == nil && found {
				item = kv
			}
		}
		parts = append(parts, value.ToString(item))
	}
	return value.NewString(strings.Join(parts, sep)), nil
}

func filterDefault(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if err := wantArgs("default", args, 0, 2); err != nil {
		return nil, err
	}
	var fallback value.Value = value.NewString("")
	if len(args) >= 1 {
		fallback = args[0]
	}
	// With the boolean flag set, falsy values fall back too
	boolean := kwargBool(kwargs, "boolean", false)
	if len(args) == 2 {
		boolean = args[1].IsTruthy()
	}
	if value.IsUndefined(v) || (boolean && !v.IsTruthy()) {
		return fallback, nil
	}
	return v, nil
}

func filterAbs(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	switch v := v.(type) {
	case *value.Int:
		if v.Value() < 0 {
			return value.NewInt(-v.Value()), nil
		}
		return v, nil
	case *value.Float:
		return value.NewFloat(math.Abs(v.Value())), nil
	}
	return nil, errors.Errorf(errors.InvalidOperation,
		"abs requires a number, got %s", v.Type())
}

func filterRound(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if err := wantArgs("round", args, 0, 1); err != nil {
		return nil, err
	}
	f, err := value.AsFloat(v)
	if err != nil {
		return nil, err
	}
	precision := int64(0)
	if len(args) == 1 {
		precision, err = argInt("round", args, 0)
		if err != nil {
			return nil, err
		}
	}
	factor := math.Pow(10, float64(precision))
	scaled := f * factor
	switch method := kwargString(kwargs, "method", "common"); method {
	case "common":
		scaled = math.Round(scaled)
	case "ceil":
		scaled = math.Ceil(scaled)
	case "floor":
		scaled = math.Floor(scaled)
	default:
		return nil, errors.Errorf(errors.InvalidOperation,
			"round: unknown method %q", method)
	}
	return value.NewFloat(scaled / factor), nil
}

func filterInt(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	fallback := func() (value.Value, error) {
		if len(args) >= 1 {
			return args[0], nil
		}
		return value.NewInt(0), nil
	}
	switch v := v.(type) {
	case *value.Int:
		return v, nil
	case *value.Float:
		return value.NewInt(int64(v.Value())), nil
	case *value.Bool:
		if v.Value() {
			return value.NewInt(1), nil
		}
		return value.NewInt(0), nil
	case *value.String:
		s := strings.TrimSpace(v.Value())
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return value.NewInt(n), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return value.NewInt(int64(f)), nil
		}
	}
	return fallback()
}

func filterFloat(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	switch v := v.(type) {
	case *value.Float:
		return v, nil
	case *value.Int:
		return value.NewFloat(float64(v.Value())), nil
	case *value.String:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.Value()), 64); err == nil {
			return value.NewFloat(f), nil
		}
	}
	if len(args) >= 1 {
		return args[0], nil
	}
	return value.NewFloat(0), nil
}

func filterString(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	return value.NewString(value.ToString(v)), nil
}

func filterList(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	items, err := collect("list", v)
	if err != nil {
		return nil, err
	}
	return value.NewSeq(items...), nil
}

func filterMin(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	return extreme("min", v, func(cmp int) bool { return cmp < 0 })
}

func filterMax(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	return extreme("max", v, func(cmp int) bool { return cmp > 0 })
}

func extreme(name string, v value.Value, better func(int) bool) (value.Value, error) {
	items, err := collect(name, v)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return value.Undef, nil
	}
	best := items[0]
	for _, item := range items[1:] {
		if better(value.Compare(item, best)) {
			best = item
		}
	}
	return best, nil
}

func filterSum(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	items, err := collect("sum", v)
	if err != nil {
		return nil, err
	}
	attr := kwargString(kwargs, "attribute", "")
	var total value.Value = value.NewInt(0)
	if kwargs != nil {
		if start, ok := kwargs.Get("start"); ok {
			total = start
		}
	}
	for _, item := range items {
		if attr != "" {
			kv, found, err := value.GetItem(item, value.NewString(attr))
			if err != nil || !found {
				return nil, errors.Errorf(errors.InvalidOperation,
					"sum: item has no attribute %q", attr)
			}
			item = kv
		}
		total, err = value.BinaryOp(value.OpAdd, total, item)
		if err != nil {
			return nil, err
		}
	}
	return total, nil
}

func filterUnique(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	items, err := collect("unique", v)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	out := value.NewSeqWithCapacity(len(items))
	for _, item := range items {
		key := string(item.Type()) + ":" + item.Inspect()
		if seen[key] {
			continue
		}
		seen[key] = true
		out.Append(item)
	}
	return out, nil
}

func filterBatch(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if err := wantArgs("batch", args, 1, 2); err != nil {
		return nil, err
	}
	size, err := argInt("batch", args, 0)
	if err != nil {
		return nil, err
	}
	if size < 1 {
		return nil, errors.New(errors.InvalidOperation, "batch size must be positive")
	}
	var fill value.Value
	if len(args) == 2 {
		fill = args[1]
	}
	items, err := collect("batch", v)
	if err != nil {
		return nil, err
	}
	out := value.NewSeq()
	for start := 0; start < len(items); start += int(size) {
		end := start + int(size)
		if end > len(items) {
			end = len(items)
		}
		group := value.NewSeqWithCapacity(int(size))
		for _, item := range items[start:end] {
			group.Append(item)
		}
		if fill != nil {
			for group.Len() < int(size) {
				group.Append(fill)
			}
		}
		out.Append(group)
	}
	return out, nil
}

// filterSlice splits an iterable into n roughly equal columns, the way a
// multi-column layout wants them.
func filterSlice(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if err := wantArgs("slice", args, 1, 2); err != nil {
		return nil, err
	}
	n, err := argInt("slice", args, 0)
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, errors.New(errors.InvalidOperation, "slice count must be positive")
	}
	var fill value.Value
	if len(args) == 2 {
		fill = args[1]
	}
	items, err := collect("slice", v)
	if err != nil {
		return nil, err
	}
	perSlice := len(items) / int(n)
	withExtra := len(items) % int(n)
	out := value.NewSeq()
	offset := 0
	for i := 0; i < int(n); i++ {
		size := perSlice
		if i < withExtra {
			size++
		}
		column := value.NewSeqWithCapacity(size)
		for _, item := range items[offset : offset+size] {
			column.Append(item)
		}
		offset += size
		if fill != nil && i >= withExtra && withExtra > 0 {
			column.Append(fill)
		}
		out.Append(column)
	}
	return out, nil
}

func filterItems(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	var mp *value.Map
	switch v := v.(type) {
	case *value.Map:
		mp = v
	case *value.Kwargs:
		mp = v.Map()
	default:
		return nil, errors.Errorf(errors.InvalidOperation,
			"items requires a map, got %s", v.Type())
	}
	out := value.NewSeqWithCapacity(mp.Len())
	for _, p := range mp.Pairs() {
		out.Append(value.NewSeq(p.Key, p.Val))
	}
	return out, nil
}

func filterToJSON(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	var (
		data []byte
		err  error
	)
	if indent := kwargString(kwargs, "indent", ""); indent != "" {
		n, convErr := strconv.Atoi(indent)
		if convErr != nil {
			return nil, errors.Errorf(errors.InvalidOperation,
				"tojson: invalid indent %q", indent)
		}
		data, err = json.MarshalIndent(v.Interface(), "", strings.Repeat(" ", n))
	} else {
		data, err = json.Marshal(v.Interface())
	}
	if err != nil {
		return nil, errors.Errorf(errors.InvalidOperation,
			"tojson: %s", err)
	}
	// encoding/json escapes <, >, and & so the result is HTML safe
	return value.NewSafeString(string(data)), nil
}

func filterIndent(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if err := wantArgs("indent", args, 1, 1); err != nil {
		return nil, err
	}
	width, err := argInt("indent", args, 0)
	if err != nil {
		return nil, err
	}
	indentFirst := kwargBool(kwargs, "first", false)
	indentBlank := kwargBool(kwargs, "blank", false)
	prefix := strings.Repeat(" ", int(width))
	lines := strings.Split(value.ToString(v), "\n")
	for i, line := range lines {
		if i == 0 && !indentFirst {
			continue
		}
		if line == "" && !indentBlank {
			continue
		}
		lines[i] = prefix + line
	}
	return value.NewString(strings.Join(lines, "\n")), nil
}

func filterTruncate(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if err := wantArgs("truncate", args, 0, 1); err != nil {
		return nil, err
	}
	length := int64(255)
	if len(args) == 1 {
		var err error
		length, err = argInt("truncate", args, 0)
		if err != nil {
			return nil, err
		}
	}
	killwords := kwargBool(kwargs, "killwords", false)
	end := kwargString(kwargs, "end", "...")
	runes := []rune(value.ToString(v))
	if int64(len(runes)) <= length {
		return value.NewString(string(runes)), nil
	}
	keep := length - int64(len([]rune(end)))
	if keep < 0 {
		keep = 0
	}
	cut := string(runes[:keep])
	// Only drop a trailing partial word; a cut that lands on a word
	// boundary keeps every whole word.
	if !killwords && keep < int64(len(runes)) && runes[keep] != ' ' {
		if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
			cut = cut[:idx]
		}
	}
	return value.NewString(cut + end), nil
}

func filterURLEncode(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if mp, ok := v.(*value.Map); ok {
		parts := make([]string, 0, mp.Len())
		for _, p := range mp.Pairs() {
			parts = append(parts,
				url.QueryEscape(value.ToString(p.Key))+"="+url.QueryEscape(value.ToString(p.Val)))
		}
		return value.NewString(strings.Join(parts, "&")), nil
	}
	return value.NewString(url.QueryEscape(value.ToString(v))), nil
}

func filterJMESPath(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	if err := wantArgs("jmespath", args, 1, 1); err != nil {
		return nil, err
	}
	expr, err := argString("jmespath", args, 0)
	if err != nil {
		return nil, err
	}
	result, err := jmespath.Search(expr, v.Interface())
	if err != nil {
		return nil, errors.Errorf(errors.InvalidOperation,
			"jmespath: %s", err)
	}
	return value.FromGoValue(result), nil
}
