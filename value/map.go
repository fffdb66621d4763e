package value

import "strings"

// Pair is one key-value entry in a Map.
type Pair struct {
	Key Value
	Val Value
}

// Map is an insertion-ordered mapping from values to values. Keys are
// typically strings. Hashable keys (primitives) are indexed; other keys
// fall back to a linear scan using value equality.
type Map struct {
	pairs []Pair
	index map[string]int
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{index: map[string]int{}}
}

// NewMapWithCapacity returns an empty Map with the given capacity hint.
func NewMapWithCapacity(capacity int) *Map {
	return &Map{
		pairs: make([]Pair, 0, capacity),
		index: make(map[string]int, capacity),
	}
}

// hashKey returns a canonical index key for hashable values.
func hashKey(v Value) (string, bool) {
	switch v := v.(type) {
	case *String:
		return "s:" + v.Value(), true
	case *Int:
		return "i:" + v.Inspect(), true
	case *Float:
		return "f:" + v.Inspect(), true
	case *Bool:
		return "b:" + v.Inspect(), true
	case *NoneType:
		return "n:", true
	default:
		return "", false
	}
}

// Set stores a value under the given key, replacing any existing entry and
// preserving the original insertion position.
func (m *Map) Set(key, val Value) {
	if hk, ok := hashKey(key); ok {
		if pos, exists := m.index[hk]; exists {
			m.pairs[pos].Val = val
			return
		}
		m.index[hk] = len(m.pairs)
		m.pairs = append(m.pairs, Pair{Key: key, Val: val})
		return
	}
	for i := range m.pairs {
		if m.pairs[i].Key.Equals(key) {
			m.pairs[i].Val = val
			return
		}
	}
	m.pairs = append(m.pairs, Pair{Key: key, Val: val})
}

// SetString stores a value under a string key.
func (m *Map) SetString(key string, val Value) {
	m.Set(NewString(key), val)
}

// Get returns the value stored under the given key.
func (m *Map) Get(key Value) (Value, bool) {
	if hk, ok := hashKey(key); ok {
		if pos, exists := m.index[hk]; exists {
			return m.pairs[pos].Val, true
		}
		return nil, false
	}
	for i := range m.pairs {
		if m.pairs[i].Key.Equals(key) {
			return m.pairs[i].Val, true
		}
	}
	return nil, false
}

// GetString returns the value stored under a string key.
func (m *Map) GetString(key string) (Value, bool) {
	if pos, exists := m.index["s:"+key]; exists {
		return m.pairs[pos].Val, true
	}
	return nil, false
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.pairs)
}

// Pairs returns the entries in insertion order.
func (m *Map) Pairs() []Pair {
	return m.pairs
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []Value {
	keys := make([]Value, 0, len(m.pairs))
	for _, p := range m.pairs {
		keys = append(keys, p.Key)
	}
	return keys
}

func (m *Map) Type() Type     { return MAP }
func (m *Map) IsTruthy() bool { return len(m.pairs) > 0 }

func (m *Map) Inspect() string {
	var b strings.Builder
	b.WriteString("{")
	for i, p := range m.pairs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Key.Inspect())
		b.WriteString(": ")
		b.WriteString(p.Val.Inspect())
	}
	b.WriteString("}")
	return b.String()
}

func (m *Map) Interface() any {
	out := make(map[string]any, len(m.pairs))
	for _, p := range m.pairs {
		out[ToString(p.Key)] = p.Val.Interface()
	}
	return out
}

func (m *Map) Equals(other Value) bool {
	o, ok := other.(*Map)
	if !ok || len(m.pairs) != len(o.pairs) {
		return false
	}
	for _, p := range m.pairs {
		ov, found := o.Get(p.Key)
		if !found || !p.Val.Equals(ov) {
			return false
		}
	}
	return true
}

// Kwargs wraps a Map holding keyword arguments passed to a filter, test,
// function, or macro call. It is a distinct type so callees can tell the
// trailing keyword-argument map apart from an ordinary map argument.
type Kwargs struct {
	m *Map
}

// NewKwargs wraps the given map as keyword arguments.
func NewKwargs(m *Map) *Kwargs {
	if m == nil {
		m = NewMap()
	}
	return &Kwargs{m: m}
}

// Get returns the keyword argument with the given name.
func (k *Kwargs) Get(name string) (Value, bool) {
	return k.m.GetString(name)
}

// Names returns the keyword argument names in insertion order.
func (k *Kwargs) Names() []string {
	names := make([]string, 0, k.m.Len())
	for _, p := range k.m.Pairs() {
		names = append(names, ToString(p.Key))
	}
	return names
}

// Len returns the number of keyword arguments.
func (k *Kwargs) Len() int {
	return k.m.Len()
}

// Map returns the underlying map.
func (k *Kwargs) Map() *Map {
	return k.m
}

func (k *Kwargs) Type() Type          { return KWARGS }
func (k *Kwargs) Inspect() string     { return k.m.Inspect() }
func (k *Kwargs) Interface() any      { return k.m.Interface() }
func (k *Kwargs) IsTruthy() bool      { return k.m.IsTruthy() }
func (k *Kwargs) Equals(o Value) bool { return k.m.Equals(o) }
