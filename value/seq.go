package value

import "strings"

// Seq is an ordered sequence of values.
type Seq struct {
	items []Value
}

// NewSeq returns a Seq containing the given items.
func NewSeq(items ...Value) *Seq {
	return &Seq{items: items}
}

// NewSeqWithCapacity returns an empty Seq with the given capacity hint.
func NewSeqWithCapacity(capacity int) *Seq {
	return &Seq{items: make([]Value, 0, capacity)}
}

// Items returns the underlying item slice.
func (s *Seq) Items() []Value {
	return s.items
}

// Len returns the number of items.
func (s *Seq) Len() int {
	return len(s.items)
}

// Get returns the item at the given index. Negative indices count from the
// end, matching the template language convention.
func (s *Seq) Get(index int64) (Value, bool) {
	idx := index
	if idx < 0 {
		idx += int64(len(s.items))
	}
	if idx < 0 || idx >= int64(len(s.items)) {
		return nil, false
	}
	return s.items[idx], true
}

// Append adds an item to the end of the sequence.
func (s *Seq) Append(item Value) {
	s.items = append(s.items, item)
}

func (s *Seq) Type() Type     { return SEQ }
func (s *Seq) IsTruthy() bool { return len(s.items) > 0 }

func (s *Seq) Inspect() string {
	var b strings.Builder
	b.WriteString("[")
	for i, item := range s.items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(item.Inspect())
	}
	b.WriteString("]")
	return b.String()
}

func (s *Seq) Interface() any {
	items := make([]any, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item.Interface())
	}
	return items
}

func (s *Seq) Equals(other Value) bool {
	o, ok := other.(*Seq)
	if !ok || len(s.items) != len(o.items) {
		return false
	}
	for i, item := range s.items {
		if !item.Equals(o.items[i]) {
			return false
		}
	}
	return true
}
