package value

import "github.com/cloudcmds/vellum/errors"

func newNotIterable(v Value) error {
	return errors.Errorf(errors.InvalidOperation, "%s is not iterable", v.Type())
}

// Iterator walks over the items of an iterable value.
type Iterator interface {
	// Next returns the next item, or false when the iteration is done.
	Next() (Value, bool)

	// Len returns the number of items remaining, or -1 if unknown.
	Len() int
}

// Iter returns an iterator over the given value: sequence items, map keys,
// string characters, or the items of an iterable host object. Undefined
// iterates as empty so lenient mode can loop over missing values.
func Iter(v Value) (Iterator, error) {
	switch v := v.(type) {
	case *Seq:
		return &seqIterator{items: v.Items()}, nil
	case *Map:
		return &seqIterator{items: v.Keys()}, nil
	case *Kwargs:
		return &seqIterator{items: v.Map().Keys()}, nil
	case *String:
		runes := []rune(v.Value())
		items := make([]Value, len(runes))
		for i, r := range runes {
			items[i] = NewString(string(r))
		}
		return &seqIterator{items: items}, nil
	case *Bytes:
		data := v.Value()
		items := make([]Value, len(data))
		for i, b := range data {
			items[i] = NewInt(int64(b))
		}
		return &seqIterator{items: items}, nil
	case *Undefined:
		return &seqIterator{}, nil
	case *Dynamic:
		if it, ok := v.obj.(Iterable); ok {
			return it.Iter(), nil
		}
	default:
		if it, ok := v.(Iterable); ok {
			return it.Iter(), nil
		}
	}
	return nil, newNotIterable(v)
}

type seqIterator struct {
	items []Value
	pos   int
}

func (s *seqIterator) Next() (Value, bool) {
	if s.pos >= len(s.items) {
		return nil, false
	}
	item := s.items[s.pos]
	s.pos++
	return item, true
}

func (s *seqIterator) Len() int {
	return len(s.items) - s.pos
}

// NewSliceIterator returns an iterator over the given items.
func NewSliceIterator(items []Value) Iterator {
	return &seqIterator{items: items}
}

// PeekIterator wraps an iterator with one item of lookahead, so a consumer
// can tell whether the current item is the last one.
type PeekIterator struct {
	inner   Iterator
	peeked  Value
	hasPeek bool
}

// NewPeekIterator wraps the given iterator with lookahead support.
func NewPeekIterator(inner Iterator) *PeekIterator {
	return &PeekIterator{inner: inner}
}

func (p *PeekIterator) Next() (Value, bool) {
	if p.hasPeek {
		p.hasPeek = false
		item := p.peeked
		p.peeked = nil
		return item, true
	}
	return p.inner.Next()
}

// Peek returns the next item without consuming it.
func (p *PeekIterator) Peek() (Value, bool) {
	if !p.hasPeek {
		p.peeked, p.hasPeek = p.inner.Next()
		if !p.hasPeek {
			return nil, false
		}
	}
	return p.peeked, true
}

func (p *PeekIterator) Len() int {
	n := p.inner.Len()
	if n < 0 {
		return -1
	}
	if p.hasPeek {
		n++
	}
	return n
}

// Collect drains an iterator into a sequence.
func Collect(it Iterator) *Seq {
	n := it.Len()
	if n < 0 {
		n = 0
	}
	out := NewSeqWithCapacity(n)
	for {
		item, ok := it.Next()
		if !ok {
			return out
		}
		out.Append(item)
	}
}
