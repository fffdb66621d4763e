package vm

import (
	"io"
	"strings"
)

// Output collects rendered text. Captures nest: set blocks, filter blocks,
// macro calls, and super() capture into a buffer, while the body of a child
// template that extends a parent renders into a discarding capture.
type Output struct {
	w        io.Writer
	base     strings.Builder
	captures []*capture
	err      error
}

type capture struct {
	discard bool
	buf     strings.Builder
}

// NewOutput returns an Output that buffers everything in memory.
func NewOutput() *Output {
	return &Output{}
}

// NewStreamingOutput returns an Output that writes uncaptured text straight
// to w. Captured sections still buffer in memory until their capture ends.
func NewStreamingOutput(w io.Writer) *Output {
	return &Output{w: w}
}

// WriteString appends text to the innermost capture, or to the base output
// when no capture is active.
func (o *Output) WriteString(s string) {
	if n := len(o.captures); n > 0 {
		top := o.captures[n-1]
		if !top.discard {
			top.buf.WriteString(s)
		}
		return
	}
	if o.w != nil {
		if o.err == nil {
			_, o.err = io.WriteString(o.w, s)
		}
		return
	}
	o.base.WriteString(s)
}

func (o *Output) beginCapture(discard bool) {
	o.captures = append(o.captures, &capture{discard: discard})
}

func (o *Output) endCapture() string {
	n := len(o.captures)
	top := o.captures[n-1]
	o.captures = o.captures[:n-1]
	return top.buf.String()
}

// String returns the buffered output. It is empty for streaming outputs.
func (o *Output) String() string {
	return o.base.String()
}

// Err returns the first error reported by the underlying writer, if any.
func (o *Output) Err() error {
	return o.err
}
