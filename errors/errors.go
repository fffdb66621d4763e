// Package errors defines the structured error type shared by the lexer,
// parser, compiler, virtual machine, and environment.
package errors

import (
	"fmt"
	"strings"
)

// Kind enumerates the categories of errors the engine can produce.
type Kind int

const (
	// Unknown is the zero value and indicates an uncategorized error.
	Unknown Kind = iota

	// SyntaxError indicates the lexer or parser rejected the template source.
	SyntaxError

	// CompileError indicates the AST could not be lowered to bytecode.
	CompileError

	// TemplateNotFound indicates a template name could not be resolved.
	TemplateNotFound

	// UnknownFilter indicates a filter name was not registered.
	UnknownFilter

	// UnknownTest indicates a test name was not registered.
	UnknownTest

	// UnknownFunction indicates a function name was not registered.
	UnknownFunction

	// UnknownBlock indicates a block name was not present in a template.
	UnknownBlock

	// UndefinedError indicates an operation on an undefined value in
	// strict mode.
	UndefinedError

	// InvalidOperation indicates a type mismatch in an operator, filter,
	// test, or function.
	InvalidOperation

	// TooComplex indicates the recursion depth or step ceiling was exceeded.
	TooComplex

	// BadInclude indicates an included template failed to resolve or render.
	BadInclude

	// BadExtends indicates a parent template failed to resolve or render.
	BadExtends

	// CannotUnpack indicates a tuple-unpacking target did not match the
	// shape of the unpacked value.
	CannotUnpack
)

// String returns a human readable name for the error kind.
func (k Kind) String() string {
	switch k {
	case SyntaxError:
		return "syntax error"
	case CompileError:
		return "compile error"
	case TemplateNotFound:
		return "template not found"
	case UnknownFilter:
		return "unknown filter"
	case UnknownTest:
		return "unknown test"
	case UnknownFunction:
		return "unknown function"
	case UnknownBlock:
		return "unknown block"
	case UndefinedError:
		return "undefined value"
	case InvalidOperation:
		return "invalid operation"
	case TooComplex:
		return "too complex"
	case BadInclude:
		return "bad include"
	case BadExtends:
		return "bad extends"
	case CannotUnpack:
		return "cannot unpack"
	default:
		return "error"
	}
}

// Error is the structured error produced by every fallible operation in the
// engine. It carries the error kind, the template name and line where the
// error surfaced, the byte offset for lexer errors, and an optional cause
// forming a "rendered from" chain across template boundaries.
type Error struct {
	kind     Kind
	message  string
	template string
	line     int
	offset   int
	hasPos   bool
	cause    error
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Errorf creates an error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Kind returns the category of this error.
func (e *Error) Kind() Kind {
	return e.kind
}

// Message returns the error message without location information.
func (e *Error) Message() string {
	return e.message
}

// Template returns the name of the template the error occurred in, if known.
func (e *Error) Template() string {
	return e.template
}

// Line returns the 1-based source line the error occurred on, or 0.
func (e *Error) Line() int {
	return e.line
}

// Offset returns the byte offset into the template source, if recorded.
func (e *Error) Offset() int {
	return e.offset
}

// HasLocation returns true if a source location has been attached.
func (e *Error) HasLocation() bool {
	return e.hasPos
}

// WithTemplate attaches a template name if one is not already set and
// returns the error.
func (e *Error) WithTemplate(name string) *Error {
	if e.template == "" {
		e.template = name
	}
	return e
}

// WithLocation attaches a line number and byte offset if a location is not
// already set and returns the error. Errors keep the innermost location.
func (e *Error) WithLocation(line, offset int) *Error {
	if !e.hasPos {
		e.line = line
		e.offset = offset
		e.hasPos = true
	}
	return e
}

// WithCause attaches an underlying cause and returns the error.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Cause returns the underlying cause, if any.
func (e *Error) Cause() error {
	return e.cause
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.kind.String())
	b.WriteString(": ")
	b.WriteString(e.message)
	if e.template != "" || e.hasPos {
		b.WriteString(" (in ")
		if e.template != "" {
			b.WriteString(e.template)
		} else {
			b.WriteString("<string>")
		}
		if e.hasPos {
			fmt.Fprintf(&b, ":%d", e.line)
		}
		b.WriteString(")")
	}
	if e.cause != nil {
		b.WriteString("\nrendered from: ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.kind == kind
}
