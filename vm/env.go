// Package vm executes compiled template programs.
package vm

import (
	"github.com/cloudcmds/vellum/compiler"
	"github.com/cloudcmds/vellum/value"
)

// FilterFunc transforms a value. Positional arguments and keyword arguments
// follow the piped input value.
type FilterFunc func(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error)

// TestFunc checks a property of a value.
type TestFunc func(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error)

// FunctionFunc is a global function callable from templates.
type FunctionFunc func(args []value.Value, kwargs *value.Kwargs) (value.Value, error)

// UndefinedBehavior selects how operations on undefined values behave.
type UndefinedBehavior int

const (
	// Lenient renders undefined as empty and propagates it silently
	// through attribute access and arithmetic.
	Lenient UndefinedBehavior = iota

	// Strict fails any use of an undefined value other than existence
	// checks.
	Strict
)

// AutoEscapeMode is the escaping applied to emitted values.
type AutoEscapeMode int

const (
	EscapeNone AutoEscapeMode = iota
	EscapeHTML
)

// Env is the machine's view of the environment: late-bound registries,
// template resolution, and execution policy. Filters, tests, and functions
// resolve at call time, so registrations made after compilation but before
// rendering are honored.
type Env interface {
	LookupFilter(name string) (FilterFunc, bool)
	LookupTest(name string) (TestFunc, bool)
	LookupFunction(name string) (FunctionFunc, bool)
	LookupGlobal(name string) (value.Value, bool)

	// GetProgram resolves a template name to its compiled program, for
	// include, extends, and import.
	GetProgram(name string) (*compiler.Program, error)

	UndefinedBehavior() UndefinedBehavior

	// InitialAutoEscape returns the escaping mode a template starts in,
	// typically decided by file extension.
	InitialAutoEscape(templateName string) AutoEscapeMode

	// RecursionLimit bounds nesting depth across frames, macro calls,
	// includes, and extends chains.
	RecursionLimit() int

	// Fuel bounds the total instruction count per render. Zero means
	// unlimited.
	Fuel() uint64
}
