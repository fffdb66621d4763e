// Package vellum is an embeddable template engine with Jinja-style syntax.
// Templates compile to bytecode once and render many times; an Environment
// owns the compiled templates, the filter, test, and function registries,
// and the rendering policy (escaping, undefined handling, limits).
//
// Basic usage:
//
//	env := vellum.New()
//	tmpl, err := env.AddTemplate("hello.html", "Hello {{ name }}!")
//	if err != nil {
//		return err
//	}
//	out, err := tmpl.Render(map[string]any{"name": "world"})
package vellum

import (
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/cloudcmds/vellum/builtins"
	"github.com/cloudcmds/vellum/compiler"
	"github.com/cloudcmds/vellum/errors"
	"github.com/cloudcmds/vellum/lexer"
	"github.com/cloudcmds/vellum/parser"
	"github.com/cloudcmds/vellum/value"
	"github.com/cloudcmds/vellum/vm"
)

// Loader resolves a template name to its source when the template has not
// been added explicitly. Returning false means the template does not exist.
type Loader func(name string) (string, bool)

// AutoEscapePolicy decides the initial escaping mode for a template by name.
type AutoEscapePolicy func(templateName string) vm.AutoEscapeMode

// DefaultAutoEscape enables HTML escaping for templates whose name carries
// an HTML or XML file extension.
func DefaultAutoEscape(templateName string) vm.AutoEscapeMode {
	switch filepath.Ext(templateName) {
	case ".html", ".htm", ".xml":
		return vm.EscapeHTML
	}
	return vm.EscapeNone
}

const (
	defaultRecursionLimit = 500
)

// Environment holds compiled templates, registries, and rendering policy.
// Registration methods and rendering may be called from multiple goroutines;
// renders that run concurrently with registration see a consistent snapshot
// of the registries.
type Environment struct {
	mu        sync.RWMutex
	templates map[string]*Template
	filters   map[string]vm.FilterFunc
	tests     map[string]vm.TestFunc
	functions map[string]vm.FunctionFunc
	globals   map[string]value.Value

	loader         Loader
	autoEscape     AutoEscapePolicy
	undefined      vm.UndefinedBehavior
	recursionLimit int
	fuel           uint64

	syntax              *lexer.Syntax
	trimBlocks          bool
	lstripBlocks        bool
	keepTrailingNewline bool
}

// Option configures an Environment.
type Option func(*Environment)

// WithLoader installs a source loader used by GetTemplate, include, import,
// and extends when a template was not added explicitly. Loaded templates are
// compiled once and cached.
func WithLoader(loader Loader) Option {
	return func(e *Environment) { e.loader = loader }
}

// WithAutoEscapePolicy replaces the per-template escaping decision. The
// default escapes templates named with .html, .htm, or .xml extensions.
func WithAutoEscapePolicy(policy AutoEscapePolicy) Option {
	return func(e *Environment) { e.autoEscape = policy }
}

// WithAutoEscape forces the same escaping mode for every template,
// regardless of name.
func WithAutoEscape(mode vm.AutoEscapeMode) Option {
	return func(e *Environment) {
		e.autoEscape = func(string) vm.AutoEscapeMode { return mode }
	}
}

// WithUndefinedBehavior selects how undefined values behave. The default is
// Lenient: undefined renders as empty and propagates silently.
func WithUndefinedBehavior(b vm.UndefinedBehavior) Option {
	return func(e *Environment) { e.undefined = b }
}

// WithRecursionLimit bounds nesting depth across scopes, macro calls,
// includes, and extends chains.
func WithRecursionLimit(limit int) Option {
	return func(e *Environment) { e.recursionLimit = limit }
}

// WithFuel bounds the number of instructions a single render may execute.
// Zero means unlimited.
func WithFuel(fuel uint64) Option {
	return func(e *Environment) { e.fuel = fuel }
}

// WithSyntax sets custom tag delimiters for all templates compiled by this
// environment.
func WithSyntax(s lexer.Syntax) Option {
	return func(e *Environment) { e.syntax = &s }
}

// WithTrimBlocks removes the first newline after each block tag.
func WithTrimBlocks() Option {
	return func(e *Environment) { e.trimBlocks = true }
}

// WithLstripBlocks strips leading whitespace from lines that start with a
// block tag.
func WithLstripBlocks() Option {
	return func(e *Environment) { e.lstripBlocks = true }
}

// WithKeepTrailingNewline preserves the trailing newline of template source,
// which is otherwise removed.
func WithKeepTrailingNewline() Option {
	return func(e *Environment) { e.keepTrailingNewline = true }
}

// WithGlobal adds a variable visible to every template. The value is
// converted with the same rules as render contexts.
func WithGlobal(name string, v any) Option {
	return func(e *Environment) { e.globals[name] = value.FromGoValue(v) }
}

// New returns an Environment preloaded with the default filters, tests, and
// functions.
func New(opts ...Option) *Environment {
	e := &Environment{
		templates:      map[string]*Template{},
		filters:        builtins.Filters(),
		tests:          builtins.Tests(),
		functions:      builtins.Functions(),
		globals:        map[string]value.Value{},
		autoEscape:     DefaultAutoEscape,
		recursionLimit: defaultRecursionLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// RegisterFilter makes a filter callable from templates. Registering a name
// again replaces the previous implementation, including builtins.
func (e *Environment) RegisterFilter(name string, fn vm.FilterFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filters[name] = fn
}

// RegisterTest makes a test usable with the is operator.
func (e *Environment) RegisterTest(name string, fn vm.TestFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tests[name] = fn
}

// RegisterFunction makes a function callable from templates.
func (e *Environment) RegisterFunction(name string, fn vm.FunctionFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.functions[name] = fn
}

// AddGlobal adds a variable visible to every template. Template-local
// variables and render context entries shadow globals of the same name.
func (e *Environment) AddGlobal(name string, v any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.globals[name] = value.FromGoValue(v)
}

// AddTemplate compiles source and stores it under name, replacing any
// previous template with that name.
func (e *Environment) AddTemplate(name, source string) (*Template, error) {
	tmpl, err := e.compile(name, source)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.templates[name] = tmpl
	e.mu.Unlock()
	return tmpl, nil
}

// GetTemplate returns the named template, consulting the loader for source
// on first use. It returns a TemplateNotFound error when neither the cache
// nor the loader knows the name.
func (e *Environment) GetTemplate(name string) (*Template, error) {
	e.mu.RLock()
	tmpl, ok := e.templates[name]
	loader := e.loader
	e.mu.RUnlock()
	if ok {
		return tmpl, nil
	}
	if loader == nil {
		return nil, errors.Errorf(errors.TemplateNotFound,
			"template %q not found", name).WithTemplate(name)
	}
	source, ok := loader(name)
	if !ok {
		return nil, errors.Errorf(errors.TemplateNotFound,
			"template %q not found", name).WithTemplate(name)
	}
	tmpl, err := e.compile(name, source)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	// Another goroutine may have loaded it first; keep the stored copy.
	if cached, ok := e.templates[name]; ok {
		tmpl = cached
	} else {
		e.templates[name] = tmpl
	}
	e.mu.Unlock()
	return tmpl, nil
}

// Render renders the named template with the given context. The context may
// be nil, a map[string]any, or a *value.Map.
func (e *Environment) Render(name string, ctx any) (string, error) {
	tmpl, err := e.GetTemplate(name)
	if err != nil {
		return "", err
	}
	return tmpl.Render(ctx)
}

// RenderString compiles and renders source in one step without caching it.
// Inline templates never auto-escape unless the environment forces a mode.
func (e *Environment) RenderString(source string, ctx any) (string, error) {
	tmpl, err := e.compile("<string>", source)
	if err != nil {
		return "", err
	}
	return tmpl.Render(ctx)
}

func (e *Environment) compile(name, source string) (*Template, error) {
	tree, err := parser.Parse(source, e.lexerOptions()...)
	if err != nil {
		switch err := err.(type) {
		case *errors.Error:
			err.WithTemplate(name)
		case *multierror.Error:
			for _, sub := range err.Errors {
				if terr, ok := sub.(*errors.Error); ok {
					terr.WithTemplate(name)
				}
			}
		}
		return nil, err
	}
	prog, err := compiler.Compile(tree, name)
	if err != nil {
		return nil, err
	}
	return &Template{env: e, name: name, source: source, prog: prog}, nil
}

func (e *Environment) lexerOptions() []lexer.Option {
	var opts []lexer.Option
	if e.syntax != nil {
		opts = append(opts, lexer.WithSyntax(*e.syntax))
	}
	if e.trimBlocks {
		opts = append(opts, lexer.WithTrimBlocks())
	}
	if e.lstripBlocks {
		opts = append(opts, lexer.WithLstripBlocks())
	}
	if e.keepTrailingNewline {
		opts = append(opts, lexer.WithKeepTrailingNewline())
	}
	return opts
}

// The methods below implement vm.Env. Filters, tests, and functions resolve
// at render time, so late registrations are honored.

func (e *Environment) LookupFilter(name string) (vm.FilterFunc, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.filters[name]
	return fn, ok
}

func (e *Environment) LookupTest(name string) (vm.TestFunc, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.tests[name]
	return fn, ok
}

func (e *Environment) LookupFunction(name string) (vm.FunctionFunc, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.functions[name]
	return fn, ok
}

func (e *Environment) LookupGlobal(name string) (value.Value, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.globals[name]
	return v, ok
}

func (e *Environment) GetProgram(name string) (*compiler.Program, error) {
	tmpl, err := e.GetTemplate(name)
	if err != nil {
		return nil, err
	}
	return tmpl.prog, nil
}

func (e *Environment) UndefinedBehavior() vm.UndefinedBehavior {
	return e.undefined
}

func (e *Environment) InitialAutoEscape(templateName string) vm.AutoEscapeMode {
	return e.autoEscape(templateName)
}

func (e *Environment) RecursionLimit() int { return e.recursionLimit }

func (e *Environment) Fuel() uint64 { return e.fuel }

var _ vm.Env = (*Environment)(nil)
