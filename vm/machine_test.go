package vm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudcmds/vellum/compiler"
	"github.com/cloudcmds/vellum/errors"
	"github.com/cloudcmds/vellum/parser"
	"github.com/cloudcmds/vellum/value"
)

// testEnv is a minimal Env with a handful of filters, tests, and functions.
type testEnv struct {
	programs  map[string]*compiler.Program
	strict    bool
	htmlAuto  bool
	fuel      uint64
	recursion int
}

func newTestEnv() *testEnv {
	return &testEnv{
		programs:  map[string]*compiler.Program{},
		recursion: 100,
	}
}

func (e *testEnv) add(t *testing.T, name, source string) {
	t.Helper()
	tmpl, err := parser.Parse(source)
	require.Nil(t, err)
	prog, err := compiler.Compile(tmpl, name)
	require.Nil(t, err)
	e.programs[name] = prog
}

func (e *testEnv) LookupFilter(name string) (FilterFunc, bool) {
	switch name {
	case "upper":
		return func(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
			return value.NewString(strings.ToUpper(value.ToString(v))), nil
		}, true
	case "join":
		return func(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
			sep := ""
			if len(args) > 0 {
				sep = value.ToString(args[0])
			}
			it, err := value.Iter(v)
			if err != nil {
				return nil, err
			}
			var parts []string
			for {
				item, ok := it.Next()
				if !ok {
					break
				}
				parts = append(parts, value.ToString(item))
			}
			return value.NewString(strings.Join(parts, sep)), nil
		}, true
	case "default":
		return func(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
			if value.IsUndefined(v) && len(args) > 0 {
				return args[0], nil
			}
			return v, nil
		}, true
	}
	return nil, false
}

func (e *testEnv) LookupTest(name string) (TestFunc, bool) {
	switch name {
	case "defined":
		return func(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
			return !value.IsUndefined(v), nil
		}, true
	case "odd":
		return func(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
			n, err := value.AsInt(v)
			if err != nil {
				return false, err
			}
			return n%2 != 0, nil
		}, true
	}
	return nil, false
}

func (e *testEnv) LookupFunction(name string) (FunctionFunc, bool) {
	switch name {
	case "namespace":
		return func(args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
			return value.NewNamespace(kwargs), nil
		}, true
	case "range":
		return func(args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
			n, err := value.AsInt(args[0])
			if err != nil {
				return nil, err
			}
			out := value.NewSeqWithCapacity(int(n))
			for i := int64(0); i < n; i++ {
				out.Append(value.NewInt(i))
			}
			return out, nil
		}, true
	}
	return nil, false
}

func (e *testEnv) LookupGlobal(name string) (value.Value, bool) {
	return nil, false
}

func (e *testEnv) GetProgram(name string) (*compiler.Program, error) {
	if p, ok := e.programs[name]; ok {
		return p, nil
	}
	return nil, errors.Errorf(errors.TemplateNotFound, "template %q not found", name)
}

func (e *testEnv) UndefinedBehavior() UndefinedBehavior {
	if e.strict {
		return Strict
	}
	return Lenient
}

func (e *testEnv) InitialAutoEscape(string) AutoEscapeMode {
	if e.htmlAuto {
		return EscapeHTML
	}
	return EscapeNone
}

func (e *testEnv) RecursionLimit() int { return e.recursion }
func (e *testEnv) Fuel() uint64       { return e.fuel }

func render(t *testing.T, env *testEnv, source string, ctx map[string]any) (string, error) {
	t.Helper()
	env.add(t, "test.html", source)
	vctx := value.NewMap()
	for k, v := range ctx {
		vctx.SetString(k, value.FromGoValue(v))
	}
	out := NewOutput()
	err := Run(env, env.programs["test.html"], vctx, out)
	return out.String(), err
}

func mustRender(t *testing.T, env *testEnv, source string, ctx map[string]any) string {
	t.Helper()
	s, err := render(t, env, source, ctx)
	require.Nil(t, err)
	return s
}

func TestRenderText(t *testing.T) {
	require.Equal(t, "hello world", mustRender(t, newTestEnv(), "hello world", nil))
}

func TestRenderVariable(t *testing.T) {
	out := mustRender(t, newTestEnv(), "Hello {{ name }}!", map[string]any{"name": "peter"})
	require.Equal(t, "Hello peter!", out)
}

func TestArithmetic(t *testing.T) {
	env := newTestEnv()
	require.Equal(t, "7", mustRender(t, env, "{{ 1 + 2 * 3 }}", nil))
	require.Equal(t, "2.5", mustRender(t, env, "{{ 5 / 2 }}", nil))
	require.Equal(t, "2", mustRender(t, env, "{{ 5 // 2 }}", nil))
	require.Equal(t, "-4", mustRender(t, env, "{{ -2 ** 2 }}", nil))
	require.Equal(t, "ab", mustRender(t, env, `{{ "a" ~ "b" }}`, nil))
}

func TestConditional(t *testing.T) {
	env := newTestEnv()
	src := "{% if n is odd %}odd{% elif n == 0 %}zero{% else %}even{% endif %}"
	require.Equal(t, "odd", mustRender(t, env, src, map[string]any{"n": 3}))
	require.Equal(t, "zero", mustRender(t, env, src, map[string]any{"n": 0}))
	require.Equal(t, "even", mustRender(t, env, src, map[string]any{"n": 2}))
}

func TestTernary(t *testing.T) {
	env := newTestEnv()
	out := mustRender(t, env, `{{ "yes" if ok else "no" }}`, map[string]any{"ok": true})
	require.Equal(t, "yes", out)
	// Without an else branch the result is undefined, rendered empty
	out = mustRender(t, env, `{{ "yes" if ok }}`, map[string]any{"ok": false})
	require.Equal(t, "", out)
}

func TestForLoop(t *testing.T) {
	env := newTestEnv()
	out := mustRender(t, env,
		"{% for x in items %}{{ loop.index }}:{{ x }}{% if not loop.last %},{% endif %}{% endfor %}",
		map[string]any{"items": []string{"a", "b", "c"}})
	require.Equal(t, "1:a,2:b,3:c", out)
}

func TestForLoopMetadata(t *testing.T) {
	env := newTestEnv()
	out := mustRender(t, env,
		"{% for x in items %}{{ loop.index0 }}/{{ loop.revindex }}/{{ loop.first }}/{{ loop.length }} {% endfor %}",
		map[string]any{"items": []int{10, 20}})
	require.Equal(t, "0/2/true/2 1/1/false/2 ", out)
}

func TestForElse(t *testing.T) {
	env := newTestEnv()
	src := "{% for x in items %}{{ x }}{% else %}empty{% endfor %}"
	require.Equal(t, "empty", mustRender(t, env, src, map[string]any{"items": []int{}}))
	require.Equal(t, "1", mustRender(t, env, src, map[string]any{"items": []int{1}}))
}

func TestForUnpack(t *testing.T) {
	env := newTestEnv()
	out := mustRender(t, env,
		"{% for k, v in m %}{{ k }}={{ v }};{% endfor %}",
		map[string]any{"m": [][]any{{"a", 1}, {"b", 2}}})
	require.Equal(t, "a=1;b=2;", out)
}

func TestUnpackMismatch(t *testing.T) {
	env := newTestEnv()
	_, err := render(t, env, "{% for a, b in items %}{% endfor %}",
		map[string]any{"items": [][]any{{1, 2, 3}}})
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.CannotUnpack))
}

func TestLoopFilterLength(t *testing.T) {
	env := newTestEnv()
	// loop.length reflects the filtered count, not the source count
	out := mustRender(t, env,
		"{% for x in items if x is odd %}{{ x }}/{{ loop.length }} {% endfor %}",
		map[string]any{"items": []int{1, 2, 3, 4, 5}})
	require.Equal(t, "1/3 3/3 5/3 ", out)
}

func TestLoopCycle(t *testing.T) {
	env := newTestEnv()
	out := mustRender(t, env,
		`{% for x in items %}{{ loop.cycle("odd", "even") }} {% endfor %}`,
		map[string]any{"items": []int{1, 2, 3}})
	require.Equal(t, "odd even odd ", out)
}

func TestRecursiveLoop(t *testing.T) {
	env := newTestEnv()
	tree := []any{
		map[string]any{"name": "a", "children": []any{
			map[string]any{"name": "b", "children": []any{}},
		}},
		map[string]any{"name": "c", "children": []any{}},
	}
	out := mustRender(t, env,
		"{% for item in tree recursive %}{{ item.name }}@{{ loop.depth0 }};{{ loop(item.children) }}{% endfor %}",
		map[string]any{"tree": tree})
	require.Equal(t, "a@0;b@1;c@0;", out)
}

func TestRecursiveLoopValuePosition(t *testing.T) {
	env := newTestEnv()
	tree := []any{
		map[string]any{"name": "a", "children": []any{
			map[string]any{"name": "b", "children": []any{}},
		}},
	}
	// Filtered loop() call takes the value-position path through a capture
	out := mustRender(t, env,
		"{% for item in tree recursive %}{{ item.name }}{{ loop(item.children) | upper }}{% endfor %}",
		map[string]any{"tree": tree})
	require.Equal(t, "aB", out)
}

func TestSetAndWith(t *testing.T) {
	env := newTestEnv()
	out := mustRender(t, env,
		"{% set x = 1 %}{% with x = 2, y = 3 %}{{ x }}{{ y }}{% endwith %}{{ x }}{{ y }}",
		nil)
	require.Equal(t, "231", out)
}

func TestSetBlock(t *testing.T) {
	env := newTestEnv()
	out := mustRender(t, env,
		"{% set greeting %}hello {{ name }}{% endset %}{{ greeting | upper }}",
		map[string]any{"name": "world"})
	require.Equal(t, "HELLO WORLD", out)
}

func TestNamespaceAssignment(t *testing.T) {
	env := newTestEnv()
	out := mustRender(t, env,
		"{% set ns = namespace(total=0) %}"+
			"{% for x in items %}{% set ns.total = ns.total + x %}{% endfor %}"+
			"{{ ns.total }}",
		map[string]any{"items": []int{1, 2, 3}})
	require.Equal(t, "6", out)
}

func TestMacro(t *testing.T) {
	env := newTestEnv()
	out := mustRender(t, env,
		`{% macro input(name, type="text") %}<{{ name }}:{{ type }}>{% endmacro %}`+
			`{{ input("a") }}{{ input("b", type="password") }}`,
		nil)
	require.Equal(t, "<a:text><b:password>", out)
}

func TestMacroDefaultsEvaluateAtCallTime(t *testing.T) {
	env := newTestEnv()
	out := mustRender(t, env,
		`{% set mode = "x" %}{% macro m(v=mode) %}{{ v }}{% endmacro %}`+
			`{% set mode = "y" %}{{ m() }}`,
		nil)
	require.Equal(t, "y", out)
}

func TestMacroUnknownKwarg(t *testing.T) {
	env := newTestEnv()
	_, err := render(t, env,
		`{% macro m(a) %}{{ a }}{% endmacro %}{{ m(bogus=1) }}`, nil)
	require.NotNil(t, err)
	require.Contains(t, err.Error(), `unknown keyword argument "bogus"`)
}

func TestMacroTooManyArgs(t *testing.T) {
	env := newTestEnv()
	_, err := render(t, env,
		`{% macro m(a) %}{{ a }}{% endmacro %}{{ m(1, 2) }}`, nil)
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "at most 1 arguments")
}

func TestCallBlock(t *testing.T) {
	env := newTestEnv()
	out := mustRender(t, env,
		`{% macro wrap() %}[{{ caller() }}]{% endmacro %}`+
			`{% call wrap() %}body{% endcall %}`,
		nil)
	require.Equal(t, "[body]", out)
}

func TestCallBlockWithArgs(t *testing.T) {
	env := newTestEnv()
	out := mustRender(t, env,
		`{% macro each(items) %}{% for x in items %}{{ caller(x) }}{% endfor %}{% endmacro %}`+
			`{% call(item) each([1, 2]) %}<{{ item }}>{% endcall %}`,
		nil)
	require.Equal(t, "<1><2>", out)
}

func TestCallerScopedToCalledMacro(t *testing.T) {
	env := newTestEnv()

	// Only the macro named in the call block receives the body; a macro it
	// invokes in turn must not see it.
	_, err := render(t, env,
		`{% macro inner() %}{{ caller() }}{% endmacro %}`+
			`{% macro outer() %}{{ inner() }}{% endmacro %}`+
			`{% call outer() %}body{% endcall %}`,
		nil)
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.UndefinedError))
	require.Contains(t, err.Error(), "caller is undefined")

	// Outside any call block there is no caller at all
	_, err = render(t, env, `{{ caller() }}`, nil)
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.UndefinedError))
}

func TestExtends(t *testing.T) {
	env := newTestEnv()
	env.add(t, "base.html",
		"[{% block title %}Default{% endblock %}|{% block body %}Base body{% endblock %}]")
	out := mustRender(t, env,
		`{% extends "base.html" %}{% block title %}Child{% endblock %}`, nil)
	require.Equal(t, "[Child|Base body]", out)
}

func TestExtendsSuper(t *testing.T) {
	env := newTestEnv()
	env.add(t, "base.html", "{% block body %}base{% endblock %}")
	out := mustRender(t, env,
		`{% extends "base.html" %}{% block body %}{{ super() }}+child{% endblock %}`, nil)
	require.Equal(t, "base+child", out)
}

func TestExtendsChain(t *testing.T) {
	env := newTestEnv()
	env.add(t, "root.html", "({% block a %}root{% endblock %})")
	env.add(t, "mid.html",
		`{% extends "root.html" %}{% block a %}mid:{{ super() }}{% endblock %}`)
	out := mustRender(t, env,
		`{% extends "mid.html" %}{% block a %}child:{{ super() }}{% endblock %}`, nil)
	require.Equal(t, "(child:mid:root)", out)
}

func TestCircularExtends(t *testing.T) {
	env := newTestEnv()
	env.add(t, "a.html", `{% extends "b.html" %}`)
	env.add(t, "b.html", `{% extends "a.html" %}`)
	out := NewOutput()
	err := Run(env, env.programs["a.html"], value.NewMap(), out)
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.BadExtends))
}

func TestInclude(t *testing.T) {
	env := newTestEnv()
	env.add(t, "partial.html", "Hello {{ name }}")
	out := mustRender(t, env, `<{% include "partial.html" %}>`,
		map[string]any{"name": "peter"})
	require.Equal(t, "<Hello peter>", out)
}

func TestIncludeIgnoreMissing(t *testing.T) {
	env := newTestEnv()
	out := mustRender(t, env, `a{% include "nope.html" ignore missing %}b`, nil)
	require.Equal(t, "ab", out)
}

func TestIncludeFallbackList(t *testing.T) {
	env := newTestEnv()
	env.add(t, "found.html", "found")
	out := mustRender(t, env,
		`{% include ["missing.html", "found.html"] %}`, nil)
	require.Equal(t, "found", out)
}

func TestIncludeMissing(t *testing.T) {
	env := newTestEnv()
	_, err := render(t, env, `{% include "nope.html" %}`, nil)
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.TemplateNotFound))
}

func TestImport(t *testing.T) {
	env := newTestEnv()
	env.add(t, "helpers.html",
		`{% macro input(name) %}<input name="{{ name }}">{% endmacro %}`)
	out := mustRender(t, env,
		`{% import "helpers.html" as h %}{{ h.input("user") }}`, nil)
	require.Equal(t, `<input name="user">`, out)
}

func TestFromImport(t *testing.T) {
	env := newTestEnv()
	env.add(t, "helpers.html",
		`{% macro greet(who) %}hi {{ who }}{% endmacro %}`)
	out := mustRender(t, env,
		`{% from "helpers.html" import greet as g %}{{ g("bob") }}`, nil)
	require.Equal(t, "hi bob", out)
}

func TestImportDoesNotSeeContext(t *testing.T) {
	env := newTestEnv()
	env.add(t, "helpers.html", `{% macro show() %}{{ name }}{% endmacro %}`)
	out := mustRender(t, env,
		`{% import "helpers.html" as h %}{{ h.show() }}`,
		map[string]any{"name": "peter"})
	require.Equal(t, "", out)
}

func TestAutoEscape(t *testing.T) {
	env := newTestEnv()
	env.htmlAuto = true
	out := mustRender(t, env, "{{ v }}", map[string]any{"v": `<b>"x"</b>`})
	require.Equal(t, "&lt;b&gt;&quot;x&quot;&lt;/b&gt;", out)
}

func TestAutoEscapeSafeString(t *testing.T) {
	env := newTestEnv()
	env.htmlAuto = true
	env.add(t, "test.html", "{{ v }}")
	ctx := value.NewMap()
	ctx.SetString("v", value.NewSafeString("<b>ok</b>"))
	out := NewOutput()
	require.Nil(t, Run(env, env.programs["test.html"], ctx, out))
	require.Equal(t, "<b>ok</b>", out.String())
}

func TestAutoEscapeBlock(t *testing.T) {
	env := newTestEnv()
	out := mustRender(t, env,
		`{{ v }}|{% autoescape "html" %}{{ v }}{% endautoescape %}|{{ v }}`,
		map[string]any{"v": "<x>"})
	require.Equal(t, "<x>|&lt;x&gt;|<x>", out)
}

func TestMacroResultIsSafe(t *testing.T) {
	env := newTestEnv()
	env.htmlAuto = true
	// A macro's own output escapes interpolations once; emitting the macro
	// result must not escape the markup a second time.
	out := mustRender(t, env,
		`{% macro b(v) %}<b>{{ v }}</b>{% endmacro %}{{ b(x) }}`,
		map[string]any{"x": "<i>"})
	require.Equal(t, "<b>&lt;i&gt;</b>", out)
}

func TestLenientUndefined(t *testing.T) {
	env := newTestEnv()
	require.Equal(t, "", mustRender(t, env, "{{ missing }}", nil))
	require.Equal(t, "", mustRender(t, env, "{{ missing.deep.chain }}", nil))
	require.Equal(t, "", mustRender(t, env, "{{ missing + 1 }}", nil))
	require.Equal(t, "fallback",
		mustRender(t, env, `{{ missing | default("fallback") }}`, nil))
}

func TestStrictUndefined(t *testing.T) {
	env := newTestEnv()
	env.strict = true
	_, err := render(t, env, "{{ missing }}", nil)
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.UndefinedError))
	require.Contains(t, err.Error(), "missing is undefined")
}

func TestStrictUndefinedCondition(t *testing.T) {
	env := newTestEnv()
	env.strict = true

	_, err := render(t, env, "{% if missing %}a{% else %}b{% endif %}", nil)
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.UndefinedError))
	require.Contains(t, err.Error(), "missing is undefined")

	// Short-circuit operands are conditions too
	_, err = render(t, env, `{{ missing or "x" }}`, nil)
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.UndefinedError))

	_, err = render(t, env, `{{ missing and "x" }}`, nil)
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.UndefinedError))

	_, err = render(t, env, `{{ "a" if missing else "b" }}`, nil)
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.UndefinedError))
}

func TestStrictAllowsExistenceChecks(t *testing.T) {
	env := newTestEnv()
	env.strict = true
	out := mustRender(t, env,
		"{% if missing is defined %}yes{% else %}no{% endif %}", nil)
	require.Equal(t, "no", out)
}

func TestUnknownFilter(t *testing.T) {
	env := newTestEnv()
	_, err := render(t, env, "{{ x | nonsense }}", map[string]any{"x": 1})
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.UnknownFilter))
}

func TestStepLimit(t *testing.T) {
	env := newTestEnv()
	env.fuel = 50
	_, err := render(t, env,
		"{% for x in range(1000) %}{{ x }}{% endfor %}", nil)
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.TooComplex))
}

func TestRecursionLimit(t *testing.T) {
	env := newTestEnv()
	_, err := render(t, env,
		"{% macro f() %}{{ f() }}{% endmacro %}{{ f() }}", nil)
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.TooComplex))
}

func TestErrorLocation(t *testing.T) {
	env := newTestEnv()
	_, err := render(t, env, "ok\n{{ 1 / 0 }}", nil)
	require.NotNil(t, err)
	e, ok := err.(*errors.Error)
	require.True(t, ok)
	require.Equal(t, "test.html", e.Template())
	require.Equal(t, 2, e.Line())
}

func TestIncludeErrorChain(t *testing.T) {
	env := newTestEnv()
	env.add(t, "broken.html", "{{ 1 / 0 }}")
	_, err := render(t, env, `{% include "broken.html" %}`, nil)
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.BadInclude))
	require.Contains(t, err.Error(), "rendered from")
	require.Contains(t, err.Error(), "broken.html")
}

func TestGetItemAndSlice(t *testing.T) {
	env := newTestEnv()
	ctx := map[string]any{"items": []int{1, 2, 3, 4, 5}, "m": map[string]any{"k": "v"}}
	require.Equal(t, "1", mustRender(t, env, "{{ items[0] }}", ctx))
	require.Equal(t, "5", mustRender(t, env, "{{ items[-1] }}", ctx))
	require.Equal(t, "[2, 3]", mustRender(t, env, "{{ items[1:3] }}", ctx))
	require.Equal(t, "[5, 4, 3, 2, 1]", mustRender(t, env, "{{ items[::-1] }}", ctx))
	require.Equal(t, "v", mustRender(t, env, `{{ m["k"] }}`, ctx))
}

func TestMethodCall(t *testing.T) {
	env := newTestEnv()
	out := mustRender(t, env, `{{ name.upper() }}`, map[string]any{"name": "bob"})
	require.Equal(t, "BOB", out)
}

func TestDoStatement(t *testing.T) {
	env := newTestEnv()
	out := mustRender(t, env,
		"{% set ns = namespace(x=0) %}{% do ns.total %}{{ ns.x }}", nil)
	require.Equal(t, "0", out)
}

func TestFilterBlock(t *testing.T) {
	env := newTestEnv()
	out := mustRender(t, env,
		"{% filter upper %}shout {{ name }}{% endfilter %}",
		map[string]any{"name": "ok"})
	require.Equal(t, "SHOUT OK", out)
}

func TestStreamingOutput(t *testing.T) {
	env := newTestEnv()
	env.add(t, "test.html", "a{{ 1 + 1 }}c")
	var sb strings.Builder
	out := NewStreamingOutput(&sb)
	require.Nil(t, Run(env, env.programs["test.html"], value.NewMap(), out))
	require.Equal(t, "a2c", sb.String())
}
