package vellum

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudcmds/vellum/errors"
	"github.com/cloudcmds/vellum/lexer"
	"github.com/cloudcmds/vellum/value"
	"github.com/cloudcmds/vellum/vm"
)

func TestRenderBasic(t *testing.T) {
	env := New()
	tmpl, err := env.AddTemplate("greeting.txt", "Hello {{ name }}!")
	require.Nil(t, err)
	require.Equal(t, "greeting.txt", tmpl.Name())
	require.Equal(t, "Hello {{ name }}!", tmpl.Source())

	out, err := tmpl.Render(map[string]any{"name": "world"})
	require.Nil(t, err)
	require.Equal(t, "Hello world!", out)
}

func TestRenderString(t *testing.T) {
	env := New()
	out, err := env.RenderString("{{ 1 + 2 }}", nil)
	require.Nil(t, err)
	require.Equal(t, "3", out)
}

func TestSyntaxErrorReported(t *testing.T) {
	env := New()
	_, err := env.AddTemplate("bad.txt", "{% if %}")
	require.NotNil(t, err)
	_, err = env.RenderString("{{ 1 +", nil)
	require.NotNil(t, err)
}

func TestAutoEscapeByExtension(t *testing.T) {
	env := New()
	ctx := map[string]any{"v": "<b>"}

	out, err := env.RenderString("{{ v }}", ctx)
	require.Nil(t, err)
	require.Equal(t, "<b>", out)

	_, err = env.AddTemplate("page.html", "{{ v }}")
	require.Nil(t, err)
	out, err = env.Render("page.html", ctx)
	require.Nil(t, err)
	require.Equal(t, "&lt;b&gt;", out)

	_, err = env.AddTemplate("feed.xml", "{{ v }}")
	require.Nil(t, err)
	out, err = env.Render("feed.xml", ctx)
	require.Nil(t, err)
	require.Equal(t, "&lt;b&gt;", out)

	_, err = env.AddTemplate("note.txt", "{{ v }}")
	require.Nil(t, err)
	out, err = env.Render("note.txt", ctx)
	require.Nil(t, err)
	require.Equal(t, "<b>", out)
}

func TestForcedAutoEscape(t *testing.T) {
	env := New(WithAutoEscape(vm.EscapeHTML))
	out, err := env.RenderString("{{ v }}", map[string]any{"v": "<b>"})
	require.Nil(t, err)
	require.Equal(t, "&lt;b&gt;", out)
}

func TestLoader(t *testing.T) {
	var loads int
	env := New(WithLoader(func(name string) (string, bool) {
		if name == "loaded.txt" {
			loads++
			return "from loader: {{ x }}", true
		}
		return "", false
	}))

	out, err := env.Render("loaded.txt", map[string]any{"x": int64(7)})
	require.Nil(t, err)
	require.Equal(t, "from loader: 7", out)

	// Second render hits the compiled cache
	_, err = env.Render("loaded.txt", map[string]any{"x": int64(8)})
	require.Nil(t, err)
	require.Equal(t, 1, loads)

	_, err = env.Render("missing.txt", nil)
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.TemplateNotFound))
}

func TestTemplateNotFoundWithoutLoader(t *testing.T) {
	env := New()
	_, err := env.GetTemplate("nowhere.txt")
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.TemplateNotFound))
}

func TestIncludeThroughLoader(t *testing.T) {
	env := New(WithLoader(func(name string) (string, bool) {
		if name == "partial.txt" {
			return "[{{ x }}]", true
		}
		return "", false
	}))
	out, err := env.RenderString(`{% include "partial.txt" %}`, map[string]any{"x": "ok"})
	require.Nil(t, err)
	require.Equal(t, "[ok]", out)
}

func TestExtendsAcrossTemplates(t *testing.T) {
	env := New()
	_, err := env.AddTemplate("base.txt",
		"header|{% block body %}default{% endblock %}|footer")
	require.Nil(t, err)
	_, err = env.AddTemplate("child.txt",
		`{% extends "base.txt" %}{% block body %}child{% endblock %}`)
	require.Nil(t, err)

	out, err := env.Render("child.txt", nil)
	require.Nil(t, err)
	require.Equal(t, "header|child|footer", out)
}

func TestRegisterFilter(t *testing.T) {
	env := New()
	env.RegisterFilter("shout", func(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
		return value.NewString(strings.ToUpper(value.ToString(v)) + "!"), nil
	})
	out, err := env.RenderString(`{{ "hey" | shout }}`, nil)
	require.Nil(t, err)
	require.Equal(t, "HEY!", out)
}

func TestRegisterTest(t *testing.T) {
	env := New()
	env.RegisterTest("shouting", func(v value.Value, args []value.Value, kwargs *value.Kwargs) (bool, error) {
		s := value.ToString(v)
		return s != "" && s == strings.ToUpper(s), nil
	})
	out, err := env.RenderString(`{{ "HI" is shouting }}`, nil)
	require.Nil(t, err)
	require.Equal(t, "true", out)
}

func TestRegisterFunction(t *testing.T) {
	env := New()
	env.RegisterFunction("greet", func(args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
		return value.NewString("hi " + value.ToString(args[0])), nil
	})
	out, err := env.RenderString(`{{ greet("bob") }}`, nil)
	require.Nil(t, err)
	require.Equal(t, "hi bob", out)
}

func TestGlobals(t *testing.T) {
	env := New(WithGlobal("site", "vellum"))
	env.AddGlobal("version", int64(2))

	out, err := env.RenderString("{{ site }} v{{ version }}", nil)
	require.Nil(t, err)
	require.Equal(t, "vellum v2", out)

	// Context entries shadow globals
	out, err = env.RenderString("{{ site }}", map[string]any{"site": "other"})
	require.Nil(t, err)
	require.Equal(t, "other", out)
}

func TestStrictUndefined(t *testing.T) {
	lenient := New()
	out, err := lenient.RenderString("[{{ missing }}]", nil)
	require.Nil(t, err)
	require.Equal(t, "[]", out)

	strict := New(WithUndefinedBehavior(vm.Strict))
	_, err = strict.RenderString("[{{ missing }}]", nil)
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.UndefinedError))
}

func TestFuelLimit(t *testing.T) {
	env := New(WithFuel(100))
	_, err := env.RenderString("{% for i in range(10000) %}{{ i }}{% endfor %}", nil)
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.TooComplex))
}

func TestRecursionLimit(t *testing.T) {
	env := New(WithRecursionLimit(10))
	source := `{% macro deep(n) %}{% if n > 0 %}{{ deep(n - 1) }}{% endif %}{% endmacro %}{{ deep(50) }}`
	_, err := env.RenderString(source, nil)
	require.NotNil(t, err)
	require.True(t, errors.IsKind(err, errors.TooComplex))
}

func TestCustomSyntax(t *testing.T) {
	env := New(WithSyntax(lexer.Syntax{
		BlockStart:    "<%",
		BlockEnd:      "%>",
		VariableStart: "${",
		VariableEnd:   "}",
		CommentStart:  "<#",
		CommentEnd:    "#>",
	}))
	out, err := env.RenderString("<% if ok %>${ x }<% endif %><# hidden #>",
		map[string]any{"ok": true, "x": "y"})
	require.Nil(t, err)
	require.Equal(t, "y", out)
}

func TestRenderTo(t *testing.T) {
	env := New()
	tmpl, err := env.AddTemplate("stream.txt", "a{{ x }}c")
	require.Nil(t, err)

	var sb strings.Builder
	require.Nil(t, tmpl.RenderTo(&sb, map[string]any{"x": "b"}))
	require.Equal(t, "abc", sb.String())
}

func TestContextForms(t *testing.T) {
	env := New()
	tmpl, err := env.AddTemplate("ctx.txt", "{{ x }}")
	require.Nil(t, err)

	out, err := tmpl.Render(nil)
	require.Nil(t, err)
	require.Equal(t, "", out)

	m := value.NewMap()
	m.SetString("x", value.NewInt(1))
	out, err = tmpl.Render(m)
	require.Nil(t, err)
	require.Equal(t, "1", out)

	out, err = tmpl.Render(map[string]value.Value{"x": value.NewInt(2)})
	require.Nil(t, err)
	require.Equal(t, "2", out)

	_, err = tmpl.Render("not a map")
	require.NotNil(t, err)
}

func TestErrorCarriesTemplateAndLine(t *testing.T) {
	env := New(WithUndefinedBehavior(vm.Strict))
	_, err := env.AddTemplate("report.txt", "line one\n{{ missing + 1 }}")
	require.Nil(t, err)
	_, err = env.Render("report.txt", nil)
	require.NotNil(t, err)
	terr, ok := err.(*errors.Error)
	require.True(t, ok)
	require.Equal(t, "report.txt", terr.Template())
	require.Equal(t, 2, terr.Line())
}

func TestRenderIdempotent(t *testing.T) {
	env := New()
	tmpl, err := env.AddTemplate("loop.txt",
		"{% for i in items %}{{ i }};{% endfor %}")
	require.Nil(t, err)
	ctx := map[string]any{"items": []int{1, 2, 3}}

	first, err := tmpl.Render(ctx)
	require.Nil(t, err)
	second, err := tmpl.Render(ctx)
	require.Nil(t, err)
	require.Equal(t, first, second)
	require.Equal(t, "1;2;3;", first)
}

func TestConcurrentRenders(t *testing.T) {
	env := New()
	tmpl, err := env.AddTemplate("conc.txt", "{{ n }}-{{ n * 2 }}")
	require.Nil(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				out, err := tmpl.Render(map[string]any{"n": int64(n)})
				if err != nil {
					errs <- err
					return
				}
				want := fmt.Sprintf("%d-%d", n, n*2)
				if out != want {
					errs <- fmt.Errorf("got %q, want %q", out, want)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.Nil(t, err)
	}
}

func TestConcurrentRegistrationAndRender(t *testing.T) {
	env := New()
	tmpl, err := env.AddTemplate("reg.txt", "{{ x | upper }}")
	require.Nil(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			env.RegisterFilter(fmt.Sprintf("extra%d", n),
				func(v value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
					return v, nil
				})
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := tmpl.Render(map[string]any{"x": "ab"})
			require.Nil(t, err)
			require.Equal(t, "AB", out)
		}()
	}
	wg.Wait()
}

func TestAddTemplateReplaces(t *testing.T) {
	env := New()
	_, err := env.AddTemplate("v.txt", "one")
	require.Nil(t, err)
	_, err = env.AddTemplate("v.txt", "two")
	require.Nil(t, err)
	out, err := env.Render("v.txt", nil)
	require.Nil(t, err)
	require.Equal(t, "two", out)
}

func TestLineStatementSyntax(t *testing.T) {
	syntax := lexer.DefaultSyntax()
	syntax.LineStatementPrefix = "#"
	syntax.LineCommentPrefix = "##"
	env := New(WithSyntax(syntax))
	source := "# for i in [1, 2, 3]\n{{ i }}.\n# endfor\n## trailing note"
	out, err := env.RenderString(source, nil)
	require.Nil(t, err)
	require.Equal(t, "1.\n2.\n3.\n", out)
}
