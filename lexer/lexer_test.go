package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudcmds/vellum/token"
)

type tok struct {
	typ token.Type
	lit string
}

func lexAll(t *testing.T, source string, opts ...Option) []tok {
	t.Helper()
	toks, err := New(source, opts...).Tokenize()
	require.Nil(t, err)
	var out []tok
	for _, tk := range toks {
		if tk.Type == token.EOF {
			break
		}
		out = append(out, tok{tk.Type, tk.Literal})
	}
	return out
}

func TestTextOnly(t *testing.T) {
	require.Equal(t, []tok{
		{token.TEXT, "hello world"},
	}, lexAll(t, "hello world"))
}

func TestVariableTag(t *testing.T) {
	require.Equal(t, []tok{
		{token.TEXT, "Hello "},
		{token.VARIABLE_BEGIN, "{{"},
		{token.IDENT, "name"},
		{token.VARIABLE_END, "}}"},
		{token.TEXT, "!"},
	}, lexAll(t, "Hello {{ name }}!"))
}

func TestBlockTag(t *testing.T) {
	require.Equal(t, []tok{
		{token.BLOCK_BEGIN, "{%"},
		{token.IDENT, "if"},
		{token.IDENT, "user"},
		{token.BLOCK_END, "%}"},
		{token.TEXT, "x"},
		{token.BLOCK_BEGIN, "{%"},
		{token.IDENT, "endif"},
		{token.BLOCK_END, "%}"},
	}, lexAll(t, "{% if user %}x{% endif %}"))
}

func TestOperators(t *testing.T) {
	require.Equal(t, []tok{
		{token.VARIABLE_BEGIN, "{{"},
		{token.INT, "1"},
		{token.PLUS, "+"},
		{token.INT, "2"},
		{token.ASTERISK, "*"},
		{token.INT, "3"},
		{token.FLOORDIV, "//"},
		{token.INT, "4"},
		{token.POW, "**"},
		{token.INT, "5"},
		{token.VARIABLE_END, "}}"},
	}, lexAll(t, "{{ 1 + 2 * 3 // 4 ** 5 }}"))
}

func TestComparisons(t *testing.T) {
	require.Equal(t, []tok{
		{token.VARIABLE_BEGIN, "{{"},
		{token.IDENT, "a"},
		{token.EQ, "=="},
		{token.IDENT, "b"},
		{token.NOT_EQ, "!="},
		{token.IDENT, "c"},
		{token.LT_EQ, "<="},
		{token.IDENT, "d"},
		{token.VARIABLE_END, "}}"},
	}, lexAll(t, "{{ a == b != c <= d }}"))
}

func TestNumbers(t *testing.T) {
	require.Equal(t, []tok{
		{token.VARIABLE_BEGIN, "{{"},
		{token.INT, "42"},
		{token.FLOAT, "1.5"},
		{token.FLOAT, "1e10"},
		{token.FLOAT, "2.5e-3"},
		{token.INT, "1000000"},
		{token.VARIABLE_END, "}}"},
	}, lexAll(t, "{{ 42 1.5 1e10 2.5e-3 1_000_000 }}"))
}

func TestStrings(t *testing.T) {
	require.Equal(t, []tok{
		{token.VARIABLE_BEGIN, "{{"},
		{token.STRING, "double"},
		{token.STRING, "single"},
		{token.STRING, "esc\n\"x\""},
		{token.VARIABLE_END, "}}"},
	}, lexAll(t, `{{ "double" 'single' "esc\n\"x\"" }}`))
}

func TestBracesInsideExpression(t *testing.T) {
	// A dict literal's closing braces must not terminate the variable tag
	require.Equal(t, []tok{
		{token.VARIABLE_BEGIN, "{{"},
		{token.LBRACE, "{"},
		{token.STRING, "a"},
		{token.COLON, ":"},
		{token.INT, "1"},
		{token.RBRACE, "}"},
		{token.VARIABLE_END, "}}"},
	}, lexAll(t, `{{ {"a": 1} }}`))
}

func TestComments(t *testing.T) {
	require.Equal(t, []tok{
		{token.TEXT, "a"},
		{token.TEXT, "b"},
	}, lexAll(t, "a{# this is ignored #}b"))
}

func TestWhitespaceControl(t *testing.T) {
	require.Equal(t, []tok{
		{token.TEXT, "a"},
		{token.VARIABLE_BEGIN, "{{-"},
		{token.IDENT, "x"},
		{token.VARIABLE_END, "-}}"},
		{token.TEXT, "b"},
	}, lexAll(t, "a  {{- x -}}  b"))
}

func TestWhitespacePreserveMarker(t *testing.T) {
	require.Equal(t, []tok{
		{token.TEXT, "a  "},
		{token.VARIABLE_BEGIN, "{{+"},
		{token.IDENT, "x"},
		{token.VARIABLE_END, "+}}"},
		{token.TEXT, "  b"},
	}, lexAll(t, "a  {{+ x +}}  b"))
}

func TestCommentWhitespaceControl(t *testing.T) {
	require.Equal(t, []tok{
		{token.TEXT, "a"},
		{token.TEXT, "b"},
	}, lexAll(t, "a  {#- note -#}  b"))
}

func TestTrimBlocks(t *testing.T) {
	require.Equal(t, []tok{
		{token.BLOCK_BEGIN, "{%"},
		{token.IDENT, "if"},
		{token.IDENT, "x"},
		{token.BLOCK_END, "%}"},
		{token.TEXT, "body\n"},
		{token.BLOCK_BEGIN, "{%"},
		{token.IDENT, "endif"},
		{token.BLOCK_END, "%}"},
	}, lexAll(t, "{% if x %}\nbody\n{% endif %}\n", WithTrimBlocks()))
}

func TestLstripBlocks(t *testing.T) {
	require.Equal(t, []tok{
		{token.TEXT, "a\n"},
		{token.BLOCK_BEGIN, "{%"},
		{token.IDENT, "if"},
		{token.IDENT, "x"},
		{token.BLOCK_END, "%}"},
	}, lexAll(t, "a\n    {% if x %}", WithLstripBlocks()))
}

func TestTrailingNewline(t *testing.T) {
	require.Equal(t, []tok{{token.TEXT, "abc"}}, lexAll(t, "abc\n"))
	require.Equal(t, []tok{{token.TEXT, "abc\n"}},
		lexAll(t, "abc\n", WithKeepTrailingNewline()))
}

func TestRawBlock(t *testing.T) {
	require.Equal(t, []tok{
		{token.TEXT, "a"},
		{token.TEXT, "{{ not lexed }}"},
		{token.TEXT, "b"},
	}, lexAll(t, "a{% raw %}{{ not lexed }}{% endraw %}b"))
}

func TestRawBlockWhitespaceControl(t *testing.T) {
	require.Equal(t, []tok{
		{token.TEXT, "x"},
	}, lexAll(t, "{% raw -%}  x  {%- endraw %}"))
}

func TestCustomDelimiters(t *testing.T) {
	syntax := Syntax{
		BlockStart: "<%", BlockEnd: "%>",
		VariableStart: "${", VariableEnd: "}",
		CommentStart: "<#", CommentEnd: "#>",
	}
	require.Equal(t, []tok{
		{token.TEXT, "a "},
		{token.VARIABLE_BEGIN, "${"},
		{token.IDENT, "x"},
		{token.VARIABLE_END, "}"},
		{token.TEXT, " "},
		{token.BLOCK_BEGIN, "<%"},
		{token.IDENT, "if"},
		{token.IDENT, "y"},
		{token.BLOCK_END, "%>"},
	}, lexAll(t, "a ${ x } <% if y %><# gone #>", WithSyntax(syntax)))
}

func TestPositions(t *testing.T) {
	l := New("ab\n{{ x }}")
	tk, err := l.Next()
	require.Nil(t, err)
	require.Equal(t, token.TEXT, tk.Type)
	require.Equal(t, 1, tk.StartPosition.LineNumber())

	tk, err = l.Next()
	require.Nil(t, err)
	require.Equal(t, token.VARIABLE_BEGIN, tk.Type)
	require.Equal(t, 2, tk.StartPosition.LineNumber())
	require.Equal(t, 1, tk.StartPosition.ColumnNumber())

	tk, err = l.Next()
	require.Nil(t, err)
	require.Equal(t, token.IDENT, tk.Type)
	require.Equal(t, 4, tk.StartPosition.ColumnNumber())
	require.Equal(t, 6, tk.StartPosition.Offset)
}

func TestUnclosedComment(t *testing.T) {
	_, err := New("a{# never closed").Tokenize()
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "unclosed comment")
}

func TestUnclosedRaw(t *testing.T) {
	_, err := New("{% raw %}stuff").Tokenize()
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "unclosed raw block")
}

func TestUnterminatedString(t *testing.T) {
	_, err := New(`{{ "oops }}`).Tokenize()
	require.NotNil(t, err)
}

func TestUnexpectedCharacter(t *testing.T) {
	_, err := New("{{ a @ b }}").Tokenize()
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "unexpected character")
}

func TestEOFReturnsForever(t *testing.T) {
	l := New("")
	for i := 0; i < 3; i++ {
		tk, err := l.Next()
		require.Nil(t, err)
		require.Equal(t, token.EOF, tk.Type)
	}
}

func TestLineStatements(t *testing.T) {
	syntax := DefaultSyntax()
	syntax.LineStatementPrefix = "#"
	require.Equal(t, []tok{
		{token.TEXT, "x\n"},
		{token.BLOCK_BEGIN, "#"},
		{token.IDENT, "if"},
		{token.IDENT, "a"},
		{token.BLOCK_END, "\n"},
		{token.TEXT, "y\n"},
		{token.BLOCK_BEGIN, "#"},
		{token.IDENT, "endif"},
		{token.BLOCK_END, ""},
	}, lexAll(t, "x\n# if a\ny\n# endif", WithSyntax(syntax)))
}

func TestLineStatementIndented(t *testing.T) {
	syntax := DefaultSyntax()
	syntax.LineStatementPrefix = "%"
	// Leading blanks before the prefix are swallowed by the opener, not
	// emitted as text
	require.Equal(t, []tok{
		{token.BLOCK_BEGIN, "  %"},
		{token.IDENT, "do"},
		{token.IDENT, "x"},
		{token.BLOCK_END, "\n"},
		{token.TEXT, "done"},
	}, lexAll(t, "  % do x\ndone", WithSyntax(syntax)))
}

func TestLineStatementMidLinePrefixIgnored(t *testing.T) {
	syntax := DefaultSyntax()
	syntax.LineStatementPrefix = "#"
	// A prefix that is not the first thing on its line stays literal text
	require.Equal(t, []tok{
		{token.TEXT, "a # b"},
	}, lexAll(t, "a # b", WithSyntax(syntax)))
}

func TestLineComments(t *testing.T) {
	syntax := DefaultSyntax()
	syntax.LineCommentPrefix = "##"
	require.Equal(t, []tok{
		{token.TEXT, "a\n"},
		{token.TEXT, "b"},
	}, lexAll(t, "a\n## note\nb", WithSyntax(syntax)))
}

func TestLineCommentOutranksStatementPrefix(t *testing.T) {
	syntax := DefaultSyntax()
	syntax.LineStatementPrefix = "#"
	syntax.LineCommentPrefix = "##"
	require.Equal(t, []tok{
		{token.BLOCK_BEGIN, "#"},
		{token.IDENT, "set"},
		{token.IDENT, "x"},
		{token.ASSIGN, "="},
		{token.INT, "1"},
		{token.BLOCK_END, "\n"},
		{token.TEXT, "b"},
	}, lexAll(t, "# set x = 1\n## gone\nb", WithSyntax(syntax)))
}
