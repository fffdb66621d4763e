package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudcmds/vellum/op"
	"github.com/cloudcmds/vellum/parser"
	"github.com/cloudcmds/vellum/value"
)

func compileSource(t *testing.T, source string) *Program {
	t.Helper()
	tmpl, err := parser.Parse(source)
	require.Nil(t, err)
	prog, err := Compile(tmpl, "test.html")
	require.Nil(t, err)
	return prog
}

// decode flattens the instruction stream into opcodes, skipping operands.
func decode(prog *Program) []op.Code {
	var codes []op.Code
	for i := 0; i < len(prog.Instructions); {
		code := prog.Instructions[i]
		codes = append(codes, code)
		i += 1 + op.GetInfo(code).OperandCount
	}
	return codes
}

func TestCompileOutput(t *testing.T) {
	prog := compileSource(t, "Hello {{ name }}!")
	require.Equal(t, []op.Code{
		op.EmitRaw,
		op.Lookup,
		op.Emit,
		op.EmitRaw,
		op.ExportLocals,
		op.Return,
	}, decode(prog))
	require.Equal(t, []string{"name"}, prog.Names)
}

func TestConstantDeduplication(t *testing.T) {
	prog := compileSource(t, `{{ "x" ~ "x" ~ "x" }}`)
	require.Len(t, prog.Constants, 1)
	require.Equal(t, value.NewString("x"), prog.Constants[0])
}

func TestCompileIfJumps(t *testing.T) {
	prog := compileSource(t, "{% if a %}x{% else %}y{% endif %}")
	codes := decode(prog)
	require.Equal(t, []op.Code{
		op.Lookup,
		op.JumpIfFalse,
		op.EmitRaw,
		op.Jump,
		op.EmitRaw,
		op.ExportLocals,
		op.Return,
	}, codes)
	// No placeholder operands may survive compilation
	for i := 0; i < len(prog.Instructions); {
		code := prog.Instructions[i]
		info := op.GetInfo(code)
		for j := 1; j <= info.OperandCount; j++ {
			require.NotEqual(t, op.Placeholder, prog.Instructions[i+j])
		}
		i += 1 + info.OperandCount
	}
}

func TestCompileForLoop(t *testing.T) {
	prog := compileSource(t, "{% for x in items %}{{ x }}{% endfor %}")
	require.Equal(t, []op.Code{
		op.Lookup,
		op.PushLoop,
		op.Iterate,
		op.StoreLocal,
		op.Lookup,
		op.Emit,
		op.Jump,
		op.PopFrame,
		op.ExportLocals,
		op.Return,
	}, decode(prog))
}

func TestCompileForElse(t *testing.T) {
	prog := compileSource(t, "{% for x in items %}a{% else %}b{% endfor %}")
	codes := decode(prog)
	require.Contains(t, codes, op.PushDidNotIterate)
	require.Contains(t, codes, op.JumpIfFalse)
}

func TestCompileForUnpack(t *testing.T) {
	prog := compileSource(t, "{% for k, v in m %}{% endfor %}")
	codes := decode(prog)
	require.Contains(t, codes, op.UnpackList)
}

func TestCompileLoopFilter(t *testing.T) {
	prog := compileSource(t, "{% for x in items if x %}{{ x }}{% endfor %}")
	codes := decode(prog)
	require.Contains(t, codes, op.ListAppend)
	require.Contains(t, codes, op.DupTop)
	// Two loops: the materialization pass and the real loop
	require.Equal(t, 2, countCode(codes, op.PushLoop))
}

func countCode(codes []op.Code, code op.Code) int {
	n := 0
	for _, c := range codes {
		if c == code {
			n++
		}
	}
	return n
}

func TestCompileRecursiveLoop(t *testing.T) {
	prog := compileSource(t,
		"{% for item in tree recursive %}{{ loop(item.children) }}{% endfor %}")
	codes := decode(prog)
	require.Contains(t, codes, op.FastRecurse)
	require.NotContains(t, codes, op.CallFunction)
}

func TestCompileShortCircuit(t *testing.T) {
	prog := compileSource(t, "{{ a and b }}")
	require.Contains(t, decode(prog), op.JumpIfFalseOrPop)

	prog = compileSource(t, "{{ a or b }}")
	require.Contains(t, decode(prog), op.JumpIfTrueOrPop)
}

func TestCompileBlocks(t *testing.T) {
	prog := compileSource(t, "a{% block content %}inner{% endblock %}b")
	require.Len(t, prog.Blocks, 1)
	block := prog.Blocks["content"]
	require.NotNil(t, block)
	require.Equal(t, "block content", block.Name)
	require.Contains(t, decode(prog), op.CallBlock)
}

func TestDuplicateBlock(t *testing.T) {
	tmpl, err := parser.Parse("{% block a %}{% endblock %}{% block a %}{% endblock %}")
	require.Nil(t, err)
	_, err = Compile(tmpl, "test.html")
	require.NotNil(t, err)
	require.Contains(t, err.Error(), `block "a" defined twice`)
}

func TestCompileExtends(t *testing.T) {
	prog := compileSource(t, `{% extends "base.html" %}{% block c %}x{% endblock %}`)
	require.True(t, prog.HasParent)
	require.Equal(t, "base.html", prog.ParentName)
	require.Contains(t, decode(prog), op.LoadBlocks)
}

func TestCompileMacro(t *testing.T) {
	prog := compileSource(t, `{% macro input(name, type="text") %}{{ name }}/{{ type }}{% endmacro %}`)
	require.Len(t, prog.Children, 1)
	child := prog.Children[0]
	require.Equal(t, "input", child.Name)
	require.Equal(t, []string{"name", "type"}, child.Params)
	require.Equal(t, 1, child.DefaultCount)
	// Default prologue checks whether the parameter is undefined
	require.Contains(t, decode(child), op.IsUndefined)
}

func TestCompileCallBlock(t *testing.T) {
	prog := compileSource(t, "{% call grid(items) %}x{% endcall %}")
	codes := decode(prog)
	require.Contains(t, codes, op.BuildMacro)
	require.Contains(t, codes, op.PushWith)
	require.Len(t, prog.Children, 1)
	require.Equal(t, "caller", prog.Children[0].Name)
}

func TestCompileKwargs(t *testing.T) {
	prog := compileSource(t, `{{ fn(1, 2, sep="-") }}`)
	codes := decode(prog)
	require.Contains(t, codes, op.BuildKwargs)
	require.Contains(t, codes, op.CallFunction)
}

func TestCompileMethodCall(t *testing.T) {
	prog := compileSource(t, `{{ name.upper() }}`)
	require.Contains(t, decode(prog), op.CallMethod)
}

func TestCompileFilterAndTest(t *testing.T) {
	prog := compileSource(t, `{{ x | join(", ") if x is iterable }}`)
	codes := decode(prog)
	require.Contains(t, codes, op.ApplyFilter)
	require.Contains(t, codes, op.PerformTest)
}

func TestLineTable(t *testing.T) {
	prog := compileSource(t, "line1\n{{ a }}\n{{ b }}")
	// Find the Lookup of "b" and check its recorded line
	for i := 0; i < len(prog.Instructions); {
		code := prog.Instructions[i]
		if code == op.Lookup && prog.Names[prog.Instructions[i+1]] == "b" {
			require.Equal(t, 3, prog.LineForInstruction(i))
		}
		i += 1 + op.GetInfo(code).OperandCount
	}
}

func TestDisassemble(t *testing.T) {
	prog := compileSource(t, "{{ name | upper }}")
	out := prog.Disassemble()
	require.Contains(t, out, "LOOKUP")
	require.Contains(t, out, "APPLY_FILTER")
	require.Contains(t, out, "name")
}
