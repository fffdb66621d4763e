package compiler

import (
	"fmt"
	"strings"

	"github.com/cloudcmds/vellum/op"
	"github.com/cloudcmds/vellum/value"
)

// Program is the immutable bytecode produced for one template, block body,
// or macro body. Block and macro programs carry their own constant and name
// pools so every Program is self-contained.
type Program struct {
	// Name identifies the program: the template name for a root program,
	// "block <name>" for block bodies, the macro name for macro bodies.
	Name string

	// TemplateName is the name of the template this program belongs to,
	// used for error enrichment.
	TemplateName string

	// Instructions is the flat opcode/operand stream.
	Instructions []op.Code

	// Lines maps each instruction slot to its 1-based source line.
	Lines []int

	// Constants is the deduplicated literal pool.
	Constants []value.Value

	// Names is the interned name table used by lookup, store, attribute,
	// and call instructions.
	Names []string

	// Blocks maps block names to their compiled bodies. Only root programs
	// have entries.
	Blocks map[string]*Program

	// Children holds macro body programs referenced by BuildMacro.
	Children []*Program

	// Params are the parameter names of a macro program, in declaration
	// order. The last DefaultCount parameters have default values.
	Params       []string
	DefaultCount int

	// HasParent is set when the program contains an extends statement.
	HasParent bool

	// ParentName holds the statically-known parent template name when the
	// extends target is a string literal, for cycle diagnostics.
	ParentName string
}

// LineForInstruction returns the source line for the given instruction
// index, or 0 if unknown.
func (p *Program) LineForInstruction(idx int) int {
	if idx < 0 || idx >= len(p.Lines) {
		return 0
	}
	return p.Lines[idx]
}

// Disassemble renders the instruction stream in a human readable form.
func (p *Program) Disassemble() string {
	var b strings.Builder
	p.disassemble(&b, "")
	return b.String()
}

func (p *Program) disassemble(b *strings.Builder, indent string) {
	fmt.Fprintf(b, "%s%s:\n", indent, p.Name)
	for i := 0; i < len(p.Instructions); {
		info := op.GetInfo(p.Instructions[i])
		fmt.Fprintf(b, "%s%5d  %-22s", indent, i, info.Name)
		for j := 1; j <= info.OperandCount; j++ {
			operand := p.Instructions[i+j]
			fmt.Fprintf(b, " %d", operand)
			if j == 1 {
				if hint := p.operandHint(p.Instructions[i], operand); hint != "" {
					fmt.Fprintf(b, " (%s)", hint)
				}
			}
		}
		b.WriteString("\n")
		i += 1 + info.OperandCount
	}
	for _, block := range p.Blocks {
		block.disassemble(b, indent+"  ")
	}
	for _, child := range p.Children {
		child.disassemble(b, indent+"  ")
	}
}

func (p *Program) operandHint(code op.Code, operand op.Code) string {
	switch code {
	case op.LoadConst, op.EmitRaw:
		if int(operand) < len(p.Constants) {
			s := p.Constants[operand].Inspect()
			if len(s) > 40 {
				s = s[:37] + "..."
			}
			return s
		}
	case op.Lookup, op.StoreLocal, op.GetAttr, op.SetAttr, op.CallBlock,
		op.ApplyFilter, op.PerformTest, op.CallFunction, op.CallMethod:
		if int(operand) < len(p.Names) {
			return p.Names[operand]
		}
	}
	return ""
}
