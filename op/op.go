// Package op defines the bytecode instruction set.
//
// Instructions and their operands are both encoded as uint16 values in a
// flat slice. Jump operands hold absolute instruction indices, backpatched
// by the compiler once the target is known.
package op

// Code is an integer used to identify an opcode. Operands are encoded
// inline after the opcode using the same type.
type Code uint16

const (
	Nop Code = iota

	// Output
	Emit    // pop a value and write it, applying active escaping
	EmitRaw // operand: constant index of a text chunk written verbatim

	// Values
	LoadConst   // operand: constant pool index
	Lookup      // operand: name index; resolves through the frame chain
	StoreLocal  // operand: name index; binds in the current frame
	GetAttr     // operand: name index; pops object
	SetAttr     // operand: name index; pops object then value
	GetItem     // pops key then object
	Slice       // pops step, stop, start, object
	BuildList   // operand: item count
	BuildMap    // operand: pair count
	BuildKwargs // operand: pair count
	ListAppend  // pops item, appends to the list beneath it
	UnpackList  // operand: expected length; pops a sequence, pushes elements

	// Operators
	BinaryOp     // operand: value.BinaryOpType
	CompareOp    // operand: value.CompareOpType
	Contains     // pops container then item
	Not          // pops a value, pushes its boolean negation
	Neg          // pops a numeric value, pushes its negation
	StringConcat // pops two values, pushes their string concatenation
	IsUndefined  // pops a value, pushes whether it was undefined
	DupTop       // duplicates the top of the stack
	DiscardTop   // pops and discards the top of the stack

	// Control flow
	Jump             // operand: absolute target
	JumpIfFalse      // operand: absolute target; pops the condition
	JumpIfFalseOrPop // operand: absolute target; peeks, pops only on true
	JumpIfTrueOrPop  // operand: absolute target; peeks, pops only on false

	// Frames and loops
	PushWith          // push a plain scope frame
	PopFrame          // pop the current scope frame (plain or loop)
	PushLoop          // operand: flags; pops the iterable, pushes a loop frame
	Iterate           // operand: jump target on exhaustion; pushes next item
	PushDidNotIterate // pushes whether the current loop ran zero times
	FastRecurse       // recursive loop re-entry; pops the new iterable

	// Escaping and capture
	PushAutoEscape // pops the mode value
	PopAutoEscape
	BeginCapture // operand: capture mode (capture or discard)
	EndCapture   // pushes the captured output as a safe string

	// Calls
	ApplyFilter  // operands: name index, argument count
	PerformTest  // operands: name index, argument count
	CallFunction // operands: name index, argument count
	CallMethod   // operands: name index, argument count
	CallObject   // operand: argument count; callee is beneath the arguments
	BuildMacro   // operands: child program index, name index
	Return

	// Templates
	CallBlock      // operand: name index; renders the named block in place
	LoadBlocks     // pops the parent template name, activating inheritance
	Include        // operand: ignore-missing flag; pops the template name
	ImportTemplate // pops the template name, pushes its module
	ExportLocals   // records the current frame's locals as the module exports
)

// Info holds the name and operand layout of one opcode.
type Info struct {
	Code         Code
	Name         string
	OperandCount int
}

var infos [64]Info

func registerInfo(code Code, name string, operands int) {
	infos[code] = Info{Code: code, Name: name, OperandCount: operands}
}

// GetInfo returns the Info for the given opcode.
func GetInfo(code Code) Info {
	return infos[code]
}

func init() {
	registerInfo(Nop, "NOP", 0)
	registerInfo(Emit, "EMIT", 0)
	registerInfo(EmitRaw, "EMIT_RAW", 1)
	registerInfo(LoadConst, "LOAD_CONST", 1)
	registerInfo(Lookup, "LOOKUP", 1)
	registerInfo(StoreLocal, "STORE_LOCAL", 1)
	registerInfo(GetAttr, "GET_ATTR", 1)
	registerInfo(SetAttr, "SET_ATTR", 1)
	registerInfo(GetItem, "GET_ITEM", 0)
	registerInfo(Slice, "SLICE", 0)
	registerInfo(BuildList, "BUILD_LIST", 1)
	registerInfo(BuildMap, "BUILD_MAP", 1)
	registerInfo(BuildKwargs, "BUILD_KWARGS", 1)
	registerInfo(ListAppend, "LIST_APPEND", 0)
	registerInfo(UnpackList, "UNPACK_LIST", 1)
	registerInfo(BinaryOp, "BINARY_OP", 1)
	registerInfo(CompareOp, "COMPARE_OP", 1)
	registerInfo(Contains, "CONTAINS", 0)
	registerInfo(Not, "NOT", 0)
	registerInfo(Neg, "NEG", 0)
	registerInfo(StringConcat, "STRING_CONCAT", 0)
	registerInfo(IsUndefined, "IS_UNDEFINED", 0)
	registerInfo(DupTop, "DUP_TOP", 0)
	registerInfo(DiscardTop, "DISCARD_TOP", 0)
	registerInfo(Jump, "JUMP", 1)
	registerInfo(JumpIfFalse, "JUMP_IF_FALSE", 1)
	registerInfo(JumpIfFalseOrPop, "JUMP_IF_FALSE_OR_POP", 1)
	registerInfo(JumpIfTrueOrPop, "JUMP_IF_TRUE_OR_POP", 1)
	registerInfo(PushWith, "PUSH_WITH", 0)
	registerInfo(PopFrame, "POP_FRAME", 0)
	registerInfo(PushLoop, "PUSH_LOOP", 1)
	registerInfo(Iterate, "ITERATE", 1)
	registerInfo(PushDidNotIterate, "PUSH_DID_NOT_ITERATE", 0)
	registerInfo(FastRecurse, "FAST_RECURSE", 0)
	registerInfo(PushAutoEscape, "PUSH_AUTO_ESCAPE", 0)
	registerInfo(PopAutoEscape, "POP_AUTO_ESCAPE", 0)
	registerInfo(BeginCapture, "BEGIN_CAPTURE", 1)
	registerInfo(EndCapture, "END_CAPTURE", 0)
	registerInfo(ApplyFilter, "APPLY_FILTER", 2)
	registerInfo(PerformTest, "PERFORM_TEST", 2)
	registerInfo(CallFunction, "CALL_FUNCTION", 2)
	registerInfo(CallMethod, "CALL_METHOD", 2)
	registerInfo(CallObject, "CALL_OBJECT", 1)
	registerInfo(BuildMacro, "BUILD_MACRO", 2)
	registerInfo(Return, "RETURN", 0)
	registerInfo(CallBlock, "CALL_BLOCK", 1)
	registerInfo(LoadBlocks, "LOAD_BLOCKS", 0)
	registerInfo(Include, "INCLUDE", 1)
	registerInfo(ImportTemplate, "IMPORT_TEMPLATE", 0)
	registerInfo(ExportLocals, "EXPORT_LOCALS", 0)
}

// Loop flag bits for PushLoop.
const (
	LoopRecursive uint16 = 1 << 0
)

// Capture modes for BeginCapture.
const (
	CaptureModeCapture uint16 = 0
	CaptureModeDiscard uint16 = 1
)

// Placeholder marks a jump operand that has not been backpatched yet. A
// Placeholder surviving to execution is a compiler bug.
const Placeholder Code = 65535
