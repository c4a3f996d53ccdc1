package asm

import "github.com/kiplingw/agni-go/avm"

// OperandClass is a bitmask of the operand forms legal at one operand
// position of one instruction template.
type OperandClass uint8

const (
	ClassInteger OperandClass = 1 << iota
	ClassFloat
	ClassString
	ClassRegister
	// ClassMemory permits a declared variable/array identifier, emitted
	// as an absolute or relative stack-index operand.
	ClassMemory
	// ClassLabel permits a line-label identifier in scope, emitted as an
	// instruction-index operand.
	ClassLabel
	// ClassFunction permits a declared function name, emitted as a
	// function-index operand.
	ClassFunction
	// ClassHostFunction permits any identifier as a host-function name:
	// it is interned into the host-function table even if no such host
	// function is registered yet (host functions are resolved at link
	// time by the embedding application, not assemble time).
	ClassHostFunction
)

const (
	// numeric is the common "read a number" shape: a literal, a
	// register, or a variable/array reference.
	numeric = ClassInteger | ClassFloat | ClassRegister | ClassMemory
	// mutable is the common "somewhere to store a result" shape.
	mutable = ClassRegister | ClassMemory
	// stringy is the common "read a string" shape.
	stringy = ClassString | ClassRegister | ClassMemory
	// integral is the common "read an int-tagged value" shape, used by
	// bitwise/index operands which are only meaningful as integers.
	integral = ClassInteger | ClassRegister | ClassMemory
)

// Template describes one instruction's legal operand forms, in operand
// order (destination first).
type Template struct {
	Opcode   avm.Opcode
	Operands []OperandClass
}

var templates = map[avm.Opcode]Template{
	avm.Mov:    {avm.Mov, []OperandClass{mutable, ClassInteger | ClassFloat | ClassString | ClassRegister | ClassMemory}},
	avm.Add:    {avm.Add, []OperandClass{mutable, numeric}},
	avm.Sub:    {avm.Sub, []OperandClass{mutable, numeric}},
	avm.Mul:    {avm.Mul, []OperandClass{mutable, numeric}},
	avm.Div:    {avm.Div, []OperandClass{mutable, numeric}},
	avm.Mod:    {avm.Mod, []OperandClass{mutable, numeric}},
	avm.Exp:    {avm.Exp, []OperandClass{mutable, numeric}},
	avm.Neg:    {avm.Neg, []OperandClass{mutable}},
	avm.Inc:    {avm.Inc, []OperandClass{mutable}},
	avm.Dec:    {avm.Dec, []OperandClass{mutable}},

	avm.And: {avm.And, []OperandClass{mutable, integral}},
	avm.Or:  {avm.Or, []OperandClass{mutable, integral}},
	avm.Xor: {avm.Xor, []OperandClass{mutable, integral}},
	avm.Not: {avm.Not, []OperandClass{mutable}},
	avm.Shl: {avm.Shl, []OperandClass{mutable, integral}},
	avm.Shr: {avm.Shr, []OperandClass{mutable, integral}},

	avm.Concat:  {avm.Concat, []OperandClass{mutable, stringy}},
	avm.GetChar: {avm.GetChar, []OperandClass{mutable, stringy, integral}},
	avm.SetChar: {avm.SetChar, []OperandClass{mutable, integral, stringy}},

	avm.Jmp: {avm.Jmp, []OperandClass{ClassLabel}},
	avm.Je:  {avm.Je, []OperandClass{numeric, numeric, ClassLabel}},
	avm.Jne: {avm.Jne, []OperandClass{numeric, numeric, ClassLabel}},
	avm.Jg:  {avm.Jg, []OperandClass{numeric, numeric, ClassLabel}},
	avm.Jl:  {avm.Jl, []OperandClass{numeric, numeric, ClassLabel}},
	avm.Jge: {avm.Jge, []OperandClass{numeric, numeric, ClassLabel}},
	avm.Jle: {avm.Jle, []OperandClass{numeric, numeric, ClassLabel}},

	avm.Push: {avm.Push, []OperandClass{ClassInteger | ClassFloat | ClassString | ClassRegister | ClassMemory}},
	avm.Pop:  {avm.Pop, []OperandClass{mutable}},

	avm.Call:     {avm.Call, []OperandClass{ClassFunction}},
	avm.Ret:      {avm.Ret, nil},
	avm.CallHost: {avm.CallHost, []OperandClass{ClassHostFunction}},

	avm.Rand:  {avm.Rand, []OperandClass{mutable, integral}},
	avm.Pause: {avm.Pause, []OperandClass{integral}},
	avm.Exit:  {avm.Exit, nil},
}
