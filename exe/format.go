// Package exe implements the bit-exact binary executable format that the
// assembler (package asm) writes and the virtual machine loader (package
// vm) reads: main header, instruction stream, string stream, function
// table, host-function table, and the checksum that binds them together.
package exe

import (
	"github.com/kiplingw/agni-go/avm"
)

// OperandType is the on-disk tag for one instruction operand. It is a
// strict superset of avm.Kind: KindString comes from OperandStringIndex
// (interned, looked up at load time). OperandInlineString is reserved:
// Encode refuses it and the vm loader rejects it (empty-string literals
// are emitted as integer 0 instead).
type OperandType uint8

const (
	OperandNull OperandType = iota
	OperandInteger
	OperandFloat
	OperandStringIndex
	OperandInlineString
	OperandStackIndexAbsolute
	OperandStackIndexRelative
	OperandInstructionIndex
	OperandFunctionIndex
	OperandHostFunctionIndex
	OperandRegister
	OperandStackBaseMarker
)

// ThreadPriorityType is the on-disk thread priority kind.
type ThreadPriorityType uint8

const (
	PriorityUser ThreadPriorityType = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
)

// Signature is the 8-byte magic every Agni executable begins with.
var Signature = [8]byte{0x90, 0x90, 'A', 'G', 'N', 'I', 0x90, 0x90}

const (
	// HostStringIndexNone marks a header with no declared host name.
	HostStringIndexNone uint32 = 0xFFFFFFFF
	// StackSizeDefault marks a header requesting the loader's default
	// stack size.
	StackSizeDefault uint32 = 0xFFFFFFFF
	// MainIndexNone marks a header with no entry-point function.
	MainIndexNone uint32 = 0xFFFFFFFF
)

// MainHeader is the fixed-layout header at the start of every executable image.
type MainHeader struct {
	AvailableMajor, AvailableMinor uint8
	RequiredMajor, RequiredMinor   uint8

	HostStringIndex            uint32
	HostMajor, HostMinor        uint8

	Checksum uint32

	StackSize      uint32
	GlobalDataSize uint32
	MainIndex      uint32

	ThreadPriorityType ThreadPriorityType
	ThreadPriorityUser uint32
}

// Operand is one decoded/encoded instruction operand. Only the fields
// relevant to Type are meaningful, mirroring avm.Value's own tagged
// layout (exe and avm intentionally share shape so loading is a
// near-direct copy, see vm.resolveWireOperand).
type Operand struct {
	Type OperandType

	Int   int32
	Flt   float32
	Reg   avm.RegisterID

	Base       int32
	OffsetSlot int32
}

// Instruction is one on-disk instruction record.
type Instruction struct {
	Opcode   avm.Opcode
	Operands []Operand
}

// FunctionEntry is one on-disk function-table record.
type FunctionEntry struct {
	EntryPoint    uint32
	ParameterCount uint8
	LocalDataSize uint32
	Name          string
}

// HostFunctionEntry is one on-disk host-function-table record.
type HostFunctionEntry struct {
	Name string
}

// Executable is the fully decoded (or pre-encode) contents of an .age
// file.
type Executable struct {
	Header           MainHeader
	Instructions     []Instruction
	Strings          []string
	Functions        []FunctionEntry
	HostFunctions    []HostFunctionEntry
}
