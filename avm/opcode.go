package avm

// Opcode identifies one of the ~34 instructions the interpreter
// understands. Numbering follows the original Agni engine's
// INSTRUCTION_AVM enum so that listings and executables produced against
// this package line up with the reference engine's bit patterns.
type Opcode uint16

const (
	Mov Opcode = iota + 1

	Add
	Sub
	Mul
	Div
	Mod
	Exp
	Neg
	Inc
	Dec

	And
	Or
	Xor
	Not
	Shl
	Shr

	Concat
	GetChar
	SetChar

	Jmp
	Je
	Jne
	Jg
	Jl
	Jge
	Jle

	Push
	Pop

	Call
	Ret
	CallHost

	Rand
	Pause
	Exit
)

// mnemonics maps lower-case mnemonic text (LookupMnemonic lower-cases its
// input before the lookup) to its opcode. Built once in init from opcodeNames below so the two stay
// in sync by construction.
var mnemonics map[string]Opcode

// opcodeNames gives the canonical mnemonic for each opcode, also used by
// Opcode.String for disassembly/listing dumps.
var opcodeNames = map[Opcode]string{
	Mov:      "Mov",
	Add:      "Add",
	Sub:      "Sub",
	Mul:      "Mul",
	Div:      "Div",
	Mod:      "Mod",
	Exp:      "Exp",
	Neg:      "Neg",
	Inc:      "Inc",
	Dec:      "Dec",
	And:      "And",
	Or:       "Or",
	Xor:      "Xor",
	Not:      "Not",
	Shl:      "Shl",
	Shr:      "Shr",
	Concat:   "Concat",
	GetChar:  "GetChar",
	SetChar:  "SetChar",
	Jmp:      "Jmp",
	Je:       "Je",
	Jne:      "Jne",
	Jg:       "Jg",
	Jl:       "Jl",
	Jge:      "Jge",
	Jle:      "Jle",
	Push:     "Push",
	Pop:      "Pop",
	Call:     "Call",
	Ret:      "Ret",
	CallHost: "CallHost",
	Rand:     "Rand",
	Pause:    "Pause",
	Exit:     "Exit",
}

// operandCounts gives the fixed operand arity the assembler must see (and
// the interpreter must expect) for each opcode.
var operandCounts = map[Opcode]int{
	Mov: 2, Add: 2, Sub: 2, Mul: 2, Div: 2, Mod: 2, Exp: 2,
	Neg: 1, Inc: 1, Dec: 1,
	And: 2, Or: 2, Xor: 2, Not: 1, Shl: 2, Shr: 2,
	Concat: 2, GetChar: 3, SetChar: 3,
	Jmp: 1, Je: 3, Jne: 3, Jg: 3, Jl: 3, Jge: 3, Jle: 3,
	Push: 1, Pop: 1,
	Call: 1, Ret: 0, CallHost: 1,
	Rand: 2, Pause: 1, Exit: 0,
}

func init() {
	mnemonics = make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		mnemonics[lower(name)] = op
	}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// String renders the canonical mnemonic, or a placeholder for an unknown
// opcode value (e.g. one corrupted by a bad executable).
func (o Opcode) String() string {
	if s, ok := opcodeNames[o]; ok {
		return s
	}
	return "?unknown-opcode?"
}

// LookupMnemonic resolves source text (case-insensitive) to its opcode.
func LookupMnemonic(text string) (Opcode, bool) {
	op, ok := mnemonics[lower(text)]
	return op, ok
}

// OperandCount returns the fixed number of operands o's instruction form
// requires.
func (o Opcode) OperandCount() int {
	return operandCounts[o]
}

// IsConditionalJump reports whether o is one of the Je/Jne/Jg/Jl/Jge/Jle
// family, which share the (a, b, target) operand shape and only move the
// instruction pointer when taken.
func (o Opcode) IsConditionalJump() bool {
	switch o {
	case Je, Jne, Jg, Jl, Jge, Jle:
		return true
	default:
		return false
	}
}
