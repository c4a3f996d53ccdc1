// Package avm defines the tagged runtime value shared by the assembler
// (as an operand literal) and the virtual machine (as a stack slot,
// register, or operand-resolution result).
package avm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind discriminates the payload carried by a Value. It mirrors the
// AVM_RuntimeValue tag set from the original Agni engine, minus the two
// wire-only string representations (string-index vs inline-string): the
// vm package's loader turns string-index operands into KindString values
// and rejects inline-string operands (see vm.resolveWireOperand).
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindString
	KindStackIndexAbsolute
	KindStackIndexRelative
	KindInstructionIndex
	KindFunctionIndex
	KindHostFunctionIndex
	KindRegister
	KindStackBaseMarker
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindStackIndexAbsolute:
		return "stack-index-absolute"
	case KindStackIndexRelative:
		return "stack-index-relative"
	case KindInstructionIndex:
		return "instruction-index"
	case KindFunctionIndex:
		return "function-index"
	case KindHostFunctionIndex:
		return "host-function-index"
	case KindRegister:
		return "register"
	case KindStackBaseMarker:
		return "stack-base-marker"
	default:
		return "?unknown-kind?"
	}
}

// RegisterID enumerates the three per-script registers. Register 0 is
// deliberately unused so the zero Value (KindNull) never aliases a
// legitimate register identifier.
type RegisterID uint8

const (
	RegisterT0 RegisterID = iota + 1
	RegisterT1
	RegisterReturn
)

func (r RegisterID) String() string {
	switch r {
	case RegisterT0:
		return "_RegisterT0"
	case RegisterT1:
		return "_RegisterT1"
	case RegisterReturn:
		return "_RegisterReturn"
	default:
		return "?unknown-register?"
	}
}

// Value is the tagged, owned runtime value. Strings are uniquely owned by
// whichever Value currently holds them: copying a Value that holds a
// string must go through Clone so that mutating one copy's string never
// affects the other (spec invariant: deep-copy law).
type Value struct {
	Kind Kind

	Int   int32
	Flt   float32
	Str   *string
	Reg   RegisterID

	// Only meaningful when Kind == KindStackIndexRelative: the effective
	// absolute index is Base + stack[resolve(OffsetSlot)].Int.
	Base       int32
	OffsetSlot int32
}

// Null returns the zero value, tagged null.
func Null() Value { return Value{Kind: KindNull} }

// Integer constructs an integer literal value.
func Integer(v int32) Value { return Value{Kind: KindInteger, Int: v} }

// Float constructs a float literal value.
func Float(v float32) Value { return Value{Kind: KindFloat, Flt: v} }

// String constructs an owned string value. s is stored behind a pointer of
// the value's own, so no other Value shares it.
func String(s string) Value {
	owned := s
	return Value{Kind: KindString, Str: &owned}
}

// StackIndexAbsolute constructs an absolute stack index operand.
func StackIndexAbsolute(idx int32) Value {
	return Value{Kind: KindStackIndexAbsolute, Int: idx}
}

// StackIndexRelative constructs a relative stack index operand.
func StackIndexRelative(base, offsetSlot int32) Value {
	return Value{Kind: KindStackIndexRelative, Base: base, OffsetSlot: offsetSlot}
}

// InstructionIndex constructs an instruction-stream index operand (jump
// targets).
func InstructionIndex(idx int32) Value {
	return Value{Kind: KindInstructionIndex, Int: idx}
}

// FunctionIndex constructs a function-table index operand, also used as
// the function-index marker pushed at call time (see vm.pushFrame), where
// Base carries the caller's saved frame-top index.
func FunctionIndex(idx, savedFrameTop int32) Value {
	return Value{Kind: KindFunctionIndex, Int: idx, Base: savedFrameTop}
}

// HostFunctionIndex constructs a host-function-table index operand.
func HostFunctionIndex(idx int32) Value {
	return Value{Kind: KindHostFunctionIndex, Int: idx}
}

// Register constructs a register-identifier operand.
func Register(r RegisterID) Value { return Value{Kind: KindRegister, Reg: r} }

// StackBaseMarker constructs the distinguished frame-top marker a
// synchronous host call writes so the interpreter loop knows to stop when
// it is popped by Ret.
func StackBaseMarker() Value { return Value{Kind: KindStackBaseMarker} }

// Clone deep-copies v: if v owns a string, the clone gets its own copy so
// that mutating the string contents of one (e.g. via SetChar) never
// affects the other.
func (v Value) Clone() Value {
	if v.Str != nil {
		s := *v.Str
		v.Str = &s
	}
	return v
}

var errNotCoercible = errors.New("value cannot be coerced to the requested type")

// ToInt coerces v to an integer: int passes through, float truncates
// toward zero, string parses a leading decimal integer (a non-numeric
// or empty prefix yields 0), anything else is an error.
func (v Value) ToInt() (int32, error) {
	switch v.Kind {
	case KindInteger:
		return v.Int, nil
	case KindFloat:
		return int32(v.Flt), nil
	case KindString:
		return parseLeadingInt(v.strValue()), nil
	default:
		return 0, errors.Wrapf(errNotCoercible, "kind %s to integer", v.Kind)
	}
}

// ToFloat coerces v to a float.
func (v Value) ToFloat() (float32, error) {
	switch v.Kind {
	case KindFloat:
		return v.Flt, nil
	case KindInteger:
		return float32(v.Int), nil
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.strValue()), 32)
		if err != nil {
			return 0, nil
		}
		return float32(f), nil
	default:
		return 0, errors.Wrapf(errNotCoercible, "kind %s to float", v.Kind)
	}
}

// ToString coerces v to a string: ints render as decimal text, floats
// render with at least 6 fractional digits, strings pass through
// unchanged.
func (v Value) ToString() (string, error) {
	switch v.Kind {
	case KindString:
		return v.strValue(), nil
	case KindInteger:
		return strconv.FormatInt(int64(v.Int), 10), nil
	case KindFloat:
		return strconv.FormatFloat(float64(v.Flt), 'f', 6, 32), nil
	default:
		return "", errors.Wrapf(errNotCoercible, "kind %s to string", v.Kind)
	}
}

func (v Value) strValue() string {
	if v.Str == nil {
		return ""
	}
	return *v.Str
}

// parseLeadingInt parses the longest valid decimal-integer prefix of s,
// returning 0 if there isn't one. This matches the source behaviour of
// coercing non-numeric strings to integer 0 rather than failing outright.
func parseLeadingInt(s string) int32 {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 32)
	if err != nil {
		return 0
	}
	return int32(n)
}

// GoString supports %#v-style debug printing of values in error messages
// and listing dumps.
func (v Value) GoString() string {
	switch v.Kind {
	case KindString:
		return fmt.Sprintf("%q", v.strValue())
	case KindFloat:
		return strconv.FormatFloat(float64(v.Flt), 'f', -1, 32)
	case KindRegister:
		return v.Reg.String()
	case KindStackIndexRelative:
		return fmt.Sprintf("[%d+slot(%d)]", v.Base, v.OffsetSlot)
	default:
		return fmt.Sprintf("%d", v.Int)
	}
}
