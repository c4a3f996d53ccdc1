package vm

import (
	"github.com/kiplingw/agni-go/avm"
	"github.com/pkg/errors"
)

var errNotMutable = errors.New("operand does not refer to a writable location")

// resolveStackIndex computes the absolute (already frame-top-resolved)
// stack index an operand refers to. A relative operand's own offset slot
// is itself resolved through the stack's current frame top before being
// added to Base, matching the reference engine's double resolution.
func resolveStackIndex(s *Script, v avm.Value) (int32, error) {
	switch v.Kind {
	case avm.KindStackIndexAbsolute:
		return s.stack.resolveIndex(v.Int), nil
	case avm.KindStackIndexRelative:
		offset, err := s.stack.at(v.OffsetSlot)
		if err != nil {
			return 0, err
		}
		return s.stack.resolveIndex(v.Base + offset.Int), nil
	default:
		return 0, errors.New("value is not a stack index operand")
	}
}

// resolveValue reads the value an operand currently denotes: a stack
// slot, a register, or (for every other kind) the operand's own literal
// payload, per the reference engine's ResolveOperandValue.
func resolveValue(s *Script, v avm.Value) (avm.Value, error) {
	switch v.Kind {
	case avm.KindStackIndexAbsolute, avm.KindStackIndexRelative:
		idx, err := resolveStackIndex(s, v)
		if err != nil {
			return avm.Value{}, err
		}
		return s.stack.at(idx)
	case avm.KindRegister:
		return *s.register(v.Reg), nil
	default:
		return v, nil
	}
}

// setValue writes newVal to the mutable location v refers to (a stack
// slot or a register). Any other operand kind is not a valid assignment
// destination.
func setValue(s *Script, v avm.Value, newVal avm.Value) error {
	switch v.Kind {
	case avm.KindStackIndexAbsolute, avm.KindStackIndexRelative:
		idx, err := resolveStackIndex(s, v)
		if err != nil {
			return err
		}
		return s.stack.set(idx, newVal)
	case avm.KindRegister:
		*s.register(v.Reg) = newVal.Clone()
		return nil
	default:
		return errNotMutable
	}
}

// sameLocation reports whether two operands denote the identical
// writable location, used by Mov to skip a self-assignment exactly as
// the reference engine's pointer-equality check does.
func sameLocation(s *Script, a, b avm.Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case avm.KindStackIndexAbsolute, avm.KindStackIndexRelative:
		ia, erra := resolveStackIndex(s, a)
		ib, errb := resolveStackIndex(s, b)
		return erra == nil && errb == nil && ia == ib
	case avm.KindRegister:
		return a.Reg == b.Reg
	default:
		return false
	}
}
