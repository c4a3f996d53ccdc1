package vm

import (
	"time"

	"github.com/kiplingw/agni-go/avm"
	"github.com/kiplingw/agni-go/exe"
)

// AgniRuntimeMajor and AgniRuntimeMinor are this runtime's own version,
// compared against an executable's required-version header fields.
const (
	AgniRuntimeMajor uint8 = 1
	AgniRuntimeMinor uint8 = 0
)

// DefaultStackSize replaces the on-disk "default" stack-size sentinel.
const DefaultStackSize = 1024

// versionSafe reports whether the available (major, minor) pair
// satisfies a requested minimum, per the reference loader's lexicographic
// major-then-minor comparison.
func versionSafe(availableMajor, availableMinor, requiredMajor, requiredMinor uint8) bool {
	if availableMajor != requiredMajor {
		return availableMajor > requiredMajor
	}
	return availableMinor >= requiredMinor
}

// timeSliceFor selects the duration a thread of the given priority runs
// before the scheduler considers a context switch.
func timeSliceFor(priority exe.ThreadPriorityType, userMs uint32) time.Duration {
	switch priority {
	case exe.PriorityLow:
		return 20 * time.Millisecond
	case exe.PriorityMedium:
		return 40 * time.Millisecond
	case exe.PriorityHigh:
		return 80 * time.Millisecond
	case exe.PriorityUser:
		return time.Duration(userMs) * time.Millisecond
	default:
		return 20 * time.Millisecond
	}
}

// Load validates and materializes image into a runnable Script. On any
// validation failure no partial script state persists.
func (v *VM) Load(image []byte) (*Script, Status) {
	if !exe.CheckSignature(image) {
		return nil, BadExecutable
	}
	if _, _, ok, err := exe.VerifyChecksum(image); err != nil {
		return nil, BadExecutable
	} else if !ok {
		return nil, BadChecksum
	}

	x, err := exe.Decode(image)
	if err != nil {
		return nil, BadExecutable
	}

	if !versionSafe(AgniRuntimeMajor, AgniRuntimeMinor, x.Header.RequiredMajor, x.Header.RequiredMinor) {
		return nil, OldAgniRuntime
	}

	var hostName string
	if x.Header.HostStringIndex != exe.HostStringIndexNone {
		if int(x.Header.HostStringIndex) >= len(x.Strings) {
			return nil, BadExecutable
		}
		hostName = x.Strings[x.Header.HostStringIndex]

		if !versionSafe(v.hostMajor, v.hostMinor, x.Header.HostMajor, x.Header.HostMinor) {
			return nil, OldHost
		}
		if v.hostName != "" && !equalFoldASCII(hostName, v.hostName) {
			return nil, WrongHost
		}
	}

	stackSize := x.Header.StackSize
	if stackSize == exe.StackSizeDefault {
		stackSize = DefaultStackSize
	}

	s := &Script{
		loaded:            true,
		agniMajor:         x.Header.AvailableMajor,
		agniMinor:         x.Header.AvailableMinor,
		requiredAgniMajor: x.Header.RequiredMajor,
		requiredAgniMinor: x.Header.RequiredMinor,
		hostName:          hostName,
		hostMajor:         x.Header.HostMajor,
		hostMinor:         x.Header.HostMinor,
		checksum:          x.Header.Checksum,
		mainIndex:         -1,
		globalDataSize:    x.Header.GlobalDataSize,
		stack:             newStack(stackSize),
		priority:          priorityFromWire(x.Header.ThreadPriorityType),
		timeSlice:         timeSliceFor(x.Header.ThreadPriorityType, x.Header.ThreadPriorityUser),
	}
	if x.Header.MainIndex != exe.MainIndexNone {
		s.mainIndex = int32(x.Header.MainIndex)
	}

	s.instructions = make([]instruction, len(x.Instructions))
	for i, src := range x.Instructions {
		operands := make([]avm.Value, len(src.Operands))
		for j, op := range src.Operands {
			val, err := resolveWireOperand(op, x.Strings)
			if err != nil {
				return nil, BadExecutable
			}
			operands[j] = val
		}
		s.instructions[i] = instruction{opcode: src.Opcode, operands: operands}
	}

	s.functions = make([]function, len(x.Functions))
	for i, f := range x.Functions {
		s.functions[i] = function{
			name:           f.Name,
			entryPoint:     f.EntryPoint,
			parameterCount: f.ParameterCount,
			localDataSize:  f.LocalDataSize,
			stackFrameSize: uint32(f.ParameterCount) + 1 + f.LocalDataSize,
		}
	}

	s.hostFunctionNames = make([]string, len(x.HostFunctions))
	for i, h := range x.HostFunctions {
		s.hostFunctionNames[i] = h.Name
	}

	if err := s.stack.pushN(int32(x.Header.GlobalDataSize)); err != nil {
		return nil, MemoryAllocation
	}

	return s, Ok
}

// resolveWireOperand rewrites a string-index operand into an owned
// string value so the in-memory instruction stream refers to string
// literals inline rather than by index.
func resolveWireOperand(op exe.Operand, strings []string) (avm.Value, error) {
	switch op.Type {
	case exe.OperandNull:
		return avm.Null(), nil
	case exe.OperandInteger:
		return avm.Integer(op.Int), nil
	case exe.OperandFloat:
		return avm.Float(op.Flt), nil
	case exe.OperandStringIndex:
		if int(op.Int) < 0 || int(op.Int) >= len(strings) {
			return avm.Value{}, errBadStringIndex
		}
		return avm.String(strings[op.Int]), nil
	case exe.OperandStackIndexAbsolute:
		return avm.StackIndexAbsolute(op.Int), nil
	case exe.OperandStackIndexRelative:
		return avm.StackIndexRelative(op.Base, op.OffsetSlot), nil
	case exe.OperandInstructionIndex:
		return avm.InstructionIndex(op.Int), nil
	case exe.OperandFunctionIndex:
		return avm.FunctionIndex(op.Int, 0), nil
	case exe.OperandHostFunctionIndex:
		return avm.HostFunctionIndex(op.Int), nil
	case exe.OperandRegister:
		return avm.Register(op.Reg), nil
	case exe.OperandStackBaseMarker:
		return avm.StackBaseMarker(), nil
	default:
		return avm.Value{}, errBadOperandType
	}
}

func priorityFromWire(p exe.ThreadPriorityType) ThreadPriority {
	switch p {
	case exe.PriorityLow:
		return PriorityLow
	case exe.PriorityMedium:
		return PriorityMedium
	case exe.PriorityHigh:
		return PriorityHigh
	default:
		return PriorityUser
	}
}
