package vm

import (
	"math"
	"time"

	"github.com/kiplingw/agni-go/avm"
)

func fault(h Handle, reason string) *Fault {
	return &Fault{Handle: h, Reason: reason}
}

// step executes exactly one instruction of s and reports whether the
// script terminated as a direct result (Exit, or a Ret that popped the
// stack-base marker placed by a blocking host call). After the
// instruction runs, step advances the instruction pointer only if the
// instruction itself left it unchanged, mirroring the reference interpreter's single shared
// auto-increment at the bottom of its dispatch loop.
func step(v *VM, s *Script) (terminated bool, err error) {
	if int(s.instructionPointer) >= len(s.instructions) {
		return false, fault(s.handle, "instruction pointer ran off the end of the instruction stream")
	}
	ip := s.instructionPointer
	in := s.instructions[ip]
	ops := in.operands

	switch in.opcode {
	case avm.Mov, avm.Add, avm.Sub, avm.Mul, avm.Div, avm.Mod, avm.Exp:
		err = execBinary(s, in.opcode, ops[0], ops[1])
	case avm.And, avm.Or, avm.Xor, avm.Shl, avm.Shr:
		err = execBitwise(s, in.opcode, ops[0], ops[1])
	case avm.Neg, avm.Not, avm.Inc, avm.Dec:
		err = execUnary(s, in.opcode, ops[0])
	case avm.Concat:
		err = execConcat(s, ops[0], ops[1])
	case avm.GetChar:
		err = execGetChar(s, ops[0], ops[1], ops[2])
	case avm.SetChar:
		err = execSetChar(s, ops[0], ops[1], ops[2])
	case avm.Jmp:
		err = execJmp(s, ops[0])
	case avm.Je, avm.Jne, avm.Jg, avm.Jl, avm.Jge, avm.Jle:
		err = execConditionalJump(s, in.opcode, ops[0], ops[1], ops[2])
	case avm.Push:
		err = execPush(s, ops[0])
	case avm.Pop:
		err = execPop(s, ops[0])
	case avm.Call:
		err = execCall(s, ops[0])
	case avm.Ret:
		terminated, err = execRet(s)
	case avm.CallHost:
		err = execCallHost(v, s, ops[0])
	case avm.Rand:
		err = execRand(v, s, ops[0], ops[1])
	case avm.Pause:
		err = execPause(s, ops[0])
	case avm.Exit:
		s.executing = false
		return true, nil
	default:
		return false, fault(s.handle, "unrecognized opcode in instruction stream")
	}
	if err != nil {
		return terminated, err
	}

	if s.instructionPointer == ip {
		s.instructionPointer++
	}
	return terminated, nil
}

func execBinary(s *Script, op avm.Opcode, destOp, srcOp avm.Value) error {
	dest, err := resolveValue(s, destOp)
	if err != nil {
		return err
	}
	src, err := resolveValue(s, srcOp)
	if err != nil {
		return err
	}

	if op == avm.Mov {
		if sameLocation(s, destOp, srcOp) {
			return nil
		}
		return setValue(s, destOp, src)
	}

	useInt := src.Kind == avm.KindInteger
	if op == avm.Mod {
		useInt = true
	}

	if useInt {
		srcInt, err := src.ToInt()
		if err != nil {
			return err
		}
		switch op {
		case avm.Add:
			dest.Int += srcInt
		case avm.Sub:
			dest.Int -= srcInt
		case avm.Mul:
			dest.Int *= srcInt
		case avm.Div:
			if srcInt == 0 {
				return fault(s.handle, "integer division by zero")
			}
			dest.Int /= srcInt
		case avm.Mod:
			if srcInt == 0 {
				return fault(s.handle, "integer modulus by zero")
			}
			dest.Int %= srcInt
		case avm.Exp:
			dest.Int = int32(math.Pow(float64(dest.Int), float64(srcInt)))
		}
	} else {
		srcFlt, err := src.ToFloat()
		if err != nil {
			return err
		}
		switch op {
		case avm.Add:
			dest.Flt += srcFlt
		case avm.Sub:
			dest.Flt -= srcFlt
		case avm.Mul:
			dest.Flt *= srcFlt
		case avm.Div:
			dest.Flt /= srcFlt
		case avm.Exp:
			dest.Flt = float32(math.Pow(float64(dest.Flt), float64(srcFlt)))
		}
	}
	return setValue(s, destOp, dest)
}

// execBitwise dispatches on the DESTINATION's type: only an
// integer-tagged destination is mutated, a non-integer one passes
// through unchanged, per the reference engine.
func execBitwise(s *Script, op avm.Opcode, destOp, srcOp avm.Value) error {
	dest, err := resolveValue(s, destOp)
	if err != nil {
		return err
	}
	if dest.Kind != avm.KindInteger {
		return nil
	}
	src, err := resolveValue(s, srcOp)
	if err != nil {
		return err
	}
	srcInt, err := src.ToInt()
	if err != nil {
		return err
	}
	switch op {
	case avm.And:
		dest.Int &= srcInt
	case avm.Or:
		dest.Int |= srcInt
	case avm.Xor:
		dest.Int ^= srcInt
	case avm.Shl:
		dest.Int <<= uint32(srcInt)
	case avm.Shr:
		dest.Int >>= uint32(srcInt)
	}
	return setValue(s, destOp, dest)
}

func execUnary(s *Script, op avm.Opcode, destOp avm.Value) error {
	dest, err := resolveValue(s, destOp)
	if err != nil {
		return err
	}
	isInt := dest.Kind == avm.KindInteger
	switch op {
	case avm.Neg:
		if isInt {
			dest.Int = -dest.Int
		} else {
			dest.Flt = -dest.Flt
		}
	case avm.Not:
		if isInt {
			dest.Int = ^dest.Int
		}
	case avm.Inc:
		if isInt {
			dest.Int++
		} else {
			dest.Flt++
		}
	case avm.Dec:
		if isInt {
			dest.Int--
		} else {
			dest.Flt--
		}
	}
	return setValue(s, destOp, dest)
}

func execConcat(s *Script, destOp, srcOp avm.Value) error {
	dest, err := resolveValue(s, destOp)
	if err != nil {
		return err
	}
	if dest.Kind != avm.KindString {
		return nil
	}
	src, err := resolveValue(s, srcOp)
	if err != nil {
		return err
	}
	suffix, err := src.ToString()
	if err != nil {
		return err
	}
	destStr, _ := dest.ToString()
	joined := destStr + suffix
	return setValue(s, destOp, avm.String(joined))
}

func execGetChar(s *Script, destOp, srcOp, indexOp avm.Value) error {
	src, err := resolveValue(s, srcOp)
	if err != nil {
		return err
	}
	str, err := src.ToString()
	if err != nil {
		return err
	}
	idxVal, err := resolveValue(s, indexOp)
	if err != nil {
		return err
	}
	idx, err := idxVal.ToInt()
	if err != nil {
		return err
	}
	if idx < 0 || int(idx) >= len(str) {
		return fault(s.handle, "GetChar index out of range")
	}
	return setValue(s, destOp, avm.String(string(str[idx])))
}

func execSetChar(s *Script, destOp, indexOp, srcOp avm.Value) error {
	dest, err := resolveValue(s, destOp)
	if err != nil {
		return err
	}
	if dest.Kind != avm.KindString {
		return nil
	}
	idxVal, err := resolveValue(s, indexOp)
	if err != nil {
		return err
	}
	idx, err := idxVal.ToInt()
	if err != nil {
		return err
	}
	src, err := resolveValue(s, srcOp)
	if err != nil {
		return err
	}
	srcStr, err := src.ToString()
	if err != nil {
		return err
	}
	if srcStr == "" {
		return fault(s.handle, "SetChar source string is empty")
	}

	current, _ := dest.ToString()
	if idx < 0 || int(idx) >= len(current) {
		return fault(s.handle, "SetChar index out of range")
	}
	bytes := []byte(current)
	bytes[idx] = srcStr[0]
	return setValue(s, destOp, avm.String(string(bytes)))
}

func execJmp(s *Script, targetOp avm.Value) error {
	target, err := resolveValue(s, targetOp)
	if err != nil {
		return err
	}
	s.instructionPointer = uint32(target.Int)
	return nil
}

func execConditionalJump(s *Script, op avm.Opcode, aOp, bOp, targetOp avm.Value) error {
	a, err := resolveValue(s, aOp)
	if err != nil {
		return err
	}
	b, err := resolveValue(s, bOp)
	if err != nil {
		return err
	}

	var jump bool
	switch a.Kind {
	case avm.KindInteger:
		jump = compareInt(op, a.Int, b.Int)
	case avm.KindFloat:
		jump = compareFloat(op, a.Flt, b.Flt)
	case avm.KindString:
		if op == avm.Je || op == avm.Jne {
			aStr, _ := a.ToString()
			bStr, _ := b.ToString()
			jump = (aStr == bStr) == (op == avm.Je)
		}
	}
	if !jump {
		return nil
	}
	target, err := resolveValue(s, targetOp)
	if err != nil {
		return err
	}
	s.instructionPointer = uint32(target.Int)
	return nil
}

func compareInt(op avm.Opcode, a, b int32) bool {
	switch op {
	case avm.Je:
		return a == b
	case avm.Jne:
		return a != b
	case avm.Jg:
		return a > b
	case avm.Jl:
		return a < b
	case avm.Jge:
		return a >= b
	case avm.Jle:
		return a <= b
	default:
		return false
	}
}

func compareFloat(op avm.Opcode, a, b float32) bool {
	switch op {
	case avm.Je:
		return a == b
	case avm.Jne:
		return a != b
	case avm.Jg:
		return a > b
	case avm.Jl:
		return a < b
	case avm.Jge:
		return a >= b
	case avm.Jle:
		return a <= b
	default:
		return false
	}
}

func execPush(s *Script, srcOp avm.Value) error {
	src, err := resolveValue(s, srcOp)
	if err != nil {
		return err
	}
	return s.stack.push(src)
}

func execPop(s *Script, destOp avm.Value) error {
	popped, err := s.stack.pop()
	if err != nil {
		return err
	}
	return setValue(s, destOp, popped)
}

// execCall advances the instruction pointer past the Call instruction
// before transferring control, so the return address captured by
// pushFrame points at the instruction following Call, per the reference
// engine.
func execCall(s *Script, fnOp avm.Value) error {
	fnVal, err := resolveValue(s, fnOp)
	if err != nil {
		return err
	}
	if int(fnVal.Int) < 0 || int(fnVal.Int) >= len(s.functions) {
		return fault(s.handle, "Call target function index out of range")
	}
	s.instructionPointer++
	return pushFrame(s, fnVal.Int)
}

// pushFrame implements the reference CallFunctionImplementation: push the
// return address, reserve locals+marker, stamp the marker with the
// callee's function index and the caller's saved frame top, then jump to
// the callee's entry point.
func pushFrame(s *Script, functionIndex int32) error {
	fn := s.functions[functionIndex]
	savedFrameTop := s.stack.frameTopIndex

	if err := s.stack.push(avm.InstructionIndex(int32(s.instructionPointer))); err != nil {
		return err
	}
	if err := s.stack.pushN(int32(fn.localDataSize) + 1); err != nil {
		return err
	}
	s.stack.frameTopIndex = s.stack.topIndex

	marker := avm.FunctionIndex(functionIndex, savedFrameTop)
	if err := s.stack.set(s.stack.topIndex-1, marker); err != nil {
		return err
	}

	s.instructionPointer = fn.entryPoint
	return nil
}

// execRet implements the reference Ret: pop the function-index marker
// (or, for a blocking host call, the stack-base marker that ends
// execution), unwind the frame, and jump to the caller's return address.
func execRet(s *Script) (terminated bool, err error) {
	marker, err := s.stack.pop()
	if err != nil {
		return false, err
	}
	if marker.Kind == avm.KindStackBaseMarker {
		s.executing = false
		return true, nil
	}
	if int(marker.Int) < 0 || int(marker.Int) >= len(s.functions) {
		return false, fault(s.handle, "Ret popped a corrupt function-index marker")
	}
	fn := s.functions[marker.Int]

	retIdx := s.stack.topIndex - (int32(fn.localDataSize) + 1)
	retAddr, err := s.stack.at(retIdx)
	if err != nil {
		return false, err
	}
	if err := s.stack.popN(int32(fn.stackFrameSize)); err != nil {
		return false, err
	}
	s.stack.frameTopIndex = marker.Base
	s.instructionPointer = uint32(retAddr.Int)
	return false, nil
}

func execCallHost(v *VM, s *Script, fnOp avm.Value) error {
	fnVal, err := resolveValue(s, fnOp)
	if err != nil {
		return err
	}
	if int(fnVal.Int) < 0 || int(fnVal.Int) >= len(s.hostFunctionNames) {
		return fault(s.handle, "CallHost index out of range")
	}
	name := s.hostFunctionNames[fnVal.Int]
	fn, ok := v.hostFunctions.lookup(s.handle, name)
	if !ok {
		return nil
	}
	if err := fn(v, s.handle); err != nil {
		if s.logger != nil {
			s.logger.Warnf("host function %q: %v", name, err)
		}
		return fault(s.handle, err.Error())
	}
	return nil
}

func execRand(v *VM, s *Script, destOp, maxOp avm.Value) error {
	maxVal, err := resolveValue(s, maxOp)
	if err != nil {
		return err
	}
	maxInt, err := maxVal.ToInt()
	if err != nil {
		return err
	}
	return setValue(s, destOp, avm.Integer(v.rng.next(maxInt)))
}

func execPause(s *Script, durationOp avm.Value) error {
	durVal, err := resolveValue(s, durationOp)
	if err != nil {
		return err
	}
	ms, err := durVal.ToInt()
	if err != nil {
		return err
	}
	s.paused = true
	s.pauseEnd = time.Now().Add(time.Duration(ms) * time.Millisecond)
	return nil
}
