package vm

import "github.com/kiplingw/agni-go/avm"

// PassIntParameter, PassFloatParameter, and PassStringParameter push a
// literal argument onto h's stack ahead of a CallFunction/CallFunctionAsync
// invocation, per the reference engine's Pass*Parameter family.
func (v *VM) PassIntParameter(h Handle, value int32) bool {
	return v.passParameter(h, avm.Integer(value))
}

func (v *VM) PassFloatParameter(h Handle, value float32) bool {
	return v.passParameter(h, avm.Float(value))
}

func (v *VM) PassStringParameter(h Handle, value string) bool {
	return v.passParameter(h, avm.String(value))
}

func (v *VM) passParameter(h Handle, value avm.Value) bool {
	s, ok := v.registry.get(h)
	if !ok {
		return false
	}
	return s.stack.push(value) == nil
}

// GetParameterAsInt, GetParameterAsFloat, and GetParameterAsString read an
// argument the calling script pushed just before CallHost, addressed by
// a 0-based parameter index counted from the top of the stack — called
// from inside a HostFunc, per the reference engine's GetParameterAs*
// family.
func (v *VM) GetParameterAsInt(h Handle, paramIndex uint8) (int32, bool) {
	val, ok := v.getParameter(h, paramIndex)
	if !ok {
		return 0, false
	}
	n, err := val.ToInt()
	return n, err == nil
}

func (v *VM) GetParameterAsFloat(h Handle, paramIndex uint8) (float32, bool) {
	val, ok := v.getParameter(h, paramIndex)
	if !ok {
		return 0, false
	}
	f, err := val.ToFloat()
	return f, err == nil
}

func (v *VM) GetParameterAsString(h Handle, paramIndex uint8) (string, bool) {
	val, ok := v.getParameter(h, paramIndex)
	if !ok {
		return "", false
	}
	s, err := val.ToString()
	return s, err == nil
}

func (v *VM) getParameter(h Handle, paramIndex uint8) (avm.Value, bool) {
	s, ok := v.registry.get(h)
	if !ok {
		return avm.Value{}, false
	}
	idx := s.stack.topIndex - (int32(paramIndex) + 1)
	val, err := s.stack.at(idx)
	if err != nil {
		return avm.Value{}, false
	}
	return val, true
}

// ReturnVoidFromHost, ReturnIntFromHost, ReturnFloatFromHost, and
// ReturnStringFromHost discard the paramCount arguments a script pushed
// for a CallHost invocation and, except for the void form, leave the
// result in h's return register for GetReturnValueAs* to read back after
// a blocking CallFunction, per the reference engine's Return*FromHost
// family.
func (v *VM) ReturnVoidFromHost(h Handle, paramCount uint8) {
	s, ok := v.registry.get(h)
	if !ok {
		return
	}
	_ = s.stack.popN(int32(paramCount))
}

func (v *VM) ReturnIntFromHost(h Handle, paramCount uint8, value int32) {
	s, ok := v.registry.get(h)
	if !ok {
		return
	}
	_ = s.stack.popN(int32(paramCount))
	*s.register(avm.RegisterReturn) = avm.Integer(value)
}

func (v *VM) ReturnFloatFromHost(h Handle, paramCount uint8, value float32) {
	s, ok := v.registry.get(h)
	if !ok {
		return
	}
	_ = s.stack.popN(int32(paramCount))
	*s.register(avm.RegisterReturn) = avm.Float(value)
}

func (v *VM) ReturnStringFromHost(h Handle, paramCount uint8, value string) {
	s, ok := v.registry.get(h)
	if !ok {
		return
	}
	_ = s.stack.popN(int32(paramCount))
	*s.register(avm.RegisterReturn) = avm.String(value)
}

// GetReturnValueAsInt, GetReturnValueAsFloat, and GetReturnValueAsString
// read h's return register as last written, either by the script itself
// (for example a Mov into _RegisterReturn) or by a host function's
// Return*FromHost call.
func (v *VM) GetReturnValueAsInt(h Handle) (int32, bool) {
	s, ok := v.registry.get(h)
	if !ok {
		return 0, false
	}
	n, err := s.register(avm.RegisterReturn).ToInt()
	return n, err == nil
}

func (v *VM) GetReturnValueAsFloat(h Handle) (float32, bool) {
	s, ok := v.registry.get(h)
	if !ok {
		return 0, false
	}
	f, err := s.register(avm.RegisterReturn).ToFloat()
	return f, err == nil
}

func (v *VM) GetReturnValueAsString(h Handle) (string, bool) {
	s, ok := v.registry.get(h)
	if !ok {
		return "", false
	}
	str, err := s.register(avm.RegisterReturn).ToString()
	return str, err == nil
}
