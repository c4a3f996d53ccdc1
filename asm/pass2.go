package asm

import (
	"strings"

	"github.com/kiplingw/agni-go/avm"
	"github.com/kiplingw/agni-go/exe"
	"github.com/pkg/errors"
)

// runPass2 re-walks the same token stream pass 1 scanned and emits a
// fully resolved exe.Executable.
func runPass2(tokens []Token, m *module) (exe.Executable, error) {
	c := &cursor{tokens: tokens}

	var instructions []exe.Instruction
	var current *function
	var currentParamIndex uint8

	for !c.atEnd() {
		t := c.peek()

		switch t.Kind {
		case TokNewline:
			c.pos++
			continue

		case TokDirective:
			c.skipToNewline()

		case TokKeyword:
			switch t.Text {
			case "Func":
				c.next()
				name, _ := c.expect(TokIdentifier)
				current = m.functions[lowerKey(name.Text)]
				currentParamIndex = 0
				c.skipNewlines()
				c.next() // '{'

			case "Var":
				c.skipToNewline()

			case "Param":
				c.next()
				name, _ := c.expect(TokIdentifier)
				idx := -(int32(current.localDataSize) + 2 + int32(currentParamIndex) + 1)
				current.params[lowerKey(name.Text)] = variable{index: idx, size: 1}
				currentParamIndex++
			}

		case TokCloseBrace:
			c.next()
			instructions = append(instructions, terminatorFor(current))
			current = nil

		case TokMnemonic:
			instr, err := parseInstruction(c, m, current)
			if err != nil {
				return exe.Executable{}, err
			}
			instructions = append(instructions, instr)

		case TokIdentifier:
			// Line label: consume identifier + colon, nothing to emit.
			c.next()
			c.next()

		default:
			return exe.Executable{}, errors.Errorf("line %d: unexpected token %s in pass 2", t.Line, t.Kind)
		}
	}

	return buildExecutable(m, instructions), nil
}

func terminatorFor(fn *function) exe.Instruction {
	if strings.EqualFold(fn.name, "main") {
		return exe.Instruction{Opcode: avm.Exit}
	}
	return exe.Instruction{Opcode: avm.Ret}
}

func parseInstruction(c *cursor, m *module, fn *function) (exe.Instruction, error) {
	mnemonic := c.next()
	opcode, ok := avm.LookupMnemonic(mnemonic.Text)
	if !ok {
		return exe.Instruction{}, errors.Errorf("line %d: unknown mnemonic %q", mnemonic.Line, mnemonic.Text)
	}
	tmpl, ok := templates[opcode]
	if !ok {
		return exe.Instruction{}, errors.Errorf("line %d: no template for %s", mnemonic.Line, opcode)
	}

	operands := make([]exe.Operand, 0, len(tmpl.Operands))
	for i, mask := range tmpl.Operands {
		if i > 0 {
			if _, err := c.expect(TokComma); err != nil {
				return exe.Instruction{}, err
			}
		}
		op, err := parseOperand(c, m, fn, mask)
		if err != nil {
			return exe.Instruction{}, err
		}
		operands = append(operands, op)
	}

	if _, err := c.expect(TokNewline); err != nil {
		return exe.Instruction{}, errors.Wrapf(err, "line %d: excess operand(s) after %s", mnemonic.Line, mnemonic.Text)
	}

	return exe.Instruction{Opcode: opcode, Operands: operands}, nil
}

func parseOperand(c *cursor, m *module, fn *function, mask OperandClass) (exe.Operand, error) {
	t := c.peek()

	switch {
	case t.Kind == TokInteger && mask&ClassInteger != 0:
		c.next()
		return exe.Operand{Type: exe.OperandInteger, Int: t.Int}, nil

	case t.Kind == TokFloat && mask&ClassFloat != 0:
		c.next()
		return exe.Operand{Type: exe.OperandFloat, Flt: t.Flt}, nil

	case t.Kind == TokQuote && mask&ClassString != 0:
		c.next()
		body, err := c.expect(TokStringBody)
		if err != nil {
			return exe.Operand{}, err
		}
		if _, err := c.expect(TokQuote); err != nil {
			return exe.Operand{}, err
		}
		if body.Text == "" {
			return exe.Operand{Type: exe.OperandInteger, Int: 0}, nil
		}
		return exe.Operand{Type: exe.OperandStringIndex, Int: m.intern(body.Text)}, nil

	case t.Kind == TokRegister && mask&ClassRegister != 0:
		c.next()
		return exe.Operand{Type: exe.OperandRegister, Reg: registers[t.Text]}, nil

	case t.Kind == TokIdentifier:
		return parseIdentifierOperand(c, m, fn, mask)

	default:
		return exe.Operand{}, errors.Errorf("line %d: operand %q not legal here", t.Line, t.Text)
	}
}

func parseIdentifierOperand(c *cursor, m *module, fn *function, mask OperandClass) (exe.Operand, error) {
	t := c.next()
	key := lowerKey(t.Text)

	if mask&ClassMemory != 0 {
		if v, ok := lookupVariable(m, fn, key); ok {
			return resolveMemoryOperand(c, m, fn, v)
		}
	}
	if mask&ClassLabel != 0 && fn != nil {
		if idx, ok := fn.labels[key]; ok {
			return exe.Operand{Type: exe.OperandInstructionIndex, Int: idx}, nil
		}
	}
	if mask&ClassFunction != 0 {
		if target, ok := m.functions[key]; ok {
			return exe.Operand{Type: exe.OperandFunctionIndex, Int: target.index}, nil
		}
	}
	if mask&ClassHostFunction != 0 {
		return exe.Operand{Type: exe.OperandHostFunctionIndex, Int: m.internHostFunction(t.Text)}, nil
	}

	return exe.Operand{}, errors.Errorf("line %d: identifier %q does not resolve to a legal operand here", t.Line, t.Text)
}

func lookupVariable(m *module, fn *function, key string) (variable, bool) {
	if fn != nil {
		if v, ok := fn.locals[key]; ok {
			return v, true
		}
		if v, ok := fn.params[key]; ok {
			return v, true
		}
	}
	if v, ok := m.globals[key]; ok {
		return v, true
	}
	return variable{}, false
}

// resolveMemoryOperand handles the optional `[index]` array subscript. A
// constant index is folded into an absolute stack index at assemble
// time; a variable index becomes a relative stack index whose offset
// slot is that variable's own stack location.
func resolveMemoryOperand(c *cursor, m *module, fn *function, v variable) (exe.Operand, error) {
	if c.peek().Kind != TokOpenBracket {
		return exe.Operand{Type: exe.OperandStackIndexAbsolute, Int: v.index}, nil
	}
	c.next()
	idxTok := c.peek()

	switch idxTok.Kind {
	case TokInteger:
		c.next()
		if _, err := c.expect(TokCloseBracket); err != nil {
			return exe.Operand{}, err
		}
		return exe.Operand{Type: exe.OperandStackIndexAbsolute, Int: v.index + idxTok.Int}, nil

	case TokIdentifier:
		idxVar, ok := lookupVariable(m, fn, lowerKey(idxTok.Text))
		if !ok {
			return exe.Operand{}, errors.Errorf("line %d: array index %q is not a known variable", idxTok.Line, idxTok.Text)
		}
		c.next()
		if _, err := c.expect(TokCloseBracket); err != nil {
			return exe.Operand{}, err
		}
		return exe.Operand{Type: exe.OperandStackIndexRelative, Base: v.index, OffsetSlot: idxVar.index}, nil

	default:
		return exe.Operand{}, errors.Errorf("line %d: array index must be a constant or a variable", idxTok.Line)
	}
}

func buildExecutable(m *module, instructions []exe.Instruction) exe.Executable {
	hostStringIndex := exe.HostStringIndexNone
	if m.hostSet {
		hostStringIndex = uint32(m.intern(m.hostName))
	}

	functions := make([]exe.FunctionEntry, len(m.functionList))
	for i, fn := range m.functionList {
		functions[i] = exe.FunctionEntry{
			EntryPoint:     uint32(fn.entryPoint),
			ParameterCount: fn.paramCount,
			LocalDataSize:  fn.localDataSize,
			Name:           fn.name,
		}
	}

	hostFunctions := make([]exe.HostFunctionEntry, len(m.hostFunctionList))
	for i, name := range m.hostFunctionList {
		hostFunctions[i] = exe.HostFunctionEntry{Name: name}
	}

	mainIndex := uint32(exe.MainIndexNone)
	if m.mainIndex != int32(exe.MainIndexNone) {
		mainIndex = uint32(m.mainIndex)
	}

	return exe.Executable{
		Header: exe.MainHeader{
			AvailableMajor:     1,
			AvailableMinor:     0,
			RequiredMajor:      1,
			RequiredMinor:      0,
			HostStringIndex:    hostStringIndex,
			HostMajor:          m.hostMajor,
			HostMinor:          m.hostMinor,
			StackSize:          m.stackSize,
			GlobalDataSize:     m.globalDataSize,
			MainIndex:          mainIndex,
			ThreadPriorityType: m.threadPriority,
			ThreadPriorityUser: m.threadPriorityUser,
		},
		Instructions:  instructions,
		Strings:       m.stringList,
		Functions:     functions,
		HostFunctions: hostFunctions,
	}
}
