package asm

import (
	"strings"

	"github.com/kiplingw/agni-go/exe"
	"github.com/pkg/errors"
)

// runPass1 scans the token stream for declarations and sizing. It never
// emits instructions; it only establishes where everything will
// eventually live, so pass 2 can resolve every operand on a single
// re-walk.
func runPass1(tokens []Token) (*module, error) {
	m := newModule()
	c := &cursor{tokens: tokens}

	var current *function
	var currentParamCount uint8

	for !c.atEnd() {
		t := c.peek()

		switch t.Kind {
		case TokNewline:
			c.pos++
			continue

		case TokDirective:
			if current != nil {
				return nil, errors.Errorf("line %d: %s may only appear at global scope", t.Line, t.Text)
			}
			if err := pass1Directive(c, m); err != nil {
				return nil, err
			}

		case TokKeyword:
			switch t.Text {
			case "Func":
				c.next()
				name, err := c.expect(TokIdentifier)
				if err != nil {
					return nil, err
				}
				if current != nil {
					return nil, errors.Errorf("line %d: function nested inside %q", t.Line, current.name)
				}
				if _, exists := m.functions[lowerKey(name.Text)]; exists {
					return nil, errors.Errorf("line %d: function %q redefined", t.Line, name.Text)
				}
				fn := newFunction(name.Text, int32(len(m.functionList)), int32(m.instructionCount))
				m.functions[lowerKey(name.Text)] = fn
				m.functionList = append(m.functionList, fn)
				if strings.EqualFold(name.Text, "main") {
					m.mainIndex = fn.index
				}
				current = fn
				currentParamCount = 0
				// Every function reserves one trailing slot for its
				// implicit Ret/Exit, counted immediately so label
				// targets computed as instructionCount-1 land on the
				// next real instruction (see below).
				m.instructionCount++

				c.skipNewlines()
				if _, err := c.expect(TokOpenBrace); err != nil {
					return nil, err
				}

			case "Var":
				c.next()
				name, err := c.expect(TokIdentifier)
				if err != nil {
					return nil, err
				}
				size := int32(1)
				if c.peek().Kind == TokOpenBracket {
					c.next()
					sizeTok, err := c.expect(TokInteger)
					if err != nil {
						return nil, err
					}
					if sizeTok.Int <= 1 {
						return nil, errors.Errorf("line %d: array %q must declare size > 1", t.Line, name.Text)
					}
					size = sizeTok.Int
					if _, err := c.expect(TokCloseBracket); err != nil {
						return nil, err
					}
				}
				if err := declareVar(m, current, name, size); err != nil {
					return nil, err
				}

			case "Param":
				c.next()
				if current == nil {
					return nil, errors.Errorf("line %d: Param outside of a function", t.Line)
				}
				if strings.EqualFold(current.name, "main") {
					return nil, errors.Errorf("line %d: Main cannot accept parameters", t.Line)
				}
				if _, err := c.expect(TokIdentifier); err != nil {
					return nil, err
				}
				currentParamCount++

			default:
				return nil, errors.Errorf("line %d: unexpected keyword %q", t.Line, t.Text)
			}

		case TokCloseBrace:
			if current == nil {
				return nil, errors.Errorf("line %d: unmatched %s", t.Line, "}")
			}
			current.paramCount = currentParamCount
			current = nil
			c.next()

		case TokMnemonic:
			if current == nil {
				return nil, errors.Errorf("line %d: instruction outside of a function", t.Line)
			}
			m.instructionCount++
			c.skipToNewline()
			continue

		case TokIdentifier:
			if c.pos+1 >= len(c.tokens) || c.tokens[c.pos+1].Kind != TokColon {
				return nil, errors.Errorf("line %d: unexpected identifier %q", t.Line, t.Text)
			}
			if current == nil {
				return nil, errors.Errorf("line %d: label outside of a function", t.Line)
			}
			label := lowerKey(t.Text)
			if _, exists := current.labels[label]; exists {
				return nil, errors.Errorf("line %d: label %q redefined", t.Line, t.Text)
			}
			current.labels[label] = int32(m.instructionCount) - 1
			c.next()
			c.next() // colon

		default:
			return nil, errors.Errorf("line %d: unexpected token %s", t.Line, t.Kind)
		}
	}

	if current != nil {
		return nil, errors.New("unterminated function at end of input")
	}

	applyDefaults(m)
	return m, nil
}

func declareVar(m *module, current *function, name Token, size int32) error {
	key := lowerKey(name.Text)
	if current == nil {
		if _, exists := m.globals[key]; exists {
			return errors.Errorf("line %d: variable %q redefined", name.Line, name.Text)
		}
		idx := int32(m.globalDataSize)
		m.globals[key] = variable{index: idx, size: size}
		m.globalOrder = append(m.globalOrder, key)
		m.globalDataSize += uint32(size)
		return nil
	}
	if _, exists := current.locals[key]; exists {
		return errors.Errorf("line %d: variable %q redefined", name.Line, name.Text)
	}
	idx := -(int32(current.localDataSize) + 2)
	current.locals[key] = variable{index: idx, size: size}
	current.localDataSize += uint32(size)
	return nil
}

func pass1Directive(c *cursor, m *module) error {
	directive := c.next()
	switch directive.Text {
	case "SetHost":
		if m.hostSet {
			return errors.Errorf("line %d: SetHost already set", directive.Line)
		}
		if _, err := c.expect(TokQuote); err != nil {
			return err
		}
		name, err := c.expect(TokStringBody)
		if err != nil {
			return err
		}
		if _, err := c.expect(TokQuote); err != nil {
			return err
		}
		if _, err := c.expect(TokComma); err != nil {
			return err
		}
		major, err := c.expect(TokInteger)
		if err != nil {
			return err
		}
		if _, err := c.expect(TokComma); err != nil {
			return err
		}
		minor, err := c.expect(TokInteger)
		if err != nil {
			return err
		}
		m.hostName = name.Text
		m.hostMajor = uint8(major.Int)
		m.hostMinor = uint8(minor.Int)
		m.hostSet = true

	case "SetStackSize":
		if m.stackSizeSet {
			return errors.Errorf("line %d: SetStackSize already set", directive.Line)
		}
		n, err := c.expect(TokInteger)
		if err != nil {
			return err
		}
		m.stackSize = uint32(n.Int)
		m.stackSizeSet = true

	case "SetThreadPriority":
		if m.threadPrioritySet {
			return errors.Errorf("line %d: SetThreadPriority already set", directive.Line)
		}
		switch next := c.peek(); {
		case next.Kind == TokIdentifier && strings.EqualFold(next.Text, "Low"):
			c.next()
			m.threadPriority = exe.PriorityLow
		case next.Kind == TokIdentifier && strings.EqualFold(next.Text, "Medium"):
			c.next()
			m.threadPriority = exe.PriorityMedium
		case next.Kind == TokIdentifier && strings.EqualFold(next.Text, "High"):
			c.next()
			m.threadPriority = exe.PriorityHigh
		case next.Kind == TokInteger:
			c.next()
			ms, err := c.expect(TokIdentifier)
			if err != nil || !strings.EqualFold(ms.Text, "ms") {
				return errors.Errorf("line %d: expected \"ms\" suffix after thread priority duration", directive.Line)
			}
			m.threadPriority = exe.PriorityUser
			m.threadPriorityUser = uint32(next.Int)
		default:
			return errors.Errorf("line %d: invalid SetThreadPriority value", directive.Line)
		}
		m.threadPrioritySet = true

	default:
		return errors.Errorf("line %d: unknown directive %q", directive.Line, directive.Text)
	}
	return nil
}

// applyDefaults fills in sentinel/default values for directives that
// never appeared.
func applyDefaults(m *module) {
	if !m.stackSizeSet {
		m.stackSize = exe.StackSizeDefault
		m.warnings = append(m.warnings, "SetStackSize not specified, using default")
	}
	if !m.threadPrioritySet {
		m.threadPriority = exe.PriorityLow
		m.warnings = append(m.warnings, "SetThreadPriority not specified, defaulting to Low")
	}
	if !m.hostSet {
		m.hostName = ""
	}
}
