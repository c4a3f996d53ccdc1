package exe

import (
	"encoding/binary"
	"math"

	"github.com/kiplingw/agni-go/avm"
	"github.com/pkg/errors"
)

// writer accumulates a little-endian byte stream.
type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = append(w.buf, byte(v), byte(v>>8)) }
func (w *writer) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *writer) i32(v int32)   { w.u32(uint32(v)) }
func (w *writer) f32(v float32) { w.u32(math.Float32bits(v)) }
func (w *writer) bytes(b []byte) { w.buf = append(w.buf, b...) }

// reader consumes a little-endian byte stream with bounds checking.
type reader struct {
	buf []byte
	pos int
}

var errTruncated = errors.New("executable image truncated")

func (r *reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return errTruncated
	}
	return nil
}

func (r *reader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := uint16(r.buf[r.pos]) | uint16(r.buf[r.pos+1])<<8
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err
}

func (r *reader) f32() (float32, error) {
	v, err := r.u32()
	return math.Float32frombits(v), err
}

func (r *reader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// checksumFieldOffset is the byte offset of MainHeader.Checksum within the
// encoded header: 8 (signature) + 1+1 (available) + 1+1 (required) + 4
// (host string index) + 1+1 (host version).
const checksumFieldOffset = 8 + 1 + 1 + 1 + 1 + 4 + 1 + 1

// Encode serializes e into the on-disk Agni executable format and patches
// the checksum field with CRC(image with that field zeroed), matching the
// reference assembler's WriteExecutable/checksum-then-patch sequence.
func Encode(e Executable) ([]byte, error) {
	w := &writer{}

	// Main header.
	w.bytes(Signature[:])
	w.u8(e.Header.AvailableMajor)
	w.u8(e.Header.AvailableMinor)
	w.u8(e.Header.RequiredMajor)
	w.u8(e.Header.RequiredMinor)
	w.u32(e.Header.HostStringIndex)
	w.u8(e.Header.HostMajor)
	w.u8(e.Header.HostMinor)
	w.u32(0) // checksum placeholder, patched below
	w.u32(e.Header.StackSize)
	w.u32(e.Header.GlobalDataSize)
	w.u32(e.Header.MainIndex)
	w.u8(uint8(e.Header.ThreadPriorityType))
	w.u32(e.Header.ThreadPriorityUser)

	// Instruction stream.
	w.u32(uint32(len(e.Instructions)))
	for _, instr := range e.Instructions {
		w.u16(uint16(instr.Opcode))
		if len(instr.Operands) > 0xFF {
			return nil, errors.Errorf("instruction has too many operands: %d", len(instr.Operands))
		}
		w.u8(uint8(len(instr.Operands)))
		for _, op := range instr.Operands {
			w.u8(uint8(op.Type))
			switch op.Type {
			case OperandInteger, OperandStringIndex, OperandStackIndexAbsolute,
				OperandInstructionIndex, OperandFunctionIndex, OperandHostFunctionIndex:
				w.i32(op.Int)
			case OperandFloat:
				w.f32(op.Flt)
			case OperandStackIndexRelative:
				w.i32(op.Base)
				w.i32(op.OffsetSlot)
			case OperandRegister:
				w.u8(uint8(op.Reg))
			case OperandInlineString:
				return nil, errors.New("inline-string operands are not supported on disk; intern into the string table")
			case OperandNull, OperandStackBaseMarker:
				// No payload.
			default:
				return nil, errors.Errorf("unknown operand type %d", op.Type)
			}
		}
	}

	// String stream.
	w.u32(uint32(len(e.Strings)))
	for _, s := range e.Strings {
		w.u32(uint32(len(s)))
		w.bytes([]byte(s))
	}

	// Function table.
	w.u32(uint32(len(e.Functions)))
	for _, f := range e.Functions {
		w.u32(f.EntryPoint)
		w.u8(f.ParameterCount)
		w.u32(f.LocalDataSize)
		if len(f.Name) > 0xFF {
			return nil, errors.Errorf("function name too long: %q", f.Name)
		}
		w.u8(uint8(len(f.Name)))
		w.bytes([]byte(f.Name))
	}

	// Host-function table.
	w.u32(uint32(len(e.HostFunctions)))
	for _, h := range e.HostFunctions {
		if len(h.Name) > 0xFF {
			return nil, errors.Errorf("host function name too long: %q", h.Name)
		}
		w.u8(uint8(len(h.Name)))
		w.bytes([]byte(h.Name))
	}

	image := w.buf
	sum := CRC(zeroedChecksumField(image))
	binary.LittleEndian.PutUint32(image[checksumFieldOffset:], sum)

	return image, nil
}

// zeroedChecksumField returns a copy of image with the checksum field
// bytes set to zero, as required by the checksum's own definition.
func zeroedChecksumField(image []byte) []byte {
	cp := make([]byte, len(image))
	copy(cp, image)
	for i := 0; i < 4; i++ {
		cp[checksumFieldOffset+i] = 0
	}
	return cp
}

// VerifyChecksum reports whether image's stored checksum matches
// CRC(image with that field zeroed).
func VerifyChecksum(image []byte) (stored, computed uint32, ok bool, err error) {
	if len(image) < checksumFieldOffset+4 {
		return 0, 0, false, errTruncated
	}
	stored = binary.LittleEndian.Uint32(image[checksumFieldOffset:])
	computed = CRC(zeroedChecksumField(image))
	return stored, computed, stored == computed, nil
}

// Decode parses the on-disk Agni executable format produced by Encode.
// It does not itself verify the signature, versions, or checksum; callers
// (the vm package's loader) perform those validations and translate
// failures into status codes.
func Decode(image []byte) (Executable, error) {
	r := &reader{buf: image}
	var e Executable

	sig, err := r.bytes(8)
	if err != nil {
		return e, err
	}
	var sigArr [8]byte
	copy(sigArr[:], sig)
	e.Header.AvailableMajor, err = r.u8()
	if err != nil {
		return e, err
	}
	if e.Header.AvailableMinor, err = r.u8(); err != nil {
		return e, err
	}
	if e.Header.RequiredMajor, err = r.u8(); err != nil {
		return e, err
	}
	if e.Header.RequiredMinor, err = r.u8(); err != nil {
		return e, err
	}
	if e.Header.HostStringIndex, err = r.u32(); err != nil {
		return e, err
	}
	if e.Header.HostMajor, err = r.u8(); err != nil {
		return e, err
	}
	if e.Header.HostMinor, err = r.u8(); err != nil {
		return e, err
	}
	if e.Header.Checksum, err = r.u32(); err != nil {
		return e, err
	}
	if e.Header.StackSize, err = r.u32(); err != nil {
		return e, err
	}
	if e.Header.GlobalDataSize, err = r.u32(); err != nil {
		return e, err
	}
	if e.Header.MainIndex, err = r.u32(); err != nil {
		return e, err
	}
	tpt, err := r.u8()
	if err != nil {
		return e, err
	}
	e.Header.ThreadPriorityType = ThreadPriorityType(tpt)
	if e.Header.ThreadPriorityUser, err = r.u32(); err != nil {
		return e, err
	}

	instrCount, err := r.u32()
	if err != nil {
		return e, err
	}
	e.Instructions = make([]Instruction, instrCount)
	for i := range e.Instructions {
		opcode, err := r.u16()
		if err != nil {
			return e, err
		}
		operandCount, err := r.u8()
		if err != nil {
			return e, err
		}
		operands := make([]Operand, operandCount)
		for j := range operands {
			typ, err := r.u8()
			if err != nil {
				return e, err
			}
			op := Operand{Type: OperandType(typ)}
			switch op.Type {
			case OperandInteger, OperandStringIndex, OperandStackIndexAbsolute,
				OperandInstructionIndex, OperandFunctionIndex, OperandHostFunctionIndex:
				if op.Int, err = r.i32(); err != nil {
					return e, err
				}
			case OperandFloat:
				if op.Flt, err = r.f32(); err != nil {
					return e, err
				}
			case OperandStackIndexRelative:
				if op.Base, err = r.i32(); err != nil {
					return e, err
				}
				if op.OffsetSlot, err = r.i32(); err != nil {
					return e, err
				}
			case OperandRegister:
				reg, err := r.u8()
				if err != nil {
					return e, err
				}
				op.Reg = avm.RegisterID(reg)
			case OperandNull, OperandStackBaseMarker, OperandInlineString:
				// No payload.
			default:
				return e, errors.Errorf("unknown operand type %d at instruction %d", typ, i)
			}
			operands[j] = op
		}
		e.Instructions[i] = Instruction{Opcode: avm.Opcode(opcode), Operands: operands}
	}

	stringCount, err := r.u32()
	if err != nil {
		return e, err
	}
	e.Strings = make([]string, stringCount)
	for i := range e.Strings {
		length, err := r.u32()
		if err != nil {
			return e, err
		}
		b, err := r.bytes(int(length))
		if err != nil {
			return e, err
		}
		e.Strings[i] = string(b)
	}

	funcCount, err := r.u32()
	if err != nil {
		return e, err
	}
	e.Functions = make([]FunctionEntry, funcCount)
	for i := range e.Functions {
		f := FunctionEntry{}
		if f.EntryPoint, err = r.u32(); err != nil {
			return e, err
		}
		if f.ParameterCount, err = r.u8(); err != nil {
			return e, err
		}
		if f.LocalDataSize, err = r.u32(); err != nil {
			return e, err
		}
		nameLen, err := r.u8()
		if err != nil {
			return e, err
		}
		nameBytes, err := r.bytes(int(nameLen))
		if err != nil {
			return e, err
		}
		f.Name = string(nameBytes)
		e.Functions[i] = f
	}

	hostCount, err := r.u32()
	if err != nil {
		return e, err
	}
	e.HostFunctions = make([]HostFunctionEntry, hostCount)
	for i := range e.HostFunctions {
		nameLen, err := r.u8()
		if err != nil {
			return e, err
		}
		nameBytes, err := r.bytes(int(nameLen))
		if err != nil {
			return e, err
		}
		e.HostFunctions[i] = HostFunctionEntry{Name: string(nameBytes)}
	}

	return e, nil
}

// CheckSignature reports whether image begins with the Agni magic.
func CheckSignature(image []byte) bool {
	if len(image) < 8 {
		return false
	}
	return string(image[:8]) == string(Signature[:])
}
