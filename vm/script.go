package vm

import (
	"time"

	"github.com/kiplingw/agni-go/avm"
	"github.com/sirupsen/logrus"
)

// Handle identifies a loaded script; it is an opaque index into the
// registry's fixed-capacity slot array.
type Handle int32

// instruction is the in-memory, already-resolved instruction: operands
// that were string-index operands on disk now carry owned strings
// directly.
type instruction struct {
	opcode   avm.Opcode
	operands []avm.Value
}

// Script is one loaded program instance, also the unit of scheduling.
type Script struct {
	handle    Handle
	loaded    bool
	executing bool

	agniMajor, agniMinor         uint8
	requiredAgniMajor            uint8
	requiredAgniMinor            uint8
	hostName                     string
	hostMajor, hostMinor         uint8
	checksum                     uint32

	instructions       []instruction
	instructionPointer uint32

	functions         []function
	hostFunctionNames []string
	mainIndex         int32
	globalDataSize    uint32

	registers [3]avm.Value // indexed by RegisterID-1

	stack *stack

	priority  ThreadPriority
	timeSlice time.Duration

	paused   bool
	pauseEnd time.Time

	// threadActivation is stamped by the scheduler each time this script
	// becomes the current thread; it is not meaningful while the script
	// is not the scheduler's current thread.
	threadActivation time.Time

	// logger carries this script's handle and declared host name as
	// structured fields, so fault/lifecycle log lines don't need to
	// re-attach them at every call site.
	logger *logrus.Entry
}

func (s *Script) register(r avm.RegisterID) *avm.Value {
	return &s.registers[r-1]
}

// registry is the fixed-capacity array of optional script slots
// addressed by Handle.
type registry struct {
	slots []*Script
}

const registryCapacity = 1024

func newRegistry() *registry {
	return &registry{slots: make([]*Script, registryCapacity)}
}

func (r *registry) alloc() (Handle, bool) {
	for i, s := range r.slots {
		if s == nil {
			return Handle(i), true
		}
	}
	return -1, false
}

func (r *registry) get(h Handle) (*Script, bool) {
	if h < 0 || int(h) >= len(r.slots) || r.slots[h] == nil {
		return nil, false
	}
	return r.slots[h], true
}

func (r *registry) set(h Handle, s *Script) {
	r.slots[h] = s
}

func (r *registry) free(h Handle) {
	if h >= 0 && int(h) < len(r.slots) {
		r.slots[h] = nil
	}
}
