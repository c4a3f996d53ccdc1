// Package vm implements the Agni virtual machine: the loader, the
// typed-value operand resolver, the ~34-instruction interpreter, the
// cooperative multi-thread scheduler, and the host-function bridge that
// lets an embedding application call into scripts and scripts call back
// into host code.
package vm

import (
	"time"

	"github.com/sirupsen/logrus"
)

// ThreadPriority is the runtime priority of a script thread. It mirrors
// exe.ThreadPriorityType but adds Infinite, a runtime-only value that is
// never stored on disk, per the reference engine's THREAD_PRIORITY enum.
// The loader never assigns Infinite; blocking host calls use the
// RunIndefinitely duration instead.
type ThreadPriority int

const (
	PriorityUser ThreadPriority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
	PriorityInfinite
)

// VM is one virtual machine instance: a script registry, a process-wide
// host-function registry, and the cooperative scheduler's running state.
// All of it is single-threaded by design except the host function
// registry, which an embedding application may register into from
// another goroutine, and the wake queue behind NotifyAsync.
type VM struct {
	hostName             string
	hostMajor, hostMinor uint8

	registry      *registry
	hostFunctions *hostFunctionRegistry
	rng           *lcg
	log           *logrus.Logger
	wakeQueue     *nonBlockingChan[wakeEvent]

	threadingMode threadingMode
	currentThread Handle
}

type threadingMode int

const (
	threadingMultiple threadingMode = iota
	threadingSingle
)

// New constructs a VM configured with the embedding host's own identity,
// used by Load to validate a script's declared host requirement.
func New(hostName string, hostMajor, hostMinor uint8, log *logrus.Logger) *VM {
	if log == nil {
		log = logrus.New()
	}
	return &VM{
		hostName:      hostName,
		hostMajor:     hostMajor,
		hostMinor:     hostMinor,
		registry:      newRegistry(),
		hostFunctions: &hostFunctionRegistry{},
		rng:           newLCG(),
		log:           log,
		wakeQueue:     newNonBlockingChan[wakeEvent](wakeQueueCapacity),
		currentThread: -1,
	}
}

// LoadScript loads image into a script, registers it, and returns its
// handle, or a failure Status with no partial state left behind.
func (v *VM) LoadScript(image []byte) (Handle, Status) {
	h, ok := v.registry.alloc()
	if !ok {
		return -1, ThreadsExhausted
	}
	s, status := v.Load(image)
	if status != Ok {
		return -1, status
	}
	s.handle = h
	s.logger = v.log.WithFields(logrus.Fields{"script": h, "host": s.hostName})
	v.registry.set(h, s)
	return h, Ok
}

// UnloadScript frees h's slot, freeing every string the script owns
// (stack, registers, operand literals) simply by dropping the Script
// value — Go's GC reclaims the owned *string pointers once nothing
// references them.
func (v *VM) UnloadScript(h Handle) {
	v.registry.free(h)
}

// StartScript marks a loaded script executing.
func (v *VM) StartScript(h Handle) bool {
	s, ok := v.registry.get(h)
	if !ok {
		return false
	}
	s.executing = true
	return true
}

// StopScript clears the executing flag; the scheduler notices at the
// next context-switch decision.
func (v *VM) StopScript(h Handle) bool {
	s, ok := v.registry.get(h)
	if !ok {
		return false
	}
	s.executing = false
	return true
}

// PauseScript suspends h for ms milliseconds without suspending the rest
// of the VM.
func (v *VM) PauseScript(h Handle, ms int64) bool {
	s, ok := v.registry.get(h)
	if !ok {
		return false
	}
	s.paused = true
	s.pauseEnd = time.Now().Add(time.Duration(ms) * time.Millisecond)
	return true
}

// UnpauseScript clears h's paused flag immediately.
func (v *VM) UnpauseScript(h Handle) bool {
	s, ok := v.registry.get(h)
	if !ok {
		return false
	}
	s.paused = false
	return true
}

// ResetScript clears h's stack and re-pushes fresh frames for globals and
// for Main's locals, then points the instruction pointer at Main's entry.
func (v *VM) ResetScript(h Handle) bool {
	s, ok := v.registry.get(h)
	if !ok {
		return false
	}
	s.paused = false
	s.executing = false
	s.stack.topIndex = 0
	s.stack.frameTopIndex = 0
	if err := s.stack.pushN(int32(s.globalDataSize)); err != nil {
		return false
	}
	s.instructionPointer = 0
	if s.mainIndex >= 0 {
		main := s.functions[s.mainIndex]
		s.instructionPointer = main.entryPoint
		if err := s.stack.pushN(int32(main.localDataSize) + 1); err != nil {
			return false
		}
		s.stack.frameTopIndex = s.stack.topIndex
	}
	return true
}

// RegisterHostFunction inserts {name, scope, fn} into the process-wide
// registry. scope is GlobalVisibility or a specific script Handle.
func (v *VM) RegisterHostFunction(scope Handle, name string, fn HostFunc) error {
	return v.hostFunctions.Register(scope, name, fn)
}
