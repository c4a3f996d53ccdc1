package vm

import (
	"runtime/debug"
	"time"

	"github.com/kiplingw/agni-go/avm"
)

// RunIndefinitely tells RunScripts to run until every loaded script has
// stopped executing, ignoring wall-clock duration entirely — the runtime
// counterpart of PriorityInfinite, used internally by the blocking
// CallFunction and never stored in an executable.
const RunIndefinitely = -1

func findFunctionByName(s *Script, name string) (int32, bool) {
	for i, fn := range s.functions {
		if equalFoldASCII(fn.name, name) {
			return int32(i), true
		}
	}
	return -1, false
}

// anyExecuting reports whether at least one loaded script is still
// executing, the condition RunScripts keeps running under.
func (v *VM) anyExecuting() bool {
	for h := Handle(0); int(h) < len(v.registry.slots); h++ {
		if s := v.registry.slots[h]; s != nil && s.loaded && s.executing {
			return true
		}
	}
	return false
}

// advanceThread applies the multiple-threading-mode context-switch rule:
// move to the next loaded, executing script in handle order once the
// current one's time slice has elapsed or it stopped executing.
func (v *VM) advanceThread(now time.Time) {
	cur, ok := v.registry.get(v.currentThread)
	sliceElapsed := !ok || now.After(cur.threadActivation.Add(cur.timeSlice))
	stillExecuting := ok && cur.executing

	if sliceElapsed || !stillExecuting {
		next := v.currentThread
		for {
			next++
			if int(next) >= len(v.registry.slots) {
				next = 0
			}
			if s := v.registry.slots[next]; s != nil && s.loaded && s.executing {
				break
			}
		}
		v.currentThread = next
		if s, ok := v.registry.get(v.currentThread); ok {
			s.threadActivation = now
		}
	}
}

// RunScripts drives the cooperative scheduler for durationMs milliseconds
// (or indefinitely when durationMs is RunIndefinitely), executing one
// instruction of the current thread per iteration. Runtime faults stop
// only the faulting script; the GC is held off for the duration of the
// call so that collection does not interrupt the instruction-dispatch
// loop.
func (v *VM) RunScripts(durationMs int64) bool {
	oldGC := debug.SetGCPercent(-1)
	defer debug.SetGCPercent(oldGC)

	start := time.Now()

	for {
		if !v.anyExecuting() {
			return true
		}

		v.drainWakeQueue()

		now := time.Now()

		if durationMs != RunIndefinitely {
			if now.Sub(start) > time.Duration(durationMs)*time.Millisecond {
				return true
			}
		}

		if v.threadingMode == threadingMultiple {
			v.advanceThread(now)
		}

		s, ok := v.registry.get(v.currentThread)
		if !ok || !s.loaded || !s.executing {
			// In single-threading mode the current thread is pinned to
			// the one CallFunction is blocking on: if it stopped
			// executing (returned, or faulted), that call is over
			// regardless of whether other loaded scripts are still
			// running. Falling through to anyExecuting() here would spin
			// forever whenever another script happens to be executing.
			if v.threadingMode == threadingSingle {
				return true
			}
			continue
		}

		if s.paused {
			if now.After(s.pauseEnd) || now.Equal(s.pauseEnd) {
				s.paused = false
			} else {
				continue
			}
		}

		terminated, err := step(v, s)
		if err != nil {
			s.executing = false
			if s.logger != nil {
				s.logger.Warnf("runtime fault: %v", err)
			}
		}

		if terminated && v.threadingMode == threadingSingle {
			return true
		}
	}
}

// CallFunction invokes name in h, temporarily switching the scheduler to
// single-threading mode and blocking until that particular call returns,
// per the reference engine's CallFunction. Parameters must already have
// been pushed via PassIntParameter/PassFloatParameter/PassStringParameter.
func (v *VM) CallFunction(h Handle, name string) bool {
	s, ok := v.registry.get(h)
	if !ok || !s.loaded {
		return false
	}
	idx, ok := findFunctionByName(s, name)
	if !ok {
		return false
	}

	prevMode, prevThread := v.threadingMode, v.currentThread
	v.threadingMode = threadingSingle
	v.currentThread = h
	wasExecuting := s.executing
	s.executing = true

	if err := pushFrame(s, idx); err != nil {
		v.threadingMode, v.currentThread = prevMode, prevThread
		s.executing = wasExecuting
		return false
	}
	markerIdx := s.stack.topIndex - 1
	if err := s.stack.set(markerIdx, avm.StackBaseMarker()); err != nil {
		v.threadingMode, v.currentThread = prevMode, prevThread
		s.executing = wasExecuting
		return false
	}

	v.RunScripts(RunIndefinitely)

	v.threadingMode, v.currentThread = prevMode, prevThread
	s.executing = wasExecuting
	return true
}

// CallFunctionAsync starts name running in h without waiting for it to
// return; the scheduler picks the new frame up on h's next turn, per the
// reference engine's non-blocking call entry point.
func (v *VM) CallFunctionAsync(h Handle, name string) bool {
	s, ok := v.registry.get(h)
	if !ok || !s.loaded {
		return false
	}
	idx, ok := findFunctionByName(s, name)
	if !ok {
		return false
	}
	if err := pushFrame(s, idx); err != nil {
		return false
	}
	s.executing = true
	return true
}
