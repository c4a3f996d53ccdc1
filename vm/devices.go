package vm

// nonBlockingChan is a bounded, single-consumer queue that never blocks a
// producer past its capacity: a full queue drops the event instead of
// stalling the goroutine that offered it. A device-interrupt bus needs the
// same shape (hardware device goroutines post interrupts without stalling
// on a full channel), and is often written with a separate atomic
// occupancy counter kept in lockstep with the channel; a buffered channel
// already knows its own occupancy, so this version leans on
// select/default for both ends instead of carrying that second piece of
// state.
type nonBlockingChan[T any] struct {
	channel chan T
}

func newNonBlockingChan[T any](capacity int32) *nonBlockingChan[T] {
	return &nonBlockingChan[T]{channel: make(chan T, capacity)}
}

func (nc *nonBlockingChan[T]) send(data T) bool {
	select {
	case nc.channel <- data:
		return true
	default:
		return false
	}
}

func (nc *nonBlockingChan[T]) drain(handle func(T)) {
	for {
		select {
		case v := <-nc.channel:
			handle(v)
		default:
			return
		}
	}
}

// wakeEvent is a host-originated notification that some external
// condition a script was waiting on (an I/O completion, a timer fired by
// another goroutine) is now ready, asking the scheduler to unpause h
// early rather than wait out its PauseScript duration.
type wakeEvent struct {
	handle   Handle
	callback func(v *VM)
}

// wakeQueueCapacity bounds how many outstanding asynchronous wake events
// the embedding host may have in flight at once.
const wakeQueueCapacity = 256

// NotifyAsync enqueues callback to run on h's behalf the next time
// RunScripts drains its wake queue. Safe to call from any goroutine,
// unlike every other VM method, which is why an embedding host uses this
// one specifically to report completion of work it ran off the script's
// own thread (e.g. a blocking host call dispatched to a worker
// goroutine). Returns false if the queue is full and the event was
// dropped.
func (v *VM) NotifyAsync(h Handle, callback func(v *VM)) bool {
	return v.wakeQueue.send(wakeEvent{handle: h, callback: callback})
}

// drainWakeQueue runs every pending wake event's callback and unpauses
// its script, called once per RunScripts iteration.
func (v *VM) drainWakeQueue() {
	v.wakeQueue.drain(func(e wakeEvent) {
		if e.callback != nil {
			e.callback(v)
		}
		if s, ok := v.registry.get(e.handle); ok {
			s.paused = false
		}
	})
}
