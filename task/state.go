package task

import (
	"sync/atomic"
)

// State is the scheduling state of a Task.
//
// State Machine:
//
//	StateReady → StateRunning                    [switched to]
//	StateRunning → StateReady                    [YieldNow, preemption]
//	StateRunning → StateSleeping                 [Sleep, SleepUntil]
//	StateRunning → StateWaiting                  [WaitQueue.Wait*]
//	StateRunning → StateTerminated               [body returned]
//	StateSleeping | StateWaiting → StateReady    [tick, notify]
//
// Exactly one task is StateRunning while the scheduler runs.
type State uint32

const (
	// StateReady indicates the task is in the ready queue.
	StateReady State = iota
	// StateRunning indicates the task holds the CPU.
	StateRunning
	// StateSleeping indicates the task is blocked in the sleep queue.
	StateSleeping
	// StateWaiting indicates the task is blocked on a WaitQueue, possibly
	// also in the sleep queue, for timed waits.
	StateWaiting
	// StateTerminated indicates the task's body has returned, or the task
	// was unwound when the scheduler stopped.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateWaiting:
		return "Waiting"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// lifecycle is the state of a Scheduler itself.
//
//	lifecycleIdle → lifecycleRunning        [Run]
//	lifecycleRunning → lifecycleTerminated  [Run returns]
type lifecycle uint32

const (
	lifecycleIdle lifecycle = iota
	lifecycleRunning
	lifecycleTerminated
)

type lifecycleState struct {
	v atomic.Uint32
}

func (s *lifecycleState) Load() lifecycle {
	return lifecycle(s.v.Load())
}

func (s *lifecycleState) Store(v lifecycle) {
	s.v.Store(uint32(v))
}

func (s *lifecycleState) TryTransition(from, to lifecycle) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
