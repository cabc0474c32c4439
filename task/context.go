package task

import (
	"runtime"
	"runtime/debug"
)

// This file holds the only "low level" part of the scheduler: saving and
// restoring execution contexts. A context is a goroutine parked on its task's
// resume channel. Exactly one goroutine holds the CPU at any time; holding it
// is transferred by a send on the next task's resume channel, which is also
// the happens-before edge between consecutive holders.
//
// Everything here must be called with interrupts disabled.

// switchTo saves prev's context (parks the calling goroutine) and installs
// next's. It returns once prev is switched back to.
func (s *Scheduler) switchTo(prev, next *Task) {
	s.install(next)
	s.traceSwitch(prev, next)
	<-prev.resume
}

// install updates the running pointer and resumes next, without parking the
// caller, which must stop touching scheduler state immediately after.
func (s *Scheduler) install(next *Task) {
	s.current = next
	next.setState(StateRunning)
	s.stats.switches.Add(1)
	next.resume <- struct{}{}
}

// run is the body of the goroutine backing a task. The goroutine starts
// parked, and is resumed with interrupts disabled, like any other switch.
func (x *Task) run() {
	<-x.resume
	s := x.sched
	var returned bool
	defer func() { s.exit(x, returned, recover()) }()
	if !s.stopping {
		// a fresh context starts with interrupts enabled
		s.cpu.Enable()
		x.body()
	}
	returned = true
}

// exit is the task's final context switch. It is always called on the
// task's own goroutine, as it terminates.
func (s *Scheduler) exit(t *Task, returned bool, recovered any) {
	s.cpu.Disable()

	if !s.stopping {
		switch {
		case recovered != nil:
			err := &PanicError{
				Value:    recovered,
				TaskName: t.name,
				Stack:    debug.Stack(),
				TaskID:   t.id,
			}
			s.logger.Err().
				Err(err).
				Uint64(`task`, uint64(t.id)).
				Str(`stack`, string(err.Stack)).
				Log(`task panicked`)
			s.stop(err)
		case t.main:
			s.stop(nil)
		}
	} else if recovered != nil {
		s.logger.Warning().
			Uint64(`task`, uint64(t.id)).
			Any(`panic`, recovered).
			Log(`task panicked while unwinding`)
	}

	t.setState(StateTerminated)
	delete(s.tasks, t.id)
	s.stats.exited.Add(1)
	s.logger.Debug().
		Uint64(`task`, uint64(t.id)).
		Str(`name`, t.name).
		Bool(`returned`, returned).
		Log(`task exited`)
	close(t.exited)

	if s.stopping {
		if s.haltBy == t {
			// hand the CPU back to Run, which unwinds everything else
			close(s.halt)
		}
		return
	}

	next := s.pickNext()
	if next == nil {
		// stopped while picking, by this task
		close(s.halt)
		return
	}
	s.install(next)
}

// resched gives up the CPU on behalf of cur, which must already be linked
// into the structure that will make it runnable again (or the ready queue).
// It returns once cur is scheduled again. If the scheduler stops in the
// meantime cur is unwound, via runtime.Goexit.
func (s *Scheduler) resched(cur *Task) {
	next := s.pickNext()
	if next == nil {
		runtime.Goexit()
	}
	if next != cur {
		s.switchTo(cur, next)
		if s.stopping {
			runtime.Goexit()
		}
		return
	}
	// woken while idling on its own goroutine
	cur.setState(StateRunning)
}
