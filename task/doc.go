// Package task implements a single CPU task scheduler, with a deadline
// ordered sleep queue, and FIFO wait queues for blocking on arbitrary
// conditions.
//
// Tasks are cooperatively scheduled. Exactly one task runs at a time, and a
// task gives up the CPU only at a suspension point: Scheduler.YieldNow,
// Scheduler.Sleep, Scheduler.SleepUntil, or one of the WaitQueue wait
// methods. If preemption is enabled (see WithPreemption), a task is also
// rescheduled when it next enables interrupts after a timer tick.
//
// All scheduler state is protected by disabling interrupts on the
// scheduler's irq.CPU, rather than by a lock. Task code always runs with
// interrupts enabled, and every suspension point returns with them enabled.
// Code that shares state with other tasks, or with interrupt handlers, may
// use irq.Save to mask interrupts around its critical section. Such a
// section must not suspend.
//
// Each task is backed by a goroutine, though only the goroutine of the
// running task is ever runnable. Tasks that are still alive when the
// scheduler stops are terminated via runtime.Goexit, running their deferred
// calls.
package task
