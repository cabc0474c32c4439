package task

import (
	"context"
	"sync/atomic"
	"time"
)

var defaultScheduler atomic.Pointer[Scheduler]

// Default returns the process-wide scheduler used by the package-level
// functions, creating it with default options on first use. Use SetDefault,
// before first use, to configure it.
func Default() *Scheduler {
	if s := defaultScheduler.Load(); s != nil {
		return s
	}
	s, err := New()
	if err != nil {
		panic(err)
	}
	if !defaultScheduler.CompareAndSwap(nil, s) {
		return defaultScheduler.Load()
	}
	return s
}

// SetDefault replaces the process-wide scheduler. It must not be called while
// the current default is running.
func SetDefault(s *Scheduler) {
	if s == nil {
		panic(`task: nil scheduler`)
	}
	defaultScheduler.Store(s)
}

// Run calls Run on the Default scheduler.
func Run(ctx context.Context, main func()) error {
	return Default().Run(ctx, main)
}

// Spawn calls Spawn on the Default scheduler.
func Spawn(body func()) *Task {
	return Default().Spawn(body)
}

// Current calls Current on the Default scheduler.
func Current() *Task {
	return Default().Current()
}

// YieldNow calls YieldNow on the Default scheduler.
func YieldNow() {
	Default().YieldNow()
}

// Sleep calls Sleep on the Default scheduler.
func Sleep(d time.Duration) {
	Default().Sleep(d)
}

// NewWaitQueue calls NewWaitQueue on the Default scheduler.
func NewWaitQueue(name string) *WaitQueue {
	return Default().NewWaitQueue(name)
}
