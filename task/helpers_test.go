package task

import (
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/go-taskcore/clock"
	"github.com/joeycumines/go-taskcore/irq"
	"github.com/stretchr/testify/require"
)

// newTestScheduler builds a scheduler on a manual clock, with no tick
// driver, so ticks only happen when a test raises them.
func newTestScheduler(t *testing.T, opts ...Option) (*Scheduler, *clock.Manual) {
	t.Helper()
	clk := new(clock.Manual)
	s, err := New(append([]Option{WithClock(clk), WithTickDriver(nil)}, opts...)...)
	require.NoError(t, err)
	return s, clk
}

// manualTicks advances clk by step then raises the timer line, roughly every
// millisecond of real time, until stopped.
func manualTicks(s *Scheduler, clk *clock.Manual, step time.Duration) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			clk.Advance(step)
			s.CPU().Raise(irq.LineTimer)
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// takeInterrupts takes any pending interrupts, from task code.
func takeInterrupts(s *Scheduler) {
	irq.Save(s.CPU()).Restore()
}

func checkNumGoroutines(timeout time.Duration) func(t *testing.T) {
	before := runtime.NumGoroutine()
	return func(t *testing.T) {
		t.Helper()
		deadline := time.Now().Add(timeout)
		for {
			after := runtime.NumGoroutine()
			if after <= before {
				return
			}
			if time.Now().After(deadline) {
				t.Errorf(`goroutine leak: %d before, %d after`, before, after)
				return
			}
			time.Sleep(time.Millisecond * 10)
		}
	}
}

// recoverError calls fn, returning the recovered panic value as an error.
func recoverError(fn func()) (err error) {
	defer func() {
		switch r := recover().(type) {
		case nil:
		case error:
			err = r
		default:
			err = errors.New(`non-error panic`)
		}
	}()
	fn()
	return nil
}
