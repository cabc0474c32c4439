// Package clock provides the monotonic time source and the periodic tick
// driver consumed by the scheduler.
//
// Instants are represented as a [time.Duration] since an arbitrary, fixed
// origin ("boot"), which keeps deadline arithmetic trivially monotonic.
package clock

import (
	"sync/atomic"
	"time"
)

type (
	// Clock reports the current monotonic instant.
	Clock interface {
		Now() time.Duration
	}

	// Monotonic is a Clock backed by the runtime's monotonic clock, anchored
	// at construction.
	Monotonic struct {
		anchor time.Time
	}

	// Manual is a Clock that only moves when told to, for deterministic
	// tests. The zero value is ready to use, starting at 0.
	Manual struct {
		now atomic.Int64
	}
)

var (
	_ Clock = (*Monotonic)(nil)
	_ Clock = (*Manual)(nil)
)

// for testing purposes
var timeNow = time.Now

// NewMonotonic initializes a Monotonic clock, with the current time as the
// origin.
func NewMonotonic() *Monotonic {
	return &Monotonic{anchor: timeNow()}
}

// Now returns the time elapsed since the clock was created.
func (x *Monotonic) Now() time.Duration {
	return timeNow().Sub(x.anchor)
}

// Now returns the current (manually controlled) instant.
func (x *Manual) Now() time.Duration {
	return time.Duration(x.now.Load())
}

// Advance moves the clock forward by d, returning the new instant. Negative
// values panic, the clock is monotonic.
func (x *Manual) Advance(d time.Duration) time.Duration {
	if d < 0 {
		panic(`clock: manual: negative advance`)
	}
	return time.Duration(x.now.Add(int64(d)))
}

// Set moves the clock to the given instant, which must not be in the past.
func (x *Manual) Set(now time.Duration) {
	for {
		old := x.now.Load()
		if int64(now) < old {
			panic(`clock: manual: cannot move backwards`)
		}
		if x.now.CompareAndSwap(old, int64(now)) {
			return
		}
	}
}
