package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTickPeriod is the tick period used when none is configured.
const DefaultTickPeriod = 10 * time.Millisecond

type (
	// Driver is a periodic tick source, i.e. the timer hardware. Start begins
	// calling fire once per period, from a goroutine owned by the driver. Stop
	// halts delivery, and must block until fire will no longer be called.
	Driver interface {
		Start(fire func())
		Stop()
		Period() time.Duration
	}

	// Ticker is a Driver backed by a time.Ticker.
	// Instances must be initialized using the NewTicker factory.
	Ticker struct {
		period  time.Duration
		stop    chan struct{}
		done    chan struct{}
		ticks   atomic.Uint64
		started atomic.Bool
		once    sync.Once
	}
)

var _ Driver = (*Ticker)(nil)

// for testing purposes
var timeNewTicker = time.NewTicker

// NewTicker initializes a new Ticker with the given period, which must be
// positive.
func NewTicker(period time.Duration) *Ticker {
	if period <= 0 {
		panic(`clock: ticker: non-positive period`)
	}
	return &Ticker{
		period: period,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Period returns the configured tick period.
func (x *Ticker) Period() time.Duration {
	return x.period
}

// Ticks returns the number of times fire has been called.
func (x *Ticker) Ticks() uint64 {
	return x.ticks.Load()
}

// Start begins periodic delivery. A Ticker may only be started once, and
// cannot be restarted after Stop.
func (x *Ticker) Start(fire func()) {
	if fire == nil {
		panic(`clock: ticker: nil fire`)
	}
	if !x.started.CompareAndSwap(false, true) {
		panic(`clock: ticker: already started`)
	}
	go x.run(fire)
}

// Stop halts delivery, blocking until the driver goroutine has exited. It is
// safe to call multiple times, and prior to Start.
func (x *Ticker) Stop() {
	x.once.Do(func() { close(x.stop) })
	if x.started.Load() {
		<-x.done
	}
}

func (x *Ticker) run(fire func()) {
	defer close(x.done)
	ticker := timeNewTicker(x.period)
	defer ticker.Stop()
	for {
		select {
		case <-x.stop:
			return
		case <-ticker.C:
		}
		// stop takes precedence over a tick that raced with it
		select {
		case <-x.stop:
			return
		default:
		}
		x.ticks.Add(1)
		fire()
	}
}
