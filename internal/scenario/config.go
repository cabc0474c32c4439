package scenario

import (
	"time"

	"github.com/joeycumines/logiface"
)

// Config parameterizes the scenarios. Zero values are replaced by defaults.
type Config struct {
	// Logger receives a record per scenario. Nil disables logging.
	Logger *logiface.Logger[logiface.Event]

	// Tasks is the number of concurrent tasks in each scenario.
	// Defaults to 16.
	Tasks int

	// Times is the number of yields per task in the yield storm.
	// Defaults to 100.
	Times int

	// LongSleep is the long sleep of the sleep storm.
	// Defaults to 1s.
	LongSleep time.Duration

	// ShortSleep is the sleep of the background ticking task, in the sleep
	// storm. Defaults to 100ms.
	ShortSleep time.Duration

	// ShortSleeps is the number of times the background task sleeps.
	// Defaults to 10.
	ShortSleeps int

	// Rounds is the number of long sleeps per sleep storm task.
	// Defaults to 3.
	Rounds int

	// WaitTimeout is the timed wait of the wait queue rendezvous.
	// Defaults to 100ms.
	WaitTimeout time.Duration

	// Poll is how often the sleep storm checks for completion.
	// Defaults to 10ms.
	Poll time.Duration

	// MaxLateness bounds how long after its deadline a sleeping task may
	// resume. Defaults to 1s, and is not scaled.
	MaxLateness time.Duration
}

// Scale returns a copy of the config, with every duration other than
// MaxLateness (defaults included) multiplied by factor.
func (x Config) Scale(factor float64) Config {
	if factor <= 0 {
		panic(`scenario: scale factor must be positive`)
	}
	x = x.withDefaults()
	scale := func(d *time.Duration) {
		*d = time.Duration(float64(*d) * factor)
		if *d <= 0 {
			*d = time.Nanosecond
		}
	}
	scale(&x.LongSleep)
	scale(&x.ShortSleep)
	scale(&x.WaitTimeout)
	scale(&x.Poll)
	return x
}

func (x Config) withDefaults() Config {
	if x.Tasks <= 0 {
		x.Tasks = 16
	}
	if x.Times <= 0 {
		x.Times = 100
	}
	if x.LongSleep <= 0 {
		x.LongSleep = time.Second
	}
	if x.ShortSleep <= 0 {
		x.ShortSleep = time.Millisecond * 100
	}
	if x.ShortSleeps <= 0 {
		x.ShortSleeps = 10
	}
	if x.Rounds <= 0 {
		x.Rounds = 3
	}
	if x.WaitTimeout <= 0 {
		x.WaitTimeout = time.Millisecond * 100
	}
	if x.Poll <= 0 {
		x.Poll = time.Millisecond * 10
	}
	if x.MaxLateness <= 0 {
		x.MaxLateness = time.Second
	}
	return x
}
