package task

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-taskcore/clock"
	"github.com/joeycumines/go-taskcore/irq"
	"github.com/joeycumines/logiface"
)

// options holds configuration options for Scheduler creation.
type options struct {
	logger            *logiface.Logger[logiface.Event]
	limiter           *catrate.Limiter
	clock             clock.Clock
	cpu               *irq.CPU
	driver            clock.Driver
	tickPeriod        time.Duration
	driverSet         bool
	preempt           bool
	deadlockDetection bool
}

// Option configures a Scheduler instance.
type Option interface {
	applyOption(*options) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyOptionFunc func(*options) error
}

func (o *optionImpl) applyOption(opts *options) error {
	return o.applyOptionFunc(opts)
}

// WithLogger configures structured logging. A nil logger disables logging,
// which is the default.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *options) error {
		opts.logger = logger
		return nil
	}}
}

// WithClock sets the monotonic time source used for sleep deadlines.
// Defaults to a clock.Monotonic created by New.
func WithClock(c clock.Clock) Option {
	return &optionImpl{func(opts *options) error {
		if c == nil {
			return fmt.Errorf(`%w: nil clock`, ErrInvalidOption)
		}
		opts.clock = c
		return nil
	}}
}

// WithCPU sets the CPU whose interrupt mask the scheduler operates under.
// Defaults to a new irq.CPU.
func WithCPU(cpu *irq.CPU) Option {
	return &optionImpl{func(opts *options) error {
		if cpu == nil {
			return fmt.Errorf(`%w: nil cpu`, ErrInvalidOption)
		}
		opts.cpu = cpu
		return nil
	}}
}

// WithTickDriver sets the periodic tick source, which raises irq.LineTimer.
// A nil driver disables automatic ticks, in which case the timer line must
// be raised externally (e.g. by a test).
// Defaults to a clock.Ticker with the tick period (see WithTickPeriod).
func WithTickDriver(driver clock.Driver) Option {
	return &optionImpl{func(opts *options) error {
		opts.driver = driver
		opts.driverSet = true
		return nil
	}}
}

// WithTickPeriod sets the period of the default tick driver.
// Defaults to clock.DefaultTickPeriod. Ignored if WithTickDriver is used.
func WithTickPeriod(period time.Duration) Option {
	return &optionImpl{func(opts *options) error {
		if period <= 0 {
			return fmt.Errorf(`%w: non-positive tick period %s`, ErrInvalidOption, period)
		}
		opts.tickPeriod = period
		return nil
	}}
}

// WithPreemption enables preemption at tick boundaries: each tick marks the
// running task for rescheduling, which happens as soon as interrupts are
// re-enabled outside of interrupt context. Disabled by default.
func WithPreemption(enabled bool) Option {
	return &optionImpl{func(opts *options) error {
		opts.preempt = enabled
		return nil
	}}
}

// WithWarningLimiter sets a rate limiter applied to repeated warnings, with
// the warning kind as the category. Nil (the default) applies no limit.
func WithWarningLimiter(limiter *catrate.Limiter) Option {
	return &optionImpl{func(opts *options) error {
		opts.limiter = limiter
		return nil
	}}
}

// WithDeadlockDetection sets whether Run fails with ErrDeadlock when every
// task is blocked and the sleep queue is empty. It should be disabled if
// tasks are woken by interrupt handlers other than the timer.
// Enabled by default.
func WithDeadlockDetection(enabled bool) Option {
	return &optionImpl{func(opts *options) error {
		opts.deadlockDetection = enabled
		return nil
	}}
}

// resolveOptions applies Option instances to options.
func resolveOptions(opts []Option) (*options, error) {
	cfg := &options{
		tickPeriod:        clock.DefaultTickPeriod,
		deadlockDetection: true,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.clock == nil {
		cfg.clock = clock.NewMonotonic()
	}
	if cfg.cpu == nil {
		cfg.cpu = irq.NewCPU()
	}
	if !cfg.driverSet {
		cfg.driver = clock.NewTicker(cfg.tickPeriod)
	}
	return cfg, nil
}
