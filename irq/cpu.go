package irq

import (
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"
)

// MaxLines is the number of interrupt lines supported by a CPU.
const MaxLines = 64

// LineTimer is the interrupt line reserved for the periodic timer tick.
const LineTimer Line = 0

type (
	// Line identifies an interrupt source, in the range [0, MaxLines).
	Line uint8

	// Handler is invoked, with interrupts disabled, to service a line.
	Handler func(line Line)

	// CPU is a software model of one logical CPU's interrupt controller.
	//
	// Interrupts are raised asynchronously (from any goroutine) via Raise, but
	// are only ever taken synchronously, by the goroutine currently holding
	// the CPU: either when it enables interrupts, or while it is idle in
	// WaitForInterrupt. Handlers therefore never run concurrently with a
	// masked section, which is the mutual exclusion the scheduler relies on.
	//
	// A new CPU has interrupts disabled.
	CPU struct {
		handlers   [MaxLines]Handler
		signal     chan struct{}
		returnHook func()
		enabled    atomic.Bool
		pending    atomic.Uint64
		taken      atomic.Uint64
		coalesced  atomic.Uint64
		spurious   atomic.Uint64
		depth      int32
		mu         sync.RWMutex
	}
)

var _ Controller = (*CPU)(nil)

// NewCPU initializes a new CPU, with interrupts disabled.
func NewCPU() *CPU {
	return &CPU{signal: make(chan struct{}, 1)}
}

// Register installs the handler for the given line, replacing any existing
// handler. A nil handler unregisters. Lines without a handler are counted as
// spurious when taken.
func (x *CPU) Register(line Line, handler Handler) {
	if line >= MaxLines {
		panic(fmt.Errorf(`irq: register: line %d out of range`, line))
	}
	x.mu.Lock()
	x.handlers[line] = handler
	x.mu.Unlock()
}

// SetReturnHook configures a function to be called after pending interrupts
// have been taken by Enable, with interrupts enabled, i.e. on "return from
// interrupt". It is not called by WaitForInterrupt.
func (x *CPU) SetReturnHook(hook func()) {
	x.mu.Lock()
	x.returnHook = hook
	x.mu.Unlock()
}

// Enabled reports whether interrupts are enabled.
func (x *CPU) Enabled() bool {
	return x.enabled.Load()
}

// Disable masks interrupts.
func (x *CPU) Disable() {
	x.enabled.Store(false)
}

// Enable unmasks interrupts, taking any pending interrupts before returning.
func (x *CPU) Enable() {
	x.enabled.Store(true)
	if x.depth != 0 || x.pending.Load() == 0 {
		return
	}
	x.enabled.Store(false)
	x.dispatch()
	x.enabled.Store(true)
	x.mu.RLock()
	hook := x.returnHook
	x.mu.RUnlock()
	if hook != nil {
		hook()
	}
}

// Raise marks line as pending. It is safe to call from any goroutine. Raising
// a line that is already pending is coalesced into the earlier request.
func (x *CPU) Raise(line Line) {
	if line >= MaxLines {
		panic(fmt.Errorf(`irq: raise: line %d out of range`, line))
	}
	mask := uint64(1) << line
	if x.pending.Or(mask)&mask != 0 {
		x.coalesced.Add(1)
	}
	select {
	case x.signal <- struct{}{}:
	default:
	}
}

// Pending reports whether any line is pending.
func (x *CPU) Pending() bool {
	return x.pending.Load() != 0
}

// WaitForInterrupt idles until at least one interrupt is pending, then takes
// all pending interrupts, with interrupts remaining disabled throughout.
// False is returned, without taking anything, if done is closed first.
//
// Must be called with interrupts disabled, by the goroutine holding the CPU.
func (x *CPU) WaitForInterrupt(done <-chan struct{}) bool {
	if x.Enabled() {
		panic(`irq: wait for interrupt: interrupts enabled`)
	}
	for x.pending.Load() == 0 {
		select {
		case <-done:
			return false
		case <-x.signal:
		}
	}
	x.dispatch()
	return true
}

// InInterrupt reports whether the caller is running inside a handler.
func (x *CPU) InInterrupt() bool {
	return x.depth != 0
}

// Taken returns the number of interrupts dispatched so far.
func (x *CPU) Taken() uint64 {
	return x.taken.Load()
}

// Coalesced returns the number of Raise calls merged into an already pending
// interrupt, i.e. the number of "lost" interrupts.
func (x *CPU) Coalesced() uint64 {
	return x.coalesced.Load()
}

// Spurious returns the number of interrupts taken without a handler.
func (x *CPU) Spurious() uint64 {
	return x.spurious.Load()
}

func (x *CPU) dispatch() {
	x.depth++
	defer func() { x.depth-- }()
	for pending := x.pending.Swap(0); pending != 0; pending &= pending - 1 {
		line := Line(bits.TrailingZeros64(pending))
		x.taken.Add(1)
		x.mu.RLock()
		handler := x.handlers[line]
		x.mu.RUnlock()
		if handler == nil {
			x.spurious.Add(1)
			continue
		}
		handler(line)
	}
}
