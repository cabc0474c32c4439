// Package irq models the interrupt mask of a single logical CPU.
//
// The [Controller] interface is the capability the scheduler consumes: query,
// enable and disable interrupts. [CPU] is the in-process implementation, which
// also tracks pending interrupt lines and dispatches their handlers at the
// points where interrupts become enabled, or while idle (see
// [CPU.WaitForInterrupt]). [Guard] is the scoped acquisition wrapper, which
// restores the prior state on every exit path.
package irq

// Controller is the interrupt mask capability of a CPU.
//
// Implementations are only ever called by the code currently holding the CPU,
// so need not be safe for arbitrary concurrent use, other than Enabled.
type Controller interface {
	// Enabled reports whether interrupts are currently enabled.
	Enabled() bool
	// Enable enables interrupts. Pending interrupts may be taken before it
	// returns.
	Enable()
	// Disable disables (masks) interrupts.
	Disable()
}

// Guard records the interrupt state prior to a masked section.
//
// Use it as:
//
//	defer irq.Save(c).Restore()
//
// Restore must be called exactly once.
type Guard struct {
	c       Controller
	enabled bool
}

// Save disables interrupts, returning a Guard that will restore the prior
// state. Nesting is supported, only the outermost Restore re-enables.
func Save(c Controller) Guard {
	g := Guard{c: c, enabled: c.Enabled()}
	c.Disable()
	return g
}

// Restore re-enables interrupts if they were enabled when the guard was
// acquired.
func (g Guard) Restore() {
	if g.enabled {
		g.c.Enable()
	}
}

// WasEnabled reports the interrupt state prior to Save.
func (g Guard) WasEnabled() bool {
	return g.enabled
}

// Do runs fn with interrupts disabled, restoring the prior state when fn
// returns, panics, or calls runtime.Goexit.
func Do(c Controller, fn func()) {
	defer Save(c).Restore()
	fn()
}
