package task

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrAlreadyRunning is returned when Run is called on a scheduler that is
	// already running.
	ErrAlreadyRunning = errors.New(`task: scheduler is already running`)

	// ErrTerminated is returned when Run is called on a scheduler that has
	// already run to completion. Spawning on such a scheduler panics with it.
	ErrTerminated = errors.New(`task: scheduler has terminated`)

	// ErrDeadlock is returned by Run when every task is blocked and nothing
	// remains that could wake any of them.
	ErrDeadlock = errors.New(`task: all tasks are blocked`)

	// ErrNotInTask is the panic value (wrapped) when a suspension point is
	// called from outside any task.
	ErrNotInTask = errors.New(`task: not called from a task`)

	// ErrBlockInInterrupt is the panic value (wrapped) when a suspension
	// point is called from an interrupt handler.
	ErrBlockInInterrupt = errors.New(`task: blocked inside interrupt`)

	// ErrInvariant is the panic value (wrapped) when scheduler bookkeeping is
	// found to be inconsistent, e.g. a task linked into two queues.
	ErrInvariant = errors.New(`task: invariant violated`)

	// ErrInvalidOption is returned by New for invalid configuration.
	ErrInvalidOption = errors.New(`task: invalid option`)
)

// PanicError is returned by Run when a task body panicked. The panic stops
// the scheduler, in the same manner as an abort would stop a kernel.
type PanicError struct {
	Value    any
	TaskName string
	Stack    []byte
	TaskID   ID
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf(`task: task %d (%s) panicked: %v`, e.TaskID, e.TaskName, e.Value)
}

// Unwrap returns the panic value, if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func invariantf(format string, args ...any) error {
	return fmt.Errorf(`%w: `+format, append([]any{ErrInvariant}, args...)...)
}
