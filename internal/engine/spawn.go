package engine

import (
	"context"

	"github.com/bissakov/qazcode-rpa-sub001/internal/graph"
	"github.com/bissakov/qazcode-rpa-sub001/internal/ir"
)

// Handle is the host side of a run started by Spawn.
type Handle struct {
	machine *Machine
	events  *EventQueue
	done    chan struct{}
	err     error
}

// Spawn starts program on its own goroutine and returns immediately.
// The host reads events from Events(), requests a stop with Stop() and
// collects the result with Wait().
func Spawn(ctx context.Context, program *ir.Program, project *graph.Project, opts ...Option) *Handle {
	q := NewEventQueue()
	m := New(program, project, append(opts, WithEvents(q))...)

	h := &Handle{
		machine: m,
		events:  q,
		done:    make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		h.err = m.Run(ctx)
	}()
	return h
}

// Events returns the run's event stream. It is closed when the run ends.
func (h *Handle) Events() *EventQueue { return h.events }

// Machine returns the machine executing the run.
func (h *Handle) Machine() *Machine { return h.machine }

// RunID returns the run identifier.
func (h *Handle) RunID() string { return h.machine.RunID() }

// Stop sends a Stop command. The run observes it at the next instruction
// boundary or delay slice.
func (h *Handle) Stop() { h.machine.Stop() }

// Done is closed when the run has ended.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run ends and returns its error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}
