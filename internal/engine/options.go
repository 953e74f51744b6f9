package engine

import (
	"log/slog"
	"time"

	"github.com/bissakov/qazcode-rpa-sub001/internal/expr"
	"github.com/bissakov/qazcode-rpa-sub001/internal/runlog"
	"github.com/bissakov/qazcode-rpa-sub001/internal/stopcontrol"
)

const (
	// DefaultMaxCallDepth bounds nested CallScenario frames.
	DefaultMaxCallDepth = 100

	// DefaultMaxSteps disables the step quota.
	DefaultMaxSteps = 0

	// DefaultSnapshotInterval throttles StateSnapshot events.
	DefaultSnapshotInterval = 100 * time.Millisecond

	// DefaultDelaySlice is the longest uninterrupted sleep inside a Delay.
	// A stop request is observed within one slice.
	DefaultDelaySlice = 50 * time.Millisecond
)

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the structured logger for run diagnostics.
// Default: slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMaxCallDepth sets how many CallScenario frames may be active at once.
//
// Default: 100 (DefaultMaxCallDepth)
// A call made at the limit fails with STACK_OVERFLOW.
func WithMaxCallDepth(depth int) Option {
	return func(m *Machine) {
		m.maxCallDepth = depth
	}
}

// WithMaxSteps sets the maximum number of executed instructions.
//
// Default: 0 (unlimited)
// Use WithMaxSteps(10) for testing quota enforcement.
func WithMaxSteps(maxSteps int) Option {
	return func(m *Machine) {
		m.maxSteps = maxSteps
	}
}

// WithSnapshotInterval sets the minimum time between StateSnapshot events.
// A final snapshot is always emitted when the run ends.
func WithSnapshotInterval(d time.Duration) Option {
	return func(m *Machine) {
		m.snapshotInterval = d
	}
}

// WithDelaySlice sets the polling slice used while sleeping in a Delay.
func WithDelaySlice(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.delaySlice = d
		}
	}
}

// WithTimeSource replaces wall time, for deterministic timestamps in tests.
func WithTimeSource(ts TimeSource) Option {
	return func(m *Machine) {
		if ts != nil {
			m.now = ts
		}
	}
}

// WithRunner sets the runner used by RunPowershell. Without one the
// activity logs a warning and is skipped.
func WithRunner(r ActivityRunner) Option {
	return func(m *Machine) {
		m.runner = r
	}
}

// WithLogStorage sets the run log. Default: a fresh runlog.New().
func WithLogStorage(s *runlog.Storage) Option {
	return func(m *Machine) {
		if s != nil {
			m.logs = s
		}
	}
}

// WithStopControl shares a stop control with the host, so the host can
// stop the run without going through the command channel.
func WithStopControl(c *stopcontrol.Control) Option {
	return func(m *Machine) {
		if c != nil {
			m.stop = c
		}
	}
}

// WithEvents sets the queue that receives run events. Without one, no
// events are produced.
func WithEvents(q *EventQueue) Option {
	return func(m *Machine) {
		m.events = q
	}
}

// WithRunIDGenerator sets the run id source. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(m *Machine) {
		if g != nil {
			m.runIDs = g
		}
	}
}

// WithGlobal overrides the initial value of a Global variable, after
// project declarations are applied.
func WithGlobal(name string, v expr.Value) Option {
	return func(m *Machine) {
		m.overrides = append(m.overrides, override{name: name, value: v})
	}
}

// WithNodeTrace adds a DEBUG entry to the run log for every executed node.
func WithNodeTrace(enabled bool) Option {
	return func(m *Machine) {
		m.nodeTrace = enabled
	}
}
