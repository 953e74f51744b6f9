// Package stopcontrol provides cooperative cancellation for a workflow run.
//
// A Control is a stop flag plus a wake channel. Clones share both, so the
// host can keep one handle while the VM polls another. The VM checks
// IsStopped at instruction boundaries and sleeps through
// SleepInterruptible, which returns early when a stop is requested.
package stopcontrol

import (
	"sync"
	"time"
)

type state struct {
	mu      sync.Mutex
	stopped bool
	wake    chan struct{}
}

// Control is a handle to shared stop state. The zero value is not usable;
// call New.
type Control struct {
	s *state
}

// New returns a Control that is not stopped.
func New() *Control {
	return &Control{s: &state{wake: make(chan struct{})}}
}

// Clone returns a handle sharing the same flag and wake channel.
func (c *Control) Clone() *Control {
	return &Control{s: c.s}
}

// IsStopped reports whether a stop has been requested since the last Reset.
func (c *Control) IsStopped() bool {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.s.stopped
}

// RequestStop sets the flag and wakes every sleeper. Repeated calls are
// no-ops.
func (c *Control) RequestStop() {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.stopped {
		return
	}
	c.s.stopped = true
	close(c.s.wake)
}

// Reset clears the flag so the control can be reused for another run.
func (c *Control) Reset() {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if !c.s.stopped {
		return
	}
	c.s.stopped = false
	c.s.wake = make(chan struct{})
}

// Done returns a channel closed when a stop is requested. The channel is
// replaced by Reset, so fetch it again after reusing the control.
func (c *Control) Done() <-chan struct{} {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.s.wake
}

// SleepInterruptible sleeps for d. It returns false if the control was
// stopped before or during the sleep, true if the full duration elapsed.
func (c *Control) SleepInterruptible(d time.Duration) bool {
	done := c.Done()
	select {
	case <-done:
		return false
	default:
	}
	if d <= 0 {
		return !c.IsStopped()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return false
	case <-timer.C:
		return !c.IsStopped()
	}
}
