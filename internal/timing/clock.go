// SPDX-License-Identifier: MIT
// Package timing provides the monotonic elapsed-time source that stamps
// analysis blocks.
package timing

import (
	"fmt"
	"time"
)

// State is the lifecycle position of a Clock.
type State int

const (
	StateReady State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Clock measures elapsed time relative to its start. The state machine is
// strict: READY -> RUNNING -> STOPPED, with Reset returning to READY.
// Out-of-sequence calls are driver bugs and fail loudly rather than
// handing back stale timestamps.
type Clock struct {
	state  State
	start  time.Time
	stop   time.Time
	now    func() time.Time
}

// NewClock returns a clock in the READY state, backed by time.Now (which
// carries a monotonic reading).
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockFunc returns a clock backed by a custom time source. Used by
// tests to make elapsed values deterministic.
func NewClockFunc(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// State returns the current lifecycle state.
func (c *Clock) State() State { return c.state }

// Ready reports whether the clock can be started.
func (c *Clock) Ready() bool { return c.state == StateReady }

// Running reports whether the clock is measuring time.
func (c *Clock) Running() bool { return c.state == StateRunning }

// Stopped reports whether the clock has been halted.
func (c *Clock) Stopped() bool { return c.state == StateStopped }

// Reset returns the clock to READY, discarding any recorded times.
func (c *Clock) Reset() {
	c.state = StateReady
	c.start = time.Time{}
	c.stop = time.Time{}
}

// Start begins measuring. Valid only from READY.
func (c *Clock) Start() error {
	if c.state != StateReady {
		return fmt.Errorf("timing: cannot start clock in state %s", c.state)
	}
	c.start = c.now()
	c.state = StateRunning
	return nil
}

// Stop halts the clock and returns the total running time. Valid only
// from RUNNING; STOPPED is terminal until Reset.
func (c *Clock) Stop() (time.Duration, error) {
	if c.state != StateRunning {
		return 0, fmt.Errorf("timing: cannot stop clock in state %s", c.state)
	}
	c.stop = c.now()
	c.state = StateStopped
	return c.stop.Sub(c.start), nil
}

// Elapsed returns the time since Start. Valid only while RUNNING.
func (c *Clock) Elapsed() (time.Duration, error) {
	if c.state != StateRunning {
		return 0, fmt.Errorf("timing: cannot read clock in state %s", c.state)
	}
	return c.now().Sub(c.start), nil
}
