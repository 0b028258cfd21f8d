package testutils

import (
	"sync"
	"time"
)

// StepClock is a deterministic clock that advances by Step on every call.
type StepClock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewStepClock returns a clock starting at start that advances one
// millisecond per call.
func NewStepClock(start time.Time) *StepClock {
	return &StepClock{now: start, Step: time.Millisecond}
}

// Now returns the current time and advances the clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}
