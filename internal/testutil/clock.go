package testutil

import "sync"

// StepClock numbers scenario trace steps 1, 2, 3, ...
//
// Steps are stamped from a counter rather than wall time so two runs of the
// same scenario produce identical traces.
//
// Thread-safety: all methods are safe for concurrent use.
type StepClock struct {
	mu  sync.Mutex
	seq int64
}

// NewStepClock creates a clock whose first Next returns 1.
func NewStepClock() *StepClock {
	return &StepClock{}
}

// Next increments and returns the step number.
func (c *StepClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last step number handed out.
func (c *StepClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock so the next step is 1 again.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
