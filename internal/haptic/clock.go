// Package haptic contains the waveform generator: preset selection, damped-cosine
// evaluation and the mapping of samples onto motor commands.
// This package has NO external dependencies (no ADC, PWM, network or time.Sleep).
package haptic

import "time"

// inactiveTicks marks a clock that is not running.
const inactiveTicks = -1

// SampleClock counts fixed-size steps since it was last reset.
// Elapsed time is derived from the tick count so repeated additions never drift.
type SampleClock struct {
	step  time.Duration
	ticks int64
}

// NewSampleClock returns an inactive clock advancing by step per tick.
func NewSampleClock(step time.Duration) SampleClock {
	return SampleClock{step: step, ticks: inactiveTicks}
}

// Active reports whether the clock is running.
func (c SampleClock) Active() bool {
	return c.ticks >= 0
}

// Reset starts the clock at zero elapsed time.
func (c *SampleClock) Reset() {
	c.ticks = 0
}

// Stop marks the clock inactive.
func (c *SampleClock) Stop() {
	c.ticks = inactiveTicks
}

// Advance moves a running clock forward by one step. Inactive clocks stay inactive.
func (c *SampleClock) Advance() {
	if c.ticks >= 0 {
		c.ticks++
	}
}

// Elapsed returns the time since the last Reset, or a negative duration when inactive.
func (c SampleClock) Elapsed() time.Duration {
	if c.ticks < 0 {
		return -1
	}
	return time.Duration(c.ticks) * c.step
}

// Step returns the fixed tick step.
func (c SampleClock) Step() time.Duration {
	return c.step
}
