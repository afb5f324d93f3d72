package haptic

import (
	"math"
	"time"
)

// Default trigger bounds on the raw 12-bit reading.
const (
	DefaultTriggerAbove = 2400
	DefaultRearmBelow   = 2100
	DefaultMinElapsed   = 300 * time.Millisecond
)

// ActiveWave is the waveform currently playing, if any.
// Amplitude is shared by every preset; only Omega and Damping change per trigger.
type ActiveWave struct {
	Omega       float64 // rad/s
	Damping     float64 // 1/s
	Amplitude   float64
	Clock       SampleClock
	PresetIndex int // preset used by the next trigger
}

// NewActiveWave returns an inactive wave starting at preset 0.
func NewActiveWave(amplitude float64, step time.Duration) ActiveWave {
	return ActiveWave{
		Amplitude: amplitude,
		Clock:     NewSampleClock(step),
	}
}

// Active reports whether a burst is playing.
func (w ActiveWave) Active() bool {
	return w.Clock.Active()
}

// Frequency returns the burst frequency in Hz.
func (w ActiveWave) Frequency() float64 {
	return w.Omega / (2 * math.Pi)
}

// Selector decides when a burst stops and when the next one starts.
type Selector struct {
	Table        PresetTable
	TriggerAbove int           // start a burst when the reading exceeds this
	RearmBelow   int           // stop the burst when the reading drops below this...
	MinElapsed   time.Duration // ...and it has played for longer than this
}

// NewSelector returns a Selector with the default bounds.
func NewSelector(table PresetTable) Selector {
	return Selector{
		Table:        table,
		TriggerAbove: DefaultTriggerAbove,
		RearmBelow:   DefaultRearmBelow,
		MinElapsed:   DefaultMinElapsed,
	}
}

// MaybeTrigger returns the wave after applying the rearm and start conditions for reading.
// A playing burst is never restarted; it must be rearmed first.
func (s Selector) MaybeTrigger(reading int, w ActiveWave) ActiveWave {
	if reading < s.RearmBelow && w.Clock.Active() && w.Clock.Elapsed() > s.MinElapsed {
		w.Clock.Stop()
	}

	if reading > s.TriggerAbove && !w.Clock.Active() {
		p := s.Table.At(w.PresetIndex)
		w.Omega = 2 * math.Pi * p.Frequency
		w.Damping = p.Damping
		w.Clock.Reset()
		w.PresetIndex = s.Table.Next(w.PresetIndex)
	}

	return w
}

// Evaluate returns the current sample A·cos(ωt)·exp(Bt) and advances the wave's clock.
// An inactive wave yields 0.
//
// There is no amplitude-based cutoff: a burst keeps running at negligible
// amplitude until the selector rearms it.
func Evaluate(w *ActiveWave) float64 {
	if !w.Clock.Active() {
		return 0
	}
	t := w.Clock.Elapsed().Seconds()
	v := w.Amplitude * math.Cos(w.Omega*t) * math.Exp(w.Damping*t)
	w.Clock.Advance()
	return v
}
