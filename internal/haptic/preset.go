package haptic

import (
	"errors"
	"fmt"
	"math"
)

// ErrEmptyTable is returned when a preset table has no damping or no frequency entries.
var ErrEmptyTable = errors.New("preset table needs at least one damping and one frequency")

// Preset parameterizes one waveform burst.
type Preset struct {
	Frequency float64 // Hz
	Damping   float64 // 1/s, negative for decay
}

// PresetTable is an immutable grid of damping × frequency presets.
// Preset i uses frequency[i mod Nf] and damping[i div Nf].
type PresetTable struct {
	damping   []float64
	frequency []float64
}

// NewPresetTable validates and copies the given tables.
func NewPresetTable(damping, frequency []float64) (PresetTable, error) {
	if len(damping) == 0 || len(frequency) == 0 {
		return PresetTable{}, fmt.Errorf("%w (damping=%d, frequency=%d)", ErrEmptyTable, len(damping), len(frequency))
	}
	for i, d := range damping {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return PresetTable{}, fmt.Errorf("damping[%d] is not finite: %v", i, d)
		}
	}
	for i, f := range frequency {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return PresetTable{}, fmt.Errorf("frequency[%d] is not finite: %v", i, f)
		}
	}

	return PresetTable{
		damping:   append([]float64(nil), damping...),
		frequency: append([]float64(nil), frequency...),
	}, nil
}

// DefaultPresetTable returns the factory table: 3 dampings × 6 frequencies.
func DefaultPresetTable() PresetTable {
	t, _ := NewPresetTable(
		[]float64{-2, -5, -10},
		[]float64{10, 20, 50, 100, 200, 500},
	)
	return t
}

// Len returns the number of presets (Nd × Nf).
func (t PresetTable) Len() int {
	return len(t.damping) * len(t.frequency)
}

// At returns preset i. Indices outside [0, Len) wrap around.
func (t PresetTable) At(i int) Preset {
	if t.Len() == 0 {
		return Preset{}
	}
	i = t.wrap(i)
	nf := len(t.frequency)
	return Preset{
		Frequency: t.frequency[i%nf],
		Damping:   t.damping[i/nf],
	}
}

// Next returns the index following i in round-robin order.
func (t PresetTable) Next(i int) int {
	return t.wrap(i + 1)
}

func (t PresetTable) wrap(i int) int {
	n := t.Len()
	if n == 0 {
		return 0
	}
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
