package haptic

import "math"

// Default PWM timing: 10 MHz timer resolution at 25 kHz gives 400 ticks per period.
const (
	DefaultResolutionHz = 10_000_000
	DefaultPWMHz        = 25_000
)

// Direction is the motor rotation direction.
type Direction int

const (
	Forward Direction = iota
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "REVERSE"
	}
	return "FORWARD"
}

// Command is one motor update. Direction and duty always travel together.
type Command struct {
	Direction Direction
	DutyTicks uint32
}

// MaxDutyTicks returns the PWM period in timer ticks.
func MaxDutyTicks(resolutionHz, pwmHz uint32) uint32 {
	if pwmHz == 0 {
		return 0
	}
	return resolutionHz / pwmHz
}

// Mapper converts waveform samples into motor commands.
type Mapper struct {
	MaxDutyTicks uint32
}

// Map returns the command for sample. The magnitude saturates at 1.
func (m Mapper) Map(sample float64) Command {
	dir := Forward
	if sample < 0 {
		dir = Reverse
	}

	mag := math.Abs(sample)
	if math.IsNaN(mag) {
		mag = 0
	}
	if mag > 1 {
		mag = 1
	}

	return Command{
		Direction: dir,
		DutyTicks: uint32(math.Round(mag * float64(m.MaxDutyTicks))),
	}
}
