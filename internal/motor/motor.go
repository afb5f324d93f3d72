// Package motor drives the brushed DC motor behind the haptic actuator.
// The real implementation sets the H-bridge direction through the Linux GPIO
// character device and the speed through a sysfs PWM channel.
// The fake implementation allows testing without hardware.
package motor

import "github.com/sweeney/meal-sensor/internal/haptic"

// Driver applies motor commands.
type Driver interface {
	// Apply sets direction and duty together. It must not block for long:
	// it is called from the control tick.
	Apply(cmd haptic.Command) error

	// Close stops the motor and releases the hardware.
	Close() error
}

// Default wiring (BCM numbering) and PWM channel.
const (
	DefaultGPIOChip   = "gpiochip0"
	DefaultPinDirA    = 5
	DefaultPinDirB    = 17
	DefaultPWMChip    = 0
	DefaultPWMChannel = 0
)

// GPIOConfig describes how the H-bridge is wired.
type GPIOConfig struct {
	Chip         string // GPIO character device, e.g. "gpiochip0"
	PinDirA      int    // high for Forward
	PinDirB      int    // high for Reverse
	PWMChip      int
	PWMChannel   int
	PWMHz        uint32
	MaxDutyTicks uint32
	SysfsRoot    string // defaults to /sys/class/pwm
}
