//go:build !linux

package motor

import (
	"errors"

	"github.com/sweeney/meal-sensor/internal/haptic"
)

// GPIODriver is not available on non-Linux platforms.
type GPIODriver struct{}

// NewGPIODriver returns an error on non-Linux platforms.
func NewGPIODriver(cfg GPIOConfig) (*GPIODriver, error) {
	return nil, errors.New("motor: not supported on this platform (requires Linux)")
}

// Apply is not implemented on non-Linux platforms.
func (d *GPIODriver) Apply(cmd haptic.Command) error {
	return errors.New("motor: not supported")
}

// Close is not implemented on non-Linux platforms.
func (d *GPIODriver) Close() error {
	return nil
}
