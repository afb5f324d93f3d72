//go:build linux

package motor

import (
	"errors"
	"fmt"

	"github.com/inconshreveable/log15"
	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/meal-sensor/internal/haptic"
)

var log = log15.New("pkg", "motor")

// GPIODriver drives an H-bridge: two direction lines plus one PWM channel.
type GPIODriver struct {
	chip *gpiocdev.Chip
	dir  *gpiocdev.Lines
	pwm  *sysfsPWM

	last    haptic.Direction
	hasLast bool
}

// NewGPIODriver requests the direction lines (both low) and enables the PWM channel at zero duty.
func NewGPIODriver(cfg GPIOConfig) (*GPIODriver, error) {
	if cfg.Chip == "" {
		cfg.Chip = DefaultGPIOChip
	}

	chip, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	lines, err := chip.RequestLines([]int{cfg.PinDirA, cfg.PinDirB}, gpiocdev.AsOutput(0, 0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request direction pins %d/%d: %w", cfg.PinDirA, cfg.PinDirB, err)
	}

	pwm, err := openSysfsPWM(cfg.SysfsRoot, cfg.PWMChip, cfg.PWMChannel, cfg.PWMHz, cfg.MaxDutyTicks)
	if err != nil {
		lines.Close()
		chip.Close()
		return nil, fmt.Errorf("open pwm: %w", err)
	}

	log.Info("motor driver ready", "chip", cfg.Chip, "dir_a", cfg.PinDirA, "dir_b", cfg.PinDirB,
		"pwm", fmt.Sprintf("pwmchip%d/pwm%d", cfg.PWMChip, cfg.PWMChannel), "period_ns", pwm.periodNs)

	return &GPIODriver{chip: chip, dir: lines, pwm: pwm}, nil
}

// Apply sets direction and duty. On a direction change the duty is dropped to
// zero before the bridge flips, so the motor never sees the new direction at the old duty.
func (d *GPIODriver) Apply(cmd haptic.Command) error {
	if !d.hasLast || cmd.Direction != d.last {
		if err := d.pwm.setDuty(0); err != nil {
			return err
		}
		if err := d.dir.SetValues(directionValues(cmd.Direction)); err != nil {
			return fmt.Errorf("set direction %s: %w", cmd.Direction, err)
		}
		d.last = cmd.Direction
		d.hasLast = true
	}
	return d.pwm.setDuty(cmd.DutyTicks)
}

// Close stops the motor and releases GPIO and PWM resources.
// Direction pins are reconfigured to input with pull-down, matching Pi boot defaults.
func (d *GPIODriver) Close() error {
	var errs []error

	if d.pwm != nil {
		if err := d.pwm.close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.dir != nil {
		if err := d.dir.SetValues([]int{0, 0}); err != nil {
			errs = append(errs, fmt.Errorf("clear direction pins: %w", err))
		}
		if err := d.dir.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure direction pins: %w", err))
		}
		if err := d.dir.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close direction pins: %w", err))
		}
	}
	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	return errors.Join(errs...)
}

func directionValues(dir haptic.Direction) []int {
	if dir == haptic.Reverse {
		return []int{0, 1}
	}
	return []int{1, 0}
}
