package motor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const defaultSysfsRoot = "/sys/class/pwm"

type dutyWriter interface {
	WriteAt(b []byte, off int64) (int, error)
	Close() error
}

// sysfsPWM is one channel of the kernel PWM sysfs interface.
// The duty_cycle file stays open so each update is a single write.
type sysfsPWM struct {
	dir      string
	duty     dutyWriter
	periodNs uint64
	maxDuty  uint32
	lastNs   uint64
	written  bool
}

func openSysfsPWM(root string, chip, channel int, hz, maxDuty uint32) (*sysfsPWM, error) {
	if hz == 0 {
		return nil, errors.New("pwm frequency must be positive")
	}
	if maxDuty == 0 {
		return nil, errors.New("max duty ticks must be positive")
	}
	if root == "" {
		root = defaultSysfsRoot
	}

	chipDir := filepath.Join(root, fmt.Sprintf("pwmchip%d", chip))
	dir := filepath.Join(chipDir, fmt.Sprintf("pwm%d", channel))

	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		if err := writeAttr(filepath.Join(chipDir, "export"), strconv.Itoa(channel)); err != nil {
			return nil, fmt.Errorf("export pwm%d: %w", channel, err)
		}
		if err := waitForDir(dir, 500*time.Millisecond); err != nil {
			return nil, err
		}
	}

	p := &sysfsPWM{
		dir:      dir,
		periodNs: uint64(time.Second) / uint64(hz),
		maxDuty:  maxDuty,
	}

	// duty_cycle must not exceed period, so zero it before changing the period.
	if err := writeAttr(filepath.Join(dir, "duty_cycle"), "0"); err != nil {
		return nil, fmt.Errorf("reset duty cycle: %w", err)
	}
	if err := writeAttr(filepath.Join(dir, "period"), strconv.FormatUint(p.periodNs, 10)); err != nil {
		return nil, fmt.Errorf("set period: %w", err)
	}
	if err := writeAttr(filepath.Join(dir, "enable"), "1"); err != nil {
		return nil, fmt.Errorf("enable pwm: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "duty_cycle"), os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open duty cycle: %w", err)
	}
	p.duty = f
	p.written = true
	return p, nil
}

// setDuty writes the duty for ticks (clamped to maxDuty). Repeated values are skipped.
func (p *sysfsPWM) setDuty(ticks uint32) error {
	if ticks > p.maxDuty {
		ticks = p.maxDuty
	}
	ns := uint64(ticks) * p.periodNs / uint64(p.maxDuty)
	if p.written && ns == p.lastNs {
		return nil
	}
	if _, err := p.duty.WriteAt([]byte(strconv.FormatUint(ns, 10)), 0); err != nil {
		return fmt.Errorf("write duty cycle: %w", err)
	}
	p.lastNs = ns
	p.written = true
	return nil
}

func (p *sysfsPWM) close() error {
	var errs []error
	if err := p.setDuty(0); err != nil {
		errs = append(errs, err)
	}
	if err := writeAttr(filepath.Join(p.dir, "enable"), "0"); err != nil {
		errs = append(errs, fmt.Errorf("disable pwm: %w", err))
	}
	if err := p.duty.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close duty cycle: %w", err))
	}
	return errors.Join(errs...)
}

func writeAttr(path, value string) error {
	return os.WriteFile(path, []byte(value), 0)
}

func waitForDir(dir string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := os.Stat(dir); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("pwm channel %s did not appear after export", dir)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
