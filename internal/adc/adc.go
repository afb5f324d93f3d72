// Package adc provides analog sensor reading with hardware abstraction.
// The real implementation reads values streamed by a microcontroller over a serial port.
// The fake implementation allows testing without hardware.
package adc

import "errors"

// Reader reads the raw analog sensor value.
type Reader interface {
	// Read returns the most recent raw reading (0..MaxReading).
	// It must not block: it is called from the control tick.
	Read() (int, error)

	// Close releases the underlying device.
	Close() error
}

// MaxReading is the full-scale value of the 12-bit converter.
const MaxReading = 4095

// DefaultBaudRate matches the microcontroller firmware.
const DefaultBaudRate = 115200

var (
	// ErrNoSample is returned until the first valid sample arrives.
	ErrNoSample = errors.New("adc: no sample received yet")

	// ErrStreamClosed is returned once the serial stream has ended.
	ErrStreamClosed = errors.New("adc: sample stream closed")
)
