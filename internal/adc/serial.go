package adc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inconshreveable/log15"
	"go.bug.st/serial"
)

var log = log15.New("pkg", "adc")

// SerialReader keeps the latest reading streamed by the microcontroller firmware,
// one decimal value per line ("2817" or "ADC:2817").
// A background goroutine parses the stream so Read never touches the port.
type SerialReader struct {
	port io.ReadCloser

	latest  atomic.Int64
	have    atomic.Bool
	closed  atomic.Bool
	badLine atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
}

// NewSerialReader opens the serial port and starts parsing samples.
func NewSerialReader(portName string, baudRate int) (*SerialReader, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	port, err := serial.Open(portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}

	log.Info("serial sensor opened", "port", portName, "baud", baudRate)
	return newSerialReader(port), nil
}

func newSerialReader(port io.ReadCloser) *SerialReader {
	r := &SerialReader{
		port: port,
		done: make(chan struct{}),
	}
	go r.readLoop()
	return r
}

// Read returns the latest reading without blocking.
// After the stream ends it keeps returning the last value together with ErrStreamClosed.
func (r *SerialReader) Read() (int, error) {
	v := int(r.latest.Load())
	if r.closed.Load() {
		return v, ErrStreamClosed
	}
	if !r.have.Load() {
		return 0, ErrNoSample
	}
	return v, nil
}

// WaitReady blocks until the first sample arrives or ctx is done.
func (r *SerialReader) WaitReady(ctx context.Context) (int, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		v, err := r.Read()
		if err != ErrNoSample {
			return v, err
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// BadLines returns the number of lines that could not be parsed.
func (r *SerialReader) BadLines() uint64 {
	return r.badLine.Load()
}

// Close stops the reader and closes the port.
func (r *SerialReader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.port.Close()
		<-r.done
	})
	return err
}

func (r *SerialReader) readLoop() {
	defer close(r.done)
	defer r.closed.Store(true)

	scanner := bufio.NewScanner(r.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		v, err := parseLine(line)
		if err != nil {
			// Only the first few are logged; a misconfigured baud rate produces garbage on every line.
			if n := r.badLine.Add(1); n <= 3 {
				log.Warn("unparseable sensor line", "line", line, "err", err)
			}
			continue
		}

		r.latest.Store(int64(v))
		r.have.Store(true)
	}

	if err := scanner.Err(); err != nil {
		log.Warn("serial sensor stream ended", "err", err)
	} else {
		log.Info("serial sensor stream closed")
	}
}

// parseLine parses one firmware line into a reading.
func parseLine(line string) (int, error) {
	line = strings.TrimPrefix(line, "ADC:")
	v, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("parse reading: %w", err)
	}
	if v < 0 || v > MaxReading {
		return 0, fmt.Errorf("reading %d out of range 0..%d", v, MaxReading)
	}
	return v, nil
}
