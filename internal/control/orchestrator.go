// Package control sequences one control tick: sensor, meal detection,
// waveform trigger and evaluation, motor command, diagnostics.
package control

import (
	"errors"
	"fmt"
	"time"

	"github.com/inconshreveable/log15"

	"github.com/sweeney/meal-sensor/internal/haptic"
	"github.com/sweeney/meal-sensor/internal/logic"
	"github.com/sweeney/meal-sensor/internal/metrics"
)

var log = log15.New("pkg", "control")

// DefaultDiagnosticEvery is the number of ticks between diagnostic log lines.
const DefaultDiagnosticEvery = 1000

// Sensor supplies one raw reading per tick.
type Sensor interface {
	Read() (int, error)
}

// Actuator applies one motor command per tick.
type Actuator interface {
	Apply(cmd haptic.Command) error
}

// EventSink hands meal events off to the notification worker.
// Enqueue must not block; it returns false when the event was dropped.
type EventSink interface {
	Enqueue(event logic.Event) bool
}

// Config holds the waveform and timing parameters.
type Config struct {
	Selector        haptic.Selector
	Mapper          haptic.Mapper
	Amplitude       float64
	Step            time.Duration // fixed tick period
	DiagnosticEvery int
}

// Stats counts what happened since startup.
type Stats struct {
	Ticks          uint64
	Triggers       uint64
	SensorErrors   uint64
	ActuatorErrors uint64
	DroppedEvents  uint64
}

// TickResult describes one tick. Event is nil when no transition occurred.
type TickResult struct {
	Reading    int
	Event      *logic.Event
	Triggered  bool
	Sample     float64
	Command    haptic.Command
	Diagnostic bool
}

// Orchestrator owns the meal detector and the active wave.
// Not safe for concurrent use: Tick and the accessors belong to the tick loop.
type Orchestrator struct {
	sensor   Sensor
	actuator Actuator
	sink     EventSink
	detector *logic.MealDetector

	selector haptic.Selector
	mapper   haptic.Mapper
	wave     haptic.ActiveWave

	diagEvery   int
	diagCount   int
	lastReading int
	lastSensor  error
	lastApply   error
	stats       Stats
}

// New validates cfg and returns an orchestrator with an idle detector state and no active wave.
func New(cfg Config, detector *logic.MealDetector, sensor Sensor, actuator Actuator, sink EventSink) (*Orchestrator, error) {
	if detector == nil || sensor == nil || actuator == nil || sink == nil {
		return nil, errors.New("control: detector, sensor, actuator and sink are required")
	}
	if cfg.Selector.Table.Len() == 0 {
		return nil, fmt.Errorf("control: %w", haptic.ErrEmptyTable)
	}
	if cfg.Step <= 0 {
		return nil, fmt.Errorf("control: tick step must be positive, got %v", cfg.Step)
	}
	if cfg.DiagnosticEvery <= 0 {
		cfg.DiagnosticEvery = DefaultDiagnosticEvery
	}

	return &Orchestrator{
		sensor:    sensor,
		actuator:  actuator,
		sink:      sink,
		detector:  detector,
		selector:  cfg.Selector,
		mapper:    cfg.Mapper,
		wave:      haptic.NewActiveWave(cfg.Amplitude, cfg.Step),
		diagEvery: cfg.DiagnosticEvery,
	}, nil
}

// Tick runs one control period. It never retries and never blocks on the network:
// a failed stage falls back to a safe value and the next tick starts fresh.
func (o *Orchestrator) Tick(now time.Time) TickResult {
	o.stats.Ticks++
	metrics.TicksTotal.Inc()

	reading, err := o.sensor.Read()
	if err != nil {
		// Hold the last good reading so a sensor glitch cannot end a meal.
		reading = o.lastReading
		o.lastSensor = err
		o.stats.SensorErrors++
		metrics.SensorErrors.Inc()
	}
	o.lastReading = reading
	metrics.SensorReading.Set(float64(reading))

	res := TickResult{Reading: reading}

	if e := o.detector.Update(reading, now); e != nil {
		res.Event = e
		metrics.MealEvents.WithLabelValues(string(e.Type)).Inc()
		metrics.MealInProgress.Set(metrics.BoolGauge(o.detector.CurrentState() == logic.StateInMeal))
		if !o.sink.Enqueue(*e) {
			o.stats.DroppedEvents++
		}
		log.Info("meal transition", "event", e.Type, "reading", reading)
	}

	wasActive := o.wave.Active()
	o.wave = o.selector.MaybeTrigger(reading, o.wave)
	// Evaluate advances every surviving wave, so zero elapsed means it just started.
	if o.wave.Active() && o.wave.Clock.Elapsed() == 0 {
		res.Triggered = true
		o.stats.Triggers++
		metrics.WaveTriggers.Inc()
		log.Debug("wave triggered", "hz", o.wave.Frequency(), "damping", o.wave.Damping, "amplitude", o.wave.Amplitude)
	} else if wasActive && !o.wave.Active() {
		log.Debug("wave rearmed", "reading", reading)
	}
	metrics.WaveActive.Set(metrics.BoolGauge(o.wave.Active()))

	res.Sample = haptic.Evaluate(&o.wave)
	res.Command = o.mapper.Map(res.Sample)

	if err := o.actuator.Apply(res.Command); err != nil {
		o.lastApply = err
		o.stats.ActuatorErrors++
		metrics.ActuatorErrors.Inc()
	}

	o.diagCount++
	if o.diagCount >= o.diagEvery {
		o.diagCount = 0
		res.Diagnostic = true
		o.logDiagnostic(reading)
	}

	return res
}

// Errors are summarized here rather than per tick to keep the loop quiet at 10 kHz.
func (o *Orchestrator) logDiagnostic(reading int) {
	ctx := []interface{}{"reading", reading, "state", o.detector.CurrentState(), "wave", o.wave.Active()}
	if o.lastSensor != nil {
		ctx = append(ctx, "sensor_errors", o.stats.SensorErrors, "sensor_err", o.lastSensor)
		o.lastSensor = nil
	}
	if o.lastApply != nil {
		ctx = append(ctx, "actuator_errors", o.stats.ActuatorErrors, "actuator_err", o.lastApply)
		o.lastApply = nil
	}
	log.Info("diagnostic", ctx...)
}

// State returns the current meal state.
func (o *Orchestrator) State() logic.MealState {
	return o.detector.CurrentState()
}

// Wave returns a copy of the active wave.
func (o *Orchestrator) Wave() haptic.ActiveWave {
	return o.wave
}

// LastReading returns the reading used by the most recent tick.
func (o *Orchestrator) LastReading() int {
	return o.lastReading
}

// Stats returns a copy of the counters.
func (o *Orchestrator) Stats() Stats {
	return o.stats
}

// Snapshot is the loop state published to the status tracker.
type Snapshot struct {
	State       logic.MealState
	Reading     int
	WaveActive  bool
	Frequency   float64 // Hz of the playing burst, 0 when idle
	PresetIndex int     // preset used by the next trigger
	Counts      logic.EventCounts
	Stats       Stats
}

// Snapshot copies the current state for consumers outside the loop.
func (o *Orchestrator) Snapshot() Snapshot {
	s := Snapshot{
		State:       o.detector.CurrentState(),
		Reading:     o.lastReading,
		WaveActive:  o.wave.Active(),
		PresetIndex: o.wave.PresetIndex,
		Counts:      o.detector.EventCountsSnapshot(),
		Stats:       o.stats,
	}
	if s.WaveActive {
		s.Frequency = o.wave.Frequency()
	}
	return s
}
