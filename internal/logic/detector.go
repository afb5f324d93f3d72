package logic

import (
	"fmt"
	"time"
)

// MealDetector is a two-state hysteresis detector over the raw sensor reading.
// Not safe for concurrent use: it is owned by the tick loop.
type MealDetector struct {
	thresholds    Thresholds
	state         MealState
	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time
}

// NewMealDetector creates an idle detector.
// The startTime is used for calculating uptime in heartbeat events.
func NewMealDetector(th Thresholds, startTime time.Time) (*MealDetector, error) {
	if th.Low >= th.High {
		return nil, fmt.Errorf("low threshold %d must be below high threshold %d", th.Low, th.High)
	}
	return &MealDetector{
		thresholds:    th,
		state:         StateIdle,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}, nil
}

// Update feeds one reading and returns the transition it caused, if any.
// The new state is committed before the caller does anything with the event.
func (d *MealDetector) Update(reading int, now time.Time) *Event {
	switch {
	case d.state == StateIdle && reading >= d.thresholds.High:
		d.state = StateInMeal
		d.eventCounts.MealStarted++
		return &Event{Timestamp: now, Type: EventMealStarted, Reading: reading}
	case d.state == StateInMeal && reading < d.thresholds.Low:
		d.state = StateIdle
		d.eventCounts.MealEnded++
		return &Event{Timestamp: now, Type: EventMealEnded, Reading: reading}
	}
	return nil
}

// CurrentState returns the current meal state.
func (d *MealDetector) CurrentState() MealState {
	return d.state
}

// Thresholds returns the configured hysteresis band.
func (d *MealDetector) Thresholds() Thresholds {
	return d.thresholds
}

// EventCountsSnapshot returns a copy of the event counts.
func (d *MealDetector) EventCountsSnapshot() EventCounts {
	return d.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (d *MealDetector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}
	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.eventCounts,
	}
}
