// Package logic contains pure business logic for meal detection.
// This package has NO external dependencies (no ADC, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// MealState represents whether a meal is in progress.
type MealState string

const (
	StateIdle   MealState = "IDLE"
	StateInMeal MealState = "IN_MEAL"
)

// EventType represents a meal state transition. The values are the names sent to the collector.
type EventType string

const (
	EventMealStarted EventType = "mealStart"
	EventMealEnded   EventType = "mealEnd"
)

// Default hysteresis thresholds on the raw 12-bit reading.
const (
	DefaultLowThreshold  = 2000
	DefaultHighThreshold = 3000
)

// Thresholds bounds the hysteresis band. Low must be strictly below High.
type Thresholds struct {
	Low  int // leave the meal when the reading drops below this
	High int // enter the meal when the reading reaches this
}

// DefaultThresholds returns the factory thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: DefaultLowThreshold, High: DefaultHighThreshold}
}

// Event represents a state transition to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Reading   int // reading that caused the transition
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	MealStarted int
	MealEnded   int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
