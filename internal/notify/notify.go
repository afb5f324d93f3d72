// Package notify delivers meal events to the remote collector.
// Delivery happens on a background worker (Dispatcher) so the control tick never
// waits on the network. Transports: plain HTTP GET, MQTT and Kafka.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/inconshreveable/log15"

	"github.com/sweeney/meal-sensor/internal/logic"
)

var log = log15.New("pkg", "notify")

// DefaultTimeout bounds one delivery attempt, including reading the response.
const DefaultTimeout = 5 * time.Second

// Notifier sends one meal event. Implementations must honour ctx and
// return an error instead of panicking; the caller only logs it.
type Notifier interface {
	Notify(ctx context.Context, event logic.Event) error
}

// SystemPublisher publishes daemon lifecycle events.
type SystemPublisher interface {
	PublishSystem(ctx context.Context, event SystemEvent) error
}

// ConnectionStatus reports whether a broker connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the message body for a meal event.
type Payload struct {
	Meal MealPayload `json:"meal"`
}

// MealPayload contains the meal event details.
type MealPayload struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reading   int    `json:"reading"`
}

// FormatPayload creates the JSON payload for a meal event.
// Each call assigns a fresh event ID so consumers can de-duplicate replays.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Meal: MealPayload{
			ID:        uuid.NewString(),
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Reading:   event.Reading,
		},
	}
	return json.Marshal(payload)
}

// ParsePayload decodes a meal event payload.
func ParsePayload(data []byte) (MealPayload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return MealPayload{}, err
	}
	return p.Meal, nil
}

// SystemPayload represents the message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
