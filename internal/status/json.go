package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Meal          string       `json:"meal"`
	Reading       int          `json:"reading"`
	Wave          WaveJSON     `json:"wave"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Loop          LoopJSON     `json:"loop"`
	Notify        NotifyJSON   `json:"notify"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// WaveJSON describes the haptic burst.
type WaveJSON struct {
	Active     bool    `json:"active"`
	Frequency  float64 `json:"frequency_hz"`
	NextPreset int     `json:"next_preset"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	MealStart int `json:"meal_start"`
	MealEnd   int `json:"meal_end"`
}

// LoopJSON is the JSON representation of the tick counters.
type LoopJSON struct {
	Ticks          uint64 `json:"ticks"`
	Triggers       uint64 `json:"triggers"`
	SensorErrors   uint64 `json:"sensor_errors"`
	ActuatorErrors uint64 `json:"actuator_errors"`
	DroppedEvents  uint64 `json:"dropped_events"`
}

// NotifyJSON is the JSON representation of the dispatcher counters.
type NotifyJSON struct {
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
	Pending int    `json:"pending"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickUs          int64  `json:"tick_us"`
	DiagnosticEvery int    `json:"diagnostic_every"`
	HeartbeatMs     int64  `json:"heartbeat_ms"`
	LowThreshold    int    `json:"low_threshold"`
	HighThreshold   int    `json:"high_threshold"`
	MaxDutyTicks    uint32 `json:"max_duty_ticks"`
	Collector       string `json:"collector,omitempty"`
	Broker          string `json:"broker,omitempty"`
	HTTPPort        string `json:"http_port"`
}

func buildInner(snap Snapshot) StatusInner {
	meal := string(snap.Loop.State)
	if meal == "" {
		meal = "UNKNOWN"
	}
	loop := snap.Loop

	inner := StatusInner{
		Meal:    meal,
		Reading: loop.Reading,
		Wave: WaveJSON{
			Active:     loop.WaveActive,
			Frequency:  loop.Frequency,
			NextPreset: loop.PresetIndex,
		},
		Ready:         snap.Ready,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			MealStart: loop.Counts.MealStarted,
			MealEnd:   loop.Counts.MealEnded,
		},
		Loop: LoopJSON{
			Ticks:          loop.Stats.Ticks,
			Triggers:       loop.Stats.Triggers,
			SensorErrors:   loop.Stats.SensorErrors,
			ActuatorErrors: loop.Stats.ActuatorErrors,
			DroppedEvents:  loop.Stats.DroppedEvents,
		},
		Notify: NotifyJSON(snap.Notify),
		Config: ConfigJSON{
			TickUs:          snap.Config.TickPeriod.Microseconds(),
			DiagnosticEvery: snap.Config.DiagnosticEvery,
			HeartbeatMs:     snap.Config.Heartbeat.Milliseconds(),
			LowThreshold:    snap.Config.LowThreshold,
			HighThreshold:   snap.Config.HighThreshold,
			MaxDutyTicks:    snap.Config.MaxDutyTicks,
			Collector:       snap.Config.Collector,
			Broker:          snap.Config.Broker,
			HTTPPort:        snap.Config.HTTPPort,
		},
	}

	if n := snap.Network; n != nil {
		inner.Network = &NetworkJSON{
			Type:       n.Type,
			IP:         n.IP,
			Status:     n.Status,
			Gateway:    n.Gateway,
			WifiStatus: n.WifiStatus,
			SSID:       n.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for a system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
