// Package status holds a thread-safe view of the meal-sensor state for HTTP
// handlers and system events. The tick loop writes it; everything else reads.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/meal-sensor/internal/control"
)

// NetworkInfo contains network state as reported by the host.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// NotifyStats mirrors the dispatcher counters.
type NotifyStats struct {
	Sent    uint64
	Failed  uint64
	Dropped uint64
	Pending int
}

// Config contains daemon configuration for display.
type Config struct {
	TickPeriod      time.Duration
	DiagnosticEvery int
	Heartbeat       time.Duration
	LowThreshold    int
	HighThreshold   int
	MaxDutyTicks    uint32
	Collector       string // HTTP collector endpoint, empty when disabled
	Broker          string
	HTTPPort        string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Loop          control.Snapshot
	Ready         bool // at least one tick has run
	Notify        NotifyStats
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update records the loop state. Called from the tick loop on meal events
// and diagnostic ticks, not every tick.
func (t *Tracker) Update(loop control.Snapshot) {
	t.mu.Lock()
	t.snap.Loop = loop
	t.snap.Ready = true
	t.mu.Unlock()
}

// SetNotify records the dispatcher counters.
func (t *Tracker) SetNotify(stats NotifyStats) {
	t.mu.Lock()
	t.snap.Notify = stats
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
