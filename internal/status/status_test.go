package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/meal-sensor/internal/control"
	"github.com/sweeney/meal-sensor/internal/logic"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		TickPeriod:      100 * time.Microsecond,
		DiagnosticEvery: 1000,
		Heartbeat:       15 * time.Minute,
		LowThreshold:    2000,
		HighThreshold:   3000,
		MaxDutyTicks:    400,
		Collector:       "http://collector:5000",
		Broker:          "tcp://localhost:1883",
		HTTPPort:        ":80",
	}
}

func inMeal() control.Snapshot {
	return control.Snapshot{
		State:       logic.StateInMeal,
		Reading:     3200,
		WaveActive:  true,
		Frequency:   20,
		PresetIndex: 2,
		Counts:      logic.EventCounts{MealStarted: 3, MealEnded: 2},
		Stats:       control.Stats{Ticks: 5000, Triggers: 4, SensorErrors: 1},
	}
}

func decode(t *testing.T, data []byte) StatusInner {
	t.Helper()
	var out StatusJSON
	require.NoError(t, json.Unmarshal(data, &out))
	return out.Status
}

func TestNewTracker(t *testing.T) {
	tr := NewTracker(start, testConfig())

	snap := tr.Snapshot()
	assert.True(t, snap.StartTime.Equal(start))
	assert.Equal(t, testConfig(), snap.Config)
	assert.False(t, snap.Ready)
	assert.False(t, snap.MQTTConnected)
	assert.Nil(t, snap.Network)
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.Update(inMeal())
	tr.SetNotify(NotifyStats{Sent: 5, Failed: 1, Pending: 2})
	tr.SetMQTTConnected(true)

	snap := tr.Snapshot()
	assert.True(t, snap.Ready)
	assert.Equal(t, inMeal(), snap.Loop)
	assert.Equal(t, NotifyStats{Sent: 5, Failed: 1, Pending: 2}, snap.Notify)
	assert.True(t, snap.MQTTConnected)

	tr.SetMQTTConnected(false)
	assert.False(t, tr.Snapshot().MQTTConnected)
}

func TestSnapshotUptimeAndNow(t *testing.T) {
	tr := NewTracker(time.Now().Add(-10*time.Second), Config{})
	before := time.Now()
	snap := tr.Snapshot()

	assert.False(t, snap.Now.Before(before))
	assert.GreaterOrEqual(t, snap.Uptime(), 10*time.Second)
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.Update(inMeal())

	snap := tr.Snapshot()
	tr.Update(control.Snapshot{State: logic.StateIdle})

	assert.Equal(t, logic.StateInMeal, snap.Loop.State)
	assert.Equal(t, logic.StateIdle, tr.Snapshot().Loop.State)
}

func TestFormatJSON(t *testing.T) {
	snap := Snapshot{
		Loop:          inMeal(),
		Ready:         true,
		Notify:        NotifyStats{Sent: 5, Dropped: 1},
		StartTime:     start,
		Now:           start.Add(90 * time.Second),
		MQTTConnected: true,
		Config:        testConfig(),
	}

	s := decode(t, FormatJSON(snap))
	assert.Empty(t, s.Event)
	assert.Equal(t, "IN_MEAL", s.Meal)
	assert.Equal(t, 3200, s.Reading)
	assert.Equal(t, WaveJSON{Active: true, Frequency: 20, NextPreset: 2}, s.Wave)
	assert.True(t, s.Ready)
	assert.Equal(t, int64(90), s.UptimeSeconds)
	assert.Equal(t, "2026-01-01T00:00:00Z", s.StartTime)
	assert.Equal(t, "2026-01-01T00:01:30Z", s.Timestamp)
	assert.Equal(t, MQTTStatus{Connected: true, Broker: "tcp://localhost:1883"}, s.MQTT)
	assert.Equal(t, CountsJSON{MealStart: 3, MealEnd: 2}, s.Counts)
	assert.Equal(t, uint64(5000), s.Loop.Ticks)
	assert.Equal(t, uint64(1), s.Loop.SensorErrors)
	assert.Equal(t, NotifyJSON{Sent: 5, Dropped: 1}, s.Notify)
	assert.Nil(t, s.Network)
	assert.Equal(t, int64(100), s.Config.TickUs)
	assert.Equal(t, int64(900000), s.Config.HeartbeatMs)
	assert.Equal(t, uint32(400), s.Config.MaxDutyTicks)
}

func TestFormatJSONUnknownState(t *testing.T) {
	s := decode(t, FormatJSON(Snapshot{StartTime: start, Now: start}))
	assert.Equal(t, "UNKNOWN", s.Meal)
	assert.False(t, s.Ready)
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start,
		Network:   &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "home"},
	}
	s := decode(t, FormatJSON(snap))
	require.NotNil(t, s.Network)
	assert.Equal(t, "wifi", s.Network.Type)
	assert.Equal(t, "192.168.1.42", s.Network.IP)
	assert.Equal(t, "home", s.Network.SSID)
}

func TestFormatStatusEvent(t *testing.T) {
	snap := Snapshot{Loop: inMeal(), StartTime: start, Now: start.Add(time.Hour), Config: testConfig()}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")
	assert.NotContains(t, string(data), "\n")

	s := decode(t, data)
	assert.Equal(t, "SHUTDOWN", s.Event)
	assert.Equal(t, "SIGTERM", s.Reason)
	assert.Equal(t, "IN_MEAL", s.Meal)
	assert.Equal(t, int64(3600), s.UptimeSeconds)
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	data := FormatStatusEvent(Snapshot{StartTime: start, Now: start}, "HEARTBEAT", "")

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "HEARTBEAT", raw["status"]["event"])
	assert.NotContains(t, raw["status"], "reason")
	assert.NotContains(t, raw["status"], "network")
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(start, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				tr.Update(control.Snapshot{Reading: n*1000 + j})
				tr.SetNotify(NotifyStats{Sent: uint64(j)})
				tr.SetMQTTConnected(j%2 == 0)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = FormatJSON(tr.Snapshot())
			}
		}()
	}
	wg.Wait()
	assert.True(t, tr.Snapshot().Ready)
}
