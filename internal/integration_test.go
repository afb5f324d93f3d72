package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/meal-sensor/internal/adc"
	"github.com/sweeney/meal-sensor/internal/collector"
	"github.com/sweeney/meal-sensor/internal/control"
	"github.com/sweeney/meal-sensor/internal/haptic"
	"github.com/sweeney/meal-sensor/internal/logic"
	"github.com/sweeney/meal-sensor/internal/motor"
	"github.com/sweeney/meal-sensor/internal/notify"
	"github.com/sweeney/meal-sensor/internal/status"
	"github.com/sweeney/meal-sensor/internal/web"
)

const step = 100 * time.Microsecond

var startTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func readings(pairs ...int) []int {
	var out []int
	for i := 0; i+1 < len(pairs); i += 2 {
		for n := 0; n < pairs[i+1]; n++ {
			out = append(out, pairs[i])
		}
	}
	return out
}

type rig struct {
	orch       *control.Orchestrator
	driver     *motor.FakeDriver
	dispatcher *notify.Dispatcher
	stop       func()
}

// newRig wires sensor samples through the control loop into n, with the
// dispatcher worker running until stop is called.
func newRig(t *testing.T, samples []int, n notify.Notifier, sys notify.SystemPublisher) *rig {
	t.Helper()
	det, err := logic.NewMealDetector(logic.DefaultThresholds(), startTime)
	require.NoError(t, err)

	dispatcher := notify.NewDispatcher(n, sys, 16, 2*time.Second)
	driver := motor.NewFakeDriver()
	orch, err := control.New(control.Config{
		Selector:  haptic.NewSelector(haptic.DefaultPresetTable()),
		Mapper:    haptic.Mapper{MaxDutyTicks: haptic.MaxDutyTicks(haptic.DefaultResolutionHz, haptic.DefaultPWMHz)},
		Amplitude: 2,
		Step:      step,
	}, det, adc.NewFakeReader(samples), driver, dispatcher)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = dispatcher.Run(ctx)
	}()

	return &rig{
		orch:       orch,
		driver:     driver,
		dispatcher: dispatcher,
		stop: func() {
			cancel()
			wg.Wait()
		},
	}
}

// tick runs ticks [from, to) with event timestamps spaced by interval.
func (r *rig) tick(from, to int, interval time.Duration) {
	for i := from; i < to; i++ {
		r.orch.Tick(startTime.Add(time.Duration(i) * interval))
	}
}

func collectorStatus(t *testing.T, url string) collector.StatusJSON {
	t.Helper()
	resp, err := http.Get(url + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st collector.StatusJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	return st
}

// TestIntegrationSensorToCollector runs a full meal through the control loop,
// the HTTP notifier and the collector API.
func TestIntegrationSensorToCollector(t *testing.T) {
	store := collector.NewStore(time.Hour, time.Now())
	ts := httptest.NewServer(collector.NewServer("", store, nil).Handler())
	defer ts.Close()

	hn, err := notify.NewHTTPNotifier(ts.URL, time.Second)
	require.NoError(t, err)

	samples := readings(100, 5, 3500, 20, 1500, 5)
	r := newRig(t, samples, hn, nil)
	r.tick(0, 25, step)

	// Mid-meal the collector sees a running meal.
	require.Eventually(t, func() bool {
		return collectorStatus(t, ts.URL).Status == string(logic.StateInMeal)
	}, 2*time.Second, 10*time.Millisecond)

	r.tick(25, len(samples), step)
	r.stop()

	st := collectorStatus(t, ts.URL)
	assert.Equal(t, string(logic.StateIdle), st.Status)
	assert.Equal(t, 1, st.Meals)
	assert.NotEmpty(t, st.StartTime)
	assert.NotEmpty(t, st.EndTime)
	assert.False(t, st.Overdue)

	stats := r.dispatcher.Stats()
	assert.Equal(t, uint64(2), stats.Sent)
	assert.Zero(t, stats.Failed)

	// The reading crossed the trigger threshold, so the motor was driven.
	assert.Equal(t, uint64(1), r.orch.Stats().Triggers)
}

// TestIntegrationBrokerPayloadsReachCollector checks that the payload the
// sensor publishes is what the collector's broker consumers decode.
func TestIntegrationBrokerPayloadsReachCollector(t *testing.T) {
	fake := notify.NewFakeNotifier()
	r := newRig(t, readings(100, 3, 3500, 3, 100, 3), fake, fake)
	r.tick(0, 9, time.Minute)
	r.stop()

	events := fake.Received()
	require.Len(t, events, 2)

	store := collector.NewStore(0, startTime)
	for _, e := range events {
		payload, err := notify.FormatPayload(e)
		require.NoError(t, err)
		require.NoError(t, store.ApplyPayload(payload, collector.SourceKafka, time.Now()))
		// Redelivery is ignored.
		require.NoError(t, store.ApplyPayload(payload, collector.SourceMQTT, time.Now()))
	}

	snap := store.Snapshot(startTime.Add(time.Hour))
	assert.Equal(t, logic.StateIdle, snap.Status)
	assert.Equal(t, 1, snap.Meals)
	assert.Equal(t, 3*time.Minute, snap.Duration, "duration follows the event timestamps")
}

// TestIntegrationStatusPage checks the sensor status page reflects the loop.
func TestIntegrationStatusPage(t *testing.T) {
	fake := notify.NewFakeNotifier()
	r := newRig(t, readings(3500, 4), fake, fake)
	defer r.stop()
	r.tick(0, 4, step)

	tracker := status.NewTracker(startTime, status.Config{TickPeriod: step, LowThreshold: 2000, HighThreshold: 3000})
	tracker.Update(r.orch.Snapshot())

	ts := httptest.NewServer(web.New("", tracker).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/index.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body status.StatusJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, string(logic.StateInMeal), body.Status.Meal)
	assert.Equal(t, 3500, body.Status.Reading)
	assert.True(t, body.Status.Wave.Active)
	assert.Equal(t, 1, body.Status.Counts.MealStart)
}
