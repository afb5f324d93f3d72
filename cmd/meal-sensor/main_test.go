package main

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/meal-sensor/internal/adc"
	"github.com/sweeney/meal-sensor/internal/config"
	"github.com/sweeney/meal-sensor/internal/control"
	"github.com/sweeney/meal-sensor/internal/haptic"
	"github.com/sweeney/meal-sensor/internal/logic"
	"github.com/sweeney/meal-sensor/internal/motor"
	"github.com/sweeney/meal-sensor/internal/notify"
	"github.com/sweeney/meal-sensor/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		assert.Equal(t, canonical, got)
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	require.NotNil(t, info)
	assert.Equal(t, &status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}, info)
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	assert.Nil(t, readNetworkInfo())
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "")

	info := readNetworkInfo()
	require.NotNil(t, info)
	assert.Equal(t, "connected", info.Status)
	assert.Empty(t, info.IP)
}

func TestApplyFlags(t *testing.T) {
	cfg := config.Default()
	applyFlags(cfg, map[string]bool{"port": true, "http": true, "heartbeat": true}, flagValues{
		port:      "/dev/ttyUSB1",
		broker:    "ignored:1883",
		httpAddr:  "off",
		heartbeat: time.Minute,
	})

	assert.Equal(t, "/dev/ttyUSB1", cfg.Sensor.Port)
	assert.Equal(t, "", cfg.HTTP.Addr)
	assert.Equal(t, time.Minute, cfg.Timing.HeartbeatInterval)
	assert.Equal(t, config.Default().Notify.MQTTBroker, cfg.Notify.MQTTBroker, "unset flag must not override")
}

func TestBuildNotifiersHTTPOnly(t *testing.T) {
	cfg := config.Default()
	cfg.Notify.HTTPEndpoint = "collector.local:5000"
	cfg.Notify.MQTTBroker = ""
	cfg.Notify.KafkaBrokers = nil

	targets, err := buildNotifiers(cfg)
	require.NoError(t, err)
	defer targets.Close()

	assert.Len(t, targets.notifiers, 1)
	assert.Nil(t, targets.system)
	assert.Nil(t, targets.conn)
}

func TestBuildNotifiersNone(t *testing.T) {
	cfg := config.Default()
	cfg.Notify.HTTPEndpoint = ""
	cfg.Notify.MQTTBroker = ""
	cfg.Notify.KafkaBrokers = nil

	targets, err := buildNotifiers(cfg)
	require.NoError(t, err)
	assert.Empty(t, targets.notifiers)
	assert.NoError(t, targets.Close())
}

func TestBuildNotifiersBadEndpoint(t *testing.T) {
	cfg := config.Default()
	cfg.Notify.HTTPEndpoint = "http://"
	cfg.Notify.MQTTBroker = ""

	_, err := buildNotifiers(cfg)
	assert.Error(t, err)
}

// --- runLoop tests ---

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Only runLoop's goroutine calls it.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// repeat returns n copies of reading.
func repeat(reading, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = reading
	}
	return out
}

type harness struct {
	loop   *loop
	pub    *notify.FakeNotifier
	driver *motor.FakeDriver
}

func newHarness(t *testing.T, samples []int, heartbeat time.Duration, clock func() time.Time) *harness {
	t.Helper()
	det, err := logic.NewMealDetector(logic.DefaultThresholds(), t0)
	require.NoError(t, err)

	pub := notify.NewFakeNotifier()
	dispatcher := notify.NewDispatcher(pub, pub, 64, time.Second)
	driver := motor.NewFakeDriver()

	orch, err := control.New(control.Config{
		Selector:        haptic.NewSelector(haptic.DefaultPresetTable()),
		Mapper:          haptic.Mapper{MaxDutyTicks: 400},
		Amplitude:       2,
		Step:            100 * time.Microsecond,
		DiagnosticEvery: 1000,
	}, det, adc.NewFakeReader(samples), driver, dispatcher)
	require.NoError(t, err)

	return &harness{
		loop: &loop{
			orch:       orch,
			detector:   det,
			dispatcher: dispatcher,
			conn:       pub,
			tracker:    status.NewTracker(t0, status.Config{}),
			heartbeat:  heartbeat,
			now:        clock,
		},
		pub:    pub,
		driver: driver,
	}
}

// run drives runLoop for nTicks then delivers signal, and flushes the
// dispatcher queue into the fake notifier.
func (h *harness) run(t *testing.T, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	done := make(chan struct{})

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(h.loop, tick, sig, done)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal
	err := <-errCh

	h.drain(t)
	return err
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.loop.dispatcher.Run(ctx))
}

func eventTypes(events []logic.Event) []logic.EventType {
	var out []logic.EventType
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func systemNames(events []notify.SystemEvent) []string {
	var out []string
	for _, e := range events {
		out = append(out, e.Event)
	}
	return out
}

func TestRunLoopNoEventsBelowThreshold(t *testing.T) {
	h := newHarness(t, repeat(100, 4), 0, fakeClock(t0, time.Millisecond))

	require.NoError(t, h.run(t, 4, syscall.SIGTERM))

	assert.Empty(t, h.pub.Received())
	sys := h.pub.SystemEvents()
	require.Len(t, sys, 1)
	assert.Equal(t, "SHUTDOWN", sys[0].Event)
	assert.Equal(t, "SIGTERM", sys[0].Reason)
	assert.True(t, sys[0].Retained)
}

func TestRunLoopMealCycle(t *testing.T) {
	samples := append(append(repeat(100, 3), repeat(3500, 3)...), repeat(100, 3)...)
	h := newHarness(t, samples, 0, fakeClock(t0, time.Millisecond))

	require.NoError(t, h.run(t, len(samples), syscall.SIGTERM))

	assert.Equal(t, []logic.EventType{logic.EventMealStarted, logic.EventMealEnded}, eventTypes(h.pub.Received()))
	assert.Equal(t, 3500, h.pub.Received()[0].Reading)
	assert.Equal(t, uint64(len(samples)), h.loop.orch.Stats().Ticks)
}

func TestRunLoopTrackerFollowsMeal(t *testing.T) {
	samples := append(repeat(100, 2), repeat(3500, 3)...)
	h := newHarness(t, samples, 0, fakeClock(t0, time.Millisecond))

	require.NoError(t, h.run(t, len(samples), syscall.SIGINT))

	snap := h.loop.tracker.Snapshot()
	assert.True(t, snap.Ready)
	assert.Equal(t, logic.StateInMeal, snap.Loop.State)
	assert.Equal(t, 1, snap.Loop.Counts.MealStarted)
	assert.True(t, snap.MQTTConnected)
}

func TestRunLoopShutdownReasons(t *testing.T) {
	tests := []struct {
		signal os.Signal
		reason string
	}{
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGHUP, "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			h := newHarness(t, repeat(100, 1), 0, fakeClock(t0, time.Millisecond))
			require.NoError(t, h.run(t, 1, tt.signal))

			sys := h.pub.SystemEvents()
			require.Len(t, sys, 1)
			assert.Equal(t, tt.reason, sys[0].Reason)
			assert.Contains(t, string(sys[0].RawPayload), `"event":"SHUTDOWN"`)
			assert.Contains(t, string(sys[0].RawPayload), `"reason":"`+tt.reason+`"`)
		})
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	// Ticks at t0, t0+1s, ... t0+4s with a 2s interval fire at +2s and +4s.
	h := newHarness(t, repeat(100, 5), 2*time.Second, fakeClock(t0, time.Second))

	require.NoError(t, h.run(t, 5, syscall.SIGTERM))

	sys := h.pub.SystemEvents()
	assert.Equal(t, []string{"HEARTBEAT", "HEARTBEAT", "SHUTDOWN"}, systemNames(sys))
	assert.False(t, sys[0].Retained)
	assert.Contains(t, string(sys[0].RawPayload), `"event":"HEARTBEAT"`)
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	h := newHarness(t, repeat(100, 5), 0, fakeClock(t0, time.Hour))

	require.NoError(t, h.run(t, 5, syscall.SIGTERM))

	assert.Equal(t, []string{"SHUTDOWN"}, systemNames(h.pub.SystemEvents()))
}

func TestRunLoopHeartbeatRefreshesNetwork(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "10.0.0.7")
	h := newHarness(t, repeat(100, 2), time.Second, fakeClock(t0, time.Second))

	require.NoError(t, h.run(t, 2, syscall.SIGTERM))

	snap := h.loop.tracker.Snapshot()
	require.NotNil(t, snap.Network)
	assert.Equal(t, "10.0.0.7", snap.Network.IP)
}

// faultReader fails Read calls in [faultStart, faultEnd) and otherwise
// defers to inner. The fault range is fixed at construction.
type faultReader struct {
	inner      *adc.FakeReader
	call       int
	faultStart int
	faultEnd   int
}

func (r *faultReader) Read() (int, error) {
	i := r.call
	r.call++
	if i >= r.faultStart && i < r.faultEnd {
		return 0, errors.New("serial unplugged")
	}
	return r.inner.Read()
}

func TestRunLoopSensorFaultHoldsState(t *testing.T) {
	// A failing sensor must not end the meal or stop the loop.
	h := newHarness(t, repeat(100, 1), 0, fakeClock(t0, time.Millisecond))
	reader := &faultReader{inner: adc.NewFakeReader(repeat(3500, 6)), faultStart: 3, faultEnd: 6}
	orch, err := control.New(control.Config{
		Selector:  haptic.NewSelector(haptic.DefaultPresetTable()),
		Mapper:    haptic.Mapper{MaxDutyTicks: 400},
		Amplitude: 2,
		Step:      100 * time.Microsecond,
	}, h.loop.detector, reader, h.driver, h.loop.dispatcher)
	require.NoError(t, err)
	h.loop.orch = orch

	require.NoError(t, h.run(t, 6, syscall.SIGTERM))

	assert.Equal(t, []logic.EventType{logic.EventMealStarted}, eventTypes(h.pub.Received()))
	assert.Equal(t, uint64(3), orch.Stats().SensorErrors)
	assert.Equal(t, logic.StateInMeal, orch.State())
}

func TestRunLoopDoneStopsWithoutShutdownEvent(t *testing.T) {
	h := newHarness(t, repeat(100, 1), 0, fakeClock(t0, time.Millisecond))
	done := make(chan struct{})
	close(done)

	require.NoError(t, runLoop(h.loop, nil, nil, done))
	h.drain(t)
	assert.Empty(t, h.pub.SystemEvents())
}
