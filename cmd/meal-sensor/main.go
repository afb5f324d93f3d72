// Command meal-sensor drives a haptic motor from an analog sensor and reports
// meal start/end transitions to a remote collector.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/inconshreveable/log15"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/meal-sensor/internal/adc"
	"github.com/sweeney/meal-sensor/internal/config"
	"github.com/sweeney/meal-sensor/internal/control"
	"github.com/sweeney/meal-sensor/internal/haptic"
	"github.com/sweeney/meal-sensor/internal/logic"
	"github.com/sweeney/meal-sensor/internal/motor"
	"github.com/sweeney/meal-sensor/internal/notify"
	"github.com/sweeney/meal-sensor/internal/status"
	"github.com/sweeney/meal-sensor/internal/web"
)

func main() {
	configPath := flag.String("config", "/etc/meal-sensor.yaml", "YAML configuration file (missing file uses defaults)")
	port := flag.String("port", "", "Serial port of the ADC (overrides sensor.port)")
	broker := flag.String("broker", "", "MQTT broker URL, e.g. tcp://192.168.1.200:1883 (overrides notify.mqtt_broker)")
	notifyURL := flag.String("notify-url", "", "Collector host:port (overrides notify.http_endpoint)")
	httpAddr := flag.String("http", "", "HTTP status address (overrides http.addr, \"off\" disables)")
	heartbeat := flag.Duration("heartbeat", 0, "Heartbeat interval (overrides timing.heartbeat_interval)")
	verbose := flag.Bool("v", false, "Debug logging")
	printReading := flag.Bool("print-reading", false, "Print one sensor reading and exit")

	flag.Parse()

	logLevel := log.LvlInfo
	if *verbose {
		logLevel = log.LvlDebug
	}
	log.Root().SetHandler(log.LvlFilterHandler(logLevel, log.StdoutHandler))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Crit("load config", "err", err)
		os.Exit(1)
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	applyFlags(cfg, set, flagValues{
		port:      *port,
		broker:    *broker,
		notifyURL: *notifyURL,
		httpAddr:  *httpAddr,
		heartbeat: *heartbeat,
	})

	if err := cfg.Validate(); err != nil {
		log.Crit("bad configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, *printReading); err != nil {
		log.Crit("fatal", "err", err)
		os.Exit(1)
	}
}

type flagValues struct {
	port      string
	broker    string
	notifyURL string
	httpAddr  string
	heartbeat time.Duration
}

// applyFlags overrides config values with the flags given on the command line.
func applyFlags(cfg *config.Config, set map[string]bool, v flagValues) {
	if set["port"] {
		cfg.Sensor.Port = v.port
	}
	if set["broker"] {
		cfg.Notify.MQTTBroker = v.broker
	}
	if set["notify-url"] {
		cfg.Notify.HTTPEndpoint = v.notifyURL
	}
	if set["http"] {
		cfg.HTTP.Addr = v.httpAddr
		if v.httpAddr == "off" {
			cfg.HTTP.Addr = ""
		}
	}
	if set["heartbeat"] {
		cfg.Timing.HeartbeatInterval = v.heartbeat
	}
}

func run(cfg *config.Config, printReading bool) error {
	sensor, err := adc.NewSerialReader(cfg.Sensor.Port, cfg.Sensor.BaudRate)
	if err != nil {
		return fmt.Errorf("init sensor: %w", err)
	}
	defer sensor.Close()

	readyCtx, cancelReady := context.WithTimeout(context.Background(), 2*time.Second)
	first, err := sensor.WaitReady(readyCtx)
	cancelReady()
	if printReading {
		if err != nil {
			return fmt.Errorf("read sensor: %w", err)
		}
		fmt.Printf("ADC: %d\n", first)
		return nil
	}
	if err != nil {
		log.Warn("no sensor reading yet, starting anyway", "port", cfg.Sensor.Port, "err", err)
	}

	driver, err := motor.NewGPIODriver(cfg.GPIO())
	if err != nil {
		return fmt.Errorf("init motor: %w", err)
	}
	defer driver.Close()

	targets, err := buildNotifiers(cfg)
	if err != nil {
		return err
	}
	defer targets.Close()

	dispatcher := notify.NewDispatcher(targets.notifiers, targets.system, cfg.Notify.QueueSize, cfg.Notify.Timeout)

	startTime := time.Now()
	detector, err := logic.NewMealDetector(cfg.Thresholds(), startTime)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	selector, err := cfg.Selector()
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	orch, err := control.New(control.Config{
		Selector:        selector,
		Mapper:          haptic.Mapper{MaxDutyTicks: cfg.MaxDutyTicks()},
		Amplitude:       cfg.Wave.Amplitude,
		Step:            cfg.Timing.TickPeriod,
		DiagnosticEvery: cfg.Timing.DiagnosticEvery,
	}, detector, sensor, driver, dispatcher)
	if err != nil {
		return fmt.Errorf("init control loop: %w", err)
	}

	tracker := status.NewTracker(startTime, status.Config{
		TickPeriod:      cfg.Timing.TickPeriod,
		DiagnosticEvery: cfg.Timing.DiagnosticEvery,
		Heartbeat:       cfg.Timing.HeartbeatInterval,
		LowThreshold:    cfg.Meal.LowThreshold,
		HighThreshold:   cfg.Meal.HighThreshold,
		MaxDutyTicks:    cfg.MaxDutyTicks(),
		Collector:       cfg.Notify.HTTPEndpoint,
		Broker:          cfg.Notify.MQTTBroker,
		HTTPPort:        cfg.HTTP.Addr,
	})
	if info := readNetworkInfo(); info != nil {
		tracker.SetNetwork(info)
	}

	l := &loop{
		orch:       orch,
		detector:   detector,
		dispatcher: dispatcher,
		conn:       targets.conn,
		tracker:    tracker,
		heartbeat:  cfg.Timing.HeartbeatInterval,
		now:        time.Now,
	}
	l.refresh()
	dispatcher.EnqueueSystem(l.systemEvent(startTime, "STARTUP", ""))

	g, ctx := errgroup.WithContext(context.Background())
	loopDone, stopLoop := context.WithCancel(ctx)

	g.Go(func() error {
		return dispatcher.Run(loopDone)
	})

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-loopDone.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		log.Info("http status server listening", "addr", cfg.HTTP.Addr)
	}

	log.Info("started",
		"tick", cfg.Timing.TickPeriod,
		"low", cfg.Meal.LowThreshold,
		"high", cfg.Meal.HighThreshold,
		"presets", selector.Table.Len(),
		"max_duty", cfg.MaxDutyTicks(),
		"collector", cfg.Notify.HTTPEndpoint,
		"broker", cfg.Notify.MQTTBroker,
		"heartbeat", cfg.Timing.HeartbeatInterval)

	ticker := time.NewTicker(cfg.Timing.TickPeriod)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g.Go(func() error {
		defer stopLoop()
		return runLoop(l, ticker.C, sigCh, ctx.Done())
	})

	return g.Wait()
}

// notifyTargets holds the configured notification transports.
type notifyTargets struct {
	notifiers notify.Multi
	system    notify.SystemPublisher // nil without MQTT
	conn      notify.ConnectionStatus
	closers   []io.Closer
}

// Close releases every transport.
func (t *notifyTargets) Close() error {
	var errs []error
	for _, c := range t.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildNotifiers(cfg *config.Config) (*notifyTargets, error) {
	t := &notifyTargets{}
	nc := cfg.Notify

	if nc.HTTPEndpoint != "" {
		h, err := notify.NewHTTPNotifier(nc.HTTPEndpoint, nc.Timeout)
		if err != nil {
			return nil, fmt.Errorf("init collector notifier: %w", err)
		}
		t.notifiers = append(t.notifiers, h)
		log.Info("notifying collector", "endpoint", h.Endpoint())
	}

	if nc.MQTTBroker != "" {
		m, err := notify.NewMQTTNotifier(nc.MQTTBroker, nc.MQTTClientID)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("init mqtt: %w", err)
		}
		t.notifiers = append(t.notifiers, m)
		t.system = m
		t.conn = m
		t.closers = append(t.closers, m)
	}

	if len(nc.KafkaBrokers) > 0 {
		k, err := notify.NewKafkaNotifier(nc.KafkaBrokers, nc.KafkaTopic)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("init kafka: %w", err)
		}
		t.notifiers = append(t.notifiers, k)
		t.closers = append(t.closers, k)
	}

	if len(t.notifiers) == 0 {
		log.Warn("no notification target configured, meal events are only logged")
	}
	return t, nil
}

// loop is the state shared by runLoop iterations. Everything here belongs to
// the loop goroutine except the tracker and dispatcher, which are safe to share.
type loop struct {
	orch       *control.Orchestrator
	detector   *logic.MealDetector
	dispatcher *notify.Dispatcher
	conn       notify.ConnectionStatus // nil without MQTT
	tracker    *status.Tracker
	heartbeat  time.Duration
	now        func() time.Time
}

// refresh publishes the loop state to the tracker.
func (l *loop) refresh() {
	l.tracker.Update(l.orch.Snapshot())
	st := l.dispatcher.Stats()
	l.tracker.SetNotify(status.NotifyStats{
		Sent:    st.Sent,
		Failed:  st.Failed,
		Dropped: st.Dropped,
		Pending: l.dispatcher.Pending(),
	})
	if l.conn != nil {
		l.tracker.SetMQTTConnected(l.conn.IsConnected())
	}
}

func (l *loop) systemEvent(at time.Time, event, reason string) notify.SystemEvent {
	return notify.SystemEvent{
		Timestamp:  at,
		Event:      event,
		Reason:     reason,
		Retained:   event != "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(l.tracker.Snapshot(), event, reason),
	}
}

// runLoop ticks the orchestrator until a signal arrives or done is closed.
// The tracker is refreshed on meal events and diagnostic ticks only.
func runLoop(l *loop, tick <-chan time.Time, sig <-chan os.Signal, done <-chan struct{}) error {
	for {
		select {
		case s := <-sig:
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			log.Info("shutting down", "signal", signalName)
			l.refresh()
			if !l.dispatcher.EnqueueSystem(l.systemEvent(l.now(), "SHUTDOWN", signalName)) {
				log.Warn("notification queue full, shutdown event dropped")
			}
			return nil

		case <-done:
			return nil

		case <-tick:
			t := l.now()
			res := l.orch.Tick(t)
			if res.Event != nil || res.Diagnostic {
				l.refresh()
			}

			if hb := l.detector.CheckHeartbeat(t, l.heartbeat); hb != nil {
				log.Info("heartbeat", "uptime", hb.Uptime,
					"meal_start", hb.Counts.MealStarted, "meal_end", hb.Counts.MealEnded)
				if info := readNetworkInfo(); info != nil {
					l.tracker.SetNetwork(info)
				}
				l.refresh()
				l.dispatcher.EnqueueSystem(l.systemEvent(hb.Timestamp, "HEARTBEAT", ""))
			}
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
