// Package metrics holds the Prometheus collectors exported at /metrics.
// Every update is a lock-free atomic, safe to call from the tick loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mealsensor"

var (
	// Tick loop
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tick",
		Name:      "ticks_total",
		Help:      "Total control ticks executed",
	})

	SensorErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tick",
		Name:      "sensor_errors_total",
		Help:      "Sensor reads that failed and fell back to the last good reading",
	})

	ActuatorErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tick",
		Name:      "actuator_errors_total",
		Help:      "Motor commands the driver failed to apply",
	})

	SensorReading = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "tick",
		Name:      "sensor_reading",
		Help:      "Most recent raw sensor reading",
	})

	// Waveform
	WaveTriggers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wave",
		Name:      "triggers_total",
		Help:      "Waveform bursts started",
	})

	WaveActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "wave",
		Name:      "active",
		Help:      "1 while a waveform burst is playing",
	})

	// Meal detection
	MealEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "meal",
		Name:      "events_total",
		Help:      "Meal transitions detected",
	}, []string{"event"})

	MealInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "meal",
		Name:      "in_progress",
		Help:      "1 while a meal is in progress",
	})

	// Notification
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "deliveries_total",
		Help:      "Notification deliveries by kind and result",
	}, []string{"kind", "result"})

	NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "dropped_total",
		Help:      "Notifications dropped because the queue was full",
	})

	NotificationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "delivery_duration_seconds",
		Help:      "Notification delivery duration",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	// Collector
	CollectorSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mealcollector",
		Name:      "signals_total",
		Help:      "Meal signals received by the collector, by event and source",
	}, []string{"event", "source"})

	CollectorInMeal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mealcollector",
		Name:      "in_meal",
		Help:      "1 while the collector considers a meal in progress",
	})
)

// BoolGauge converts a flag into a gauge value.
func BoolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
