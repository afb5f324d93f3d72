package notify

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sweeney/meal-sensor/internal/logic"
	"github.com/sweeney/meal-sensor/internal/metrics"
)

// DefaultQueueSize is enough for several meals' worth of events during a broker outage.
const DefaultQueueSize = 16

// job is either a meal event or a system event.
type job struct {
	event  *logic.Event
	system *SystemEvent
}

// DispatchStats counts delivery outcomes.
type DispatchStats struct {
	Sent    uint64
	Failed  uint64
	Dropped uint64
}

// Dispatcher decouples the tick from the network: Enqueue is a non-blocking
// channel send and a single worker (Run) delivers jobs in enqueue order.
type Dispatcher struct {
	notifier Notifier
	system   SystemPublisher
	queue    chan job
	timeout  time.Duration

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewDispatcher creates a dispatcher. system may be nil, in which case system events are discarded.
func NewDispatcher(n Notifier, system SystemPublisher, queueSize int, timeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if n == nil {
		n = Multi(nil)
	}
	return &Dispatcher{
		notifier: n,
		system:   system,
		queue:    make(chan job, queueSize),
		timeout:  timeout,
	}
}

// Enqueue hands a meal event to the worker. It never blocks; it returns false
// and counts a drop when the queue is full.
func (d *Dispatcher) Enqueue(event logic.Event) bool {
	return d.push(job{event: &event})
}

// EnqueueSystem hands a system event to the worker. Without a SystemPublisher it is a no-op.
func (d *Dispatcher) EnqueueSystem(event SystemEvent) bool {
	if d.system == nil {
		return true
	}
	return d.push(job{system: &event})
}

func (d *Dispatcher) push(j job) bool {
	select {
	case d.queue <- j:
		return true
	default:
		d.dropped.Add(1)
		metrics.NotificationsDropped.Inc()
		return false
	}
}

// Run delivers queued jobs until ctx is done, then flushes what is left
// within one timeout so a final mealEnd or SHUTDOWN still goes out.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.flush()
			return nil
		case j := <-d.queue:
			jctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			d.deliver(jctx, j)
			cancel()
		}
	}
}

func (d *Dispatcher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	for {
		select {
		case j := <-d.queue:
			d.deliver(ctx, j)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, j job) {
	start := time.Now()

	var (
		kind string
		name string
		err  error
	)
	if j.event != nil {
		kind, name = "meal", string(j.event.Type)
		err = d.notifier.Notify(ctx, *j.event)
	} else {
		kind, name = "system", j.system.Event
		err = d.system.PublishSystem(ctx, *j.system)
	}

	metrics.NotificationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		d.failed.Add(1)
		metrics.NotificationsTotal.WithLabelValues(kind, "error").Inc()
		log.Error("notification failed", "kind", kind, "event", name, "err", err)
		return
	}
	d.sent.Add(1)
	metrics.NotificationsTotal.WithLabelValues(kind, "ok").Inc()
	log.Info("notification sent", "kind", kind, "event", name, "took", time.Since(start))
}

// Stats returns delivery counters. Safe to call from any goroutine.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Sent:    d.sent.Load(),
		Failed:  d.failed.Load(),
		Dropped: d.dropped.Load(),
	}
}

// Pending returns the number of queued jobs.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}
