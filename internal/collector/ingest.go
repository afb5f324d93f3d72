package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"

	"github.com/sweeney/meal-sensor/internal/logic"
	"github.com/sweeney/meal-sensor/internal/metrics"
	"github.com/sweeney/meal-sensor/internal/notify"
)

// Signal sources, used as the metrics label.
const (
	SourceHTTP  = "http"
	SourceMQTT  = "mqtt"
	SourceKafka = "kafka"
)

// ErrUnknownEvent is returned for payloads that are neither mealStart nor mealEnd.
var ErrUnknownEvent = errors.New("unknown meal event")

// Apply records a meal signal from source at the given time.
func (s *Store) Apply(event logic.EventType, at time.Time, source string) error {
	switch event {
	case logic.EventMealStarted:
		s.Start(at)
	case logic.EventMealEnded:
		s.End(at)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	metrics.CollectorSignals.WithLabelValues(string(event), source).Inc()
	log.Info("meal signal", "event", event, "source", source)
	return nil
}

// ApplyPayload decodes a broker message and records it. Replays of an
// already-seen event ID are ignored. A payload without a valid timestamp
// is recorded at now.
func (s *Store) ApplyPayload(data []byte, source string, now time.Time) error {
	p, err := notify.ParsePayload(data)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if !s.markSeen(p.ID) {
		log.Debug("duplicate meal signal", "id", p.ID, "source", source)
		return nil
	}
	at, err := time.Parse(time.RFC3339, p.Timestamp)
	if err != nil {
		at = now
	}
	return s.Apply(logic.EventType(p.Event), at, source)
}

// SubscribeMQTT feeds meal events published on notify.Topic into the store.
func SubscribeMQTT(client paho.Client, store *Store) error {
	token := client.Subscribe(notify.Topic, 1, func(_ paho.Client, msg paho.Message) {
		if err := store.ApplyPayload(msg.Payload(), SourceMQTT, time.Now()); err != nil {
			log.Warn("bad mqtt message", "topic", msg.Topic(), "err", err)
		}
	})
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", notify.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", notify.Topic, err)
	}
	return nil
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// NewKafkaReader returns a consumer-group reader for topic.
func NewKafkaReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  group,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
}

// ConsumeKafka feeds meal events from r into the store until ctx is done.
// Undecodable messages are logged and skipped.
func ConsumeKafka(ctx context.Context, r messageReader, store *Store) error {
	defer r.Close()
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka read: %w", err)
		}
		if err := store.ApplyPayload(msg.Value, SourceKafka, time.Now()); err != nil {
			log.Warn("bad kafka message", "partition", msg.Partition, "offset", msg.Offset, "err", err)
		}
	}
}
