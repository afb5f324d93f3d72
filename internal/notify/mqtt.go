package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/meal-sensor/internal/logic"
)

// Topic is the MQTT topic for meal events.
const Topic = "meal/sensor/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "meal/sensor/system"

// DefaultBufferSize is the number of messages held while the broker is unreachable.
const DefaultBufferSize = 100

// ErrPublishTimeout is returned when the broker does not acknowledge in time.
var ErrPublishTimeout = errors.New("publish timeout")

// MQTTNotifier publishes meal and system events to a broker.
// Messages published while disconnected are buffered and replayed on reconnect.
type MQTTNotifier struct {
	client paho.Client

	mu     sync.Mutex
	buffer *ringBuffer
}

// NewMQTTNotifier connects to broker. The connection is retried in the background,
// so an unreachable broker at startup is not an error.
func NewMQTTNotifier(broker, clientID string) (*MQTTNotifier, error) {
	if broker == "" {
		return nil, fmt.Errorf("empty broker address")
	}
	if clientID == "" {
		clientID = "meal-sensor"
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	n := &MQTTNotifier{buffer: newRingBuffer(DefaultBufferSize)}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) {
			log.Info("broker connected", "broker", broker)
			n.flush()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("broker connection lost", "broker", broker, "err", err)
		})

	n.client = paho.NewClient(opts)
	token := n.client.Connect()
	// With ConnectRetry the token only completes once connected; don't wait forever.
	if token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("connect to broker: %w", token.Error())
	}
	return n, nil
}

func newMQTTNotifier(client paho.Client, bufSize int) *MQTTNotifier {
	return &MQTTNotifier{client: client, buffer: newRingBuffer(bufSize)}
}

// Notify publishes a meal event at QoS 0.
func (n *MQTTNotifier) Notify(ctx context.Context, event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return n.publish(ctx, bufferedMsg{topic: Topic, payload: payload})
}

// PublishSystem publishes a system event at QoS 1.
func (n *MQTTNotifier) PublishSystem(ctx context.Context, event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return n.publish(ctx, bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (n *MQTTNotifier) publish(ctx context.Context, msg bufferedMsg) error {
	if !n.client.IsConnectionOpen() {
		n.mu.Lock()
		n.buffer.push(msg)
		n.mu.Unlock()
		log.Debug("broker offline, buffered", "topic", msg.topic)
		return nil
	}
	return waitToken(ctx, n.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload))
}

func waitToken(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrPublishTimeout, ctx.Err())
	}
}

// flush replays buffered messages oldest first.
func (n *MQTTNotifier) flush() {
	n.mu.Lock()
	msgs := n.buffer.drainAll()
	n.mu.Unlock()
	if len(msgs) == 0 {
		return
	}

	log.Info("replaying buffered messages", "count", len(msgs))
	for _, msg := range msgs {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
		err := waitToken(ctx, n.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload))
		cancel()
		if err != nil {
			log.Error("replay failed", "topic", msg.topic, "err", err)
		}
	}
}

// Buffered returns the number of messages waiting for a connection.
func (n *MQTTNotifier) Buffered() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.buffer.len()
}

// IsConnected reports whether the broker connection is up.
func (n *MQTTNotifier) IsConnected() bool {
	return n.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close() error {
	n.client.Disconnect(1000)
	return nil
}
