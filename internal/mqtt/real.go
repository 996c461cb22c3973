package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/touch-sensor/internal/logic"
)

// outboxCapacity bounds messages held while the broker is unreachable.
const outboxCapacity = 500

var errNotConnected = errors.New("not connected")

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are queued and sent, in order, once the client reconnects.
type RealPublisher struct {
	client paho.Client

	mu     sync.Mutex
	outbox *outbox
}

// NewRealPublisher creates a publisher for the given broker. It does not fail
// when the broker is unreachable: the client keeps retrying in the background.
func NewRealPublisher(broker, clientID string) (*RealPublisher, error) {
	p := &RealPublisher{outbox: newOutbox(outboxCapacity)}

	will, err := FormatSystemPayload(SystemEvent{Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: %s not reachable yet, queueing until connected", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// onConnect replays queued messages after every (re)connection.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()

	queued := p.outbox.len()
	if queued == 0 {
		return
	}
	sent, err := p.outbox.flush(func(m bufferedMsg) error {
		return p.send(m)
	})
	if err != nil {
		log.Printf("mqtt: replayed %d of %d queued messages: %v", sent, queued, err)
		return
	}
	log.Printf("mqtt: replayed %d queued messages", sent)
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Publish sends a touch event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.TouchEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Keep order: nothing goes out directly while older messages wait.
	if p.outbox.len() == 0 {
		err := p.send(m)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errNotConnected) {
			return err
		}
	}
	if p.outbox.push(m) && p.outbox.dropped == 1 {
		log.Printf("mqtt: queue full (%d messages), dropping oldest", outboxCapacity)
	}
	return nil
}

func (p *RealPublisher) send(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		return errNotConnected
	}
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// Close disconnects from the broker. Queued messages are discarded.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	if n := p.outbox.len(); n > 0 {
		log.Printf("mqtt: discarding %d queued messages on close", n)
	}
	p.mu.Unlock()
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
