// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/touch-sensor/internal/logic"
)

// Topic is the MQTT topic for new-touch events.
const Topic = "sensor/touch/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "sensor/touch/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a touch event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.TouchEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Touch TouchPayload `json:"touch"`
}

// TouchPayload contains the touch event details.
type TouchPayload struct {
	Timestamp string `json:"timestamp"`
	Channel   int    `json:"channel"`
	Touched   []int  `json:"touched"` // every channel touched in the same sample
}

// FormatPayload creates the JSON payload for a touch event.
func FormatPayload(event logic.TouchEvent) ([]byte, error) {
	touched := []int{}
	for _, c := range event.Touched.Channels() {
		touched = append(touched, int(c))
	}
	payload := Payload{
		Touch: TouchPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
			Channel:   int(event.Channel),
			Touched:   touched,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}
