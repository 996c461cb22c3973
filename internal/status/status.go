// Package status provides a thread-safe status tracker for the touch-sensor daemon.
// It is read by the HTTP handlers and the heartbeat publisher.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/touch-sensor/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	Address     uint16
	Line        int
	PollMs      int64 // 0 means interrupt driven
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// Counters mirrors the detector's dispatch statistics. It is a local copy to
// avoid importing internal/touch from status.
type Counters struct {
	Cycles        uint64
	Edges         uint64
	DeviceErrors  uint64
	HandlerErrors uint64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; its slices are not shared with the tracker.
type Snapshot struct {
	Channels      []logic.Channel
	Touched       logic.Bitmask
	Mode          logic.Mode
	Counts        []logic.ChannelCount
	Counters      Counters
	LastTouch     *logic.TouchEvent
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether at least one sample has been dispatched.
func (s Snapshot) Ready() bool {
	return s.Counters.Cycles > 0
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker for the monitored channels.
func NewTracker(startTime time.Time, channels []logic.Channel, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Channels:  append([]logic.Channel(nil), channels...),
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update records the detector state. Called from runLoop on every tick.
func (t *Tracker) Update(touched logic.Bitmask, mode logic.Mode, counts []logic.ChannelCount, c Counters) {
	counts = append([]logic.ChannelCount(nil), counts...)
	t.mu.Lock()
	t.snap.Touched = touched
	t.snap.Mode = mode
	t.snap.Counts = counts
	t.snap.Counters = c
	t.mu.Unlock()
}

// RecordTouch remembers the most recent new touch.
func (t *Tracker) RecordTouch(ev logic.TouchEvent) {
	t.mu.Lock()
	t.snap.LastTouch = &ev
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Channels = append([]logic.Channel(nil), t.snap.Channels...)
	s.Counts = append([]logic.ChannelCount(nil), t.snap.Counts...)
	if t.snap.LastTouch != nil {
		ev := *t.snap.LastTouch
		s.LastTouch = &ev
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
