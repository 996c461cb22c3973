package status

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/touch-sensor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string      `json:"event,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Ready         bool        `json:"ready"`
	Channels      []int       `json:"channels"`
	Touched       []int       `json:"touched"`
	Mode          string      `json:"mode"`
	Counts        []CountJSON `json:"touch_counts"`
	LastTouch     *TouchJSON  `json:"last_touch,omitempty"`
	Stats         StatsJSON   `json:"stats"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	MQTT          MQTTStatus  `json:"mqtt"`
	Config        ConfigJSON  `json:"config"`
}

// CountJSON is one channel's touch count.
type CountJSON struct {
	Channel int `json:"channel"`
	Count   int `json:"count"`
}

// TouchJSON describes the most recent new touch.
type TouchJSON struct {
	Timestamp string `json:"timestamp"`
	Channel   int    `json:"channel"`
}

// StatsJSON is the JSON representation of the dispatch counters.
type StatsJSON struct {
	Cycles        uint64 `json:"cycles"`
	Edges         uint64 `json:"edges"`
	DeviceErrors  uint64 `json:"device_errors"`
	HandlerErrors uint64 `json:"handler_errors"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Address     string `json:"address"`
	Line        int    `json:"line"`
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

func ints(channels []logic.Channel) []int {
	out := make([]int, 0, len(channels))
	for _, c := range channels {
		out = append(out, int(c))
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	counts := make([]CountJSON, 0, len(snap.Counts))
	for _, cc := range snap.Counts {
		counts = append(counts, CountJSON{Channel: int(cc.Channel), Count: cc.Count})
	}

	inner := StatusInner{
		Ready:         snap.Ready(),
		Channels:      ints(snap.Channels),
		Touched:       ints(snap.Touched.Channels()),
		Mode:          snap.Mode.String(),
		Counts:        counts,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Stats: StatsJSON{
			Cycles:        snap.Counters.Cycles,
			Edges:         snap.Counters.Edges,
			DeviceErrors:  snap.Counters.DeviceErrors,
			HandlerErrors: snap.Counters.HandlerErrors,
		},
		Config: ConfigJSON{
			Address:     fmt.Sprintf("0x%02X", snap.Config.Address),
			Line:        snap.Config.Line,
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	if snap.LastTouch != nil {
		inner.LastTouch = &TouchJSON{
			Timestamp: snap.LastTouch.Timestamp.UTC().Format(time.RFC3339Nano),
			Channel:   int(snap.LastTouch.Channel),
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
