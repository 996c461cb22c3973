// Package logic contains the pure touch-detection logic: edge extraction,
// consumer bookkeeping and the error taxonomy.
// This package has NO external dependencies (no I2C, GPIO, MQTT or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"strings"
	"time"
)

// NumChannels is the number of electrodes on the sensor.
const NumChannels = 12

// Channel identifies one sensor electrode, 0-11.
type Channel int

// Valid reports whether the channel is in range.
func (c Channel) Valid() bool {
	return c >= 0 && c < NumChannels
}

// Bitmask holds one bit per channel; bit i set means channel i is touched.
type Bitmask uint16

// MaskAll covers every channel.
const MaskAll Bitmask = 1<<NumChannels - 1

// MaskOf builds a bitmask with the given channels set.
func MaskOf(channels ...Channel) Bitmask {
	var m Bitmask
	for _, c := range channels {
		if c.Valid() {
			m |= 1 << uint(c)
		}
	}
	return m
}

// Has reports whether channel c is set.
func (m Bitmask) Has(c Channel) bool {
	return c.Valid() && m&(1<<uint(c)) != 0
}

// Channels returns the set channels in ascending order.
func (m Bitmask) Channels() []Channel {
	var out []Channel
	for c := Channel(0); c < NumChannels; c++ {
		if m.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Mode is the set of consumers receiving touch edges.
type Mode uint8

const (
	ModeCount Mode = 1 << iota
	ModeTimeLog
	ModeCustom
)

// Has reports whether every flag in f is set.
func (m Mode) Has(f Mode) bool { return m&f == f }

// With returns m with f set.
func (m Mode) With(f Mode) Mode { return m | f }

// Without returns m with f cleared.
func (m Mode) Without(f Mode) Mode { return m &^ f }

func (m Mode) String() string {
	var parts []string
	if m.Has(ModeCount) {
		parts = append(parts, "count")
	}
	if m.Has(ModeTimeLog) {
		parts = append(parts, "timelog")
	}
	if m.Has(ModeCustom) {
		parts = append(parts, "custom")
	}
	if len(parts) == 0 {
		return "idle"
	}
	return strings.Join(parts, "+")
}

// ChannelCount is one row of a count snapshot.
type ChannelCount struct {
	Channel Channel
	Count   int
}

// Handler is a custom per-touch callback.
type Handler func(Channel) error

// TouchEvent describes a single new touch.
type TouchEvent struct {
	Timestamp time.Time
	Channel   Channel
	Touched   Bitmask // full touch state of the cycle that produced the edge
}

// WaitKind is the outcome of waiting for a touch.
type WaitKind int

const (
	WaitTimeout WaitKind = iota
	WaitTouched
	WaitHeldThrough // touched for the whole wait when a release was required first
)

func (k WaitKind) String() string {
	switch k {
	case WaitTimeout:
		return "TIMEOUT"
	case WaitTouched:
		return "TOUCHED"
	case WaitHeldThrough:
		return "HELD"
	}
	return fmt.Sprintf("WaitKind(%d)", int(k))
}

// WaitResult is returned by a touch wait. Touched holds the new touches for
// WaitTouched and the channels still held for WaitHeldThrough.
type WaitResult struct {
	Kind    WaitKind
	Touched Bitmask
}

// NormalizeChannels validates the channel list and returns it sorted with
// duplicates removed.
func NormalizeChannels(channels []Channel) ([]Channel, error) {
	if len(channels) == 0 {
		return nil, &ConfigError{Field: "channels", Reason: "no channels selected"}
	}
	var seen Bitmask
	for _, c := range channels {
		if !c.Valid() {
			return nil, &ConfigError{Field: "channels", Reason: fmt.Sprintf("channel %d out of range 0-%d", c, NumChannels-1)}
		}
		seen |= 1 << uint(c)
	}
	return seen.Channels(), nil
}
