package logic

import "time"

// Registry holds the consumer state fed by touch edges: per-channel counts,
// per-channel touch times and an optional custom handler, plus the mode
// flags selecting which of them are active.
// Not safe for concurrent use; the detector serializes calls.
type Registry struct {
	channels []Channel
	mode     Mode
	counts   [NumChannels]int
	times    map[Channel][]time.Time
	handler  Handler
}

// NewRegistry creates a registry for the given monitored channels, which must
// already be normalized (see NormalizeChannels).
func NewRegistry(channels []Channel) *Registry {
	r := &Registry{
		channels: append([]Channel(nil), channels...),
		times:    make(map[Channel][]time.Time, len(channels)),
	}
	r.resetTimes()
	return r
}

// Channels returns the monitored channels in ascending order.
func (r *Registry) Channels() []Channel {
	return append([]Channel(nil), r.channels...)
}

// Mode returns the active consumer flags.
func (r *Registry) Mode() Mode {
	return r.mode
}

// StartCount zeroes every count slot and activates counting.
func (r *Registry) StartCount() {
	r.counts = [NumChannels]int{}
	r.mode = r.mode.With(ModeCount)
}

// ResumeCount activates counting without zeroing.
func (r *Registry) ResumeCount() {
	r.mode = r.mode.With(ModeCount)
}

// StopCount deactivates counting and returns the counts of the monitored
// channels.
func (r *Registry) StopCount() []ChannelCount {
	r.mode = r.mode.Without(ModeCount)
	return r.Count()
}

// Count returns the counts of the monitored channels, in channel order.
func (r *Registry) Count() []ChannelCount {
	out := make([]ChannelCount, len(r.channels))
	for i, c := range r.channels {
		out[i] = ChannelCount{Channel: c, Count: r.counts[c]}
	}
	return out
}

// StartTimeLog clears recorded touch times and activates time logging.
func (r *Registry) StartTimeLog() {
	r.resetTimes()
	r.mode = r.mode.With(ModeTimeLog)
}

// StopTimeLog deactivates time logging and returns a copy of the log.
func (r *Registry) StopTimeLog() map[Channel][]time.Time {
	r.mode = r.mode.Without(ModeTimeLog)
	return r.TimeLog()
}

// TimeLog returns a copy of the log that shares no storage with the registry.
func (r *Registry) TimeLog() map[Channel][]time.Time {
	out := make(map[Channel][]time.Time, len(r.times))
	for c, ts := range r.times {
		out[c] = append([]time.Time{}, ts...)
	}
	return out
}

// SetHandler replaces the custom handler. The custom mode flag is unchanged;
// a nil handler simply receives nothing.
func (r *Registry) SetHandler(h Handler) {
	r.handler = h
}

// StartCustom activates the custom handler. Without a handler it does nothing.
func (r *Registry) StartCustom() {
	if r.handler == nil {
		return
	}
	r.mode = r.mode.With(ModeCustom)
}

// StopCustom deactivates the custom handler.
func (r *Registry) StopCustom() {
	r.mode = r.mode.Without(ModeCustom)
}

// Notify applies one touch edge on channel c at time at to the active
// consumers. Counting and time logging happen here; when custom mode is
// active the handler is returned so the caller can run it outside its lock.
func (r *Registry) Notify(c Channel, at time.Time) Handler {
	if !c.Valid() {
		return nil
	}
	if r.mode.Has(ModeCount) {
		r.counts[c]++
	}
	if r.mode.Has(ModeTimeLog) {
		if ts, ok := r.times[c]; ok {
			r.times[c] = append(ts, at)
		}
	}
	if r.mode.Has(ModeCustom) {
		return r.handler
	}
	return nil
}

func (r *Registry) resetTimes() {
	for _, c := range r.channels {
		r.times[c] = []time.Time{}
	}
}
