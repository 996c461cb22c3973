// Package touch turns touch-state notifications from a capacitive sensor into
// new-touch events and hands them to the active consumers: a per-channel
// counter, a per-channel touch time log and a custom callback.
//
// A Detector owns one sensor and one notification line. Each signal on the
// line queues a dispatch cycle (at most one pending; extra signals coalesce)
// that a single goroutine runs: read the bitmask, extract rising edges on the
// monitored channels, apply them to the consumers and remember the bitmask.
// Control calls from other goroutines serialize with the cycle through one
// lock, so every snapshot reflects a cycle boundary.
package touch

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/touch-sensor/internal/irq"
	"github.com/sweeney/touch-sensor/internal/logic"
	"github.com/sweeney/touch-sensor/internal/sensor"
)

// DefaultPollInterval is the sampling period of WaitForTouch.
const DefaultPollInterval = 50 * time.Millisecond

// Config describes how a Detector binds to its sensor.
type Config struct {
	Address          uint16
	TouchThreshold   uint8
	ReleaseThreshold uint8
	Channels         []logic.Channel // monitored channels, fixed for the detector's lifetime
	Line             int             // notification line, e.g. the IRQ pin

	// PollInterval is how often WaitForTouch samples the touch state.
	// Zero means DefaultPollInterval.
	PollInterval time.Duration

	// ErrorSink receives errors from dispatch cycles (device reads, custom
	// handlers). Nil logs them.
	ErrorSink func(error)

	// Now timestamps touches. Nil means time.Now.
	Now func() time.Time
}

// Stats counts dispatch activity since construction.
type Stats struct {
	Cycles        uint64
	Edges         uint64
	DeviceErrors  uint64
	HandlerErrors uint64
}

// Detector detects new touches and dispatches them to consumers.
type Detector struct {
	src      sensor.Source
	channels []logic.Channel
	poll     time.Duration
	sink     func(error)
	now      func() time.Time

	mu    sync.RWMutex
	reg   *logic.Registry
	prev  logic.Bitmask
	stats Stats
	gen   uint64 // bumped whenever the custom handler is replaced or stopped

	pending chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup

	sub       irq.Subscription
	closeOnce sync.Once
	closeErr  error
}

// New binds src at cfg.Address, writes the thresholds, takes the initial
// touch state and subscribes to cfg.Line. Every error is returned before any
// resource is left held.
func New(src sensor.Source, n irq.Notifier, cfg Config) (*Detector, error) {
	channels, err := logic.NormalizeChannels(cfg.Channels)
	if err != nil {
		return nil, err
	}

	if err := src.Bind(cfg.Address); err != nil {
		return nil, fmt.Errorf("bind sensor 0x%02x: %w", cfg.Address, err)
	}
	if err := src.SetThresholds(cfg.TouchThreshold, cfg.ReleaseThreshold); err != nil {
		return nil, fmt.Errorf("set thresholds: %w", err)
	}
	prev, err := src.Read()
	if err != nil {
		return nil, fmt.Errorf("read initial touch state: %w", err)
	}

	d := &Detector{
		src:      src,
		channels: channels,
		poll:     cfg.PollInterval,
		sink:     cfg.ErrorSink,
		now:      cfg.Now,
		reg:      logic.NewRegistry(channels),
		prev:     prev,
		pending:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if d.poll <= 0 {
		d.poll = DefaultPollInterval
	}
	if d.sink == nil {
		d.sink = func(err error) { log.Printf("touch: %v", err) }
	}
	if d.now == nil {
		d.now = time.Now
	}

	sub, err := n.Subscribe(cfg.Line, d.signal)
	if err != nil {
		return nil, fmt.Errorf("subscribe line %d: %w", cfg.Line, err)
	}
	d.sub = sub

	d.wg.Add(1)
	go d.run()
	return d, nil
}

// Close releases the notification line, waits for an in-flight cycle to
// finish and deactivates every consumer. It must not be called from a
// custom handler.
func (d *Detector) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.sub.Close()
		close(d.done)
		d.wg.Wait()

		d.mu.Lock()
		d.reg.StopCount()
		d.reg.StopTimeLog()
		d.reg.StopCustom()
		d.mu.Unlock()
	})
	return d.closeErr
}

// signal queues a dispatch cycle. It never blocks: while a cycle is already
// pending the signal is absorbed, since that cycle will read the latest state.
func (d *Detector) signal() {
	select {
	case d.pending <- struct{}{}:
	default:
	}
}

func (d *Detector) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case <-d.pending:
			d.dispatch()
		}
	}
}

// dispatch runs one read-detect-notify-update cycle.
func (d *Detector) dispatch() {
	cur, err := d.src.Read()
	if err != nil {
		d.mu.Lock()
		d.stats.DeviceErrors++
		d.mu.Unlock()
		d.sink(err)
		return
	}

	type call struct {
		h logic.Handler
		c logic.Channel
	}
	var calls []call

	d.mu.Lock()
	edges := logic.Edges(d.prev, cur, d.channels)
	at := d.now()
	for _, c := range edges {
		if h := d.reg.Notify(c, at); h != nil {
			calls = append(calls, call{h, c})
		}
	}
	d.prev = cur
	d.stats.Cycles++
	d.stats.Edges += uint64(len(edges))
	gen := d.gen
	d.mu.Unlock()

	// Handlers run outside the lock so they may call back into the detector.
	// Each call first checks the handler is still current: once
	// StopCustomCallback or AddCustomCallback returns, no later edge of this
	// cycle reaches the old handler.
	for _, cl := range calls {
		if !d.handlerCurrent(gen) {
			return
		}
		if err := invoke(cl.h, cl.c); err != nil {
			d.mu.Lock()
			d.stats.HandlerErrors++
			d.mu.Unlock()
			d.sink(&logic.HandlerError{Channel: cl.c, Err: err})
		}
	}
}

func (d *Detector) handlerCurrent(gen uint64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.gen == gen && d.reg.Mode().Has(logic.ModeCustom)
}

func invoke(h logic.Handler, c logic.Channel) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(c)
}

// Channels returns the monitored channels in ascending order.
func (d *Detector) Channels() []logic.Channel {
	return append([]logic.Channel(nil), d.channels...)
}

// Touched returns the touch state recorded by the last dispatch cycle.
func (d *Detector) Touched() logic.Bitmask {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.prev
}

// Mode returns the active consumers.
func (d *Detector) Mode() logic.Mode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.reg.Mode()
}

// Stats returns dispatch counters.
func (d *Detector) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats
}

// StartCount zeroes all counts and starts counting new touches.
func (d *Detector) StartCount() {
	d.mu.Lock()
	d.reg.StartCount()
	d.mu.Unlock()
}

// StopCount stops counting and returns the count of each monitored channel.
func (d *Detector) StopCount() []logic.ChannelCount {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reg.StopCount()
}

// Count returns the current counts without stopping.
func (d *Detector) Count() []logic.ChannelCount {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.reg.Count()
}

// ResumeCount restarts counting without zeroing.
func (d *Detector) ResumeCount() {
	d.mu.Lock()
	d.reg.ResumeCount()
	d.mu.Unlock()
}

// StartTimeLog clears the touch time log and starts logging.
func (d *Detector) StartTimeLog() {
	d.mu.Lock()
	d.reg.StartTimeLog()
	d.mu.Unlock()
}

// StopTimeLog stops logging and returns the times of each monitored
// channel's touches. The result is owned by the caller.
func (d *Detector) StopTimeLog() map[logic.Channel][]time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reg.StopTimeLog()
}

// TimeLog returns a copy of the time log without stopping.
func (d *Detector) TimeLog() map[logic.Channel][]time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.reg.TimeLog()
}

// AddCustomCallback replaces the custom handler. Whether it is called is
// still controlled by StartCustomCallback and StopCustomCallback. A call to
// the old handler already in progress is not interrupted.
func (d *Detector) AddCustomCallback(h logic.Handler) {
	d.mu.Lock()
	d.reg.SetHandler(h)
	d.gen++
	d.mu.Unlock()
}

// StartCustomCallback starts calling the custom handler for each new touch.
// It does nothing when no handler was added.
func (d *Detector) StartCustomCallback() {
	d.mu.Lock()
	d.reg.StartCustom()
	d.mu.Unlock()
}

// StopCustomCallback stops calling the custom handler. A call already in
// progress is not interrupted, but no further call starts after it returns.
func (d *Detector) StopCustomCallback() {
	d.mu.Lock()
	d.reg.StopCustom()
	d.gen++
	d.mu.Unlock()
}
