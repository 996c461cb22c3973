package sensor

import (
	"errors"
	"sync"

	"github.com/sweeney/touch-sensor/internal/logic"
)

// FakeSource is a test double that returns scripted touch bitmasks.
// Safe for concurrent use: the detector reads it from its dispatch goroutine.
type FakeSource struct {
	mu sync.Mutex

	// samples are returned in order by Read; once exhausted the last value
	// (or the value given to SetTouched) is returned repeatedly.
	samples []logic.Bitmask
	index   int
	current logic.Bitmask

	readErr error
	bindErr error
	thErr   error

	reads   int
	addr    uint16
	touch   uint8
	release uint8
	bound   bool
	closed  bool
}

// NewFakeSource creates a FakeSource with the given samples.
func NewFakeSource(samples ...logic.Bitmask) *FakeSource {
	return &FakeSource{samples: samples}
}

// Read returns the next scripted sample.
func (f *FakeSource) Read() (logic.Bitmask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++
	if f.readErr != nil {
		return 0, f.readErr
	}
	if f.closed {
		return 0, errors.New("fake source closed")
	}
	if f.index < len(f.samples) {
		f.current = f.samples[f.index]
		f.index++
	}
	return f.current, nil
}

// SetTouched drops any remaining samples and makes Read return m.
func (f *FakeSource) SetTouched(m logic.Bitmask) {
	f.mu.Lock()
	f.samples = nil
	f.index = 0
	f.current = m
	f.mu.Unlock()
}

// SetReadError makes Read fail with err until cleared with nil.
func (f *FakeSource) SetReadError(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
}

// SetBindError makes Bind fail with err.
func (f *FakeSource) SetBindError(err error) {
	f.mu.Lock()
	f.bindErr = err
	f.mu.Unlock()
}

// SetThresholdError makes SetThresholds fail with err.
func (f *FakeSource) SetThresholdError(err error) {
	f.mu.Lock()
	f.thErr = err
	f.mu.Unlock()
}

// Bind records the address.
func (f *FakeSource) Bind(addr uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.bindErr != nil {
		return f.bindErr
	}
	f.addr = addr
	f.bound = true
	return nil
}

// SetThresholds records the thresholds.
func (f *FakeSource) SetThresholds(touch, release uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.thErr != nil {
		return f.thErr
	}
	f.touch = touch
	f.release = release
	return nil
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Reads returns how many times Read was called.
func (f *FakeSource) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Bound returns the bound address and whether Bind succeeded.
func (f *FakeSource) Bound() (uint16, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addr, f.bound
}

// Thresholds returns the last thresholds written.
func (f *FakeSource) Thresholds() (touch, release uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touch, f.release
}

// Closed reports whether Close was called.
func (f *FakeSource) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
