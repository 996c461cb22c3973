package irq

import (
	"fmt"
	"sync"
)

// FakeNotifier is a test double whose lines signal only when Trigger is
// called.
type FakeNotifier struct {
	lines lineTable

	mu        sync.Mutex
	handlers  map[int]func()
	subscribe int
	closed    int

	// SubscribeError, if set, is returned by Subscribe.
	SubscribeError error
}

// NewFakeNotifier creates a FakeNotifier.
func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{handlers: make(map[int]func())}
}

// Subscribe records onSignal for line.
func (f *FakeNotifier) Subscribe(line int, onSignal func()) (Subscription, error) {
	if f.SubscribeError != nil {
		return nil, f.SubscribeError
	}
	if err := f.lines.claim(line); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.handlers[line] = onSignal
	f.subscribe++
	f.mu.Unlock()

	return &subscription{
		table: &f.lines,
		line:  line,
		onClose: func() error {
			f.mu.Lock()
			delete(f.handlers, line)
			f.closed++
			f.mu.Unlock()
			return nil
		},
	}, nil
}

// Trigger signals line once, synchronously calling its subscriber.
func (f *FakeNotifier) Trigger(line int) error {
	f.mu.Lock()
	h, ok := f.handlers[line]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("irq: no subscriber on line %d", line)
	}
	h()
	return nil
}

// Subscribed reports whether line currently has a subscriber.
func (f *FakeNotifier) Subscribed(line int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[line]
	return ok
}

// Counts returns how many subscriptions were made and closed.
func (f *FakeNotifier) Counts() (subscribed, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribe, f.closed
}
