//go:build !linux

package irq

import "errors"

// LineNotifier is not available on non-Linux platforms.
type LineNotifier struct{}

// NewLineNotifier returns a notifier whose subscriptions always fail.
func NewLineNotifier(chip string) *LineNotifier {
	return &LineNotifier{}
}

// Subscribe is not implemented on non-Linux platforms.
func (n *LineNotifier) Subscribe(line int, onSignal func()) (Subscription, error) {
	return nil, errors.New("irq: gpio lines not supported on this platform (requires Linux)")
}
