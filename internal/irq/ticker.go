package irq

import (
	"errors"
	"sync"
	"time"
)

// Ticker signals every interval, for sensors whose IRQ pin is not wired.
// Each subscription runs its own ticker; line only identifies the binding.
type Ticker struct {
	interval time.Duration
	lines    lineTable
}

// NewTicker creates a polling notifier.
func NewTicker(interval time.Duration) *Ticker {
	return &Ticker{interval: interval}
}

// Subscribe starts a goroutine calling onSignal every interval until the
// subscription is closed.
func (t *Ticker) Subscribe(line int, onSignal func()) (Subscription, error) {
	if t.interval <= 0 {
		return nil, errors.New("irq: ticker interval must be positive")
	}
	if err := t.lines.claim(line); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(t.interval)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				onSignal()
			}
		}
	}()

	return &subscription{
		table: &t.lines,
		line:  line,
		onClose: func() error {
			ticker.Stop()
			close(done)
			wg.Wait()
			return nil
		},
	}, nil
}
