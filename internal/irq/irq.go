// Package irq delivers "touch state changed" notifications to a detector.
// The real implementation watches the sensor's IRQ pin through the Linux
// GPIO character device; a ticker provides polling when no IRQ pin is wired;
// the fake implementation allows testing without hardware.
package irq

import (
	"fmt"
	"sync"

	"github.com/sweeney/touch-sensor/internal/logic"
)

// Notifier subscribes a callback to the signals of one notification line.
type Notifier interface {
	// Subscribe arranges for onSignal to be called each time line signals.
	// A line accepts one subscriber at a time; a second subscription fails
	// with an error wrapping logic.ErrLineBound.
	Subscribe(line int, onSignal func()) (Subscription, error)
}

// Subscription is an active binding between a line and a callback.
type Subscription interface {
	// Close stops signal delivery and frees the line. It is safe to call
	// more than once.
	Close() error
}

// DefaultLine is the BCM pin the sensor's IRQ output is usually wired to.
const DefaultLine = 26

// lineTable tracks which lines currently have a subscriber.
type lineTable struct {
	mu    sync.Mutex
	bound map[int]bool
}

func (t *lineTable) claim(line int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bound == nil {
		t.bound = make(map[int]bool)
	}
	if t.bound[line] {
		return &logic.ConfigError{
			Field:  "line",
			Reason: fmt.Sprintf("line %d", line),
			Err:    logic.ErrLineBound,
		}
	}
	t.bound[line] = true
	return nil
}

func (t *lineTable) release(line int) {
	t.mu.Lock()
	delete(t.bound, line)
	t.mu.Unlock()
}

// subscription releases a claimed line exactly once.
type subscription struct {
	once    sync.Once
	table   *lineTable
	line    int
	onClose func() error
	err     error
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		if s.onClose != nil {
			s.err = s.onClose()
		}
		s.table.release(s.line)
	})
	return s.err
}
