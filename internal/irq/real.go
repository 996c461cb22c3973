//go:build linux

package irq

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/touch-sensor/internal/logic"
)

// LineNotifier signals on the falling edge of GPIO lines of one chip. The
// MPR121 IRQ output is open-drain and active low, so lines are requested
// with the internal pull-up.
type LineNotifier struct {
	chip  string
	lines lineTable
}

// NewLineNotifier creates a notifier for the named GPIO chip, e.g. "gpiochip0".
func NewLineNotifier(chip string) *LineNotifier {
	return &LineNotifier{chip: chip}
}

// Subscribe requests line as a falling-edge input and calls onSignal from
// the gpiocdev event goroutine for each edge.
func (n *LineNotifier) Subscribe(line int, onSignal func()) (Subscription, error) {
	if err := n.lines.claim(line); err != nil {
		return nil, err
	}

	l, err := gpiocdev.RequestLine(n.chip, line,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { onSignal() }))
	if err != nil {
		n.lines.release(line)
		if errors.Is(err, syscall.EBUSY) {
			return nil, &logic.ConfigError{
				Field:  "line",
				Reason: fmt.Sprintf("line %d held by another process", line),
				Err:    logic.ErrLineBound,
			}
		}
		return nil, fmt.Errorf("request irq line %d on %s: %w", line, n.chip, err)
	}

	return &subscription{
		table: &n.lines,
		line:  line,
		onClose: func() error {
			var errs []error
			// Leave the pin as a plain pulled-up input, matching its idle state.
			if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
				errs = append(errs, fmt.Errorf("reconfigure irq line %d: %w", line, err))
			}
			if err := l.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close irq line %d: %w", line, err))
			}
			return errors.Join(errs...)
		},
	}, nil
}
