package touch

import (
	"time"

	"github.com/sweeney/touch-sensor/internal/logic"
)

// WaitForTouch blocks until some channel is touched or timeout elapses.
//
// If a channel is already touched it returns at once, unless startFromZero
// is set: then it first waits for a full release and reports WaitHeldThrough,
// with the channels still touched at the deadline, if the touch outlasts the
// timeout. The touch state is sampled every poll
// interval, so a result can lag the touch by up to one interval.
func (d *Detector) WaitForTouch(timeout time.Duration, startFromZero bool) logic.WaitResult {
	deadline := time.Now().Add(timeout)

	if cur := d.Touched(); cur != 0 {
		if !startFromZero {
			return logic.WaitResult{Kind: logic.WaitTouched, Touched: cur}
		}
		if m, ok := d.pollUntil(deadline, released); !ok {
			return logic.WaitResult{Kind: logic.WaitHeldThrough, Touched: m}
		}
	}

	if m, ok := d.pollUntil(deadline, touched); ok {
		return logic.WaitResult{Kind: logic.WaitTouched, Touched: m}
	}
	return logic.WaitResult{Kind: logic.WaitTimeout}
}

func released(m logic.Bitmask) bool { return m == 0 }
func touched(m logic.Bitmask) bool  { return m != 0 }

// pollUntil samples the touch state until cond holds or the deadline passes.
// No lock is held while sleeping.
func (d *Detector) pollUntil(deadline time.Time, cond func(logic.Bitmask) bool) (logic.Bitmask, bool) {
	for {
		m := d.Touched()
		if cond(m) {
			return m, true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return m, false
		}
		if remaining > d.poll {
			remaining = d.poll
		}
		time.Sleep(remaining)
	}
}
