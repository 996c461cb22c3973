package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sweeney/touch-sensor/internal/logic"
)

// demoDetector is what the demo sequence drives.
type demoDetector interface {
	WaitForTouch(timeout time.Duration, startFromZero bool) logic.WaitResult
	StartCount()
	StopCount() []logic.ChannelCount
	StartTimeLog()
	StopTimeLog() map[logic.Channel][]time.Time
	AddCustomCallback(h logic.Handler)
	StartCustomCallback()
	StopCustomCallback()
}

// runDemo walks through each consumer in turn, one period each: a touch
// wait, counting, timestamp logging and a printing custom callback.
func runDemo(w io.Writer, det demoDetector, period time.Duration, sleep func(time.Duration)) {
	secs := period.Round(time.Second) / time.Second

	fmt.Fprintf(w, "Waiting %d seconds for a touch on any channel....\n", secs)
	res := det.WaitForTouch(period, false)
	switch res.Kind {
	case logic.WaitTimeout:
		fmt.Fprintf(w, "There were no touches in %d seconds\n", secs)
	case logic.WaitHeldThrough:
		fmt.Fprintf(w, "Channels %v were held for the whole wait\n", res.Touched.Channels())
	default:
		fmt.Fprintf(w, "Touch on channels %v\n", res.Touched.Channels())
	}

	fmt.Fprintf(w, "Counting the touches in the next %d seconds....\n", secs)
	det.StartCount()
	sleep(period)
	for _, cc := range det.StopCount() {
		fmt.Fprintf(w, "touches on channel %d = %d.\n", cc.Channel, cc.Count)
	}

	fmt.Fprintf(w, "Collecting timestamps of touches for the next %d seconds....\n", secs)
	det.StartTimeLog()
	sleep(period)
	stamps := det.StopTimeLog()
	for c := logic.Channel(0); c < logic.NumChannels; c++ {
		times, ok := stamps[c]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "times for channel %d were %s\n", c, formatTimes(times))
	}

	fmt.Fprintf(w, "Installing custom callback for the next %d seconds\n", secs)
	// A callback still running when StopCustomCallback returns must not
	// print after the closing line.
	var mu sync.Mutex
	stopped := false
	det.AddCustomCallback(func(c logic.Channel) error {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return nil
		}
		_, err := fmt.Fprintf(w, "Touch on channel %d.\n", c)
		return err
	})
	det.StartCustomCallback()
	sleep(period)
	det.StopCustomCallback()
	mu.Lock()
	stopped = true
	mu.Unlock()
	fmt.Fprintln(w, "All finished")
}

func formatTimes(times []time.Time) string {
	out := make([]string, len(times))
	for i, t := range times {
		out[i] = t.Format("15:04:05.000")
	}
	return fmt.Sprint(out)
}
