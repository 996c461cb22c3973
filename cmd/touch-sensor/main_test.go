package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/touch-sensor/internal/config"
	"github.com/sweeney/touch-sensor/internal/irq"
	"github.com/sweeney/touch-sensor/internal/logic"
	"github.com/sweeney/touch-sensor/internal/mqtt"
	"github.com/sweeney/touch-sensor/internal/sensor"
	"github.com/sweeney/touch-sensor/internal/status"
	"github.com/sweeney/touch-sensor/internal/touch"
)

const testLine = 26

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

type rig struct {
	det *touch.Detector
	src *sensor.FakeSource
	n   *irq.FakeNotifier
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{src: sensor.NewFakeSource(), n: irq.NewFakeNotifier()}
	det, err := touch.New(r.src, r.n, touch.Config{
		Address:          sensor.AddrGND,
		TouchThreshold:   sensor.DefaultTouchThreshold,
		ReleaseThreshold: sensor.DefaultReleaseThreshold,
		Channels:         logic.MaskAll.Channels(),
		Line:             testLine,
		PollInterval:     5 * time.Millisecond,
		ErrorSink:        func(error) {},
	})
	if err != nil {
		t.Fatalf("touch.New: %v", err)
	}
	t.Cleanup(func() { det.Close() })
	r.det = det
	return r
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// step makes the sensor report m and waits for the detector to process it.
func (r *rig) step(t *testing.T, m logic.Bitmask) {
	t.Helper()
	before := r.det.Stats().Cycles
	r.src.SetTouched(m)
	if err := r.n.Trigger(testLine); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	waitFor(t, "dispatch cycle", func() bool { return r.det.Stats().Cycles > before })
}

func newTracker(r *rig) *status.Tracker {
	return status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), r.det.Channels(), status.Config{
		Address:  sensor.AddrGND,
		Line:     testLine,
		Broker:   "tcp://localhost:1883",
		HTTPAddr: ":80",
	})
}

type loopRun struct {
	touches chan logic.TouchEvent
	tick    chan time.Time
	sig     chan os.Signal
	errCh   chan error
}

// startLoop runs runLoop in the background. touches and tick are unbuffered
// so a send returns only once the loop has taken the value.
func startLoop(det detectorState, pub *mqtt.FakePublisher, tracker *status.Tracker, heartbeat time.Duration, clock func() time.Time) *loopRun {
	lr := &loopRun{
		touches: make(chan logic.TouchEvent),
		tick:    make(chan time.Time),
		sig:     make(chan os.Signal, 1),
		errCh:   make(chan error, 1),
	}
	go func() {
		lr.errCh <- runLoop(det, pub, pub, tracker, heartbeat, clock, lr.touches, lr.tick, lr.sig)
	}()
	return lr
}

func (lr *loopRun) stop(t *testing.T, s os.Signal) {
	t.Helper()
	lr.sig <- s
	select {
	case err := <-lr.errCh:
		if err != nil {
			t.Fatalf("runLoop returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("runLoop did not return after signal")
	}
}

func statusOf(t *testing.T, payload []byte) status.StatusInner {
	t.Helper()
	var sj status.StatusJSON
	if err := json.Unmarshal(payload, &sj); err != nil {
		t.Fatalf("invalid status JSON %s: %v", payload, err)
	}
	return sj.Status
}

func TestRunLoopShutdownOnly(t *testing.T) {
	r := newRig(t)
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)

	lr := startLoop(r.det, pub, newTracker(r), 0, clock)
	lr.stop(t, syscall.SIGTERM)

	if len(pub.Events()) != 0 {
		t.Errorf("expected 0 touch events, got %d", len(pub.Events()))
	}
	se := pub.SystemEvents()
	if len(se) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(se))
	}
	if se[0].Event != "SHUTDOWN" || se[0].Reason != "SIGTERM" || !se[0].Retained {
		t.Errorf("unexpected shutdown event: %+v", se[0])
	}
	st := statusOf(t, pub.SystemPayloads()[0])
	if st.Event != "SHUTDOWN" || st.Reason != "SIGTERM" {
		t.Errorf("payload event/reason: got %q/%q", st.Event, st.Reason)
	}
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	r := newRig(t)
	pub := mqtt.NewFakePublisher()

	lr := startLoop(r.det, pub, nil, 0, time.Now)
	lr.stop(t, syscall.SIGINT)

	se := pub.SystemEvents()
	if len(se) != 1 || se[0].Reason != "SIGINT" {
		t.Fatalf("expected SHUTDOWN with SIGINT, got %+v", se)
	}
	// Without a tracker the plain system payload is used.
	if !strings.Contains(string(pub.SystemPayloads()[0]), `"system"`) {
		t.Errorf("expected plain system payload, got %s", pub.SystemPayloads()[0])
	}
}

func TestRunLoopPublishesTouches(t *testing.T) {
	r := newRig(t)
	pub := mqtt.NewFakePublisher()
	tracker := newTracker(r)
	at := time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC)

	lr := startLoop(r.det, pub, tracker, 0, time.Now)
	lr.touches <- logic.TouchEvent{Timestamp: at, Channel: 3, Touched: logic.MaskOf(3)}
	lr.touches <- logic.TouchEvent{Timestamp: at.Add(time.Second), Channel: 9, Touched: logic.MaskOf(3, 9)}
	lr.stop(t, syscall.SIGTERM)

	events := pub.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 touch events, got %d", len(events))
	}
	if events[0].Channel != 3 || events[1].Channel != 9 {
		t.Errorf("event order: got %d then %d", events[0].Channel, events[1].Channel)
	}
	if lt := tracker.Snapshot().LastTouch; lt == nil || lt.Channel != 9 {
		t.Errorf("tracker last touch: got %+v", lt)
	}
}

func TestRunLoopPublishError(t *testing.T) {
	r := newRig(t)
	pub := mqtt.NewFakePublisher()
	pub.SetPublishError(errors.New("broker unavailable"))

	lr := startLoop(r.det, pub, newTracker(r), 0, time.Now)
	lr.touches <- logic.TouchEvent{Timestamp: time.Now(), Channel: 1}
	lr.stop(t, syscall.SIGTERM)

	if len(pub.Events()) != 0 {
		t.Errorf("expected 0 recorded events (publish failed), got %d", len(pub.Events()))
	}
	se := pub.SystemEvents()
	if len(se) != 1 || se[0].Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN despite publish errors, got %+v", se)
	}
}

func TestRunLoopForwardsDetectorTouches(t *testing.T) {
	r := newRig(t)
	pub := mqtt.NewFakePublisher()
	tracker := newTracker(r)

	touches := make(chan logic.TouchEvent, touchQueue)
	r.det.StartCount()
	r.det.AddCustomCallback(forwardTouches(r.det.Touched, time.Now, touches))
	r.det.StartCustomCallback()

	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(r.det, pub, pub, tracker, 0, time.Now, touches, tick, sig)
	}()

	r.step(t, logic.MaskOf(2))
	r.step(t, logic.MaskOf(2, 6))
	r.step(t, logic.MaskOf(6))
	waitFor(t, "published touches", func() bool { return len(pub.Events()) == 2 })

	tick <- time.Time{}
	sig <- syscall.SIGTERM
	if err := <-errCh; err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	events := pub.Events()
	if events[0].Channel != 2 || events[0].Touched != logic.MaskOf(2) {
		t.Errorf("first event: got %+v", events[0])
	}
	if events[1].Channel != 6 || events[1].Touched != logic.MaskOf(2, 6) {
		t.Errorf("second event: got %+v", events[1])
	}

	se := pub.SystemEvents()
	if len(se) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(se))
	}
	st := statusOf(t, pub.SystemPayloads()[0])
	counts := map[int]int{}
	for _, c := range st.Counts {
		counts[c.Channel] = c.Count
	}
	if counts[2] != 1 || counts[6] != 1 || counts[0] != 0 {
		t.Errorf("shutdown counts: got %v", counts)
	}
	if st.Mode != "count+custom" {
		t.Errorf("mode: got %q, want count+custom", st.Mode)
	}
	if st.Stats.Edges != 2 {
		t.Errorf("stats edges: got %d, want 2", st.Stats.Edges)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	// Clock calls: start, then one per tick. With a 5 minute step the
	// third tick is 15 minutes after start.
	r := newRig(t)
	pub := mqtt.NewFakePublisher()
	pub.SetConnected(true)
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 5*time.Minute)

	lr := startLoop(r.det, pub, newTracker(r), 15*time.Minute, clock)
	for i := 0; i < 4; i++ {
		lr.tick <- time.Time{}
	}
	lr.stop(t, syscall.SIGTERM)

	var heartbeats, shutdowns int
	se := pub.SystemEvents()
	payloads := pub.SystemPayloads()
	for i, e := range se {
		switch e.Event {
		case "HEARTBEAT":
			heartbeats++
			st := statusOf(t, payloads[i])
			if st.Event != "HEARTBEAT" {
				t.Errorf("heartbeat payload event: got %q", st.Event)
			}
			if !st.MQTT.Connected {
				t.Error("heartbeat should report MQTT connected")
			}
		case "SHUTDOWN":
			shutdowns++
		}
	}
	if heartbeats != 1 {
		t.Errorf("expected 1 HEARTBEAT event, got %d", heartbeats)
	}
	if shutdowns != 1 {
		t.Errorf("expected 1 SHUTDOWN event, got %d", shutdowns)
	}
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	r := newRig(t)
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Hour)

	lr := startLoop(r.det, pub, newTracker(r), 0, clock)
	for i := 0; i < 3; i++ {
		lr.tick <- time.Time{}
	}
	lr.stop(t, syscall.SIGTERM)

	for _, e := range pub.SystemEvents() {
		if e.Event == "HEARTBEAT" {
			t.Error("unexpected heartbeat with heartbeat disabled")
		}
	}
}

func TestRunLoopTickUpdatesTracker(t *testing.T) {
	r := newRig(t)
	pub := mqtt.NewFakePublisher()
	pub.SetConnected(true)
	tracker := newTracker(r)

	r.det.StartCount()
	r.step(t, logic.MaskOf(4))

	lr := startLoop(r.det, pub, tracker, 0, time.Now)
	lr.tick <- time.Time{}
	lr.stop(t, syscall.SIGTERM)

	snap := tracker.Snapshot()
	if snap.Touched != logic.MaskOf(4) {
		t.Errorf("Touched: got %012b", snap.Touched)
	}
	if !snap.Ready() {
		t.Error("expected tracker ready after a dispatch cycle")
	}
	if !snap.MQTTConnected {
		t.Error("expected MQTT connected")
	}
	if len(snap.Counts) != logic.NumChannels || snap.Counts[4].Count != 1 {
		t.Errorf("Counts: got %v", snap.Counts)
	}
}

func TestForwardTouchesQueueFull(t *testing.T) {
	out := make(chan logic.TouchEvent, 1)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := forwardTouches(func() logic.Bitmask { return logic.MaskOf(0, 1) }, func() time.Time { return at }, out)

	if err := h(1); err != nil {
		t.Fatalf("first forward: %v", err)
	}
	if err := h(0); !errors.Is(err, errTouchQueueFull) {
		t.Errorf("second forward: got %v, want errTouchQueueFull", err)
	}

	ev := <-out
	if ev.Channel != 1 || ev.Touched != logic.MaskOf(0, 1) || !ev.Timestamp.Equal(at) {
		t.Errorf("forwarded event: got %+v", ev)
	}
}

func TestFormatTouched(t *testing.T) {
	if got := formatTouched(0); got != "touched: none" {
		t.Errorf("got %q", got)
	}
	if got := formatTouched(logic.MaskOf(1, 10)); got != "touched: [1 10]" {
		t.Errorf("got %q", got)
	}
}

func TestDiscardPublisher(t *testing.T) {
	var p mqtt.Publisher = discardPublisher{}
	if err := p.Publish(logic.TouchEvent{}); err != nil {
		t.Error(err)
	}
	if err := p.PublishSystem(mqtt.SystemEvent{Event: "STARTUP"}); err != nil {
		t.Error(err)
	}
	if err := p.Close(); err != nil {
		t.Error(err)
	}
}

// syncBuffer lets the demo's callback write from the dispatch goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunDemo(t *testing.T) {
	r := newRig(t)
	out := &syncBuffer{}

	calls := 0
	sleep := func(time.Duration) {
		calls++
		switch calls {
		case 1: // counting
			r.step(t, logic.MaskOf(2))
			r.step(t, 0)
			r.step(t, logic.MaskOf(2))
			r.step(t, 0)
		case 2: // time log
			r.step(t, logic.MaskOf(5))
			r.step(t, 0)
		case 3: // custom callback
			r.step(t, logic.MaskOf(7))
			r.step(t, 0)
			waitFor(t, "callback output", func() bool {
				return strings.Contains(out.String(), "Touch on channel 7.")
			})
		}
	}

	runDemo(out, r.det, 30*time.Millisecond, sleep)

	if calls != 3 {
		t.Errorf("sleep calls: got %d, want 3", calls)
	}
	got := out.String()
	for _, want := range []string{
		"There were no touches in 0 seconds",
		"touches on channel 2 = 2.",
		"touches on channel 5 = 0.",
		"times for channel 5 were [",
		"times for channel 0 were []",
		"Touch on channel 7.",
		"All finished",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("demo output missing %q:\n%s", want, got)
		}
	}
	if r.det.Mode() != 0 {
		t.Errorf("demo should leave the detector idle, mode %v", r.det.Mode())
	}
}

func TestRunDemoTouchDuringWait(t *testing.T) {
	r := newRig(t)
	r.step(t, logic.MaskOf(11))
	out := &syncBuffer{}

	runDemo(out, r.det, 30*time.Millisecond, func(time.Duration) {})

	if !strings.Contains(out.String(), "Touch on channels [11]") {
		t.Errorf("expected immediate touch report, got:\n%s", out.String())
	}
}

// scriptedDetector returns a fixed wait result and keeps the installed
// callback so a test can call it after the demo has stopped it.
type scriptedDetector struct {
	wait    logic.WaitResult
	handler logic.Handler
	stops   int
}

func (s *scriptedDetector) WaitForTouch(time.Duration, bool) logic.WaitResult { return s.wait }
func (s *scriptedDetector) StartCount()                                      {}
func (s *scriptedDetector) StopCount() []logic.ChannelCount                  { return nil }
func (s *scriptedDetector) StartTimeLog()                                    {}
func (s *scriptedDetector) StopTimeLog() map[logic.Channel][]time.Time       { return nil }
func (s *scriptedDetector) AddCustomCallback(h logic.Handler)                { s.handler = h }
func (s *scriptedDetector) StartCustomCallback()                             {}
func (s *scriptedDetector) StopCustomCallback()                              { s.stops++ }

func TestRunDemoHeldThroughWait(t *testing.T) {
	det := &scriptedDetector{wait: logic.WaitResult{Kind: logic.WaitHeldThrough, Touched: logic.MaskOf(1, 6)}}
	out := &syncBuffer{}

	runDemo(out, det, time.Second, func(time.Duration) {})

	if !strings.Contains(out.String(), "Channels [1 6] were held for the whole wait") {
		t.Errorf("expected held channels in output, got:\n%s", out.String())
	}
}

func TestRunDemoNoOutputAfterFinish(t *testing.T) {
	det := &scriptedDetector{wait: logic.WaitResult{Kind: logic.WaitTimeout}}
	out := &syncBuffer{}

	runDemo(out, det, time.Second, func(time.Duration) {
		if det.handler == nil {
			return // count and time-log periods
		}
		if err := det.handler(3); err != nil {
			t.Errorf("callback: %v", err)
		}
	})
	if det.stops != 1 {
		t.Fatalf("StopCustomCallback calls: got %d, want 1", det.stops)
	}
	// A late call, as from a cycle that was already running at stop.
	if err := det.handler(4); err != nil {
		t.Errorf("late callback: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "Touch on channel 3.") {
		t.Errorf("expected touch during the callback period:\n%s", got)
	}
	if strings.Contains(got, "Touch on channel 4.") {
		t.Errorf("callback printed after the demo stopped it:\n%s", got)
	}
	if !strings.HasSuffix(got, "All finished\n") {
		t.Errorf("All finished should be the last line:\n%s", got)
	}
}

func TestRunRejectsUnknownMode(t *testing.T) {
	if err := run(config.Default(), "bogus", time.Second, false); err == nil {
		t.Error("expected error for unknown mode")
	}
}
