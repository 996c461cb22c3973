package main

import (
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/touch-sensor/internal/logic"
	"github.com/sweeney/touch-sensor/internal/mqtt"
	"github.com/sweeney/touch-sensor/internal/status"
	"github.com/sweeney/touch-sensor/internal/touch"
)

// detectorState is the part of the detector the run loop reports on.
type detectorState interface {
	Touched() logic.Bitmask
	Mode() logic.Mode
	Count() []logic.ChannelCount
	Stats() touch.Stats
}

func runLoop(det detectorState, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, touches <-chan logic.TouchEvent, tick <-chan time.Time, sig <-chan os.Signal) error {
	lastHeartbeat := now()

	refresh := func() {
		if tracker == nil {
			return
		}
		st := det.Stats()
		tracker.Update(det.Touched(), det.Mode(), det.Count(), status.Counters{
			Cycles:        st.Cycles,
			Edges:         st.Edges,
			DeviceErrors:  st.DeviceErrors,
			HandlerErrors: st.HandlerErrors,
		})
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				refresh()
				event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case ev := <-touches:
			log.Printf("touch: channel %d (touched %v)", ev.Channel, ev.Touched.Channels())
			if tracker != nil {
				tracker.RecordTouch(ev)
			}
			if err := publisher.Publish(ev); err != nil {
				log.Printf("publish error: %v", err)
			}

		case <-tick:
			t := now()
			refresh()

			if heartbeat <= 0 || t.Sub(lastHeartbeat) < heartbeat {
				continue
			}
			lastHeartbeat = t

			st := det.Stats()
			log.Printf("heartbeat: cycles=%d touches=%d device_errors=%d handler_errors=%d",
				st.Cycles, st.Edges, st.DeviceErrors, st.HandlerErrors)

			hb := mqtt.SystemEvent{Timestamp: t, Event: "HEARTBEAT"}
			if tracker != nil {
				hb.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "HEARTBEAT", "")
			}
			if err := publisher.PublishSystem(hb); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}
