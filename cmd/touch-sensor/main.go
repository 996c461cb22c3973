// Command touch-sensor watches an MPR121 capacitive touch controller and
// publishes new touches to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/touch-sensor/internal/config"
	"github.com/sweeney/touch-sensor/internal/irq"
	"github.com/sweeney/touch-sensor/internal/logic"
	"github.com/sweeney/touch-sensor/internal/mqtt"
	"github.com/sweeney/touch-sensor/internal/sensor"
	"github.com/sweeney/touch-sensor/internal/status"
	"github.com/sweeney/touch-sensor/internal/touch"
	"github.com/sweeney/touch-sensor/internal/web"
)

// touchQueue bounds touches waiting for the run loop to publish them.
const touchQueue = 64

var errTouchQueueFull = errors.New("touch queue full, dropping event")

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults when empty)")
	mode := flag.String("mode", "serve", `"serve" runs the daemon, "demo" runs the interactive test sequence`)
	period := flag.Duration("period", 10*time.Second, "Length of each demo step")
	printState := flag.Bool("print-state", false, "Print currently touched channels and exit")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", "HTTP status address (overrides config)")

	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("fatal: %v", err)
		}
	}
	if *broker != "" {
		cfg.MQTT.Broker = *broker
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}

	if err := run(cfg, *mode, *period, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg config.Config, mode string, period time.Duration, printState bool) error {
	if mode != "serve" && mode != "demo" {
		return fmt.Errorf("unknown mode %q", mode)
	}

	dev, err := sensor.OpenMPR121(cfg.Sensor.Bus)
	if err != nil {
		return fmt.Errorf("init sensor: %w", err)
	}
	defer dev.Close()

	if printState {
		if err := dev.Bind(cfg.Sensor.Address); err != nil {
			return fmt.Errorf("bind sensor: %w", err)
		}
		m, err := dev.Read()
		if err != nil {
			return fmt.Errorf("read sensor: %w", err)
		}
		fmt.Println(formatTouched(m))
		return nil
	}

	var notifier irq.Notifier = irq.NewLineNotifier(cfg.IRQ.Chip)
	if cfg.IRQ.PollInterval > 0 {
		notifier = irq.NewTicker(cfg.IRQ.PollInterval)
	}
	det, err := touch.New(dev, notifier, cfg.Detector())
	if err != nil {
		return fmt.Errorf("init detector: %w", err)
	}
	defer det.Close()

	if mode == "demo" {
		runDemo(os.Stdout, det, period, time.Sleep)
		return nil
	}
	return serve(cfg, det)
}

func serve(cfg config.Config, det *touch.Detector) error {
	var publisher mqtt.Publisher = discardPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher, mqttStatus = p, p
	}
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), det.Channels(), status.Config{
		Address:     cfg.Sensor.Address,
		Line:        cfg.IRQ.Line,
		PollMs:      cfg.IRQ.PollInterval.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
	})

	touches := make(chan logic.TouchEvent, touchQueue)
	det.StartCount()
	det.AddCustomCallback(forwardTouches(det.Touched, time.Now, touches))
	det.StartCustomCallback()

	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: address=0x%02X channels=%v line=%d poll=%v broker=%s heartbeat=%v",
		cfg.Sensor.Address, det.Channels(), cfg.IRQ.Line, cfg.IRQ.PollInterval, cfg.MQTT.Broker, cfg.Heartbeat)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(det, publisher, mqttStatus, tracker, cfg.Heartbeat, time.Now, touches, ticker.C, sigCh)
}

// forwardTouches returns a handler that queues each new touch for the run
// loop. It runs on the dispatch goroutine and never blocks.
func forwardTouches(touched func() logic.Bitmask, now func() time.Time, out chan<- logic.TouchEvent) logic.Handler {
	return func(c logic.Channel) error {
		ev := logic.TouchEvent{Timestamp: now(), Channel: c, Touched: touched()}
		select {
		case out <- ev:
			return nil
		default:
			return errTouchQueueFull
		}
	}
}

func formatTouched(m logic.Bitmask) string {
	if m == 0 {
		return "touched: none"
	}
	return fmt.Sprintf("touched: %v", m.Channels())
}

// discardPublisher stands in when MQTT is disabled.
type discardPublisher struct{}

func (discardPublisher) Publish(logic.TouchEvent) error       { return nil }
func (discardPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (discardPublisher) Close() error                         { return nil }
