// Package config loads the touch-sensor daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/touch-sensor/internal/irq"
	"github.com/sweeney/touch-sensor/internal/logic"
	"github.com/sweeney/touch-sensor/internal/sensor"
	"github.com/sweeney/touch-sensor/internal/touch"
)

// Config is the complete daemon configuration.
type Config struct {
	Sensor    SensorConfig  `yaml:"sensor"`
	IRQ       IRQConfig     `yaml:"irq"`
	Wait      WaitConfig    `yaml:"wait"`
	MQTT      MQTTConfig    `yaml:"mqtt"`
	HTTP      HTTPConfig    `yaml:"http"`
	Heartbeat time.Duration `yaml:"heartbeat"` // 0 disables
}

// SensorConfig selects the bus, device and monitored channels.
type SensorConfig struct {
	Bus              string `yaml:"bus"` // periph bus name, "" for the first bus
	Address          uint16 `yaml:"address"`
	TouchThreshold   uint8  `yaml:"touch_threshold"`
	ReleaseThreshold uint8  `yaml:"release_threshold"`
	Channels         []int  `yaml:"channels"`
}

// IRQConfig selects how touch state changes are noticed. With PollInterval
// set the sensor is polled instead of watching the IRQ line.
type IRQConfig struct {
	Chip         string        `yaml:"chip"`
	Line         int           `yaml:"line"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// WaitConfig tunes touch waits.
type WaitConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// MQTTConfig contains broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
}

// HTTPConfig contains the status server address. Empty disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Sensor: SensorConfig{
			Address:          sensor.AddrGND,
			TouchThreshold:   sensor.DefaultTouchThreshold,
			ReleaseThreshold: sensor.DefaultReleaseThreshold,
			Channels:         []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
		},
		IRQ: IRQConfig{
			Chip: "gpiochip0",
			Line: irq.DefaultLine,
		},
		Wait: WaitConfig{
			PollInterval: touch.DefaultPollInterval,
		},
		MQTT: MQTTConfig{
			Broker:   "tcp://192.168.1.200:1883",
			ClientID: "touch-sensor",
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
		Heartbeat: 15 * time.Minute,
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values the detector would otherwise reject later.
func (c Config) Validate() error {
	if _, err := logic.NormalizeChannels(c.Channels()); err != nil {
		return err
	}
	if c.Sensor.Address > 0x7F {
		return &logic.ConfigError{Field: "sensor.address", Reason: fmt.Sprintf("0x%x is not a 7-bit address", c.Sensor.Address)}
	}
	if c.IRQ.PollInterval < 0 || c.Wait.PollInterval < 0 || c.Heartbeat < 0 {
		return &logic.ConfigError{Field: "durations", Reason: "must not be negative"}
	}
	return nil
}

// Channels returns the monitored channels.
func (c Config) Channels() []logic.Channel {
	out := make([]logic.Channel, len(c.Sensor.Channels))
	for i, ch := range c.Sensor.Channels {
		out[i] = logic.Channel(ch)
	}
	return out
}

// Detector returns the detector settings.
func (c Config) Detector() touch.Config {
	return touch.Config{
		Address:          c.Sensor.Address,
		TouchThreshold:   c.Sensor.TouchThreshold,
		ReleaseThreshold: c.Sensor.ReleaseThreshold,
		Channels:         c.Channels(),
		Line:             c.IRQ.Line,
		PollInterval:     c.Wait.PollInterval,
	}
}
