package logic

import (
	"errors"
	"fmt"
)

// ErrLineBound is returned when a notification line already has a subscriber.
var ErrLineBound = errors.New("notification line already bound")

// DeviceError reports a failed bus transaction.
type DeviceError struct {
	Op   string // e.g. "read touch status", "write register 0x41"
	Addr uint16
	Err  error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device 0x%02x: %s: %v", e.Addr, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// ConfigError reports invalid setup.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// HandlerError reports a custom handler that failed or panicked.
type HandlerError struct {
	Channel Channel
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for channel %d: %v", e.Channel, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
