package sensor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/sweeney/touch-sensor/internal/logic"
)

// errNotBound is returned by register access before Bind.
var errNotBound = errors.New("device not bound")

// regWrite is one register/value pair of the bring-up sequence.
type regWrite struct {
	reg, val byte
}

// filterSetup configures the baseline filters and sampling after reset.
// Written while the electrodes are stopped.
var filterSetup = []regWrite{
	{regMHDR, 0x01},
	{regNHDR, 0x01},
	{regNCLR, 0x0E},
	{regFDLR, 0x00},
	{regMHDF, 0x01},
	{regNHDF, 0x05},
	{regNCLF, 0x01},
	{regFDLF, 0x00},
	{regNHDT, 0x00},
	{regNCLT, 0x00},
	{regFDLT, 0x00},
	{regDebounce, 0x00},
	{regConfig1, 0x10}, // 16uA charge current
	{regConfig2, 0x20}, // 0.5us encoding, 1ms period
}

// MPR121 is a Source backed by an MPR121 on an I2C bus.
type MPR121 struct {
	mu     sync.Mutex
	bus    i2c.Bus
	closer i2c.BusCloser
	dev    *i2c.Dev
	addr   uint16
}

// OpenMPR121 initializes the host drivers and opens the named I2C bus
// ("" selects the first available bus).
func OpenMPR121(busName string) (*MPR121, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	m := NewMPR121(bus)
	m.closer = bus
	return m, nil
}

// NewMPR121 wraps an already-open bus. The caller keeps ownership of bus.
func NewMPR121(bus i2c.Bus) *MPR121 {
	return &MPR121{bus: bus}
}

// Bind selects the device address, soft-resets the device, verifies the
// reset took effect and starts all 12 electrodes. Thresholds are left at
// their reset values until SetThresholds.
func (m *MPR121) Bind(addr uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dev = &i2c.Dev{Bus: m.bus, Addr: addr}
	m.addr = addr
	if err := m.bringUp(); err != nil {
		m.dev = nil
		return err
	}
	return nil
}

func (m *MPR121) bringUp() error {
	if err := m.write(regSoftReset, softResetValue); err != nil {
		return err
	}
	time.Sleep(time.Millisecond)

	if err := m.write(regECR, ecrStop); err != nil {
		return err
	}
	v, err := m.read(regConfig2)
	if err != nil {
		return err
	}
	if v != config2Reset {
		return &logic.DeviceError{
			Op:   "verify reset",
			Addr: m.addr,
			Err:  fmt.Errorf("CONFIG2 is 0x%02x, want 0x%02x", v, config2Reset),
		}
	}

	for _, w := range filterSetup {
		if err := m.write(w.reg, w.val); err != nil {
			return err
		}
	}
	return m.write(regECR, ecrRun)
}

// SetThresholds writes the same touch and release thresholds to every
// channel. The electrodes are stopped while the registers are written.
func (m *MPR121) SetThresholds(touch, release uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.write(regECR, ecrStop); err != nil {
		return err
	}
	for i := byte(0); i < logic.NumChannels; i++ {
		if err := m.write(regTouchTh0+2*i, touch); err != nil {
			return err
		}
		if err := m.write(regReleaseTh0+2*i, release); err != nil {
			return err
		}
	}
	return m.write(regECR, ecrRun)
}

// Read returns the 12-bit touch status. Reading it clears the IRQ.
func (m *MPR121) Read() (logic.Bitmask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dev == nil {
		return 0, &logic.DeviceError{Op: "read touch status", Addr: m.addr, Err: errNotBound}
	}
	var r [2]byte
	if err := m.dev.Tx([]byte{regTouchStatusL}, r[:]); err != nil {
		return 0, &logic.DeviceError{Op: "read touch status", Addr: m.addr, Err: err}
	}
	status := uint16(r[0]) | uint16(r[1])<<8
	return logic.Bitmask(status) & logic.MaskAll, nil
}

// Close releases the bus if it was opened by OpenMPR121.
func (m *MPR121) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dev = nil
	if m.closer == nil {
		return nil
	}
	err := m.closer.Close()
	m.closer = nil
	if err != nil {
		return fmt.Errorf("close i2c bus: %w", err)
	}
	return nil
}

func (m *MPR121) write(reg, val byte) error {
	if m.dev == nil {
		return &logic.DeviceError{Op: fmt.Sprintf("write register 0x%02x", reg), Addr: m.addr, Err: errNotBound}
	}
	if err := m.dev.Tx([]byte{reg, val}, nil); err != nil {
		return &logic.DeviceError{Op: fmt.Sprintf("write register 0x%02x", reg), Addr: m.addr, Err: err}
	}
	return nil
}

func (m *MPR121) read(reg byte) (byte, error) {
	var r [1]byte
	if err := m.dev.Tx([]byte{reg}, r[:]); err != nil {
		return 0, &logic.DeviceError{Op: fmt.Sprintf("read register 0x%02x", reg), Addr: m.addr, Err: err}
	}
	return r[0], nil
}
