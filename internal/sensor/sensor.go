// Package sensor reads the touch bitmask of an MPR121 capacitive sensor.
// The real implementation talks I2C through periph.io.
// The fake implementation allows testing without hardware.
package sensor

import "github.com/sweeney/touch-sensor/internal/logic"

// Source supplies the current touch state of a sensor.
type Source interface {
	// Read returns the touched-channel bitmask. On the MPR121 reading the
	// touch status also releases the IRQ line.
	Read() (logic.Bitmask, error)

	// SetThresholds writes the touch and release thresholds of every channel.
	SetThresholds(touch, release uint8) error

	// Bind selects the device address and brings the device up.
	Bind(addr uint16) error

	// Close releases bus resources.
	Close() error
}

// I2C addresses selected by the ADDR pin.
const (
	AddrGND = 0x5A // default
	AddrVDD = 0x5B
	AddrSDA = 0x5C
	AddrSCL = 0x5D
)

// Default thresholds, as used by common breakout board drivers.
const (
	DefaultTouchThreshold   = 12
	DefaultReleaseThreshold = 6
)

// Registers used by this driver.
const (
	regTouchStatusL = 0x00
	regMHDR         = 0x2B
	regNHDR         = 0x2C
	regNCLR         = 0x2D
	regFDLR         = 0x2E
	regMHDF         = 0x2F
	regNHDF         = 0x30
	regNCLF         = 0x31
	regFDLF         = 0x32
	regNHDT         = 0x33
	regNCLT         = 0x34
	regFDLT         = 0x35
	regTouchTh0     = 0x41
	regReleaseTh0   = 0x42
	regDebounce     = 0x5B
	regConfig1      = 0x5C
	regConfig2      = 0x5D
	regECR          = 0x5E
	regSoftReset    = 0x80
)

const (
	softResetValue = 0x63
	config2Reset   = 0x24 // CONFIG2 power-on value, used to verify the reset
	ecrStop        = 0x00
	ecrRun         = 0x8F // baseline tracking on, all 12 electrodes enabled
)
