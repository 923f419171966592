package hal

import (
	"errors"
	"fmt"

	"github.com/liminal-dev/liminal-core/internal/infrastructure/config"
)

// Sentinel errors returned by backends.
var (
	ErrNoSuchPin      = errors.New("hal: no such pin")
	ErrPinInUse       = errors.New("hal: pin already claimed")
	ErrNoPWM          = errors.New("hal: pin has no pwm support")
	ErrNoDevice       = errors.New("hal: no device at address")
	ErrBusFault       = errors.New("hal: bus transaction failed")
	ErrClosed         = errors.New("hal: closed")
	ErrUnknownBackend = errors.New("hal: unknown backend")
)

// MaxDuty is the full-scale duty value accepted by Pin.SetDuty.
const MaxDuty = 255

// Pin is a claimed digital output line.
//
// Values passed to Set and SetDuty are physical: polarity inversion is the
// caller's concern.
type Pin interface {
	Number() int
	Set(high bool) error
	// SetDuty drives the pin at duty/MaxDuty. Returns ErrNoPWM when the pin
	// was not opened with PWM.
	SetDuty(duty uint8) error
	PWM() bool
	Close() error
}

// Bus is an I2C bus. Tx writes w then reads len(r) bytes from addr in a
// single transaction.
type Bus interface {
	Tx(addr uint16, w, r []byte) error
	Close() error
}

// Backend hands out pins and the I2C bus.
type Backend interface {
	Name() string
	// OpenOutput claims pin as an output driven low.
	OpenOutput(pin int, pwm bool) (Pin, error)
	// I2C returns the shared bus. The backend owns it; callers must not close it.
	I2C() (Bus, error)
	Close() error
}

// Open creates the backend selected by cfg.Backend.
func Open(cfg config.HALConfig) (Backend, error) {
	switch cfg.Backend {
	case "sim", "":
		return NewSim(), nil
	case "linux":
		return openLinux(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// PWMCapablePin reports whether pin supports duty-cycle output on the
// reference board. Pins 0-33 do, except the flash pins 6-11.
func PWMCapablePin(pin int) bool {
	if pin < 0 || pin > 33 {
		return false
	}
	return pin < 6 || pin > 11
}

// Scan probes every 7-bit address with a one byte read and returns the
// addresses that answered.
func Scan(bus Bus) []uint16 {
	var found []uint16
	buf := make([]byte, 1)
	for addr := uint16(1); addr < 127; addr++ {
		if err := bus.Tx(addr, nil, buf); err == nil {
			found = append(found, addr)
		}
	}
	return found
}
