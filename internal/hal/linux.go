//go:build linux

package hal

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	gpiocdev "github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/liminal-dev/liminal-core/internal/infrastructure/config"
)

// pwmFrequency is the carrier used for every PWM output.
const pwmFrequency = physic.KiloHertz

// Linux drives plain outputs through the GPIO character device and PWM
// outputs and I2C through periph.io drivers.
type Linux struct {
	mu      sync.Mutex
	chip    *gpiocdev.Chip
	i2cName string
	bus     i2c.BusCloser
	closed  bool
}

func openLinux(cfg config.HALConfig) (Backend, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialising periph host drivers: %w", err)
	}

	chip, err := gpiocdev.NewChip(cfg.GPIOChip)
	if err != nil {
		return nil, fmt.Errorf("opening gpio chip %s: %w", cfg.GPIOChip, err)
	}

	return &Linux{chip: chip, i2cName: cfg.I2CBus}, nil
}

func (l *Linux) Name() string { return "linux" }

func (l *Linux) OpenOutput(pin int, pwm bool) (Pin, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	if pwm {
		p := gpioreg.ByName(strconv.Itoa(pin))
		if p == nil {
			return nil, fmt.Errorf("%w: %d", ErrNoSuchPin, pin)
		}
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("configuring pwm pin %d: %w", pin, err)
		}
		return &periphPin{number: pin, pin: p}, nil
	}

	line, err := l.chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("requesting line %d: %w", pin, err)
	}
	return &cdevPin{number: pin, line: line}, nil
}

func (l *Linux) I2C() (Bus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	if l.bus == nil {
		bus, err := i2creg.Open(l.i2cName)
		if err != nil {
			return nil, fmt.Errorf("opening i2c bus %q: %w", l.i2cName, err)
		}
		l.bus = bus
	}
	return sharedBus{l.bus}, nil
}

func (l *Linux) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	if l.bus != nil {
		errs = append(errs, l.bus.Close())
	}
	errs = append(errs, l.chip.Close())
	return errors.Join(errs...)
}

// sharedBus hides Close so peripherals cannot close the backend's bus.
type sharedBus struct {
	bus i2c.Bus
}

func (b sharedBus) Tx(addr uint16, w, r []byte) error {
	if err := b.bus.Tx(addr, w, r); err != nil {
		return fmt.Errorf("%w: %v", ErrBusFault, err)
	}
	return nil
}

func (b sharedBus) Close() error { return nil }

type cdevPin struct {
	number int
	line   *gpiocdev.Line
}

func (p *cdevPin) Number() int { return p.number }
func (p *cdevPin) PWM() bool   { return false }

func (p *cdevPin) Set(high bool) error {
	v := 0
	if high {
		v = 1
	}
	return p.line.SetValue(v)
}

func (p *cdevPin) SetDuty(uint8) error { return ErrNoPWM }

func (p *cdevPin) Close() error { return p.line.Close() }

type periphPin struct {
	number int
	pin    gpio.PinIO
}

func (p *periphPin) Number() int { return p.number }
func (p *periphPin) PWM() bool   { return true }

func (p *periphPin) Set(high bool) error {
	return p.pin.Out(gpio.Level(high))
}

func (p *periphPin) SetDuty(duty uint8) error {
	d := gpio.Duty(int64(duty) * int64(gpio.DutyMax) / MaxDuty)
	return p.pin.PWM(d, pwmFrequency)
}

func (p *periphPin) Close() error { return p.pin.Halt() }
