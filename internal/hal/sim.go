package hal

import (
	"fmt"
	"sync"
)

// Write is one recorded hardware write on a SimPin.
type Write struct {
	// Duty is MaxDuty for Set(true), 0 for Set(false), else the SetDuty value.
	Duty uint8
	// Scaled is true when the write came from SetDuty.
	Scaled bool
}

// High reports whether the write left the line at a non-zero level.
func (w Write) High() bool { return w.Duty > 0 }

// SimPin is an in-memory output pin that records every write.
type SimPin struct {
	mu      sync.Mutex
	number  int
	pwm     bool
	closed  bool
	failErr error
	writes  []Write
}

func (p *SimPin) Number() int { return p.number }

func (p *SimPin) PWM() bool { return p.pwm }

func (p *SimPin) Set(high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check(); err != nil {
		return err
	}
	w := Write{}
	if high {
		w.Duty = MaxDuty
	}
	p.writes = append(p.writes, w)
	return nil
}

func (p *SimPin) SetDuty(duty uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.pwm {
		return ErrNoPWM
	}
	if err := p.check(); err != nil {
		return err
	}
	p.writes = append(p.writes, Write{Duty: duty, Scaled: true})
	return nil
}

func (p *SimPin) check() error {
	if p.closed {
		return ErrClosed
	}
	if p.failErr != nil {
		return p.failErr
	}
	return nil
}

func (p *SimPin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *SimPin) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Writes returns a copy of the write history.
func (p *SimPin) Writes() []Write {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Write(nil), p.writes...)
}

// Last returns the most recent write and whether any write happened.
func (p *SimPin) Last() (Write, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.writes) == 0 {
		return Write{}, false
	}
	return p.writes[len(p.writes)-1], true
}

// ResetWrites clears the write history.
func (p *SimPin) ResetWrites() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = nil
}

// FailWith makes subsequent writes return err. Pass nil to recover.
func (p *SimPin) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failErr = err
}

// SimDevice is a register-file I2C target. A write sets the register
// pointer from its first byte and stores the remaining bytes; reads
// continue from the pointer. The pointer auto-increments.
type SimDevice struct {
	mu       sync.Mutex
	regs     [256]byte
	ptr      byte
	failNext int
}

// SetRegister stores value at reg.
func (d *SimDevice) SetRegister(reg, value byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[reg] = value
}

// SetRegister16 stores a big-endian 16-bit value at reg and reg+1.
func (d *SimDevice) SetRegister16(reg byte, value int16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[reg] = byte(uint16(value) >> 8)
	d.regs[reg+1] = byte(uint16(value))
}

// Register returns the value stored at reg.
func (d *SimDevice) Register(reg byte) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[reg]
}

// FailNext makes the next n transactions fail with ErrBusFault.
func (d *SimDevice) FailNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = n
}

func (d *SimDevice) tx(w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failNext > 0 {
		d.failNext--
		return ErrBusFault
	}
	if len(w) > 0 {
		d.ptr = w[0]
		for _, b := range w[1:] {
			d.regs[d.ptr] = b
			d.ptr++
		}
	}
	for i := range r {
		r[i] = d.regs[d.ptr]
		d.ptr++
	}
	return nil
}

// SimBus is an in-memory I2C bus holding SimDevices by address.
type SimBus struct {
	mu      sync.Mutex
	devices map[uint16]*SimDevice
}

// NewSimBus creates an empty bus.
func NewSimBus() *SimBus {
	return &SimBus{devices: make(map[uint16]*SimDevice)}
}

// Attach places a new device at addr and returns it.
func (b *SimBus) Attach(addr uint16) *SimDevice {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := &SimDevice{}
	b.devices[addr] = d
	return d
}

func (b *SimBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	d, ok := b.devices[addr]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w 0x%02x", ErrNoDevice, addr)
	}
	return d.tx(w, r)
}

func (b *SimBus) Close() error { return nil }

// Sim is the in-memory backend. Every pin number is valid; PWM is granted
// whenever requested.
type Sim struct {
	mu   sync.Mutex
	pins map[int]*SimPin
	bus  *SimBus
}

// NewSim creates a simulated backend with an empty I2C bus.
func NewSim() *Sim {
	return &Sim{
		pins: make(map[int]*SimPin),
		bus:  NewSimBus(),
	}
}

func (s *Sim) Name() string { return "sim" }

func (s *Sim) OpenOutput(pin int, pwm bool) (Pin, error) {
	if pin < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchPin, pin)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pins[pin]; ok && !p.isClosed() {
		return nil, fmt.Errorf("%w: %d", ErrPinInUse, pin)
	}
	p := &SimPin{number: pin, pwm: pwm}
	s.pins[pin] = p
	return p, nil
}

// Pin returns the simulated pin claimed at number, or nil.
func (s *Sim) Pin(number int) *SimPin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pins[number]
}

func (s *Sim) I2C() (Bus, error) { return s.bus, nil }

// Bus returns the simulated I2C bus for attaching devices.
func (s *Sim) Bus() *SimBus { return s.bus }

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pins {
		_ = p.Close()
	}
	return nil
}
