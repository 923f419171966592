package peripheral

import (
	"fmt"
	"time"

	"github.com/liminal-dev/liminal-core/internal/hal"
)

// OutputConfig describes a binary or dimmable output.
type OutputConfig struct {
	Name      string
	Kind      Kind
	Pin       int
	ActiveLow bool
	// PWM enables brightness control.
	PWM bool
}

// Output is a binary output (LED, relay, buzzer) with optional brightness
// control and timed on/off cycling.
//
// While not cycling, the pin reflects state and brightness. While cycling,
// the pin reflects the cycle phase; state and brightness are kept and
// reasserted when cycling ends.
type Output struct {
	name      string
	kind      Kind
	pinNumber int
	activeLow bool
	pwm       bool

	pins PinOpener
	pin  hal.Pin

	status      Status
	state       bool
	brightness  uint8
	lastCommand time.Time

	cycling     bool
	onDuration  time.Duration
	offDuration time.Duration
	remaining   int
	phaseOn     bool
	phaseStart  time.Time
}

var _ Actuator = (*Output)(nil)

// NewOutput creates an uninitialized output. The pin is claimed on Initialize.
func NewOutput(cfg OutputConfig, pins PinOpener) *Output {
	kind := cfg.Kind
	if kind == "" {
		kind = KindOutput
	}
	return &Output{
		name:       cfg.Name,
		kind:       kind,
		pinNumber:  cfg.Pin,
		activeLow:  cfg.ActiveLow,
		pwm:        cfg.PWM,
		pins:       pins,
		status:     StatusUninitialized,
		brightness: hal.MaxDuty,
	}
}

// Name returns "" for a nil *Output so Registry.Add can reject it.
func (o *Output) Name() string {
	if o == nil {
		return ""
	}
	return o.name
}

func (o *Output) Kind() Kind     { return o.kind }
func (o *Output) Status() Status { return o.status }
func (o *Output) Cycling() bool  { return o.cycling }

// State returns the logical on/off state, independent of any cycle phase.
func (o *Output) State() bool { return o.state }

// Initialize claims the pin and drives it off.
func (o *Output) Initialize(now time.Time) error {
	o.cycling = false
	o.state = false

	if o.pin == nil {
		pin, err := o.pins.OpenOutput(o.pinNumber, o.pwm)
		if err != nil {
			o.status = StatusError
			return fmt.Errorf("%w: claiming pin %d: %v", ErrBusIO, o.pinNumber, err)
		}
		o.pin = pin
	}

	if err := o.drive(false); err != nil {
		return err
	}
	o.status = StatusReady
	return nil
}

// HandleCommand applies the first recognised field of cmd.
// The output is Busy for the duration of the call. The last-command time
// only moves when the command is applied.
func (o *Output) HandleCommand(cmd Command, now time.Time) error {
	if o.status != StatusReady {
		return fmt.Errorf("%w: %s is %s", ErrNotReady, o.name, o.status)
	}

	o.status = StatusBusy
	err := o.apply(cmd, now)
	if err == nil {
		o.lastCommand = now
	}
	if o.status == StatusBusy {
		o.status = StatusReady
	}
	return err
}

func (o *Output) apply(cmd Command, now time.Time) error {
	switch {
	case cmd.State != nil:
		return o.setState(*cmd.State)
	case cmd.Toggle != nil:
		return o.setState(!o.state)
	case cmd.Brightness != nil:
		return o.setBrightness(*cmd.Brightness)
	case cmd.Blink != nil:
		if err := cmd.Blink.Validate(); err != nil {
			return err
		}
		on, off, cycles := cmd.Blink.Params()
		return o.startCycling(on, off, cycles, now)
	case cmd.StopBlink != nil:
		return o.stopCycling()
	default:
		return ErrUnknownCommand
	}
}

// setState ends any cycle without reasserting the old state, then drives v.
func (o *Output) setState(v bool) error {
	o.cycling = false
	o.state = v
	return o.drive(v)
}

func (o *Output) setBrightness(b int) error {
	if !o.pwm {
		return fmt.Errorf("%w: %s on pin %d has no brightness control", ErrUnsupported, o.name, o.pinNumber)
	}
	if b < 0 || b > hal.MaxDuty {
		return fmt.Errorf("%w: brightness %d outside 0-255", ErrInvalidCommand, b)
	}

	o.brightness = uint8(b)
	if o.state && !o.cycling {
		return o.drive(true)
	}
	return nil
}

func (o *Output) startCycling(on, off time.Duration, cycles int, now time.Time) error {
	o.cycling = true
	o.onDuration = on
	o.offDuration = off
	o.remaining = cycles
	o.phaseOn = true
	o.phaseStart = now
	return o.drive(true)
}

func (o *Output) stopCycling() error {
	if !o.cycling {
		return nil
	}
	o.cycling = false
	return o.drive(o.state)
}

// Advance flips the cycle phase when its duration has elapsed. A cycle is
// complete on the off-to-on edge; once the count reaches zero the output
// returns to its logical state.
func (o *Output) Advance(now time.Time) {
	if !o.cycling {
		return
	}

	elapsed := now.Sub(o.phaseStart)
	switch {
	case o.phaseOn && elapsed >= o.onDuration:
		o.phaseOn = false
	case !o.phaseOn && elapsed >= o.offDuration:
		o.phaseOn = true
		if o.remaining > 0 {
			o.remaining--
		}
	default:
		return
	}

	o.phaseStart = now
	if err := o.drive(o.phaseOn); err != nil {
		o.cycling = false
		return
	}

	if o.remaining == 0 {
		_ = o.stopCycling()
	}
}

// drive writes a logical level to the pin. A logical "on" below full
// brightness on a PWM pin is a scaled write; everything else is a plain
// level. Polarity inversion is applied last.
func (o *Output) drive(on bool) error {
	var err error
	if on && o.pwm && o.brightness < hal.MaxDuty {
		duty := o.brightness
		if o.activeLow {
			duty = hal.MaxDuty - duty
		}
		err = o.pin.SetDuty(duty)
	} else {
		err = o.pin.Set(on != o.activeLow)
	}

	if err != nil {
		o.status = StatusError
		return fmt.Errorf("%w: writing pin %d: %v", ErrBusIO, o.pinNumber, err)
	}
	return nil
}

// Snapshot returns the detailed state of the output. It does not mutate anything.
func (o *Output) Snapshot(now time.Time) ActuatorSnapshot {
	s := ActuatorSnapshot{
		Name:        o.name,
		Type:        o.kind,
		Pin:         o.pinNumber,
		State:       o.state,
		Brightness:  o.brightness,
		PWMCapable:  o.pwm,
		IsBlinking:  o.cycling,
		ActiveLow:   o.activeLow,
		Status:      o.status,
		LastCommand: o.lastCommand,
		Timestamp:   now,
	}
	if o.cycling {
		s.BlinkInfo = &BlinkInfo{
			OnTimeMs:        o.onDuration.Milliseconds(),
			OffTimeMs:       o.offDuration.Milliseconds(),
			RemainingCycles: o.remaining,
		}
	}
	return s
}

func (o *Output) Close() error {
	if o.pin == nil {
		return nil
	}
	err := o.pin.Close()
	o.pin = nil
	o.status = StatusUninitialized
	return err
}
