package peripheral

import (
	"encoding/json"
	"fmt"
	"time"
)

// Default blink parameters applied when a blink command omits them.
const (
	DefaultBlinkOn     = 500 * time.Millisecond
	DefaultBlinkOff    = 500 * time.Millisecond
	DefaultBlinkCycles = -1

	// MaxBlinkTime bounds each blink phase.
	MaxBlinkTime = 24 * time.Hour
)

// Command is a structured actuator command.
//
// Fields are mutually exclusive by convention only. When several are set,
// the first present in the order State, Toggle, Brightness, Blink, StopBlink
// wins and the rest are ignored.
//
// Toggle and StopBlink are presence flags: any JSON value, including null,
// counts as present.
type Command struct {
	State      *bool           `json:"state,omitempty"`
	Toggle     json.RawMessage `json:"toggle,omitempty"`
	Brightness *int            `json:"brightness,omitempty"`
	Blink      *BlinkCommand   `json:"blink,omitempty"`
	StopBlink  json.RawMessage `json:"stop_blink,omitempty"`
}

// BlinkCommand requests timed on/off cycling. Times are milliseconds.
// A negative Cycles value cycles until stopped.
type BlinkCommand struct {
	OnTime  *int64 `json:"on_time,omitempty"`
	OffTime *int64 `json:"off_time,omitempty"`
	Cycles  *int   `json:"cycles,omitempty"`
}

// Validate reports ErrInvalidCommand when a phase time is negative or
// longer than MaxBlinkTime.
func (b BlinkCommand) Validate() error {
	if err := checkPhase("on_time", b.OnTime); err != nil {
		return err
	}
	return checkPhase("off_time", b.OffTime)
}

func checkPhase(field string, ms *int64) error {
	const maxMillis = int64(MaxBlinkTime / time.Millisecond)
	if ms != nil && (*ms < 0 || *ms > maxMillis) {
		return fmt.Errorf("%w: %s %dms outside 0-%d", ErrInvalidCommand, field, *ms, maxMillis)
	}
	return nil
}

// Params resolves the blink schedule, applying defaults for missing fields.
// Call Validate first; out-of-range times overflow.
func (b BlinkCommand) Params() (on, off time.Duration, cycles int) {
	on, off, cycles = DefaultBlinkOn, DefaultBlinkOff, DefaultBlinkCycles
	if b.OnTime != nil {
		on = time.Duration(*b.OnTime) * time.Millisecond
	}
	if b.OffTime != nil {
		off = time.Duration(*b.OffTime) * time.Millisecond
	}
	if b.Cycles != nil {
		cycles = *b.Cycles
	}
	return on, off, cycles
}

// Name returns the field that decides what this command does, or "" when
// no recognised field is present.
func (c Command) Name() string {
	switch {
	case c.State != nil:
		return "state"
	case c.Toggle != nil:
		return "toggle"
	case c.Brightness != nil:
		return "brightness"
	case c.Blink != nil:
		return "blink"
	case c.StopBlink != nil:
		return "stop_blink"
	}
	return ""
}
