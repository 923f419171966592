package peripheral

import (
	"time"

	"github.com/liminal-dev/liminal-core/internal/hal"
)

// Logger defines the logging interface used by registries and peripherals.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Peripheral is the capability set shared by actuators and sensors.
//
// Name and Kind never change after construction. Status changes only
// through Initialize and the variant's own operations.
type Peripheral interface {
	Name() string
	Kind() Kind
	Status() Status
	// Initialize brings the peripheral to Ready or leaves it in Error.
	// Calling it again re-runs initialization from scratch.
	Initialize(now time.Time) error
	// Close releases hardware resources.
	Close() error
}

// Actuator is a commandable peripheral. It produces no periodic data.
type Actuator interface {
	Peripheral
	// HandleCommand applies cmd. It fails with ErrNotReady, leaving state
	// untouched, unless the actuator is Ready.
	HandleCommand(cmd Command, now time.Time) error
	// Cycling reports whether a timed cycle is in progress.
	Cycling() bool
	// Advance moves the cycling state machine to now.
	Advance(now time.Time)
	Snapshot(now time.Time) ActuatorSnapshot
}

// Sensor is a periodically sampled peripheral. It is not commandable.
type Sensor interface {
	Peripheral
	Interval() time.Duration
	// ReadData samples the hardware and caches the result. A failed read
	// leaves the sensor in Error with the previous sample intact.
	ReadData(now time.Time) error
	LastSample() Sample
	Reading() Reading
}

// PinOpener hands out output pins. hal.Backend satisfies it.
type PinOpener interface {
	OpenOutput(pin int, pwm bool) (hal.Pin, error)
}

// BusOpener hands out the I2C bus. hal.Backend satisfies it.
type BusOpener interface {
	I2C() (hal.Bus, error)
}

// Due reports whether s should be sampled at now: it must be Ready and
// either never sampled or sampled at least Interval ago.
func Due(s Sensor, now time.Time) bool {
	if s.Status() != StatusReady {
		return false
	}
	last := s.LastSample().Timestamp
	return last.IsZero() || now.Sub(last) >= s.Interval()
}
