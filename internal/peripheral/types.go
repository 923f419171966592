package peripheral

import (
	"time"
)

// Kind identifies what a peripheral is.
type Kind string

// Actuator kinds.
const (
	KindOutput  Kind = "output"
	KindRelay   Kind = "relay"
	KindServo   Kind = "servo"
	KindBuzzer  Kind = "buzzer"
	KindDisplay Kind = "display"
)

// Sensor kinds.
const (
	KindOrientation Kind = "orientation"
	KindTemperature Kind = "temperature"
	KindHumidity    Kind = "humidity"
	KindLight       Kind = "light"
	KindPressure    Kind = "pressure"
)

// Status is the lifecycle state of a peripheral.
type Status string

// Peripheral statuses. StatusReading applies to sensors only.
const (
	StatusUninitialized Status = "uninitialized"
	StatusReady         Status = "ready"
	StatusError         Status = "error"
	StatusBusy          Status = "busy"
	StatusReading       Status = "reading"
)

// Vector3 is a three-axis measurement.
type Vector3 struct {
	X float64
	Y float64
	Z float64
}

// Sample is the latest reading cached by a sensor.
// A zero Timestamp means the sensor has never been sampled.
type Sample struct {
	Timestamp   time.Time
	Accel       Vector3
	Gyro        Vector3
	Temperature float64
}

// Axes is a Vector3 with its unit, as published.
type Axes struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
	Unit string  `json:"unit"`
}

// Reading is the published form of a sensor's latest sample.
// DeviceID is filled in by the publisher.
type Reading struct {
	SensorName      string    `json:"sensor_name"`
	SensorType      Kind      `json:"sensor_type"`
	Model           string    `json:"imu_type,omitempty"`
	DeviceID        string    `json:"device_id,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Accelerometer   *Axes     `json:"accelerometer,omitempty"`
	Gyroscope       *Axes     `json:"gyroscope,omitempty"`
	Temperature     *float64  `json:"temperature,omitempty"`
	TemperatureUnit string    `json:"temperature_unit,omitempty"`
}

// BlinkInfo describes an active cycling schedule.
type BlinkInfo struct {
	OnTimeMs        int64 `json:"on_time"`
	OffTimeMs       int64 `json:"off_time"`
	RemainingCycles int   `json:"remaining_cycles"`
}

// ActuatorSnapshot is the detailed, read-only state of one actuator.
type ActuatorSnapshot struct {
	Name        string     `json:"name"`
	Type        Kind       `json:"type"`
	Pin         int        `json:"pin"`
	State       bool       `json:"state"`
	Brightness  uint8      `json:"brightness"`
	PWMCapable  bool       `json:"pwm_capable"`
	IsBlinking  bool       `json:"is_blinking"`
	ActiveLow   bool       `json:"active_low"`
	Status      Status     `json:"status"`
	LastCommand time.Time  `json:"last_command"`
	Timestamp   time.Time  `json:"timestamp"`
	BlinkInfo   *BlinkInfo `json:"blink_info,omitempty"`
}

// Entry is one peripheral's line in a registry status report.
type Entry struct {
	Name   string `json:"name"`
	Kind   Kind   `json:"type"`
	Status Status `json:"status"`
	// UpdateIntervalMs is set for sensors only.
	UpdateIntervalMs int64 `json:"update_interval,omitempty"`
}

// Report is a registry status snapshot.
type Report struct {
	Count       int       `json:"count"`
	LastUpdate  time.Time `json:"last_update"`
	Peripherals []Entry   `json:"peripherals"`
}
