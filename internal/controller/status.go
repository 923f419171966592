package controller

import (
	"context"
	"runtime"
	"time"

	"github.com/liminal-dev/liminal-core/internal/link"
	"github.com/liminal-dev/liminal-core/internal/peripheral"
)

// TransportStatus is the transport section of the status report.
type TransportStatus struct {
	Connected bool   `json:"connected"`
	ClientID  string `json:"client_id"`
	Error     string `json:"error,omitempty"`
}

// MemoryStatus is the memory section of the status report, in bytes.
type MemoryStatus struct {
	Free  uint64 `json:"free"`
	Total uint64 `json:"total"`
}

// StatusReport is published retained on the status topic.
type StatusReport struct {
	DeviceID        string `json:"device_id"`
	FirmwareVersion string `json:"firmware_version"`
	// Uptime is in milliseconds.
	Uptime    int64             `json:"uptime"`
	Timestamp time.Time         `json:"timestamp"`
	Link      link.State        `json:"link"`
	Transport TransportStatus   `json:"transport"`
	Memory    MemoryStatus      `json:"memory"`
	Sensors   peripheral.Report `json:"sensors"`
	Actuators peripheral.Report `json:"actuators"`
}

// StatusReport assembles the current report. Call it on the loop.
func (c *Controller) StatusReport(now time.Time) StatusReport {
	firmware := c.cfg.Device.FirmwareVersion
	if firmware == "" {
		firmware = c.version
	}

	report := StatusReport{
		DeviceID:        c.cfg.Device.ID,
		FirmwareVersion: firmware,
		Uptime:          now.Sub(c.started).Milliseconds(),
		Timestamp:       now,
		Transport: TransportStatus{
			Connected: c.transport.IsConnected(),
			ClientID:  c.transport.ClientID(),
		},
		Memory:    readMemory(),
		Sensors:   c.sensors.StatusReport(),
		Actuators: c.actuators.StatusReport(),
	}
	if c.transportErr != nil {
		report.Transport.Error = c.transportErr.Error()
	}
	if c.link != nil {
		report.Link = c.link.State()
	}
	return report
}

func readMemory() MemoryStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStatus{
		Free:  m.HeapSys - m.HeapInuse,
		Total: m.HeapSys,
	}
}

// Status returns the current report, assembled on the loop.
//
// Like the other accessors below, results are only read after Do has
// confirmed the function ran; a cancelled Do returns zero values.
func (c *Controller) Status(ctx context.Context) (StatusReport, error) {
	var report StatusReport
	if err := c.Do(ctx, func(now time.Time) {
		report = c.StatusReport(now)
	}); err != nil {
		return StatusReport{}, err
	}
	return report, nil
}

// Actuator returns the snapshot of one actuator, taken on the loop.
func (c *Controller) Actuator(ctx context.Context, name string) (peripheral.ActuatorSnapshot, error) {
	var (
		snap   peripheral.ActuatorSnapshot
		getErr error
	)
	if err := c.Do(ctx, func(now time.Time) {
		snap, getErr = c.actuators.ActuatorSnapshot(name, now)
	}); err != nil {
		return peripheral.ActuatorSnapshot{}, err
	}
	return snap, getErr
}

// Sensor returns the latest reading of one sensor, taken on the loop.
func (c *Controller) Sensor(ctx context.Context, name string) (peripheral.Reading, error) {
	var (
		reading peripheral.Reading
		getErr  error
	)
	if err := c.Do(ctx, func(time.Time) {
		reading, getErr = c.sensors.SensorData(name)
		reading.DeviceID = c.cfg.Device.ID
	}); err != nil {
		return peripheral.Reading{}, err
	}
	return reading, getErr
}

// ReinitializeSensor re-runs initialization of a sensor, the recovery path
// out of the Error status.
func (c *Controller) ReinitializeSensor(ctx context.Context, name string) error {
	return c.reinitialize(ctx, func(now time.Time) error {
		return c.sensors.Reinitialize(name, now)
	})
}

// ReinitializeActuator re-runs initialization of an actuator.
func (c *Controller) ReinitializeActuator(ctx context.Context, name string) error {
	return c.reinitialize(ctx, func(now time.Time) error {
		return c.actuators.Reinitialize(name, now)
	})
}

func (c *Controller) reinitialize(ctx context.Context, fn func(now time.Time) error) error {
	var opErr error
	if err := c.Do(ctx, func(now time.Time) { opErr = fn(now) }); err != nil {
		return err
	}
	return opErr
}
