package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/liminal-dev/liminal-core/internal/peripheral"
)

// Measurement names.
const (
	measurementSensor = "sensor_readings"
	measurementDevice = "device_status"
)

// WriteReading records one sensor reading, timestamped with the sample time.
//
// Tags: device_id, sensor, sensor_type, and model when known.
// Fields: accel_{x,y,z}, gyro_{x,y,z}, temperature, whichever are present.
func (c *Client) WriteReading(deviceID string, r peripheral.Reading) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"device_id":   deviceID,
		"sensor":      r.SensorName,
		"sensor_type": string(r.SensorType),
	}
	if r.Model != "" {
		tags["model"] = r.Model
	}

	fields := make(map[string]any)
	if a := r.Accelerometer; a != nil {
		fields["accel_x"], fields["accel_y"], fields["accel_z"] = a.X, a.Y, a.Z
	}
	if g := r.Gyroscope; g != nil {
		fields["gyro_x"], fields["gyro_y"], fields["gyro_z"] = g.X, g.Y, g.Z
	}
	if r.Temperature != nil {
		fields["temperature"] = *r.Temperature
	}
	if len(fields) == 0 {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurementSensor, tags, fields, r.Timestamp))
}

// DeviceHealth is the subset of the status report kept as a time series.
type DeviceHealth struct {
	Uptime          time.Duration
	MemoryFree      uint64
	MemoryTotal     uint64
	ReadyActuators  int
	ReadySensors    int
	LinkConnected   bool
	BrokerConnected bool
}

// WriteDeviceHealth records one status report sample.
func (c *Client) WriteDeviceHealth(deviceID string, h DeviceHealth, at time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		measurementDevice,
		map[string]string{"device_id": deviceID},
		map[string]any{
			"uptime_s":         int64(h.Uptime.Seconds()),
			"memory_free":      h.MemoryFree,
			"memory_total":     h.MemoryTotal,
			"ready_actuators":  h.ReadyActuators,
			"ready_sensors":    h.ReadySensors,
			"link_connected":   h.LinkConnected,
			"broker_connected": h.BrokerConnected,
		},
		at,
	))
}
