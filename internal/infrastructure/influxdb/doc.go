// Package influxdb records liminal telemetry in InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes, and health checks.
//
// Two measurements are written:
//   - sensor_readings: one point per published sensor reading
//   - device_status: one point per periodic status report
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry export is off
//	}
//	defer client.Close()
//
//	client.WriteReading(cfg.Device.ID, reading)
//
// # Error Handling
//
// Connect and HealthCheck return errors directly. Batch write failures are
// asynchronous and reach the callback registered with SetOnError, wrapped in
// ErrWriteFailed. Writes on a closed client are dropped silently.
package influxdb
