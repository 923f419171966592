package peripheral

import (
	"encoding/binary"
	"fmt"
	"slices"
	"time"

	"github.com/liminal-dev/liminal-core/internal/hal"
)

// IMUModel is the chip variant found by the identity probe.
type IMUModel string

// Supported IMU variants.
const (
	ModelUnknown IMUModel = "Unknown"
	ModelMPU6050 IMUModel = "MPU6050"
	ModelMPU6500 IMUModel = "MPU6500"
	ModelMPU9250 IMUModel = "MPU9250"
)

// DefaultIMUAddress is the MPU family address with AD0 low.
const DefaultIMUAddress = 0x68

// MPU register map.
const (
	regConfig      = 0x1A
	regGyroConfig  = 0x1B
	regAccelConfig = 0x1C
	regAccelXOutH  = 0x3B
	regPwrMgmt1    = 0x6B
	regWhoAmI      = 0x75
)

// Register values written during configuration.
const (
	pwrWake       = 0x00
	accelRange8G  = 0x10
	gyroRange500  = 0x08
	dlpf21Hz      = 0x04
	accelLSBPerG  = 4096.0
	gyroLSBPerDPS = 65.5
	standardG     = 9.80665
)

// whoAmIModels maps WHO_AM_I values to variants. Anything else is a hard failure.
var whoAmIModels = map[byte]IMUModel{
	0x68: ModelMPU6050,
	0x70: ModelMPU6500,
	0x71: ModelMPU9250,
}

// IMUConfig describes an orientation sensor on the I2C bus.
type IMUConfig struct {
	Name     string
	Address  uint16
	Interval time.Duration
}

// IMU is a 6-axis orientation sensor from the MPU family. The exact variant
// is detected at initialization from the WHO_AM_I register.
//
// MPU6050 acceleration is reported in m/s², the other variants in g.
type IMU struct {
	name     string
	address  uint16
	interval time.Duration

	buses  BusOpener
	bus    hal.Bus
	logger Logger

	status Status
	model  IMUModel
	last   Sample
}

var _ Sensor = (*IMU)(nil)

// NewIMU creates an uninitialized IMU.
func NewIMU(cfg IMUConfig, buses BusOpener) *IMU {
	addr := cfg.Address
	if addr == 0 {
		addr = DefaultIMUAddress
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return &IMU{
		name:     cfg.Name,
		address:  addr,
		interval: interval,
		buses:    buses,
		logger:   noopLogger{},
		status:   StatusUninitialized,
		model:    ModelUnknown,
	}
}

// SetLogger sets the logger used for probe diagnostics.
func (m *IMU) SetLogger(logger Logger) {
	m.logger = logger
}

// Name returns "" for a nil *IMU so Registry.Add can reject it.
func (m *IMU) Name() string {
	if m == nil {
		return ""
	}
	return m.name
}

func (m *IMU) Kind() Kind              { return KindOrientation }
func (m *IMU) Status() Status          { return m.status }
func (m *IMU) Interval() time.Duration { return m.interval }
func (m *IMU) LastSample() Sample      { return m.last }

// Model returns the detected variant, ModelUnknown before a successful probe.
func (m *IMU) Model() IMUModel { return m.model }

// Initialize scans the bus, probes the identity register and configures
// the chip for ±8 g and ±500 °/s.
func (m *IMU) Initialize(now time.Time) error {
	m.status = StatusUninitialized
	m.model = ModelUnknown

	if m.bus == nil {
		bus, err := m.buses.I2C()
		if err != nil {
			return m.fail(fmt.Errorf("%w: opening i2c: %v", ErrBusIO, err))
		}
		m.bus = bus
	}

	found := hal.Scan(m.bus)
	m.logger.Debug("i2c scan complete", "sensor", m.name, "devices", len(found))
	if !slices.Contains(found, m.address) {
		return m.fail(fmt.Errorf("%w: no device at 0x%02x (%d found)", ErrBusIO, m.address, len(found)))
	}

	id := make([]byte, 1)
	if err := m.bus.Tx(m.address, []byte{regWhoAmI}, id); err != nil {
		return m.fail(fmt.Errorf("%w: reading WHO_AM_I: %v", ErrBusIO, err))
	}
	model, ok := whoAmIModels[id[0]]
	if !ok {
		return m.fail(fmt.Errorf("%w: WHO_AM_I 0x%02x", ErrUnknownDevice, id[0]))
	}
	m.logger.Info("imu detected", "sensor", m.name, "model", string(model), "address", m.address)

	writes := [][]byte{
		{regPwrMgmt1, pwrWake},
		{regAccelConfig, accelRange8G},
		{regGyroConfig, gyroRange500},
	}
	if model == ModelMPU6050 {
		writes = append(writes, []byte{regConfig, dlpf21Hz})
	}
	for _, w := range writes {
		if err := m.bus.Tx(m.address, w, nil); err != nil {
			return m.fail(fmt.Errorf("%w: writing register 0x%02x: %v", ErrBusIO, w[0], err))
		}
	}

	m.model = model
	m.status = StatusReady
	return nil
}

func (m *IMU) fail(err error) error {
	m.status = StatusError
	return err
}

// ReadData burst-reads acceleration, temperature and angular rate.
func (m *IMU) ReadData(now time.Time) error {
	if m.status != StatusReady {
		return fmt.Errorf("%w: %s is %s", ErrNotReady, m.name, m.status)
	}
	m.status = StatusReading

	buf := make([]byte, 14)
	if err := m.bus.Tx(m.address, []byte{regAccelXOutH}, buf); err != nil {
		return m.fail(fmt.Errorf("%w: reading %s: %v", ErrBusIO, m.name, err))
	}

	raw := func(i int) float64 { return float64(int16(binary.BigEndian.Uint16(buf[i*2:]))) }

	accelScale := 1 / accelLSBPerG
	if m.model == ModelMPU6050 {
		accelScale *= standardG
	}

	var temp float64
	if m.model == ModelMPU6050 {
		temp = raw(3)/340.0 + 36.53
	} else {
		temp = raw(3)/333.87 + 21.0
	}

	m.last = Sample{
		Timestamp:   now,
		Accel:       Vector3{X: raw(0) * accelScale, Y: raw(1) * accelScale, Z: raw(2) * accelScale},
		Gyro:        Vector3{X: raw(4) / gyroLSBPerDPS, Y: raw(5) / gyroLSBPerDPS, Z: raw(6) / gyroLSBPerDPS},
		Temperature: temp,
	}
	m.status = StatusReady
	return nil
}

// AccelUnit returns the unit of published acceleration values.
func (m *IMU) AccelUnit() string {
	if m.model == ModelMPU6050 {
		return "m/s²"
	}
	return "g"
}

// Reading returns the latest sample in published form.
func (m *IMU) Reading() Reading {
	temp := m.last.Temperature
	return Reading{
		SensorName: m.name,
		SensorType: KindOrientation,
		Model:      string(m.model),
		Timestamp:  m.last.Timestamp,
		Accelerometer: &Axes{
			X: m.last.Accel.X, Y: m.last.Accel.Y, Z: m.last.Accel.Z,
			Unit: m.AccelUnit(),
		},
		Gyroscope: &Axes{
			X: m.last.Gyro.X, Y: m.last.Gyro.Y, Z: m.last.Gyro.Z,
			Unit: "°/s",
		},
		Temperature:     &temp,
		TemperatureUnit: "°C",
	}
}

// Close drops the bus reference. The bus belongs to the backend.
func (m *IMU) Close() error {
	m.bus = nil
	m.status = StatusUninitialized
	return nil
}
