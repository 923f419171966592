package controller

import (
	"fmt"

	"github.com/liminal-dev/liminal-core/internal/hal"
	"github.com/liminal-dev/liminal-core/internal/infrastructure/config"
	"github.com/liminal-dev/liminal-core/internal/peripheral"
)

// BuildRegistries creates one registry per peripheral class from the
// configured actuators and sensors. Peripherals are not initialized.
func BuildRegistries(cfg *config.Config, backend hal.Backend, logger peripheral.Logger) (*peripheral.Registry[peripheral.Actuator], *peripheral.Registry[peripheral.Sensor], error) {
	actuators := peripheral.NewRegistry[peripheral.Actuator]("actuators")
	sensors := peripheral.NewRegistry[peripheral.Sensor]("sensors")
	if logger != nil {
		actuators.SetLogger(logger)
		sensors.SetLogger(logger)
	}

	for _, a := range cfg.Actuators {
		pwm := hal.PWMCapablePin(a.Pin)
		if a.PWM != nil {
			pwm = *a.PWM
		}
		out := peripheral.NewOutput(peripheral.OutputConfig{
			Name:      a.Name,
			Kind:      actuatorKind(a.Kind),
			Pin:       a.Pin,
			ActiveLow: a.ActiveLow,
			PWM:       pwm,
		}, backend)
		if err := actuators.Add(out); err != nil {
			return nil, nil, fmt.Errorf("actuator %q: %w", a.Name, err)
		}
	}

	for _, s := range cfg.Sensors {
		switch s.Kind {
		case config.SensorKindOrientation:
			imu := peripheral.NewIMU(peripheral.IMUConfig{
				Name:     s.Name,
				Address:  s.Address,
				Interval: s.Interval,
			}, backend)
			if logger != nil {
				imu.SetLogger(logger)
			}
			if err := sensors.Add(imu); err != nil {
				return nil, nil, fmt.Errorf("sensor %q: %w", s.Name, err)
			}
		default:
			return nil, nil, fmt.Errorf("sensor %q: %w: kind %q", s.Name, peripheral.ErrUnsupported, s.Kind)
		}
	}

	return actuators, sensors, nil
}

func actuatorKind(kind string) peripheral.Kind {
	switch kind {
	case config.ActuatorKindRelay:
		return peripheral.KindRelay
	case config.ActuatorKindBuzzer:
		return peripheral.KindBuzzer
	default:
		return peripheral.KindOutput
	}
}
