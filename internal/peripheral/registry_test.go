package peripheral

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/liminal-dev/liminal-core/internal/hal"
)

// fakeSensor counts reads and can be told to fail initialization or reads.
type fakeSensor struct {
	name     string
	interval time.Duration
	status   Status
	last     Sample
	reads    int
	initErr  error
	readErr  error
}

func (f *fakeSensor) Name() string            { return f.name }
func (f *fakeSensor) Kind() Kind              { return KindTemperature }
func (f *fakeSensor) Status() Status          { return f.status }
func (f *fakeSensor) Interval() time.Duration { return f.interval }
func (f *fakeSensor) LastSample() Sample      { return f.last }
func (f *fakeSensor) Close() error            { return nil }

func (f *fakeSensor) Reading() Reading {
	return Reading{SensorName: f.name, SensorType: KindTemperature, Timestamp: f.last.Timestamp}
}

func (f *fakeSensor) Initialize(time.Time) error {
	if f.initErr != nil {
		f.status = StatusError
		return f.initErr
	}
	f.status = StatusReady
	return nil
}

func (f *fakeSensor) ReadData(now time.Time) error {
	f.reads++
	if f.readErr != nil {
		f.status = StatusError
		return f.readErr
	}
	f.last = Sample{Timestamp: now, Temperature: 20}
	return nil
}

func TestRegistry_AddUnique(t *testing.T) {
	r := NewRegistry[Sensor]("sensors")

	if err := r.Add(&fakeSensor{name: "a"}); err != nil {
		t.Fatalf("Add(a) error = %v", err)
	}
	if err := r.Add(&fakeSensor{name: "b"}); err != nil {
		t.Fatalf("Add(b) error = %v", err)
	}
	if err := r.Add(&fakeSensor{name: "a"}); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate Add error = %v, want ErrExists", err)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Names() = %v, want [a b]", got)
	}

	var nilSensor Sensor
	if err := r.Add(nilSensor); !errors.Is(err, ErrNilPeripheral) {
		t.Errorf("Add(nil) error = %v, want ErrNilPeripheral", err)
	}
}

func TestRegistry_AddRejectsTypedNilAndUnnamed(t *testing.T) {
	actuators := NewRegistry[Actuator]("actuators")
	sensors := NewRegistry[Sensor]("sensors")

	tests := []struct {
		name string
		add  func() error
	}{
		{"typed nil output", func() error { return actuators.Add((*Output)(nil)) }},
		{"typed nil imu", func() error { return sensors.Add((*IMU)(nil)) }},
		{"unnamed output", func() error { return actuators.Add(NewOutput(OutputConfig{Pin: 2}, hal.NewSim())) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.add(); !errors.Is(err, ErrNilPeripheral) {
				t.Errorf("Add() error = %v, want ErrNilPeripheral", err)
			}
		})
	}
	if actuators.Len() != 0 || sensors.Len() != 0 {
		t.Errorf("Len() = %d, %d; want 0, 0", actuators.Len(), sensors.Len())
	}
}

func TestRegistry_RemoveAndGet(t *testing.T) {
	r := NewRegistry[Sensor]("sensors")
	s := &fakeSensor{name: "a"}
	_ = r.Add(s)
	_ = r.Add(&fakeSensor{name: "b"})

	got, err := r.Get("a")
	if err != nil || got != Sensor(s) {
		t.Fatalf("Get(a) = %v, %v", got, err)
	}

	removed, err := r.Remove("a")
	if err != nil {
		t.Fatalf("Remove(a) error = %v", err)
	}
	if removed != Sensor(s) {
		t.Error("Remove returned a different peripheral")
	}
	if _, err := r.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Remove error = %v, want ErrNotFound", err)
	}
	if _, err := r.Remove("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove error = %v, want ErrNotFound", err)
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("Names() = %v, want [b]", got)
	}
}

func TestRegistry_SensorDueCheck(t *testing.T) {
	r := NewRegistry[Sensor]("sensors")
	s := &fakeSensor{name: "temp", interval: time.Second, status: StatusReady}
	_ = r.Add(s)

	// Never sampled: due immediately.
	r.UpdateAll(t0)
	if s.reads != 1 {
		t.Fatalf("reads after first pass = %d, want 1", s.reads)
	}

	r.UpdateAll(t0.Add(999 * time.Millisecond))
	if s.reads != 1 {
		t.Errorf("sensor sampled at 999ms, want not due")
	}

	r.UpdateAll(t0.Add(1000 * time.Millisecond))
	if s.reads != 2 {
		t.Errorf("sensor not sampled at 1000ms, want due")
	}

	if !r.LastUpdate().Equal(t0.Add(time.Second)) {
		t.Errorf("LastUpdate() = %v", r.LastUpdate())
	}
}

func TestRegistry_ErrorSensorSkipped(t *testing.T) {
	r := NewRegistry[Sensor]("sensors")
	bad := &fakeSensor{name: "bad", interval: time.Second, status: StatusReady, readErr: ErrBusIO}
	good := &fakeSensor{name: "good", interval: time.Second, status: StatusReady}
	_ = r.Add(bad)
	_ = r.Add(good)

	r.UpdateAll(t0)
	r.UpdateAll(t0.Add(5 * time.Second))

	if bad.reads != 1 {
		t.Errorf("failed sensor read %d times, want 1", bad.reads)
	}
	if good.reads != 2 {
		t.Errorf("healthy sensor read %d times, want 2", good.reads)
	}

	bad.readErr = nil
	if err := r.Reinitialize("bad", t0); err != nil {
		t.Fatalf("Reinitialize() error = %v", err)
	}
	r.UpdateAll(t0.Add(10 * time.Second))
	if bad.reads != 2 {
		t.Errorf("reinitialized sensor read %d times, want 2", bad.reads)
	}
}

func TestRegistry_AdvancesCyclingActuators(t *testing.T) {
	sim := hal.NewSim()
	r := NewRegistry[Actuator]("actuators")
	led := NewOutput(OutputConfig{Name: "status_led", Pin: 2}, sim)
	relay := NewOutput(OutputConfig{Name: "pump", Kind: KindRelay, Pin: 4}, sim)
	_ = r.Add(led)
	_ = r.Add(relay)
	if err := r.InitializeAll(t0); err != nil {
		t.Fatal(err)
	}

	if err := r.HandleCommand("status_led", blink(100, 100, -1), t0); err != nil {
		t.Fatal(err)
	}
	sim.Pin(4).ResetWrites()

	r.UpdateAll(t0.Add(100 * time.Millisecond))
	if w, _ := sim.Pin(2).Last(); w.High() {
		t.Error("cycling actuator not advanced to off phase")
	}
	if len(sim.Pin(4).Writes()) != 0 {
		t.Error("idle actuator was written during update")
	}
}

func TestRegistry_InitializeAllContinuesPastFailure(t *testing.T) {
	r := NewRegistry[Sensor]("sensors")
	bad := &fakeSensor{name: "bad", initErr: ErrUnknownDevice}
	good := &fakeSensor{name: "good"}
	_ = r.Add(bad)
	_ = r.Add(good)

	err := r.InitializeAll(t0)
	if !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("InitializeAll() error = %v, want ErrUnknownDevice", err)
	}
	if good.Status() != StatusReady {
		t.Errorf("good sensor status = %s, want ready", good.Status())
	}
}

func TestRegistry_HandleCommand(t *testing.T) {
	sim := hal.NewSim()
	r := NewRegistry[Actuator]("actuators")
	ready := NewOutput(OutputConfig{Name: "status_led", Pin: 2}, sim)
	cold := NewOutput(OutputConfig{Name: "cold", Pin: 3}, sim)
	_ = r.Add(ready)
	_ = r.Add(cold)
	_ = ready.Initialize(t0)

	on := Command{State: boolPtr(true)}

	if err := r.HandleCommand("status_led", on, t0); err != nil {
		t.Fatalf("HandleCommand(status_led) error = %v", err)
	}
	if !ready.State() {
		t.Error("state not applied")
	}
	if w, _ := sim.Pin(2).Last(); !w.High() {
		t.Error("output not asserted")
	}

	if err := r.HandleCommand("cold", on, t0); !errors.Is(err, ErrNotReady) {
		t.Errorf("not-ready error = %v, want ErrNotReady", err)
	}
	if cold.State() {
		t.Error("not-ready actuator mutated")
	}

	if err := r.HandleCommand("ghost", on, t0); !errors.Is(err, ErrNotFound) {
		t.Errorf("not-found error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_SensorData(t *testing.T) {
	r := NewRegistry[Sensor]("sensors")
	s := &fakeSensor{name: "temp", interval: time.Second, status: StatusReady}
	e := &fakeSensor{name: "broken", interval: time.Second, status: StatusError}
	_ = r.Add(s)
	_ = r.Add(e)
	r.UpdateAll(t0)

	got, err := r.SensorData("temp")
	if err != nil {
		t.Fatalf("SensorData(temp) error = %v", err)
	}
	if got.SensorName != "temp" || !got.Timestamp.Equal(t0) {
		t.Errorf("SensorData(temp) = %+v", got)
	}
	if _, err := r.SensorData("broken"); !errors.Is(err, ErrNotReady) {
		t.Errorf("SensorData(broken) error = %v, want ErrNotReady", err)
	}
	if _, err := r.SensorData("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SensorData(ghost) error = %v, want ErrNotFound", err)
	}

	all := r.AllSensorData()
	if len(all) != 1 || all[0].SensorName != "temp" {
		t.Errorf("AllSensorData() = %+v, want only temp", all)
	}
}

func TestRegistry_StatusReportIsReadOnly(t *testing.T) {
	sensors := NewRegistry[Sensor]("sensors")
	s := &fakeSensor{name: "temp", interval: 1500 * time.Millisecond, status: StatusReady}
	_ = sensors.Add(s)
	sensors.UpdateAll(t0)

	sim := hal.NewSim()
	actuators := NewRegistry[Actuator]("actuators")
	led := NewOutput(OutputConfig{Name: "status_led", Pin: 2}, sim)
	_ = actuators.Add(led)
	_ = led.Initialize(t0)
	_ = led.HandleCommand(blink(500, 500, 3), t0)

	first := sensors.StatusReport()
	second := sensors.StatusReport()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("sensor reports differ:\n%+v\n%+v", first, second)
	}
	if s.reads != 1 {
		t.Error("StatusReport sampled a sensor")
	}
	want := Entry{Name: "temp", Kind: KindTemperature, Status: StatusReady, UpdateIntervalMs: 1500}
	if first.Count != 1 || first.Peripherals[0] != want {
		t.Errorf("report = %+v, want one %+v", first, want)
	}

	a1 := actuators.StatusReport()
	a2 := actuators.StatusReport()
	if !reflect.DeepEqual(a1, a2) {
		t.Error("actuator reports differ")
	}
	if !led.Cycling() {
		t.Error("StatusReport changed cycling state")
	}
	if a1.Peripherals[0].UpdateIntervalMs != 0 {
		t.Error("actuator entry carries an update interval")
	}
}

func TestRegistry_Close(t *testing.T) {
	sim := hal.NewSim()
	r := NewRegistry[Actuator]("actuators")
	_ = r.Add(NewOutput(OutputConfig{Name: "status_led", Pin: 2}, sim))
	_ = r.InitializeAll(t0)

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len() after Close = %d, want 0", r.Len())
	}
	if _, err := sim.OpenOutput(2, false); err != nil {
		t.Errorf("pin not released on Close: %v", err)
	}
}
