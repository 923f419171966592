package peripheral

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Registry owns a set of peripherals keyed by unique name.
//
// A registry is not safe for concurrent use. It belongs to the control
// loop goroutine; other goroutines reach it through the loop.
type Registry[T Peripheral] struct {
	label      string
	items      map[string]T
	order      []string
	lastUpdate time.Time
	logger     Logger
}

// NewRegistry creates an empty registry. label names it in log output.
func NewRegistry[T Peripheral](label string) *Registry[T] {
	return &Registry[T]{
		label:  label,
		items:  make(map[string]T),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry[T]) SetLogger(logger Logger) {
	r.logger = logger
}

// Add takes ownership of p.
// Returns ErrExists if a peripheral with the same name is already registered,
// and ErrNilPeripheral for a nil or unnamed peripheral. Peripheral types
// return "" from Name on a nil receiver, which catches typed nils.
func (r *Registry[T]) Add(p T) error {
	if any(p) == nil {
		return ErrNilPeripheral
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("%w: %s peripheral has no name", ErrNilPeripheral, r.label)
	}
	if _, ok := r.items[name]; ok {
		return fmt.Errorf("%w: %s %q", ErrExists, r.label, name)
	}
	r.items[name] = p
	r.order = append(r.order, name)
	r.logger.Debug("peripheral added", "registry", r.label, "name", name, "kind", string(p.Kind()))
	return nil
}

// Remove releases ownership of the named peripheral and returns it.
// The caller becomes responsible for closing it.
func (r *Registry[T]) Remove(name string) (T, error) {
	p, ok := r.items[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s %q", ErrNotFound, r.label, name)
	}
	delete(r.items, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	r.logger.Debug("peripheral removed", "registry", r.label, "name", name)
	return p, nil
}

// Get returns the named peripheral or ErrNotFound.
func (r *Registry[T]) Get(name string) (T, error) {
	p, ok := r.items[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s %q", ErrNotFound, r.label, name)
	}
	return p, nil
}

// Len returns the number of registered peripherals.
func (r *Registry[T]) Len() int { return len(r.order) }

// Names returns peripheral names in insertion order.
func (r *Registry[T]) Names() []string {
	return slices.Clone(r.order)
}

// LastUpdate returns the time passed to the most recent UpdateAll.
func (r *Registry[T]) LastUpdate() time.Time { return r.lastUpdate }

// InitializeAll initializes every peripheral. A failure does not stop the
// others; all failures are logged and returned joined.
func (r *Registry[T]) InitializeAll(now time.Time) error {
	var errs []error
	for _, name := range r.order {
		p := r.items[name]
		if err := p.Initialize(now); err != nil {
			r.logger.Error("peripheral initialization failed", "registry", r.label, "name", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		r.logger.Info("peripheral ready", "registry", r.label, "name", name, "kind", string(p.Kind()))
	}
	return errors.Join(errs...)
}

// Reinitialize re-runs initialization of one peripheral. This is the only
// way out of Error.
func (r *Registry[T]) Reinitialize(name string, now time.Time) error {
	p, err := r.Get(name)
	if err != nil {
		return err
	}
	if err := p.Initialize(now); err != nil {
		r.logger.Warn("peripheral reinitialization failed", "registry", r.label, "name", name, "error", err)
		return err
	}
	r.logger.Info("peripheral reinitialized", "registry", r.label, "name", name)
	return nil
}

// UpdateAll advances every cycling actuator and samples every due sensor,
// each at most once.
func (r *Registry[T]) UpdateAll(now time.Time) {
	for _, name := range r.order {
		switch p := any(r.items[name]).(type) {
		case Actuator:
			if p.Cycling() {
				p.Advance(now)
			}
		case Sensor:
			if Due(p, now) {
				if err := p.ReadData(now); err != nil {
					r.logger.Warn("sensor read failed", "registry", r.label, "name", name, "error", err)
				}
			}
		}
	}
	r.lastUpdate = now
}

// HandleCommand dispatches cmd to the named actuator.
// Not-found and not-ready are reported as distinct errors.
func (r *Registry[T]) HandleCommand(name string, cmd Command, now time.Time) error {
	p, err := r.Get(name)
	if err != nil {
		return err
	}
	a, ok := any(p).(Actuator)
	if !ok {
		return fmt.Errorf("%w: %s %q is not commandable", ErrUnsupported, r.label, name)
	}
	if a.Status() != StatusReady {
		return fmt.Errorf("%w: %s is %s", ErrNotReady, name, a.Status())
	}
	return a.HandleCommand(cmd, now)
}

// ActuatorSnapshot returns the detailed state of the named actuator.
func (r *Registry[T]) ActuatorSnapshot(name string, now time.Time) (ActuatorSnapshot, error) {
	p, err := r.Get(name)
	if err != nil {
		return ActuatorSnapshot{}, err
	}
	a, ok := any(p).(Actuator)
	if !ok {
		return ActuatorSnapshot{}, fmt.Errorf("%w: %s %q is not an actuator", ErrUnsupported, r.label, name)
	}
	return a.Snapshot(now), nil
}

// SensorData returns the latest reading of the named sensor.
// Returns ErrNotReady unless the sensor is Ready.
func (r *Registry[T]) SensorData(name string) (Reading, error) {
	p, err := r.Get(name)
	if err != nil {
		return Reading{}, err
	}
	s, ok := any(p).(Sensor)
	if !ok {
		return Reading{}, fmt.Errorf("%w: %s %q is not a sensor", ErrUnsupported, r.label, name)
	}
	if s.Status() != StatusReady {
		return Reading{}, fmt.Errorf("%w: %s is %s", ErrNotReady, name, s.Status())
	}
	return s.Reading(), nil
}

// AllSensorData returns readings of every Ready sensor that has been sampled.
func (r *Registry[T]) AllSensorData() []Reading {
	var out []Reading
	for _, name := range r.order {
		s, ok := any(r.items[name]).(Sensor)
		if !ok || s.Status() != StatusReady || s.LastSample().Timestamp.IsZero() {
			continue
		}
		out = append(out, s.Reading())
	}
	return out
}

// StatusReport returns count, last update time and each peripheral's
// name, kind and status in insertion order. It does not mutate anything.
func (r *Registry[T]) StatusReport() Report {
	rep := Report{
		Count:       len(r.order),
		LastUpdate:  r.lastUpdate,
		Peripherals: make([]Entry, 0, len(r.order)),
	}
	for _, name := range r.order {
		p := r.items[name]
		e := Entry{Name: name, Kind: p.Kind(), Status: p.Status()}
		if s, ok := any(p).(Sensor); ok {
			e.UpdateIntervalMs = s.Interval().Milliseconds()
		}
		rep.Peripherals = append(rep.Peripherals, e)
	}
	return rep
}

// Close closes every peripheral and empties the registry.
func (r *Registry[T]) Close() error {
	var errs []error
	for _, name := range r.order {
		if err := r.items[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	r.items = make(map[string]T)
	r.order = nil
	return errors.Join(errs...)
}
