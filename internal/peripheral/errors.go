package peripheral

import "errors"

// Domain errors for the peripheral package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, peripheral.ErrNotReady) {
//	    // command arrived while the peripheral was busy or failed
//	}
var (
	// ErrNotFound is returned when no peripheral with the given name is registered.
	ErrNotFound = errors.New("peripheral: not found")

	// ErrExists is returned when adding a peripheral whose name is already registered.
	ErrExists = errors.New("peripheral: already exists")

	// ErrNotReady is returned when a peripheral is asked to act while not Ready.
	ErrNotReady = errors.New("peripheral: not ready")

	// ErrUnsupported is returned when a command needs a capability the peripheral lacks.
	ErrUnsupported = errors.New("peripheral: unsupported capability")

	// ErrUnknownCommand is returned when a command carries no recognised field.
	ErrUnknownCommand = errors.New("peripheral: unknown command")

	// ErrInvalidCommand is returned when a recognised field has an out-of-range value.
	ErrInvalidCommand = errors.New("peripheral: invalid command")

	// ErrUnknownDevice is returned when an identity probe returns an unmapped value.
	ErrUnknownDevice = errors.New("peripheral: unknown device identity")

	// ErrBusIO is returned when a pin write or bus transaction fails.
	ErrBusIO = errors.New("peripheral: bus i/o failed")

	// ErrNilPeripheral is returned when adding a nil or unnamed peripheral.
	ErrNilPeripheral = errors.New("peripheral: nil peripheral")
)
