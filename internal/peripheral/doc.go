// Package peripheral implements the device model of Liminal Core: actuators
// and sensors behind a common capability interface, and the registries
// that own them.
//
// # Lifecycle
//
// Peripherals are built once from configuration, handed to exactly one
// Registry and initialized. Status moves through:
//
//	uninitialized -> ready | error          (Initialize)
//	ready -> busy -> ready | error          (actuator HandleCommand)
//	ready -> reading -> ready | error       (sensor ReadData)
//
// A peripheral in error stays there until Registry.Reinitialize is called.
// Sensors in error are skipped by the due-check.
//
// # Scheduling
//
// Registry.UpdateAll is called once per control loop tick. It advances
// cycling actuators and samples due sensors. Timestamps are passed in,
// never read from the wall clock, so tests drive time explicitly.
//
// # Concurrency
//
// Nothing in this package locks. Registries and their peripherals belong
// to the control loop goroutine.
package peripheral
