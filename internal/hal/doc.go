// Package hal is the hardware abstraction layer for Liminal Core.
//
// Peripherals never talk to hardware directly. They are handed a Pin (a
// digital output, optionally with duty-cycle control) or a Bus (an I2C
// transaction endpoint) obtained from a Backend.
//
// Two backends exist:
//   - "sim": in-memory pins and a scriptable register-file I2C bus, used by
//     tests and for running the daemon on a workstation
//   - "linux": GPIO character device lines (go-gpiocdev) for plain outputs,
//     periph.io for PWM outputs and the I2C bus
//
// Bus transactions are synchronous and have no timeout. A stalled bus stalls
// the caller, which on the control loop means the whole loop.
package hal
