// Package controller runs the device's single-threaded control loop.
//
// Each tick the loop:
//  1. drains at most scheduler.max_messages_per_tick inbound commands and
//     routes them to the actuator registry
//  2. calls UpdateAll on the actuator and sensor registries
//  3. refreshes the link monitor and drives the transport connection
//  4. publishes sensor readings and the status report when due
//
// Nothing else touches peripheral state: transport callbacks only enqueue,
// and the diagnostics API runs its reads through Do.
package controller
