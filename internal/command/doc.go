// Package command routes inbound command messages to actuators.
//
// A command topic has the form <root>/commands/<device-id>/.../<name>; the
// peripheral name is always the last segment. Payloads are JSON objects
// validated against an embedded JSON Schema before being decoded into a
// peripheral.Command.
//
// Failure outcomes are distinct and reported through the returned error:
//
//	ErrTopicMismatch, ErrEmptyName     topic could not be resolved
//	ErrMalformedPayload                not JSON
//	ErrInvalidPayload                  JSON, but fails the schema
//	peripheral.ErrUnknownCommand       no recognised field
//	peripheral.ErrNotFound             no such actuator
//	peripheral.ErrNotReady             actuator not ready
//
// Nothing is acknowledged to the sender.
package command
