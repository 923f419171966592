package command

import "errors"

// Routing errors. Lookup and readiness failures are the peripheral
// package's ErrNotFound and ErrNotReady, passed through unchanged.
var (
	// ErrTopicMismatch is returned when a topic is outside the command root.
	ErrTopicMismatch = errors.New("command: topic outside command root")

	// ErrEmptyName is returned when a topic has no peripheral name segment.
	ErrEmptyName = errors.New("command: empty peripheral name")

	// ErrMalformedPayload is returned when a payload is not valid JSON.
	ErrMalformedPayload = errors.New("command: malformed payload")

	// ErrInvalidPayload is returned when a payload fails schema validation.
	ErrInvalidPayload = errors.New("command: invalid payload")
)
