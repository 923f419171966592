package journal

import (
	"context"
	"errors"
	"time"

	"github.com/liminal-dev/liminal-core/internal/command"
)

// Outcome values stored for each entry.
const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// ErrInvalidEntry is returned when an entry lacks an ID or topic.
var ErrInvalidEntry = errors.New("journal: invalid entry")

// Entry is one routed command as recorded in the journal.
type Entry struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id"`
	Topic      string    `json:"topic"`
	Peripheral string    `json:"peripheral,omitempty"`
	Command    string    `json:"command,omitempty"`
	Payload    string    `json:"payload"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// FromOutcome builds an entry for a routed message.
func FromOutcome(deviceID string, o command.Outcome) Entry {
	e := Entry{
		ID:         o.ID.String(),
		DeviceID:   deviceID,
		Topic:      o.Topic,
		Peripheral: o.Peripheral,
		Command:    o.Command,
		Payload:    string(o.Payload),
		Outcome:    OutcomeApplied,
		ReceivedAt: o.At,
	}
	if o.Err != nil {
		e.Outcome = OutcomeRejected
		e.Error = o.Err.Error()
	}
	return e
}

// Repository stores and lists journal entries.
type Repository interface {
	Record(ctx context.Context, e Entry) error
	// Recent returns the newest entries first. limit <= 0 selects the default.
	Recent(ctx context.Context, limit int) ([]Entry, error)
	// ForPeripheral is Recent restricted to one peripheral name.
	ForPeripheral(ctx context.Context, name string, limit int) ([]Entry, error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
