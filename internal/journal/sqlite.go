package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRepository implements Repository on the command_journal table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts e.
func (r *SQLiteRepository) Record(ctx context.Context, e Entry) error {
	if e.ID == "" || e.Topic == "" {
		return ErrInvalidEntry
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeApplied
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_journal
		 (id, device_id, topic, peripheral, command, payload, outcome, error, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DeviceID, e.Topic, e.Peripheral, e.Command, e.Payload,
		e.Outcome, e.Error, e.ReceivedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return r.query(ctx,
		`SELECT id, device_id, topic, peripheral, command, payload, outcome, error, received_at
		 FROM command_journal
		 ORDER BY received_at DESC
		 LIMIT ?`,
		clampLimit(limit),
	)
}

// ForPeripheral returns up to limit entries for one peripheral, newest first.
func (r *SQLiteRepository) ForPeripheral(ctx context.Context, name string, limit int) ([]Entry, error) {
	return r.query(ctx,
		`SELECT id, device_id, topic, peripheral, command, payload, outcome, error, received_at
		 FROM command_journal
		 WHERE peripheral = ?
		 ORDER BY received_at DESC
		 LIMIT ?`,
		name, clampLimit(limit),
	)
}

func (r *SQLiteRepository) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var receivedAt string
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.Topic, &e.Peripheral, &e.Command,
			&e.Payload, &e.Outcome, &e.Error, &receivedAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		e.ReceivedAt, err = time.Parse(timeLayout, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing received_at %q: %w", receivedAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}
	return entries, nil
}
