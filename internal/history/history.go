// Package history persists display status events and the display
// inventory to SQLite, so the API can answer "what happened" across
// daemon restarts.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rockowitz/ddcwatch/internal/watch"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// EventRecord is one persisted display status event.
type EventRecord struct {
	ID            int64     `json:"id"`
	OccurredAt    time.Time `json:"occurred_at"`
	Type          string    `json:"type"`
	Connector     string    `json:"connector"`
	BusNumber     int       `json:"bus_number"`
	DisplayNumber int       `json:"display_number"`
	MfgID         string    `json:"mfg_id,omitempty"`
	ModelName     string    `json:"model_name,omitempty"`
	SerialASCII   string    `json:"serial_ascii,omitempty"`
}

// Store reads and writes the display_events and displays tables.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordEvent inserts one status event.
func (s *Store) RecordEvent(ctx context.Context, ev watch.Event) error {
	rec := recordFromEvent(ev)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO display_events
		 (occurred_at, event_type, connector, bus_number, display_number, mfg_id, model_name, serial_ascii)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.OccurredAt.UTC().Format(time.RFC3339),
		rec.Type,
		rec.Connector,
		rec.BusNumber,
		rec.DisplayNumber,
		rec.MfgID,
		rec.ModelName,
		rec.SerialASCII,
	)
	if err != nil {
		return fmt.Errorf("inserting display event: %w", err)
	}
	return nil
}

// TouchDisplay upserts the inventory row for a connected display.
func (s *Store) TouchDisplay(ctx context.Context, ev watch.Event) error {
	if ev.Ref == nil || ev.Ref.EDID == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	e := ev.Ref.EDID
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO displays
		 (connector, bus_number, display_number, mfg_id, model_name, serial_ascii, product_code, serial_binary, first_seen_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (connector, bus_number) DO UPDATE SET
		   display_number = excluded.display_number,
		   last_seen_at = excluded.last_seen_at`,
		ev.Connector,
		ev.BusNo,
		ev.Ref.Number,
		e.MfgID,
		e.ModelName,
		e.SerialASCII,
		e.ProductCode,
		e.SerialBinary,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("upserting display: %w", err)
	}
	return nil
}

// ListEvents returns recent events, newest first, optionally filtered
// by event type.
func (s *Store) ListEvents(ctx context.Context, eventType string, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	query := `SELECT id, occurred_at, event_type, connector, bus_number, display_number, mfg_id, model_name, serial_ascii
		 FROM display_events`
	args := []interface{}{}
	if eventType != "" {
		query += " WHERE event_type = ?"
		args = append(args, eventType)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying display events: %w", err)
	}
	defer rows.Close()

	records := make([]EventRecord, 0, limit)
	for rows.Next() {
		var rec EventRecord
		var occurredAt string
		if err := rows.Scan(&rec.ID, &occurredAt, &rec.Type, &rec.Connector,
			&rec.BusNumber, &rec.DisplayNumber, &rec.MfgID, &rec.ModelName, &rec.SerialASCII); err != nil {
			return nil, fmt.Errorf("scanning display event: %w", err)
		}
		rec.OccurredAt, err = time.Parse(time.RFC3339, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parsing occurred_at: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating display events: %w", err)
	}
	return records, nil
}

// Prune deletes events older than the given retention period.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM display_events WHERE occurred_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting display events: %w", err)
	}
	return result.RowsAffected()
}

// Subscriber returns a callback suitable for watch.Dispatcher.Subscribe
// that records every event. Failures are reported through errFn rather
// than surfaced to the watch loop.
func (s *Store) Subscriber(errFn func(error)) func(watch.Event) {
	return func(ev watch.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.RecordEvent(ctx, ev); err != nil && errFn != nil {
			errFn(err)
		}
		if ev.Type == watch.EventConnected || ev.Type == watch.EventDdcEnabled {
			if err := s.TouchDisplay(ctx, ev); err != nil && errFn != nil {
				errFn(err)
			}
		}
	}
}

// recordFromEvent flattens a watch event into its persisted form.
func recordFromEvent(ev watch.Event) EventRecord {
	rec := EventRecord{
		OccurredAt: ev.Time,
		Type:       string(ev.Type),
		Connector:  ev.Connector,
		BusNumber:  ev.BusNo,
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now()
	}
	rec.DisplayNumber = -1
	if ev.Ref != nil {
		rec.DisplayNumber = ev.Ref.Number
		if ev.Ref.EDID != nil {
			rec.MfgID = ev.Ref.EDID.MfgID
			rec.ModelName = ev.Ref.EDID.ModelName
			rec.SerialASCII = ev.Ref.EDID.SerialASCII
		}
	}
	return rec
}
