// Package storage provides persistence for Dayflow.
package storage

import (
	"database/sql"
	"time"

	"github.com/dayflow/dayflow/internal/core"
)

// EventStore handles calendar event persistence
type EventStore struct {
	db *DB
}

// NewEventStore creates a new event store
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

const eventColumns = `id, owner_id, title, start_time, end_time, location,
	all_day, status, source, external_id, created_at, updated_at`

// Create creates a new calendar event
func (s *EventStore) Create(event *core.CalendarEvent) error {
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now

	_, err := s.db.conn.Exec(`
		INSERT INTO events (
		    id, owner_id, title, start_time, end_time, location,
		    all_day, status, source, external_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID, event.OwnerID, event.Title, event.Start, event.End,
		event.Location, event.AllDay, event.Status, event.Source,
		nullable(event.ExternalID), event.CreatedAt, event.UpdatedAt,
	)

	return err
}

// GetByID returns an event by ID
func (s *EventStore) GetByID(id core.EventID) (*core.CalendarEvent, error) {
	row := s.db.conn.QueryRow(`
		SELECT `+eventColumns+` FROM events WHERE id = ?
	`, id)

	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

// GetByExternalID returns the local mirror of a provider event, if any.
func (s *EventStore) GetByExternalID(ownerID string, source core.EventSource, externalID string) (*core.CalendarEvent, error) {
	row := s.db.conn.QueryRow(`
		SELECT `+eventColumns+` FROM events
		WHERE owner_id = ? AND source = ? AND external_id = ?
	`, ownerID, source, externalID)

	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

// FindByExternalID looks up a user's event by external id across all
// sources. Exported local events keep their original source, so the
// reconciler dedups imports with this rather than GetByExternalID.
func (s *EventStore) FindByExternalID(ownerID, externalID string) (*core.CalendarEvent, error) {
	row := s.db.conn.QueryRow(`
		SELECT `+eventColumns+` FROM events
		WHERE owner_id = ? AND external_id = ?
	`, ownerID, externalID)

	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

// Update updates the mutable fields of an event
func (s *EventStore) Update(event *core.CalendarEvent) error {
	event.UpdatedAt = time.Now().UTC()

	res, err := s.db.conn.Exec(`
		UPDATE events SET
		    title = ?, start_time = ?, end_time = ?, location = ?,
		    all_day = ?, status = ?, external_id = ?, updated_at = ?
		WHERE id = ?
	`,
		event.Title, event.Start, event.End, event.Location,
		event.AllDay, event.Status, nullable(event.ExternalID),
		event.UpdatedAt, event.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrEventNotFound
	}
	return nil
}

// Delete removes an event
func (s *EventStore) Delete(id core.EventID) error {
	res, err := s.db.conn.Exec("DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrEventNotFound
	}
	return nil
}

// ListForUser returns a user's events overlapping [start, end), ordered by
// start time. Cancelled events are excluded; they never block scheduling.
func (s *EventStore) ListForUser(ownerID string, start, end time.Time) ([]*core.CalendarEvent, error) {
	rows, err := s.db.conn.Query(`
		SELECT `+eventColumns+` FROM events
		WHERE owner_id = ? AND status != 'cancelled'
		  AND start_time < ? AND end_time > ?
		ORDER BY start_time ASC
	`, ownerID, end, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListUnexported returns a user's locally originated events that have not
// been pushed to any provider yet.
func (s *EventStore) ListUnexported(ownerID string, start, end time.Time) ([]*core.CalendarEvent, error) {
	rows, err := s.db.conn.Query(`
		SELECT `+eventColumns+` FROM events
		WHERE owner_id = ? AND status != 'cancelled'
		  AND (external_id IS NULL OR external_id = '')
		  AND source IN ('local', 'ai_scheduled')
		  AND start_time < ? AND end_time > ?
		ORDER BY start_time ASC
	`, ownerID, end, start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// SetExternalID records the provider-side id after a successful export.
func (s *EventStore) SetExternalID(id core.EventID, externalID string) error {
	res, err := s.db.conn.Exec(`
		UPDATE events SET external_id = ?, updated_at = ? WHERE id = ?
	`, externalID, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrEventNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*core.CalendarEvent, error) {
	event := &core.CalendarEvent{}
	var location, externalID sql.NullString

	err := row.Scan(
		&event.ID, &event.OwnerID, &event.Title, &event.Start, &event.End,
		&location, &event.AllDay, &event.Status, &event.Source,
		&externalID, &event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	event.Location = location.String
	event.ExternalID = externalID.String
	return event, nil
}

func scanEvents(rows *sql.Rows) ([]*core.CalendarEvent, error) {
	var events []*core.CalendarEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// nullable maps "" to NULL so the partial unique index on external ids
// only sees real values.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
