// Package storage provides persistence for Dayflow.
package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/dayflow/dayflow/internal/core"
)

// MeetingStore handles meeting request and candidate slot persistence
type MeetingStore struct {
	db *DB
}

// NewMeetingStore creates a new meeting store
func NewMeetingStore(db *DB) *MeetingStore {
	return &MeetingStore{db: db}
}

const meetingColumns = `id, organizer_id, title, participants, duration_minutes,
	meeting_type, location_type, agenda, buffer_minutes, preferences, status,
	range_start, range_end, selected_slot, event_id, created_at, updated_at`

// CreateRequest persists a new meeting request
func (s *MeetingStore) CreateRequest(req *core.MeetingRequest) error {
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	participants, _ := json.Marshal(req.Participants)
	preferences, _ := json.Marshal(req.Preferences)

	_, err := s.db.conn.Exec(`
		INSERT INTO meeting_requests (
		    id, organizer_id, title, participants, duration_minutes,
		    meeting_type, location_type, agenda, buffer_minutes, preferences,
		    status, range_start, range_end, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		req.ID, req.OrganizerID, req.Title, string(participants),
		req.DurationMinutes, req.MeetingType, req.LocationType, req.Agenda,
		req.BufferMinutes, string(preferences), req.Status,
		req.RangeStart, req.RangeEnd, req.CreatedAt, req.UpdatedAt,
	)

	return err
}

// GetRequest returns a meeting request by ID
func (s *MeetingStore) GetRequest(id core.MeetingID) (*core.MeetingRequest, error) {
	row := s.db.conn.QueryRow(`
		SELECT `+meetingColumns+` FROM meeting_requests WHERE id = ?
	`, id)

	req, err := scanMeeting(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrMeetingNotFound
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// UpdateRequestParams rewrites the organizer-editable fields of a pending
// request. The conditional WHERE keeps terminal requests immutable.
func (s *MeetingStore) UpdateRequestParams(req *core.MeetingRequest) error {
	req.UpdatedAt = time.Now().UTC()

	participants, _ := json.Marshal(req.Participants)
	preferences, _ := json.Marshal(req.Preferences)

	res, err := s.db.conn.Exec(`
		UPDATE meeting_requests SET
		    title = ?, participants = ?, duration_minutes = ?,
		    meeting_type = ?, location_type = ?, agenda = ?,
		    buffer_minutes = ?, preferences = ?, range_start = ?,
		    range_end = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`,
		req.Title, string(participants), req.DurationMinutes,
		req.MeetingType, req.LocationType, req.Agenda,
		req.BufferMinutes, string(preferences), req.RangeStart,
		req.RangeEnd, req.UpdatedAt, req.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrMeetingNotPending
	}
	return nil
}

// StatusPayload carries the data written together with a status transition.
type StatusPayload struct {
	SelectedSlot *core.CandidateSlot
	EventID      core.EventID
}

// UpdateRequestStatus transitions a request only if it still has the
// expected status. Returns false when the expectation does not hold - the
// optimistic-concurrency primitive the confirm path depends on.
func (s *MeetingStore) UpdateRequestStatus(id core.MeetingID, expected, next core.MeetingStatus, payload *StatusPayload) (bool, error) {
	var selectedSlot any
	var eventID any
	if payload != nil {
		if payload.SelectedSlot != nil {
			data, err := json.Marshal(payload.SelectedSlot)
			if err != nil {
				return false, err
			}
			selectedSlot = string(data)
		}
		if payload.EventID != "" {
			eventID = string(payload.EventID)
		}
	}

	res, err := s.db.conn.Exec(`
		UPDATE meeting_requests SET
		    status = ?,
		    selected_slot = COALESCE(?, selected_slot),
		    event_id = COALESCE(?, event_id),
		    updated_at = ?
		WHERE id = ? AND status = ?
	`, next, selectedSlot, eventID, time.Now().UTC(), id, expected)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReplaceSlots atomically supersedes all candidate slots for a request.
// Stale slots are removed in the same transaction so they can never be
// confirmed after a regeneration.
func (s *MeetingStore) ReplaceSlots(meetingID core.MeetingID, slots []*core.CandidateSlot) error {
	return s.db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM candidate_slots WHERE meeting_id = ?", meetingID); err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, slot := range slots {
			slot.CreatedAt = now
			conflicts, _ := json.Marshal(slot.Conflicts)
			factors, _ := json.Marshal(slot.OptimalFactors)

			_, err := tx.Exec(`
				INSERT INTO candidate_slots (
				    id, meeting_id, start_time, end_time, score, confidence,
				    conflicts, reasoning, optimal_factors, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				slot.ID, slot.MeetingID, slot.Start, slot.End,
				slot.Score, slot.Confidence, string(conflicts),
				slot.Reasoning, string(factors), slot.CreatedAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetSlots returns the persisted candidate slots for a request, best first.
func (s *MeetingStore) GetSlots(meetingID core.MeetingID) ([]*core.CandidateSlot, error) {
	rows, err := s.db.conn.Query(`
		SELECT id, meeting_id, start_time, end_time, score, confidence,
		       conflicts, reasoning, optimal_factors, created_at
		FROM candidate_slots
		WHERE meeting_id = ?
		ORDER BY score DESC, start_time ASC
	`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []*core.CandidateSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// GetSlot returns one candidate slot by ID
func (s *MeetingStore) GetSlot(id core.SlotID) (*core.CandidateSlot, error) {
	row := s.db.conn.QueryRow(`
		SELECT id, meeting_id, start_time, end_time, score, confidence,
		       conflicts, reasoning, optimal_factors, created_at
		FROM candidate_slots WHERE id = ?
	`, id)

	slot, err := scanSlot(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrSlotNotFound
	}
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// ListByOrganizer returns a user's meeting requests, newest first.
func (s *MeetingStore) ListByOrganizer(organizerID string, limit int) ([]*core.MeetingRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.conn.Query(`
		SELECT `+meetingColumns+` FROM meeting_requests
		WHERE organizer_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, organizerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []*core.MeetingRequest
	for rows.Next() {
		req, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func scanMeeting(row rowScanner) (*core.MeetingRequest, error) {
	req := &core.MeetingRequest{}
	var participants, preferences string
	var agenda, selectedSlot, eventID sql.NullString

	err := row.Scan(
		&req.ID, &req.OrganizerID, &req.Title, &participants,
		&req.DurationMinutes, &req.MeetingType, &req.LocationType,
		&agenda, &req.BufferMinutes, &preferences, &req.Status,
		&req.RangeStart, &req.RangeEnd, &selectedSlot, &eventID,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Agenda = agenda.String
	req.EventID = core.EventID(eventID.String)

	json.Unmarshal([]byte(participants), &req.Participants)
	json.Unmarshal([]byte(preferences), &req.Preferences)

	if selectedSlot.Valid && selectedSlot.String != "" {
		var slot core.CandidateSlot
		if err := json.Unmarshal([]byte(selectedSlot.String), &slot); err == nil {
			req.SelectedSlot = &slot
		}
	}

	return req, nil
}

func scanSlot(row rowScanner) (*core.CandidateSlot, error) {
	slot := &core.CandidateSlot{}
	var conflicts, factors string
	var reasoning sql.NullString

	err := row.Scan(
		&slot.ID, &slot.MeetingID, &slot.Start, &slot.End,
		&slot.Score, &slot.Confidence, &conflicts, &reasoning,
		&factors, &slot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	slot.Reasoning = reasoning.String
	json.Unmarshal([]byte(conflicts), &slot.Conflicts)
	json.Unmarshal([]byte(factors), &slot.OptimalFactors)

	return slot, nil
}
