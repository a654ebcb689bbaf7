package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dayflow/dayflow/internal/core"
)

type eventInput struct {
	Title    string           `json:"title"`
	Start    time.Time        `json:"start"`
	End      time.Time        `json:"end"`
	Location string           `json:"location"`
	AllDay   bool             `json:"all_day"`
	Status   core.EventStatus `json:"status"`
}

func (in *eventInput) validate() error {
	if in.Title == "" {
		return core.NewValidationError("title", "must not be empty")
	}
	if !in.Start.Before(in.End) {
		return core.NewValidationError("start", "must be before end")
	}
	switch in.Status {
	case "", core.EventConfirmed, core.EventTentative, core.EventCancelled:
	default:
		return core.NewValidationError("status", "unknown status")
	}
	return nil
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -7)
	end := now.AddDate(0, 0, 30)

	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid start, want RFC3339")
			return
		}
		start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid end, want RFC3339")
			return
		}
		end = t
	}

	events, err := s.eventStore.ListForUser(userID(r), start, end)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var input eventInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := input.validate(); err != nil {
		s.respondServiceError(w, err)
		return
	}

	status := input.Status
	if status == "" {
		status = core.EventConfirmed
	}

	event := &core.CalendarEvent{
		ID:       core.EventID(uuid.New().String()),
		OwnerID:  userID(r),
		Title:    input.Title,
		Start:    input.Start,
		End:      input.End,
		Location: input.Location,
		AllDay:   input.AllDay,
		Status:   status,
		Source:   core.SourceLocal,
	}

	if err := s.eventStore.Create(event); err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, event)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.ownedEvent(r)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, event)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.ownedEvent(r)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	var input eventInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := input.validate(); err != nil {
		s.respondServiceError(w, err)
		return
	}

	event.Title = input.Title
	event.Start = input.Start
	event.End = input.End
	event.Location = input.Location
	event.AllDay = input.AllDay
	if input.Status != "" {
		event.Status = input.Status
	}

	if err := s.eventStore.Update(event); err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, event)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.ownedEvent(r)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	if err := s.eventStore.Delete(event.ID); err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// ownedEvent loads the path event and checks it belongs to the caller.
// Foreign events surface as not-found, never as forbidden.
func (s *Server) ownedEvent(r *http.Request) (*core.CalendarEvent, error) {
	id := core.EventID(chi.URLParam(r, "eventID"))
	event, err := s.eventStore.GetByID(id)
	if err != nil {
		return nil, err
	}
	if event.OwnerID != userID(r) {
		return nil, core.ErrEventNotFound
	}
	return event, nil
}
