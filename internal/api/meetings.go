package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dayflow/dayflow/internal/core"
)

// meetingRequestInput is the wire shape for creating or updating a
// meeting request.
type meetingRequestInput struct {
	Title           string                  `json:"title"`
	Participants    []string                `json:"participants"`
	DurationMinutes int                     `json:"duration_minutes"`
	MeetingType     core.MeetingType        `json:"meeting_type"`
	LocationType    core.LocationType       `json:"location_type"`
	Agenda          string                  `json:"agenda"`
	BufferMinutes   int                     `json:"buffer_minutes"`
	Preferences     core.MeetingPreferences `json:"preferences"`
	RangeStart      time.Time               `json:"range_start"`
	RangeEnd        time.Time               `json:"range_end"`
}

func (in *meetingRequestInput) toRequest(organizerID string) *core.MeetingRequest {
	return &core.MeetingRequest{
		OrganizerID:     organizerID,
		Title:           in.Title,
		Participants:    in.Participants,
		DurationMinutes: in.DurationMinutes,
		MeetingType:     in.MeetingType,
		LocationType:    in.LocationType,
		Agenda:          in.Agenda,
		BufferMinutes:   in.BufferMinutes,
		Preferences:     in.Preferences,
		RangeStart:      in.RangeStart,
		RangeEnd:        in.RangeEnd,
	}
}

func (s *Server) handleCreateMeeting(w http.ResponseWriter, r *http.Request) {
	var input meetingRequestInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	result, err := s.engine.CreateRequest(input.toRequest(userID(r)))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	resp := map[string]interface{}{
		"meeting_request_id": result.Request.ID,
		"meeting":            result.Request,
		"suggested_slots":    result.Slots,
	}
	if len(result.Hints) > 0 {
		resp["alternatives"] = result.Hints
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid limit, want a positive integer")
			return
		}
		limit = n
	}

	meetings, err := s.engine.List(userID(r), limit)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"meetings": meetings,
		"count":    len(meetings),
	})
}

func (s *Server) handleGetMeeting(w http.ResponseWriter, r *http.Request) {
	id := core.MeetingID(chi.URLParam(r, "meetingID"))

	result, err := s.engine.Get(userID(r), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpdateMeeting(w http.ResponseWriter, r *http.Request) {
	id := core.MeetingID(chi.URLParam(r, "meetingID"))

	var input meetingRequestInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req := input.toRequest(userID(r))
	req.ID = id

	result, err := s.engine.UpdateRequest(userID(r), req)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleConfirmMeeting(w http.ResponseWriter, r *http.Request) {
	id := core.MeetingID(chi.URLParam(r, "meetingID"))

	var input struct {
		SlotID core.SlotID `json:"slot_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if input.SlotID == "" {
		respondError(w, http.StatusBadRequest, "slot_id required")
		return
	}

	req, event, err := s.engine.Confirm(userID(r), id, input.SlotID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.Broadcast("meeting.scheduled", req)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"event_id":       event.ID,
		"meeting":        req,
		"calendar_event": event,
	})
}

func (s *Server) handleCancelMeeting(w http.ResponseWriter, r *http.Request) {
	id := core.MeetingID(chi.URLParam(r, "meetingID"))

	req, err := s.engine.Cancel(userID(r), id)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.Broadcast("meeting.cancelled", req)
	respondJSON(w, http.StatusOK, req)
}
