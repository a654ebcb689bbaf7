package scheduling

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dayflow/dayflow/internal/availability"
	"github.com/dayflow/dayflow/internal/config"
	"github.com/dayflow/dayflow/internal/core"
	"github.com/dayflow/dayflow/internal/logging"
	"github.com/dayflow/dayflow/internal/storage"
)

// Notifier receives scheduling lifecycle events. Implementations must not
// block; the engine calls it fire-and-forget and never fails an operation
// on notification problems.
type Notifier interface {
	MeetingScheduled(req *core.MeetingRequest, slot *core.CandidateSlot)
	MeetingCancelled(req *core.MeetingRequest)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) MeetingScheduled(*core.MeetingRequest, *core.CandidateSlot) {}
func (NopNotifier) MeetingCancelled(*core.MeetingRequest)                      {}

// Hints suggested when a request yields no workable candidates.
const (
	HintExtendRange     = "extend the date range"
	HintAllowWeekends   = "allow weekend meetings"
	HintShortenDuration = "shorten the meeting duration"
)

// Result is the outcome of candidate generation for a request. Zero
// candidates is a valid outcome, reported with alternative suggestions
// rather than an error.
type Result struct {
	Request *core.MeetingRequest  `json:"request"`
	Slots   []*core.CandidateSlot `json:"slots"`
	Hints   []string              `json:"hints,omitempty"`
}

// Engine runs the meeting negotiation lifecycle: request intake, candidate
// generation and ranking, confirmation, and cancellation.
type Engine struct {
	meetings *storage.MeetingStore
	events   *storage.EventStore
	model    *availability.Model
	cfg      config.SchedulingConfig
	notifier Notifier
	log      *logging.Logger
}

// NewEngine creates a scheduling engine.
func NewEngine(meetings *storage.MeetingStore, events *storage.EventStore, model *availability.Model, cfg config.SchedulingConfig, notifier Notifier) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{
		meetings: meetings,
		events:   events,
		model:    model,
		cfg:      cfg,
		notifier: notifier,
		log:      logging.WithComponent("scheduling"),
	}
}

// CreateRequest validates and persists a new meeting request, generates
// and ranks candidates, and persists the retained top slots.
func (e *Engine) CreateRequest(req *core.MeetingRequest) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if req.ID == "" {
		req.ID = core.MeetingID(uuid.New().String())
	}
	if req.MeetingType == "" {
		req.MeetingType = core.MeetingBusiness
	}
	if req.LocationType == "" {
		req.LocationType = core.LocationVirtual
	}
	req.Status = core.MeetingPending

	if err := e.meetings.CreateRequest(req); err != nil {
		return nil, fmt.Errorf("creating meeting request: %w", err)
	}

	return e.regenerate(req)
}

// UpdateRequest rewrites a pending request's parameters and regenerates
// its candidate slots, superseding the previous set. Terminal requests
// reject the update.
func (e *Engine) UpdateRequest(organizerID string, req *core.MeetingRequest) (*Result, error) {
	existing, err := e.meetings.GetRequest(req.ID)
	if err != nil {
		return nil, err
	}
	if existing.OrganizerID != organizerID {
		return nil, core.ErrNotOrganizer
	}

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	req.OrganizerID = existing.OrganizerID
	if err := e.meetings.UpdateRequestParams(req); err != nil {
		return nil, err
	}

	updated, err := e.meetings.GetRequest(req.ID)
	if err != nil {
		return nil, err
	}
	return e.regenerate(updated)
}

// Get returns a meeting request with its current candidate slots. Only
// the organizer may read a request.
func (e *Engine) Get(organizerID string, id core.MeetingID) (*Result, error) {
	req, err := e.meetings.GetRequest(id)
	if err != nil {
		return nil, err
	}
	if req.OrganizerID != organizerID {
		return nil, core.ErrNotOrganizer
	}

	slots, err := e.meetings.GetSlots(id)
	if err != nil {
		return nil, err
	}
	return &Result{Request: req, Slots: slots}, nil
}

// List returns the organizer's requests, newest first.
func (e *Engine) List(organizerID string, limit int) ([]*core.MeetingRequest, error) {
	return e.meetings.ListByOrganizer(organizerID, limit)
}

// Confirm transitions a pending request to scheduled against one of its
// persisted slots and materializes the calendar event, returning the
// updated request together with that event. The slot snapshot
// is re-validated against the organizer's current calendar first; a slot
// that no longer fits fails with ErrSlotStale. Exactly one concurrent
// confirm can win; losers see ErrMeetingNotPending.
func (e *Engine) Confirm(organizerID string, meetingID core.MeetingID, slotID core.SlotID) (*core.MeetingRequest, *core.CalendarEvent, error) {
	req, err := e.meetings.GetRequest(meetingID)
	if err != nil {
		return nil, nil, err
	}
	if req.OrganizerID != organizerID {
		return nil, nil, core.ErrNotOrganizer
	}
	if req.Status != core.MeetingPending {
		return nil, nil, core.ErrMeetingNotPending
	}

	slot, err := e.meetings.GetSlot(slotID)
	if err != nil {
		return nil, nil, err
	}
	if slot.MeetingID != meetingID {
		return nil, nil, core.ErrSlotNotFound
	}

	if err := e.revalidate(req, slot); err != nil {
		return nil, nil, err
	}

	event := &core.CalendarEvent{
		ID:       core.EventID(uuid.New().String()),
		OwnerID:  req.OrganizerID,
		Title:    req.Title,
		Start:    slot.Start,
		End:      slot.End,
		Location: string(req.LocationType),
		Status:   core.EventConfirmed,
		Source:   core.SourceAIScheduled,
	}
	if err := e.events.Create(event); err != nil {
		return nil, nil, fmt.Errorf("materializing event: %w", err)
	}

	won, err := e.meetings.UpdateRequestStatus(meetingID, core.MeetingPending, core.MeetingScheduled, &storage.StatusPayload{
		SelectedSlot: slot,
		EventID:      event.ID,
	})
	if err != nil {
		return nil, nil, err
	}
	if !won {
		// Lost the race after creating the event; undo it.
		if delErr := e.events.Delete(event.ID); delErr != nil {
			e.log.WithField("event_id", event.ID).Error("orphaned event after lost confirm race: %v", delErr)
		}
		return nil, nil, core.ErrMeetingNotPending
	}

	confirmed, err := e.meetings.GetRequest(meetingID)
	if err != nil {
		return nil, nil, err
	}

	e.log.WithFields(map[string]interface{}{
		"meeting_id": meetingID,
		"slot_id":    slotID,
		"start":      slot.Start.Format(time.RFC3339),
	}).Info("meeting scheduled")
	e.notifier.MeetingScheduled(confirmed, slot)

	return confirmed, event, nil
}

// Cancel transitions a pending request to cancelled. Cancelling a
// terminal request fails with ErrMeetingNotPending.
func (e *Engine) Cancel(organizerID string, meetingID core.MeetingID) (*core.MeetingRequest, error) {
	req, err := e.meetings.GetRequest(meetingID)
	if err != nil {
		return nil, err
	}
	if req.OrganizerID != organizerID {
		return nil, core.ErrNotOrganizer
	}

	won, err := e.meetings.UpdateRequestStatus(meetingID, core.MeetingPending, core.MeetingCancelled, nil)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, core.ErrMeetingNotPending
	}

	cancelled, err := e.meetings.GetRequest(meetingID)
	if err != nil {
		return nil, err
	}

	e.log.WithField("meeting_id", meetingID).Info("meeting cancelled")
	e.notifier.MeetingCancelled(cancelled)

	return cancelled, nil
}

// regenerate runs the full candidate pipeline for a request and persists
// the retained slots, superseding any previous set.
func (e *Engine) regenerate(req *core.MeetingRequest) (*Result, error) {
	slots, err := e.generate(req)
	if err != nil {
		return nil, err
	}

	topN := e.cfg.TopN
	if topN > 0 && len(slots) > topN {
		slots = slots[:topN]
	}

	if err := e.meetings.ReplaceSlots(req.ID, slots); err != nil {
		return nil, fmt.Errorf("persisting candidate slots: %w", err)
	}

	result := &Result{Request: req, Slots: slots}
	if len(slots) == 0 {
		result.Hints = hints(req)
		e.log.WithField("meeting_id", req.ID).Warn("no workable candidate slots")
	}
	return result, nil
}

// generate walks candidate windows over the request's range, drops
// windows the organizer cannot attend, and scores the rest against
// participant availability. Output is sorted best first, ties broken by
// earliest start.
func (e *Engine) generate(req *core.MeetingRequest) ([]*core.CandidateSlot, error) {
	loc := time.UTC
	if req.Preferences.Timezone != "" {
		l, err := time.LoadLocation(req.Preferences.Timezone)
		if err != nil {
			return nil, core.NewValidationError("preferences.timezone", "unknown timezone")
		}
		loc = l
	}

	organizerBusy, err := e.model.BusyIntervals(req.OrganizerID, req.RangeStart, req.RangeEnd)
	if err != nil {
		return nil, fmt.Errorf("loading organizer availability: %w", err)
	}
	participants, err := e.model.ForParticipants(req.Participants, req.RangeStart, req.RangeEnd)
	if err != nil {
		return nil, fmt.Errorf("loading participant availability: %w", err)
	}

	gen := NewGenerator(req.RangeStart, req.RangeEnd, Constraints{
		Duration:      req.Duration(),
		WorkingHours:  e.workingHours(req),
		AllowWeekends: req.MeetingType.AllowsWeekends(),
		MaxCandidates: e.cfg.MaxCandidates,
		Location:      loc,
	})

	var slots []*core.CandidateSlot
	for {
		w, ok := gen.Next()
		if !ok {
			break
		}

		// The organizer must be free; their conflicts exclude the
		// window outright rather than lowering its score.
		if organizerConflicts(w, organizerBusy) {
			continue
		}

		det := Detect(w, participants)
		slot := Score(w, req, det, organizerBusy)
		slot.ID = core.SlotID(uuid.New().String())
		slots = append(slots, slot)
	}

	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Score != slots[j].Score {
			return slots[i].Score > slots[j].Score
		}
		return slots[i].Start.Before(slots[j].Start)
	})

	return slots, nil
}

// revalidate re-checks a slot snapshot against the organizer's calendar
// at confirmation time. Events synced in since generation can invalidate
// a slot.
func (e *Engine) revalidate(req *core.MeetingRequest, slot *core.CandidateSlot) error {
	busy, err := e.model.BusyIntervals(req.OrganizerID, slot.Start, slot.End)
	if err != nil {
		return fmt.Errorf("revalidating slot: %w", err)
	}
	for _, b := range busy {
		if b.Overlaps(slot.Start, slot.End) {
			return core.ErrSlotStale
		}
	}
	return nil
}

// workingHours picks the per-day candidate window: the whole day for
// urgent meetings, the first preferred time window when the request
// carries one, else the configured workday.
func (e *Engine) workingHours(req *core.MeetingRequest) core.TimeWindow {
	if req.MeetingType == core.MeetingUrgent {
		return core.TimeWindow{StartMinute: 0, EndMinute: 24 * 60}
	}
	if len(req.Preferences.PreferredTimes) > 0 {
		return req.Preferences.PreferredTimes[0]
	}
	hours := core.TimeWindow{StartMinute: e.cfg.WorkdayStart, EndMinute: e.cfg.WorkdayEnd}
	if hours.EndMinute <= hours.StartMinute {
		hours = DefaultWorkingHours
	}
	return hours
}

func organizerConflicts(w Window, busy []core.BusyInterval) bool {
	for _, b := range busy {
		if b.Overlaps(w.Start, w.End) {
			return true
		}
	}
	return false
}

// hints suggests request changes likely to unlock candidates.
func hints(req *core.MeetingRequest) []string {
	h := []string{HintExtendRange}
	if !req.MeetingType.AllowsWeekends() {
		h = append(h, HintAllowWeekends)
	}
	if req.DurationMinutes > 30 {
		h = append(h, HintShortenDuration)
	}
	return h
}

func validateRequest(req *core.MeetingRequest) error {
	if req.Title == "" {
		return core.NewValidationError("title", "must not be empty")
	}
	if req.OrganizerID == "" {
		return core.NewValidationError("organizer_id", "must not be empty")
	}
	if len(req.Participants) == 0 {
		return core.NewValidationError("participants", "must not be empty")
	}
	if req.DurationMinutes <= 0 {
		return core.NewValidationError("duration_minutes", "must be positive")
	}
	if req.DurationMinutes > 24*60 {
		return core.NewValidationError("duration_minutes", "must not exceed one day")
	}
	if !req.RangeStart.Before(req.RangeEnd) {
		return core.NewValidationError("range_start", "must be before range_end")
	}
	if req.BufferMinutes < 0 {
		return core.NewValidationError("buffer_minutes", "must not be negative")
	}
	switch req.MeetingType {
	case "", core.MeetingBusiness, core.MeetingPersonal, core.MeetingUrgent:
	default:
		return core.NewValidationError("meeting_type", "unknown meeting type")
	}
	switch req.LocationType {
	case "", core.LocationVirtual, core.LocationInPerson, core.LocationPhone:
	default:
		return core.NewValidationError("location_type", "unknown location type")
	}
	for _, w := range req.Preferences.PreferredTimes {
		if w.EndMinute <= w.StartMinute {
			return core.NewValidationError("preferences.preferred_times", "window end must be after start")
		}
	}
	for _, w := range req.Preferences.AvoidTimes {
		if w.EndMinute <= w.StartMinute {
			return core.NewValidationError("preferences.avoid_times", "window end must be after start")
		}
	}
	return nil
}
