package scheduling

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dayflow/dayflow/internal/availability"
	"github.com/dayflow/dayflow/internal/config"
	"github.com/dayflow/dayflow/internal/core"
	"github.com/dayflow/dayflow/internal/storage"
)

type testEnv struct {
	engine   *Engine
	events   *storage.EventStore
	meetings *storage.MeetingStore
	notified *recordingNotifier
}

type recordingNotifier struct {
	mu        sync.Mutex
	scheduled []core.MeetingID
	cancelled []core.MeetingID
}

func (n *recordingNotifier) MeetingScheduled(req *core.MeetingRequest, _ *core.CandidateSlot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scheduled = append(n.scheduled, req.ID)
}

func (n *recordingNotifier) MeetingCancelled(req *core.MeetingRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, req.ID)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.Open(storage.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	events := storage.NewEventStore(db)
	meetings := storage.NewMeetingStore(db)
	model := availability.NewModel(events, availability.SelfResolver)
	notified := &recordingNotifier{}

	cfg := config.SchedulingConfig{
		MaxCandidates: 40,
		TopN:          10,
		WorkdayStart:  9 * 60,
		WorkdayEnd:    17 * 60,
	}

	return &testEnv{
		engine:   NewEngine(meetings, events, model, cfg, notified),
		events:   events,
		meetings: meetings,
		notified: notified,
	}
}

func (env *testEnv) addEvent(t *testing.T, owner string, start, end time.Time) {
	t.Helper()
	err := env.events.Create(&core.CalendarEvent{
		ID:      core.EventID("evt-" + owner + "-" + start.Format("02T1504")),
		OwnerID: owner,
		Title:   "busy",
		Start:   start,
		End:     end,
		Status:  core.EventConfirmed,
		Source:  core.SourceLocal,
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
}

func newRequest() *core.MeetingRequest {
	return &core.MeetingRequest{
		OrganizerID:     "organizer",
		Title:           "Planning",
		Participants:    []string{"alice"},
		DurationMinutes: 60,
		MeetingType:     core.MeetingBusiness,
		RangeStart:      day(0, 0, 0),
		RangeEnd:        day(1, 0, 0),
	}
}

func TestCreateRequestGeneratesRankedSlots(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.engine.CreateRequest(newRequest())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	if result.Request.Status != core.MeetingPending {
		t.Errorf("status = %v, want pending", result.Request.Status)
	}
	if len(result.Slots) != 8 {
		t.Fatalf("expected 8 slots for one free workday, got %d", len(result.Slots))
	}
	for i := 1; i < len(result.Slots); i++ {
		prev, cur := result.Slots[i-1], result.Slots[i]
		if cur.Score > prev.Score {
			t.Errorf("slot %d score %v above predecessor %v", i, cur.Score, prev.Score)
		}
		if cur.Score == prev.Score && cur.Start.Before(prev.Start) {
			t.Errorf("equal-score slots out of start order at %d", i)
		}
	}

	// Generation is persistent; a reload sees the same slots.
	got, err := env.engine.Get("organizer", result.Request.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Slots) != len(result.Slots) {
		t.Errorf("reloaded %d slots, want %d", len(got.Slots), len(result.Slots))
	}
}

func TestCreateRequestDeterministic(t *testing.T) {
	env := newTestEnv(t)

	first, err := env.engine.CreateRequest(newRequest())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	second, err := env.engine.CreateRequest(newRequest())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	if len(first.Slots) != len(second.Slots) {
		t.Fatalf("slot counts differ: %d vs %d", len(first.Slots), len(second.Slots))
	}
	for i := range first.Slots {
		a, b := first.Slots[i], second.Slots[i]
		if !a.Start.Equal(b.Start) || a.Score != b.Score || a.Reasoning != b.Reasoning {
			t.Errorf("slot %d differs between identical requests", i)
		}
	}
}

func TestCreateRequestOrganizerConflictsExcludeWindows(t *testing.T) {
	env := newTestEnv(t)
	// Organizer busy 10:00-12:00; those windows must not appear at all.
	env.addEvent(t, "organizer", day(0, 10, 0), day(0, 12, 0))

	result, err := env.engine.CreateRequest(newRequest())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	for _, slot := range result.Slots {
		if slot.Start.Before(day(0, 12, 0)) && slot.End.After(day(0, 10, 0)) {
			t.Errorf("slot %v-%v overlaps the organizer's busy block", slot.Start, slot.End)
		}
	}
	if len(result.Slots) != 6 {
		t.Errorf("expected 6 remaining windows, got %d", len(result.Slots))
	}
}

func TestCreateRequestParticipantConflictsOnlyLowerScore(t *testing.T) {
	env := newTestEnv(t)
	// Alice busy 9-16; only 16:00-17:00 is clean but the busy windows
	// stay in the candidate set with conflicts recorded.
	env.addEvent(t, "alice", day(0, 9, 0), day(0, 16, 0))

	result, err := env.engine.CreateRequest(newRequest())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if len(result.Slots) != 8 {
		t.Fatalf("expected all 8 windows retained, got %d", len(result.Slots))
	}

	best := result.Slots[0]
	if !best.Start.Equal(day(0, 16, 0)) {
		t.Errorf("best slot starts %v, want the conflict-free 16:00", best.Start)
	}
	if len(best.Conflicts) != 0 {
		t.Errorf("best slot carries conflicts %v", best.Conflicts)
	}

	last := result.Slots[len(result.Slots)-1]
	if len(last.Conflicts) != 1 || last.Conflicts[0] != "alice" {
		t.Errorf("conflicting slot records %v, want [alice]", last.Conflicts)
	}
}

func TestCreateRequestPreferredWindowDrivesGeneration(t *testing.T) {
	env := newTestEnv(t)

	req := newRequest()
	req.Preferences.PreferredTimes = []core.TimeWindow{{StartMinute: 18 * 60, EndMinute: 20 * 60}}

	result, err := env.engine.CreateRequest(req)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if len(result.Slots) == 0 {
		t.Fatal("expected candidates inside the preferred evening window")
	}
	for _, slot := range result.Slots {
		startMin := slot.Start.Hour()*60 + slot.Start.Minute()
		endMin := startMin + int(slot.End.Sub(slot.Start).Minutes())
		if startMin < 18*60 || endMin > 20*60 {
			t.Errorf("slot %v-%v falls outside the 18:00-20:00 preference", slot.Start, slot.End)
		}
	}
}

func TestCreateRequestZeroCandidatesYieldsHints(t *testing.T) {
	env := newTestEnv(t)
	// Organizer fully booked for the whole day.
	env.addEvent(t, "organizer", day(0, 9, 0), day(0, 17, 0))

	result, err := env.engine.CreateRequest(newRequest())
	if err != nil {
		t.Fatalf("zero candidates is not an error, got %v", err)
	}
	if len(result.Slots) != 0 {
		t.Fatalf("expected no slots, got %d", len(result.Slots))
	}
	if len(result.Hints) == 0 {
		t.Fatal("expected alternative hints")
	}

	hints := map[string]bool{}
	for _, h := range result.Hints {
		hints[h] = true
	}
	if !hints[HintExtendRange] || !hints[HintAllowWeekends] || !hints[HintShortenDuration] {
		t.Errorf("hints = %v, missing expected suggestions", result.Hints)
	}
}

func TestCreateRequestValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		mutate func(*core.MeetingRequest)
	}{
		{"empty title", func(r *core.MeetingRequest) { r.Title = "" }},
		{"zero duration", func(r *core.MeetingRequest) { r.DurationMinutes = 0 }},
		{"negative duration", func(r *core.MeetingRequest) { r.DurationMinutes = -30 }},
		{"inverted range", func(r *core.MeetingRequest) { r.RangeStart, r.RangeEnd = r.RangeEnd, r.RangeStart }},
		{"bad meeting type", func(r *core.MeetingRequest) { r.MeetingType = "brainstorm" }},
		{"negative buffer", func(r *core.MeetingRequest) { r.BufferMinutes = -5 }},
		{"inverted preferred window", func(r *core.MeetingRequest) {
			r.Preferences.PreferredTimes = []core.TimeWindow{{StartMinute: 600, EndMinute: 540}}
		}},
		{"no participants", func(r *core.MeetingRequest) { r.Participants = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest()
			tt.mutate(req)
			_, err := env.engine.CreateRequest(req)
			if !core.IsValidation(err) {
				t.Errorf("error = %v, want validation kind", err)
			}
		})
	}
}

func TestConfirmMaterializesEvent(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.engine.CreateRequest(newRequest())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	best := result.Slots[0]

	confirmed, event, err := env.engine.Confirm("organizer", result.Request.ID, best.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if confirmed.Status != core.MeetingScheduled {
		t.Errorf("status = %v, want scheduled", confirmed.Status)
	}
	if confirmed.SelectedSlot == nil || !confirmed.SelectedSlot.Start.Equal(best.Start) {
		t.Error("selected slot snapshot missing or wrong")
	}
	if confirmed.EventID == "" {
		t.Fatal("no event materialized")
	}
	if event == nil || event.ID != confirmed.EventID {
		t.Fatal("returned event missing or does not match the request's event id")
	}

	stored, err := env.events.GetByID(confirmed.EventID)
	if err != nil {
		t.Fatalf("load materialized event: %v", err)
	}
	if stored.Source != core.SourceAIScheduled {
		t.Errorf("event source = %v, want ai_scheduled", stored.Source)
	}
	if !stored.Start.Equal(best.Start) || !stored.End.Equal(best.End) {
		t.Errorf("event %v-%v does not match slot %v-%v", stored.Start, stored.End, best.Start, best.End)
	}

	if len(env.notified.scheduled) != 1 {
		t.Errorf("scheduled notifications = %d, want 1", len(env.notified.scheduled))
	}
}

func TestConfirmConcurrentExactlyOnce(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.engine.CreateRequest(newRequest())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if len(result.Slots) < 2 {
		t.Fatal("need at least two slots")
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = env.engine.Confirm("organizer", result.Request.ID, result.Slots[i].ID)
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, core.ErrMeetingNotPending):
			losses++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("wins = %d, losses = %d, want exactly one of each", wins, losses)
	}

	// Exactly one event exists for the organizer at a confirmed slot.
	final, err := env.engine.Get("organizer", result.Request.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	events, err := env.events.ListForUser("organizer", day(0, 0, 0), day(1, 0, 0))
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one materialized event, got %d", len(events))
	}
	if final.Request.EventID != events[0].ID {
		t.Error("request points at a different event than the one stored")
	}
}

func TestConfirmStaleSlot(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.engine.CreateRequest(newRequest())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	best := result.Slots[0]

	// A new event lands on the slot between generation and confirm.
	env.addEvent(t, "organizer", best.Start, best.End)

	_, _, err = env.engine.Confirm("organizer", result.Request.ID, best.ID)
	if !errors.Is(err, core.ErrSlotStale) {
		t.Fatalf("error = %v, want ErrSlotStale", err)
	}
	if !core.IsConflict(err) {
		t.Error("stale slot must classify as the conflict kind")
	}

	// The request stays pending and confirmable on another slot.
	got, _ := env.engine.Get("organizer", result.Request.ID)
	if got.Request.Status != core.MeetingPending {
		t.Errorf("status = %v, want still pending", got.Request.Status)
	}
}

func TestConfirmOwnershipAndMembership(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.engine.CreateRequest(newRequest())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	if _, _, err := env.engine.Confirm("intruder", result.Request.ID, result.Slots[0].ID); !errors.Is(err, core.ErrNotOrganizer) {
		t.Errorf("foreign confirm error = %v, want ErrNotOrganizer", err)
	}

	other, err := env.engine.CreateRequest(newRequest())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if _, _, err := env.engine.Confirm("organizer", result.Request.ID, other.Slots[0].ID); !errors.Is(err, core.ErrSlotNotFound) {
		t.Errorf("cross-request slot error = %v, want ErrSlotNotFound", err)
	}
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.engine.CreateRequest(newRequest())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	cancelled, err := env.engine.Cancel("organizer", result.Request.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != core.MeetingCancelled {
		t.Errorf("status = %v, want cancelled", cancelled.Status)
	}
	if len(env.notified.cancelled) != 1 {
		t.Errorf("cancelled notifications = %d, want 1", len(env.notified.cancelled))
	}

	// Terminal states reject further transitions.
	if _, err := env.engine.Cancel("organizer", result.Request.ID); !errors.Is(err, core.ErrMeetingNotPending) {
		t.Errorf("double cancel error = %v, want ErrMeetingNotPending", err)
	}
	if _, _, err := env.engine.Confirm("organizer", result.Request.ID, result.Slots[0].ID); !errors.Is(err, core.ErrMeetingNotPending) {
		t.Errorf("confirm after cancel error = %v, want ErrMeetingNotPending", err)
	}
}

func TestUpdateRequestSupersedesSlots(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.engine.CreateRequest(newRequest())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	oldSlot := result.Slots[0]

	updated := newRequest()
	updated.ID = result.Request.ID
	updated.DurationMinutes = 120

	regen, err := env.engine.UpdateRequest("organizer", updated)
	if err != nil {
		t.Fatalf("UpdateRequest: %v", err)
	}
	for _, slot := range regen.Slots {
		if slot.End.Sub(slot.Start) != 2*time.Hour {
			t.Errorf("slot %v-%v does not match the new duration", slot.Start, slot.End)
		}
	}

	// The superseded slot is gone and can never be confirmed.
	if _, _, err := env.engine.Confirm("organizer", result.Request.ID, oldSlot.ID); !errors.Is(err, core.ErrSlotNotFound) {
		t.Errorf("confirm of superseded slot = %v, want ErrSlotNotFound", err)
	}
}

func TestUpdateRequestTerminalRejected(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.engine.CreateRequest(newRequest())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if _, err := env.engine.Cancel("organizer", result.Request.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	updated := newRequest()
	updated.ID = result.Request.ID
	if _, err := env.engine.UpdateRequest("organizer", updated); !errors.Is(err, core.ErrMeetingNotPending) {
		t.Errorf("update of terminal request = %v, want ErrMeetingNotPending", err)
	}
}

func TestGetOwnership(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.engine.CreateRequest(newRequest())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	if _, err := env.engine.Get("intruder", result.Request.ID); !errors.Is(err, core.ErrNotOrganizer) {
		t.Errorf("foreign get error = %v, want ErrNotOrganizer", err)
	}
	if _, err := env.engine.Get("organizer", "no-such-meeting"); !errors.Is(err, core.ErrMeetingNotFound) {
		t.Errorf("missing meeting error = %v, want ErrMeetingNotFound", err)
	}
}
