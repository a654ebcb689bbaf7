package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dayflow/dayflow/internal/availability"
	"github.com/dayflow/dayflow/internal/config"
	"github.com/dayflow/dayflow/internal/core"
	"github.com/dayflow/dayflow/internal/notifications"
	"github.com/dayflow/dayflow/internal/scheduling"
	"github.com/dayflow/dayflow/internal/storage"
	dsync "github.com/dayflow/dayflow/internal/sync"
)

// base is a Monday, so a one-day business-hours range always yields slots.
var base = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

type apiEnv struct {
	server *Server
	events *storage.EventStore
	conns  *storage.ConnectionStore
}

func newTestServer(t *testing.T) *apiEnv {
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
	conns := storage.NewConnectionStore(db)
	model := availability.NewModel(events, availability.SelfResolver)

	notifSvc := notifications.NewService(db)
	engine := scheduling.NewEngine(meetings, events, model, config.SchedulingConfig{
		MaxCandidates: 40,
		TopN:          10,
		WorkdayStart:  9 * 60,
		WorkdayEnd:    17 * 60,
	}, notifications.NewSchedulerNotifier(notifSvc))

	registry := dsync.NewRegistry()
	registry.Register(core.SourceGoogle, &stubProvider{})
	reconciler := dsync.NewReconciler(events, conns, registry, config.SyncConfig{
		CallTimeout:  config.Duration(10 * time.Second),
		GracePeriod:  config.Duration(24 * time.Hour),
		FutureWindow: config.Duration(30 * 24 * time.Hour),
	}, nil)

	srv := New(Config{
		Port:                0,
		DB:                  db,
		Engine:              engine,
		Reconciler:          reconciler,
		NotificationService: notifSvc,
	})

	return &apiEnv{server: srv, events: events, conns: conns}
}

// stubProvider answers with a fixed remote event set and records pushes.
type stubProvider struct {
	mu     sync.Mutex
	remote []dsync.ProviderEvent
	pushed []dsync.ProviderEvent
}

func (p *stubProvider) ListEvents(_ context.Context, _ *core.CalendarConnection, _, _ time.Time) ([]dsync.ProviderEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dsync.ProviderEvent(nil), p.remote...), nil
}

func (p *stubProvider) CreateEvent(_ context.Context, _ *core.CalendarConnection, ev dsync.ProviderEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, ev)
	return fmt.Sprintf("ext-%d", len(p.pushed)), nil
}

func (env *apiEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

type meetingCreateResponse struct {
	MeetingRequestID core.MeetingID        `json:"meeting_request_id"`
	Meeting          *core.MeetingRequest  `json:"meeting"`
	Slots            []*core.CandidateSlot `json:"suggested_slots"`
	Alternatives     []string              `json:"alternatives"`
}

type meetingConfirmResponse struct {
	EventID       core.EventID         `json:"event_id"`
	Meeting       *core.MeetingRequest `json:"meeting"`
	CalendarEvent *core.CalendarEvent  `json:"calendar_event"`
}

func meetingBody() map[string]interface{} {
	return map[string]interface{}{
		"title":            "Planning",
		"participants":     []string{"alice"},
		"duration_minutes": 60,
		"meeting_type":     "business",
		"range_start":      base,
		"range_end":        base.AddDate(0, 0, 1),
	}
}

func TestCreateMeetingReturnsRankedSlots(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodPost, "/api/v1/meetings", meetingBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	result := decode[meetingCreateResponse](t, rec)
	if result.MeetingRequestID == "" || result.Meeting == nil || result.MeetingRequestID != result.Meeting.ID {
		t.Fatalf("meeting_request_id and meeting disagree: %q vs %+v", result.MeetingRequestID, result.Meeting)
	}
	if result.Meeting.Status != core.MeetingPending {
		t.Errorf("status = %v, want pending", result.Meeting.Status)
	}
	if len(result.Slots) == 0 {
		t.Fatal("expected candidate slots")
	}
	for i := 1; i < len(result.Slots); i++ {
		if result.Slots[i].Score > result.Slots[i-1].Score {
			t.Errorf("slots out of score order at %d", i)
		}
	}
}

func TestCreateMeetingValidationReportsField(t *testing.T) {
	env := newTestServer(t)

	body := meetingBody()
	body["duration_minutes"] = 0

	rec := env.do(t, http.MethodPost, "/api/v1/meetings", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	resp := decode[map[string]string](t, rec)
	if resp["field"] != "duration_minutes" {
		t.Errorf("field = %q, want duration_minutes", resp["field"])
	}
}

func TestGetMeetingUnknownIs404(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/meetings/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestConfirmMeetingFlow(t *testing.T) {
	env := newTestServer(t)

	created := decode[meetingCreateResponse](t, env.do(t, http.MethodPost, "/api/v1/meetings", meetingBody()))
	meetingID := created.MeetingRequestID
	slotID := created.Slots[0].ID

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/meetings/%s/confirm", meetingID), map[string]string{"slot_id": string(slotID)})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d, body = %s", rec.Code, rec.Body.String())
	}

	confirmed := decode[meetingConfirmResponse](t, rec)
	if confirmed.Meeting == nil || confirmed.Meeting.Status != core.MeetingScheduled {
		t.Errorf("meeting = %+v, want scheduled", confirmed.Meeting)
	}
	if confirmed.EventID == "" {
		t.Error("expected a materialized event id")
	}
	if confirmed.CalendarEvent == nil || confirmed.CalendarEvent.ID != confirmed.EventID {
		t.Errorf("calendar_event = %+v, want the event behind event_id %s", confirmed.CalendarEvent, confirmed.EventID)
	}

	event, err := env.events.GetByID(confirmed.EventID)
	if err != nil {
		t.Fatalf("load scheduled event: %v", err)
	}
	if event.Source != core.SourceAIScheduled {
		t.Errorf("event source = %v, want ai_scheduled", event.Source)
	}

	// A second confirm hits a terminal meeting.
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/meetings/%s/confirm", meetingID), map[string]string{"slot_id": string(slotID)})
	if rec.Code != http.StatusConflict {
		t.Errorf("re-confirm status = %d, want 409", rec.Code)
	}
}

func TestConfirmMeetingRequiresSlotID(t *testing.T) {
	env := newTestServer(t)

	created := decode[meetingCreateResponse](t, env.do(t, http.MethodPost, "/api/v1/meetings", meetingBody()))

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/meetings/%s/confirm", created.MeetingRequestID), map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCancelMeeting(t *testing.T) {
	env := newTestServer(t)

	created := decode[meetingCreateResponse](t, env.do(t, http.MethodPost, "/api/v1/meetings", meetingBody()))

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/meetings/%s/cancel", created.MeetingRequestID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rec.Code)
	}
	cancelled := decode[core.MeetingRequest](t, rec)
	if cancelled.Status != core.MeetingCancelled {
		t.Errorf("status = %v, want cancelled", cancelled.Status)
	}

	// Cancelled meetings reject updates.
	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/meetings/%s", created.MeetingRequestID), meetingBody())
	if rec.Code != http.StatusConflict {
		t.Errorf("update after cancel status = %d, want 409", rec.Code)
	}
}

func TestListMeetings(t *testing.T) {
	env := newTestServer(t)

	env.do(t, http.MethodPost, "/api/v1/meetings", meetingBody())
	env.do(t, http.MethodPost, "/api/v1/meetings", meetingBody())

	rec := env.do(t, http.MethodGet, "/api/v1/meetings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[struct {
		Count int `json:"count"`
	}](t, rec)
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Count)
	}

	for _, limit := range []string{"abc", "0", "-3"} {
		rec = env.do(t, http.MethodGet, "/api/v1/meetings?limit="+limit, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit %q status = %d, want 400", limit, rec.Code)
		}
	}
}

func TestEventCRUD(t *testing.T) {
	env := newTestServer(t)

	create := map[string]interface{}{
		"title": "Dentist",
		"start": base.Add(10 * time.Hour),
		"end":   base.Add(11 * time.Hour),
	}
	rec := env.do(t, http.MethodPost, "/api/v1/events", create)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	event := decode[core.CalendarEvent](t, rec)
	if event.Source != core.SourceLocal {
		t.Errorf("source = %v, want local", event.Source)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/events/"+string(event.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	update := map[string]interface{}{
		"title": "Dentist (moved)",
		"start": base.Add(14 * time.Hour),
		"end":   base.Add(15 * time.Hour),
	}
	rec = env.do(t, http.MethodPut, "/api/v1/events/"+string(event.ID), update)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", rec.Code, rec.Body.String())
	}
	updated := decode[core.CalendarEvent](t, rec)
	if updated.Title != "Dentist (moved)" {
		t.Errorf("title = %q", updated.Title)
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/events/"+string(event.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/v1/events/"+string(event.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestEventValidation(t *testing.T) {
	env := newTestServer(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing title", map[string]interface{}{
			"start": base, "end": base.Add(time.Hour),
		}},
		{"inverted times", map[string]interface{}{
			"title": "x", "start": base.Add(time.Hour), "end": base,
		}},
		{"bad status", map[string]interface{}{
			"title": "x", "start": base, "end": base.Add(time.Hour), "status": "maybe",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/events", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestForeignEventIsNotFound(t *testing.T) {
	env := newTestServer(t)

	err := env.events.Create(&core.CalendarEvent{
		ID:      "evt-other",
		OwnerID: "someone-else",
		Title:   "private",
		Start:   base.Add(9 * time.Hour),
		End:     base.Add(10 * time.Hour),
		Status:  core.EventConfirmed,
		Source:  core.SourceLocal,
	})
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/events/evt-other", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/api/v1/events/evt-other", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete status = %d, want 404", rec.Code)
	}
}

func TestConnectionLifecycle(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodPost, "/api/v1/connections", map[string]string{
		"provider":      "google",
		"credential_id": "cred-1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	conn := decode[core.CalendarConnection](t, rec)
	if conn.Direction != core.SyncBidirectional || conn.Policy != core.ConflictRemoteWins {
		t.Errorf("defaults not applied: %+v", conn)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/connections", nil)
	list := decode[struct {
		Count int `json:"count"`
	}](t, rec)
	if list.Count != 1 {
		t.Errorf("count = %d, want 1", list.Count)
	}

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/connections/%s/sync", conn.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync status = %d, body = %s", rec.Code, rec.Body.String())
	}
	result := decode[dsync.Result](t, rec)
	if len(result.Errors) != 0 {
		t.Errorf("sync errors: %v", result.Errors)
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/connections/"+string(conn.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("disconnect status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/v1/connections", nil)
	list = decode[struct {
		Count int `json:"count"`
	}](t, rec)
	if list.Count != 0 {
		t.Errorf("count after disconnect = %d, want 0", list.Count)
	}
}

func TestConnectionValidation(t *testing.T) {
	env := newTestServer(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"unknown provider", map[string]string{"provider": "caldav", "credential_id": "c"}},
		{"missing credential", map[string]string{"provider": "google"}},
		{"bad direction", map[string]string{"provider": "google", "credential_id": "c", "direction": "sideways"}},
		{"bad policy", map[string]string{"provider": "google", "credential_id": "c", "policy": "newest_wins"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/connections", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestNotificationEndpoints(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodPost, "/api/v1/notifications", map[string]string{
		"title": "hello",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	notif := decode[notifications.Notification](t, rec)

	rec = env.do(t, http.MethodGet, "/api/v1/notifications/unread-count", nil)
	count := decode[map[string]int](t, rec)
	if count["count"] != 1 {
		t.Errorf("unread count = %d, want 1", count["count"])
	}

	rec = env.do(t, http.MethodPost, "/api/v1/notifications/"+notif.ID+"/read", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark read status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/notifications/unread-count", nil)
	count = decode[map[string]int](t, rec)
	if count["count"] != 0 {
		t.Errorf("unread count = %d, want 0", count["count"])
	}
}

func TestOAuthURLUnconfigured(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/oauth/google/url", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[map[string]string](t, rec)
	if resp["status"] != "ok" {
		t.Errorf("status field = %q", resp["status"])
	}
}

func TestUserIsolation(t *testing.T) {
	env := newTestServer(t)

	created := decode[meetingCreateResponse](t, env.do(t, http.MethodPost, "/api/v1/meetings", meetingBody()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/meetings/"+string(created.MeetingRequestID), nil)
	req.Header.Set("X-User-ID", "intruder")
	rec := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign meeting status = %d, want 404", rec.Code)
	}
}
