// Package core defines the fundamental types for Dayflow.
// Every other package builds on these.
package core

import (
	"time"
)

// -----------------------------------------------------------------------------
// CALENDAR EVENT - The durable record of a time commitment
// -----------------------------------------------------------------------------

// EventID is a type-safe identifier for calendar events
type EventID string

// EventStatus represents the state of a calendar event
type EventStatus string

const (
	EventConfirmed EventStatus = "confirmed"
	EventTentative EventStatus = "tentative"
	EventCancelled EventStatus = "cancelled"
)

// EventSource identifies where an event originated
type EventSource string

const (
	SourceLocal       EventSource = "local"
	SourceGoogle      EventSource = "google"
	SourceOutlook     EventSource = "outlook"
	SourceAIScheduled EventSource = "ai_scheduled"
)

// CalendarEvent is a time commitment on a user's calendar, whether created
// manually, imported from a provider, or materialized from a confirmed
// meeting request. Invariant: Start < End. When ExternalID is set, the
// (OwnerID, Source, ExternalID) triple is unique - the reconciler's
// idempotency key.
type CalendarEvent struct {
	ID         EventID     `json:"id"`
	OwnerID    string      `json:"owner_id"`
	Title      string      `json:"title"`
	Start      time.Time   `json:"start"`
	End        time.Time   `json:"end"`
	Location   string      `json:"location,omitempty"`
	AllDay     bool        `json:"all_day"`
	Status     EventStatus `json:"status"`
	Source     EventSource `json:"source"`
	ExternalID string      `json:"external_id,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// -----------------------------------------------------------------------------
// BUSY INTERVAL - One occupied span on a participant's calendar
// -----------------------------------------------------------------------------

// BusyInterval is an occupied span derived from persisted events.
// Immutable once constructed. Invariant: Start < End.
type BusyInterval struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	SourceID EventID   `json:"source_id"`

	// Tentative marks a lower-confidence conflict.
	Tentative bool `json:"tentative,omitempty"`
}

// Overlaps reports whether the interval overlaps [start, end) under the
// half-open rule: touching endpoints do not conflict.
func (b BusyInterval) Overlaps(start, end time.Time) bool {
	return start.Before(b.End) && end.After(b.Start)
}

// -----------------------------------------------------------------------------
// MEETING REQUEST - One scheduling attempt
// -----------------------------------------------------------------------------

// MeetingID is a type-safe identifier for meeting requests
type MeetingID string

// MeetingStatus is the lifecycle state of a meeting request.
// pending -> scheduled | cancelled; scheduled and cancelled are terminal.
type MeetingStatus string

const (
	MeetingPending   MeetingStatus = "pending"
	MeetingScheduled MeetingStatus = "scheduled"
	MeetingCancelled MeetingStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s MeetingStatus) Terminal() bool {
	return s == MeetingScheduled || s == MeetingCancelled
}

// MeetingType affects weekend and after-hours eligibility
type MeetingType string

const (
	MeetingBusiness MeetingType = "business" // weekdays, working hours
	MeetingPersonal MeetingType = "personal" // weekends allowed
	MeetingUrgent   MeetingType = "urgent"   // weekends and after hours allowed
)

// AllowsWeekends reports whether the meeting type may land on Sat/Sun.
func (t MeetingType) AllowsWeekends() bool {
	return t == MeetingPersonal || t == MeetingUrgent
}

// LocationType describes where the meeting happens
type LocationType string

const (
	LocationVirtual  LocationType = "virtual"
	LocationInPerson LocationType = "in_person"
	LocationPhone    LocationType = "phone"
)

// TimeWindow is a time-of-day window in minutes from midnight,
// half-open: [StartMinute, EndMinute).
type TimeWindow struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// Contains reports whether the clock time t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return m >= w.StartMinute && m < w.EndMinute
}

// MeetingPreferences are the organizer's structured scheduling preferences.
// Free-text preferences arrive here already parsed; the scheduler never
// interprets natural language.
type MeetingPreferences struct {
	PreferredTimes         []TimeWindow   `json:"preferred_times,omitempty"`
	AvoidTimes             []TimeWindow   `json:"avoid_times,omitempty"`
	PreferredDays          []time.Weekday `json:"preferred_days,omitempty"`
	AvoidDays              []time.Weekday `json:"avoid_days,omitempty"`
	Timezone               string         `json:"timezone,omitempty"`
	RequireAllParticipants bool           `json:"require_all_participants"`
}

// MeetingRequest is the organizer's scheduling intent plus constraints.
// Created once; mutated only by the negotiation engine; never deleted.
type MeetingRequest struct {
	ID              MeetingID          `json:"id"`
	OrganizerID     string             `json:"organizer_id"`
	Title           string             `json:"title"`
	Participants    []string           `json:"participants"` // email-addressable, not necessarily users
	DurationMinutes int                `json:"duration_minutes"`
	MeetingType     MeetingType        `json:"meeting_type"`
	LocationType    LocationType       `json:"location_type"`
	Agenda          string             `json:"agenda,omitempty"`
	BufferMinutes   int                `json:"buffer_minutes"`
	Preferences     MeetingPreferences `json:"preferences"`
	Status          MeetingStatus      `json:"status"`

	// RangeStart/RangeEnd bound the search window for candidates.
	RangeStart time.Time `json:"range_start"`
	RangeEnd   time.Time `json:"range_end"`

	// SelectedSlot is the confirmed slot snapshot, set on transition
	// to scheduled.
	SelectedSlot *CandidateSlot `json:"selected_slot,omitempty"`
	EventID      EventID        `json:"event_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Duration returns the requested meeting duration.
func (m *MeetingRequest) Duration() time.Duration {
	return time.Duration(m.DurationMinutes) * time.Minute
}

// -----------------------------------------------------------------------------
// CANDIDATE SLOT - A proposed, scored meeting window
// -----------------------------------------------------------------------------

// SlotID is a type-safe identifier for candidate slots
type SlotID string

// CandidateSlot is a scored meeting window generated for a request.
// Candidates are ephemeral during generation; only the retained top-N are
// persisted for inspection and confirmation.
type CandidateSlot struct {
	ID        SlotID    `json:"id"`
	MeetingID MeetingID `json:"meeting_id"`
	Start     time.Time `json:"start_time"`
	End       time.Time `json:"end_time"`

	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"` // 0-1

	Conflicts      []string `json:"conflicts,omitempty"` // conflicting participant ids
	Reasoning      string   `json:"reasoning"`
	OptimalFactors []string `json:"optimal_factors,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// -----------------------------------------------------------------------------
// CALENDAR CONNECTION - Authorized link to an external provider
// -----------------------------------------------------------------------------

// ConnectionID is a type-safe identifier for calendar connections
type ConnectionID string

// SyncDirection controls which way events flow for a connection
type SyncDirection string

const (
	SyncImport        SyncDirection = "import"
	SyncExport        SyncDirection = "export"
	SyncBidirectional SyncDirection = "bidirectional"
)

// Imports reports whether provider events flow into local storage.
func (d SyncDirection) Imports() bool {
	return d == SyncImport || d == SyncBidirectional
}

// Exports reports whether local events flow out to the provider.
func (d SyncDirection) Exports() bool {
	return d == SyncExport || d == SyncBidirectional
}

// ConflictPolicy resolves divergence between local and remote copies
type ConflictPolicy string

const (
	ConflictRemoteWins ConflictPolicy = "remote_wins"
	ConflictLocalWins  ConflictPolicy = "local_wins"
)

// CalendarConnection links a user to an external calendar provider.
// Mutated by the sync engine after every reconciliation pass.
type CalendarConnection struct {
	ID           ConnectionID   `json:"id"`
	OwnerID      string         `json:"owner_id"`
	Provider     EventSource    `json:"provider"` // google | outlook
	Direction    SyncDirection  `json:"direction"`
	Policy       ConflictPolicy `json:"policy"`
	CredentialID string         `json:"credential_id"`
	CalendarID   string         `json:"calendar_id"` // provider-side calendar, "" = primary
	IsActive     bool           `json:"is_active"`
	LastSyncAt   *time.Time     `json:"last_sync_at,omitempty"`
	LastError    string         `json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
