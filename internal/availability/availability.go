// Package availability builds busy/free views of user calendars for the
// scheduling engine.
package availability

import (
	"sort"
	"time"

	"github.com/dayflow/dayflow/internal/core"
	"github.com/dayflow/dayflow/internal/storage"
)

// ParticipantAvailability is one participant's busy view over a range.
// Known is false for participants who are not registered users - their
// availability is "no data": never assumed free, never auto-rejected.
type ParticipantAvailability struct {
	ParticipantID string
	Known         bool
	Busy          []core.BusyInterval
}

// UserResolver maps participant identifiers (email addresses) to local
// user ids. Identifiers with no local user resolve to ("", false).
type UserResolver interface {
	ResolveUser(participantID string) (userID string, ok bool)
}

// ResolverFunc adapts a function to the UserResolver interface.
type ResolverFunc func(participantID string) (string, bool)

func (f ResolverFunc) ResolveUser(participantID string) (string, bool) {
	return f(participantID)
}

// SelfResolver treats every participant id as a local user id. Useful when
// the caller already works in user-id space (the organizer's own view).
var SelfResolver = ResolverFunc(func(id string) (string, bool) { return id, true })

// Model answers busy-interval queries from persisted calendar events.
type Model struct {
	events   *storage.EventStore
	resolver UserResolver
}

// NewModel creates an availability model over the event store.
func NewModel(events *storage.EventStore, resolver UserResolver) *Model {
	if resolver == nil {
		resolver = SelfResolver
	}
	return &Model{events: events, resolver: resolver}
}

// BusyIntervals returns the ordered, merged busy set for a user over
// [start, end). Confirmed and tentative events both count as busy;
// cancelled events are excluded at the store level. A merged interval is
// tentative only if every event inside it was tentative.
func (m *Model) BusyIntervals(userID string, start, end time.Time) ([]core.BusyInterval, error) {
	events, err := m.events.ListForUser(userID, start, end)
	if err != nil {
		return nil, err
	}

	intervals := make([]core.BusyInterval, 0, len(events))
	for _, event := range events {
		if !event.Start.Before(event.End) {
			continue // defective rows never poison scheduling
		}
		intervals = append(intervals, core.BusyInterval{
			Start:     event.Start,
			End:       event.End,
			SourceID:  event.ID,
			Tentative: event.Status == core.EventTentative,
		})
	}

	return Merge(intervals), nil
}

// ForParticipants builds per-participant availability for a candidate
// search. Unresolvable participants come back with Known=false.
func (m *Model) ForParticipants(participants []string, start, end time.Time) ([]ParticipantAvailability, error) {
	result := make([]ParticipantAvailability, 0, len(participants))

	for _, p := range participants {
		userID, ok := m.resolver.ResolveUser(p)
		if !ok {
			result = append(result, ParticipantAvailability{ParticipantID: p})
			continue
		}

		busy, err := m.BusyIntervals(userID, start, end)
		if err != nil {
			return nil, err
		}
		result = append(result, ParticipantAvailability{
			ParticipantID: p,
			Known:         true,
			Busy:          busy,
		})
	}

	return result, nil
}

// Merge sorts intervals by start and coalesces overlapping or touching
// spans into a non-overlapping ordered set.
func Merge(intervals []core.BusyInterval) []core.BusyInterval {
	if len(intervals) <= 1 {
		return intervals
	}

	sorted := make([]core.BusyInterval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := sorted[:1]
	for _, next := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !next.Start.After(last.End) {
			if next.End.After(last.End) {
				last.End = next.End
			}
			last.Tentative = last.Tentative && next.Tentative
			continue
		}
		merged = append(merged, next)
	}

	return merged
}
