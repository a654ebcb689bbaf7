package scheduling

import (
	"reflect"
	"testing"
	"time"

	"github.com/dayflow/dayflow/internal/availability"
	"github.com/dayflow/dayflow/internal/core"
)

func busy(start, end time.Time) core.BusyInterval {
	return core.BusyInterval{Start: start, End: end}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name         string
		window       Window
		participants []availability.ParticipantAvailability
		conflicting  []string
		unknown      []string
	}{
		{
			name:   "all free",
			window: Window{Start: day(0, 10, 0), End: day(0, 11, 0)},
			participants: []availability.ParticipantAvailability{
				{ParticipantID: "alice", Known: true},
				{ParticipantID: "bob", Known: true},
			},
		},
		{
			name:   "touching endpoints do not conflict",
			window: Window{Start: day(0, 10, 0), End: day(0, 11, 0)},
			participants: []availability.ParticipantAvailability{
				{ParticipantID: "alice", Known: true, Busy: []core.BusyInterval{
					busy(day(0, 9, 0), day(0, 10, 0)),
					busy(day(0, 11, 0), day(0, 12, 0)),
				}},
			},
		},
		{
			name:   "partial overlap conflicts",
			window: Window{Start: day(0, 14, 0), End: day(0, 14, 30)},
			participants: []availability.ParticipantAvailability{
				{ParticipantID: "alice", Known: true, Busy: []core.BusyInterval{
					busy(day(0, 14, 15), day(0, 14, 45)),
				}},
			},
			conflicting: []string{"alice"},
		},
		{
			name:   "containment conflicts",
			window: Window{Start: day(0, 10, 0), End: day(0, 12, 0)},
			participants: []availability.ParticipantAvailability{
				{ParticipantID: "alice", Known: true, Busy: []core.BusyInterval{
					busy(day(0, 10, 30), day(0, 11, 0)),
				}},
			},
			conflicting: []string{"alice"},
		},
		{
			name:   "unknown participant is not a conflict",
			window: Window{Start: day(0, 10, 0), End: day(0, 11, 0)},
			participants: []availability.ParticipantAvailability{
				{ParticipantID: "alice", Known: true},
				{ParticipantID: "ext@example.com"},
			},
			unknown: []string{"ext@example.com"},
		},
		{
			name:   "participant order preserved",
			window: Window{Start: day(0, 10, 0), End: day(0, 11, 0)},
			participants: []availability.ParticipantAvailability{
				{ParticipantID: "bob", Known: true, Busy: []core.BusyInterval{
					busy(day(0, 10, 0), day(0, 10, 30)),
				}},
				{ParticipantID: "alice", Known: true, Busy: []core.BusyInterval{
					busy(day(0, 10, 0), day(0, 11, 0)),
				}},
			},
			conflicting: []string{"bob", "alice"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := Detect(tt.window, tt.participants)

			wantConflict := len(tt.conflicting) > 0
			if det.HasConflict != wantConflict {
				t.Errorf("HasConflict = %v, want %v", det.HasConflict, wantConflict)
			}
			if !reflect.DeepEqual(det.ConflictingParticipants, tt.conflicting) {
				t.Errorf("conflicting = %v, want %v", det.ConflictingParticipants, tt.conflicting)
			}
			if !reflect.DeepEqual(det.UnknownParticipants, tt.unknown) {
				t.Errorf("unknown = %v, want %v", det.UnknownParticipants, tt.unknown)
			}
		})
	}
}
