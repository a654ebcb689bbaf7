package scheduling

import (
	"github.com/dayflow/dayflow/internal/availability"
)

// Detection is the per-candidate result of conflict detection.
type Detection struct {
	HasConflict bool
	// ConflictingParticipants lists ids whose busy intervals overlap the
	// candidate, in participant order.
	ConflictingParticipants []string
	// UnknownParticipants have no availability data. They contribute no
	// conflict; the scorer discounts confidence instead.
	UnknownParticipants []string
}

// Detect checks one candidate window against the participants' busy
// intervals. Two intervals conflict iff start < other.end && end >
// other.start - the half-open rule, so touching endpoints never conflict.
func Detect(w Window, participants []availability.ParticipantAvailability) Detection {
	var det Detection

	for _, p := range participants {
		if !p.Known {
			det.UnknownParticipants = append(det.UnknownParticipants, p.ParticipantID)
			continue
		}

		for _, busy := range p.Busy {
			if busy.Overlaps(w.Start, w.End) {
				det.ConflictingParticipants = append(det.ConflictingParticipants, p.ParticipantID)
				break
			}
		}
	}

	det.HasConflict = len(det.ConflictingParticipants) > 0
	return det
}
