package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/dayflow/dayflow/internal/core"
)

// Scoring weights. The base is neutral; factors add, penalties subtract.
// Everything here is fixed so identical inputs always rank identically.
const (
	scoreBase          = 0.50
	bonusNoConflicts   = 0.20
	bonusPreferredTime = 0.10
	bonusPreferredDay  = 0.10
	bonusBuffer        = 0.10
	bonusEarlinessMax  = 0.05

	penaltyConflictHard = 0.30 // per conflict when all participants are required
	penaltyConflictSoft = 0.10 // per conflict otherwise
	penaltyAvoidTime    = 0.15
	penaltyAvoidDay     = 0.15
	penaltyUnknown      = 0.05 // per participant with no availability data
)

// Optimal factor labels surfaced on candidate slots.
const (
	FactorNoConflicts    = "no conflicts"
	FactorPreferredHours = "within preferred hours"
	FactorPreferredDay   = "preferred day"
	FactorBufferOK       = "buffer respected"
)

// Score turns a candidate window plus its detection result into a ranked
// CandidateSlot. organizerBusy is the organizer's merged busy set, used
// for the buffer check against adjacent events.
func Score(w Window, req *core.MeetingRequest, det Detection, organizerBusy []core.BusyInterval) *core.CandidateSlot {
	score := scoreBase

	var factors []string
	var notes []string

	if !det.HasConflict {
		score += bonusNoConflicts
		factors = append(factors, FactorNoConflicts)
	}

	prefs := req.Preferences

	if inAnyWindow(w.Start, prefs.PreferredTimes) {
		score += bonusPreferredTime
		factors = append(factors, FactorPreferredHours)
	}
	if onAnyDay(w.Start.Weekday(), prefs.PreferredDays) {
		score += bonusPreferredDay
		factors = append(factors, FactorPreferredDay)
	}
	if bufferRespected(w, req.BufferMinutes, organizerBusy) {
		score += bonusBuffer
		factors = append(factors, FactorBufferOK)
	}

	// Sooner is marginally better, all else equal.
	score += earlinessBonus(w.Start, req.RangeStart, req.RangeEnd)

	if det.HasConflict {
		perConflict := penaltyConflictSoft
		if prefs.RequireAllParticipants {
			perConflict = penaltyConflictHard
		}
		score -= perConflict * float64(len(det.ConflictingParticipants))
		notes = append(notes, fmt.Sprintf("%d participant(s) busy", len(det.ConflictingParticipants)))
	}

	if inAnyWindow(w.Start, prefs.AvoidTimes) {
		score -= penaltyAvoidTime
		notes = append(notes, "falls in an avoided time window")
	}
	if onAnyDay(w.Start.Weekday(), prefs.AvoidDays) {
		score -= penaltyAvoidDay
		notes = append(notes, "falls on an avoided day")
	}
	if n := len(det.UnknownParticipants); n > 0 {
		score -= penaltyUnknown * float64(n)
		notes = append(notes, fmt.Sprintf("%d participant(s) with unknown availability", n))
	}

	if score < 0 {
		score = 0
	}

	return &core.CandidateSlot{
		MeetingID:      req.ID,
		Start:          w.Start,
		End:            w.End,
		Score:          score,
		Confidence:     confidence(req.Participants, det),
		Conflicts:      det.ConflictingParticipants,
		Reasoning:      reasoning(factors, notes),
		OptimalFactors: factors,
	}
}

// confidence is the share of participants with known, conflict-free
// availability, clipped to [0, 1]. It is independent of the score.
func confidence(participants []string, det Detection) float64 {
	total := len(participants)
	if total == 0 {
		return 1
	}

	clear := total - len(det.ConflictingParticipants) - len(det.UnknownParticipants)
	if clear < 0 {
		clear = 0
	}

	c := float64(clear) / float64(total)
	if c > 1 {
		c = 1
	}
	return c
}

// bufferRespected checks whether the gap to the organizer's adjacent busy
// intervals is at least the requested preparation buffer. With no
// adjacent events the buffer is trivially respected.
func bufferRespected(w Window, bufferMinutes int, busy []core.BusyInterval) bool {
	if bufferMinutes <= 0 {
		return true
	}
	buffer := time.Duration(bufferMinutes) * time.Minute

	for _, b := range busy {
		// Preceding event too close
		if !b.End.After(w.Start) && w.Start.Sub(b.End) < buffer {
			return false
		}
		// Following event too close
		if !b.Start.Before(w.End) && b.Start.Sub(w.End) < buffer {
			return false
		}
	}
	return true
}

// earlinessBonus scales linearly from bonusEarlinessMax at the start of
// the search range down to 0 at its end.
func earlinessBonus(start, rangeStart, rangeEnd time.Time) float64 {
	width := rangeEnd.Sub(rangeStart)
	if width <= 0 {
		return 0
	}
	fraction := float64(start.Sub(rangeStart)) / float64(width)
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return bonusEarlinessMax * (1 - fraction)
}

func inAnyWindow(t time.Time, windows []core.TimeWindow) bool {
	for _, w := range windows {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

func onAnyDay(d time.Weekday, days []time.Weekday) bool {
	for _, day := range days {
		if day == d {
			return true
		}
	}
	return false
}

// reasoning renders the fired factors and penalties into one deterministic
// human-readable line.
func reasoning(factors, notes []string) string {
	switch {
	case len(factors) == 0 && len(notes) == 0:
		return "workable slot"
	case len(notes) == 0:
		return strings.Join(factors, ", ")
	case len(factors) == 0:
		return strings.Join(notes, "; ")
	default:
		return strings.Join(factors, ", ") + "; " + strings.Join(notes, "; ")
	}
}
