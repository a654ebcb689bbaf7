// Package scheduling implements the meeting scheduling core: candidate
// window generation, conflict detection, ranking, and the negotiation
// lifecycle of a meeting request.
package scheduling

import (
	"time"

	"github.com/dayflow/dayflow/internal/core"
)

// Window is one candidate meeting window, half-open [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Constraints bound a candidate walk.
type Constraints struct {
	Duration      time.Duration
	Granularity   time.Duration   // step between window starts, default 1h
	WorkingHours  core.TimeWindow // effective working window per day
	AllowWeekends bool
	MaxCandidates int            // 0 = uncapped
	Location      *time.Location // timezone the day grid lives in, default UTC
}

// DefaultWorkingHours is the 09:00-17:00 fallback used when the request
// carries no preferred time window.
var DefaultWorkingHours = core.TimeWindow{StartMinute: 9 * 60, EndMinute: 17 * 60}

// Generator walks a date range day by day and yields candidate windows.
// It is lazy, finite, and restartable; generating has no side effects, so
// a caller may stop consuming at any point.
type Generator struct {
	rangeStart time.Time
	rangeEnd   time.Time
	c          Constraints

	day     time.Time // midnight of the day being walked
	minute  int       // offset into the day, minutes from midnight
	emitted int
}

// NewGenerator creates a generator over [rangeStart, rangeEnd).
func NewGenerator(rangeStart, rangeEnd time.Time, c Constraints) *Generator {
	if c.Granularity <= 0 {
		c.Granularity = time.Hour
	}
	if c.WorkingHours.EndMinute <= c.WorkingHours.StartMinute {
		c.WorkingHours = DefaultWorkingHours
	}
	if c.Location == nil {
		c.Location = time.UTC
	}

	g := &Generator{
		rangeStart: rangeStart.In(c.Location),
		rangeEnd:   rangeEnd.In(c.Location),
		c:          c,
	}
	g.Reset()
	return g
}

// Reset rewinds the generator to the start of the range.
func (g *Generator) Reset() {
	g.day = midnight(g.rangeStart)
	g.minute = g.c.WorkingHours.StartMinute
	g.emitted = 0
}

// Next returns the next candidate window. The second return value is
// false once the range or the candidate cap is exhausted.
func (g *Generator) Next() (Window, bool) {
	if g.c.MaxCandidates > 0 && g.emitted >= g.c.MaxCandidates {
		return Window{}, false
	}

	step := int(g.c.Granularity / time.Minute)

	for g.day.Before(g.rangeEnd) {
		if !g.c.AllowWeekends && isWeekend(g.day.Weekday()) {
			g.advanceDay()
			continue
		}

		start := g.day.Add(time.Duration(g.minute) * time.Minute)
		end := start.Add(g.c.Duration)

		// A day whose remaining working span is shorter than the
		// duration simply yields nothing.
		dayEnd := g.day.Add(time.Duration(g.c.WorkingHours.EndMinute) * time.Minute)
		if end.After(dayEnd) {
			g.advanceDay()
			continue
		}

		g.minute += step

		if start.Before(g.rangeStart) || end.After(g.rangeEnd) {
			continue
		}

		g.emitted++
		return Window{Start: start, End: end}, true
	}

	return Window{}, false
}

// Collect drains the generator into a slice. Convenience for callers and
// tests that want the whole walk.
func (g *Generator) Collect() []Window {
	var windows []Window
	for {
		w, ok := g.Next()
		if !ok {
			return windows
		}
		windows = append(windows, w)
	}
}

func (g *Generator) advanceDay() {
	g.day = g.day.AddDate(0, 0, 1)
	g.minute = g.c.WorkingHours.StartMinute
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}
