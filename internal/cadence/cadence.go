// Package cadence resolves a schedule's configuration into a concrete
// recurrence. The result is an opaque description (interval, anchor, hour
// window, weekday set); only the scheduler's timer adapter turns it into the
// trigger syntax its cron runner understands.
package cadence

import (
	"sort"
	"strings"

	"dreampulse/internal/domain"
)

// Recurrence is the resolved cadence of one schedule.
//
// Exactly one of the three shapes is active:
//   - Daily: once per active day at StartHour:Minute.
//   - StepHours > 0: every StepHours hours at minute Minute, hours
//     [StartHour, EndHour] only.
//   - StepMinutes > 0: every StepMinutes minutes, hours [StartHour, EndHour]
//     only. The window is hour-bounded: minutes past EndHour:00 but inside
//     hour EndHour still fire, EndTime's minute is not clipped.
//
// Never trumps everything: an empty weekday set resolves to a recurrence
// that never matches.
type Recurrence struct {
	IntervalMinutes int

	Minute      int
	StartHour   int
	EndHour     int
	StepHours   int
	StepMinutes int
	Daily       bool

	Days     []int // cron weekday numbers, Sunday=0, sorted
	Timezone string

	Never bool
}

// Resolve maps a schedule to its recurrence. It never fails: the API
// boundary has already validated the schedule, and the documented fallbacks
// (interval 240 for unknown frequencies, UTC for a blank zone) absorb
// anything older stored records may still carry.
func Resolve(s domain.Schedule) Recurrence {
	iv := s.Frequency.IntervalMinutes(s.CustomIntervalMinutes)
	if iv <= 0 {
		iv = 240
	}

	tz := strings.TrimSpace(s.Timezone)
	if tz == "" {
		tz = "UTC"
	}

	r := Recurrence{IntervalMinutes: iv, Timezone: tz}

	days := weekdaySet(s.DaysOfWeek)
	if len(days) == 0 {
		r.Never = true
		return r
	}
	r.Days = days

	startHour, startMinute, err := domain.ParseClock(s.StartTime)
	if err != nil {
		startHour, startMinute = 9, 0
	}
	endHour, _, err := domain.ParseClock(s.EndTime)
	if err != nil {
		endHour = 22
	}

	r.Minute = startMinute
	r.StartHour = startHour
	r.EndHour = endHour

	switch {
	case iv >= 1440:
		// Once per active day at the window start.
		r.Daily = true
	case iv >= 60:
		// Hour-granularity stepping anchored at the start minute. This is a
		// deliberate approximation: a 90-minute interval steps every 1 hour,
		// not every 1.5 hours.
		r.StepHours = iv / 60
	default:
		r.StepMinutes = iv
	}
	return r
}

func weekdaySet(names []string) []int {
	seen := map[int]bool{}
	for _, d := range names {
		if n, ok := domain.WeekdayNum(d); ok && !seen[n] {
			seen[n] = true
		}
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
