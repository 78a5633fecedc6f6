package scheduler

import (
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"dreampulse/internal/cadence"
	"dreampulse/internal/domain"
)

func parseSpec(t *testing.T, spec string) cron.Schedule {
	t.Helper()
	p := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := p.Parse(spec)
	if err != nil {
		t.Fatalf("Parse(%q): %v", spec, err)
	}
	return sched
}

func TestCronSpecDailyMonday(t *testing.T) {
	t.Parallel()
	r := cadence.Resolve(domain.Schedule{
		Frequency:  domain.FreqDaily,
		StartTime:  "09:00",
		EndTime:    "22:00",
		DaysOfWeek: []string{"monday"},
		Timezone:   "UTC",
	})
	spec := cronSpec(r)
	sched := parseSpec(t, spec)

	// Wednesday 2024-01-03 12:00 UTC; next firing must be Monday 09:00 UTC.
	from := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)
	next := sched.Next(from)
	want := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next firing = %v, want %v", next, want)
	}

	// Exactly one firing per week: the one after must be the Monday after.
	second := sched.Next(next)
	if !second.Equal(want.AddDate(0, 0, 7)) {
		t.Fatalf("second firing = %v, want %v", second, want.AddDate(0, 0, 7))
	}
}

func TestCronSpecHourStepHourBounded(t *testing.T) {
	t.Parallel()
	r := cadence.Resolve(domain.Schedule{
		Frequency:  domain.FreqEvery2h,
		StartTime:  "09:30",
		EndTime:    "13:00",
		DaysOfWeek: domain.AllDays(),
		Timezone:   "UTC",
	})
	sched := parseSpec(t, cronSpec(r))

	from := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	var got []time.Time
	cur := from
	for i := 0; i < 3; i++ {
		cur = sched.Next(cur)
		got = append(got, cur)
	}
	want := []time.Time{
		time.Date(2024, 1, 3, 9, 30, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 11, 30, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 13, 30, 0, 0, time.UTC),
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("firing %d = %v, want %v", i, got[i], want[i])
		}
	}

	// Nothing more today: next occurrence rolls over to tomorrow's window.
	after := sched.Next(want[2])
	tomorrow := time.Date(2024, 1, 4, 9, 30, 0, 0, time.UTC)
	if !after.Equal(tomorrow) {
		t.Fatalf("post-window firing = %v, want %v", after, tomorrow)
	}
}

func TestCronSpecMinuteStepHourBounded(t *testing.T) {
	t.Parallel()
	r := cadence.Resolve(domain.Schedule{
		Frequency:             domain.FreqCustom,
		CustomIntervalMinutes: 20,
		StartTime:             "10:00",
		EndTime:               "11:00",
		DaysOfWeek:            domain.AllDays(),
		Timezone:              "UTC",
	})
	sched := parseSpec(t, cronSpec(r))

	// The window is hour-bounded: 11:20 and 11:40 still fire because hour 11
	// is inside the range; 12:00 is not.
	cur := time.Date(2024, 1, 3, 9, 59, 0, 0, time.UTC)
	var got []time.Time
	for i := 0; i < 6; i++ {
		cur = sched.Next(cur)
		got = append(got, cur)
	}
	last := got[len(got)-1]
	if last.Hour() != 11 || last.Minute() != 40 {
		t.Fatalf("last same-day firing = %v, want 11:40", last)
	}
	if next := sched.Next(last); next.Day() != 4 {
		t.Fatalf("expected rollover to next day, got %v", next)
	}
}

func TestCronSpecRespectsTimezone(t *testing.T) {
	t.Parallel()
	r := cadence.Resolve(domain.Schedule{
		Frequency:  domain.FreqDaily,
		StartTime:  "09:00",
		EndTime:    "22:00",
		DaysOfWeek: domain.AllDays(),
		Timezone:   "Asia/Tokyo",
	})
	sched := parseSpec(t, cronSpec(r))

	from := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	next := sched.Next(from)
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	local := next.In(tokyo)
	if local.Hour() != 9 || local.Minute() != 0 {
		t.Fatalf("firing at %v Tokyo time, want 09:00", local)
	}
}
