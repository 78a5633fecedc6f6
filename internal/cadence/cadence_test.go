package cadence

import (
	"reflect"
	"testing"

	"dreampulse/internal/domain"
)

func baseSchedule() domain.Schedule {
	return domain.Schedule{
		ID:         "s1",
		Enabled:    true,
		Frequency:  domain.FreqEvery4h,
		StartTime:  "09:00",
		EndTime:    "22:00",
		DaysOfWeek: domain.AllDays(),
		Timezone:   "UTC",
	}
}

func TestFrequencyIntervalTable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		freq   domain.Frequency
		custom int
		want   int
	}{
		{domain.FreqHourly, 0, 60},
		{domain.FreqEvery1_5h, 0, 90},
		{domain.FreqEvery2h, 0, 120},
		{domain.FreqEvery4h, 0, 240},
		{domain.FreqEvery6h, 0, 360},
		{domain.FreqDaily, 0, 1440},
		{domain.FreqCustom, 45, 45},
		{domain.Frequency("bogus"), 0, 240},
		{domain.Frequency(""), 0, 240},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.freq), func(t *testing.T) {
			s := baseSchedule()
			s.Frequency = tt.freq
			s.CustomIntervalMinutes = tt.custom
			got := Resolve(s)
			if got.IntervalMinutes != tt.want {
				t.Fatalf("IntervalMinutes = %d, want %d", got.IntervalMinutes, tt.want)
			}
		})
	}
}

func TestResolveBands(t *testing.T) {
	t.Parallel()

	t.Run("daily fires once at window start", func(t *testing.T) {
		s := baseSchedule()
		s.Frequency = domain.FreqDaily
		s.StartTime = "09:30"
		r := Resolve(s)
		if !r.Daily || r.StepHours != 0 || r.StepMinutes != 0 {
			t.Fatalf("expected daily shape, got %+v", r)
		}
		if r.StartHour != 9 || r.Minute != 30 {
			t.Fatalf("anchor = %02d:%02d, want 09:30", r.StartHour, r.Minute)
		}
	})

	t.Run("sub-day interval steps whole hours", func(t *testing.T) {
		s := baseSchedule()
		s.Frequency = domain.FreqEvery1_5h
		r := Resolve(s)
		if r.Daily || r.StepMinutes != 0 {
			t.Fatalf("expected hour-step shape, got %+v", r)
		}
		// 90 minutes steps every floor(90/60) = 1 hour; documented approximation.
		if r.StepHours != 1 {
			t.Fatalf("StepHours = %d, want 1", r.StepHours)
		}
		if r.StartHour != 9 || r.EndHour != 22 {
			t.Fatalf("window = [%d,%d], want [9,22]", r.StartHour, r.EndHour)
		}
	})

	t.Run("custom 2h steps two hours", func(t *testing.T) {
		s := baseSchedule()
		s.Frequency = domain.FreqCustom
		s.CustomIntervalMinutes = 120
		r := Resolve(s)
		if r.StepHours != 2 {
			t.Fatalf("StepHours = %d, want 2", r.StepHours)
		}
	})

	t.Run("sub-hour interval steps minutes within hour window", func(t *testing.T) {
		s := baseSchedule()
		s.Frequency = domain.FreqCustom
		s.CustomIntervalMinutes = 20
		r := Resolve(s)
		if r.Daily || r.StepHours != 0 {
			t.Fatalf("expected minute-step shape, got %+v", r)
		}
		if r.StepMinutes != 20 {
			t.Fatalf("StepMinutes = %d, want 20", r.StepMinutes)
		}
	})

	t.Run("custom interval above a day collapses to daily", func(t *testing.T) {
		s := baseSchedule()
		s.Frequency = domain.FreqCustom
		s.CustomIntervalMinutes = 2000
		r := Resolve(s)
		if !r.Daily {
			t.Fatalf("expected daily shape, got %+v", r)
		}
	})
}

func TestResolveEmptyDaysNeverFires(t *testing.T) {
	t.Parallel()
	s := baseSchedule()
	s.DaysOfWeek = []string{}
	r := Resolve(s)
	if !r.Never {
		t.Fatalf("expected Never, got %+v", r)
	}
}

func TestResolveWeekdayNumbers(t *testing.T) {
	t.Parallel()
	s := baseSchedule()
	s.DaysOfWeek = []string{"Saturday", "monday", "monday", "sunday"}
	r := Resolve(s)
	if want := []int{0, 1, 6}; !reflect.DeepEqual(r.Days, want) {
		t.Fatalf("Days = %v, want %v", r.Days, want)
	}
}

func TestResolveTimezoneDefaultsToUTC(t *testing.T) {
	t.Parallel()
	s := baseSchedule()
	s.Timezone = "  "
	r := Resolve(s)
	if r.Timezone != "UTC" {
		t.Fatalf("Timezone = %q, want UTC", r.Timezone)
	}
}
