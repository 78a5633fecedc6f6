package domain

import "testing"

func TestScheduleValidate(t *testing.T) {
	t.Parallel()

	valid := func() Schedule {
		s := NewRealityCheckSchedule()
		s.Enabled = true
		return s
	}

	cases := []struct {
		name   string
		mut    func(*Schedule)
		wantOK bool
	}{
		{"builtin defaults", func(s *Schedule) {}, true},
		{"unknown frequency", func(s *Schedule) { s.Frequency = "fortnightly" }, false},
		{"custom without interval", func(s *Schedule) { s.Frequency = FreqCustom }, false},
		{"custom with interval", func(s *Schedule) { s.Frequency = FreqCustom; s.CustomIntervalMinutes = 45 }, true},
		{"custom negative interval", func(s *Schedule) { s.Frequency = FreqCustom; s.CustomIntervalMinutes = -5 }, false},
		{"bad start clock", func(s *Schedule) { s.StartTime = "9am" }, false},
		{"bad end clock", func(s *Schedule) { s.EndTime = "25:00" }, false},
		{"window ends before start", func(s *Schedule) { s.StartTime = "22:00"; s.EndTime = "09:00" }, false},
		{"unknown day", func(s *Schedule) { s.DaysOfWeek = []string{"funday"} }, false},
		{"empty days valid", func(s *Schedule) { s.DaysOfWeek = []string{} }, true},
		{"bad timezone", func(s *Schedule) { s.Timezone = "Atlantis/Central" }, false},
		{"real timezone", func(s *Schedule) { s.Timezone = "America/New_York" }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := valid()
			tc.mut(&s)
			err := s.Validate()
			if tc.wantOK && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.wantOK && err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestScheduleNormalize(t *testing.T) {
	t.Parallel()

	s := Schedule{StartTime: "09:00", EndTime: "17:00", DaysOfWeek: []string{" Monday ", "FRIDAY"}}
	s.Normalize()
	if s.DaysOfWeek[0] != "monday" || s.DaysOfWeek[1] != "friday" {
		t.Fatalf("days = %v", s.DaysOfWeek)
	}
	if s.Timezone != "UTC" {
		t.Fatalf("timezone = %q, want UTC default", s.Timezone)
	}

	// nil days become all seven; an explicit empty list stays empty.
	var all Schedule
	all.Normalize()
	if len(all.DaysOfWeek) != 7 {
		t.Fatalf("nil days → %d, want 7", len(all.DaysOfWeek))
	}
	empty := Schedule{DaysOfWeek: []string{}}
	empty.Normalize()
	if len(empty.DaysOfWeek) != 0 {
		t.Fatalf("explicit empty days must stay empty, got %v", empty.DaysOfWeek)
	}
}

func TestUserScheduleByID(t *testing.T) {
	t.Parallel()

	u := NewUser("u1")
	u.CustomSchedules = append(u.CustomSchedules, Schedule{ID: "c1", Enabled: true})

	if s, ok := u.ScheduleByID(RealityCheckID); !ok || s.ID != RealityCheckID {
		t.Fatalf("builtin lookup = %v %v", s, ok)
	}
	if s, ok := u.ScheduleByID("c1"); !ok || s.ID != "c1" {
		t.Fatalf("custom lookup = %v %v", s, ok)
	}
	if _, ok := u.ScheduleByID("nope"); ok {
		t.Fatal("unknown id must miss")
	}

	// Only the enabled custom schedule counts; the builtin starts disabled.
	if got := u.EnabledSchedules(); len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("enabled = %v", got)
	}
}
