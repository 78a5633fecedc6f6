package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frequency is the user-facing cadence keyword of a schedule.
type Frequency string

const (
	FreqHourly     Frequency = "hourly"
	FreqEvery1_5h  Frequency = "every_1_5_hours"
	FreqEvery2h    Frequency = "every_2_hours"
	FreqEvery4h    Frequency = "every_4_hours"
	FreqEvery6h    Frequency = "every_6_hours"
	FreqDaily      Frequency = "daily"
	FreqCustom     Frequency = "custom"
)

// RealityCheckID is the reserved schedule ID of the built-in reality-check
// schedule. Custom schedules get generated UUIDs and may never use it.
const RealityCheckID = "realityCheck"

// IntervalMinutes maps a frequency keyword to its minute interval.
// Unknown keywords fall back to 240 (every 4 hours).
func (f Frequency) IntervalMinutes(customMinutes int) int {
	switch f {
	case FreqHourly:
		return 60
	case FreqEvery1_5h:
		return 90
	case FreqEvery2h:
		return 120
	case FreqEvery4h:
		return 240
	case FreqEvery6h:
		return 360
	case FreqDaily:
		return 1440
	case FreqCustom:
		return customMinutes
	default:
		return 240
	}
}

func (f Frequency) Known() bool {
	switch f {
	case FreqHourly, FreqEvery1_5h, FreqEvery2h, FreqEvery4h, FreqEvery6h, FreqDaily, FreqCustom:
		return true
	}
	return false
}

// Schedule is a recurring-notification configuration: either the built-in
// reality-check schedule (ID == RealityCheckID, mutated in place, never
// deleted) or a user-created custom schedule.
type Schedule struct {
	ID                    string    `json:"id"`
	Enabled               bool      `json:"enabled"`
	Frequency             Frequency `json:"frequency"`
	CustomIntervalMinutes int       `json:"customIntervalMinutes,omitempty"`
	StartTime             string    `json:"startTime"` // HH:MM wall clock
	EndTime               string    `json:"endTime"`   // HH:MM wall clock
	DaysOfWeek            []string  `json:"daysOfWeek"`
	Timezone              string    `json:"timezone"`
	Message               string    `json:"message"`
}

var weekdayNums = map[string]int{
	"sunday":    0,
	"monday":    1,
	"tuesday":   2,
	"wednesday": 3,
	"thursday":  4,
	"friday":    5,
	"saturday":  6,
}

// AllDays lists every weekday name in cron order (Sunday first).
func AllDays() []string {
	return []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}
}

// WeekdayNum maps a weekday name (case-insensitive) to its cron number,
// Sunday=0 .. Saturday=6.
func WeekdayNum(name string) (int, bool) {
	n, ok := weekdayNums[strings.ToLower(strings.TrimSpace(name))]
	return n, ok
}

// NewRealityCheckSchedule returns the built-in schedule with its creation
// defaults: every 4 hours between 09:00 and 22:00, all days, UTC, disabled
// until the user opts in.
func NewRealityCheckSchedule() Schedule {
	return Schedule{
		ID:         RealityCheckID,
		Enabled:    false,
		Frequency:  FreqEvery4h,
		StartTime:  "09:00",
		EndTime:    "22:00",
		DaysOfWeek: AllDays(),
		Timezone:   "UTC",
		Message:    "Reality check! Are you dreaming right now?",
	}
}

// ParseClock parses an HH:MM wall-clock string.
func ParseClock(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// Validate rejects malformed schedules at the API boundary so the scheduler
// core never sees them. An empty DaysOfWeek is valid (the schedule simply
// never fires); unknown day names are not.
func (s Schedule) Validate() error {
	if !s.Frequency.Known() {
		return fmt.Errorf("unknown frequency %q", s.Frequency)
	}
	if s.Frequency == FreqCustom && s.CustomIntervalMinutes <= 0 {
		return errors.New("customIntervalMinutes must be a positive integer when frequency is custom")
	}
	if _, _, err := ParseClock(s.StartTime); err != nil {
		return fmt.Errorf("startTime: %w", err)
	}
	endHour, _, err := ParseClock(s.EndTime)
	if err != nil {
		return fmt.Errorf("endTime: %w", err)
	}
	if startHour, _, _ := ParseClock(s.StartTime); endHour < startHour {
		return errors.New("active window must not end before it starts")
	}
	for _, d := range s.DaysOfWeek {
		if _, ok := WeekdayNum(d); !ok {
			return fmt.Errorf("unknown day %q", d)
		}
	}
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("invalid timezone %q", tz)
		}
	}
	return nil
}

// Normalize fills the defaults the persistence layer relies on: all seven
// days when none are given (nil, not an explicit empty list) and UTC when
// the timezone is blank.
func (s *Schedule) Normalize() {
	if s.DaysOfWeek == nil {
		s.DaysOfWeek = AllDays()
	}
	for i, d := range s.DaysOfWeek {
		s.DaysOfWeek[i] = strings.ToLower(strings.TrimSpace(d))
	}
	if strings.TrimSpace(s.Timezone) == "" {
		s.Timezone = "UTC"
	}
}
