package scheduler

import (
	"fmt"
	"strconv"
	"strings"

	"dreampulse/internal/cadence"
)

// cronSpec renders a resolved cadence as the 5-field cron expression the
// runner consumes. This is the only place that knows the concrete trigger
// syntax; everything upstream works with cadence.Recurrence values.
//
// The schedule's zone rides along as a CRON_TZ prefix so each entry keeps
// its own wall clock.
func cronSpec(r cadence.Recurrence) string {
	days := joinDays(r.Days)
	var fields string
	switch {
	case r.Daily:
		fields = fmt.Sprintf("%d %d * * %s", r.Minute, r.StartHour, days)
	case r.StepHours > 0:
		fields = fmt.Sprintf("%d %d-%d/%d * * %s", r.Minute, r.StartHour, r.EndHour, r.StepHours, days)
	default:
		fields = fmt.Sprintf("*/%d %d-%d * * %s", r.StepMinutes, r.StartHour, r.EndHour, days)
	}
	return "CRON_TZ=" + r.Timezone + " " + fields
}

func joinDays(days []int) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}
