package tracker

import (
	"time"
)

// Calendar answers business-day questions for the anomaly thresholds.
// A business day is Monday through Friday minus the configured
// holidays; there is no built-in holiday list.
type Calendar struct {
	holidays map[string]bool
}

func NewCalendar(holidays []string) *Calendar {
	m := make(map[string]bool, len(holidays))
	for _, day := range holidays {
		m[day] = true
	}
	return &Calendar{holidays: m}
}

func (c *Calendar) IsBusinessDay(day time.Time) bool {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.holidays[day.Format("2006-01-02")]
}

// BusinessDaysBetween counts business days strictly after start up to
// and including end. Returns 0 when end is not after start.
func (c *Calendar) BusinessDaysBetween(start, end time.Time) int {
	start = truncateToDay(start)
	end = truncateToDay(end)
	if !end.After(start) {
		return 0
	}
	count := 0
	for day := start.AddDate(0, 0, 1); !day.After(end); day = day.AddDate(0, 0, 1) {
		if c.IsBusinessDay(day) {
			count++
		}
	}
	return count
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
