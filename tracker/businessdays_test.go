package tracker

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBusinessDaysSkipWeekends(t *testing.T) {
	cal := NewCalendar(nil)
	// Mon 2025-09-01 to Mon 2025-09-08: Tue-Fri + Mon = 5
	got := cal.BusinessDaysBetween(date(2025, 9, 1), date(2025, 9, 8))
	if got != 5 {
		t.Errorf("got %d, want 5", got)
	}
}

func TestBusinessDaysHolidaysExcluded(t *testing.T) {
	cal := NewCalendar([]string{"2025-09-03"})
	got := cal.BusinessDaysBetween(date(2025, 9, 1), date(2025, 9, 5))
	if got != 3 {
		t.Errorf("got %d, want 3", got)
	}
}

func TestBusinessDaysZeroWhenNotAfter(t *testing.T) {
	cal := NewCalendar(nil)
	if got := cal.BusinessDaysBetween(date(2025, 9, 5), date(2025, 9, 5)); got != 0 {
		t.Errorf("same day: got %d, want 0", got)
	}
	if got := cal.BusinessDaysBetween(date(2025, 9, 5), date(2025, 9, 1)); got != 0 {
		t.Errorf("end before start: got %d, want 0", got)
	}
}

func TestBusinessDaysIgnoresTimeOfDay(t *testing.T) {
	cal := NewCalendar(nil)
	start := time.Date(2025, 9, 1, 23, 59, 0, 0, time.UTC)
	end := time.Date(2025, 9, 2, 0, 1, 0, 0, time.UTC)
	if got := cal.BusinessDaysBetween(start, end); got != 1 {
		t.Errorf("got %d, want 1", got)
	}
}
