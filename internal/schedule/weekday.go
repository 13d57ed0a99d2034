package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Weekday is the canonical upper-case weekday name shared by storage and the resolver.
type Weekday string

const (
	Sunday    Weekday = "SUNDAY"
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
)

// indexed by time.Weekday (Sunday == 0)
var weekdays = [7]Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// WeekdayOf derives the weekday of a calendar date from the Gregorian calendar
// rather than any locale-dependent formatting.
func WeekdayOf(date time.Time) Weekday {
	return weekdays[date.Weekday()]
}

// ParseWeekday accepts any casing of a weekday name.
func ParseWeekday(s string) (Weekday, error) {
	w := Weekday(strings.ToUpper(strings.TrimSpace(s)))
	if !w.Valid() {
		return "", fmt.Errorf("%w: unknown weekday %q", ErrInvalidWeekday, s)
	}
	return w, nil
}

func (w Weekday) Valid() bool {
	for _, d := range weekdays {
		if d == w {
			return true
		}
	}
	return false
}

// Index returns the position of w in Sunday..Saturday order, or -1.
func (w Weekday) Index() int {
	for i, d := range weekdays {
		if d == w {
			return i
		}
	}
	return -1
}
