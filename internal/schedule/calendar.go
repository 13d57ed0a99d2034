package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
)

var ErrInvalidDate = apperr.New(apperr.KindValidation, "invalid_date", "invalid date")

const DateLayout = "2006-01-02"

// DayOf returns the calendar day t falls on in loc, as midnight UTC.
// All appointment dates use this representation so that equality and
// weekday derivation are independent of the server's zone.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay accepts "YYYY-MM-DD" or an RFC 3339 timestamp; a timestamp is
// truncated to its calendar day in loc.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.Parse(DateLayout, s); err == nil {
		return d, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return DayOf(ts, loc), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidDate, s)
}

// DayBounds returns [start of day, start of next day) for a day value.
func DayBounds(day time.Time) (time.Time, time.Time) {
	start := DayOf(day, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// AsDay drops the clock part of t and keeps the calendar date as written
// in t's own location. Use it for values that already denote a day.
func AsDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
