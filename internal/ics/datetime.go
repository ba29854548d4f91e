package ics

import (
	"fmt"
	"strings"
	"time"
)

// Datetime token layouts accepted by ParseDateTime, tried in order.
const (
	layoutDateTime      = "20060102T150405"
	layoutDateTimeShort = "20060102T1504"
)

// ParseDateTime parses an ICS datetime token such as "20240101T090000",
// "20240101T090000Z" or "20240101T0900" into a naive timestamp.
//
// A trailing "Z" is stripped before matching; no UTC conversion is
// performed, the digits are taken as wall-clock time as written. The
// match is exact: a token with surrounding whitespace is malformed. The
// boolean result is false when the token matches neither layout; callers
// must treat that as "value absent", not as an error.
func ParseDateTime(token string) (time.Time, bool) {
	v := strings.TrimSuffix(token, "Z")
	for _, layout := range []string{layoutDateTime, layoutDateTimeShort} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// TimeOfDay is a wall-clock time with no date and no timezone attached.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// TimeOfDayOf extracts the time-of-day component of t.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

// On combines the time of day with the date component of day, producing
// a concrete timestamp in day's location.
func (td TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), td.Hour, td.Minute, td.Second, 0, day.Location())
}

func (td TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", td.Hour, td.Minute, td.Second)
}

// Weekday is a weekday index in the ICS convention: 0=Monday .. 6=Sunday.
// Note that this differs from time.Weekday, which starts the week on
// Sunday.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// weekdayCodes maps RFC 5545 two-letter BYDAY codes to weekday indices.
// Ordinal-prefixed forms ("2SU", "-1FR") are deliberately absent; only
// plain weekly recurrence is supported.
var weekdayCodes = map[string]Weekday{
	"MO": Monday,
	"TU": Tuesday,
	"WE": Wednesday,
	"TH": Thursday,
	"FR": Friday,
	"SA": Saturday,
	"SU": Sunday,
}

var weekdayNames = [...]string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}

// WeekdayOf converts t's weekday into the Monday-based index.
func WeekdayOf(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + 6) % 7)
}

func (d Weekday) String() string {
	if d < 0 || int(d) >= len(weekdayNames) {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return weekdayNames[d]
}
