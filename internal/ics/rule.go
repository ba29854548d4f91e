package ics

import (
	"sort"
	"strings"
	"time"
)

// parseRule reads an RRULE value into the weekly-recurrence subset this
// model understands: a BYDAY weekday list and an optional inclusive
// UNTIL bound. anchor is the timestamp of the block's DTSTART, or nil
// when the block had none (or DTSTART appeared after the RRULE line).
//
// The rule text is split on ";" and folded into a key/value map where
// the last occurrence of a key wins; segments without "=" are skipped.
// BYDAY codes outside the plain two-letter table (ordinal forms such
// as "2SU" or "-1FR" included) are dropped silently. A BYDAY whose
// codes were all dropped stays empty; it does not fall back to the
// anchor weekday.
func parseRule(text string, anchor *time.Time) ([]Weekday, *time.Time) {
	rules := make(map[string]string)
	for _, part := range strings.Split(text, ";") {
		if k, v, ok := strings.Cut(part, "="); ok {
			rules[k] = v
		}
	}

	var days []Weekday
	if byday, ok := rules["BYDAY"]; ok {
		for _, code := range strings.Split(byday, ",") {
			if d, known := weekdayCodes[code]; known {
				days = append(days, d)
			}
		}
		sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	} else if anchor != nil {
		days = []Weekday{WeekdayOf(*anchor)}
	}

	var until *time.Time
	if v, ok := rules["UNTIL"]; ok {
		if t, parsed := ParseDateTime(v); parsed {
			until = &t
		}
	}

	return days, until
}
