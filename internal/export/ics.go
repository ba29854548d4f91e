package export

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"weekcal/internal/ics"
)

// rruleWeekdays maps Monday-based weekday indices to rrule weekday
// constants (also Monday-based).
var rruleWeekdays = [...]rrule.Weekday{
	rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU,
}

// BuildCalendar re-publishes a parsed schedule as normalized ICS text.
//
// Parsed events carry clock times and weekday sets but no dates, so the
// anchor supplies one: each event's DTSTART/DTEND fall on the first
// calendar day on or after anchor matching one of its weekdays (the
// anchor day itself when the event has no weekly pattern). Weekday sets
// become FREQ=WEEKLY rules, carrying UNTIL when the event has one.
// UIDs are deterministic from sourceID and event position, so repeated
// exports of the same source update rather than duplicate.
//
// Events without both a start and an end time are emitted without
// DTSTART/DTEND; events without weekdays are emitted without an RRULE.
func BuildCalendar(sourceID string, sched ics.Schedule, anchor time.Time) string {
	// Wall-clock times must survive serialization unshifted, so all
	// emitted timestamps are constructed in UTC.
	anchor = time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, time.UTC)

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//weekcal//schedule export//EN")

	now := time.Now().UTC()
	for i, ev := range sched.Events {
		ve := cal.AddEvent(fmt.Sprintf("%s-%d@weekcal", sourceID, i))
		ve.SetDtStampTime(now)
		ve.SetCreatedTime(now)
		ve.SetModifiedAt(now)
		if ev.Summary != "" {
			ve.SetSummary(ev.Summary)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.Start != nil && ev.End != nil {
			day := firstMatchingDay(ev.Days, anchor)
			ve.SetStartAt(ev.Start.On(day))
			ve.SetEndAt(ev.End.On(day))
		}
		if rule, ok := weeklyRule(ev); ok {
			ve.AddRrule(rule)
		}
	}

	return cal.Serialize()
}

// weeklyRule synthesizes the FREQ=WEEKLY rule text for an event's
// weekday set, carrying UNTIL when present. ok is false when the event
// has no weekly pattern.
func weeklyRule(ev ics.RawEvent) (rule string, ok bool) {
	if len(ev.Days) == 0 {
		return "", false
	}
	byday := make([]rrule.Weekday, 0, len(ev.Days))
	for _, d := range ev.Days {
		if d < 0 || int(d) >= len(rruleWeekdays) {
			continue
		}
		byday = append(byday, rruleWeekdays[d])
	}
	opt := rrule.ROption{Freq: rrule.WEEKLY, Byweekday: byday}
	if ev.Until != nil {
		opt.Until = ev.Until.UTC()
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return "", false
	}
	return r.String(), true
}

// firstMatchingDay walks forward from anchor to the first day whose
// weekday is in days. Falls back to anchor itself when days is empty
// (one full week covers every weekday, so the probe never needs more).
func firstMatchingDay(days []ics.Weekday, anchor time.Time) time.Time {
	day := anchor
	for i := 0; i < 7; i++ {
		wd := ics.WeekdayOf(day)
		for _, d := range days {
			if d == wd {
				return day
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return anchor
}
