package ics

import (
	"strings"
	"time"
)

// RawEvent is the minimal representation of a VEVENT as produced by the
// line parser. Recurrence evaluation (expand.go) operates on this type.
//
//   - Start / End are wall-clock times of day; the date component of
//     DTSTART/DTEND is dropped. nil means the property was absent or its
//     value did not parse.
//   - Days is the weekly recurrence pattern as Monday-based weekday
//     indices, sorted ascending. Empty means no weekly pattern was
//     recognized.
//   - Until, when non-nil, is the inclusive calendar bound after whose
//     date the event stops recurring.
//
// A RawEvent is built entirely from the lines of one VEVENT block and
// keeps no reference to the source text or to sibling events. An event
// missing Start or End still parses; it just cannot be expanded.
type RawEvent struct {
	Start    *TimeOfDay
	End      *TimeOfDay
	Summary  string
	Location string
	Days     []Weekday
	Until    *time.Time
}

// Schedule is the parser output: the events of one ICS document in
// source order.
type Schedule struct {
	Events []RawEvent
}

// VEVENT block delimiters.
const (
	beginVEvent = "BEGIN:VEVENT"
	endVEvent   = "END:VEVENT"
)

// Parse scans an ICS document and extracts one RawEvent per completed
// VEVENT block, in document order. It never fails: structurally damaged
// input (unterminated blocks, stray END:VEVENT lines, property lines
// outside any block) degrades to fewer events, not to an error, and a
// document with no VEVENT blocks yields an empty Schedule.
//
// CRLF and LF line endings are both accepted; each line is trimmed of
// surrounding whitespace before matching.
func Parse(text string) Schedule {
	var p lineParser
	for _, line := range strings.Split(text, "\n") {
		p.feed(strings.TrimSpace(line))
	}
	return Schedule{Events: p.events}
}

// lineParser is the scanner state machine. cur == nil means outside any
// VEVENT block; non-nil cur is the accumulator for the block currently
// open. Each feed call is one transition.
type lineParser struct {
	events []RawEvent
	cur    *eventBuilder
}

func (p *lineParser) feed(line string) {
	switch {
	case line == beginVEvent:
		// A BEGIN inside an unterminated block discards the previous
		// accumulator.
		p.cur = &eventBuilder{}
	case line == endVEvent:
		// END with no open block is a no-op.
		if p.cur != nil {
			p.events = append(p.events, p.cur.finish())
			p.cur = nil
		}
	case p.cur != nil:
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return
		}
		p.cur.property(key, value)
	}
}

// eventBuilder accumulates one VEVENT block. anchor holds the full
// timestamp of the last successfully parsed DTSTART; an RRULE line in
// the same block falls back to it when the rule has no BYDAY list.
type eventBuilder struct {
	event    RawEvent
	anchor   *time.Time
	sawRRule bool
}

// property applies one KEY[;PARAMS]:VALUE line. The key is matched
// case-sensitively after stripping the parameter list (";TZID=..."
// and friends); unrecognized keys are ignored.
func (b *eventBuilder) property(key, value string) {
	if i := strings.Index(key, ";"); i >= 0 {
		key = key[:i]
	}

	switch key {
	case "DTSTART":
		// On parse failure nothing changes; an anchor from an earlier
		// successful DTSTART in the same block stays.
		if t, ok := ParseDateTime(value); ok {
			tod := TimeOfDayOf(t)
			b.event.Start = &tod
			b.anchor = &t
		}
	case "DTEND":
		if t, ok := ParseDateTime(value); ok {
			tod := TimeOfDayOf(t)
			b.event.End = &tod
		}
	case "SUMMARY":
		b.event.Summary = value
	case "LOCATION":
		b.event.Location = strings.TrimSpace(value)
	case "RRULE":
		// A later RRULE overwrites both fields.
		b.event.Days, b.event.Until = parseRule(value, b.anchor)
		b.sawRRule = true
	}
}

// finish closes the block. A block that never saw an RRULE defaults to
// recurring weekly on its DTSTART weekday, when one parsed.
func (b *eventBuilder) finish() RawEvent {
	if !b.sawRRule && b.anchor != nil {
		b.event.Days = []Weekday{WeekdayOf(*b.anchor)}
	}
	return b.event
}
