package ics

import (
	"errors"
	"iter"
	"sort"
	"time"

	"weekcal/internal/model"
)

// ErrNotExpandable is returned by Expand for events missing a start or
// end time. Such events parse fine and appear in the Schedule; they
// just have no occurrences to enumerate.
var ErrNotExpandable = errors.New("ics: event has no start/end time, not expandable")

// dateKey is a fixed-width day stamp; lexicographic order equals
// calendar order, so date components compare as plain strings.
const dateKey = "20060102"

// afterDay reports whether a falls on a later calendar date than b,
// ignoring time of day and location.
func afterDay(a, b time.Time) bool {
	return a.Format(dateKey) > b.Format(dateKey)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// OccursOn reports whether the event has an occurrence on date's
// calendar day. The UNTIL bound is inclusive: the event still occurs on
// the UNTIL date itself and stops after it.
func (e RawEvent) OccursOn(date time.Time) bool {
	if e.Until != nil && afterDay(date, *e.Until) {
		return false
	}
	wd := WeekdayOf(date)
	for _, d := range e.Days {
		if d == wd {
			return true
		}
	}
	return false
}

// OccursToday is OccursOn for the current local day.
func (e RawEvent) OccursToday() bool {
	return e.OccursOn(time.Now())
}

// Expand returns the event's occurrences between from and to (both
// inclusive, compared by calendar date) as a lazy sequence of
// (start, end) timestamp pairs in ascending date order.
//
// The sequence is finite, evaluates one day at a time, and is
// restartable: ranging over it again reproduces the same pairs. A range
// with from after to is empty, not an error. An inverted event
// (End <= Start) yields pairs as written; the evaluator does not
// correct them.
//
// Events without both Start and End cannot be expanded and return
// ErrNotExpandable.
func (e RawEvent) Expand(from, to time.Time) (iter.Seq2[time.Time, time.Time], error) {
	if e.Start == nil || e.End == nil {
		return nil, ErrNotExpandable
	}
	start, end := *e.Start, *e.End
	return func(yield func(time.Time, time.Time) bool) {
		for day := dateOnly(from); !afterDay(day, to); day = day.AddDate(0, 0, 1) {
			if !e.OccursOn(day) {
				continue
			}
			if !yield(start.On(day), end.On(day)) {
				return
			}
		}
	}, nil
}

// ExpandAll expands every expandable event of a schedule within
// [from, to] and assembles the flat occurrence list, sorted by start
// time then summary. Events without both times are skipped; skipping is
// the documented precondition, not an error.
func ExpandAll(sourceID string, sched Schedule, from, to time.Time) []model.Occurrence {
	occs := make([]model.Occurrence, 0)
	for _, ev := range sched.Events {
		seq, err := ev.Expand(from, to)
		if err != nil {
			continue
		}
		for start, end := range seq {
			occs = append(occs, model.Occurrence{
				SourceID: sourceID,
				Summary:  ev.Summary,
				Location: ev.Location,
				Start:    start,
				End:      end,
			})
		}
	}

	sort.Slice(occs, func(i, j int) bool {
		if !occs[i].Start.Equal(occs[j].Start) {
			return occs[i].Start.Before(occs[j].Start)
		}
		return occs[i].Summary < occs[j].Summary
	})
	return occs
}
