// Package export converts the parsed schedule model into interchange
// formats: JSON DTOs for the HTTP API and CLI output, and normalized
// ICS text for re-publication.
package export

import (
	"weekcal/internal/ics"
	"weekcal/internal/model"
)

// dateTimeLayout is the naive combined timestamp layout used in every
// external representation. Clock times reuse TimeOfDay's "15:04:05".
const dateTimeLayout = "2006-01-02T15:04:05"

// EventDTO is the JSON shape of one parsed event. Start, End and Until
// are nullable; Days is always present, empty meaning no weekly
// pattern. The mapping is lossless: every RawEvent field survives the
// round trip through this shape.
type EventDTO struct {
	Start    *string `json:"start_time,omitempty"`
	End      *string `json:"end_time,omitempty"`
	Summary  string  `json:"summary,omitempty"`
	Location string  `json:"location,omitempty"`
	Days     []int   `json:"days"`
	Until    *string `json:"until,omitempty"`
}

// ScheduleDTO is the JSON shape of one parsed document.
type ScheduleDTO struct {
	Events []EventDTO `json:"events"`
}

// OccurrenceDTO is the JSON shape of one expanded occurrence. Start and
// End are naive combined timestamps ("2006-01-02T15:04:05").
type OccurrenceDTO struct {
	SourceID string `json:"source_id,omitempty"`
	Summary  string `json:"summary,omitempty"`
	Location string `json:"location,omitempty"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

// FromRawEvent maps one RawEvent to its DTO. Until serializes in the
// ISO-8601 combined form, e.g. "2024-03-01T00:00:00".
func FromRawEvent(ev ics.RawEvent) EventDTO {
	dto := EventDTO{
		Summary:  ev.Summary,
		Location: ev.Location,
		Days:     make([]int, 0, len(ev.Days)),
	}
	for _, d := range ev.Days {
		dto.Days = append(dto.Days, int(d))
	}
	if ev.Start != nil {
		s := ev.Start.String()
		dto.Start = &s
	}
	if ev.End != nil {
		s := ev.End.String()
		dto.End = &s
	}
	if ev.Until != nil {
		s := ev.Until.Format(dateTimeLayout)
		dto.Until = &s
	}
	return dto
}

// FromSchedule maps a parsed schedule to its DTO, keeping source order.
func FromSchedule(sched ics.Schedule) ScheduleDTO {
	out := ScheduleDTO{Events: make([]EventDTO, 0, len(sched.Events))}
	for _, ev := range sched.Events {
		out.Events = append(out.Events, FromRawEvent(ev))
	}
	return out
}

// FromOccurrence maps one expanded occurrence to its DTO.
func FromOccurrence(o model.Occurrence) OccurrenceDTO {
	return OccurrenceDTO{
		SourceID: o.SourceID,
		Summary:  o.Summary,
		Location: o.Location,
		Start:    o.Start.Format(dateTimeLayout),
		End:      o.End.Format(dateTimeLayout),
	}
}

// FromOccurrences maps an occurrence list, preserving order.
func FromOccurrences(occs []model.Occurrence) []OccurrenceDTO {
	out := make([]OccurrenceDTO, 0, len(occs))
	for _, o := range occs {
		out = append(out, FromOccurrence(o))
	}
	return out
}
