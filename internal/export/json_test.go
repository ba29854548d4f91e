package export

import (
	"encoding/json"
	"testing"
	"time"

	"weekcal/internal/ics"
	"weekcal/internal/model"
)

func TestFromRawEventFull(t *testing.T) {
	until := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ev := ics.RawEvent{
		Start:    &ics.TimeOfDay{Hour: 9},
		End:      &ics.TimeOfDay{Hour: 10, Minute: 30},
		Summary:  "Standup",
		Location: "Room 1",
		Days:     []ics.Weekday{ics.Monday, ics.Wednesday},
		Until:    &until,
	}

	data, err := json.Marshal(FromRawEvent(ev))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"start_time":"09:00:00","end_time":"10:30:00","summary":"Standup","location":"Room 1","days":[0,2],"until":"2024-03-01T00:00:00"}`
	if string(data) != want {
		t.Fatalf("marshal = %s, want %s", data, want)
	}
}

func TestFromRawEventEmpty(t *testing.T) {
	data, err := json.Marshal(FromRawEvent(ics.RawEvent{}))
	if err != nil {
		t.Fatal(err)
	}
	// Days is always present, even for a bare event; the nullable
	// fields are omitted entirely.
	if string(data) != `{"days":[]}` {
		t.Fatalf("marshal = %s", data)
	}
}

func TestFromSchedule(t *testing.T) {
	sched := ics.Schedule{Events: []ics.RawEvent{
		{Summary: "a"},
		{Summary: "b"},
	}}
	dto := FromSchedule(sched)
	if len(dto.Events) != 2 || dto.Events[0].Summary != "a" || dto.Events[1].Summary != "b" {
		t.Fatalf("unexpected DTO: %+v", dto)
	}

	empty := FromSchedule(ics.Schedule{})
	if empty.Events == nil || len(empty.Events) != 0 {
		t.Fatalf("want non-nil empty events, got %v", empty.Events)
	}
}

func TestFromOccurrence(t *testing.T) {
	o := model.Occurrence{
		SourceID: "team",
		Summary:  "Standup",
		Location: "Room 1",
		Start:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC),
	}
	dto := FromOccurrence(o)
	if dto.Start != "2024-01-01T09:00:00" || dto.End != "2024-01-01T10:30:00" {
		t.Fatalf("unexpected timestamps: %+v", dto)
	}
	if dto.SourceID != "team" || dto.Summary != "Standup" || dto.Location != "Room 1" {
		t.Fatalf("unexpected fields: %+v", dto)
	}
}

func TestFromOccurrencesKeepsOrder(t *testing.T) {
	occs := []model.Occurrence{
		{Summary: "first"},
		{Summary: "second"},
	}
	dtos := FromOccurrences(occs)
	if len(dtos) != 2 || dtos[0].Summary != "first" || dtos[1].Summary != "second" {
		t.Fatalf("unexpected DTOs: %+v", dtos)
	}
}
