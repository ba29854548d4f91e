package model

import "time"

// Occurrence represents a single concrete instance of a weekly event
// (after recurrence expansion). Start and End carry the date of the
// occurrence combined with the event's wall-clock times; no timezone
// conversion is applied anywhere in the pipeline.
type Occurrence struct {
	SourceID string // calendar source ID (e.g., config source ID)

	Summary  string
	Location string

	Start time.Time
	End   time.Time
}
