package domain

import (
	"fmt"
	"time"
)

// CalendarEvent is one economic calendar entry as received from a
// calendar source. Corresponds to raw.calendar_events.
//
// Natural key: (source, event_id, event_time_utc). Sources that do not
// assign stable event identifiers get a deterministic fallback built by
// CalendarEventID.
type CalendarEvent struct {
	Provenance

	EventID   string
	EventTime time.Time // UTC
	EventName string

	Currency    string
	Country     string
	Impact      string // raw impact label from the source
	ImpactScore *int   // 1=low 2=medium 3=high, nil when unknown

	// Raw strings as published ("250K", "1.2%", "n/a") kept for audit,
	// parsed numbers alongside.
	ActualRaw   string
	ForecastRaw string
	PreviousRaw string
	RevisionRaw string
	Actual      *float64
	Forecast    *float64
	Previous    *float64
	Revision    *float64

	URL string
}

// CalendarEventID returns the natural event identifier. When the source
// publishes no stable id, the fallback is source:name:time, which is
// deterministic across re-ingestions of the same occurrence.
func CalendarEventID(source, eventID, eventName string, eventTime time.Time) string {
	if eventID != "" {
		return eventID
	}
	return fmt.Sprintf("%s:%s:%s", source, eventName, eventTime.UTC().Format(time.RFC3339))
}

// Validate checks calendar invariants. Must pass before any write.
func (e *CalendarEvent) Validate() error {
	if e.Source == "" {
		return fmt.Errorf("%w: calendar event missing source", ErrValidation)
	}
	if e.EventName == "" {
		return fmt.Errorf("%w: calendar event missing event name", ErrValidation)
	}
	if e.EventTime.IsZero() {
		return fmt.Errorf("%w: calendar event missing event time", ErrValidation)
	}
	if e.ImpactScore != nil && (*e.ImpactScore < 1 || *e.ImpactScore > 3) {
		return fmt.Errorf("%w: impact score %d outside {1,2,3}", ErrValidation, *e.ImpactScore)
	}
	return nil
}

// NormalizeKey fills the coalesced event id in place so the natural key
// is complete before storage sees the record.
func (e *CalendarEvent) NormalizeKey() {
	e.EventID = CalendarEventID(e.Source, e.EventID, e.EventName, e.EventTime)
}
