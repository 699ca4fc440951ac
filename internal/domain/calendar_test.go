package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalendarEventID(t *testing.T) {
	eventTime := time.Date(2026, 8, 7, 12, 30, 0, 0, time.UTC)

	assert.Equal(t, "ff-123", CalendarEventID("forexfactory", "ff-123", "NFP", eventTime),
		"published id wins")

	fallback := CalendarEventID("forexfactory", "", "NFP", eventTime)
	assert.Equal(t, "forexfactory:NFP:2026-08-07T12:30:00Z", fallback)

	// The fallback normalizes to UTC so re-ingestion from a different
	// timezone produces the same key.
	est := time.FixedZone("EST", -5*3600)
	sameOccurrence := CalendarEventID("forexfactory", "", "NFP", eventTime.In(est))
	assert.Equal(t, fallback, sameOccurrence)
}

func TestCalendarEventValidate(t *testing.T) {
	eventTime := time.Date(2026, 8, 7, 12, 30, 0, 0, time.UTC)

	valid := func() *CalendarEvent {
		return &CalendarEvent{
			Provenance: Provenance{Source: "forexfactory"},
			EventID:    "ff-123",
			EventTime:  eventTime,
			EventName:  "NFP",
		}
	}

	assert.NoError(t, valid().Validate())

	e := valid()
	e.Source = ""
	assert.ErrorIs(t, e.Validate(), ErrValidation)

	e = valid()
	e.EventName = ""
	assert.ErrorIs(t, e.Validate(), ErrValidation)

	e = valid()
	e.EventTime = time.Time{}
	assert.ErrorIs(t, e.Validate(), ErrValidation)

	e = valid()
	e.ImpactScore = ptri(4)
	assert.ErrorIs(t, e.Validate(), ErrValidation)

	e = valid()
	e.ImpactScore = ptri(1)
	assert.NoError(t, e.Validate())
}

func TestNormalizeKeyFillsFallback(t *testing.T) {
	e := &CalendarEvent{
		Provenance: Provenance{Source: "forexfactory"},
		EventTime:  time.Date(2026, 8, 7, 12, 30, 0, 0, time.UTC),
		EventName:  "NFP",
	}
	e.NormalizeKey()
	assert.Equal(t, "forexfactory:NFP:2026-08-07T12:30:00Z", e.EventID)

	// Idempotent: a second call must not re-wrap the filled id.
	e.NormalizeKey()
	assert.Equal(t, "forexfactory:NFP:2026-08-07T12:30:00Z", e.EventID)
}
