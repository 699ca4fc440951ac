package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Revision is one accepted raw upsert, recorded append-only in the
// revision log. The canonical row lives in Postgres and is overwritten in
// place; the revision log keeps every historical payload for audit.
type Revision struct {
	Family     SourceFamily
	NaturalKey string // canonical pipe-joined key tuple
	PrimaryTS  time.Time
	IngestedAt time.Time
	RunID      *uuid.UUID
	Payload    json.RawMessage
}

// NaturalKey returns the canonical key tuple of a calendar event.
func (e *CalendarEvent) NaturalKey() string {
	return fmt.Sprintf("%s|%s|%s", e.Source, e.EventID, e.EventTime.UTC().Format(time.RFC3339))
}

// NaturalKey returns the canonical key tuple of a macro observation.
func (o *MacroObservation) NaturalKey() string {
	return fmt.Sprintf("%s|%s|%s", o.SeriesID, o.Frequency, o.ObservationDate.UTC().Format("2006-01-02"))
}

// NaturalKey returns the canonical key tuple of a price bar.
func (b *PriceBar) NaturalKey() string {
	return fmt.Sprintf("%s|%s|%s", b.Symbol, b.Timeframe, b.BarTime.UTC().Format(time.RFC3339))
}

// NaturalKey returns the canonical key tuple of a futures quote.
func (q *FuturesQuote) NaturalKey() string {
	return fmt.Sprintf("%s|%s|%s", q.ProductCode, q.ContractMonth, q.AsOfTime.UTC().Format(time.RFC3339))
}

// NaturalKey returns the canonical key tuple of a rate probability.
func (p *RateProbability) NaturalKey() string {
	return fmt.Sprintf("%s|%s|%s", p.Underlying, p.MeetingDate.UTC().Format("2006-01-02"), p.RateBin)
}
