package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrValidation marks a record that violates a domain invariant.
// Such records are rejected before any write reaches storage.
var ErrValidation = errors.New("validation failed")

// SourceFamily identifies one raw source variant.
type SourceFamily string

const (
	FamilyCalendarEvent    SourceFamily = "calendar_event"
	FamilyMacroObservation SourceFamily = "macro_observation"
	FamilyPriceBar         SourceFamily = "price_bar"
	FamilyFuturesQuote     SourceFamily = "futures_quote"
	FamilyRateProbability  SourceFamily = "rate_probability"
)

// String returns the string representation of SourceFamily.
func (f SourceFamily) String() string {
	return string(f)
}

// IsValid checks if the family is a recognized value.
func (f SourceFamily) IsValid() bool {
	switch f {
	case FamilyCalendarEvent, FamilyMacroObservation, FamilyPriceBar,
		FamilyFuturesQuote, FamilyRateProbability:
		return true
	}
	return false
}

// Provenance carries the audit fields shared by every raw row:
// where the record came from, which run wrote it, the original payload,
// and the first-seen / last-written timestamps.
type Provenance struct {
	Source     string          // source identifier, e.g. "forexfactory", "fred", "mt5"
	SourceRef  string          // optional upstream reference (feed name, account, URL)
	RunID      *uuid.UUID      // producing pipeline run; nil for manual writes
	Payload    json.RawMessage // original record shape, preserved verbatim
	CreatedAt  time.Time       // first ingestion of this natural key; never refreshed
	IngestedAt time.Time       // most recent write; tie-breaker for latest queries
	UpdatedAt  time.Time       // most recent mutation
}
