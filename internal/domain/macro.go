package domain

import (
	"fmt"
	"time"
)

// Frequency is the publication cadence of a macro series.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// String returns the string representation of Frequency.
func (f Frequency) String() string {
	return string(f)
}

// IsValid checks if the frequency is a recognized value.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// MacroObservation is one observation of a macro series (e.g. a FRED
// series value for a date). Corresponds to raw.macro_observations.
//
// Natural key: (series_id, frequency, observation_date).
type MacroObservation struct {
	Provenance

	SeriesID        string
	Frequency       Frequency
	ObservationDate time.Time // date precision, UTC midnight

	Value     *float64 // nil when the source publishes a non-numeric value
	ValueText string   // verbatim value, also set when Value parsed
	Units     string
}

// Validate checks macro-observation invariants. Must pass before any write.
func (o *MacroObservation) Validate() error {
	if o.SeriesID == "" {
		return fmt.Errorf("%w: macro observation missing series id", ErrValidation)
	}
	if !o.Frequency.IsValid() {
		return fmt.Errorf("%w: frequency %q not one of daily/weekly/monthly", ErrValidation, o.Frequency)
	}
	if o.ObservationDate.IsZero() {
		return fmt.Errorf("%w: macro observation missing observation date", ErrValidation)
	}
	if o.Value == nil && o.ValueText == "" {
		return fmt.Errorf("%w: macro observation has neither numeric nor text value", ErrValidation)
	}
	return nil
}
