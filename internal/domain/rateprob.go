package domain

import (
	"fmt"
	"time"
)

// Probabilities are stored on the 0-100 percent scale. The two schema
// generations in the source data disagreed (0-1 vs 0-100); percent is the
// canonical convention for this deployment and is enforced by Validate.
const (
	ProbabilityMin = 0.0
	ProbabilityMax = 100.0
)

// RateProbability is one rate-bin probability for a policy meeting, as
// published by a rate-probability feed. Corresponds to
// raw.rate_probabilities.
//
// Natural key: (underlying, meeting_date, rate_bin). A fresher snapshot
// for the same bin overwrites the previous one; as_of_time records when
// the surviving snapshot was taken.
type RateProbability struct {
	Provenance

	Underlying  string    // futures complex the probabilities derive from, e.g. "ZQ", "SOFR"
	MeetingDate time.Time // date precision, UTC midnight
	RateBin     string    // target-range label, e.g. "425-450"

	Probability        float64 // percent, 0-100
	AsOfTime           time.Time
	CurrentTargetRange string // prevailing target range at snapshot time, used for cut/hold/hike grouping
}

// Validate checks rate-probability invariants. Must pass before any write.
func (p *RateProbability) Validate() error {
	if p.Underlying == "" || p.RateBin == "" {
		return fmt.Errorf("%w: rate probability missing underlying or rate bin", ErrValidation)
	}
	if p.MeetingDate.IsZero() {
		return fmt.Errorf("%w: rate probability missing meeting date", ErrValidation)
	}
	if p.AsOfTime.IsZero() {
		return fmt.Errorf("%w: rate probability missing as-of time", ErrValidation)
	}
	if p.Probability < ProbabilityMin || p.Probability > ProbabilityMax {
		return fmt.Errorf("%w: probability %v outside [%v, %v]", ErrValidation, p.Probability, ProbabilityMin, ProbabilityMax)
	}
	return nil
}
