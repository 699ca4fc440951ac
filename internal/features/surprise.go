package features

import (
	"math"
	"sort"

	"market-data-warehouse/internal/domain"
)

// MinSurpriseHistory is the number of prior surprises of the same series
// required before a z-score is emitted.
const MinSurpriseHistory = 3

// ComputeEventSurprises computes surprise metrics for all occurrences of
// one event series (same source and event name). Events are sorted by
// event_time internally; the output has one row per input event in
// chronological order.
//
// surprise_z is computed against the surprises of strictly earlier
// occurrences, so an occurrence never sees its own release. It stays nil
// with fewer than MinSurpriseHistory priors or when the prior surprises
// have zero variance.
func ComputeEventSurprises(events []*domain.CalendarEvent) []*domain.EventSurprise {
	if len(events) == 0 {
		return nil
	}

	sorted := make([]*domain.CalendarEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].EventTime.Before(sorted[j].EventTime)
	})

	result := make([]*domain.EventSurprise, len(sorted))
	var history []float64

	for i, e := range sorted {
		es := &domain.EventSurprise{
			Source:    e.Source,
			EventID:   e.EventID,
			EventTime: e.EventTime,
			EventName: e.EventName,
			Actual:    e.Actual,
			Forecast:  e.Forecast,
			Previous:  e.Previous,
		}

		if e.Actual != nil && e.Forecast != nil {
			s := *e.Actual - *e.Forecast
			es.Surprise = &s

			if *e.Forecast != 0 {
				pct := s / math.Abs(*e.Forecast) * 100
				es.SurprisePct = &pct
			}

			es.SurpriseZ = zScore(s, history)
			history = append(history, s)
		}

		result[i] = es
	}

	return result
}

// zScore standardizes s against the prior surprises. Returns nil with thin
// history or zero spread.
func zScore(s float64, priors []float64) *float64 {
	if len(priors) < MinSurpriseHistory {
		return nil
	}

	var sum float64
	for _, p := range priors {
		sum += p
	}
	mean := sum / float64(len(priors))

	var sq float64
	for _, p := range priors {
		d := p - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(priors)-1))
	if std == 0 {
		return nil
	}

	z := (s - mean) / std
	return &z
}
