package features

import (
	"regexp"
	"sort"
	"strconv"

	"market-data-warehouse/internal/domain"
)

// RateOutlook aggregates one meeting's bin probabilities into
// cut/hold/hike buckets relative to the prevailing target range.
// All three stay nil when the prevailing range is unknown or unparseable.
type RateOutlook struct {
	ProbCut  *float64
	ProbHold *float64
	ProbHike *float64
}

var rateBoundRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

// RateMid returns the midpoint of a target-range label such as "425-450"
// or "4.25-4.50". A single-number label is its own midpoint. Returns nil
// when no number can be extracted.
func RateMid(rangeLabel string) *float64 {
	bounds := rateBoundRe.FindAllString(rangeLabel, 2)
	if len(bounds) == 0 {
		return nil
	}

	low := parseBound(bounds[0])
	high := low
	if len(bounds) == 2 {
		high = parseBound(bounds[1])
	}
	if low == nil || high == nil {
		return nil
	}

	mid := (*low + *high) / 2
	return &mid
}

func parseBound(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ComputeRateOutlook groups one meeting's bins by their midpoint against
// the prevailing target range: below is a cut, above is a hike, equal is
// a hold. The prevailing range is taken from the freshest bin that
// carries one. Bins with unparseable labels are skipped.
func ComputeRateOutlook(bins []*domain.RateProbability) RateOutlook {
	currentMid := currentRangeMid(bins)
	if currentMid == nil {
		return RateOutlook{}
	}

	var cut, hold, hike float64
	for _, b := range bins {
		mid := RateMid(b.RateBin)
		if mid == nil {
			continue
		}
		switch {
		case *mid < *currentMid:
			cut += b.Probability
		case *mid > *currentMid:
			hike += b.Probability
		default:
			hold += b.Probability
		}
	}

	return RateOutlook{ProbCut: &cut, ProbHold: &hold, ProbHike: &hike}
}

func currentRangeMid(bins []*domain.RateProbability) *float64 {
	sorted := make([]*domain.RateProbability, 0, len(bins))
	for _, b := range bins {
		if b.CurrentTargetRange != "" {
			sorted = append(sorted, b)
		}
	}
	if len(sorted) == 0 {
		return nil
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].AsOfTime.After(sorted[j].AsOfTime)
	})
	return RateMid(sorted[0].CurrentTargetRange)
}
