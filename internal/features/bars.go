package features

import (
	"math"
	"sort"
	"time"

	"market-data-warehouse/internal/domain"
)

// Lookback parameters for the bar feature formulas.
const (
	ATRPeriod = 14 // prior true-range values averaged into ATR
	EMAShort  = 20
	EMALong   = 50
	// SwingWindow is the number of strictly lower highs (higher lows)
	// required on each side of a swing bar.
	SwingWindow = 2
)

// ComputeBarFeatures computes price-structure features for all bars of one
// (symbol, timeframe). Bars are sorted by bar_time internally; the output
// has one feature row per input bar in chronological order.
//
// Fields stay nil while the formula lacks history:
//   - tr needs one prior close
//   - atr14 needs ATRPeriod prior tr values
//   - ema20/ema50 need EMAShort/EMALong closes to seed
//   - pdh/pdl/pdc need a completed prior UTC day
//
// Recomputing over unchanged bars reproduces identical rows, so recompute
// runs are safe to repeat.
func ComputeBarFeatures(bars []*domain.PriceBar) []*domain.BarFeature {
	if len(bars) == 0 {
		return nil
	}

	sorted := make([]*domain.PriceBar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].BarTime.Before(sorted[j].BarTime)
	})

	n := len(sorted)
	result := make([]*domain.BarFeature, n)

	trs := make([]*float64, n)
	for i, b := range sorted {
		f := &domain.BarFeature{
			Symbol:    b.Symbol,
			Timeframe: b.Timeframe,
			BarTime:   b.BarTime,
			Range:     b.High - b.Low,
			Body:      math.Abs(b.Close - b.Open),
			UpperWick: b.High - math.Max(b.Open, b.Close),
			LowerWick: math.Min(b.Open, b.Close) - b.Low,
		}

		if f.Range > 0 {
			pos := (b.Close - b.Low) / f.Range
			f.ClosePos = &pos
		}

		if i > 0 {
			prevClose := sorted[i-1].Close
			tr := math.Max(f.Range, math.Max(
				math.Abs(b.High-prevClose),
				math.Abs(b.Low-prevClose),
			))
			f.TR = &tr
			trs[i] = &tr
		}

		f.ATR14 = atr(trs, i)

		result[i] = f
	}

	applyEMA(sorted, result, EMAShort, func(f *domain.BarFeature, v float64) { f.EMA20 = &v })
	applyEMA(sorted, result, EMALong, func(f *domain.BarFeature, v float64) { f.EMA50 = &v })
	applyPrevDayLevels(sorted, result)
	applySwings(sorted, result)
	applyStructureBreaks(sorted, result)
	applySweeps(sorted, result)

	return result
}

// atr averages the ATRPeriod tr values preceding bar i. Returns nil while
// fewer than ATRPeriod prior values exist.
func atr(trs []*float64, i int) *float64 {
	var (
		sum   float64
		count int
	)
	for j := i - 1; j >= 1 && count < ATRPeriod; j-- {
		if trs[j] == nil {
			break
		}
		sum += *trs[j]
		count++
	}
	if count < ATRPeriod {
		return nil
	}
	mean := sum / ATRPeriod
	return &mean
}

// applyEMA fills an exponential moving average of closes, seeded with the
// simple mean of the first period closes.
func applyEMA(bars []*domain.PriceBar, result []*domain.BarFeature, period int, set func(*domain.BarFeature, float64)) {
	if len(bars) < period {
		return
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += bars[i].Close
	}
	ema := sum / float64(period)
	set(result[period-1], ema)

	k := 2.0 / float64(period+1)
	for i := period; i < len(bars); i++ {
		ema = bars[i].Close*k + ema*(1-k)
		set(result[i], ema)
	}
}

// applyPrevDayLevels fills the prior UTC trading day's high, low and close.
// Days without bars are simply skipped; the reference day is the most
// recent earlier day that has bars.
func applyPrevDayLevels(bars []*domain.PriceBar, result []*domain.BarFeature) {
	type dayLevels struct {
		high, low, close float64
	}

	var (
		curDay  time.Time
		cur     dayLevels
		prev    *dayLevels
		haveCur bool
	)

	for i, b := range bars {
		day := b.BarTime.UTC().Truncate(24 * time.Hour)
		if !haveCur {
			curDay, haveCur = day, true
			cur = dayLevels{high: b.High, low: b.Low, close: b.Close}
		} else if !day.Equal(curDay) {
			finished := cur
			prev = &finished
			curDay = day
			cur = dayLevels{high: b.High, low: b.Low, close: b.Close}
		} else {
			cur.high = math.Max(cur.high, b.High)
			cur.low = math.Min(cur.low, b.Low)
			cur.close = b.Close
		}

		if prev != nil {
			pdh, pdl, pdc := prev.high, prev.low, prev.close
			result[i].PDH = &pdh
			result[i].PDL = &pdl
			result[i].PDC = &pdc
		}
	}
}

// applySwings marks strict local extrema: a swing high is a bar whose high
// exceeds every high within SwingWindow bars on both sides. Bars too close
// to either edge cannot be confirmed and stay false.
func applySwings(bars []*domain.PriceBar, result []*domain.BarFeature) {
	for i := SwingWindow; i < len(bars)-SwingWindow; i++ {
		isHigh, isLow := true, true
		for j := i - SwingWindow; j <= i+SwingWindow; j++ {
			if j == i {
				continue
			}
			if bars[j].High >= bars[i].High {
				isHigh = false
			}
			if bars[j].Low <= bars[i].Low {
				isLow = false
			}
		}
		result[i].SwingHigh = isHigh
		result[i].SwingLow = isLow
	}
}

// applyStructureBreaks walks the series tracking the last confirmed swing
// levels. A close beyond the last swing high (low) is a break of structure
// in that direction, or a change of character when it reverses the
// prevailing direction. A swing at bar i is only known SwingWindow bars
// later, so levels activate with that delay.
func applyStructureBreaks(bars []*domain.PriceBar, result []*domain.BarFeature) {
	var (
		lastSwingHigh *float64
		lastSwingLow  *float64
		trend         int // 1 up, -1 down, 0 unknown
	)

	for i := range bars {
		if c := i - SwingWindow; c >= 0 {
			if result[c].SwingHigh {
				h := bars[c].High
				lastSwingHigh = &h
			}
			if result[c].SwingLow {
				l := bars[c].Low
				lastSwingLow = &l
			}
		}

		barClose := bars[i].Close
		if lastSwingHigh != nil && barClose > *lastSwingHigh {
			if trend == -1 {
				result[i].ChochUp = true
			} else {
				result[i].BOSUp = true
			}
			trend = 1
			lastSwingHigh = nil
		}
		if lastSwingLow != nil && barClose < *lastSwingLow {
			if trend == 1 {
				result[i].ChochDn = true
			} else {
				result[i].BOSDn = true
			}
			trend = -1
			lastSwingLow = nil
		}
	}
}

// applySweeps marks liquidity sweeps of the prior day's extremes: a wick
// through the level with a close back inside.
func applySweeps(bars []*domain.PriceBar, result []*domain.BarFeature) {
	for i, b := range bars {
		f := result[i]
		if f.PDH != nil {
			f.SweepPrevHigh = b.High > *f.PDH && b.Close < *f.PDH
		}
		if f.PDL != nil {
			f.SweepPrevLow = b.Low < *f.PDL && b.Close > *f.PDL
		}
	}
}
