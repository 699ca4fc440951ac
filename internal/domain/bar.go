package domain

import (
	"fmt"
	"time"
)

// PriceBar is one OHLCV bar for a symbol and timeframe as received from
// a broker feed. Corresponds to raw.price_bars.
//
// Natural key: (symbol, timeframe, bar_time).
type PriceBar struct {
	Provenance

	Symbol    string
	Timeframe string // broker timeframe label, e.g. "M15", "H1", "D1"
	BarTime   time.Time

	Open  float64
	High  float64
	Low   float64
	Close float64

	TickVolume int64
	RealVolume int64
	Spread     int32
}

// Validate checks OHLCV invariants. Must pass before any write.
func (b *PriceBar) Validate() error {
	if b.Symbol == "" || b.Timeframe == "" {
		return fmt.Errorf("%w: price bar missing symbol or timeframe", ErrValidation)
	}
	if b.BarTime.IsZero() {
		return fmt.Errorf("%w: price bar missing bar time", ErrValidation)
	}
	if b.High < b.Low {
		return fmt.Errorf("%w: high %v < low %v", ErrValidation, b.High, b.Low)
	}
	if b.Open < b.Low || b.Open > b.High {
		return fmt.Errorf("%w: open %v outside [%v, %v]", ErrValidation, b.Open, b.Low, b.High)
	}
	if b.Close < b.Low || b.Close > b.High {
		return fmt.Errorf("%w: close %v outside [%v, %v]", ErrValidation, b.Close, b.Low, b.High)
	}
	if b.TickVolume < 0 || b.RealVolume < 0 {
		return fmt.Errorf("%w: negative volume", ErrValidation)
	}
	return nil
}
