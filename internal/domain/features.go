package domain

import (
	"time"

	"github.com/google/uuid"
)

// BarFeature holds the price-structure features computed for one bar.
// Corresponds to features.bar_features; shares the natural key of its
// source price bar.
//
// Nullable fields stay nil when the bar lacks the history the formula
// needs (e.g. ATR14 before 14 prior bars exist). Recomputing over
// unchanged bars must reproduce identical rows.
type BarFeature struct {
	Symbol    string
	Timeframe string
	BarTime   time.Time

	TR        *float64 // true range; nil on the first bar (no prior close)
	ATR14     *float64 // mean of the prior 14 TR values; nil with fewer than 14 prior bars
	Range     float64  // high - low
	Body      float64  // |close - open|
	UpperWick float64
	LowerWick float64
	ClosePos  *float64 // (close - low) / range; nil when range is zero

	EMA20 *float64
	EMA50 *float64

	// Previous trading-day reference levels; nil on the first day.
	PDH *float64
	PDL *float64
	PDC *float64

	SwingHigh bool
	SwingLow  bool
	BOSUp     bool
	BOSDn     bool
	ChochUp   bool
	ChochDn   bool

	SweepPrevHigh bool
	SweepPrevLow  bool

	RunID      *uuid.UUID
	CreatedAt  time.Time
	IngestedAt time.Time
	UpdatedAt  time.Time
}

// EventSurprise holds the surprise metrics computed for one calendar
// event. Corresponds to features.event_surprises; shares the natural key
// of its source calendar event.
type EventSurprise struct {
	Source    string
	EventID   string
	EventTime time.Time
	EventName string

	Actual   *float64
	Forecast *float64
	Previous *float64

	Surprise    *float64 // actual - forecast; nil when either side missing
	SurprisePct *float64 // surprise / |forecast| * 100; nil when forecast is zero
	SurpriseZ   *float64 // z-score against prior surprises of the same series; nil with thin history

	RunID      *uuid.UUID
	CreatedAt  time.Time
	IngestedAt time.Time
	UpdatedAt  time.Time
}
