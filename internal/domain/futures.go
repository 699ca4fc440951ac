package domain

import (
	"fmt"
	"time"
)

// FuturesQuote is one quote snapshot for a futures contract.
// Corresponds to raw.futures_quotes.
//
// Natural key: (product_code, contract_month, as_of_time).
type FuturesQuote struct {
	Provenance

	ProductCode   string // e.g. "ZQ", "SR3"
	ContractMonth string // e.g. "2026-03"
	AsOfTime      time.Time

	Last        *float64
	Settlement  *float64
	PriorSettle *float64
	Open        *float64
	High        *float64
	Low         *float64

	Volume       *int64
	OpenInterest *int64
}

// Validate checks futures-quote invariants. Must pass before any write.
func (q *FuturesQuote) Validate() error {
	if q.ProductCode == "" || q.ContractMonth == "" {
		return fmt.Errorf("%w: futures quote missing product code or contract month", ErrValidation)
	}
	if q.AsOfTime.IsZero() {
		return fmt.Errorf("%w: futures quote missing as-of time", ErrValidation)
	}
	if q.Last == nil && q.Settlement == nil {
		return fmt.Errorf("%w: futures quote has neither last nor settlement price", ErrValidation)
	}
	if q.High != nil && q.Low != nil && *q.High < *q.Low {
		return fmt.Errorf("%w: high %v < low %v", ErrValidation, *q.High, *q.Low)
	}
	if q.Volume != nil && *q.Volume < 0 {
		return fmt.Errorf("%w: negative volume", ErrValidation)
	}
	if q.OpenInterest != nil && *q.OpenInterest < 0 {
		return fmt.Errorf("%w: negative open interest", ErrValidation)
	}
	return nil
}
