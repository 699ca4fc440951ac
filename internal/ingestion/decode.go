package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"market-data-warehouse/internal/domain"
)

// Decoders for the JSON batch files the ingest binary consumes. Input is
// a JSON array; each element is kept verbatim as the record's payload so
// the raw layer preserves the original shape. Numeric calendar fields
// arrive as the source's display strings and are parsed here; a string
// that does not parse stays nil without rejecting the record.

type calendarRecord struct {
	Source    string    `json:"source"`
	EventID   string    `json:"event_id"`
	EventTime time.Time `json:"event_time"`
	EventName string    `json:"event_name"`
	Currency  string    `json:"currency"`
	Country   string    `json:"country"`
	Impact    string    `json:"impact"`
	Actual    string    `json:"actual"`
	Forecast  string    `json:"forecast"`
	Previous  string    `json:"previous"`
	Revision  string    `json:"revision"`
	URL       string    `json:"url"`
}

// DecodeCalendarEvents decodes a JSON array of calendar events.
// defaultSource fills records that omit their source.
func DecodeCalendarEvents(data []byte, defaultSource string) ([]*domain.CalendarEvent, error) {
	elements, err := splitArray(data)
	if err != nil {
		return nil, err
	}

	events := make([]*domain.CalendarEvent, 0, len(elements))
	for i, raw := range elements {
		var rec calendarRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		e := &domain.CalendarEvent{
			Provenance: domain.Provenance{
				Source:  coalesce(rec.Source, defaultSource),
				Payload: raw,
			},
			EventID:     rec.EventID,
			EventTime:   rec.EventTime.UTC(),
			EventName:   rec.EventName,
			Currency:    rec.Currency,
			Country:     rec.Country,
			Impact:      rec.Impact,
			ImpactScore: domain.ImpactScoreOf(rec.Impact),
			ActualRaw:   rec.Actual,
			ForecastRaw: rec.Forecast,
			PreviousRaw: rec.Previous,
			RevisionRaw: rec.Revision,
			Actual:      domain.ParseNumber(rec.Actual),
			Forecast:    domain.ParseNumber(rec.Forecast),
			Previous:    domain.ParseNumber(rec.Previous),
			Revision:    domain.ParseNumber(rec.Revision),
			URL:         rec.URL,
		}
		e.NormalizeKey()
		events = append(events, e)
	}
	return events, nil
}

type macroRecord struct {
	Source          string   `json:"source"`
	SeriesID        string   `json:"series_id"`
	Frequency       string   `json:"frequency"`
	ObservationDate string   `json:"observation_date"` // YYYY-MM-DD
	Value           *float64 `json:"value"`
	ValueText       string   `json:"value_text"`
	Units           string   `json:"units"`
}

// DecodeMacroObservations decodes a JSON array of macro observations.
func DecodeMacroObservations(data []byte, defaultSource string) ([]*domain.MacroObservation, error) {
	elements, err := splitArray(data)
	if err != nil {
		return nil, err
	}

	obs := make([]*domain.MacroObservation, 0, len(elements))
	for i, raw := range elements {
		var rec macroRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		date, err := parseDate(rec.ObservationDate)
		if err != nil {
			return nil, fmt.Errorf("record %d: observation_date: %w", i, err)
		}

		obs = append(obs, &domain.MacroObservation{
			Provenance: domain.Provenance{
				Source:  coalesce(rec.Source, defaultSource),
				Payload: raw,
			},
			SeriesID:        rec.SeriesID,
			Frequency:       domain.Frequency(rec.Frequency),
			ObservationDate: date,
			Value:           rec.Value,
			ValueText:       rec.ValueText,
			Units:           rec.Units,
		})
	}
	return obs, nil
}

type barRecord struct {
	Source     string    `json:"source"`
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	BarTime    time.Time `json:"bar_time"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	TickVolume int64     `json:"tick_volume"`
	RealVolume int64     `json:"real_volume"`
	Spread     int32     `json:"spread"`
}

// DecodePriceBars decodes a JSON array of OHLCV bars.
func DecodePriceBars(data []byte, defaultSource string) ([]*domain.PriceBar, error) {
	elements, err := splitArray(data)
	if err != nil {
		return nil, err
	}

	bars := make([]*domain.PriceBar, 0, len(elements))
	for i, raw := range elements {
		var rec barRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		bars = append(bars, &domain.PriceBar{
			Provenance: domain.Provenance{
				Source:  coalesce(rec.Source, defaultSource),
				Payload: raw,
			},
			Symbol:     rec.Symbol,
			Timeframe:  rec.Timeframe,
			BarTime:    rec.BarTime.UTC(),
			Open:       rec.Open,
			High:       rec.High,
			Low:        rec.Low,
			Close:      rec.Close,
			TickVolume: rec.TickVolume,
			RealVolume: rec.RealVolume,
			Spread:     rec.Spread,
		})
	}
	return bars, nil
}

type futuresRecord struct {
	Source        string    `json:"source"`
	ProductCode   string    `json:"product_code"`
	ContractMonth string    `json:"contract_month"`
	AsOfTime      time.Time `json:"as_of_time"`
	Last          *float64  `json:"last"`
	Settlement    *float64  `json:"settlement"`
	PriorSettle   *float64  `json:"prior_settle"`
	Open          *float64  `json:"open"`
	High          *float64  `json:"high"`
	Low           *float64  `json:"low"`
	Volume        *int64    `json:"volume"`
	OpenInterest  *int64    `json:"open_interest"`
}

// DecodeFuturesQuotes decodes a JSON array of futures quote snapshots.
func DecodeFuturesQuotes(data []byte, defaultSource string) ([]*domain.FuturesQuote, error) {
	elements, err := splitArray(data)
	if err != nil {
		return nil, err
	}

	quotes := make([]*domain.FuturesQuote, 0, len(elements))
	for i, raw := range elements {
		var rec futuresRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		quotes = append(quotes, &domain.FuturesQuote{
			Provenance: domain.Provenance{
				Source:  coalesce(rec.Source, defaultSource),
				Payload: raw,
			},
			ProductCode:   rec.ProductCode,
			ContractMonth: rec.ContractMonth,
			AsOfTime:      rec.AsOfTime.UTC(),
			Last:          rec.Last,
			Settlement:    rec.Settlement,
			PriorSettle:   rec.PriorSettle,
			Open:          rec.Open,
			High:          rec.High,
			Low:           rec.Low,
			Volume:        rec.Volume,
			OpenInterest:  rec.OpenInterest,
		})
	}
	return quotes, nil
}

type rateProbRecord struct {
	Source             string    `json:"source"`
	Underlying         string    `json:"underlying"`
	MeetingDate        string    `json:"meeting_date"` // YYYY-MM-DD
	RateBin            string    `json:"rate_bin"`
	Probability        float64   `json:"probability"`
	AsOfTime           time.Time `json:"as_of_time"`
	CurrentTargetRange string    `json:"current_target_range"`
}

// DecodeRateProbabilities decodes a JSON array of rate-bin probabilities.
func DecodeRateProbabilities(data []byte, defaultSource string) ([]*domain.RateProbability, error) {
	elements, err := splitArray(data)
	if err != nil {
		return nil, err
	}

	probs := make([]*domain.RateProbability, 0, len(elements))
	for i, raw := range elements {
		var rec rateProbRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		meeting, err := parseDate(rec.MeetingDate)
		if err != nil {
			return nil, fmt.Errorf("record %d: meeting_date: %w", i, err)
		}

		probs = append(probs, &domain.RateProbability{
			Provenance: domain.Provenance{
				Source:  coalesce(rec.Source, defaultSource),
				Payload: raw,
			},
			Underlying:         rec.Underlying,
			MeetingDate:        meeting,
			RateBin:            rec.RateBin,
			Probability:        rec.Probability,
			AsOfTime:           rec.AsOfTime.UTC(),
			CurrentTargetRange: rec.CurrentTargetRange,
		})
	}
	return probs, nil
}

func splitArray(data []byte) ([]json.RawMessage, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, fmt.Errorf("decode record array: %w", err)
	}
	return elements, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
