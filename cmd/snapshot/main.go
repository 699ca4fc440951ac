package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"market-data-warehouse/internal/config"
	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/features"
	"market-data-warehouse/internal/storage"
	pgstore "market-data-warehouse/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (flags override)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	view := flag.String("view", "", "Latest view: calendar, macro, bars, futures, rateprob, bar-features, event-surprises, rate-outlook")

	flag.Parse()

	logger := log.New(os.Stderr, "[snapshot] ", log.LstdFlags)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Fatalf("load config: %v", err)
		}
	}
	if *postgresDSN != "" {
		cfg.Postgres.DSN = *postgresDSN
	}
	if cfg.Postgres.DSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}
	if *view == "" {
		logger.Fatal("--view is required")
	}

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()

	rows, err := loadView(ctx, pool, *view)
	if err != nil {
		logger.Fatalf("load view %s: %v", *view, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		logger.Fatalf("encode output: %v", err)
	}
}

func loadView(ctx context.Context, pool *pgstore.Pool, view string) (any, error) {
	switch view {
	case "calendar":
		return pgstore.NewCalendarEventStore(pool).LatestPerSeries(ctx)
	case "macro":
		return pgstore.NewMacroObservationStore(pool).LatestPerSeries(ctx)
	case "bars":
		return pgstore.NewPriceBarStore(pool).LatestPerSymbol(ctx)
	case "futures":
		return pgstore.NewFuturesQuoteStore(pool).LatestPerContract(ctx)
	case "rateprob":
		return pgstore.NewRateProbabilityStore(pool).LatestPerBin(ctx)
	case "bar-features":
		return pgstore.NewBarFeatureStore(pool).LatestPerSymbol(ctx)
	case "event-surprises":
		return pgstore.NewEventSurpriseStore(pool).LatestPerSeries(ctx)
	case "rate-outlook":
		return loadRateOutlook(ctx, pgstore.NewRateProbabilityStore(pool))
	default:
		return nil, fmt.Errorf("unknown view: %s", view)
	}
}

// meetingOutlook is the per-meeting cut/hold/hike summary printed by the
// rate-outlook view.
type meetingOutlook struct {
	Underlying  string   `json:"underlying"`
	MeetingDate string   `json:"meeting_date"`
	ProbCut     *float64 `json:"prob_cut"`
	ProbHold    *float64 `json:"prob_hold"`
	ProbHike    *float64 `json:"prob_hike"`
	BinCount    int      `json:"bin_count"`
}

func loadRateOutlook(ctx context.Context, store storage.RateProbabilityStore) ([]meetingOutlook, error) {
	bins, err := store.LatestPerBin(ctx)
	if err != nil {
		return nil, err
	}

	type meetingKey struct {
		underlying string
		meeting    time.Time
	}
	grouped := make(map[meetingKey][]*domain.RateProbability)
	var order []meetingKey
	for _, b := range bins {
		k := meetingKey{b.Underlying, b.MeetingDate}
		if _, seen := grouped[k]; !seen {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], b)
	}

	outlooks := make([]meetingOutlook, 0, len(order))
	for _, k := range order {
		group := grouped[k]
		outlook := features.ComputeRateOutlook(group)
		outlooks = append(outlooks, meetingOutlook{
			Underlying:  k.underlying,
			MeetingDate: k.meeting.Format("2006-01-02"),
			ProbCut:     outlook.ProbCut,
			ProbHold:    outlook.ProbHold,
			ProbHike:    outlook.ProbHike,
			BinCount:    len(group),
		})
	}
	return outlooks, nil
}
