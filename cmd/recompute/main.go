package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"market-data-warehouse/internal/config"
	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/ingestion"
	"market-data-warehouse/internal/observability"
	pgstore "market-data-warehouse/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (flags override)")
	target := flag.String("target", "", "Recompute target: bar-features or event-surprises")
	symbol := flag.String("symbol", "", "Restrict bar-features to one symbol (requires --timeframe)")
	timeframe := flag.String("timeframe", "", "Restrict bar-features to one timeframe")
	source := flag.String("source", "", "Restrict event-surprises to one source (requires --event-name)")
	eventName := flag.String("event-name", "", "Restrict event-surprises to one event name")
	mode := flag.String("mode", "", "Run mode: scheduled, manual, backfill, or adhoc")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")

	flag.Parse()

	logger := log.New(os.Stdout, "[recompute] ", log.LstdFlags)

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
	if *mode != "" {
		cfg.Ingest.Mode = *mode
	}

	runMode := cfg.RunMode()
	if !runMode.IsValid() {
		logger.Fatalf("Unknown run mode: %s", cfg.Ingest.Mode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling run...", sig)
		cancel()
	}()

	if err := run(ctx, logger, cfg, *target, *symbol, *timeframe, *source, *eventName, runMode); err != nil {
		logger.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, logger *log.Logger, cfg *config.Config,
	target, symbol, timeframe, source, eventName string, mode domain.RunMode) error {
	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("postgres dsn is required")
	}

	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	rc := ingestion.NewRecompute(ingestion.RecomputeOptions{
		Ledger:      pgstore.NewRunLedger(pool),
		Bars:        pgstore.NewPriceBarStore(pool),
		Calendar:    pgstore.NewCalendarEventStore(pool),
		BarFeatures: pgstore.NewBarFeatureStore(pool),
		Surprises:   pgstore.NewEventSurpriseStore(pool),
		Metrics:     observability.NewMetrics(""),
		Logger:      logger,
	})

	var result *ingestion.Result
	switch target {
	case "bar-features":
		if symbol != "" || timeframe != "" {
			if symbol == "" || timeframe == "" {
				return fmt.Errorf("--symbol and --timeframe must be given together")
			}
			result, err = rc.BarFeatures(ctx, mode, symbol, timeframe)
		} else {
			result, err = rc.AllBarFeatures(ctx, mode)
		}
	case "event-surprises":
		if source != "" || eventName != "" {
			if source == "" || eventName == "" {
				return fmt.Errorf("--source and --event-name must be given together")
			}
			result, err = rc.EventSurprises(ctx, mode, source, eventName)
		} else {
			result, err = rc.AllEventSurprises(ctx, mode)
		}
	default:
		return fmt.Errorf("unknown target: %s (bar-features or event-surprises)", target)
	}

	if result != nil {
		logger.Printf("Run %s closed %s: read=%d written=%d",
			result.RunID, result.Status, result.Counts.RowsRead, result.Counts.RowsWritten)
	}
	return err
}
