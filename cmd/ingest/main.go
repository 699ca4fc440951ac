package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-data-warehouse/internal/config"
	"market-data-warehouse/internal/domain"
	"market-data-warehouse/internal/ingestion"
	"market-data-warehouse/internal/observability"
	"market-data-warehouse/internal/storage"
	chstore "market-data-warehouse/internal/storage/clickhouse"
	"market-data-warehouse/internal/storage/memory"
	pgstore "market-data-warehouse/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (flags override)")
	family := flag.String("family", "", "Record family: calendar, macro, bars, futures, rateprob")
	input := flag.String("input", "", "JSON array input file (- for stdin)")
	source := flag.String("source", "", "Default source for records that omit one")
	sourceRef := flag.String("source-ref", "", "Upstream reference recorded on the run")
	mode := flag.String("mode", "", "Run mode: scheduled, manual, backfill, or adhoc")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (empty disables the revision log)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty uses config)")

	flag.Parse()

	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile)

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
	if *clickhouseDSN != "" {
		cfg.Clickhouse.DSN = *clickhouseDSN
	}
	if *mode != "" {
		cfg.Ingest.Mode = *mode
	}
	if *metricsAddr != "" {
		cfg.Service.MetricsAddr = *metricsAddr
	}

	runMode := cfg.RunMode()
	if !runMode.IsValid() {
		logger.Fatalf("Unknown run mode: %s", cfg.Ingest.Mode)
	}
	if *family == "" {
		logger.Fatal("--family is required (calendar, macro, bars, futures, rateprob)")
	}
	if *input == "" {
		logger.Fatal("--input is required (- for stdin)")
	}

	metrics := observability.NewMetrics("")

	if cfg.Service.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", cfg.Service.MetricsAddr)
			if err := http.ListenAndServe(cfg.Service.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
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

	if err := run(ctx, logger, cfg, metrics, *family, *input, *source, *sourceRef, runMode, *useMemory); err != nil {
		logger.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, logger *log.Logger, cfg *config.Config, metrics *observability.Metrics,
	family, input, source, sourceRef string, mode domain.RunMode, useMemory bool) error {
	// Stores default to memory; Postgres replaces them when configured.
	var (
		ledger    storage.RunLedger             = memory.NewRunLedger()
		calendar  storage.CalendarEventStore    = memory.NewCalendarEventStore()
		macro     storage.MacroObservationStore = memory.NewMacroObservationStore()
		bars      storage.PriceBarStore         = memory.NewPriceBarStore()
		futures   storage.FuturesQuoteStore     = memory.NewFuturesQuoteStore()
		rateProbs storage.RateProbabilityStore  = memory.NewRateProbabilityStore()
	)

	if !useMemory {
		if cfg.Postgres.DSN == "" {
			return fmt.Errorf("postgres dsn is required (use --use-memory for in-memory storage)")
		}
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		ledger = pgstore.NewRunLedger(pool)
		calendar = pgstore.NewCalendarEventStore(pool)
		macro = pgstore.NewMacroObservationStore(pool)
		bars = pgstore.NewPriceBarStore(pool)
		futures = pgstore.NewFuturesQuoteStore(pool)
		rateProbs = pgstore.NewRateProbabilityStore(pool)
	}

	var revisions storage.RevisionSink
	if cfg.Clickhouse.DSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.Clickhouse.DSN)
		if err != nil {
			// History layer is best-effort; the canonical store still works.
			logger.Printf("ClickHouse unavailable, revision log disabled: %v", err)
		} else {
			defer conn.Close()
			revisions = chstore.NewRevisionStore(conn)
		}
	}

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Ledger:    ledger,
		Calendar:  calendar,
		Macro:     macro,
		Bars:      bars,
		Futures:   futures,
		RateProbs: rateProbs,
		Revisions: revisions,
		Metrics:   metrics,
		Logger:    logger,
	})

	data, err := readInput(input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	result, err := dispatch(ctx, runner, family, data, source, sourceRef, mode)
	if result != nil {
		logger.Printf("Run %s closed %s: read=%d written=%d rejected=%d",
			result.RunID, result.Status, result.Counts.RowsRead, result.Counts.RowsWritten, result.Counts.RowsError)
		for _, reject := range result.Rejects {
			logger.Printf("  rejected: %v", reject)
		}
	}
	if err != nil {
		return err
	}

	reportStaleRuns(ctx, logger, metrics, ledger, cfg.Ingest.StaleRunWindowMinutes)
	return nil
}

func dispatch(ctx context.Context, runner *ingestion.Runner, family string, data []byte,
	source, sourceRef string, mode domain.RunMode) (*ingestion.Result, error) {
	switch family {
	case "calendar":
		records, err := ingestion.DecodeCalendarEvents(data, source)
		if err != nil {
			return nil, err
		}
		return runner.IngestCalendarEvents(ctx, mode, sourceRef, records)
	case "macro":
		records, err := ingestion.DecodeMacroObservations(data, source)
		if err != nil {
			return nil, err
		}
		return runner.IngestMacroObservations(ctx, mode, sourceRef, records)
	case "bars":
		records, err := ingestion.DecodePriceBars(data, source)
		if err != nil {
			return nil, err
		}
		return runner.IngestPriceBars(ctx, mode, sourceRef, records)
	case "futures":
		records, err := ingestion.DecodeFuturesQuotes(data, source)
		if err != nil {
			return nil, err
		}
		return runner.IngestFuturesQuotes(ctx, mode, sourceRef, records)
	case "rateprob":
		records, err := ingestion.DecodeRateProbabilities(data, source)
		if err != nil {
			return nil, err
		}
		return runner.IngestRateProbabilities(ctx, mode, sourceRef, records)
	default:
		return nil, fmt.Errorf("unknown family: %s", family)
	}
}

func readInput(input string) ([]byte, error) {
	if input == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(input)
}

func reportStaleRuns(ctx context.Context, logger *log.Logger, metrics *observability.Metrics,
	ledger storage.RunLedger, windowMinutes int) {
	window := time.Duration(windowMinutes) * time.Minute
	stale, err := ledger.StaleRuns(ctx, window)
	if err != nil {
		logger.Printf("stale-run check failed: %v", err)
		return
	}
	metrics.StaleRuns.Set(float64(len(stale)))
	for _, run := range stale {
		logger.Printf("WARNING: run %s (%s) still running since %s", run.RunID, run.PipelineName, run.StartedAt.Format(time.RFC3339))
	}
}
