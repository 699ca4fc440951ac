package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	chstore "market-data-warehouse/internal/storage/clickhouse"
	"market-data-warehouse/internal/storage/migrations"
	pgstore "market-data-warehouse/internal/storage/postgres"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (empty skips ClickHouse)")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall migration timeout")

	flag.Parse()

	logger := log.New(os.Stdout, "[migrate] ", log.LstdFlags)

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatalf("postgres migrations: %v", err)
	}
	logger.Println("Postgres migrations applied")

	if *clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("connect to clickhouse: %v", err)
		}
		defer conn.Close()

		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			logger.Fatalf("clickhouse migrations: %v", err)
		}
		logger.Println("ClickHouse migrations applied")
	}
}
