package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sacha-rebbouh/optim-financials/internal/config"
	infraBQ "github.com/sacha-rebbouh/optim-financials/internal/infra/bigquery"
	"github.com/sacha-rebbouh/optim-financials/internal/infra/postgres"
	"github.com/sacha-rebbouh/optim-financials/internal/infra/sqlite"
	"github.com/sacha-rebbouh/optim-financials/internal/logger"
)

var (
	configName    = flag.String("config", config.DefaultName, "Config file name without the .env extension")
	driver        = flag.String("driver", "", "Store driver to migrate (defaults to STORE_DRIVER)")
	migrationsDir = flag.String("migrations", "", "Path to migrations directory (defaults per driver)")
	appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	timeout       = flag.Duration("timeout", 10*time.Minute, "Overall timeout")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewFromConfig(cfg.Logging.Level, cfg.Logging.Format)

	if *driver != "" {
		cfg.Store.Driver = *driver
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch cfg.Store.Driver {
	case config.DriverSQLite:
		st, err := sqlite.Open(cfg.Store.SQLitePath, log)
		if err != nil {
			log.Fatal().Err(err).Msg("SQLite migration failed")
		}
		_ = st.Close()
		log.Info().Str("path", cfg.Store.SQLitePath).Msg("SQLite schema up to date")

	case config.DriverPostgres:
		dir := cfg.Store.PostgresMigrationsPath
		if *migrationsDir != "" {
			dir = *migrationsDir
		}
		if err := postgres.RunMigrations(cfg.Store.PostgresURL, dir); err != nil {
			log.Fatal().Err(err).Msg("PostgreSQL migration failed")
		}
		log.Info().Str("migrations", dir).Msg("PostgreSQL schema up to date")

	case config.DriverBigQuery:
		dir := "migrations/bigquery"
		if *migrationsDir != "" {
			dir = *migrationsDir
		}
		st, err := infraBQ.Open(ctx, cfg.Store, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery client")
		}
		defer st.Close()

		applied, err := st.Migrate(ctx, dir, *appliedBy)
		if err != nil {
			log.Fatal().Err(err).Msg("BigQuery migration failed")
		}
		log.Info().
			Str("project", cfg.Store.BigQueryProjectID).
			Str("dataset", cfg.Store.BigQueryDataset).
			Int("applied", applied).
			Msg("BigQuery schema up to date")

	default:
		log.Fatal().Str("driver", cfg.Store.Driver).Msg("Unknown store driver")
	}
}
