package main

import (
	"context"
	"log/slog"
	"os"

	"allblue-backend/lib/configutil"
	configsqlite "allblue-backend/lib/configutil/sqlite"
	"allblue-backend/lib/pricestore"
	"allblue-backend/lib/scrapers/limitless"
	"allblue-backend/lib/serviceutil"
	"allblue-backend/lib/telemetry"
	"allblue-backend/services/snapshot"
)

type Config struct {
	Database configsqlite.Struct `json:"database"`

	Limitless struct {
		BaseUrl  string `json:"base_url"`
		Retries  int    `json:"retries"`
		DebugDir string `json:"debug_dir"`
	} `json:"limitless"`

	CardsFile   string `json:"cards_file"`
	DonsFile    string `json:"dons_file"`
	SealedFile  string `json:"sealed_file"`
	Concurrency int64  `json:"concurrency"`
}

func main() {
	ctx := serviceutil.SignalContext()

	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if config.CardsFile == "" {
		config.CardsFile = "all_cards.json"
	}
	if config.Limitless.Retries == 0 {
		// one flaky page must not lose a day of history
		config.Limitless.Retries = 3
	}

	db, err := config.Database.OpenDB(pricestore.Schema)
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}
	defer db.Close()

	t, err := telemetry.SetupFromEnv(ctx, "daily-snapshot")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer t.Shutdown(context.Background())

	codes, err := snapshot.LoadBaseCodes(config.CardsFile)
	if err != nil {
		serviceutil.Fatal("failed to load card list", err)
	}

	store := pricestore.NewStore(db)
	runner := snapshot.NewRunner(
		limitless.NewClient(limitless.ClientOptions{
			BaseURL:  config.Limitless.BaseUrl,
			Retries:  config.Limitless.Retries,
			DebugDir: config.Limitless.DebugDir,
		}),
		store,
		config.Concurrency,
	)

	report, err := runner.Run(ctx, codes)
	if err != nil {
		serviceutil.Fatal("snapshot run aborted", err)
	}

	if config.DonsFile != "" {
		n, err := runner.IngestCatalog(ctx, pricestore.KindDon, config.DonsFile)
		if err != nil {
			serviceutil.Fatal("failed to ingest don catalog", err)
		}
		slog.Info("ingested don catalog", "recorded", n)
	}
	if config.SealedFile != "" {
		n, err := runner.IngestCatalog(ctx, pricestore.KindSealed, config.SealedFile)
		if err != nil {
			serviceutil.Fatal("failed to ingest sealed catalog", err)
		}
		slog.Info("ingested sealed catalog", "recorded", n)
	}

	if keys, err := store.Keys(ctx, pricestore.KindCard); err == nil {
		slog.Info("card series tracked so far", "count", len(keys))
	}

	if len(report.Failed) > 0 {
		slog.Warn("snapshot finished with failures", "failed", report.Failed)
		os.Exit(1)
	}
}
