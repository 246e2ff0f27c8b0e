package main

import (
	"context"

	"allblue-backend/lib/configutil"
	configsqlite "allblue-backend/lib/configutil/sqlite"
	"allblue-backend/lib/pricestore"
	"allblue-backend/lib/scrapers/limitless"
	"allblue-backend/lib/serviceutil"
	"allblue-backend/lib/telemetry"
	"allblue-backend/services/priceapi"
)

type Config struct {
	Port     int                 `json:"port"`
	Database configsqlite.Struct `json:"database"`

	Limitless struct {
		BaseUrl string `json:"base_url"`
	} `json:"limitless"`

	DonsFile   string `json:"dons_file"`
	SealedFile string `json:"sealed_file"`
	DecksFile  string `json:"decks_file"`

	TrendWindowDays int `json:"trend_window_days"`
}

func main() {
	ctx := serviceutil.SignalContext()

	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if config.Port == 0 {
		config.Port = 8000
	}

	db, err := config.Database.OpenDB(pricestore.Schema)
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}

	t, err := telemetry.SetupFromEnv(ctx, "allblue-server")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer t.Shutdown(context.Background())
	telemetry.InstrumentPerfStats(ctx)

	service := priceapi.NewService(priceapi.Options{
		Client: limitless.NewClient(limitless.ClientOptions{
			BaseURL: config.Limitless.BaseUrl,
		}),
		Store:           pricestore.NewStore(db),
		DonsFile:        config.DonsFile,
		SealedFile:      config.SealedFile,
		DecksFile:       config.DecksFile,
		TrendWindowDays: config.TrendWindowDays,
	})

	go serviceutil.StartHttpServer(config.Port, priceapi.NewRouter(service))

	<-ctx.Done()
}
