package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/rhino-signals/backend/internal/config"
	"github.com/rhino-signals/backend/internal/db"
	"github.com/rhino-signals/backend/internal/logger"
	"github.com/rhino-signals/backend/internal/services"
)

func main() {
	dateFlag := flag.String("date", "", "UTC day to rebuild analytics for (YYYY-MM-DD, default today)")
	flag.Parse()

	date := time.Now().UTC()
	if *dateFlag != "" {
		parsed, err := time.Parse("2006-01-02", *dateFlag)
		if err != nil {
			logger.Fatal("invalid -date %q: %v", *dateFlag, err)
		}
		date = parsed
	}

	logger.Info("🚀 Starting manual reconcile for %s...", date.Format("2006-01-02"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config: %v", err)
	}
	logger.Setup(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		logger.Fatal("failed to connect to postgres: %v", err)
	}
	if err := db.Migrate(pgDB); err != nil {
		logger.Fatal("failed to migrate schema: %v", err)
	}

	reconciler := services.NewReconciler(pgDB, cfg.Reconciler.StaleAfter, nil)
	result := reconciler.Run(context.Background(), date)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)

	if err := result.Err(); err != nil {
		logger.Fatal("reconcile finished with errors: %v", err)
	}
	logger.Info("✅ Manual reconcile completed successfully.")
}
