// migrate applies the embedded schema migrations to DATABASE_URL and exits.
//
// Usage: go run ./cmd/migrate
package main

import (
	"stock-tracker/internal/config"
	"stock-tracker/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.NewLogger("info", "text").Fatalf("config: %v", err)
	}
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat)

	version, err := db.Migrate(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("migration failed: %v", err)
	}
	logger.WithField("schema_version", version).Info("migrations applied")
}
