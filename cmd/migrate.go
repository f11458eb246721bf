package cmd

import (
	"fmt"
	"log/slog"

	"github.com/woodpecker023/woo-ai-chatbot/db"
	"github.com/woodpecker023/woo-ai-chatbot/internal/config"
)

// runMigrate applies pending migrations and exits. Deploy pipelines run
// this before rolling the server so schema changes land exactly once.
func runMigrate(cfg *config.Config, logger *slog.Logger) error {
	if err := db.Migrate(cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied",
		"host", cfg.Postgres.Host, "database", cfg.Postgres.DBName)
	return nil
}
