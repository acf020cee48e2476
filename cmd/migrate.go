package cmd

import (
	"fmt"

	"github.com/docbase/docbase/db"
	"github.com/docbase/docbase/internal/config"
)

// runMigrate applies pending database migrations and exits. serve runs
// migrations on startup too; this exists for deploy pipelines that migrate
// before rolling instances.
func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return config.ErrMissingDatabaseURL
	}

	logger := newLogger(cfg)
	if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}
