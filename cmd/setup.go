package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"fermata/internal/shared"
)

// Setup initializes the data directory, writes a config file when none
// exists, and runs database migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	config := r.config
	if _, err := os.Stat(configPath); err == nil {
		if config, err = shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load config, using defaults", "error", err)
			config = shared.DefaultConfig()
		}
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
			config = shared.DefaultConfig()
		} else {
			r.logger.Info("config file created", "path", configPath)
			if config, err = shared.LoadConfig(configPath); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
				config = shared.DefaultConfig()
			}
		}
	}
	r.config = config

	r.logger.Info("creating data directory", "path", config.ResolvedDataDir())
	if err := os.MkdirAll(config.BlobDir(), 0o755); err != nil {
		return fmt.Errorf("%w: failed to create data directory: %v", shared.ErrStorage, err)
	}

	r.logger.Info("initializing database", "path", config.DatabasePath())

	db, err := shared.NewDatabase(config.DatabasePath())
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	version, err := shared.SchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", config.DatabasePath())
	r.writePlain("✓ fermata initialized (schema version %d)\n", version)
	r.writePlain("Data directory: %s\n", config.ResolvedDataDir())
	r.writePlain("Upstream: %s\n", config.Upstream.URL)
	r.writePlainln("Next steps:")
	r.writePlain("1. Run 'fermata auth login <username>' to store a session\n")
	r.writePlain("2. Run 'fermata agent run' to start the playback gateway\n")

	return nil
}
