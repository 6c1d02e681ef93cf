// package main is the fermata command line: agent control, bulk caching,
// sync, quota readouts, and the interactive dashboard.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v3"

	"fermata/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	configPath := ""
	for _, candidate := range []string{"config.toml", filepath.Join(config.ResolvedDataDir(), "config.toml")} {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if loaded, err := shared.LoadConfig(candidate); err == nil {
			config = loaded
			configPath = candidate
		} else {
			logger.Warn("ignoring unreadable config", "path", candidate, "error", err)
		}
		break
	}

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:     "fermata",
		Usage:    "Offline cache and playback gateway for a self-hosted music server",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
