package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"fermata/internal/formatter"
	"fermata/internal/repositories"
	"fermata/internal/tasks"
)

// Sync runs one metadata sync cycle, or with --status shows the per-entity
// sync bookkeeping instead.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	s, closeStack, err := r.openStack()
	if err != nil {
		return err
	}
	defer closeStack()

	if cmd.Bool("status") {
		states, err := repositories.NewSyncStateRepository(s.db).All()
		if err != nil {
			return err
		}
		out, err := formatter.SyncStates(states, format)
		if err != nil {
			return err
		}
		return r.writePlain("%s", out)
	}

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchManifest:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.SyncSongs, tasks.SyncPlaylists, tasks.SyncLibrary, tasks.Reconcile:
				r.writePlain("   %s\n", update.Message)
			}
		}
	}()

	r.logger.Info("starting sync cycle", "upstream", r.config.Upstream.URL)
	result, err := s.engine.ManualSync(ctx, progressCh)
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	out, err := formatter.SyncOutcome(result, format)
	if err != nil {
		return err
	}
	return r.writePlain("\n%s", out)
}
