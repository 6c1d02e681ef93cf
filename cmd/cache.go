package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"fermata/internal/formatter"
	"fermata/internal/quota"
	"fermata/internal/shared"
	"fermata/internal/tasks"
)

// CacheSong caches one song's audio and artwork.
func (r *Runner) CacheSong(ctx context.Context, cmd *cli.Command) error {
	songID := cmd.StringArg("id")
	if songID == "" {
		return fmt.Errorf("%w: song id", shared.ErrMissingArgument)
	}

	s, closeStack, err := r.openStack()
	if err != nil {
		return err
	}
	defer closeStack()

	r.logger.Info("caching song", "id", songID)
	return r.runCaching(func(progress chan<- tasks.ProgressUpdate) (*tasks.CacheRunResult, error) {
		return s.engine.CacheSong(ctx, progress, songID)
	})
}

// CachePlaylist caches every song in a playlist.
func (r *Runner) CachePlaylist(ctx context.Context, cmd *cli.Command) error {
	playlistID := cmd.StringArg("id")
	if playlistID == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	s, closeStack, err := r.openStack()
	if err != nil {
		return err
	}
	defer closeStack()

	r.logger.Info("caching playlist", "id", playlistID)
	return r.runCaching(func(progress chan<- tasks.ProgressUpdate) (*tasks.CacheRunResult, error) {
		return s.engine.CachePlaylist(ctx, progress, playlistID)
	})
}

// CacheLibrary caches the whole saved library.
func (r *Runner) CacheLibrary(ctx context.Context, cmd *cli.Command) error {
	s, closeStack, err := r.openStack()
	if err != nil {
		return err
	}
	defer closeStack()

	r.logger.Info("caching library")
	return r.runCaching(func(progress chan<- tasks.ProgressUpdate) (*tasks.CacheRunResult, error) {
		return s.engine.CacheLibrary(ctx, progress)
	})
}

// runCaching pumps progress lines while one bulk caching call runs, then
// prints its summary. The pump is drained before the summary so the two
// never interleave.
func (r *Runner) runCaching(run func(chan<- tasks.ProgressUpdate) (*tasks.CacheRunResult, error)) error {
	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.ResolveSet:
				r.writePlain("🔍 %s\n", update.Message)
			case tasks.CacheItems:
				if update.Step == 0 {
					r.writePlain("📥 %s\n", update.Message)
				} else {
					r.writePlain("   %s\n", update.Message)
				}
			}
		}
	}()

	result, err := run(progressCh)
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	out, ferr := formatter.CacheRun(result, formatter.FormatTable)
	if ferr != nil {
		return ferr
	}
	return r.writePlain("\n%s", out)
}

// CacheStatus shows cache contents and current storage pressure.
func (r *Runner) CacheStatus(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	s, closeStack, err := r.openStack()
	if err != nil {
		return err
	}
	defer closeStack()

	stats, err := s.media.Stats()
	if err != nil {
		return err
	}

	// the readout survives a failed measurement; pressure is best-effort
	var snap *quota.Snapshot
	if measured, merr := s.monitor.Check(); merr == nil {
		snap = &measured
	} else {
		r.logger.Warn("storage measurement failed", "error", merr)
	}

	out, err := formatter.CacheStatus(stats, snap, format)
	if err != nil {
		return err
	}
	return r.writePlain("%s", out)
}

// CacheEvict drops cached media for one song, or the whole cache.
func (r *Runner) CacheEvict(ctx context.Context, cmd *cli.Command) error {
	songID := cmd.String("song")
	all := cmd.Bool("all")

	if all && songID != "" {
		return fmt.Errorf("%w: pass --song or --all, not both", shared.ErrInvalidArgument)
	}
	if !all && songID == "" {
		return fmt.Errorf("%w: pass --song <id> or --all", shared.ErrMissingArgument)
	}

	s, closeStack, err := r.openStack()
	if err != nil {
		return err
	}
	defer closeStack()

	if all {
		dropped, err := s.media.Clear()
		if err != nil {
			return err
		}
		r.logger.Info("cache cleared", "entries", dropped)
		return r.writePlain("✓ Dropped %d cached entries\n", dropped)
	}

	if err := s.media.EvictSong(songID); err != nil {
		return err
	}
	r.logger.Info("song evicted", "id", songID)
	return r.writePlain("✓ Evicted cached media for %s\n", songID)
}
