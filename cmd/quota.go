package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"fermata/internal/formatter"
)

// Quota measures cache storage against its cap, once or on an interval.
func (r *Runner) Quota(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	s, closeStack, err := r.openStack()
	if err != nil {
		return err
	}
	defer closeStack()

	snap, err := s.monitor.Check()
	if err != nil {
		return err
	}

	if !cmd.Bool("watch") {
		out, err := formatter.Quota(snap, format)
		if err != nil {
			return err
		}
		return r.writePlain("%s", out)
	}

	colorize := formatter.Decorated(r.output)
	r.writePlain("%s\n", formatter.QuotaLine(snap, colorize))

	interval := time.Duration(cmd.Int("interval")) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snap, err := s.monitor.Check()
			if err != nil {
				r.logger.Warn("storage measurement failed", "error", err)
				continue
			}
			r.writePlain("%s\n", formatter.QuotaLine(snap, colorize))
		}
	}
}
