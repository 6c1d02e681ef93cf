package agent

import (
	"context"
	"errors"
	"time"

	"fermata/internal/shared"
)

// watchConnectivity probes the upstream on a fixed cadence and tracks the
// online flag. Probes start immediately so a freshly started agent learns
// its connectivity without waiting out the first interval.
func (a *Agent) watchConnectivity(ctx context.Context) {
	a.probe(ctx)

	ticker := time.NewTicker(a.cfg.ProbeInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.probe(ctx)
		}
	}
}

// probe pings the upstream once. Regaining connectivity triggers an update
// check and a sync cycle; the goroutine is tracked so Stop waits for it.
func (a *Agent) probe(ctx context.Context) {
	_, err := a.client.Ping(ctx)
	online := err == nil

	if online {
		if a.setOnline(true) {
			a.logger.Info("upstream reachable, scheduling sync")
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				a.checkOnce(ctx)
				a.syncNow(ctx)
			}()
		}
		return
	}

	if a.setOnline(false) {
		a.logger.Warn("upstream unreachable, serving from cache", "error", err)
	}
}

// scheduleSync runs a sync cycle on the configured interval while online.
func (a *Agent) scheduleSync(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SyncInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.online.Load() {
				a.logger.Debug("skipping scheduled sync while offline")
				continue
			}
			a.syncNow(ctx)
		}
	}
}

// syncNow runs one sync cycle. A cycle already in flight is not an error
// here; the running one covers this slot.
func (a *Agent) syncNow(ctx context.Context) {
	if _, err := a.engine.ManualSync(ctx, nil); err != nil {
		if errors.Is(err, shared.ErrSyncBusy) || errors.Is(err, context.Canceled) {
			a.logger.Debug("sync cycle skipped", "reason", err)
			return
		}
		a.logger.Warn("scheduled sync failed", "error", err)
	}
}
