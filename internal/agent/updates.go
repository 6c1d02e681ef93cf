package agent

import (
	"context"
	"fmt"
	"time"
)

// checkUpdates polls the upstream version on the configured interval.
// The immediate check rides the first connectivity edge in [Agent.probe],
// so this loop only ticks.
func (a *Agent) checkUpdates(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.UpdateCheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.online.Load() {
				continue
			}
			a.checkOnce(ctx)
		}
	}
}

// checkOnce compares the upstream version against the one recorded at the
// last activation. A mismatch raises the refresh flag; nothing is applied
// until [Agent.ApplyUpdate] is invoked. Probe failures are quietly dropped,
// the connectivity watcher owns reachability reporting.
func (a *Agent) checkOnce(ctx context.Context) {
	version, err := a.client.Ping(ctx)
	if err != nil {
		a.logger.Debug("update check failed", "error", err)
		return
	}
	if version == "" {
		return
	}

	recorded, err := a.meta.ServerVersion()
	if err != nil {
		a.logger.Debug("failed to read recorded server version", "error", err)
		return
	}

	// First contact adopts the current version instead of flagging an
	// update that never happened.
	if recorded == "" {
		if err := a.meta.SetServerVersion(version); err != nil {
			a.logger.Warn("failed to record server version", "error", err)
		}
		return
	}

	if version != recorded {
		if a.setNeedRefresh(true) {
			a.logger.Info("server update available", "current", recorded, "available", version)
		}
	}
}

// ApplyUpdate rotates the cache onto a fresh generation so the next sync
// re-fetches everything against the new server version. It waits for
// playback to go quiet first and requires the upstream to be reachable,
// an offline rotation would empty the cache with no way to refill it.
func (a *Agent) ApplyUpdate(ctx context.Context) error {
	a.applyMu.Lock()
	defer a.applyMu.Unlock()

	if err := a.awaitStreamQuiet(ctx); err != nil {
		return err
	}

	version, err := a.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("cannot apply update while upstream is unreachable: %w", err)
	}

	next := a.media.Generation() + 1
	if err := a.media.Activate(next); err != nil {
		return err
	}

	if version != "" {
		if err := a.meta.SetServerVersion(version); err != nil {
			a.logger.Warn("failed to record server version", "error", err)
		}
	}

	a.setNeedRefresh(false)
	a.logger.Info("update applied", "generation", next, "version", version)
	return nil
}

// awaitStreamQuiet blocks until no stream request has hit the gateway for
// the quiet window, or ctx expires.
func (a *Agent) awaitStreamQuiet(ctx context.Context) error {
	for {
		last := a.gateway.LastStreamAt()
		if last.IsZero() {
			return nil
		}
		idle := time.Since(last)
		if idle >= a.quiet {
			return nil
		}

		timer := time.NewTimer(a.quiet - idle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
