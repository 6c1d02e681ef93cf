// package agent runs the background daemon: the playback gateway, quota
// monitor, sync scheduler, connectivity watcher, and update checker under a
// single lifecycle
package agent

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"

	"fermata/internal/cache"
	"fermata/internal/gateway"
	"fermata/internal/preload"
	"fermata/internal/quota"
	"fermata/internal/repositories"
	"fermata/internal/services"
	"fermata/internal/shared"
	"fermata/internal/tasks"
)

// quotaInterval is how often the quota monitor re-measures cache usage.
const quotaInterval = time.Minute

// defaultStreamQuiet is how long playback must be idle before an update
// rotates the cache generation.
const defaultStreamQuiet = 10 * time.Second

// Agent owns the long-running pieces of fermata. One agent runs per data
// directory, enforced with a file lock.
type Agent struct {
	cfg     *shared.Config
	client  services.Client
	media   *cache.Engine
	engine  tasks.Engine
	meta    *repositories.MetaRepository
	gateway *gateway.Gateway
	monitor *quota.Monitor
	logger  *log.Logger

	lock    *flock.Flock
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	quiet time.Duration

	needRefresh  atomic.Bool
	offlineReady atomic.Bool
	online       atomic.Bool
	changes      chan struct{}
	stopReq      chan struct{}

	applyMu sync.Mutex
}

// New wires an agent over an open database and its collaborators. The
// gateway is constructed here because the agent hands itself over as the
// lifecycle the gateway surfaces.
func New(cfg *shared.Config, db *sql.DB, client services.Client, media *cache.Engine, preloader *preload.Preloader, engine tasks.Engine, logger *log.Logger) (*Agent, error) {
	if cfg == nil || db == nil || client == nil || media == nil || engine == nil {
		return nil, fmt.Errorf("%w: agent requires config, database, client, cache, and task engine", shared.ErrInvalidInput)
	}

	a := &Agent{
		cfg:     cfg,
		client:  client,
		media:   media,
		engine:  engine,
		meta:    repositories.NewMetaRepository(db),
		logger:  logger,
		lock:    flock.New(filepath.Join(cfg.ResolvedDataDir(), "agent.lock")),
		quiet:   defaultStreamQuiet,
		changes: make(chan struct{}, 1),
		stopReq: make(chan struct{}, 1),
	}

	monitor := quota.NewMonitor(cfg.BlobDir(), cfg.CacheCapBytes(), media.Usage, logger)
	monitor.SetOnChange(func(snap quota.Snapshot) {
		if snap.Level != quota.LevelCritical {
			return
		}
		if _, err := media.RelieveQuota(); err != nil {
			logger.Warn("failed to relieve storage pressure", "error", err)
		}
	})
	media.SetMonitor(monitor)
	a.monitor = monitor

	gw, err := gateway.New(media, preloader, engine, a, client, gateway.Options{
		Addr:      cfg.GatewayAddr(),
		GuestMode: cfg.Gateway.GuestMode,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.gateway = gw

	return a, nil
}

// Start acquires the agent lock, mounts the gateway, and launches the
// background loops. Starting a running agent is a no-op; a lock held by
// another process is [shared.ErrAgentRunning].
func (a *Agent) Start(ctx context.Context) error {
	if a.running.Load() {
		return nil
	}

	ok, err := a.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire agent lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: lock held at %s", shared.ErrAgentRunning, a.lock.Path())
	}

	if err := a.gateway.Start(); err != nil {
		if uerr := a.lock.Unlock(); uerr != nil {
			a.logger.Warn("failed to release agent lock", "error", uerr)
		}
		return err
	}

	a.ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(4)
	go func() {
		defer a.wg.Done()
		a.monitor.Run(a.ctx, quotaInterval)
	}()
	go func() {
		defer a.wg.Done()
		a.watchConnectivity(a.ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.scheduleSync(a.ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.checkUpdates(a.ctx)
	}()

	a.running.Store(true)
	a.setOfflineReady(true)
	a.logger.Info("agent started", "gateway", a.gateway.Addr())
	return nil
}

// Stop reverses Start: background loops first, then the gateway, then the
// lock. Stopping a stopped agent is a no-op.
func (a *Agent) Stop() {
	if !a.running.Load() {
		return
	}

	a.cancel()
	a.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.gateway.Shutdown(ctx); err != nil {
		a.logger.Warn("gateway shutdown failed", "error", err)
	}

	a.setOfflineReady(false)
	if err := a.lock.Unlock(); err != nil {
		a.logger.Warn("failed to release agent lock", "error", err)
	}
	a.running.Store(false)
	a.logger.Info("agent stopped")
}

// Run starts the agent and blocks until ctx is cancelled or a stop is
// requested over the control surface, then stops it.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-a.stopReq:
	}
	a.Stop()
	return nil
}

// RequestStop asks a running agent to shut down and returns immediately.
// [Run] observes the request; repeated calls collapse into one.
func (a *Agent) RequestStop() {
	select {
	case a.stopReq <- struct{}{}:
	default:
	}
}

// GatewayAddr returns the address the gateway is serving on.
func (a *Agent) GatewayAddr() string {
	return a.gateway.Addr()
}

// Monitor returns the quota monitor for status surfaces.
func (a *Agent) Monitor() *quota.Monitor {
	return a.monitor
}

// NeedRefresh reports whether a server update is waiting to be applied.
func (a *Agent) NeedRefresh() bool {
	return a.needRefresh.Load()
}

// OfflineReady reports whether the cache and gateway are serving.
func (a *Agent) OfflineReady() bool {
	return a.offlineReady.Load()
}

// Online reports the last connectivity probe's verdict.
func (a *Agent) Online() bool {
	return a.online.Load()
}

// Changes returns a channel signalled whenever an observable flag flips.
// Signals are coalesced; consumers re-read the flags.
func (a *Agent) Changes() <-chan struct{} {
	return a.changes
}

func (a *Agent) notify() {
	select {
	case a.changes <- struct{}{}:
	default:
	}
}

// setNeedRefresh flips the flag and reports whether it changed.
func (a *Agent) setNeedRefresh(v bool) bool {
	changed := a.needRefresh.Swap(v) != v
	if changed {
		a.notify()
	}
	return changed
}

func (a *Agent) setOfflineReady(v bool) {
	if a.offlineReady.Swap(v) != v {
		a.notify()
	}
}

func (a *Agent) setOnline(v bool) bool {
	changed := a.online.Swap(v) != v
	if changed {
		a.notify()
	}
	return changed
}
