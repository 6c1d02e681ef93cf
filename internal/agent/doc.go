// Package agent supervises fermata's long-running pieces as one lifecycle:
// the playback gateway, the quota monitor, the sync scheduler, the
// connectivity watcher, and the update checker.
//
// # Single Instance
//
// [Agent.Start] takes a flock on agent.lock in the data directory; a second
// agent over the same directory fails with [shared.ErrAgentRunning]. Stop
// unwinds in reverse: loops drain, the gateway shuts down, the lock is
// released. Both are idempotent, and a stopped agent can be started again.
// [Agent.Run] blocks until its context is cancelled or a SHUTDOWN control
// message arrives at the gateway.
//
// # Connectivity
//
// The watcher pings the upstream on the probe interval and keeps an online
// flag. Regaining connectivity immediately checks for a server update and
// runs a sync cycle, so a machine waking from sleep converges without
// waiting out the timers. Scheduled syncs are skipped while offline.
//
// # Updates
//
// The checker compares the upstream version against the one recorded at the
// last cache activation. A mismatch only raises the refresh flag; nothing
// changes until [Agent.ApplyUpdate] rotates the cache onto a fresh
// generation, records the new version, and clears the flag. The rotation
// waits for playback to go quiet and refuses to run offline.
//
// # Observability
//
// [Agent.NeedRefresh], [Agent.OfflineReady], and [Agent.Online] expose the
// agent's flags; [Agent.Changes] signals whenever one flips so status
// surfaces can re-read instead of polling.
package agent
