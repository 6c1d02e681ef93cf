// Package tasks orchestrates fermata's long-running operations with real-time progress reporting.
//
// # Core Operations
//
// The [Engine] interface defines two families of operations:
//
//  1. [Engine.ManualSync] : One metadata sync cycle
//     - Fetches the server manifest with per-entity revisions
//     - Pulls changed songs in fixed-size chunks, playlists one at a time
//     - Touches last-synced for entities already at the server revision
//     - Removes local records the server no longer lists
//     - Returns updated / unchanged / failed / deleted counts with per-entity errors
//
//  2. [Engine.CacheSong], [Engine.CachePlaylist], [Engine.CacheLibrary] : Bulk media caching
//     - Resolves the song set upstream (playlist membership, library)
//     - Downloads audio and artwork through the cache engine with a worker pool
//     - Skips already-cached media so reruns over a warm cache finish immediately
//     - One failed song never aborts the rest; results carry per-song outcomes
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking, so a slow consumer drops updates instead of stalling a sync.
//
// # Failure Containment
//
// A failed song chunk stops the song phase and leaves its entities pending for
// the next cycle; earlier chunks keep their marks. A failed playlist or a
// failed download is recorded in the result and the operation moves on.
// Storage failures and context cancellation abort the whole operation.
//
// # Implementation
//
// [OfflineEngine] implements [Engine] with dependencies on:
//   - [services.Client] : upstream music server API
//   - [cache.Engine] : the on-disk media cache
//   - repositories over the local catalog database
package tasks
