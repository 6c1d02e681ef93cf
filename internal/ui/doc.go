// Package ui implements an interactive terminal dashboard using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow around the local media cache:
//  1. [DashboardView] : Storage gauge, cached and catalog counts, sync recency
//  2. [PlaylistListView] : Browse the synced playlist catalog
//  3. [SongListView] : Preview songs with markers for already-cached audio
//  4. [ConfirmView] : Confirm a bulk caching run
//  5. [CachingView] : Monitor real-time progress updates
//  6. [ResultView] : Display per-song outcomes for the run
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Progress updates flow through a channel from the task engine, providing non-blocking
// status reporting during caching runs, and the dashboard re-reads local state on a
// fixed tick while visible.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
