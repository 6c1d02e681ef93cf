package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchManifest Phase = iota
	SyncSongs
	SyncPlaylists
	SyncLibrary
	Reconcile
	ResolveSet
	CacheItems
)

func (p Phase) String() string {
	switch p {
	case FetchManifest:
		return "fetch_manifest"
	case SyncSongs:
		return "sync_songs"
	case SyncPlaylists:
		return "sync_playlists"
	case SyncLibrary:
		return "sync_library"
	case Reconcile:
		return "reconcile"
	case ResolveSet:
		return "resolve_set"
	case CacheItems:
		return "cache_items"
	default:
		return ""
	}
}

func manifestUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchManifest,
		Step:    1,
		Total:   1,
		Message: "Fetching catalog manifest...",
	}
}

func songChunkUpdate(step, total, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncSongs,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Syncing %d songs...", step, total, count),
	}
}

func playlistSyncUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncPlaylists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Syncing playlist: %s", step, total, name),
	}
}

func librarySyncUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncLibrary,
		Step:    1,
		Total:   1,
		Message: "Syncing library membership...",
	}
}

func reconcileUpdate(removed int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Reconcile,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Removed %d entities no longer on the server", removed),
	}
}

func resolveSetUpdate(target string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveSet,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Resolving songs in %s...", target),
	}
}

func cacheQueuedUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CacheItems,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Caching %d songs...", total),
	}
}

func cacheItemUpdate(step, total int, res CacheItemResult) ProgressUpdate {
	label := res.SongID
	if res.Title != "" {
		label = res.Title
	}

	var message string
	switch {
	case res.Complete():
		message = fmt.Sprintf("[%d/%d] ✓ %s", step, total, label)
	case res.AudioOK:
		message = fmt.Sprintf("[%d/%d] ✓ %s (artwork failed)", step, total, label)
	default:
		message = fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, label, res.Err)
	}

	return ProgressUpdate{
		Phase:   CacheItems,
		Step:    step,
		Total:   total,
		Message: message,
		Data:    res,
	}
}
