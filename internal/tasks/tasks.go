// package tasks implements fermata's long-running operations against the upstream music server.
//
// The core abstraction is Engine, which orchestrates metadata sync cycles and bulk media caching.
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"fermata/internal/cache"
	"fermata/internal/models"
	"fermata/internal/repositories"
	"fermata/internal/services"
	"fermata/internal/shared"
)

// libraryEntityID keys the single library membership row in sync bookkeeping.
const libraryEntityID = "library"

// EntityError records why one entity failed during a sync cycle.
type EntityError struct {
	EntityID string            `json:"entity_id"`
	Kind     models.EntityKind `json:"kind"`
	Err      error             `json:"-"`
}

// SyncResult summarizes one metadata sync cycle.
type SyncResult struct {
	Updated    int           `json:"updated"`   // entities whose local record changed
	Unchanged  int           `json:"unchanged"` // entities already at the server revision
	Failed     int           `json:"failed"`    // entities that could not be synced this cycle
	Deleted    int           `json:"deleted"`   // entities removed because the server no longer lists them
	Errors     []EntityError `json:"errors,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Elapsed returns how long the cycle ran.
func (r *SyncResult) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Engine defines fermata's long-running operations: metadata sync cycles and
// bulk media caching.
type Engine interface {
	// ManualSync runs one sync cycle now by comparing the server manifest
	// against stored revisions and pulling changed metadata. If a cycle is
	// already running it returns [shared.ErrSyncBusy] immediately.
	ManualSync(ctx context.Context, progress chan<- ProgressUpdate) (*SyncResult, error)

	// Syncing reports whether a sync cycle is currently running.
	Syncing() bool

	// CacheSong downloads one song's audio and artwork into the media cache.
	CacheSong(ctx context.Context, progress chan<- ProgressUpdate, songID string) (*CacheRunResult, error)

	// CachePlaylist caches every song in a playlist, resolving membership upstream.
	CachePlaylist(ctx context.Context, progress chan<- ProgressUpdate, playlistID string) (*CacheRunResult, error)

	// CacheLibrary caches every song saved to the user's library.
	CacheLibrary(ctx context.Context, progress chan<- ProgressUpdate) (*CacheRunResult, error)
}

// OfflineEngine implements Engine against the local catalog database, the
// upstream client, and the media cache.
type OfflineEngine struct {
	client    services.Client
	media     *cache.Engine
	songs     *repositories.SongRepository
	playlists *repositories.PlaylistRepository
	library   *repositories.LibraryRepository
	state     *repositories.SyncStateRepository
	meta      *repositories.MetaRepository
	logger    *log.Logger
	opts      EngineOpts

	syncing atomic.Bool
}

// NewOfflineEngine creates an OfflineEngine over the given database connection.
func NewOfflineEngine(db *sql.DB, client services.Client, media *cache.Engine, opts EngineOpts, logger *log.Logger) *OfflineEngine {
	opts.normalize()

	return &OfflineEngine{
		client:    client,
		media:     media,
		songs:     repositories.NewSongRepository(db),
		playlists: repositories.NewPlaylistRepository(db),
		library:   repositories.NewLibraryRepository(db),
		state:     repositories.NewSyncStateRepository(db),
		meta:      repositories.NewMetaRepository(db),
		logger:    logger,
		opts:      opts,
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *OfflineEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
		// Channel full, drop the update rather than stall the run.
	}
}

// Syncing reports whether a sync cycle is currently running.
func (e *OfflineEngine) Syncing() bool {
	return e.syncing.Load()
}

// ManualSync runs one metadata sync cycle.
//
// The cycle fetches the server manifest, pulls metadata for entities whose
// revision differs from the stored one, touches last-synced for unchanged
// entities, and removes local records the server no longer lists. Entity
// failures are recorded in the result and leave those entities pending for
// the next cycle; only manifest, storage, and cancellation failures abort.
func (e *OfflineEngine) ManualSync(ctx context.Context, progress chan<- ProgressUpdate) (*SyncResult, error) {
	if !e.syncing.CompareAndSwap(false, true) {
		return nil, shared.ErrSyncBusy
	}
	defer e.syncing.Store(false)

	result := &SyncResult{StartedAt: time.Now()}

	e.sendProgress(progress, manifestUpdate())
	manifest, err := e.client.Manifest(ctx)
	if err != nil {
		return nil, err
	}

	for _, phase := range []func(context.Context, chan<- ProgressUpdate, *services.Manifest, *SyncResult) error{
		e.syncSongs,
		e.syncPlaylists,
		e.syncLibrary,
		e.reconcile,
	} {
		if err := phase(ctx, progress, manifest, result); err != nil {
			return result, err
		}
	}

	if err := e.meta.SetLastSyncAt(time.Now()); err != nil {
		e.logger.Warn("failed to record sync time", "error", err)
	}

	result.FinishedAt = time.Now()
	e.logger.Info("sync cycle finished",
		"updated", result.Updated,
		"unchanged", result.Unchanged,
		"failed", result.Failed,
		"deleted", result.Deleted,
		"elapsed", result.Elapsed(),
	)
	return result, nil
}

// syncSongs pulls changed song metadata in fixed-size chunks. A failed chunk
// stops the phase: earlier chunks keep their marks and the remaining songs
// stay pending for the next cycle.
func (e *OfflineEngine) syncSongs(ctx context.Context, progress chan<- ProgressUpdate, manifest *services.Manifest, result *SyncResult) error {
	pending, err := e.pendingSet(models.KindSong)
	if err != nil {
		return err
	}

	serverRevs := make(map[string]int64, len(manifest.Songs))
	var changed []string
	var unchanged []models.SyncState

	now := time.Now()
	for _, entry := range manifest.Songs {
		serverRevs[entry.ID] = entry.Revision

		stored, err := e.state.Revision(entry.ID, models.KindSong)
		if err != nil {
			return err
		}
		if stored != entry.Revision || pending[entry.ID] {
			changed = append(changed, entry.ID)
		} else {
			unchanged = append(unchanged, models.SyncState{
				EntityID:   entry.ID,
				Kind:       models.KindSong,
				Revision:   entry.Revision,
				LastSynced: now,
			})
		}
	}

	result.Unchanged += len(unchanged)
	if err := e.state.MarkAllSynced(unchanged); err != nil {
		return err
	}

	if len(changed) == 0 {
		return nil
	}
	if err := e.state.MarkPending(changed, models.KindSong); err != nil {
		return err
	}

	chunks := chunkIDs(changed, e.opts.ChunkSize)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		e.sendProgress(progress, songChunkUpdate(i+1, len(chunks), len(chunk)))

		songs, err := e.client.Songs(ctx, chunk)
		if err != nil {
			e.logger.Warn("song chunk failed, leaving remainder pending",
				"chunk", i+1, "of", len(chunks), "size", len(chunk), "error", err)
			for _, id := range chunk {
				result.Errors = append(result.Errors, EntityError{EntityID: id, Kind: models.KindSong, Err: err})
			}
			result.Failed += len(chunk)
			return nil
		}

		if err := e.songs.UpsertAll(songs); err != nil {
			return err
		}

		// Songs the server omitted from the response stay pending; the next
		// manifest decides whether they were deleted.
		synced := time.Now()
		states := make([]models.SyncState, 0, len(songs))
		for _, song := range songs {
			states = append(states, models.SyncState{
				EntityID:   song.ID,
				Kind:       models.KindSong,
				Revision:   serverRevs[song.ID],
				LastSynced: synced,
			})
		}
		if err := e.state.MarkAllSynced(states); err != nil {
			return err
		}
		result.Updated += len(songs)
	}

	return nil
}

// syncPlaylists pulls changed playlists one at a time, replacing each
// playlist's song membership with the server's ordering. A failed playlist
// stays pending and does not stop the others.
func (e *OfflineEngine) syncPlaylists(ctx context.Context, progress chan<- ProgressUpdate, manifest *services.Manifest, result *SyncResult) error {
	pending, err := e.pendingSet(models.KindPlaylist)
	if err != nil {
		return err
	}

	serverRevs := make(map[string]int64, len(manifest.Playlists))
	var changed []string
	var unchanged []models.SyncState

	now := time.Now()
	for _, entry := range manifest.Playlists {
		serverRevs[entry.ID] = entry.Revision

		stored, err := e.state.Revision(entry.ID, models.KindPlaylist)
		if err != nil {
			return err
		}
		if stored != entry.Revision || pending[entry.ID] {
			changed = append(changed, entry.ID)
		} else {
			unchanged = append(unchanged, models.SyncState{
				EntityID:   entry.ID,
				Kind:       models.KindPlaylist,
				Revision:   entry.Revision,
				LastSynced: now,
			})
		}
	}

	result.Unchanged += len(unchanged)
	if err := e.state.MarkAllSynced(unchanged); err != nil {
		return err
	}

	if len(changed) == 0 {
		return nil
	}
	if err := e.state.MarkPending(changed, models.KindPlaylist); err != nil {
		return err
	}

	for i, id := range changed {
		if err := ctx.Err(); err != nil {
			return err
		}

		playlist, songIDs, err := e.client.Playlist(ctx, id)
		if err != nil {
			e.logger.Warn("playlist sync failed", "playlist", id, "error", err)
			result.Errors = append(result.Errors, EntityError{EntityID: id, Kind: models.KindPlaylist, Err: err})
			result.Failed++
			continue
		}

		e.sendProgress(progress, playlistSyncUpdate(i+1, len(changed), playlist.Name))

		if err := e.playlists.Upsert(playlist); err != nil {
			return err
		}
		if err := e.playlists.SetSongs(id, songIDs); err != nil {
			return err
		}
		if err := e.state.MarkSynced(id, models.KindPlaylist, serverRevs[id], time.Now()); err != nil {
			return err
		}
		result.Updated++
	}

	return nil
}

// syncLibrary replaces library membership when the server's library revision
// moved.
func (e *OfflineEngine) syncLibrary(ctx context.Context, progress chan<- ProgressUpdate, manifest *services.Manifest, result *SyncResult) error {
	stored, err := e.state.Revision(libraryEntityID, models.KindLibrary)
	if err != nil {
		return err
	}

	var pending bool
	if st, err := e.state.Get(libraryEntityID, models.KindLibrary); err == nil {
		pending = st.Pending
	}

	if stored == manifest.LibraryRev && !pending {
		result.Unchanged++
		return e.state.MarkSynced(libraryEntityID, models.KindLibrary, stored, time.Now())
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	e.sendProgress(progress, librarySyncUpdate())

	ids, err := e.client.Library(ctx)
	if err != nil {
		e.logger.Warn("library sync failed", "error", err)
		result.Errors = append(result.Errors, EntityError{EntityID: libraryEntityID, Kind: models.KindLibrary, Err: err})
		result.Failed++
		if err := e.state.MarkPending([]string{libraryEntityID}, models.KindLibrary); err != nil {
			return err
		}
		return nil
	}

	if err := e.library.Replace(ids, time.Now()); err != nil {
		return err
	}
	if err := e.state.MarkSynced(libraryEntityID, models.KindLibrary, manifest.LibraryRev, time.Now()); err != nil {
		return err
	}
	result.Updated++
	return nil
}

// reconcile removes local catalog records the manifest no longer lists,
// along with their sync bookkeeping and any cached media.
func (e *OfflineEngine) reconcile(ctx context.Context, progress chan<- ProgressUpdate, manifest *services.Manifest, result *SyncResult) error {
	songSet := make(map[string]bool, len(manifest.Songs))
	for _, entry := range manifest.Songs {
		songSet[entry.ID] = true
	}
	playlistSet := make(map[string]bool, len(manifest.Playlists))
	for _, entry := range manifest.Playlists {
		playlistSet[entry.ID] = true
	}

	localSongs, err := e.songs.List()
	if err != nil {
		return err
	}
	var goneSongs []string
	for _, song := range localSongs {
		if !songSet[song.ID] {
			goneSongs = append(goneSongs, song.ID)
		}
	}
	for _, id := range goneSongs {
		if err := e.songs.Delete(id); err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if err := e.media.EvictSong(id); err != nil && !errors.Is(err, shared.ErrNotFound) {
			e.logger.Warn("failed to evict media for deleted song", "song", id, "error", err)
		}
	}
	if err := e.state.Forget(goneSongs, models.KindSong); err != nil {
		return err
	}

	localPlaylists, err := e.playlists.List()
	if err != nil {
		return err
	}
	var gonePlaylists []string
	for _, playlist := range localPlaylists {
		if !playlistSet[playlist.ID] {
			gonePlaylists = append(gonePlaylists, playlist.ID)
		}
	}
	for _, id := range gonePlaylists {
		if err := e.playlists.Delete(id); err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
	}
	if err := e.state.Forget(gonePlaylists, models.KindPlaylist); err != nil {
		return err
	}

	removed := len(goneSongs) + len(gonePlaylists)
	result.Deleted += removed
	if removed > 0 {
		e.sendProgress(progress, reconcileUpdate(removed))
		e.logger.Info("reconciled deleted entities", "songs", len(goneSongs), "playlists", len(gonePlaylists))
	}

	return nil
}

// pendingSet returns the IDs of a kind still pending from earlier cycles.
func (e *OfflineEngine) pendingSet(kind models.EntityKind) (map[string]bool, error) {
	states, err := e.state.Pending(kind, 0)
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool, len(states))
	for _, state := range states {
		set[state.EntityID] = true
	}
	return set, nil
}

// chunkIDs splits ids into consecutive groups of at most size.
func chunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = defaultChunkSize
	}

	var chunks [][]string
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}
