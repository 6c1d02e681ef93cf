// package cache implements the content cache engine behind the gateway: a
// SQLite entry index over on-disk blobs, the fetch-through miss path, LRU
// eviction under storage pressure, and cache generations
package cache

import (
	"database/sql"
	"errors"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"fermata/internal/models"
	"fermata/internal/quota"
	"fermata/internal/repositories"
	"fermata/internal/services"
	"fermata/internal/shared"
)

// StreamKey returns the resource key for a song's audio.
func StreamKey(songID string) string {
	return "song:" + songID + ":stream"
}

// CoverKey returns the resource key for a song's artwork. A positive size
// keys the scaled variant separately from the original.
func CoverKey(songID string, size int) string {
	if size > 0 {
		return "song:" + songID + ":cover:" + strconv.Itoa(size)
	}
	return "song:" + songID + ":cover"
}

// Engine is the content cache. The entry index is the authority on what is
// cached; blobs live under generation directories in the blob store.
type Engine struct {
	entries *repositories.EntryRepository
	songs   *repositories.SongRepository
	meta    *repositories.MetaRepository
	store   *BlobStore
	client  services.Client
	tokens  services.TokenProvider
	logger  *log.Logger
	monitor *quota.Monitor

	mu         sync.Mutex
	generation int
	active     map[string]int
}

// NewEngine wires the cache over an open database and blob root. The active
// generation is restored from the meta table, and temp files left by a
// crashed write are swept.
func NewEngine(db *sql.DB, blobRoot string, client services.Client, tokens services.TokenProvider, logger *log.Logger) (*Engine, error) {
	meta := repositories.NewMetaRepository(db)
	gen, err := meta.Generation()
	if err != nil {
		return nil, err
	}

	store := NewBlobStore(blobRoot)
	if swept, err := store.SweepTemp(gen); err != nil {
		logger.Warn("failed to sweep stale temp blobs", "error", err)
	} else if swept > 0 {
		logger.Debug("swept stale temp blobs", "count", swept)
	}

	return &Engine{
		entries:    repositories.NewEntryRepository(db),
		songs:      repositories.NewSongRepository(db),
		meta:       meta,
		store:      store,
		client:     client,
		tokens:     tokens,
		logger:     logger,
		generation: gen,
		active:     make(map[string]int),
	}, nil
}

// SetMonitor attaches the quota monitor consulted before cache writes.
// Attach before the engine starts serving.
func (e *Engine) SetMonitor(m *quota.Monitor) {
	e.monitor = m
}

// CachedMedia is an open cached blob ready to serve.
type CachedMedia struct {
	File  *os.File
	Entry models.CacheEntry
}

// Close releases the open blob.
func (m *CachedMedia) Close() error {
	return m.File.Close()
}

// OpenStream opens a song's cached audio. ErrNotFound means a cache miss.
func (e *Engine) OpenStream(songID string) (*CachedMedia, error) {
	return e.open(StreamKey(songID))
}

// OpenCover opens a song's cached artwork at the given size variant.
func (e *Engine) OpenCover(songID string, size int) (*CachedMedia, error) {
	return e.open(CoverKey(songID, size))
}

// open looks a key up in the index and opens its blob. Hits are served as
// stored with no upstream revalidation: media bytes are immutable once
// uploaded. The last-access bump happens off the request path.
func (e *Engine) open(key string) (*CachedMedia, error) {
	entry, err := e.entries.Get(key)
	if err != nil {
		return nil, err
	}

	f, err := e.store.Open(entry.Generation, key)
	if errors.Is(err, shared.ErrNotFound) {
		// index row without a blob: drop the row so the key misses
		// cleanly and a later fetch repopulates it
		if derr := e.entries.Delete(key); derr != nil {
			e.logger.Warn("failed to drop dangling cache entry", "key", key, "error", derr)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	go func() {
		if terr := e.entries.Touch(key, time.Now()); terr != nil {
			e.logger.Debug("failed to bump last access", "key", key, "error", terr)
		}
	}()

	return &CachedMedia{File: f, Entry: entry}, nil
}

// IsCached reports whether a song's audio is in the cache.
func (e *Engine) IsCached(songID string) bool {
	ok, err := e.entries.HasSong(songID)
	if err != nil {
		e.logger.Warn("cache lookup failed", "song", songID, "error", err)
		return false
	}
	return ok
}

// HasCover reports whether a song's original-size artwork is in the cache.
func (e *Engine) HasCover(songID string) bool {
	_, err := e.entries.Get(CoverKey(songID, 0))
	return err == nil
}

// CachedSongIDs lists the IDs of every song with cached audio.
func (e *Engine) CachedSongIDs() ([]string, error) {
	return e.entries.CachedSongIDs()
}

// Entries lists every cache entry, most recently used first.
func (e *Engine) Entries() ([]models.CacheEntry, error) {
	return e.entries.List()
}

// Usage reports total cached bytes. It satisfies [quota.UsageFunc].
func (e *Engine) Usage() (int64, error) {
	return e.entries.TotalSize()
}

// Stats summarizes the cache for status surfaces.
type Stats struct {
	Entries    int                      `json:"entries"`
	Songs      int                      `json:"songs"`
	TotalBytes int64                    `json:"total_bytes"`
	Generation int                      `json:"generation"`
	Kinds      []repositories.KindStats `json:"kinds,omitempty"`
}

// Stats reports entry counts, cached songs, total size, and the active
// generation.
func (e *Engine) Stats() (Stats, error) {
	count, err := e.entries.Count()
	if err != nil {
		return Stats{}, err
	}

	ids, err := e.entries.CachedSongIDs()
	if err != nil {
		return Stats{}, err
	}

	total, err := e.entries.TotalSize()
	if err != nil {
		return Stats{}, err
	}

	kinds, err := e.entries.StatsByKind()
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		Entries:    count,
		Songs:      len(ids),
		TotalBytes: total,
		Generation: e.Generation(),
		Kinds:      kinds,
	}, nil
}

// Generation returns the active cache generation.
func (e *Engine) Generation() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// Activate makes gen the active generation and deletes every other
// generation's entries and blob directories, so stale generations never
// accumulate across agent updates.
func (e *Engine) Activate(gen int) error {
	if err := e.meta.SetGeneration(gen); err != nil {
		return err
	}

	e.mu.Lock()
	e.generation = gen
	e.mu.Unlock()

	dropped, err := e.entries.DeleteOtherGenerations(gen)
	if err != nil {
		return err
	}

	removed, err := e.store.RemoveOtherGenerations(gen)
	if err != nil {
		return err
	}

	e.logger.Info("cache generation activated", "generation", gen, "dropped_entries", dropped, "removed_dirs", len(removed))
	return nil
}

// Clear removes every cached entry and blob across all generations and
// reports how many entries were dropped.
func (e *Engine) Clear() (int64, error) {
	dropped, err := e.entries.Clear()
	if err != nil {
		return 0, err
	}

	if err := e.store.RemoveAll(); err != nil {
		return dropped, err
	}

	e.logger.Info("cache cleared", "dropped_entries", dropped)
	return dropped, nil
}

// sessionToken returns the current session token, empty for guests. Token
// bridge failures degrade to guest rather than failing the caller.
func (e *Engine) sessionToken() string {
	tok, err := e.tokens.Token()
	if err != nil {
		return ""
	}
	return tok
}
