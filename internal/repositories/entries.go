package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"fermata/internal/models"
	"fermata/internal/shared"
)

// EntryRepository indexes cached media blobs.
//
// The blob bytes live on disk under generation directories; this table is the
// authority on what the cache holds and when each entry was last served.
type EntryRepository struct {
	db *sql.DB
}

// NewEntryRepository creates a new EntryRepository with the given database connection
func NewEntryRepository(db *sql.DB) *EntryRepository {
	return &EntryRepository{db: db}
}

// Put inserts or replaces a [models.CacheEntry]
func (r *EntryRepository) Put(entry models.CacheEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO cache_entries (key, song_id, kind, content_type, size_bytes, checksum, generation, pinned, created_at, last_access)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			song_id = excluded.song_id,
			kind = excluded.kind,
			content_type = excluded.content_type,
			size_bytes = excluded.size_bytes,
			checksum = excluded.checksum,
			generation = excluded.generation,
			pinned = excluded.pinned,
			created_at = excluded.created_at,
			last_access = excluded.last_access
	`

	_, err := r.db.Exec(query,
		entry.Key,
		entry.SongID,
		string(entry.Kind),
		entry.ContentType,
		entry.SizeBytes,
		entry.Checksum,
		entry.Generation,
		entry.Pinned,
		entry.CreatedAt,
		entry.LastAccess,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to put cache entry: %v", shared.ErrStorage, err)
	}

	return nil
}

// Get retrieves a cache entry by key
func (r *EntryRepository) Get(key string) (models.CacheEntry, error) {
	query := `
		SELECT key, song_id, kind, content_type, size_bytes, checksum, generation, pinned, created_at, last_access
		FROM cache_entries
		WHERE key = ?
	`

	return r.scanOne(r.db.QueryRow(query, key))
}

// Touch updates an entry's last access time. Missing entries are ignored.
func (r *EntryRepository) Touch(key string, at time.Time) error {
	if _, err := r.db.Exec("UPDATE cache_entries SET last_access = ? WHERE key = ?", at, key); err != nil {
		return fmt.Errorf("%w: failed to touch cache entry: %v", shared.ErrStorage, err)
	}
	return nil
}

// SetPinned flips an entry's pinned flag
func (r *EntryRepository) SetPinned(key string, pinned bool) error {
	result, err := r.db.Exec("UPDATE cache_entries SET pinned = ? WHERE key = ?", pinned, key)
	if err != nil {
		return fmt.Errorf("%w: failed to set pinned: %v", shared.ErrStorage, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrStorage, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: cache entry %s", shared.ErrNotFound, key)
	}

	return nil
}

// PinBySong pins or unpins every entry belonging to a song
func (r *EntryRepository) PinBySong(songID string, pinned bool) error {
	if _, err := r.db.Exec("UPDATE cache_entries SET pinned = ? WHERE song_id = ?", pinned, songID); err != nil {
		return fmt.Errorf("%w: failed to pin song entries: %v", shared.ErrStorage, err)
	}
	return nil
}

// Delete removes a cache entry by key
func (r *EntryRepository) Delete(key string) error {
	result, err := r.db.Exec("DELETE FROM cache_entries WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("%w: failed to delete cache entry: %v", shared.ErrStorage, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrStorage, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: cache entry %s", shared.ErrNotFound, key)
	}

	return nil
}

// DeleteGeneration removes every entry belonging to a generation and reports
// how many rows were removed.
func (r *EntryRepository) DeleteGeneration(generation int) (int64, error) {
	result, err := r.db.Exec("DELETE FROM cache_entries WHERE generation = ?", generation)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete generation: %v", shared.ErrStorage, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrStorage, err)
	}

	return rows, nil
}

// DeleteOtherGenerations removes every entry outside the kept generation and
// reports how many rows were removed.
func (r *EntryRepository) DeleteOtherGenerations(keep int) (int64, error) {
	result, err := r.db.Exec("DELETE FROM cache_entries WHERE generation != ?", keep)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete stale generations: %v", shared.ErrStorage, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrStorage, err)
	}

	return rows, nil
}

// Clear removes every cache entry and reports how many rows were removed.
func (r *EntryRepository) Clear() (int64, error) {
	result, err := r.db.Exec("DELETE FROM cache_entries")
	if err != nil {
		return 0, fmt.Errorf("%w: failed to clear cache entries: %v", shared.ErrStorage, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrStorage, err)
	}

	return rows, nil
}

// List retrieves all cache entries, most recently used first
func (r *EntryRepository) List() ([]models.CacheEntry, error) {
	query := `
		SELECT key, song_id, kind, content_type, size_bytes, checksum, generation, pinned, created_at, last_access
		FROM cache_entries
		ORDER BY last_access DESC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query cache entries: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// BySong retrieves a song's cache entries
func (r *EntryRepository) BySong(songID string) ([]models.CacheEntry, error) {
	query := `
		SELECT key, song_id, kind, content_type, size_bytes, checksum, generation, pinned, created_at, last_access
		FROM cache_entries
		WHERE song_id = ?
		ORDER BY key
	`

	rows, err := r.db.Query(query, songID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query song entries: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// EvictionCandidates returns up to limit unpinned entries, least recently
// used first.
func (r *EntryRepository) EvictionCandidates(limit int) ([]models.CacheEntry, error) {
	query := `
		SELECT key, song_id, kind, content_type, size_bytes, checksum, generation, pinned, created_at, last_access
		FROM cache_entries
		WHERE pinned = 0
		ORDER BY last_access ASC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query eviction candidates: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// HasSong reports whether a song's audio is indexed
func (r *EntryRepository) HasSong(songID string) (bool, error) {
	var exists int
	query := "SELECT EXISTS(SELECT 1 FROM cache_entries WHERE song_id = ? AND kind = ?)"
	if err := r.db.QueryRow(query, songID, string(models.EntryAudio)).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: failed to check song cache: %v", shared.ErrStorage, err)
	}
	return exists != 0, nil
}

// CachedSongIDs lists the IDs of songs whose audio is indexed
func (r *EntryRepository) CachedSongIDs() ([]string, error) {
	query := "SELECT DISTINCT song_id FROM cache_entries WHERE kind = ? AND song_id != '' ORDER BY song_id"

	rows, err := r.db.Query(query, string(models.EntryAudio))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query cached song ids: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: failed to scan song id: %v", shared.ErrStorage, err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorage, err)
	}

	return ids, nil
}

// TotalSize reports the summed size of all indexed blobs in bytes
func (r *EntryRepository) TotalSize() (int64, error) {
	var total int64
	if err := r.db.QueryRow("SELECT COALESCE(SUM(size_bytes), 0) FROM cache_entries").Scan(&total); err != nil {
		return 0, fmt.Errorf("%w: failed to sum cache size: %v", shared.ErrStorage, err)
	}
	return total, nil
}

// Count reports the number of indexed entries
func (r *EntryRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM cache_entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: failed to count cache entries: %v", shared.ErrStorage, err)
	}
	return count, nil
}

// KindStats summarizes entries of one kind.
type KindStats struct {
	Kind  models.EntryKind `json:"kind"`
	Count int              `json:"count"`
	Bytes int64            `json:"bytes"`
}

// StatsByKind reports per-kind entry counts and sizes
func (r *EntryRepository) StatsByKind() ([]KindStats, error) {
	query := `
		SELECT kind, COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM cache_entries
		GROUP BY kind
		ORDER BY kind
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query cache stats: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	var stats []KindStats
	for rows.Next() {
		var (
			s    KindStats
			kind string
		)
		if err := rows.Scan(&kind, &s.Count, &s.Bytes); err != nil {
			return nil, fmt.Errorf("%w: failed to scan cache stats: %v", shared.ErrStorage, err)
		}
		s.Kind = models.EntryKind(kind)
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorage, err)
	}

	return stats, nil
}

// scanOne scans a single [sql.Row] into a [models.CacheEntry]
func (r *EntryRepository) scanOne(row *sql.Row) (models.CacheEntry, error) {
	var (
		entry      models.CacheEntry
		kind       string
		pinned     int
		createdAt  time.Time
		lastAccess time.Time
	)

	err := row.Scan(&entry.Key, &entry.SongID, &kind, &entry.ContentType, &entry.SizeBytes, &entry.Checksum, &entry.Generation, &pinned, &createdAt, &lastAccess)
	if err == sql.ErrNoRows {
		return models.CacheEntry{}, fmt.Errorf("%w: cache entry", shared.ErrNotFound)
	}
	if err != nil {
		return models.CacheEntry{}, fmt.Errorf("%w: failed to scan cache entry: %v", shared.ErrStorage, err)
	}

	entry.Kind = models.EntryKind(kind)
	entry.Pinned = pinned != 0
	entry.CreatedAt = createdAt
	entry.LastAccess = lastAccess
	return entry, nil
}

// collect drains [sql.Rows] into a slice of [models.CacheEntry]
func (r *EntryRepository) collect(rows *sql.Rows) ([]models.CacheEntry, error) {
	var entries []models.CacheEntry
	for rows.Next() {
		var (
			entry      models.CacheEntry
			kind       string
			pinned     int
			createdAt  time.Time
			lastAccess time.Time
		)
		if err := rows.Scan(&entry.Key, &entry.SongID, &kind, &entry.ContentType, &entry.SizeBytes, &entry.Checksum, &entry.Generation, &pinned, &createdAt, &lastAccess); err != nil {
			return nil, fmt.Errorf("%w: failed to scan cache entry: %v", shared.ErrStorage, err)
		}
		entry.Kind = models.EntryKind(kind)
		entry.Pinned = pinned != 0
		entry.CreatedAt = createdAt
		entry.LastAccess = lastAccess
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorage, err)
	}

	return entries, nil
}
