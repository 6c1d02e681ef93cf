package repositories

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"fermata/internal/shared"
)

// Keys stored in the meta table.
const (
	metaGeneration    = "cache_generation"
	metaLastSync      = "last_sync_at"
	metaServerVersion = "server_version"
)

// MetaRepository stores small key/value state, notably the active cache
// generation.
type MetaRepository struct {
	db *sql.DB
}

// NewMetaRepository creates a new MetaRepository with the given database connection
func NewMetaRepository(db *sql.DB) *MetaRepository {
	return &MetaRepository{db: db}
}

// Get retrieves a raw value by key
func (r *MetaRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: meta key %s", shared.ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("%w: failed to read meta key %s: %v", shared.ErrStorage, key, err)
	}
	return value, nil
}

// Set stores a raw value under key
func (r *MetaRepository) Set(key, value string) error {
	query := `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := r.db.Exec(query, key, value); err != nil {
		return fmt.Errorf("%w: failed to set meta key %s: %v", shared.ErrStorage, key, err)
	}
	return nil
}

// Delete removes a key. Missing keys are ignored.
func (r *MetaRepository) Delete(key string) error {
	if _, err := r.db.Exec("DELETE FROM meta WHERE key = ?", key); err != nil {
		return fmt.Errorf("%w: failed to delete meta key %s: %v", shared.ErrStorage, key, err)
	}
	return nil
}

// Generation returns the active cache generation, defaulting to 0 when none
// has been recorded yet.
func (r *MetaRepository) Generation() (int, error) {
	value, err := r.Get(metaGeneration)
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, err
	}

	generation, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed cache generation %q", shared.ErrStorage, value)
	}
	return generation, nil
}

// SetGeneration records the active cache generation
func (r *MetaRepository) SetGeneration(generation int) error {
	return r.Set(metaGeneration, strconv.Itoa(generation))
}

// LastSyncAt returns when the last successful sync cycle finished, or the
// zero time when no cycle has completed.
func (r *MetaRepository) LastSyncAt() (time.Time, error) {
	value, err := r.Get(metaLastSync)
	if err != nil {
		if isNotFound(err) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: malformed last sync time %q", shared.ErrStorage, value)
	}
	return t, nil
}

// SetLastSyncAt records when a sync cycle finished
func (r *MetaRepository) SetLastSyncAt(t time.Time) error {
	return r.Set(metaLastSync, t.UTC().Format(time.RFC3339Nano))
}

// ServerVersion returns the upstream version recorded at the last cache
// activation, empty when none has been recorded.
func (r *MetaRepository) ServerVersion() (string, error) {
	value, err := r.Get(metaServerVersion)
	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// SetServerVersion records the upstream server version in service
func (r *MetaRepository) SetServerVersion(version string) error {
	return r.Set(metaServerVersion, version)
}
