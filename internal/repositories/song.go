package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"fermata/internal/models"
	"fermata/internal/shared"
)

// SongRepository persists catalog songs mirrored from the music server.
//
// Songs are keyed by the server's ID, so writes are upserts: a sync cycle
// replaces whatever was stored before without caring whether the row existed.
type SongRepository struct {
	db *sql.DB
}

// NewSongRepository creates a new SongRepository with the given database connection
func NewSongRepository(db *sql.DB) *SongRepository {
	return &SongRepository{db: db}
}

// Upsert inserts or replaces a [models.Song]
func (r *SongRepository) Upsert(song models.Song) error {
	if err := song.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO songs (id, title, artist, album, duration_ms, track_number, cover_id, revision, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			album = excluded.album,
			duration_ms = excluded.duration_ms,
			track_number = excluded.track_number,
			cover_id = excluded.cover_id,
			revision = excluded.revision,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query,
		song.ID,
		song.Title,
		song.Artist,
		song.Album,
		song.DurationMS,
		song.TrackNumber,
		song.CoverID,
		song.Revision,
		song.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert song: %v", shared.ErrStorage, err)
	}

	return nil
}

// UpsertAll writes a batch of songs in a single transaction.
// Either every song lands or none does.
func (r *SongRepository) UpsertAll(songs []models.Song) error {
	if len(songs) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", shared.ErrStorage, err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO songs (id, title, artist, album, duration_ms, track_number, cover_id, revision, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			album = excluded.album,
			duration_ms = excluded.duration_ms,
			track_number = excluded.track_number,
			cover_id = excluded.cover_id,
			revision = excluded.revision,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare upsert: %v", shared.ErrStorage, err)
	}
	defer stmt.Close()

	for _, song := range songs {
		if err := song.Validate(); err != nil {
			return fmt.Errorf("validation failed for song %s: %w", song.ID, err)
		}
		if _, err := stmt.Exec(
			song.ID,
			song.Title,
			song.Artist,
			song.Album,
			song.DurationMS,
			song.TrackNumber,
			song.CoverID,
			song.Revision,
			song.UpdatedAt,
		); err != nil {
			return fmt.Errorf("%w: failed to upsert song %s: %v", shared.ErrStorage, song.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit songs: %v", shared.ErrStorage, err)
	}

	return nil
}

// Get retrieves a song by ID
func (r *SongRepository) Get(id string) (models.Song, error) {
	query := `
		SELECT id, title, artist, album, duration_ms, track_number, cover_id, revision, updated_at
		FROM songs
		WHERE id = ?
	`

	return r.scanOne(r.db.QueryRow(query, id))
}

// List retrieves all songs ordered by artist, album, then track number
func (r *SongRepository) List() ([]models.Song, error) {
	query := `
		SELECT id, title, artist, album, duration_ms, track_number, cover_id, revision, updated_at
		FROM songs
		ORDER BY artist, album, track_number, title
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query songs: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// Search retrieves songs whose title, artist, or album contains the term,
// case-insensitively.
func (r *SongRepository) Search(term string) ([]models.Song, error) {
	query := `
		SELECT id, title, artist, album, duration_ms, track_number, cover_id, revision, updated_at
		FROM songs
		WHERE title LIKE ? OR artist LIKE ? OR album LIKE ?
		ORDER BY artist, album, track_number, title
	`

	pattern := "%" + term + "%"
	rows, err := r.db.Query(query, pattern, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to search songs: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// Delete removes a song from the local catalog
func (r *SongRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM songs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: failed to delete song: %v", shared.ErrStorage, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrStorage, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: song %s", shared.ErrNotFound, id)
	}

	return nil
}

// Count reports the number of songs in the local catalog
func (r *SongRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM songs").Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: failed to count songs: %v", shared.ErrStorage, err)
	}
	return count, nil
}

// scanOne scans a single [sql.Row] into a [models.Song]
func (r *SongRepository) scanOne(row *sql.Row) (models.Song, error) {
	var (
		song      models.Song
		updatedAt time.Time
	)

	err := row.Scan(&song.ID, &song.Title, &song.Artist, &song.Album, &song.DurationMS, &song.TrackNumber, &song.CoverID, &song.Revision, &updatedAt)
	if err == sql.ErrNoRows {
		return models.Song{}, fmt.Errorf("%w: song", shared.ErrNotFound)
	}
	if err != nil {
		return models.Song{}, fmt.Errorf("%w: failed to scan song: %v", shared.ErrStorage, err)
	}

	song.UpdatedAt = updatedAt
	return song, nil
}

// collect drains [sql.Rows] into a slice of [models.Song]
func (r *SongRepository) collect(rows *sql.Rows) ([]models.Song, error) {
	var songs []models.Song
	for rows.Next() {
		var (
			song      models.Song
			updatedAt time.Time
		)
		if err := rows.Scan(&song.ID, &song.Title, &song.Artist, &song.Album, &song.DurationMS, &song.TrackNumber, &song.CoverID, &song.Revision, &updatedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan song: %v", shared.ErrStorage, err)
		}
		song.UpdatedAt = updatedAt
		songs = append(songs, song)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorage, err)
	}

	return songs, nil
}
