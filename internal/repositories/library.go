package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"fermata/internal/models"
	"fermata/internal/shared"
)

// LibraryRepository persists which songs the user saved to their library.
type LibraryRepository struct {
	db *sql.DB
}

// NewLibraryRepository creates a new LibraryRepository with the given database connection
func NewLibraryRepository(db *sql.DB) *LibraryRepository {
	return &LibraryRepository{db: db}
}

// Add marks a song as saved. Adding an already saved song is a no-op.
func (r *LibraryRepository) Add(songID string, addedAt time.Time) error {
	query := `
		INSERT INTO library_songs (song_id, added_at)
		VALUES (?, ?)
		ON CONFLICT(song_id) DO NOTHING
	`

	if _, err := r.db.Exec(query, songID, addedAt); err != nil {
		return fmt.Errorf("%w: failed to add library song: %v", shared.ErrStorage, err)
	}
	return nil
}

// Remove unmarks a saved song
func (r *LibraryRepository) Remove(songID string) error {
	result, err := r.db.Exec("DELETE FROM library_songs WHERE song_id = ?", songID)
	if err != nil {
		return fmt.Errorf("%w: failed to remove library song: %v", shared.ErrStorage, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrStorage, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: library song %s", shared.ErrNotFound, songID)
	}

	return nil
}

// Replace swaps the entire library membership for the given song IDs.
// Used by sync when the server is the source of truth.
func (r *LibraryRepository) Replace(songIDs []string, addedAt time.Time) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", shared.ErrStorage, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM library_songs"); err != nil {
		return fmt.Errorf("%w: failed to clear library: %v", shared.ErrStorage, err)
	}

	stmt, err := tx.Prepare("INSERT INTO library_songs (song_id, added_at) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("%w: failed to prepare insert: %v", shared.ErrStorage, err)
	}
	defer stmt.Close()

	for _, id := range songIDs {
		if _, err := stmt.Exec(id, addedAt); err != nil {
			return fmt.Errorf("%w: failed to insert library song %s: %v", shared.ErrStorage, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit library: %v", shared.ErrStorage, err)
	}

	return nil
}

// Contains reports whether a song is saved to the library
func (r *LibraryRepository) Contains(songID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow("SELECT EXISTS(SELECT 1 FROM library_songs WHERE song_id = ?)", songID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: failed to check library song: %v", shared.ErrStorage, err)
	}
	return exists, nil
}

// List returns all saved songs, most recently added first
func (r *LibraryRepository) List() ([]models.LibrarySong, error) {
	rows, err := r.db.Query("SELECT song_id, added_at FROM library_songs ORDER BY added_at DESC, song_id")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query library: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	var songs []models.LibrarySong
	for rows.Next() {
		var (
			song    models.LibrarySong
			addedAt time.Time
		)
		if err := rows.Scan(&song.SongID, &addedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan library song: %v", shared.ErrStorage, err)
		}
		song.AddedAt = addedAt
		songs = append(songs, song)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorage, err)
	}

	return songs, nil
}

// IDs returns the saved song IDs without timestamps
func (r *LibraryRepository) IDs() ([]string, error) {
	rows, err := r.db.Query("SELECT song_id FROM library_songs ORDER BY song_id")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query library: %v", shared.ErrStorage, err)
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

// Count reports the number of saved songs
func (r *LibraryRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM library_songs").Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: failed to count library songs: %v", shared.ErrStorage, err)
	}
	return count, nil
}
