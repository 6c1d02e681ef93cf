package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"fermata/internal/models"
	"fermata/internal/shared"
)

// PlaylistRepository persists catalog playlists and their song membership.
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Upsert inserts or replaces a [models.Playlist]
func (r *PlaylistRepository) Upsert(playlist models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO playlists (id, name, description, owner, song_count, revision, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			owner = excluded.owner,
			song_count = excluded.song_count,
			revision = excluded.revision,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query,
		playlist.ID,
		playlist.Name,
		playlist.Description,
		playlist.Owner,
		playlist.SongCount,
		playlist.Revision,
		playlist.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert playlist: %v", shared.ErrStorage, err)
	}

	return nil
}

// Get retrieves a playlist by ID
func (r *PlaylistRepository) Get(id string) (models.Playlist, error) {
	query := `
		SELECT id, name, description, owner, song_count, revision, updated_at
		FROM playlists
		WHERE id = ?
	`

	var (
		playlist  models.Playlist
		updatedAt time.Time
	)

	err := r.db.QueryRow(query, id).Scan(&playlist.ID, &playlist.Name, &playlist.Description, &playlist.Owner, &playlist.SongCount, &playlist.Revision, &updatedAt)
	if err == sql.ErrNoRows {
		return models.Playlist{}, fmt.Errorf("%w: playlist %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return models.Playlist{}, fmt.Errorf("%w: failed to scan playlist: %v", shared.ErrStorage, err)
	}

	playlist.UpdatedAt = updatedAt
	return playlist, nil
}

// List retrieves all playlists ordered by name
func (r *PlaylistRepository) List() ([]models.Playlist, error) {
	query := `
		SELECT id, name, description, owner, song_count, revision, updated_at
		FROM playlists
		ORDER BY name
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query playlists: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	var playlists []models.Playlist
	for rows.Next() {
		var (
			playlist  models.Playlist
			updatedAt time.Time
		)
		if err := rows.Scan(&playlist.ID, &playlist.Name, &playlist.Description, &playlist.Owner, &playlist.SongCount, &playlist.Revision, &updatedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan playlist: %v", shared.ErrStorage, err)
		}
		playlist.UpdatedAt = updatedAt
		playlists = append(playlists, playlist)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorage, err)
	}

	return playlists, nil
}

// Delete removes a playlist and its membership rows
func (r *PlaylistRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM playlists WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: failed to delete playlist: %v", shared.ErrStorage, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrStorage, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: playlist %s", shared.ErrNotFound, id)
	}

	return nil
}

// Count reports the number of playlists in the local catalog
func (r *PlaylistRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM playlists").Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: failed to count playlists: %v", shared.ErrStorage, err)
	}
	return count, nil
}

// SetSongs replaces a playlist's song membership with the given ordering.
func (r *PlaylistRepository) SetSongs(playlistID string, songIDs []string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", shared.ErrStorage, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM playlist_songs WHERE playlist_id = ?", playlistID); err != nil {
		return fmt.Errorf("%w: failed to clear playlist songs: %v", shared.ErrStorage, err)
	}

	stmt, err := tx.Prepare("INSERT INTO playlist_songs (playlist_id, song_id, position) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("%w: failed to prepare insert: %v", shared.ErrStorage, err)
	}
	defer stmt.Close()

	for i, songID := range songIDs {
		if _, err := stmt.Exec(playlistID, songID, i); err != nil {
			return fmt.Errorf("%w: failed to insert playlist song %s: %v", shared.ErrStorage, songID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit playlist songs: %v", shared.ErrStorage, err)
	}

	return nil
}

// SongIDs returns a playlist's song IDs in playlist order.
func (r *PlaylistRepository) SongIDs(playlistID string) ([]string, error) {
	query := `
		SELECT song_id FROM playlist_songs
		WHERE playlist_id = ?
		ORDER BY position
	`

	rows, err := r.db.Query(query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query playlist songs: %v", shared.ErrStorage, err)
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

// Songs returns a playlist's songs, joined against the catalog, in playlist
// order. Songs missing from the catalog are skipped.
func (r *PlaylistRepository) Songs(playlistID string) ([]models.Song, error) {
	query := `
		SELECT s.id, s.title, s.artist, s.album, s.duration_ms, s.track_number, s.cover_id, s.revision, s.updated_at
		FROM playlist_songs ps
		JOIN songs s ON s.id = ps.song_id
		WHERE ps.playlist_id = ?
		ORDER BY ps.position
	`

	rows, err := r.db.Query(query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query playlist songs: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

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
