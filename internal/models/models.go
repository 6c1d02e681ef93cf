// package models defines the data model for the offline music cache
package models

import (
	"fmt"
	"time"
)

// EntryKind enumerates the flavors of cached media blobs.
type EntryKind string

const (
	EntryAudio EntryKind = "audio" // full song audio
	EntryCover EntryKind = "cover" // album or song artwork
)

// EntityKind enumerates the entity kinds tracked by sync bookkeeping.
type EntityKind string

const (
	KindSong     EntityKind = "song"
	KindPlaylist EntityKind = "playlist"
	KindLibrary  EntityKind = "library"
)

// Song is a track mirrored from the music server's catalog.
type Song struct {
	ID          string
	Title       string
	Artist      string
	Album       string
	DurationMS  int
	TrackNumber int
	CoverID     string
	Revision    int64
	UpdatedAt   time.Time
}

// Validate checks if the song's data is valid and returns an error if not.
func (s Song) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("song id is required")
	}
	if s.Title == "" {
		return fmt.Errorf("song title is required")
	}
	return nil
}

// Playlist is a playlist mirrored from the music server's catalog.
type Playlist struct {
	ID          string
	Name        string
	Description string
	Owner       string
	SongCount   int
	Revision    int64
	UpdatedAt   time.Time
}

// Validate checks if the playlist's data is valid and returns an error if not.
func (p Playlist) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("playlist id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("playlist name is required")
	}
	return nil
}

// PlaylistEntry links a song into a playlist at a position.
type PlaylistEntry struct {
	PlaylistID string
	SongID     string
	Position   int
}

// LibrarySong marks a song as saved to the user's library.
type LibrarySong struct {
	SongID  string
	AddedAt time.Time
}

// CacheEntry indexes one cached media blob on disk.
//
// Key is the resource key the blob answers (e.g. "song:42:stream" or
// "song:42:cover"). Generation selects the blob directory the bytes live in.
type CacheEntry struct {
	Key         string
	SongID      string
	Kind        EntryKind
	ContentType string
	SizeBytes   int64
	Checksum    string
	Generation  int
	Pinned      bool
	CreatedAt   time.Time
	LastAccess  time.Time
}

// Validate checks if the cache entry's data is valid and returns an error if not.
func (e CacheEntry) Validate() error {
	if e.Key == "" {
		return fmt.Errorf("cache entry key is required")
	}
	if e.Kind != EntryAudio && e.Kind != EntryCover {
		return fmt.Errorf("unknown cache entry kind %q", e.Kind)
	}
	if e.SizeBytes < 0 {
		return fmt.Errorf("cache entry size must be non-negative")
	}
	return nil
}

// SyncState records per-entity sync bookkeeping. Pending marks entities whose
// metadata still needs to be pulled from the server. LastSynced is the zero
// time for entities that have never completed a sync.
type SyncState struct {
	EntityID   string
	Kind       EntityKind
	Revision   int64
	Pending    bool
	LastSynced time.Time
}
