package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"fermata/internal/models"
	"fermata/internal/shared"
)

var (
	_ list.Item = playlistItem{}
	_ list.Item = songItem{}
)

// playlistItem wraps [models.Playlist] to implement [list.Item].
type playlistItem struct {
	playlist models.Playlist
}

func (i playlistItem) FilterValue() string { return i.playlist.Name }
func (i playlistItem) Title() string       { return i.playlist.Name }
func (i playlistItem) Description() string {
	desc := fmt.Sprintf("%d songs", i.playlist.SongCount)
	if i.playlist.Owner != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.playlist.Owner)
	}
	return desc
}

// songItem wraps [models.Song] to implement [list.Item], marking songs that
// are already in the media cache.
type songItem struct {
	song   models.Song
	cached bool
}

func (i songItem) FilterValue() string { return i.song.Title }
func (i songItem) Title() string {
	if i.cached {
		return fmt.Sprintf("✓ %s", i.song.Title)
	}
	return i.song.Title
}
func (i songItem) Description() string {
	desc := i.song.Artist
	if i.song.Album != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.song.Album)
	}
	if i.song.DurationMS > 0 {
		desc = fmt.Sprintf("%s • %s", desc, shared.FormatDuration(i.song.DurationMS))
	}
	return desc
}
