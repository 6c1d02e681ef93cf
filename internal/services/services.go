// package services defines interface Client for talking to the music server
package services

import (
	"context"
	"io"

	"golang.org/x/oauth2"

	"fermata/internal/models"
)

// TokenProvider supplies the current session token for upstream requests.
//
// Implementations return an empty token when the user is browsing as a
// guest. Returning an error aborts the request before it is sent.
type TokenProvider interface {
	Token() (string, error)
}

// Client defines the operations fermata needs from the upstream music server.
type Client interface {
	// Login exchanges credentials for a session token.
	Login(ctx context.Context, username, password string) (*oauth2.Token, error)

	// Refresh exchanges a refresh token for a fresh session token.
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// Ping probes upstream reachability. A nil error means the server
	// answered, regardless of auth state. The returned string is the
	// server's reported version, empty when it does not report one.
	Ping(ctx context.Context) (string, error)

	// Manifest fetches the server's catalog listing with per-entity
	// revisions, used to decide what needs syncing.
	Manifest(ctx context.Context) (*Manifest, error)

	// Songs fetches full metadata for a chunk of song IDs.
	Songs(ctx context.Context, ids []string) ([]models.Song, error)

	// Playlist fetches one playlist and its ordered song IDs.
	Playlist(ctx context.Context, id string) (models.Playlist, []string, error)

	// Library fetches the IDs of songs saved to the user's library.
	Library(ctx context.Context) ([]string, error)

	// FetchSong opens a song's audio stream. rangeSpec is an HTTP Range
	// header value passed through verbatim, or empty for the whole file.
	FetchSong(ctx context.Context, songID, rangeSpec string) (*Media, error)

	// FetchCover opens artwork for a cover ID at the requested pixel size.
	FetchCover(ctx context.Context, coverID string, size int) (*Media, error)

	// BaseURL returns the server base URL the client talks to.
	BaseURL() string
}

// Manifest lists the server's catalog entities with revision counters.
type Manifest struct {
	Songs      []ManifestEntry `json:"songs"`
	Playlists  []ManifestEntry `json:"playlists"`
	LibraryRev int64           `json:"library_revision"`
}

// ManifestEntry identifies one entity and its current server revision.
type ManifestEntry struct {
	ID       string `json:"id"`
	Revision int64  `json:"revision"`
}

// Media is an open upstream media response. The caller owns Body and must
// close it.
type Media struct {
	Body          io.ReadCloser
	Status        int    // 200 for full content, 206 for a range
	ContentType   string
	ContentLength int64  // -1 when unknown
	ContentRange  string // set on 206 responses
}

// Close releases the underlying response body.
func (m *Media) Close() error {
	if m.Body == nil {
		return nil
	}
	return m.Body.Close()
}

// Partial reports whether the response covers only a byte range.
func (m *Media) Partial() bool {
	return m.Status == 206
}
