// Music server [Client] implementation
//
// Talks to the self-hosted music server's JSON API and media endpoints.
// Session tokens come from a [TokenProvider] so the same client serves both
// authenticated users and guests.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"fermata/internal/models"
	"fermata/internal/shared"
)

// guestTokens is the TokenProvider used when none is supplied.
type guestTokens struct{}

func (guestTokens) Token() (string, error) { return "", nil }

// ServerClient implements [Client] against the music server's HTTP API.
type ServerClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
}

// NewServerClient creates a client for the music server at baseURL.
// A nil http.Client falls back to [http.DefaultClient]; a nil TokenProvider
// makes every request anonymous.
func NewServerClient(baseURL string, client *http.Client, tokens TokenProvider) *ServerClient {
	if client == nil {
		client = http.DefaultClient
	}
	if tokens == nil {
		tokens = guestTokens{}
	}

	return &ServerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		tokens:     tokens,
	}
}

// BaseURL returns the server base URL the client talks to.
func (c *ServerClient) BaseURL() string {
	return c.baseURL
}

// songPayload is the wire shape of a song in API responses.
type songPayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	DurationMS  int    `json:"duration_ms"`
	TrackNumber int    `json:"track_number"`
	CoverID     string `json:"cover_id"`
	Revision    int64  `json:"revision"`
	UpdatedAt   string `json:"updated_at"`
}

func (p songPayload) toModel() models.Song {
	updatedAt, _ := time.Parse(time.RFC3339, p.UpdatedAt)
	return models.Song{
		ID:          p.ID,
		Title:       p.Title,
		Artist:      p.Artist,
		Album:       p.Album,
		DurationMS:  p.DurationMS,
		TrackNumber: p.TrackNumber,
		CoverID:     p.CoverID,
		Revision:    p.Revision,
		UpdatedAt:   updatedAt,
	}
}

// tokenPayload is the wire shape of auth responses.
type tokenPayload struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (p tokenPayload) toToken() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  p.Token,
		RefreshToken: p.RefreshToken,
		TokenType:    "Bearer",
	}
	if p.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(p.ExpiresIn) * time.Second)
	}
	return token
}

// Login exchanges credentials for a session token via POST /api/auth/login.
func (c *ServerClient) Login(ctx context.Context, username, password string) (*oauth2.Token, error) {
	body := map[string]string{"username": username, "password": password}

	var payload tokenPayload
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", body, &payload); err != nil {
		return nil, err
	}
	if payload.Token == "" {
		return nil, fmt.Errorf("%w: server returned no token", shared.ErrAuthFailed)
	}

	return payload.toToken(), nil
}

// Refresh exchanges a refresh token for a fresh session token via
// POST /api/auth/refresh.
func (c *ServerClient) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var payload tokenPayload
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/refresh", body, &payload); err != nil {
		return nil, err
	}
	if payload.Token == "" {
		return nil, fmt.Errorf("%w: server returned no token", shared.ErrAuthFailed)
	}

	token := payload.toToken()
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	return token, nil
}

// Ping probes the server via GET /api/ping and reports its version.
func (c *ServerClient) Ping(ctx context.Context) (string, error) {
	var payload struct {
		Version string `json:"version"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/ping", nil, &payload); err != nil {
		return "", err
	}
	return payload.Version, nil
}

// Manifest fetches the catalog listing via GET /api/manifest.
func (c *ServerClient) Manifest(ctx context.Context) (*Manifest, error) {
	var manifest Manifest
	if err := c.doJSON(ctx, http.MethodGet, "/api/manifest", nil, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// Songs fetches metadata for a chunk of songs via GET /api/songs?ids=...
func (c *ServerClient) Songs(ctx context.Context, ids []string) ([]models.Song, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	endpoint := "/api/songs?ids=" + url.QueryEscape(strings.Join(ids, ","))

	var payload struct {
		Songs []songPayload `json:"songs"`
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	songs := make([]models.Song, len(payload.Songs))
	for i, p := range payload.Songs {
		songs[i] = p.toModel()
	}
	return songs, nil
}

// Playlist fetches one playlist and its song IDs via GET /api/playlists/{id}.
func (c *ServerClient) Playlist(ctx context.Context, id string) (models.Playlist, []string, error) {
	var payload struct {
		ID          string   `json:"id"`
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Owner       string   `json:"owner"`
		Revision    int64    `json:"revision"`
		UpdatedAt   string   `json:"updated_at"`
		SongIDs     []string `json:"song_ids"`
	}

	endpoint := fmt.Sprintf("/api/playlists/%s", url.PathEscape(id))
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return models.Playlist{}, nil, err
	}

	updatedAt, _ := time.Parse(time.RFC3339, payload.UpdatedAt)
	playlist := models.Playlist{
		ID:          payload.ID,
		Name:        payload.Name,
		Description: payload.Description,
		Owner:       payload.Owner,
		SongCount:   len(payload.SongIDs),
		Revision:    payload.Revision,
		UpdatedAt:   updatedAt,
	}

	return playlist, payload.SongIDs, nil
}

// Library fetches the saved song IDs via GET /api/library.
func (c *ServerClient) Library(ctx context.Context) ([]string, error) {
	var payload struct {
		Revision int64    `json:"revision"`
		SongIDs  []string `json:"song_ids"`
	}

	if err := c.doJSON(ctx, http.MethodGet, "/api/library", nil, &payload); err != nil {
		return nil, err
	}
	return payload.SongIDs, nil
}

// FetchSong opens a song's audio stream via GET /api/stream/{id}.
func (c *ServerClient) FetchSong(ctx context.Context, songID, rangeSpec string) (*Media, error) {
	endpoint := fmt.Sprintf("/api/stream/%s", url.PathEscape(songID))

	var headers http.Header
	if rangeSpec != "" {
		headers = http.Header{"Range": []string{rangeSpec}}
	}

	return c.fetchMedia(ctx, endpoint, headers)
}

// FetchCover opens artwork via GET /api/cover/{id}?size=N.
func (c *ServerClient) FetchCover(ctx context.Context, coverID string, size int) (*Media, error) {
	endpoint := fmt.Sprintf("/api/cover/%s", url.PathEscape(coverID))
	if size > 0 {
		endpoint += fmt.Sprintf("?size=%d", size)
	}

	return c.fetchMedia(ctx, endpoint, nil)
}

// doJSON performs a JSON request against the API and decodes the response
// into result when non-nil.
func (c *ServerClient) doJSON(ctx context.Context, method, endpoint string, body, result any) error {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// fetchMedia performs a media request and hands the open body to the caller.
func (c *ServerClient) fetchMedia(ctx context.Context, endpoint string, headers http.Header) (*Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrNetwork, err)
	}

	if err := statusError(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return &Media{
		Body:          resp.Body,
		Status:        resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		ContentRange:  resp.Header.Get("Content-Range"),
	}, nil
}

// authorize attaches the session token when one is available.
func (c *ServerClient) authorize(req *http.Request) error {
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to read session token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// statusError maps non-2xx responses to sentinel errors.
func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: server returned status %d", shared.ErrNotAuthenticated, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: server returned status 404", shared.ErrNotFound)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: server returned status %d", shared.ErrServiceUnavailable, resp.StatusCode)
	default:
		var detail struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&detail); err == nil && detail.Error != "" {
			return fmt.Errorf("%w: status %d: %s", shared.ErrNetwork, resp.StatusCode, detail.Error)
		}
		return fmt.Errorf("%w: status %d", shared.ErrNetwork, resp.StatusCode)
	}
}
