// package testing contains shared testing utilities
package testing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"testing"

	"golang.org/x/oauth2"

	"fermata/internal/models"
	"fermata/internal/services"
)

// MockClient is a test double for [services.Client]. Unset function fields
// return empty successes, except the media fetchers which fail loudly so a
// test never streams from an unstubbed upstream.
type MockClient struct {
	LoginFunc      func(ctx context.Context, username, password string) (*oauth2.Token, error)
	RefreshFunc    func(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	PingFunc       func(ctx context.Context) (string, error)
	ManifestFunc   func(ctx context.Context) (*services.Manifest, error)
	SongsFunc      func(ctx context.Context, ids []string) ([]models.Song, error)
	PlaylistFunc   func(ctx context.Context, id string) (models.Playlist, []string, error)
	LibraryFunc    func(ctx context.Context) ([]string, error)
	FetchSongFunc  func(ctx context.Context, songID, rangeSpec string) (*services.Media, error)
	FetchCoverFunc func(ctx context.Context, coverID string, size int) (*services.Media, error)
	Base           string
}

func (m *MockClient) Login(ctx context.Context, username, password string) (*oauth2.Token, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, username, password)
	}
	return &oauth2.Token{AccessToken: "mock-token"}, nil
}

func (m *MockClient) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return &oauth2.Token{AccessToken: "mock-token"}, nil
}

func (m *MockClient) Ping(ctx context.Context) (string, error) {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return "", nil
}

func (m *MockClient) Manifest(ctx context.Context) (*services.Manifest, error) {
	if m.ManifestFunc != nil {
		return m.ManifestFunc(ctx)
	}
	return &services.Manifest{}, nil
}

func (m *MockClient) Songs(ctx context.Context, ids []string) ([]models.Song, error) {
	if m.SongsFunc != nil {
		return m.SongsFunc(ctx, ids)
	}
	return []models.Song{}, nil
}

func (m *MockClient) Playlist(ctx context.Context, id string) (models.Playlist, []string, error) {
	if m.PlaylistFunc != nil {
		return m.PlaylistFunc(ctx, id)
	}
	return models.Playlist{}, nil, nil
}

func (m *MockClient) Library(ctx context.Context) ([]string, error) {
	if m.LibraryFunc != nil {
		return m.LibraryFunc(ctx)
	}
	return []string{}, nil
}

func (m *MockClient) FetchSong(ctx context.Context, songID, rangeSpec string) (*services.Media, error) {
	if m.FetchSongFunc != nil {
		return m.FetchSongFunc(ctx, songID, rangeSpec)
	}
	return nil, errors.New("FetchSong not stubbed")
}

func (m *MockClient) FetchCover(ctx context.Context, coverID string, size int) (*services.Media, error) {
	if m.FetchCoverFunc != nil {
		return m.FetchCoverFunc(ctx, coverID, size)
	}
	return nil, errors.New("FetchCover not stubbed")
}

func (m *MockClient) BaseURL() string {
	if m.Base != "" {
		return m.Base
	}
	return "http://mock.local"
}

// TokenFunc adapts a function to [services.TokenProvider]
type TokenFunc func() (string, error)

func (f TokenFunc) Token() (string, error) { return f() }

// StaticToken returns a provider that always yields tok. Empty tok means
// guest mode.
func StaticToken(tok string) TokenFunc {
	return func() (string, error) { return tok, nil }
}

// AudioMedia wraps raw bytes in a full-content [services.Media]
func AudioMedia(b []byte, contentType string) *services.Media {
	return &services.Media{
		Body:          io.NopCloser(bytes.NewReader(b)),
		Status:        http.StatusOK,
		ContentType:   contentType,
		ContentLength: int64(len(b)),
	}
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
