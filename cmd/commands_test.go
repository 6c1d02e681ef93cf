package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"fermata/internal/repositories"
	"fermata/internal/shared"
)

// runCLI executes one command line against a runner wired to a temp data
// dir, returning its output.
func runCLI(t *testing.T, runner *Runner, args ...string) (string, error) {
	t.Helper()

	output, ok := runner.output.(*bytes.Buffer)
	if !ok {
		t.Fatal("runner output must be a buffer")
	}
	output.Reset()

	app := &cli.Command{
		Name:     "fermata",
		Commands: runner.register(),
	}
	err := app.Run(context.Background(), append([]string{"fermata"}, args...))
	return output.String(), err
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()

	config := shared.DefaultConfig()
	config.Storage.DataDir = t.TempDir()

	return NewRunner(RunnerOpts{
		Config: config,
		Logger: shared.NewLogger(io.Discard),
		Output: &bytes.Buffer{},
	})
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestImportCommand(t *testing.T) {
	t.Run("imports a directory tree and groups it", func(t *testing.T) {
		music := t.TempDir()
		writeFile(t, filepath.Join(music, "Ada", "Nocturnes", "one.mp3"), "audio-one")
		writeFile(t, filepath.Join(music, "Ada", "Nocturnes", "two.flac"), "audio-two")
		writeFile(t, filepath.Join(music, "Ada", "Nocturnes", "notes.txt"), "not audio")

		runner := newTestRunner(t)
		out, err := runCLI(t, runner, "import", music, "--library", "Road Trip")
		if err != nil {
			t.Fatalf("import failed: %v", err)
		}
		if !strings.Contains(out, "Imported 2 songs (0 failed, 1 skipped)") {
			t.Errorf("expected the import summary, got %q", out)
		}

		s, cleanup, err := runner.openStack()
		if err != nil {
			t.Fatalf("failed to reopen stack: %v", err)
		}
		defer cleanup()

		songID := "local-" + stableID("Ada/Nocturnes/one.mp3")
		if !s.media.IsCached(songID) {
			t.Error("expected imported audio in the cache")
		}

		song, err := repositories.NewSongRepository(s.db).Get(songID)
		if err != nil {
			t.Fatalf("expected a catalog row, got %v", err)
		}
		if song.Title != "one" || song.Album != "Nocturnes" || song.Artist != "Ada" {
			t.Errorf("unexpected catalog metadata: %+v", song)
		}

		playlists, err := repositories.NewPlaylistRepository(s.db).List()
		if err != nil {
			t.Fatalf("failed to list playlists: %v", err)
		}
		if len(playlists) != 1 || playlists[0].Name != "Road Trip" || playlists[0].SongCount != 2 {
			t.Errorf("expected one grouping playlist with 2 songs, got %+v", playlists)
		}
	})

	t.Run("reimport is idempotent", func(t *testing.T) {
		music := t.TempDir()
		writeFile(t, filepath.Join(music, "solo.mp3"), "audio")

		runner := newTestRunner(t)
		if _, err := runCLI(t, runner, "import", music, "--library", "Mix"); err != nil {
			t.Fatalf("first import failed: %v", err)
		}
		if _, err := runCLI(t, runner, "import", music, "--library", "Mix"); err != nil {
			t.Fatalf("second import failed: %v", err)
		}

		s, cleanup, err := runner.openStack()
		if err != nil {
			t.Fatalf("failed to reopen stack: %v", err)
		}
		defer cleanup()

		playlists, err := repositories.NewPlaylistRepository(s.db).List()
		if err != nil {
			t.Fatalf("failed to list playlists: %v", err)
		}
		if len(playlists) != 1 || playlists[0].SongCount != 1 {
			t.Errorf("expected a single stable playlist entry, got %+v", playlists)
		}
	})

	t.Run("missing directory is a storage error", func(t *testing.T) {
		runner := newTestRunner(t)

		_, err := runCLI(t, runner, "import", filepath.Join(t.TempDir(), "gone"))
		if !errors.Is(err, shared.ErrStorage) {
			t.Fatalf("expected ErrStorage, got %v", err)
		}
	})
}

func TestAuthCommand(t *testing.T) {
	t.Run("status without a session reports guest mode", func(t *testing.T) {
		runner := newTestRunner(t)

		out, err := runCLI(t, runner, "auth", "status")
		if err != nil {
			t.Fatalf("auth status failed: %v", err)
		}
		if !strings.Contains(out, "Not logged in (guest mode)") {
			t.Errorf("expected the guest notice, got %q", out)
		}
	})

	t.Run("login requires a password source", func(t *testing.T) {
		runner := newTestRunner(t)

		_, err := runCLI(t, runner, "auth", "login", "ada")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Fatalf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("logout without a session is clean", func(t *testing.T) {
		runner := newTestRunner(t)

		out, err := runCLI(t, runner, "auth", "logout")
		if err != nil {
			t.Fatalf("auth logout failed: %v", err)
		}
		if !strings.Contains(out, "Logged out") {
			t.Errorf("expected the logout notice, got %q", out)
		}
	})
}

func TestCacheEvictValidation(t *testing.T) {
	t.Run("rejects both selectors", func(t *testing.T) {
		runner := newTestRunner(t)

		_, err := runCLI(t, runner, "cache", "evict", "--song", "s1", "--all")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("requires a selector", func(t *testing.T) {
		runner := newTestRunner(t)

		_, err := runCLI(t, runner, "cache", "evict")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Fatalf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("evicts everything on demand", func(t *testing.T) {
		music := t.TempDir()
		writeFile(t, filepath.Join(music, "solo.mp3"), "audio")

		runner := newTestRunner(t)
		if _, err := runCLI(t, runner, "import", music); err != nil {
			t.Fatalf("import failed: %v", err)
		}

		out, err := runCLI(t, runner, "cache", "evict", "--all")
		if err != nil {
			t.Fatalf("evict failed: %v", err)
		}
		if !strings.Contains(out, "Dropped 1 cached entries") {
			t.Errorf("expected the drop count, got %q", out)
		}
	})
}
