package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"fermata/internal/models"
	"fermata/internal/repositories"
	"fermata/internal/shared"
)

// audioTypes maps the importable extensions onto their content types.
var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".wav":  "audio/wav",
}

// Import walks a directory of audio files and seeds the cache and catalog
// from them, so a guest-mode install can play without ever reaching a
// server. Song IDs derive from the path relative to the import root, which
// makes re-importing the same tree a no-op.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	root := cmd.StringArg("dir")
	if root == "" {
		return fmt.Errorf("%w: directory", shared.ErrMissingArgument)
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", shared.ErrInvalidArgument, root)
	}

	s, closeStack, err := r.openStack()
	if err != nil {
		return err
	}
	defer closeStack()

	songs := repositories.NewSongRepository(s.db)
	library := repositories.NewLibraryRepository(s.db)

	var imported []string
	failed := 0
	skipped := 0

	r.writePlain("Importing audio from %s\n", root)
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}

		contentType, ok := audioTypes[strings.ToLower(filepath.Ext(path))]
		if !ok {
			skipped++
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		songID := "local-" + stableID(rel)

		if err := s.media.ImportFile(songID, path, contentType); err != nil {
			r.logger.Warn("import failed", "file", rel, "error", err)
			r.writePlain("   ✗ %s: %v\n", rel, err)
			failed++
			return nil
		}

		song := songFromPath(songID, rel)
		if err := songs.Upsert(song); err != nil {
			r.logger.Warn("failed to index imported song", "file", rel, "error", err)
		}
		if err := library.Add(songID, time.Now()); err != nil {
			r.logger.Warn("failed to add imported song to library", "file", rel, "error", err)
		}

		r.writePlain("   ✓ %s\n", rel)
		imported = append(imported, songID)
		return nil
	})
	if walkErr != nil {
		return walkErr
	}

	if name := cmd.String("library"); name != "" && len(imported) > 0 {
		if err := r.groupImported(s.db, name, imported); err != nil {
			return err
		}
	}

	r.writePlainln("Imported %d songs (%d failed, %d skipped)", len(imported), failed, skipped)
	return nil
}

// groupImported upserts a local playlist and merges the imported songs into
// its membership, so repeated imports accumulate instead of replacing.
func (r *Runner) groupImported(db *sql.DB, name string, imported []string) error {
	playlists := repositories.NewPlaylistRepository(db)
	playlistID := "local-" + stableID("playlist/"+name)

	existing, err := playlists.SongIDs(playlistID)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(existing)+len(imported))
	merged := make([]string, 0, len(existing)+len(imported))
	for _, id := range append(existing, imported...) {
		if seen[id] {
			continue
		}
		seen[id] = true
		merged = append(merged, id)
	}

	err = playlists.Upsert(models.Playlist{
		ID:        playlistID,
		Name:      name,
		Owner:     "local",
		SongCount: len(merged),
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	if err := playlists.SetSongs(playlistID, merged); err != nil {
		return err
	}

	return r.writePlain("✓ Grouped %d songs under playlist '%s'\n", len(merged), name)
}

// stableID hashes a relative path into a short stable identifier.
func stableID(rel string) string {
	sum := sha256.Sum256([]byte(rel))
	return hex.EncodeToString(sum[:])[:12]
}

// songFromPath derives catalog metadata from an imported file's relative
// path: title from the file name, album and artist from the directories
// above it when present.
func songFromPath(songID, rel string) models.Song {
	song := models.Song{
		ID:        songID,
		Title:     strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel)),
		UpdatedAt: time.Now(),
	}

	parts := strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/")
	if len(parts) > 0 && parts[len(parts)-1] != "." {
		song.Album = parts[len(parts)-1]
	}
	if len(parts) > 1 {
		song.Artist = parts[len(parts)-2]
	}
	return song
}
