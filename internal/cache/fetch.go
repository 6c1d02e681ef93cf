package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"fermata/internal/models"
	"fermata/internal/services"
	"fermata/internal/shared"
)

// FetchStream proxies a song's audio from upstream after a cache miss. Full
// 200 responses are copied into the cache as the caller drains the body;
// range responses are passed through uncached so a truncated byte run never
// answers a whole-file request later.
//
// A guest miss is ErrNotFound: guest libraries are pre-seeded, so there is
// nothing upstream to fall back to.
func (e *Engine) FetchStream(ctx context.Context, songID, rangeSpec string) (*services.Media, error) {
	if e.sessionToken() == "" {
		return nil, fmt.Errorf("%w: song %s not cached and no session to fetch with", shared.ErrNotFound, songID)
	}

	media, err := e.client.FetchSong(ctx, songID, rangeSpec)
	if err != nil {
		return nil, err
	}

	if rangeSpec == "" && media.Status == http.StatusOK {
		e.teeIntoCache(media, StreamKey(songID), songID, models.EntryAudio)
	}

	return media, nil
}

// FetchCover proxies a song's artwork from upstream after a cache miss,
// caching full responses the same way as FetchStream.
func (e *Engine) FetchCover(ctx context.Context, songID string, size int) (*services.Media, error) {
	if e.sessionToken() == "" {
		return nil, fmt.Errorf("%w: cover for %s not cached and no session to fetch with", shared.ErrNotFound, songID)
	}

	media, err := e.client.FetchCover(ctx, e.coverID(songID), size)
	if err != nil {
		return nil, err
	}

	if media.Status == http.StatusOK {
		e.teeIntoCache(media, CoverKey(songID, size), songID, models.EntryCover)
	}

	return media, nil
}

// coverID maps a song to its artwork ID, falling back to the song ID when
// the catalog has no row for it yet.
func (e *Engine) coverID(songID string) string {
	song, err := e.songs.Get(songID)
	if err != nil || song.CoverID == "" {
		return songID
	}
	return song.CoverID
}

// teeIntoCache swaps media.Body for a reader that copies every byte into a
// temp blob as the caller streams it. The entry is committed and indexed
// only once the caller drains the body to EOF and closes it; an abandoned
// stream caches nothing.
func (e *Engine) teeIntoCache(media *services.Media, key, songID string, kind models.EntryKind) {
	if e.monitor != nil && media.ContentLength > 0 && e.monitor.WouldExceed(media.ContentLength) {
		if _, err := e.RelieveQuota(); err != nil {
			e.logger.Warn("cache full and eviction failed, skipping cache write", "key", key, "error", err)
			return
		}
	}

	writer, err := e.store.Create(e.Generation(), key)
	if err != nil {
		e.logger.Warn("failed to start cache write", "key", key, "error", err)
		return
	}

	now := time.Now()
	media.Body = &cachingBody{
		body:   media.Body,
		writer: writer,
		engine: e,
		entry: models.CacheEntry{
			Key:         key,
			SongID:      songID,
			Kind:        kind,
			ContentType: media.ContentType,
			Generation:  e.Generation(),
			CreatedAt:   now,
			LastAccess:  now,
		},
	}
}

// cachingBody tees a response body into a blob writer. Caching must never
// break playback: a failed blob write abandons the cache copy and keeps
// serving the stream.
type cachingBody struct {
	body     io.ReadCloser
	writer   *BlobWriter
	engine   *Engine
	entry    models.CacheEntry
	complete bool
	failed   bool
}

func (b *cachingBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if n > 0 && !b.failed {
		if _, werr := b.writer.Write(p[:n]); werr != nil {
			b.failed = true
			b.engine.logger.Debug("abandoning cache write", "key", b.entry.Key, "error", werr)
		}
	}
	if err == io.EOF {
		b.complete = true
	}
	return n, err
}

func (b *cachingBody) Close() error {
	err := b.body.Close()
	if !b.complete || b.failed {
		b.writer.Abort()
		return err
	}

	// index off the serve path; the caller already has all the bytes
	go b.engine.commitEntry(b.writer, b.entry)
	return err
}

// commitEntry finalizes a completed blob write and indexes it.
func (e *Engine) commitEntry(w *BlobWriter, entry models.CacheEntry) {
	if err := w.Commit(); err != nil {
		e.logger.Warn("failed to commit cached blob", "key", entry.Key, "error", err)
		return
	}

	entry.SizeBytes = w.Size()
	entry.Checksum = w.Checksum()
	if err := e.entries.Put(entry); err != nil {
		e.logger.Warn("failed to index cached blob", "key", entry.Key, "error", err)
		return
	}

	e.logger.Debug("cached", "key", entry.Key, "bytes", entry.SizeBytes)
}

// EnsureAudio fetches and caches a song's audio unless it is already
// cached. Re-caching a cached song is a no-op success.
func (e *Engine) EnsureAudio(ctx context.Context, songID string) error {
	return e.ensure(ctx, StreamKey(songID), songID, models.EntryAudio, func(ctx context.Context) (*services.Media, error) {
		return e.client.FetchSong(ctx, songID, "")
	})
}

// EnsureCover fetches and caches a song's artwork unless already cached.
func (e *Engine) EnsureCover(ctx context.Context, songID string) error {
	return e.ensure(ctx, CoverKey(songID, 0), songID, models.EntryCover, func(ctx context.Context) (*services.Media, error) {
		return e.client.FetchCover(ctx, e.coverID(songID), 0)
	})
}

// ensure downloads one resource into the cache. A quota-full write evicts
// down to the warning target and retries the download once.
func (e *Engine) ensure(ctx context.Context, key, songID string, kind models.EntryKind, fetch func(context.Context) (*services.Media, error)) error {
	if _, err := e.entries.Get(key); err == nil {
		return nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	if e.sessionToken() == "" {
		return fmt.Errorf("%w: caching requires a session", shared.ErrNotAuthenticated)
	}

	err := e.download(ctx, key, songID, kind, fetch)
	if errors.Is(err, shared.ErrQuotaExceeded) {
		if _, rerr := e.RelieveQuota(); rerr != nil {
			return err
		}
		err = e.download(ctx, key, songID, kind, fetch)
	}

	return err
}

// download performs one fetch-and-store round trip for ensure.
func (e *Engine) download(ctx context.Context, key, songID string, kind models.EntryKind, fetch func(context.Context) (*services.Media, error)) error {
	media, err := fetch(ctx)
	if err != nil {
		return err
	}
	defer media.Close()

	if media.Partial() {
		return fmt.Errorf("%w: upstream returned partial content for %s", shared.ErrNetwork, key)
	}

	if e.monitor != nil && media.ContentLength > 0 && e.monitor.WouldExceed(media.ContentLength) {
		if _, rerr := e.RelieveQuota(); rerr != nil {
			return fmt.Errorf("%w: cache full and eviction failed: %v", shared.ErrQuotaExceeded, rerr)
		}
	}

	gen := e.Generation()
	size, sum, err := e.store.Write(gen, key, media.Body)
	if err != nil {
		return err
	}

	now := time.Now()
	return e.entries.Put(models.CacheEntry{
		Key:         key,
		SongID:      songID,
		Kind:        kind,
		ContentType: media.ContentType,
		SizeBytes:   size,
		Checksum:    sum,
		Generation:  gen,
		CreatedAt:   now,
		LastAccess:  now,
	})
}
