package tasks

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

const (
	defaultChunkSize = 25
	defaultWorkers   = 4
	maxWorkers       = 8
	defaultRateLimit = 4.0
)

// EngineOpts bounds sync chunking, the download worker pool, and the
// upstream request rate for bulk caching runs.
type EngineOpts struct {
	ChunkSize int     // songs per upstream page during sync (default 25)
	Workers   int     // concurrent download workers (default 4, max 8)
	RateLimit float64 // upstream requests per second (default 4)
}

func (o *EngineOpts) normalize() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = defaultChunkSize
	}
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.Workers > maxWorkers {
		o.Workers = maxWorkers
	}
	if o.RateLimit <= 0 {
		o.RateLimit = defaultRateLimit
	}
}

// CacheItemResult records the outcome of caching one song's media.
type CacheItemResult struct {
	SongID  string `json:"song_id"`
	Title   string `json:"title,omitempty"` // catalog title when known
	AudioOK bool   `json:"audio_ok"`
	CoverOK bool   `json:"cover_ok"`
	Err     error  `json:"-"`
}

// Complete reports whether both audio and artwork landed in the cache.
func (r CacheItemResult) Complete() bool {
	return r.AudioOK && r.CoverOK
}

// CacheRunResult summarizes one bulk caching run.
//
// Total counts the resolved song set; Items holds one entry per processed
// song in completion order. When a run is cancelled mid-way, unprocessed
// songs appear in no bucket.
type CacheRunResult struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"` // audio and artwork cached
	Partial   int               `json:"partial"`   // audio cached, artwork failed
	Failed    int               `json:"failed"`    // audio missing
	Items     []CacheItemResult `json:"items,omitempty"`
}

// FailedIDs returns the songs whose audio could not be cached.
func (r *CacheRunResult) FailedIDs() []string {
	var ids []string
	for _, item := range r.Items {
		if !item.AudioOK {
			ids = append(ids, item.SongID)
		}
	}
	return ids
}

type cacheJob struct {
	songID string
	title  string
}

// CacheSong downloads one song's audio and artwork into the media cache.
func (e *OfflineEngine) CacheSong(ctx context.Context, progress chan<- ProgressUpdate, songID string) (*CacheRunResult, error) {
	return e.runCache(ctx, progress, "song "+songID, []string{songID})
}

// CachePlaylist caches every song in a playlist. Membership is resolved
// against the upstream server so the freshest ordering wins.
func (e *OfflineEngine) CachePlaylist(ctx context.Context, progress chan<- ProgressUpdate, playlistID string) (*CacheRunResult, error) {
	e.sendProgress(progress, resolveSetUpdate("playlist "+playlistID))

	playlist, songIDs, err := e.client.Playlist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	return e.runCache(ctx, progress, "playlist "+playlist.Name, songIDs)
}

// CacheLibrary caches every song saved to the user's library.
func (e *OfflineEngine) CacheLibrary(ctx context.Context, progress chan<- ProgressUpdate) (*CacheRunResult, error) {
	e.sendProgress(progress, resolveSetUpdate("library"))

	songIDs, err := e.client.Library(ctx)
	if err != nil {
		return nil, err
	}

	return e.runCache(ctx, progress, "library", songIDs)
}

// runCache downloads media for a song set concurrently with rate limiting and
// progress tracking.
//
// This method implements a worker pool pattern to efficiently fill the cache.
// It respects upstream rate limits, handles partial failures gracefully, and
// summarizes per-song outcomes so a run never aborts on a single bad item.
func (e *OfflineEngine) runCache(ctx context.Context, progress chan<- ProgressUpdate, target string, ids []string) (*CacheRunResult, error) {
	ids = dedupeIDs(ids)

	result := &CacheRunResult{
		Total: len(ids),
		Items: make([]CacheItemResult, 0, len(ids)),
	}
	if len(ids) == 0 {
		return result, nil
	}

	limiter := rate.NewLimiter(rate.Limit(e.opts.RateLimit), 1)

	jobs := make(chan cacheJob, len(ids))
	results := make(chan CacheItemResult, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < e.opts.Workers; i++ {
		wg.Add(1)
		go e.cacheWorker(ctx, &wg, limiter, jobs, results)
	}

	e.sendProgress(progress, cacheQueuedUpdate(len(ids)))
	for _, id := range ids {
		job := cacheJob{songID: id}
		if song, err := e.songs.Get(id); err == nil {
			job.title = song.Title
		}
		jobs <- job
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Items = append(result.Items, res)

		switch {
		case res.Complete():
			result.Succeeded++
		case res.AudioOK:
			result.Partial++
		default:
			result.Failed++
		}

		e.sendProgress(progress, cacheItemUpdate(completed, len(ids), res))
	}

	e.logger.Info("bulk caching finished",
		"target", target,
		"total", result.Total,
		"succeeded", result.Succeeded,
		"partial", result.Partial,
		"failed", result.Failed,
	)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// cacheWorker is a worker goroutine that caches songs from the jobs channel.
func (e *OfflineEngine) cacheWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	limiter *rate.Limiter,
	jobs <-chan cacheJob,
	results chan<- CacheItemResult,
) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		results <- e.cacheOne(ctx, limiter, job)
	}
}

// cacheOne fetches one song's audio and artwork. Already-cached media is
// skipped without spending a rate limiter slot, so re-running a bulk
// operation over a warm cache finishes immediately.
func (e *OfflineEngine) cacheOne(ctx context.Context, limiter *rate.Limiter, job cacheJob) CacheItemResult {
	res := CacheItemResult{SongID: job.songID, Title: job.title}

	res.AudioOK = e.media.IsCached(job.songID)
	res.CoverOK = e.media.HasCover(job.songID)
	if res.AudioOK && res.CoverOK {
		return res
	}

	if !res.AudioOK {
		if err := limiter.Wait(ctx); err != nil {
			res.Err = err
			return res
		}
		if err := e.media.EnsureAudio(ctx, job.songID); err != nil {
			res.Err = err
			return res
		}
		res.AudioOK = true
	}

	// No audio means the song is unplayable, so artwork is only fetched once
	// the audio landed.
	if !res.CoverOK {
		if err := limiter.Wait(ctx); err != nil {
			res.Err = err
			return res
		}
		if err := e.media.EnsureCover(ctx, job.songID); err != nil {
			res.Err = err
			return res
		}
		res.CoverOK = true
	}

	return res
}

// dedupeIDs drops repeated IDs while preserving first-seen order. Playlists
// can list a song more than once, but it only needs caching once.
func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
