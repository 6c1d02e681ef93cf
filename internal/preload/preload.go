// package preload holds upcoming queue tracks in memory so playback can
// start instantly, independent of the persistent cache
package preload

import (
	"context"
	"io"
	"net/url"
	"sync"

	"github.com/charmbracelet/log"

	"fermata/internal/cache"
	"fermata/internal/models"
	"fermata/internal/services"
)

// DefaultCapacity bounds held tracks when no capacity is configured.
const DefaultCapacity = 5

// Source supplies audio bytes, cache-first. *cache.Engine satisfies it.
type Source interface {
	OpenStream(songID string) (*cache.CachedMedia, error)
	FetchStream(ctx context.Context, songID, rangeSpec string) (*services.Media, error)
	MarkActive(key string)
	ClearActive(key string)
}

// Track is a song annotated with the local gateway URL serving its
// preloaded bytes. LocalURL is empty when the preload did not succeed and
// the caller should fall back to the stream route.
type Track struct {
	models.Song
	LocalURL string
}

type handle struct {
	data        []byte
	contentType string
}

type flight struct {
	done chan struct{}
	ok   bool
}

// Preloader keeps a bounded, insertion-ordered set of in-memory audio
// buffers. Insertion beyond capacity evicts the oldest entry that is
// neither the one just inserted nor the active track; this is strict
// insertion order, deliberately not LRU.
type Preloader struct {
	source   Source
	baseURL  string
	capacity int
	logger   *log.Logger

	mu       sync.Mutex
	handles  map[string]*handle
	order    []string
	inflight map[string]*flight
	active   string
	closed   bool
}

// NewPreloader creates a preloader serving local URLs under baseURL.
// Non-positive capacity falls back to DefaultCapacity.
func NewPreloader(source Source, baseURL string, capacity int, logger *log.Logger) *Preloader {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Preloader{
		source:   source,
		baseURL:  baseURL,
		capacity: capacity,
		logger:   logger,
		handles:  make(map[string]*handle),
		inflight: make(map[string]*flight),
	}
}

// PrepareTrack ensures the track's audio bytes are held in memory and
// returns a copy annotated with its local URL. Concurrent calls for one ID
// share a single fetch. On any failure the track comes back unannotated,
// never an error: the caller falls back to direct streaming.
func (p *Preloader) PrepareTrack(ctx context.Context, song models.Song) Track {
	plain := Track{Song: song}
	if song.ID == "" {
		return plain
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return plain
	}
	if _, ok := p.handles[song.ID]; ok {
		p.mu.Unlock()
		return p.annotate(song)
	}
	if f, ok := p.inflight[song.ID]; ok {
		p.mu.Unlock()
		select {
		case <-f.done:
			if f.ok {
				return p.annotate(song)
			}
			return plain
		case <-ctx.Done():
			return plain
		}
	}

	f := &flight{done: make(chan struct{})}
	p.inflight[song.ID] = f
	p.mu.Unlock()

	f.ok = p.load(ctx, song.ID)

	p.mu.Lock()
	if p.inflight[song.ID] == f {
		delete(p.inflight, song.ID)
	}
	p.mu.Unlock()
	close(f.done)

	if !f.ok {
		return plain
	}
	return p.annotate(song)
}

// PrimeTrack warms a track in the background.
func (p *Preloader) PrimeTrack(song models.Song) {
	go p.PrepareTrack(context.Background(), song)
}

// PreloadNextInQueue warms the track after currentIndex, if there is one.
func (p *Preloader) PreloadNextInQueue(queue []models.Song, currentIndex int) {
	next := currentIndex + 1
	if next < 0 || next >= len(queue) {
		return
	}
	p.PrimeTrack(queue[next])
}

// SetActive marks the currently playing track. The active track's buffer is
// never evicted and its cache entry is protected from LRU eviction for as
// long as it stays active. An empty ID clears the mark.
func (p *Preloader) SetActive(songID string) {
	p.mu.Lock()
	previous := p.active
	p.active = songID
	p.mu.Unlock()

	if previous == songID {
		return
	}
	if previous != "" {
		p.source.ClearActive(cache.StreamKey(previous))
	}
	if songID != "" {
		p.source.MarkActive(cache.StreamKey(songID))
	}
}

// Handle returns the held bytes and content type for a track. The returned
// slice is shared; callers only read it.
func (p *Preloader) Handle(songID string) ([]byte, string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.handles[songID]
	if !ok {
		return nil, "", false
	}
	return h.data, h.contentType, true
}

// Held lists held track IDs in insertion order.
func (p *Preloader) Held() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ids []string
	for _, id := range p.order {
		if _, ok := p.handles[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len reports how many tracks are held.
func (p *Preloader) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Close releases every held buffer and forgets in-flight fetches. A fetch
// that completes after Close finds the closed flag and drops its result.
func (p *Preloader) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.handles = make(map[string]*handle)
	p.order = nil
	p.inflight = make(map[string]*flight)

	if p.active != "" {
		p.source.ClearActive(cache.StreamKey(p.active))
		p.active = ""
	}
}

// load fetches a track's bytes and inserts the handle unless the preloader
// closed while the fetch was in flight.
func (p *Preloader) load(ctx context.Context, songID string) bool {
	data, contentType, ok := p.fetch(ctx, songID)
	if !ok {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}

	p.insert(songID, data, contentType)
	return true
}

// fetch reads the track from the cache when possible, otherwise through the
// fetch-through path, which also populates the cache.
func (p *Preloader) fetch(ctx context.Context, songID string) ([]byte, string, bool) {
	if media, err := p.source.OpenStream(songID); err == nil {
		data, rerr := io.ReadAll(media.File)
		media.Close()
		if rerr == nil {
			return data, media.Entry.ContentType, true
		}
		p.logger.Debug("failed to read cached audio for preload", "song", songID, "error", rerr)
	}

	media, err := p.source.FetchStream(ctx, songID, "")
	if err != nil {
		p.logger.Debug("preload fetch failed", "song", songID, "error", err)
		return nil, "", false
	}
	defer media.Close()

	data, err := io.ReadAll(media.Body)
	if err != nil {
		p.logger.Debug("preload read failed", "song", songID, "error", err)
		return nil, "", false
	}

	return data, media.ContentType, true
}

// insert stores a handle and evicts down to capacity. Callers hold p.mu.
func (p *Preloader) insert(songID string, data []byte, contentType string) {
	if _, ok := p.handles[songID]; !ok {
		p.order = append(p.order, songID)
	}
	p.handles[songID] = &handle{data: data, contentType: contentType}

	for len(p.handles) > p.capacity {
		if !p.evictOldest(songID) {
			break
		}
	}
}

// evictOldest releases the oldest held entry that is neither the one just
// inserted nor the active track. Callers hold p.mu.
func (p *Preloader) evictOldest(justInserted string) bool {
	for i, id := range p.order {
		if _, ok := p.handles[id]; !ok {
			continue
		}
		if id == justInserted || id == p.active {
			continue
		}

		delete(p.handles, id)
		p.order = append(p.order[:i:i], p.order[i+1:]...)
		p.logger.Debug("preload buffer released", "song", id)
		return true
	}
	return false
}

// annotate returns song with its local preload URL attached.
func (p *Preloader) annotate(song models.Song) Track {
	return Track{
		Song:     song,
		LocalURL: p.baseURL + "/preload/" + url.PathEscape(song.ID),
	}
}
