package preload

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"fermata/internal/cache"
	"fermata/internal/models"
	"fermata/internal/services"
	"fermata/internal/shared"
	tu "fermata/internal/testing"
)

// fakeSource serves canned audio and records fetch counts and pin calls.
type fakeSource struct {
	dir   string
	delay chan struct{}

	mu      sync.Mutex
	fetches map[string]int
	fail    map[string]bool
	cached  map[string]string
	marked  []string
	cleared []string
}

func newFakeSource(t *testing.T) *fakeSource {
	t.Helper()
	return &fakeSource{
		dir:     t.TempDir(),
		fetches: make(map[string]int),
		fail:    make(map[string]bool),
		cached:  make(map[string]string),
	}
}

func (s *fakeSource) OpenStream(songID string) (*cache.CachedMedia, error) {
	s.mu.Lock()
	body, ok := s.cached[songID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: not cached", shared.ErrNotFound)
	}

	f, err := os.CreateTemp(s.dir, "blob-*")
	if err != nil {
		return nil, err
	}
	f.WriteString(body)
	f.Seek(0, io.SeekStart)

	return &cache.CachedMedia{
		File:  f,
		Entry: models.CacheEntry{Key: cache.StreamKey(songID), ContentType: "audio/flac"},
	}, nil
}

func (s *fakeSource) FetchStream(ctx context.Context, songID, rangeSpec string) (*services.Media, error) {
	if s.delay != nil {
		<-s.delay
	}

	s.mu.Lock()
	s.fetches[songID]++
	failed := s.fail[songID]
	s.mu.Unlock()

	if failed {
		return nil, fmt.Errorf("%w: fetch failed", shared.ErrNetwork)
	}
	return tu.AudioMedia([]byte("audio-"+songID), "audio/mpeg"), nil
}

func (s *fakeSource) MarkActive(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, key)
}

func (s *fakeSource) ClearActive(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, key)
}

func (s *fakeSource) count(songID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[songID]
}

func newPreloader(src Source, capacity int) *Preloader {
	return NewPreloader(src, "http://127.0.0.1:4597", capacity, shared.NewLogger(io.Discard))
}

func song(id string) models.Song {
	return models.Song{ID: id, Title: "Track " + id}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPrepareTrack(t *testing.T) {
	t.Run("Annotates With Local URL", func(t *testing.T) {
		src := newFakeSource(t)
		p := newPreloader(src, 5)

		track := p.PrepareTrack(context.Background(), song("s1"))

		if track.LocalURL != "http://127.0.0.1:4597/preload/s1" {
			t.Errorf("unexpected local url %q", track.LocalURL)
		}
		if track.ID != "s1" || track.Title != "Track s1" {
			t.Error("expected song fields carried over")
		}

		data, contentType, ok := p.Handle("s1")
		if !ok {
			t.Fatal("expected held buffer")
		}
		if string(data) != "audio-s1" {
			t.Errorf("expected buffered audio, got %q", data)
		}
		if contentType != "audio/mpeg" {
			t.Errorf("expected audio/mpeg, got %s", contentType)
		}
	})

	t.Run("Failure Returns Track Unchanged", func(t *testing.T) {
		src := newFakeSource(t)
		src.fail["s1"] = true
		p := newPreloader(src, 5)

		track := p.PrepareTrack(context.Background(), song("s1"))

		if track.LocalURL != "" {
			t.Errorf("expected no local url, got %q", track.LocalURL)
		}
		if p.Len() != 0 {
			t.Errorf("expected nothing held, got %d", p.Len())
		}
	})

	t.Run("Prefers Cached Bytes", func(t *testing.T) {
		src := newFakeSource(t)
		src.cached["s1"] = "flac bytes"
		p := newPreloader(src, 5)

		track := p.PrepareTrack(context.Background(), song("s1"))
		if track.LocalURL == "" {
			t.Fatal("expected preload to succeed")
		}

		if src.count("s1") != 0 {
			t.Errorf("cached track must not hit upstream, saw %d fetches", src.count("s1"))
		}

		data, contentType, _ := p.Handle("s1")
		if string(data) != "flac bytes" || contentType != "audio/flac" {
			t.Errorf("expected cached bytes, got %q (%s)", data, contentType)
		}
	})

	t.Run("Deduplicates Concurrent Fetches", func(t *testing.T) {
		src := newFakeSource(t)
		src.delay = make(chan struct{})
		p := newPreloader(src, 5)

		results := make(chan Track, 2)
		go func() { results <- p.PrepareTrack(context.Background(), song("s1")) }()

		waitFor(t, "first fetch to register", func() bool {
			p.mu.Lock()
			defer p.mu.Unlock()
			return len(p.inflight) == 1
		})

		go func() { results <- p.PrepareTrack(context.Background(), song("s1")) }()
		time.Sleep(20 * time.Millisecond)
		close(src.delay)

		for i := 0; i < 2; i++ {
			track := <-results
			if track.LocalURL == "" {
				t.Error("expected both callers annotated")
			}
		}

		if src.count("s1") != 1 {
			t.Errorf("expected one shared fetch, got %d", src.count("s1"))
		}
	})

	t.Run("Repeat Prepare Reuses Buffer", func(t *testing.T) {
		src := newFakeSource(t)
		p := newPreloader(src, 5)

		p.PrepareTrack(context.Background(), song("s1"))
		p.PrepareTrack(context.Background(), song("s1"))

		if src.count("s1") != 1 {
			t.Errorf("expected one fetch, got %d", src.count("s1"))
		}
	})
}

func TestCapacity(t *testing.T) {
	t.Run("Sixth Insert Evicts First", func(t *testing.T) {
		src := newFakeSource(t)
		p := newPreloader(src, 5)

		for _, id := range []string{"s1", "s2", "s3", "s4", "s5", "s6"} {
			if track := p.PrepareTrack(context.Background(), song(id)); track.LocalURL == "" {
				t.Fatalf("preload of %s failed", id)
			}
		}

		if p.Len() != 5 {
			t.Fatalf("expected 5 held, got %d", p.Len())
		}

		if _, _, ok := p.Handle("s1"); ok {
			t.Error("expected first inserted track evicted")
		}
		for _, id := range []string{"s2", "s3", "s4", "s5", "s6"} {
			if _, _, ok := p.Handle(id); !ok {
				t.Errorf("expected %s still held", id)
			}
		}
	})

	t.Run("Just Inserted Survives", func(t *testing.T) {
		src := newFakeSource(t)
		p := newPreloader(src, 1)

		p.PrepareTrack(context.Background(), song("s1"))
		p.PrepareTrack(context.Background(), song("s2"))

		if _, _, ok := p.Handle("s2"); !ok {
			t.Error("expected newest track held")
		}
		if _, _, ok := p.Handle("s1"); ok {
			t.Error("expected oldest track evicted")
		}
	})

	t.Run("Active Track Never Evicted", func(t *testing.T) {
		src := newFakeSource(t)
		p := newPreloader(src, 2)

		p.PrepareTrack(context.Background(), song("s1"))
		p.SetActive("s1")
		p.PrepareTrack(context.Background(), song("s2"))
		p.PrepareTrack(context.Background(), song("s3"))

		if _, _, ok := p.Handle("s1"); !ok {
			t.Error("active track must survive eviction")
		}
		if _, _, ok := p.Handle("s2"); ok {
			t.Error("expected oldest non-active track evicted")
		}
		if _, _, ok := p.Handle("s3"); !ok {
			t.Error("expected just inserted track held")
		}
	})
}

func TestSetActive(t *testing.T) {
	src := newFakeSource(t)
	p := newPreloader(src, 5)

	p.SetActive("s1")
	p.SetActive("s2")
	p.SetActive("")

	src.mu.Lock()
	defer src.mu.Unlock()

	if len(src.marked) != 2 || src.marked[0] != cache.StreamKey("s1") || src.marked[1] != cache.StreamKey("s2") {
		t.Errorf("unexpected pin calls %v", src.marked)
	}
	if len(src.cleared) != 2 || src.cleared[0] != cache.StreamKey("s1") || src.cleared[1] != cache.StreamKey("s2") {
		t.Errorf("unexpected unpin calls %v", src.cleared)
	}
}

func TestClose(t *testing.T) {
	t.Run("Releases Everything", func(t *testing.T) {
		src := newFakeSource(t)
		p := newPreloader(src, 5)

		p.PrepareTrack(context.Background(), song("s1"))
		p.PrepareTrack(context.Background(), song("s2"))
		p.Close()

		if p.Len() != 0 {
			t.Errorf("expected nothing held after close, got %d", p.Len())
		}

		track := p.PrepareTrack(context.Background(), song("s3"))
		if track.LocalURL != "" {
			t.Error("expected prepare after close to be a no-op")
		}
		if src.count("s3") != 0 {
			t.Error("prepare after close must not fetch")
		}
	})

	t.Run("InFlight Result Dropped", func(t *testing.T) {
		src := newFakeSource(t)
		src.delay = make(chan struct{})
		p := newPreloader(src, 5)

		results := make(chan Track, 1)
		go func() { results <- p.PrepareTrack(context.Background(), song("s1")) }()

		waitFor(t, "fetch to register", func() bool {
			p.mu.Lock()
			defer p.mu.Unlock()
			return len(p.inflight) == 1
		})

		p.Close()
		close(src.delay)

		track := <-results
		if track.LocalURL != "" {
			t.Error("expected stale fetch result dropped")
		}
		if p.Len() != 0 {
			t.Errorf("expected nothing held, got %d", p.Len())
		}
	})
}

func TestPreloadNextInQueue(t *testing.T) {
	t.Run("Warms Following Track", func(t *testing.T) {
		src := newFakeSource(t)
		p := newPreloader(src, 5)
		queue := []models.Song{song("a"), song("b"), song("c")}

		p.PreloadNextInQueue(queue, 0)

		waitFor(t, "next track buffered", func() bool {
			_, _, ok := p.Handle("b")
			return ok
		})
	})

	t.Run("Start Of Queue", func(t *testing.T) {
		src := newFakeSource(t)
		p := newPreloader(src, 5)
		queue := []models.Song{song("a"), song("b")}

		p.PreloadNextInQueue(queue, -1)

		waitFor(t, "first track buffered", func() bool {
			_, _, ok := p.Handle("a")
			return ok
		})
	})

	t.Run("End Of Queue", func(t *testing.T) {
		src := newFakeSource(t)
		p := newPreloader(src, 5)
		queue := []models.Song{song("a"), song("b")}

		p.PreloadNextInQueue(queue, 1)

		time.Sleep(50 * time.Millisecond)
		if p.Len() != 0 {
			t.Errorf("expected nothing preloaded past the end, got %d", p.Len())
		}
	})
}
