package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"fermata/internal/cache"
	"fermata/internal/services"
	"fermata/internal/shared"
)

// envelope is the JSON wrapper on every non-media response, matching the
// upstream API convention.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleStream serves a song's audio: cache hits from disk, misses through
// the authenticated fetch path.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	g.touchStream()
	songID := mux.Vars(r)["id"]

	media, err := g.media.OpenStream(songID)
	if err == nil {
		defer media.Close()
		g.serveCached(w, r, media)
		return
	}
	if !errors.Is(err, shared.ErrNotFound) {
		g.logger.Warn("cache read failed, trying upstream", "song", songID, "error", err)
	}

	g.serveMiss(w, r, songID, func(ctx context.Context) (*services.Media, error) {
		return g.media.FetchStream(ctx, songID, r.Header.Get("Range"))
	})
}

// handleCover serves a song's artwork; ?size=N selects a scaled variant.
func (g *Gateway) handleCover(w http.ResponseWriter, r *http.Request) {
	songID := mux.Vars(r)["id"]
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if size < 0 {
		size = 0
	}

	media, err := g.media.OpenCover(songID, size)
	if err == nil {
		defer media.Close()
		g.serveCached(w, r, media)
		return
	}
	if !errors.Is(err, shared.ErrNotFound) {
		g.logger.Warn("cache read failed, trying upstream", "song", songID, "error", err)
	}

	g.serveMiss(w, r, songID, func(ctx context.Context) (*services.Media, error) {
		return g.media.FetchCover(ctx, songID, size)
	})
}

// serveMiss runs the fetch-through path after a cache miss. Guest requests
// never reach upstream: pre-seeded libraries are expected to be complete, so
// a guest miss reports missing local state, not a network problem.
func (g *Gateway) serveMiss(w http.ResponseWriter, r *http.Request, songID string, fetch func(context.Context) (*services.Media, error)) {
	if g.guest(r) {
		writeError(w, http.StatusNotFound, "not cached: "+songID)
		return
	}

	media, err := fetch(r.Context())
	if errors.Is(err, shared.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		g.logger.Warn("upstream fetch failed", "song", songID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "upstream fetch failed")
		return
	}
	defer media.Close()

	g.serveUpstream(w, media)
}

// guest reports whether the request must be served from local state only.
func (g *Gateway) guest(r *http.Request) bool {
	return g.opts.GuestMode || r.Header.Get(GuestHeader) != ""
}

// serveCached writes a cached blob. [http.ServeContent] answers Range
// requests against the open file.
func (g *Gateway) serveCached(w http.ResponseWriter, r *http.Request, media *cache.CachedMedia) {
	w.Header().Set("Content-Type", media.Entry.ContentType)
	w.Header().Set(CacheHeader, "hit")
	http.ServeContent(w, r, "", media.Entry.CreatedAt, media.File)
}

// serveUpstream relays an upstream media response, preserving its status and
// range headers. Draining the body to EOF is what lands full responses in
// the cache.
func (g *Gateway) serveUpstream(w http.ResponseWriter, media *services.Media) {
	w.Header().Set("Content-Type", media.ContentType)
	if media.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(media.ContentLength, 10))
	}
	if media.ContentRange != "" {
		w.Header().Set("Content-Range", media.ContentRange)
	}
	w.Header().Set(CacheHeader, "miss")
	w.WriteHeader(media.Status)

	if _, err := io.Copy(w, media.Body); err != nil {
		g.logger.Debug("media relay aborted", "error", err)
	}
}

// handlePreload serves a preloaded track's in-memory bytes.
func (g *Gateway) handlePreload(w http.ResponseWriter, r *http.Request) {
	g.touchStream()
	songID := mux.Vars(r)["id"]

	data, contentType, ok := g.preloader.Handle(songID)
	if !ok {
		writeError(w, http.StatusNotFound, "no preloaded audio for "+songID)
		return
	}

	w.Header().Set("Content-Type", contentType)
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
}

// CachedSongs is the payload behind GET /cache/songs.
type CachedSongs struct {
	Count   int      `json:"count"`
	SongIDs []string `json:"song_ids"`
}

func (g *Gateway) handleCachedSongs(w http.ResponseWriter, r *http.Request) {
	ids, err := g.media.CachedSongIDs()
	if err != nil {
		g.logger.Warn("failed to list cached songs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list cached songs")
		return
	}

	if ids == nil {
		ids = []string{}
	}
	writeData(w, CachedSongs{Count: len(ids), SongIDs: ids})
}

// Status is the agent snapshot behind GET /status.
type Status struct {
	OfflineReady bool        `json:"offline_ready"`
	NeedRefresh  bool        `json:"need_refresh"`
	Online       bool        `json:"online"`
	Syncing      bool        `json:"syncing"`
	GuestMode    bool        `json:"guest_mode"`
	Cache        cache.Stats `json:"cache"`
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := g.media.Stats()
	if err != nil {
		g.logger.Warn("failed to read cache stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read cache stats")
		return
	}

	writeData(w, Status{
		OfflineReady: g.lifecycle.OfflineReady(),
		NeedRefresh:  g.lifecycle.NeedRefresh(),
		Online:       g.lifecycle.Online(),
		Syncing:      g.engine.Syncing(),
		GuestMode:    g.opts.GuestMode,
		Cache:        stats,
	})
}

// Control message kinds accepted at POST /control.
const (
	ControlSkipWaiting = "SKIP_WAITING"
	ControlClearCache  = "CLEAR_CACHE"
	ControlSyncNow     = "SYNC_NOW"
	ControlShutdown    = "SHUTDOWN"
)

// ControlMessage is the tagged variant players post to /control.
type ControlMessage struct {
	Kind string `json:"kind"`
}

// ControlResult acknowledges a control message.
type ControlResult struct {
	Kind           string `json:"kind"`
	Accepted       bool   `json:"accepted"`
	Ignored        bool   `json:"ignored,omitempty"`
	DroppedEntries int64  `json:"dropped_entries,omitempty"`
}

// handleControl dispatches control messages. Unknown kinds are acknowledged
// and ignored so an out-of-date player never takes the agent down.
func (g *Gateway) handleControl(w http.ResponseWriter, r *http.Request) {
	var msg ControlMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "malformed control message: "+err.Error())
		return
	}

	switch msg.Kind {
	case ControlSkipWaiting:
		// the apply waits for playback to go quiet, so it runs off the
		// request path
		go func() {
			if err := g.lifecycle.ApplyUpdate(context.Background()); err != nil {
				g.logger.Warn("update apply failed", "error", err)
			}
		}()
		writeData(w, ControlResult{Kind: msg.Kind, Accepted: true})

	case ControlClearCache:
		dropped, err := g.media.Clear()
		if err != nil {
			g.logger.Warn("cache clear failed", "error", err)
			writeError(w, http.StatusInternalServerError, "cache clear failed")
			return
		}
		writeData(w, ControlResult{Kind: msg.Kind, Accepted: true, DroppedEntries: dropped})

	case ControlSyncNow:
		go func() {
			if _, err := g.engine.ManualSync(context.Background(), nil); err != nil && !errors.Is(err, shared.ErrSyncBusy) {
				g.logger.Warn("requested sync failed", "error", err)
			}
		}()
		writeData(w, ControlResult{Kind: msg.Kind, Accepted: true})

	case ControlShutdown:
		// acknowledge before the listener goes away; RequestStop never
		// blocks, so the shutdown starts once this handler returns
		writeData(w, ControlResult{Kind: msg.Kind, Accepted: true})
		g.lifecycle.RequestStop()

	default:
		g.logger.Debug("ignoring unknown control kind", "kind", msg.Kind)
		writeData(w, ControlResult{Kind: msg.Kind, Ignored: true})
	}
}
