// package gateway runs the local HTTP surface players point at: intercepted
// media routes served from the cache, the preload surface, and the agent's
// status and control endpoints
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"fermata/internal/cache"
	"fermata/internal/preload"
	"fermata/internal/services"
	"fermata/internal/shared"
	"fermata/internal/tasks"
)

// CacheHeader reports on every intercepted media response whether the bytes
// came from the local cache ("hit") or upstream ("miss").
const CacheHeader = "X-Fermata-Cache"

// GuestHeader forces guest semantics for a single request: a cache miss
// answers 404 instead of reaching upstream.
const GuestHeader = "X-Fermata-Guest"

// Lifecycle is the slice of the running agent the gateway surfaces: the
// flags behind GET /status and the actions behind SKIP_WAITING and
// SHUTDOWN.
type Lifecycle interface {
	// OfflineReady reports whether the cache and gateway are serving.
	OfflineReady() bool

	// NeedRefresh reports whether a server update is waiting to be applied.
	NeedRefresh() bool

	// Online reports the last connectivity probe's verdict.
	Online() bool

	// ApplyUpdate rotates to the next cache generation and records the new
	// server version.
	ApplyUpdate(ctx context.Context) error

	// RequestStop asks the agent to shut down. It must not block; the
	// shutdown happens after the requesting call returns.
	RequestStop()
}

// Options configures the gateway listener.
type Options struct {
	// Addr is the host:port to bind, loopback in normal operation.
	Addr string

	// GuestMode serves only pre-seeded media: no request reaches upstream,
	// and cache misses answer 404.
	GuestMode bool
}

// Gateway is the local HTTP server fronting the music server. Stream and
// cover routes are intercepted against the cache; every other /api/ path
// proxies through to upstream untouched.
type Gateway struct {
	media     *cache.Engine
	preloader *preload.Preloader
	engine    tasks.Engine
	lifecycle Lifecycle
	proxy     *httputil.ReverseProxy
	opts      Options
	logger    *log.Logger

	srv      *http.Server
	listener net.Listener

	// lastStream holds the unix-nano time of the last stream or preload
	// request, consulted before a generation rotation.
	lastStream atomic.Int64
}

// New wires the gateway over its collaborators. The proxy target comes from
// the client's base URL.
func New(media *cache.Engine, preloader *preload.Preloader, engine tasks.Engine, lifecycle Lifecycle, client services.Client, opts Options, logger *log.Logger) (*Gateway, error) {
	target, err := url.Parse(client.BaseURL())
	if err != nil {
		return nil, fmt.Errorf("%w: upstream URL %q: %v", shared.ErrInvalidConfig, client.BaseURL(), err)
	}

	g := &Gateway{
		media:     media,
		preloader: preloader,
		engine:    engine,
		lifecycle: lifecycle,
		opts:      opts,
		logger:    logger,
	}

	g.proxy = httputil.NewSingleHostReverseProxy(target)
	g.proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		g.logger.Debug("proxy to upstream failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "upstream unreachable")
	}

	return g, nil
}

// Handler returns the gateway's routing table.
func (g *Gateway) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(g.logRequests, g.recoverPanics)

	// intercepted media routes are registered before the catch-all proxy;
	// mux matches in registration order
	router.HandleFunc("/api/songs/{id}/stream", g.handleStream).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/{id}/cover", g.handleCover).Methods(http.MethodGet)

	router.HandleFunc("/preload/{id}", g.handlePreload).Methods(http.MethodGet)
	router.HandleFunc("/cache/songs", g.handleCachedSongs).Methods(http.MethodGet)
	router.HandleFunc("/status", g.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/control", g.handleControl).Methods(http.MethodPost)

	router.PathPrefix("/api/").Handler(g.proxy)

	return router
}

// Start binds the configured address and serves in the background. Bind
// failures are returned; serve failures after a clean bind are logged.
func (g *Gateway) Start() error {
	ln, err := net.Listen("tcp", g.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind gateway on %s: %w", g.opts.Addr, err)
	}

	g.listener = ln
	g.srv = &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := g.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway server failed", "error", err)
		}
	}()

	g.logger.Info("gateway listening", "addr", ln.Addr().String(), "guest_mode", g.opts.GuestMode)
	return nil
}

// Addr returns the bound listen address, or the configured one before Start.
// The two differ when port 0 was configured.
func (g *Gateway) Addr() string {
	if g.listener != nil {
		return g.listener.Addr().String()
	}
	return g.opts.Addr
}

// Shutdown drains in-flight requests and stops the listener. A gateway that
// never started shuts down cleanly.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.srv == nil {
		return nil
	}
	return g.srv.Shutdown(ctx)
}

// LastStreamAt reports when the gateway last answered a stream or preload
// request, zero when it has not. The agent waits this out before rotating
// cache generations so an update never cuts an in-flight listen.
func (g *Gateway) LastStreamAt() time.Time {
	nanos := g.lastStream.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

func (g *Gateway) touchStream() {
	g.lastStream.Store(time.Now().UnixNano())
}
